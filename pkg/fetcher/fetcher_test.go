package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
)

func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/page-1.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><article class="post">one</article>` +
			`<a class="next" href="/page-2.html">Next</a></body></html>`))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page-1.html", http.StatusFound)
	})
	mux.HandleFunc("/echo-header", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<p>" + r.Header.Get("X-Feed") + "|" + r.UserAgent() + "</p>"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStaticFetcher_Success(t *testing.T) {
	srv := newPageServer(t)
	f := NewStatic(DefaultStaticConfig())
	defer f.Close()

	content, err := f.Fetch(context.Background(), srv.URL+"/page-1.html", Options{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if content.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", content.StatusCode)
	}
	if !strings.Contains(content.HTML, `class="post"`) {
		t.Errorf("expected page body, got %q", content.HTML)
	}
	if !strings.HasPrefix(content.ContentType, "text/html") {
		t.Errorf("expected text/html content type, got %q", content.ContentType)
	}
	if content.Size() != len(content.HTML) {
		t.Errorf("Size() = %d, want %d", content.Size(), len(content.HTML))
	}
	if content.FetchedAt.IsZero() {
		t.Error("expected FetchedAt to be set")
	}
}

func TestStaticFetcher_FollowsRedirects(t *testing.T) {
	srv := newPageServer(t)
	f := NewStatic(DefaultStaticConfig())

	content, err := f.Fetch(context.Background(), srv.URL+"/moved", Options{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if content.URL != srv.URL+"/page-1.html" {
		t.Errorf("expected final URL after redirect, got %q", content.URL)
	}
}

func TestStaticFetcher_SendsHeadersAndUserAgent(t *testing.T) {
	srv := newPageServer(t)
	f := NewStatic(DefaultStaticConfig())

	content, err := f.Fetch(context.Background(), srv.URL+"/echo-header", Options{
		UserAgent: "feedscroll-test",
		Headers:   map[string]string{"X-Feed": "yes"},
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.Contains(content.HTML, "yes|feedscroll-test") {
		t.Errorf("expected header and user agent echoed, got %q", content.HTML)
	}
}

func TestStaticFetcher_StatusErrors(t *testing.T) {
	srv := newPageServer(t)
	f := NewStatic(DefaultStaticConfig())

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"not found", "/missing.html", http.StatusNotFound},
		{"server error", "/broken", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), srv.URL+tt.path, Options{})
			if err == nil {
				t.Fatal("expected error")
			}

			var te *TransportError
			if !errors.As(err, &te) {
				t.Fatalf("expected *TransportError, got %T", err)
			}
			if te.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, te.StatusCode)
			}
			if !errors.Is(err, ErrStatus) {
				t.Error("expected error to wrap ErrStatus")
			}
			if !strings.Contains(te.Error(), srv.URL+tt.path) {
				t.Errorf("expected URL in message, got %q", te.Error())
			}
		})
	}
}

func TestStaticFetcher_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := NewStatic(StaticConfig{Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), addr+"/page-1.html", Options{})
	if !IsTransportError(err) {
		t.Fatalf("expected transport error, got %v", err)
	}

	var te *TransportError
	errors.As(err, &te)
	if te.StatusCode != 0 {
		t.Errorf("expected no status code, got %d", te.StatusCode)
	}
}

func TestStaticFetcher_CanceledContext(t *testing.T) {
	srv := newPageServer(t)
	f := NewStatic(DefaultStaticConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, srv.URL+"/page-1.html", Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStaticFetcher_Type(t *testing.T) {
	if got := NewStatic(StaticConfig{}).Type(); got != "static" {
		t.Errorf("Type() = %q, want static", got)
	}
}

func TestTransportError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *TransportError
		want string
	}{
		{
			name: "with status",
			err:  &TransportError{URL: "https://example.com/2", StatusCode: 404, Err: ErrStatus},
			want: "fetch https://example.com/2: status 404: unexpected status",
		},
		{
			name: "without status",
			err:  &TransportError{URL: "https://example.com/2", Err: errors.New("dial tcp: refused")},
			want: "fetch https://example.com/2: dial tcp: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDynamicFetcher_Success(t *testing.T) {
	if FindChromePath() == "" {
		t.Skip("Chrome not available")
	}
	srv := newPageServer(t)

	f := NewDynamic(DefaultBrowserConfig(), 20*time.Second)
	defer f.Close()

	content, err := f.Fetch(context.Background(), srv.URL+"/page-1.html", Options{WaitForSelector: ".post"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if content.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", content.StatusCode)
	}
	if !strings.Contains(content.HTML, `class="post"`) {
		t.Errorf("expected rendered body, got %q", content.HTML)
	}
	if f.Type() != "dynamic" {
		t.Errorf("Type() = %q, want dynamic", f.Type())
	}
}

func TestSetupActions(t *testing.T) {
	tests := []struct {
		name        string
		opts        Options
		wantHeaders bool
		wantUA      string
	}{
		{name: "defaults"},
		{name: "headers", opts: Options{Headers: map[string]string{"X-Feed": "1"}}, wantHeaders: true},
		{name: "user agent", opts: Options{UserAgent: "feedscroll/test"}, wantUA: "feedscroll/test"},
		{
			name:        "both",
			opts:        Options{UserAgent: "feedscroll/test", Headers: map[string]string{"X-Feed": "1"}},
			wantHeaders: true,
			wantUA:      "feedscroll/test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				enabled    bool
				gotHeaders network.Headers
				gotUA      string
			)
			for _, a := range setupActions(tt.opts) {
				switch p := a.(type) {
				case *network.EnableParams:
					enabled = true
				case *network.SetExtraHTTPHeadersParams:
					gotHeaders = p.Headers
				case *emulation.SetUserAgentOverrideParams:
					gotUA = p.UserAgent
				default:
					t.Errorf("unexpected action %T", a)
				}
			}

			if !enabled {
				t.Error("expected the network domain to be enabled")
			}
			if (gotHeaders != nil) != tt.wantHeaders {
				t.Errorf("headers = %v, want present %v", gotHeaders, tt.wantHeaders)
			}
			if tt.wantHeaders && gotHeaders["X-Feed"] != "1" {
				t.Errorf("expected X-Feed header, got %v", gotHeaders)
			}
			if gotUA != tt.wantUA {
				t.Errorf("user agent override = %q, want %q", gotUA, tt.wantUA)
			}
		})
	}
}
