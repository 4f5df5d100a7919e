package viewport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/feedscroll/pkg/fetcher"
)

// newBrowserViewport opens a headless tab on a long page.
func newBrowserViewport(t *testing.T) *Browser {
	t.Helper()
	if fetcher.FindChromePath() == "" {
		t.Skip("Chrome not available")
	}

	var sb strings.Builder
	sb.WriteString(`<html><body><main id="feed">`)
	for i := 1; i <= 50; i++ {
		fmt.Fprintf(&sb, `<article class="post" style="height:200px">Post %d</article>`, i)
	}
	sb.WriteString(`</main></body></html>`)
	page := sb.String()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)

	cfg := fetcher.DefaultBrowserConfig()
	cfg.Width, cfg.Height = 800, 600
	allocCtx, cancelAlloc := fetcher.NewAllocator(context.Background(), cfg)
	t.Cleanup(cancelAlloc)

	ctx, cancel := chromedp.NewContext(allocCtx)
	t.Cleanup(cancel)
	ctx, cancelTimeout := context.WithTimeout(ctx, 30*time.Second)
	t.Cleanup(cancelTimeout)

	if err := chromedp.Run(ctx, chromedp.Navigate(srv.URL), chromedp.WaitReady("#feed")); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}

	b, err := NewBrowser(ctx)
	if err != nil {
		t.Fatalf("NewBrowser() error = %v", err)
	}
	return b
}

func TestBrowser_Metrics(t *testing.T) {
	b := newBrowserViewport(t)

	m := b.Metrics()
	if m.ViewportHeight <= 0 {
		t.Errorf("expected positive viewport height, got %v", m.ViewportHeight)
	}
	if m.DocumentHeight < 50*200 {
		t.Errorf("expected tall document, got %v", m.DocumentHeight)
	}
	if m.ScrollOffset != 0 {
		t.Errorf("expected top of page, got %v", m.ScrollOffset)
	}
}

func TestBrowser_ScrollNotifies(t *testing.T) {
	b := newBrowserViewport(t)

	var calls atomic.Int32
	unsubscribe := b.Subscribe(func() { calls.Add(1) })
	defer unsubscribe()

	if err := b.ScrollBy(1000); err != nil {
		t.Fatalf("ScrollBy() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Fatal("expected a scroll notification")
	}
	if got := b.Metrics().ScrollOffset; got != 1000 {
		t.Errorf("expected offset 1000, got %v", got)
	}
}

func TestBrowser_InjectAndDocument(t *testing.T) {
	b := newBrowserViewport(t)
	before := b.Metrics().DocumentHeight

	fragments := []string{
		`<article class="post" style="height:200px">Injected 1</article>`,
		`<article class="post" style="height:200px">Injected 2</article>`,
	}
	if err := b.Inject("#feed", fragments); err != nil {
		t.Fatalf("Inject() error = %v", err)
	}

	doc, err := b.Document()
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	if n := doc.Find("article.post").Length(); n != 52 {
		t.Errorf("expected 52 posts after inject, got %d", n)
	}
	if doc.Url == nil {
		t.Error("expected document URL to be set")
	}
	if after := b.Metrics().DocumentHeight; after <= before {
		t.Errorf("expected document to grow, before=%v after=%v", before, after)
	}

	if err := b.Inject("#missing", fragments); !errors.Is(err, ErrContainerNotFound) {
		t.Errorf("expected ErrContainerNotFound, got %v", err)
	}
}
