package parser

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// readTestdata reads a file from the testdata directory
func readTestdata(t *testing.T, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", filename))
	if err != nil {
		t.Fatalf("failed to read testdata %s: %v", filename, err)
	}
	return string(data)
}

func TestParse_FixturePage(t *testing.T) {
	p := New(".post", ".pagination__next")

	result, err := p.Parse(readTestdata(t, "page-2.html"), "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(result.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(result.Items))
	}
	if result.NextURL != "/page-3.html" {
		t.Errorf("expected next URL /page-3.html, got %q", result.NextURL)
	}
	if !result.HasNext() {
		t.Error("expected HasNext() to be true")
	}
}

func TestParse_DocumentOrder(t *testing.T) {
	p := New(".post", ".pagination__next")

	result, err := p.Parse(readTestdata(t, "page-1.html"), "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	var ids []string
	for _, item := range result.Items {
		ids = append(ids, item.Selection.AttrOr("id", ""))
	}
	want := []string{"post-1", "post-2", "post-3", "post-4"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("expected %v, got %v", want, ids)
	}
}

func TestParse_LastPageHasNoNext(t *testing.T) {
	p := New(".post", ".pagination__next")

	result, err := p.Parse(readTestdata(t, "page-3.html"), "https://example.com/page-3.html")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if result.HasNext() {
		t.Errorf("expected no next URL, got %q", result.NextURL)
	}
	if len(result.Items) != 4 {
		t.Errorf("expected 4 items, got %d", len(result.Items))
	}
}

func TestParse_ResolvesRelativeNextURL(t *testing.T) {
	tests := []struct {
		name string
		html string
		base string
		want string
	}{
		{
			name: "absolute path",
			html: `<a class="next" href="/feed?page=2">Next</a>`,
			base: "https://example.com/feed",
			want: "https://example.com/feed?page=2",
		},
		{
			name: "relative path",
			html: `<a class="next" href="page-2.html">Next</a>`,
			base: "https://example.com/posts/page-1.html",
			want: "https://example.com/posts/page-2.html",
		},
		{
			name: "already absolute",
			html: `<a class="next" href="https://cdn.example.org/p/2">Next</a>`,
			base: "https://example.com/",
			want: "https://cdn.example.org/p/2",
		},
		{
			name: "no base keeps raw link",
			html: `<a class="next" href="page-2.html">Next</a>`,
			base: "",
			want: "page-2.html",
		},
	}

	p := New(".item", "a.next")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Parse(tt.html, tt.base)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if result.NextURL != tt.want {
				t.Errorf("expected %q, got %q", tt.want, result.NextURL)
			}
		})
	}
}

func TestParse_UnusableNextLinks(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"no match", `<a class="other" href="/2">x</a>`},
		{"missing href", `<a class="next">x</a>`},
		{"empty href", `<a class="next" href="  ">x</a>`},
		{"fragment", `<a class="next" href="#more">x</a>`},
		{"javascript", `<a class="next" href="javascript:void(0)">x</a>`},
	}

	p := New(".item", "a.next")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Parse(tt.html, "https://example.com/")
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if result.HasNext() {
				t.Errorf("expected no next URL, got %q", result.NextURL)
			}
		})
	}
}

func TestParse_FirstNextMatchWins(t *testing.T) {
	html := `<a class="next" href="/a">A</a><a class="next" href="/b">B</a>`

	result, err := New(".item", "a.next").Parse(html, "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if result.NextURL != "/a" {
		t.Errorf("expected first match /a, got %q", result.NextURL)
	}
}

func TestParse_ItemContent(t *testing.T) {
	html := `<div class="item">
	  <h2>  Hello
	    world </h2>
	  <img src="a.png"><img srcset="b-1x.png 1x, b-2x.png 2x"><img src="data:image/png;base64,AAAA">
	</div>`

	result, err := New(".item", "a.next").Parse(html, "https://example.com/list/")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}

	item := result.Items[0]
	if item.Text != "Hello world" {
		t.Errorf("expected normalized text, got %q", item.Text)
	}
	if !strings.HasPrefix(item.HTML, `<div class="item">`) {
		t.Errorf("expected outer HTML, got %q", item.HTML)
	}

	want := []string{"https://example.com/list/a.png", "https://example.com/list/b-1x.png"}
	if !reflect.DeepEqual(item.Images, want) {
		t.Errorf("expected images %v, got %v", want, item.Images)
	}
}

func TestResult_ImageURLs_Deduplicates(t *testing.T) {
	r := Result{Items: []Item{
		{Images: []string{"a", "b"}},
		{Images: []string{"b", "c"}},
	}}

	want := []string{"a", "b", "c"}
	if got := r.ImageURLs(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParse_InvalidBaseURL(t *testing.T) {
	_, err := New(".item", "a.next").Parse("<p></p>", "://bad")
	if err == nil {
		t.Error("expected error for invalid base URL")
	}
}

func TestParse_EmptyMarkup(t *testing.T) {
	result, err := New(".item", "a.next").Parse("", "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Items) != 0 || result.HasNext() {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestNextURL_FromLiveDocument(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(readTestdata(t, "page-1.html")))
	if err != nil {
		t.Fatalf("failed to build document: %v", err)
	}

	got, err := NextURL(doc.Selection, ".pagination__next", "https://example.com/page-1.html")
	if err != nil {
		t.Fatalf("NextURL() error = %v", err)
	}
	if got != "https://example.com/page-2.html" {
		t.Errorf("expected page-2 URL, got %q", got)
	}
}
