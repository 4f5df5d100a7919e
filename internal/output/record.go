package output

import (
	"time"

	"github.com/jmylchreest/feedscroll/internal/render"
	"github.com/jmylchreest/feedscroll/pkg/parser"
	"github.com/jmylchreest/feedscroll/pkg/scroll"
)

// ItemRecord is the serialized form of one item.
type ItemRecord struct {
	Text     string   `json:"text" yaml:"text"`
	Markdown string   `json:"markdown,omitempty" yaml:"markdown,omitempty"`
	HTML     string   `json:"html,omitempty" yaml:"html,omitempty"`
	Images   []string `json:"images,omitempty" yaml:"images,omitempty"`
}

// PageRecord is the serialized form of one loaded page.
type PageRecord struct {
	Page     int          `json:"page" yaml:"page"`
	URL      string       `json:"url" yaml:"url"`
	Items    []ItemRecord `json:"items" yaml:"items"`
	Final    bool         `json:"final,omitempty" yaml:"final,omitempty"`
	LoadedAt time.Time    `json:"loaded_at" yaml:"loaded_at"`
}

// RecordOptions selects which item fields are filled in.
type RecordOptions struct {
	IncludeHTML bool
	Markdown    *render.Renderer // nil skips markdown
}

// NewPageRecord builds a record from a load:end payload.
func NewPageRecord(p scroll.LoadEnd, final bool, opts RecordOptions) (PageRecord, error) {
	rec := PageRecord{
		Page:     p.Page,
		URL:      p.URL,
		Items:    make([]ItemRecord, 0, len(p.Items)),
		Final:    final,
		LoadedAt: time.Now().UTC(),
	}
	for _, item := range p.Items {
		ir, err := newItemRecord(item, opts)
		if err != nil {
			return PageRecord{}, err
		}
		rec.Items = append(rec.Items, ir)
	}
	return rec, nil
}

func newItemRecord(item parser.Item, opts RecordOptions) (ItemRecord, error) {
	ir := ItemRecord{
		Text:   item.Text,
		Images: item.Images,
	}
	if opts.IncludeHTML {
		ir.HTML = item.HTML
	}
	if opts.Markdown != nil {
		md, err := opts.Markdown.Render(item)
		if err != nil {
			return ItemRecord{}, err
		}
		ir.Markdown = md
	}
	return ir, nil
}
