package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// document wraps one page's markup with lazily computed views shared by the
// strategies: a parsed DOM, the lowercased raw text, and the visible text.
type document struct {
	raw   string
	lower string

	doc     *goquery.Document
	docErr  error
	docOnce bool

	text     string
	textOnce bool
}

func newDocument(markup string) *document {
	return &document{raw: markup, lower: strings.ToLower(markup)}
}

// dom parses the markup on first use. A parse failure leaves dom nil and the
// DOM-based strategies simply produce nothing.
func (d *document) dom() *goquery.Document {
	if !d.docOnce {
		d.docOnce = true
		d.doc, d.docErr = goquery.NewDocumentFromReader(strings.NewReader(d.raw))
	}
	if d.docErr != nil {
		return nil
	}
	return d.doc
}

// visibleText returns the rendered text of the page with collapsed
// whitespace, the input for the free-text regex strategies.
func (d *document) visibleText() string {
	if !d.textOnce {
		d.textOnce = true
		if doc := d.dom(); doc != nil {
			d.text = strings.Join(strings.Fields(doc.Text()), " ")
		}
	}
	return d.text
}
