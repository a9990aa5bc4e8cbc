// Package extract turns raw page markup into structured entity fields. A
// fixed precedence chain of strategies feeds a fill-empty-only combinator, so
// the most structured source available wins each field and validity rules
// apply identically no matter which strategy produced the value.
package extract

import (
	"regexp"
	"strings"

	"github.com/buildsheet/harvester/internal/catalog"
)

// Config parameterizes the pipeline for one hosting site.
type Config struct {
	// SiteDomains are the hosting site's own domains. Links and email
	// addresses on these domains describe the directory, not the entity.
	SiteDomains []string

	// ExtraLinkExclusions and ExtraEmailExclusions extend the built-in
	// blocklists.
	ExtraLinkExclusions  []string
	ExtraEmailExclusions []string

	// AssociationKeywords override the default industry-association filter
	// terms when non-nil.
	AssociationKeywords []string
}

// Hints carries page context the strategies can use but must not require.
type Hints struct {
	Name       string
	ParentName string
	SourceURL  string
}

// Result is the full structured yield of one page.
type Result struct {
	Address    string
	City       string
	Region     string
	PostalCode string
	Phone      string
	Fax        string
	Email      string
	Website    string

	Contact     catalog.Contact
	Content     catalog.Content
	Description string
}

// defaultAssociationKeywords mark trade and professional bodies that are
// listed alongside companies but are not sales targets.
var defaultAssociationKeywords = []string{
	"association", "institute", "society", "council", "foundation",
	"federation", "board", "committee", "organization", "alliance",
	"coalition", "consortium", "forum", "guild", "league", "union",
}

type Pipeline struct {
	linkBlock       *hostBlocklist
	emailBlock      *hostBlocklist
	pathExclusions  []string
	emailExclusions []string
	associations    []string
}

func NewPipeline(cfg Config) *Pipeline {
	p := &Pipeline{
		linkBlock:       newHostBlocklist(defaultLinkExclusions, cfg.SiteDomains, cfg.ExtraLinkExclusions),
		emailBlock:      newHostBlocklist(cfg.SiteDomains),
		pathExclusions:  defaultPathExclusions,
		emailExclusions: append(append([]string(nil), defaultEmailExclusions...), cfg.ExtraEmailExclusions...),
		associations:    cfg.AssociationKeywords,
	}
	if p.associations == nil {
		p.associations = defaultAssociationKeywords
	}
	return p
}

// IsAssociation reports whether the entity name identifies a trade body
// rather than a company.
func (p *Pipeline) IsAssociation(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range p.associations {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Extract runs the full strategy chain over one page's markup.
func (p *Pipeline) Extract(markup string, h Hints) Result {
	d := newDocument(markup)

	var fields FieldSet
	for _, s := range contactStrategies {
		fs := s.run(p, d, h)
		sanitize(&fs)
		fields.fill(fs)
	}
	if fields.Website == "" {
		fields.Website = p.website(d)
	}

	res := Result{
		City:       fields.City,
		Region:     RegionFullName(fields.Region),
		PostalCode: fields.PostalCode,
		Phone:      fields.Phone,
		Fax:        fields.Fax,
		Email:      fields.Email,
		Website:    fields.Website,
	}
	// When the city was split out the single-line address is rebuilt from
	// components with the region expanded. Free-text matches keep the whole
	// matched string, which already embeds city and state.
	if fields.City != "" {
		composed := fields
		composed.Region = res.Region
		res.Address = ComposedAddress(composed)
	} else {
		res.Address = fields.Address
	}

	res.Contact = p.contactPerson(d)
	res.Content = contentFlags(d)
	res.Description = pageDescription(d)
	return res
}

// sanitize applies the per-field validity rules to one strategy's output
// before it competes for the empty slots.
func sanitize(fs *FieldSet) {
	fs.Phone = NormalizePhone(fs.Phone)
	fs.Fax = NormalizePhone(fs.Fax)
	fs.Address = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(fs.Address), ","))
	fs.City = strings.TrimSpace(fs.City)
	fs.Region = strings.TrimSpace(fs.Region)
	fs.PostalCode = strings.TrimSpace(fs.PostalCode)
	fs.Email = strings.TrimSpace(fs.Email)
	fs.Website = strings.TrimSpace(fs.Website)
}

// Contact-person shapes: a rep paragraph in the markup, a labeled expert in
// the serialized data, and a bare rep row of name, id, phone, email.
var (
	contactHTMLRe = regexp.MustCompile(`(?is)<p[^>]*>\s*([A-Z][a-z]+ [A-Z][a-z]+)\s*<br\s*/?>\s*(\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4})\s*<br\s*/?>\s*<a[^>]*href="mailto:([^"?]+)`)
	contactBlobRe = regexp.MustCompile(`(?i)Product\s*Expert[^"]{0,200}"([A-Z][a-z]+ [A-Z][a-z]+)"[^"]{0,100}"(\(?\d{3}\)?[-.]?\d{3}[-.]?\d{4})"[^"]{0,100}"([^"@]+@[^"]+?)"`)
	contactRowRe  = regexp.MustCompile(`"([A-Z][a-z]+ [A-Z][a-z]+)",\d+,"(\d{3}[-.]?\d{3}[-.]?\d{4})","([^"@]+@[^"]+?)"`)
)

func (p *Pipeline) contactPerson(d *document) catalog.Contact {
	for _, re := range []*regexp.Regexp{contactHTMLRe, contactBlobRe, contactRowRe} {
		m := re.FindStringSubmatch(d.raw)
		if m == nil {
			continue
		}
		email, ok := p.acceptEmail(m[3])
		if !ok {
			email = ""
		}
		return catalog.Contact{
			Name:  strings.TrimSpace(m[1]),
			Phone: NormalizePhone(m[2]),
			Email: email,
		}
	}
	return catalog.Contact{}
}

// contentFlags probes the lowercased markup for the per-entity content
// availability indicators.
func contentFlags(d *document) catalog.Content {
	has := func(tokens ...string) bool {
		for _, t := range tokens {
			if strings.Contains(d.lower, t) {
				return true
			}
		}
		return false
	}
	return catalog.Content{
		Spec:       has("spec-doc", "specifications", "spec sheet"),
		BIM:        has(">bim", "bim objects", "bim library", "revit"),
		CAD:        has(">cad", "cad details", "cad drawings", ".dwg"),
		CEU:        has("ceu", "continuing education"),
		Catalog:    has("catalog"),
		DataSheet:  has("data sheet", "datasheet"),
		Gallery:    has("gallery"),
		Green:      has("leed", "sustainab", ">green"),
		Selector:   has("selector"),
		Literature: has("literature", "brochure"),
	}
}

// pageDescription takes the meta description, capped at 500 runes.
func pageDescription(d *document) string {
	doc := d.dom()
	if doc == nil {
		return ""
	}
	desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	desc = strings.TrimSpace(desc)
	if r := []rune(desc); len(r) > 500 {
		desc = string(r[:500])
	}
	return desc
}
