package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// A contactStrategy is one self-contained heuristic for the postal/contact
// field group. Strategies are pure over the document; precedence is decided
// by their order in the pipeline, and a later strategy never overwrites a
// field an earlier one satisfied.
type contactStrategy struct {
	name string
	run  func(p *Pipeline, d *document, h Hints) FieldSet
}

var streetSuffix = `(?:Rd|St|Ave|Dr|Blvd|Way|Ln|Pkwy|Place|Pl|Circle|Ct|Court|Road|Street|Avenue|Drive|Boulevard|Lane|Parkway)`

// The source markup repeats contact facts in serialized data blobs. Four
// shapes occur: with a null between postal code and phone, without it, a
// phone-only tail, and the Canadian variant with a postal code and two phone
// numbers.
var (
	blobWithNullRe  = regexp.MustCompile(`(?i)"(\d+[^"]*` + streetSuffix + `\.?[^"]*)",\s*"([^"]*)",\s*"([A-Z]{2})",\s*"(\d{5}(?:-\d{4})?)",\s*null,\s*"([^"]*)",\s*"([^"]*@[^"]*)"`)
	blobDirectRe    = regexp.MustCompile(`(?i)"(\d+[^"]*` + streetSuffix + `\.?[^"]*)",\s*"([^"]*)",\s*"([A-Z]{2})",\s*"(\d{5}(?:-\d{4})?)",\s*"([^"]*)",\s*"([^"]*@[^"]*)"`)
	blobPhoneTailRe = regexp.MustCompile(`(?i)"(\d+[^"]*` + streetSuffix + `\.?[^"]*)",\s*"([^"]*)",\s*"([A-Z]{2})",\s*"(\d{5}(?:-\d{4})?)",\s*(?:null,\s*)?"(\d{3}[-.]?\d{3}[-.]?\d{4})"`)
	blobCanadaRe    = regexp.MustCompile(`(?i)"(\d+[^"]*` + streetSuffix + `\.?[^"]*)",\s*"([^"]*)",\s*"([A-Z]{2}),?\s*Canada",\s*"([A-Z]\d[A-Z]\s*\d[A-Z]\d)",\s*"([^"]*)",\s*"([^"]*)",\s*"([^"]*@[^"]*)"`)

	quotedURLRe = regexp.MustCompile(`"(https?://[^"\s]+)"`)
)

// Free-text patterns used when no structured source yields the field.
var (
	textAddressRe = regexp.MustCompile(`(?i)(\d+[\w\s.,]+` + streetSuffix + `\.?[\w\s.,]*?,?\s*([A-Z]{2})\s+(\d{5}(?:-\d{4})?))`)
	textPOBoxRe   = regexp.MustCompile(`(?i)(P\.?\s*O\.?\s*Box\s+\d+[\w\s.,]+,?\s*([A-Z]{2})\s+(\d{5}))`)

	textPhoneLabelRe    = regexp.MustCompile(`(?i)(?:Phone|Tel|Telephone|Toll\s*Free)[:\s]*(\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4})`)
	textPhoneParenRe    = regexp.MustCompile(`\(\d{3}\)\s*\d{3}[-.\s]?\d{4}`)
	textPhoneBareRe     = regexp.MustCompile(`\d{3}[-.\s]\d{3}[-.\s]\d{4}`)
	textFaxLabelRe      = regexp.MustCompile(`(?i)Fax[:\s]*(\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4})`)
	textEmailRe         = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	mailtoHrefRe        = regexp.MustCompile(`(?i)href="mailto:([^"?]+)`)
	cityRegionPostalRe  = regexp.MustCompile(`^([A-Za-z][A-Za-z\s.]+?),\s*([A-Z]{2})\s+(\d{5}(?:-\d{4})?)$`)
	cityRegionCanadaRe  = regexp.MustCompile(`^([A-Za-z][A-Za-z\s.]+?),\s*([A-Z]{2})\s+([A-Z]\d[A-Z]\s*\d[A-Z]\d)$`)
	cityProvinceFullRe  = regexp.MustCompile(`^([A-Za-z][A-Za-z\s.]+?),\s*([A-Za-z\s]+?)\s+([A-Z]\d[A-Z]\s*\d[A-Z]\d)$`)
	telLineRe           = regexp.MustCompile(`(?i)^Tel:\s*(.+)$`)
	faxLineRe           = regexp.MustCompile(`(?i)^Fax:\s*(.+)$`)
	brTagRe             = regexp.MustCompile(`(?i)<br\s*/?\s*>`)
	anyTagRe            = regexp.MustCompile(`<[^>]+>`)
)

// contactStrategies in precedence order: most structured source first,
// free-text regex last.
var contactStrategies = []contactStrategy{
	{name: "structured-block", run: (*Pipeline).fromStructuredBlock},
	{name: "serialized-blob", run: (*Pipeline).fromSerializedBlob},
	{name: "anchor-attrs", run: (*Pipeline).fromAnchors},
	{name: "visible-text", run: (*Pipeline).fromVisibleText},
}

// fromStructuredBlock parses the dedicated contact block: an address element
// inside the company-info container with <br>-separated lines of street,
// "City, ST ZIP", "Tel:", and "Fax:", plus mailto/website anchors.
func (p *Pipeline) fromStructuredBlock(d *document, h Hints) FieldSet {
	doc := d.dom()
	if doc == nil {
		return FieldSet{}
	}
	sel := doc.Find("div.companyInfo address").First()
	if sel.Length() == 0 {
		sel = doc.Find("address").First()
	}
	if sel.Length() == 0 {
		return FieldSet{}
	}

	var out FieldSet

	sel.Find(`a[href^="mailto:"], a[href^="MAILTO:"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		candidate := strings.TrimPrefix(strings.TrimPrefix(href, "mailto:"), "MAILTO:")
		if i := strings.IndexByte(candidate, '?'); i >= 0 {
			candidate = candidate[:i]
		}
		if email, ok := p.acceptEmail(candidate); ok {
			out.Email = email
			return false
		}
		return true
	})

	sel.Find(`a[href^="http"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if site, ok := p.acceptWebsite(href); ok {
			out.Website = site
			return false
		}
		return true
	})

	html, err := sel.Html()
	if err != nil {
		return out
	}
	text := anyTagRe.ReplaceAllString(brTagRe.ReplaceAllString(html, "\n"), "")

	var addressLines []string
	located := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "find a rep") || strings.Contains(lower, "request more info") || strings.Contains(lower, "request info") {
			continue
		}
		if m := telLineRe.FindStringSubmatch(line); m != nil {
			out.Phone = m[1]
			continue
		}
		if m := faxLineRe.FindStringSubmatch(line); m != nil {
			out.Fax = m[1]
			continue
		}
		if strings.Contains(line, "@") || strings.HasPrefix(lower, "http") {
			continue
		}
		if located {
			continue
		}
		if m := cityRegionPostalRe.FindStringSubmatch(line); m != nil {
			out.City, out.Region, out.PostalCode = m[1], m[2], m[3]
			located = true
			continue
		}
		if m := cityRegionCanadaRe.FindStringSubmatch(line); m != nil {
			out.City, out.Region, out.PostalCode = m[1], m[2], m[3]
			located = true
			continue
		}
		if m := cityProvinceFullRe.FindStringSubmatch(line); m != nil {
			out.City, out.Region, out.PostalCode = m[1], strings.TrimSpace(m[2]), m[3]
			located = true
			continue
		}
		addressLines = append(addressLines, line)
	}

	// The block's first line repeats the entity or parent name.
	if len(addressLines) > 0 {
		first := squash(addressLines[0])
		if (h.Name != "" && first == squash(h.Name)) ||
			(h.ParentName != "" && first == squash(h.ParentName)) {
			addressLines = addressLines[1:]
		}
	}
	out.Address = strings.Join(addressLines, ", ")
	return out
}

// fromSerializedBlob matches the inline serialized data shapes over the raw
// markup.
func (p *Pipeline) fromSerializedBlob(d *document, _ Hints) FieldSet {
	var out FieldSet
	if m := blobWithNullRe.FindStringSubmatch(d.raw); m != nil {
		out = FieldSet{Address: m[1], City: m[2], Region: m[3], PostalCode: m[4], Phone: m[5], Email: m[6]}
	} else if m := blobDirectRe.FindStringSubmatch(d.raw); m != nil {
		out = FieldSet{Address: m[1], City: m[2], Region: m[3], PostalCode: m[4], Phone: m[5], Email: m[6]}
	} else if m := blobPhoneTailRe.FindStringSubmatch(d.raw); m != nil {
		out = FieldSet{Address: m[1], City: m[2], Region: m[3], PostalCode: m[4], Phone: m[5]}
	} else if m := blobCanadaRe.FindStringSubmatch(d.raw); m != nil {
		phone := m[5]
		if strings.TrimSpace(phone) == "" {
			phone = m[6]
		}
		out = FieldSet{Address: m[1], City: m[2], Region: m[3], PostalCode: m[4], Phone: phone, Email: m[7]}
	}
	if out.Email != "" {
		if email, ok := p.acceptEmail(out.Email); ok {
			out.Email = email
		} else {
			out.Email = ""
		}
	}
	return out
}

// fromAnchors pulls the email out of mailto hrefs anywhere on the page.
func (p *Pipeline) fromAnchors(d *document, _ Hints) FieldSet {
	var out FieldSet
	for _, m := range mailtoHrefRe.FindAllStringSubmatch(d.raw, 8) {
		if email, ok := p.acceptEmail(m[1]); ok {
			out.Email = email
			break
		}
	}
	return out
}

// fromVisibleText is the last resort: loose regexes over the rendered page
// text. The whole matched address string is kept as-is; city is not split
// out, so the composed address is not rebuilt from components.
func (p *Pipeline) fromVisibleText(d *document, _ Hints) FieldSet {
	text := d.visibleText()
	if text == "" {
		return FieldSet{}
	}
	var out FieldSet
	if m := textAddressRe.FindStringSubmatch(text); m != nil {
		out.Address = strings.Join(strings.Fields(m[1]), " ")
		out.Region = m[2]
		out.PostalCode = m[3]
	} else if m := textPOBoxRe.FindStringSubmatch(text); m != nil {
		out.Address = strings.Join(strings.Fields(m[1]), " ")
		out.Region = m[2]
		out.PostalCode = m[3]
	}
	if m := textPhoneLabelRe.FindStringSubmatch(text); m != nil {
		out.Phone = m[1]
	} else if m := textPhoneParenRe.FindString(text); m != "" {
		out.Phone = m
	} else if m := textPhoneBareRe.FindString(text); m != "" {
		out.Phone = m
	}
	if m := textFaxLabelRe.FindStringSubmatch(text); m != nil {
		out.Fax = m[1]
	}
	for _, candidate := range textEmailRe.FindAllString(text, 8) {
		if email, ok := p.acceptEmail(candidate); ok {
			out.Email = email
			break
		}
	}
	return out
}

// website scans external-link candidates in precedence order: quoted URLs
// from the serialized data first, then anchors in DOM order.
func (p *Pipeline) website(d *document) string {
	for _, m := range quotedURLRe.FindAllStringSubmatch(d.raw, 64) {
		if site, ok := p.acceptWebsite(m[1]); ok {
			return site
		}
	}
	doc := d.dom()
	if doc == nil {
		return ""
	}
	site := ""
	doc.Find(`a[href^="http"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if s, ok := p.acceptWebsite(href); ok {
			site = s
			return false
		}
		return true
	})
	return site
}

func squash(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, ".", "")
	return strings.TrimSpace(s)
}
