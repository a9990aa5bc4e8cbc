package crawl

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is one outbound reference found on a listing page.
type Link struct {
	URL  string
	Name string
	// ItemCount is the listing's advertised record count, when the link text
	// carries one, e.g. "Access Doors (112)".
	ItemCount int
}

var itemCountRe = regexp.MustCompile(`\((\d+)\)\s*$`)

// parseListing extracts, in document order, the anchors whose resolved href
// matches pattern. Duplicate targets keep their first occurrence so the
// traversal order is stable across runs.
func parseListing(markup, base string, pattern *regexp.Regexp) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var links []Link
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := baseURL.ResolveReference(ref)
		resolved.Fragment = ""
		target := resolved.String()
		if !pattern.MatchString(resolved.Path) && !pattern.MatchString(target) {
			return
		}
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}

		name, count := splitListingText(a.Text())
		links = append(links, Link{URL: target, Name: name, ItemCount: count})
	})
	return links, nil
}

// splitListingText separates the display name from a trailing "(count)".
func splitListingText(text string) (string, int) {
	name := strings.Join(strings.Fields(text), " ")
	if m := itemCountRe.FindStringSubmatch(name); m != nil {
		count, _ := strconv.Atoi(m[1])
		name = strings.TrimSpace(strings.TrimSuffix(name, m[0]))
		return name, count
	}
	return name, 0
}
