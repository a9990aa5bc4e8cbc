// Package crawl drives the hierarchical traversal: category listings down to
// leaf entity detail pages, with checkpointing, dedup, and cooperative
// cancellation. One generic engine serves every site; a SiteProfile carries
// everything site-specific.
package crawl

import (
	"regexp"
)

// LevelSpec describes one tier of the category hierarchy. Anchors on a page
// of this level whose href matches LinkPattern lead to the next tier; the
// last level's links are entity detail pages.
type LevelSpec struct {
	Name        string
	LinkPattern *regexp.Regexp
}

// SiteProfile captures everything site-specific about a crawl mode.
type SiteProfile struct {
	// Mode names the profile and doubles as the checkpoint tag.
	Mode string
	// Tag is the constant provenance label stamped on exported rows.
	Tag string
	// BaseURL resolves relative listing links.
	BaseURL string
	// RootURL is the top listing page.
	RootURL string
	// Levels orders the hierarchy tiers above the entity pages.
	Levels []LevelSpec
	// SiteDomains feed the email/website exclusion lists.
	SiteDomains []string
	// ParentLinkPattern, when set, finds the parent-organization link on an
	// entity detail page for the address fallback.
	ParentLinkPattern *regexp.Regexp
	// RenderDetails marks detail pages whose data only appears after page
	// scripts run; honored only when rendering is enabled.
	RenderDetails bool
}

// Profiles returns the built-in crawl modes.
//
// "divisions" walks a two-tier hierarchy: division listings straight to
// company detail pages. "categories" walks three tiers: category,
// subcategory, then company pages.
func Profiles() map[string]SiteProfile {
	return map[string]SiteProfile{
		"divisions": {
			Mode:    "divisions",
			Tag:     "arcat",
			BaseURL: "https://www.arcat.com",
			RootURL: "https://www.arcat.com/divs/building-products.shtml",
			Levels: []LevelSpec{
				{Name: "division", LinkPattern: regexp.MustCompile(`/divs/[\w-]+\.shtml$`)},
				{Name: "company", LinkPattern: regexp.MustCompile(`/company/[\w-]+|/arcatcos/[\w-]+/[\w-]+\.shtml$`)},
			},
			SiteDomains:       []string{"arcat.com"},
			ParentLinkPattern: regexp.MustCompile(`href="((?:https?://[^"]+)?/company/[\w-]+)"`),
			RenderDetails:     true,
		},
		"categories": {
			Mode:    "categories",
			Tag:     "sweets",
			BaseURL: "https://sweets.construction.com",
			RootURL: "https://sweets.construction.com/browse",
			Levels: []LevelSpec{
				{Name: "category", LinkPattern: regexp.MustCompile(`/browse/[\w-]+/?$`)},
				{Name: "subcategory", LinkPattern: regexp.MustCompile(`/browse/[\w-]+/[\w-]+/?$`)},
				{Name: "company", LinkPattern: regexp.MustCompile(`/companies/[\w-]+|/viewproduct/[\w-]+`)},
			},
			SiteDomains:   []string{"sweets.construction.com", "construction.com"},
			RenderDetails: false,
		},
	}
}

// Profile looks up a built-in mode.
func Profile(mode string) (SiteProfile, bool) {
	p, ok := Profiles()[mode]
	return p, ok
}
