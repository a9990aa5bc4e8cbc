package extract

import (
	"net/url"
	"strings"
)

// defaultLinkExclusions lists domains that never identify the entity's own
// website: social networks, CDNs, analytics, tooling.
var defaultLinkExclusions = []string{
	"facebook.com", "twitter.com", "linkedin.com", "instagram.com",
	"youtube.com", "pinterest.com", "tiktok.com", "google.com",
	"amazonaws.com", "cloudfront.net", "cloudflare.com", "jsdelivr.net",
	"googleapis.com", "gstatic.com", "bootstrapcdn.com", "jquery.com",
	"fontawesome.com", "microsoft.com", "bing.com", "w3.org", "schema.org",
	"doubleclick.net", "googlesyndication.com", "googletagmanager.com",
	"clarity.ms",
}

// defaultEmailExclusions are substrings that mark an address as machine
// generated rather than a real contact.
var defaultEmailExclusions = []string{"noreply", "donotreply", "unsubscribe"}

// defaultPathExclusions are path fragments of non-company sub-resources such
// as hosted spec-sheet and document viewers.
var defaultPathExclusions = []string{"/spec-doc/", "/specification/"}

// assetExtensions never point at a company website.
var assetExtensions = []string{
	".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".ico", ".woff", ".svg",
}

// hostBlocklist stores exact hosts and suffix wildcards. Grounded on the
// crawler blocklist pattern: "example.com" blocks the host and every
// subdomain of it.
type hostBlocklist struct {
	suffixes []string
}

func newHostBlocklist(patterns ...[]string) *hostBlocklist {
	b := &hostBlocklist{}
	for _, group := range patterns {
		for _, raw := range group {
			value := strings.TrimSpace(strings.ToLower(raw))
			value = strings.TrimPrefix(value, "*.")
			value = strings.TrimPrefix(value, ".")
			if value == "" {
				continue
			}
			b.addSuffix(value)
		}
	}
	return b
}

func (b *hostBlocklist) addSuffix(suffix string) {
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// Blocked reports whether host matches any entry exactly or as a subdomain.
func (b *hostBlocklist) Blocked(host string) bool {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// acceptWebsite validates an external-link candidate: its host must clear the
// blocklist, its path must not name a known non-company sub-resource, and it
// must not be a static asset. The accepted URL is returned without a trailing
// slash.
func (p *Pipeline) acceptWebsite(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	if !strings.HasPrefix(u.Scheme, "http") {
		return "", false
	}
	if p.linkBlock.Blocked(u.Hostname()) {
		return "", false
	}
	lower := strings.ToLower(raw)
	for _, frag := range p.pathExclusions {
		if strings.Contains(lower, frag) {
			return "", false
		}
	}
	path := strings.ToLower(u.Path)
	for _, ext := range assetExtensions {
		if strings.HasSuffix(path, ext) {
			return "", false
		}
	}
	return strings.TrimRight(raw, "/"), true
}

// acceptEmail validates an email candidate against the hosting-site domains
// and the generic machine-address substrings.
func (p *Pipeline) acceptEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	at := strings.LastIndex(raw, "@")
	if at <= 0 || at == len(raw)-1 {
		return "", false
	}
	lower := strings.ToLower(raw)
	if p.emailBlock.Blocked(lower[at+1:]) {
		return "", false
	}
	for _, frag := range p.emailExclusions {
		if strings.Contains(lower, frag) {
			return "", false
		}
	}
	return raw, true
}
