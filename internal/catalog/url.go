package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// CanonicalKey normalizes a source URL into the deduplication identity for an
// entity. The query string and fragment are stripped, scheme and host are
// lowercased, and default ports are removed, so listing links that differ
// only in tracking parameters map to the same entity.
func CanonicalKey(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}
