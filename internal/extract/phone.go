package extract

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\(?(\d{3})\)?[-.\s]?(\d{3})[-.\s]?(\d{4})`)

// NormalizePhone reduces a phone or fax candidate to the canonical
// "(AAA) BBB-CCCC" form. Candidates that do not contain a ten-digit North
// American number are returned trimmed but otherwise untouched.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	m := phoneDigitsRe.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	return "(" + m[1] + ") " + m[2] + "-" + m[3]
}
