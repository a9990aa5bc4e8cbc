package extract

import "strings"

// FieldSet carries the postal/contact field group produced by one strategy.
// Empty string means "not found"; the combinator fills empty slots only.
type FieldSet struct {
	Address    string
	City       string
	Region     string
	PostalCode string
	Phone      string
	Fax        string
	Email      string
	Website    string
}

// fill copies non-empty fields of src into empty fields of f. A field already
// satisfied by an earlier, higher-precedence strategy is never overwritten.
func (f *FieldSet) fill(src FieldSet) {
	take(&f.Address, src.Address)
	take(&f.City, src.City)
	take(&f.Region, src.Region)
	take(&f.PostalCode, src.PostalCode)
	take(&f.Phone, src.Phone)
	take(&f.Fax, src.Fax)
	take(&f.Email, src.Email)
	take(&f.Website, src.Website)
}

func take(dst *string, src string) {
	if strings.TrimSpace(*dst) == "" && strings.TrimSpace(src) != "" {
		*dst = strings.TrimSpace(src)
	}
}

// ComposedAddress renders the single-line postal address the export expects:
// street, city, full region name, postal code.
func ComposedAddress(f FieldSet) string {
	parts := make([]string, 0, 3)
	if f.Address != "" {
		parts = append(parts, f.Address)
	}
	if f.City != "" {
		parts = append(parts, f.City)
	}
	tail := strings.TrimSpace(strings.TrimSpace(f.Region) + " " + strings.TrimSpace(f.PostalCode))
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}
