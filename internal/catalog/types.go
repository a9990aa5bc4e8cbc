// Package catalog defines the in-memory category tree and entity records
// produced by a crawl, plus the deduplicating store that owns them.
package catalog

// NodeState represents the expansion lifecycle of a category node.
type NodeState string

// Node expansion states. Re-expansion of an Expanded node replaces its
// children and entities rather than appending to them.
const (
	NodeUnexpanded NodeState = "unexpanded"
	NodeExpanding  NodeState = "expanding"
	NodeExpanded   NodeState = "expanded"
)

// Contact is the named contact person advertised on a detail page.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Content flags which downloadable content types a detail page advertises.
type Content struct {
	Spec       bool `json:"spec"`
	BIM        bool `json:"bim"`
	CAD        bool `json:"cad"`
	CEU        bool `json:"ceu"`
	Catalog    bool `json:"catalog"`
	DataSheet  bool `json:"data_sheet"`
	Gallery    bool `json:"gallery"`
	Green      bool `json:"green"`
	Selector   bool `json:"selector"`
	Literature bool `json:"literature"`
}

// Entity is one harvested company/product record. Every field is always
// serialized so that snapshots written by an older schema still load under a
// newer one; optional semantics are "empty string / false", never a missing
// key.
type Entity struct {
	// Key is the canonical source URL (query and fragment stripped) and is
	// the deduplication identity for the entity.
	Key        string   `json:"key"`
	Name       string   `json:"name"`
	SourceURL  string   `json:"source_url"`
	SourceID   string   `json:"source_id"`
	ParentName string   `json:"parent_name"`
	ParentKey  string   `json:"parent_key"`
	Address    string   `json:"address"`
	City       string   `json:"city"`
	Region     string   `json:"region"`
	PostalCode string   `json:"postal_code"`
	Phone      string   `json:"phone"`
	Fax        string   `json:"fax"`
	Email      string   `json:"email"`
	Website    string   `json:"website"`
	Contact    Contact  `json:"contact"`
	Tags       []string `json:"tags"`
	Content    Content  `json:"content"`
	Description string  `json:"description"`
	// Detailed marks that the detail-fetch phase completed for this entity,
	// even when extraction produced mostly-empty fields.
	Detailed bool `json:"detailed"`
	// Failed marks that the detail fetch yielded no markup at all; a resumed
	// run will retry the entity.
	Failed bool `json:"failed"`
}

// CategoryNode is one tier of the crawled hierarchy. Children and Entities
// stay empty until the node is expanded.
type CategoryNode struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	URL       string          `json:"url"`
	ItemCount int             `json:"item_count"`
	State     NodeState       `json:"state"`
	Children  []*CategoryNode `json:"children"`
	Entities  []*Entity       `json:"entities"`
}

// HasTag reports whether the entity already carries the given tag.
func (e *Entity) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends tag unless it is empty or already present.
func (e *Entity) AddTag(tag string) {
	if tag == "" || e.HasTag(tag) {
		return
	}
	e.Tags = append(e.Tags, tag)
}
