package catalog

import (
	"strings"
)

// Store owns the category tree and enforces the deduplication contract: one
// entity per canonical key, first insertion wins for identity, later upserts
// merge only non-empty incoming fields into still-empty ones. The store is
// mutated exclusively by the orchestrator; it performs no I/O.
type Store struct {
	roots  []*CategoryNode
	byKey  map[string]*Entity
	merged int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byKey: make(map[string]*Entity)}
}

// Roots returns the top-level category nodes in discovery order.
func (s *Store) Roots() []*CategoryNode {
	return s.roots
}

// SetRoots replaces the whole tree, re-indexing every entity under it. Used
// when a checkpoint snapshot is adopted wholesale.
func (s *Store) SetRoots(roots []*CategoryNode) {
	s.roots = roots
	s.byKey = make(map[string]*Entity)
	s.Walk(func(_ *CategoryNode, e *Entity) bool {
		if e != nil && e.Key != "" {
			if _, ok := s.byKey[e.Key]; !ok {
				s.byKey[e.Key] = e
			}
		}
		return true
	})
}

// AddRoot appends a top-level node unless a node with the same URL exists.
func (s *Store) AddRoot(node *CategoryNode) *CategoryNode {
	for _, r := range s.roots {
		if r.URL == node.URL {
			return r
		}
	}
	if node.State == "" {
		node.State = NodeUnexpanded
	}
	s.roots = append(s.roots, node)
	return node
}

// Lookup returns the entity for key, if present.
func (s *Store) Lookup(key string) (*Entity, bool) {
	e, ok := s.byKey[key]
	return e, ok
}

// Len reports the number of distinct entities in the store.
func (s *Store) Len() int {
	return len(s.byKey)
}

// Merged reports how many upserts merged into an existing entity instead of
// inserting a new one.
func (s *Store) Merged() int {
	return s.merged
}

// Upsert attaches the entity to node, deduplicating by canonical key. The
// first insertion establishes identity; a later upsert for the same key
// merges only non-empty incoming fields over existing empty ones and never
// overwrites a populated field. The surviving entity is returned along with
// whether this call inserted a new key rather than merging.
func (s *Store) Upsert(node *CategoryNode, incoming *Entity) (*Entity, bool) {
	if incoming.Key == "" {
		if key, err := CanonicalKey(incoming.SourceURL); err == nil {
			incoming.Key = key
		} else {
			incoming.Key = incoming.SourceURL
		}
	}

	existing, ok := s.byKey[incoming.Key]
	if !ok {
		s.byKey[incoming.Key] = incoming
		if node != nil {
			node.Entities = append(node.Entities, incoming)
		}
		return incoming, true
	}

	mergeEntity(existing, incoming)
	s.merged++
	if node != nil && !nodeHolds(node, existing) {
		node.Entities = append(node.Entities, existing)
	}
	return existing, false
}

// Walk visits the tree in deterministic pre-order: each node before its
// entities, entities before children, children left to right. The visitor
// receives (node, nil) for the node itself and (node, entity) per entity;
// returning false stops the walk.
func (s *Store) Walk(visit func(node *CategoryNode, entity *Entity) bool) {
	var walk func(n *CategoryNode) bool
	walk = func(n *CategoryNode) bool {
		if !visit(n, nil) {
			return false
		}
		for _, e := range n.Entities {
			if !visit(n, e) {
				return false
			}
		}
		for _, c := range n.Children {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	for _, r := range s.roots {
		if !walk(r) {
			return
		}
	}
}

// Entities returns every distinct entity in deterministic traversal order.
func (s *Store) Entities() []*Entity {
	seen := make(map[string]struct{}, len(s.byKey))
	var out []*Entity
	s.Walk(func(_ *CategoryNode, e *Entity) bool {
		if e == nil {
			return true
		}
		if _, dup := seen[e.Key]; dup {
			return true
		}
		seen[e.Key] = struct{}{}
		out = append(out, e)
		return true
	})
	return out
}

// CountDetailed reports how many distinct entities completed detailing.
func (s *Store) CountDetailed() int {
	n := 0
	for _, e := range s.byKey {
		if e.Detailed {
			n++
		}
	}
	return n
}

func nodeHolds(node *CategoryNode, e *Entity) bool {
	for _, have := range node.Entities {
		if have == e {
			return true
		}
	}
	return false
}

// mergeEntity copies non-empty incoming scalar fields into empty fields of
// dst and unions tags and content flags. Populated fields are never replaced.
func mergeEntity(dst, src *Entity) {
	fillString(&dst.Name, src.Name)
	fillString(&dst.SourceURL, src.SourceURL)
	fillString(&dst.SourceID, src.SourceID)
	fillString(&dst.ParentName, src.ParentName)
	fillString(&dst.ParentKey, src.ParentKey)
	fillString(&dst.Address, src.Address)
	fillString(&dst.City, src.City)
	fillString(&dst.Region, src.Region)
	fillString(&dst.PostalCode, src.PostalCode)
	fillString(&dst.Phone, src.Phone)
	fillString(&dst.Fax, src.Fax)
	fillString(&dst.Email, src.Email)
	fillString(&dst.Website, src.Website)
	fillString(&dst.Contact.Name, src.Contact.Name)
	fillString(&dst.Contact.Phone, src.Contact.Phone)
	fillString(&dst.Contact.Email, src.Contact.Email)
	fillString(&dst.Description, src.Description)
	for _, tag := range src.Tags {
		dst.AddTag(tag)
	}
	dst.Content = Content{
		Spec:       dst.Content.Spec || src.Content.Spec,
		BIM:        dst.Content.BIM || src.Content.BIM,
		CAD:        dst.Content.CAD || src.Content.CAD,
		CEU:        dst.Content.CEU || src.Content.CEU,
		Catalog:    dst.Content.Catalog || src.Content.Catalog,
		DataSheet:  dst.Content.DataSheet || src.Content.DataSheet,
		Gallery:    dst.Content.Gallery || src.Content.Gallery,
		Green:      dst.Content.Green || src.Content.Green,
		Selector:   dst.Content.Selector || src.Content.Selector,
		Literature: dst.Content.Literature || src.Content.Literature,
	}
	dst.Detailed = dst.Detailed || src.Detailed
	if dst.Detailed {
		dst.Failed = false
	}
}

func fillString(dst *string, src string) {
	if strings.TrimSpace(*dst) == "" && strings.TrimSpace(src) != "" {
		*dst = src
	}
}
