package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertFirstInsertionWinsIdentity(t *testing.T) {
	t.Parallel()

	s := NewStore()
	node := s.AddRoot(&CategoryNode{Name: "Concrete", URL: "https://d.example/cat/03"})

	first, inserted := s.Upsert(node, &Entity{
		SourceURL: "https://d.example/company/acme?ref=listing",
		Name:      "Acme Widget Co",
		Phone:     "(512) 555-0100",
	})
	require.True(t, inserted)
	second, inserted := s.Upsert(node, &Entity{
		SourceURL: "https://d.example/company/acme#top",
		Name:      "ACME WIDGETS",
		Email:     "info@acme.com",
	})
	require.False(t, inserted, "second sighting of a key merges, not inserts")

	require.Same(t, first, second, "same canonical key must dedupe")
	require.Equal(t, 1, s.Len())
	require.Equal(t, 1, s.Merged())
	// Identity fields from the first insertion survive; empty slots fill in.
	require.Equal(t, "Acme Widget Co", first.Name)
	require.Equal(t, "(512) 555-0100", first.Phone)
	require.Equal(t, "info@acme.com", first.Email)
	// The node holds the entity once.
	require.Len(t, node.Entities, 1)
}

func TestUpsertAcrossNodesSharesEntity(t *testing.T) {
	t.Parallel()

	s := NewStore()
	a := s.AddRoot(&CategoryNode{Name: "Concrete", URL: "https://d.example/cat/03"})
	b := s.AddRoot(&CategoryNode{Name: "Masonry", URL: "https://d.example/cat/04"})

	e1, _ := s.Upsert(a, &Entity{SourceURL: "https://d.example/company/acme", Tags: []string{"Concrete"}})
	e2, _ := s.Upsert(b, &Entity{SourceURL: "https://d.example/company/acme", Tags: []string{"Masonry"}})

	require.Same(t, e1, e2)
	require.Len(t, a.Entities, 1)
	require.Len(t, b.Entities, 1)
	require.ElementsMatch(t, []string{"Concrete", "Masonry"}, e1.Tags)
	// Distinct traversal still yields the entity once.
	require.Len(t, s.Entities(), 1)
}

func TestMergePreservesDetailedAndClearsFailed(t *testing.T) {
	t.Parallel()

	s := NewStore()
	node := s.AddRoot(&CategoryNode{URL: "https://d.example/cat/03"})

	e, _ := s.Upsert(node, &Entity{SourceURL: "https://d.example/company/acme", Failed: true})
	require.True(t, e.Failed)

	s.Upsert(node, &Entity{SourceURL: "https://d.example/company/acme", Detailed: true})
	require.True(t, e.Detailed)
	require.False(t, e.Failed, "a successful detail pass clears the failure mark")

	// A later failed sighting must not demote a detailed entity.
	s.Upsert(node, &Entity{SourceURL: "https://d.example/company/acme"})
	require.True(t, e.Detailed)
}

func TestMergeUnionsContentFlags(t *testing.T) {
	t.Parallel()

	s := NewStore()
	node := s.AddRoot(&CategoryNode{URL: "https://d.example/cat/03"})

	e, _ := s.Upsert(node, &Entity{
		SourceURL: "https://d.example/company/acme",
		Content:   Content{Spec: true},
	})
	s.Upsert(node, &Entity{
		SourceURL: "https://d.example/company/acme",
		Content:   Content{CAD: true},
	})
	require.True(t, e.Content.Spec)
	require.True(t, e.Content.CAD)
}

func TestWalkDeterministicOrder(t *testing.T) {
	t.Parallel()

	s := NewStore()
	root := s.AddRoot(&CategoryNode{Name: "Concrete", URL: "https://d.example/cat/03"})
	child := &CategoryNode{Name: "Cast-in-Place", URL: "https://d.example/cat/03-30"}
	root.Children = append(root.Children, child)

	s.Upsert(root, &Entity{SourceURL: "https://d.example/company/a", Name: "A"})
	s.Upsert(child, &Entity{SourceURL: "https://d.example/company/b", Name: "B"})
	s.Upsert(child, &Entity{SourceURL: "https://d.example/company/c", Name: "C"})

	var trail []string
	s.Walk(func(n *CategoryNode, e *Entity) bool {
		if e == nil {
			trail = append(trail, "node:"+n.Name)
		} else {
			trail = append(trail, "entity:"+e.Name)
		}
		return true
	})
	require.Equal(t, []string{
		"node:Concrete", "entity:A",
		"node:Cast-in-Place", "entity:B", "entity:C",
	}, trail)
}

func TestSetRootsReindexes(t *testing.T) {
	t.Parallel()

	s := NewStore()
	node := s.AddRoot(&CategoryNode{URL: "https://d.example/cat/03"})
	s.Upsert(node, &Entity{SourceURL: "https://d.example/company/acme", Detailed: true})

	restored := NewStore()
	restored.SetRoots(s.Roots())

	e, ok := restored.Lookup("https://d.example/company/acme")
	require.True(t, ok)
	require.True(t, e.Detailed)
	require.Equal(t, 1, restored.CountDetailed())

	// Upserting the same key after adoption merges instead of duplicating.
	restored.Upsert(node, &Entity{SourceURL: "https://d.example/company/acme", Email: "x@acme.com"})
	require.Equal(t, 1, restored.Len())
	require.Equal(t, "x@acme.com", e.Email)
}

func TestAddRootDedupesByURL(t *testing.T) {
	t.Parallel()

	s := NewStore()
	a := s.AddRoot(&CategoryNode{URL: "https://d.example/cat/03"})
	b := s.AddRoot(&CategoryNode{URL: "https://d.example/cat/03"})
	require.Same(t, a, b)
	require.Len(t, s.Roots(), 1)
	require.Equal(t, NodeUnexpanded, a.State)
}
