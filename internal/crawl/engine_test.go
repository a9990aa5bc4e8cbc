package crawl

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildsheet/harvester/internal/catalog"
	"github.com/buildsheet/harvester/internal/checkpoint"
	"github.com/buildsheet/harvester/internal/fetch"
	"github.com/buildsheet/harvester/internal/progress"
)

type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]error
	hits  map[string]int
}

func newStubFetcher(pages map[string]string) *stubFetcher {
	return &stubFetcher{pages: pages, fail: map[string]error{}, hits: map[string]int{}}
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[url]++
	if err, ok := f.fail[url]; ok {
		return fetch.Response{}, err
	}
	markup, ok := f.pages[url]
	if !ok {
		return fetch.Response{}, &fetch.Error{URL: url, Kind: fetch.KindStatus, StatusCode: 404}
	}
	return fetch.Response{URL: url, StatusCode: 200, Body: []byte(markup)}, nil
}

func (f *stubFetcher) hitCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[url]
}

// cancelingFetcher cancels the run when a specific URL is requested,
// simulating an interrupt arriving mid-crawl.
type cancelingFetcher struct {
	inner    *stubFetcher
	cancelOn string
	cancel   context.CancelFunc
}

func (f *cancelingFetcher) Fetch(ctx context.Context, url string) (fetch.Response, error) {
	if url == f.cancelOn {
		f.cancel()
		return fetch.Response{}, &fetch.Error{URL: url, Kind: fetch.KindCanceled, Err: context.Canceled}
	}
	return f.inner.Fetch(ctx, url)
}

type captureExporter struct {
	mu       sync.Mutex
	calls    int
	entities []*catalog.Entity
	tag      string
}

func (x *captureExporter) Export(entities []*catalog.Entity, tag string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.calls++
	x.entities = entities
	x.tag = tag
	return nil
}

func testProfile() SiteProfile {
	return SiteProfile{
		Mode:    "widgets",
		Tag:     "test-site",
		BaseURL: "https://d.example",
		RootURL: "https://d.example/root",
		Levels: []LevelSpec{
			{Name: "category", LinkPattern: regexp.MustCompile(`^/cat/\w+$`)},
			{Name: "company", LinkPattern: regexp.MustCompile(`^/company/\w+$`)},
		},
		SiteDomains:       []string{"d.example"},
		ParentLinkPattern: regexp.MustCompile(`href="(/parent/\w+)"`),
	}
}

func sitePages() map[string]string {
	return map[string]string{
		"https://d.example/root": `<html><body>
			<a href="/cat/a">Alpha (2)</a>
			<a href="/cat/b">Beta</a>
		</body></html>`,
		"https://d.example/cat/a": `<html><body>
			<a href="/company/acme">Acme Widget Co</a>
			<a href="/company/masonry">Masonry Institute of America</a>
			<a href="/company/oak">Oak Road Fixtures</a>
		</body></html>`,
		"https://d.example/cat/b": `<html><body>
			<a href="/company/acme">Acme Widget Co</a>
			<a href="/company/birch">Birch Supply</a>
		</body></html>`,
		"https://d.example/company/acme": `<html><body><script>
			var d = ["Acme Widget Co","123 Oak Rd.","Austin","TX","78701","512-555-0100","info@acme.com"];
		</script><a href="https://www.acme.com/">site</a></body></html>`,
		"https://d.example/company/oak": `<html><body>
			<p>Part of a larger group.</p>
			<a href="/parent/p1">Parent organization</a>
		</body></html>`,
		"https://d.example/company/birch": `<html><body>
			<p>Phone: 802-555-0144</p>
		</body></html>`,
		"https://d.example/parent/p1": `<html><body><script>
			var d = ["Parent Holdings","77 Pine St","Denver","CO","80202","303-555-0101","contact@parentco.com"];
		</script></body></html>`,
	}
}

func newTestEngine(t *testing.T, opts Options, fetcher Fetcher) (*Engine, *checkpoint.Store, *captureExporter) {
	t.Helper()
	ckpt := checkpoint.NewStore(t.TempDir(), opts.Profile.Mode, nil)
	exporter := &captureExporter{}
	return New(opts, fetcher, nil, ckpt, exporter, nil, nil), ckpt, exporter
}

func TestRunFullCrawl(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher(sitePages())
	engine, ckpt, exporter := newTestEngine(t, Options{Profile: testProfile()}, fetcher)

	require.NoError(t, engine.Run(context.Background()))

	store := engine.Store()
	// masonry is an association: discarded, counted.
	require.Equal(t, 3, store.Len())
	require.Equal(t, 1, engine.Skipped())
	require.Equal(t, 3, store.CountDetailed())

	acme, ok := store.Lookup("https://d.example/company/acme")
	require.True(t, ok)
	require.Equal(t, "123 Oak Rd., Austin, Texas 78701", acme.Address)
	require.Equal(t, "(512) 555-0100", acme.Phone)
	require.Equal(t, "info@acme.com", acme.Email)
	require.Equal(t, "https://www.acme.com", acme.Website)
	// Listed under both categories: one entity, both tags.
	require.ElementsMatch(t, []string{"Alpha", "Beta"}, acme.Tags)

	birch, ok := store.Lookup("https://d.example/company/birch")
	require.True(t, ok)
	require.True(t, birch.Detailed)
	require.Equal(t, "(802) 555-0144", birch.Phone)

	// Detail pages fetched exactly once despite the duplicate listing.
	require.Equal(t, 1, fetcher.hitCount("https://d.example/company/acme"))

	// Success exports and clears the checkpoint.
	require.Equal(t, 1, exporter.calls)
	require.Equal(t, "test-site", exporter.tag)
	require.Len(t, exporter.entities, 3)
	require.False(t, ckpt.Exists())
}

func TestParentFallbackCachedPerParent(t *testing.T) {
	t.Parallel()

	pages := sitePages()
	// A sibling sharing oak's parent, also without an address of its own.
	pages["https://d.example/cat/b"] = `<html><body>
		<a href="/company/birch">Birch Supply</a>
		<a href="/company/pine">Pine Fixtures</a>
	</body></html>`
	pages["https://d.example/company/pine"] = `<html><body>
		<a href="/parent/p1">Parent organization</a>
	</body></html>`

	fetcher := newStubFetcher(pages)
	engine, _, _ := newTestEngine(t, Options{Profile: testProfile()}, fetcher)
	require.NoError(t, engine.Run(context.Background()))

	oak, ok := engine.Store().Lookup("https://d.example/company/oak")
	require.True(t, ok)
	require.Equal(t, "77 Pine St, Denver, Colorado 80202", oak.Address)
	require.Equal(t, "(303) 555-0101", oak.Phone)
	require.Equal(t, "https://d.example/parent/p1", oak.ParentKey)

	pine, ok := engine.Store().Lookup("https://d.example/company/pine")
	require.True(t, ok)
	require.Equal(t, "77 Pine St, Denver, Colorado 80202", pine.Address)

	// The shared parent page is fetched once, not once per sibling.
	require.Equal(t, 1, fetcher.hitCount("https://d.example/parent/p1"))
}

func TestResumeFetchesOnlyRemainingEntity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	profile := testProfile()

	// First pass: checkpoint every 2 entities, interrupt on the 3rd detail
	// page (birch).
	ctx, cancel := context.WithCancel(context.Background())
	inner := newStubFetcher(sitePages())
	fetcher := &cancelingFetcher{
		inner:    inner,
		cancelOn: "https://d.example/company/birch",
		cancel:   cancel,
	}
	ckpt := checkpoint.NewStore(dir, profile.Mode, nil)
	first := New(Options{Profile: profile, CheckpointInterval: 2}, fetcher, nil, ckpt, nil, nil, nil)

	err := first.Run(ctx)
	require.Error(t, err)
	require.True(t, ckpt.Exists(), "interrupt must leave a checkpoint behind")
	require.Equal(t, 2, first.Store().CountDetailed())

	// Second pass resumes from the checkpoint.
	resumedFetcher := newStubFetcher(sitePages())
	second := New(Options{Profile: profile, Resume: true}, resumedFetcher, nil, ckpt, nil, nil, nil)
	require.NoError(t, second.Run(context.Background()))

	store := second.Store()
	require.Equal(t, 3, store.CountDetailed())
	acme, _ := store.Lookup("https://d.example/company/acme")
	require.Equal(t, "123 Oak Rd., Austin, Texas 78701", acme.Address)

	// Only the unfinished entity's detail page is fetched; no listing and no
	// finished detail page is revisited.
	require.Equal(t, 1, resumedFetcher.hitCount("https://d.example/company/birch"))
	require.Equal(t, 0, resumedFetcher.hitCount("https://d.example/company/acme"))
	require.Equal(t, 0, resumedFetcher.hitCount("https://d.example/company/oak"))
	require.Equal(t, 0, resumedFetcher.hitCount("https://d.example/root"))
	require.Equal(t, 0, resumedFetcher.hitCount("https://d.example/cat/a"))

	require.False(t, ckpt.Exists(), "success clears the checkpoint")
}

func TestReExpansionIsIdempotent(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher(sitePages())
	engine, _, _ := newTestEngine(t, Options{Profile: testProfile()}, fetcher)

	ctx := context.Background()
	require.NoError(t, engine.expandRoot(ctx))
	roots := engine.Store().Roots()
	require.Len(t, roots, 2)

	catA := roots[0]
	require.NoError(t, engine.expandNode(ctx, catA, 1))
	require.Len(t, catA.Entities, 2)
	firstLen := engine.Store().Len()

	// Simulate a crash mid-expansion: the node is re-expanded with identical
	// markup and must produce an identical set.
	catA.State = catalog.NodeExpanding
	require.NoError(t, engine.expandNode(ctx, catA, 1))
	require.Len(t, catA.Entities, 2)
	require.Equal(t, firstLen, engine.Store().Len())
}

func TestTruncationFlags(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher(sitePages())
	engine, _, _ := newTestEngine(t, Options{
		Profile:       testProfile(),
		MaxCategories: 1,
		MaxEntities:   1,
	}, fetcher)

	require.NoError(t, engine.Run(context.Background()))

	store := engine.Store()
	require.Len(t, store.Roots(), 1)
	require.Equal(t, "Alpha", store.Roots()[0].Name)
	require.Equal(t, 2, store.Roots()[0].ItemCount)
	require.Equal(t, 1, store.Len())
	require.Equal(t, 0, fetcher.hitCount("https://d.example/cat/b"))
}

func TestFatalEntityFetchMarksFailedAndContinues(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher(sitePages())
	fetcher.fail["https://d.example/company/oak"] = &fetch.Error{
		URL: "https://d.example/company/oak", Kind: fetch.KindStatus, StatusCode: 500,
	}
	engine, _, _ := newTestEngine(t, Options{Profile: testProfile()}, fetcher)

	require.NoError(t, engine.Run(context.Background()))

	store := engine.Store()
	oak, ok := store.Lookup("https://d.example/company/oak")
	require.True(t, ok)
	require.True(t, oak.Failed)
	require.False(t, oak.Detailed)

	// The rest of the crawl still completed.
	require.Equal(t, 2, store.CountDetailed())
}

func TestFailedEntityRetriedOnResume(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	profile := testProfile()
	ckpt := checkpoint.NewStore(dir, profile.Mode, nil)

	fetcher := newStubFetcher(sitePages())
	fetcher.fail["https://d.example/company/oak"] = &fetch.Error{
		URL: "https://d.example/company/oak", Kind: fetch.KindStatus, StatusCode: 500,
	}
	first := New(Options{Profile: profile}, fetcher, nil, ckpt, nil, nil, nil)
	require.NoError(t, first.Run(context.Background()))

	// Completion cleared the checkpoint; save one reflecting the failure so
	// the next run can resume from it.
	require.NoError(t, ckpt.Save(&checkpoint.Snapshot{
		DetailedCount: first.Store().CountDetailed(),
		Roots:         first.Store().Roots(),
	}))

	resumedFetcher := newStubFetcher(sitePages())
	second := New(Options{Profile: profile, Resume: true}, resumedFetcher, nil, ckpt, nil, nil, nil)
	require.NoError(t, second.Run(context.Background()))

	oak, ok := second.Store().Lookup("https://d.example/company/oak")
	require.True(t, ok)
	require.True(t, oak.Detailed)
	require.False(t, oak.Failed)
	require.Equal(t, 1, resumedFetcher.hitCount("https://d.example/company/oak"))
	require.Equal(t, 0, resumedFetcher.hitCount("https://d.example/company/acme"))
}

func TestAssociationNeverEntersStore(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher(sitePages())
	engine, _, _ := newTestEngine(t, Options{Profile: testProfile()}, fetcher)
	require.NoError(t, engine.Run(context.Background()))

	_, ok := engine.Store().Lookup("https://d.example/company/masonry")
	require.False(t, ok)
	require.Equal(t, 1, engine.Skipped())
	// Its detail page is never fetched.
	require.Equal(t, 0, fetcher.hitCount("https://d.example/company/masonry"))
}

type stageCountSink struct {
	mu     sync.Mutex
	counts map[progress.Stage]int
}

func (s *stageCountSink) Consume(_ context.Context, evt progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[progress.Stage]int)
	}
	s.counts[evt.Stage]++
	return nil
}

func (s *stageCountSink) count(stage progress.Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[stage]
}

func TestDiscoveryEmittedOncePerDistinctEntity(t *testing.T) {
	t.Parallel()

	sink := &stageCountSink{}
	hub := progress.NewHub(nil, sink)
	fetcher := newStubFetcher(sitePages())
	ckpt := checkpoint.NewStore(t.TempDir(), "widgets", nil)
	engine := New(Options{Profile: testProfile()}, fetcher, nil, ckpt, nil, hub, nil)

	require.NoError(t, engine.Run(context.Background()))
	require.NoError(t, hub.Close(context.Background()))

	// acme is listed under both categories but is one entity; the duplicate
	// listing must not be reported as a second discovery.
	require.Equal(t, 3, engine.Store().Len())
	require.Equal(t, 3, sink.count(progress.StageEntityDiscovered))
	require.Equal(t, 3, sink.count(progress.StageEntityDetailed))
}

func TestInterruptDuringParentFetchRetriedOnResume(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	profile := testProfile()
	ckpt := checkpoint.NewStore(dir, profile.Mode, nil)

	// Interrupt lands while the parent-organization page is being fetched.
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &cancelingFetcher{
		inner:    newStubFetcher(sitePages()),
		cancelOn: "https://d.example/parent/p1",
		cancel:   cancel,
	}
	first := New(Options{Profile: profile}, fetcher, nil, ckpt, nil, nil, nil)

	err := first.Run(ctx)
	require.Error(t, err)
	require.True(t, ckpt.Exists())

	oak, ok := first.Store().Lookup("https://d.example/company/oak")
	require.True(t, ok)
	require.False(t, oak.Detailed, "an interrupted parent fetch must not finish the entity")

	// The resumed run retries oak in full, parent fallback included, so the
	// outcome matches an uninterrupted crawl.
	resumedFetcher := newStubFetcher(sitePages())
	second := New(Options{Profile: profile, Resume: true}, resumedFetcher, nil, ckpt, nil, nil, nil)
	require.NoError(t, second.Run(context.Background()))

	oak, ok = second.Store().Lookup("https://d.example/company/oak")
	require.True(t, ok)
	require.True(t, oak.Detailed)
	require.Equal(t, "77 Pine St, Denver, Colorado 80202", oak.Address)
	require.Equal(t, 1, resumedFetcher.hitCount("https://d.example/company/oak"))
	require.Equal(t, 1, resumedFetcher.hitCount("https://d.example/parent/p1"))
	// acme finished before the interrupt and is not refetched.
	require.Equal(t, 0, resumedFetcher.hitCount("https://d.example/company/acme"))
}

func TestInterruptLeavesPartialExport(t *testing.T) {
	t.Parallel()

	profile := testProfile()
	ctx, cancel := context.WithCancel(context.Background())
	inner := newStubFetcher(sitePages())
	fetcher := &cancelingFetcher{
		inner:    inner,
		cancelOn: "https://d.example/company/birch",
		cancel:   cancel,
	}
	ckpt := checkpoint.NewStore(t.TempDir(), profile.Mode, nil)
	exporter := &captureExporter{}
	engine := New(Options{Profile: profile}, fetcher, nil, ckpt, exporter, nil, nil)

	err := engine.Run(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled) || isCancel(err))

	// Both artifacts exist: checkpoint and best-effort partial export.
	require.True(t, ckpt.Exists())
	require.Equal(t, 1, exporter.calls)
	require.Len(t, exporter.entities, 3)
}
