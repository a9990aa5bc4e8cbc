package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buildsheet/harvester/internal/catalog"
	"github.com/buildsheet/harvester/internal/checkpoint"
	"github.com/buildsheet/harvester/internal/extract"
	"github.com/buildsheet/harvester/internal/fetch"
	"github.com/buildsheet/harvester/internal/progress"
)

// Fetcher retrieves one page. *fetch.Client satisfies this.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Response, error)
}

// Renderer returns post-script markup; failures degrade to the plain body.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Exporter consumes the store, mid-crawl or at completion.
type Exporter interface {
	Export(entities []*catalog.Entity, tag string) error
}

// Options parameterize one crawl run.
type Options struct {
	Profile SiteProfile
	// Resume adopts the persisted checkpoint before traversal.
	Resume bool
	// CheckpointInterval is the number of detailed entities between periodic
	// snapshots. Defaults to 10.
	CheckpointInterval int
	// MaxCategories, MaxSubcategories, and MaxEntities cap breadth per
	// hierarchy level for bounded test runs. Zero means unlimited.
	MaxCategories    int
	MaxSubcategories int
	MaxEntities      int
	// Render enables the headless browser for detail pages the profile marks
	// as script-driven.
	Render bool
}

// Engine walks the category hierarchy and details every discovered entity
// exactly once, strictly sequentially. All mutation of the tree happens here.
type Engine struct {
	opts     Options
	fetcher  Fetcher
	renderer Renderer
	pipeline *extract.Pipeline
	store    *catalog.Store
	ckpt     *checkpoint.Store
	tracker  *progress.Tracker
	hub      *progress.Hub
	exporter Exporter
	log      *zap.Logger
	runID    uuid.UUID

	skipped         int
	sinceCheckpoint int
	parentCache     map[string]extract.Result
}

// New wires an Engine. renderer, hub, and exporter may be nil.
func New(
	opts Options,
	fetcher Fetcher,
	renderer Renderer,
	ckpt *checkpoint.Store,
	exporter Exporter,
	hub *progress.Hub,
	logger *zap.Logger,
) *Engine {
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		opts:     opts,
		fetcher:  fetcher,
		renderer: renderer,
		pipeline: extract.NewPipeline(extract.Config{SiteDomains: opts.Profile.SiteDomains}),
		store:    catalog.NewStore(),
		ckpt:     ckpt,
		tracker:  progress.NewTracker(0),
		hub:      hub,
		exporter: exporter,
		log:      logger,
	}
}

// Store exposes the canonical tree, e.g. for final reporting.
func (e *Engine) Store() *catalog.Store { return e.store }

// Tracker exposes live progress.
func (e *Engine) Tracker() *progress.Tracker { return e.tracker }

// Skipped reports listings discarded by the association filter.
func (e *Engine) Skipped() int { return e.skipped }

// Run executes the crawl. On cancellation or an unhandled traversal error it
// writes an emergency checkpoint and a partial export before returning; on
// success it exports, then clears the checkpoint.
func (e *Engine) Run(ctx context.Context) error {
	e.runID = uuid.New()
	e.emit(progress.StageRunStart, "", "", 0, "")
	e.log.Info("crawl starting",
		zap.String("run_id", e.runID.String()),
		zap.String("mode", e.opts.Profile.Mode),
		zap.Bool("resume", e.opts.Resume),
	)

	if e.opts.Resume {
		e.adoptCheckpoint()
	}

	if err := e.traverse(ctx); err != nil {
		e.emergency(err)
		e.emit(progress.StageRunError, "", "", 0, err.Error())
		return err
	}

	if err := e.export(); err != nil {
		e.emergency(err)
		return fmt.Errorf("final export: %w", err)
	}
	if e.ckpt != nil {
		if err := e.ckpt.Clear(); err != nil {
			e.log.Warn("failed to clear checkpoint", zap.Error(err))
		}
	}
	e.emit(progress.StageRunDone, "", "", e.store.CountDetailed(), "")
	e.log.Info("crawl complete",
		zap.Int("discovered", e.store.Len()),
		zap.Int("detailed", e.store.CountDetailed()),
		zap.Int("associations_skipped", e.skipped),
	)
	return nil
}

func (e *Engine) traverse(ctx context.Context) error {
	if len(e.store.Roots()) == 0 {
		if err := e.expandRoot(ctx); err != nil {
			return err
		}
	}
	for _, root := range e.store.Roots() {
		if err := e.expandNode(ctx, root, 1); err != nil {
			return err
		}
	}
	return e.detailAll(ctx)
}

// expandRoot populates the top-level category nodes from the root listing.
// A root fetch failure is fatal for the run; there is nothing to crawl.
func (e *Engine) expandRoot(ctx context.Context) error {
	p := e.opts.Profile
	markup, err := e.page(ctx, p.RootURL, false)
	if err != nil {
		return fmt.Errorf("root listing %s: %w", p.RootURL, err)
	}
	links, err := parseListing(markup, p.BaseURL, p.Levels[0].LinkPattern)
	if err != nil {
		return fmt.Errorf("parse root listing: %w", err)
	}
	links = truncate(links, e.opts.MaxCategories)
	for _, l := range links {
		e.store.AddRoot(&catalog.CategoryNode{
			Name:      l.Name,
			URL:       l.URL,
			ItemCount: l.ItemCount,
			State:     catalog.NodeUnexpanded,
		})
	}
	e.emit(progress.StageCategoryExpanded, p.RootURL, "", len(links), "")
	return nil
}

// expandNode fills one node's children or entities, then recurses. A node
// already Expanded is not refetched; a node left Expanding by an interrupted
// run is re-expanded, replacing rather than appending.
func (e *Engine) expandNode(ctx context.Context, node *catalog.CategoryNode, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := e.opts.Profile

	if node.State != catalog.NodeExpanded {
		node.State = catalog.NodeExpanding
		markup, err := e.page(ctx, node.URL, false)
		if err != nil {
			if isCancel(err) {
				return err
			}
			// Fatal for this node only. Back to Unexpanded so a resumed run
			// can try again.
			node.State = catalog.NodeUnexpanded
			e.log.Warn("category fetch failed, skipping subtree",
				zap.String("url", node.URL), zap.Error(err))
			return nil
		}
		links, err := parseListing(markup, p.BaseURL, p.Levels[depth].LinkPattern)
		if err != nil {
			node.State = catalog.NodeUnexpanded
			e.log.Warn("category parse failed, skipping subtree",
				zap.String("url", node.URL), zap.Error(err))
			return nil
		}

		if depth == len(p.Levels)-1 {
			e.adoptEntities(node, truncate(links, e.opts.MaxEntities))
		} else {
			node.Children = e.mergeChildren(node.Children, truncate(links, e.opts.MaxSubcategories))
			e.emit(progress.StageSubcategoryExpanded, node.URL, node.Name, len(node.Children), "")
		}
		node.State = catalog.NodeExpanded
	}

	for _, child := range node.Children {
		if err := e.expandNode(ctx, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// adoptEntities rebuilds a leaf node's entity list from listing links.
// Known keys merge into their existing entities, so re-expansion after
// resume yields an identical set. Discovery is reported per distinct key,
// not per listing occurrence.
func (e *Engine) adoptEntities(node *catalog.CategoryNode, links []Link) {
	node.Entities = nil
	for _, l := range links {
		if e.pipeline.IsAssociation(l.Name) {
			e.skipped++
			e.emit(progress.StageAssociationSkipped, l.URL, l.Name, 0, "")
			continue
		}
		ent, inserted := e.store.Upsert(node, &catalog.Entity{
			Name:      l.Name,
			SourceURL: l.URL,
			Tags:      []string{node.Name},
		})
		if inserted {
			e.emit(progress.StageEntityDiscovered, ent.SourceURL, ent.Name, 0, "")
		}
	}
}

// mergeChildren rebuilds the child list in listing order, reusing existing
// nodes by URL so a resumed subtree keeps its state and entities.
func (e *Engine) mergeChildren(existing []*catalog.CategoryNode, links []Link) []*catalog.CategoryNode {
	byURL := make(map[string]*catalog.CategoryNode, len(existing))
	for _, c := range existing {
		byURL[c.URL] = c
	}
	out := make([]*catalog.CategoryNode, 0, len(links))
	for _, l := range links {
		if have, ok := byURL[l.URL]; ok {
			if have.Name == "" {
				have.Name = l.Name
			}
			if have.ItemCount == 0 {
				have.ItemCount = l.ItemCount
			}
			out = append(out, have)
			continue
		}
		out = append(out, &catalog.CategoryNode{
			Name:      l.Name,
			URL:       l.URL,
			ItemCount: l.ItemCount,
			State:     catalog.NodeUnexpanded,
		})
	}
	return out
}

// detailAll walks the discovered entities in deterministic order and fetches
// each detail page at most once across the crawl's lifetime, resumes
// included.
func (e *Engine) detailAll(ctx context.Context) error {
	entities := e.store.Entities()
	e.tracker.SetTotal(len(entities))
	e.tracker.Start()

	for _, ent := range entities {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ent.Detailed {
			e.tracker.Skip()
			continue
		}
		if err := e.detail(ctx, ent); err != nil {
			return err
		}
	}
	return nil
}

// detail fetches and extracts one entity page. Fetch failure marks the
// entity Failed and moves on; any markup at all advances it to Detailed.
func (e *Engine) detail(ctx context.Context, ent *catalog.Entity) error {
	markup, err := e.page(ctx, ent.SourceURL, e.opts.Profile.RenderDetails)
	if err != nil {
		if isCancel(err) {
			return err
		}
		ent.Failed = true
		e.emit(progress.StageEntityFailed, ent.SourceURL, ent.Name, 0, err.Error())
		e.log.Warn("entity fetch failed",
			zap.String("url", ent.SourceURL), zap.Error(err))
		e.afterEntity()
		return nil
	}
	if strings.TrimSpace(markup) == "" {
		ent.Failed = true
		e.emit(progress.StageEntityFailed, ent.SourceURL, ent.Name, 0, "empty markup")
		e.afterEntity()
		return nil
	}

	res := e.pipeline.Extract(markup, extract.Hints{
		Name:       ent.Name,
		ParentName: ent.ParentName,
		SourceURL:  ent.SourceURL,
	})
	applyResult(ent, res)

	if ent.Address == "" && e.opts.Profile.ParentLinkPattern != nil {
		if err := e.parentFallback(ctx, ent, markup); err != nil {
			return err
		}
	}

	ent.Detailed = true
	ent.Failed = false
	e.emit(progress.StageEntityDetailed, ent.SourceURL, ent.Name, 0, "")
	e.afterEntity()
	return nil
}

// afterEntity advances progress and takes the periodic checkpoint.
func (e *Engine) afterEntity() {
	e.tracker.Record()
	e.sinceCheckpoint++
	if e.sinceCheckpoint >= e.opts.CheckpointInterval {
		e.saveCheckpoint()
		e.sinceCheckpoint = 0
	}
}

// parentFallback consults the parent-organization page for address fields
// the detail page did not yield. One fetch per parent key, ever. Cancellation
// propagates so the entity stays undetailed and a resumed run retries it.
func (e *Engine) parentFallback(ctx context.Context, ent *catalog.Entity, markup string) error {
	m := e.opts.Profile.ParentLinkPattern.FindStringSubmatch(markup)
	if m == nil {
		return nil
	}
	parentURL := resolveRef(e.opts.Profile.BaseURL, m[1])
	if parentURL == "" || parentURL == ent.SourceURL {
		return nil
	}
	parentKey, err := catalog.CanonicalKey(parentURL)
	if err != nil {
		return nil
	}
	if parentKey == ent.Key {
		return nil
	}
	ent.ParentKey = parentKey

	res, ok := e.parentCache[parentKey]
	if !ok {
		parentMarkup, err := e.page(ctx, parentURL, false)
		if err != nil {
			if isCancel(err) {
				return err
			}
			// Negative result is cached too; siblings must not refetch.
			e.parentCache = storeParent(e.parentCache, parentKey, extract.Result{})
			return nil
		}
		if strings.TrimSpace(parentMarkup) == "" {
			e.parentCache = storeParent(e.parentCache, parentKey, extract.Result{})
			return nil
		}
		res = e.pipeline.Extract(parentMarkup, extract.Hints{SourceURL: parentURL})
		e.parentCache = storeParent(e.parentCache, parentKey, res)
	}

	fillEmpty(&ent.Address, res.Address)
	fillEmpty(&ent.City, res.City)
	fillEmpty(&ent.Region, res.Region)
	fillEmpty(&ent.PostalCode, res.PostalCode)
	fillEmpty(&ent.Phone, res.Phone)
	fillEmpty(&ent.Fax, res.Fax)
	fillEmpty(&ent.Email, res.Email)
	fillEmpty(&ent.Website, res.Website)
	return nil
}

// page returns the markup for url, via the renderer when asked and enabled,
// falling back to the plain HTTP body.
func (e *Engine) page(ctx context.Context, url string, wantRender bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if wantRender && e.opts.Render && e.renderer != nil {
		if html, err := e.renderer.Render(ctx, url); err == nil && strings.TrimSpace(html) != "" {
			return html, nil
		} else if err != nil {
			if isCancel(err) {
				return "", err
			}
			e.log.Debug("render failed, falling back to plain fetch",
				zap.String("url", url), zap.Error(err))
		}
	}
	resp, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return resp.Markup(), nil
}

// saveCheckpoint snapshots the tree. Write failures never stop the crawl.
func (e *Engine) saveCheckpoint() {
	if e.ckpt == nil {
		return
	}
	snap := &checkpoint.Snapshot{
		RunID:         e.runID,
		DetailedCount: e.store.CountDetailed(),
		SkippedCount:  e.skipped,
		Roots:         e.store.Roots(),
	}
	if err := e.ckpt.Save(snap); err != nil {
		e.log.Warn("checkpoint save failed", zap.Error(err))
		return
	}
	e.emit(progress.StageCheckpointSaved, "", "", snap.DetailedCount, "")
}

// emergency persists everything gathered so far: checkpoint plus a partial
// export. Both are best-effort.
func (e *Engine) emergency(cause error) {
	e.log.Warn("run ending early, writing checkpoint and partial export",
		zap.Error(cause))
	e.saveCheckpoint()
	if err := e.export(); err != nil {
		e.log.Warn("partial export failed", zap.Error(err))
	}
	if e.ckpt != nil {
		e.log.Info("resume this run with --resume",
			zap.String("checkpoint", e.ckpt.Path()))
	}
}

func (e *Engine) export() error {
	if e.exporter == nil {
		return nil
	}
	return e.exporter.Export(e.store.Entities(), e.opts.Profile.Tag)
}

// adoptCheckpoint replaces the in-memory tree with the persisted snapshot,
// wholesale. A missing or unreadable snapshot starts fresh.
func (e *Engine) adoptCheckpoint() {
	if e.ckpt == nil {
		return
	}
	snap, err := e.ckpt.Load()
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNotFound) {
			e.log.Warn("checkpoint unreadable, starting fresh", zap.Error(err))
		}
		return
	}
	e.store.SetRoots(snap.Roots)
	e.skipped = snap.SkippedCount
	e.log.Info("resumed from checkpoint",
		zap.String("saved_at", snap.SavedAt.Format(time.RFC3339)),
		zap.Int("detailed", snap.DetailedCount),
	)
}

func (e *Engine) emit(stage progress.Stage, url, name string, count int, note string) {
	if e.hub == nil {
		return
	}
	e.hub.Emit(progress.Event{
		RunID: e.runID,
		TS:    time.Now().UTC(),
		Stage: stage,
		Mode:  e.opts.Profile.Mode,
		URL:   url,
		Name:  name,
		Count: count,
		Note:  note,
	})
}

// applyResult fills still-empty entity fields from one extraction pass.
func applyResult(ent *catalog.Entity, res extract.Result) {
	fillEmpty(&ent.Address, res.Address)
	fillEmpty(&ent.City, res.City)
	fillEmpty(&ent.Region, res.Region)
	fillEmpty(&ent.PostalCode, res.PostalCode)
	fillEmpty(&ent.Phone, res.Phone)
	fillEmpty(&ent.Fax, res.Fax)
	fillEmpty(&ent.Email, res.Email)
	fillEmpty(&ent.Website, res.Website)
	fillEmpty(&ent.Contact.Name, res.Contact.Name)
	fillEmpty(&ent.Contact.Phone, res.Contact.Phone)
	fillEmpty(&ent.Contact.Email, res.Contact.Email)
	fillEmpty(&ent.Description, res.Description)
	ent.Content = catalog.Content{
		Spec:       ent.Content.Spec || res.Content.Spec,
		BIM:        ent.Content.BIM || res.Content.BIM,
		CAD:        ent.Content.CAD || res.Content.CAD,
		CEU:        ent.Content.CEU || res.Content.CEU,
		Catalog:    ent.Content.Catalog || res.Content.Catalog,
		DataSheet:  ent.Content.DataSheet || res.Content.DataSheet,
		Gallery:    ent.Content.Gallery || res.Content.Gallery,
		Green:      ent.Content.Green || res.Content.Green,
		Selector:   ent.Content.Selector || res.Content.Selector,
		Literature: ent.Content.Literature || res.Content.Literature,
	}
}

func fillEmpty(dst *string, src string) {
	if strings.TrimSpace(*dst) == "" && strings.TrimSpace(src) != "" {
		*dst = src
	}
}

func storeParent(cache map[string]extract.Result, key string, res extract.Result) map[string]extract.Result {
	if cache == nil {
		cache = make(map[string]extract.Result)
	}
	cache[key] = res
	return cache
}

func truncate(links []Link, max int) []Link {
	if max > 0 && len(links) > max {
		return links[:max]
	}
	return links
}

func isCancel(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var fe *fetch.Error
	return errors.As(err, &fe) && fe.Kind == fetch.KindCanceled
}

func resolveRef(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if strings.HasPrefix(ref, "/") {
		return strings.TrimRight(base, "/") + ref
	}
	return strings.TrimRight(base, "/") + "/" + ref
}
