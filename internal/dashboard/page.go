package dashboard

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/daily-digest/internal/events"
	"github.com/kjstillabower/daily-digest/internal/observability"
	"github.com/kjstillabower/daily-digest/internal/render"
	"github.com/kjstillabower/daily-digest/internal/traffic"
)

// ErrUnknownRegion is returned when a trigger names a region the page does not have.
var ErrUnknownRegion = errors.New("unknown region")

// renderFailedMessage replaces a fragment whose template failed to execute.
const renderFailedMessage = "Something went wrong while showing this section."

// Page is one open dashboard: four regions and the fetches driving them.
// Fetches run on the page's context and stop when the page is closed.
type Page struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	renderer *render.Renderer
	defaults Defaults
	logger   *zap.Logger

	regions  map[string]*Region
	sections map[string]section
	events   *events.Broadcaster
	inflight sync.WaitGroup

	mu       sync.Mutex
	lastSeen time.Time
}

// PageOptions configure a new page.
type PageOptions struct {
	Fetcher        Fetcher
	Renderer       *render.Renderer
	Defaults       Defaults
	MaxQueryLength int
	Logger         *zap.Logger
}

// NewPage builds a page whose fetches run until parent is done or Close is called.
func NewPage(parent context.Context, opts PageOptions) *Page {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New().String()
	logger = logger.With(zap.String("page_id", id))

	ctx, cancel := context.WithCancel(parent)
	ctx = context.WithValue(ctx, "logger", logger)

	p := &Page{
		id:       id,
		ctx:      ctx,
		cancel:   cancel,
		renderer: opts.Renderer,
		defaults: opts.Defaults,
		logger:   logger,
		regions:  make(map[string]*Region, len(Regions)),
		events:   events.NewBroadcaster(32),
		lastSeen: time.Now(),
	}
	for _, id := range Regions {
		p.regions[id] = newRegion(id)
	}
	p.sections = map[string]section{
		RegionWeather: weatherSection{fetch: opts.Fetcher, r: opts.Renderer, maxLen: opts.MaxQueryLength},
		RegionNews:    newsSection{fetch: opts.Fetcher, r: opts.Renderer, fallback: opts.Defaults.NewsCategory, maxLen: opts.MaxQueryLength},
		RegionGrid: gridSection{
			fetch:    opts.Fetcher,
			r:        opts.Renderer,
			category: opts.Defaults.DefaultNewsCategory,
			term:     opts.Defaults.PhotoSearchTerm,
		},
		RegionGallery: gallerySection{fetch: opts.Fetcher, r: opts.Renderer, maxLen: opts.MaxQueryLength},
	}
	return p
}

// ID returns the page's identifier.
func (p *Page) ID() string { return p.id }

// Bootstrap loads every region with its default input, in the order the
// page lays them out for the first paint.
func (p *Page) Bootstrap() {
	queries := map[string]string{
		RegionWeather: p.defaults.City,
		RegionGrid:    "",
		RegionNews:    p.defaults.NewsCategory,
		RegionGallery: p.defaults.PhotoSearchTerm,
	}
	for _, id := range Regions {
		if _, err := p.Trigger(id, queries[id]); err != nil {
			p.logger.Error("bootstrap trigger failed", zap.String("region", id), zap.Error(err))
		}
	}
}

// Trigger restarts region's render cycle with query. Validation failures
// settle immediately as an error without any fetch. Otherwise the region shows
// its placeholder and the fetch runs in the background; the returned snapshot
// is the placeholder. Results reach subscribers as events.
func (p *Page) Trigger(region, query string) (Snapshot, error) {
	sec, ok := p.sections[region]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}
	r := p.regions[region]
	p.Touch()

	normalized, msg := sec.prepare(query)
	if msg != "" {
		html, err := p.renderer.Error(msg)
		if err != nil {
			return Snapshot{}, err
		}
		snap := r.begin(StateError, normalized, html)
		p.publish(snap)
		return snap, nil
	}

	html, err := sec.placeholder(normalized)
	if err != nil {
		return Snapshot{}, err
	}
	snap := r.begin(StateLoading, normalized, html)
	p.publish(snap)

	p.inflight.Add(1)
	go func(gen uint64) {
		defer p.inflight.Done()
		p.load(r, sec, gen, normalized)
	}(snap.Generation)

	return snap, nil
}

func (p *Page) load(r *Region, sec section, gen uint64, query string) {
	html, ok, err := sec.load(p.ctx, query)
	if p.ctx.Err() != nil {
		return
	}
	state := StateSuccess
	if !ok {
		state = StateError
	}
	if err != nil {
		p.logger.Error("render failed", zap.String("region", r.id), zap.Error(err))
		state = StateError
		if html, err = p.renderer.Error(renderFailedMessage); err != nil {
			html = template.HTML("")
		}
	}

	snap, applied := r.settle(gen, state, html)
	if !applied {
		observability.StaleRendersDiscardedTotal.WithLabelValues(r.id).Inc()
		p.logger.Debug("stale render discarded", zap.String("region", r.id), zap.Uint64("generation", gen))
		return
	}
	if state == StateSuccess {
		traffic.RecordSuccess()
	} else {
		traffic.RecordError()
	}
	p.publish(snap)
}

func (p *Page) publish(snap Snapshot) {
	observability.RegionRendersTotal.WithLabelValues(snap.Region, string(snap.State)).Inc()
	p.events.Publish(snap.Event())
}

// Snapshot returns the current state of region.
func (p *Page) Snapshot(region string) (Snapshot, error) {
	r, ok := p.regions[region]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}
	return r.Snapshot(), nil
}

// Snapshots returns every region's current state in bootstrap order.
func (p *Page) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(Regions))
	for _, id := range Regions {
		out = append(out, p.regions[id].Snapshot())
	}
	return out
}

// View assembles the page's regions for the full document.
func (p *Page) View(background string, maxQueryLength int) render.PageView {
	view := func(id string) render.RegionView {
		s := p.regions[id].Snapshot()
		return render.RegionView{State: string(s.State), HTML: s.HTML}
	}
	return render.PageView{
		PageID:     p.id,
		Background: background,
		Defaults: render.PageDefaults{
			City:            p.defaults.City,
			NewsCategory:    p.defaults.NewsCategory,
			PhotoSearchTerm: p.defaults.PhotoSearchTerm,
		},
		Categories:     categoriesWith(p.defaults.NewsCategory),
		MaxQueryLength: maxQueryLength,
		Weather:        view(RegionWeather),
		Grid:           view(RegionGrid),
		News:           view(RegionNews),
		Gallery:        view(RegionGallery),
	}
}

// categoriesWith returns the select options, adding def when it is not one of them.
func categoriesWith(def string) []string {
	if def == "" {
		return render.DefaultCategories
	}
	for _, c := range render.DefaultCategories {
		if c == def {
			return render.DefaultCategories
		}
	}
	return append([]string{def}, render.DefaultCategories...)
}

// Subscribe streams the page's region events.
func (p *Page) Subscribe() (<-chan events.Event, func()) {
	p.Touch()
	return p.events.Subscribe()
}

// Subscribers returns the number of connected streams.
func (p *Page) Subscribers() int {
	return p.events.Subscribers()
}

// Touch marks the page as in use.
func (p *Page) Touch() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

// LastSeen returns when the page was last used.
func (p *Page) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// Wait blocks until every fetch started so far has settled or been abandoned.
func (p *Page) Wait() {
	p.inflight.Wait()
}

// Close cancels in-flight fetches and ends all event streams.
func (p *Page) Close() {
	p.cancel()
	p.events.Close()
}
