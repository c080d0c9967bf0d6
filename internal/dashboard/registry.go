package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/daily-digest/internal/observability"
)

// ErrPageNotFound is returned for ids that were never issued or have expired.
var ErrPageNotFound = errors.New("page not found")

// ErrTooManyPages is returned when the registry is at capacity.
var ErrTooManyPages = errors.New("too many open pages")

// Registry owns every open page. Pages idle longer than the TTL are closed by Sweep.
type Registry struct {
	ctx    context.Context
	opts   PageOptions
	ttl    time.Duration
	max    int
	logger *zap.Logger

	mu    sync.Mutex
	pages map[string]*Page
}

// NewRegistry creates pages from opts. ctx bounds every page's fetches.
// max <= 0 means unbounded.
func NewRegistry(ctx context.Context, opts PageOptions, ttl time.Duration, max int) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		ctx:    ctx,
		opts:   opts,
		ttl:    ttl,
		max:    max,
		logger: logger,
		pages:  make(map[string]*Page),
	}
}

// Create opens a new page. It is not bootstrapped.
func (r *Registry) Create() (*Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.pages) >= r.max {
		return nil, ErrTooManyPages
	}
	p := NewPage(r.ctx, r.opts)
	r.pages[p.ID()] = p
	observability.ActivePages.Set(float64(len(r.pages)))
	return p, nil
}

// Get returns the page with id and marks it as in use.
func (r *Registry) Get(id string) (*Page, error) {
	r.mu.Lock()
	p, ok := r.pages[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrPageNotFound
	}
	p.Touch()
	return p, nil
}

// Len returns the number of open pages.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

// Sweep closes pages idle since before now-ttl that have no connected stream.
// Returns how many were closed.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.ttl)
	var expired []*Page

	r.mu.Lock()
	for id, p := range r.pages {
		if p.Subscribers() == 0 && p.LastSeen().Before(cutoff) {
			delete(r.pages, id)
			expired = append(expired, p)
		}
	}
	observability.ActivePages.Set(float64(len(r.pages)))
	r.mu.Unlock()

	for _, p := range expired {
		p.Close()
	}
	if len(expired) > 0 {
		r.logger.Debug("expired pages closed", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done, then closes all pages.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// CloseAll closes and forgets every page.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	pages := r.pages
	r.pages = make(map[string]*Page)
	observability.ActivePages.Set(0)
	r.mu.Unlock()

	for _, p := range pages {
		p.Close()
	}
}
