// Package background rotates the dashboard's background image. One Rotator
// serves every page: each swap is broadcast to all connected streams.
package background

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/daily-digest/internal/events"
	"github.com/kjstillabower/daily-digest/internal/observability"
)

// ErrNoImages is returned when a rotator is built without images.
var ErrNoImages = errors.New("background: no images configured")

// Preloader fetches an image completely before it is shown.
type Preloader interface {
	Preload(ctx context.Context, url string) error
}

// HTTPPreloader downloads the image and discards the body.
type HTTPPreloader struct {
	Client *http.Client
}

func (p HTTPPreloader) Preload(ctx context.Context, url string) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("preload %s: %w", url, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("preload %s: read body: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("preload %s: HTTP %d", url, resp.StatusCode)
	}
	return nil
}

// Rotator cycles through a fixed list of images. The index advances on every
// rotation; the current image only changes once the next one has loaded.
type Rotator struct {
	images    []string
	preloader Preloader
	timeout   time.Duration
	logger    *zap.Logger
	events    *events.Broadcaster

	mu      sync.RWMutex
	index   int
	current string
}

// NewRotator shows images[0] immediately. preloadTimeout of 0 leaves preloads unbounded.
func NewRotator(images []string, preloader Preloader, preloadTimeout time.Duration, logger *zap.Logger) (*Rotator, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if preloader == nil {
		preloader = HTTPPreloader{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rotator{
		images:    append([]string(nil), images...),
		preloader: preloader,
		timeout:   preloadTimeout,
		logger:    logger,
		events:    events.NewBroadcaster(4),
		current:   images[0],
	}, nil
}

// Current returns the image being shown.
func (r *Rotator) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Index returns the rotation position: the number of rotations so far, mod the image count.
func (r *Rotator) Index() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index
}

// Event describes the image being shown, as pushed on a swap.
func (r *Rotator) Event() events.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return events.Event{Type: events.TypeBackground, URL: r.current, Index: r.index}
}

// Advance moves to the next image and swaps it in once preloaded. If the
// preload fails the current image stays and the error is returned.
func (r *Rotator) Advance(ctx context.Context) error {
	r.mu.Lock()
	r.index = (r.index + 1) % len(r.images)
	index := r.index
	next := r.images[index]
	r.mu.Unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := r.preloader.Preload(ctx, next); err != nil {
		observability.BackgroundRotationsTotal.WithLabelValues("preload_failed").Inc()
		r.logger.Warn("background preload failed", zap.Int("index", index), zap.Error(err))
		return err
	}

	r.mu.Lock()
	r.current = next
	r.mu.Unlock()

	observability.BackgroundRotationsTotal.WithLabelValues("swapped").Inc()
	r.events.Publish(events.Event{Type: events.TypeBackground, URL: next, Index: index})
	return nil
}

// Run advances every interval until ctx is done.
func (r *Rotator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.events.Close()
			return
		case <-ticker.C:
			_ = r.Advance(ctx)
		}
	}
}

// Subscribe streams background swaps.
func (r *Rotator) Subscribe() (<-chan events.Event, func()) {
	return r.events.Subscribe()
}
