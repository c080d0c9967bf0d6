package dashboard

import (
	"html/template"
	"sync"

	"github.com/kjstillabower/daily-digest/internal/events"
)

// DOM ids of the four regions.
const (
	RegionWeather = "weather-section"
	RegionNews    = "news-section"
	RegionGrid    = "default-news-grid"
	RegionGallery = "photo-gallery"
)

// Regions lists the region ids in bootstrap order.
var Regions = []string{RegionWeather, RegionGrid, RegionNews, RegionGallery}

// State is a region's position in its render cycle.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Snapshot is a copy of a region's state at one point in time.
type Snapshot struct {
	Region     string
	State      State
	Generation uint64
	Query      string
	HTML       template.HTML
}

// Event converts the snapshot into the region event pushed to the browser.
func (s Snapshot) Event() events.Event {
	return events.Event{
		Type:       events.TypeRegion,
		Region:     s.Region,
		State:      string(s.State),
		HTML:       string(s.HTML),
		Generation: s.Generation,
	}
}

// Region holds what one DOM region currently shows. Every trigger starts a new
// generation; a fetch may only settle the generation it was started for.
type Region struct {
	id string

	mu         sync.Mutex
	state      State
	generation uint64
	query      string
	html       template.HTML
}

func newRegion(id string) *Region {
	return &Region{id: id, state: StateIdle}
}

// begin starts a new generation showing html.
func (r *Region) begin(state State, query string, html template.HTML) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.state = state
	r.query = query
	r.html = html
	return r.snapshotLocked()
}

// settle applies the result of generation gen. Returns false, leaving the
// region untouched, when a newer trigger has started since.
func (r *Region) settle(gen uint64, state State, html template.HTML) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return Snapshot{}, false
	}
	r.state = state
	r.html = html
	return r.snapshotLocked(), true
}

// Snapshot returns the region's current state.
func (r *Region) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Region) snapshotLocked() Snapshot {
	return Snapshot{
		Region:     r.id,
		State:      r.state,
		Generation: r.generation,
		Query:      r.query,
		HTML:       r.html,
	}
}
