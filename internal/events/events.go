// Package events fans out dashboard updates (region renders, background swaps)
// to the page streams subscribed to them.
package events

import "sync"

// Event types sent to the browser.
const (
	TypeRegion     = "region"
	TypeBackground = "background"
)

// Event is one update pushed to a page. Region events carry the region id, its
// state and the rendered fragment; background events carry the image URL.
type Event struct {
	Type       string `json:"type"`
	Region     string `json:"region,omitempty"`
	State      string `json:"state,omitempty"`
	HTML       string `json:"html,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
	URL        string `json:"url,omitempty"`
	Index      int    `json:"index"`
}

// Broadcaster delivers events to every current subscriber. A subscriber whose
// buffer is full misses the event. Each event only describes one region or
// the background, so consumers that can fall behind resync from snapshots.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
	closed bool
}

// NewBroadcaster returns a Broadcaster whose subscriber channels hold buffer events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe registers a new subscriber. Call the returned cancel func to
// unsubscribe; it closes the channel and is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish sends ev to all subscribers without blocking. Returns how many received it.
func (b *Broadcaster) Publish(ev Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel; later subscriptions get a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
