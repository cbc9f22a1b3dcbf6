package live

import (
	"errors"
	"sync"
)

// ErrClosed returned when a stream closes before emitting a value
var ErrClosed = errors.New("stream closed")

// Tables of the podcast storage, used as invalidation keys
const (
	TablePodcasts   = "podcasts"
	TableEpisodes   = "episodes"
	TableCategories = "categories"
	TableFollowed   = "followed"
)

// Tracker notifies subscribers about changed tables
type Tracker struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

type subscription struct {
	tables map[string]struct{}
	ch     chan struct{}
}

// NewTracker makes empty tracker
func NewTracker() *Tracker {
	return &Tracker{subs: map[*subscription]struct{}{}}
}

// Subscribe for changes of any of the tables. Notifications are conflated, the returned channel
// holds at most one pending notification. The cancel func must be called to release the subscription.
func (t *Tracker) Subscribe(tables ...string) (<-chan struct{}, func()) {
	s := &subscription{tables: make(map[string]struct{}, len(tables)), ch: make(chan struct{}, 1)}
	for _, table := range tables {
		s.tables[table] = struct{}{}
	}

	t.mu.Lock()
	t.subs[s] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, s)
			t.mu.Unlock()
		})
	}
}

// Invalidate tables, every subscriber interested in one of them gets notified. Never blocks.
func (t *Tracker) Invalidate(tables ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for s := range t.subs {
		if !s.interested(tables) {
			continue
		}
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns number of active subscriptions
func (t *Tracker) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (s *subscription) interested(tables []string) bool {
	for _, table := range tables {
		if _, ok := s.tables[table]; ok {
			return true
		}
	}
	return false
}
