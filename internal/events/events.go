// Package events carries cross-component notifications inside the daemon.
//
// Publishers never block: each subscriber owns a buffered channel and events
// that do not fit are dropped and counted. Subscribers that must not miss a
// transition (the scheduler's DaemonOnline handler) use a buffer large enough
// for the rate at which the event is produced.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type names an event.
type Type string

const (
	// DaemonStateChanged reports a supervisor state transition in State.
	DaemonStateChanged Type = "daemon_state_changed"
	// DaemonOnline reports a readiness transition with PeerCount.
	DaemonOnline Type = "daemon_online"
	// StatusChanged reports a changed health snapshot.
	StatusChanged Type = "status_changed"
	// FeedPublished reports a completed publish with CID and Digest.
	FeedPublished Type = "feed_published"
	// ArticlesDiscovered reports Count new article stubs on a followed feed.
	ArticlesDiscovered Type = "articles_discovered"
	// AvatarUpdated reports a refreshed avatar on a followed feed.
	AvatarUpdated Type = "avatar_updated"
	// SelfFollowRemoved reports a followed feed deleted because its address
	// belongs to a local feed.
	SelfFollowRemoved Type = "self_follow_removed"
	// Error reports a failure worth surfacing beyond the log.
	Error Type = "error"
)

// Event is a single notification. Only the fields relevant to Type are set.
type Event struct {
	Type      Type
	Time      time.Time
	FeedID    string
	FeedName  string
	Address   string
	State     string
	PeerCount int
	CID       string
	Digest    string
	Count     int
	Message   string
	Err       error
}

type subscription struct {
	ch    chan Event
	types map[Type]struct{}
}

func (s *subscription) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus fans events out to subscribers. The zero value is not usable; call NewBus.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	next    int
	closed  bool
	dropped atomic.Uint64
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Subscribe returns a channel receiving events of the given types (all types
// when none are listed) and a function that cancels the subscription.
func (b *Bus) Subscribe(buffer int, types ...Type) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscription{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
}

// Publish delivers ev to every interested subscriber without blocking.
// Publishing on a nil or closed bus is a no-op.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of deliveries skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later Subscribe calls return a
// closed channel.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
