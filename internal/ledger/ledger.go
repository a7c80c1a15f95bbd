// Package ledger tracks which feeds have a publish or update in flight and
// when each last finished.
//
// A State is shared by the publish and follow coordinators. Admission is
// at-most-one per (kind, feed): a second TryBegin for the same pair fails
// until the first caller's release runs. Rejected callers are dropped, not
// queued.
package ledger

import (
	"sort"
	"sync"
	"time"
)

// Kind distinguishes the two operation sets.
type Kind string

const (
	// Publishing marks local feeds being published.
	Publishing Kind = "publishing"
	// Updating marks followed feeds being refreshed.
	Updating Kind = "updating"
)

// State is the in-memory operation ledger. It is safe for concurrent use.
type State struct {
	mu       sync.Mutex
	inflight map[Kind]map[string]time.Time
	last     map[Kind]map[string]time.Time
	now      func() time.Time
}

// New returns an empty ledger.
func New() *State {
	return &State{
		inflight: map[Kind]map[string]time.Time{Publishing: {}, Updating: {}},
		last:     map[Kind]map[string]time.Time{Publishing: {}, Updating: {}},
		now:      time.Now,
	}
}

// TryBegin admits an operation. When ok is false another operation of the
// same kind is running for feedID and nothing was recorded. Otherwise release
// must be called exactly once on every exit path; it clears the mark and
// records the completion time. Extra calls to release are ignored.
func (s *State) TryBegin(kind Kind, feedID string) (release func() time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.set(s.inflight, kind)
	if _, busy := set[feedID]; busy {
		return nil, false
	}
	set[feedID] = s.now()

	var once sync.Once
	var finished time.Time
	return func() time.Time {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.set(s.inflight, kind), feedID)
			finished = s.now()
			s.set(s.last, kind)[feedID] = finished
		})
		return finished
	}, true
}

// InFlight reports whether an operation of kind is running for feedID.
func (s *State) InFlight(kind Kind, feedID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[kind][feedID]
	return ok
}

// Active returns the feed ids with an operation of kind in flight, sorted.
func (s *State) Active(kind Kind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.inflight[kind]))
	for id := range s.inflight[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LastCompleted returns when the last operation of kind for feedID finished.
func (s *State) LastCompleted(kind Kind, feedID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.last[kind][feedID]
	return at, ok
}

// Forget drops every record of feedID, used when a feed is deleted.
func (s *State) Forget(feedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.last {
		delete(m, feedID)
	}
}

func (s *State) set(m map[Kind]map[string]time.Time, kind Kind) map[string]time.Time {
	set, ok := m[kind]
	if !ok {
		set = make(map[string]time.Time)
		m[kind] = set
	}
	return set
}
