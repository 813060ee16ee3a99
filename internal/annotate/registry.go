package annotate

import (
	"crypto/rand"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

// Registry holds the live sessions of a process. State changes reported by
// the backend fan out to every one of them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	entropy  *ulid.MonotonicEntropy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// Add assigns s an id and registers it.
func (r *Registry) Add(s *Session) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.id = ulid.MustNew(ulid.Now(), r.entropy).String()
	r.sessions[s.id] = s
	return s.id
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.NewNotFound("session " + id)
	}
	return s, nil
}

// Remove cancels the session's outstanding work and forgets it.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Cancel()
	}
	return ok
}

// IDs returns the registered ids, oldest first.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Broadcast applies changes to every session and returns the number of
// elements restyled across all of them.
func (r *Registry) Broadcast(changes []card.StateChange) int {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	n := 0
	for _, s := range sessions {
		n += s.ApplyStateChanges(changes)
	}
	return n
}
