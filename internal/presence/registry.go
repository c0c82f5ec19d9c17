// Package presence tracks which users hold at least one live socket.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const stripes = 64

// Observer is told when a user's connection set becomes non-empty or empty.
// Calls for one user are serialized; calls for different users may run concurrently.
type Observer interface {
	UserOnline(userID string)
	UserOffline(userID string, lastSeen time.Time)
}

// Registry maps user ids to their live connection ids.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{}

	locks    [stripes]sync.Mutex
	observer Observer
	now      func() time.Time
}

// NewRegistry builds an empty registry. observer may be nil.
func NewRegistry(observer Observer) *Registry {
	return &Registry{
		conns:    make(map[string]map[string]struct{}),
		observer: observer,
		now:      time.Now,
	}
}

// SetObserver replaces the observer. Call before the registry sees traffic.
func (r *Registry) SetObserver(o Observer) {
	r.observer = o
}

func (r *Registry) userLock(userID string) *sync.Mutex {
	return &r.locks[xxhash.Sum64String(userID)%stripes]
}

// Register adds a connection and reports whether it is the user's first.
func (r *Registry) Register(userID, connID string) bool {
	l := r.userLock(userID)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	if _, dup := set[connID]; dup {
		r.mu.Unlock()
		return false
	}
	set[connID] = struct{}{}
	first := len(set) == 1
	r.mu.Unlock()

	if first && r.observer != nil {
		r.observer.UserOnline(userID)
	}
	return first
}

// Unregister removes a connection and reports whether the user is now offline.
func (r *Registry) Unregister(userID, connID string) bool {
	l := r.userLock(userID)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, known := set[connID]; !known {
		r.mu.Unlock()
		return false
	}
	delete(set, connID)
	last := len(set) == 0
	if last {
		delete(r.conns, userID)
	}
	r.mu.Unlock()

	if last && r.observer != nil {
		r.observer.UserOffline(userID, r.now().UTC())
	}
	return last
}

// IsOnline reports whether the user has any live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// ConnectionsFor returns the user's connection ids in a stable order.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns[userID]))
	for id := range r.conns[userID] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// AllOnline returns every online user id, sorted.
func (r *Registry) AllOnline() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
