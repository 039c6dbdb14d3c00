// Package session keeps live node instances between dev-mode
// invocations so stateful nodes survive across single-node runs.
package session

import (
	"sync"
	"time"

	"github.com/lyzr/flowengine/flow/node"
)

// DefaultIdleTTL evicts sessions idle for half an hour
const DefaultIdleTTL = 30 * time.Minute

type key struct {
	sessionID string
	nodeID    string
}

type entry struct {
	node     node.Node
	lastSeen time.Time
}

// Store is a process-wide node-instance store keyed by (session id,
// node id). All accesses are guarded by one lock; expired entries are
// evicted lazily on each access.
type Store struct {
	mu      sync.Mutex
	entries map[key]*entry
	idleTTL time.Duration
	now     func() time.Time
}

// NewStore creates a session store. A zero ttl uses the default.
func NewStore(idleTTL time.Duration) *Store {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Store{
		entries: make(map[key]*entry),
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Get returns the stored node instance and refreshes its idle timer
func (s *Store) Get(sessionID, nodeID string) (node.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpired()

	e, ok := s.entries[key{sessionID, nodeID}]
	if !ok {
		return nil, false
	}
	e.lastSeen = s.now()
	return e.node, true
}

// Put stores a node instance for the session
func (s *Store) Put(sessionID, nodeID string, n node.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpired()

	s.entries[key{sessionID, nodeID}] = &entry{
		node:     n,
		lastSeen: s.now(),
	}
}

// Delete drops one session entry
func (s *Store) Delete(sessionID, nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key{sessionID, nodeID})
}

// Len reports the live entry count after eviction
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpired()
	return len(s.entries)
}

func (s *Store) evictExpired() {
	cutoff := s.now().Add(-s.idleTTL)
	for k, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}
