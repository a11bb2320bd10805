// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"sync"

	"github.com/bureau-foundation/bureau/lib/ref"
)

// MemoryStore is an in-process Store used in tests and single-node
// deployments without Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	latest  map[string]Snapshot
	history map[string][]Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		latest:  make(map[string]Snapshot),
		history: make(map[string][]Snapshot),
	}
}

func (s *MemoryStore) PutInventory(ctx context.Context, snap Snapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snap.AgentID.String()
	s.history[key] = append(s.history[key], snap)

	current, ok := s.latest[key]
	if !ok || snap.CollectedAt.After(current.CollectedAt) {
		s.latest[key] = snap
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) Latest(ctx context.Context, agentID ref.AgentID) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.latest[agentID.String()]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// History returns every snapshot ever recorded for agentID, oldest
// first. Exposed for tests verifying append-only behaviour.
func (s *MemoryStore) History(agentID ref.AgentID) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.history[agentID.String()]...)
}

func (s *MemoryStore) Close() error { return nil }
