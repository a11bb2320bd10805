// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"context"
	"sync"
	"time"

	"github.com/bureau-foundation/bureau/lib/ref"
)

// MemoryDirectory is an in-process Directory backed by a mutex-guarded
// map. It implements the same eviction and delivery semantics as
// RedisDirectory, so tests written against Directory exercise real
// invariants rather than a simplified stand-in. Used for single-replica
// deployments and for tests that do not need a live Redis instance.
type MemoryDirectory struct {
	mu      sync.Mutex
	entries map[string]Entry
	inboxes map[string]*memorySubscription
}

// NewMemoryDirectory returns an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		entries: make(map[string]Entry),
		inboxes: make(map[string]*memorySubscription),
	}
}

func (d *MemoryDirectory) Register(ctx context.Context, agentID ref.AgentID, replicaID ref.ReplicaID, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry := Entry{
		AgentID:       agentID,
		Status:        StatusOnline,
		ReplicaID:     replicaID,
		ConnectedAt:   now,
		LastHeartbeat: now,
	}
	d.entries[agentID.String()] = entry
	d.broadcastLocked(entry)
	return nil
}

func (d *MemoryDirectory) Touch(ctx context.Context, agentID ref.AgentID, replicaID ref.ReplicaID, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.entries[agentID.String()]
	if !ok {
		return ErrNotFound
	}
	if !entry.ReplicaID.Equal(replicaID) {
		return ErrEvicted
	}
	entry.LastHeartbeat = now
	d.entries[agentID.String()] = entry
	return nil
}

func (d *MemoryDirectory) Deregister(ctx context.Context, agentID ref.AgentID, replicaID ref.ReplicaID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.entries[agentID.String()]
	if !ok || !entry.ReplicaID.Equal(replicaID) {
		return nil
	}
	entry.Status = StatusOffline
	delete(d.entries, agentID.String())
	d.broadcastLocked(entry)
	return nil
}

func (d *MemoryDirectory) Lookup(ctx context.Context, agentID ref.AgentID) (Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.entries[agentID.String()]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

func (d *MemoryDirectory) Deliver(ctx context.Context, replicaID ref.ReplicaID, envelope Envelope) error {
	d.mu.Lock()
	sub, ok := d.inboxes[replicaID.String()]
	d.mu.Unlock()
	if !ok {
		return ErrNoSuchReplica
	}
	select {
	case sub.envelopes <- envelope:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *MemoryDirectory) Subscribe(ctx context.Context, replicaID ref.ReplicaID) (Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prior, ok := d.inboxes[replicaID.String()]; ok {
		prior.closeOnce()
	}
	sub := newMemorySubscription()
	d.inboxes[replicaID.String()] = sub
	return sub, nil
}

func (d *MemoryDirectory) Close() error { return nil }

// broadcastLocked fans a presence change out to every open
// subscription's Changes channel. Must be called with d.mu held.
func (d *MemoryDirectory) broadcastLocked(entry Entry) {
	for _, sub := range d.inboxes {
		select {
		case sub.changes <- entry:
		default:
		}
	}
}

type memorySubscription struct {
	envelopes chan Envelope
	changes   chan Entry
	once      sync.Once
}

func newMemorySubscription() *memorySubscription {
	return &memorySubscription{
		envelopes: make(chan Envelope, 64),
		changes:   make(chan Entry, 64),
	}
}

func (s *memorySubscription) Envelopes() <-chan Envelope { return s.envelopes }
func (s *memorySubscription) Changes() <-chan Entry      { return s.changes }

func (s *memorySubscription) closeOnce() {
	s.once.Do(func() {
		close(s.envelopes)
		close(s.changes)
	})
}

func (s *memorySubscription) Close() error {
	s.closeOnce()
	return nil
}
