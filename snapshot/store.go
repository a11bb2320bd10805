// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/wire"
)

// ErrUnavailable indicates the backing store could not be reached.
// Per spec §4.2/§7, this causes the triggering inventory frame to be
// rejected with error{code=unavailable} rather than acknowledged.
var ErrUnavailable = errors.New("snapshot: store unavailable")

// Snapshot is one accepted inventory record (spec §3, data model
// "Inventory snapshot").
type Snapshot struct {
	AgentID     ref.AgentID
	CollectedAt time.Time
	Data        wire.InventoryData
}

// Store is the write-through inventory persistence collaborator.
// Every accepted inventory snapshot is written here before its
// acknowledgement is returned to the agent (invariant I4); the
// latest-snapshot pointer per agent must advance monotonically by
// CollectedAt (invariant I5).
type Store interface {
	// PutInventory durably records snapshot, returning whether this
	// snapshot changed the agent's latest recorded state (used to
	// populate inventory_ack.changed). A snapshot with an earlier
	// CollectedAt than the current latest is accepted (append-only)
	// but never becomes the latest pointer.
	PutInventory(ctx context.Context, snapshot Snapshot) (changed bool, err error)

	// Latest returns the most recently collected snapshot for
	// agentID, or ErrNotFound if none has ever been recorded.
	Latest(ctx context.Context, agentID ref.AgentID) (Snapshot, error)

	// Close releases store resources.
	Close() error
}

// ErrNotFound indicates no snapshot has ever been recorded for an agent.
var ErrNotFound = errors.New("snapshot: no recorded snapshot")
