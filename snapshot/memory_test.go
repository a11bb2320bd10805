// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/wire"
)

func TestPutInventoryAdvancesLatestMonotonically(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	agentID, _ := ref.NewAgentID("agent-1")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	changed, err := store.PutInventory(ctx, Snapshot{AgentID: agentID, CollectedAt: base, Data: wire.InventoryData{Hostname: "h1"}})
	if err != nil || !changed {
		t.Fatalf("first PutInventory: changed=%v err=%v, want true, nil", changed, err)
	}

	// Out-of-order (older) snapshot: recorded, but does not become latest (I5).
	changed, err = store.PutInventory(ctx, Snapshot{AgentID: agentID, CollectedAt: base.Add(-time.Minute), Data: wire.InventoryData{Hostname: "stale"}})
	if err != nil || changed {
		t.Fatalf("stale PutInventory: changed=%v err=%v, want false, nil", changed, err)
	}

	latest, err := store.Latest(ctx, agentID)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Data.Hostname != "h1" {
		t.Errorf("latest.Data.Hostname = %q, want h1 (stale snapshot must not win)", latest.Data.Hostname)
	}

	if got := store.History(agentID); len(got) != 2 {
		t.Errorf("History length = %d, want 2 (append-only)", len(got))
	}
}

func TestLatestUnknownAgent(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Latest(context.Background(), mustAgentID(t, "ghost"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Latest for unknown agent = %v, want ErrNotFound", err)
	}
}

func mustAgentID(t *testing.T, value string) ref.AgentID {
	t.Helper()
	id, err := ref.NewAgentID(value)
	if err != nil {
		t.Fatalf("NewAgentID: %v", err)
	}
	return id
}
