// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agentrec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/bureau/lib/ref"
)

func TestRegisterThenLookup(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	agentID, _ := ref.NewAgentID("agent-1")
	ownerID, _ := ref.NewOperatorID("alice")

	record, issuedSecret, err := store.Register(ctx, agentID, ownerID)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !record.OwnerID.Equal(ownerID) {
		t.Errorf("OwnerID = %q, want %q", record.OwnerID, ownerID)
	}
	if issuedSecret == "" {
		t.Error("Register returned empty secret")
	}

	if _, _, err := store.Register(ctx, agentID, ownerID); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("re-Register = %v, want ErrAlreadyExists", err)
	}

	ok, err := store.VerifySecret(ctx, agentID, issuedSecret)
	if err != nil {
		t.Fatalf("VerifySecret: %v", err)
	}
	if !ok {
		t.Error("VerifySecret rejected the secret Register issued")
	}

	ok, err = store.VerifySecret(ctx, agentID, "wrong-secret")
	if err != nil {
		t.Fatalf("VerifySecret: %v", err)
	}
	if ok {
		t.Error("VerifySecret accepted an incorrect secret")
	}
}

func TestTouchConnectedUpdatesRecord(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	agentID, _ := ref.NewAgentID("agent-1")
	ownerID, _ := ref.NewOperatorID("alice")
	if _, _, err := store.Register(ctx, agentID, ownerID); err != nil {
		t.Fatalf("Register: %v", err)
	}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.TouchConnected(ctx, agentID, "host1", "linux", "amd64", "1.0.0", now); err != nil {
		t.Fatalf("TouchConnected: %v", err)
	}

	record, err := store.Lookup(ctx, agentID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if record.Hostname != "host1" || !record.LastConnectedAt.Equal(now) {
		t.Errorf("record = %+v, want hostname=host1 LastConnectedAt=%v", record, now)
	}
}

func TestDeleteRemovesRecordAndSecret(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	agentID, _ := ref.NewAgentID("agent-1")
	ownerID, _ := ref.NewOperatorID("alice")
	if _, _, err := store.Register(ctx, agentID, ownerID); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := store.Delete(ctx, agentID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Lookup(ctx, agentID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup after Delete = %v, want ErrNotFound", err)
	}
	if _, err := store.VerifySecret(ctx, agentID, "anything"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("VerifySecret after Delete = %v, want ErrNotFound", err)
	}
}
