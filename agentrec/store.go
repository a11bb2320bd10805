// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agentrec

import (
	"context"
	"errors"
	"time"

	"github.com/bureau-foundation/bureau/lib/ref"
)

var (
	// ErrNotFound indicates no Agent record exists for the given ID.
	ErrNotFound = errors.New("agentrec: no such agent")

	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("agentrec: store unavailable")
)

// Record is one Agent record (spec §3). The secret is returned once,
// in cleartext, from Register; after that only a bcrypt hash of it is
// retained, and callers authenticate via VerifySecret.
type Record struct {
	AgentID         ref.AgentID
	OwnerID         ref.OperatorID
	Hostname        string
	Platform        string
	Architecture    string
	AgentVersion    string
	RegisteredAt    time.Time
	LastConnectedAt time.Time
}

// Store is the durable Agent record collaborator. Registration and
// deletion are explicit operator actions (spec §3: "destroyed only by
// explicit operator action"); every accepted connect touches
// LastConnectedAt.
type Store interface {
	// Register creates a new Agent record, generating a fresh secret
	// and returning it once in cleartext so the caller can hand it to
	// the registering operator — it is never retrievable again after
	// this call returns. Returns ErrAlreadyExists if agentID is
	// already registered.
	Register(ctx context.Context, agentID ref.AgentID, ownerID ref.OperatorID) (Record, string, error)

	// Lookup returns the record for agentID.
	Lookup(ctx context.Context, agentID ref.AgentID) (Record, error)

	// ListOwnedBy returns every Agent record owned by ownerID, for the
	// operator session-list endpoint.
	ListOwnedBy(ctx context.Context, ownerID ref.OperatorID) ([]Record, error)

	// TouchConnected updates hostname/platform/architecture/version
	// and LastConnectedAt on a successful handshake.
	TouchConnected(ctx context.Context, agentID ref.AgentID, hostname, platform, architecture, agentVersion string, now time.Time) error

	// Delete removes an Agent record. Explicit operator action only.
	Delete(ctx context.Context, agentID ref.AgentID) error

	// VerifySecret reports whether presented matches the secret hashed
	// at registration time, satisfying auth.AgentCredentialSource.
	VerifySecret(ctx context.Context, agentID ref.AgentID, presented string) (bool, error)

	// AgentOwner returns the owning operator for agentID, satisfying
	// auth.AgentCredentialSource.
	AgentOwner(ctx context.Context, agentID ref.AgentID) (ref.OperatorID, error)

	// Close releases store resources.
	Close() error
}

// ErrAlreadyExists indicates Register was called for an agent_id that
// already has a record.
var ErrAlreadyExists = errors.New("agentrec: agent already registered")
