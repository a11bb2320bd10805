// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bureau-foundation/bureau/lib/ref"
)

// Status is the connectivity state recorded for an agent.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Entry is one agent's presence record.
type Entry struct {
	AgentID       ref.AgentID `json:"agent_id"`
	Status        Status      `json:"status"`
	ReplicaID     ref.ReplicaID `json:"replica_id"`
	ConnectedAt   time.Time   `json:"connected_at"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
}

// Envelope is a cross-replica message delivered through a replica's
// inbox channel when the addressed agent's transport lives on a
// different replica than the one handling an operator request (spec
// §4.1, §4.3: session routing must work regardless of which replica
// accepted the operator's WebSocket).
type Envelope struct {
	Kind      string          `json:"kind"`
	SessionID ref.SessionID   `json:"session_id"`
	AgentID   ref.AgentID     `json:"agent_id"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

// Envelope kinds.
const (
	EnvelopeTerminalCommand = "terminal_command"
	EnvelopeTerminalOutput  = "terminal_output"
	EnvelopeSessionClosed   = "session_closed"

	// EnvelopeEvict asks the addressed replica to close its local
	// transport for AgentID because a newer registration has taken
	// over (spec §4.2 step 3). Best effort: the sender proceeds with
	// Register regardless of whether this is ever observed, since
	// Register always wins unconditionally.
	EnvelopeEvict = "evict"

	// EnvelopeTerminalOpen asks the addressed replica (the one that
	// owns the target agent) to open a terminal session on the
	// sender's behalf when session and agent live on different
	// replicas (spec §4.3).
	EnvelopeTerminalOpen = "terminal_open"
)

var (
	// ErrUnavailable indicates the backing store could not be reached.
	// Callers should treat this as "unknown", not "offline" (spec
	// invariant I2: absence of a record is not evidence of offline
	// status when the store itself is unreachable).
	ErrUnavailable = errors.New("presence: directory unavailable")

	// ErrNotFound indicates no presence record exists for the agent.
	ErrNotFound = errors.New("presence: no such agent")

	// ErrEvicted indicates the caller's ownership of an agent's
	// presence record was superseded by a newer registration (spec
	// invariant I1: at most one replica owns an agent's live
	// connection at a time; a stale owner that keeps touching the
	// record must be told to stand down and close its transport).
	ErrEvicted = errors.New("presence: registration evicted by newer owner")

	// ErrNoSuchReplica indicates Deliver targeted a replica with no
	// active subscriber, e.g. the replica crashed between Lookup and
	// Deliver.
	ErrNoSuchReplica = errors.New("presence: no subscriber for replica")
)

// Subscription is a live feed of envelopes addressed to one replica's
// inbox, plus fleet-wide presence-change notifications.
type Subscription interface {
	// Envelopes delivers messages sent to this replica via Deliver.
	Envelopes() <-chan Envelope

	// Changes delivers presence status transitions for any agent in
	// the fleet, so every replica can keep a local read cache warm
	// without polling (spec §4.1).
	Changes() <-chan Entry

	// Close releases the subscription's resources. Safe to call more
	// than once.
	Close() error
}

// Directory is the authoritative, cross-replica record of which agents
// are connected and which replica holds each agent's transport (spec
// §4.1). Every replica in the fleet shares one Directory so that an
// operator request arriving on any replica can find or evict an
// agent's connection no matter where it was accepted.
type Directory interface {
	// Register records agentID as online and owned by replicaID,
	// evicting any prior owner unconditionally: the new registration
	// always wins, since the Hub only calls Register after a
	// successful handshake, and a successful handshake supersedes
	// whatever connection came before (spec §4.2, duplicate
	// handling).
	Register(ctx context.Context, agentID ref.AgentID, replicaID ref.ReplicaID, now time.Time) error

	// Touch refreshes the TTL on agentID's presence record and updates
	// LastHeartbeat. Returns ErrEvicted if replicaID is no longer the
	// registered owner, and ErrNotFound if the record has already
	// expired. Callers must close the local transport on ErrEvicted.
	Touch(ctx context.Context, agentID ref.AgentID, replicaID ref.ReplicaID, now time.Time) error

	// Deregister marks agentID offline, but only if replicaID is
	// still the registered owner (a conditional delete, implemented
	// atomically so a race between a crashing old owner and a newly
	// registered owner can never erase the new owner's record).
	Deregister(ctx context.Context, agentID ref.AgentID, replicaID ref.ReplicaID) error

	// Lookup returns the current presence entry for agentID.
	// Returns ErrNotFound if no record exists (including expiry).
	Lookup(ctx context.Context, agentID ref.AgentID) (Entry, error)

	// Deliver routes an envelope to the replica that owns the
	// envelope's target agent. Returns ErrNoSuchReplica if the
	// target replica has no live Subscription.
	Deliver(ctx context.Context, replicaID ref.ReplicaID, envelope Envelope) error

	// Subscribe opens this replica's inbox. Only one Subscription per
	// replicaID should be open at a time; a second Subscribe call
	// replaces the first (mirrors one Hub process per replica).
	Subscribe(ctx context.Context, replicaID ref.ReplicaID) (Subscription, error)

	// Close releases directory-wide resources (connection pools,
	// background goroutines). Called once at replica shutdown.
	Close() error
}
