// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"

	"github.com/bureau-foundation/bureau/lib/ref"
)

var (
	// ErrInvalidCredentials indicates an agent hello or operator token
	// failed validation (spec §7 error kind "auth").
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrNotOwner indicates an operator attempted to open a session
	// against an agent they do not own (spec §4.3 authorisation).
	ErrNotOwner = errors.New("auth: operator does not own agent")
)

// Authority validates the credentials the Connection Hub and Session
// Broker receive from agents and operators. It is the sole point of
// contact with whatever system issues credentials and owns role
// mapping; the core never inspects token internals itself.
type Authority interface {
	// AuthenticateAgent validates an agent's hello{agent_id, secret}.
	// Returns ErrInvalidCredentials on any mismatch, including an
	// unknown agent_id — the caller must not distinguish "unknown
	// agent" from "wrong secret" in its response to the wire.
	AuthenticateAgent(ctx context.Context, agentID ref.AgentID, secret string) error

	// AuthenticateOperator validates an operator bearer token and
	// returns the operator's identity.
	AuthenticateOperator(ctx context.Context, token string) (ref.OperatorID, error)

	// Owns reports whether operatorID owns agentID, per the Agent
	// record's owner_id (spec §3). The Session Broker calls this
	// before opening any terminal session.
	Owns(ctx context.Context, operatorID ref.OperatorID, agentID ref.AgentID) (bool, error)
}
