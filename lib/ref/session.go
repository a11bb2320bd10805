// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//nolint:dupl // AgentID, ReplicaID, SessionID, and OperatorID are structurally
// identical by design — distinct types for compile-time safety.
package ref

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionID identifies one terminal session for its entire lifetime,
// from open through teardown. Unique across the fleet, not just the
// owning replica, since a session's envelopes may cross replicas.
type SessionID struct{ value string }

// NewSessionID generates a fresh, random SessionID.
func NewSessionID() SessionID {
	return SessionID{value: uuid.NewString()}
}

// ParseSessionID validates and wraps a raw session identifier received
// over the wire.
func ParseSessionID(value string) (SessionID, error) {
	if err := validateID("session id", value); err != nil {
		return SessionID{}, err
	}
	return SessionID{value: value}, nil
}

// String returns the raw identifier.
func (s SessionID) String() string { return s.value }

// IsZero reports whether this is an uninitialized SessionID.
func (s SessionID) IsZero() bool { return s.value == "" }

// Equal reports whether two session IDs refer to the same session.
func (s SessionID) Equal(other SessionID) bool { return s.value == other.value }

// MarshalText implements encoding.TextMarshaler.
func (s SessionID) MarshalText() ([]byte, error) { return []byte(s.value), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SessionID) UnmarshalText(data []byte) error {
	parsed, err := ParseSessionID(string(data))
	if err != nil {
		return fmt.Errorf("unmarshal SessionID: %w", err)
	}
	*s = parsed
	return nil
}
