// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//nolint:dupl // AgentID, ReplicaID, SessionID, and OperatorID are structurally
// identical by design — distinct types for compile-time safety.
package ref

import "fmt"

// ReplicaID identifies one server process within the fleet. Every
// replica generates a stable ReplicaID at startup (typically
// hostname-pid or an injected pod name) and uses it as the owner value
// in presence entries and as its Presence Directory inbox address.
type ReplicaID struct{ value string }

// NewReplicaID validates and wraps a raw replica identifier.
func NewReplicaID(value string) (ReplicaID, error) {
	if err := validateID("replica id", value); err != nil {
		return ReplicaID{}, err
	}
	return ReplicaID{value: value}, nil
}

// String returns the raw identifier.
func (r ReplicaID) String() string { return r.value }

// IsZero reports whether this is an uninitialized ReplicaID.
func (r ReplicaID) IsZero() bool { return r.value == "" }

// Equal reports whether two replica IDs refer to the same replica.
func (r ReplicaID) Equal(other ReplicaID) bool { return r.value == other.value }

// MarshalText implements encoding.TextMarshaler.
func (r ReplicaID) MarshalText() ([]byte, error) { return []byte(r.value), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ReplicaID) UnmarshalText(data []byte) error {
	parsed, err := NewReplicaID(string(data))
	if err != nil {
		return fmt.Errorf("unmarshal ReplicaID: %w", err)
	}
	*r = parsed
	return nil
}
