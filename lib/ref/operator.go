// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//nolint:dupl // AgentID, ReplicaID, SessionID, and OperatorID are structurally
// identical by design — distinct types for compile-time safety.
package ref

import "fmt"

// OperatorID identifies a human operator, as asserted by the Auth
// Authority after validating the operator's bearer token. The core
// never issues or stores operator credentials — it only compares
// OperatorIDs against Agent.OwnerID for authorization.
type OperatorID struct{ value string }

// NewOperatorID validates and wraps a raw operator identifier.
func NewOperatorID(value string) (OperatorID, error) {
	if err := validateID("operator id", value); err != nil {
		return OperatorID{}, err
	}
	return OperatorID{value: value}, nil
}

// String returns the raw identifier.
func (o OperatorID) String() string { return o.value }

// IsZero reports whether this is an uninitialized OperatorID.
func (o OperatorID) IsZero() bool { return o.value == "" }

// Equal reports whether two operator IDs refer to the same operator.
func (o OperatorID) Equal(other OperatorID) bool { return o.value == other.value }

// MarshalText implements encoding.TextMarshaler.
func (o OperatorID) MarshalText() ([]byte, error) { return []byte(o.value), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OperatorID) UnmarshalText(data []byte) error {
	parsed, err := NewOperatorID(string(data))
	if err != nil {
		return fmt.Errorf("unmarshal OperatorID: %w", err)
	}
	*o = parsed
	return nil
}
