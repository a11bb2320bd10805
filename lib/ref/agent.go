// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//nolint:dupl // AgentID, ReplicaID, SessionID, and OperatorID are structurally
// identical by design — distinct types for compile-time safety.
package ref

import "fmt"

// AgentID identifies a probe agent. Assigned at registration and
// stable for the agent's lifetime; never reused after an operator
// deletes the Agent record.
type AgentID struct{ value string }

// NewAgentID validates and wraps a raw agent identifier.
func NewAgentID(value string) (AgentID, error) {
	if err := validateID("agent id", value); err != nil {
		return AgentID{}, err
	}
	return AgentID{value: value}, nil
}

// String returns the raw identifier.
func (a AgentID) String() string { return a.value }

// IsZero reports whether this is an uninitialized AgentID.
func (a AgentID) IsZero() bool { return a.value == "" }

// Equal reports whether two agent IDs refer to the same agent.
func (a AgentID) Equal(other AgentID) bool { return a.value == other.value }

// MarshalText implements encoding.TextMarshaler.
func (a AgentID) MarshalText() ([]byte, error) { return []byte(a.value), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AgentID) UnmarshalText(data []byte) error {
	parsed, err := NewAgentID(string(data))
	if err != nil {
		return fmt.Errorf("unmarshal AgentID: %w", err)
	}
	*a = parsed
	return nil
}
