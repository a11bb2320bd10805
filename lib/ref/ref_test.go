// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "testing"

func TestNewAgentIDValidation(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "valid", value: "agent-01"},
		{name: "empty", value: "", wantErr: true},
		{name: "contains space", value: "agent 01", wantErr: true},
		{name: "contains slash", value: "agent/01", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			id, err := NewAgentID(test.value)
			if test.wantErr {
				if err == nil {
					t.Fatalf("NewAgentID(%q) = %v, want error", test.value, id)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewAgentID(%q) unexpected error: %v", test.value, err)
			}
			if id.String() != test.value {
				t.Errorf("String() = %q, want %q", id.String(), test.value)
			}
		})
	}
}

func TestAgentIDZeroValue(t *testing.T) {
	var id AgentID
	if !id.IsZero() {
		t.Error("zero-value AgentID.IsZero() = false, want true")
	}

	parsed, err := NewAgentID("x")
	if err != nil {
		t.Fatalf("NewAgentID: %v", err)
	}
	if parsed.IsZero() {
		t.Error("parsed AgentID.IsZero() = true, want false")
	}
}

func TestAgentIDTextRoundTrip(t *testing.T) {
	want, err := NewAgentID("gpu-box-7")
	if err != nil {
		t.Fatalf("NewAgentID: %v", err)
	}

	text, err := want.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var got AgentID
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestSessionIDGeneratesUnique(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	if a.Equal(b) {
		t.Fatalf("NewSessionID produced equal IDs: %s == %s", a, b)
	}
}

func TestReplicaIDEqual(t *testing.T) {
	a, err := NewReplicaID("replica-1")
	if err != nil {
		t.Fatalf("NewReplicaID: %v", err)
	}
	b, err := NewReplicaID("replica-1")
	if err != nil {
		t.Fatalf("NewReplicaID: %v", err)
	}
	c, err := NewReplicaID("replica-2")
	if err != nil {
		t.Fatalf("NewReplicaID: %v", err)
	}

	if !a.Equal(b) {
		t.Error("identical replica IDs not equal")
	}
	if a.Equal(c) {
		t.Error("distinct replica IDs reported equal")
	}
}
