// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	frame, err := New(TypeHeartbeat, HeartbeatData{Status: "alive", UptimeS: 42, AgentVersion: "1.0.0"}, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if frame.Timestamp != now.Unix() {
		t.Errorf("Timestamp = %d, want %d", frame.Timestamp, now.Unix())
	}

	var decoded HeartbeatData
	if err := frame.Decode(&decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.UptimeS != 42 || decoded.Status != "alive" {
		t.Errorf("decoded = %+v, want UptimeS=42 Status=alive", decoded)
	}
}

func TestFrameCheckSkew(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		timestamp time.Time
		want      bool
	}{
		{name: "exact", timestamp: now, want: true},
		{name: "within window", timestamp: now.Add(299 * time.Second), want: true},
		{name: "past within window", timestamp: now.Add(-299 * time.Second), want: true},
		{name: "future beyond window", timestamp: now.Add(301 * time.Second), want: false},
		{name: "past beyond window", timestamp: now.Add(-301 * time.Second), want: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			frame := Frame{Timestamp: test.timestamp.Unix()}
			if got := frame.CheckSkew(now); got != test.want {
				t.Errorf("CheckSkew() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestEncodeDecodeBinaryRoundTrip(t *testing.T) {
	original := []byte("ls -la\n\x00\x01binary\xff")
	encoded := EncodeBinary(original)
	decoded, err := DecodeBinary(encoded)
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	if string(decoded) != string(original) {
		t.Errorf("round trip = %q, want %q", decoded, original)
	}
}
