// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the JSON frame envelope exchanged between the
// hub and both kinds of peer it talks to — agents and operators — and
// the tagged-variant dispatch helpers built on top of it.
//
// Every frame is a flat JSON object:
//
//	{ "type": "...", "data": { ... }, "timestamp": 1234, "message_id"?: "..." }
//
// Handlers decode the envelope first, then decode Data a second time
// into the concrete payload type for Type — a match on a tagged
// variant, not reflective lookup on strings.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the shape of a Frame's Data payload.
type Type string

// Frame type constants. See spec §6 for the full direction/schema table.
const (
	TypeHello           Type = "hello"
	TypeWelcome         Type = "welcome"
	TypeHeartbeat       Type = "heartbeat"
	TypeHeartbeatAck    Type = "heartbeat_ack"
	TypeInventory       Type = "inventory"
	TypeInventoryAck    Type = "inventory_ack"
	TypeTerminalCommand Type = "terminal_command"
	TypeTerminalOutput  Type = "terminal_output"
	TypeTerminalReady   Type = "terminal_ready"
	TypeTerminalError   Type = "terminal_error"
	TypeTerminalClosed  Type = "terminal_closed"
	TypeError           Type = "error"

	// TypeCommandResponse correlates with a prior server-issued
	// command by MessageID (spec §4.2 dispatch table). No command
	// producing this response is settled by the specification besides
	// terminal control (which uses its own types above); the
	// correlation mechanism is implemented so a future command kind
	// has somewhere to land.
	TypeCommandResponse Type = "command_response"

	// TypeOpen, TypeResize, and TypeInput are operator-facing shorthand
	// frames (web UI ⇄ server, spec §6) distinct from the agent-facing
	// terminal_command envelope the hub relays them as. TypeOpen is the
	// first frame an operator sends after the WebSocket upgrade,
	// carrying the PTY's initial dimensions.
	TypeOpen   Type = "open"
	TypeResize Type = "resize"
	TypeInput  Type = "input"
)

// Error codes carried in an error frame's Code field.
const (
	ErrorCodeAuth           = "auth"
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeRateLimit      = "rate_limit"
	ErrorCodeAgentOffline   = "agent_offline"
	ErrorCodeUnauthorised   = "unauthorised"
	ErrorCodeUnavailable    = "unavailable"
	ErrorCodeInternal       = "internal"
)

// Close reasons, sent as the WebSocket close reason text and used
// internally to classify why a transport ended.
const (
	CloseReasonAuth         = "auth"
	CloseReasonAgentOffline = "agent_offline"
	CloseReasonUnauthorised = "unauthorised"
	CloseReasonBackpressure = "backpressure"
	CloseReasonStalled      = "stalled"
	CloseReasonDuplicate    = "duplicate_agent"
	CloseReasonShutdown     = "shutdown"
	CloseReasonNormal       = "normal"
	CloseReasonInternal     = "internal"
)

// MaxClockSkew is the largest tolerated difference between a frame's
// Timestamp and the receiver's clock (spec §6). Frames outside this
// window are rejected as malformed.
const MaxClockSkew = 300 * time.Second

// MaxTerminalFrameBytes is the size at which the producer of a
// terminal_output frame must split the payload (spec §5).
const MaxTerminalFrameBytes = 64 * 1024

// MaxInventoryFrameBytes is the hard cap on inventory frame size
// (spec §5). Frames larger than this are rejected with
// error{code=invalid_message} without closing the transport.
const MaxInventoryFrameBytes = 1024 * 1024

// Frame is the wire envelope common to every message exchanged over a
// hub transport, agent or operator side alike.
type Frame struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	MessageID string          `json:"message_id,omitempty"`
}

// New builds a Frame of the given type with data marshaled into the
// Data field and Timestamp set to now (Unix seconds).
func New(frameType Type, data any, now time.Time) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: marshaling %s payload: %w", frameType, err)
	}
	return Frame{
		Type:      frameType,
		Data:      raw,
		Timestamp: now.Unix(),
	}, nil
}

// Decode unmarshals f.Data into dst. Returns an error naming the frame
// type and wrapping the JSON error when the payload does not match
// dst's shape.
func (f Frame) Decode(dst any) error {
	if err := json.Unmarshal(f.Data, dst); err != nil {
		return fmt.Errorf("wire: decoding %s payload: %w", f.Type, err)
	}
	return nil
}

// CheckSkew reports whether f.Timestamp is within MaxClockSkew of now.
// A frame failing this check must be answered with
// error{code=invalid_message} and the transport closed (spec §6).
func (f Frame) CheckSkew(now time.Time) bool {
	delta := now.Unix() - f.Timestamp
	if delta < 0 {
		delta = -delta
	}
	return time.Duration(delta)*time.Second <= MaxClockSkew
}
