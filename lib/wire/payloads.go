// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// HelloData is the agent → server handshake payload.
type HelloData struct {
	AgentID      string `json:"agent_id"`
	Secret       string `json:"secret"`
	AgentVersion string `json:"agent_version"`
}

// WelcomeData is the server → agent handshake reply.
type WelcomeData struct {
	ServerVersion       string `json:"server_version"`
	HeartbeatIntervalS  int    `json:"heartbeat_interval_s"`
	InventoryIntervalS  int    `json:"inventory_interval_s"`
}

// HeartbeatData is the agent → server liveness frame.
type HeartbeatData struct {
	Status       string `json:"status"`
	UptimeS      int64  `json:"uptime_s"`
	AgentVersion string `json:"agent_version"`
}

// HeartbeatAckData is the server → agent liveness reply.
type HeartbeatAckData struct {
	ServerTimeS int64 `json:"server_time_s"`
}

// InventoryData is the agent → server inventory snapshot payload. The
// canonical fields mirror spec §3; anything platform-specific (BMC,
// Redfish, IPMI detail) rides in Extensions untouched by the core.
type InventoryData struct {
	Hostname     string            `json:"hostname"`
	OS           string            `json:"os"`
	Platform     string            `json:"platform"`
	Architecture string            `json:"architecture"`
	CPUCount     int               `json:"cpu_count"`
	CPUModel     string            `json:"cpu_model"`
	MemoryTotal  uint64            `json:"memory_total"`
	MemoryUsed   uint64            `json:"memory_used"`
	MemoryFree   uint64            `json:"memory_free"`
	DiskTotal    uint64            `json:"disk_total"`
	DiskUsed     uint64            `json:"disk_used"`
	DiskFree     uint64            `json:"disk_free"`
	IPList       []string          `json:"ip_list"`
	MACList      []string          `json:"mac_list"`
	Extensions   map[string]any    `json:"extensions,omitempty"`
}

// InventoryAckData is the server → agent inventory acknowledgement.
type InventoryAckData struct {
	Received bool `json:"received"`
	Changed  bool `json:"changed"`
}

// TerminalCommandKind enumerates the command field of a
// terminal_command frame.
type TerminalCommandKind string

const (
	TerminalCommandInit   TerminalCommandKind = "init"
	TerminalCommandInput  TerminalCommandKind = "input"
	TerminalCommandResize TerminalCommandKind = "resize"
	TerminalCommandClose  TerminalCommandKind = "close"
)

// TerminalCommandData is the server → agent terminal instruction
// payload. Fields are overloaded by Command: init/resize use
// Rows/Cols(/Shell), input uses Data, close uses none.
type TerminalCommandData struct {
	SessionID string              `json:"session_id"`
	Command   TerminalCommandKind `json:"command"`
	Rows      int                 `json:"rows,omitempty"`
	Cols      int                 `json:"cols,omitempty"`
	Shell     string              `json:"shell,omitempty"`
	Data      string              `json:"data,omitempty"` // base64
	Seq       uint64              `json:"seq,omitempty"`
}

// TerminalOutputData is the agent → server PTY output payload. Data is
// base64-encoded since the envelope is JSON (spec §4.4, §9).
type TerminalOutputData struct {
	SessionID string `json:"session_id"`
	Data      string `json:"data"`
	Seq       uint64 `json:"seq"`
}

// TerminalReadyData acknowledges a terminal_command{init}.
type TerminalReadyData struct {
	SessionID string `json:"session_id"`
}

// TerminalErrorData reports a session-scoped failure that does not
// close the underlying transport.
type TerminalErrorData struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// Terminal error reasons.
const (
	TerminalErrorUnknownSession = "unknown_session"
	TerminalErrorUnsupported    = "unsupported"
	TerminalErrorDoubleInit     = "double_init"
)

// TerminalClosedData signals a session has fully torn down.
type TerminalClosedData struct {
	SessionID string `json:"session_id"`
}

// CommandResponseData is the agent → server reply to a server-issued
// command, correlated by the frame's MessageID field.
type CommandResponseData struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// ErrorData is the payload of a both-directions error frame.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OperatorOpenData is the first frame an operator sends after the
// WebSocket upgrade to /terminal/{agent_id}, requesting initial PTY
// dimensions (spec §6).
type OperatorOpenData struct {
	Rows  int    `json:"rows"`
	Cols  int    `json:"cols"`
	Shell string `json:"shell,omitempty"`
}

// OperatorInputData is an operator → server keystroke frame
// (type=input).
type OperatorInputData struct {
	Data string `json:"data"`
}

// OperatorResizeData is an operator → server resize frame
// (type=resize).
type OperatorResizeData struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// OperatorOutputData is a server → operator output frame
// (type=terminal_output).
type OperatorOutputData struct {
	SessionID string `json:"session_id"`
	Output    string `json:"output"`
}
