// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "github.com/bureau-foundation/bureau/lib/wire"

// openPayload is the presence.EnvelopeTerminalOpen payload: a request
// from the operator's replica asking the agent's replica to open a
// PTY session on its behalf (spec §4.3, "Else: directory.deliver").
type openPayload struct {
	Rows     int    `json:"rows"`
	Cols     int    `json:"cols"`
	Shell    string `json:"shell,omitempty"`
	ReturnTo string `json:"return_to"`
}

// commandPayload is the presence.EnvelopeTerminalCommand payload,
// carrying an operator-originated command toward the replica that
// owns the agent transport.
type commandPayload struct {
	Command wire.TerminalCommandData `json:"command"`
}

// outputPayload is the presence.EnvelopeTerminalOutput payload,
// carrying agent-originated output toward the replica holding the
// operator transport.
type outputPayload struct {
	Output wire.TerminalOutputData `json:"output"`
}

// closedPayload is the presence.EnvelopeSessionClosed payload.
type closedPayload struct {
	Reason string `json:"reason"`
}
