// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/wire"
)

// SessionRouter receives frames the Hub's reader cannot handle itself
// because they belong to a terminal session's lifecycle, owned by the
// Session Broker (spec §4.2 dispatch table: terminal_output,
// terminal_closed, terminal_error are all "hand to Session Broker").
//
// Hub depends on this interface rather than importing package session
// directly, so session can depend on hub.Sender without an import
// cycle: construct the Hub first, then the Broker with the Hub as its
// Sender, then call Hub.SetRouter(broker).
type SessionRouter interface {
	HandleTerminalOutput(agentID ref.AgentID, data wire.TerminalOutputData)
	HandleTerminalReady(agentID ref.AgentID, data wire.TerminalReadyData)
	HandleTerminalError(agentID ref.AgentID, data wire.TerminalErrorData)
	HandleTerminalClosed(agentID ref.AgentID, data wire.TerminalClosedData)

	// HandleAgentDisconnected notifies the router that agentID's
	// transport on this replica has gone away for reasons outside the
	// terminal protocol (heartbeat timeout, read/write failure,
	// eviction). Any session homed on this agent must be torn down.
	HandleAgentDisconnected(agentID ref.AgentID)
}

// Sender is the interface the Session Broker uses to reach a locally-
// homed agent's transport. Hub implements it.
type Sender interface {
	// Send enqueues frame for delivery to agentID's transport. Returns
	// ErrNotHere if the agent is not locally homed, ErrClosed if its
	// transport is closing.
	Send(agentID ref.AgentID, frame wire.Frame) error
}
