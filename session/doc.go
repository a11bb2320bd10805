// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the Session Broker (spec §4.3): the
// lifecycle of interactive terminal sessions bridging an operator's
// WebSocket to an agent's PTY, possibly through a peer replica when
// the operator's replica differs from the one holding the agent's
// transport.
//
// Broker borrows agent transports through hub.Sender and owns
// operator transports directly. It implements hub.SessionRouter to
// receive frames the Connection Hub cannot handle itself, and
// hub.EnvelopeForwarder to receive cross-replica envelopes relayed
// through the Presence Directory.
package session
