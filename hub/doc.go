// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hub implements the Connection Hub (spec §4.2): per-replica
// ownership of agent transports, handshake, frame dispatch, and
// heartbeat-timeout detection.
//
// [Hub] owns one [agentConn] per locally-homed agent. Each agentConn
// runs a single reader goroutine (decoding frames and dispatching by
// type) and a single write-serialiser goroutine (the only writer to
// the underlying [wire.Conn], mirroring gorilla/websocket's
// single-writer restriction) plus a heartbeat supervisor timer driven
// by an injected [clock.Clock]. Frame dispatch is a type switch over
// [wire.Type], not reflective string lookup, per spec §9.
package hub
