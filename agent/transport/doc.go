// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport is the agent side of the hub connection (spec
// §4.4): dial, authenticate, and hold one framed WebSocket open to
// hubd, reconnecting with exponential backoff whenever it drops.
//
// Client owns the socket exclusively — one reader goroutine, one
// writer goroutine draining a bounded queue — mirroring the
// single-writer discipline the Connection Hub enforces on its side of
// the same wire format. Callers never touch the socket directly; they
// call Send to enqueue outbound frames and implement Router to receive
// inbound ones.
package transport
