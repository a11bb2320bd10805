// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"sync"
	"time"

	"github.com/bureau-foundation/bureau/lib/clock"
	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/wire"
)

// connState is the heartbeat-timeout state machine per spec §4.2.
type connState int

const (
	stateConnected connState = iota
	stateClosing
	stateClosed
)

// agentConn owns one agent's transport for as long as it is homed on
// this replica. Its reader is the only reader of the socket; its
// writer goroutine, draining writeQueue, is the only writer — the
// write serialiser spec §4.2 requires to hide gorilla/websocket's
// single-writer restriction.
type agentConn struct {
	agentID ref.AgentID
	conn    *wire.Conn
	clock   clock.Clock

	writeQueue chan wire.Frame
	closeOnce  sync.Once
	done       chan struct{}

	mu              sync.Mutex
	state           connState
	lastHeartbeatAt time.Time
	closeReason     string
}

func newAgentConn(agentID ref.AgentID, conn *wire.Conn, clk clock.Clock, now time.Time) *agentConn {
	return &agentConn{
		agentID:         agentID,
		conn:            conn,
		clock:           clk,
		writeQueue:      make(chan wire.Frame, WriteQueueDepth),
		done:            make(chan struct{}),
		state:           stateConnected,
		lastHeartbeatAt: now,
	}
}

// enqueue attempts a non-blocking send to the write queue. Returns
// ErrClosed if the connection is closing. A full queue triggers a
// backpressure close instead of blocking the caller, and also returns
// ErrClosed (spec §5 backpressure policy).
func (c *agentConn) enqueue(frame wire.Frame) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != stateConnected {
		return ErrClosed
	}

	select {
	case c.writeQueue <- frame:
		return nil
	default:
		c.beginClose(wire.CloseReasonBackpressure)
		return ErrClosed
	}
}

// beginClose transitions to stateClosing exactly once, recording the
// reason for the eventual transport close.
func (c *agentConn) beginClose(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = stateClosing
		c.closeReason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *agentConn) recordHeartbeat(now time.Time) {
	c.mu.Lock()
	c.lastHeartbeatAt = now
	c.mu.Unlock()
}

func (c *agentConn) heartbeatAge(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastHeartbeatAt)
}

func (c *agentConn) reasonLocked() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

// runWriter drains writeQueue until done fires, writing each frame in
// enqueue order — the single-writer discipline spec §4.2/§5 requires.
func (c *agentConn) runWriter(writeTimeout time.Duration) {
	for {
		select {
		case frame, ok := <-c.writeQueue:
			if !ok {
				return
			}
			if writeTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			}
			if err := c.conn.WriteFrame(frame); err != nil {
				c.beginClose(wire.CloseReasonStalled)
				return
			}
		case <-c.done:
			// Drain remaining queued frames best-effort before exiting
			// (spec §5: "the writer drains").
			for {
				select {
				case frame, ok := <-c.writeQueue:
					if !ok {
						return
					}
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					_ = c.conn.WriteFrame(frame)
				default:
					return
				}
			}
		}
	}
}
