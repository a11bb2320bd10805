// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a framed, bidirectional JSON connection over a WebSocket.
// It is intentionally narrow — just enough for the Hub's single reader
// and single writer to do their jobs — so that both server and agent
// code share one implementation of the wire format.
//
// A Conn is not safe for concurrent writes; callers serialise writes
// through a single goroutine (see hub's write serialiser and the
// agent transport's runWriter).
type Conn struct {
	ws *websocket.Conn
}

// NewConn wraps an established WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn { return &Conn{ws: ws} }

// ReadFrame blocks until one frame is available, deadline elapses, or
// the connection fails. Callers set the read deadline via
// SetReadDeadline before calling ReadFrame when a bound is required.
func (c *Conn) ReadFrame() (Frame, error) {
	var frame Frame
	_, payload, err := c.ws.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		return Frame{}, fmt.Errorf("wire: decoding frame envelope: %w", err)
	}
	return frame, nil
}

// WriteFrame sends one frame as a single WebSocket text message.
func (c *Conn) WriteFrame(frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("wire: encoding frame envelope: %w", err)
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// SetReadDeadline bounds the next ReadFrame call.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.ws.SetReadDeadline(t) }

// SetWriteDeadline bounds the next WriteFrame call.
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

// Close closes the underlying connection without sending a close
// frame. Use CloseWithReason for a graceful shutdown that tells the
// peer why.
func (c *Conn) Close() error { return c.ws.Close() }

// CloseWithReason sends a WebSocket close frame carrying reason as the
// close message text, then closes the connection. Best effort: write
// errors are ignored since the connection is going away regardless.
func (c *Conn) CloseWithReason(reason string) error {
	deadline := time.Now().Add(2 * time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline)
	return c.ws.Close()
}

// RemoteAddr returns the remote network address of the underlying
// connection, used for log lines.
func (c *Conn) RemoteAddr() string { return c.ws.RemoteAddr().String() }
