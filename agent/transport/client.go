// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/bureau/lib/clock"
	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/wire"
)

// ErrQueueFull is returned by Send when the outbound queue is backed
// up. The caller decides whether the frame is safe to drop (heartbeat,
// inventory) or must be retried (terminal output).
var ErrQueueFull = errors.New("transport: outbound queue full")

// writeQueueDepth bounds the number of frames buffered ahead of the
// writer, mirroring the hub's own write serialiser queue.
const writeQueueDepth = 64

// Router receives frames the hub sends this agent. Implementations
// typically fan out by field to the heartbeat, inventory, and PTY
// components; a nil Router silently drops inbound frames.
type Router interface {
	HandleWelcome(data wire.WelcomeData)
	HandleHeartbeatAck(data wire.HeartbeatAckData)
	HandleInventoryAck(data wire.InventoryAckData)
	HandleTerminalCommand(data wire.TerminalCommandData)
	HandleError(data wire.ErrorData)
}

// Dialer opens a framed connection to url. The default dials a real
// WebSocket; tests substitute one that talks to an httptest server or
// injects failures.
type Dialer func(ctx context.Context, url string) (*wire.Conn, error)

// Config configures a Client.
type Config struct {
	ServerURL    string
	AgentID      ref.AgentID
	Secret       string
	AgentVersion string

	Clock  clock.Clock
	Logger *slog.Logger

	// ReconnectBase and ReconnectMax bound the exponential backoff
	// between dial attempts (spec §4.4). Defaults: 1s / 60s.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration

	// HandshakeTimeout bounds waiting for the welcome frame after
	// hello is sent. Default 10s.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write. Default 10s.
	WriteTimeout time.Duration

	// Dial overrides how a connection is established. Defaults to a
	// TLS-capable WebSocket dial against ServerURL.
	Dial Dialer

	// InsecureSkipVerify disables TLS certificate verification, for
	// local development against a self-signed hubd.
	InsecureSkipVerify bool
}

func (c *Config) setDefaults() {
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 60 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.Dial == nil {
		insecureSkipVerify := c.InsecureSkipVerify
		c.Dial = func(ctx context.Context, url string) (*wire.Conn, error) {
			dialer := websocket.Dialer{
				HandshakeTimeout: 10 * time.Second,
				TLSClientConfig:  &tls.Config{InsecureSkipVerify: insecureSkipVerify},
			}
			ws, _, err := dialer.DialContext(ctx, url, nil)
			if err != nil {
				return nil, err
			}
			return wire.NewConn(ws), nil
		}
	}
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Client holds one logical connection to hubd, reconnecting as needed.
// The zero value is not usable; construct with New.
type Client struct {
	config Config
	logger *slog.Logger

	writeQueue chan wire.Frame

	routerMu sync.RWMutex
	router   Router

	connMu    sync.RWMutex
	conn      *wire.Conn
	connected bool
}

// New constructs a Client. Panics if config.Clock is nil.
func New(config Config) *Client {
	if config.Clock == nil {
		panic("transport: Config.Clock is required")
	}
	config.setDefaults()
	return &Client{
		config:     config,
		logger:     config.logger(),
		writeQueue: make(chan wire.Frame, writeQueueDepth),
	}
}

// SetRouter installs the frame handler. Call before Run.
func (c *Client) SetRouter(router Router) {
	c.routerMu.Lock()
	c.router = router
	c.routerMu.Unlock()
}

func (c *Client) getRouter() Router {
	c.routerMu.RLock()
	defer c.routerMu.RUnlock()
	return c.router
}

// IsConnected reports whether a session is currently established.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Send enqueues frame for delivery on the current or next session.
// Non-blocking: returns ErrQueueFull rather than backing up the
// caller when the queue is saturated, since a dropped heartbeat or
// stale inventory frame is preferable to a stuck PTY reader.
func (c *Client) Send(frame wire.Frame) error {
	select {
	case c.writeQueue <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run dials hubd and services the connection until ctx is cancelled,
// reconnecting with exponential backoff (spec §4.4) whenever the
// session ends. It returns only when ctx is done.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.config.ReconnectBase
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.config.Dial(ctx, c.config.ServerURL)
		if err != nil {
			c.logger.Warn("transport: dial failed", "error", err, "retry_in", backoff)
			if !c.wait(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.config.ReconnectMax)
			continue
		}

		if err := c.handshake(conn); err != nil {
			c.logger.Warn("transport: handshake failed", "error", err, "retry_in", backoff)
			_ = conn.Close()
			if !c.wait(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.config.ReconnectMax)
			continue
		}

		backoff = c.config.ReconnectBase
		c.logger.Info("transport: connected", "server_url", c.config.ServerURL)
		c.runSession(ctx, conn)
		c.logger.Info("transport: session ended, reconnecting")
	}
}

func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.config.Clock.After(d):
		return true
	}
}

// backoffJitterFraction is the uniform jitter applied to each
// reconnect delay (spec §9), so replicas restarting together don't
// send every agent's next dial attempt at the same instant.
const backoffJitterFraction = 0.2

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	//nolint:gosec // The random jitter is for thundering-herd avoidance, not security.
	jitter := time.Duration((rand.Float64()*2 - 1) * backoffJitterFraction * float64(next))
	jittered := next + jitter
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}

// handshake sends hello and blocks for welcome, per spec §4.2 step 1.
func (c *Client) handshake(conn *wire.Conn) error {
	hello, err := wire.New(wire.TypeHello, wire.HelloData{
		AgentID:      c.config.AgentID.String(),
		Secret:       c.config.Secret,
		AgentVersion: c.config.AgentVersion,
	}, c.config.Clock.Now())
	if err != nil {
		return fmt.Errorf("transport: building hello: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return err
	}
	if err := conn.WriteFrame(hello); err != nil {
		return fmt.Errorf("transport: sending hello: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.config.HandshakeTimeout)); err != nil {
		return err
	}
	frame, err := conn.ReadFrame()
	if err != nil {
		return fmt.Errorf("transport: reading welcome: %w", err)
	}

	switch frame.Type {
	case wire.TypeWelcome:
		var welcome wire.WelcomeData
		if err := frame.Decode(&welcome); err != nil {
			return fmt.Errorf("transport: decoding welcome: %w", err)
		}
		if router := c.getRouter(); router != nil {
			router.HandleWelcome(welcome)
		}
		return nil
	case wire.TypeError:
		var data wire.ErrorData
		_ = frame.Decode(&data)
		return fmt.Errorf("transport: hub rejected hello: %s: %s", data.Code, data.Message)
	default:
		return fmt.Errorf("transport: expected welcome, got %s", frame.Type)
	}
}

// runSession owns conn for as long as it lives: one reader goroutine
// (this one, blocking) and one writer goroutine draining writeQueue,
// exactly the single-writer split hub/conn.go uses on the other end.
func (c *Client) runSession(ctx context.Context, conn *wire.Conn) {
	c.setConn(conn)
	defer c.clearConn()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.runWriter(sessionCtx, conn)
	}()

	c.runReader(conn)

	cancel()
	<-writerDone
	_ = conn.Close()
}

func (c *Client) setConn(conn *wire.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connected = true
	c.connMu.Unlock()
}

func (c *Client) clearConn() {
	c.connMu.Lock()
	c.conn = nil
	c.connected = false
	c.connMu.Unlock()
}

func (c *Client) runWriter(ctx context.Context, conn *wire.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.writeQueue:
			if c.config.WriteTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			}
			if err := conn.WriteFrame(frame); err != nil {
				c.logger.Warn("transport: write failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) runReader(conn *wire.Conn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			c.logger.Warn("transport: read failed", "error", err)
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame wire.Frame) {
	router := c.getRouter()
	if router == nil {
		return
	}
	switch frame.Type {
	case wire.TypeHeartbeatAck:
		var data wire.HeartbeatAckData
		if frame.Decode(&data) == nil {
			router.HandleHeartbeatAck(data)
		}
	case wire.TypeInventoryAck:
		var data wire.InventoryAckData
		if frame.Decode(&data) == nil {
			router.HandleInventoryAck(data)
		}
	case wire.TypeTerminalCommand:
		var data wire.TerminalCommandData
		if frame.Decode(&data) == nil {
			router.HandleTerminalCommand(data)
		}
	case wire.TypeError:
		var data wire.ErrorData
		if frame.Decode(&data) == nil {
			router.HandleError(data)
		}
	case wire.TypeWelcome:
		// Only expected during handshake; a second welcome is ignored.
	default:
		c.logger.Debug("transport: unrecognised frame type", "type", frame.Type)
	}
}
