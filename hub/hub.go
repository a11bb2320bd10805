// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/wire"
	"github.com/bureau-foundation/bureau/presence"
)

// Hub owns one transport per agent locally homed on this replica
// (spec §4.2). Construct once at replica startup, call Run in a
// goroutine to pump cross-replica envelopes, then Accept each new
// transport as it completes its WebSocket upgrade.
type Hub struct {
	config Config
	logger *slog.Logger

	mu     sync.RWMutex
	conns  map[string]*agentConn
	router SessionRouter

	sub presence.Subscription

	shuttingDown chan struct{}
	shutdownOnce sync.Once
}

// NewHub constructs a Hub. config.Directory, config.Authority, and
// config.Snapshots must be non-nil.
func NewHub(config Config) *Hub {
	if config.Clock == nil {
		panic("hub: Config.Clock is required")
	}
	return &Hub{
		config:       config,
		logger:       config.logger(),
		conns:        make(map[string]*agentConn),
		shuttingDown: make(chan struct{}),
	}
}

// SetRouter installs the Session Broker as the recipient of
// session-scoped inbound frames. Must be called before Accept is used
// concurrently with frame delivery — typically right after
// constructing both the Hub and the Broker at startup.
func (h *Hub) SetRouter(router SessionRouter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.router = router
}

// Run subscribes to this replica's Presence Directory inbox and
// fleet-wide presence-events channel, dispatching evict requests and
// cross-replica terminal envelopes until ctx is cancelled. Intended to
// run in its own goroutine for the lifetime of the replica.
func (h *Hub) Run(ctx context.Context) error {
	sub, err := h.config.Directory.Subscribe(ctx, h.config.ReplicaID)
	if err != nil {
		return fmt.Errorf("hub: subscribing replica inbox: %w", err)
	}
	h.mu.Lock()
	h.sub = sub
	h.mu.Unlock()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case envelope, ok := <-sub.Envelopes():
			if !ok {
				return nil
			}
			h.handleEnvelope(ctx, envelope)
		case <-sub.Changes():
			// Presence status transitions are informational at this
			// layer; the authoritative check happens via Lookup at
			// session-open time. Draining keeps the channel unblocked.
		}
	}
}

func (h *Hub) handleEnvelope(ctx context.Context, envelope presence.Envelope) {
	switch envelope.Kind {
	case presence.EnvelopeEvict:
		h.Close(envelope.AgentID, wire.CloseReasonDuplicate)
	case presence.EnvelopeTerminalOpen, presence.EnvelopeTerminalCommand, presence.EnvelopeTerminalOutput, presence.EnvelopeSessionClosed:
		h.mu.RLock()
		router := h.router
		h.mu.RUnlock()
		if router == nil {
			return
		}
		// These envelope kinds carry session-broker-owned payloads;
		// the broker itself decodes envelope.Payload since only it
		// knows the concrete shape per kind.
		if forwarder, ok := router.(EnvelopeForwarder); ok {
			forwarder.HandleEnvelope(ctx, envelope)
		}
	}
}

// Accept performs the handshake in spec §4.2 steps 1-7 on a freshly
// established transport, then blocks driving that transport's reader
// until it closes.
func (h *Hub) Accept(ctx context.Context, transport *wire.Conn) error {
	logger := h.logger.With("remote", transport.RemoteAddr())

	_ = transport.SetReadDeadline(time.Now().Add(h.config.HeartbeatMiss))
	frame, err := transport.ReadFrame()
	if err != nil {
		return fmt.Errorf("hub: reading hello: %w", err)
	}
	if frame.Type != wire.TypeHello {
		_ = transport.CloseWithReason(wire.CloseReasonAuth)
		return fmt.Errorf("hub: expected hello, got %s", frame.Type)
	}

	var hello wire.HelloData
	if err := frame.Decode(&hello); err != nil {
		_ = transport.CloseWithReason(wire.CloseReasonAuth)
		return fmt.Errorf("hub: decoding hello: %w", err)
	}

	agentID, err := ref.NewAgentID(hello.AgentID)
	if err != nil {
		_ = transport.CloseWithReason(wire.CloseReasonAuth)
		return fmt.Errorf("hub: invalid agent_id in hello: %w", err)
	}
	logger = logger.With("agent_id", agentID)

	if err := h.config.Authority.AuthenticateAgent(ctx, agentID, hello.Secret); err != nil {
		_ = transport.CloseWithReason(wire.CloseReasonAuth)
		return fmt.Errorf("hub: authentication failed for %s: %w", agentID, err)
	}

	now := h.config.Clock.Now()

	// Step 3: evict a prior owner on a different replica before this
	// registration proceeds. Register always wins unconditionally, so
	// eviction here is a best-effort courtesy notification, not a
	// precondition — spec §4.2 requires the Hub to attempt it, not
	// that it succeed before continuing.
	if prior, err := h.config.Directory.Lookup(ctx, agentID); err == nil && !prior.ReplicaID.Equal(h.config.ReplicaID) {
		evictCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_ = h.config.Directory.Deliver(evictCtx, prior.ReplicaID, presence.Envelope{
			Kind: presence.EnvelopeEvict, AgentID: agentID,
		})
		cancel()
	}

	if err := h.config.Directory.Register(ctx, agentID, h.config.ReplicaID, now); err != nil {
		if presence.IsUnavailable(err) {
			h.config.Metrics.PresenceError()
		}
		_ = transport.CloseWithReason(wire.CloseReasonInternal)
		return fmt.Errorf("hub: registering %s: %w", agentID, err)
	}

	conn := newAgentConn(agentID, transport, h.config.Clock, now)

	h.mu.Lock()
	if existing, ok := h.conns[agentID.String()]; ok {
		existing.beginClose(wire.CloseReasonDuplicate)
	}
	h.conns[agentID.String()] = conn
	h.mu.Unlock()

	go conn.runWriter(h.config.Write)

	welcome, err := wire.New(wire.TypeWelcome, wire.WelcomeData{
		ServerVersion:      h.config.ServerVersion,
		HeartbeatIntervalS: int(h.config.Heartbeat.Seconds()),
		InventoryIntervalS: int(h.config.Inventory.Seconds()),
	}, now)
	if err != nil {
		return fmt.Errorf("hub: building welcome: %w", err)
	}
	if err := conn.enqueue(welcome); err != nil {
		h.deregisterAndRemove(agentID)
		return fmt.Errorf("hub: sending welcome to %s: %w", agentID, err)
	}

	h.config.Metrics.AgentConnected()
	logger.Info("agent connected")
	h.superviseAndRead(ctx, conn)
	return nil
}

// superviseAndRead runs the heartbeat-timeout supervisor and blocks
// reading frames until the connection closes, then tears it down.
func (h *Hub) superviseAndRead(ctx context.Context, c *agentConn) {
	stopSupervisor := make(chan struct{})
	var supervisorWG sync.WaitGroup
	supervisorWG.Add(1)
	go func() {
		defer supervisorWG.Done()
		h.runSupervisor(c, stopSupervisor)
	}()

	h.runReader(ctx, c)
	close(stopSupervisor)
	supervisorWG.Wait()

	reason := c.reasonLocked()
	if reason == "" {
		reason = wire.CloseReasonNormal
	}
	_ = c.conn.CloseWithReason(reason)
	h.deregisterAndRemove(c.agentID)
	h.config.Metrics.AgentDisconnected()
	h.withRouter(func(r SessionRouter) { r.HandleAgentDisconnected(c.agentID) })
	h.logger.Info("agent disconnected", "agent_id", c.agentID, "reason", reason)
}

func (h *Hub) runSupervisor(c *agentConn, stop <-chan struct{}) {
	ticker := h.config.Clock.NewTicker(h.config.HeartbeatCheck)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case now := <-ticker.C:
			if c.heartbeatAge(now) > h.config.HeartbeatMiss {
				c.beginClose(wire.CloseReasonStalled)
				return
			}
		}
	}
}

func (h *Hub) runReader(ctx context.Context, c *agentConn) {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(h.config.HeartbeatMiss))
		frame, err := c.conn.ReadFrame()
		if err != nil {
			c.beginClose(wire.CloseReasonNormal)
			return
		}

		now := h.config.Clock.Now()
		if !frame.CheckSkew(now) {
			h.sendError(c, wire.ErrorCodeInvalidMessage, "timestamp outside tolerance")
			c.beginClose(wire.CloseReasonNormal)
			return
		}

		h.dispatch(ctx, c, frame, now)
	}
}

func (h *Hub) deregisterAndRemove(agentID ref.AgentID) {
	h.mu.Lock()
	delete(h.conns, agentID.String())
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.config.Directory.Deregister(ctx, agentID, h.config.ReplicaID)
}

// Send enqueues frame for delivery to agentID's locally-homed
// transport (spec §4.2 send interface).
func (h *Hub) Send(agentID ref.AgentID, frame wire.Frame) error {
	h.mu.RLock()
	conn, ok := h.conns[agentID.String()]
	h.mu.RUnlock()
	if !ok {
		return ErrNotHere
	}
	if err := conn.enqueue(frame); err != nil {
		return err
	}
	h.config.Metrics.FrameSent(string(frame.Type))
	return nil
}

// Close initiates a graceful close of agentID's locally-homed
// transport, if any, with the given reason.
func (h *Hub) Close(agentID ref.AgentID, reason string) {
	h.mu.RLock()
	conn, ok := h.conns[agentID.String()]
	h.mu.RUnlock()
	if ok {
		conn.beginClose(reason)
	}
}

// Shutdown stops accepting new work is the caller's responsibility
// (via its HTTP server); Shutdown here drains existing transports:
// send a graceful close to each, wait up to config.Drain, then let
// their reader/writer goroutines unwind and deregister.
func (h *Hub) Shutdown(ctx context.Context) {
	h.shutdownOnce.Do(func() { close(h.shuttingDown) })

	h.mu.RLock()
	conns := make([]*agentConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.beginClose(wire.CloseReasonShutdown)
	}

	drain := h.config.Drain
	if drain <= 0 {
		drain = 10 * time.Second
	}
	deadline := time.Now().Add(drain)
	for {
		h.mu.RLock()
		remaining := len(h.conns)
		h.mu.RUnlock()
		if remaining == 0 || time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (h *Hub) sendError(c *agentConn, code, message string) {
	frame, err := wire.New(wire.TypeError, wire.ErrorData{Code: code, Message: message}, h.config.Clock.Now())
	if err != nil {
		return
	}
	_ = c.enqueue(frame)
}

// EnvelopeForwarder is implemented by SessionRouter implementations
// that also need raw cross-replica presence.Envelope values (rather
// than the decoded wire payloads Hub already unpacks for local
// dispatch), since only the Broker knows how to decode a given
// envelope kind's Payload.
type EnvelopeForwarder interface {
	HandleEnvelope(ctx context.Context, envelope presence.Envelope)
}
