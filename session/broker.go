// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/bureau/auth"
	"github.com/bureau-foundation/bureau/hub"
	"github.com/bureau-foundation/bureau/internal/metrics"
	"github.com/bureau-foundation/bureau/lib/clock"
	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/wire"
	"github.com/bureau-foundation/bureau/presence"
)

var (
	// ErrNotOwner indicates the requesting operator does not own the
	// target agent.
	ErrNotOwner = errors.New("session: operator does not own agent")

	// ErrAgentOffline indicates the target agent has no live transport
	// anywhere in the fleet.
	ErrAgentOffline = errors.New("session: agent is offline")

	// ErrTimeout indicates terminal_ready never arrived within the
	// open timeout.
	ErrTimeout = errors.New("session: timed out waiting for terminal_ready")
)

const openTimeout = 10 * time.Second

// Config configures a Broker.
type Config struct {
	ReplicaID   ref.ReplicaID
	Hub         hub.Sender
	Directory   presence.Directory
	Authority   auth.Authority
	Clock       clock.Clock
	Logger      *slog.Logger
	SessionIdle time.Duration

	// Metrics receives instrumentation events. Nil disables metrics.
	Metrics *metrics.Metrics
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Broker implements the Session Broker (spec §4.3). It satisfies
// hub.SessionRouter and hub.EnvelopeForwarder so the Hub can hand it
// both locally-dispatched frames and cross-replica envelopes.
type Broker struct {
	config Config
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewBroker constructs a Broker. Wire it into a Hub with
// hub.SetRouter after both are constructed.
func NewBroker(config Config) *Broker {
	if config.Clock == nil {
		panic("session: Config.Clock is required")
	}
	if config.SessionIdle <= 0 {
		config.SessionIdle = 30 * time.Minute
	}
	return &Broker{
		config:   config,
		logger:   config.logger(),
		sessions: make(map[string]*session),
	}
}

func (b *Broker) get(sessionID string) (*session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[sessionID]
	return s, ok
}

func (b *Broker) store(s *session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[s.id.String()] = s
}

func (b *Broker) remove(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
}

// Open authorises operatorID against agentID, locates the agent,
// requests a PTY, and blocks until terminal_ready or failure. On
// success it returns the new session's ID and spawns the goroutines
// that drive the session's active state until teardown.
func (b *Broker) Open(ctx context.Context, operatorConn *wire.Conn, agentID ref.AgentID, operatorID ref.OperatorID) (ref.SessionID, error) {
	owns, err := b.config.Authority.Owns(ctx, operatorID, agentID)
	if err != nil {
		return ref.SessionID{}, fmt.Errorf("session: checking ownership: %w", err)
	}
	if !owns {
		return ref.SessionID{}, ErrNotOwner
	}

	entry, err := b.config.Directory.Lookup(ctx, agentID)
	if err != nil || entry.Status != presence.StatusOnline {
		return ref.SessionID{}, ErrAgentOffline
	}

	_ = operatorConn.SetReadDeadline(time.Now().Add(openTimeout))
	frame, err := operatorConn.ReadFrame()
	if err != nil {
		return ref.SessionID{}, fmt.Errorf("session: reading open frame: %w", err)
	}
	if frame.Type != wire.TypeOpen {
		return ref.SessionID{}, fmt.Errorf("session: expected open frame, got %s", frame.Type)
	}
	var open wire.OperatorOpenData
	if err := frame.Decode(&open); err != nil {
		return ref.SessionID{}, fmt.Errorf("session: decoding open frame: %w", err)
	}

	now := b.config.Clock.Now()
	sessionID := ref.NewSessionID()
	sess := newSession(sessionID, agentID, operatorID, now)
	sess.agentReplica = entry.ReplicaID
	sess.isAgentHome = entry.ReplicaID.Equal(b.config.ReplicaID)
	sess.operatorConn = operatorConn
	b.store(sess)

	if err := b.sendInit(ctx, sess, open); err != nil {
		b.remove(sessionID.String())
		return ref.SessionID{}, fmt.Errorf("session: requesting PTY: %w", err)
	}

	select {
	case <-sess.ready:
	case <-time.After(openTimeout):
		b.remove(sessionID.String())
		return ref.SessionID{}, ErrTimeout
	case <-ctx.Done():
		b.remove(sessionID.String())
		return ref.SessionID{}, ctx.Err()
	}

	b.config.Metrics.SessionOpened()
	go b.runOperatorReader(sess)
	go b.runIdleWatch(sess)
	return sessionID, nil
}

// sendInit issues the terminal_command{init} that opens the PTY,
// locally if this replica owns the agent transport, else via a
// terminal_open envelope naming this replica as the return address.
func (b *Broker) sendInit(ctx context.Context, sess *session, open wire.OperatorOpenData) error {
	cmd := wire.TerminalCommandData{
		SessionID: sess.id.String(),
		Command:   wire.TerminalCommandInit,
		Rows:      open.Rows,
		Cols:      open.Cols,
		Shell:     open.Shell,
	}
	if sess.isAgentHome {
		return b.sendLocal(sess.agentID, cmd)
	}

	payload, err := json.Marshal(openPayload{Rows: open.Rows, Cols: open.Cols, Shell: open.Shell, ReturnTo: b.config.ReplicaID.String()})
	if err != nil {
		return err
	}
	return b.config.Directory.Deliver(ctx, sess.agentReplica, presence.Envelope{
		Kind: presence.EnvelopeTerminalOpen, SessionID: sess.id, AgentID: sess.agentID, Payload: payload,
	})
}

func (b *Broker) sendLocal(agentID ref.AgentID, cmd wire.TerminalCommandData) error {
	frame, err := wire.New(wire.TypeTerminalCommand, cmd, b.config.Clock.Now())
	if err != nil {
		return err
	}
	return b.config.Hub.Send(agentID, frame)
}

// dispatchCommand forwards an operator-originated command (input,
// resize, close) toward the agent, assigning the next per-session
// sequence number so the receiving replica can reorder.
func (b *Broker) dispatchCommand(ctx context.Context, sess *session, cmd wire.TerminalCommandData) error {
	cmd.Seq = sess.nextCommandSeq()
	if sess.isAgentHome {
		return b.sendLocal(sess.agentID, cmd)
	}
	payload, err := json.Marshal(commandPayload{Command: cmd})
	if err != nil {
		return err
	}
	return b.config.Directory.Deliver(ctx, sess.agentReplica, presence.Envelope{
		Kind: presence.EnvelopeTerminalCommand, SessionID: sess.id, AgentID: sess.agentID, Seq: cmd.Seq, Payload: payload,
	})
}

// runOperatorReader is the operator-side half's read loop: translate
// input/resize frames into terminal_command and forward them, until
// the operator disconnects or the session is torn down.
func (b *Broker) runOperatorReader(sess *session) {
	ctx := context.Background()
	for {
		select {
		case <-sess.done:
			return
		default:
		}

		frame, err := sess.operatorConn.ReadFrame()
		if err != nil {
			b.teardown(ctx, sess, "operator_disconnect", notifyAgentOnly)
			return
		}
		sess.touch(b.config.Clock.Now())

		switch frame.Type {
		case wire.TypeInput:
			var data wire.OperatorInputData
			if err := frame.Decode(&data); err != nil {
				continue
			}
			_ = b.dispatchCommand(ctx, sess, wire.TerminalCommandData{
				SessionID: sess.id.String(), Command: wire.TerminalCommandInput, Data: data.Data,
			})
		case wire.TypeResize:
			var data wire.OperatorResizeData
			if err := frame.Decode(&data); err != nil {
				continue
			}
			_ = b.dispatchCommand(ctx, sess, wire.TerminalCommandData{
				SessionID: sess.id.String(), Command: wire.TerminalCommandResize, Rows: data.Rows, Cols: data.Cols,
			})
		}
	}
}

// runIdleWatch tears down sess if no activity is observed for
// config.SessionIdle.
func (b *Broker) runIdleWatch(sess *session) {
	ticker := b.config.Clock.NewTicker(b.config.SessionIdle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-sess.done:
			return
		case now := <-ticker.C:
			if sess.idleSince(now) > b.config.SessionIdle {
				b.teardown(context.Background(), sess, "session_idle", notifyBoth)
				return
			}
		}
	}
}

// teardown side selects which halves of the session still need to be
// told to close — the side that already observed the trigger (e.g.
// the agent that just sent terminal_closed) must not be re-notified.
type teardownSide int

const (
	notifyBoth teardownSide = iota
	notifyAgentOnly
	notifyOperatorOnly
)

// teardown ends sess: closes the local operator connection's session
// view, asks the agent to close its PTY (directly or via envelope),
// and notifies the remote half if this session spans two replicas —
// skipping whichever side is excluded by side.
func (b *Broker) teardown(ctx context.Context, sess *session, reason string, side teardownSide) {
	sess.markDone()
	b.remove(sess.id.String())
	b.config.Metrics.SessionClosed()

	if side != notifyAgentOnly {
		if sess.operatorConn != nil {
			frame, err := wire.New(wire.TypeTerminalClosed, wire.TerminalClosedData{SessionID: sess.id.String()}, b.config.Clock.Now())
			if err == nil {
				_ = sess.writeToOperator(frame)
			}
		} else if !sess.remoteOperatorReplica.IsZero() {
			payload, err := json.Marshal(closedPayload{Reason: reason})
			if err == nil {
				_ = b.config.Directory.Deliver(ctx, sess.remoteOperatorReplica, presence.Envelope{
					Kind: presence.EnvelopeSessionClosed, SessionID: sess.id, AgentID: sess.agentID, Payload: payload,
				})
			}
		}
	}

	if side != notifyOperatorOnly {
		if sess.isAgentHome {
			_ = b.sendLocal(sess.agentID, wire.TerminalCommandData{SessionID: sess.id.String(), Command: wire.TerminalCommandClose})
		} else {
			payload, err := json.Marshal(commandPayload{Command: wire.TerminalCommandData{SessionID: sess.id.String(), Command: wire.TerminalCommandClose}})
			if err == nil {
				_ = b.config.Directory.Deliver(ctx, sess.agentReplica, presence.Envelope{
					Kind: presence.EnvelopeTerminalCommand, SessionID: sess.id, AgentID: sess.agentID, Payload: payload,
				})
			}
		}
	}

	b.logger.Info("session closed", "session_id", sess.id, "agent_id", sess.agentID, "reason", reason)
}
