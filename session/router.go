// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"

	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/wire"
	"github.com/bureau-foundation/bureau/presence"
)

// HandleTerminalReady implements hub.SessionRouter.
func (b *Broker) HandleTerminalReady(agentID ref.AgentID, data wire.TerminalReadyData) {
	sess, ok := b.get(data.SessionID)
	if !ok {
		return
	}
	sess.markReady()
}

// HandleTerminalOutput implements hub.SessionRouter: output produced
// by a PTY on this replica's agent transport, forwarded to whichever
// replica holds the operator.
func (b *Broker) HandleTerminalOutput(agentID ref.AgentID, data wire.TerminalOutputData) {
	sess, ok := b.get(data.SessionID)
	if !ok {
		return
	}
	sess.touch(b.config.Clock.Now())

	for _, item := range sess.acceptOutput(data.Seq, data) {
		b.deliverOutputLocal(sess, item)
	}
}

func (b *Broker) deliverOutputLocal(sess *session, data wire.TerminalOutputData) {
	if sess.operatorConn != nil {
		frame, err := wire.New(wire.TypeTerminalOutput, wire.OperatorOutputData{
			SessionID: data.SessionID, Output: data.Data,
		}, b.config.Clock.Now())
		if err != nil {
			return
		}
		_ = sess.writeToOperator(frame)
		return
	}

	if sess.remoteOperatorReplica.IsZero() {
		return
	}
	payload, err := json.Marshal(outputPayload{Output: data})
	if err != nil {
		return
	}
	_ = b.config.Directory.Deliver(context.Background(), sess.remoteOperatorReplica, presence.Envelope{
		Kind: presence.EnvelopeTerminalOutput, SessionID: sess.id, AgentID: sess.agentID, Seq: data.Seq, Payload: payload,
	})
}

// HandleTerminalError implements hub.SessionRouter.
func (b *Broker) HandleTerminalError(agentID ref.AgentID, data wire.TerminalErrorData) {
	sess, ok := b.get(data.SessionID)
	if !ok {
		return
	}
	if sess.operatorConn != nil {
		frame, err := wire.New(wire.TypeError, wire.ErrorData{Code: wire.ErrorCodeAgentOffline, Message: data.Reason}, b.config.Clock.Now())
		if err == nil {
			_ = sess.writeToOperator(frame)
		}
	}
	b.teardown(context.Background(), sess, data.Reason, notifyOperatorOnly)
}

// HandleTerminalClosed implements hub.SessionRouter: the agent's PTY
// has already torn itself down.
func (b *Broker) HandleTerminalClosed(agentID ref.AgentID, data wire.TerminalClosedData) {
	sess, ok := b.get(data.SessionID)
	if !ok {
		return
	}
	b.teardown(context.Background(), sess, "agent_closed", notifyOperatorOnly)
}

// HandleAgentDisconnected implements hub.SessionRouter: the agent
// transport this replica owned is gone. Every session homed on that
// agent is torn down with the operator side notified.
func (b *Broker) HandleAgentDisconnected(agentID ref.AgentID) {
	b.mu.RLock()
	affected := make([]*session, 0)
	for _, sess := range b.sessions {
		if sess.isAgentHome && sess.agentID.Equal(agentID) {
			affected = append(affected, sess)
		}
	}
	b.mu.RUnlock()

	for _, sess := range affected {
		b.teardown(context.Background(), sess, "agent_offline", notifyOperatorOnly)
	}
}

// HandleEnvelope implements hub.EnvelopeForwarder: cross-replica
// session traffic relayed through the Presence Directory.
func (b *Broker) HandleEnvelope(ctx context.Context, envelope presence.Envelope) {
	switch envelope.Kind {
	case presence.EnvelopeTerminalOpen:
		b.handleRemoteOpen(ctx, envelope)
	case presence.EnvelopeTerminalCommand:
		b.handleRemoteCommand(ctx, envelope)
	case presence.EnvelopeTerminalOutput:
		b.handleRemoteOutput(envelope)
	case presence.EnvelopeSessionClosed:
		b.handleRemoteClosed(ctx, envelope)
	}
}

func (b *Broker) handleRemoteOpen(ctx context.Context, envelope presence.Envelope) {
	var payload openPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return
	}
	returnTo, err := ref.NewReplicaID(payload.ReturnTo)
	if err != nil {
		return
	}

	now := b.config.Clock.Now()
	sess := newSession(envelope.SessionID, envelope.AgentID, ref.OperatorID{}, now)
	sess.agentReplica = b.config.ReplicaID
	sess.isAgentHome = true
	sess.remoteOperatorReplica = returnTo
	b.store(sess)

	cmd := wire.TerminalCommandData{
		SessionID: envelope.SessionID.String(), Command: wire.TerminalCommandInit,
		Rows: payload.Rows, Cols: payload.Cols, Shell: payload.Shell,
	}
	if err := b.sendLocal(envelope.AgentID, cmd); err != nil {
		b.teardown(ctx, sess, "agent_offline", notifyOperatorOnly)
	}
	go b.runIdleWatch(sess)
}

func (b *Broker) handleRemoteCommand(ctx context.Context, envelope presence.Envelope) {
	sess, ok := b.get(envelope.SessionID.String())
	if !ok {
		return
	}
	var payload commandPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return
	}
	sess.touch(b.config.Clock.Now())
	for _, cmd := range sess.acceptCommand(envelope.Seq, payload.Command) {
		_ = b.sendLocal(envelope.AgentID, cmd)
	}
}

func (b *Broker) handleRemoteOutput(envelope presence.Envelope) {
	sess, ok := b.get(envelope.SessionID.String())
	if !ok {
		return
	}
	var payload outputPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return
	}
	sess.touch(b.config.Clock.Now())
	for _, data := range sess.acceptOutput(envelope.Seq, payload.Output) {
		b.deliverOutputLocal(sess, data)
	}
}

func (b *Broker) handleRemoteClosed(ctx context.Context, envelope presence.Envelope) {
	sess, ok := b.get(envelope.SessionID.String())
	if !ok {
		return
	}
	var payload closedPayload
	_ = json.Unmarshal(envelope.Payload, &payload)
	reason := payload.Reason
	if reason == "" {
		reason = "remote_closed"
	}
	side := notifyOperatorOnly
	if sess.operatorConn == nil {
		side = notifyAgentOnly
	}
	b.teardown(ctx, sess, reason, side)
}
