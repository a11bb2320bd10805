// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"context"
	"errors"
	"time"

	"github.com/bureau-foundation/bureau/lib/wire"
	"github.com/bureau-foundation/bureau/presence"
	"github.com/bureau-foundation/bureau/snapshot"
)

// dispatch routes one inbound frame from an agent transport per the
// table in spec §4.2. Frame types the hub itself does not own are
// handed to the Session Broker via SessionRouter.
func (h *Hub) dispatch(ctx context.Context, c *agentConn, frame wire.Frame, now time.Time) {
	h.config.Metrics.FrameReceived(string(frame.Type))
	switch frame.Type {
	case wire.TypeHeartbeat:
		h.dispatchHeartbeat(ctx, c, frame, now)
	case wire.TypeInventory:
		h.dispatchInventory(ctx, c, frame, now)
	case wire.TypeTerminalOutput:
		var data wire.TerminalOutputData
		if h.decodeOrError(c, frame, &data) {
			h.withRouter(func(r SessionRouter) { r.HandleTerminalOutput(c.agentID, data) })
		}
	case wire.TypeTerminalReady:
		var data wire.TerminalReadyData
		if h.decodeOrError(c, frame, &data) {
			h.withRouter(func(r SessionRouter) { r.HandleTerminalReady(c.agentID, data) })
		}
	case wire.TypeTerminalError:
		var data wire.TerminalErrorData
		if h.decodeOrError(c, frame, &data) {
			h.withRouter(func(r SessionRouter) { r.HandleTerminalError(c.agentID, data) })
		}
	case wire.TypeTerminalClosed:
		var data wire.TerminalClosedData
		if h.decodeOrError(c, frame, &data) {
			h.withRouter(func(r SessionRouter) { r.HandleTerminalClosed(c.agentID, data) })
		}
	case wire.TypeCommandResponse:
		// No command-issuing flow is defined by the specification yet
		// (see the Open Question on server-initiated config changes);
		// correlation by MessageID is left for that future command
		// kind to implement against. Until then, responses are simply
		// observed and dropped.
	default:
		h.sendError(c, wire.ErrorCodeInvalidMessage, "unrecognised frame type: "+string(frame.Type))
	}
}

func (h *Hub) dispatchHeartbeat(ctx context.Context, c *agentConn, frame wire.Frame, now time.Time) {
	var data wire.HeartbeatData
	if !h.decodeOrError(c, frame, &data) {
		return
	}
	c.recordHeartbeat(now)

	if err := h.config.Directory.Touch(ctx, c.agentID, h.config.ReplicaID, now); err != nil {
		if errors.Is(err, presence.ErrEvicted) {
			// ErrEvicted means a newer registration took ownership while
			// this transport kept running; close it so the agent
			// reconnects and re-registers cleanly (spec invariant I1).
			c.beginClose(wire.CloseReasonDuplicate)
			return
		}
		// Any other Touch failure leaves the transport up and the
		// heartbeat is still acknowledged.
		if presence.IsUnavailable(err) {
			h.config.Metrics.PresenceError()
		}
	}

	ack, err := wire.New(wire.TypeHeartbeatAck, wire.HeartbeatAckData{ServerTimeS: now.Unix()}, now)
	if err != nil {
		return
	}
	_ = c.enqueue(ack)
}

func (h *Hub) dispatchInventory(ctx context.Context, c *agentConn, frame wire.Frame, now time.Time) {
	if len(frame.Data) > wire.MaxInventoryFrameBytes {
		h.sendError(c, wire.ErrorCodeInvalidMessage, "inventory frame exceeds size limit")
		return
	}

	var data wire.InventoryData
	if !h.decodeOrError(c, frame, &data) {
		return
	}

	changed, err := h.config.Snapshots.PutInventory(ctx, snapshot.Snapshot{
		AgentID:     c.agentID,
		CollectedAt: now,
		Data:        data,
	})
	if err != nil {
		h.sendError(c, wire.ErrorCodeUnavailable, "inventory store unavailable")
		return
	}

	ack, err := wire.New(wire.TypeInventoryAck, wire.InventoryAckData{Received: true, Changed: changed}, now)
	if err != nil {
		return
	}
	_ = c.enqueue(ack)
}

func (h *Hub) decodeOrError(c *agentConn, frame wire.Frame, dst any) bool {
	if err := frame.Decode(dst); err != nil {
		h.sendError(c, wire.ErrorCodeInvalidMessage, "malformed "+string(frame.Type)+" payload")
		return false
	}
	return true
}

func (h *Hub) withRouter(f func(SessionRouter)) {
	h.mu.RLock()
	router := h.router
	h.mu.RUnlock()
	if router != nil {
		f(router)
	}
}
