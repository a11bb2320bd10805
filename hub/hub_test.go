// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/bureau/auth"
	"github.com/bureau-foundation/bureau/lib/clock"
	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/testutil"
	"github.com/bureau-foundation/bureau/lib/wire"
	"github.com/bureau-foundation/bureau/presence"
	"github.com/bureau-foundation/bureau/snapshot"
)

// testHarness wires a Hub behind a real WebSocket upgrade, since
// wire.Conn has no mockable seam below gorilla/websocket.
type testHarness struct {
	hub       *Hub
	authority *auth.StaticAuthority
	directory presence.Directory
	snapshots snapshot.Store
	clock     *clock.FakeClock
	server    *httptest.Server
	accepted  chan error
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	authority := auth.NewStaticAuthority()
	directory := presence.NewMemoryDirectory()
	snapshots := snapshot.NewMemoryStore()

	h := &testHarness{
		authority: authority,
		directory: directory,
		snapshots: snapshots,
		clock:     fake,
		accepted:  make(chan error, 16),
	}

	replicaID, err := ref.NewReplicaID("replica-1")
	if err != nil {
		t.Fatalf("NewReplicaID: %v", err)
	}

	h.hub = NewHub(Config{
		ReplicaID:      replicaID,
		Clock:          fake,
		Directory:      directory,
		Authority:      authority,
		Snapshots:      snapshots,
		ServerVersion:  "test",
		Heartbeat:      15 * time.Second,
		HeartbeatMiss:  35 * time.Second,
		HeartbeatCheck: 5 * time.Second,
		Inventory:      5 * time.Minute,
		Write:          10 * time.Second,
		Drain:          2 * time.Second,
	})

	upgrader := websocket.Upgrader{}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.accepted <- h.hub.Accept(context.Background(), wire.NewConn(ws))
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *testHarness) dial(t *testing.T) *wire.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return wire.NewConn(ws)
}

func (h *testHarness) registerAgent(t *testing.T, agentID string, secret string) {
	t.Helper()
	id, err := ref.NewAgentID(agentID)
	if err != nil {
		t.Fatalf("NewAgentID: %v", err)
	}
	h.authority.SetAgent(id, secret, ref.OperatorID{})
}

func TestAcceptHandshakeSuccess(t *testing.T) {
	h := newTestHarness(t)
	h.registerAgent(t, "agent-1", "s3cret")

	conn := h.dial(t)
	defer conn.Close()

	hello, err := wire.New(wire.TypeHello, wire.HelloData{AgentID: "agent-1", Secret: "s3cret", AgentVersion: "1.0"}, h.clock.Now())
	if err != nil {
		t.Fatalf("building hello: %v", err)
	}
	if err := conn.WriteFrame(hello); err != nil {
		t.Fatalf("writing hello: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	frame, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("reading welcome: %v", err)
	}
	if frame.Type != wire.TypeWelcome {
		t.Fatalf("expected welcome, got %s", frame.Type)
	}
}

func TestAcceptHandshakeBadSecret(t *testing.T) {
	h := newTestHarness(t)
	h.registerAgent(t, "agent-1", "s3cret")

	conn := h.dial(t)
	defer conn.Close()

	hello, _ := wire.New(wire.TypeHello, wire.HelloData{AgentID: "agent-1", Secret: "wrong"}, h.clock.Now())
	if err := conn.WriteFrame(hello); err != nil {
		t.Fatalf("writing hello: %v", err)
	}

	err := testutil.RequireReceive(t, h.accepted, 5*time.Second, "waiting for Accept to return")
	if err == nil {
		t.Fatalf("expected Accept to fail for bad secret")
	}
}

func TestSendReturnsErrNotHereForUnknownAgent(t *testing.T) {
	h := newTestHarness(t)
	unknown, _ := ref.NewAgentID("ghost")
	frame, _ := wire.New(wire.TypeError, wire.ErrorData{Code: "x"}, h.clock.Now())
	if err := h.hub.Send(unknown, frame); err != ErrNotHere {
		t.Fatalf("expected ErrNotHere, got %v", err)
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	h := newTestHarness(t)
	h.registerAgent(t, "agent-1", "s3cret")

	conn := h.dial(t)
	defer conn.Close()

	hello, _ := wire.New(wire.TypeHello, wire.HelloData{AgentID: "agent-1", Secret: "s3cret"}, h.clock.Now())
	_ = conn.WriteFrame(hello)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.ReadFrame(); err != nil {
		t.Fatalf("reading welcome: %v", err)
	}

	beat, _ := wire.New(wire.TypeHeartbeat, wire.HeartbeatData{Status: "ok"}, h.clock.Now())
	if err := conn.WriteFrame(beat); err != nil {
		t.Fatalf("writing heartbeat: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	frame, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("reading heartbeat_ack: %v", err)
	}
	if frame.Type != wire.TypeHeartbeatAck {
		t.Fatalf("expected heartbeat_ack, got %s", frame.Type)
	}
}
