// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/bureau/lib/clock"
	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/testutil"
	"github.com/bureau-foundation/bureau/lib/wire"
)

// recordingRouter captures every frame handed to it for assertions.
type recordingRouter struct {
	mu        sync.Mutex
	welcomes  []wire.WelcomeData
	commands  []wire.TerminalCommandData
	connected chan struct{}
}

func newRecordingRouter() *recordingRouter {
	return &recordingRouter{connected: make(chan struct{}, 8)}
}

func (r *recordingRouter) HandleWelcome(data wire.WelcomeData) {
	r.mu.Lock()
	r.welcomes = append(r.welcomes, data)
	r.mu.Unlock()
	r.connected <- struct{}{}
}
func (r *recordingRouter) HandleHeartbeatAck(wire.HeartbeatAckData)   {}
func (r *recordingRouter) HandleInventoryAck(wire.InventoryAckData)   {}
func (r *recordingRouter) HandleError(wire.ErrorData)                 {}
func (r *recordingRouter) HandleTerminalCommand(data wire.TerminalCommandData) {
	r.mu.Lock()
	r.commands = append(r.commands, data)
	r.mu.Unlock()
}

// hubServer runs a minimal hello/welcome handshake and lets the test
// body drive whatever happens afterward on the server-side conn.
func hubServer(t *testing.T, onConn func(conn *wire.Conn)) (url string, close func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := wire.NewConn(ws)
		frame, err := conn.ReadFrame()
		if err != nil || frame.Type != wire.TypeHello {
			conn.Close()
			return
		}
		welcome, err := wire.New(wire.TypeWelcome, wire.WelcomeData{ServerVersion: "test-hub"}, time.Now())
		if err != nil {
			conn.Close()
			return
		}
		if err := conn.WriteFrame(welcome); err != nil {
			conn.Close()
			return
		}
		if onConn != nil {
			onConn(conn)
		}
	}))
	return "ws" + strings.TrimPrefix(server.URL, "http"), server.Close
}

func newTestAgentID(t *testing.T) ref.AgentID {
	t.Helper()
	id, err := ref.NewAgentID("agent-1")
	if err != nil {
		t.Fatalf("NewAgentID: %v", err)
	}
	return id
}

func TestRunHandshakeSuccess(t *testing.T) {
	var serverConn struct {
		mu   sync.Mutex
		conn *wire.Conn
	}
	url, closeServer := hubServer(t, func(conn *wire.Conn) {
		serverConn.mu.Lock()
		serverConn.conn = conn
		serverConn.mu.Unlock()
		<-time.After(2 * time.Second) // keep the session open past assertions
	})
	defer closeServer()

	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	router := newRecordingRouter()
	client := New(Config{
		ServerURL: url,
		AgentID:   newTestAgentID(t),
		Secret:    "s3cret",
		Clock:     fake,
	})
	client.SetRouter(router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	testutil.RequireReceive(t, router.connected, 5*time.Second, "waiting for welcome")

	if !client.IsConnected() {
		t.Fatalf("expected client to report connected")
	}
	router.mu.Lock()
	defer router.mu.Unlock()
	if len(router.welcomes) != 1 || router.welcomes[0].ServerVersion != "test-hub" {
		t.Fatalf("unexpected welcome data: %+v", router.welcomes)
	}
}

func TestRunDeliversTerminalCommand(t *testing.T) {
	commandSent := make(chan struct{})
	url, closeServer := hubServer(t, func(conn *wire.Conn) {
		frame, err := wire.New(wire.TypeTerminalCommand, wire.TerminalCommandData{
			SessionID: "sess-1", Command: wire.TerminalCommandInit, Rows: 24, Cols: 80,
		}, time.Now())
		if err != nil {
			return
		}
		_ = conn.WriteFrame(frame)
		close(commandSent)
		<-time.After(2 * time.Second)
	})
	defer closeServer()

	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	router := newRecordingRouter()
	client := New(Config{
		ServerURL: url,
		AgentID:   newTestAgentID(t),
		Secret:    "s3cret",
		Clock:     fake,
	})
	client.SetRouter(router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	testutil.RequireReceive(t, router.connected, 5*time.Second, "waiting for welcome")
	<-commandSent

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		router.mu.Lock()
		n := len(router.commands)
		router.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	router.mu.Lock()
	defer router.mu.Unlock()
	if len(router.commands) != 1 {
		t.Fatalf("expected 1 terminal command, got %d", len(router.commands))
	}
	if router.commands[0].SessionID != "sess-1" || router.commands[0].Command != wire.TerminalCommandInit {
		t.Fatalf("unexpected command: %+v", router.commands[0])
	}
}

func TestRunRetriesWithBackoffOnDialFailure(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))

	var attempts int
	var mu sync.Mutex
	dialErrCh := make(chan struct{}, 8)

	client := New(Config{
		ServerURL:     "ws://unused.invalid/",
		AgentID:       newTestAgentID(t),
		Secret:        "s3cret",
		Clock:         fake,
		ReconnectBase: time.Second,
		ReconnectMax:  8 * time.Second,
		Dial: func(ctx context.Context, url string) (*wire.Conn, error) {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			dialErrCh <- struct{}{}
			return nil, &dialError{n: n}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	testutil.RequireReceive(t, dialErrCh, 5*time.Second, "first dial attempt")
	fake.WaitForTimers(1)
	fake.Advance(time.Second) // backoff #1 elapses -> attempt 2

	testutil.RequireReceive(t, dialErrCh, 5*time.Second, "second dial attempt")
	fake.WaitForTimers(1)
	// backoff #2 is double backoff #1 (2s) plus up to ±20% jitter, so
	// advance past the widest possible value to guarantee it elapses.
	fake.Advance(3 * time.Second)

	testutil.RequireReceive(t, dialErrCh, 5*time.Second, "third dial attempt")

	mu.Lock()
	defer mu.Unlock()
	if attempts < 3 {
		t.Fatalf("expected at least 3 dial attempts, got %d", attempts)
	}
}

type dialError struct{ n int }

func (e *dialError) Error() string { return "dial failed" }

func TestNextBackoffAppliesJitterWithinRange(t *testing.T) {
	const max = 8 * time.Second
	for i := 0; i < 100; i++ {
		got := nextBackoff(time.Second, max)
		doubled := 2 * time.Second
		lo := time.Duration(float64(doubled) * (1 - backoffJitterFraction))
		hi := time.Duration(float64(doubled) * (1 + backoffJitterFraction))
		if got < lo || got > hi {
			t.Fatalf("nextBackoff(1s, 8s) = %s, want within [%s, %s]", got, lo, hi)
		}
	}
}

func TestNextBackoffRespectsMax(t *testing.T) {
	const max = 8 * time.Second
	for i := 0; i < 100; i++ {
		got := nextBackoff(max, max)
		hi := time.Duration(float64(max) * (1 + backoffJitterFraction))
		if got < 0 || got > hi {
			t.Fatalf("nextBackoff(8s, 8s) = %s, want within [0, %s]", got, hi)
		}
	}
}
