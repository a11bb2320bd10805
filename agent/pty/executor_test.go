// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pty

import (
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/bureau/lib/clock"
	"github.com/bureau-foundation/bureau/lib/testutil"
	"github.com/bureau-foundation/bureau/lib/wire"
)

type recordingSender struct {
	mu     sync.Mutex
	frames []wire.Frame
}

func (s *recordingSender) Send(frame wire.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSender) framesOfType(t wire.Type) []wire.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []wire.Frame
	for _, f := range s.frames {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

func waitForFrames(t *testing.T, s *recordingSender, frameType wire.Type, n int) []wire.Frame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if frames := s.framesOfType(frameType); len(frames) >= n {
			return frames
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s frames", n, frameType)
	return nil
}

func TestInitInputAndCloseRoundTrip(t *testing.T) {
	sender := &recordingSender{}
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	exec := New(Config{Sender: sender, Clock: fake, DefaultShell: "/bin/sh"})

	exec.HandleTerminalCommand(wire.TerminalCommandData{
		SessionID: "sess-1", Command: wire.TerminalCommandInit, Rows: 24, Cols: 80,
	})
	waitForFrames(t, sender, wire.TypeTerminalReady, 1)

	echoed := wire.EncodeBinary([]byte("echo hi\n"))
	exec.HandleTerminalCommand(wire.TerminalCommandData{
		SessionID: "sess-1", Command: wire.TerminalCommandInput, Data: echoed,
	})

	waitForFrames(t, sender, wire.TypeTerminalOutput, 1)

	// close sends SIGTERM and then waits terminateGrace on the fake
	// clock before killing the shell, so the clock must be advanced.
	closed := make(chan struct{})
	go func() {
		exec.HandleTerminalCommand(wire.TerminalCommandData{SessionID: "sess-1", Command: wire.TerminalCommandClose})
		close(closed)
	}()
	fake.WaitForTimers(1)
	fake.Advance(terminateGrace)
	testutil.RequireClosed(t, closed, 5*time.Second, "waiting for close to return")
	waitForFrames(t, sender, wire.TypeTerminalClosed, 1)
}

func TestDoubleInitIsRejected(t *testing.T) {
	sender := &recordingSender{}
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	exec := New(Config{Sender: sender, Clock: fake, DefaultShell: "/bin/sh"})

	exec.HandleTerminalCommand(wire.TerminalCommandData{SessionID: "sess-1", Command: wire.TerminalCommandInit})
	waitForFrames(t, sender, wire.TypeTerminalReady, 1)

	exec.HandleTerminalCommand(wire.TerminalCommandData{SessionID: "sess-1", Command: wire.TerminalCommandInit})
	frames := waitForFrames(t, sender, wire.TypeTerminalError, 1)

	var data wire.TerminalErrorData
	if err := frames[0].Decode(&data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Reason != wire.TerminalErrorDoubleInit {
		t.Fatalf("expected double_init, got %q", data.Reason)
	}

	closed := make(chan struct{})
	go func() {
		exec.HandleTerminalCommand(wire.TerminalCommandData{SessionID: "sess-1", Command: wire.TerminalCommandClose})
		close(closed)
	}()
	fake.WaitForTimers(1)
	fake.Advance(terminateGrace)
	testutil.RequireClosed(t, closed, 5*time.Second, "waiting for close to return")
}

func TestInputOnUnknownSessionReportsError(t *testing.T) {
	sender := &recordingSender{}
	exec := New(Config{Sender: sender, Clock: clock.Fake(time.Unix(1_700_000_000, 0))})

	exec.HandleTerminalCommand(wire.TerminalCommandData{SessionID: "missing", Command: wire.TerminalCommandInput, Data: "aGk="})
	frames := waitForFrames(t, sender, wire.TypeTerminalError, 1)

	var data wire.TerminalErrorData
	if err := frames[0].Decode(&data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Reason != wire.TerminalErrorUnknownSession {
		t.Fatalf("expected unknown_session, got %q", data.Reason)
	}
}
