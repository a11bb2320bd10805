// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/bureau/lib/clock"
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

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func waitForCount(t *testing.T, s *recordingSender, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.count() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", n, s.count())
}

func TestRunSendsInitialHeartbeatImmediately(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	sender := &recordingSender{}
	runner := New(Config{Sender: sender, Clock: fake, Interval: 15 * time.Second, AgentVersion: "1.2.3"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	waitForCount(t, sender, 1)

	var data wire.HeartbeatData
	if err := sender.frames[0].Decode(&data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.AgentVersion != "1.2.3" || data.UptimeS != 0 {
		t.Fatalf("unexpected initial heartbeat: %+v", data)
	}
}

func TestRunSendsOnEveryTick(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	sender := &recordingSender{}
	runner := New(Config{Sender: sender, Clock: fake, Interval: 15 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	waitForCount(t, sender, 1)
	fake.WaitForTimers(1)
	fake.Advance(15 * time.Second)
	waitForCount(t, sender, 2)
	fake.WaitForTimers(1)
	fake.Advance(15 * time.Second)
	waitForCount(t, sender, 3)

	var data wire.HeartbeatData
	if err := sender.frames[2].Decode(&data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.UptimeS != 30 {
		t.Fatalf("expected uptime 30s on third heartbeat, got %d", data.UptimeS)
	}
}

func TestSetIntervalTakesEffectOnNextTick(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	sender := &recordingSender{}
	runner := New(Config{Sender: sender, Clock: fake, Interval: 15 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	waitForCount(t, sender, 1)
	runner.SetInterval(5 * time.Second)
	fake.WaitForTimers(1)
	fake.Advance(15 * time.Second) // still fires once at the old deadline
	waitForCount(t, sender, 2)
	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second) // now on the new interval
	waitForCount(t, sender, 3)
}
