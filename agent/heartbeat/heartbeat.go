// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/bureau/lib/clock"
	"github.com/bureau-foundation/bureau/lib/wire"
)

// Sender is the subset of transport.Client the Runner needs. Frames
// are enqueued, not written directly, so a disconnected transport just
// drops a heartbeat rather than blocking the runner.
type Sender interface {
	Send(frame wire.Frame) error
}

// Config configures a Runner.
type Config struct {
	Sender       Sender
	Clock        clock.Clock
	Interval     time.Duration
	AgentVersion string
	Logger       *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Runner emits heartbeat frames on Config.Interval until its Run
// context is cancelled. The zero value is not usable; construct with
// New.
type Runner struct {
	config Config
	logger *slog.Logger

	mu        sync.Mutex
	interval  time.Duration
	startedAt time.Time
}

// New constructs a Runner. Panics if config.Clock, config.Sender, or
// config.Interval is missing.
func New(config Config) *Runner {
	if config.Clock == nil {
		panic("heartbeat: Config.Clock is required")
	}
	if config.Sender == nil {
		panic("heartbeat: Config.Sender is required")
	}
	if config.Interval <= 0 {
		panic("heartbeat: Config.Interval must be positive")
	}
	return &Runner{
		config:   config,
		logger:   config.logger(),
		interval: config.Interval,
	}
}

// SetInterval overrides the heartbeat period, taking effect on the
// next tick. Used when a welcome frame's heartbeat_interval_s differs
// from the configured default.
func (r *Runner) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.interval = d
	r.mu.Unlock()
}

func (r *Runner) currentInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// Run sends an initial heartbeat immediately, then one per interval,
// until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	r.startedAt = r.config.Clock.Now()
	r.send()

	ticker := r.config.Clock.NewTicker(r.currentInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.send()
			if next := r.currentInterval(); next != 0 {
				ticker.Reset(next)
			}
		}
	}
}

func (r *Runner) send() {
	now := r.config.Clock.Now()
	data := wire.HeartbeatData{
		Status:       "ok",
		UptimeS:      int64(now.Sub(r.startedAt).Seconds()),
		AgentVersion: r.config.AgentVersion,
	}
	frame, err := wire.New(wire.TypeHeartbeat, data, now)
	if err != nil {
		r.logger.Error("heartbeat: building frame", "error", err)
		return
	}
	if err := r.config.Sender.Send(frame); err != nil {
		r.logger.Warn("heartbeat: send failed", "error", err)
		return
	}
	r.logger.Debug("heartbeat sent", "uptime_s", data.UptimeS)
}

// HandleHeartbeatAck implements the transport.Router hook relevant to
// this component. The ack carries the server's clock, useful only for
// diagnostics since clock skew enforcement happens on every frame, not
// just this one.
func (r *Runner) HandleHeartbeatAck(data wire.HeartbeatAckData) {
	r.logger.Debug("heartbeat acknowledged", "server_time_s", data.ServerTimeS)
}
