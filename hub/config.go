// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"log/slog"
	"time"

	"github.com/bureau-foundation/bureau/auth"
	"github.com/bureau-foundation/bureau/internal/metrics"
	"github.com/bureau-foundation/bureau/lib/clock"
	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/presence"
	"github.com/bureau-foundation/bureau/snapshot"
)

// WriteQueueDepth is the bounded write queue size per transport (spec
// §5: "default 64 frames or ~1 MiB"). Overflow closes the transport
// with reason backpressure.
const WriteQueueDepth = 64

// Config configures a Hub. Constructed once at replica startup and
// passed by value into NewHub; no process-wide singletons (spec §9).
type Config struct {
	ReplicaID ref.ReplicaID
	Clock     clock.Clock
	Logger    *slog.Logger

	Directory presence.Directory
	Authority auth.Authority
	Snapshots snapshot.Store

	// Metrics receives instrumentation events. A nil value disables
	// metrics entirely; every method on *metrics.Metrics is a safe
	// no-op when called on a nil receiver.
	Metrics *metrics.Metrics

	ServerVersion string

	Heartbeat      time.Duration
	HeartbeatMiss  time.Duration
	HeartbeatCheck time.Duration
	Inventory      time.Duration
	Write          time.Duration
	Drain          time.Duration
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
