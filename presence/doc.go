// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence implements the Presence Directory (spec §4.1): the
// authoritative, cross-replica answer to "is this agent online, and if
// so, which replica holds its transport?"
//
// [Directory] is the interface every other component depends on.
// [RedisDirectory] is the production backing store — a Redis hash per
// agent (status, replica_id, connected_at, last_heartbeat) refreshed
// by EXPIRE on every touch, plus Pub/Sub channels for cross-replica
// envelope delivery and status-transition notification. This mirrors
// the reference system's Python hub, which used redis.asyncio for
// exactly this client:{id} hash-with-TTL pattern.
//
// [MemoryDirectory] is an in-process fake used by tests and by
// single-replica deployments that do not need cross-replica routing.
package presence
