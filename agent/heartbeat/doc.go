// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package heartbeat sends the periodic liveness frame an agent owes
// the hub (spec §4.1, §4.2): an initial heartbeat the moment the
// connection comes up, then one every configured interval until the
// run context ends.
package heartbeat
