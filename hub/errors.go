// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import "errors"

var (
	// ErrNotHere indicates the addressed agent has no locally-owned
	// transport; the caller (typically the Session Broker) should fall
	// back to cross-replica delivery via the Presence Directory.
	ErrNotHere = errors.New("hub: agent not connected to this replica")

	// ErrClosed indicates the addressed agent's transport is in the
	// process of closing and can no longer accept frames.
	ErrClosed = errors.New("hub: agent transport is closing")

	// ErrDuplicateAgent indicates a second hello for an agent_id
	// already registered locally arrived before the first transport's
	// close completed.
	ErrDuplicateAgent = errors.New("hub: duplicate agent connection")
)
