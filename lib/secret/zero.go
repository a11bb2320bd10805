// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import "crypto/subtle"

// Zero overwrites data with zero bytes in place. Callers use this to
// scrub a heap-allocated copy of secret material (e.g., JSON bytes
// parsed before being moved into a [Buffer]) once it is no longer
// needed, since the Go garbage collector gives no guarantee about when
// or whether the backing array is reused.
func Zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}

// Equal reports whether the buffer's contents equal other, using a
// constant-time comparison so secret verification does not leak timing
// information about where the first mismatching byte occurs. Panics if
// the buffer has been closed.
func (b *Buffer) Equal(other []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		panic("secret: read from closed buffer")
	}

	return subtle.ConstantTimeCompare(b.data[:b.length], other) == 1
}
