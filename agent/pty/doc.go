// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pty runs the agent side of a terminal session (spec §4.4,
// §6): one PTY-backed shell per session_id, driven by
// terminal_command frames (init/input/resize/close) and reporting
// back with terminal_ready, terminal_output, terminal_error, and
// terminal_closed frames.
//
// Platforms without a working PTY (anything creack/pty does not
// support) reject init with terminal_error{reason: unsupported}
// rather than failing the whole agent process.
package pty
