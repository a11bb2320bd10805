// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, opaque identifier types for the
// entities the hub and agent runtime pass between each other: agents,
// replicas, terminal sessions, and operators.
//
// Each type wraps a string but is not a string — constructors validate
// the value and the zero value is explicitly distinguishable via
// IsZero, preventing an uninitialized identifier from being mistaken
// for a parsed one. Every type implements encoding.TextMarshaler and
// encoding.TextUnmarshaler so it can be used directly as a JSON frame
// field without a separate DTO layer.
package ref
