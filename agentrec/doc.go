// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentrec implements the Agent record store (spec §3, "Agent
// record"): the durable table of registered agents, their owning
// operator, and their handshake secret.
//
// Register generates the secret and returns it once in cleartext; only
// a bcrypt hash is retained afterward, and VerifySecret is the sole way
// back in. Nothing outside this package ever sees the hash.
package agentrec
