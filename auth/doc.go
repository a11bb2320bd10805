// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the Auth Authority client (spec §1: "treated
// as external collaborators, specified only through the interfaces
// the core consumes").
//
// [Authority] validates agent handshake secrets and operator bearer
// tokens, and answers ownership questions the Session Broker needs
// before opening a terminal session. [JWTAuthority] is the production
// implementation, built on HS256-signed JWTs the way
// internal/auth.JWTVerifier in the research-coven-gateway example
// validates service-to-service tokens. [StaticAuthority] is a
// fixed-table implementation used in tests and small deployments.
package auth
