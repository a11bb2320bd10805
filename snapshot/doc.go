// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot implements the Snapshot Store (spec §1, §6):
// durable, write-through persistence of inventory snapshots. The core
// treats it as an external collaborator reached through [Store];
// [PostgresStore] is the production implementation, grounded in the
// silo-proxy reference's internal/db package (pgxpool connection
// pooling, goose-driven embedded migrations).
package snapshot
