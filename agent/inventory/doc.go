// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package inventory collects the static and slowly-changing system
// facts an agent submits as an inventory frame (spec §3, §4.4):
// hostname, OS/platform, CPU, memory, disk, and network identity.
// Collection never fails — missing or unreadable sources produce
// zero-valued fields rather than errors, since a minimal container or
// headless VM is still a machine worth reporting.
package inventory
