// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads hubd and probed configuration from a single YAML
// file.
//
// Configuration is loaded from a file specified by either the
// HUBD_CONFIG / PROBED_CONFIG environment variable (via [LoadServer] /
// [LoadAgent]) or a --config flag (via [LoadServerFile] /
// [LoadAgentFile]). There are no fallbacks, no ~/.config discovery, and
// no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// Key exports:
//
//   - [ServerConfig] and [AgentConfig] -- the two top-level configs
//   - [DefaultServerConfig] and [DefaultAgentConfig] -- zero-value bases
//   - [LoadServer]/[LoadServerFile] and [LoadAgent]/[LoadAgentFile]
//
// This package depends on no other Bureau packages.
package config
