// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the BWFS
// front-ends (the "make filesystem" and "mount" commands).
//
// Configuration is loaded from a single file specified by either the
// BWFS_CONFIG environment variable (via [Load]) or an explicit path
// (via [LoadFile]). There is no ~/.config discovery and no automatic
// file search: deterministic, auditable configuration with no hidden
// overrides.
//
// Variable expansion is performed on the storage path after loading:
// ${HOME} and ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] -- the fields recognized by mkfs/mount: block
//     dimensions, block and inode counts, storage path, fingerprint,
//     and the out-of-scope replication hook (tcp_port, network)
//   - [Default] -- a Config with minimal valid sizing and no storage
//     path
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- checks the bounds the engine requires
//     (§6 of the specification this config implements)
//
// This package depends on no other BWFS packages — it is consumed by
// cmd/bwfs-mkfs and cmd/bwfs-mount, which pass the fields of an
// already-validated [Config] to the engine one by one.
package config
