// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

// Command bwfs-mkfs formats a new BWFS store: it reads a config file,
// validates it, and writes the superblock plus zero-filled data block
// images and an initial metadata checkpoint to the configured storage
// path.
//
// Usage:
//
//	bwfs-mkfs -c <config-path>
//
// Exits 0 on success, nonzero on validation or I/O failure.
package main
