// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides BWFS's standard CBOR encoding configuration.
//
// The metadata checkpoint sidecar (inode table, directory table, both
// bitmaps) is serialized with CBOR rather than JSON: it is a purely
// internal, self-describing on-disk format with no external consumer,
// and Core Deterministic Encoding (RFC 8949 §4.2) gives byte-identical
// output for byte-identical state, which makes checkpoint fixtures and
// golden files reproducible across runs.
//
// This package provides the shared CBOR encoding and decoding modes so
// every BWFS package that touches the sidecar encodes identically
// without duplicating configuration: sorted map keys, smallest integer
// encoding, no indefinite-length items.
//
// For buffer-oriented operations (the checkpoint file):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
package codec
