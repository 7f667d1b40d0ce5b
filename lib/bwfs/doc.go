// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package bwfs implements a persistent, POSIX-like filesystem whose
// block data is physically stored as monochrome raster images — one
// PNG per block, one pixel per bit.
//
// # Layout
//
// A store is a directory of block_<N>.png files plus a metadata
// sidecar. Block 0 is the superblock: an ASCII fingerprint, a version
// tag, and the block/inode counts, packed into the same bit-per-pixel
// raster as every other block. Blocks 1..total_blocks-1 hold file
// content, addressed directly from each inode's 12-slot direct-block
// table — there are no indirect blocks in this implementation (see
// [Inode.Indirect]).
//
// # Pieces
//
//   - [EncodeRaster] / [DecodeRaster] -- the bit codec: pack a byte
//     buffer into a pixel array and back, MSB-first.
//   - [Store] -- owns the block image directory: read, write, and
//     initialize blocks, and verify the superblock fingerprint.
//   - [Bitmap] -- a fixed-size bit vector with first-free allocation,
//     backing both the block and inode free lists.
//   - [Table] -- the in-memory inode table and its allocation bitmap.
//   - [DirectoryTable] -- per-directory ordered entry lists.
//   - [Engine] -- glues the above into the POSIX-shaped operations
//     (Lookup, Create, Read, Write, Mkdir, Rename, ...) behind a
//     single coarse lock.
//   - [Checkpoint] -- serializes engine metadata to a sidecar file and
//     restores it on mount.
//
// The host-facing FUSE bridge lives in the sibling package
// [github.com/blockraster/bwfs/lib/bwfs/fuse].
package bwfs
