// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

package bwfs

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// SuperblockFingerprintLen, SuperblockVersionLen, and the byte offsets
// below mirror the decoded layout of block 0 described in the store's
// external interface: a fixed-width fingerprint field, a version
// string, and two little-endian u32 counts, all zero-padded.
const (
	SuperblockFingerprintLen = 32
	SuperblockVersionLen     = 32
	SuperblockVersionTag     = "BWFS-1"

	superblockOffsetFingerprint = 0
	superblockOffsetVersion     = 32
	superblockOffsetTotalBlocks = 64
	superblockOffsetTotalInodes = 68
	superblockMinSize           = 72
)

// Store owns a directory of block images plus the implicit
// superblock at index 0. It performs no caching: every read and
// write touches the filesystem, matching the "no persistent file
// descriptors" resource policy.
type Store struct {
	dir          string
	width        int
	height       int
	bytesPerBlk  int
	totalBlocks  uint32
}

// blockFileName returns the on-disk name for block index i:
// block_<i, zero-padded to 8 digits>.png.
func blockFileName(i uint32) string {
	return fmt.Sprintf("block_%08d.png", i)
}

// OpenStore attaches to an existing store directory without touching
// any block. Dimensions are supplied by the caller (restored from a
// config or checkpoint); call [Store.ReadBlock] on index 0 and
// [Store.VerifyFingerprint] to confirm they actually match what's on disk.
func OpenStore(dir string, width, height int, totalBlocks uint32) (*Store, error) {
	if err := ValidateDimensions(width, height); err != nil {
		return nil, wrapErr(KindFatal, "open_store", dir, err)
	}
	return &Store{
		dir:         dir,
		width:       width,
		height:      height,
		bytesPerBlk: BytesPerBlock(width, height),
		totalBlocks: totalBlocks,
	}, nil
}

// InitStore creates a fresh store directory: a superblock image at
// block 0 carrying fingerprint/version/counts, and zero-filled data
// block images for 1..totalBlocks-1.
func InitStore(dir string, width, height int, totalBlocks, totalInodes uint32, fingerprint string) (*Store, error) {
	if err := ValidateDimensions(width, height); err != nil {
		return nil, wrapErr(KindFatal, "init_store", dir, err)
	}
	if len(fingerprint) > SuperblockFingerprintLen {
		return nil, newErr(KindInvalidArgument, "init_store", dir)
	}
	if totalBlocks < 2 {
		return nil, newErr(KindInvalidArgument, "init_store", dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapErr(KindIOError, "init_store", dir, err)
	}

	s := &Store{
		dir:         dir,
		width:       width,
		height:      height,
		bytesPerBlk: BytesPerBlock(width, height),
		totalBlocks: totalBlocks,
	}

	super := make([]byte, s.bytesPerBlk)
	copy(super[superblockOffsetFingerprint:], fingerprint)
	copy(super[superblockOffsetVersion:], SuperblockVersionTag)
	binary.LittleEndian.PutUint32(super[superblockOffsetTotalBlocks:], totalBlocks)
	binary.LittleEndian.PutUint32(super[superblockOffsetTotalInodes:], totalInodes)

	if err := s.WriteBlock(0, super); err != nil {
		return nil, err
	}

	zero := make([]byte, s.bytesPerBlk)
	for i := uint32(1); i < totalBlocks; i++ {
		if err := s.WriteBlock(i, zero); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// WriteSuperblockCounts overwrites the total_blocks and total_inodes
// fields of block 0 without disturbing fingerprint or version.
func (s *Store) WriteSuperblockCounts(totalBlocks, totalInodes uint32) error {
	raw, err := s.ReadBlock(0)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(raw[superblockOffsetTotalBlocks:], totalBlocks)
	binary.LittleEndian.PutUint32(raw[superblockOffsetTotalInodes:], totalInodes)
	return s.WriteBlock(0, raw)
}

// BytesPerBlock returns the logical payload size of one block under
// this store's dimensions.
func (s *Store) BytesPerBlock() int { return s.bytesPerBlk }

// TotalBlocks returns the number of blocks the store was opened or
// initialized with.
func (s *Store) TotalBlocks() uint32 { return s.totalBlocks }

// Width and Height return the raster dimensions shared by every block
// image in the store.
func (s *Store) Width() int  { return s.width }
func (s *Store) Height() int { return s.height }

// ReadBlock loads block i's image and decodes it to bytesPerBlock
// bytes. It fails with [KindIOError] on a missing or corrupt file,
// and [KindFatal] if the decoded image's dimensions don't match the
// store's configured width/height.
func (s *Store) ReadBlock(i uint32) ([]byte, error) {
	path := filepath.Join(s.dir, blockFileName(i))
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(KindIOError, "read_block", path, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, wrapErr(KindIOError, "read_block", path, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != s.width || bounds.Dy() != s.height {
		return nil, wrapErr(KindFatal, "read_block", path,
			fmt.Errorf("image is %dx%d, store expects %dx%d", bounds.Dx(), bounds.Dy(), s.width, s.height))
	}

	pixels := make([]byte, s.width*s.height)
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			pixels[idx] = byte(r >> 8)
			idx++
		}
	}
	return DecodeRaster(pixels), nil
}

// WriteBlock encodes data (zero-padded to bytesPerBlock) as a
// grayscale PNG and replaces block i's image atomically: write to a
// temp file in the same directory, fsync it, rename over the target,
// then fsync the directory. This is the same write-to-temp-then-rename
// discipline the metadata checkpoint in [Checkpoint.Save] uses.
func (s *Store) WriteBlock(i uint32, data []byte) error {
	if len(data) > s.bytesPerBlk {
		return newErr(KindInvalidArgument, "write_block", blockFileName(i))
	}
	padded := make([]byte, s.bytesPerBlk)
	copy(padded, data)

	pixels, err := EncodeRaster(s.width, s.height, padded)
	if err != nil {
		return wrapErr(KindFatal, "write_block", blockFileName(i), err)
	}

	img := image.NewGray(image.Rect(0, 0, s.width, s.height))
	copy(img.Pix, pixels)

	path := filepath.Join(s.dir, blockFileName(i))
	return atomicWritePNG(path, img)
}

// atomicWrite writes data to path via a temp file in the same
// directory, fsyncing both the file and the directory before the
// rename is considered durable. Shared by block writes and the
// metadata checkpoint.
func atomicWrite(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return wrapErr(KindIOError, "atomic_write", path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if err := write(tmp); err != nil {
		tmp.Close()
		return wrapErr(KindIOError, "atomic_write", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return wrapErr(KindIOError, "atomic_write", path, err)
	}
	if err := tmp.Close(); err != nil {
		return wrapErr(KindIOError, "atomic_write", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return wrapErr(KindIOError, "atomic_write", path, err)
	}

	d, err := os.Open(dir)
	if err != nil {
		return wrapErr(KindIOError, "atomic_write", path, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return wrapErr(KindIOError, "atomic_write", path, err)
	}
	return nil
}

func atomicWritePNG(path string, img image.Image) error {
	return atomicWrite(path, func(f *os.File) error {
		return png.Encode(f, img)
	})
}

// VerifyFingerprint reads block 0 and compares its fingerprint field
// against expected, returning false (never an error) on a mismatch —
// the caller decides whether a mismatch is fatal.
func (s *Store) VerifyFingerprint(expected string) (bool, error) {
	raw, err := s.ReadBlock(0)
	if err != nil {
		return false, err
	}
	if len(raw) < superblockMinSize {
		return false, wrapErr(KindFatal, "verify_fingerprint", "",
			fmt.Errorf("superblock payload too small: %d bytes", len(raw)))
	}
	field := raw[superblockOffsetFingerprint : superblockOffsetFingerprint+SuperblockFingerprintLen]
	got := trimNUL(field)
	return got == expected, nil
}

// ReadSuperblockCounts decodes total_blocks and total_inodes from an
// already-read block 0 payload.
func ReadSuperblockCounts(raw []byte) (totalBlocks, totalInodes uint32, err error) {
	if len(raw) < superblockMinSize {
		return 0, 0, newErr(KindFatal, "read_superblock_counts", "")
	}
	totalBlocks = binary.LittleEndian.Uint32(raw[superblockOffsetTotalBlocks:])
	totalInodes = binary.LittleEndian.Uint32(raw[superblockOffsetTotalInodes:])
	return totalBlocks, totalInodes, nil
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
