// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

package bwfs

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestInitStoreThenReadWriteBlock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := InitStore(dir, 64, 64, 4, 16, "test-fp")
	if err != nil {
		t.Fatalf("InitStore: %v", err)
	}

	payload := bytes.Repeat([]byte{0xAB}, s.BytesPerBlock())
	if err := s.WriteBlock(1, payload); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	got, err := s.ReadBlock(1)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("read back %x, want %x", got[:8], payload[:8])
	}
}

func TestInitStoreZerosDataBlocks(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := InitStore(dir, 64, 64, 3, 16, "fp")
	if err != nil {
		t.Fatalf("InitStore: %v", err)
	}

	got, err := s.ReadBlock(2)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	want := make([]byte, s.BytesPerBlock())
	if !bytes.Equal(got, want) {
		t.Fatal("freshly initialized data block is not all zero")
	}
}

func TestVerifyFingerprint(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := InitStore(dir, 64, 64, 2, 16, "BWFS_v1.0")
	if err != nil {
		t.Fatalf("InitStore: %v", err)
	}

	ok, err := s.VerifyFingerprint("BWFS_v1.0")
	if err != nil {
		t.Fatalf("VerifyFingerprint: %v", err)
	}
	if !ok {
		t.Error("expected fingerprint match")
	}

	ok, err = s.VerifyFingerprint("other")
	if err != nil {
		t.Fatalf("VerifyFingerprint: %v", err)
	}
	if ok {
		t.Error("expected fingerprint mismatch")
	}
}

func TestOpenStoreReadsBackInitializedSuperblock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	if _, err := InitStore(dir, 32, 32, 4, 8, "fp"); err != nil {
		t.Fatalf("InitStore: %v", err)
	}

	s, err := OpenStore(dir, 32, 32, 4)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	raw, err := s.ReadBlock(0)
	if err != nil {
		t.Fatalf("ReadBlock(0): %v", err)
	}
	totalBlocks, totalInodes, err := ReadSuperblockCounts(raw)
	if err != nil {
		t.Fatalf("ReadSuperblockCounts: %v", err)
	}
	if totalBlocks != 4 || totalInodes != 8 {
		t.Errorf("counts = (%d, %d), want (4, 8)", totalBlocks, totalInodes)
	}
}

func TestReadBlockMissingFileIsIOError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := InitStore(dir, 32, 32, 2, 4, "fp")
	if err != nil {
		t.Fatalf("InitStore: %v", err)
	}

	_, err = s.ReadBlock(99)
	if KindOf(err) != KindIOError {
		t.Errorf("KindOf(err) = %v, want KindIOError", KindOf(err))
	}
}
