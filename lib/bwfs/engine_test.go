// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

package bwfs

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/blockraster/bwfs/lib/clock"
)

func newTestEngine(t *testing.T, totalBlocks, totalInodes uint32) *Engine {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "store")
	clk := clock.Fake(time.Unix(1700000000, 0))
	eng, err := Create(dir, 1000, 1000, totalBlocks, totalInodes, "BWFS_v1.0", clk)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return eng
}

// Scenario 1: hello world.
func TestScenarioHelloWorld(t *testing.T) {
	eng := newTestEngine(t, 100, 1024)

	created, err := eng.Create(RootIno, "hello.txt", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Ino != 2 {
		t.Fatalf("created.Ino = %d, want 2", created.Ino)
	}

	n, err := eng.Write(created.Ino, 0, []byte("Hello BWFS!\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 12 {
		t.Fatalf("Write returned %d, want 12", n)
	}

	data, err := eng.Read(created.Ino, 0, 12)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "Hello BWFS!\n" {
		t.Fatalf("Read = %q, want %q", data, "Hello BWFS!\n")
	}

	stat := eng.Statfs()
	if stat.FreeBlocks != 98 {
		t.Fatalf("FreeBlocks = %d, want 98", stat.FreeBlocks)
	}
}

// Scenario 2: directory.
func TestScenarioDirectory(t *testing.T) {
	eng := newTestEngine(t, 100, 1024)

	created, err := eng.Create(RootIno, "hello.txt", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := eng.Write(created.Ino, 0, []byte("Hello BWFS!\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dirAttrs, err := eng.Mkdir(RootIno, "dir", 0o755, 0, 0)
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if dirAttrs.Ino != 3 {
		t.Fatalf("dir ino = %d, want 3", dirAttrs.Ino)
	}

	var rootNames []string
	if err := eng.Readdir(RootIno, 0, func(e ReaddirEntry) bool {
		rootNames = append(rootNames, e.Name)
		return true
	}); err != nil {
		t.Fatalf("Readdir(root): %v", err)
	}
	wantRoot := []string{".", "..", "hello.txt", "dir"}
	if !equalStrings(rootNames, wantRoot) {
		t.Fatalf("root entries = %v, want %v", rootNames, wantRoot)
	}

	var dirNames []string
	if err := eng.Readdir(dirAttrs.Ino, 0, func(e ReaddirEntry) bool {
		dirNames = append(dirNames, e.Name)
		return true
	}); err != nil {
		t.Fatalf("Readdir(dir): %v", err)
	}
	if !equalStrings(dirNames, []string{".", ".."}) {
		t.Fatalf("subdir entries = %v, want [. ..]", dirNames)
	}

	rootAttrs, err := eng.Getattr(RootIno)
	if err != nil {
		t.Fatalf("Getattr(root): %v", err)
	}
	if rootAttrs.Nlink != 3 {
		t.Fatalf("root nlink = %d, want 3", rootAttrs.Nlink)
	}
}

// Scenario 3: rename replacing.
func TestScenarioRenameReplacing(t *testing.T) {
	eng := newTestEngine(t, 100, 1024)

	a, err := eng.Create(RootIno, "a", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create a: %v", err)
	}
	if _, err := eng.Write(a.Ino, 0, []byte("aaa")); err != nil {
		t.Fatalf("Write a: %v", err)
	}

	b, err := eng.Create(RootIno, "b", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create b: %v", err)
	}
	if _, err := eng.Write(b.Ino, 0, []byte("bb")); err != nil {
		t.Fatalf("Write b: %v", err)
	}

	statBefore := eng.Statfs()

	if err := eng.Rename(RootIno, "a", RootIno, "b"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, err := eng.Lookup(RootIno, "a"); KindOf(err) != KindNotFound {
		t.Fatalf("Lookup(a) after rename: KindOf = %v, want KindNotFound", KindOf(err))
	}

	bNow, err := eng.Lookup(RootIno, "b")
	if err != nil {
		t.Fatalf("Lookup(b) after rename: %v", err)
	}
	data, err := eng.Read(bNow.Ino, 0, 3)
	if err != nil {
		t.Fatalf("Read(b): %v", err)
	}
	if string(data) != "aaa" {
		t.Fatalf("Read(b) = %q, want %q", data, "aaa")
	}

	statAfter := eng.Statfs()
	if statAfter.FreeInodes != statBefore.FreeInodes+1 {
		t.Fatalf("FreeInodes after rename-replace = %d, want %d", statAfter.FreeInodes, statBefore.FreeInodes+1)
	}
}

// Scenario 4: rmdir non-empty.
func TestScenarioRmdirNonEmpty(t *testing.T) {
	eng := newTestEngine(t, 100, 1024)

	d, err := eng.Mkdir(RootIno, "d", 0o755, 0, 0)
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := eng.Create(d.Ino, "x", 0o644, 0, 0); err != nil {
		t.Fatalf("Create x: %v", err)
	}

	if err := eng.Rmdir(RootIno, "d"); KindOf(err) != KindDirNotEmpty {
		t.Fatalf("Rmdir non-empty: KindOf = %v, want KindDirNotEmpty", KindOf(err))
	}

	rootBefore, _ := eng.Getattr(RootIno)

	if err := eng.Unlink(d.Ino, "x"); err != nil {
		t.Fatalf("Unlink x: %v", err)
	}
	if err := eng.Rmdir(RootIno, "d"); err != nil {
		t.Fatalf("Rmdir after emptying: %v", err)
	}

	rootAfter, _ := eng.Getattr(RootIno)
	if rootAfter.Nlink != rootBefore.Nlink-1 {
		t.Fatalf("root nlink after rmdir = %d, want %d", rootAfter.Nlink, rootBefore.Nlink-1)
	}
}

// Scenario 5: out of blocks.
func TestScenarioOutOfBlocks(t *testing.T) {
	eng := newTestEngine(t, 2, 16) // one usable data block: 125000 bytes

	f, err := eng.Create(RootIno, "big", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	payload := make([]byte, 125000)
	n, err := eng.Write(f.Ino, 0, payload)
	if err != nil {
		t.Fatalf("Write full block: %v (wrote %d)", err, n)
	}
	if n != 125000 {
		t.Fatalf("Write returned %d, want 125000", n)
	}

	_, err = eng.Write(f.Ino, 125000, []byte("x"))
	if err == nil {
		t.Fatal("expected write beyond the only data block to fail")
	}
	kind := KindOf(err)
	if kind != KindFileTooLarge && kind != KindNoSpace {
		t.Fatalf("KindOf(overflow write) = %v, want KindFileTooLarge or KindNoSpace", kind)
	}
}

// Scenario 6: fingerprint mismatch.
func TestScenarioFingerprintMismatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	clk := clock.Fake(time.Unix(1700000000, 0))

	if _, err := Create(dir, 1000, 1000, 4, 16, "BWFS_v1.0", clk); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, _, err := Open(dir, 1000, 1000, "wrong-fingerprint", clk)
	if err == nil {
		t.Fatal("expected mount to fail on fingerprint mismatch")
	}
	if KindOf(err) != KindFatal {
		t.Fatalf("KindOf(err) = %v, want KindFatal", KindOf(err))
	}
}

func TestUnlinkReclaimsBlocks(t *testing.T) {
	eng := newTestEngine(t, 100, 1024)

	f, err := eng.Create(RootIno, "f", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Two direct blocks' worth of data (bytes_per_block = 125000).
	if _, err := eng.Write(f.Ino, 0, make([]byte, 125000+10)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	before := eng.Statfs()
	if err := eng.Unlink(RootIno, "f"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	after := eng.Statfs()

	if after.FreeBlocks != before.FreeBlocks+2 {
		t.Fatalf("FreeBlocks after unlink = %d, want %d", after.FreeBlocks, before.FreeBlocks+2)
	}
}

func TestCreateDuplicateNameFails(t *testing.T) {
	eng := newTestEngine(t, 100, 1024)
	if _, err := eng.Create(RootIno, "dup", 0o644, 0, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := eng.Create(RootIno, "dup", 0o644, 0, 0)
	if KindOf(err) != KindAlreadyExists {
		t.Fatalf("KindOf(duplicate create) = %v, want KindAlreadyExists", KindOf(err))
	}
}

func TestLookupOnNonDirectoryFails(t *testing.T) {
	eng := newTestEngine(t, 100, 1024)
	f, err := eng.Create(RootIno, "f", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = eng.Lookup(f.Ino, "anything")
	if KindOf(err) != KindNotADirectory {
		t.Fatalf("KindOf(lookup under file) = %v, want KindNotADirectory", KindOf(err))
	}
}

func TestRenameRejectsOverlongDestinationName(t *testing.T) {
	eng := newTestEngine(t, 100, 1024)
	if _, err := eng.Create(RootIno, "short", 0o644, 0, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}

	longName := make([]byte, NameMax+1)
	for i := range longName {
		longName[i] = 'a'
	}

	err := eng.Rename(RootIno, "short", RootIno, string(longName))
	if KindOf(err) != KindInvalidArgument {
		t.Fatalf("KindOf(rename to overlong name) = %v, want KindInvalidArgument", KindOf(err))
	}
	if _, err := eng.Lookup(RootIno, "short"); err != nil {
		t.Fatalf("Lookup(short) after failed rename: %v", err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
