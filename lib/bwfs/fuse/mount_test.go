// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/blockraster/bwfs/lib/bwfs"
	"github.com/blockraster/bwfs/lib/clock"
)

var testTimestamp = time.Unix(1735689600, 0) // 2025-01-01T00:00:00Z

func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
}

// testMount creates a fresh BWFS store, mounts it, and returns the
// mountpoint. The mount is unmounted automatically at test end.
func testMount(t *testing.T) (mountpoint string, engine *bwfs.Engine) {
	t.Helper()
	fuseAvailable(t)

	root := t.TempDir()
	storeDir := filepath.Join(root, "store")
	mountpoint = filepath.Join(root, "mnt")

	engine, err := bwfs.Create(storeDir, 64, 64, 64, 64, "mount-test-fp", clock.Fake(testTimestamp))
	if err != nil {
		t.Fatalf("bwfs.Create: %v", err)
	}

	server, err := Mount(Options{Mountpoint: mountpoint, Engine: engine})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})

	return mountpoint, engine
}

func TestMountRootIsEmptyDirectory(t *testing.T) {
	mountpoint, _ := testMount(t)

	entries, err := os.ReadDir(mountpoint)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("fresh mount root has %d entries, want 0", len(entries))
	}
}

func TestMountWriteReadFile(t *testing.T) {
	mountpoint, _ := testMount(t)

	path := filepath.Join(mountpoint, "hello.txt")
	if err := os.WriteFile(path, []byte("Hello BWFS!\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "Hello BWFS!\n" {
		t.Fatalf("ReadFile = %q, want %q", data, "Hello BWFS!\n")
	}
}

func TestMountMkdirAndReaddir(t *testing.T) {
	mountpoint, _ := testMount(t)

	if err := os.Mkdir(filepath.Join(mountpoint, "sub"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(mountpoint, "sub", "f"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(mountpoint, "sub"))
	if err != nil {
		t.Fatalf("ReadDir(sub): %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "f" {
		t.Fatalf("ReadDir(sub) = %v, want [f]", entries)
	}
}

func TestMountRenameAndUnlink(t *testing.T) {
	mountpoint, _ := testMount(t)

	a := filepath.Join(mountpoint, "a")
	b := filepath.Join(mountpoint, "b")
	if err := os.WriteFile(a, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Rename(a, b); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Fatalf("source %q still exists after rename", a)
	}
	if err := os.Remove(b); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(b); !os.IsNotExist(err) {
		t.Fatalf("destination %q still exists after remove", b)
	}
}

func TestMountRmdirNonEmptyFails(t *testing.T) {
	mountpoint, _ := testMount(t)

	dir := filepath.Join(mountpoint, "d")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "x"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Remove(dir); err == nil {
		t.Fatal("expected removing a non-empty directory to fail")
	}
}

func TestMountStatfs(t *testing.T) {
	mountpoint, engine := testMount(t)

	var stat unix.Statfs_t
	if err := unix.Statfs(mountpoint, &stat); err != nil {
		t.Fatalf("statfs: %v", err)
	}

	want := engine.Statfs()
	if uint32(stat.Bsize) != uint32(want.BlockSize) {
		t.Errorf("Bsize = %d, want %d", stat.Bsize, want.BlockSize)
	}
}
