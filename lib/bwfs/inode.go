// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

package bwfs

import "time"

// DirectBlocks is the number of direct block slots every inode
// carries. There is no indirect-block support in this implementation
// (see doc.go); a write that would need a 13th block fails with
// [KindFileTooLarge].
const DirectBlocks = 12

// RootIno is the inode number of the filesystem root. It is created
// by [Create] and must always exist.
const RootIno uint64 = 1

// FileKind distinguishes a file from a directory. It intentionally has
// no third case: symbolic links and other special file types are out
// of scope.
type FileKind int

const (
	// File is a regular, byte-addressable file.
	File FileKind = iota
	// Directory holds an ordered list of [DirEntry] values.
	Directory
)

func (k FileKind) String() string {
	if k == Directory {
		return "directory"
	}
	return "file"
}

// Inode is the metadata record for one file or directory. The zero
// value is not meaningful; inodes are created through [Table.Allocate].
type Inode struct {
	Ino   uint64
	Kind  FileKind
	Size  uint64
	Nlink uint32
	UID   uint32
	GID   uint32
	Mode  uint32 // 9-bit POSIX permission bits, plus any extra the caller set.

	Atime time.Time
	Mtime time.Time
	Ctime time.Time

	// Direct holds up to DirectBlocks block numbers; 0 means "unused".
	Direct [DirectBlocks]uint32

	// Indirect and DoubleIndirect are reserved for a future extension
	// to addressing beyond DirectBlocks; no operation in this
	// implementation reads or writes them.
	Indirect       uint32
	DoubleIndirect uint32
}

// BlockCount returns the number of non-zero (allocated) direct block
// slots, used for both getattr's "blocks" field and invariant checks.
func (in *Inode) BlockCount() int {
	n := 0
	for _, b := range in.Direct {
		if b != 0 {
			n++
		}
	}
	return n
}

// Table is the in-memory inode table: a mapping from inode number to
// record, backed by an allocation bitmap. It is populated either
// fresh (by [NewTable]) or restored from a checkpoint.
type Table struct {
	bitmap *Bitmap
	inodes map[uint64]*Inode
}

// NewTable creates an empty table over size inode slots. Slot 0 is
// never allocated (inode numbering starts at 1); callers are expected
// to immediately allocate the root directory at ino 1.
func NewTable(size uint32) *Table {
	bm := NewBitmap(size)
	_ = bm.Set(0) // slot 0 is permanently reserved, never a valid ino
	return &Table{bitmap: bm, inodes: make(map[uint64]*Inode)}
}

// RestoreTable rebuilds a Table from checkpointed state: the inode
// bitmap bytes and the decoded inode records.
func RestoreTable(size uint32, bitmapBytes []byte, inodes map[uint64]*Inode) *Table {
	return &Table{bitmap: NewBitmapFromBytes(size, bitmapBytes), inodes: inodes}
}

// Bitmap exposes the inode allocation bitmap, for checkpointing and
// statfs.
func (t *Table) Bitmap() *Bitmap { return t.bitmap }

// All returns every inode record currently in the table, for
// checkpoint serialization. The caller must not mutate the map.
func (t *Table) All() map[uint64]*Inode { return t.inodes }

// Get returns the inode record for ino, or nil if it does not exist.
func (t *Table) Get(ino uint64) *Inode { return t.inodes[ino] }

// Allocate reserves the lowest-numbered free inode slot and installs
// a fresh record for it. It fails with [KindNoSpace] if the inode
// bitmap is exhausted.
func (t *Table) Allocate(kind FileKind, mode uint32, uid, gid uint32, now time.Time) (*Inode, error) {
	idx, ok := t.bitmap.Allocate()
	if !ok {
		return nil, newErr(KindNoSpace, "allocate_inode", "")
	}
	nlink := uint32(1)
	if kind == Directory {
		nlink = 2
	}
	in := &Inode{
		Ino:   uint64(idx),
		Kind:  kind,
		Nlink: nlink,
		UID:   uid,
		GID:   gid,
		Mode:  mode,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	t.inodes[in.Ino] = in
	return in, nil
}

// InsertRoot installs an already-constructed root directory record
// at [RootIno], marking its bitmap bit set. Used by [Create] and by
// checkpoint bootstrap, which both need to place the root at a fixed
// number rather than whatever Allocate would pick.
func (t *Table) InsertRoot(in *Inode) error {
	if in.Ino != RootIno {
		return newErr(KindInvalidArgument, "insert_root", "")
	}
	if err := t.bitmap.Set(uint32(RootIno)); err != nil {
		return wrapErr(KindFatal, "insert_root", "", err)
	}
	t.inodes[RootIno] = in
	return nil
}

// Release frees ino's bitmap bit and drops its record. The caller is
// responsible for having already released its blocks.
func (t *Table) Release(ino uint64) error {
	if err := t.bitmap.Clear(uint32(ino)); err != nil {
		return wrapErr(KindFatal, "release_inode", "", err)
	}
	delete(t.inodes, ino)
	return nil
}
