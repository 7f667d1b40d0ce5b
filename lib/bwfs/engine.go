// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

package bwfs

import (
	"sync"

	"github.com/blockraster/bwfs/lib/clock"
)

// NameMax is the longest name the engine accepts in a directory
// entry, mirroring what [Engine.Statfs] reports.
const NameMax = 255

// Attrs is the host-visible attribute view of an inode, as returned
// by [Engine.Getattr] and every operation that creates or resolves
// one.
type Attrs struct {
	Ino     uint64
	Size    uint64
	Blocks  int
	Kind    FileKind
	Nlink   uint32
	UID     uint32
	GID     uint32
	Mode    uint32
	Blksize int

	Atime int64 // Unix seconds
	Mtime int64
	Ctime int64
}

// StatfsResult is the aggregate store summary [Engine.Statfs] reports.
type StatfsResult struct {
	BlockSize   int
	TotalBlocks uint32
	FreeBlocks  uint32
	TotalInodes uint32
	FreeInodes  uint32
	NameMax     int
}

// Engine glues the block store, both bitmaps, the inode table, and
// the directory table into the POSIX-shaped operations. It is the
// single mutator of all five; every exported method takes the engine
// lock for its entire duration, including the block I/O it performs
// — a deliberate simplicity choice over finer-grained locking.
type Engine struct {
	mu sync.Mutex

	store       *Store
	blockBitmap *Bitmap
	inodes      *Table
	dirs        *DirectoryTable
	clock       clock.Clock

	fingerprint   string
	bytesPerBlock int

	checkpoint *Checkpoint
}

// New assembles an Engine from its already-opened or already-restored
// components. Callers building a fresh filesystem should go through
// [Create]; callers restoring one should go through [Open] in
// checkpoint.go.
func New(store *Store, blockBitmap *Bitmap, inodes *Table, dirs *DirectoryTable, clk clock.Clock, fingerprint string, ckpt *Checkpoint) *Engine {
	return &Engine{
		store:         store,
		blockBitmap:   blockBitmap,
		inodes:        inodes,
		dirs:          dirs,
		clock:         clk,
		fingerprint:   fingerprint,
		bytesPerBlock: store.BytesPerBlock(),
		checkpoint:    ckpt,
	}
}

// Create formats a brand-new store at dir and returns an Engine
// mounted on it: block 0 carries the given fingerprint, the root
// directory is created at [RootIno], and a checkpoint sidecar is
// written immediately so a fresh mount never boots from a missing
// sidecar.
func Create(dir string, width, height int, totalBlocks, totalInodes uint32, fingerprint string, clk clock.Clock) (*Engine, error) {
	store, err := InitStore(dir, width, height, totalBlocks, totalInodes, fingerprint)
	if err != nil {
		return nil, err
	}

	blockBitmap := NewBitmap(totalBlocks)
	_ = blockBitmap.Set(0) // superblock is permanently reserved

	inodes := NewTable(totalInodes)
	now := clk.Now()
	root := &Inode{
		Ino:   RootIno,
		Kind:  Directory,
		Nlink: 2,
		Mode:  0o755,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	if err := inodes.InsertRoot(root); err != nil {
		return nil, err
	}

	dirs := NewDirectoryTable()
	dirs.Init(RootIno, RootIno)

	ckpt := NewCheckpoint(dir, width, height, fingerprint)
	e := New(store, blockBitmap, inodes, dirs, clk, fingerprint, ckpt)
	if err := e.Fsync(0); err != nil {
		return nil, err
	}
	return e, nil
}

// attrsOf translates an inode record into host-visible attributes.
func attrsOf(in *Inode, blksize int) Attrs {
	return Attrs{
		Ino:     in.Ino,
		Size:    in.Size,
		Blocks:  in.BlockCount(),
		Kind:    in.Kind,
		Nlink:   in.Nlink,
		UID:     in.UID,
		GID:     in.GID,
		Mode:    in.Mode,
		Blksize: blksize,
		Atime:   in.Atime.Unix(),
		Mtime:   in.Mtime.Unix(),
		Ctime:   in.Ctime.Unix(),
	}
}

func (e *Engine) requireDir(ino uint64, op string) (*Inode, error) {
	in := e.inodes.Get(ino)
	if in == nil {
		return nil, newErr(KindNotFound, op, "")
	}
	if in.Kind != Directory {
		return nil, newErr(KindNotADirectory, op, "")
	}
	return in, nil
}

// Lookup resolves name within parentIno.
func (e *Engine) Lookup(parentIno uint64, name string) (Attrs, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.requireDir(parentIno, "lookup"); err != nil {
		return Attrs{}, err
	}
	entry, ok := e.dirs.Lookup(parentIno, name)
	if !ok {
		return Attrs{}, newErr(KindNotFound, "lookup", name)
	}
	child := e.inodes.Get(entry.Ino)
	if child == nil {
		return Attrs{}, wrapErr(KindFatal, "lookup", name, errInconsistentDir)
	}
	return attrsOf(child, e.bytesPerBlock), nil
}

// Getattr returns the host-visible attributes of ino.
func (e *Engine) Getattr(ino uint64) (Attrs, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	in := e.inodes.Get(ino)
	if in == nil {
		return Attrs{}, newErr(KindNotFound, "getattr", "")
	}
	return attrsOf(in, e.bytesPerBlock), nil
}

// Create allocates a new regular file named name inside parentIno.
func (e *Engine) Create(parentIno uint64, name string, mode uint32, uid, gid uint32) (Attrs, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateName(name); err != nil {
		return Attrs{}, err
	}
	if _, err := e.requireDir(parentIno, "create"); err != nil {
		return Attrs{}, err
	}
	if _, exists := e.dirs.Lookup(parentIno, name); exists {
		return Attrs{}, newErr(KindAlreadyExists, "create", name)
	}

	in, err := e.inodes.Allocate(File, mode&0o777, uid, gid, e.clock.Now())
	if err != nil {
		return Attrs{}, err
	}
	e.dirs.Insert(parentIno, DirEntry{Name: name, Ino: in.Ino, Kind: File})
	return attrsOf(in, e.bytesPerBlock), nil
}

// Open verifies ino exists and is a regular file, failing with
// [KindIsADirectory] for a directory. It returns no handle and the
// engine tracks no per-handle state; file handles are monotonically
// increasing counters assigned by the host bridge.
func (e *Engine) Open(ino uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	in := e.inodes.Get(ino)
	if in == nil {
		return newErr(KindNotFound, "open", "")
	}
	if in.Kind != File {
		return newErr(KindIsADirectory, "open", "")
	}
	return nil
}

// Read returns up to length bytes of ino's content starting at
// offset, clamped to the file's current size, filling any
// unallocated block with zeros.
func (e *Engine) Read(ino uint64, offset int64, length int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	in := e.inodes.Get(ino)
	if in == nil {
		return nil, newErr(KindNotFound, "read", "")
	}
	if in.Kind != File {
		return nil, newErr(KindIsADirectory, "read", "")
	}
	if offset < 0 || length < 0 {
		return nil, newErr(KindInvalidArgument, "read", "")
	}

	if offset >= int64(in.Size) {
		in.Atime = e.clock.Now()
		return nil, nil
	}
	if offset+int64(length) > int64(in.Size) {
		length = int(int64(in.Size) - offset)
	}

	out := make([]byte, 0, length)
	remaining := length
	pos := offset
	bpb := int64(e.bytesPerBlock)

	for remaining > 0 {
		blockIdx := int(pos / bpb)
		intraOffset := int(pos % bpb)
		chunk := e.bytesPerBlock - intraOffset
		if chunk > remaining {
			chunk = remaining
		}

		if blockIdx >= DirectBlocks || in.Direct[blockIdx] == 0 {
			out = append(out, make([]byte, chunk)...)
		} else {
			raw, err := e.store.ReadBlock(in.Direct[blockIdx])
			if err != nil {
				return nil, err
			}
			out = append(out, raw[intraOffset:intraOffset+chunk]...)
		}

		pos += int64(chunk)
		remaining -= chunk
	}

	in.Atime = e.clock.Now()
	return out, nil
}

// Write splices data into ino's content starting at offset,
// allocating new direct blocks as logical offsets enter previously
// unallocated slots. A write that would need a 13th direct block
// fails with [KindFileTooLarge]; the bytes already written durably
// before that point are not rolled back (policy B of the
// specification's mid-operation-failure design note).
func (e *Engine) Write(ino uint64, offset int64, data []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	in := e.inodes.Get(ino)
	if in == nil {
		return 0, newErr(KindNotFound, "write", "")
	}
	if in.Kind != File {
		return 0, newErr(KindIsADirectory, "write", "")
	}
	if offset < 0 {
		return 0, newErr(KindInvalidArgument, "write", "")
	}

	bpb := int64(e.bytesPerBlock)
	remaining := len(data)
	pos := offset
	written := 0

	for remaining > 0 {
		blockIdx := int(pos / bpb)
		intraOffset := int(pos % bpb)
		chunk := e.bytesPerBlock - intraOffset
		if chunk > remaining {
			chunk = remaining
		}

		if blockIdx >= DirectBlocks {
			if written > 0 {
				e.finishWrite(in, offset, written)
			}
			return written, newErr(KindFileTooLarge, "write", "")
		}

		if in.Direct[blockIdx] == 0 {
			idx, ok := e.blockBitmap.Allocate()
			if !ok {
				if written > 0 {
					e.finishWrite(in, offset, written)
				}
				return written, newErr(KindNoSpace, "write", "")
			}
			in.Direct[blockIdx] = idx
		}

		var block []byte
		if intraOffset != 0 || chunk != e.bytesPerBlock {
			var err error
			block, err = e.store.ReadBlock(in.Direct[blockIdx])
			if err != nil {
				return written, err
			}
		} else {
			block = make([]byte, e.bytesPerBlock)
		}
		copy(block[intraOffset:intraOffset+chunk], data[written:written+chunk])

		if err := e.store.WriteBlock(in.Direct[blockIdx], block); err != nil {
			return written, err
		}

		pos += int64(chunk)
		written += chunk
		remaining -= chunk
	}

	e.finishWrite(in, offset, written)
	return written, nil
}

// Truncate changes ino's size to newSize. Shrinking releases any
// direct blocks entirely beyond the new size back to the block
// bitmap; growing only adjusts the size field — the newly-exposed
// range behaves like unallocated blocks, which [Engine.Read] already
// serves as zeros.
func (e *Engine) Truncate(ino uint64, newSize uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	in := e.inodes.Get(ino)
	if in == nil {
		return newErr(KindNotFound, "truncate", "")
	}
	if in.Kind != File {
		return newErr(KindIsADirectory, "truncate", "")
	}

	if newSize > in.Size {
		// Zero the tail of the partially filled last block so the
		// newly exposed range reads as zeros.
		bpb := uint64(e.bytesPerBlock)
		blockIdx := in.Size / bpb
		intra := int(in.Size % bpb)
		if intra != 0 && blockIdx < DirectBlocks && in.Direct[blockIdx] != 0 {
			block, err := e.store.ReadBlock(in.Direct[blockIdx])
			if err != nil {
				return err
			}
			for i := intra; i < len(block); i++ {
				block[i] = 0
			}
			if err := e.store.WriteBlock(in.Direct[blockIdx], block); err != nil {
				return err
			}
		}
	}
	if newSize < in.Size {
		bpb := uint64(e.bytesPerBlock)
		keepBlocks := 0
		if newSize > 0 {
			keepBlocks = int((newSize + bpb - 1) / bpb)
		}
		for i := keepBlocks; i < DirectBlocks; i++ {
			if in.Direct[i] != 0 {
				if err := e.blockBitmap.Clear(in.Direct[i]); err != nil {
					return wrapErr(KindFatal, "truncate", "", err)
				}
				in.Direct[i] = 0
			}
		}
	}

	in.Size = newSize
	now := e.clock.Now()
	in.Mtime = now
	in.Ctime = now
	return nil
}

func (e *Engine) finishWrite(in *Inode, offset int64, written int) {
	if newSize := uint64(offset) + uint64(written); newSize > in.Size {
		in.Size = newSize
	}
	now := e.clock.Now()
	in.Mtime = now
	in.Ctime = now
}

// Mkdir creates a new, empty directory named name inside parentIno.
func (e *Engine) Mkdir(parentIno uint64, name string, mode uint32, uid, gid uint32) (Attrs, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateName(name); err != nil {
		return Attrs{}, err
	}
	parent, err := e.requireDir(parentIno, "mkdir")
	if err != nil {
		return Attrs{}, err
	}
	if _, exists := e.dirs.Lookup(parentIno, name); exists {
		return Attrs{}, newErr(KindAlreadyExists, "mkdir", name)
	}

	in, err := e.inodes.Allocate(Directory, mode&0o777, uid, gid, e.clock.Now())
	if err != nil {
		return Attrs{}, err
	}
	e.dirs.Init(in.Ino, parentIno)
	e.dirs.Insert(parentIno, DirEntry{Name: name, Ino: in.Ino, Kind: Directory})
	parent.Nlink++
	return attrsOf(in, e.bytesPerBlock), nil
}

// Unlink removes a regular-file entry named name from parentIno,
// releasing the inode (and its blocks) once its link count reaches
// zero.
func (e *Engine) Unlink(parentIno uint64, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.requireDir(parentIno, "unlink"); err != nil {
		return err
	}
	entry, ok := e.dirs.Lookup(parentIno, name)
	if !ok {
		return newErr(KindNotFound, "unlink", name)
	}
	target := e.inodes.Get(entry.Ino)
	if target == nil {
		return wrapErr(KindFatal, "unlink", name, errInconsistentDir)
	}
	if target.Kind == Directory {
		return newErr(KindIsADirectory, "unlink", name)
	}

	e.dirs.Remove(parentIno, name)
	return e.dropLink(target)
}

// dropLink decrements target's nlink and, once it reaches zero,
// releases its blocks and its inode slot.
func (e *Engine) dropLink(target *Inode) error {
	target.Nlink--
	if target.Nlink > 0 {
		return nil
	}
	for _, b := range target.Direct {
		if b != 0 {
			if err := e.blockBitmap.Clear(b); err != nil {
				return wrapErr(KindFatal, "drop_link", "", err)
			}
		}
	}
	return e.inodes.Release(target.Ino)
}

// Rmdir removes an empty directory entry named name from parentIno.
func (e *Engine) Rmdir(parentIno uint64, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	parent, err := e.requireDir(parentIno, "rmdir")
	if err != nil {
		return err
	}
	entry, ok := e.dirs.Lookup(parentIno, name)
	if !ok {
		return newErr(KindNotFound, "rmdir", name)
	}
	target := e.inodes.Get(entry.Ino)
	if target == nil || target.Kind != Directory {
		return newErr(KindNotADirectory, "rmdir", name)
	}
	if !e.dirs.IsEmpty(entry.Ino) {
		return newErr(KindDirNotEmpty, "rmdir", name)
	}

	e.dirs.Remove(parentIno, name)
	e.dirs.Drop(entry.Ino)
	parent.Nlink--
	return e.inodes.Release(entry.Ino)
}

// Rename moves or replaces a directory entry, matching POSIX
// rename-replace semantics: an existing file destination is
// unlinked first; an existing non-empty directory destination fails
// with [KindDirNotEmpty]; a kind mismatch fails with
// [KindInvalidArgument].
func (e *Engine) Rename(srcParent uint64, srcName string, dstParent uint64, dstName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if srcParent == dstParent && srcName == dstName {
		return nil
	}
	if err := validateName(dstName); err != nil {
		return err
	}

	if _, err := e.requireDir(srcParent, "rename"); err != nil {
		return err
	}
	dstParentInode, err := e.requireDir(dstParent, "rename")
	if err != nil {
		return err
	}

	srcEntry, ok := e.dirs.Lookup(srcParent, srcName)
	if !ok {
		return newErr(KindNotFound, "rename", srcName)
	}
	srcInode := e.inodes.Get(srcEntry.Ino)
	if srcInode == nil {
		return wrapErr(KindFatal, "rename", srcName, errInconsistentDir)
	}

	if dstEntry, exists := e.dirs.Lookup(dstParent, dstName); exists {
		if dstEntry.Kind != srcEntry.Kind {
			return newErr(KindInvalidArgument, "rename", dstName)
		}
		if dstEntry.Kind == Directory {
			if !e.dirs.IsEmpty(dstEntry.Ino) {
				return newErr(KindDirNotEmpty, "rename", dstName)
			}
			e.dirs.Remove(dstParent, dstName)
			e.dirs.Drop(dstEntry.Ino)
			dstParentInode.Nlink--
			if err := e.inodes.Release(dstEntry.Ino); err != nil {
				return err
			}
		} else {
			dstTarget := e.inodes.Get(dstEntry.Ino)
			e.dirs.Remove(dstParent, dstName)
			if dstTarget != nil {
				if err := e.dropLink(dstTarget); err != nil {
					return err
				}
			}
		}
	}

	srcParentInode := e.inodes.Get(srcParent)
	if srcParent == dstParent {
		// Rename in place so the entry keeps its position in the listing.
		entries := append([]DirEntry(nil), e.dirs.Entries(srcParent)...)
		e.dirs.Drop(srcParent)
		for _, entry := range entries {
			if entry.Name == srcName {
				entry.Name = dstName
			}
			e.dirs.Insert(srcParent, entry)
		}
	} else {
		e.dirs.Remove(srcParent, srcName)
		e.dirs.Insert(dstParent, DirEntry{Name: dstName, Ino: srcEntry.Ino, Kind: srcEntry.Kind})
	}

	if srcEntry.Kind == Directory && srcParent != dstParent {
		e.dirs.SetParent(srcEntry.Ino, dstParent)
		srcParentInode.Nlink--
		dstParentInode.Nlink++
	}

	return nil
}

// ReaddirEntry is one entry handed to the emit callback of
// [Engine.Readdir]. NextOffset is the entry's 0-based index plus one:
// the offset to pass to Readdir to resume after this entry.
type ReaddirEntry struct {
	Ino        uint64
	Name       string
	Kind       FileKind
	NextOffset int
}

// Readdir iterates dirIno's entries starting at offset (the 0-based
// index of the first entry to emit, i.e. the NextOffset of the last
// entry already seen), calling emit for each until it returns false.
func (e *Engine) Readdir(dirIno uint64, offset int, emit func(ReaddirEntry) bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.requireDir(dirIno, "readdir"); err != nil {
		return err
	}
	entries := e.dirs.Entries(dirIno)
	for i := offset; i < len(entries); i++ {
		entry := entries[i]
		if !emit(ReaddirEntry{Ino: entry.Ino, Name: entry.Name, Kind: entry.Kind, NextOffset: i + 1}) {
			break
		}
	}
	return nil
}

// Statfs reports the store-wide summary derived from both bitmaps.
func (e *Engine) Statfs() StatfsResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	return StatfsResult{
		BlockSize:   e.bytesPerBlock,
		TotalBlocks: e.blockBitmap.Size(),
		FreeBlocks:  e.blockBitmap.FreeCount(),
		TotalInodes: e.inodes.Bitmap().Size(),
		FreeInodes:  e.inodes.Bitmap().FreeCount(),
		NameMax:     NameMax,
	}
}

// Fsync flushes the in-memory metadata tables to the checkpoint
// sidecar. ino is currently unused (there is no per-inode checkpoint
// granularity) but kept so the host bridge can pass through whichever
// inode triggered the fsync callback.
func (e *Engine) Fsync(ino uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.checkpoint == nil {
		return nil
	}
	return e.checkpoint.Save(e.blockBitmap, e.inodes, e.dirs)
}

func validateName(name string) error {
	if name == "" || len(name) > NameMax {
		return newErr(KindInvalidArgument, "validate_name", name)
	}
	return nil
}

var errInconsistentDir = inconsistentDirError{}

type inconsistentDirError struct{}

func (inconsistentDirError) Error() string {
	return "directory entry references a nonexistent inode"
}
