// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

package bwfs

// DirEntry is one entry in a directory's listing: a name, the inode
// it refers to, and that inode's kind (kept redundantly so readdir
// need not consult the inode table for DT_* hints).
type DirEntry struct {
	Name string
	Ino  uint64
	Kind FileKind
}

// DirectoryTable maps a directory's inode number to its ordered
// entry list. "." and ".." are always entries 0 and 1; everything
// after is insertion order, preserved across rename.
type DirectoryTable struct {
	dirs map[uint64][]DirEntry
}

// NewDirectoryTable creates an empty directory table.
func NewDirectoryTable() *DirectoryTable {
	return &DirectoryTable{dirs: make(map[uint64][]DirEntry)}
}

// RestoreDirectoryTable rebuilds a DirectoryTable from checkpointed
// entry lists.
func RestoreDirectoryTable(dirs map[uint64][]DirEntry) *DirectoryTable {
	return &DirectoryTable{dirs: dirs}
}

// All returns the full per-directory entry map, for checkpoint
// serialization. The caller must not mutate it.
func (d *DirectoryTable) All() map[uint64][]DirEntry { return d.dirs }

// Init creates dirIno's entry list with "." and ".." already in
// place, pointing at self and parent respectively.
func (d *DirectoryTable) Init(dirIno, parentIno uint64) {
	d.dirs[dirIno] = []DirEntry{
		{Name: ".", Ino: dirIno, Kind: Directory},
		{Name: "..", Ino: parentIno, Kind: Directory},
	}
}

// Drop removes dirIno's entry list entirely, once the directory
// itself has been unlinked.
func (d *DirectoryTable) Drop(dirIno uint64) { delete(d.dirs, dirIno) }

// Entries returns dirIno's entry list in order. The returned slice
// must not be mutated by the caller.
func (d *DirectoryTable) Entries(dirIno uint64) []DirEntry { return d.dirs[dirIno] }

// Lookup returns the entry named name within dirIno, or false if
// absent.
func (d *DirectoryTable) Lookup(dirIno uint64, name string) (DirEntry, bool) {
	for _, e := range d.dirs[dirIno] {
		if e.Name == name {
			return e, true
		}
	}
	return DirEntry{}, false
}

// Insert appends a new entry to dirIno's list. The caller must have
// already checked for a name collision via [DirectoryTable.Lookup].
func (d *DirectoryTable) Insert(dirIno uint64, entry DirEntry) {
	d.dirs[dirIno] = append(d.dirs[dirIno], entry)
}

// Remove deletes the entry named name from dirIno's list, preserving
// the relative order of the remaining entries. It reports whether an
// entry was found.
func (d *DirectoryTable) Remove(dirIno uint64, name string) bool {
	entries := d.dirs[dirIno]
	for i, e := range entries {
		if e.Name == name {
			d.dirs[dirIno] = append(entries[:i:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// SetParent rewrites the ".." entry of dirIno to point at newParent,
// used when a directory is renamed across parents.
func (d *DirectoryTable) SetParent(dirIno, newParent uint64) {
	entries := d.dirs[dirIno]
	for i := range entries {
		if entries[i].Name == ".." {
			entries[i].Ino = newParent
			return
		}
	}
}

// IsEmpty reports whether dirIno's entry list is exactly "." and ".."
// — rmdir's precondition.
func (d *DirectoryTable) IsEmpty(dirIno uint64) bool {
	return len(d.dirs[dirIno]) == 2
}

// ChildCount returns the number of entries in dirIno beyond "." and
// "..", used to keep nlink = 2 + subdirectory count in sync when
// callers need to recompute rather than increment/decrement.
func (d *DirectoryTable) ChildCount(dirIno uint64) int {
	n := len(d.dirs[dirIno]) - 2
	if n < 0 {
		return 0
	}
	return n
}
