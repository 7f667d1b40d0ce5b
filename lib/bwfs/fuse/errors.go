// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"syscall"

	"github.com/blockraster/bwfs/lib/bwfs"
)

// errnoFor maps an engine error's Kind to the POSIX errno the
// specification's error-handling design assigns it. Fatal errors have
// no errno of their own in the table — a Fatal error reaching this
// bridge after mount means on-disk state went inconsistent mid-flight,
// which we report as EIO rather than crash the mount.
func errnoFor(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch bwfs.KindOf(err) {
	case bwfs.KindNotFound:
		return syscall.ENOENT
	case bwfs.KindNotADirectory:
		return syscall.ENOTDIR
	case bwfs.KindIsADirectory:
		return syscall.EISDIR
	case bwfs.KindAlreadyExists:
		return syscall.EEXIST
	case bwfs.KindDirNotEmpty:
		return syscall.ENOTEMPTY
	case bwfs.KindNoSpace:
		return syscall.ENOSPC
	case bwfs.KindFileTooLarge:
		return syscall.EFBIG
	case bwfs.KindInvalidArgument:
		return syscall.EINVAL
	case bwfs.KindIOError, bwfs.KindFatal:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}
