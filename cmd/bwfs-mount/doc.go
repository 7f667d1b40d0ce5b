// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

// Command bwfs-mount mounts an already-formatted BWFS store at a
// host directory via FUSE.
//
// Usage:
//
//	bwfs-mount -c <config-path> [-f] <mount-point>
//
// With -f the process logs at info level, including the readiness
// message once mounted; without it only warnings and errors are
// logged. In both cases the process mounts and blocks until the
// filesystem is unmounted (there is no daemonization — backgrounding
// is the caller's responsibility). Exits 0 on clean unmount.
package main
