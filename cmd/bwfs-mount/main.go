// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/blockraster/bwfs/lib/bwfs"
	"github.com/blockraster/bwfs/lib/bwfs/fuse"
	"github.com/blockraster/bwfs/lib/clock"
	"github.com/blockraster/bwfs/lib/config"
	"github.com/blockraster/bwfs/lib/version"
)

// checkpointInterval is how often the mount flushes metadata to the
// sidecar in the background, independent of explicit fsync calls.
const checkpointInterval = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var foreground bool

	flagSet := pflag.NewFlagSet("bwfs-mount", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to the bwfs.yaml config file")
	flagSet.BoolVarP(&foreground, "foreground", "f", false, "stay attached to the controlling terminal")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("bwfs-mount %s\n", version.Info())
		return 0
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	if help, _ := flagSet.GetBool("help"); help {
		flagSet.PrintDefaults()
		return 0
	}

	args := flagSet.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: bwfs-mount -c <config-path> [-f] <mount-point>")
		return 2
	}
	mountpoint := args[0]

	logLevel := slog.LevelInfo
	if !foreground {
		logLevel = slog.LevelWarn
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logger.Error("loading configuration", "error", err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}

	clk := clock.Real()
	engine, bootstrapped, err := bwfs.Open(cfg.StoragePath, cfg.BlockWidth, cfg.BlockHeight, cfg.Fingerprint, clk)
	if err != nil {
		logger.Error("opening store", "path", cfg.StoragePath, "error", err)
		return 1
	}
	if bootstrapped != nil && *bootstrapped {
		logger.Warn("metadata checkpoint missing, booted an empty filesystem from the superblock", "path", cfg.StoragePath)
	}

	server, err := fuse.Mount(fuse.Options{
		Mountpoint: mountpoint,
		Engine:     engine,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("mounting", "mountpoint", mountpoint, "error", err)
		return 1
	}

	stopCheckpoint := startPeriodicCheckpoint(engine, clk, logger)
	defer stopCheckpoint()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		logger.Info("signal received, unmounting", "mountpoint", mountpoint)
		server.Unmount()
	}()

	server.Wait()

	if err := engine.Fsync(0); err != nil {
		logger.Error("final checkpoint flush on unmount", "error", err)
		return 1
	}

	logger.Info("unmounted cleanly", "mountpoint", mountpoint)
	return 0
}

// startPeriodicCheckpoint flushes engine metadata to the sidecar on a
// fixed interval, independent of explicit fsync calls, matching the
// "optionally periodically" clause of the checkpoint flush policy.
// The returned function stops the background ticker.
func startPeriodicCheckpoint(engine *bwfs.Engine, clk clock.Clock, logger *slog.Logger) func() {
	ticker := clk.NewTicker(checkpointInterval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := engine.Fsync(0); err != nil {
					logger.Error("periodic checkpoint flush failed", "error", err)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}
