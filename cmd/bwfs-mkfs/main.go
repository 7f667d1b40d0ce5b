// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/blockraster/bwfs/lib/bwfs"
	"github.com/blockraster/bwfs/lib/clock"
	"github.com/blockraster/bwfs/lib/config"
	"github.com/blockraster/bwfs/lib/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string

	flagSet := pflag.NewFlagSet("bwfs-mkfs", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to the bwfs.yaml config file")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("bwfs-mkfs %s\n", version.Info())
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

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

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

	if _, err := bwfs.Create(cfg.StoragePath, cfg.BlockWidth, cfg.BlockHeight,
		cfg.TotalBlocks, cfg.TotalInodes, cfg.Fingerprint, clock.Real()); err != nil {
		logger.Error("formatting store", "path", cfg.StoragePath, "error", err)
		return 1
	}

	logger.Info("formatted bwfs store",
		"path", cfg.StoragePath,
		"total_blocks", cfg.TotalBlocks,
		"total_inodes", cfg.TotalInodes,
		"fingerprint", cfg.Fingerprint,
	)
	return 0
}
