// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the configuration consumed by the "make filesystem" and
// "mount" front-ends. The front-ends pass its fields to the engine
// individually; the engine does not take a Config value.
type Config struct {
	// Name is a cosmetic label for the store; it has no effect on
	// disk layout or engine behavior.
	Name string `yaml:"name"`

	// BlockWidth and BlockHeight are the pixel dimensions of every
	// block image. Both must be in 1..1000 and their product must be
	// divisible by 8.
	BlockWidth  int `yaml:"block_width"`
	BlockHeight int `yaml:"block_height"`

	// TotalBlocks is the number of blocks in the store, including the
	// reserved superblock at index 0. Must be at least 2.
	TotalBlocks uint32 `yaml:"total_blocks"`

	// TotalInodes is the size of the inode table, including the
	// unused slot 0 and the root directory at 1. Must be at least 2.
	TotalInodes uint32 `yaml:"total_inodes"`

	// StoragePath is the directory holding the block images and the
	// metadata sidecar.
	StoragePath string `yaml:"storage_path"`

	// Fingerprint identifies this filesystem instance. Checked against
	// the superblock on every mount; a mismatch is fatal. At most 32
	// ASCII bytes.
	Fingerprint string `yaml:"fingerprint"`

	// TCPPort and Network are opaque configuration handed to the
	// out-of-scope replication/fan-out collaborator at mount time.
	// The engine never reads them.
	TCPPort int               `yaml:"tcp_port,omitempty"`
	Network map[string]string `yaml:"network,omitempty"`
}

// Default returns a Config with the smallest sizing Validate accepts
// (1000x1000 blocks, two blocks, two inodes) and no storage path or
// fingerprint. It does not pass Validate until a storage path is
// supplied.
func Default() *Config {
	return &Config{
		BlockWidth:  1000,
		BlockHeight: 1000,
		TotalBlocks: 2,
		TotalInodes: 2,
	}
}

// Load loads configuration from the BWFS_CONFIG environment variable.
// There is no fallback: an unset variable is an error.
func Load() (*Config, error) {
	path := os.Getenv("BWFS_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("BWFS_CONFIG environment variable not set; " +
			"set it to the path of your bwfs.yaml config file, or pass -c explicitly")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path and expands
// ${VAR} references in StoragePath.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.StoragePath = expandVars(cfg.StoragePath)

	return cfg, nil
}

// varPattern matches ${VAR} and ${VAR:-default} references.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name, defaultValue := parts[1], ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the bounds the engine requires (specification §6):
// block dimensions in 1..1000 with a product divisible by 8, at least
// two blocks and two inodes, a storage path, and a fingerprint no
// longer than 32 ASCII bytes.
func (c *Config) Validate() error {
	var errs []error

	if c.BlockWidth < 1 || c.BlockWidth > 1000 {
		errs = append(errs, fmt.Errorf("block_width must be in 1..1000, got %d", c.BlockWidth))
	}
	if c.BlockHeight < 1 || c.BlockHeight > 1000 {
		errs = append(errs, fmt.Errorf("block_height must be in 1..1000, got %d", c.BlockHeight))
	}
	if (c.BlockWidth*c.BlockHeight)%8 != 0 {
		errs = append(errs, fmt.Errorf("block_width * block_height (%d) must be divisible by 8",
			c.BlockWidth*c.BlockHeight))
	}
	if c.TotalBlocks < 2 {
		errs = append(errs, fmt.Errorf("total_blocks must be >= 2, got %d", c.TotalBlocks))
	}
	if c.TotalInodes < 2 {
		errs = append(errs, fmt.Errorf("total_inodes must be >= 2, got %d", c.TotalInodes))
	}
	if c.StoragePath == "" {
		errs = append(errs, errors.New("storage_path is required"))
	}
	if len(c.Fingerprint) > 32 {
		errs = append(errs, fmt.Errorf("fingerprint must be <= 32 bytes, got %d", len(c.Fingerprint)))
	}
	for i := 0; i < len(c.Fingerprint); i++ {
		if c.Fingerprint[i] > 127 {
			errs = append(errs, errors.New("fingerprint must be ASCII"))
			break
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// BytesPerBlock returns floor(BlockWidth * BlockHeight / 8), the
// logical payload size of one block under this configuration.
func (c *Config) BytesPerBlock() int {
	return (c.BlockWidth * c.BlockHeight) / 8
}
