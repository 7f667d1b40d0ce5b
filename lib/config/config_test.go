// Copyright 2026 The BWFS Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultFailsValidation(t *testing.T) {
	// Default() exists to give every field a well-typed zero value,
	// not to produce a usable configuration: storage_path and
	// fingerprint are still missing.
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("Default() config unexpectedly passed Validate()")
	}
}

func TestLoad_RequiresBWFSConfig(t *testing.T) {
	origConfig := os.Getenv("BWFS_CONFIG")
	defer os.Setenv("BWFS_CONFIG", origConfig)
	os.Unsetenv("BWFS_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when BWFS_CONFIG not set, got nil")
	}

	const expectedPrefix = "BWFS_CONFIG environment variable not set"
	if got := err.Error(); len(got) < len(expectedPrefix) || got[:len(expectedPrefix)] != expectedPrefix {
		t.Errorf("expected error message to start with %q, got %q", expectedPrefix, got)
	}
}

func TestLoad_WithBWFSConfig(t *testing.T) {
	origConfig := os.Getenv("BWFS_CONFIG")
	defer os.Setenv("BWFS_CONFIG", origConfig)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bwfs.yaml")

	configContent := `
name: scratch
block_width: 1000
block_height: 1000
total_blocks: 100
total_inodes: 1024
storage_path: ` + filepath.Join(tmpDir, "store") + `
fingerprint: BWFS_v1.0
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	os.Setenv("BWFS_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.TotalBlocks != 100 {
		t.Errorf("total_blocks = %d, want 100", cfg.TotalBlocks)
	}
	if cfg.Fingerprint != "BWFS_v1.0" {
		t.Errorf("fingerprint = %q, want %q", cfg.Fingerprint, "BWFS_v1.0")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on a well-formed config: %v", err)
	}
}

func TestLoadFile_ExpandsStoragePath(t *testing.T) {
	tmpDir := t.TempDir()
	os.Setenv("BWFS_TEST_ROOT", tmpDir)
	defer os.Unsetenv("BWFS_TEST_ROOT")

	configPath := filepath.Join(tmpDir, "bwfs.yaml")
	configContent := `
block_width: 800
block_height: 800
total_blocks: 4
total_inodes: 16
storage_path: ${BWFS_TEST_ROOT}/store
fingerprint: test
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	want := filepath.Join(tmpDir, "store")
	if cfg.StoragePath != want {
		t.Errorf("StoragePath = %q, want %q", cfg.StoragePath, want)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			BlockWidth:  1000,
			BlockHeight: 1000,
			TotalBlocks: 100,
			TotalInodes: 1024,
			StoragePath: "/tmp/bwfs",
			Fingerprint: "BWFS_v1.0",
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("well-formed config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"width too large", func(c *Config) { c.BlockWidth = 1001 }},
		{"height zero", func(c *Config) { c.BlockHeight = 0 }},
		{"product not divisible by 8", func(c *Config) { c.BlockWidth = 999; c.BlockHeight = 999 }},
		{"too few blocks", func(c *Config) { c.TotalBlocks = 1 }},
		{"too few inodes", func(c *Config) { c.TotalInodes = 1 }},
		{"missing storage path", func(c *Config) { c.StoragePath = "" }},
		{"fingerprint too long", func(c *Config) { c.Fingerprint = string(make([]byte, 33)) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected Validate() to reject %s", tc.name)
			}
		})
	}
}

func TestBytesPerBlock(t *testing.T) {
	cfg := &Config{BlockWidth: 1000, BlockHeight: 1000}
	if got, want := cfg.BytesPerBlock(), 125000; got != want {
		t.Errorf("BytesPerBlock() = %d, want %d", got, want)
	}
}
