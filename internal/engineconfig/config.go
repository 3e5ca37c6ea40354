// Package engineconfig loads and validates the engine's tunable parameters
// from a TOML file. Unlike gastrolog's JSON envelope config (which
// describes a fleet of receivers/stores/routes for a running server), the
// engine has one fixed set of scalar tunables, so a flat TOML document
// with field defaults is a better fit than a versioned JSON envelope.
package engineconfig

import (
	"cmp"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable of a single engine instance.
type Config struct {
	// DevicePath is the backing file for the engine's Device, when run
	// against a real file rather than an in-memory device.
	DevicePath string `toml:"device_path"`

	// DeviceSize is the total addressable size of the device, in bytes.
	DeviceSize uint64 `toml:"device_size"`

	// BlockSize is the allocator's block alignment, in bytes.
	BlockSize uint64 `toml:"block_size"`

	// MetadataRegionSize is M, the size of the metadata prefix.
	MetadataRegionSize uint64 `toml:"metadata_region_size"`

	// MetadataSections is S, the number of self-checksummed sections the
	// metadata region is divided into.
	MetadataSections int `toml:"metadata_sections"`

	// ChunkSize is the configured chunk window size. It is defaulted but
	// not read by the engine: objects are always split at
	// objectindex.ChunkSize.
	ChunkSize int `toml:"chunk_size"`

	// CompressionThreshold is the configured minimum plaintext chunk length
	// for gzip. It is defaulted but not read by the engine: the chunk store
	// always uses store.CompressionThreshold.
	CompressionThreshold int `toml:"compression_threshold"`

	// Replication is N, the default replica count for new chunks.
	Replication int `toml:"replication"`

	// HighRedundancy is R, the configured high-redundancy replica count.
	// It is validated (>= 3) but not read by the engine: a write's replica
	// count comes from its redundancy argument, or Replication when that
	// is 0.
	HighRedundancy int `toml:"high_redundancy"`

	// ScrubInterval is the configured scrubber cadence. The engine does not
	// start a scrubber; scrub.New takes its interval as an argument.
	ScrubInterval time.Duration `toml:"scrub_interval"`

	// GracefulMinRecoveryRate is the configured default minimum recovery
	// rate (percent) for graceful reads. It is defaulted but not read by
	// the engine: graceful reads use the rate in their ReadOptions.
	GracefulMinRecoveryRate float64 `toml:"graceful_min_recovery_rate"`
}

// applyDefaults fills zero-valued fields with the engine's defaults.
func (c *Config) applyDefaults() {
	c.DeviceSize = cmp.Or(c.DeviceSize, 64<<20)
	c.BlockSize = cmp.Or(c.BlockSize, 512)
	c.MetadataRegionSize = cmp.Or(c.MetadataRegionSize, 64*1024)
	c.MetadataSections = cmp.Or(c.MetadataSections, 3)
	c.ChunkSize = cmp.Or(c.ChunkSize, 4096)
	c.CompressionThreshold = cmp.Or(c.CompressionThreshold, 100)
	c.Replication = cmp.Or(c.Replication, 2)
	c.HighRedundancy = cmp.Or(c.HighRedundancy, 3)
	c.ScrubInterval = cmp.Or(c.ScrubInterval, 60*time.Second)
	c.GracefulMinRecoveryRate = cmp.Or(c.GracefulMinRecoveryRate, 90.0)
}

// Validate reports a descriptive error for any tunable combination the
// engine cannot operate under.
func (c Config) Validate() error {
	if c.MetadataSections != 3 && c.MetadataSections != 5 {
		return fmt.Errorf("metadata_sections must be 3 or 5, got %d", c.MetadataSections)
	}
	if c.MetadataRegionSize%uint64(c.MetadataSections) != 0 {
		return fmt.Errorf("metadata_region_size %d not evenly divisible by metadata_sections %d", c.MetadataRegionSize, c.MetadataSections)
	}
	if c.DeviceSize <= c.MetadataRegionSize {
		return fmt.Errorf("device_size %d must exceed metadata_region_size %d", c.DeviceSize, c.MetadataRegionSize)
	}
	if c.Replication < 2 {
		return fmt.Errorf("replication must be >= 2, got %d", c.Replication)
	}
	if c.HighRedundancy < 3 {
		return fmt.Errorf("high_redundancy must be >= 3, got %d", c.HighRedundancy)
	}
	return nil
}

// Default returns a fully-defaulted Config suitable for an in-memory or
// throwaway device.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load parses a TOML config file at path, applying defaults to any
// unset field and validating the result.
func Load(path string) (Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, fmt.Errorf("parse engine config %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid engine config %s: %w", path, err)
	}
	return c, nil
}
