package segment

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joshuapare/shmseg/internal/format"
)

// MB is one mebibyte; the environment settings are expressed in it.
const MB = 1 << 20

const (
	// defaultSegmentMB is the default segment size.
	defaultSegmentMB = 128
	// defaultBufferPercent is the default share of the segment reserved for
	// the cache layer.
	defaultBufferPercent = 60

	minSegmentMB     = 32
	maxSegmentMB     = 4192 * 1024
	minBufferPercent = 5
	maxBufferPercent = 95
)

// Environment variables read by LoadEnv.
const (
	EnvSegmentSizeMB = "SHMSEG_SEGMENT_SIZE_MB"
	EnvBufferSizeMB  = "SHMSEG_BUFFER_SIZE_MB"
	EnvHugePages     = "SHMSEG_HUGE_PAGES"
)

// Config sizes a segment. It is consumed once, by the creating process; the
// values that matter to other processes are copied into the header.
type Config struct {
	// SegmentSize is the total size of the region in bytes, header included.
	SegmentSize uint64

	// BufferSize is a byte budget reserved for a higher-level cache. The
	// allocator never interprets it; it is recorded in the header only.
	BufferSize uint64

	// HugePages asks the provisioning layer for large-page backing.
	HugePages bool

	// MinBits and MaxBits bound the size classes: chunks span 2^MinBits to
	// 2^MaxBits bytes.
	MinBits int
	MaxBits int

	// RemoveOnLastDetach deletes the backing file when the last attachment
	// detaches.
	RemoveOnLastDetach bool

	// Persistent keeps the segment formatted after the last detach, so it
	// can be attached again later. Destroy removes it.
	Persistent bool
}

// DefaultConfig returns a 128 MiB segment with 60% reserved for the cache
// layer and classes from 64 bytes to 2 GiB.
func DefaultConfig() Config {
	return Config{
		SegmentSize: defaultSegmentMB * MB,
		BufferSize:  defaultSegmentMB * defaultBufferPercent / 100 * MB,
		MinBits:     format.DefaultMinBits,
		MaxBits:     format.DefaultMaxBits,
	}
}

// Validate checks the configuration against the header layout.
func (c Config) Validate() error {
	if c.MinBits < format.MinClassLimit || c.MinBits > format.MaxClassLimit {
		return fmt.Errorf("%w: MinBits %d outside [%d, %d]",
			ErrConfig, c.MinBits, format.MinClassLimit, format.MaxClassLimit)
	}
	if c.MaxBits < c.MinBits || c.MaxBits > format.MaxClassLimit {
		return fmt.Errorf("%w: MaxBits %d outside [%d, %d]",
			ErrConfig, c.MaxBits, c.MinBits, format.MaxClassLimit)
	}
	if c.SegmentSize < format.DataStart+format.ClassSize(c.MinBits) {
		return fmt.Errorf("%w: segment size %d cannot hold the header and one %d-byte chunk",
			ErrConfig, c.SegmentSize, format.ClassSize(c.MinBits))
	}
	if c.BufferSize > c.SegmentSize/100*maxBufferPercent {
		return fmt.Errorf("%w: buffer size %d exceeds %d%% of the segment",
			ErrConfig, c.BufferSize, maxBufferPercent)
	}
	return nil
}

// LoadEnv overrides cfg from SHMSEG_SEGMENT_SIZE_MB, SHMSEG_BUFFER_SIZE_MB and
// SHMSEG_HUGE_PAGES. Sizes are whole mebibytes. When only the segment size is
// given, the buffer budget follows it at the default 60%.
func LoadEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvSegmentSizeMB); ok {
		mb, err := parseMB(EnvSegmentSizeMB, v, minSegmentMB, maxSegmentMB)
		if err != nil {
			return err
		}
		cfg.SegmentSize = mb * MB
		cfg.BufferSize = mb * defaultBufferPercent / 100 * MB
	}
	if v, ok := os.LookupEnv(EnvBufferSizeMB); ok {
		segMB := cfg.SegmentSize / MB
		mb, err := parseMB(EnvBufferSizeMB, v,
			segMB*minBufferPercent/100, segMB*maxBufferPercent/100)
		if err != nil {
			return err
		}
		cfg.BufferSize = mb * MB
	}
	if v, ok := os.LookupEnv(EnvHugePages); ok {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrConfig, EnvHugePages, v, err)
		}
		cfg.HugePages = on
	}
	return nil
}

func parseMB(name, v string, lo, hi uint64) (uint64, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrConfig, name, v, err)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s=%d outside [%d, %d]", ErrConfig, name, n, lo, hi)
	}
	return n, nil
}
