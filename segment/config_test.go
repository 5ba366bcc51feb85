package segment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/shmseg/internal/format"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, uint64(128*MB), cfg.SegmentSize)
	require.Equal(t, uint64(76*MB), cfg.BufferSize)
	require.False(t, cfg.HugePages)
	require.Equal(t, 6, cfg.MinBits)
	require.Equal(t, 31, cfg.MaxBits)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"default", func(*Config) {}, ""},
		{"MinBits too small", func(c *Config) { c.MinBits = 4 }, "MinBits 4"},
		{"MinBits above limit", func(c *Config) { c.MinBits = 40 }, "MinBits 40"},
		{"MaxBits below MinBits", func(c *Config) { c.MaxBits = 5 }, "MaxBits 5"},
		{"MaxBits above limit", func(c *Config) { c.MaxBits = 40 }, "MaxBits 40"},
		{"segment holds only the header", func(c *Config) {
			c.SegmentSize = format.DataStart
			c.BufferSize = 0
		}, "cannot hold"},
		{"smallest legal segment", func(c *Config) {
			c.SegmentSize = format.DataStart + 64
			c.BufferSize = 0
		}, ""},
		{"buffer too large", func(c *Config) { c.BufferSize = c.SegmentSize }, "exceeds 95%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrConfig)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	t.Run("unset leaves config alone", func(t *testing.T) {
		cfg := DefaultConfig()
		require.NoError(t, LoadEnv(&cfg))
		require.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("segment size moves buffer with it", func(t *testing.T) {
		t.Setenv(EnvSegmentSizeMB, "64")
		cfg := DefaultConfig()
		require.NoError(t, LoadEnv(&cfg))
		require.Equal(t, uint64(64*MB), cfg.SegmentSize)
		require.Equal(t, uint64(38*MB), cfg.BufferSize)
	})

	t.Run("explicit buffer and huge pages", func(t *testing.T) {
		t.Setenv(EnvSegmentSizeMB, "100")
		t.Setenv(EnvBufferSizeMB, "10")
		t.Setenv(EnvHugePages, "true")
		cfg := DefaultConfig()
		require.NoError(t, LoadEnv(&cfg))
		require.Equal(t, uint64(100*MB), cfg.SegmentSize)
		require.Equal(t, uint64(10*MB), cfg.BufferSize)
		require.True(t, cfg.HugePages)
	})

	for _, tc := range []struct{ name, key, value, errMsg string }{
		{"segment too small", EnvSegmentSizeMB, "16", "outside [32,"},
		{"segment not a number", EnvSegmentSizeMB, "lots", "invalid syntax"},
		{"buffer below 5%", EnvBufferSizeMB, "1", "outside [6, 121]"},
		{"buffer above 95%", EnvBufferSizeMB, "128", "outside [6, 121]"},
		{"huge pages not a bool", EnvHugePages, "maybe", "invalid syntax"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			cfg := DefaultConfig()
			err := LoadEnv(&cfg)
			require.ErrorIs(t, err, ErrConfig)
			require.Contains(t, err.Error(), tc.errMsg)
		})
	}
}
