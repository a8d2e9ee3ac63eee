package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensortrain/internal/sweep"
	"github.com/born-ml/tensortrain/internal/tt"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, tt.DefaultTolerance, cfg.Decompose.Tolerance)
	assert.Equal(t, sweep.DefaultThresholds, cfg.Sweep.Thresholds)
	assert.Equal(t, "zstd", cfg.Cache.Compression)
	assert.Equal(t, "compressedTensor", cfg.Output.Variable)
	assert.Equal(t, 256*256, cfg.Input.ChunkElems)
	assert.Positive(t, cfg.Sweep.Workers)

	// Defaults alone lack an input path.
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	cfg.Input.Path = "density.safetensors"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input:
  path: density.bin
  shape: [256, 256, 256]
  order: column-major
  dtype: F32
cache:
  compression: lz4
  minio:
    endpoint: localhost:9000
    bucket: tt-cache
sweep:
  thresholds: [0.1, 0.01]
  workers: 2
  memory_limit_bytes: 1073741824
logging:
  level: debug
  format: json
metrics_addr: ":9090"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []int{256, 256, 256}, cfg.Input.Shape)
	assert.Equal(t, "column-major", cfg.Input.Order)
	assert.Equal(t, "lz4", cfg.Cache.Compression)
	assert.Equal(t, "tt-cache", cfg.Cache.MinIO.Bucket)
	assert.Equal(t, []float64{0.1, 0.01}, cfg.Sweep.Thresholds)
	assert.Equal(t, int64(1<<30), cfg.Sweep.MemoryLimitBytes)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	// Unset fields still get defaults.
	assert.Equal(t, "out", cfg.Output.Dir)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sweep: [unclosed"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad shape", func(c *Config) { c.Input.Shape = []int{4, 0} }},
		{"bad format", func(c *Config) { c.Input.Format = "netcdf" }},
		{"bad dtype", func(c *Config) { c.Input.DType = "I8" }},
		{"bad order", func(c *Config) { c.Input.Order = "diagonal" }},
		{"bad compression", func(c *Config) { c.Cache.Compression = "brotli" }},
		{"minio without bucket", func(c *Config) { c.Cache.MinIO.Endpoint = "localhost:9000" }},
		{"tolerance", func(c *Config) { c.Decompose.Tolerance = 1 }},
		{"negative max rank", func(c *Config) { c.Sweep.MaxRank = -1 }},
		{"zero threshold", func(c *Config) { c.Sweep.Thresholds = []float64{0.1, 0} }},
		{"workers", func(c *Config) { c.Sweep.Workers = -2 }},
		{"memory", func(c *Config) { c.Sweep.MemoryLimitBytes = -1 }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			cfg.Input.Path = "x.bin"
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
