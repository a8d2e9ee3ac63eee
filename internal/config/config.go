// Package config loads run configuration from YAML.
//
// Values are resolved in order: the YAML file, then Defaults for anything
// left unset, then command-line overrides applied by the caller, then
// Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/ingest"
	"github.com/born-ml/tensortrain/internal/serialization"
	"github.com/born-ml/tensortrain/internal/sweep"
	"github.com/born-ml/tensortrain/internal/tt"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Input describes the source tensor.
type Input struct {
	Path       string `yaml:"path"`
	Format     string `yaml:"format"`   // "", "raw" or "safetensors"
	Variable   string `yaml:"variable"` // safetensors variable
	Shape      []int  `yaml:"shape"`
	DType      string `yaml:"dtype"` // "F64" or "F32"
	Order      string `yaml:"order"` // "row-major" or "column-major"
	ChunkElems int    `yaml:"chunk_elems"`
}

// MinIO configures the remote cache store.
type MinIO struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// Cache configures reuse of computed tensors.
type Cache struct {
	Disabled    bool   `yaml:"disabled"`
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"` // "none", "lz4" or "zstd"
	MinIO       MinIO  `yaml:"minio"`
}

// Decompose configures TT-SVD.
type Decompose struct {
	Tolerance float64 `yaml:"tolerance"`
	MaxRank   int     `yaml:"max_rank"`
}

// Sweep configures the threshold sweep.
type Sweep struct {
	Thresholds       []float64 `yaml:"thresholds"`
	Workers          int       `yaml:"workers"`
	MemoryLimitBytes int64     `yaml:"memory_limit_bytes"`
	MaxRank          int       `yaml:"max_rank"`
}

// Output configures result files.
type Output struct {
	Dir       string `yaml:"dir"`
	Variable  string `yaml:"variable"`
	Report    string `yaml:"report"`
	SkipFiles bool   `yaml:"skip_files"` // only write the report
}

// Logging configures the logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Config is the full run configuration.
type Config struct {
	Input       Input     `yaml:"input"`
	Cache       Cache     `yaml:"cache"`
	Decompose   Decompose `yaml:"decompose"`
	Sweep       Sweep     `yaml:"sweep"`
	Output      Output    `yaml:"output"`
	Logging     Logging   `yaml:"logging"`
	MetricsAddr string    `yaml:"metrics_addr"`
}

// Load reads a YAML file and fills unset fields with defaults.
// An empty path yields the defaults alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		//nolint:gosec // G304: path is supplied by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Input.ChunkElems == 0 {
		c.Input.ChunkElems = ingest.DefaultChunkElems
	}
	if c.Input.DType == "" {
		c.Input.DType = string(ingest.Float64)
	}
	if c.Input.Order == "" {
		c.Input.Order = string(ingest.RowMajor)
	}
	if c.Input.Variable == "" {
		c.Input.Variable = "data"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = ".ttcache"
	}
	if c.Cache.Compression == "" {
		c.Cache.Compression = string(serialization.CompressionZSTD)
	}
	if c.Decompose.Tolerance == 0 {
		c.Decompose.Tolerance = tt.DefaultTolerance
	}
	if len(c.Sweep.Thresholds) == 0 {
		c.Sweep.Thresholds = append([]float64(nil), sweep.DefaultThresholds...)
	}
	if c.Sweep.Workers == 0 {
		c.Sweep.Workers = runtime.NumCPU()
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "out"
	}
	if c.Output.Variable == "" {
		c.Output.Variable = "compressedTensor"
	}
	if c.Output.Report == "" {
		c.Output.Report = "report.json"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the resolved configuration.
//
//nolint:gocyclo,cyclop // One check per field
func (c *Config) Validate() error {
	if c.Input.Path == "" {
		return fmt.Errorf("%w: input.path is required", ErrInvalidConfig)
	}
	if c.Input.Shape != nil {
		if err := dense.Shape(c.Input.Shape).Validate(); err != nil {
			return fmt.Errorf("%w: input.shape: %w", ErrInvalidConfig, err)
		}
	}
	switch ingest.Format(c.Input.Format) {
	case ingest.FormatAuto, ingest.FormatRaw, ingest.FormatSafeTensors:
	default:
		return fmt.Errorf("%w: input.format %q", ErrInvalidConfig, c.Input.Format)
	}
	if _, err := ingest.ParseDType(c.Input.DType); err != nil {
		return fmt.Errorf("%w: input.dtype: %w", ErrInvalidConfig, err)
	}
	if _, err := ingest.ParseOrder(c.Input.Order); err != nil {
		return fmt.Errorf("%w: input.order: %w", ErrInvalidConfig, err)
	}
	if c.Input.ChunkElems < 0 {
		return fmt.Errorf("%w: input.chunk_elems must be positive", ErrInvalidConfig)
	}
	if _, err := serialization.ParseCompression(c.Cache.Compression); err != nil {
		return fmt.Errorf("%w: cache.compression: %w", ErrInvalidConfig, err)
	}
	if m := c.Cache.MinIO; m.Endpoint != "" && m.Bucket == "" {
		return fmt.Errorf("%w: cache.minio.bucket is required with an endpoint", ErrInvalidConfig)
	}
	if c.Decompose.Tolerance < 0 || c.Decompose.Tolerance >= 1 {
		return fmt.Errorf("%w: decompose.tolerance %g outside [0, 1)", ErrInvalidConfig, c.Decompose.Tolerance)
	}
	if c.Decompose.MaxRank < 0 || c.Sweep.MaxRank < 0 {
		return fmt.Errorf("%w: max_rank must not be negative", ErrInvalidConfig)
	}
	for _, eps := range c.Sweep.Thresholds {
		if !(eps > 0) {
			return fmt.Errorf("%w: sweep threshold %g must be positive", ErrInvalidConfig, eps)
		}
	}
	if c.Sweep.Workers < 1 {
		return fmt.Errorf("%w: sweep.workers must be at least 1", ErrInvalidConfig)
	}
	if c.Sweep.MemoryLimitBytes < 0 {
		return fmt.Errorf("%w: sweep.memory_limit_bytes must not be negative", ErrInvalidConfig)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %w", ErrInvalidConfig, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}
