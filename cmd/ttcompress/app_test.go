package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensortrain/internal/serialization"
)

func TestParseShape(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"256x256x256", []int{256, 256, 256}},
		{"4,5", []int{4, 5}},
		{"7", []int{7}},
	}
	for _, tt := range tests {
		got, err := parseShape(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	for _, bad := range []string{"", "x", "4x0", "4xa", "-1"} {
		_, err := parseShape(bad)
		assert.Error(t, err, bad)
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, newApp(&out, &bytes.Buffer{}).Run([]string{"ttcompress", "version"}))
	assert.Contains(t, out.String(), version)
}

// writeRankOne writes u⊗v⊗w as raw row-major float64.
func writeRankOne(t *testing.T, path string) {
	t.Helper()
	u := []float64{1, 2, 3}
	v := []float64{1, -1, 2, 0.5}
	w := []float64{2, 1, 3, 1, 4}
	buf := make([]byte, 0, 3*4*5*8)
	for _, a := range u {
		for _, b := range v {
			for _, c := range w {
				buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(a*b*c))
			}
		}
	}
	require.NoError(t, os.WriteFile(path, buf, 0o600))
}

func TestDecomposeThenInspect(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "x.raw")
	writeRankOne(t, input)
	out := filepath.Join(dir, "exact.ttc")

	var stdout bytes.Buffer
	app := newApp(&stdout, &bytes.Buffer{})
	require.NoError(t, app.RunContext(context.Background(), []string{
		"ttcompress", "decompose",
		"--input", input, "--shape", "3x4x5",
		"--cache-dir", filepath.Join(dir, "cache"),
		"--out", out,
	}))
	assert.Contains(t, stdout.String(), "ranks=[1 1]")

	stdout.Reset()
	require.NoError(t, app.Run([]string{"ttcompress", "inspect", out}))
	assert.Contains(t, stdout.String(), "kind:        tt")
	assert.Contains(t, stdout.String(), "[3 4 5]")
	assert.Contains(t, stdout.String(), "[1 1 1 1]")

	stdout.Reset()
	require.NoError(t, app.Run([]string{"ttcompress", "inspect", "--verify", out}))
	assert.Contains(t, stdout.String(), "checksum:    ok")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01
	require.NoError(t, os.WriteFile(out, data, 0o600))
	err = app.Run([]string{"ttcompress", "inspect", "--verify", out})
	assert.ErrorIs(t, err, serialization.ErrChecksumMismatch)
}

func TestRun_FlagsOverrideDefaults(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "x.raw")
	writeRankOne(t, input)
	outDir := filepath.Join(dir, "out")

	var stdout bytes.Buffer
	err := newApp(&stdout, &bytes.Buffer{}).Run([]string{
		"ttcompress", "run",
		"--input", input, "--shape", "3,4,5",
		"--no-cache", "--log-level", "warn",
		"-t", "0.1", "-t", "0.001",
		"--workers", "2",
		"--output", outDir,
	})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(outDir, "report.json"))
	assert.FileExists(t, filepath.Join(outDir, "compressedTensor_0.1.safetensors"))
	assert.FileExists(t, filepath.Join(outDir, "compressedTensor_0.001.safetensors"))

	stdout.Reset()
	require.NoError(t, newApp(&stdout, &bytes.Buffer{}).Run([]string{
		"ttcompress", "plot",
		"--input", input, "--shape", "3x4x5",
		"--no-cache", "--log-level", "warn",
		"--output", outDir, "--contour",
	}))
	assert.Contains(t, stdout.String(), "2 thresholds")
	assert.FileExists(t, filepath.Join(outDir, "compression.png"))
}

func TestRun_InvalidConfig(t *testing.T) {
	err := newApp(&bytes.Buffer{}, &bytes.Buffer{}).Run([]string{
		"ttcompress", "run", "--input", "missing.raw", "--shape", "2x2", "--log-level", "loud",
	})
	assert.Error(t, err)
}
