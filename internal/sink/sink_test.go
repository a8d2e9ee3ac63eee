package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/ingest"
	"github.com/born-ml/tensortrain/internal/sweep"
)

func sample(t *testing.T) *dense.Tensor {
	t.Helper()
	x, err := dense.FromFunc(dense.Shape{3, 4, 5}, func(idx []int) float64 {
		return float64(idx[0]*100+idx[1]*10+idx[2]) / 7
	})
	require.NoError(t, err)
	return x
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "compressedTensor_0.1.safetensors", FileName(DefaultVariable, 1e-1))
	assert.Equal(t, "compressedTensor_1e-05.safetensors", FileName(DefaultVariable, 1e-5))
	assert.Equal(t, "rho_0.001.safetensors", FileName("rho", 1e-3))
}

func TestSafeTensorsSink_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s, err := NewSafeTensorsSink(dir, "")
	require.NoError(t, err)

	x := sample(t)
	rec := sweep.Record{Threshold: 1e-3, Ranks: []int{3, 4}, RelativeError: 2.5e-4, SquaredError: 6.25e-8}
	require.NoError(t, s.Write(context.Background(), rec, x))

	path := s.Path(1e-3)
	got, err := ingest.ReadSafeTensors(path, DefaultVariable, 7)
	require.NoError(t, err)
	assert.Equal(t, x.Shape(), got.Shape())
	assert.Equal(t, x.Data(), got.Data())

	r, err := ingest.NewSafeTensorsReader(path)
	require.NoError(t, err)
	defer r.Close()
	meta := r.Metadata()
	assert.Equal(t, "0.001", meta["threshold"])
	assert.Equal(t, "[3,4]", meta["ranks"])
	assert.Equal(t, "0.00025", meta["relative_error"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSafeTensorsSink_Canceled(t *testing.T) {
	s, err := NewSafeTensorsSink(t.TempDir(), "rho")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Write(ctx, sweep.Record{Threshold: 0.1}, sample(t)), context.Canceled)
}

func TestWriteSafeTensors_LargePayload(t *testing.T) {
	// Spans several write blocks with a remainder.
	n := 8192*2 + 17
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	x, err := dense.New(dense.Shape{n}, data)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSafeTensors(&buf, "v", x, nil))

	path := filepath.Join(t.TempDir(), "v.safetensors")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	got, err := ingest.ReadSafeTensors(path, "v", 1000)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data())
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "report.json")
	records := []sweep.Record{
		{Threshold: 1e-1, Ranks: []int{2, 2}, RelativeError: 0.05, SquaredError: 0.0025, Params: 40, CompressionRatio: 1.5, Duration: 2 * time.Second},
		{Threshold: 0, Err: errors.New("invalid threshold")},
	}
	require.NoError(t, WriteReport(path, []int{3, 4, 5}, records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Report
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, []int{3, 4, 5}, got.Shape)
	require.Len(t, got.Records, 2)
	assert.Equal(t, []int{2, 2}, got.Records[0].Ranks)
	assert.Equal(t, 2.0, got.Records[0].DurationSeconds)
	assert.Empty(t, got.Records[0].Error)
	assert.Equal(t, "invalid threshold", got.Records[1].Error)
}

func TestOutputs(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSafeTensorsSink(dir, "")
	require.NoError(t, err)
	for _, eps := range []float64{1e-3, 1e-1, 1e-5} {
		require.NoError(t, s.Write(context.Background(), sweep.Record{Threshold: eps, Ranks: []int{1, 1}}, sample(t)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "compressedTensor_final.safetensors"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other_0.1.safetensors"), nil, 0o600))

	outs, err := Outputs(dir, "")
	require.NoError(t, err)
	require.Len(t, outs, 3)
	assert.Equal(t, []float64{1e-1, 1e-3, 1e-5}, []float64{outs[0].Threshold, outs[1].Threshold, outs[2].Threshold})
	assert.Equal(t, s.Path(1e-3), outs[1].Path)

	outs, err = Outputs(filepath.Join(dir, "missing"), "")
	require.NoError(t, err)
	assert.Empty(t, outs)
}
