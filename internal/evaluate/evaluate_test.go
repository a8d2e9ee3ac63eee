package evaluate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/parallel"
	"github.com/born-ml/tensortrain/internal/tt"
)

func TestReconstruct_MatchesElementwise(t *testing.T) {
	x, err := tt.Random(dense.Shape{3, 4, 2, 5}, []int{2, 3, 2}, rand.New(rand.NewSource(2)))
	require.NoError(t, err)

	full := Reconstruct(x)
	require.Equal(t, x.Dims(), full.Shape())
	for a := 0; a < 3; a++ {
		for b := 0; b < 4; b++ {
			for c := 0; c < 2; c++ {
				for d := 0; d < 5; d++ {
					assert.InDelta(t, x.At(a, b, c, d), full.At(a, b, c, d), 1e-12)
				}
			}
		}
	}
	assert.InDelta(t, x.Norm(), full.FrobeniusNorm(), 1e-10)
}

func TestReconstruct_ParallelMatchesSequential(t *testing.T) {
	x, err := tt.Random(dense.Shape{16, 12, 10}, []int{5, 4}, rand.New(rand.NewSource(8)))
	require.NoError(t, err)

	seq := Reconstruct(x)
	par := New(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 3}).Reconstruct(x)
	assert.InDeltaSlice(t, seq.Data(), par.Data(), 1e-12)
}

func TestReconstruct_SingleCore(t *testing.T) {
	c, err := tt.NewCore(1, 3, 1, []float64{1, 2, 3})
	require.NoError(t, err)
	x, err := tt.New([]*tt.Core{c})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, Reconstruct(x).Data())
}

func TestRelativeError(t *testing.T) {
	x, err := tt.Random(dense.Shape{4, 4}, []int{2}, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	ref := Reconstruct(x)

	rel, err := RelativeError(ref, x)
	require.NoError(t, err)
	assert.InDelta(t, 0, rel, 1e-15)

	// Perturb one element by a known amount.
	data := append([]float64(nil), ref.Data()...)
	data[5] += 0.5
	perturbed, err := dense.New(ref.Shape(), data)
	require.NoError(t, err)

	rel, err = RelativeError(perturbed, x)
	require.NoError(t, err)
	assert.InDelta(t, 0.5/perturbed.FrobeniusNorm(), rel, 1e-12)

	sq, err := New(parallel.Sequential()).SquaredRelativeError(perturbed, x)
	require.NoError(t, err)
	assert.InDelta(t, rel*rel, sq, 1e-15)
}

func TestRelativeError_ShapeMismatch(t *testing.T) {
	x, err := tt.Random(dense.Shape{4, 4}, []int{2}, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	_, err = RelativeError(dense.Zeros(dense.Shape{4, 5}), x)
	assert.ErrorIs(t, err, dense.ErrShapeMismatch)
}

func TestCompare_ZeroReference(t *testing.T) {
	zero := dense.Zeros(dense.Shape{2, 3})

	rel, err := Compare(zero, dense.Zeros(dense.Shape{2, 3}))
	require.NoError(t, err)
	assert.Zero(t, rel)

	nonzero, err := dense.New(dense.Shape{2, 3}, []float64{0, 0, 1, 0, 0, 0})
	require.NoError(t, err)
	rel, err = Compare(zero, nonzero)
	assert.ErrorIs(t, err, ErrZeroReference)
	assert.False(t, math.IsNaN(rel))
}
