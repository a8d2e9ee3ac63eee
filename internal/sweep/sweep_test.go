package sweep

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensortrain/internal/cache"
	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/evaluate"
	"github.com/born-ml/tensortrain/internal/parallel"
	"github.com/born-ml/tensortrain/internal/tt"
)

const slack = 1e-10

// fixture returns a tensor with a decaying spectrum and its exact train.
func fixture(t *testing.T) (*dense.Tensor, *tt.Tensor) {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	shape := dense.Shape{8, 9, 10}
	base, err := tt.Random(shape, []int{4, 4}, rng)
	require.NoError(t, err)

	x := evaluate.Reconstruct(base)
	data := append([]float64(nil), x.Data()...)
	scale := 1e-3 * x.FrobeniusNorm() / math.Sqrt(float64(len(data)))
	for i := range data {
		data[i] += scale * rng.NormFloat64()
	}
	ref, err := dense.New(shape, data)
	require.NoError(t, err)

	exact, err := tt.Decompose(context.Background(), ref, tt.DefaultDecomposeOptions())
	require.NoError(t, err)
	return ref, exact
}

func TestRun_DefaultThresholds(t *testing.T) {
	ref, exact := fixture(t)
	s := New(Config{Workers: 3, Parallel: parallel.DefaultConfig()})

	records, err := s.Run(context.Background(), ref, exact, DefaultThresholds)
	require.NoError(t, err)
	require.Len(t, records, 8)

	for i, rec := range records {
		require.NoError(t, rec.Err, "threshold %g", rec.Threshold)
		assert.Equal(t, DefaultThresholds[i], rec.Threshold)
		assert.LessOrEqual(t, rec.RelativeError, rec.Threshold+slack)
		assert.InDelta(t, rec.RelativeError*rec.RelativeError, rec.SquaredError, 1e-15)
		assert.InDelta(t, rec.RelativeError, rec.EstimatedError, 1e-8)
		assert.Equal(t, float64(ref.Len())/float64(rec.Params), rec.CompressionRatio)
		assert.Len(t, rec.Ranks, 2)

		if i == 0 {
			continue
		}
		prev := records[i-1]
		for k := range rec.Ranks {
			assert.GreaterOrEqual(t, rec.Ranks[k], prev.Ranks[k], "bond %d at %g", k, rec.Threshold)
		}
		assert.LessOrEqual(t, rec.RelativeError, prev.RelativeError+slack)
	}
	assert.Less(t, records[0].MaxRank(), records[7].MaxRank())
}

func TestRun_FailureIsolated(t *testing.T) {
	ref, exact := fixture(t)
	s := New(Config{Workers: 2})

	thresholds := []float64{1e-1, 0, math.NaN(), 1e-3}
	records, err := s.Run(context.Background(), ref, exact, thresholds)
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.NoError(t, records[0].Err)
	assert.ErrorIs(t, records[1].Err, tt.ErrInvalidThreshold)
	assert.ErrorIs(t, records[2].Err, tt.ErrInvalidThreshold)
	assert.NoError(t, records[3].Err)
	assert.Contains(t, records[1].String(), "error")
}

func TestRun_Canceled(t *testing.T) {
	ref, exact := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := New(Config{Workers: 1}).Run(ctx, ref, exact, []float64{1e-1, 1e-2, 1e-3})
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.ErrorIs(t, rec.Err, context.Canceled)
	}
}

func TestRun_ShapeMismatch(t *testing.T) {
	ref, _ := fixture(t)
	other, err := tt.Random(dense.Shape{8, 9, 11}, []int{2, 2}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	_, err = New(Config{}).Run(context.Background(), ref, other, DefaultThresholds)
	assert.ErrorIs(t, err, dense.ErrShapeMismatch)
}

func TestRun_Empty(t *testing.T) {
	ref, exact := fixture(t)
	records, err := New(Config{}).Run(context.Background(), ref, exact, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

type recordingSink struct {
	mu     sync.Mutex
	seen   map[float64]*dense.Tensor
	failAt float64
}

func (s *recordingSink) Write(_ context.Context, rec Record, approx *dense.Tensor) error {
	if rec.Threshold == s.failAt {
		return errors.New("disk full")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[rec.Threshold] = approx
	return nil
}

func TestRun_Sink(t *testing.T) {
	ref, exact := fixture(t)
	sink := &recordingSink{seen: make(map[float64]*dense.Tensor), failAt: 1e-2}

	records, err := New(Config{Workers: 2}, WithSink(sink)).Run(context.Background(), ref, exact, []float64{1e-1, 1e-2, 1e-4})
	require.NoError(t, err)

	assert.NoError(t, records[0].Err)
	assert.ErrorContains(t, records[1].Err, "disk full")
	assert.NoError(t, records[2].Err)

	require.Len(t, sink.seen, 2)
	rel, err := evaluate.Compare(ref, sink.seen[1e-4])
	require.NoError(t, err)
	assert.Equal(t, records[2].RelativeError, rel)
}

func TestRun_MemoryBudget(t *testing.T) {
	ref, exact := fixture(t)
	// Smaller than a single reconstruction: workers are serialized, not deadlocked.
	s := New(Config{Workers: 4, MemoryLimitBytes: 1024})

	records, err := s.Run(context.Background(), ref, exact, DefaultThresholds)
	require.NoError(t, err)
	for _, rec := range records {
		assert.NoError(t, rec.Err)
	}
}

func TestMemoryBudget(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBudget(100)

	got, err := b.acquire(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got)
	assert.Equal(t, int64(60), b.inUse())

	blocked, cancel := context.WithCancel(ctx)
	cancel()
	_, err = b.acquire(blocked, 60)
	assert.ErrorIs(t, err, context.Canceled)

	b.release(60)
	got, err = b.acquire(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got, "clamped to the limit")
	b.release(got)
	assert.Zero(t, b.inUse())

	unlimited := newMemoryBudget(0)
	got, err = unlimited.acquire(ctx, 1<<40)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), got)
}

func TestRun_Metrics(t *testing.T) {
	ref, exact := fixture(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	_, err := New(Config{Workers: 2}, WithMetrics(m)).Run(context.Background(), ref, exact, []float64{1e-1, -1, 1e-2})
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RoundsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoundsTotal.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightBytes))
	assert.Equal(t, 2, testutil.CollectAndCount(m.AchievedError))
	assert.LessOrEqual(t, testutil.ToFloat64(m.AchievedError.WithLabelValues("0.01")), 1e-2+slack)
}

func TestRun_Logging(t *testing.T) {
	ref, exact := fixture(t)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	_, err := New(Config{Workers: 1}, WithLogger(logger)).Run(context.Background(), ref, exact, []float64{1e-1, 0})
	require.NoError(t, err)

	var infos, warns int
	for _, e := range hook.AllEntries() {
		switch e.Level {
		case logrus.InfoLevel:
			infos++
			assert.Contains(t, e.Data, "rel_error")
		case logrus.WarnLevel:
			warns++
		}
	}
	assert.Equal(t, 1, infos)
	assert.Equal(t, 1, warns)
}

func TestRun_Cache(t *testing.T) {
	ref, exact := fixture(t)
	c := cache.New(cache.NewMemoryStore(), cache.Options{})
	s := New(Config{Workers: 2}, WithCache(c, "fixture"))

	first, err := s.Run(context.Background(), ref, exact, []float64{1e-1, 1e-3})
	require.NoError(t, err)
	assert.Equal(t, cache.Stats{Misses: 2, Stores: 2}, c.Stats())

	second, err := s.Run(context.Background(), ref, exact, []float64{1e-1, 1e-3})
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Stats().Hits)
	for i := range first {
		assert.Equal(t, first[i].Ranks, second[i].Ranks)
		assert.InDelta(t, first[i].RelativeError, second[i].RelativeError, 1e-15)
	}
}

func TestRun_CacheDuplicateThresholds(t *testing.T) {
	ref, exact := fixture(t)
	c := cache.New(cache.NewMemoryStore(), cache.Options{})
	s := New(Config{Workers: 2}, WithCache(c, "fixture"))

	records, err := s.Run(context.Background(), ref, exact, []float64{1e-3, 1e-3})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, records[0].Ranks, records[1].Ranks)
	for _, rec := range records {
		require.NoError(t, rec.Err)
		assert.InDelta(t, rec.RelativeError, rec.EstimatedError, 1e-8)
	}
}

func TestRecord(t *testing.T) {
	rec := Record{Threshold: 1e-2, Ranks: []int{3, 7, 2}, RelativeError: 5e-3}
	assert.True(t, rec.OK())
	assert.Equal(t, 7, rec.MaxRank())
	assert.Contains(t, rec.String(), "ranks=[3 7 2]")
	assert.Equal(t, 1, Record{}.MaxRank())
}
