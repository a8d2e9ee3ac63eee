package sweep

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/tensortrain/internal/cache"
	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/evaluate"
	"github.com/born-ml/tensortrain/internal/parallel"
	"github.com/born-ml/tensortrain/internal/tt"
)

// Sink receives every successful record together with the dense
// reconstruction it was measured on.
type Sink interface {
	Write(ctx context.Context, rec Record, approx *dense.Tensor) error
}

// Config configures a Sweep.
type Config struct {
	// Workers is the number of thresholds processed concurrently.
	// Zero selects runtime.NumCPU().
	Workers int
	// MemoryLimitBytes bounds the dense reconstructions alive at once.
	// Zero means unlimited.
	MemoryLimitBytes int64
	// Round is passed to tt.RoundWithStats for every threshold.
	Round tt.RoundOptions
	// Parallel configures the contraction inside each evaluation.
	Parallel parallel.Config
}

// Option customizes a Sweep.
type Option func(*Sweep)

// WithLogger sets the logger. The default discards output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Sweep) { s.logger = l }
}

// WithMetrics records progress in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Sweep) { s.metrics = m }
}

// WithSink hands every successful reconstruction to sink.
func WithSink(sink Sink) Option {
	return func(s *Sweep) { s.sink = sink }
}

// WithCache reuses rounded trains across runs. base identifies the exact
// train being rounded and is combined with each threshold into a cache key.
func WithCache(c *cache.Cache, base string) Option {
	return func(s *Sweep) {
		s.cache = c
		s.cacheBase = base
	}
}

// Sweep rounds an exact train to many thresholds.
type Sweep struct {
	cfg       Config
	logger    logrus.FieldLogger
	metrics   *Metrics
	sink      Sink
	cache     *cache.Cache
	cacheBase string
	evaluator *evaluate.Evaluator
}

// New creates a Sweep.
func New(cfg Config, opts ...Option) *Sweep {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	s := &Sweep{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.logger = l
	}
	s.evaluator = evaluate.New(cfg.Parallel)
	return s
}

// Run rounds exact to every threshold and measures each result against ref.
//
// Records are returned in the order of thresholds, one per threshold. A
// failed threshold yields a record with Err set and never stops the others;
// after ctx is canceled the remaining thresholds get ctx.Err(). The returned
// error is non-nil only when ref and exact describe different shapes.
func (s *Sweep) Run(ctx context.Context, ref *dense.Tensor, exact *tt.Tensor, thresholds []float64) ([]Record, error) {
	if !ref.Shape().Equal(exact.Dims()) {
		return nil, fmt.Errorf("%w: reference %v vs tensor train %v", dense.ErrShapeMismatch, ref.Shape(), exact.Dims())
	}

	// Each evaluation holds a reconstruction and a difference tensor.
	perWorker := int64(2 * ref.Len() * 8)
	budget := newMemoryBudget(s.cfg.MemoryLimitBytes)

	records := make([]Record, len(thresholds))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, eps := range thresholds {
		i, eps := i, eps
		g.Go(func() error {
			reserved, err := budget.acquire(ctx, perWorker)
			if err != nil {
				records[i] = Record{Threshold: eps, Err: err}
				s.metrics.observe(records[i])
				return nil
			}
			s.metrics.reserve(reserved)
			defer func() {
				budget.release(reserved)
				s.metrics.reserve(-reserved)
			}()

			records[i] = s.runOne(ctx, ref, exact, eps)
			return nil
		})
	}
	_ = g.Wait() // workers never fail; errors live in records

	return records, nil
}

func (s *Sweep) runOne(ctx context.Context, ref *dense.Tensor, exact *tt.Tensor, eps float64) Record {
	start := time.Now()
	rec := Record{Threshold: eps}
	log := s.logger.WithField("threshold", eps)

	defer func() {
		rec.Duration = time.Since(start)
		s.metrics.observe(rec)
	}()

	if err := ctx.Err(); err != nil {
		rec.Err = err
		return rec
	}

	rounded, estimate, err := s.round(ctx, exact, eps)
	if err != nil {
		rec.Err = err
		log.WithError(err).Warn("rounding failed")
		return rec
	}

	approx := s.evaluator.Reconstruct(rounded)
	rel, err := evaluate.Compare(ref, approx)
	if err != nil {
		rec.Err = err
		log.WithError(err).Warn("evaluation failed")
		return rec
	}

	rec.Ranks = rounded.Ranks()
	rec.RelativeError = rel
	rec.SquaredError = rel * rel
	rec.EstimatedError = estimate
	if estimate < 0 {
		rec.EstimatedError = rel
	}
	rec.Params = rounded.NumParams()
	rec.CompressionRatio = rounded.CompressionRatio()

	if s.sink != nil {
		if err := s.sink.Write(ctx, rec, approx); err != nil {
			rec.Err = fmt.Errorf("sink: %w", err)
			log.WithError(err).Warn("sink failed")
			return rec
		}
	}

	log.WithFields(logrus.Fields{
		"ranks":     rec.Ranks,
		"rel_error": rec.RelativeError,
		"duration":  time.Since(start),
	}).Info("threshold complete")
	return rec
}

// round returns the rounded train and the estimated error, consulting the
// cache when one is configured. Cached trains report the measured error as
// their estimate is not stored.
func (s *Sweep) round(ctx context.Context, exact *tt.Tensor, eps float64) (*tt.Tensor, float64, error) {
	if s.cache == nil {
		out, stats, err := tt.RoundWithStats(ctx, exact, eps, s.cfg.Round)
		return out, stats.EstimatedError, err
	}

	estimate := -1.0
	key := cache.Key("round", s.cacheBase, eps, s.cfg.Round.MaxRank)
	out, err := s.cache.TT(ctx, key, func(ctx context.Context) (*tt.Tensor, error) {
		out, stats, err := tt.RoundWithStats(ctx, exact, eps, s.cfg.Round)
		estimate = stats.EstimatedError
		return out, err
	})
	return out, estimate, err
}
