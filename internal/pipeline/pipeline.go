// Package pipeline runs a full compression job: ingest the source tensor,
// decompose it into an exact tensor train, sweep the thresholds and write
// the results. Intermediate tensors are reused through the cache.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/tensortrain/internal/cache"
	"github.com/born-ml/tensortrain/internal/cache/minio"
	"github.com/born-ml/tensortrain/internal/config"
	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/ingest"
	"github.com/born-ml/tensortrain/internal/parallel"
	"github.com/born-ml/tensortrain/internal/plot"
	"github.com/born-ml/tensortrain/internal/serialization"
	"github.com/born-ml/tensortrain/internal/sink"
	"github.com/born-ml/tensortrain/internal/sweep"
	"github.com/born-ml/tensortrain/internal/tt"
)

// Result summarizes a completed run.
type Result struct {
	Shape      dense.Shape
	NonZero    int
	ExactRanks []int
	Records    []sweep.Record
	Cache      cache.Stats
	ReportPath string
}

// Pipeline executes runs for one configuration.
type Pipeline struct {
	cfg      *config.Config
	logger   logrus.FieldLogger
	registry prometheus.Registerer
}

// New returns a Pipeline. A nil logger discards output and a nil registry
// disables metrics.
func New(cfg *config.Config, logger logrus.FieldLogger, reg prometheus.Registerer) *Pipeline {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Pipeline{cfg: cfg, logger: logger, registry: reg}
}

// Run executes ingest → decompose → sweep → sink.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	ref, exact, c, key, err := p.prepare(ctx)
	if err != nil {
		return nil, err
	}

	opts := []sweep.Option{sweep.WithLogger(p.logger)}
	if p.registry != nil {
		opts = append(opts, sweep.WithMetrics(sweep.NewMetrics(p.registry)))
	}
	if c != nil {
		opts = append(opts, sweep.WithCache(c, key))
	}
	if !p.cfg.Output.SkipFiles {
		s, err := sink.NewSafeTensorsSink(p.cfg.Output.Dir, p.cfg.Output.Variable)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sweep.WithSink(s))
	}

	sw := sweep.New(sweep.Config{
		Workers:          p.cfg.Sweep.Workers,
		MemoryLimitBytes: p.cfg.Sweep.MemoryLimitBytes,
		Round:            tt.RoundOptions{MaxRank: p.cfg.Sweep.MaxRank},
		Parallel:         parallel.DefaultConfig(),
	}, opts...)

	start := time.Now()
	records, err := sw.Run(ctx, ref, exact, p.cfg.Sweep.Thresholds)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Shape:      ref.Shape(),
		NonZero:    ref.CountNonZero(0),
		ExactRanks: exact.Ranks(),
		Records:    records,
	}
	if c != nil {
		res.Cache = c.Stats()
	}

	res.ReportPath = p.cfg.Output.Report
	if !filepath.IsAbs(res.ReportPath) {
		res.ReportPath = filepath.Join(p.cfg.Output.Dir, res.ReportPath)
	}
	if err := sink.WriteReport(res.ReportPath, ref.Shape(), records); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	failed := 0
	for _, rec := range records {
		if !rec.OK() {
			failed++
		}
	}
	p.logger.WithFields(logrus.Fields{
		"thresholds": len(records),
		"failed":     failed,
		"duration":   time.Since(start),
		"report":     res.ReportPath,
	}).Info("sweep complete")
	return res, nil
}

// Decompose ingests the source and returns its exact tensor train, using the
// cache when enabled.
func (p *Pipeline) Decompose(ctx context.Context) (*tt.Tensor, error) {
	_, exact, _, _, err := p.prepare(ctx)
	return exact, err
}

// Reference returns the source tensor, using the cache when enabled.
func (p *Pipeline) Reference(ctx context.Context) (*dense.Tensor, error) {
	ref, _, _, err := p.reference(ctx)
	return ref, err
}

// Plot renders the boundary faces of every per-threshold output found in
// the output directory, coarsest first, followed by the source tensor, and
// writes the PNG to path. Returns the number of thresholds drawn.
func (p *Pipeline) Plot(ctx context.Context, path string, opts plot.Options) (int, error) {
	outputs, err := sink.Outputs(p.cfg.Output.Dir, p.cfg.Output.Variable)
	if err != nil {
		return 0, err
	}
	if len(outputs) == 0 {
		return 0, fmt.Errorf("%w: no outputs in %s", plot.ErrNotPlottable, p.cfg.Output.Dir)
	}
	ref, err := p.Reference(ctx)
	if err != nil {
		return 0, err
	}

	variable := p.cfg.Output.Variable
	if variable == "" {
		variable = sink.DefaultVariable
	}
	panels := make([]plot.Panel, 0, len(outputs)+1)
	for _, o := range outputs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		x, err := ingest.ReadSafeTensors(o.Path, variable, p.cfg.Input.ChunkElems)
		if err != nil {
			return 0, err
		}
		panels = append(panels, plot.Panel{Label: fmt.Sprintf("thr = %g", o.Threshold), Tensor: x})
	}
	panels = append(panels, plot.Panel{Label: "original", Tensor: ref})

	if err := serialization.SaveFile(path, func(w io.Writer) error {
		return plot.Render(w, panels, opts)
	}); err != nil {
		return 0, fmt.Errorf("plot: %w", err)
	}
	p.logger.WithFields(logrus.Fields{
		"thresholds": len(outputs),
		"figure":     path,
	}).Info("plot written")
	return len(outputs), nil
}

func (p *Pipeline) reference(ctx context.Context) (*dense.Tensor, *cache.Cache, string, error) {
	c, err := p.openCache(ctx)
	if err != nil {
		return nil, nil, "", err
	}
	denseKey, err := p.sourceKey()
	if err != nil {
		return nil, nil, "", err
	}

	load := func(ctx context.Context) (*dense.Tensor, error) {
		return p.ingest()
	}
	ref, err := p.denseFrom(ctx, c, denseKey, load)
	if err != nil {
		return nil, nil, "", err
	}
	p.logger.WithFields(logrus.Fields{
		"shape":    ref.Shape().String(),
		"non_zero": ref.CountNonZero(0),
	}).Info("tensor ready")
	return ref, c, denseKey, nil
}

func (p *Pipeline) prepare(ctx context.Context) (*dense.Tensor, *tt.Tensor, *cache.Cache, string, error) {
	ref, c, denseKey, err := p.reference(ctx)
	if err != nil {
		return nil, nil, nil, "", err
	}
	exactKey := cache.Key("exact", denseKey, p.cfg.Decompose.Tolerance, p.cfg.Decompose.MaxRank)

	decompose := func(ctx context.Context) (*tt.Tensor, error) {
		start := time.Now()
		exact, err := tt.Decompose(ctx, ref, tt.DecomposeOptions{
			Tolerance: p.cfg.Decompose.Tolerance,
			MaxRank:   p.cfg.Decompose.MaxRank,
		})
		if err == nil {
			p.logger.WithFields(logrus.Fields{
				"ranks":    exact.Ranks(),
				"duration": time.Since(start),
			}).Info("decomposed")
		}
		return exact, err
	}
	var exact *tt.Tensor
	if c == nil {
		exact, err = decompose(ctx)
	} else {
		exact, err = c.TT(ctx, exactKey, decompose)
	}
	if err != nil {
		return nil, nil, nil, "", err
	}
	return ref, exact, c, exactKey, nil
}

func (p *Pipeline) denseFrom(ctx context.Context, c *cache.Cache, key string, load func(context.Context) (*dense.Tensor, error)) (*dense.Tensor, error) {
	if c == nil {
		return load(ctx)
	}
	return c.Dense(ctx, key, load)
}

func (p *Pipeline) ingest() (*dense.Tensor, error) {
	in := p.cfg.Input
	dtype, err := ingest.ParseDType(in.DType)
	if err != nil {
		return nil, err
	}
	order, err := ingest.ParseOrder(in.Order)
	if err != nil {
		return nil, err
	}
	var shape dense.Shape
	if in.Shape != nil {
		shape = dense.Shape(in.Shape)
	}
	return ingest.Open(in.Path, ingest.Options{
		Format:     ingest.Format(in.Format),
		Variable:   in.Variable,
		Shape:      shape,
		DType:      dtype,
		Order:      order,
		ChunkElems: in.ChunkElems,
		Logger:     p.logger,
	})
}

// sourceKey identifies the source by path, size, modification time and the
// options that affect how it is read.
func (p *Pipeline) sourceKey() (string, error) {
	in := p.cfg.Input
	abs, err := filepath.Abs(in.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ingest.ErrIngestion, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ingest.ErrIngestion, err)
	}
	return cache.Key("dense", abs, info.Size(), info.ModTime().UnixNano(),
		in.Format, in.Variable, in.Shape, in.DType, in.Order), nil
}

func (p *Pipeline) openCache(ctx context.Context) (*cache.Cache, error) {
	cc := p.cfg.Cache
	if cc.Disabled {
		return nil, nil
	}
	compression, err := serialization.ParseCompression(cc.Compression)
	if err != nil {
		return nil, err
	}

	var store cache.Store
	if cc.MinIO.Endpoint != "" {
		store, err = minio.Dial(ctx, minio.Config{
			Endpoint:  cc.MinIO.Endpoint,
			AccessKey: cc.MinIO.AccessKey,
			SecretKey: cc.MinIO.SecretKey,
			Bucket:    cc.MinIO.Bucket,
			Prefix:    cc.MinIO.Prefix,
			Secure:    cc.MinIO.Secure,
		})
	} else {
		store, err = cache.NewLocalStore(cc.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return cache.New(store, cache.Options{Compression: compression, Logger: p.logger}), nil
}
