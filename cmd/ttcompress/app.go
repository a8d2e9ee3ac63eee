package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/born-ml/tensortrain/internal/config"
	"github.com/born-ml/tensortrain/internal/pipeline"
	"github.com/born-ml/tensortrain/internal/plot"
	"github.com/born-ml/tensortrain/internal/serialization"
)

func newApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:                 "ttcompress",
		Usage:                "compress dense tensors with Tensor-Train rounding",
		Version:              version,
		Writer:               out,
		ErrWriter:            errOut,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "ingest, decompose and sweep thresholds, writing one file per threshold",
				Flags:  append(inputFlags(), runFlags()...),
				Action: runAction,
			},
			{
				Name:  "decompose",
				Usage: "ingest and decompose, writing the exact tensor train",
				Flags: append(inputFlags(), &cli.StringFlag{
					Name:     "out",
					Aliases:  []string{"o"},
					Usage:    "destination .ttc file",
					Required: true,
				}),
				Action: decomposeAction,
			},
			{
				Name:  "plot",
				Usage: "draw boundary faces of every written threshold next to the source",
				Flags: append(inputFlags(),
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "directory holding the per-threshold files"},
					&cli.StringFlag{Name: "figure", Usage: "PNG to write (default <output>/compression.png)"},
					&cli.BoolFlag{Name: "contour", Usage: "filled contours instead of heat maps"},
					&cli.IntFlag{Name: "levels", Value: 10, Usage: "color levels"},
				),
				Action: plotAction,
			},
			{
				Name:      "inspect",
				Usage:     "describe a .ttc file",
				ArgsUsage: "<file.ttc>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verify", Usage: "stream the payload through its checksum"},
				},
				Action: inspectAction,
			},
			{
				Name:  "version",
				Usage: "show version",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintf(c.App.Writer, "ttcompress %s\n", version)
					return err
				},
			},
		},
	}
}

func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file", EnvVars: []string{"TTCOMPRESS_CONFIG"}},
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "source tensor file (.safetensors or raw)"},
		&cli.StringFlag{Name: "shape", Usage: "dimension tuple, e.g. 256x256x256"},
		&cli.StringFlag{Name: "variable", Usage: "safetensors variable to read"},
		&cli.StringFlag{Name: "dtype", Usage: "raw element type: F64 or F32"},
		&cli.StringFlag{Name: "order", Usage: "raw layout: row-major or column-major"},
		&cli.Float64Flag{Name: "tolerance", Usage: "relative singular value cutoff for decomposition"},
		&cli.StringFlag{Name: "cache-dir", Usage: "directory for cached tensors"},
		&cli.BoolFlag{Name: "no-cache", Usage: "disable the tensor cache"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: "log-format", Usage: "text or json"},
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64SliceFlag{Name: "threshold", Aliases: []string{"t"}, Usage: "relative error target (repeatable)"},
		&cli.IntFlag{Name: "workers", Usage: "thresholds processed concurrently"},
		&cli.Int64Flag{Name: "memory-limit", Usage: "bytes of reconstructions alive at once (0 = unlimited)"},
		&cli.IntFlag{Name: "max-rank", Usage: "cap on every rounded bond (0 = unbounded)"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output directory"},
		&cli.BoolFlag{Name: "report-only", Usage: "write report.json without per-threshold tensors"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
	}
}

// loadConfig resolves YAML, defaults and flag overrides, then validates.
//
//nolint:gocyclo,cyclop // One branch per flag
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if v := c.String("input"); v != "" {
		cfg.Input.Path = v
	}
	if v := c.String("shape"); v != "" {
		shape, err := parseShape(v)
		if err != nil {
			return nil, err
		}
		cfg.Input.Shape = shape
	}
	if v := c.String("variable"); v != "" {
		cfg.Input.Variable = v
	}
	if v := c.String("dtype"); v != "" {
		cfg.Input.DType = v
	}
	if v := c.String("order"); v != "" {
		cfg.Input.Order = v
	}
	if c.IsSet("tolerance") {
		cfg.Decompose.Tolerance = c.Float64("tolerance")
	}
	if v := c.String("cache-dir"); v != "" {
		cfg.Cache.Dir = v
	}
	if c.Bool("no-cache") {
		cfg.Cache.Disabled = true
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	if v := c.Float64Slice("threshold"); len(v) > 0 {
		cfg.Sweep.Thresholds = v
	}
	if c.IsSet("workers") {
		cfg.Sweep.Workers = c.Int("workers")
	}
	if c.IsSet("memory-limit") {
		cfg.Sweep.MemoryLimitBytes = c.Int64("memory-limit")
	}
	if c.IsSet("max-rank") {
		cfg.Sweep.MaxRank = c.Int("max-rank")
	}
	if v := c.String("output"); v != "" {
		cfg.Output.Dir = v
	}
	if c.Bool("report-only") {
		cfg.Output.SkipFiles = true
	}
	if v := c.String("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseShape accepts "256x256x256" or "256,256,256".
func parseShape(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == 'x' || r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("invalid shape %q", s)
	}
	shape := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid shape %q: dimension %q", s, f)
		}
		shape[i] = n
	}
	return shape, nil
}

func newLogger(cfg config.Logging, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging, c.App.ErrWriter)
	if err != nil {
		return err
	}

	var reg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		stop := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer stop()
	}

	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}
	res, err := pipeline.New(cfg, logger, registerer).Run(c.Context)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "shape %v, non-zero entries %d, exact ranks %v\n", res.Shape, res.NonZero, res.ExactRanks)
	failed := 0
	for _, rec := range res.Records {
		fmt.Fprintln(w, rec.String())
		if !rec.OK() {
			failed++
		}
	}
	fmt.Fprintf(w, "report: %s\n", res.ReportPath)
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d thresholds failed", failed, len(res.Records)), 2)
	}
	return nil
}

func decomposeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging, c.App.ErrWriter)
	if err != nil {
		return err
	}
	compression, err := serialization.ParseCompression(cfg.Cache.Compression)
	if err != nil {
		return err
	}

	exact, err := pipeline.New(cfg, logger, nil).Decompose(c.Context)
	if err != nil {
		return err
	}
	out := c.String("out")
	if err := serialization.SaveFile(out, func(w io.Writer) error {
		return serialization.WriteTT(w, exact, serialization.WriterOptions{
			Compression: compression,
			Metadata:    map[string]string{"source": cfg.Input.Path},
		})
	}); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s: %v, %d parameters (ratio %.1f)\n", out, exact, exact.NumParams(), exact.CompressionRatio())
	return nil
}

func plotAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging, c.App.ErrWriter)
	if err != nil {
		return err
	}

	figure := c.String("figure")
	if figure == "" {
		figure = filepath.Join(cfg.Output.Dir, "compression.png")
	}
	opts := plot.DefaultOptions()
	opts.Contour = c.Bool("contour")
	opts.Levels = c.Int("levels")

	n, err := pipeline.New(cfg, logger, nil).Plot(c.Context, figure, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s: %d thresholds and the source\n", figure, n)
	return nil
}

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("inspect takes exactly one file", 1)
	}
	path := c.Args().First()
	//nolint:gosec // G304: path is supplied by the operator
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	describe := serialization.Inspect
	if c.Bool("verify") {
		describe = serialization.Verify
	}
	header, kind, err := describe(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	w := c.App.Writer
	fmt.Fprintf(w, "file:        %s\n", path)
	fmt.Fprintf(w, "kind:        %s\n", kind)
	fmt.Fprintf(w, "shape:       %v\n", header.Shape)
	if len(header.Ranks) > 0 {
		fmt.Fprintf(w, "ranks:       %v\n", header.Ranks)
	}
	fmt.Fprintf(w, "compression: %s\n", header.Compression)
	fmt.Fprintf(w, "raw size:    %d bytes\n", header.RawSize)
	fmt.Fprintf(w, "created:     %s\n", header.CreatedAt.Format(time.RFC3339))
	for k, v := range header.Metadata {
		fmt.Fprintf(w, "meta %s: %s\n", k, v)
	}
	if c.Bool("verify") {
		fmt.Fprintln(w, "checksum:    ok")
	}
	return nil
}

// serveMetrics exposes reg on addr and returns a function that shuts the
// server down.
func serveMetrics(addr string, reg *prometheus.Registry, logger logrus.FieldLogger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server failed")
		}
	}()
	logger.WithField("addr", addr).Info("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
