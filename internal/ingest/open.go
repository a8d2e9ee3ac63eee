package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/tensortrain/internal/dense"
)

// Format names a source file format.
type Format string

// Supported source formats.
const (
	FormatAuto        Format = ""
	FormatRaw         Format = "raw"
	FormatSafeTensors Format = "safetensors"
)

// Options configures Open.
type Options struct {
	Format     Format
	Variable   string      // safetensors variable name
	Shape      dense.Shape // required for raw sources; checked for safetensors when set
	DType      DType
	Order      Order
	ChunkElems int
	Logger     logrus.FieldLogger
}

// Open loads a dense tensor from path. With FormatAuto the format is chosen by
// extension: ".safetensors" selects safetensors, anything else is read raw.
func Open(path string, opts Options) (*dense.Tensor, error) {
	format := opts.Format
	if format == FormatAuto {
		format = FormatRaw
		if strings.EqualFold(filepath.Ext(path), ".safetensors") {
			format = FormatSafeTensors
		}
	}

	var (
		x   *dense.Tensor
		err error
	)
	switch format {
	case FormatSafeTensors:
		x, err = ReadSafeTensors(path, opts.Variable, opts.ChunkElems)
		if err == nil && opts.Shape != nil && !opts.Shape.Equal(x.Shape()) {
			err = fmt.Errorf("%w: %w: variable %q is %v, expected %v", ErrIngestion, dense.ErrShapeMismatch, opts.Variable, x.Shape(), opts.Shape)
		}
	case FormatRaw:
		x, err = openRaw(path, opts)
	default:
		err = fmt.Errorf("%w: unknown format %q", ErrIngestion, format)
	}
	if err != nil {
		return nil, err
	}

	if opts.Logger != nil {
		opts.Logger.WithFields(logrus.Fields{
			"path":   path,
			"format": format,
			"shape":  x.Shape().String(),
		}).Debug("ingested tensor")
	}
	return x, nil
}

func openRaw(path string, opts Options) (*dense.Tensor, error) {
	if opts.Shape == nil {
		return nil, fmt.Errorf("%w: raw source %s needs an explicit shape", ErrIngestion, path)
	}
	//nolint:gosec // G304: path is supplied by the caller
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}
	defer func() { _ = f.Close() }()
	return ReadRaw(f, opts.Shape, RawOptions{DType: opts.DType, Order: opts.Order, ChunkElems: opts.ChunkElems})
}
