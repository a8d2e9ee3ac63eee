package plot

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/parallel"
)

// Panel is one tensor to draw, labelled in the first column of its row.
type Panel struct {
	Label  string
	Tensor *dense.Tensor
}

// Options configures Render.
type Options struct {
	TileWidth  vg.Length // Width of one face
	TileHeight vg.Length // Height of one face
	Contour    bool      // Filled contour lines instead of a heat map
	Levels     int       // Contour levels; also the palette size
	Parallel   parallel.Config
}

// DefaultOptions returns heat maps of 3x3 inch tiles with 10 levels.
func DefaultOptions() Options {
	return Options{
		TileWidth:  3 * vg.Inch,
		TileHeight: 3 * vg.Inch,
		Levels:     10,
		Parallel:   parallel.DefaultConfig(),
	}
}

// Render draws every panel's boundary faces into a PNG written to w. All
// panels share one color scale so differences between rows are visible.
// Panels must have the same shape.
func Render(w io.Writer, panels []Panel, opts Options) error {
	if len(panels) == 0 {
		return fmt.Errorf("%w: no panels", ErrNotPlottable)
	}
	shape := panels[0].Tensor.Shape()
	for _, p := range panels[1:] {
		if !p.Tensor.Shape().Equal(shape) {
			return fmt.Errorf("%w: panel %q is %v, want %v", dense.ErrShapeMismatch, p.Label, p.Tensor.Shape(), shape)
		}
	}
	faces, err := BoundaryFaces(shape)
	if err != nil {
		return err
	}
	if opts.Levels < 2 {
		opts.Levels = 2
	}

	grids := make([][]*Grid, len(panels))
	errs := make([]error, len(panels))
	parallel.For(len(panels), func(i int) {
		grids[i] = make([]*Grid, len(faces))
		for j, f := range faces {
			grids[i][j], errs[i] = Slice(panels[i].Tensor, f)
			if errs[i] != nil {
				return
			}
		}
	}, opts.Parallel)
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("panel %q: %w", panels[i].Label, err)
		}
	}

	lo, hi := valueRange(grids)
	pal := palette.Heat(opts.Levels, 1)
	levels := floats.Span(make([]float64, opts.Levels), lo, hi)

	plots := make([][]*plot.Plot, len(panels))
	for i := range panels {
		plots[i] = make([]*plot.Plot, len(faces))
		for j, f := range faces {
			p := plot.New()
			p.Title.Text = f.Name
			if j == 0 {
				p.Title.Text = panels[i].Label + "  " + f.Name
			}
			p.X.Label.Text = fmt.Sprintf("i%d", f.Col)
			p.Y.Label.Text = fmt.Sprintf("i%d", f.Row)

			if opts.Contour {
				c := plotter.NewContour(grids[i][j], levels, pal)
				c.Min, c.Max = lo, hi
				p.Add(c)
			} else {
				h := plotter.NewHeatMap(grids[i][j], pal)
				h.Min, h.Max = lo, hi
				p.Add(h)
			}
			plots[i][j] = p
		}
	}

	img := vgimg.New(opts.TileWidth*vg.Length(len(faces)), opts.TileHeight*vg.Length(len(panels)))
	tiles := draw.Tiles{
		Rows:      len(panels),
		Cols:      len(faces),
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}
	canvases := plot.Align(plots, tiles, draw.New(img))
	for i := range plots {
		for j := range plots[i] {
			plots[i][j].Draw(canvases[i][j])
		}
	}

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// valueRange returns the extent of all samples, widened when constant.
func valueRange(grids [][]*Grid) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range grids {
		for _, g := range row {
			lo = math.Min(lo, floats.Min(g.Data))
			hi = math.Max(hi, floats.Max(g.Data))
		}
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}
