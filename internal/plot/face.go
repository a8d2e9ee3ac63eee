package plot

import (
	"errors"
	"fmt"

	"github.com/born-ml/tensortrain/internal/dense"
)

// ErrNotPlottable is returned for tensors that have no two-dimensional face
// of at least 2x2 elements.
var ErrNotPlottable = errors.New("tensor cannot be plotted")

// Face selects a two-dimensional slice of a tensor: the Row and Col axes vary
// and every other axis is held at Index[axis].
type Face struct {
	Name  string
	Row   int
	Col   int
	Index []int
}

// BoundaryFaces returns the faces drawn for a tensor of the given shape.
// A matrix has a single face. Higher orders get three faces of the bounding
// box of the first three axes: the last slice of axis 2, the first slice of
// axis 0 and the last slice of axis 1. Trailing axes are held at 0.
func BoundaryFaces(shape dense.Shape) ([]Face, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if len(shape) < 2 {
		return nil, fmt.Errorf("%w: order %d", ErrNotPlottable, len(shape))
	}
	if len(shape) == 2 {
		return []Face{{Name: "matrix", Row: 0, Col: 1, Index: make([]int, 2)}}, nil
	}

	at := func(axis, i int) []int {
		idx := make([]int, len(shape))
		idx[axis] = i
		return idx
	}
	return []Face{
		{Name: fmt.Sprintf("i2=%d", shape[2]-1), Row: 0, Col: 1, Index: at(2, shape[2]-1)},
		{Name: "i0=0", Row: 1, Col: 2, Index: at(0, 0)},
		{Name: fmt.Sprintf("i1=%d", shape[1]-1), Row: 0, Col: 2, Index: at(1, shape[1]-1)},
	}, nil
}

// Grid is a row-major matrix of samples. It implements plotter.GridXYZ with
// unit spacing.
type Grid struct {
	Rows, Cols int
	Data       []float64
}

// Dims implements plotter.GridXYZ.
func (g *Grid) Dims() (c, r int) { return g.Cols, g.Rows }

// Z implements plotter.GridXYZ.
func (g *Grid) Z(c, r int) float64 { return g.Data[r*g.Cols+c] }

// X implements plotter.GridXYZ.
func (g *Grid) X(c int) float64 { return float64(c) }

// Y implements plotter.GridXYZ.
func (g *Grid) Y(r int) float64 { return float64(r) }

// Slice copies face f of x into a Grid.
func Slice(x *dense.Tensor, f Face) (*Grid, error) {
	shape := x.Shape()
	if len(f.Index) != len(shape) || f.Row == f.Col ||
		f.Row < 0 || f.Row >= len(shape) || f.Col < 0 || f.Col >= len(shape) {
		return nil, fmt.Errorf("%w: face %q does not fit shape %v", dense.ErrShapeMismatch, f.Name, shape)
	}
	rows, cols := shape[f.Row], shape[f.Col]
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("%w: face %q is %dx%d", ErrNotPlottable, f.Name, rows, cols)
	}

	idx := append([]int(nil), f.Index...)
	g := &Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
	for r := 0; r < rows; r++ {
		idx[f.Row] = r
		for c := 0; c < cols; c++ {
			idx[f.Col] = c
			g.Data[r*cols+c] = x.At(idx...)
		}
	}
	return g, nil
}
