package tt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/linalg"
)

// Core is a three-index TT core of shape (Left, Mode, Right) stored in
// row-major order: element (a, i, b) lives at (a*Mode+i)*Right+b.
//
// Unfolded as a (Left*Mode)×Right matrix it is the left unfolding; unfolded as
// Left×(Mode*Right) it is the right unfolding. Both views share Data.
type Core struct {
	Left, Mode, Right int
	Data              []float64
}

// NewCore creates a core, validating the buffer length.
func NewCore(left, mode, right int, data []float64) (*Core, error) {
	if left <= 0 || mode <= 0 || right <= 0 {
		return nil, fmt.Errorf("%w: core shape (%d, %d, %d)", dense.ErrInvalidShape, left, mode, right)
	}
	if len(data) != left*mode*right {
		return nil, fmt.Errorf("%w: core (%d, %d, %d) requires %d elements, got %d",
			dense.ErrShapeMismatch, left, mode, right, left*mode*right, len(data))
	}
	return &Core{Left: left, Mode: mode, Right: right, Data: data}, nil
}

// At returns core element (a, i, b).
func (c *Core) At(a, i, b int) float64 {
	return c.Data[(a*c.Mode+i)*c.Right+b]
}

// Len returns the number of stored elements.
func (c *Core) Len() int {
	return len(c.Data)
}

// Clone returns a deep copy.
func (c *Core) Clone() *Core {
	data := make([]float64, len(c.Data))
	copy(data, c.Data)
	return &Core{Left: c.Left, Mode: c.Mode, Right: c.Right, Data: data}
}

// Tensor is a tensor train of order d: d cores with r_0 = r_d = 1 and
// cores[k].Right == cores[k+1].Left.
type Tensor struct {
	cores []*Core
}

// New assembles a tensor train from cores, taking ownership of them.
// Returns dense.ErrShapeMismatch if the chain is not well formed.
//
// Interior ranks are not checked against min(Π left dims, Π right dims).
// Over-ranked chains are valid rounding input; Decompose and Round always
// return chains within that bound.
func New(cores []*Core) (*Tensor, error) {
	if len(cores) == 0 {
		return nil, fmt.Errorf("%w: empty core chain", dense.ErrInvalidShape)
	}
	for k, c := range cores {
		if c == nil {
			return nil, fmt.Errorf("%w: core %d is nil", dense.ErrInvalidShape, k)
		}
		if _, err := NewCore(c.Left, c.Mode, c.Right, c.Data); err != nil {
			return nil, fmt.Errorf("core %d: %w", k, err)
		}
		if k > 0 && cores[k-1].Right != c.Left {
			return nil, fmt.Errorf("%w: core %d right rank %d != core %d left rank %d",
				dense.ErrShapeMismatch, k-1, cores[k-1].Right, k, c.Left)
		}
	}
	if cores[0].Left != 1 || cores[len(cores)-1].Right != 1 {
		return nil, fmt.Errorf("%w: boundary ranks must be 1, got %d and %d",
			dense.ErrShapeMismatch, cores[0].Left, cores[len(cores)-1].Right)
	}
	return &Tensor{cores: cores}, nil
}

// Order returns the number of cores d.
func (t *Tensor) Order() int {
	return len(t.cores)
}

// Dims returns the dimension tuple of the represented tensor.
func (t *Tensor) Dims() dense.Shape {
	dims := make(dense.Shape, len(t.cores))
	for k, c := range t.cores {
		dims[k] = c.Mode
	}
	return dims
}

// Ranks returns the d-1 interior bond dimensions r_1 … r_{d-1}.
func (t *Tensor) Ranks() []int {
	ranks := make([]int, len(t.cores)-1)
	for k := range ranks {
		ranks[k] = t.cores[k].Right
	}
	return ranks
}

// FullRanks returns r_0 … r_d including the boundary ones.
func (t *Tensor) FullRanks() []int {
	ranks := make([]int, len(t.cores)+1)
	for k, c := range t.cores {
		ranks[k] = c.Left
	}
	ranks[len(t.cores)] = 1
	return ranks
}

// Core returns core k. The returned value must not be modified.
func (t *Tensor) Core(k int) *Core {
	return t.cores[k]
}

// NumParams returns the total number of stored core elements.
func (t *Tensor) NumParams() int {
	n := 0
	for _, c := range t.cores {
		n += c.Len()
	}
	return n
}

// CompressionRatio returns dense element count / stored TT elements.
func (t *Tensor) CompressionRatio() float64 {
	return float64(t.Dims().NumElements()) / float64(t.NumParams())
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	cores := make([]*Core, len(t.cores))
	for k, c := range t.cores {
		cores[k] = c.Clone()
	}
	return &Tensor{cores: cores}
}

// At evaluates the element at a multi-index as the product of core slices.
func (t *Tensor) At(indices ...int) float64 {
	if len(indices) != len(t.cores) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.cores), len(indices)))
	}
	// Row vector carried left to right.
	vec := []float64{1}
	for k, c := range t.cores {
		i := indices[k]
		if i < 0 || i >= c.Mode {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", i, k, c.Mode))
		}
		next := make([]float64, c.Right)
		for a := 0; a < c.Left; a++ {
			row := c.Data[(a*c.Mode+i)*c.Right : (a*c.Mode+i+1)*c.Right]
			for b, v := range row {
				next[b] += vec[a] * v
			}
		}
		vec = next
	}
	return vec[0]
}

// Norm returns the Frobenius norm of the represented tensor, computed from
// the cores without reconstructing the dense array.
func (t *Tensor) Norm() float64 {
	// Gram matrix G_k = Σ_i C_k[:,i,:]ᵀ G_{k-1} C_k[:,i,:], starting from [1].
	gram := []float64{1}
	for _, c := range t.cores {
		next := make([]float64, c.Right*c.Right)
		for i := 0; i < c.Mode; i++ {
			slice := make([]float64, c.Left*c.Right)
			for a := 0; a < c.Left; a++ {
				copy(slice[a*c.Right:(a+1)*c.Right], c.Data[(a*c.Mode+i)*c.Right:(a*c.Mode+i+1)*c.Right])
			}
			gs := linalg.Mul(c.Left, c.Left, c.Right, gram, slice)
			for p := 0; p < c.Right; p++ {
				for q := 0; q < c.Right; q++ {
					s := 0.0
					for a := 0; a < c.Left; a++ {
						s += slice[a*c.Right+p] * gs[a*c.Right+q]
					}
					next[p*c.Right+q] += s
				}
			}
		}
		gram = next
	}
	return math.Sqrt(math.Max(gram[0], 0))
}

// String returns a human-readable description.
func (t *Tensor) String() string {
	return fmt.Sprintf("TT[%v] ranks=%v", t.Dims(), t.Ranks())
}

// Random builds a tensor train with the given dimensions and interior ranks,
// with core entries drawn from a standard normal distribution.
func Random(dims dense.Shape, ranks []int, rng *rand.Rand) (*Tensor, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	if len(ranks) != len(dims)-1 {
		return nil, fmt.Errorf("%w: %d ranks for order %d", dense.ErrShapeMismatch, len(ranks), len(dims))
	}
	full := append(append([]int{1}, ranks...), 1)
	cores := make([]*Core, len(dims))
	for k, n := range dims {
		data := make([]float64, full[k]*n*full[k+1])
		for i := range data {
			data[i] = rng.NormFloat64()
		}
		c, err := NewCore(full[k], n, full[k+1], data)
		if err != nil {
			return nil, err
		}
		cores[k] = c
	}
	return New(cores)
}
