// Package dense provides the in-memory d-dimensional float64 array consumed
// and produced by the tensor-train algorithms.
//
// Data is stored in row-major order (last index varies fastest). A Tensor
// takes ownership of the buffer handed to New and is treated as immutable
// afterwards: every operation returns a new value.
//
//	t, err := dense.New(dense.Shape{2, 3, 4}, data)
//	if err != nil {
//	    return err
//	}
//	diff, err := t.Sub(other)
//	rel := diff.FrobeniusNorm() / t.FrobeniusNorm()
package dense
