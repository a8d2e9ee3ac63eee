// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tt provides Tensor-Train compression of dense multidimensional
// arrays.
//
// # Overview
//
// A dense tensor of order d is factored into a chain of d three-index cores
// whose contraction reproduces it. This package provides:
//   - Dense tensors (Dense) with row-major storage
//   - Tensor trains (Tensor) and their cores (Core)
//   - TT-SVD decomposition (Decompose)
//   - Accuracy-driven rounding (Round)
//   - Reconstruction and relative error measurement
//
// # Basic Usage
//
//	import "github.com/born-ml/tensortrain/tt"
//
//	func main() {
//	    x, _ := tt.NewDense(tt.Shape{64, 64, 64}, data)
//
//	    exact, err := tt.Decompose(ctx, x, tt.DefaultDecomposeOptions())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    small, err := tt.Round(ctx, exact, 1e-4, tt.RoundOptions{})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    rel, _ := tt.RelativeError(x, small)
//	    fmt.Println(small.Ranks(), rel) // rel <= 1e-4
//	}
//
// # Accuracy
//
// Round truncates every bond with an even share of the squared error budget
// ε²‖T‖²/(d−1), so the reconstruction error never exceeds ε. Tighter ε never
// produces smaller ranks, and any ε ≥ 1 collapses every interior rank to 1.
package tt
