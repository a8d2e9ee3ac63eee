// Package tt implements the tensor-train (TT) format: a chain of three-index
// cores whose left-to-right contraction reproduces a dense tensor.
//
// The package provides the two algorithms that create TT tensors:
//
//   - Decompose: exact TT-SVD of a dense tensor (sequential reshape + SVD,
//     dropping only numerically zero directions).
//   - Round: accuracy-adaptive truncation of an existing TT tensor
//     (left-to-right QR orthogonalization, right-to-left truncated SVD).
//
// Both return new values and never modify their input.
//
// Example:
//
//	exact, err := tt.Decompose(ctx, x, tt.DefaultDecomposeOptions())
//	if err != nil {
//	    return err
//	}
//	approx, err := tt.Round(ctx, exact, 1e-3, tt.RoundOptions{})
//	fmt.Println(approx.Ranks())
package tt
