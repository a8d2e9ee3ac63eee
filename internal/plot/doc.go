// Package plot renders boundary faces of dense tensors as heat maps or
// filled contour panels, one row per tensor, so reconstructions at several
// thresholds can be compared with the original side by side.
package plot
