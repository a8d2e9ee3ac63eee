// Package sweep rounds one exact tensor train to a list of accuracy
// thresholds and measures what each threshold achieves.
//
// Every threshold is rounded from the same exact train, never from a
// previously rounded one, so the sweep is a pure map: records come back in
// input order and a failure at one threshold becomes an error record without
// stopping the others.
//
// Thresholds run on a bounded worker pool. Each worker reconstructs a full
// dense tensor to measure its error, so a weighted semaphore caps the bytes
// of reconstructions alive at once.
package sweep
