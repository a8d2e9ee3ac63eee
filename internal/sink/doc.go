// Package sink writes sweep results for consumption by other tools.
//
// SafeTensorsSink stores each reconstruction as a safetensors file holding a
// single F64 variable, one file per threshold. WriteReport stores the full
// list of records as JSON.
package sink
