// Package matrix holds the dense square integer matrix used by the pipeline,
// the assembler that builds one from fetched rows, and the row-parallel
// multiplier.
//
// A Matrix is only ever produced complete: either by an Assembler once every
// row index has been written exactly once, or by Multiply once every output
// row has been computed. After construction it is read-only.
package matrix
