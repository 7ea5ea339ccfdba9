package model

import (
	"errors"
	"fmt"
)

// ErrUnsupportedDType marks dtypes that cannot be converted to float32
// statistics (integers, bools, unknown formats).
var ErrUnsupportedDType = errors.New("unsupported dtype")

// DataError reports an I/O or format failure while reading tensor data. It
// is not fatal to the analysis worker: the error is published to the UI and
// the worker keeps serving requests.
type DataError struct {
	Op     string // "open", "read", "convert", ...
	Tensor string
	DType  DType
	Err    error
}

func (e *DataError) Error() string {
	switch {
	case e.Tensor != "" && e.DType != "":
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Tensor, e.DType, e.Err)
	case e.Tensor != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Tensor, e.Err)
	case e.DType != "":
		return fmt.Sprintf("%s (%s): %v", e.Op, e.DType, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *DataError) Unwrap() error { return e.Err }

// TensorInfo describes one tensor in a checkpoint file: its dtype, shape,
// and the byte range holding its data.
type TensorInfo struct {
	Name  string
	DType DType
	Shape []uint64
	Start uint64 // byte offset of the first data byte
	End   uint64 // byte offset one past the last data byte
	Shard string // source file for sharded checkpoints, "" otherwise
}

// Elems returns the number of elements implied by the shape. A scalar
// (empty shape) has one element.
func (t TensorInfo) Elems() uint64 {
	n := uint64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// ByteSize returns the size of the tensor's data region.
func (t TensorInfo) ByteSize() uint64 {
	if t.End < t.Start {
		return 0
	}
	return t.End - t.Start
}

// Matrix reports whether the tensor is two-dimensional, and its dimensions.
// Spectra are only defined for matrices.
func (t TensorInfo) Matrix() (rows, cols int, ok bool) {
	if len(t.Shape) != 2 {
		return 0, 0, false
	}
	return int(t.Shape[0]), int(t.Shape[1]), true
}
