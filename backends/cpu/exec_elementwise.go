// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/lowerexec/backends/cpucommon"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// This file implements the element-wise operations.
// Binary operations special-case one of the operands being of size 1, in which case it becomes
// almost a unary operation with a constant value.

// binaryFn executes a binary operation over raw buffers.
type binaryFn func(ec *ExternalContext, lhs, rhs, output []byte, lhsShape, rhsShape, outputShape shapes.Shape)

// unaryFn executes a unary operation over raw buffers.
type unaryFn func(ec *ExternalContext, input, output []byte, n int)

var (
	addDispatcher  = newDTypeDispatcher[binaryFn]("Add")
	mulDispatcher  = newDTypeDispatcher[binaryFn]("Mul")
	reluDispatcher = newDTypeDispatcher[unaryFn]("ReLU")
)

func init() {
	addDispatcher.register(dtypes.Float32, makeBinary(func(a, b float32) float32 { return a + b }))
	addDispatcher.register(dtypes.Float64, makeBinary(func(a, b float64) float64 { return a + b }))
	addDispatcher.register(dtypes.Int32, makeBinary(func(a, b int32) int32 { return a + b }))
	addDispatcher.register(dtypes.Int64, makeBinary(func(a, b int64) int64 { return a + b }))
	addDispatcher.register(dtypes.Float16, makeBinary(f16(func(a, b float32) float32 { return a + b })))

	mulDispatcher.register(dtypes.Float32, makeBinary(func(a, b float32) float32 { return a * b }))
	mulDispatcher.register(dtypes.Float64, makeBinary(func(a, b float64) float64 { return a * b }))
	mulDispatcher.register(dtypes.Int32, makeBinary(func(a, b int32) int32 { return a * b }))
	mulDispatcher.register(dtypes.Int64, makeBinary(func(a, b int64) int64 { return a * b }))
	mulDispatcher.register(dtypes.Float16, makeBinary(f16(func(a, b float32) float32 { return a * b })))

	reluDispatcher.register(dtypes.Float32, makeUnary(reluGeneric[float32]))
	reluDispatcher.register(dtypes.Float64, makeUnary(reluGeneric[float64]))
	reluDispatcher.register(dtypes.Int32, makeUnary(reluGeneric[int32]))
	reluDispatcher.register(dtypes.Float16, makeUnary(func(x float16.Float16) float16.Float16 {
		if x.Float32() < 0 {
			return float16.Fromfloat32(0)
		}
		return x
	}))
}

func reluGeneric[T numericConstraints](x T) T {
	return max(x, 0)
}

// broadcastShapes returns the shape of the result of a binary operation.
//
// Operands of size 1 are broadcast to the other operand shape. Otherwise ranks must match, and
// each axis must have the same dimension or dimension 1.
func broadcastShapes(lhs, rhs shapes.Shape) (shapes.Shape, error) {
	if lhs.DType != rhs.DType {
		return shapes.Invalid(), errors.Errorf("operands have different dtypes %s and %s", lhs.DType, rhs.DType)
	}
	switch {
	case lhs.Equal(rhs):
		return lhs.Clone(), nil
	case rhs.Size() == 1 && lhs.Rank() >= rhs.Rank():
		return lhs.Clone(), nil
	case lhs.Size() == 1 && rhs.Rank() >= lhs.Rank():
		return rhs.Clone(), nil
	}
	if lhs.Rank() != rhs.Rank() {
		return shapes.Invalid(), errors.Errorf("cannot broadcast shapes %s and %s", lhs, rhs)
	}
	output := lhs.Clone()
	for axis, dim := range rhs.Dimensions {
		switch {
		case dim == output.Dimensions[axis]:
		case output.Dimensions[axis] == 1:
			output.Dimensions[axis] = dim
		case dim != 1:
			return shapes.Invalid(), errors.Errorf("cannot broadcast shapes %s and %s on axis %d", lhs, rhs, axis)
		}
	}
	return output, nil
}

// broadcastIterator iterates over the flat indices of a tensor that is being broadcast
// (some dimensions will grow).
type broadcastIterator struct {
	flatIdx     int
	perAxesIdx  []int
	targetDims  []int
	isBroadcast []bool
	strides     []int
}

// newBroadcastIterator returns an iterator over the flat indices of fromShape, as it is broadcast to toShape.
//
// Pre-requisite: fromShape.Rank() == toShape.Rank().
func newBroadcastIterator(fromShape, toShape shapes.Shape) *broadcastIterator {
	rank := fromShape.Rank()
	if rank != toShape.Rank() {
		exceptions.Panicf("broadcastIterator: rank mismatch fromShape=%s, toShape=%s", fromShape, toShape)
	}
	bi := &broadcastIterator{
		perAxesIdx:  make([]int, rank),
		targetDims:  toShape.Dimensions,
		isBroadcast: make([]bool, rank),
		strides:     make([]int, rank),
	}
	stride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		bi.strides[axis] = stride
		stride *= fromShape.Dimensions[axis]
		bi.isBroadcast[axis] = fromShape.Dimensions[axis] != toShape.Dimensions[axis]
	}
	return bi
}

// Next returns the current flat index and advances the iterator.
func (bi *broadcastIterator) Next() (flatIdx int) {
	flatIdx = bi.flatIdx
	bi.flatIdx++
	rank := len(bi.perAxesIdx)
	for axis := rank - 1; axis >= 0; axis-- {
		bi.perAxesIdx[axis]++
		if bi.perAxesIdx[axis] < bi.targetDims[axis] {
			if bi.isBroadcast[axis] {
				// Broadcasting on this axis: go back and repeat the same slice of the tensor.
				bi.flatIdx -= bi.strides[axis]
			}
			break
		}
		bi.perAxesIdx[axis] = 0
	}
	return
}

// makeBinary returns the binaryFn of opFn for the Go type T.
func makeBinary[T numericConstraints | float16.Float16](opFn func(a, b T) T) binaryFn {
	return func(ec *ExternalContext, lhsBuf, rhsBuf, outputBuf []byte, lhsShape, rhsShape, outputShape shapes.Shape) {
		lhs := cpucommon.FlatBytes[T](lhsBuf, lhsShape.Size())
		rhs := cpucommon.FlatBytes[T](rhsBuf, rhsShape.Size())
		output := cpucommon.FlatBytes[T](outputBuf, outputShape.Size())
		execBinary(ec, opFn, lhs, rhs, output, lhsShape, rhsShape, outputShape)
	}
}

func execBinary[T any](ec *ExternalContext, opFn func(a, b T) T, lhs, rhs, output []T,
	lhsShape, rhsShape, outputShape shapes.Shape) {
	switch {
	case len(rhs) == 1:
		// One side (rhs) is a scalar: only iterate over the lhs.
		c := rhs[0]
		ec.ParallelFor(len(output), func(start, end int) {
			for ii := start; ii < end; ii++ {
				output[ii] = opFn(lhs[ii], c)
			}
		})
	case len(lhs) == 1:
		c := lhs[0]
		ec.ParallelFor(len(output), func(start, end int) {
			for ii := start; ii < end; ii++ {
				output[ii] = opFn(c, rhs[ii])
			}
		})
	case lhsShape.Equal(rhsShape):
		ec.ParallelFor(len(output), func(start, end int) {
			for ii := start; ii < end; ii++ {
				output[ii] = opFn(lhs[ii], rhs[ii])
			}
		})
	default:
		// Broadcasting non-scalar tensors.
		lhsIter := newBroadcastIterator(lhsShape, outputShape)
		rhsIter := newBroadcastIterator(rhsShape, outputShape)
		for outputIdx := range output {
			output[outputIdx] = opFn(lhs[lhsIter.Next()], rhs[rhsIter.Next()])
		}
	}
}

// makeUnary returns the unaryFn of opFn for the Go type T.
func makeUnary[T numericConstraints | float16.Float16](opFn func(x T) T) unaryFn {
	return func(ec *ExternalContext, inputBuf, outputBuf []byte, n int) {
		input := cpucommon.FlatBytes[T](inputBuf, n)
		output := cpucommon.FlatBytes[T](outputBuf, n)
		ec.ParallelFor(n, func(start, end int) {
			for ii := start; ii < end; ii++ {
				output[ii] = opFn(input[ii])
			}
		})
	}
}

// binaryKernel executes Add and Mul.
type binaryKernel struct {
	kernelBase
	fn binaryFn
}

// Run implements exec.Function.
func (k *binaryKernel) Run() error {
	if err := k.checkInputs(); err != nil {
		return err
	}
	lhs, rhs := k.inputs[0], k.inputs[1]
	outputShape, err := broadcastShapes(lhs.Shape(), rhs.Shape())
	if err != nil {
		return errors.WithMessagef(err, "%s", k.opType)
	}
	if err = k.prepareOutput(outputShape); err != nil {
		return err
	}
	k.fn(k.external, lhs.Buffer(), rhs.Buffer(), k.output.Buffer(), lhs.Shape(), rhs.Shape(), outputShape)
	return nil
}

// unaryKernel executes ReLU.
type unaryKernel struct {
	kernelBase
	fn unaryFn
}

// Run implements exec.Function.
func (k *unaryKernel) Run() error {
	if err := k.checkInputs(); err != nil {
		return err
	}
	input := k.inputs[0]
	if err := k.prepareOutput(input.Shape()); err != nil {
		return err
	}
	k.fn(k.external, input.Buffer(), k.output.Buffer(), input.Shape().Size())
	return nil
}
