// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cpucommon holds the machinery shared by backends whose tensors live in host memory:
// the portable Tensor, memory planners, static and dynamic tensor managers, the TensorBuilder
// and the function that plans tensor lifetimes over an execution order.
package cpucommon

import (
	"fmt"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
)

// Tensor is a host memory tensor. It implements backends.PortableTensor.
//
// Constant tensors share the data of their operand, static tensors point into the arena of
// their MemoryManager, and dynamic tensors get their buffer at run time from a DynamicTensorManager.
type Tensor struct {
	shape    shapes.Shape
	layout   ir.Layout
	typeInfo ir.TypeInfo
	dynamic  bool
	constant bool
	buf      []byte

	// manager allocates the buffer of dynamic tensors.
	manager *DynamicTensorManager
}

var _ backends.ResizableTensor = (*Tensor)(nil)

// NewTensor creates a tensor with no buffer.
func NewTensor(shape shapes.Shape, layout ir.Layout, typeInfo ir.TypeInfo, dynamic, constant bool) *Tensor {
	return &Tensor{shape: shape, layout: layout, typeInfo: typeInfo, dynamic: dynamic, constant: constant}
}

// Shape implements backends.Tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// Layout implements backends.Tensor.
func (t *Tensor) Layout() ir.Layout { return t.layout }

// TypeInfo implements backends.Tensor.
func (t *Tensor) TypeInfo() ir.TypeInfo { return t.typeInfo }

// IsDynamic implements backends.Tensor.
func (t *Tensor) IsDynamic() bool { return t.dynamic }

// IsConstant implements backends.Tensor.
func (t *Tensor) IsConstant() bool { return t.constant }

// Buffer implements backends.PortableTensor.
func (t *Tensor) Buffer() []byte { return t.buf }

// SetShape implements backends.PortableTensor.
func (t *Tensor) SetShape(shape shapes.Shape) { t.shape = shape }

// SetBuffer implements backends.PortableTensor.
func (t *Tensor) SetBuffer(buf []byte) { t.buf = buf }

// Resize implements backends.ResizableTensor.
func (t *Tensor) Resize(shape shapes.Shape) error {
	if !t.dynamic {
		if !t.shape.Equal(shape) {
			return errors.Errorf("static tensor shaped %s cannot be resized to %s", t.shape, shape)
		}
		if t.buf == nil {
			return errors.Errorf("static tensor shaped %s has no buffer", t.shape)
		}
		return nil
	}
	if t.manager == nil {
		return errors.Errorf("dynamic tensor %s is not registered in a DynamicTensorManager", t)
	}
	if shape.DType != t.shape.DType || shape.Rank() != t.shape.Rank() || !shape.IsKnown() {
		return errors.Errorf("dynamic tensor shaped %s cannot be resized to %s", t.shape, shape)
	}
	t.manager.Allocate(t, shape)
	return nil
}

// Size in bytes of the tensor, 0 if the shape is not known yet.
func (t *Tensor) Size() int { return int(t.shape.Memory()) }

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s, %s, %d bytes allocated)", t.shape, t.layout, len(t.buf))
}

// Flat returns the buffer of a tensor as a slice of T, which must match the tensor dtype.
// It panics if they don't match, and returns nil if the tensor has no buffer.
func Flat[T dtypes.Supported](t backends.PortableTensor) []T {
	if dtypes.FromGenericsType[T]() != t.TypeInfo().DType {
		exceptions.Panicf("tensor of dtype %s accessed as %s", t.TypeInfo().DType, dtypes.FromGenericsType[T]())
	}
	return FlatBytes[T](t.Buffer(), t.Shape().Size())
}

// FlatBytes converts the first n elements of buf to a slice of T without copying.
func FlatBytes[T any](buf []byte, n int) []T {
	if len(buf) == 0 || n == 0 {
		return nil
	}
	var zero T
	if uintptr(len(buf)) < uintptr(n)*unsafe.Sizeof(zero) {
		exceptions.Panicf("buffer of %d bytes is too small for %d elements of %T", len(buf), n, zero)
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), n)
}
