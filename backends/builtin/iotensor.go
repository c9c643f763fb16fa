// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"fmt"

	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/exec"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
)

// IOTensor is the tensor of a graph input or output. Its memory is the buffer given by the caller
// on each execution.
//
// Dynamic outputs get their shape from the conversion that writes them: the user buffer must be
// large enough for it.
type IOTensor struct {
	index    ir.OperandIndex
	isInput  bool
	shape    shapes.Shape
	layout   ir.Layout
	typeInfo ir.TypeInfo
	dynamic  bool

	user, buf []byte
}

var (
	_ backends.ResizableTensor = (*IOTensor)(nil)
	_ exec.IOTensor            = (*IOTensor)(nil)
)

func newIOTensor(index ir.OperandIndex, info ir.OperandInfo, layout ir.Layout, isInput bool) *IOTensor {
	return &IOTensor{
		index:    index,
		isInput:  isInput,
		shape:    info.Shape.Clone(),
		layout:   layout,
		typeInfo: info.TypeInfo,
		dynamic:  info.IsDynamic(),
	}
}

// Index of the operand of the tensor.
func (t *IOTensor) Index() ir.OperandIndex { return t.index }

// IsInput returns whether it is the tensor of a graph input.
func (t *IOTensor) IsInput() bool { return t.isInput }

// Shape implements backends.Tensor.
func (t *IOTensor) Shape() shapes.Shape { return t.shape }

// Layout implements backends.Tensor.
func (t *IOTensor) Layout() ir.Layout { return t.layout }

// TypeInfo implements backends.Tensor.
func (t *IOTensor) TypeInfo() ir.TypeInfo { return t.typeInfo }

// IsDynamic implements backends.Tensor.
func (t *IOTensor) IsDynamic() bool { return t.dynamic }

// IsConstant implements backends.Tensor.
func (t *IOTensor) IsConstant() bool { return false }

// Buffer implements backends.PortableTensor.
func (t *IOTensor) Buffer() []byte { return t.buf }

// SetShape implements backends.PortableTensor.
func (t *IOTensor) SetShape(shape shapes.Shape) { t.shape = shape }

// SetBuffer implements backends.PortableTensor.
func (t *IOTensor) SetBuffer(buf []byte) { t.buf = buf }

// SetUserBuffer implements exec.IOTensor.
func (t *IOTensor) SetUserBuffer(buf []byte) error {
	if buf == nil {
		return errors.Errorf("nil buffer given for %s", t)
	}
	t.user = buf
	if t.dynamic {
		// Set by Resize, once the shape is known.
		t.buf = nil
		return nil
	}
	size := int(t.shape.Memory())
	if len(buf) < size {
		return errors.Errorf("buffer of %d bytes given for %s, it requires %d bytes", len(buf), t, size)
	}
	t.buf = buf[:size:size]
	return nil
}

// Resize implements backends.ResizableTensor.
func (t *IOTensor) Resize(shape shapes.Shape) error {
	if !t.dynamic {
		if !t.shape.Equal(shape) {
			return errors.Errorf("%s cannot be resized to %s", t, shape)
		}
		if t.buf == nil {
			return errors.Errorf("%s has no user buffer", t)
		}
		return nil
	}
	size := int(shape.Memory())
	if len(t.user) < size {
		return errors.Errorf("buffer of %d bytes given for %s, its shape %s requires %d bytes",
			len(t.user), t, shape, size)
	}
	t.shape = shape
	t.buf = t.user[:size:size]
	return nil
}

// String implements fmt.Stringer.
func (t *IOTensor) String() string {
	kind := "output"
	if t.isInput {
		kind = "input"
	}
	return fmt.Sprintf("graph %s %s %s", kind, t.index, t.shape)
}
