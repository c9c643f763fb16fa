// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/ir"
)

// Tensor is the run-time materialization of an operand in a backend.
//
// Backends whose memory is not addressable by the host (e.g. accelerators) only implement
// Tensor: their tensors are opaque handles, and cannot be borrowed by other backends.
type Tensor interface {
	// Shape of the tensor, as laid out in memory (see Layout). Dynamic tensors only have a
	// known shape once the kernel that defines them ran.
	Shape() shapes.Shape

	// Layout of the tensor in memory.
	Layout() ir.Layout

	// TypeInfo of the elements.
	TypeInfo() ir.TypeInfo

	// IsDynamic returns whether the shape is only known at run time.
	IsDynamic() bool

	// IsConstant returns whether the tensor holds constant data.
	IsConstant() bool
}

// PortableTensor is a Tensor with raw access to its host memory. Only portable tensors
// can be registered as migrant tensors in the registry of another backend.
type PortableTensor interface {
	Tensor

	// Buffer returns the memory of the tensor. It may be nil before allocation.
	Buffer() []byte

	// SetShape updates the shape of a dynamic tensor. It is called by the kernel defining the
	// tensor, before writing to it.
	SetShape(shape shapes.Shape)

	// SetBuffer points the tensor to a new memory area. Used for user buffers of IO tensors and by
	// dynamic allocation.
	SetBuffer(buf []byte)
}

// ResizableTensor is a PortableTensor whose buffer can be (re)allocated for a given shape by the
// kernel that writes it, even when the kernel belongs to another backend.
type ResizableTensor interface {
	PortableTensor

	// Resize sets the shape of a dynamic tensor and makes sure it has a buffer large enough for it.
	// For static tensors, it only checks that the shape matches the tensor shape.
	Resize(shape shapes.Shape) error
}
