// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/support/sets"
)

// MemAllocType tells whether the buffer of an operand can be planned at compile time.
type MemAllocType int

//go:generate go tool enumer -type=MemAllocType -trimprefix=MemAlloc -output=gen_memalloctype_enumer.go operand.go

const (
	// MemAllocStatic operands have a shape fully known at compile time.
	MemAllocStatic MemAllocType = iota

	// MemAllocDynamic operands only know their shape at run time, their buffers are allocated
	// by the kernel that defines them.
	MemAllocDynamic
)

// TypeInfo holds the element type and the (optional) affine quantization parameters of an operand.
type TypeInfo struct {
	DType     dtypes.DType
	Scale     float32
	ZeroPoint int32
}

// OperandInfo is the descriptor of a tensor value.
//
// Shape is always given in the frontend layout of the graph.
type OperandInfo struct {
	Shape        shapes.Shape
	TypeInfo     TypeInfo
	MemAllocType MemAllocType

	// IsConstant operands hold their data (see Operand.Data) and are never defined by an operation.
	IsConstant bool

	// IsVariable operands are stateful: by construction they have exactly one use and no def,
	// and they behave like constants for allocation purposes, without holding data.
	IsVariable bool
}

// MakeOperandInfo returns a static OperandInfo for the given shape, with TypeInfo.DType taken from the shape.
func MakeOperandInfo(shape shapes.Shape) OperandInfo {
	return OperandInfo{Shape: shape, TypeInfo: TypeInfo{DType: shape.DType}}
}

// IsDynamic returns whether the operand shape is only known at run time.
func (info OperandInfo) IsDynamic() bool {
	return info.MemAllocType == MemAllocDynamic || !info.Shape.IsKnown()
}

// Operand is a tensor value node: its descriptor, its optional data and its use/def bookkeeping.
type Operand struct {
	info OperandInfo
	data []byte
	uses sets.Set[OperationIndex]
	def  OperationIndex
}

// NewOperand creates a new operand with no data, uses or def.
func NewOperand(info OperandInfo) *Operand {
	return &Operand{info: info, uses: sets.Make[OperationIndex](), def: UndefinedOperation}
}

// Info returns the descriptor of the operand.
func (o *Operand) Info() OperandInfo { return o.info }

// Shape of the operand, in the graph frontend layout.
func (o *Operand) Shape() shapes.Shape { return o.info.Shape }

// TypeInfo returns the element type and quantization of the operand.
func (o *Operand) TypeInfo() TypeInfo { return o.info.TypeInfo }

// IsConstant returns whether the operand is a constant.
func (o *Operand) IsConstant() bool { return o.info.IsConstant }

// IsVariable returns whether the operand is a stateful variable.
func (o *Operand) IsVariable() bool { return o.info.IsVariable }

// Data returns the data of a constant operand, or nil.
func (o *Operand) Data() []byte { return o.data }

// SetData sets the data of the operand and marks it as constant.
// The data slice is shared, not copied.
func (o *Operand) SetData(data []byte) {
	o.data = data
	o.info.IsConstant = true
}

// ReleaseData drops the reference to the data: used once the backends have taken their own reference.
func (o *Operand) ReleaseData() { o.data = nil }

// Uses returns the operations using the operand, in ascending index order.
func (o *Operand) Uses() []OperationIndex { return sets.Sorted(o.uses) }

// NumUses returns the number of operations using the operand.
func (o *Operand) NumUses() int { return len(o.uses) }


// InsertUse registers the operation as a user of the operand.
func (o *Operand) InsertUse(op OperationIndex) { o.uses.Insert(op) }

// RemoveUse unregisters the operation as a user of the operand.
func (o *Operand) RemoveUse(op OperationIndex) { o.uses.Delete(op) }

// ClearUses removes all uses.
func (o *Operand) ClearUses() { o.uses = sets.Make[OperationIndex]() }

// Def returns the operation defining the operand, or UndefinedOperation for graph inputs, constants and variables.
func (o *Operand) Def() OperationIndex { return o.def }

// SetDef sets the operation defining the operand.
func (o *Operand) SetDef(op OperationIndex) { o.def = op }

// UnsetDef removes the definition of the operand.
func (o *Operand) UnsetDef() { o.def = UndefinedOperation }

// IsDead returns whether the operand has no uses and no def: it is excluded from planning.
func (o *Operand) IsDead() bool { return len(o.uses) == 0 && !o.def.Valid() }

// Clone returns a copy of the descriptor and shared data, with uses and def cleared:
// they are to be rebuilt from the edges of the graph the clone is added to.
func (o *Operand) Clone() *Operand {
	c := NewOperand(o.info)
	c.info.Shape = o.info.Shape.Clone()
	c.data = o.data
	return c
}

// String implements fmt.Stringer.
func (o *Operand) String() string {
	var kind string
	switch {
	case o.info.IsConstant:
		kind = " const"
	case o.info.IsVariable:
		kind = " var"
	}
	return fmt.Sprintf("%s%s def=%s uses=%v", o.info.Shape, kind, o.def, o.Uses())
}
