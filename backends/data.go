// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/gomlx/lowerexec/pkg/support/sets"
)

// ContextData is the partition of the lowered graph assigned to one backend.
type ContextData struct {
	// Graph is the partial graph: the operations assigned to the backend and the operands they
	// touch, under their original identifiers.
	Graph *ir.Graph

	// Order is the local execution order: the global order restricted to the partition.
	Order []ir.OperationIndex

	// ExternalOperands are operands this partition uses or produces but whose tensor is owned
	// by another backend.
	ExternalOperands sets.Set[ir.OperandIndex]

	// CrossUsedOperands are operands defined in this partition and also consumed by operations of other
	// partitions. Their tensors must live until the end of the execution.
	CrossUsedOperands sets.Set[ir.OperandIndex]

	// OperandLayouts is the layout of each operand tensor, as defined by its producer.
	OperandLayouts map[ir.OperandIndex]ir.Layout

	// OperationLayouts is the layout each operation works in.
	OperationLayouts map[ir.OperationIndex]ir.Layout

	// IsLinearExecutor is set when the operations will be executed in Order: tensors can then be
	// deallocated at their last use.
	IsLinearExecutor bool
}

// NewContextData creates an empty ContextData for a partial graph.
func NewContextData(graph *ir.Graph) *ContextData {
	return &ContextData{
		Graph:             graph,
		ExternalOperands:  sets.Make[ir.OperandIndex](),
		CrossUsedOperands: sets.Make[ir.OperandIndex](),
		OperandLayouts:    make(map[ir.OperandIndex]ir.Layout),
		OperationLayouts:  make(map[ir.OperationIndex]ir.Layout),
	}
}

// IsExternal returns whether the operand tensor is owned by another backend.
func (d *ContextData) IsExternal(index ir.OperandIndex) bool {
	return d.ExternalOperands.Has(index)
}

// IsCrossUsed returns whether the operand is consumed by other partitions.
func (d *ContextData) IsCrossUsed(index ir.OperandIndex) bool {
	return d.CrossUsedOperands.Has(index)
}

// OperandLayout returns the layout of the operand tensor, defaulting to the graph layout.
func (d *ContextData) OperandLayout(index ir.OperandIndex) ir.Layout {
	if layout, found := d.OperandLayouts[index]; found && layout != ir.LayoutUnknown {
		return layout
	}
	return d.Graph.Layout()
}

// OperationLayout returns the layout of the operation, defaulting to the graph layout.
func (d *ContextData) OperationLayout(index ir.OperationIndex) ir.Layout {
	if layout, found := d.OperationLayouts[index]; found && layout != ir.LayoutUnknown {
		return layout
	}
	return d.Graph.Layout()
}

// TensorShape returns the shape of the operand as laid out in its tensor.
func (d *ContextData) TensorShape(index ir.OperandIndex) shapes.Shape {
	return ir.ConvertShape(d.Graph.MustOperand(index).Shape(), d.Graph.Layout(), d.OperandLayout(index))
}
