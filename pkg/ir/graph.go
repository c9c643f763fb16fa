// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ir is the graph model lowered by the compiler: operands (tensor values) and operations
// identified by stable indices.
package ir

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Graph holds operands and operations indexed by stable identifiers.
//
// A Graph starts in the building phase, where operations are only recorded. FinishBuilding links
// the use/def relations and validates the graph. After that, passes can still add operations and
// rewire inputs: the Graph methods keep use/def consistent.
//
// Identifiers may have holes: a partial graph (see AddOperandAt and AddOperationAt) only holds
// the items of its partition, under their original identifiers.
type Graph struct {
	operands   []*Operand
	operations []*Operation

	inputs, outputs []OperandIndex

	layout   Layout
	building bool
}

// New creates an empty Graph in building phase, whose operand shapes are given in the frontend layout.
func New(layout Layout) *Graph {
	return &Graph{layout: layout, building: true}
}

// Layout returns the frontend layout of the graph.
func (g *Graph) Layout() Layout { return g.layout }

// IsBuildingPhase returns whether FinishBuilding has not been called yet.
func (g *Graph) IsBuildingPhase() bool { return g.building }

// AddOperand creates a new operand with the next free identifier.
func (g *Graph) AddOperand(info OperandInfo) OperandIndex {
	index := OperandIndex(len(g.operands))
	g.operands = append(g.operands, NewOperand(info))
	return index
}

// AddConstant creates a new constant operand holding data.
func (g *Graph) AddConstant(info OperandInfo, data []byte) OperandIndex {
	index := g.AddOperand(info)
	g.operands[index].SetData(data)
	return index
}

// AddOperandAt adds the operand under the given identifier.
//
// If an operand with the same identifier is already present it returns UndefinedOperand. It panics
// if the present operand has a different shape: that means two graphs disagree on what the
// identifier refers to.
func (g *Graph) AddOperandAt(index OperandIndex, operand *Operand) OperandIndex {
	if !index.Valid() {
		exceptions.Panicf("Graph.AddOperandAt(%s): invalid operand index", index)
	}
	if g.HasOperand(index) {
		if !g.operands[index].Shape().Equal(operand.Shape()) {
			exceptions.Panicf("Graph.AddOperandAt(%s): already holds an operand shaped %s, cannot add one shaped %s",
				index, g.operands[index].Shape(), operand.Shape())
		}
		return UndefinedOperand
	}
	if int(index) >= len(g.operands) {
		g.operands = append(g.operands, make([]*Operand, int(index)+1-len(g.operands))...)
	}
	g.operands[index] = operand
	return index
}

// AddOperation adds the operation with the next free identifier.
//
// Outside the building phase the use/def relations of the operation operands are updated immediately.
func (g *Graph) AddOperation(op *Operation) OperationIndex {
	index := OperationIndex(len(g.operations))
	g.operations = append(g.operations, op)
	if !g.building {
		g.link(index, op)
	}
	return index
}

// AddOperationAt adds the operation under the given identifier, which must be free.
func (g *Graph) AddOperationAt(index OperationIndex, op *Operation) OperationIndex {
	if !index.Valid() {
		exceptions.Panicf("Graph.AddOperationAt(%s): invalid operation index", index)
	}
	if g.HasOperation(index) {
		exceptions.Panicf("Graph.AddOperationAt(%s): identifier already taken by %s", index, g.operations[index])
	}
	if int(index) >= len(g.operations) {
		g.operations = append(g.operations, make([]*Operation, int(index)+1-len(g.operations))...)
	}
	g.operations[index] = op
	if !g.building {
		g.link(index, op)
	}
	return index
}

// RemoveOperation removes the operation and its use/def relations. The identifier is not reused.
func (g *Graph) RemoveOperation(index OperationIndex) {
	op := g.MustOperation(index)
	for _, input := range op.UniqueInputs() {
		if o := g.Operand(input); o != nil {
			o.RemoveUse(index)
		}
	}
	for _, output := range op.UniqueOutputs() {
		if o := g.Operand(output); o != nil && o.Def() == index {
			o.UnsetDef()
		}
	}
	g.operations[index] = nil
}

// ReplaceOperationInput rewires the input `from` of the operation to read `to` instead, keeping
// the uses of both operands consistent.
func (g *Graph) ReplaceOperationInput(index OperationIndex, from, to OperandIndex) {
	op := g.MustOperation(index)
	op.ReplaceInput(from, to)
	if !g.building {
		g.MustOperand(from).RemoveUse(index)
		g.MustOperand(to).InsertUse(index)
	}
}

// AddInput marks the operand as a graph input.
func (g *Graph) AddInput(index OperandIndex) {
	if !slices.Contains(g.inputs, index) {
		g.inputs = append(g.inputs, index)
	}
}

// AddOutput marks the operand as a graph output.
func (g *Graph) AddOutput(index OperandIndex) {
	if !slices.Contains(g.outputs, index) {
		g.outputs = append(g.outputs, index)
	}
}

// ReplaceOutput replaces the graph output `from` by `to`, keeping its position.
func (g *Graph) ReplaceOutput(from, to OperandIndex) {
	for ii, output := range g.outputs {
		if output == from {
			g.outputs[ii] = to
		}
	}
}

// Inputs of the graph, in the order they were added.
func (g *Graph) Inputs() []OperandIndex { return g.inputs }

// Outputs of the graph, in the order they were added.
func (g *Graph) Outputs() []OperandIndex { return g.outputs }

// IsInput returns whether the operand is a graph input.
func (g *Graph) IsInput(index OperandIndex) bool { return slices.Contains(g.inputs, index) }

// IsOutput returns whether the operand is a graph output.
func (g *Graph) IsOutput(index OperandIndex) bool { return slices.Contains(g.outputs, index) }

// IsIO returns whether the operand is a graph input or output.
func (g *Graph) IsIO(index OperandIndex) bool { return g.IsInput(index) || g.IsOutput(index) }

// HasOperand returns whether there is an operand with the given identifier.
func (g *Graph) HasOperand(index OperandIndex) bool {
	return index.Valid() && int(index) < len(g.operands) && g.operands[index] != nil
}

// HasOperation returns whether there is an operation with the given identifier.
func (g *Graph) HasOperation(index OperationIndex) bool {
	return index.Valid() && int(index) < len(g.operations) && g.operations[index] != nil
}

// Operand returns the operand with the given identifier, or nil if there is none.
func (g *Graph) Operand(index OperandIndex) *Operand {
	if !g.HasOperand(index) {
		return nil
	}
	return g.operands[index]
}

// MustOperand returns the operand with the given identifier, and panics if there is none.
func (g *Graph) MustOperand(index OperandIndex) *Operand {
	if !g.HasOperand(index) {
		exceptions.Panicf("graph has no operand %s", index)
	}
	return g.operands[index]
}

// Operation returns the operation with the given identifier, or nil if there is none.
func (g *Graph) Operation(index OperationIndex) *Operation {
	if !g.HasOperation(index) {
		return nil
	}
	return g.operations[index]
}

// MustOperation returns the operation with the given identifier, and panics if there is none.
func (g *Graph) MustOperation(index OperationIndex) *Operation {
	if !g.HasOperation(index) {
		exceptions.Panicf("graph has no operation %s", index)
	}
	return g.operations[index]
}

// NumOperands returns the number of operands present.
func (g *Graph) NumOperands() int {
	var count int
	for range g.IterateOperands() {
		count++
	}
	return count
}

// NumOperations returns the number of operations present.
func (g *Graph) NumOperations() int {
	var count int
	for range g.IterateOperations() {
		count++
	}
	return count
}

// OperandCapacity returns one past the largest operand identifier: side tables indexed by
// OperandIndex can be allocated with this size.
func (g *Graph) OperandCapacity() int { return len(g.operands) }

// OperationCapacity returns one past the largest operation identifier.
func (g *Graph) OperationCapacity() int { return len(g.operations) }

// IterateOperands iterates over the operands present, in ascending identifier order.
func (g *Graph) IterateOperands() iter.Seq2[OperandIndex, *Operand] {
	return func(yield func(OperandIndex, *Operand) bool) {
		for ii, o := range g.operands {
			if o == nil {
				continue
			}
			if !yield(OperandIndex(ii), o) {
				return
			}
		}
	}
}

// IterateOperations iterates over the operations present, in ascending identifier order.
func (g *Graph) IterateOperations() iter.Seq2[OperationIndex, *Operation] {
	return func(yield func(OperationIndex, *Operation) bool) {
		for ii, op := range g.operations {
			if op == nil {
				continue
			}
			if !yield(OperationIndex(ii), op) {
				return
			}
		}
	}
}

// link registers the operation as user of its inputs and def of its outputs.
func (g *Graph) link(index OperationIndex, op *Operation) {
	for _, input := range op.UniqueInputs() {
		g.MustOperand(input).InsertUse(index)
	}
	for _, output := range op.UniqueOutputs() {
		o := g.MustOperand(output)
		if o.Def().Valid() && o.Def() != index {
			exceptions.Panicf("operand %s defined by both %s and %s", output, o.Def(), index)
		}
		o.SetDef(index)
	}
}

// FinishBuilding links the use/def relations of all operations, validates the graph and leaves
// the building phase.
//
// It returns an error if an operation references a missing operand, if an operand is defined by more
// than one operation, if a constant or graph input is defined by an operation, or if there are cycles.
func (g *Graph) FinishBuilding() error {
	if !g.building {
		return errors.New("Graph.FinishBuilding() called twice")
	}
	for _, index := range slices.Concat(g.inputs, g.outputs) {
		if !g.HasOperand(index) {
			return errors.Errorf("graph input/output %s is not an operand of the graph", index)
		}
	}
	for _, o := range g.IterateOperands() {
		o.ClearUses()
		o.UnsetDef()
	}
	for opIdx, op := range g.IterateOperations() {
		for _, index := range slices.Concat(op.Inputs, op.Outputs) {
			if index.Valid() && !g.HasOperand(index) {
				return errors.Errorf("operation %s (%s) references unknown operand %s", opIdx, op.Type, index)
			}
		}
		for _, input := range op.UniqueInputs() {
			g.operands[input].InsertUse(opIdx)
		}
		for _, output := range op.UniqueOutputs() {
			o := g.operands[output]
			if o.Def().Valid() {
				return errors.Errorf("operand %s is defined by both %s and %s", output, o.Def(), opIdx)
			}
			if o.IsConstant() || o.IsVariable() {
				return errors.Errorf("operand %s is a constant or variable, it cannot be defined by %s", output, opIdx)
			}
			if g.IsInput(output) {
				return errors.Errorf("graph input %s cannot be defined by %s", output, opIdx)
			}
			o.SetDef(opIdx)
		}
	}
	if cycle := g.findCycle(); cycle != nil {
		return errors.Errorf("graph has a cycle through operations %v", cycle)
	}
	g.building = false
	return nil
}

// predecessors returns the operations defining the inputs of op, in input order.
func (g *Graph) predecessors(op *Operation) []OperationIndex {
	preds := make([]OperationIndex, 0, len(op.Inputs))
	for _, input := range op.UniqueInputs() {
		if o := g.Operand(input); o != nil && o.Def().Valid() && g.HasOperation(o.Def()) {
			preds = append(preds, o.Def())
		}
	}
	return preds
}

const (
	unvisited = iota
	visiting
	visited
)

// findCycle returns the operations of a cycle, or nil if the graph is acyclic.
func (g *Graph) findCycle() []OperationIndex {
	state := make([]int8, len(g.operations))
	var stack []OperationIndex
	var cycle []OperationIndex
	var visit func(OperationIndex) bool
	visit = func(index OperationIndex) bool {
		switch state[index] {
		case visited:
			return false
		case visiting:
			start := slices.Index(stack, index)
			cycle = slices.Clone(stack[start:])
			return true
		}
		state[index] = visiting
		stack = append(stack, index)
		for _, pred := range g.predecessors(g.operations[index]) {
			if visit(pred) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		state[index] = visited
		return false
	}
	for index := range g.IterateOperations() {
		if visit(index) {
			return cycle
		}
	}
	return nil
}

// TopolSortOperations returns the operations in a deterministic topological order: operations are
// visited in ascending identifier order, each one placed after the operations defining its inputs.
//
// The graph must not be in building phase.
func (g *Graph) TopolSortOperations() []OperationIndex {
	if g.building {
		exceptions.Panicf("Graph.TopolSortOperations() called before FinishBuilding()")
	}
	order := make([]OperationIndex, 0, len(g.operations))
	state := make([]int8, len(g.operations))
	var visit func(OperationIndex)
	visit = func(index OperationIndex) {
		if state[index] == visited {
			return
		}
		if state[index] == visiting {
			exceptions.Panicf("graph has a cycle through operation %s", index)
		}
		state[index] = visiting
		for _, pred := range g.predecessors(g.operations[index]) {
			visit(pred)
		}
		state[index] = visited
		order = append(order, index)
	}
	for index := range g.IterateOperations() {
		visit(index)
	}
	return order
}

// Clone returns a deep copy of the graph: operands (data is shared), operations and IO, same identifiers.
func (g *Graph) Clone() *Graph {
	g2 := New(g.layout)
	g2.operands = make([]*Operand, len(g.operands))
	for index, o := range g.IterateOperands() {
		g2.operands[index] = o.Clone()
	}
	g2.operations = make([]*Operation, len(g.operations))
	for index, op := range g.IterateOperations() {
		g2.operations[index] = op.Clone()
	}
	g2.inputs = slices.Clone(g.inputs)
	g2.outputs = slices.Clone(g.outputs)
	if !g.building {
		g2.building = false
		for index, op := range g2.IterateOperations() {
			g2.link(index, op)
		}
	}
	return g2
}

// String returns a multi-line listing of the graph.
func (g *Graph) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Graph(layout=%s, inputs=%v, outputs=%v):\n", g.layout, g.inputs, g.outputs)
	for index, o := range g.IterateOperands() {
		_, _ = fmt.Fprintf(&sb, "\t%s: %s\n", index, o)
	}
	for index, op := range g.IterateOperations() {
		_, _ = fmt.Fprintf(&sb, "\t%s: %s\n", index, op)
	}
	return sb.String()
}
