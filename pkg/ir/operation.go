// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
)

// PermuteParams are the parameters of an OpTypePermute operation.
type PermuteParams struct {
	Type PermuteType
}

// Operation is a typed graph node, with ordered lists of input and output operands.
//
// Params holds operation type specific parameters; they are opaque to the lowering core with the
// exception of PermuteParams.
type Operation struct {
	Type    OpType
	Inputs  []OperandIndex
	Outputs []OperandIndex
	Params  any
}

// NewOperation creates an operation of the given type.
func NewOperation(opType OpType, inputs, outputs []OperandIndex) *Operation {
	return &Operation{Type: opType, Inputs: slices.Clone(inputs), Outputs: slices.Clone(outputs)}
}

// NewPermute creates a Permute operation converting input into output.
func NewPermute(input, output OperandIndex, permuteType PermuteType) *Operation {
	op := NewOperation(OpTypePermute, []OperandIndex{input}, []OperandIndex{output})
	op.Params = PermuteParams{Type: permuteType}
	return op
}

// Clone returns a structural copy of the operation. Params are shared.
func (op *Operation) Clone() *Operation {
	return &Operation{
		Type:    op.Type,
		Inputs:  slices.Clone(op.Inputs),
		Outputs: slices.Clone(op.Outputs),
		Params:  op.Params,
	}
}

// ReplaceInput replaces all occurrences of the input operand `from` by `to`.
func (op *Operation) ReplaceInput(from, to OperandIndex) {
	for ii, input := range op.Inputs {
		if input == from {
			op.Inputs[ii] = to
		}
	}
}

// ReplaceOutput replaces all occurrences of the output operand `from` by `to`.
func (op *Operation) ReplaceOutput(from, to OperandIndex) {
	for ii, output := range op.Outputs {
		if output == from {
			op.Outputs[ii] = to
		}
	}
}

// UniqueInputs returns the defined input operands, without duplicates, in their original order.
func (op *Operation) UniqueInputs() []OperandIndex {
	return uniqueDefined(op.Inputs)
}

// UniqueOutputs returns the defined output operands, without duplicates, in their original order.
func (op *Operation) UniqueOutputs() []OperandIndex {
	return uniqueDefined(op.Outputs)
}

// UniqueInputsAndOutputs returns the defined inputs followed by the outputs, without duplicates.
func (op *Operation) UniqueInputsAndOutputs() []OperandIndex {
	all := make([]OperandIndex, 0, len(op.Inputs)+len(op.Outputs))
	all = append(all, op.Inputs...)
	all = append(all, op.Outputs...)
	return uniqueDefined(all)
}

func uniqueDefined(indices []OperandIndex) []OperandIndex {
	unique := make([]OperandIndex, 0, len(indices))
	for _, index := range indices {
		if index.Valid() && !slices.Contains(unique, index) {
			unique = append(unique, index)
		}
	}
	return unique
}

// String implements fmt.Stringer.
func (op *Operation) String() string {
	if p, ok := op.Params.(PermuteParams); ok {
		return fmt.Sprintf("%s(%s) %v -> %v", op.Type, p.Type, op.Inputs, op.Outputs)
	}
	return fmt.Sprintf("%s %v -> %v", op.Type, op.Inputs, op.Outputs)
}
