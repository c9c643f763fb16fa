// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import "fmt"

// OperandIndex identifies an Operand in a Graph.
//
// Indices are dense and stable: cloning an operand into a partial graph keeps its index, so
// side maps keyed by OperandIndex (lower info, use counts, tensor registries) stay valid across
// partitioning.
type OperandIndex int32

// UndefinedOperand is the invalid OperandIndex.
const UndefinedOperand OperandIndex = -1

// Valid returns whether the index is not UndefinedOperand.
func (i OperandIndex) Valid() bool { return i >= 0 }

// String implements fmt.Stringer, printing operands as "%<n>".
func (i OperandIndex) String() string {
	if !i.Valid() {
		return "%?"
	}
	return fmt.Sprintf("%%%d", int32(i))
}

// OperationIndex identifies an Operation in a Graph. Like OperandIndex, it is dense and stable.
type OperationIndex int32

// UndefinedOperation is the invalid OperationIndex.
const UndefinedOperation OperationIndex = -1

// Valid returns whether the index is not UndefinedOperation.
func (i OperationIndex) Valid() bool { return i >= 0 }

// String implements fmt.Stringer, printing operations as "@<n>".
func (i OperationIndex) String() string {
	if !i.Valid() {
		return "@?"
	}
	return fmt.Sprintf("@%d", int32(i))
}
