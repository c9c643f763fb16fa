// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

import (
	"fmt"

	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
)

// Code is the executable form of one operation: the function sequence generated by the backend
// the operation was assigned to.
type Code struct {
	Index     ir.OperationIndex
	Operation *ir.Operation
	BackendID string
	Sequence  *FunctionSequence

	// ConcurrentKernels tells whether the functions of the backend may run concurrently with
	// other operations' functions of the same backend.
	ConcurrentKernels bool
}

// String implements fmt.Stringer.
func (c *Code) String() string {
	return fmt.Sprintf("%s:%s@%s", c.Index, c.Operation.Type, c.BackendID)
}

// CodeMap maps operations to their code. It is merged from the FunctionMap of every backend.
type CodeMap map[ir.OperationIndex]*Code

// Merge the function map generated by a backend into the code map.
//
// It returns an error if an operation already has code, or if it is not in the graph.
func (m CodeMap) Merge(graph *ir.Graph, backendID string, concurrent bool, functions FunctionMap) error {
	for _, entry := range functions {
		if prev, found := m[entry.Index]; found {
			return errors.Errorf("operation %s has code from both backends %q and %q",
				entry.Index, prev.BackendID, backendID)
		}
		op := graph.Operation(entry.Index)
		if op == nil {
			return errors.Errorf("backend %q generated code for operation %s, which is not in the graph",
				backendID, entry.Index)
		}
		m[entry.Index] = &Code{
			Index:             entry.Index,
			Operation:         op,
			BackendID:         backendID,
			Sequence:          entry.Sequence,
			ConcurrentKernels: concurrent,
		}
	}
	return nil
}

// IOTensor is a graph input or output tensor, whose buffer is provided by the caller on each execution.
type IOTensor interface {
	// Shape of the tensor, as laid out in the user buffer. For dynamic outputs it is only known
	// after the execution.
	Shape() shapes.Shape

	// SetUserBuffer sets the caller provided buffer used in the next execution.
	SetUserBuffer(buf []byte) error
}

// IOTensors holds the tensors of the graph inputs and outputs, in the graph order.
type IOTensors struct {
	Inputs, Outputs []IOTensor
}
