// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package exec holds the run-time side of a compiled graph: the functions (kernels) bound to each
// operation, the executors that schedule them (Linear, Dataflow and Parallel), and the observers
// that can be attached to an executor for tracing and profiling.
package exec

import (
	"iter"

	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
)

// Function is an executable kernel.
//
// Prepare is called once, after all tensors are allocated and before the first Run. Run
// may be called many times. Functions bound to different operations of a backend that
// declares ConcurrentKernels must be safe to run concurrently.
type Function interface {
	Prepare() error
	Run() error
}

// FuncFunction adapts a plain function to a Function with a no-op Prepare.
type FuncFunction func() error

// Prepare implements Function.
func (fn FuncFunction) Prepare() error { return nil }

// Run implements Function.
func (fn FuncFunction) Run() error { return fn() }

// FunctionSequence is the ordered list of functions generated for one operation.
type FunctionSequence struct {
	functions []Function
}

// NewFunctionSequence creates a sequence with the given functions.
func NewFunctionSequence(functions ...Function) *FunctionSequence {
	return &FunctionSequence{functions: functions}
}

// Append functions to the sequence.
func (s *FunctionSequence) Append(functions ...Function) {
	s.functions = append(s.functions, functions...)
}

// Len returns the number of functions in the sequence.
func (s *FunctionSequence) Len() int { return len(s.functions) }

// Iterate over the functions of the sequence.
func (s *FunctionSequence) Iterate() iter.Seq[Function] {
	return func(yield func(Function) bool) {
		for _, fn := range s.functions {
			if !yield(fn) {
				return
			}
		}
	}
}

// Wrap replaces every function of the sequence by wrapper(function).
func (s *FunctionSequence) Wrap(wrapper func(Function) Function) {
	for ii, fn := range s.functions {
		s.functions[ii] = wrapper(fn)
	}
}

// Prepare calls Prepare on every function, stopping at the first error.
func (s *FunctionSequence) Prepare() error {
	for ii, fn := range s.functions {
		if err := fn.Prepare(); err != nil {
			return errors.WithMessagef(err, "preparing function #%d of sequence", ii)
		}
	}
	return nil
}

// Run calls Run on every function in order, stopping at the first error.
func (s *FunctionSequence) Run() error {
	for _, fn := range s.functions {
		if err := fn.Run(); err != nil {
			return err
		}
	}
	return nil
}

// FunctionEntry associates the function sequence generated for an operation with its index.
type FunctionEntry struct {
	Index    ir.OperationIndex
	Sequence *FunctionSequence
}

// FunctionMap is the ordered list of function sequences generated by one backend, in the
// backend's local execution order.
type FunctionMap []FunctionEntry

// Append a new entry to the map.
func (m *FunctionMap) Append(index ir.OperationIndex, sequence *FunctionSequence) {
	*m = append(*m, FunctionEntry{Index: index, Sequence: sequence})
}
