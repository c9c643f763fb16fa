// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/backends/cpucommon"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/exec"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
)

// genKernel creates the function that executes the operation.
func (c *Context) genKernel(opIdx ir.OperationIndex, op *ir.Operation) (exec.Function, error) {
	if !c.backend.capabilities.Supports(op.Type) {
		return nil, errors.Errorf("backend %q does not implement %s (operation %s)", c.backend.ID(), op.Type, opIdx)
	}
	var numInputs int
	switch op.Type {
	case ir.OpTypeAdd, ir.OpTypeMul:
		numInputs = 2
	case ir.OpTypeReLU, ir.OpTypeIdentity:
		numInputs = 1
	case ir.OpTypeRange:
		numInputs = 3
	}
	if len(op.Inputs) != numInputs || len(op.Outputs) != 1 {
		return nil, errors.Errorf("%s (operation %s) takes %d inputs and 1 output, got %d inputs and %d outputs",
			op.Type, opIdx, numInputs, len(op.Inputs), len(op.Outputs))
	}
	inputs := make([]backends.PortableTensor, len(op.Inputs))
	for ii, index := range op.Inputs {
		t, err := c.portable(index)
		if err != nil {
			return nil, errors.WithMessagef(err, "input #%d of %s", ii, opIdx)
		}
		inputs[ii] = t
	}
	output, err := c.native(op.Outputs[0])
	if err != nil {
		return nil, errors.WithMessagef(err, "output of %s", opIdx)
	}
	base := kernelBase{
		opType:   op.Type,
		inputs:   inputs,
		output:   output,
		external: c.backend.external,
	}

	switch op.Type {
	case ir.OpTypeAdd:
		fn, err := addDispatcher.get(inputs[0].TypeInfo().DType)
		if err != nil {
			return nil, err
		}
		return &binaryKernel{kernelBase: base, fn: fn}, nil
	case ir.OpTypeMul:
		fn, err := mulDispatcher.get(inputs[0].TypeInfo().DType)
		if err != nil {
			return nil, err
		}
		return &binaryKernel{kernelBase: base, fn: fn}, nil
	case ir.OpTypeReLU:
		fn, err := reluDispatcher.get(inputs[0].TypeInfo().DType)
		if err != nil {
			return nil, err
		}
		return &unaryKernel{kernelBase: base, fn: fn}, nil
	case ir.OpTypeIdentity:
		return &identityKernel{kernelBase: base}, nil
	case ir.OpTypeRange:
		fn, err := rangeDispatcher.get(inputs[0].TypeInfo().DType)
		if err != nil {
			return nil, err
		}
		return &rangeKernel{kernelBase: base, fn: fn}, nil
	}
	return nil, errors.Errorf("backend %q has no kernel for %s", c.backend.ID(), op.Type)
}

// kernelBase holds what is common to all kernels.
type kernelBase struct {
	opType   ir.OpType
	inputs   []backends.PortableTensor
	output   *cpucommon.Tensor
	external *ExternalContext
}

// Prepare implements exec.Function: dtypes of inputs and output must match.
func (k *kernelBase) Prepare() error {
	for ii, input := range k.inputs {
		if input.TypeInfo().DType != k.output.TypeInfo().DType {
			return errors.Errorf("%s: input #%d has dtype %s, but output has dtype %s",
				k.opType, ii, input.TypeInfo().DType, k.output.TypeInfo().DType)
		}
	}
	return nil
}

// checkInputs returns an error if an input has no buffer: a dynamic input whose producer did not run,
// or that was already deallocated.
func (k *kernelBase) checkInputs() error {
	for ii, input := range k.inputs {
		if input.Buffer() == nil {
			return errors.Errorf("%s: input #%d (shape %s) has no buffer", k.opType, ii, input.Shape())
		}
	}
	return nil
}

// prepareOutput allocates dynamic outputs with the given shape, or checks that static outputs have it.
func (k *kernelBase) prepareOutput(shape shapes.Shape) error {
	return errors.WithMessagef(k.output.Resize(shape), "%s output", k.opType)
}

// identityKernel copies its input.
type identityKernel struct {
	kernelBase
}

// Run implements exec.Function.
func (k *identityKernel) Run() error {
	if err := k.checkInputs(); err != nil {
		return err
	}
	input := k.inputs[0]
	if err := k.prepareOutput(input.Shape()); err != nil {
		return err
	}
	copy(k.output.Buffer(), input.Buffer()[:input.Shape().Memory()])
	return nil
}
