// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/backends/cpucommon"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
)

// permuteKernel copies its input to its output, transposing the axes if the layouts differ.
// It works for any dtype.
type permuteKernel struct {
	opIdx         ir.OperationIndex
	permuteType   ir.PermuteType
	input, output backends.PortableTensor
}

func (c *Context) newPermuteKernel(opIdx ir.OperationIndex, op *ir.Operation) (*permuteKernel, error) {
	if len(op.Inputs) != 1 || len(op.Outputs) != 1 {
		return nil, errors.Errorf("Permute %s must have one input and one output, got %d and %d",
			opIdx, len(op.Inputs), len(op.Outputs))
	}
	params, ok := op.Params.(ir.PermuteParams)
	if !ok {
		return nil, errors.Errorf("Permute %s has no PermuteParams (params=%T)", opIdx, op.Params)
	}
	input, err := c.tensor(op.Inputs[0])
	if err != nil {
		return nil, errors.WithMessagef(err, "input of Permute %s", opIdx)
	}
	output, err := c.tensor(op.Outputs[0])
	if err != nil {
		return nil, errors.WithMessagef(err, "output of Permute %s", opIdx)
	}
	return &permuteKernel{opIdx: opIdx, permuteType: params.Type, input: input, output: output}, nil
}

// Prepare implements exec.Function.
func (k *permuteKernel) Prepare() error {
	if k.input.TypeInfo().DType != k.output.TypeInfo().DType {
		return errors.Errorf("Permute %s from dtype %s to dtype %s is not supported",
			k.opIdx, k.input.TypeInfo().DType, k.output.TypeInfo().DType)
	}
	if k.input.IsDynamic() || k.output.IsDynamic() {
		return nil
	}
	want := k.input.Shape()
	if axes := k.permuteType.Axes(); axes != nil {
		if want.Rank() != len(axes) {
			return errors.Errorf("Permute %s of type %s cannot be applied to shape %s", k.opIdx, k.permuteType, want)
		}
		want = want.Transpose(axes...)
	}
	if !want.Equal(k.output.Shape()) {
		return errors.Errorf("Permute %s of type %s from shape %s produces shape %s, but output is shaped %s",
			k.opIdx, k.permuteType, k.input.Shape(), want, k.output.Shape())
	}
	return nil
}

// Run implements exec.Function.
func (k *permuteKernel) Run() error {
	if k.input.Buffer() == nil {
		return errors.Errorf("Permute %s: input (shape %s) has no buffer", k.opIdx, k.input.Shape())
	}
	inputShape := k.input.Shape()
	axes := k.permuteType.Axes()
	outputShape := inputShape
	if axes != nil {
		outputShape = inputShape.Transpose(axes...)
	}
	if err := k.resizeOutput(outputShape); err != nil {
		return err
	}
	cpucommon.TransposeBytes(k.output.Buffer(), k.input.Buffer(), inputShape, axes)
	return nil
}

// resizeOutput propagates the shape of dynamic inputs to the output.
func (k *permuteKernel) resizeOutput(shape shapes.Shape) error {
	if resizable, ok := k.output.(backends.ResizableTensor); ok {
		return errors.WithMessagef(resizable.Resize(shape), "Permute %s output", k.opIdx)
	}
	if !k.output.Shape().Equal(shape) || k.output.Buffer() == nil {
		return errors.Errorf("Permute %s: output shaped %s cannot hold the result shaped %s",
			k.opIdx, k.output.Shape(), shape)
	}
	return nil
}
