// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/backends/cpucommon"
	"github.com/gomlx/lowerexec/pkg/exec"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context implements backends.Context for the partition of a graph assigned to a cpu Backend.
type Context struct {
	backend  *Backend
	data     *backends.ContextData
	registry *backends.TensorRegistry
	builder  *cpucommon.TensorBuilder
}

var _ backends.Context = (*Context)(nil)

func newContext(backend *Backend, data *backends.ContextData) *Context {
	return &Context{
		backend:  backend,
		data:     data,
		registry: backends.NewTensorRegistry(backend.ID()),
	}
}

// Backend implements backends.Context.
func (c *Context) Backend() backends.Backend { return c.backend }

// Data implements backends.Context.
func (c *Context) Data() *backends.ContextData { return c.data }

// TensorRegistry implements backends.Context.
func (c *Context) TensorRegistry() *backends.TensorRegistry { return c.registry }

// TensorBuilder returns the builder of the tensors, or nil before GenTensors.
func (c *Context) TensorBuilder() *cpucommon.TensorBuilder { return c.builder }

// GenTensors implements backends.Context.
func (c *Context) GenTensors() (*backends.TensorRegistry, error) {
	if c.builder != nil {
		return nil, errors.Errorf("cpu backend %q: GenTensors called twice", c.backend.ID())
	}
	planner, err := cpucommon.NewMemoryPlanner(c.backend.config.Planner)
	if err != nil {
		return nil, err
	}
	c.builder = cpucommon.NewTensorBuilder(c.registry, planner)
	if err := cpucommon.GenTensors(c.data, c.builder); err != nil {
		return nil, errors.WithMessagef(err, "cpu backend %q", c.backend.ID())
	}
	return c.registry, nil
}

// GenKernels implements backends.Context.
//
// Constants are initialized first, and the data of the partial graph operands is released,
// since tensors now reference it. The function sequences are prepared before returning.
func (c *Context) GenKernels() (functions exec.FunctionMap, err error) {
	if c.builder == nil {
		return nil, errors.Errorf("cpu backend %q: GenKernels called before GenTensors", c.backend.ID())
	}
	if err = cpucommon.InitConsts(c.data, c.registry); err != nil {
		return nil, errors.WithMessagef(err, "cpu backend %q", c.backend.ID())
	}
	for _, operand := range c.data.Graph.IterateOperands() {
		operand.ReleaseData()
	}

	dynamic := c.builder.DynamicTensorManager()
	err = exceptions.TryCatch[error](func() {
		for _, opIdx := range c.data.Order {
			op := c.data.Graph.MustOperation(opIdx)
			kernel, kernelErr := c.genKernel(opIdx, op)
			if kernelErr != nil {
				panic(kernelErr)
			}
			sequence := exec.NewFunctionSequence(kernel)
			if c.data.IsLinearExecutor && len(dynamic.DeallocPlanned(opIdx)) > 0 {
				sequence.Append(exec.FuncFunction(func() error {
					dynamic.DeallocInputs(opIdx)
					return nil
				}))
			}
			functions.Append(opIdx, sequence)
		}
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "cpu backend %q generating kernels", c.backend.ID())
	}
	for _, entry := range functions {
		if err = entry.Sequence.Prepare(); err != nil {
			return nil, errors.WithMessagef(err, "cpu backend %q preparing operation %s", c.backend.ID(), entry.Index)
		}
	}
	klog.V(1).Infof("cpu backend %q: generated kernels for %d operations", c.backend.ID(), len(functions))
	return functions, nil
}

// portable returns the tensor of the operand, which must be registered in the backend.
func (c *Context) portable(index ir.OperandIndex) (backends.PortableTensor, error) {
	t := c.registry.GetPortable(index)
	if t == nil {
		return nil, errors.Errorf("operand %s has no tensor in backend %q", index, c.backend.ID())
	}
	return t, nil
}

// native returns the tensor of an operand owned by the backend.
func (c *Context) native(index ir.OperandIndex) (*cpucommon.Tensor, error) {
	t := c.builder.Tensor(index)
	if t == nil {
		return nil, errors.Errorf("operand %s is not owned by backend %q", index, c.backend.ID())
	}
	return t, nil
}
