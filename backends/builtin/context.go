// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/backends/cpucommon"
	"github.com/gomlx/lowerexec/pkg/exec"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context implements backends.ControlContext.
type Context struct {
	backend    *Backend
	data       *backends.ContextData
	registry   *backends.TensorRegistry
	builder    *cpucommon.TensorBuilder
	io         exec.IOTensors
	registries *backends.TensorRegistries

	// err is set if the IO tensors could not be created, and returned by GenTensors.
	err error
}

var _ backends.ControlContext = (*Context)(nil)

// newContext creates the context and the IO tensors of the graph inputs and outputs present in the partition.
func newContext(backend *Backend, data *backends.ContextData) *Context {
	c := &Context{
		backend:  backend,
		data:     data,
		registry: backends.NewTensorRegistry(backends.BuiltinID),
	}
	graph := data.Graph
	for _, index := range graph.Inputs() {
		if graph.IsOutput(index) {
			c.err = errors.Errorf("operand %s is both a graph input and output, this is not supported", index)
			return c
		}
		operand := graph.MustOperand(index)
		if operand.Info().IsDynamic() {
			c.err = errors.Errorf("graph input %s has a dynamic shape %s, this is not supported", index, operand.Shape())
			return c
		}
		t := newIOTensor(index, operand.Info(), graph.Layout(), true)
		c.registry.SetNativeTensor(index, t)
		c.io.Inputs = append(c.io.Inputs, t)
	}
	for _, index := range graph.Outputs() {
		t := newIOTensor(index, graph.MustOperand(index).Info(), graph.Layout(), false)
		c.registry.SetNativeTensor(index, t)
		c.io.Outputs = append(c.io.Outputs, t)
	}
	return c
}

// Backend implements backends.Context.
func (c *Context) Backend() backends.Backend { return c.backend }

// Data implements backends.Context.
func (c *Context) Data() *backends.ContextData { return c.data }

// TensorRegistry implements backends.Context.
func (c *Context) TensorRegistry() *backends.TensorRegistry { return c.registry }

// IOTensors implements backends.ControlContext.
func (c *Context) IOTensors() exec.IOTensors { return c.io }

// SetTensorRegistries implements backends.ControlContext.
func (c *Context) SetTensorRegistries(registries *backends.TensorRegistries) {
	c.registries = registries
}

// GenTensors implements backends.Context.
//
// The IO tensors are created with the context. Other operands owned by the builtin backend, if any,
// are planned and allocated in host memory.
func (c *Context) GenTensors() (*backends.TensorRegistry, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.builder != nil {
		return nil, errors.New("builtin backend: GenTensors called twice")
	}
	planner := cpucommon.NewFirstFitPlanner()
	c.builder = cpucommon.NewTensorBuilder(c.registry, planner)
	if err := cpucommon.GenTensors(c.data, c.builder); err != nil {
		return nil, errors.WithMessage(err, "builtin backend")
	}
	return c.registry, nil
}

// GenKernels implements backends.Context. It must be called after SetTensorRegistries.
func (c *Context) GenKernels() (exec.FunctionMap, error) {
	if c.builder == nil {
		return nil, errors.New("builtin backend: GenKernels called before GenTensors")
	}
	if c.registries == nil {
		return nil, errors.New("builtin backend: GenKernels called before SetTensorRegistries")
	}
	if err := cpucommon.InitConsts(c.data, c.registry); err != nil {
		return nil, errors.WithMessage(err, "builtin backend")
	}
	var functions exec.FunctionMap
	for _, opIdx := range c.data.Order {
		op := c.data.Graph.MustOperation(opIdx)
		if op.Type != ir.OpTypePermute {
			return nil, errors.Errorf("builtin backend only implements %s, operation %s is %s",
				ir.OpTypePermute, opIdx, op.Type)
		}
		kernel, err := c.newPermuteKernel(opIdx, op)
		if err != nil {
			return nil, err
		}
		if err = kernel.Prepare(); err != nil {
			return nil, errors.WithMessagef(err, "builtin backend preparing %s", opIdx)
		}
		functions.Append(opIdx, exec.NewFunctionSequence(kernel))
	}
	klog.V(1).Infof("builtin backend: generated %d conversions, %d migrant tensors",
		len(functions), c.registry.NumMigrants())
	return functions, nil
}

// tensor returns the tensor of the operand in the builtin registry: native for graph IO, migrant otherwise.
func (c *Context) tensor(index ir.OperandIndex) (backends.PortableTensor, error) {
	if t := c.registry.GetPortable(index); t != nil {
		return t, nil
	}
	if owner := c.registries.NativeOwner(index); owner != nil {
		return nil, errors.Errorf("operand %s is owned by backend %q, and its tensor is not portable",
			index, owner.BackendID())
	}
	return nil, errors.Errorf("operand %s has no tensor in any backend", index)
}
