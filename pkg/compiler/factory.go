// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/pkg/exec"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Factory compiles graphs into executors, for a fixed set of backends.
type Factory struct {
	Manager *backends.Manager
}

// NewFactory creates a Factory for the backends of the manager.
func NewFactory(manager *backends.Manager) *Factory {
	return &Factory{Manager: manager}
}

// Compilation holds the executor built for a graph and the intermediary artifacts of its compilation.
type Compilation struct {
	Lowered    *LoweredGraph
	Order      []ir.OperationIndex
	Partitions []*Partition
	Contexts   []backends.Context
	Registries *backends.TensorRegistries
	Executor   exec.Executor

	// KernelOrder is the order in which the backends generated their kernels. The control backend is last.
	KernelOrder []string

	// ExecTime where the profiling measurements are recorded, if HEProfilingMode was set.
	ExecTime *exec.ExecTime
}

// Build compiles the graph and returns its executor.
func (f *Factory) Build(graph *ir.Graph, options Options) (exec.Executor, error) {
	c, err := f.Compile(graph, options)
	if err != nil {
		return nil, err
	}
	return c.Executor, nil
}

// Compile the graph: it is lowered, partitioned across the backends, the tensors of each backend are
// generated, shared across backends, and finally the kernels are generated and bound to an executor.
//
// Any failure aborts the whole compilation: no partially built executor is returned.
func (f *Factory) Compile(graph *ir.Graph, options Options) (c *Compilation, err error) {
	if f.Manager == nil {
		return nil, errors.New("compiler.Factory has no backends.Manager")
	}
	var compileErr error
	err = exceptions.TryCatch[error](func() {
		c, compileErr = f.compile(graph, options)
	})
	if err == nil {
		err = compileErr
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "compiling graph for %s executor", options.Executor)
	}
	return c, nil
}

func (f *Factory) compile(graph *ir.Graph, options Options) (*Compilation, error) {
	lg, err := Lower(graph, f.Manager, options.Placement)
	if err != nil {
		return nil, err
	}
	c := &Compilation{Lowered: lg}
	c.Order = Linearize(lg)
	c.Partitions = PartitionGraph(lg, c.Order, options.Executor == exec.Linear)

	// Contexts: the control one first, as the partitions.
	var control backends.ControlContext
	contexts := make(map[string]backends.Context, len(c.Partitions))
	for _, p := range c.Partitions {
		var ctx backends.Context
		if p.Backend.IsControl() {
			control = f.Manager.Control().NewControlContext(p.Data)
			ctx = control
		} else {
			ctx = p.Backend.NewContext(p.Data)
		}
		contexts[p.Backend.ID()] = ctx
		c.Contexts = append(c.Contexts, ctx)
	}
	if control == nil {
		exceptions.Panicf("no partition for the control backend %q", f.Manager.Control().ID())
	}

	if err = genTensors(c.Contexts); err != nil {
		return nil, err
	}
	c.Registries = backends.NewTensorRegistries()
	for _, ctx := range c.Contexts {
		c.Registries.Add(ctx.TensorRegistry())
	}
	prepareMigrantTensors(lg, contexts, c.Registries)
	if err = c.Registries.VerifyOwnership(); err != nil {
		exceptions.Panicf("tensor ownership: %+v", err)
	}
	control.SetTensorRegistries(c.Registries)

	// The control backend goes last: its conversions read the tensors of the other backends.
	code := make(exec.CodeMap)
	kernelContexts := make([]backends.Context, 0, len(c.Contexts))
	for _, ctx := range c.Contexts {
		if ctx != backends.Context(control) {
			kernelContexts = append(kernelContexts, ctx)
		}
	}
	kernelContexts = append(kernelContexts, control)
	for _, ctx := range kernelContexts {
		b := ctx.Backend()
		functions, err := ctx.GenKernels()
		if err != nil {
			return nil, err
		}
		c.KernelOrder = append(c.KernelOrder, b.ID())
		if options.HEProfilingMode {
			for _, entry := range functions {
				entry.Sequence.Wrap(func(fn exec.Function) exec.Function { return backends.NewSyncFunction(fn, b) })
			}
		}
		if err = code.Merge(lg.Graph, b.ID(), b.Capabilities().ConcurrentKernels, functions); err != nil {
			return nil, err
		}
	}

	c.Executor, err = exec.New(options.Executor, exec.Config{
		Graph:   lg.Graph,
		Order:   c.Order,
		Code:    code,
		IO:      control.IOTensors(),
		Workers: options.ParallelWorkers,
	})
	if err != nil {
		return nil, err
	}
	if options.HEProfilingMode && options.Executor != exec.Parallel {
		c.ExecTime = options.ExecTime
		if c.ExecTime == nil {
			c.ExecTime = exec.NewExecTime()
		}
		c.Executor.AddObserver(exec.NewProfileObserver(c.ExecTime))
	}
	if options.TraceFilePath != "" {
		c.Executor.AddObserver(exec.NewTracingObserver(options.TraceFilePath))
	}
	klog.V(1).Infof("compiled %s executor: %d operations (%d Permute) on %d backends",
		options.Executor, len(c.Order), lg.NumPermutes(), len(c.Partitions))
	return c, nil
}

// genTensors generates the tensors of all backends concurrently.
func genTensors(contexts []backends.Context) error {
	var g errgroup.Group
	for _, ctx := range contexts {
		g.Go(func() error {
			var genErr error
			err := exceptions.TryCatch[error](func() {
				_, genErr = ctx.GenTensors()
			})
			if err == nil {
				err = genErr
			}
			return errors.WithMessagef(err, "backend %q generating tensors", ctx.Backend().ID())
		})
	}
	return g.Wait()
}

// Partition returns the partition of the backend, or nil.
func (c *Compilation) Partition(backendID string) *Partition {
	for _, p := range c.Partitions {
		if p.Backend.ID() == backendID {
			return p
		}
	}
	return nil
}

// Context returns the context of the backend, or nil.
func (c *Compilation) Context(backendID string) backends.Context {
	for _, ctx := range c.Contexts {
		if ctx.Backend().ID() == backendID {
			return ctx
		}
	}
	return nil
}
