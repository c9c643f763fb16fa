// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"sync"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/backends/builtin"
	"github.com/gomlx/lowerexec/backends/cpu"
	"github.com/gomlx/lowerexec/backends/cpucommon"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/exec"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func f32(dims ...int) ir.OperandInfo {
	return ir.MakeOperandInfo(shapes.Make(dtypes.Float32, dims...))
}

func float32Bytes(values ...float32) []byte {
	buf := make([]byte, 4*len(values))
	copy(cpucommon.FlatBytes[float32](buf, len(values)), values)
	return buf
}

func bytesFloat32(buf []byte) []float32 {
	return cpucommon.FlatBytes[float32](buf, len(buf)/4)
}

func newCPU(id string, layout ir.Layout) *cpu.Backend {
	return must.M1(cpu.New(cpu.Config{ID: id, PreferredLayout: layout}))
}

func newManager(t *testing.T, compute ...backends.Backend) *backends.Manager {
	manager, err := backends.NewManager(builtin.New(), compute...)
	require.NoError(t, err)
	return manager
}

// chainGraph builds: a, b -> @0 Add -> x -> @1 ReLU -> z, with a and b graph inputs and z the graph output.
func chainGraph(t *testing.T) (g *ir.Graph, x, z ir.OperandIndex, add, relu ir.OperationIndex) {
	g = ir.New(ir.LayoutNHWC)
	a := g.AddOperand(f32(1, 2, 2, 3))
	b := g.AddOperand(f32(1, 2, 2, 3))
	x = g.AddOperand(f32(1, 2, 2, 3))
	z = g.AddOperand(f32(1, 2, 2, 3))
	g.AddInput(a)
	g.AddInput(b)
	g.AddOutput(z)
	add = g.AddOperation(ir.NewOperation(ir.OpTypeAdd, []ir.OperandIndex{a, b}, []ir.OperandIndex{x}))
	relu = g.AddOperation(ir.NewOperation(ir.OpTypeReLU, []ir.OperandIndex{x}, []ir.OperandIndex{z}))
	require.NoError(t, g.FinishBuilding())
	return
}

// eventLog is shared by the recording wrappers of backends.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// recordingBackend logs the calls to the contexts of the wrapped backend.
type recordingBackend struct {
	backends.Backend
	log   *eventLog
	syncs int
	mu    sync.Mutex
}

func (b *recordingBackend) NewContext(data *backends.ContextData) backends.Context {
	return &recordingContext{Context: b.Backend.NewContext(data), backend: b}
}

func (b *recordingBackend) Sync() {
	b.mu.Lock()
	b.syncs++
	b.mu.Unlock()
	b.Backend.Sync()
}

func (b *recordingBackend) numSyncs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncs
}

type recordingContext struct {
	backends.Context
	backend *recordingBackend
}

func (c *recordingContext) Backend() backends.Backend { return c.backend }

func (c *recordingContext) GenTensors() (*backends.TensorRegistry, error) {
	c.backend.log.add("tensors:" + c.backend.ID())
	return c.Context.GenTensors()
}

func (c *recordingContext) GenKernels() (exec.FunctionMap, error) {
	c.backend.log.add("kernels:" + c.backend.ID())
	return c.Context.GenKernels()
}

// recordingControl logs the calls to the contexts of the wrapped control backend.
type recordingControl struct {
	backends.ControlBackend
	log *eventLog
}

func (b *recordingControl) NewControlContext(data *backends.ContextData) backends.ControlContext {
	return &recordingControlContext{ControlContext: b.ControlBackend.NewControlContext(data), log: b.log}
}

type recordingControlContext struct {
	backends.ControlContext
	log *eventLog
}

func (c *recordingControlContext) GenTensors() (*backends.TensorRegistry, error) {
	c.log.add("tensors:" + c.ControlContext.Backend().ID())
	return c.ControlContext.GenTensors()
}

func (c *recordingControlContext) GenKernels() (exec.FunctionMap, error) {
	c.log.add("kernels:" + c.ControlContext.Backend().ID())
	return c.ControlContext.GenKernels()
}
