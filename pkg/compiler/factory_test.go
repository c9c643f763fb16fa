// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/backends/builtin"
	"github.com/gomlx/lowerexec/backends/cpu"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/exec"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKinds = []exec.Kind{exec.Linear, exec.Dataflow, exec.Parallel}

// mixedLayoutGraph builds y = ReLU(x + c)^2, with the Add and the Mul meant for a NCHW backend and
// the ReLU for a NHWC one.
func mixedLayoutGraph(t *testing.T) *ir.Graph {
	g := ir.New(ir.LayoutNHWC)
	x := g.AddOperand(f32(1, 2, 2, 3))
	c := g.AddConstant(f32(1, 2, 2, 3), float32Bytes(1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1))
	a := g.AddOperand(f32(1, 2, 2, 3))
	r := g.AddOperand(f32(1, 2, 2, 3))
	y := g.AddOperand(f32(1, 2, 2, 3))
	g.AddInput(x)
	g.AddOutput(y)
	g.AddOperation(ir.NewOperation(ir.OpTypeAdd, []ir.OperandIndex{x, c}, []ir.OperandIndex{a}))
	g.AddOperation(ir.NewOperation(ir.OpTypeReLU, []ir.OperandIndex{a}, []ir.OperandIndex{r}))
	g.AddOperation(ir.NewOperation(ir.OpTypeMul, []ir.OperandIndex{r, r}, []ir.OperandIndex{y}))
	require.NoError(t, g.FinishBuilding())
	return g
}

func mixedLayoutPlacement() *ManualPlacement {
	return &ManualPlacement{ByOpType: map[ir.OpType]string{
		ir.OpTypeAdd:  "nchw",
		ir.OpTypeMul:  "nchw",
		ir.OpTypeReLU: "nhwc",
	}}
}

func TestFactoryMixedLayouts(t *testing.T) {
	input := float32Bytes(-6, -5, -4, -3, -2, -1, 0, 1, 2, 3, 4, 5)
	want := []float32{0, 0, 0, 0, 0, 0, 1, 4, 9, 16, 25, 36}
	for _, kind := range allKinds {
		t.Run(kind.String(), func(t *testing.T) {
			manager := newManager(t, newCPU("nchw", ir.LayoutNCHW), newCPU("nhwc", ir.LayoutNHWC))
			g := mixedLayoutGraph(t)
			c, err := NewFactory(manager).Compile(g, Options{Executor: kind, Placement: mixedLayoutPlacement(), ParallelWorkers: 2})
			require.NoError(t, err)
			assert.Equal(t, kind, c.Executor.Kind())
			assert.Equal(t, []string{"nchw", "nhwc", backends.BuiltinID}, c.KernelOrder)
			require.NoError(t, c.Registries.VerifyOwnership())

			// No operand is both native and migrant in the same registry.
			for _, registry := range c.Registries.All() {
				for _, index := range registry.NativeIndices() {
					assert.False(t, registry.IsMigrant(index), "%s in %q", index, registry.BackendID())
				}
			}

			for range 2 {
				output := make([]byte, len(input))
				require.NoError(t, c.Executor.Execute([][]byte{input}, [][]byte{output}))
				assert.Equal(t, want, bytesFloat32(output))
			}
			require.NoError(t, c.Executor.Close())
		})
	}
}

func TestFactoryDynamicOutput(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(kind.String(), func(t *testing.T) {
			g := ir.New(ir.LayoutNHWC)
			start := g.AddOperand(f32())
			limit := g.AddOperand(f32())
			delta := g.AddOperand(f32())
			rangeInfo := ir.MakeOperandInfo(shapes.MakeUnknown(dtypes.Float32, 1))
			rangeInfo.MemAllocType = ir.MemAllocDynamic
			r := g.AddOperand(rangeInfo)
			g.AddInput(start)
			g.AddInput(limit)
			g.AddInput(delta)
			g.AddOutput(r)
			g.AddOperation(ir.NewOperation(ir.OpTypeRange, []ir.OperandIndex{start, limit, delta}, []ir.OperandIndex{r}))
			require.NoError(t, g.FinishBuilding())

			executor, err := NewFactory(newManager(t, newCPU("cpu", ir.LayoutUnknown))).Build(g, Options{Executor: kind})
			require.NoError(t, err)
			output := make([]byte, 64)
			inputs := [][]byte{float32Bytes(0), float32Bytes(10), float32Bytes(2)}
			require.NoError(t, executor.Execute(inputs, [][]byte{output}))
			assert.Equal(t, []int{5}, executor.OutputShape(0).Dimensions)
			assert.Equal(t, []float32{0, 2, 4, 6, 8}, bytesFloat32(output[:20]))

			inputs = [][]byte{float32Bytes(1), float32Bytes(4), float32Bytes(1)}
			require.NoError(t, executor.Execute(inputs, [][]byte{output}))
			assert.Equal(t, []int{3}, executor.OutputShape(0).Dimensions)
			assert.Equal(t, []float32{1, 2, 3}, bytesFloat32(output[:12]))

			// Output buffer too small.
			inputs = [][]byte{float32Bytes(0), float32Bytes(100), float32Bytes(1)}
			require.Error(t, executor.Execute(inputs, [][]byte{output}))
		})
	}
}

// fanGraph builds, from x: a = x+x and b = ReLU(x) on backend "a" and "b", then m = a*b on "a" and
// s = a+b on "b".
func fanGraph(t *testing.T) (*ir.Graph, *ManualPlacement) {
	g := ir.New(ir.LayoutNHWC)
	x := g.AddOperand(f32(2, 3))
	a := g.AddOperand(f32(2, 3))
	b := g.AddOperand(f32(2, 3))
	m := g.AddOperand(f32(2, 3))
	s := g.AddOperand(f32(2, 3))
	g.AddInput(x)
	g.AddOutput(m)
	g.AddOutput(s)
	opA := g.AddOperation(ir.NewOperation(ir.OpTypeAdd, []ir.OperandIndex{x, x}, []ir.OperandIndex{a}))
	opB := g.AddOperation(ir.NewOperation(ir.OpTypeReLU, []ir.OperandIndex{x}, []ir.OperandIndex{b}))
	opM := g.AddOperation(ir.NewOperation(ir.OpTypeMul, []ir.OperandIndex{a, b}, []ir.OperandIndex{m}))
	opS := g.AddOperation(ir.NewOperation(ir.OpTypeAdd, []ir.OperandIndex{a, b}, []ir.OperandIndex{s}))
	require.NoError(t, g.FinishBuilding())
	return g, &ManualPlacement{ByIndex: map[ir.OperationIndex]string{opA: "a", opB: "b", opM: "a", opS: "b"}}
}

func TestFactoryControlBackendLast(t *testing.T) {
	log := &eventLog{}
	backendA := &recordingBackend{Backend: newCPU("a", ir.LayoutUnknown), log: log}
	backendB := &recordingBackend{Backend: newCPU("b", ir.LayoutNCHW), log: log}
	control := &recordingControl{ControlBackend: builtin.New(), log: log}
	manager := must.M1(backends.NewManager(control, backendA, backendB))
	g, placement := fanGraph(t)

	c, err := NewFactory(manager).Compile(g, Options{Executor: exec.Parallel, Placement: placement, ParallelWorkers: 3})
	require.NoError(t, err)
	events := log.all()
	require.Len(t, events, 6)
	// Tensors are generated concurrently, kernels in order with the control backend last.
	assert.ElementsMatch(t, []string{"tensors:builtin", "tensors:a", "tensors:b"}, events[:3])
	assert.Equal(t, []string{"kernels:a", "kernels:b", "kernels:builtin"}, events[3:])

	// Non-linear executors never release tensors before the end of the execution.
	for _, id := range []string{"a", "b"} {
		ctx := c.Context(id).(*recordingContext).Context.(*cpu.Context)
		builder := ctx.TensorBuilder()
		assert.Zero(t, builder.NumLastUses(), "backend %q", id)
		assert.Positive(t, builder.NumFirstUses(), "backend %q", id)
		assert.False(t, c.Partition(id).Data.IsLinearExecutor)
	}

	input := float32Bytes(-3, -2, -1, 1, 2, 3)
	for range 10 {
		m, s := make([]byte, len(input)), make([]byte, len(input))
		require.NoError(t, c.Executor.Execute([][]byte{input}, [][]byte{m, s}))
		assert.Equal(t, []float32{0, 0, 0, 2, 8, 18}, bytesFloat32(m))
		assert.Equal(t, []float32{-6, -4, -2, 3, 6, 9}, bytesFloat32(s))
	}

	// With a Linear executor, tensors are released at their last use.
	g, placement = fanGraph(t)
	c, err = NewFactory(manager).Compile(g, Options{Executor: exec.Linear, Placement: placement})
	require.NoError(t, err)
	for _, id := range []string{"a", "b"} {
		builder := c.Context(id).(*recordingContext).Context.(*cpu.Context).TensorBuilder()
		assert.Equal(t, builder.NumFirstUses(), builder.NumLastUses(), "backend %q", id)
	}
}

func TestFactoryProfilingAndTracing(t *testing.T) {
	log := &eventLog{}
	nchw := &recordingBackend{Backend: newCPU("nchw", ir.LayoutNCHW), log: log}
	nhwc := &recordingBackend{Backend: newCPU("nhwc", ir.LayoutNHWC), log: log}
	manager := newManager(t, nchw, nhwc)
	tracePath := filepath.Join(t.TempDir(), "trace.json")
	options := must.M1(ParseOptions("executor=Dataflow,he_profiling=true,trace=" + tracePath))
	options.Placement = mixedLayoutPlacement()

	c, err := NewFactory(manager).Compile(mixedLayoutGraph(t), options)
	require.NoError(t, err)
	require.NotNil(t, c.ExecTime)
	input := float32Bytes(-6, -5, -4, -3, -2, -1, 0, 1, 2, 3, 4, 5)
	output := make([]byte, len(input))
	require.NoError(t, c.Executor.Execute([][]byte{input}, [][]byte{output}))

	// Each kernel of the backends is followed by a Sync.
	assert.Equal(t, 2, nchw.numSyncs())
	assert.Equal(t, 1, nhwc.numSyncs())
	entry, found := c.ExecTime.Get("nchw", ir.OpTypeAdd)
	require.True(t, found)
	assert.Equal(t, 1, entry.Count)
	entry, found = c.ExecTime.Get(backends.BuiltinID, ir.OpTypePermute)
	require.True(t, found)
	assert.Equal(t, c.Lowered.NumPermutes(), entry.Count)

	require.NoError(t, c.Executor.Close())
	contents, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "traceEvents")
	assert.Contains(t, string(contents), "Permute")
}

func TestFactoryConstantOutputs(t *testing.T) {
	// Graph outputs: y = ReLU(x), the constant c, s = x + d, and the constant d.
	g := ir.New(ir.LayoutNHWC)
	x := g.AddOperand(f32(4))
	y := g.AddOperand(f32(4))
	c := g.AddConstant(f32(4), float32Bytes(1, 2, 3, 4))
	d := g.AddConstant(f32(4), float32Bytes(10, 20, 30, 40))
	s := g.AddOperand(f32(4))
	g.AddInput(x)
	g.AddOutput(y)
	g.AddOutput(c)
	g.AddOutput(s)
	g.AddOutput(d)
	g.AddOperation(ir.NewOperation(ir.OpTypeReLU, []ir.OperandIndex{x}, []ir.OperandIndex{y}))
	g.AddOperation(ir.NewOperation(ir.OpTypeAdd, []ir.OperandIndex{x, d}, []ir.OperandIndex{s}))
	require.NoError(t, g.FinishBuilding())

	input := float32Bytes(-1, 2, -3, 4)
	want := [][]float32{{0, 2, 0, 4}, {1, 2, 3, 4}, {9, 22, 27, 44}, {10, 20, 30, 40}}
	for _, kind := range allKinds {
		t.Run(kind.String(), func(t *testing.T) {
			manager := newManager(t, newCPU("cpu", ir.LayoutUnknown))
			compilation, err := NewFactory(manager).Compile(g, Options{Executor: kind})
			require.NoError(t, err)
			lg := compilation.Lowered

			// Constants are never written by an operation, so they are copied into the graph outputs.
			outputs := lg.Graph.Outputs()
			for _, constant := range []ir.OperandIndex{c, d} {
				permutes := permutesOf(lg, constant)
				require.Len(t, permutes, 1)
				assert.Contains(t, outputs, lg.Graph.MustOperation(permutes[0]).Outputs[0])
				assert.NotContains(t, outputs, constant)
			}
			assert.Equal(t, ir.PermuteParams{Type: ir.PermuteCopy}, lg.Graph.MustOperation(permutesOf(lg, c)[0]).Params)

			for range 2 {
				buffers := make([][]byte, len(want))
				for ii := range buffers {
					buffers[ii] = float32Bytes(-7, -7, -7, -7)
				}
				require.NoError(t, compilation.Executor.Execute([][]byte{input}, buffers))
				for ii, buf := range buffers {
					assert.Equal(t, want[ii], bytesFloat32(buf), "output #%d", ii)
				}
			}
			require.NoError(t, compilation.Executor.Close())
		})
	}
}

func TestFactoryErrors(t *testing.T) {
	t.Run("no manager", func(t *testing.T) {
		_, err := (&Factory{}).Build(mixedLayoutGraph(t), DefaultOptions())
		require.Error(t, err)
	})

	t.Run("unsupported operation", func(t *testing.T) {
		g := ir.New(ir.LayoutNHWC)
		x := g.AddOperand(f32(2))
		y := g.AddOperand(f32(2))
		g.AddInput(x)
		g.AddOutput(y)
		g.AddOperation(ir.NewOperation(ir.OpTypeSplit, []ir.OperandIndex{x}, []ir.OperandIndex{y}))
		require.NoError(t, g.FinishBuilding())
		_, err := NewFactory(newManager(t, newCPU("cpu", ir.LayoutUnknown))).Build(g, DefaultOptions())
		require.ErrorContains(t, err, "no backend supports")
	})

	t.Run("input is output", func(t *testing.T) {
		g := ir.New(ir.LayoutNHWC)
		x := g.AddOperand(f32(2))
		g.AddInput(x)
		g.AddOutput(x)
		require.NoError(t, g.FinishBuilding())
		_, err := NewFactory(newManager(t, newCPU("cpu", ir.LayoutUnknown))).Build(g, DefaultOptions())
		require.ErrorContains(t, err, "both a graph input and output")
	})

	t.Run("output not computed", func(t *testing.T) {
		g := ir.New(ir.LayoutNHWC)
		x := g.AddOperand(f32(2))
		y := g.AddOperand(f32(2))
		z := g.AddOperand(f32(2))
		g.AddInput(x)
		g.AddOutput(y)
		g.AddOutput(z)
		g.AddOperation(ir.NewOperation(ir.OpTypeReLU, []ir.OperandIndex{x}, []ir.OperandIndex{y}))
		require.NoError(t, g.FinishBuilding())
		_, err := NewFactory(newManager(t, newCPU("cpu", ir.LayoutUnknown))).Build(g, DefaultOptions())
		require.ErrorContains(t, err, "neither computed by an operation nor a constant")
	})

	t.Run("constant with short data", func(t *testing.T) {
		g := ir.New(ir.LayoutNHWC)
		x := g.AddOperand(f32(3))
		c := g.AddConstant(f32(3), float32Bytes(1, 2))
		y := g.AddOperand(f32(3))
		g.AddInput(x)
		g.AddOutput(y)
		g.AddOperation(ir.NewOperation(ir.OpTypeAdd, []ir.OperandIndex{x, c}, []ir.OperandIndex{y}))
		require.NoError(t, g.FinishBuilding())
		_, err := NewFactory(newManager(t, newCPU("cpu", ir.LayoutUnknown))).Build(g, DefaultOptions())
		require.ErrorContains(t, err, "requires 12")
	})
}
