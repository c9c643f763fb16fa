// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/backends/cpucommon"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32Info(dims ...int) ir.OperandInfo {
	return ir.MakeOperandInfo(shapes.Make(dtypes.Float32, dims...))
}

func float32Bytes(values ...float32) []byte {
	buf := make([]byte, 4*len(values))
	copy(cpucommon.FlatBytes[float32](buf, len(values)), values)
	return buf
}

// roundTrip builds the builtin partition of: x (NHWC) -> @0 Permute -> p (NCHW, owned by "cpu"),
// q (NCHW, owned by "cpu") -> @1 Permute -> y (NHWC).
func roundTrip(t *testing.T) (data *backends.ContextData, x, p, q, y ir.OperandIndex) {
	g := ir.New(ir.LayoutNHWC)
	x = g.AddOperand(f32Info(1, 2, 2, 3))
	p = g.AddOperand(f32Info(1, 2, 2, 3))
	q = g.AddOperand(f32Info(1, 2, 2, 3))
	y = g.AddOperand(f32Info(1, 2, 2, 3))
	g.AddInput(x)
	g.AddOutput(y)
	g.AddOperation(ir.NewPermute(x, p, ir.PermuteNHWCToNCHW))
	g.AddOperation(ir.NewPermute(q, y, ir.PermuteNCHWToNHWC))
	require.NoError(t, g.FinishBuilding())
	data = backends.NewContextData(g)
	data.Order = g.TopolSortOperations()
	data.ExternalOperands.Insert(p, q)
	data.OperandLayouts[p] = ir.LayoutNCHW
	data.OperandLayouts[q] = ir.LayoutNCHW
	return
}

func TestPermuteRoundTrip(t *testing.T) {
	data, x, p, q, y := roundTrip(t)
	ctx := New().NewControlContext(data)
	io := ctx.IOTensors()
	require.Len(t, io.Inputs, 1)
	require.Len(t, io.Outputs, 1)

	registry, err := ctx.GenTensors()
	require.NoError(t, err)
	assert.Equal(t, []ir.OperandIndex{x, y}, registry.NativeIndices())

	// Tensors owned by another backend.
	cpuRegistry := backends.NewTensorRegistry("cpu")
	nchw := shapes.Make(dtypes.Float32, 1, 3, 2, 2)
	for _, index := range []ir.OperandIndex{p, q} {
		tensor := cpucommon.NewTensor(nchw, ir.LayoutNCHW, ir.TypeInfo{DType: dtypes.Float32}, false, false)
		tensor.SetBuffer(make([]byte, nchw.Memory()))
		cpuRegistry.SetNativeTensor(index, tensor)
		require.True(t, registry.SetMigrantTensor(index, tensor))
	}

	_, err = ctx.GenKernels()
	require.ErrorContains(t, err, "SetTensorRegistries")
	ctx.SetTensorRegistries(backends.NewTensorRegistries(registry, cpuRegistry))
	functions, err := ctx.GenKernels()
	require.NoError(t, err)
	require.Len(t, functions, 2)

	input := float32Bytes(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11)
	output := make([]byte, len(input))
	require.NoError(t, io.Inputs[0].SetUserBuffer(input))
	require.NoError(t, io.Outputs[0].SetUserBuffer(output))

	require.NoError(t, functions[0].Sequence.Run())
	pTensor := cpuRegistry.GetPortable(p)
	assert.Equal(t, []float32{0, 3, 6, 9, 1, 4, 7, 10, 2, 5, 8, 11}, cpucommon.Flat[float32](pTensor))

	// Simulates the operation of the other backend.
	copy(cpuRegistry.GetPortable(q).Buffer(), pTensor.Buffer())
	require.NoError(t, functions[1].Sequence.Run())
	assert.Equal(t, input, output)
}

func TestPermuteDynamicOutput(t *testing.T) {
	// r is a dynamic tensor of rank 1 produced elsewhere, copied to the graph output.
	g := ir.New(ir.LayoutNHWC)
	dynamicInfo := ir.MakeOperandInfo(shapes.MakeUnknown(dtypes.Float32, 1))
	dynamicInfo.MemAllocType = ir.MemAllocDynamic
	r := g.AddOperand(dynamicInfo)
	y := g.AddOperand(dynamicInfo)
	g.AddOutput(y)
	g.AddOperation(ir.NewPermute(r, y, ir.PermuteCopy))
	require.NoError(t, g.FinishBuilding())
	data := backends.NewContextData(g)
	data.Order = g.TopolSortOperations()
	data.ExternalOperands.Insert(r)

	ctx := New().NewControlContext(data)
	registry := must.M1(ctx.GenTensors())
	cpuRegistry := backends.NewTensorRegistry("cpu")
	dynamic := cpucommon.NewDynamicTensorManager()
	rTensor := cpucommon.NewTensor(dynamicInfo.Shape, ir.LayoutNHWC, dynamicInfo.TypeInfo, true, false)
	dynamic.Register(r, rTensor)
	cpuRegistry.SetNativeTensor(r, rTensor)
	require.True(t, registry.SetMigrantTensor(r, rTensor))
	ctx.SetTensorRegistries(backends.NewTensorRegistries(registry, cpuRegistry))
	functions := must.M1(ctx.GenKernels())

	output := ctx.IOTensors().Outputs[0]
	user := make([]byte, 64)
	require.NoError(t, output.SetUserBuffer(user))
	require.ErrorContains(t, functions[0].Sequence.Run(), "no buffer", "r was not allocated yet")

	require.NoError(t, rTensor.Resize(shapes.Make(dtypes.Float32, 3)))
	copy(rTensor.Buffer(), float32Bytes(1, 2, 3))
	require.NoError(t, functions[0].Sequence.Run())
	assert.Equal(t, []int{3}, output.Shape().Dimensions)
	assert.Equal(t, float32Bytes(1, 2, 3), user[:12])

	// User buffer too small for the output.
	require.NoError(t, output.SetUserBuffer(make([]byte, 8)))
	require.ErrorContains(t, functions[0].Sequence.Run(), "requires 12 bytes")
}

func TestIOTensor(t *testing.T) {
	tensor := newIOTensor(3, f32Info(2, 2), ir.LayoutNHWC, true)
	assert.True(t, tensor.IsInput())
	assert.Equal(t, ir.OperandIndex(3), tensor.Index())
	require.ErrorContains(t, tensor.SetUserBuffer(make([]byte, 15)), "requires 16 bytes")
	require.Error(t, tensor.SetUserBuffer(nil))
	buf := make([]byte, 32)
	require.NoError(t, tensor.SetUserBuffer(buf))
	assert.Len(t, tensor.Buffer(), 16)
	require.NoError(t, tensor.Resize(shapes.Make(dtypes.Float32, 2, 2)))
	require.Error(t, tensor.Resize(shapes.Make(dtypes.Float32, 4)))
	assert.Contains(t, tensor.String(), "graph input %3")
}

func TestContextErrors(t *testing.T) {
	t.Run("input is output", func(t *testing.T) {
		g := ir.New(ir.LayoutNHWC)
		x := g.AddOperand(f32Info(2))
		g.AddInput(x)
		g.AddOutput(x)
		require.NoError(t, g.FinishBuilding())
		_, err := New().NewControlContext(backends.NewContextData(g)).GenTensors()
		require.ErrorContains(t, err, "both a graph input and output")
	})

	t.Run("not a permute", func(t *testing.T) {
		g := ir.New(ir.LayoutNHWC)
		x := g.AddOperand(f32Info(2))
		y := g.AddOperand(f32Info(2))
		g.AddInput(x)
		g.AddOutput(y)
		g.AddOperation(ir.NewOperation(ir.OpTypeReLU, []ir.OperandIndex{x}, []ir.OperandIndex{y}))
		require.NoError(t, g.FinishBuilding())
		data := backends.NewContextData(g)
		data.Order = g.TopolSortOperations()
		ctx := New().NewControlContext(data)
		registry := must.M1(ctx.GenTensors())
		ctx.SetTensorRegistries(backends.NewTensorRegistries(registry))
		_, err := ctx.GenKernels()
		require.ErrorContains(t, err, "only implements Permute")
	})

	t.Run("missing migrant", func(t *testing.T) {
		data, _, _, _, _ := roundTrip(t)
		ctx := New().NewControlContext(data)
		registry := must.M1(ctx.GenTensors())
		ctx.SetTensorRegistries(backends.NewTensorRegistries(registry))
		_, err := ctx.GenKernels()
		require.ErrorContains(t, err, "has no tensor in any backend")
	})
}

func TestBackend(t *testing.T) {
	b := New()
	assert.Equal(t, backends.BuiltinID, b.ID())
	assert.True(t, b.IsControl())
	assert.True(t, b.Capabilities().Supports(ir.OpTypePermute))
	assert.False(t, b.Capabilities().Supports(ir.OpTypeAdd))
	_, err := backends.NewManager(b)
	require.NoError(t, err)
}
