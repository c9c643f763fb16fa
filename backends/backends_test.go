// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	id      string
	control bool
}

func (b *fakeBackend) ID() string { return b.id }
func (b *fakeBackend) Capabilities() Capabilities { return Capabilities{} }
func (b *fakeBackend) IsControl() bool { return b.control }
func (b *fakeBackend) NewContext(_ *ContextData) Context { return nil }
func (b *fakeBackend) Sync() {}
func (b *fakeBackend) NewControlContext(_ *ContextData) ControlContext { return nil }

var _ ControlBackend = (*fakeBackend)(nil)

// opaqueTensor is not portable.
type opaqueTensor struct{ shape shapes.Shape }

func (t *opaqueTensor) Shape() shapes.Shape { return t.shape }
func (t *opaqueTensor) Layout() ir.Layout { return ir.LayoutNHWC }
func (t *opaqueTensor) TypeInfo() ir.TypeInfo { return ir.TypeInfo{DType: t.shape.DType} }
func (t *opaqueTensor) IsDynamic() bool { return false }
func (t *opaqueTensor) IsConstant() bool { return false }

type portableTensor struct {
	opaqueTensor
	buf []byte
}

func (t *portableTensor) Buffer() []byte { return t.buf }
func (t *portableTensor) SetShape(shape shapes.Shape) { t.shape = shape }
func (t *portableTensor) SetBuffer(buf []byte) { t.buf = buf }

func TestManager(t *testing.T) {
	control := &fakeBackend{id: BuiltinID, control: true}
	m, err := NewManager(control, &fakeBackend{id: "cpu"}, &fakeBackend{id: "gpu"})
	require.NoError(t, err)
	assert.Equal(t, []string{BuiltinID, "cpu", "gpu"}, m.IDs())
	assert.Equal(t, ControlBackend(control), m.Control())
	assert.Equal(t, "gpu", m.Get("gpu").ID())
	assert.Nil(t, m.Get("npu"))
	assert.True(t, m.Has("cpu"))
	assert.Len(t, m.All(), 3)

	_, err = NewManager(nil)
	require.Error(t, err)
	_, err = NewManager(&fakeBackend{id: "cpu"})
	require.ErrorContains(t, err, "IsControl")
	_, err = NewManager(control, &fakeBackend{id: "cpu"}, &fakeBackend{id: "cpu"})
	require.ErrorContains(t, err, "twice")
	_, err = NewManager(control, &fakeBackend{id: "other", control: true})
	require.ErrorContains(t, err, "only one control")
}

func TestTensorRegistry(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 2)
	cpu := NewTensorRegistry("cpu")
	builtin := NewTensorRegistry(BuiltinID)

	x := &portableTensor{opaqueTensor: opaqueTensor{shape: shape}}
	cpu.SetNativeTensor(3, x)
	require.True(t, builtin.SetMigrantTensor(3, x))
	assert.True(t, builtin.IsMigrant(3))
	assert.Equal(t, Tensor(x), builtin.Get(3))
	assert.Equal(t, PortableTensor(x), builtin.GetPortable(3))
	assert.Nil(t, builtin.NativeTensor(3))

	// Opaque tensors cannot migrate.
	cpu.SetNativeTensor(4, &opaqueTensor{shape: shape})
	assert.False(t, builtin.SetMigrantTensor(4, cpu.Get(4)))
	assert.Nil(t, builtin.Get(4))
	assert.Nil(t, cpu.GetPortable(4))

	// Native/migrant conflicts are internal errors.
	require.Panics(t, func() { builtin.SetNativeTensor(3, x) })
	require.Panics(t, func() { cpu.SetMigrantTensor(3, x) })

	assert.Equal(t, []ir.OperandIndex{3, 4}, cpu.NativeIndices())
	var visited []ir.OperandIndex
	for index := range cpu.IterateNative() {
		visited = append(visited, index)
	}
	assert.Equal(t, []ir.OperandIndex{3, 4}, visited)

	registries := NewTensorRegistries(builtin, cpu)
	require.NoError(t, registries.VerifyOwnership())
	assert.Equal(t, cpu, registries.NativeOwner(3))
	assert.Equal(t, Tensor(x), registries.Tensor(3))
	assert.Nil(t, registries.Tensor(9))
	assert.Equal(t, builtin, registries.Get(BuiltinID))

	// Two owners.
	gpu := NewTensorRegistry("gpu")
	gpu.SetNativeTensor(4, &opaqueTensor{shape: shape})
	gpu.SetNativeTensor(3, &portableTensor{opaqueTensor: opaqueTensor{shape: shape}})
	registries.Add(gpu)
	for range 5 {
		// Conflicts are reported in operand order.
		require.ErrorContains(t, registries.VerifyOwnership(), "operand "+ir.OperandIndex(3).String()+" is native in both")
	}

	// Migrant without owner.
	orphan := NewTensorRegistry("orphan")
	orphan.SetMigrantTensor(7, x)
	require.ErrorContains(t, NewTensorRegistries(orphan).VerifyOwnership(), "no backend owns it")
}

func TestContextData(t *testing.T) {
	g := ir.New(ir.LayoutNHWC)
	x := g.AddOperand(ir.MakeOperandInfo(shapes.Make(dtypes.Float32, 1, 4, 5, 3)))
	data := NewContextData(g)
	assert.Equal(t, ir.LayoutNHWC, data.OperandLayout(x))
	assert.Equal(t, []int{1, 4, 5, 3}, data.TensorShape(x).Dimensions)
	data.OperandLayouts[x] = ir.LayoutNCHW
	assert.Equal(t, []int{1, 3, 4, 5}, data.TensorShape(x).Dimensions)
	data.ExternalOperands.Insert(x)
	assert.True(t, data.IsExternal(x))
	assert.False(t, data.IsCrossUsed(x))
	assert.Equal(t, ir.LayoutNHWC, data.OperationLayout(0))
}

func TestCapabilities(t *testing.T) {
	c := Capabilities{Operations: map[ir.OpType]bool{ir.OpTypeAdd: true}, PortableTensors: true}
	c2 := c.Clone()
	c2.Operations[ir.OpTypeMul] = true
	assert.True(t, c.Supports(ir.OpTypeAdd))
	assert.False(t, c.Supports(ir.OpTypeMul))
	assert.True(t, c2.Supports(ir.OpTypeMul))
	assert.True(t, c2.PortableTensors)
}
