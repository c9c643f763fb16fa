// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"testing"

	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// permutesOf returns the Permute operations reading the operand.
func permutesOf(lg *LoweredGraph, index ir.OperandIndex) (permutes []ir.OperationIndex) {
	for _, use := range lg.Graph.MustOperand(index).Uses() {
		if lg.Graph.MustOperation(use).Type == ir.OpTypePermute {
			permutes = append(permutes, use)
		}
	}
	return
}

func TestLowerConversionBetweenBackends(t *testing.T) {
	g, x, z, add, relu := chainGraph(t)
	manager := newManager(t, newCPU("p", ir.LayoutNHWC), newCPU("q", ir.LayoutNCHW))
	placement := &ManualPlacement{ByIndex: map[ir.OperationIndex]string{add: "p", relu: "q"}}
	lg, err := Lower(g, manager, placement)
	require.NoError(t, err)

	info := lg.LowerInfo
	assert.Equal(t, PermuteFactor{"p", ir.LayoutNHWC}, info.MustOperation(add).Factor())
	assert.Equal(t, PermuteFactor{"q", ir.LayoutNCHW}, info.MustOperation(relu).Factor())

	// x is read by a single Permute, and ReLU reads the Permute output.
	permutes := permutesOf(lg, x)
	require.Len(t, permutes, 1)
	assert.Equal(t, []ir.OperationIndex{permutes[0]}, lg.Graph.MustOperand(x).Uses())
	permute := lg.Graph.MustOperation(permutes[0])
	assert.Equal(t, ir.PermuteParams{Type: ir.PermuteNHWCToNCHW}, permute.Params)
	reluOp := lg.Graph.MustOperation(relu)
	assert.NotEqual(t, x, reluOp.Inputs[0])
	assert.Equal(t, permute.Outputs[0], reluOp.Inputs[0])
	assert.Equal(t, PermuteFactor{"q", ir.LayoutNCHW}, info.MustOperand(reluOp.Inputs[0]).DefFactor())
	assert.Equal(t, backends.BuiltinID, info.MustOperation(permutes[0]).Backend)
	assert.Equal(t, ir.LayoutNHWC, info.MustOperation(permutes[0]).Layout)

	// Graph inputs copied to p, the output converted back to the graph layout.
	assert.Equal(t, 4, lg.NumPermutes())
	output := lg.Graph.Outputs()[0]
	assert.NotEqual(t, z, output)
	outputDef := lg.Graph.MustOperation(lg.Graph.MustOperand(output).Def())
	assert.Equal(t, ir.PermuteParams{Type: ir.PermuteNCHWToNHWC}, outputDef.Params)
	assert.Equal(t, z, outputDef.Inputs[0])
	for _, input := range lg.Graph.Inputs() {
		permutes := permutesOf(lg, input)
		require.Len(t, permutes, 1)
		assert.Equal(t, ir.PermuteParams{Type: ir.PermuteCopy}, lg.Graph.MustOperation(permutes[0]).Params)
	}

	// The frontend graph is not modified.
	assert.Equal(t, x, g.MustOperation(relu).Inputs[0])
	assert.Equal(t, []ir.OperandIndex{z}, g.Outputs())
	require.NoError(t, lg.VerifyBoundaries())

	// Identifiers of the frontend graph are kept.
	for index, operand := range g.IterateOperands() {
		assert.True(t, operand.Shape().Equal(lg.Graph.MustOperand(index).Shape()))
	}
	for index, op := range g.IterateOperations() {
		assert.Equal(t, op.Type, lg.Graph.MustOperation(index).Type)
	}

	// Permutations can only be inserted once.
	require.Panics(t, func() { lg.insertPermutations() })

	// Bypassing the conversion is detected.
	lg.Graph.ReplaceOperationInput(relu, reluOp.Inputs[0], x)
	require.ErrorContains(t, lg.VerifyBoundaries(), "without conversion")
}

func TestLowerSharedConversion(t *testing.T) {
	// y is produced on p, and read by two operations on q and one on p.
	g := ir.New(ir.LayoutNHWC)
	a := g.AddOperand(f32(2, 3))
	y := g.AddOperand(f32(2, 3))
	r1 := g.AddOperand(f32(2, 3))
	r2 := g.AddOperand(f32(2, 3))
	r3 := g.AddOperand(f32(2, 3))
	g.AddInput(a)
	g.AddOutput(r1)
	g.AddOutput(r2)
	g.AddOutput(r3)
	produce := g.AddOperation(ir.NewOperation(ir.OpTypeReLU, []ir.OperandIndex{a}, []ir.OperandIndex{y}))
	use1 := g.AddOperation(ir.NewOperation(ir.OpTypeReLU, []ir.OperandIndex{y}, []ir.OperandIndex{r1}))
	use2 := g.AddOperation(ir.NewOperation(ir.OpTypeAdd, []ir.OperandIndex{y, y}, []ir.OperandIndex{r2}))
	use3 := g.AddOperation(ir.NewOperation(ir.OpTypeReLU, []ir.OperandIndex{y}, []ir.OperandIndex{r3}))
	require.NoError(t, g.FinishBuilding())

	manager := newManager(t, newCPU("p", ir.LayoutUnknown), newCPU("q", ir.LayoutUnknown))
	placement := &ManualPlacement{Default: "q", ByIndex: map[ir.OperationIndex]string{produce: "p", use3: "p"}}
	lg := must.M1(Lower(g, manager, placement))

	permutes := permutesOf(lg, y)
	require.Len(t, permutes, 1)
	shared := lg.Graph.MustOperation(permutes[0]).Outputs[0]
	assert.Equal(t, []ir.OperandIndex{shared}, lg.Graph.MustOperation(use1).Inputs)
	assert.Equal(t, []ir.OperandIndex{shared, shared}, lg.Graph.MustOperation(use2).Inputs)
	assert.Equal(t, []ir.OperandIndex{y}, lg.Graph.MustOperation(use3).Inputs)
	assert.Equal(t, []ir.OperationIndex{use1, use2}, lg.Graph.MustOperand(shared).Uses())
	assert.Equal(t, PermuteFactor{"q", ir.LayoutNHWC}, lg.LowerInfo.MustOperand(shared).DefFactor())
	assert.Equal(t, []PermuteFactor{{"p", ir.LayoutNHWC}}, lg.LowerInfo.MustOperand(y).UseFactors().Items())
	require.NoError(t, lg.VerifyBoundaries())
}

func TestLowerConstants(t *testing.T) {
	g := ir.New(ir.LayoutNHWC)
	data := float32Bytes(1, 2, 3)
	c := g.AddConstant(f32(3), data)
	a := g.AddOperand(f32(3))
	x := g.AddOperand(f32(3))
	y := g.AddOperand(f32(3))
	g.AddInput(a)
	g.AddOutput(x)
	g.AddOutput(y)
	onP := g.AddOperation(ir.NewOperation(ir.OpTypeAdd, []ir.OperandIndex{a, c}, []ir.OperandIndex{x}))
	onQ := g.AddOperation(ir.NewOperation(ir.OpTypeMul, []ir.OperandIndex{c, a}, []ir.OperandIndex{y}))
	require.NoError(t, g.FinishBuilding())

	manager := newManager(t, newCPU("p", ir.LayoutUnknown), newCPU("q", ir.LayoutNCHW))
	lg := must.M1(Lower(g, manager, &ManualPlacement{ByIndex: map[ir.OperationIndex]string{onP: "p", onQ: "q"}}))

	// The constant used on q is a copy sharing the data.
	assert.Equal(t, c, lg.Graph.MustOperation(onP).Inputs[1])
	copyIdx := lg.Graph.MustOperation(onQ).Inputs[0]
	require.NotEqual(t, c, copyIdx)
	copied := lg.Graph.MustOperand(copyIdx)
	assert.True(t, copied.IsConstant())
	assert.Same(t, &data[0], &copied.Data()[0])
	assert.Equal(t, PermuteFactor{"q", ir.LayoutNCHW}, lg.LowerInfo.MustOperand(copyIdx).DefFactor())
	assert.Equal(t, PermuteFactor{"p", ir.LayoutNHWC}, lg.LowerInfo.MustOperand(c).DefFactor())
	assert.Empty(t, permutesOf(lg, c))
	assert.Empty(t, permutesOf(lg, copyIdx))
	assert.Equal(t, []ir.OperationIndex{onP}, lg.Graph.MustOperand(c).Uses())
}

func TestLowerPlacement(t *testing.T) {
	t.Run("automatic", func(t *testing.T) {
		g, _, _, add, relu := chainGraph(t)
		manager := newManager(t, newCPU("p", ir.LayoutNCHW), newCPU("q", ir.LayoutNHWC))
		lg := must.M1(Lower(g, manager, nil))
		assert.Equal(t, "p", lg.LowerInfo.MustOperation(add).Backend)
		assert.Equal(t, "p", lg.LowerInfo.MustOperation(relu).Backend)
		assert.Equal(t, ir.LayoutNCHW, lg.LowerInfo.MustOperation(relu).Layout)
	})

	t.Run("unsupported falls back", func(t *testing.T) {
		g, _, _, add, _ := chainGraph(t)
		q := newCPU("q", ir.LayoutUnknown)
		limited := &limitedBackend{Backend: newCPU("p", ir.LayoutUnknown), opType: ir.OpTypeReLU}
		manager := newManager(t, limited, q)
		lg := must.M1(Lower(g, manager, &ManualPlacement{Default: "p"}))
		assert.Equal(t, "q", lg.LowerInfo.MustOperation(add).Backend)
	})

	t.Run("unknown backend", func(t *testing.T) {
		g, _, _, _, _ := chainGraph(t)
		_, err := Lower(g, newManager(t, newCPU("p", ir.LayoutUnknown)), &ManualPlacement{Default: "npu"})
		require.ErrorContains(t, err, "unknown backend \"npu\"")
	})

	t.Run("control backend", func(t *testing.T) {
		g, _, _, _, _ := chainGraph(t)
		_, err := Lower(g, newManager(t, newCPU("p", ir.LayoutUnknown)), &ManualPlacement{Default: backends.BuiltinID})
		require.ErrorContains(t, err, "control backend")
	})

	t.Run("not supported anywhere", func(t *testing.T) {
		g := ir.New(ir.LayoutNHWC)
		x := g.AddOperand(f32(1, 4, 4, 3))
		y := g.AddOperand(f32(1, 2, 2, 3))
		g.AddInput(x)
		g.AddOutput(y)
		g.AddOperation(ir.NewOperation(ir.OpTypeL2Pool2D, []ir.OperandIndex{x}, []ir.OperandIndex{y}))
		require.NoError(t, g.FinishBuilding())
		_, err := Lower(g, newManager(t, newCPU("p", ir.LayoutUnknown)), nil)
		require.ErrorContains(t, err, "no backend supports")
	})

	t.Run("building phase", func(t *testing.T) {
		g := ir.New(ir.LayoutNHWC)
		_, err := Lower(g, newManager(t), nil)
		require.ErrorContains(t, err, "FinishBuilding")
	})
}

// limitedBackend only supports one operation type.
type limitedBackend struct {
	backends.Backend
	opType ir.OpType
}

func (b *limitedBackend) Capabilities() backends.Capabilities {
	caps := b.Backend.Capabilities()
	caps.Operations = map[ir.OpType]bool{b.opType: true}
	return caps
}
