// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"testing"

	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermuteFactorSet(t *testing.T) {
	cpuNHWC := PermuteFactor{Backend: "cpu", Layout: ir.LayoutNHWC}
	cpuNCHW := PermuteFactor{Backend: "cpu", Layout: ir.LayoutNCHW}
	npu := PermuteFactor{Backend: "npu", Layout: ir.LayoutNCHW}

	var s PermuteFactorSet
	_, ok := s.Only()
	assert.False(t, ok)
	s.Add(npu)
	s.Add(cpuNHWC)
	s.Add(npu)
	s.Add(cpuNCHW)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []PermuteFactor{npu, cpuNHWC, cpuNCHW}, s.Items())
	assert.Equal(t, "{(npu,NCHW), (cpu,NHWC), (cpu,NCHW)}", s.String())

	s.Remove(cpuNHWC)
	s.Remove(cpuNHWC)
	assert.False(t, s.Has(cpuNHWC))
	assert.Equal(t, []PermuteFactor{npu, cpuNCHW}, s.Items())
	s.Remove(npu)
	f, ok := s.Only()
	require.True(t, ok)
	assert.Equal(t, cpuNCHW, f)
}

func TestOperandLowerInfo(t *testing.T) {
	var li OperandLowerInfo
	require.Panics(t, func() { li.DefFactor() })
	f := PermuteFactor{Backend: "cpu", Layout: ir.LayoutNHWC}
	li.AddDefPermuteFactor(f)
	assert.Equal(t, f, li.DefFactor())
	li.AddDefPermuteFactor(PermuteFactor{Backend: "npu", Layout: ir.LayoutNHWC})
	require.Panics(t, func() { li.DefFactor() })

	li.AddUsePermuteFactor(f)
	li.RemoveUsePermuteFactor(f)
	assert.Equal(t, 0, li.UseFactors().Len())

	gli := NewGraphLowerInfo()
	require.Panics(t, func() { gli.MustOperand(0) })
	require.Panics(t, func() { gli.MustOperation(0) })
	gli.Operation[0] = &OperationLowerInfo{Backend: "cpu", Layout: ir.LayoutNCHW}
	assert.Equal(t, PermuteFactor{Backend: "cpu", Layout: ir.LayoutNCHW}, gli.MustOperation(0).Factor())
}

func TestManualPlacement(t *testing.T) {
	add := ir.NewOperation(ir.OpTypeAdd, nil, nil)
	relu := ir.NewOperation(ir.OpTypeReLU, nil, nil)
	p := &ManualPlacement{}
	assert.True(t, p.IsEmpty())
	assert.Equal(t, "", p.BackendFor(0, add))

	p.Default = "cpu"
	p.ByOpType = map[ir.OpType]string{ir.OpTypeAdd: "npu"}
	p.ByIndex = map[ir.OperationIndex]string{3: "gpu"}
	assert.False(t, p.IsEmpty())
	assert.Equal(t, "cpu", p.BackendFor(0, relu))
	assert.Equal(t, "npu", p.BackendFor(0, add))
	assert.Equal(t, "gpu", p.BackendFor(3, add))
	assert.Equal(t, "gpu", p.BackendFor(3, relu))
}
