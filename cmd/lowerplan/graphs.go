// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/lowerexec/backends/cpucommon"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
)

// graphBuilder builds a synthetic NHWC graph with depth blocks over an input of the given batch size.
type graphBuilder func(depth, batch int) (*ir.Graph, error)

var syntheticGraphs = map[string]graphBuilder{
	"chain": buildChain,
	"fan":   buildFan,
}

// Spatial dimensions and channels of the synthetic graphs input.
const (
	imageSize = 8
	channels  = 3
)

func graphNames() []string {
	names := make([]string, 0, len(syntheticGraphs))
	for name := range syntheticGraphs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// buildGraph builds the synthetic graph by name.
func buildGraph(name string, depth, batch int) (*ir.Graph, error) {
	builder, found := syntheticGraphs[name]
	if !found {
		return nil, errors.Errorf("unknown graph %q, valid values are %q", name, graphNames())
	}
	if depth < 1 || batch < 1 {
		return nil, errors.Errorf("depth (%d) and batch (%d) must be >= 1", depth, batch)
	}
	return builder(depth, batch)
}

func imageInfo(batch int) ir.OperandInfo {
	return ir.MakeOperandInfo(shapes.Make(dtypes.Float32, batch, imageSize, imageSize, channels))
}

func scalarConstant(g *ir.Graph, value float32) ir.OperandIndex {
	data := make([]byte, 4)
	cpucommon.FlatBytes[float32](data, 1)[0] = value
	return g.AddConstant(ir.MakeOperandInfo(shapes.Make(dtypes.Float32, 1)), data)
}

func addOp(g *ir.Graph, opType ir.OpType, output ir.OperandIndex, inputs ...ir.OperandIndex) {
	g.AddOperation(ir.NewOperation(opType, inputs, []ir.OperandIndex{output}))
}

// buildChain builds depth blocks of x = ReLU(x + bias) * scale.
func buildChain(depth, batch int) (*ir.Graph, error) {
	g := ir.New(ir.LayoutNHWC)
	x := g.AddOperand(imageInfo(batch))
	g.AddInput(x)
	bias := scalarConstant(g, -0.5)
	scale := scalarConstant(g, 1.5)
	for range depth {
		sum := g.AddOperand(imageInfo(batch))
		relu := g.AddOperand(imageInfo(batch))
		next := g.AddOperand(imageInfo(batch))
		addOp(g, ir.OpTypeAdd, sum, x, bias)
		addOp(g, ir.OpTypeReLU, relu, sum)
		addOp(g, ir.OpTypeMul, next, relu, scale)
		x = next
	}
	g.AddOutput(x)
	return g, g.FinishBuilding()
}

// buildFan builds depth blocks of x = ReLU(x) + x * x, where both branches can run concurrently.
func buildFan(depth, batch int) (*ir.Graph, error) {
	g := ir.New(ir.LayoutNHWC)
	x := g.AddOperand(imageInfo(batch))
	g.AddInput(x)
	for range depth {
		relu := g.AddOperand(imageInfo(batch))
		square := g.AddOperand(imageInfo(batch))
		next := g.AddOperand(imageInfo(batch))
		addOp(g, ir.OpTypeReLU, relu, x)
		addOp(g, ir.OpTypeMul, square, x, x)
		addOp(g, ir.OpTypeAdd, next, relu, square)
		x = next
	}
	g.AddOutput(x)
	return g, g.FinishBuilding()
}

// ioBuffers allocates the graph inputs, filled with a deterministic pattern, and outputs.
func ioBuffers(g *ir.Graph) (inputs, outputs [][]byte) {
	for _, index := range g.Inputs() {
		shape := g.MustOperand(index).Shape()
		buf := make([]byte, shape.Memory())
		values := cpucommon.FlatBytes[float32](buf, shape.Size())
		for ii := range values {
			values[ii] = float32(ii%7)/7 - 0.5
		}
		inputs = append(inputs, buf)
	}
	for _, index := range g.Outputs() {
		outputs = append(outputs, make([]byte, g.MustOperand(index).Shape().Memory()))
	}
	return
}
