// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/gomlx/lowerexec/pkg/support/sets"
	"k8s.io/klog/v2"
)

// Partition is the part of a lowered graph assigned to one backend.
type Partition struct {
	Backend backends.Backend
	Data    *backends.ContextData
}

// Linearize returns the global execution order of the lowered graph: a deterministic topological order.
func Linearize(lg *LoweredGraph) []ir.OperationIndex {
	order := lg.Graph.TopolSortOperations()
	if klog.V(2).Enabled() {
		for pos, opIdx := range order {
			opInfo := lg.LowerInfo.MustOperation(opIdx)
			klog.Infof("linearize: #%d %s %s @ %s", pos, opIdx, lg.Graph.MustOperation(opIdx).Type, opInfo.Factor())
		}
	}
	return order
}

// PartitionGraph splits the lowered graph into one partial graph per backend, following the global order.
//
// Operations and operands keep their identifiers in the partial graphs. An operand is external to a
// partition if its tensor is owned by another backend, that is, if it is defined at another backend.
// The partition of the control backend always exists and holds the graph inputs and outputs, in graph
// order. Other partitions without operations are dropped.
//
// Partitions are returned in the order of the backends in the Manager, the control backend first.
func PartitionGraph(lg *LoweredGraph, order []ir.OperationIndex, linear bool) []*Partition {
	graph := lg.Graph
	info := lg.LowerInfo
	manager := lg.manager
	control := manager.Control().ID()

	byID := make(map[string]*backends.ContextData)
	for _, b := range manager.All() {
		byID[b.ID()] = backends.NewContextData(ir.New(graph.Layout()))
	}

	addOperand := func(backendID string, index ir.OperandIndex) {
		data := byID[backendID]
		partial := data.Graph
		if !partial.AddOperandAt(index, graph.MustOperand(index).Clone()).Valid() {
			// Already present.
			return
		}
		def := info.MustOperand(index).DefFactor()
		if def.Backend != backendID {
			data.ExternalOperands.Insert(index)
			klog.V(2).Infof("partition %q: external operand %s owned by %q", backendID, index, def.Backend)
		}
		data.OperandLayouts[index] = def.Layout
		if graph.IsInput(index) {
			partial.AddInput(index)
		}
		if graph.IsOutput(index) {
			partial.AddOutput(index)
		}
	}

	// Graph IO goes first to the control partition, so its inputs and outputs follow the graph order.
	for _, index := range slices.Concat(graph.Inputs(), graph.Outputs()) {
		addOperand(control, index)
	}

	for _, opIdx := range order {
		op := graph.MustOperation(opIdx)
		backendID := info.MustOperation(opIdx).Backend
		data, found := byID[backendID]
		if !found {
			exceptions.Panicf("operation %s assigned to unknown backend %q", opIdx, backendID)
		}
		for _, index := range op.UniqueInputsAndOutputs() {
			addOperand(backendID, index)
		}
		data.Graph.AddOperationAt(opIdx, op.Clone())
		data.OperationLayouts[opIdx] = info.MustOperation(opIdx).Layout
	}

	var partitions []*Partition
	for _, b := range manager.All() {
		data := byID[b.ID()]
		if err := data.Graph.FinishBuilding(); err != nil {
			exceptions.Panicf("partition of backend %q is inconsistent: %+v", b.ID(), err)
		}
		for _, opIdx := range order {
			if data.Graph.HasOperation(opIdx) {
				data.Order = append(data.Order, opIdx)
			}
		}
		if len(data.Order) == 0 && b.ID() != control {
			continue
		}
		data.IsLinearExecutor = linear
		data.CrossUsedOperands = crossUsedOperands(lg, b.ID(), data)
		klog.V(1).Infof("partition %q: %d operations, %d operands (%d external, %d cross-used)", b.ID(),
			len(data.Order), data.Graph.NumOperands(), len(data.ExternalOperands), len(data.CrossUsedOperands))
		partitions = append(partitions, &Partition{Backend: b, Data: data})
	}
	return partitions
}

// crossUsedOperands returns the operands owned by the backend that are also used by operations of other
// backends.
func crossUsedOperands(lg *LoweredGraph, backendID string, data *backends.ContextData) sets.Set[ir.OperandIndex] {
	crossUsed := sets.Make[ir.OperandIndex]()
	for index := range data.Graph.IterateOperands() {
		if data.IsExternal(index) {
			continue
		}
		for _, use := range lg.Graph.MustOperand(index).Uses() {
			if lg.LowerInfo.MustOperation(use).Backend != backendID {
				crossUsed.Insert(index)
				break
			}
		}
	}
	return crossUsed
}
