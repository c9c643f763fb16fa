// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// LoweredGraph is a graph annotated with where each operation executes, and rewritten so that every
// change of backend or layout is an explicit Permute operation.
type LoweredGraph struct {
	// Graph is the lowered copy of the frontend graph: operations and operands keep their identifiers,
	// Permute operations and their outputs get new ones.
	Graph *ir.Graph

	// LowerInfo of all operations and of the operands that are used or defined.
	LowerInfo *GraphLowerInfo

	manager  *backends.Manager
	permuted bool
}

// Lower annotates a copy of the graph, duplicates constants used in more than one site and inserts
// the Permute operations.
//
// The graph must be finished (see ir.Graph.FinishBuilding) and is not modified. The placement may be nil,
// in which case operations go to the first backend that supports them.
func Lower(graph *ir.Graph, manager *backends.Manager, placement Placement) (lg *LoweredGraph, err error) {
	if graph.IsBuildingPhase() {
		return nil, errors.New("cannot lower a graph in building phase, call FinishBuilding first")
	}
	err = exceptions.TryCatch[error](func() {
		lg = &LoweredGraph{
			Graph:     graph.Clone(),
			LowerInfo: NewGraphLowerInfo(),
			manager:   manager,
		}
		if annotateErr := lg.annotate(placement); annotateErr != nil {
			panic(annotateErr)
		}
		lg.insertConstants()
		lg.insertConstantOutputs()
		lg.insertPermutations()
	})
	if err != nil {
		return nil, errors.WithMessage(err, "lowering graph")
	}
	if err = lg.VerifyBoundaries(); err != nil {
		return nil, errors.WithMessage(err, "lowered graph")
	}
	return lg, nil
}

// Manager returns the backends the graph was lowered for.
func (lg *LoweredGraph) Manager() *backends.Manager { return lg.manager }

// frontendFactor is where graph inputs are defined and graph outputs consumed.
func (lg *LoweredGraph) frontendFactor() PermuteFactor {
	return PermuteFactor{Backend: lg.manager.Control().ID(), Layout: lg.Graph.Layout()}
}

// annotate assigns a backend and layout to each operation, and the def and use factors of each operand.
func (lg *LoweredGraph) annotate(placement Placement) error {
	graph := lg.Graph
	info := lg.LowerInfo
	for opIdx, op := range graph.IterateOperations() {
		b, err := assignBackend(lg.manager, placement, opIdx, op)
		if err != nil {
			return err
		}
		layout := b.Capabilities().PreferredLayout
		if layout == ir.LayoutUnknown {
			layout = graph.Layout()
		}
		opInfo := &OperationLowerInfo{Backend: b.ID(), Layout: layout}
		info.Operation[opIdx] = opInfo
		for _, input := range op.UniqueInputs() {
			info.operand(input).AddUsePermuteFactor(opInfo.Factor())
		}
		for _, output := range op.UniqueOutputs() {
			info.operand(output).AddDefPermuteFactor(opInfo.Factor())
		}
		klog.V(2).Infof("lowering: %s %s assigned to %s", opIdx, op.Type, opInfo.Factor())
	}

	for _, index := range graph.Outputs() {
		operand := graph.MustOperand(index)
		if !operand.Def().Valid() && !operand.IsConstant() && !graph.IsInput(index) {
			return errors.Errorf("graph output %s is neither computed by an operation nor a constant", index)
		}
	}

	frontend := lg.frontendFactor()
	for _, index := range graph.Inputs() {
		info.operand(index).AddDefPermuteFactor(frontend)
	}
	for _, index := range graph.Outputs() {
		info.operand(index).AddUsePermuteFactor(frontend)
	}

	// Constants, variables (and any other operand without a producer) are defined where first used.
	for index, operand := range graph.IterateOperands() {
		li, found := info.Operand[index]
		if !found {
			continue
		}
		if li.DefFactors().Len() == 0 && !operand.Def().Valid() && li.UseFactors().Len() > 0 {
			li.AddDefPermuteFactor(li.UseFactors().Items()[0])
		}
	}

	for opIdx, op := range graph.IterateOperations() {
		for _, input := range op.UniqueInputs() {
			li, found := info.Operand[input]
			if !found || li.UseFactors().Len() == 0 {
				exceptions.Panicf("operand %s used by %s has no use factor", input, opIdx)
			}
		}
	}
	for index, li := range info.Operand {
		if li.DefFactors().Len() != 1 {
			exceptions.Panicf("operand %s has def factors %s, exactly one expected", index, li.DefFactors())
		}
	}
	klog.V(1).Infof("lowering: annotated %d operations and %d operands", len(info.Operation), len(info.Operand))
	return nil
}

// insertConstants duplicates the constants consumed by operations at more than one site, so that
// each copy is defined where it is used and constants never need a conversion. The data is shared.
func (lg *LoweredGraph) insertConstants() {
	graph := lg.Graph
	info := lg.LowerInfo
	numOperands := graph.OperandCapacity()
	for index := ir.OperandIndex(0); int(index) < numOperands; index++ {
		operand := graph.Operand(index)
		if operand == nil || !operand.IsConstant() || operand.NumUses() == 0 {
			continue
		}
		li := info.MustOperand(index)
		def := li.DefFactor()
		copies := make(map[PermuteFactor]ir.OperandIndex)
		for _, use := range operand.Uses() {
			factor := info.MustOperation(use).Factor()
			if factor == def {
				continue
			}
			copyIdx, found := copies[factor]
			if !found {
				constInfo := operand.Info()
				constInfo.Shape = constInfo.Shape.Clone()
				copyIdx = graph.AddConstant(constInfo, operand.Data())
				copyInfo := info.operand(copyIdx)
				copyInfo.AddDefPermuteFactor(factor)
				copyInfo.AddUsePermuteFactor(factor)
				copies[factor] = copyIdx
				li.RemoveUsePermuteFactor(factor)
				klog.V(2).Infof("lowering: constant %s duplicated as %s for %s", index, copyIdx, factor)
			}
			graph.ReplaceOperationInput(use, index, copyIdx)
		}
	}
}

// insertConstantOutputs gives each constant graph output not read by any operation its own output
// operand, written by a Permute from the constant: graph output tensors are bound to the caller's
// buffers, so the constant data must be copied into them on every execution.
func (lg *LoweredGraph) insertConstantOutputs() {
	graph := lg.Graph
	info := lg.LowerInfo
	frontend := lg.frontendFactor()
	for _, index := range slices.Clone(graph.Outputs()) {
		operand := graph.MustOperand(index)
		if !graph.IsOutput(index) || !operand.IsConstant() || info.MustOperand(index).DefFactor() != frontend {
			continue
		}
		outIdx := graph.AddOperand(permutedInfo(operand.Info()))
		outInfo := info.operand(outIdx)
		outInfo.AddDefPermuteFactor(frontend)
		outInfo.AddUsePermuteFactor(frontend)
		permuteIdx := graph.AddOperation(ir.NewPermute(index, outIdx, ir.PermuteCopy))
		info.Operation[permuteIdx] = &OperationLowerInfo{Backend: frontend.Backend, Layout: frontend.Layout}
		graph.ReplaceOutput(index, outIdx)
		klog.V(2).Infof("lowering: %s copies constant output %s to %s", permuteIdx, index, outIdx)
	}
}

// insertPermutations makes every change of backend or layout explicit: for each operand and each of its
// use factors that differs from its def factor, one Permute operation is inserted, and the uses requesting
// that factor read its output instead.
//
// It can only be run once.
func (lg *LoweredGraph) insertPermutations() {
	if lg.permuted {
		exceptions.Panicf("permutation insertion can only be run once on a lowered graph")
	}
	lg.permuted = true
	graph := lg.Graph
	info := lg.LowerInfo
	control := lg.manager.Control().ID()
	var numInserted int

	numOperands := graph.OperandCapacity()
	for index := ir.OperandIndex(0); int(index) < numOperands; index++ {
		li, found := info.Operand[index]
		if !found {
			continue
		}
		operand := graph.MustOperand(index)
		def := li.DefFactor()
		for _, factor := range li.UseFactors().Items() {
			if factor == def {
				continue
			}
			uses := operand.Uses()

			permutedIdx := graph.AddOperand(permutedInfo(operand.Info()))
			outInfo := info.operand(permutedIdx)
			outInfo.AddDefPermuteFactor(factor)
			outInfo.AddUsePermuteFactor(factor)

			permuteType := ir.PermuteTypeFor(def.Layout, factor.Layout, operand.Shape().Rank())
			permuteIdx := graph.AddOperation(ir.NewPermute(index, permutedIdx, permuteType))
			info.Operation[permuteIdx] = &OperationLowerInfo{Backend: control, Layout: def.Layout}

			for _, use := range uses {
				if info.MustOperation(use).Factor() == factor {
					graph.ReplaceOperationInput(use, index, permutedIdx)
				}
			}
			if factor.Backend == control && graph.IsOutput(index) {
				graph.ReplaceOutput(index, permutedIdx)
			}
			li.RemoveUsePermuteFactor(factor)
			numInserted++
			klog.V(2).Infof("lowering: %s Permute(%s) %s%s -> %s%s", permuteIdx, permuteType, index, def, permutedIdx, factor)
		}
	}
	klog.V(1).Infof("lowering: inserted %d Permute operations", numInserted)
}

// permutedInfo is the descriptor of the output of a Permute from an operand described by info.
func permutedInfo(info ir.OperandInfo) ir.OperandInfo {
	info.Shape = info.Shape.Clone()
	info.IsConstant = false
	info.IsVariable = false
	return info
}

// VerifyBoundaries checks that no operation other than Permute reads or writes an operand at a site
// different from where the operand is defined, that graph outputs are defined by the control backend
// in the graph layout, and that each operand is converted at most once to each site.
func (lg *LoweredGraph) VerifyBoundaries() error {
	graph := lg.Graph
	info := lg.LowerInfo
	for opIdx, op := range graph.IterateOperations() {
		opInfo, found := info.Operation[opIdx]
		if !found {
			return errors.Errorf("operation %s has no lower info", opIdx)
		}
		if op.Type == ir.OpTypePermute {
			continue
		}
		for _, index := range op.UniqueInputsAndOutputs() {
			li, found := info.Operand[index]
			if !found {
				return errors.Errorf("operand %s of %s has no lower info", index, opIdx)
			}
			def, ok := li.DefFactors().Only()
			if !ok || def != opInfo.Factor() {
				return errors.Errorf("operation %s (%s) at %s accesses operand %s defined at %s without conversion",
					opIdx, op.Type, opInfo.Factor(), index, li.DefFactors())
			}
		}
	}
	frontend := lg.frontendFactor()
	for _, index := range graph.Outputs() {
		li, found := info.Operand[index]
		if !found {
			return errors.Errorf("graph output %s has no lower info", index)
		}
		if def, ok := li.DefFactors().Only(); !ok || def != frontend {
			return errors.Errorf("graph output %s is defined at %s, not at %s", index, li.DefFactors(), frontend)
		}
	}
	for index, operand := range graph.IterateOperands() {
		targets := make(map[PermuteFactor]ir.OperationIndex)
		for _, use := range operand.Uses() {
			op := graph.MustOperation(use)
			if op.Type != ir.OpTypePermute {
				continue
			}
			outInfo, found := info.Operand[op.Outputs[0]]
			if !found {
				return errors.Errorf("output %s of %s has no lower info", op.Outputs[0], use)
			}
			target, _ := outInfo.DefFactors().Only()
			if prev, found := targets[target]; found {
				return errors.Errorf("operand %s is converted to %s twice, by %s and %s", index, target, prev, use)
			}
			targets[target] = use
		}
	}
	return nil
}

// NumPermutes returns the number of Permute operations in the lowered graph.
func (lg *LoweredGraph) NumPermutes() (count int) {
	for _, op := range lg.Graph.IterateOperations() {
		if op.Type == ir.OpTypePermute {
			count++
		}
	}
	return
}
