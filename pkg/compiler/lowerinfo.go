// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/lowerexec/pkg/ir"
)

// PermuteFactor is a concrete materialization site of an operand: the backend holding its tensor and
// the layout of its data.
type PermuteFactor struct {
	Backend string
	Layout  ir.Layout
}

// String implements fmt.Stringer.
func (f PermuteFactor) String() string {
	return fmt.Sprintf("(%s,%s)", f.Backend, f.Layout)
}

// PermuteFactorSet is a set of PermuteFactor that keeps the insertion order, so iterations over it
// are deterministic.
type PermuteFactorSet struct {
	factors []PermuteFactor
}

// Add the factor to the set, if not present yet.
func (s *PermuteFactorSet) Add(f PermuteFactor) {
	if !s.Has(f) {
		s.factors = append(s.factors, f)
	}
}

// Remove the factor from the set, if present.
func (s *PermuteFactorSet) Remove(f PermuteFactor) {
	if idx := slices.Index(s.factors, f); idx >= 0 {
		s.factors = slices.Delete(s.factors, idx, idx+1)
	}
}

// Has returns whether the factor is in the set.
func (s *PermuteFactorSet) Has(f PermuteFactor) bool {
	return slices.Contains(s.factors, f)
}

// Len returns the number of factors in the set.
func (s *PermuteFactorSet) Len() int { return len(s.factors) }

// Items returns a copy of the factors, in insertion order.
func (s *PermuteFactorSet) Items() []PermuteFactor { return slices.Clone(s.factors) }

// Only returns the factor of a set with exactly one element. ok is false otherwise.
func (s *PermuteFactorSet) Only() (f PermuteFactor, ok bool) {
	if len(s.factors) != 1 {
		return
	}
	return s.factors[0], true
}

// String implements fmt.Stringer.
func (s *PermuteFactorSet) String() string {
	parts := make([]string, len(s.factors))
	for ii, f := range s.factors {
		parts[ii] = f.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// OperandLowerInfo holds where an operand is defined and where it is used.
type OperandLowerInfo struct {
	defs, uses PermuteFactorSet
}

// AddDefPermuteFactor adds a site where the operand is produced.
func (li *OperandLowerInfo) AddDefPermuteFactor(f PermuteFactor) { li.defs.Add(f) }

// AddUsePermuteFactor adds a site where the operand is consumed.
func (li *OperandLowerInfo) AddUsePermuteFactor(f PermuteFactor) { li.uses.Add(f) }

// RemoveUsePermuteFactor removes a site where the operand is consumed.
func (li *OperandLowerInfo) RemoveUsePermuteFactor(f PermuteFactor) { li.uses.Remove(f) }

// DefFactors returns the sites where the operand is produced. After annotation there is exactly one.
func (li *OperandLowerInfo) DefFactors() *PermuteFactorSet { return &li.defs }

// UseFactors returns the sites where the operand is consumed.
func (li *OperandLowerInfo) UseFactors() *PermuteFactorSet { return &li.uses }

// DefFactor returns the only def factor. It panics if there is not exactly one.
func (li *OperandLowerInfo) DefFactor() PermuteFactor {
	f, ok := li.defs.Only()
	if !ok {
		exceptions.Panicf("operand lower info has %d def factors %s, exactly one expected", li.defs.Len(), &li.defs)
	}
	return f
}

// OperationLowerInfo is where an operation is executed.
type OperationLowerInfo struct {
	Backend string
	Layout  ir.Layout
}

// Factor returns the PermuteFactor requested by the operation for its inputs and outputs.
func (li *OperationLowerInfo) Factor() PermuteFactor {
	return PermuteFactor{Backend: li.Backend, Layout: li.Layout}
}

// GraphLowerInfo holds the lower info of all the operands and operations of a graph.
type GraphLowerInfo struct {
	Operand   map[ir.OperandIndex]*OperandLowerInfo
	Operation map[ir.OperationIndex]*OperationLowerInfo
}

// NewGraphLowerInfo creates an empty GraphLowerInfo.
func NewGraphLowerInfo() *GraphLowerInfo {
	return &GraphLowerInfo{
		Operand:   make(map[ir.OperandIndex]*OperandLowerInfo),
		Operation: make(map[ir.OperationIndex]*OperationLowerInfo),
	}
}

// operand returns the lower info of the operand, creating it if needed.
func (gli *GraphLowerInfo) operand(index ir.OperandIndex) *OperandLowerInfo {
	li, found := gli.Operand[index]
	if !found {
		li = &OperandLowerInfo{}
		gli.Operand[index] = li
	}
	return li
}

// MustOperation returns the lower info of the operation. It panics if the operation was not annotated.
func (gli *GraphLowerInfo) MustOperation(index ir.OperationIndex) *OperationLowerInfo {
	li, found := gli.Operation[index]
	if !found {
		exceptions.Panicf("operation %s has no lower info", index)
	}
	return li
}

// MustOperand returns the lower info of the operand. It panics if the operand was not annotated.
func (gli *GraphLowerInfo) MustOperand(index ir.OperandIndex) *OperandLowerInfo {
	li, found := gli.Operand[index]
	if !found {
		exceptions.Panicf("operand %s has no lower info", index)
	}
	return li
}
