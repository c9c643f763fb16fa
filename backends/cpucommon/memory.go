// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpucommon

import (
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BlockAlignment of the blocks planned in an arena, in bytes.
const BlockAlignment = 16

func alignUp(size int) int {
	return (size + BlockAlignment - 1) / BlockAlignment * BlockAlignment
}

// Block is a region of an arena.
type Block struct {
	Offset, Size int
}

// End returns the offset just after the block.
func (b Block) End() int { return b.Offset + b.Size }

// MemoryPlanner decides where in one arena each tensor lives, given the order in which the
// tensors are claimed (first use) and released (last use).
type MemoryPlanner interface {
	// Claim a block of size bytes for the operand.
	Claim(index ir.OperandIndex, size int)

	// Release the block of the operand: it can be reused by later claims.
	Release(index ir.OperandIndex)

	// Capacity returns the size of the arena needed by all claims.
	Capacity() int

	// Plans returns the block of each operand claimed.
	Plans() map[ir.OperandIndex]Block
}

// Planner names accepted by NewMemoryPlanner.
const (
	BumpPlannerName     = "Bump"
	FirstFitPlannerName = "FirstFit"
)

// NewMemoryPlanner creates a planner by name (case-insensitive). An empty name selects the FirstFit planner.
func NewMemoryPlanner(name string) (MemoryPlanner, error) {
	switch {
	case name == "" || strings.EqualFold(name, FirstFitPlannerName):
		return NewFirstFitPlanner(), nil
	case strings.EqualFold(name, BumpPlannerName):
		return NewBumpPlanner(), nil
	}
	return nil, errors.Errorf("unknown memory planner %q, valid values are %q and %q",
		name, BumpPlannerName, FirstFitPlannerName)
}

// BumpPlanner places every claim after the previous one: memory is never reused.
type BumpPlanner struct {
	capacity int
	plans    map[ir.OperandIndex]Block
}

// NewBumpPlanner creates a BumpPlanner.
func NewBumpPlanner() *BumpPlanner {
	return &BumpPlanner{plans: make(map[ir.OperandIndex]Block)}
}

// Claim implements MemoryPlanner.
func (p *BumpPlanner) Claim(index ir.OperandIndex, size int) {
	if _, found := p.plans[index]; found {
		exceptions.Panicf("BumpPlanner: operand %s claimed twice", index)
	}
	p.plans[index] = Block{Offset: p.capacity, Size: size}
	p.capacity += alignUp(size)
}

// Release implements MemoryPlanner.
func (p *BumpPlanner) Release(index ir.OperandIndex) {
	if _, found := p.plans[index]; !found {
		exceptions.Panicf("BumpPlanner: operand %s released without claim", index)
	}
}

// Capacity implements MemoryPlanner.
func (p *BumpPlanner) Capacity() int { return p.capacity }

// Plans implements MemoryPlanner.
func (p *BumpPlanner) Plans() map[ir.OperandIndex]Block { return p.plans }

// FirstFitPlanner places each claim in the first gap between live blocks large enough to hold it.
type FirstFitPlanner struct {
	capacity int
	plans    map[ir.OperandIndex]Block
	live     []ir.OperandIndex // Sorted by offset.
}

// NewFirstFitPlanner creates a FirstFitPlanner.
func NewFirstFitPlanner() *FirstFitPlanner {
	return &FirstFitPlanner{plans: make(map[ir.OperandIndex]Block)}
}

// Claim implements MemoryPlanner.
func (p *FirstFitPlanner) Claim(index ir.OperandIndex, size int) {
	if _, found := p.plans[index]; found {
		exceptions.Panicf("FirstFitPlanner: operand %s claimed twice", index)
	}
	aligned := alignUp(size)
	offset, pos := 0, 0
	for ; pos < len(p.live); pos++ {
		block := p.plans[p.live[pos]]
		if block.Offset-offset >= aligned {
			break
		}
		offset = alignUp(block.End())
	}
	p.plans[index] = Block{Offset: offset, Size: size}
	p.live = slices.Insert(p.live, pos, index)
	p.capacity = max(p.capacity, offset+aligned)
}

// Release implements MemoryPlanner.
func (p *FirstFitPlanner) Release(index ir.OperandIndex) {
	pos := slices.Index(p.live, index)
	if pos < 0 {
		exceptions.Panicf("FirstFitPlanner: operand %s released without being claimed, or released twice", index)
	}
	p.live = slices.Delete(p.live, pos, pos+1)
}

// Capacity implements MemoryPlanner.
func (p *FirstFitPlanner) Capacity() int { return p.capacity }

// Plans implements MemoryPlanner.
func (p *FirstFitPlanner) Plans() map[ir.OperandIndex]Block { return p.plans }

// MemoryManager allocates one arena for all static tensors, laid out by a MemoryPlanner.
type MemoryManager struct {
	planner MemoryPlanner
	arena   []byte
}

// NewMemoryManager creates a MemoryManager using the given planner.
func NewMemoryManager(planner MemoryPlanner) *MemoryManager {
	return &MemoryManager{planner: planner}
}

// ClaimPlan claims memory for the operand.
func (m *MemoryManager) ClaimPlan(index ir.OperandIndex, size int) { m.planner.Claim(index, size) }

// ReleasePlan releases the memory of the operand for later claims.
func (m *MemoryManager) ReleasePlan(index ir.OperandIndex) { m.planner.Release(index) }

// Allocate the arena. It must be called once, after all plans are done.
func (m *MemoryManager) Allocate() {
	if m.arena != nil {
		exceptions.Panicf("MemoryManager.Allocate() called twice")
	}
	m.arena = make([]byte, m.planner.Capacity())
	klog.V(1).Infof("allocated arena of %s for %d tensors", humanize.IBytes(uint64(len(m.arena))), len(m.planner.Plans()))
}

// Buffer returns the memory planned for the operand, or nil if it was not claimed.
func (m *MemoryManager) Buffer(index ir.OperandIndex) []byte {
	block, found := m.planner.Plans()[index]
	if !found || m.arena == nil {
		return nil
	}
	return m.arena[block.Offset:block.End():block.End()]
}

// Capacity returns the size of the arena.
func (m *MemoryManager) Capacity() int { return m.planner.Capacity() }

// Planner returns the planner used by the manager.
func (m *MemoryManager) Planner() MemoryPlanner { return m.planner }
