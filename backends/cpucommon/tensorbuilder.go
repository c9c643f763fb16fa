// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpucommon

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/ir"
)

// LifetimeNotifier receives the events of the lifetime planning of tensors.
type LifetimeNotifier interface {
	// IsRegistered returns whether the operand has a tensor to plan.
	IsRegistered(index ir.OperandIndex) bool

	// NotifyFirstUse is called when the tensor must start existing.
	NotifyFirstUse(index ir.OperandIndex)

	// NotifyLastUse is called when the tensor memory can be reclaimed.
	NotifyLastUse(index ir.OperandIndex)

	// PlanDealloc is called along NotifyLastUse with the operation after which the tensor
	// can be deallocated, for tensors deallocated at run time.
	PlanDealloc(op ir.OperationIndex, index ir.OperandIndex)
}

// TensorBuilder creates the native tensors of a backend and drives their allocation.
//
// Static tensors are planned in one arena by a MemoryManager, constants share their operand data
// (see InitConsts) and dynamic tensors are allocated at run time by the DynamicTensorManager.
type TensorBuilder struct {
	registry *backends.TensorRegistry
	static   *MemoryManager
	dynamic  *DynamicTensorManager
	tensors  map[ir.OperandIndex]*Tensor
	claimed  map[ir.OperandIndex]bool

	numFirstUses, numLastUses int
	allocated                 bool
}

var _ LifetimeNotifier = (*TensorBuilder)(nil)

// NewTensorBuilder creates a TensorBuilder registering tensors in registry, and planning static
// memory with the given planner.
func NewTensorBuilder(registry *backends.TensorRegistry, planner MemoryPlanner) *TensorBuilder {
	return &TensorBuilder{
		registry: registry,
		static:   NewMemoryManager(planner),
		dynamic:  NewDynamicTensorManager(),
		tensors:  make(map[ir.OperandIndex]*Tensor),
		claimed:  make(map[ir.OperandIndex]bool),
	}
}

// RegisterTensorInfo creates the native tensor of the operand with the given (memory laid out) shape.
func (b *TensorBuilder) RegisterTensorInfo(index ir.OperandIndex, info ir.OperandInfo, shape shapes.Shape, layout ir.Layout) {
	if b.IsRegistered(index) {
		exceptions.Panicf("TensorBuilder: operand %s registered twice", index)
	}
	t := NewTensor(shape, layout, info.TypeInfo, info.IsDynamic(), info.IsConstant)
	b.tensors[index] = t
	b.registry.SetNativeTensor(index, t)
	if t.IsDynamic() {
		b.dynamic.Register(index, t)
	}
}

// IsRegistered implements LifetimeNotifier.
func (b *TensorBuilder) IsRegistered(index ir.OperandIndex) bool {
	_, found := b.tensors[index]
	return found
}

func (b *TensorBuilder) mustTensor(index ir.OperandIndex) *Tensor {
	t, found := b.tensors[index]
	if !found {
		exceptions.Panicf("TensorBuilder: operand %s is not registered", index)
	}
	return t
}

// isStatic returns whether the tensor memory is planned in the arena.
func isStatic(t *Tensor) bool { return !t.IsConstant() && !t.IsDynamic() }

// NotifyFirstUse implements LifetimeNotifier.
func (b *TensorBuilder) NotifyFirstUse(index ir.OperandIndex) {
	t := b.mustTensor(index)
	b.numFirstUses++
	if !isStatic(t) {
		return
	}
	b.static.ClaimPlan(index, t.Size())
	b.claimed[index] = true
}

// NotifyLastUse implements LifetimeNotifier.
func (b *TensorBuilder) NotifyLastUse(index ir.OperandIndex) {
	t := b.mustTensor(index)
	b.numLastUses++
	if !isStatic(t) {
		return
	}
	b.static.ReleasePlan(index)
}

// PlanDealloc implements LifetimeNotifier.
func (b *TensorBuilder) PlanDealloc(op ir.OperationIndex, index ir.OperandIndex) {
	if b.mustTensor(index).IsDynamic() {
		b.dynamic.PlanDealloc(op, index)
	}
}

// Allocate the arena and points the static tensors to their planned memory.
func (b *TensorBuilder) Allocate() {
	if b.allocated {
		exceptions.Panicf("TensorBuilder.Allocate() called twice")
	}
	b.allocated = true
	b.static.Allocate()
	for index, t := range b.tensors {
		if !isStatic(t) {
			continue
		}
		if !b.claimed[index] {
			exceptions.Panicf("TensorBuilder: tensor of operand %s was never planned", index)
		}
		t.SetBuffer(b.static.Buffer(index))
	}
}

// Tensor returns the tensor of the operand, or nil.
func (b *TensorBuilder) Tensor(index ir.OperandIndex) *Tensor { return b.tensors[index] }

// TensorRegistry where tensors are registered.
func (b *TensorBuilder) TensorRegistry() *backends.TensorRegistry { return b.registry }

// DynamicTensorManager returns the manager of the run-time allocated tensors.
func (b *TensorBuilder) DynamicTensorManager() *DynamicTensorManager { return b.dynamic }

// MemoryManager returns the manager of the static tensors arena.
func (b *TensorBuilder) MemoryManager() *MemoryManager { return b.static }

// NumFirstUses returns the number of NotifyFirstUse calls.
func (b *TensorBuilder) NumFirstUses() int { return b.numFirstUses }

// NumLastUses returns the number of NotifyLastUse calls.
func (b *TensorBuilder) NumLastUses() int { return b.numLastUses }
