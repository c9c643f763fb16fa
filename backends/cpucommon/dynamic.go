// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpucommon

import (
	"sync"

	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/ir"
)

// DynamicTensorManager allocates, at run time, the buffers of tensors whose shape is only known
// then. Buffers are taken from pools keyed by size, and returned to them at the deallocation
// points planned by PlanDealloc (only done for linear executors).
type DynamicTensorManager struct {
	// bufferPools is a map of size to *sync.Pool of *[]byte.
	bufferPools sync.Map

	mu        sync.Mutex
	tensors   map[ir.OperandIndex]*Tensor
	deallocAt map[ir.OperationIndex][]ir.OperandIndex
}

// NewDynamicTensorManager creates an empty DynamicTensorManager.
func NewDynamicTensorManager() *DynamicTensorManager {
	return &DynamicTensorManager{
		tensors:   make(map[ir.OperandIndex]*Tensor),
		deallocAt: make(map[ir.OperationIndex][]ir.OperandIndex),
	}
}

// Register a dynamic tensor. After that it can be allocated with Tensor.Resize.
func (m *DynamicTensorManager) Register(index ir.OperandIndex, t *Tensor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tensors[index] = t
	t.manager = m
}

// getBufferPool for the given size.
func (m *DynamicTensorManager) getBufferPool(size int) *sync.Pool {
	pool, ok := m.bufferPools.Load(size)
	if !ok {
		pool, _ = m.bufferPools.LoadOrStore(size, &sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		})
	}
	return pool.(*sync.Pool)
}

// Allocate sets the shape of a dynamic tensor and gives it a buffer of the matching size.
// The current buffer is reused if it has the exact size.
func (m *DynamicTensorManager) Allocate(t *Tensor, shape shapes.Shape) {
	size := int(shape.Memory())
	t.SetShape(shape)
	if t.buf != nil && len(t.buf) == size {
		return
	}
	m.release(t)
	bufPtr := m.getBufferPool(size).Get().(*[]byte)
	t.buf = *bufPtr
}

// release returns the buffer of the tensor to its pool.
func (m *DynamicTensorManager) release(t *Tensor) {
	if t.buf == nil {
		return
	}
	buf := t.buf
	t.buf = nil
	m.getBufferPool(len(buf)).Put(&buf)
}

// PlanDealloc records that the operand tensor can be deallocated after the operation runs.
func (m *DynamicTensorManager) PlanDealloc(op ir.OperationIndex, index ir.OperandIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deallocAt[op] = append(m.deallocAt[op], index)
}

// DeallocPlanned returns the operands planned to be deallocated after the operation.
func (m *DynamicTensorManager) DeallocPlanned(op ir.OperationIndex) []ir.OperandIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deallocAt[op]
}

// DeallocInputs releases the buffers of the tensors planned to be deallocated after the operation.
func (m *DynamicTensorManager) DeallocInputs(op ir.OperationIndex) {
	m.mu.Lock()
	indices := m.deallocAt[op]
	tensors := make([]*Tensor, 0, len(indices))
	for _, index := range indices {
		if t := m.tensors[index]; t != nil {
			tensors = append(tensors, t)
		}
	}
	m.mu.Unlock()
	for _, t := range tensors {
		m.release(t)
	}
}
