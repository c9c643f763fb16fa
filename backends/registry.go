// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"iter"
	"maps"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
)

// TensorRegistry holds the tensors of a backend, indexed by operand.
//
// Native tensors were allocated by the backend, which owns them. Migrant tensors are borrowed
// references to PortableTensor owned by other backends. An operand is never both native and migrant in
// the same registry: trying so is an internal error and panics.
type TensorRegistry struct {
	backendID string
	native    map[ir.OperandIndex]Tensor
	migrant   map[ir.OperandIndex]PortableTensor
}

// NewTensorRegistry creates an empty registry for the backend.
func NewTensorRegistry(backendID string) *TensorRegistry {
	return &TensorRegistry{
		backendID: backendID,
		native:    make(map[ir.OperandIndex]Tensor),
		migrant:   make(map[ir.OperandIndex]PortableTensor),
	}
}

// BackendID returns the ID of the backend that owns the registry.
func (r *TensorRegistry) BackendID() string { return r.backendID }

// Get returns the tensor of the operand, native or migrant, or nil.
func (r *TensorRegistry) Get(index ir.OperandIndex) Tensor {
	if t, found := r.native[index]; found {
		return t
	}
	if t, found := r.migrant[index]; found {
		return t
	}
	return nil
}

// GetPortable returns the tensor of the operand if it is a PortableTensor, or nil.
func (r *TensorRegistry) GetPortable(index ir.OperandIndex) PortableTensor {
	pt, _ := r.Get(index).(PortableTensor)
	return pt
}

// NativeTensor returns the native tensor of the operand, or nil.
func (r *TensorRegistry) NativeTensor(index ir.OperandIndex) Tensor {
	return r.native[index]
}

// MigrantTensor returns the migrant tensor of the operand, or nil.
func (r *TensorRegistry) MigrantTensor(index ir.OperandIndex) PortableTensor {
	return r.migrant[index]
}

// IsNative returns whether the registry owns the tensor of the operand.
func (r *TensorRegistry) IsNative(index ir.OperandIndex) bool {
	_, found := r.native[index]
	return found
}

// IsMigrant returns whether the registry borrows the tensor of the operand.
func (r *TensorRegistry) IsMigrant(index ir.OperandIndex) bool {
	_, found := r.migrant[index]
	return found
}

// SetNativeTensor registers a tensor owned by the backend. It panics if the operand is already migrant.
func (r *TensorRegistry) SetNativeTensor(index ir.OperandIndex, t Tensor) {
	if t == nil {
		exceptions.Panicf("backend %q: nil native tensor for operand %s", r.backendID, index)
	}
	if r.IsMigrant(index) {
		exceptions.Panicf("backend %q: operand %s is already registered as migrant, it cannot be native",
			r.backendID, index)
	}
	r.native[index] = t
}

// SetMigrantTensor registers a tensor borrowed from another backend.
//
// It returns false, registering nothing, if the tensor is not a PortableTensor. It panics if the
// operand is already native.
func (r *TensorRegistry) SetMigrantTensor(index ir.OperandIndex, t Tensor) bool {
	pt, ok := t.(PortableTensor)
	if !ok {
		return false
	}
	if r.IsNative(index) {
		exceptions.Panicf("backend %q: operand %s is already registered as native, it cannot be migrant",
			r.backendID, index)
	}
	r.migrant[index] = pt
	return true
}

// NativeIndices returns the operands with native tensors, sorted.
func (r *TensorRegistry) NativeIndices() []ir.OperandIndex {
	return slices.Sorted(maps.Keys(r.native))
}

// IterateNative iterates over the native tensors in ascending operand order.
func (r *TensorRegistry) IterateNative() iter.Seq2[ir.OperandIndex, Tensor] {
	return func(yield func(ir.OperandIndex, Tensor) bool) {
		for _, index := range r.NativeIndices() {
			if !yield(index, r.native[index]) {
				return
			}
		}
	}
}

// NumMigrants returns the number of borrowed tensors.
func (r *TensorRegistry) NumMigrants() int { return len(r.migrant) }

// TensorRegistries is the collection of the registries of all backends of a compilation.
type TensorRegistries struct {
	registries []*TensorRegistry
}

// NewTensorRegistries creates a collection with the given registries. The order is kept for lookups.
func NewTensorRegistries(registries ...*TensorRegistry) *TensorRegistries {
	return &TensorRegistries{registries: registries}
}

// Add a registry to the collection.
func (rs *TensorRegistries) Add(r *TensorRegistry) {
	rs.registries = append(rs.registries, r)
}

// Get returns the registry of the backend, or nil.
func (rs *TensorRegistries) Get(backendID string) *TensorRegistry {
	for _, r := range rs.registries {
		if r.backendID == backendID {
			return r
		}
	}
	return nil
}

// All returns the registries.
func (rs *TensorRegistries) All() []*TensorRegistry { return rs.registries }

// NativeOwner returns the registry that owns the operand's tensor, or nil.
func (rs *TensorRegistries) NativeOwner(index ir.OperandIndex) *TensorRegistry {
	for _, r := range rs.registries {
		if r.IsNative(index) {
			return r
		}
	}
	return nil
}

// Tensor returns the tensor of the operand in any registry, preferring native ones, or nil.
func (rs *TensorRegistries) Tensor(index ir.OperandIndex) Tensor {
	if owner := rs.NativeOwner(index); owner != nil {
		return owner.NativeTensor(index)
	}
	for _, r := range rs.registries {
		if t := r.MigrantTensor(index); t != nil {
			return t
		}
	}
	return nil
}

// VerifyOwnership checks that each operand with a tensor in any registry is native in exactly
// one registry, and that migrant tensors are the same object as the native ones they borrow.
func (rs *TensorRegistries) VerifyOwnership() error {
	owners := make(map[ir.OperandIndex]*TensorRegistry)
	for _, r := range rs.registries {
		for index := range r.IterateNative() {
			if prev, found := owners[index]; found {
				return errors.Errorf("operand %s is native in both backends %q and %q", index, prev.backendID, r.backendID)
			}
			owners[index] = r
		}
	}
	for _, r := range rs.registries {
		for index, t := range r.migrant {
			owner, found := owners[index]
			if !found {
				return errors.Errorf("operand %s is migrant in backend %q, but no backend owns it", index, r.backendID)
			}
			if Tensor(t) != owner.native[index] {
				return errors.Errorf("operand %s migrant in backend %q is not the tensor owned by backend %q",
					index, r.backendID, owner.backendID)
			}
		}
	}
	return nil
}
