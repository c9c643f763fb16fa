// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package builtin implements the control backend: it owns the tensors of the graph inputs and
// outputs, and executes the Permute operations inserted where data crosses backends or layouts.
//
// Its kernels read and write tensors of other backends through the migrant tensors of its registry,
// so it must be wired to the registries of all backends (see Context.SetTensorRegistries) before
// generating kernels.
package builtin

import (
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/pkg/ir"
)

// Backend implements backends.ControlBackend.
type Backend struct {
	capabilities backends.Capabilities
}

var _ backends.ControlBackend = (*Backend)(nil)

// New creates the builtin Backend.
func New() *Backend {
	return &Backend{
		capabilities: backends.Capabilities{
			PreferredLayout:   ir.LayoutUnknown,
			Operations:        map[ir.OpType]bool{ir.OpTypePermute: true},
			ConcurrentKernels: true,
			PortableTensors:   true,
		},
	}
}

// ID implements backends.Backend. It is always backends.BuiltinID.
func (b *Backend) ID() string { return backends.BuiltinID }

// Capabilities implements backends.Backend.
func (b *Backend) Capabilities() backends.Capabilities { return b.capabilities.Clone() }

// IsControl implements backends.Backend.
func (b *Backend) IsControl() bool { return true }

// Sync implements backends.Backend.
func (b *Backend) Sync() {}

// NewContext implements backends.Backend.
func (b *Backend) NewContext(data *backends.ContextData) backends.Context {
	return newContext(b, data)
}

// NewControlContext implements backends.ControlBackend.
func (b *Backend) NewControlContext(data *backends.ContextData) backends.ControlContext {
	return newContext(b, data)
}
