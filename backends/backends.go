// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines what a compute backend provides to the lowering core: its identity and
// capabilities, the per-compilation Context that generates its tensors and kernels, and the tensor
// registries through which backends share tensors.
//
// Backends are supplied explicitly, in a Manager, to the compiler. There is no process-wide registry.
//
// Exactly one backend is the control backend (see ControlBackend): it owns the graph inputs and outputs
// and implements the Permute operations inserted at backend/layout boundaries.
package backends

import (
	"github.com/gomlx/lowerexec/pkg/exec"
)

// BuiltinID is the conventional ID of the control backend.
const BuiltinID = "builtin"

// Backend is a pluggable compute provider.
type Backend interface {
	// ID is a unique short name of the backend in a Manager. E.g.: "cpu".
	ID() string

	// Capabilities of the backend.
	Capabilities() Capabilities

	// IsControl returns whether this is the control backend. Only a ControlBackend can return true.
	IsControl() bool

	// NewContext creates the context that generates tensors and kernels for the partition of the graph
	// assigned to the backend.
	NewContext(data *ContextData) Context

	// Sync blocks until all compute submitted by the backend's kernels is complete.
	// For synchronous backends it is a no-op.
	Sync()
}

// ControlBackend is the Backend that holds the graph IO tensors and implements the boundary conversions.
type ControlBackend interface {
	Backend

	// NewControlContext is like NewContext, but returns a context that can be wired to the registries
	// of all backends.
	NewControlContext(data *ContextData) ControlContext
}

// Context is created per compilation for the partition of a backend.
//
// GenTensors is called first, for all backends. Then migrant tensors are resolved, and only after that
// GenKernels is called, with the control backend last.
type Context interface {
	Backend() Backend

	// Data returns the partition of the graph the context was created for.
	Data() *ContextData

	// TensorRegistry returns the registry of the backend, populated by GenTensors.
	TensorRegistry() *TensorRegistry

	// GenTensors registers, plans and allocates the tensors of the operands owned by the backend.
	GenTensors() (*TensorRegistry, error)

	// GenKernels generates the function sequence of each operation of the partition, in the local order.
	GenKernels() (exec.FunctionMap, error)
}

// ControlContext is the Context of the control backend.
type ControlContext interface {
	Context

	// IOTensors returns the tensors of the graph inputs and outputs, in the graph order.
	// They are created when the context is created.
	IOTensors() exec.IOTensors

	// SetTensorRegistries gives access to the registries of all backends. It is called
	// before GenKernels.
	SetTensorRegistries(registries *TensorRegistries)
}
