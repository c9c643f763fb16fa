// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cpu implements a simple, portable, host memory compute backend.
//
// It only implements a handful of element-wise operations (see Capabilities), enough to
// exercise partitioning, lifetime planning and the executors end to end. Its ID, preferred
// layout and memory planner are configurable, so more than one instance can be given to the
// same backends.Manager to simulate heterogeneous targets.
package cpu

import (
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/backends/cpucommon"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
)

// DefaultID of the backend, if none is configured.
const DefaultID = "cpu"

// Config of a cpu Backend.
type Config struct {
	// ID of the backend, defaults to DefaultID.
	ID string

	// PreferredLayout of the kernels. LayoutUnknown means the graph frontend layout.
	PreferredLayout ir.Layout

	// Planner is the name of the memory planner of the static tensors, see cpucommon.NewMemoryPlanner.
	Planner string

	// NumThreads of the external context shared by all kernels: < 0 means runtime.NumCPU(), 0 runs
	// kernels single threaded.
	NumThreads int
}

// Backend implements backends.Backend.
type Backend struct {
	config       Config
	capabilities backends.Capabilities
	external     *ExternalContext
}

// Compile-time check that cpu.Backend implements backends.Backend.
var _ backends.Backend = (*Backend)(nil)

// Operations implemented by the kernels of the backend.
var Operations = []ir.OpType{ir.OpTypeAdd, ir.OpTypeMul, ir.OpTypeReLU, ir.OpTypeRange, ir.OpTypeIdentity}

// New creates a cpu Backend.
func New(config Config) (*Backend, error) {
	if config.ID == "" {
		config.ID = DefaultID
	}
	if config.ID == backends.BuiltinID {
		return nil, errors.Errorf("cpu backend cannot use the reserved ID %q", backends.BuiltinID)
	}
	if _, err := cpucommon.NewMemoryPlanner(config.Planner); err != nil {
		return nil, errors.WithMessagef(err, "cpu backend %q", config.ID)
	}
	b := &Backend{
		config:   config,
		external: NewExternalContext(config.NumThreads),
		capabilities: backends.Capabilities{
			PreferredLayout:   config.PreferredLayout,
			Operations:        make(map[ir.OpType]bool, len(Operations)),
			ConcurrentKernels: true,
			PortableTensors:   true,
		},
	}
	for _, opType := range Operations {
		b.capabilities.Operations[opType] = true
	}
	return b, nil
}

// ID implements backends.Backend.
func (b *Backend) ID() string { return b.config.ID }

// Capabilities implements backends.Backend.
func (b *Backend) Capabilities() backends.Capabilities { return b.capabilities.Clone() }

// IsControl implements backends.Backend. It is always false.
func (b *Backend) IsControl() bool { return false }

// Sync implements backends.Backend. Kernels run synchronously, so there is nothing to wait for.
func (b *Backend) Sync() {}

// ExternalContext shared by the kernels of all contexts of the backend.
func (b *Backend) ExternalContext() *ExternalContext { return b.external }

// NewContext implements backends.Backend.
func (b *Backend) NewContext(data *backends.ContextData) backends.Context {
	return newContext(b, data)
}
