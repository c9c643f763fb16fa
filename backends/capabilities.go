// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"maps"

	"github.com/gomlx/lowerexec/pkg/ir"
)

// Capabilities holds what is supported by a backend, and how its kernels can be scheduled.
type Capabilities struct {
	// PreferredLayout of the backend's kernels. LayoutUnknown means the graph frontend layout.
	PreferredLayout ir.Layout

	// Operations supported by a backend.
	// If not listed, it's assumed to be false, hence not supported.
	Operations map[ir.OpType]bool

	// ConcurrentKernels tells whether functions generated for different operations can run
	// concurrently. Backends that set it share one external context among all their kernels.
	ConcurrentKernels bool

	// PortableTensors tells whether the backend tensors implement PortableTensor, and hence
	// can be borrowed (as migrant tensors) by other backends.
	PortableTensors bool
}

// Supports returns whether the operation type is supported.
func (c Capabilities) Supports(opType ir.OpType) bool {
	return c.Operations[opType]
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	c2 := c
	c2.Operations = make(map[ir.OpType]bool, len(c.Operations))
	maps.Copy(c2.Operations, c.Operations)
	return c2
}
