// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Placement decides which backend executes each operation.
type Placement interface {
	// BackendFor returns the ID of the backend for the operation, or "" if it has no preference.
	BackendFor(index ir.OperationIndex, op *ir.Operation) string
}

// ManualPlacement assigns backends by operation index, then by operation type, then a default.
type ManualPlacement struct {
	// Default backend of all operations, if not "".
	Default string

	// ByOpType overrides Default for the operations of a type.
	ByOpType map[ir.OpType]string

	// ByIndex overrides the others for individual operations.
	ByIndex map[ir.OperationIndex]string
}

var _ Placement = (*ManualPlacement)(nil)

// BackendFor implements Placement.
func (p *ManualPlacement) BackendFor(index ir.OperationIndex, op *ir.Operation) string {
	if id, found := p.ByIndex[index]; found && id != "" {
		return id
	}
	if id, found := p.ByOpType[op.Type]; found && id != "" {
		return id
	}
	return p.Default
}

// IsEmpty returns whether no assignment was configured.
func (p *ManualPlacement) IsEmpty() bool {
	return p.Default == "" && len(p.ByOpType) == 0 && len(p.ByIndex) == 0
}

// assignBackend returns the backend to execute the operation.
//
// The backend named by the placement is used if it supports the operation. Otherwise, the first compute
// backend (in Manager order) that supports it is used. It returns an error if no backend supports it.
// A placement naming an unknown backend or the control backend is a fatal error.
func assignBackend(manager *backends.Manager, placement Placement, index ir.OperationIndex, op *ir.Operation) (backends.Backend, error) {
	if op.Type == ir.OpTypePermute {
		return manager.Control(), nil
	}
	var id string
	if placement != nil {
		id = placement.BackendFor(index, op)
	}
	if id != "" {
		b := manager.Get(id)
		if b == nil {
			exceptions.Panicf("placement of operation %s (%s) names unknown backend %q, known backends are %q",
				index, op.Type, id, manager.IDs())
		}
		if b.IsControl() {
			exceptions.Panicf("placement of operation %s (%s) names the control backend %q", index, op.Type, id)
		}
		if b.Capabilities().Supports(op.Type) {
			return b, nil
		}
		klog.Warningf("backend %q assigned to operation %s does not support %s, looking for another backend",
			id, index, op.Type)
	}
	for _, b := range manager.All() {
		if !b.IsControl() && b.Capabilities().Supports(op.Type) {
			return b, nil
		}
	}
	return nil, errors.Errorf("no backend supports operation %s (%s), backends available: %q",
		index, op.Type, manager.IDs())
}
