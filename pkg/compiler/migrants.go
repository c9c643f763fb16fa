// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/lowerexec/backends"
	"k8s.io/klog/v2"
)

// prepareMigrantTensors registers, in the registry of the backend of each operation, the tensors of the
// operation's operands owned by other backends.
//
// Tensors that are not portable are skipped: the backend gets no access to them, and its kernel
// generation fails if it needs them. It panics if an operand has a tensor in no registry.
func prepareMigrantTensors(lg *LoweredGraph, contexts map[string]backends.Context, registries *backends.TensorRegistries) {
	var numMigrants, numSkipped int
	for opIdx, op := range lg.Graph.IterateOperations() {
		backendID := lg.LowerInfo.MustOperation(opIdx).Backend
		ctx, found := contexts[backendID]
		if !found {
			exceptions.Panicf("operation %s assigned to backend %q, which has no context", opIdx, backendID)
		}
		registry := ctx.TensorRegistry()
		for _, index := range op.UniqueInputsAndOutputs() {
			if registry.Get(index) != nil {
				continue
			}
			t := registries.Tensor(index)
			if t == nil {
				exceptions.Panicf("operand %s of %s has no tensor in any backend", index, opIdx)
			}
			if registry.SetMigrantTensor(index, t) {
				numMigrants++
				klog.V(2).Infof("migrant tensor %s registered in backend %q", index, backendID)
			} else {
				numSkipped++
				klog.V(2).Infof("tensor %s is not portable, backend %q cannot borrow it", index, backendID)
			}
		}
	}
	klog.V(1).Infof("migrant tensors: %d registered, %d not portable", numMigrants, numSkipped)
}

