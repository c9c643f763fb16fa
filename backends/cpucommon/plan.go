// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpucommon

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// PlanTensors walks the operations in order and notifies the first and last use of every registered
// tensor owned by the partition. Graph inputs/outputs and external operands are not planned.
//
//   - Constants and cross-used operands exist from the start, and are released last, after the walk.
//   - Operands without a def in the partition that are not constants or variables are written by
//     another backend: they also exist from the start, and are released at their last use.
//   - Variables are first used when met as an input.
//   - Other operands are first used by the operation defining them.
//   - Operands are last used by the last operation in order that reads them.
//
// It panics if, at the end, some operand still has pending uses or a pending def: the order does not
// cover the partition.
func PlanTensors(data *backends.ContextData, notifier LifetimeNotifier, order []ir.OperationIndex) {
	graph := data.Graph
	skip := func(index ir.OperandIndex) bool {
		return graph.IsIO(index) || data.IsExternal(index) || !notifier.IsRegistered(index)
	}

	usesCount := make(map[ir.OperandIndex]int)
	pendingDef := make(map[ir.OperandIndex]bool)
	var pinned, constants, foreign []ir.OperandIndex
	for index, operand := range graph.IterateOperands() {
		if skip(index) {
			continue
		}
		usesCount[index] = operand.NumUses()
		pendingDef[index] = operand.Def().Valid()
		switch {
		case operand.IsConstant():
			constants = append(constants, index)
		case data.IsCrossUsed(index):
			pinned = append(pinned, index)
		case !operand.Def().Valid() && !operand.IsVariable():
			foreign = append(foreign, index)
		}
	}

	// Inflating the count of pinned tensors makes them survive the walk.
	for _, index := range slices.Concat(constants, pinned) {
		usesCount[index]++
		if !pendingDef[index] {
			notifier.NotifyFirstUse(index)
		}
	}
	for _, index := range foreign {
		notifier.NotifyFirstUse(index)
	}

	for _, opIdx := range order {
		op := graph.Operation(opIdx)
		if op == nil {
			continue
		}
		inputs := op.UniqueInputs()
		for _, index := range op.UniqueOutputs() {
			if skip(index) {
				continue
			}
			if pendingDef[index] {
				pendingDef[index] = false
				notifier.NotifyFirstUse(index)
			}
		}
		for _, index := range inputs {
			if skip(index) {
				continue
			}
			operand := graph.Operand(index)
			if operand.IsVariable() {
				if operand.NumUses() != 1 || operand.Def().Valid() || usesCount[index] != 1 {
					exceptions.Panicf("variable operand %s must have exactly one use and no def", index)
				}
				notifier.NotifyFirstUse(index)
			}
		}
		for _, index := range inputs {
			if skip(index) {
				continue
			}
			if usesCount[index] <= 0 {
				exceptions.Panicf("operand %s used by %s more times than it has uses", index, opIdx)
			}
			usesCount[index]--
			if usesCount[index] == 0 {
				notifier.NotifyLastUse(index)
				notifier.PlanDealloc(opIdx, index)
			}
		}
	}

	for _, index := range slices.Concat(pinned, constants) {
		usesCount[index]--
		if usesCount[index] == 0 {
			notifier.NotifyLastUse(index)
		}
	}

	for index, count := range usesCount {
		if count != 0 || pendingDef[index] {
			exceptions.Panicf("unbalanced tensor planning: operand %s has %d uses left and pending def=%v",
				index, count, pendingDef[index])
		}
	}
}

// TensorRegistrar is the part of a TensorBuilder used by GenTensors.
type TensorRegistrar interface {
	LifetimeNotifier
	RegisterTensorInfo(index ir.OperandIndex, info ir.OperandInfo, shape shapes.Shape, layout ir.Layout)
	Allocate()
}

// GenTensors registers the tensors of the operands owned by the partition (excluding graph inputs
// and outputs), plans their lifetime and allocates them.
//
// For linear executors the lifetime is planned with PlanTensors over data.Order. Otherwise,
// the order of execution is not fixed, and every tensor is kept alive for the whole execution.
func GenTensors(data *backends.ContextData, builder TensorRegistrar) (err error) {
	err = exceptions.TryCatch[error](func() {
		graph := data.Graph
		for index, operand := range graph.IterateOperands() {
			if graph.IsIO(index) || data.IsExternal(index) || operand.IsDead() {
				continue
			}
			builder.RegisterTensorInfo(index, operand.Info(), data.TensorShape(index), data.OperandLayout(index))
		}
		if data.IsLinearExecutor {
			PlanTensors(data, builder, data.Order)
		} else {
			for index := range graph.IterateOperands() {
				if builder.IsRegistered(index) {
					builder.NotifyFirstUse(index)
				}
			}
		}
		builder.Allocate()
	})
	if err != nil {
		return errors.WithMessagef(err, "generating tensors")
	}
	klog.V(2).Infof("generated tensors for %d operands, linear=%v", data.Graph.NumOperands(), data.IsLinearExecutor)
	return nil
}

// InitConsts points the tensors of the constant operands of the partition to the operand data.
// The data is shared, not copied, unless the tensor layout differs from the graph layout.
func InitConsts(data *backends.ContextData, registry *backends.TensorRegistry) error {
	for index, operand := range data.Graph.IterateOperands() {
		if data.IsExternal(index) || !operand.IsConstant() {
			continue
		}
		t, ok := registry.NativeTensor(index).(backends.PortableTensor)
		if !ok {
			return errors.Errorf("constant operand %s has no native portable tensor in backend %q",
				index, registry.BackendID())
		}
		if operand.Data() == nil {
			return errors.Errorf("constant operand %s has no data", index)
		}
		if len(operand.Data()) < int(t.Shape().Memory()) {
			return errors.Errorf("constant operand %s has %d bytes of data, but its shape %s requires %d",
				index, len(operand.Data()), t.Shape(), t.Shape().Memory())
		}
		permuteType := ir.PermuteTypeFor(data.Graph.Layout(), t.Layout(), operand.Shape().Rank())
		if permuteType == ir.PermuteCopy {
			t.SetBuffer(operand.Data())
			continue
		}
		// Constant data is given in the graph layout.
		buf := make([]byte, t.Shape().Memory())
		TransposeBytes(buf, operand.Data(), operand.Shape(), permuteType.Axes())
		t.SetBuffer(buf)
	}
	return nil
}
