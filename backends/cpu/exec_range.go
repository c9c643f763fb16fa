// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/lowerexec/backends/cpucommon"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/pkg/errors"
)

// rangeFn returns the number of elements of the Range(start, limit, delta) sequence given its
// scalar inputs, and a function that fills an output buffer with it.
type rangeFn func(start, limit, delta []byte) (n int, fill func(output []byte), err error)

var rangeDispatcher = newDTypeDispatcher[rangeFn]("Range")

func init() {
	rangeDispatcher.register(dtypes.Float32, makeRange[float32](func(span, delta float32) int {
		return int(math.Ceil(math.Abs(float64(span) / float64(delta))))
	}))
	rangeDispatcher.register(dtypes.Float64, makeRange[float64](func(span, delta float64) int {
		return int(math.Ceil(math.Abs(span / delta)))
	}))
	rangeDispatcher.register(dtypes.Int32, makeRange[int32](func(span, delta int32) int {
		return int((abs(span) + abs(delta) - 1) / abs(delta))
	}))
	rangeDispatcher.register(dtypes.Int64, makeRange[int64](func(span, delta int64) int {
		return int((abs(span) + abs(delta) - 1) / abs(delta))
	}))
}

func abs[T numericConstraints](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

func makeRange[T numericConstraints](count func(span, delta T) int) rangeFn {
	return func(startBuf, limitBuf, deltaBuf []byte) (int, func([]byte), error) {
		start := cpucommon.FlatBytes[T](startBuf, 1)[0]
		limit := cpucommon.FlatBytes[T](limitBuf, 1)[0]
		delta := cpucommon.FlatBytes[T](deltaBuf, 1)[0]
		if delta == 0 {
			return 0, nil, errors.New("Range delta cannot be 0")
		}
		if (limit > start && delta < 0) || (limit < start && delta > 0) {
			return 0, nil, errors.Errorf("Range from %v to %v cannot use delta %v", start, limit, delta)
		}
		n := count(limit-start, delta)
		return n, func(outputBuf []byte) {
			output := cpucommon.FlatBytes[T](outputBuf, n)
			value := start
			for ii := range output {
				output[ii] = value
				value += delta
			}
		}, nil
	}
}

// rangeKernel generates the sequence [start, limit) stepping by delta. Its output is 1D and,
// since its size depends on the input values, usually dynamic.
type rangeKernel struct {
	kernelBase
	fn rangeFn
}

// Prepare implements exec.Function: inputs must be scalars.
func (k *rangeKernel) Prepare() error {
	if err := k.kernelBase.Prepare(); err != nil {
		return err
	}
	for ii, input := range k.inputs {
		if input.Shape().IsKnown() && input.Shape().Size() != 1 {
			return errors.Errorf("Range: input #%d must be a scalar, got shape %s", ii, input.Shape())
		}
	}
	if k.output.Shape().Rank() != 1 {
		return errors.Errorf("Range: output must have rank 1, got shape %s", k.output.Shape())
	}
	return nil
}

// Run implements exec.Function.
func (k *rangeKernel) Run() error {
	if err := k.checkInputs(); err != nil {
		return err
	}
	n, fill, err := k.fn(k.inputs[0].Buffer(), k.inputs[1].Buffer(), k.inputs[2].Buffer())
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("Range: empty sequences are not supported")
	}
	if err = k.prepareOutput(shapes.Make(k.output.TypeInfo().DType, n)); err != nil {
		return err
	}
	fill(k.output.Buffer())
	return nil
}
