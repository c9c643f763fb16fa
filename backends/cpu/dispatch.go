// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// maxDTypes is the upper bound on the dtype values handled by a dtypeDispatcher.
const maxDTypes = 32

// dtypeDispatcher holds one implementation of a kernel per dtype.
type dtypeDispatcher[F any] struct {
	name  string
	fnMap [maxDTypes]*F
}

func newDTypeDispatcher[F any](name string) *dtypeDispatcher[F] {
	return &dtypeDispatcher[F]{name: name}
}

// register the implementation for the dtype, overwriting any previous one.
func (d *dtypeDispatcher[F]) register(dtype dtypes.DType, fn F) {
	if int(dtype) >= maxDTypes {
		panic(errors.Errorf("dtype %s cannot be registered for %s", dtype, d.name))
	}
	d.fnMap[dtype] = &fn
}

// get the implementation for the dtype.
func (d *dtypeDispatcher[F]) get(dtype dtypes.DType) (F, error) {
	var zero F
	if int(dtype) >= maxDTypes || d.fnMap[dtype] == nil {
		return zero, errors.Errorf("dtype %s not supported by %s", dtype, d.name)
	}
	return *d.fnMap[dtype], nil
}

// dtypes returns the dtypes with a registered implementation.
func (d *dtypeDispatcher[F]) dtypes() (list []dtypes.DType) {
	for dtype, fn := range d.fnMap {
		if fn != nil {
			list = append(list, dtypes.DType(dtype))
		}
	}
	return
}

// numericConstraints are the Go types with native arithmetic of the dtypes supported by the kernels.
type numericConstraints interface {
	int32 | int64 | float32 | float64
}

// f16 adapts a float32 function to float16.Float16 values.
func f16[OpFn func(a, b float32) float32](opFn OpFn) func(a, b float16.Float16) float16.Float16 {
	return func(a, b float16.Float16) float16.Float16 {
		return float16.Fromfloat32(opFn(a.Float32(), b.Float32()))
	}
}
