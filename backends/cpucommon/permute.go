// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpucommon

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/lowerexec/pkg/core/shapes"
)

// TransposeBytes writes to dst the elements of src (shaped srcShape) with the axes permuted:
// axis i of the result is axis axes[i] of the source. Elements are moved as raw bytes, so it works
// for any dtype. A nil axes is a plain copy.
func TransposeBytes(dst, src []byte, srcShape shapes.Shape, axes []int) {
	size := int(srcShape.Memory())
	if len(src) < size || len(dst) < size {
		exceptions.Panicf("TransposeBytes: buffers of %d and %d bytes are too small for shape %s",
			len(src), len(dst), srcShape)
	}
	if axes == nil {
		copy(dst[:size], src[:size])
		return
	}
	elemSize := int(srcShape.DType.Memory())
	dstShape := srcShape.Transpose(axes...)
	srcStrides := srcShape.Strides()

	// For each axis of the destination, the stride on the source.
	rank := srcShape.Rank()
	permutedStrides := make([]int, rank)
	for axis := range rank {
		permutedStrides[axis] = srcStrides[axes[axis]]
	}
	for dstFlat, dstIndices := range dstShape.Iter() {
		srcFlat := 0
		for axis, idx := range dstIndices {
			srcFlat += idx * permutedStrides[axis]
		}
		copy(dst[dstFlat*elemSize:(dstFlat+1)*elemSize], src[srcFlat*elemSize:(srcFlat+1)*elemSize])
	}
}
