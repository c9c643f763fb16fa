// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import "github.com/gomlx/lowerexec/pkg/core/shapes"

// Layout is the memory layout of a 4D tensor: where the channels axis lives.
//
//go:generate go tool enumer -type=Layout -trimprefix=Layout -text -yaml -output=gen_layout_enumer.go layout.go
type Layout int

const (
	LayoutUnknown Layout = iota
	LayoutNHWC
	LayoutNCHW
)

// PermuteType is the kind of data movement a Permute operation performs.
type PermuteType int

//go:generate go tool enumer -type=PermuteType -trimprefix=Permute -output=gen_permutetype_enumer.go layout.go

const (
	PermuteCopy PermuteType = iota
	PermuteNHWCToNCHW
	PermuteNCHWToNHWC
)

// PermuteTypeFor returns the PermuteType that converts data from the layout `from` to the layout `to`.
//
// Rank other than 4 and unknown layouts are plain copies.
func PermuteTypeFor(from, to Layout, rank int) PermuteType {
	if rank != 4 || from == to || from == LayoutUnknown || to == LayoutUnknown {
		return PermuteCopy
	}
	if from == LayoutNHWC {
		return PermuteNHWCToNCHW
	}
	return PermuteNCHWToNHWC
}

// Axes returns the axes permutation (in shapes.Shape.Transpose format) of the permute type.
// It returns nil for PermuteCopy.
func (p PermuteType) Axes() []int {
	switch p {
	case PermuteNHWCToNCHW:
		return []int{0, 3, 1, 2}
	case PermuteNCHWToNHWC:
		return []int{0, 2, 3, 1}
	}
	return nil
}

// ConvertShape returns the shape s (given in layout `from`) as it is laid out in memory with layout `to`.
func ConvertShape(s shapes.Shape, from, to Layout) shapes.Shape {
	axes := PermuteTypeFor(from, to, s.Rank()).Axes()
	if axes == nil {
		return s.Clone()
	}
	return s.Transpose(axes...)
}
