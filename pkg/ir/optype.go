// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

// OpType is an enum of the operation types an Operation can have.
//
// The catalogue of operations and their semantics belongs to the frontend and the backends'
// kernels; the lowering core only special-cases OpTypePermute, the conversion inserted at
// backend/layout boundaries.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid OpType = iota
	OpTypePermute
	OpTypeIdentity
	OpTypeAdd
	OpTypeMul
	OpTypeReLU
	OpTypeRange
	OpTypeReshape
	OpTypeConcat
	OpTypeSplit
	OpTypeConv2D
	OpTypeFullyConnected
	OpTypeL2Pool2D

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)
