// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package compiler lowers a backend-neutral graph onto a set of backends and builds its executor.
//
// The pipeline of Factory.Compile is:
//
//  1. Lower: each operation is assigned a backend and a layout (see Placement), constants used at
//     more than one site are duplicated, and Permute operations are inserted wherever an operand
//     changes backend or layout.
//  2. Linearize and PartitionGraph: one partial graph (backends.ContextData) per backend, with the
//     local order of its operations.
//  3. Tensors: every backend generates (plans and allocates) the tensors it owns, then the tensors
//     owned by other backends are registered as migrant tensors where they are used.
//  4. Kernels: every backend generates the functions of its operations, the control backend last.
//  5. The functions are bound to a Linear, Dataflow or Parallel executor (see exec.Kind).
package compiler
