// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"github.com/gomlx/lowerexec/internal/workerspool"
)

// minParallelChunk is the minimum number of elements processed by one parallel chunk.
const minParallelChunk = 16 * 1024

// ExternalContext is the computation context shared by all kernels of a Backend: one pool of
// workers, however many graphs are compiled and however many kernels run at the same time.
type ExternalContext struct {
	pool *workerspool.Pool
}

// NewExternalContext creates an ExternalContext with numThreads workers, see Config.NumThreads.
func NewExternalContext(numThreads int) *ExternalContext {
	return &ExternalContext{pool: workerspool.New(numThreads)}
}

// NumThreads returns the number of workers of the context.
func (c *ExternalContext) NumThreads() int { return c.pool.Size() }

// ParallelFor calls fn over chunks of [0, n), using the workers available.
func (c *ExternalContext) ParallelFor(n int, fn func(start, end int)) {
	c.pool.ParallelFor(n, minParallelChunk, fn)
}
