// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool implements a fixed-size pool of goroutines.
//
// It is used by the Parallel executor to run ready operations, and by the CPU backend as the one
// external context shared by all its kernels.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits the number of tasks running concurrently.
type Pool struct {
	// size is the maximum number of tasks running at the same time. If 0 tasks are run inline.
	size       int
	mu         sync.Mutex
	cond       sync.Cond // Should be signaled whenever numRunning is decreased.
	numRunning int
}

// New returns a new Pool of the given size. If size < 0 it defaults to runtime.NumCPU().
//
// A size of 0 disables parallelism: tasks are run inline by the caller.
func New(size int) *Pool {
	if size < 0 {
		size = runtime.NumCPU()
	}
	w := &Pool{size: size}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// Size returns the maximum number of concurrently running tasks.
func (w *Pool) Size() int {
	return w.size
}

// IsEnabled returns whether parallelism is enabled (size != 0).
func (w *Pool) IsEnabled() bool {
	return w.size != 0
}

// lockedIsFull returns whether all workers are in use.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	return w.numRunning >= w.size
}

// WaitToStart waits until there is a worker available and runs the task on it.
//
// If parallelism is disabled, it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.size == 0 {
		task()
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.lockedRunTaskInGoroutine(task)
}

// lockedRunTaskInGoroutine and keep tabs on w.numRunning.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedRunTaskInGoroutine(task func()) {
	w.numRunning++
	go func() {
		defer func() {
			w.mu.Lock()
			w.numRunning--
			w.cond.Broadcast()
			w.mu.Unlock()
		}()
		task()
	}()
}

// StartIfAvailable runs the task in a separate goroutine, if there is a worker available.
// It returns true if it started the task, false otherwise.
//
// It's up to the client to synchronize the end of the task.
func (w *Pool) StartIfAvailable(task func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.size == 0 || w.lockedIsFull() {
		return false
	}
	w.lockedRunTaskInGoroutine(task)
	return true
}

// ParallelFor splits [0, n) in chunks of at least minChunk elements and calls fn(start, end) for each,
// using the available workers and running the remaining chunks inline. It returns when all chunks are done.
func (w *Pool) ParallelFor(n, minChunk int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	numChunks := 1
	if w.size > 0 && minChunk > 0 {
		numChunks = min(w.size+1, (n+minChunk-1)/minChunk)
	}
	chunkSize := (n + numChunks - 1) / numChunks
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		if end < n {
			wg.Add(1)
			started := w.StartIfAvailable(func() {
				defer wg.Done()
				fn(start, end)
			})
			if started {
				continue
			}
			wg.Done()
		}
		fn(start, end)
	}
	wg.Wait()
}
