// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

import (
	"slices"
	"sync"

	"github.com/gomlx/lowerexec/internal/workerspool"
	"github.com/gomlx/lowerexec/pkg/support/xsync"
)

// ParallelExecutor dispatches the ready operations to a fixed-size pool of workers.
//
// Operations of a backend without concurrent kernels are serialized among themselves, they can
// still run concurrently with operations of other backends. The first error stops the dispatch of new
// operations, and Execute returns after the in-flight ones finish.
type ParallelExecutor struct {
	*executorBase
	deps         *dependencies
	pool         *workerspool.Pool
	backendLocks map[string]*sync.Mutex
}

var _ Executor = (*ParallelExecutor)(nil)

// NewParallel creates a ParallelExecutor with a pool of config.Workers workers.
func NewParallel(config Config) (*ParallelExecutor, error) {
	base, err := newExecutorBase(config)
	if err != nil {
		return nil, err
	}
	workers := config.Workers
	if workers == 0 {
		workers = -1
	}
	e := &ParallelExecutor{
		executorBase: base,
		deps:         newDependencies(base.graph, base.order),
		pool:         workerspool.New(workers),
		backendLocks: make(map[string]*sync.Mutex),
	}
	for _, code := range base.codes {
		if !code.ConcurrentKernels && e.backendLocks[code.BackendID] == nil {
			e.backendLocks[code.BackendID] = &sync.Mutex{}
		}
	}
	return e, nil
}

// Kind implements Executor.
func (e *ParallelExecutor) Kind() Kind { return Parallel }

// NumWorkers returns the size of the pool of workers.
func (e *ParallelExecutor) NumWorkers() int { return e.pool.Size() }

// runSerialized runs the job holding its backend lock, if the backend requires it.
func (e *ParallelExecutor) runSerialized(code *Code) error {
	if lock := e.backendLocks[code.BackendID]; lock != nil && !code.ConcurrentKernels {
		lock.Lock()
		defer lock.Unlock()
	}
	return e.runJob(e, code)
}

// Execute implements Executor.
func (e *ParallelExecutor) Execute(inputs, outputs [][]byte) error {
	return e.execute(e, inputs, outputs, func() error {
		numOps := len(e.codes)
		if numOps == 0 {
			return nil
		}
		var (
			mu        sync.Mutex
			firstErr  error
			completed int
		)
		remaining := slices.Clone(e.deps.numDeps)
		// Each position is sent exactly once, so sends never block.
		ready := make(chan int, numOps)
		stop := sync.OnceFunc(func() { close(ready) })
		for pos, count := range remaining {
			if count == 0 {
				ready <- pos
			}
		}

		inFlight := xsync.NewDynamicWaitGroup()
		for pos := range ready {
			code := e.codes[pos]
			inFlight.Add(1)
			e.pool.WaitToStart(func() {
				defer inFlight.Done()
				err := e.runSerialized(code)

				mu.Lock()
				defer mu.Unlock()
				if firstErr != nil {
					return
				}
				if err != nil {
					firstErr = err
					stop()
					return
				}
				completed++
				if completed == numOps {
					stop()
					return
				}
				for _, dep := range e.deps.dependents[pos] {
					remaining[dep]--
					if remaining[dep] == 0 {
						ready <- dep
					}
				}
			})
		}
		inFlight.Wait()
		return firstErr
	})
}
