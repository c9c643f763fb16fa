// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

import (
	"container/heap"
	"slices"

	"github.com/pkg/errors"
)

// DataflowExecutor runs, in the calling goroutine, the operations whose dependencies are satisfied.
// Among the ready operations it picks the one with the longest path to the end of the graph, breaking
// ties with the position in the build order.
type DataflowExecutor struct {
	*executorBase
	deps  *dependencies
	ranks []int
}

var _ Executor = (*DataflowExecutor)(nil)

// NewDataflow creates a DataflowExecutor.
func NewDataflow(config Config) (*DataflowExecutor, error) {
	base, err := newExecutorBase(config)
	if err != nil {
		return nil, err
	}
	e := &DataflowExecutor{executorBase: base, deps: newDependencies(base.graph, base.order)}
	e.ranks = e.computeRanks()
	return e, nil
}

// computeRanks returns, for each operation, the number of operations on the longest path from it to a sink.
// It walks the order backwards, since dependents always come after in a topological order.
func (e *DataflowExecutor) computeRanks() []int {
	ranks := make([]int, len(e.order))
	for pos := len(e.order) - 1; pos >= 0; pos-- {
		rank := 0
		for _, dep := range e.deps.dependents[pos] {
			rank = max(rank, ranks[dep])
		}
		ranks[pos] = rank + 1
	}
	return ranks
}

// Kind implements Executor.
func (e *DataflowExecutor) Kind() Kind { return Dataflow }

// Execute implements Executor.
func (e *DataflowExecutor) Execute(inputs, outputs [][]byte) error {
	return e.execute(e, inputs, outputs, func() error {
		remaining := slices.Clone(e.deps.numDeps)
		ready := &readyQueue{ranks: e.ranks}
		for pos, count := range remaining {
			if count == 0 {
				heap.Push(ready, pos)
			}
		}
		var executed int
		for ready.Len() > 0 {
			pos := heap.Pop(ready).(int)
			if err := e.runJob(e, e.codes[pos]); err != nil {
				return err
			}
			executed++
			for _, dep := range e.deps.dependents[pos] {
				remaining[dep]--
				if remaining[dep] == 0 {
					heap.Push(ready, dep)
				}
			}
		}
		if executed != len(e.codes) {
			return errors.Errorf("dataflow executor ran %d of %d operations: unsatisfiable dependencies",
				executed, len(e.codes))
		}
		return nil
	})
}

// readyQueue is a heap of positions of ready operations, highest rank first.
type readyQueue struct {
	positions []int
	ranks     []int
}

func (q *readyQueue) Len() int { return len(q.positions) }

func (q *readyQueue) Less(i, j int) bool {
	pi, pj := q.positions[i], q.positions[j]
	if q.ranks[pi] != q.ranks[pj] {
		return q.ranks[pi] > q.ranks[pj]
	}
	return pi < pj
}

func (q *readyQueue) Swap(i, j int) { q.positions[i], q.positions[j] = q.positions[j], q.positions[i] }

func (q *readyQueue) Push(x any) { q.positions = append(q.positions, x.(int)) }

func (q *readyQueue) Pop() any {
	last := q.positions[len(q.positions)-1]
	q.positions = q.positions[:len(q.positions)-1]
	return last
}
