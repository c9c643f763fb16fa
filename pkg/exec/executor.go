// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

import (
	"slices"
	"sync"

	"github.com/gomlx/lowerexec/pkg/core/shapes"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Kind of executor: it selects the scheduling strategy.
type Kind int

//go:generate go tool enumer -type=Kind -text -output=gen_kind_enumer.go executor.go

const (
	// Linear executes the operations in a fixed order, in the calling goroutine.
	Linear Kind = iota

	// Dataflow executes, in the calling goroutine, any operation whose inputs are ready, choosing
	// first the ones on the longest path to the end of the graph.
	Dataflow

	// Parallel dispatches the ready operations to a fixed-size pool of workers.
	Parallel
)

// Executor runs a compiled graph.
//
// Executors are not reentrant: concurrent calls to Execute are serialized.
type Executor interface {
	// Kind of the executor.
	Kind() Kind

	// Execute runs the graph once. inputs and outputs are the caller's buffers for the graph inputs
	// and outputs, in graph order, with their data laid out in the graph layout.
	Execute(inputs, outputs [][]byte) error

	// AddObserver attaches an observer, notified on every following execution.
	AddObserver(o Observer)

	// Graph returns the lowered graph the executor runs.
	Graph() *ir.Graph

	// Order returns the operations of the graph in the order used to build the executor.
	Order() []ir.OperationIndex

	// OutputShape returns the shape of the i-th output of the last execution.
	OutputShape(i int) shapes.Shape

	// Close releases the observers. The executor must not be used afterward.
	Close() error
}

// Config holds what an executor is built from.
type Config struct {
	// Graph is the lowered whole graph.
	Graph *ir.Graph

	// Order is the global execution order. Linear executes it as is, the others use it to break
	// ties between ready operations.
	Order []ir.OperationIndex

	// Code of every operation in Order.
	Code CodeMap

	// IO tensors of the graph inputs and outputs.
	IO IOTensors

	// Workers is the size of the pool of the Parallel executor. If <= 0 it defaults to runtime.NumCPU().
	Workers int
}

// New creates an executor of the given kind.
func New(kind Kind, config Config) (Executor, error) {
	switch kind {
	case Linear:
		return NewLinear(config)
	case Dataflow:
		return NewDataflow(config)
	case Parallel:
		return NewParallel(config)
	}
	return nil, errors.Errorf("unknown executor kind %d", kind)
}

// executorBase implements what is common to all executors.
type executorBase struct {
	mu        sync.Mutex
	graph     *ir.Graph
	order     []ir.OperationIndex
	codes     []*Code // Aligned with order.
	io        IOTensors
	observers observerList
}

func newExecutorBase(config Config) (*executorBase, error) {
	if config.Graph == nil {
		return nil, errors.New("executor requires a graph")
	}
	if len(config.Code) != len(config.Order) {
		return nil, errors.Errorf("executor has code for %d operations, but the order has %d operations",
			len(config.Code), len(config.Order))
	}
	e := &executorBase{
		graph: config.Graph,
		order: slices.Clone(config.Order),
		codes: make([]*Code, len(config.Order)),
		io:    config.IO,
	}
	for pos, index := range config.Order {
		code, found := config.Code[index]
		if !found {
			return nil, errors.Errorf("no code generated for operation %s", index)
		}
		e.codes[pos] = code
	}
	if len(e.io.Inputs) != len(e.graph.Inputs()) || len(e.io.Outputs) != len(e.graph.Outputs()) {
		return nil, errors.Errorf("graph has %d inputs and %d outputs, but %d input and %d output tensors were given",
			len(e.graph.Inputs()), len(e.graph.Outputs()), len(e.io.Inputs), len(e.io.Outputs))
	}
	return e, nil
}

// Graph implements Executor.
func (e *executorBase) Graph() *ir.Graph { return e.graph }

// Order implements Executor.
func (e *executorBase) Order() []ir.OperationIndex { return e.order }

// AddObserver implements Executor.
func (e *executorBase) AddObserver(o Observer) { e.observers.add(o) }

// OutputShape implements Executor.
func (e *executorBase) OutputShape(i int) shapes.Shape { return e.io.Outputs[i].Shape() }

// Close implements Executor.
func (e *executorBase) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observers.close()
}

// setIO hands the caller buffers to the IO tensors.
func (e *executorBase) setIO(inputs, outputs [][]byte) error {
	if len(inputs) != len(e.io.Inputs) {
		return errors.Errorf("graph takes %d inputs, %d given", len(e.io.Inputs), len(inputs))
	}
	if len(outputs) != len(e.io.Outputs) {
		return errors.Errorf("graph has %d outputs, %d buffers given", len(e.io.Outputs), len(outputs))
	}
	for ii, buf := range inputs {
		if err := e.io.Inputs[ii].SetUserBuffer(buf); err != nil {
			return errors.WithMessagef(err, "input #%d", ii)
		}
	}
	for ii, buf := range outputs {
		if err := e.io.Outputs[ii].SetUserBuffer(buf); err != nil {
			return errors.WithMessagef(err, "output #%d", ii)
		}
	}
	return nil
}

// runJob runs the code of one operation, notifying the observers.
func (e *executorBase) runJob(self Executor, code *Code) error {
	e.observers.jobBegin(self, code)
	err := code.Sequence.Run()
	e.observers.jobEnd(self, code)
	if err != nil {
		return errors.WithMessagef(err, "executing operation %s", code)
	}
	return nil
}

// execute wraps run with the IO setup and the begin/end notifications.
func (e *executorBase) execute(self Executor, inputs, outputs [][]byte, run func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.setIO(inputs, outputs); err != nil {
		return err
	}
	e.observers.begin(self)
	err := run()
	e.observers.end(self)
	if err != nil {
		klog.V(1).Infof("%s executor failed: %+v", self.Kind(), err)
	}
	return err
}

// dependencies between the operations of an executor, by their position in the order.
type dependencies struct {
	numDeps    []int   // Number of distinct operations an operation waits for.
	dependents [][]int // Operations waiting on each operation.
}

func newDependencies(graph *ir.Graph, order []ir.OperationIndex) *dependencies {
	positions := make(map[ir.OperationIndex]int, len(order))
	for pos, index := range order {
		positions[index] = pos
	}
	d := &dependencies{
		numDeps:    make([]int, len(order)),
		dependents: make([][]int, len(order)),
	}
	for pos, index := range order {
		var preds []int
		for _, input := range graph.MustOperation(index).UniqueInputs() {
			operand := graph.Operand(input)
			if operand == nil || !operand.Def().Valid() {
				continue
			}
			predPos, found := positions[operand.Def()]
			if !found || slices.Contains(preds, predPos) {
				continue
			}
			preds = append(preds, predPos)
			d.dependents[predPos] = append(d.dependents[predPos], pos)
		}
		d.numDeps[pos] = len(preds)
	}
	return d
}
