// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

// LinearExecutor runs the operations one after the other in the fixed order it was built with.
//
// It is the only executor whose tensors may be planned with eager deallocation.
type LinearExecutor struct {
	*executorBase
}

var _ Executor = (*LinearExecutor)(nil)

// NewLinear creates a LinearExecutor.
func NewLinear(config Config) (*LinearExecutor, error) {
	base, err := newExecutorBase(config)
	if err != nil {
		return nil, err
	}
	return &LinearExecutor{executorBase: base}, nil
}

// Kind implements Executor.
func (e *LinearExecutor) Kind() Kind { return Linear }

// Execute implements Executor.
func (e *LinearExecutor) Execute(inputs, outputs [][]byte) error {
	return e.execute(e, inputs, outputs, func() error {
		for _, code := range e.codes {
			if err := e.runJob(e, code); err != nil {
				return err
			}
		}
		return nil
	})
}
