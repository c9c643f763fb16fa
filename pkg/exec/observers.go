// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Observer is notified around an execution and around each job (operation code) it runs.
//
// Calls are serialized by the executor, also for the Parallel executor, so observers need no
// synchronization of their own. HandleJobBegin/HandleJobEnd may come from different goroutines.
type Observer interface {
	HandleBegin(e Executor)
	HandleJobBegin(e Executor, code *Code)
	HandleJobEnd(e Executor, code *Code)
	HandleEnd(e Executor)
}

// observerList holds the observers attached to an executor.
type observerList struct {
	mu        sync.Mutex
	observers []Observer
}

func (l *observerList) add(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

func (l *observerList) begin(e Executor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.observers {
		o.HandleBegin(e)
	}
}

func (l *observerList) jobBegin(e Executor, code *Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.observers {
		o.HandleJobBegin(e, code)
	}
}

func (l *observerList) jobEnd(e Executor, code *Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.observers {
		o.HandleJobEnd(e, code)
	}
}

func (l *observerList) end(e Executor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.observers {
		o.HandleEnd(e)
	}
}

// close closes the observers that implement io.Closer, returning the first error.
func (l *observerList) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, o := range l.observers {
		if closer, ok := o.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = errors.WithMessagef(err, "closing observer %T", o)
			}
		}
	}
	l.observers = nil
	return firstErr
}
