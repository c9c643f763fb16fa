// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/gomlx/lowerexec/pkg/exec"
)

// SyncFunction runs a function and then blocks until the backend completes all its native compute.
//
// It is used to instrument executions: the time measured around a job then includes the backend work.
type SyncFunction struct {
	fn      exec.Function
	backend Backend
}

var _ exec.Function = (*SyncFunction)(nil)

// NewSyncFunction wraps fn so that each Run is followed by backend.Sync().
func NewSyncFunction(fn exec.Function, backend Backend) *SyncFunction {
	return &SyncFunction{fn: fn, backend: backend}
}

// Prepare implements exec.Function.
func (s *SyncFunction) Prepare() error { return s.fn.Prepare() }

// Run implements exec.Function.
func (s *SyncFunction) Run() error {
	err := s.fn.Run()
	s.backend.Sync()
	return err
}
