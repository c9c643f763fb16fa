// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gomlx/lowerexec/pkg/ir"
)

// ExecTimeKey identifies a measurement series of ExecTime.
type ExecTimeKey struct {
	BackendID string
	OpType    ir.OpType
}

// ExecTimeEntry accumulates measurements of an ExecTimeKey.
type ExecTimeEntry struct {
	Count int
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Average duration of the measurements.
func (e ExecTimeEntry) Average() time.Duration {
	if e.Count == 0 {
		return 0
	}
	return e.Total / time.Duration(e.Count)
}

// ExecTime accumulates the execution times of operations per backend and operation type.
// It is safe for concurrent use.
type ExecTime struct {
	mu      sync.Mutex
	entries map[ExecTimeKey]ExecTimeEntry
}

// NewExecTime creates an empty ExecTime.
func NewExecTime() *ExecTime {
	return &ExecTime{entries: make(map[ExecTimeKey]ExecTimeEntry)}
}

// Record a measurement.
func (t *ExecTime) Record(backendID string, opType ir.OpType, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := ExecTimeKey{BackendID: backendID, OpType: opType}
	entry, found := t.entries[key]
	if !found || elapsed < entry.Min {
		entry.Min = elapsed
	}
	entry.Max = max(entry.Max, elapsed)
	entry.Count++
	entry.Total += elapsed
	t.entries[key] = entry
}

// Get returns the measurements for the backend and operation type, if any.
func (t *ExecTime) Get(backendID string, opType ir.OpType) (ExecTimeEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, found := t.entries[ExecTimeKey{BackendID: backendID, OpType: opType}]
	return entry, found
}

// Keys returns the measured keys, sorted by backend and operation type.
func (t *ExecTime) Keys() []ExecTimeKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]ExecTimeKey, 0, len(t.entries))
	for key := range t.entries {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b ExecTimeKey) int {
		return cmp.Or(cmp.Compare(a.BackendID, b.BackendID), cmp.Compare(a.OpType, b.OpType))
	})
	return keys
}

// String implements fmt.Stringer, listing the average time of each key.
func (t *ExecTime) String() string {
	var sb strings.Builder
	for _, key := range t.Keys() {
		entry, _ := t.Get(key.BackendID, key.OpType)
		_, _ = fmt.Fprintf(&sb, "%s/%s: count=%d avg=%s min=%s max=%s\n",
			key.BackendID, key.OpType, entry.Count, entry.Average(), entry.Min, entry.Max)
	}
	return sb.String()
}

// ProfileObserver measures the execution time of each job into an ExecTime.
//
// Measurements are only meaningful if the backends' kernels complete synchronously, which is why it is
// used together with the sync wrapping of function sequences.
type ProfileObserver struct {
	execTime  *ExecTime
	jobStarts map[*Code]time.Time
}

var _ Observer = (*ProfileObserver)(nil)

// NewProfileObserver creates a ProfileObserver recording into execTime.
func NewProfileObserver(execTime *ExecTime) *ProfileObserver {
	return &ProfileObserver{execTime: execTime, jobStarts: make(map[*Code]time.Time)}
}

// ExecTime returns where measurements are recorded.
func (o *ProfileObserver) ExecTime() *ExecTime { return o.execTime }

// HandleBegin implements Observer.
func (o *ProfileObserver) HandleBegin(_ Executor) {}

// HandleJobBegin implements Observer.
func (o *ProfileObserver) HandleJobBegin(_ Executor, code *Code) {
	o.jobStarts[code] = time.Now()
}

// HandleJobEnd implements Observer.
func (o *ProfileObserver) HandleJobEnd(_ Executor, code *Code) {
	if start, found := o.jobStarts[code]; found {
		o.execTime.Record(code.BackendID, code.Operation.Type, time.Since(start))
		delete(o.jobStarts, code)
	}
}

// HandleEnd implements Observer.
func (o *ProfileObserver) HandleEnd(_ Executor) {}
