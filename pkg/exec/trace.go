// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

import (
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TraceEvent is an event in the Chrome trace event format (as read by chrome://tracing or Perfetto).
type TraceEvent struct {
	Name      string            `json:"name"`
	Category  string            `json:"cat"`
	Phase     string            `json:"ph"`
	Timestamp int64             `json:"ts"`            // In microseconds.
	Duration  int64             `json:"dur,omitempty"` // In microseconds, for complete ("X") events.
	PID       int               `json:"pid"`
	TID       int               `json:"tid"`
	Args      map[string]string `json:"args,omitempty"`
}

// TraceFile is the JSON document written by the TracingObserver.
type TraceFile struct {
	TraceEvents []TraceEvent      `json:"traceEvents"`
	OtherData   map[string]string `json:"otherData"`
}

// TracingObserver records one complete event per job, and one per execution, and writes them as a
// Chrome trace to a file on Close.
//
// Each backend is shown as its own thread, so jobs of the Parallel executor on different backends
// are shown side by side.
type TracingObserver struct {
	filePath  string
	sessionID string
	start     time.Time

	events      []TraceEvent
	runStart    time.Time
	runCount    int
	jobStarts   map[*Code]time.Time
	backendTIDs map[string]int
}

var _ Observer = (*TracingObserver)(nil)

// NewTracingObserver creates a TracingObserver that writes to filePath on Close.
func NewTracingObserver(filePath string) *TracingObserver {
	return &TracingObserver{
		filePath:    filePath,
		sessionID:   uuid.NewString(),
		start:       time.Now(),
		jobStarts:   make(map[*Code]time.Time),
		backendTIDs: make(map[string]int),
	}
}

// SessionID returns the unique id of the tracing session, recorded in the trace file.
func (o *TracingObserver) SessionID() string { return o.sessionID }

// Events returns the events recorded so far.
func (o *TracingObserver) Events() []TraceEvent { return o.events }

func (o *TracingObserver) micros(t time.Time) int64 { return t.Sub(o.start).Microseconds() }

func (o *TracingObserver) tid(backendID string) int {
	tid, found := o.backendTIDs[backendID]
	if !found {
		// Thread 0 is the executor itself.
		tid = len(o.backendTIDs) + 1
		o.backendTIDs[backendID] = tid
	}
	return tid
}

// HandleBegin implements Observer.
func (o *TracingObserver) HandleBegin(_ Executor) {
	o.runStart = time.Now()
}

// HandleJobBegin implements Observer.
func (o *TracingObserver) HandleJobBegin(_ Executor, code *Code) {
	o.jobStarts[code] = time.Now()
}

// HandleJobEnd implements Observer.
func (o *TracingObserver) HandleJobEnd(_ Executor, code *Code) {
	start, found := o.jobStarts[code]
	if !found {
		klog.Warningf("TracingObserver: job %s ended without beginning", code)
		return
	}
	delete(o.jobStarts, code)
	o.events = append(o.events, TraceEvent{
		Name:      code.Operation.Type.String(),
		Category:  code.BackendID,
		Phase:     "X",
		Timestamp: o.micros(start),
		Duration:  time.Since(start).Microseconds(),
		TID:       o.tid(code.BackendID),
		Args:      map[string]string{"operation": code.Index.String()},
	})
}

// HandleEnd implements Observer.
func (o *TracingObserver) HandleEnd(e Executor) {
	o.events = append(o.events, TraceEvent{
		Name:      e.Kind().String(),
		Category:  "executor",
		Phase:     "X",
		Timestamp: o.micros(o.runStart),
		Duration:  time.Since(o.runStart).Microseconds(),
		Args:      map[string]string{"run": strconv.Itoa(o.runCount)},
	})
	o.runCount++
}

// Close writes the trace file. It implements io.Closer.
func (o *TracingObserver) Close() error {
	contents, err := json.MarshalIndent(TraceFile{
		TraceEvents: o.events,
		OtherData:   map[string]string{"session": o.sessionID},
	}, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode trace")
	}
	if err := os.WriteFile(o.filePath, contents, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write trace to %q", o.filePath)
	}
	klog.V(1).Infof("trace with %d events written to %q", len(o.events), o.filePath)
	return nil
}
