// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/lowerexec/pkg/exec"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
)

// ConfigEnvVar is the environment variable with the default compilation options, in the format
// accepted by ParseOptions.
const ConfigEnvVar = "LOWEREXEC_CONFIG"

// Options of a compilation.
type Options struct {
	// Executor selects the scheduling strategy.
	Executor exec.Kind

	// Placement of the operations. If nil, each operation goes to the first backend that supports it.
	Placement Placement

	// HEProfilingMode makes each kernel block until its backend's compute is complete, and attaches
	// a ProfileObserver recording into ExecTime (Linear and Dataflow executors only).
	HEProfilingMode bool

	// ExecTime where profiling measurements are recorded. If nil and HEProfilingMode is set, one is
	// created, see Compilation.ExecTime.
	ExecTime *exec.ExecTime

	// TraceFilePath, if set, attaches a TracingObserver that writes a Chrome trace to the file when the
	// executor is closed.
	TraceFilePath string

	// ParallelWorkers is the size of the pool of the Parallel executor. If <= 0, runtime.NumCPU().
	ParallelWorkers int
}

// DefaultOptions returns the options used when no configuration is given: a Linear executor
// with automatic placement.
func DefaultOptions() Options {
	return Options{Executor: exec.Linear}
}

// ParseOptions parses a comma-separated list of key=value options:
//
//   - executor=<Linear|Dataflow|Parallel>
//   - op_backend_allops=<backend>: default backend of all operations.
//   - op_backend_<OpType>=<backend>: backend of the operations of a type, e.g. "op_backend_Add=cpu".
//   - op_backend_map=<index>=<backend>;...: backend of individual operations, e.g. "op_backend_map=0=cpu;3=npu".
//   - he_profiling=<bool>
//   - trace=<file path>
//   - workers=<int>
//
// Unknown keys are an error.
func ParseOptions(config string) (Options, error) {
	options := DefaultOptions()
	placement := &ManualPlacement{}
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return options, errors.Errorf("invalid option %q in configuration %q, expected key=value", part, config)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		var err error
		switch {
		case key == "executor":
			options.Executor, err = exec.KindString(value)
		case key == "op_backend_allops":
			placement.Default = value
		case key == "op_backend_map":
			err = parseBackendMap(placement, value)
		case strings.HasPrefix(key, "op_backend_"):
			var opType ir.OpType
			opType, err = ir.OpTypeString(strings.TrimPrefix(key, "op_backend_"))
			if err == nil {
				if placement.ByOpType == nil {
					placement.ByOpType = make(map[ir.OpType]string)
				}
				placement.ByOpType[opType] = value
			}
		case key == "he_profiling":
			options.HEProfilingMode, err = strconv.ParseBool(value)
		case key == "trace":
			options.TraceFilePath = value
		case key == "workers":
			options.ParallelWorkers, err = strconv.Atoi(value)
		default:
			err = errors.New("unknown option")
		}
		if err != nil {
			return options, errors.WithMessagef(err, "option %q in configuration %q", part, config)
		}
	}
	if !placement.IsEmpty() {
		options.Placement = placement
	}
	return options, nil
}

// parseBackendMap parses "<index>=<backend>;..." into placement.ByIndex.
func parseBackendMap(placement *ManualPlacement, value string) error {
	if placement.ByIndex == nil {
		placement.ByIndex = make(map[ir.OperationIndex]string)
	}
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		indexStr, backendID, found := strings.Cut(entry, "=")
		if !found || backendID == "" {
			return errors.Errorf("invalid entry %q, expected <operation index>=<backend>", entry)
		}
		index, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(indexStr), "@"))
		if err != nil || index < 0 {
			return errors.Errorf("invalid operation index in entry %q", entry)
		}
		placement.ByIndex[ir.OperationIndex(index)] = strings.TrimSpace(backendID)
	}
	return nil
}

// OptionsFromEnv returns the options configured in the environment variable ConfigEnvVar, or
// DefaultOptions if it is not set.
func OptionsFromEnv() (Options, error) {
	config, found := os.LookupEnv(ConfigEnvVar)
	if !found {
		return DefaultOptions(), nil
	}
	options, err := ParseOptions(config)
	if err != nil {
		return options, errors.WithMessagef(err, "parsing $%s", ConfigEnvVar)
	}
	return options, nil
}
