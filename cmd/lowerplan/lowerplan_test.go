// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/lowerexec/backends/cpucommon"
	"github.com/gomlx/lowerexec/pkg/compiler"
	"github.com/gomlx/lowerexec/pkg/exec"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackendFlag(t *testing.T) {
	config, err := parseBackendFlag("npu:NCHW:Bump:2")
	require.NoError(t, err)
	assert.Equal(t, "npu", config.ID)
	assert.Equal(t, ir.LayoutNCHW, config.PreferredLayout)
	assert.Equal(t, "Bump", config.Planner)
	assert.Equal(t, 2, config.NumThreads)

	config, err = parseBackendFlag("cpu")
	require.NoError(t, err)
	assert.Equal(t, ir.LayoutUnknown, config.PreferredLayout)

	for _, value := range []string{"", ":NHWC", "cpu:NWHC", "cpu:NHWC:Bump:x", "a:b:c:1:2"} {
		_, err = parseBackendFlag(value)
		assert.Error(t, err, "value %q", value)
	}
	_, err = newManager([]string{"cpu", "npu:NCHW:Unknown"})
	require.ErrorContains(t, err, "npu")
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Backends)

	path := filepath.Join(t.TempDir(), "lowerplan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backends:
  - id: cpu
    layout: NHWC
  - id: npu
    layout: NCHW
    planner: Bump
    threads: 4
options: executor=Dataflow
graph: fan
depth: 2
`), 0o644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, "cpu:NHWC", cfg.Backends[0].String())
	assert.Equal(t, "npu:NCHW:Bump:4", cfg.Backends[1].String())
	assert.Equal(t, "executor=Dataflow", cfg.Options)
	assert.Equal(t, "fan", cfg.Graph)
	require.NotNil(t, cfg.Depth)
	assert.Equal(t, 2, *cfg.Depth)
	assert.Nil(t, cfg.Batch)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.NoError(t, os.WriteFile(path, []byte("depth: [1"), 0o644))
	_, err = LoadConfig(path)
	require.ErrorContains(t, err, "parsing")
	require.NoError(t, os.WriteFile(path, []byte("backends:\n  - id: cpu\n    layout: NWHC\n"), 0o644))
	_, err = LoadConfig(path)
	require.ErrorContains(t, err, "NWHC")
}

func TestBuildGraph(t *testing.T) {
	for _, name := range graphNames() {
		g, err := buildGraph(name, 3, 2)
		require.NoError(t, err, "graph %q", name)
		assert.Equal(t, 9, g.NumOperations())
		assert.Equal(t, []int{2, imageSize, imageSize, channels}, g.MustOperand(g.Outputs()[0]).Shape().Dimensions)
	}
	_, err := buildGraph("tree", 1, 1)
	require.ErrorContains(t, err, "unknown graph")
	_, err = buildGraph("chain", 0, 1)
	require.Error(t, err)
}

func TestCompileAndRun(t *testing.T) {
	t.Setenv(compiler.ConfigEnvVar, "")
	setColorProfile(true)
	backendFlags = []string{"cpu:NHWC", "npu:NCHW"}
	optionsFlag = "op_backend_ReLU=npu"
	graphName = "fan"
	depth = 1
	batchSize = 1

	for _, kind := range []exec.Kind{exec.Linear, exec.Dataflow, exec.Parallel} {
		t.Run(kind.String(), func(t *testing.T) {
			c, err := compileGraph(func(options *compiler.Options) {
				options.Executor = kind
				options.HEProfilingMode = true
			})
			require.NoError(t, err)
			defer func() { require.NoError(t, c.Executor.Close()) }()
			assert.Equal(t, kind, c.Executor.Kind())
			assert.Equal(t, []string{"cpu", "npu", "builtin"}, c.KernelOrder)

			var plan bytes.Buffer
			printPlan(&plan, c)
			assert.Contains(t, plan.String(), "Permute(NHWCToNCHW)")
			assert.Contains(t, plan.String(), "npu")

			stats, err := benchmark(context.Background(), c.Executor, 1, 3, io.Discard)
			require.NoError(t, err)
			assert.Equal(t, 3, stats.Runs)
			assert.LessOrEqual(t, stats.Min, stats.Max)

			// fan computes ReLU(x) + x*x.
			inputs, outputs := ioBuffers(c.Executor.Graph())
			require.NoError(t, c.Executor.Execute(inputs, outputs))
			x := cpucommon.FlatBytes[float32](inputs[0], len(inputs[0])/4)
			got := cpucommon.FlatBytes[float32](outputs[0], len(outputs[0])/4)
			for ii, v := range x {
				assert.InDelta(t, max(v, 0)+v*v, got[ii], 1e-6, "element %d", ii)
			}

			var report bytes.Buffer
			printStats(&report, c, stats)
			assert.Contains(t, report.String(), "Runs/s")
			if kind != exec.Parallel {
				assert.Contains(t, report.String(), "ReLU")
			}
		})
	}

	// Cancelled benchmarks stop.
	c, err := compileGraph(nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = benchmark(ctx, c.Executor, 0, 10, io.Discard)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, c.Executor.Close())
}
