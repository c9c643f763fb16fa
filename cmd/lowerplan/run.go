// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/lowerexec/pkg/compiler"
	"github.com/gomlx/lowerexec/pkg/exec"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"
)

func runCmd() *cli.Command {
	var (
		warmupRuns int
		benchRuns  int
		profile    bool
		executor   string
	)
	return &cli.Command{
		Name:  "run",
		Usage: "Execute the compiled graph repeatedly and report the execution times",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "warmup",
				Usage:       "number of executions before measuring",
				Value:       2,
				Destination: &warmupRuns,
			},
			&cli.IntFlag{
				Name:        "runs",
				Aliases:     []string{"n"},
				Usage:       "number of measured executions",
				Value:       100,
				Destination: &benchRuns,
			},
			&cli.BoolFlag{
				Name:        "profile",
				Usage:       "report the time of each backend and operation type",
				Destination: &profile,
			},
			&cli.StringFlag{
				Name:        "executor",
				Usage:       "overrides the executor of the compilation options: Linear, Dataflow or Parallel",
				Destination: &executor,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := setup(cmd); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			var kind exec.Kind
			if executor != "" {
				var err error
				if kind, err = exec.KindString(executor); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
			}
			c, err := compileGraph(func(options *compiler.Options) {
				if executor != "" {
					options.Executor = kind
				}
				if profile {
					options.HEProfilingMode = true
				}
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() {
				if err := c.Executor.Close(); err != nil {
					klog.Errorf("closing executor: %+v", err)
				}
			}()
			stats, err := benchmark(ctx, c.Executor, warmupRuns, benchRuns, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			printStats(os.Stdout, c, stats)
			return nil
		},
	}
}

// runStats summarizes the measured executions.
type runStats struct {
	Runs            int
	Total, Min, Max time.Duration
}

func (s runStats) Average() time.Duration {
	if s.Runs == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Runs)
}

// benchmark executes the graph warmup times, and then measures runs executions, reporting the progress
// in progressOut. It stops early if ctx is cancelled.
func benchmark(ctx context.Context, executor exec.Executor, warmup, runs int, progressOut io.Writer) (stats runStats, err error) {
	inputs, outputs := ioBuffers(executor.Graph())
	for ii := range warmup {
		if err = executor.Execute(inputs, outputs); err != nil {
			return stats, errors.WithMessagef(err, "warmup execution #%d", ii)
		}
	}
	bar := progressbar.NewOptions(runs,
		progressbar.OptionSetDescription("executing"),
		progressbar.OptionSetWriter(progressOut),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("runs"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionClearOnFinish(),
	)
	defer func() { _ = bar.Finish() }()
	for ii := range runs {
		if err = ctx.Err(); err != nil {
			return stats, err
		}
		start := time.Now()
		if err = executor.Execute(inputs, outputs); err != nil {
			return stats, errors.WithMessagef(err, "execution #%d", ii)
		}
		elapsed := time.Since(start)
		if stats.Runs == 0 || elapsed < stats.Min {
			stats.Min = elapsed
		}
		stats.Max = max(stats.Max, elapsed)
		stats.Total += elapsed
		stats.Runs++
		_ = bar.Add(1)
	}
	return stats, nil
}

// printStats writes the summary of the executions and, if profiling was enabled, the time per
// backend and operation type.
func printStats(w io.Writer, c *compiler.Compilation, stats runStats) {
	_, _ = fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s executor: %s runs",
		c.Executor.Kind(), humanize.Comma(int64(stats.Runs)))))
	summary := newPlanTable([]string{"Average", "Min", "Max", "Runs/s"}, lipgloss.Right)
	var perSecond string
	if stats.Total > 0 {
		perSecond = humanize.CommafWithDigits(float64(stats.Runs)/stats.Total.Seconds(), 1)
	}
	summary.Row(false, stats.Average().String(), stats.Min.String(), stats.Max.String(), perSecond)
	_, _ = fmt.Fprintln(w, summary)

	if c.ExecTime == nil {
		return
	}
	profile := newPlanTable([]string{"Backend", "Operation", "Count", "Average", "Min", "Max"},
		lipgloss.Left, lipgloss.Left, lipgloss.Right)
	for _, key := range c.ExecTime.Keys() {
		entry, _ := c.ExecTime.Get(key.BackendID, key.OpType)
		profile.Row(false, key.BackendID, key.OpType.String(), humanize.Comma(int64(entry.Count)),
			entry.Average().String(), entry.Min.String(), entry.Max.String())
	}
	_, _ = fmt.Fprintln(w, profile)
}
