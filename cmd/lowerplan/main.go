// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// lowerplan compiles synthetic graphs over a set of cpu backends, prints the resulting execution
// plan and benchmarks it.
//
// Example:
//
//	lowerplan --backend=cpu:NHWC --backend=npu:NCHW --options="op_backend_ReLU=npu" plan
//	lowerplan --config=lowerplan.yaml run --runs=1000
//
// Compilation options default to the ones in $LOWEREXEC_CONFIG.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"
)

var (
	configPath   string
	backendFlags []string
	optionsFlag  string
	graphName    string
	depth        int
	batchSize    int
	noColor      bool
	vlogLevel    int
)

func main() {
	klog.InitFlags(flag.CommandLine)
	app := &cli.Command{
		Name:  "lowerplan",
		Usage: "Compile synthetic graphs over several backends, print their execution plans and benchmark them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "YAML file with the default values of the flags",
				Destination: &configPath,
			},
			&cli.StringSliceFlag{
				Name:        "backend",
				Aliases:     []string{"b"},
				Usage:       "compute backend as id[:layout[:planner[:threads]]], can be repeated",
				Value:       []string{"cpu"},
				Destination: &backendFlags,
			},
			&cli.StringFlag{
				Name:        "options",
				Aliases:     []string{"o"},
				Usage:       "compilation options, e.g. \"executor=Dataflow,op_backend_ReLU=npu\"",
				Destination: &optionsFlag,
			},
			&cli.StringFlag{
				Name:        "graph",
				Aliases:     []string{"g"},
				Usage:       fmt.Sprintf("synthetic graph, one of %q", graphNames()),
				Value:       "chain",
				Destination: &graphName,
			},
			&cli.IntFlag{
				Name:        "depth",
				Usage:       "number of blocks of the synthetic graph",
				Value:       4,
				Destination: &depth,
			},
			&cli.IntFlag{
				Name:        "batch",
				Usage:       "batch size of the graph input",
				Value:       1,
				Destination: &batchSize,
			},
			&cli.IntFlag{
				Name:        "vlog",
				Usage:       "verbosity level of the compilation logs",
				Destination: &vlogLevel,
			},
			&cli.BoolFlag{
				Name:        "no-color",
				Usage:       "disable colored output",
				Destination: &noColor,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			planCmd(),
			runCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup applies the configuration file to the flags not set in the command line of the root command.
func setup(cmd *cli.Command) error {
	root := cmd.Root()
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg.apply(root)
	if vlogLevel > 0 {
		if err := flag.Set("v", strconv.Itoa(vlogLevel)); err != nil {
			return err
		}
	}
	setColorProfile(noColor)
	return nil
}
