// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/lowerexec/backends/cpu"
	"github.com/gomlx/lowerexec/pkg/compiler"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"
)

func planCmd() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Print the partitions and the execution order of the compiled graph",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := setup(cmd); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			c, err := compileGraph(nil)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() {
				if err := c.Executor.Close(); err != nil {
					klog.Errorf("closing executor: %+v", err)
				}
			}()
			printPlan(os.Stdout, c)
			return nil
		},
	}
}

// compileGraph builds the synthetic graph and compiles it with the backends and options of the flags.
// If edit is given, it can change the options before compilation.
func compileGraph(edit func(options *compiler.Options)) (*compiler.Compilation, error) {
	manager, err := newManager(backendFlags)
	if err != nil {
		return nil, err
	}
	options, err := compileOptions(optionsFlag)
	if err != nil {
		return nil, err
	}
	if edit != nil {
		edit(&options)
	}
	g, err := buildGraph(graphName, depth, batchSize)
	if err != nil {
		return nil, err
	}
	return compiler.NewFactory(manager).Compile(g, options)
}

// printPlan writes the tables of partitions and operations of the compilation.
func printPlan(w io.Writer, c *compiler.Compilation) {
	lg := c.Lowered
	_, _ = fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s executor: %d operations, %d conversions",
		c.Executor.Kind(), lg.Graph.NumOperations(), lg.NumPermutes())))

	partitions := newPlanTable(
		[]string{"Backend", "Operations", "Operands", "External", "Cross-used", "Arena"},
		lipgloss.Left, lipgloss.Right)
	for _, p := range c.Partitions {
		arena := "-"
		if ctx, ok := c.Context(p.Backend.ID()).(*cpu.Context); ok {
			arena = humanize.IBytes(uint64(ctx.TensorBuilder().MemoryManager().Capacity()))
		}
		partitions.Row(p.Backend.IsControl(),
			p.Backend.ID(),
			humanize.Comma(int64(len(p.Data.Order))),
			humanize.Comma(int64(p.Data.Graph.NumOperands())),
			strconv.Itoa(len(p.Data.ExternalOperands)),
			strconv.Itoa(len(p.Data.CrossUsedOperands)),
			arena)
	}
	_, _ = fmt.Fprintln(w, partitions)

	operations := newPlanTable(
		[]string{"#", "Operation", "Type", "Backend", "Layout", "Inputs", "Outputs"},
		lipgloss.Right, lipgloss.Right, lipgloss.Left)
	for position, opIdx := range c.Order {
		op := lg.Graph.MustOperation(opIdx)
		info := lg.LowerInfo.MustOperation(opIdx)
		opType := op.Type.String()
		if p, ok := op.Params.(ir.PermuteParams); ok {
			opType = fmt.Sprintf("%s(%s)", op.Type, p.Type)
		}
		operations.Row(op.Type == ir.OpTypePermute,
			strconv.Itoa(position),
			opIdx.String(),
			opType,
			info.Backend,
			info.Layout.String(),
			fmt.Sprint(op.Inputs),
			fmt.Sprint(op.Outputs))
	}
	_, _ = fmt.Fprintln(w, operations)
	_, _ = fmt.Fprintf(w, "Kernels generated in order %v\n", c.KernelOrder)
}
