// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// fuser_plan schedules one of a few built-in demo fusions and prints the
// resulting kernel plan: layout groups, tile decision, launch parameters,
// per-tensor loop domains and the shared-memory bank behavior. With --verify
// it also executes the plan on the host emulator and compares against the
// unscheduled reference evaluation.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/gomlx/fuser/emulator"
	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/scheduler"
	"github.com/gomlx/fuser/types/shapes"
)

var (
	flagFusion = flag.String("fusion", "sin_transpose",
		"Demo fusion to schedule. One of: "+strings.Join(demoNames(), ", ")+".")
	flagDims = flag.String("dims", "64,96",
		"Comma-separated dimensions of the fusion's first input; the demo derives the other inputs from it.")
	flagDType   = flag.String("dtype", "float32", "Element type: float16, float32 or float64.")
	flagTile    = flag.Int("tile", 32, "Tile edge; tiles are tile x tile elements.")
	flagThreads = flag.Int("threads", 128, "Threads per block.")
	flagVector  = flag.Int("vector", 4, "Widest vectorized access, in elements.")
	flagVerify  = flag.Bool("verify", false,
		"Execute the plan on the host emulator and compare against the reference evaluation.")
	flagSeed = flag.Uint64("seed", 42, "Seed for the --verify input data.")
)

// demo builds a fusion and the example shapes of its inputs from the shape
// of the first input.
type demo struct {
	description string
	build       func(first shapes.Shape) (*fusion.Fusion, []shapes.Shape)
}

var demos = map[string]demo{
	"sin_transpose": {
		description: "out = sin(x)^T, a single transposed output",
		build: func(first shapes.Shape) (*fusion.Fusion, []shapes.Shape) {
			f := fusion.New()
			x := fusion.Parameter(f, first.DType, first.Rank())
			f.AddInput(x)
			f.AddOutput(fusion.Transpose(fusion.Sin(x), -2, -1))
			return f, []shapes.Shape{first}
		},
	},
	"transpose_pair": {
		description: "two inputs, one transposed and one straight output",
		build: func(first shapes.Shape) (*fusion.Fusion, []shapes.Shape) {
			f := fusion.New()
			x := fusion.Parameter(f, first.DType, first.Rank())
			y := fusion.Parameter(f, first.DType, first.Rank())
			f.AddInput(x)
			f.AddInput(y)
			xt := fusion.Transpose(x, -2, -1)
			f.AddOutput(fusion.Add(xt, y))
			f.AddOutput(fusion.Cos(x))
			return f, []shapes.Shape{first, transposedShape(first)}
		},
	},
	"sigmoid_chain": {
		description: "out = sigmoid(relu(x + y^T)), elementwise chain over a transpose",
		build: func(first shapes.Shape) (*fusion.Fusion, []shapes.Shape) {
			f := fusion.New()
			x := fusion.Parameter(f, first.DType, first.Rank())
			y := fusion.Parameter(f, first.DType, first.Rank())
			f.AddInput(x)
			f.AddInput(y)
			sum := fusion.Add(x, fusion.Transpose(y, -2, -1))
			f.AddOutput(fusion.Sigmoid(fusion.Relu(sum)))
			return f, []shapes.Shape{first, transposedShape(first)}
		},
	},
}

// transposedShape returns s with its last two dimensions swapped, the shape a
// tensor must have to be consumed alongside a transposed sibling.
func transposedShape(s shapes.Shape) shapes.Shape {
	t := s.Clone()
	rank := t.Rank()
	t.Dimensions[rank-2], t.Dimensions[rank-1] = t.Dimensions[rank-1], t.Dimensions[rank-2]
	return t
}

func demoNames() []string {
	names := make([]string, 0, len(demos))
	for name := range demos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	d, ok := demos[*flagFusion]
	if !ok {
		klog.Errorf("Unknown fusion %q; available: %s.", *flagFusion, strings.Join(demoNames(), ", "))
		os.Exit(1)
	}
	dtype, err := parseDType(*flagDType)
	if err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
	dims, err := parseDims(*flagDims)
	if err != nil {
		klog.Errorf("Invalid --dims %q: %v", *flagDims, err)
		os.Exit(1)
	}

	f, inputShapes := d.build(shapes.Make(dtype, dims...))
	params := scheduler.Params{
		TileSize:        *flagTile,
		ThreadsPerBlock: *flagThreads,
		MaxVectorWidth:  *flagVector,
	}
	plan := must.M1(scheduler.ScheduleTransposeWithParams(f, inputShapes, params))
	report(plan, d)

	if *flagVerify {
		verify(plan, inputShapes)
	}
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 2, 0, 2)

	headerRowStyle = lipgloss.NewStyle().Reverse(true).Padding(0, 1, 0, 1).Align(lipgloss.Center)
	rowStyle       = lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
)

func newTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return headerRowStyle
			}
			return rowStyle
		}).
		Headers(headers...)
}

func report(plan *scheduler.Plan, d demo) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s: %s", *flagFusion, d.description)))

	summary := newTable("", "")
	summary.Row("tiles", plan.Tiles.String())
	summary.Row("grid", humanize.Comma(int64(plan.Launch.GridX))+" blocks")
	summary.Row("block", fmt.Sprintf("%d threads", plan.Launch.BlockDim))
	summary.Row("shared memory", humanize.IBytes(uint64(plan.Launch.SharedMemBytes)))
	summary.Row("layout groups", strconv.Itoa(len(plan.Groups)))
	fmt.Println(summary)

	tensors := newTable("tensor", "memory", "loop domain", "inline")
	for _, tv := range plan.Fusion.Tensors() {
		var loopDesc []string
		for _, axis := range tv.Loop() {
			loopDesc = append(loopDesc, axis.String())
		}
		inline := ""
		if pos, ok := plan.InlineAt[tv.ID()]; ok {
			inline = strconv.Itoa(pos)
		}
		tensors.Row(tv.Name(), tv.Memory().String(), strings.Join(loopDesc, " "), inline)
	}
	fmt.Println(tensors)

	if len(plan.SharedCaches) > 0 {
		banks := newTable("shared tile", "swizzled", "write conflicts", "read conflicts")
		for _, r := range emulator.AnalyzeBankConflicts(plan) {
			banks.Row(r.Cache.Name(), fmt.Sprintf("%v", r.Swizzled),
				fmt.Sprintf("%d-way", r.WriteWays), fmt.Sprintf("%d-way", r.ReadWays))
		}
		fmt.Println(banks)
	}
}

func verify(plan *scheduler.Plan, inputShapes []shapes.Shape) {
	inputs := emulator.RandomInputs(*flagSeed, inputShapes)
	want := emulator.Reference(plan.Fusion, inputs)
	got := must.M1(emulator.Execute(plan, inputs))
	worst := 0.0
	for ii := range want {
		if diff := want[ii].MaxAbsDiff(got[ii]); diff > worst {
			worst = diff
		}
	}
	fmt.Printf("\nverified %d outputs, max abs diff %g\n", len(want), worst)
}

func parseDType(name string) (dtypes.DType, error) {
	switch strings.ToLower(name) {
	case "float16", "f16":
		return dtypes.Float16, nil
	case "float32", "f32":
		return dtypes.Float32, nil
	case "float64", "f64":
		return dtypes.Float64, nil
	}
	return dtypes.InvalidDType, fmt.Errorf("unsupported dtype %q", name)
}

func parseDims(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	dims := make([]int, 0, len(parts))
	for _, part := range parts {
		dim, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		dims = append(dims, dim)
	}
	if len(dims) < 2 {
		return nil, fmt.Errorf("need at least 2 dimensions, got %d", len(dims))
	}
	return dims, nil
}
