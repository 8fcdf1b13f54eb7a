// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package emulator

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/scheduler"
	"github.com/gomlx/fuser/types/shapes"
)

// Small tiles keep the emulated grids manageable; awkward, non-divisible
// dimensions exercise the tile-boundary predicates.
func testParams() scheduler.Params {
	return scheduler.Params{TileSize: 8, ThreadsPerBlock: 16, MaxVectorWidth: 2}
}

func tolFor(dtype dtypes.DType) float64 {
	switch dtype {
	case dtypes.Float16:
		// The block walk keeps intermediates in float64 while the oracle
		// rounds every tensor to float16.
		return 1e-2
	case dtypes.Float32:
		return 1e-5
	default:
		return 1e-12
	}
}

func TestExecuteMatchesReference(t *testing.T) {
	testCases := []struct {
		name   string
		dtype  dtypes.DType
		shapes func(dtype dtypes.DType) []shapes.Shape
		build  func(f *fusion.Fusion, inputs []*fusion.TensorView)
	}{
		{
			name:  "sin transpose 2d",
			dtype: dtypes.Float64,
			shapes: func(dt dtypes.DType) []shapes.Shape {
				return []shapes.Shape{shapes.Make(dt, 10, 13)}
			},
			build: func(f *fusion.Fusion, in []*fusion.TensorView) {
				f.AddOutput(fusion.Transpose(fusion.Sin(in[0]), 0, 1))
			},
		},
		{
			name:  "elementwise chain single group",
			dtype: dtypes.Float32,
			shapes: func(dt dtypes.DType) []shapes.Shape {
				return []shapes.Shape{shapes.Make(dt, 6, 10)}
			},
			build: func(f *fusion.Fusion, in []*fusion.TensorView) {
				f.AddOutput(fusion.Relu(fusion.Sub(fusion.Sigmoid(in[0]), in[0])))
			},
		},
		{
			name:  "transpose mid chain with skip",
			dtype: dtypes.Float32,
			shapes: func(dt dtypes.DType) []shapes.Shape {
				return []shapes.Shape{
					shapes.Make(dt, 10, 13),
					shapes.Make(dt, 13, 10),
				}
			},
			build: func(f *fusion.Fusion, in []*fusion.TensorView) {
				f.AddOutput(fusion.Add(fusion.Transpose(in[0], 0, 1), in[1]))
				f.AddOutput(fusion.Cos(in[0]))
			},
		},
		{
			name:  "transpose 3d inner pair",
			dtype: dtypes.Float64,
			shapes: func(dt dtypes.DType) []shapes.Shape {
				return []shapes.Shape{shapes.Make(dt, 3, 10, 9)}
			},
			build: func(f *fusion.Fusion, in []*fusion.TensorView) {
				f.AddOutput(fusion.Mul(fusion.Transpose(in[0], 1, 2), fusion.Transpose(fusion.Sin(in[0]), 1, 2)))
			},
		},
		{
			name:  "broadcast rank mismatch",
			dtype: dtypes.Float64,
			shapes: func(dt dtypes.DType) []shapes.Shape {
				return []shapes.Shape{
					shapes.Make(dt, 6, 10, 9),
					shapes.Make(dt, 10, 9),
				}
			},
			build: func(f *fusion.Fusion, in []*fusion.TensorView) {
				wide := fusion.Broadcast(in[1], true, false, false)
				f.AddOutput(fusion.Mul(in[0], fusion.Sin(wide)))
			},
		},
		{
			name:  "two transposed outputs",
			dtype: dtypes.Float32,
			shapes: func(dt dtypes.DType) []shapes.Shape {
				return []shapes.Shape{shapes.Make(dt, 9, 14)}
			},
			build: func(f *fusion.Fusion, in []*fusion.TensorView) {
				s := fusion.Sin(in[0])
				f.AddOutput(fusion.Transpose(s, 0, 1))
				f.AddOutput(fusion.Sub(s, in[0]))
			},
		},
		{
			name:  "transpose sandwiched between pointwise ops",
			dtype: dtypes.Float64,
			shapes: func(dt dtypes.DType) []shapes.Shape {
				return []shapes.Shape{shapes.Make(dt, 10, 13)}
			},
			build: func(f *fusion.Fusion, in []*fusion.TensorView) {
				f.AddOutput(fusion.Cos(fusion.Transpose(fusion.Sin(in[0]), 0, 1)))
			},
		},
		{
			name:  "three inputs three outputs across groups",
			dtype: dtypes.Float64,
			shapes: func(dt dtypes.DType) []shapes.Shape {
				return []shapes.Shape{
					shapes.Make(dt, 10, 13),
					shapes.Make(dt, 10, 13),
					shapes.Make(dt, 13, 10),
				}
			},
			build: func(f *fusion.Fusion, in []*fusion.TensorView) {
				s := fusion.Add(in[0], in[1])
				st := fusion.Transpose(s, 0, 1)
				f.AddOutput(fusion.Add(st, in[2]))
				f.AddOutput(fusion.Cos(s))
				f.AddOutput(fusion.Mul(st, fusion.Sigmoid(in[2])))
			},
		},
		{
			name:  "half precision transpose",
			dtype: dtypes.Float16,
			shapes: func(dt dtypes.DType) []shapes.Shape {
				return []shapes.Shape{shapes.Make(dt, 10, 13)}
			},
			build: func(f *fusion.Fusion, in []*fusion.TensorView) {
				f.AddOutput(fusion.Transpose(fusion.Sigmoid(in[0]), 0, 1))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			inputShapes := tc.shapes(tc.dtype)
			f := fusion.New()
			ins := make([]*fusion.TensorView, len(inputShapes))
			for ii, s := range inputShapes {
				ins[ii] = fusion.Parameter(f, tc.dtype, s.Rank())
				f.AddInput(ins[ii])
			}
			tc.build(f, ins)

			plan, err := scheduler.ScheduleTransposeWithParams(f, inputShapes, testParams())
			require.NoError(t, err)

			inputs := RandomInputs(42, inputShapes)
			want := Reference(f, inputs)
			got, err := Execute(plan, inputs)
			require.NoError(t, err)
			require.Len(t, got, len(want))
			for ii := range want {
				assert.LessOrEqual(t, want[ii].MaxAbsDiff(got[ii]), tolFor(tc.dtype),
					"output #%d diverges", ii)
			}
		})
	}
}

func TestExecuteCoversEveryOutputPosition(t *testing.T) {
	// Dimensions far from tile multiples: most blocks are partially
	// out-of-bounds. A fill with a sentinel ahead of time would hide
	// unwritten positions, so compare against a reference computed from
	// strictly positive inputs and check positivity instead.
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float64, 2)
	f.AddInput(x)
	out := fusion.Transpose(fusion.Relu(x), 0, 1)
	f.AddOutput(out)

	inputShapes := []shapes.Shape{shapes.Make(dtypes.Float64, 9, 3)}
	plan, err := scheduler.ScheduleTransposeWithParams(f, inputShapes, testParams())
	require.NoError(t, err)

	input := NewBuffer(inputShapes[0]).Fill(func(indices []int) float64 {
		return float64(1 + indices[0]*3 + indices[1])
	})
	got, err := Execute(plan, []*Buffer{input})
	require.NoError(t, err)
	require.Len(t, got, 1)
	for jj := 0; jj < 3; jj++ {
		for ii := 0; ii < 9; ii++ {
			assert.Equal(t, float64(1+ii*3+jj), got[0].At(jj, ii))
		}
	}
}

func TestBankConflicts(t *testing.T) {
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float32, 2)
	f.AddInput(x)
	f.AddOutput(fusion.Transpose(x, 0, 1))

	inputShapes := []shapes.Shape{shapes.Make(dtypes.Float32, 64, 96)}
	plan, err := scheduler.ScheduleTranspose(f, inputShapes)
	require.NoError(t, err)
	require.Len(t, plan.SharedCaches, 1)

	reports := AnalyzeBankConflicts(plan)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Swizzled)
	assert.Equal(t, 1, reports[0].WriteWays)
	assert.Equal(t, 1, reports[0].ReadWays)

	// Without the swizzle the read phase walks a column of the 32-wide
	// tile: every lane strides by the tile edge and hits bank 0.
	plan.SharedCaches[0].TileSwizzle().Swizzled = false
	reports = AnalyzeBankConflicts(plan)
	assert.Equal(t, 1, reports[0].WriteWays)
	assert.Equal(t, NumWarpLanes, reports[0].ReadWays)
}
