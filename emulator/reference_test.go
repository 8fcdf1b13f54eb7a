// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package emulator

import (
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/types/shapes"
)

func TestReferenceSinTranspose(t *testing.T) {
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float64, 2)
	f.AddInput(x)
	f.AddOutput(fusion.Transpose(fusion.Sin(x), 0, 1))
	f.BindInputShapes([]shapes.Shape{shapes.Make(dtypes.Float64, 2, 3)})

	input := NewBuffer(shapes.Make(dtypes.Float64, 2, 3)).Fill(func(indices []int) float64 {
		return float64(indices[0]*3 + indices[1])
	})
	outs := Reference(f, []*Buffer{input})
	require.Len(t, outs, 1)
	assert.Equal(t, []int{3, 2}, outs[0].Shape().Dimensions)
	for ii := 0; ii < 2; ii++ {
		for jj := 0; jj < 3; jj++ {
			assert.InDelta(t, math.Sin(float64(ii*3+jj)), outs[0].At(jj, ii), 1e-15)
		}
	}
}

func TestReferenceBroadcastAndBinary(t *testing.T) {
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float64, 2)
	y := fusion.Parameter(f, dtypes.Float64, 1)
	f.AddInput(x)
	f.AddInput(y)
	wide := fusion.Broadcast(y, true, false)
	f.AddOutput(fusion.Sub(x, wide))
	f.BindInputShapes([]shapes.Shape{
		shapes.Make(dtypes.Float64, 2, 3),
		shapes.Make(dtypes.Float64, 3),
	})

	xs := NewBuffer(shapes.Make(dtypes.Float64, 2, 3)).Fill(func(indices []int) float64 {
		return float64(10 * (1 + indices[0]))
	})
	ys := NewBuffer(shapes.Make(dtypes.Float64, 3)).Fill(func(indices []int) float64 {
		return float64(indices[0])
	})
	outs := Reference(f, []*Buffer{xs, ys})
	require.Len(t, outs, 1)
	for ii := 0; ii < 2; ii++ {
		for jj := 0; jj < 3; jj++ {
			assert.Equal(t, float64(10*(1+ii)-jj), outs[0].At(ii, jj))
		}
	}
}

func TestRandomInputsDeterministic(t *testing.T) {
	inputShapes := []shapes.Shape{
		shapes.Make(dtypes.Float32, 4, 5),
		shapes.Make(dtypes.Float32, 7),
	}
	a := RandomInputs(7, inputShapes)
	b := RandomInputs(7, inputShapes)
	require.Len(t, a, 2)
	for ii := range a {
		assert.Zero(t, a[ii].MaxAbsDiff(b[ii]))
	}
	c := RandomInputs(8, inputShapes)
	assert.NotZero(t, a[0].MaxAbsDiff(c[0]))
}
