// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package emulator

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/gomlx/fuser/types/shapes"
)

func TestBufferIndexingAndFill(t *testing.T) {
	b := NewBuffer(shapes.Make(dtypes.Float64, 2, 3))
	b.Fill(func(indices []int) float64 {
		return float64(indices[0]*10 + indices[1])
	})
	assert.Equal(t, 12.0, b.At(1, 2))
	assert.Equal(t, 12.0, b.Flat(5))
	b.Set(-1, 0, 1)
	assert.Equal(t, -1.0, b.Flat(1))
}

func TestBufferHalfPrecisionRounds(t *testing.T) {
	b := NewBuffer(shapes.Make(dtypes.Float16, 2))
	third := 1.0 / 3.0
	b.SetFlat(third, 0)
	want := float64(float16.Fromfloat32(float32(third)).Float32())
	assert.Equal(t, want, b.Flat(0))
	assert.NotEqual(t, third, b.Flat(0))
}

func TestBufferMaxAbsDiff(t *testing.T) {
	a := NewBuffer(shapes.Make(dtypes.Float32, 4)).Fill(func(indices []int) float64 {
		return float64(indices[0])
	})
	b := NewBuffer(shapes.Make(dtypes.Float32, 4)).Fill(func(indices []int) float64 {
		return float64(indices[0])
	})
	assert.Zero(t, a.MaxAbsDiff(b))
	b.SetFlat(2.5, 3)
	assert.Equal(t, 0.5, a.MaxAbsDiff(b))
}

func TestNewBufferRejectsUnsupportedDType(t *testing.T) {
	require.Panics(t, func() { NewBuffer(shapes.Make(dtypes.Int32, 4)) })
}
