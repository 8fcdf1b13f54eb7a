// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package emulator executes fusion DAGs on the host.
//
// It provides two execution paths over the same Buffer type: Reference runs
// the un-scheduled DAG in plain topological order and serves as the oracle,
// while Execute walks a scheduled Plan the way a GPU would -- block by block,
// through the loop domains, staging shared tiles and honoring swizzles and
// bounds predicates. Comparing the two validates a schedule end to end.
package emulator

import (
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"

	"github.com/gomlx/fuser/types/shapes"
)

// Buffer is a host-side row-major tensor. Values are read and written as
// float64 and rounded through the buffer's dtype on writes, so a Float16
// buffer loses precision exactly like device memory would.
type Buffer struct {
	shape shapes.Shape

	f16 []float16.Float16
	f32 []float32
	f64 []float64
}

// NewBuffer creates a zero-initialized buffer. Only floating point dtypes are
// supported: Float16, Float32 and Float64.
func NewBuffer(shape shapes.Shape) *Buffer {
	b := &Buffer{shape: shape}
	switch shape.DType {
	case dtypes.Float16:
		b.f16 = make([]float16.Float16, shape.Size())
	case dtypes.Float32:
		b.f32 = make([]float32, shape.Size())
	case dtypes.Float64:
		b.f64 = make([]float64, shape.Size())
	default:
		exceptions.Panicf("emulator.NewBuffer: unsupported dtype %s", shape.DType)
	}
	return b
}

// Shape returns the buffer's shape.
func (b *Buffer) Shape() shapes.Shape { return b.shape }

// At returns the element at the given indices, widened to float64.
func (b *Buffer) At(indices ...int) float64 {
	return b.Flat(b.shape.LinearIndex(indices))
}

// Set stores value at the given indices, rounding through the dtype.
func (b *Buffer) Set(value float64, indices ...int) {
	b.SetFlat(value, b.shape.LinearIndex(indices))
}

// Flat returns the element at the given row-major flat index.
func (b *Buffer) Flat(flatIdx int) float64 {
	switch {
	case b.f16 != nil:
		return float64(b.f16[flatIdx].Float32())
	case b.f32 != nil:
		return float64(b.f32[flatIdx])
	default:
		return b.f64[flatIdx]
	}
}

// SetFlat stores value at the given row-major flat index.
func (b *Buffer) SetFlat(value float64, flatIdx int) {
	switch {
	case b.f16 != nil:
		b.f16[flatIdx] = float16.Fromfloat32(float32(value))
	case b.f32 != nil:
		b.f32[flatIdx] = float32(value)
	default:
		b.f64[flatIdx] = value
	}
}

// Fill sets every element from fn, called with the element's indices.
func (b *Buffer) Fill(fn func(indices []int) float64) *Buffer {
	indices := make([]int, b.shape.Rank())
	for flatIdx := 0; flatIdx < b.shape.Size(); flatIdx++ {
		b.SetFlat(fn(indices), flatIdx)
		for axis := b.shape.Rank() - 1; axis >= 0; axis-- {
			indices[axis]++
			if indices[axis] < b.shape.Dimensions[axis] {
				break
			}
			indices[axis] = 0
		}
	}
	return b
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// FillRandom fills the buffer with uniform values in [0, 1) from rng.
func (b *Buffer) FillRandom(rng *rand.Rand) *Buffer {
	return b.Fill(func([]int) float64 { return rng.Float64() })
}

// MaxAbsDiff returns the largest absolute element difference to other, which
// must have the same shape.
func (b *Buffer) MaxAbsDiff(other *Buffer) float64 {
	if !b.shape.Equal(other.shape) {
		exceptions.Panicf("Buffer.MaxAbsDiff: shapes differ, %s vs %s", b.shape, other.shape)
	}
	maxDiff := 0.0
	for flatIdx := 0; flatIdx < b.shape.Size(); flatIdx++ {
		diff := b.Flat(flatIdx) - other.Flat(flatIdx)
		if diff < 0 {
			diff = -diff
		}
		if diff > maxDiff {
			maxDiff = diff
		}
	}
	return maxDiff
}
