// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/types/shapes"
)

// testParams keeps the loop spaces small: 8x8 tiles over 16 threads with
// 2-wide vectors, leaving an unroll factor of 2.
func testParams() Params {
	return Params{TileSize: 8, ThreadsPerBlock: 16, MaxVectorWidth: 2}
}

func TestPlanTiles(t *testing.T) {
	d := planTiles(DefaultParams(), dtypes.Float32)
	assert.Equal(t, 4, d.Vector)
	assert.Equal(t, 2, d.Unroll)
	assert.Equal(t, 32*32, d.Unroll*d.ThreadsPerBlock*d.Vector)

	// 4 x float64 is a 32-byte access: falls back to 2-wide.
	d = planTiles(DefaultParams(), dtypes.Float64)
	assert.Equal(t, 2, d.Vector)
	assert.Equal(t, 4, d.Unroll)

	d = planTiles(testParams(), dtypes.Float32)
	assert.Equal(t, 2, d.Vector)
	assert.Equal(t, 2, d.Unroll)

	// 8x8 tile cannot feed 128 threads even scalar.
	e := exceptions.TryCatch[*schedulerError](func() {
		planTiles(Params{TileSize: 8, ThreadsPerBlock: 128, MaxVectorWidth: 4}, dtypes.Float32)
	})
	require.NotNil(t, e)
	assert.True(t, errors.Is(e.err, ErrNoValidTiling))
}

func TestScheduleTranspose2D(t *testing.T) {
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float32, 2)
	f.AddInput(x)
	out := fusion.Transpose(fusion.Sin(x), 0, 1)
	f.AddOutput(out)

	plan, err := ScheduleTransposeWithParams(f,
		[]shapes.Shape{shapes.Make(dtypes.Float32, 24, 20)}, testParams())
	require.NoError(t, err)

	// 24x20 input transposed to 20x24, tiled 8x8 with padding: 3*3 tiles.
	assert.Equal(t, 9, plan.Launch.GridX)
	assert.Equal(t, 16, plan.Launch.BlockDim)
	require.NotNil(t, plan.SecondGroup)

	// The input side of the chain is the main group: it anchors the grid.
	assert.Equal(t, x.ID(), plan.Reference.ID())
	labels := make([]fusion.ParallelType, 0, out.NumLoopAxes())
	for _, axis := range out.Loop() {
		labels = append(labels, axis.ParallelType())
	}
	assert.Equal(t, []fusion.ParallelType{
		fusion.ParallelBIDx, fusion.ParallelUnswitch,
		fusion.ParallelUnroll, fusion.ParallelTIDx, fusion.ParallelVectorize,
	}, labels)

	// The transpose writes the output's cache in the input's order and the
	// copy-out reads it in the output's order: that cache crosses the flip
	// and is staged in shared memory, swizzled, one 8x8 float32 tile.
	require.Len(t, plan.SharedCaches, 1)
	cache := plan.SharedCaches[0]
	assert.Equal(t, plan.OutputCaches[out.ID()].ID(), cache.ID())
	assert.Equal(t, fusion.MemoryShared, cache.Memory())
	require.NotNil(t, cache.TileSwizzle())
	assert.Equal(t, 8, cache.TileSwizzle().Period)
	assert.Equal(t, uintptr(8*8*4), plan.Launch.SharedMemBytes)

	// The shared tile is produced by the whole block: inline capped at the
	// grid/unswitch boundary.
	assert.Equal(t, 2, plan.InlineAt[cache.ID()])

	// Every tensor's grid axis decomposes identically.
	for _, tv := range f.Tensors() {
		assert.Equal(t, 9, tv.Axis(0).Extent(), "tensor %s", tv.Name())
		assert.Equal(t, fusion.ParallelBIDx, tv.Axis(0).ParallelType(), "tensor %s", tv.Name())
	}
}

func TestScheduleElementwiseOnly(t *testing.T) {
	// No transpose anywhere: a single layout group, still tiled 2D.
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float32, 2)
	f.AddInput(x)
	f.AddOutput(fusion.Relu(fusion.Neg(x)))

	plan, err := ScheduleTransposeWithParams(f,
		[]shapes.Shape{shapes.Make(dtypes.Float32, 16, 24)}, testParams())
	require.NoError(t, err)
	assert.Nil(t, plan.SecondGroup)
	assert.Empty(t, plan.SharedCaches)
	assert.Equal(t, 6, plan.Launch.GridX)
}

func TestScheduleRejectsRank1(t *testing.T) {
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float32, 1)
	f.AddInput(x)
	f.AddOutput(fusion.Sin(x))

	_, err := ScheduleTransposeWithParams(f,
		[]shapes.Shape{shapes.Make(dtypes.Float32, 1024)}, testParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSchedulableTranspose))
}

func TestScheduleNoReferenceTensor(t *testing.T) {
	// The second layout group's only input is 2D and cannot index the
	// fusion's third axis: no tensor can anchor that group's schedule.
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float32, 2)
	y := fusion.Parameter(f, dtypes.Float32, 3)
	f.AddInput(x)
	f.AddInput(y)
	f.AddOutput(fusion.Add(fusion.Broadcast(x, false, false, true), y))

	_, err := ScheduleTransposeWithParams(f, []shapes.Shape{
		shapes.Make(dtypes.Float32, 16, 24),
		shapes.Make(dtypes.Float32, 16, 24, 8),
	}, testParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoReferenceTensor))
}

func TestScheduleConcreteSize1Covers(t *testing.T) {
	// Same shape story as TestScheduleNoReferenceTensor, but the size-1
	// axis is a concrete input axis, not an inserted broadcast: it can be
	// indexed, so the input is a valid reference and scheduling succeeds.
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float32, 3)
	y := fusion.Parameter(f, dtypes.Float32, 3)
	f.AddInput(x)
	f.AddInput(y)
	out := fusion.Add(x, y)
	f.AddOutput(out)

	plan, err := ScheduleTransposeWithParams(f, []shapes.Shape{
		shapes.Make(dtypes.Float32, 16, 24, 1),
		shapes.Make(dtypes.Float32, 16, 24, 8),
	}, testParams())
	require.NoError(t, err)
	require.NotNil(t, plan.SecondGroup)
	assert.Equal(t, x.ID(), plan.SecondGroup.Reference.ID())
	// The size-1 input itself cannot hold an 8x8 tile, but the addition's
	// operand and result caches cross between the two layout orders and do
	// span both tile axes: those get staged.
	require.Len(t, plan.SharedCaches, 2)
	assert.Equal(t, plan.InputCaches[y.ID()].ID(), plan.SharedCaches[0].ID())
	assert.Equal(t, plan.OutputCaches[out.ID()].ID(), plan.SharedCaches[1].ID())
	assert.Equal(t, fusion.MemoryLocal, plan.InputCaches[x.ID()].Memory())
}

func TestScheduleSize1AxisOnSecondReference(t *testing.T) {
	// Both inputs carry a concrete size-1 axis and the second group's
	// reference is the one whose size-1 axis faces the fusion's widest
	// extent. Its replayed loop must stay in sync with the replay records
	// so the second tiling pass can be authored on it and propagated.
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float32, 3)
	y := fusion.Parameter(f, dtypes.Float32, 3)
	f.AddInput(x)
	f.AddInput(y)
	out := fusion.Add(x, y)
	f.AddOutput(out)

	plan, err := ScheduleTransposeWithParams(f, []shapes.Shape{
		shapes.Make(dtypes.Float32, 16, 1, 24),
		shapes.Make(dtypes.Float32, 16, 16, 1),
	}, testParams())
	require.NoError(t, err)
	require.NotNil(t, plan.SecondGroup)
	assert.Equal(t, y.ID(), plan.SecondGroup.Reference.ID())

	// y never varies along the tile's row axis: nothing crosses the layout
	// flip with a full tile, so no cache is staged in shared memory.
	assert.Empty(t, plan.SharedCaches)
	assert.Equal(t, uintptr(0), plan.Launch.SharedMemBytes)
	assert.Equal(t, fusion.MemoryLocal, plan.InputCaches[y.ID()].Memory())

	// 16 x ceil(16/8) x ceil(24/8) fused blocks; every tensor, the demoted
	// reference included, decomposes the grid axis identically.
	assert.Equal(t, 96, plan.Launch.GridX)
	for _, tv := range f.Tensors() {
		assert.Equal(t, out.NumLoopAxes(), tv.NumLoopAxes(), "tensor %s", tv.Name())
		assert.Equal(t, 96, tv.Axis(0).Extent(), "tensor %s", tv.Name())
		assert.Equal(t, fusion.ParallelBIDx, tv.Axis(0).ParallelType(), "tensor %s", tv.Name())
	}
}

func TestScheduleTransposeMidChain(t *testing.T) {
	// The transpose sits between an input and a binary op. The layout flip
	// happens at the input's read cache, which must be the staged tile;
	// the output's write cache stays in registers.
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float32, 2)
	y := fusion.Parameter(f, dtypes.Float32, 2)
	f.AddInput(x)
	f.AddInput(y)
	out1 := fusion.Add(fusion.Transpose(x, 0, 1), y)
	out2 := fusion.Cos(x)
	f.AddOutput(out1)
	f.AddOutput(out2)

	plan, err := ScheduleTransposeWithParams(f, []shapes.Shape{
		shapes.Make(dtypes.Float32, 16, 24),
		shapes.Make(dtypes.Float32, 24, 16),
	}, testParams())
	require.NoError(t, err)

	require.Len(t, plan.SharedCaches, 1)
	assert.Equal(t, plan.InputCaches[x.ID()].ID(), plan.SharedCaches[0].ID())
	assert.Equal(t, fusion.MemoryLocal, plan.OutputCaches[out1.ID()].Memory())
	assert.Equal(t, fusion.MemoryLocal, plan.OutputCaches[out2.ID()].Memory())
}

func TestParallelizeAllLikeConflicts(t *testing.T) {
	f := fusion.New()
	x := fusion.ParameterWithDims(f, dtypes.Float32, 8, 8)
	a := fusion.Neg(x)
	b := fusion.Neg(a)
	a.Parallelize(0, fusion.ParallelTIDy)
	b.Parallelize(0, fusion.ParallelTIDx)

	e := exceptions.TryCatch[*schedulerError](func() {
		ParallelizeAllLike(b, []*fusion.TensorView{a})
	})
	require.NotNil(t, e)
	assert.True(t, errors.Is(e.err, ErrConflictingParallelLabel))

	// Filtered kinds skip the conflicting label entirely.
	e = exceptions.TryCatch[*schedulerError](func() {
		ParallelizeAllLike(b, []*fusion.TensorView{a}, fusion.ParallelBIDx)
	})
	assert.Nil(t, e)
}

func TestSpanningTreePrefersInformativePaths(t *testing.T) {
	// Two paths lead from the output back to x: directly, and through a
	// rank-losing broadcast chain. The alignment must survive via the
	// direct path.
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float32, 3)
	f.AddInput(x)
	squeezed := fusion.Parameter(f, dtypes.Float32, 2)
	f.AddInput(squeezed)
	wide := fusion.Broadcast(squeezed, true, false, false)
	out := fusion.Add(fusion.Add(x, wide), x)
	f.AddOutput(out)
	f.BindInputShapes([]shapes.Shape{
		shapes.Make(dtypes.Float32, 4, 6, 8),
		shapes.Make(dtypes.Float32, 6, 8),
	})

	aligns := alignmentsTo(out)
	assert.Equal(t, []int{0, 1, 2}, aligns[x.ID()])
	assert.Equal(t, []int{-1, 0, 1}, aligns[squeezed.ID()])
}

// loopSignature captures every tensor's loop domain, extents and parallel
// labels included, keyed by tensor name.
func loopSignature(f *fusion.Fusion) map[string][]string {
	sig := make(map[string][]string)
	for _, tv := range f.Tensors() {
		axes := make([]string, 0, tv.NumLoopAxes())
		for _, axis := range tv.Loop() {
			axes = append(axes, axis.String())
		}
		sig[tv.Name()] = axes
	}
	return sig
}

func TestPropagateTransformsIdempotent(t *testing.T) {
	// Propagating the same reference schedule a second time must land every
	// tensor on the exact same loop domains: replay always restarts from the
	// root domain, so repeated passes cannot drift.
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float32, 2)
	f.AddInput(x)
	f.AddOutput(fusion.Transpose(fusion.Sin(x), 0, 1))
	f.BindInputShapes([]shapes.Shape{shapes.Make(dtypes.Float32, 24, 20)})

	x.Split(1, 8)
	x.Reorder(map[int]int{2: -1})
	x.Split(0, 8)
	x.Reorder(map[int]int{1: -1})
	x.Merge(0)
	x.Parallelize(0, fusion.ParallelBIDx)

	PropagateTransforms(x, SelectAll, f.NextPassSeq(), SelectAll)
	ParallelizeAllLike(x, nil)
	want := loopSignature(f)

	PropagateTransforms(x, SelectAll, f.NextPassSeq(), SelectAll)
	ParallelizeAllLike(x, nil)
	assert.Equal(t, want, loopSignature(f))
}

func TestGroupMembersShareInnermostAxis(t *testing.T) {
	// Every keyed member of a layout group iterates the same innermost
	// fusion axis, expressed in frame coordinates; keyless tensors are
	// absorbed by adjacency and may land anywhere.
	f := fusion.New()
	x := fusion.Parameter(f, dtypes.Float32, 2)
	y := fusion.Parameter(f, dtypes.Float32, 2)
	f.AddInput(x)
	f.AddInput(y)
	out1 := fusion.Add(fusion.Transpose(x, 0, 1), y)
	out2 := fusion.Cos(x)
	f.AddOutput(out1)
	f.AddOutput(out2)
	f.BindInputShapes([]shapes.Shape{
		shapes.Make(dtypes.Float32, 16, 24),
		shapes.Make(dtypes.Float32, 24, 16),
	})

	frame := chooseFrame(f)
	aligns := alignmentsTo(frame)
	groups := buildGroups(f, aligns)
	require.Len(t, groups, 2)
	assert.NotEqual(t, groups[0].Key, groups[1].Key)
	for _, g := range groups {
		for _, tv := range g.Members {
			key := groupKey(tv, aligns[tv.ID()])
			if key < 0 {
				continue
			}
			assert.Equal(t, g.Key, key, "tensor %s", tv.Name())
		}
	}
}
