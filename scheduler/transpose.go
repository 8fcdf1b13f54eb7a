// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scheduler lowers a fusion of elementwise and transpose ops into a
// single tiled kernel plan.
//
// The strategy mirrors what a hand-written transposing kernel does: partition
// tensors into layout groups by innermost axis, pick one reference tensor per
// group, tile the two competing innermost axes into square tiles, stage the
// tiles of the group that disagrees with the main group through shared memory
// (swizzled to dodge bank conflicts), and run three scheduling passes:
//
//  1. a tiling pass on the main reference, propagated everywhere, that fixes
//     the grid structure;
//  2. an inner pass on the second group's reference, ordering its tile loops
//     along its own innermost axis, propagated to that group and its read
//     caches;
//  3. an inner pass on the main reference for everything else.
//
// Finally every tensor is inlined as deep as its consumers allow. The result
// is a Plan the emulator (or an emitter) consumes.
package scheduler

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/types/shapes"
)

// Plan is the scheduled form of a fusion: every tensor carries its final loop
// domain, parallel labels, memory space and, for shared tiles, its swizzle.
type Plan struct {
	Fusion *fusion.Fusion
	Params Params
	Tiles  TileDecision
	Launch LaunchParams

	// Groups in scheduling order; Groups[0] is the main group. SecondGroup
	// is Groups[1] when a second layout direction exists, else nil.
	Groups      []*Group
	SecondGroup *Group

	// Reference is the tensor the grid schedule was authored on.
	Reference *fusion.TensorView

	// InputCaches and OutputCaches map fusion inputs/outputs to their
	// boundary caches; SharedCaches lists the caches staged in shared memory.
	InputCaches  map[fusion.TensorID]*fusion.TensorView
	OutputCaches map[fusion.TensorID]*fusion.TensorView
	SharedCaches []*fusion.TensorView

	// InlineAt gives each non-input tensor the number of outer loops it
	// shares with its consumers' nests.
	InlineAt map[fusion.TensorID]int
}

// String returns a multi-line dump of the plan: launch configuration, tile
// decision and one line per tensor.
func (p *Plan) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan{%s, %s}\n", p.Tiles, p.Launch)
	for _, tv := range p.Fusion.Tensors() {
		fmt.Fprintf(&sb, "  %s", tv)
		if pos, ok := p.InlineAt[tv.ID()]; ok {
			fmt.Fprintf(&sb, " inline@%d", pos)
		}
		if sw := tv.TileSwizzle(); sw != nil {
			fmt.Fprintf(&sb, " swizzle(%d,%d)%%%d", sw.RootA, sw.RootB, sw.Period)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ScheduleTranspose schedules f with the default parameters. See
// ScheduleTransposeWithParams.
func ScheduleTranspose(f *fusion.Fusion, inputShapes []shapes.Shape) (*Plan, error) {
	return ScheduleTransposeWithParams(f, inputShapes, DefaultParams())
}

// ScheduleTransposeWithParams binds the input shapes and schedules f into a
// tiled, shared-memory-staged kernel plan. On failure the fusion's schedules
// are in an unspecified state and the error matches one of the package's
// sentinel errors.
func ScheduleTransposeWithParams(f *fusion.Fusion, inputShapes []shapes.Shape, params Params) (plan *Plan, err error) {
	if e := exceptions.TryCatch[*schedulerError](func() {
		plan = scheduleTranspose(f, inputShapes, params)
	}); e != nil {
		return nil, e.err
	}
	return plan, nil
}

func scheduleTranspose(f *fusion.Fusion, inputShapes []shapes.Shape, params Params) *Plan {
	f.BindInputShapes(inputShapes)

	maxRank := 0
	for _, tv := range append(f.Inputs(), f.Outputs()...) {
		maxRank = max(maxRank, tilableRank(tv))
	}
	if maxRank < 2 {
		throwf(ErrNoSchedulableTranspose, "no fusion input or output has two non-trivial axes")
	}

	frame := chooseFrame(f)
	aligns := alignmentsTo(frame)
	groups := buildGroups(f, aligns)
	for _, g := range groups {
		selectReference(f, frame, aligns, g)
	}
	group1 := groups[0]
	ref1 := group1.Reference
	if ref1 == nil {
		throwf(ErrNoReferenceTensor, "main layout group has no input or output member")
	}
	if tilableRank(ref1) < 2 {
		throwf(ErrNoSchedulableTranspose, "reference %s has fewer than two non-trivial axes", ref1.Name())
	}
	var group2 *Group
	if len(groups) > 1 && groups[1].Reference != nil && groups[1].Key != group1.Key {
		group2 = groups[1]
	}
	klog.V(1).Infof("scheduling over frame %s, reference %s, second group: %v",
		frame.Name(), ref1.Name(), group2 != nil)

	tiles := planTiles(params, widestDType(f))
	cc := insertCaches(f)
	aligns = alignmentsTo(frame) // Caches are tensors too now.

	// Only the fusion boundary lives in global memory; everything computed
	// in between stays in registers unless staging promotes it.
	for _, tv := range f.Tensors() {
		if !f.IsInput(tv) && !f.IsOutput(tv) && tv.Memory() == fusion.MemoryGlobal {
			tv.SetMemoryType(fusion.MemoryLocal)
		}
	}

	// The two tile axes, in frame coordinates and on ref1.
	rowFrame := group1.Key // Innermost of the main group, stays innermost.
	colFrame := -1
	if group2 != nil {
		colFrame = group2.Key
	} else {
		// Single layout direction: tile the reference's next axis out.
		refAlign := aligns[ref1.ID()]
		own := innerAxis(ref1)
		for axis := own - 1; axis >= 0; axis-- {
			if ref1.Root()[axis].IsBroadcast() || ref1.Root()[axis].Extent() == 1 {
				continue
			}
			for frameAxis, ownAxis := range refAlign {
				if ownAxis == axis {
					colFrame = frameAxis
				}
			}
			break
		}
	}
	if colFrame < 0 {
		throwf(ErrNoSchedulableTranspose, "could not find a second tile axis for %s", ref1.Name())
	}

	ref1Align := aligns[ref1.ID()]
	p1, p2 := ref1Align[rowFrame], ref1Align[colFrame]

	// Pass 1: grid structure on ref1, propagated to the whole fusion.
	// [.., colAxis, .., rowAxis, ..] becomes [fused, unswitch, Tcol, Trow].
	ref1.Split(p2, tiles.Tile)
	ref1.Reorder(map[int]int{p2 + 1: -1})
	ref1.Split(p1, tiles.Tile)
	ref1.Reorder(map[int]int{p1 + 1: -1})
	for ii := ref1.NumLoopAxes() - 2; ii > 1; ii-- {
		ref1.Merge(0)
	}
	ref1.Split(0, 1)
	ref1.Parallelize(0, fusion.ParallelBIDx)
	ref1.Parallelize(1, fusion.ParallelUnswitch)

	PropagateTransforms(ref1, SelectAll, f.NextPassSeq(), SelectAll)
	ParallelizeAllLike(ref1, nil, fusion.ParallelBIDx, fusion.ParallelUnswitch)

	sides := scheduleSides(f, cc, group2)
	var sharedCaches []*fusion.TensorView
	var ownSet2 []*fusion.TensorView
	if group2 != nil {
		sharedCaches = stageSharedTiles(f, sides, aligns, rowFrame, colFrame, tiles.Tile)

		// Pass 2: the second group's tile loops, ordered along its own
		// innermost axis. Owned by everything written on that side;
		// tensors that merely borrow the shape stay provisional.
		ref2 := group2.Reference
		ref2.Reorder(map[int]int{-1: -2})
		scheduleTileLoops(ref2, tiles)

		for _, tv := range f.Tensors() {
			if sides[tv.ID()] == 2 {
				ownSet2 = append(ownSet2, tv)
			}
		}
		var vec2 []*fusion.TensorView
		for _, in := range f.Inputs() {
			if cache := cc.in[in.ID()]; cache != nil && sides[in.ID()] == 2 {
				vec2 = append(vec2, cache)
			}
		}
		for _, out := range f.Outputs() {
			if sides[out.ID()] == 2 {
				vec2 = append(vec2, out)
			}
		}
		PropagateTransforms(ref2, AllExcept(ref1), f.NextPassSeq(), memberOf(ownSet2))
		ParallelizeAllLike(ref2, ownSet2, fusion.ParallelTIDx)
		ParallelizeAllLike(ref2, vec2, fusion.ParallelVectorize, fusion.ParallelUnroll)
	}

	// Pass 3: the main group's tile loops, for everything pass 2 does not own.
	scheduleTileLoops(ref1, tiles)
	sel3 := AllExcept(ownSet2...)
	PropagateTransforms(ref1, sel3, f.NextPassSeq(), sel3)
	var own3, vec3 []*fusion.TensorView
	for _, tv := range f.Tensors() {
		if sel3(tv) && tv.ID() != ref1.ID() {
			own3 = append(own3, tv)
		}
	}
	for _, in := range f.Inputs() {
		if cache := cc.in[in.ID()]; cache != nil && sides[in.ID()] == 1 {
			vec3 = append(vec3, cache)
		}
	}
	for _, out := range f.Outputs() {
		if sides[out.ID()] == 1 {
			vec3 = append(vec3, out)
		}
	}
	ParallelizeAllLike(ref1, own3, fusion.ParallelTIDx)
	ParallelizeAllLike(ref1, vec3, fusion.ParallelVectorize, fusion.ParallelUnroll)

	inlineAt := computeInlinePositions(f)

	var sharedBytes uintptr
	for _, cache := range sharedCaches {
		sharedBytes += uintptr(tiles.Tile*tiles.Tile) * cache.DType().Memory()
	}
	plan := &Plan{
		Fusion:       f,
		Params:       params,
		Tiles:        tiles,
		Groups:       groups,
		SecondGroup:  group2,
		Reference:    ref1,
		InputCaches:  cc.in,
		OutputCaches: cc.out,
		SharedCaches: sharedCaches,
		InlineAt:     inlineAt,
		Launch: LaunchParams{
			GridX:          ref1.Axis(0).Extent(),
			BlockDim:       tiles.ThreadsPerBlock,
			SharedMemBytes: sharedBytes,
		},
	}
	klog.V(1).Infof("scheduled: %s", plan.Launch)
	return plan
}

// scheduleTileLoops factors a reference's trailing tile pair
// [.., Ta, Tb] into [.., unroll, threads, vector] and labels the axes. The
// innermost loop axis before the call must be the axis the reference wants
// contiguous accesses on.
func scheduleTileLoops(ref *fusion.TensorView, tiles TileDecision) {
	ref.Merge(-2)
	ref.Split(-1, tiles.Vector)
	ref.Split(-2, tiles.ThreadsPerBlock)
	ref.Parallelize(-1, fusion.ParallelVectorize)
	ref.Parallelize(-2, fusion.ParallelTIDx)
	ref.Parallelize(-3, fusion.ParallelUnroll)
}

// memberOf returns a Selector admitting exactly the given tensors.
func memberOf(tvs []*fusion.TensorView) Selector {
	set := make(map[fusion.TensorID]bool, len(tvs))
	for _, tv := range tvs {
		set[tv.ID()] = true
	}
	return func(tv *fusion.TensorView) bool { return set[tv.ID()] }
}
