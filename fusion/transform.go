// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusion

import (
	"fmt"

	"github.com/gomlx/exceptions"

	"github.com/gomlx/fuser/types/xslices"
)

// Transform is one recorded step deriving a loop domain from a root domain.
//
// Records are replayable: the same sequence applied to another tensor's
// (aligned) root domain produces an equivalent loop structure there. They are
// also invertible on indices: UnmapIndex takes loop indices back through the
// record, which is how the emulator recovers root coordinates from a
// scheduled loop position.
type Transform interface {
	fmt.Stringer

	// ApplyTo replays the record on axes and returns the new axis list.
	// New IterDomains start unparallelized.
	ApplyTo(axes []*IterDomain) []*IterDomain

	// UnmapIndex maps indices of the post-record domain back to indices of
	// the pre-record domain.
	UnmapIndex(after []int) []int

	// Equivalent reports whether other performs the same transformation,
	// ignoring per-tensor captured extents.
	Equivalent(other Transform) bool

	// Clone returns a fresh instance with per-tensor captured state reset,
	// ready to be replayed onto another tensor.
	Clone() Transform
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// splitTransform splits axis into (axis outer, axis+1 inner), the inner with
// the given factor. The outer extent rounds up, the remainder is handled by
// bounds predication.
type splitTransform struct {
	axis, factor int
}

func (s *splitTransform) ApplyTo(axes []*IterDomain) []*IterDomain {
	in := axes[s.axis]
	// Broadcast axes carry their concretized (reference) extent and split
	// structurally like concrete ones, so index decomposition stays in
	// lockstep with the reference.
	outer := &IterDomain{extent: ceilDiv(in.extent, s.factor), broadcast: in.broadcast}
	inner := &IterDomain{extent: s.factor, broadcast: in.broadcast}
	out := make([]*IterDomain, 0, len(axes)+1)
	out = append(out, axes[:s.axis]...)
	out = append(out, outer, inner)
	out = append(out, axes[s.axis+1:]...)
	return out
}

func (s *splitTransform) UnmapIndex(after []int) []int {
	before := make([]int, 0, len(after)-1)
	before = append(before, after[:s.axis]...)
	before = append(before, after[s.axis]*s.factor+after[s.axis+1])
	before = append(before, after[s.axis+2:]...)
	return before
}

func (s *splitTransform) Equivalent(other Transform) bool {
	o, ok := other.(*splitTransform)
	return ok && o.axis == s.axis && o.factor == s.factor
}

func (s *splitTransform) Clone() Transform { return &splitTransform{axis: s.axis, factor: s.factor} }

func (s *splitTransform) String() string { return fmt.Sprintf("Split(%d, %d)", s.axis, s.factor) }

// mergeTransform merges axis and axis+1 into one axis.
//
// innerExtent is captured when the record is applied: it is this tensor's
// inner extent, needed to invert indices, and it differs from the reference's
// when the axis here is a broadcast placeholder.
type mergeTransform struct {
	axis        int
	innerExtent int
}

func (m *mergeTransform) ApplyTo(axes []*IterDomain) []*IterDomain {
	outer, inner := axes[m.axis], axes[m.axis+1]
	m.innerExtent = inner.extent
	merged := &IterDomain{
		extent:    outer.extent * inner.extent,
		broadcast: outer.broadcast && inner.broadcast,
	}
	out := make([]*IterDomain, 0, len(axes)-1)
	out = append(out, axes[:m.axis]...)
	out = append(out, merged)
	out = append(out, axes[m.axis+2:]...)
	return out
}

func (m *mergeTransform) UnmapIndex(after []int) []int {
	before := make([]int, 0, len(after)+1)
	before = append(before, after[:m.axis]...)
	before = append(before, after[m.axis]/m.innerExtent, after[m.axis]%m.innerExtent)
	before = append(before, after[m.axis+1:]...)
	return before
}

func (m *mergeTransform) Equivalent(other Transform) bool {
	o, ok := other.(*mergeTransform)
	return ok && o.axis == m.axis
}

func (m *mergeTransform) Clone() Transform { return &mergeTransform{axis: m.axis} }

func (m *mergeTransform) String() string { return fmt.Sprintf("Merge(%d)", m.axis) }

// reorderTransform permutes axes: the axis at old position i moves to
// position perm[i]. perm is always a full permutation; the user-facing
// Reorder normalizes partial maps into one.
type reorderTransform struct {
	perm []int
}

func (r *reorderTransform) ApplyTo(axes []*IterDomain) []*IterDomain {
	out := make([]*IterDomain, len(axes))
	for old, axis := range axes {
		out[r.perm[old]] = axis
	}
	return out
}

func (r *reorderTransform) UnmapIndex(after []int) []int {
	before := make([]int, len(after))
	for old, newPos := range r.perm {
		before[old] = after[newPos]
	}
	return before
}

func (r *reorderTransform) Equivalent(other Transform) bool {
	o, ok := other.(*reorderTransform)
	if !ok || len(o.perm) != len(r.perm) {
		return false
	}
	for ii, p := range r.perm {
		if o.perm[ii] != p {
			return false
		}
	}
	return true
}

func (r *reorderTransform) Clone() Transform {
	perm := make([]int, len(r.perm))
	copy(perm, r.perm)
	return &reorderTransform{perm: perm}
}

func (r *reorderTransform) String() string { return fmt.Sprintf("Reorder(%v)", r.perm) }

// normalizeReorder expands a partial old→new mapping (negative positions
// allowed) over rank axes into a full permutation: specified axes land
// exactly where asked, the remaining axes fill the remaining positions
// preserving their relative order.
func normalizeReorder(old2New map[int]int, rank int) []int {
	perm := xslices.SliceWithValue(rank, -1)
	newTaken := make([]bool, rank)
	for old, newPos := range old2New {
		old = adjustAxis(old, rank)
		newPos = adjustAxis(newPos, rank)
		if perm[old] != -1 {
			exceptions.Panicf("Reorder: axis %d mapped twice", old)
		}
		if newTaken[newPos] {
			exceptions.Panicf("Reorder: position %d assigned twice", newPos)
		}
		perm[old] = newPos
		newTaken[newPos] = true
	}
	free := 0
	for old := range perm {
		if perm[old] != -1 {
			continue
		}
		for newTaken[free] {
			free++
		}
		perm[old] = free
		newTaken[free] = true
	}
	return perm
}

func adjustAxis(axis, rank int) int {
	adjusted := axis
	if adjusted < 0 {
		adjusted += rank
	}
	if adjusted < 0 || adjusted >= rank {
		exceptions.Panicf("invalid axis %d for rank %d", axis, rank)
	}
	return adjusted
}

// applyTransforms replays records in order onto axes.
func applyTransforms(records []Transform, axes []*IterDomain) []*IterDomain {
	for _, rec := range records {
		axes = rec.ApplyTo(axes)
	}
	return axes
}
