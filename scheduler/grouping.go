// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"sort"

	"k8s.io/klog/v2"

	"github.com/gomlx/fuser/fusion"
)

// Group is a set of tensors agreeing on which fusion axis is innermost in
// their memory layout. The key is a root axis of the frame tensor (see
// chooseFrame); two groups always have distinct keys. Tensors a transpose
// separates land in different groups, and the scheduler's job is to bridge
// the two largest groups through staged tiles.
type Group struct {
	// Key is the frame root axis that is innermost for this group's
	// members; -1 collects tensors with no innermost axis of their own
	// (scalars and all-broadcast tensors), which are absorbed by a
	// neighboring group.
	Key int

	// Members in tensor creation order.
	Members []*fusion.TensorView

	// Reference is the member schedules are authored on; nil for groups
	// without fusion inputs or outputs (they are only ever scheduled by
	// propagation from other groups).
	Reference *fusion.TensorView

	// ioElems ranks groups: total elements of input/output members.
	ioElems int
}

// Has returns whether tv is a member of the group.
func (g *Group) Has(tv *fusion.TensorView) bool {
	for _, m := range g.Members {
		if m.ID() == tv.ID() {
			return true
		}
	}
	return false
}

// tilableRank counts axes with more than one element; broadcast and size-1
// axes contribute no iteration space worth tiling.
func tilableRank(tv *fusion.TensorView) int {
	rank := 0
	for _, axis := range tv.Root() {
		if !axis.IsBroadcast() && axis.Extent() != 1 {
			rank++
		}
	}
	return rank
}

// innerAxis returns tv's own innermost meaningful root axis: the last one
// with more than one element. -1 when there is none.
func innerAxis(tv *fusion.TensorView) int {
	root := tv.Root()
	for axis := len(root) - 1; axis >= 0; axis-- {
		if !root[axis].IsBroadcast() && root[axis].Extent() != 1 {
			return axis
		}
	}
	return -1
}

// chooseFrame picks the tensor whose root domain serves as the common
// coordinate system for grouping and tile-axis bookkeeping: the
// highest-ranked fusion input or output, preferring outputs, then earlier
// creation on ties. Outputs see the fusion's full iteration space most often,
// which keeps alignments information-rich.
func chooseFrame(f *fusion.Fusion) *fusion.TensorView {
	var frame *fusion.TensorView
	better := func(tv, cur *fusion.TensorView, isOutput bool) bool {
		if cur == nil {
			return true
		}
		if tv.Rank() != cur.Rank() {
			return tv.Rank() > cur.Rank()
		}
		curIsOutput := f.IsOutput(cur)
		if isOutput != curIsOutput {
			return isOutput
		}
		return tv.ID() < cur.ID()
	}
	for _, tv := range f.Outputs() {
		if better(tv, frame, true) {
			frame = tv
		}
	}
	for _, tv := range f.Inputs() {
		if better(tv, frame, false) {
			frame = tv
		}
	}
	return frame
}

// groupKey maps tv's own innermost axis into frame coordinates; -1 when tv
// has no innermost axis or the frame alignment does not reach it.
func groupKey(tv *fusion.TensorView, align []int) int {
	own := innerAxis(tv)
	if own < 0 {
		return -1
	}
	for frameAxis, ownAxis := range align {
		if ownAxis == own {
			return frameAxis
		}
	}
	return -1
}

// buildGroups partitions the fusion's tensors by innermost-axis identity,
// expressed in frame coordinates. Tensors without a key of their own
// (scalars, all-broadcast tensors, tensors the frame alignment cannot reach)
// join the group of their producer's first input, or failing that of their
// first consumer, so every tensor lands somewhere deterministic.
//
// Returns the groups sorted for scheduling: groups holding fusion inputs or
// outputs first, larger total input/output elements first, discovery order on
// ties. The first group is the main group, the second (when present) the one
// scheduled with its own inner pass.
func buildGroups(f *fusion.Fusion, aligns map[fusion.TensorID][]int) []*Group {
	byKey := make(map[int]*Group)
	groupOf := make(map[fusion.TensorID]*Group)
	var groups []*Group

	assign := func(tv *fusion.TensorView, g *Group) {
		g.Members = append(g.Members, tv)
		groupOf[tv.ID()] = g
		if f.IsInput(tv) || f.IsOutput(tv) {
			size := 1
			for _, axis := range tv.Root() {
				size *= axis.Extent()
			}
			g.ioElems += size
		}
	}

	var orphans []*fusion.TensorView
	for _, tv := range f.Tensors() {
		key := groupKey(tv, aligns[tv.ID()])
		if key < 0 {
			orphans = append(orphans, tv)
			continue
		}
		g := byKey[key]
		if g == nil {
			g = &Group{Key: key}
			byKey[key] = g
			groups = append(groups, g)
		}
		assign(tv, g)
	}

	// Orphans inherit a neighbor's group. Two sweeps handle chains of
	// orphans on either side of a grouped tensor.
	for sweep := 0; sweep < 2 && len(orphans) > 0; sweep++ {
		var remaining []*fusion.TensorView
		for _, tv := range orphans {
			g := neighborGroup(f, tv, groupOf)
			if g == nil {
				remaining = append(remaining, tv)
				continue
			}
			assign(tv, g)
		}
		orphans = remaining
	}
	if len(orphans) > 0 && len(groups) > 0 {
		for _, tv := range orphans {
			assign(tv, groups[0])
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		gi, gj := groups[i], groups[j]
		if (gi.ioElems > 0) != (gj.ioElems > 0) {
			return gi.ioElems > 0
		}
		return gi.ioElems > gj.ioElems
	})
	if klog.V(1).Enabled() {
		for ii, g := range groups {
			klog.Infof("layout group #%d: key=%d members=%d ioElems=%d", ii, g.Key, len(g.Members), g.ioElems)
		}
	}
	return groups
}

// neighborGroup returns the group of tv's producer's first grouped input, or
// of the first grouped consumer output.
func neighborGroup(f *fusion.Fusion, tv *fusion.TensorView, groupOf map[fusion.TensorID]*Group) *Group {
	if op := tv.Op(); op != nil {
		for _, in := range op.Inputs() {
			if g := groupOf[in.ID()]; g != nil {
				return g
			}
		}
	}
	for _, op := range f.ConsumersOf(tv) {
		if g := groupOf[op.Output().ID()]; g != nil {
			return g
		}
	}
	return nil
}
