// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"github.com/gomlx/fuser/fusion"
)

// coversFusion reports whether candidate's root domain reaches every
// meaningful frame axis with a non-broadcast axis of its own. A size-1
// concrete axis still covers its frame axis (the candidate merely iterates it
// once); an axis the candidate only knows as a broadcast does not, since a
// schedule authored on it could not index the real extent.
func coversFusion(candidate *fusion.TensorView, frame *fusion.TensorView, align []int) bool {
	for frameAxis, frameID := range frame.Root() {
		if frameID.IsBroadcast() || frameID.Extent() == 1 {
			continue
		}
		ownAxis := align[frameAxis]
		if ownAxis < 0 || candidate.Root()[ownAxis].IsBroadcast() {
			return false
		}
	}
	return true
}

// selectReference picks the tensor a group's schedule is authored on: a
// fusion input or output member covering the whole fusion's iteration space.
// Preference goes to higher rank, then outputs over inputs, then earlier
// creation. Throws ErrNoReferenceTensor when the group has input/output
// members but none of them covers the fusion.
//
// Groups without input/output members get no reference and are left to be
// scheduled by propagation from other groups.
func selectReference(f *fusion.Fusion, frame *fusion.TensorView, aligns map[fusion.TensorID][]int, g *Group) {
	var best *fusion.TensorView
	sawCandidate := false
	for _, tv := range g.Members {
		if tv.IsCache() || (!f.IsInput(tv) && !f.IsOutput(tv)) {
			continue
		}
		sawCandidate = true
		if !coversFusion(tv, frame, aligns[tv.ID()]) {
			continue
		}
		if best == nil ||
			tv.Rank() > best.Rank() ||
			(tv.Rank() == best.Rank() && f.IsOutput(tv) && !f.IsOutput(best)) {
			best = tv
		}
	}
	if best == nil && sawCandidate {
		throwf(ErrNoReferenceTensor,
			"layout group keyed on fusion axis %d: no input or output member spans the fusion's full iteration space", g.Key)
	}
	g.Reference = best
}
