// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"github.com/gomlx/fuser/fusion"
)

// commonLoopPrefix returns how many leading loop axes producer and consumer
// share: same parallel label and compatible extents (a 1-extent axis pairs
// with anything, it iterates once). The prefix never extends across a
// vectorized axis of either side, a vector access is a single indivisible
// statement.
func commonLoopPrefix(producer, consumer *fusion.TensorView) int {
	pLoop, cLoop := producer.Loop(), consumer.Loop()
	n := min(len(pLoop), len(cLoop))
	for pos := 0; pos < n; pos++ {
		pa, ca := pLoop[pos], cLoop[pos]
		if pa.ParallelType() == fusion.ParallelVectorize || ca.ParallelType() == fusion.ParallelVectorize {
			return pos
		}
		if pa.ParallelType() != ca.ParallelType() {
			return pos
		}
		if pa.Extent() != ca.Extent() && pa.Extent() != 1 && ca.Extent() != 1 {
			return pos
		}
	}
	return n
}

// tileBoundary returns the loop position right after the leading grid/
// unswitch axes: the point where per-tile work begins. A tensor staged in
// shared memory is produced by the whole block and may not be inlined past
// this boundary.
func tileBoundary(tv *fusion.TensorView) int {
	for pos, axis := range tv.Loop() {
		if label := axis.ParallelType(); !label.IsBlock() && label != fusion.ParallelUnswitch {
			return pos
		}
	}
	return tv.NumLoopAxes()
}

// computeInlinePositions assigns every non-input tensor its deepest legal
// inline position: the longest loop prefix shared with all of its consumers,
// capped at the tile boundary for shared-memory tensors. Terminal outputs get
// position zero, they own their loop nest.
//
// Throws ErrInlineDependencyViolation when a shared-memory tensor and one of
// its consumers disagree on the grid axes themselves: the tile handoff then
// has no common block scope to synchronize in.
func computeInlinePositions(f *fusion.Fusion) map[fusion.TensorID]int {
	inlineAt := make(map[fusion.TensorID]int, f.NumTensors())
	for _, tv := range f.Tensors() {
		if f.IsInput(tv) {
			continue
		}
		consumers := f.ConsumersOf(tv)
		if len(consumers) == 0 {
			inlineAt[tv.ID()] = 0
			continue
		}
		pos := tv.NumLoopAxes()
		for _, op := range consumers {
			pos = min(pos, commonLoopPrefix(tv, op.Output()))
		}
		if tv.Memory() == fusion.MemoryShared {
			gridAxes := 0
			for _, axis := range tv.Loop() {
				if axis.ParallelType().IsBlock() {
					gridAxes++
				}
			}
			if pos < gridAxes {
				throwf(ErrInlineDependencyViolation,
					"shared tile %s and its consumers disagree on the grid axes (common prefix %d, grid axes %d)",
					tv.Name(), pos, gridAxes)
			}
			pos = min(pos, tileBoundary(tv))
		}
		inlineAt[tv.ID()] = pos
	}
	return inlineAt
}
