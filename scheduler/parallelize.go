// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"github.com/gomlx/fuser/fusion"
)

// ParallelizeAllLike copies ref's parallel labels onto the targets, position
// by position: loop axis i of each target receives the label of ref's loop
// axis i. Positions beyond a target's loop rank are skipped.
//
// If kinds is non-empty only those label kinds are copied; ParallelNone and
// ParallelSerial are never copied. targets nil means every tensor in ref's
// fusion.
//
// Two passes may not disagree: overwriting a different label on a
// non-provisional target throws ErrConflictingParallelLabel (labels on
// provisional, borrowed schedules are expected casualties and are replaced
// silently).
func ParallelizeAllLike(ref *fusion.TensorView, targets []*fusion.TensorView, kinds ...fusion.ParallelType) {
	if targets == nil {
		targets = ref.Fusion().Tensors()
	}
	wanted := func(label fusion.ParallelType) bool {
		if label == fusion.ParallelNone || label == fusion.ParallelSerial {
			return false
		}
		if len(kinds) == 0 {
			return true
		}
		for _, k := range kinds {
			if k == label {
				return true
			}
		}
		return false
	}
	refLoop := ref.Loop()
	for _, tv := range targets {
		if tv.ID() == ref.ID() {
			continue
		}
		loop := tv.Loop()
		for pos := 0; pos < len(refLoop) && pos < len(loop); pos++ {
			label := refLoop[pos].ParallelType()
			if !wanted(label) {
				continue
			}
			existing := loop[pos].ParallelType()
			if existing == label {
				continue
			}
			if existing != fusion.ParallelNone && existing != fusion.ParallelSerial && !tv.IsProvisional() {
				throwf(ErrConflictingParallelLabel,
					"loop axis %d of %s already carries %s, cannot relabel to %s (like %s)",
					pos, tv.Name(), existing, label, ref.Name())
			}
			loop[pos].Parallelize(label)
		}
	}
}
