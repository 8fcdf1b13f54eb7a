// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"k8s.io/klog/v2"

	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/types/xslices"
)

// Selector gates which tensors a propagation pass may traverse and rewrite.
// Propagation never routes through a deselected tensor: deselecting a cut
// vertex leaves the far side untouched.
type Selector func(tv *fusion.TensorView) bool

// SelectAll admits every tensor.
func SelectAll(*fusion.TensorView) bool { return true }

// AllExcept admits every tensor not in the given set.
func AllExcept(exclude ...*fusion.TensorView) Selector {
	set := make(map[fusion.TensorID]bool, len(exclude))
	for _, tv := range exclude {
		set[tv.ID()] = true
	}
	return func(tv *fusion.TensorView) bool { return !set[tv.ID()] }
}

// treeNode is one tensor reached by the spanning tree, together with its
// alignment to the tree root's root domain: align[r] is this tensor's root
// axis corresponding to root axis r of the tree root, or -1 when the axis has
// no counterpart here.
type treeNode struct {
	tv    *fusion.TensorView
	align []int
}

// spanningTree walks the fusion from ref along op edges, visiting each
// selected tensor once. Among the frontier edges it always expands the one
// whose composed alignment preserves the most root axes, so information-rich
// paths win over paths through rank-reducing or broadcast bridges. Ties break
// on op creation order, keeping the traversal deterministic.
//
// The first node is ref itself with the identity alignment.
func spanningTree(ref *fusion.TensorView, selector Selector) []treeNode {
	f := ref.Fusion()
	visited := make(map[fusion.TensorID][]int)

	identity := xslices.Iota(0, ref.Rank())
	order := []treeNode{{tv: ref, align: identity}}
	visited[ref.ID()] = identity

	for {
		var best *treeNode
		bestScore := -1
		for _, op := range f.Ops() {
			out := op.Output()
			for inputIdx, in := range op.Inputs() {
				var parentAlign []int
				var child *fusion.TensorView
				var hop []int
				if pa, ok := visited[in.ID()]; ok && visited[out.ID()] == nil {
					parentAlign, child = pa, out
					hop = op.MapProducerToConsumer(inputIdx)
				} else if pa, ok := visited[out.ID()]; ok && visited[in.ID()] == nil {
					parentAlign, child = pa, in
					hop = op.MapConsumerToProducer(inputIdx)
				} else {
					continue
				}
				if !selector(child) {
					continue
				}
				align := make([]int, len(parentAlign))
				score := 0
				for r, parentAxis := range parentAlign {
					align[r] = -1
					if parentAxis >= 0 && hop[parentAxis] >= 0 {
						align[r] = hop[parentAxis]
						score++
					}
				}
				if score > bestScore {
					best = &treeNode{tv: child, align: align}
					bestScore = score
				}
			}
		}
		if best == nil {
			return order
		}
		visited[best.tv.ID()] = best.align
		order = append(order, *best)
	}
}

// alignmentsTo computes, for every tensor reachable from frame, its alignment
// to frame's root domain. See treeNode for the alignment convention.
func alignmentsTo(frame *fusion.TensorView) map[fusion.TensorID][]int {
	aligns := make(map[fusion.TensorID][]int)
	for _, node := range spanningTree(frame, SelectAll) {
		aligns[node.tv.ID()] = node.align
	}
	return aligns
}

// PropagateTransforms replays ref's recorded transforms onto every selected
// tensor reachable from ref, in spanning-tree order. Each target is aligned to
// ref's replay domain: target axes without a counterpart in ref become
// broadcast placeholders, target axes ref does not cover trail the loop domain
// unscheduled.
//
// Tensors for which own returns false are stamped provisional: they borrow the
// schedule to keep the graph consistent and expect a later pass to overwrite
// it. passSeq must come from Fusion.NextPassSeq.
func PropagateTransforms(ref *fusion.TensorView, selector Selector, passSeq int, own Selector) {
	base := ref.Alignment() // replay position -> ref root axis.
	baseExtents := ref.ReplayBaseExtents()
	tree := spanningTree(ref, selector)
	for _, node := range tree[1:] {
		lifted := make([]int, len(base))
		for pos, refAxis := range base {
			lifted[pos] = -1
			if refAxis >= 0 {
				lifted[pos] = node.align[refAxis]
			}
		}
		node.tv.ApplyReplay(ref.Transforms(), lifted, baseExtents, passSeq, !own(node.tv))
	}
	klog.V(2).Infof("propagated %d transforms from %s to %d tensors (pass %d)",
		len(ref.Transforms()), ref.Name(), len(tree)-1, passSeq)
}
