// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"k8s.io/klog/v2"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/fuser/fusion"
)

// caches tracks the synthetic copy tensors inserted around the fusion
// boundary: every input is read once into a cache, every output is computed
// into a cache and copied out.
type caches struct {
	// in maps a fusion input to its read cache, out a fusion output to its
	// write cache.
	in  map[fusion.TensorID]*fusion.TensorView
	out map[fusion.TensorID]*fusion.TensorView
}

// insertCaches stages the whole fusion boundary: CacheAfter on every consumed
// input, CacheBefore on every produced output. Caches start in local memory;
// stageSharedTiles later promotes the ones crossing the transposed group to
// shared memory.
func insertCaches(f *fusion.Fusion) *caches {
	c := &caches{
		in:  make(map[fusion.TensorID]*fusion.TensorView),
		out: make(map[fusion.TensorID]*fusion.TensorView),
	}
	for _, in := range f.Inputs() {
		if len(f.ConsumersOf(in)) == 0 {
			continue
		}
		c.in[in.ID()] = fusion.CacheAfter(in)
	}
	for _, out := range f.Outputs() {
		if out.Op() == nil {
			continue
		}
		c.out[out.ID()] = fusion.CacheBefore(out)
	}
	return c
}

// scheduleSides assigns every tensor to the inner-order pass that writes it:
// side 2 is the second group's pass, side 1 the main pass. A read cache
// follows its input (its write is the coalesced global load, ordered by the
// input's own layout); a write cache follows the op computing it, so it sits
// with the producing side and the global store flips to the output's side.
func scheduleSides(f *fusion.Fusion, c *caches, group2 *Group) map[fusion.TensorID]int {
	side := make(map[fusion.TensorID]int, f.NumTensors())
	for _, tv := range f.Tensors() {
		if tv.IsCache() {
			continue
		}
		side[tv.ID()] = 1
		if group2 != nil && group2.Has(tv) {
			side[tv.ID()] = 2
		}
	}
	for _, in := range f.Inputs() {
		if cache := c.in[in.ID()]; cache != nil {
			side[cache.ID()] = side[in.ID()]
		}
	}
	for _, out := range f.Outputs() {
		if cache := c.out[out.ID()]; cache != nil {
			side[cache.ID()] = side[cache.Op().Inputs()[0].ID()]
		}
	}
	return side
}

// stageSharedTiles moves every cache whose writer and readers sit on
// different scheduling sides to shared memory and installs the bank-conflict
// swizzle. These crossing caches are exactly where the access direction
// flips: written along one group's innermost axis and read along the
// other's, so they must hold a full tile and remap columns to keep both
// directions conflict-free.
//
// rowFrame and colFrame are the two tile axes in frame coordinates (group1's
// and group2's innermost). A crossing cache not covering both axes concretely
// cannot hold a two-dimensional tile and stays in local memory.
func stageSharedTiles(f *fusion.Fusion, side map[fusion.TensorID]int,
	aligns map[fusion.TensorID][]int, rowFrame, colFrame, tile int) []*fusion.TensorView {
	var shared []*fusion.TensorView
	for _, cache := range f.Tensors() {
		if !cache.IsCache() {
			continue
		}
		crossing := false
		for _, op := range f.ConsumersOf(cache) {
			if side[op.Output().ID()] != side[cache.ID()] {
				crossing = true
				break
			}
		}
		if !crossing {
			continue
		}
		align := aligns[cache.ID()]
		rootA, rootB := align[rowFrame], align[colFrame]
		if rootA < 0 || rootB < 0 ||
			cache.Root()[rootA].IsBroadcast() || cache.Root()[rootB].IsBroadcast() ||
			cache.Root()[rootA].Extent() == 1 || cache.Root()[rootB].Extent() == 1 {
			klog.V(1).Infof("crossing cache %s does not span both tile axes, left in local memory", cache.Name())
			continue
		}
		cache.SetMemoryType(fusion.MemoryShared)
		cache.SwizzleRoots(rootA, rootB, tile)
		shared = append(shared, cache)
	}
	return shared
}

// widestDType returns the fusion's largest element type; it bounds the vector
// width and sizes the shared tiles.
func widestDType(f *fusion.Fusion) (widest dtypes.DType) {
	for _, tv := range f.Tensors() {
		if widest == dtypes.InvalidDType || tv.DType().Memory() > widest.Memory() {
			widest = tv.DType()
		}
	}
	return widest
}
