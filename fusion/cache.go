// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusion

import (
	"github.com/gomlx/exceptions"
)

// CacheAfter stages reads of tv: a synthetic cache tensor is spliced between
// tv and all of its current consumers, so tv is read once into the cache and
// consumers read the cache. The cache starts in local memory; staging moves
// boundary caches to shared memory.
//
// Returns the cache tensor.
func CacheAfter(tv *TensorView) *TensorView {
	f := tv.fusion
	if f.IsOutput(tv) && len(f.ConsumersOf(tv)) == 0 {
		exceptions.Panicf("CacheAfter(%s): tensor has no consumers to redirect", tv.Name())
	}
	op := &Op{fusion: f, typ: OpTypeCacheCopy, inputs: []TensorID{tv.id}}
	cache := f.newTensorView(tv.dtype, copyRootFrom(tv.root), op)
	cache.isCache = true
	cache.memory = MemoryLocal
	op.output = cache.id

	// Rewire consumers and insert the copy op before the first of them to
	// keep f.ops topologically ordered.
	insertAt := len(f.ops)
	for opIdx, consumer := range f.ops {
		rewired := false
		for ii, in := range consumer.inputs {
			if in == tv.id {
				consumer.inputs[ii] = cache.id
				rewired = true
			}
		}
		if rewired && opIdx < insertAt {
			insertAt = opIdx
		}
	}
	f.ops = append(f.ops, nil)
	copy(f.ops[insertAt+1:], f.ops[insertAt:])
	f.ops[insertAt] = op
	return cache
}

// CacheBefore stages writes of tv, which must be a fusion output produced by
// an op: the producing op now writes the cache, and tv becomes a plain copy
// of it. The cache starts in local memory.
//
// Returns the cache tensor.
func CacheBefore(tv *TensorView) *TensorView {
	f := tv.fusion
	producer := tv.op
	if producer == nil {
		exceptions.Panicf("CacheBefore(%s): tensor is a fusion input", tv.Name())
	}
	if !f.IsOutput(tv) {
		exceptions.Panicf("CacheBefore(%s): only fusion outputs can be write-cached", tv.Name())
	}
	copyOp := &Op{fusion: f, typ: OpTypeCacheCopy, output: tv.id}
	cache := f.newTensorView(tv.dtype, copyRootFrom(tv.root), producer)
	cache.isCache = true
	cache.memory = MemoryLocal
	producer.output = cache.id
	copyOp.inputs = []TensorID{cache.id}
	tv.op = copyOp

	// Insert the copy right after the producer op.
	insertAt := len(f.ops)
	for opIdx, op := range f.ops {
		if op == producer {
			insertAt = opIdx + 1
			break
		}
	}
	f.ops = append(f.ops, nil)
	copy(f.ops[insertAt+1:], f.ops[insertAt:])
	f.ops[insertAt] = copyOp
	return cache
}
