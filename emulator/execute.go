// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package emulator

import (
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/internal/workerspool"
	"github.com/gomlx/fuser/scheduler"
)

// ErrReadBeforeWrite reports that a block read a staged (shared or local)
// value before any thread of the block wrote it: the schedule's tile handoff
// is broken. Matched with errors.Is.
var ErrReadBeforeWrite = errors.New("scheduled execution read a staged value before it was written")

// sharedTile is one block's staging buffer for a shared-memory tensor, with
// per-slot write tracking. Slots are addressed through the tensor's
// TileSwizzle, the same way for the writing and the reading side.
type sharedTile struct {
	values  []float64
	written []bool
}

// blockState holds the memory a single block owns: its shared tiles and the
// per-tensor register values. Global memory is the only state shared between
// blocks.
type blockState struct {
	blockIdx int
	shared   map[fusion.TensorID]*sharedTile
	local    map[fusion.TensorID]map[int]float64
}

// Execute runs a scheduled plan the way a GPU grid would: each block walks
// every op's loop domain with its grid axis pinned to the block index,
// skipping out-of-bounds (predicated) positions, staging shared tiles and
// applying swizzled addressing. Blocks run concurrently on a worker pool;
// ops within a block run in sequence, which models the block-wide barrier
// between producing and consuming a staged tile.
//
// Inputs follow Fusion.Inputs order, results Fusion.Outputs order.
func Execute(plan *scheduler.Plan, inputs []*Buffer) ([]*Buffer, error) {
	f := plan.Fusion
	if len(inputs) != len(f.Inputs()) {
		exceptions.Panicf("emulator.Execute: %d input buffers for %d fusion inputs", len(inputs), len(f.Inputs()))
	}
	global := make(map[fusion.TensorID]*Buffer, f.NumTensors())
	for ii, tv := range f.Inputs() {
		if !inputs[ii].Shape().Equal(rootShape(tv)) {
			exceptions.Panicf("emulator.Execute: input #%d has shape %s, fusion expects %s",
				ii, inputs[ii].Shape(), rootShape(tv))
		}
		global[tv.ID()] = inputs[ii]
	}
	for _, tv := range f.Tensors() {
		if tv.Memory() == fusion.MemoryGlobal && global[tv.ID()] == nil {
			global[tv.ID()] = NewBuffer(rootShape(tv))
		}
	}

	pool := workerspool.New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for blockIdx := 0; blockIdx < plan.Launch.GridX; blockIdx++ {
		wg.Add(1)
		pool.WaitToStart(func() {
			defer wg.Done()
			if err := runBlock(f, blockIdx, global); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	results := make([]*Buffer, len(f.Outputs()))
	for ii, tv := range f.Outputs() {
		results[ii] = global[tv.ID()]
	}
	return results, nil
}

func runBlock(f *fusion.Fusion, blockIdx int, global map[fusion.TensorID]*Buffer) error {
	state := &blockState{
		blockIdx: blockIdx,
		shared:   make(map[fusion.TensorID]*sharedTile),
		local:    make(map[fusion.TensorID]map[int]float64),
	}
	operands := make([]float64, 4)
	for _, op := range f.Ops() {
		out := op.Output()
		err := forEachBlockPosition(out, blockIdx, func(loopIdx []int) error {
			rootIdx, inBounds := out.IndexToRoot(loopIdx)
			if !inBounds {
				return nil
			}
			ops := operands[:op.NumInputs()]
			for inputIdx, in := range op.Inputs() {
				value, err := state.read(in, producerIndices(op, inputIdx, rootIdx), global)
				if err != nil {
					return err
				}
				ops[inputIdx] = value
			}
			state.write(out, rootIdx, evalOp(op.Type(), ops), global)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// forEachBlockPosition enumerates tv's loop domain with grid axes pinned to
// the block index, in loop order: outer axes vary slowest, so the iteration
// order matches the kernel's statement order within the block.
func forEachBlockPosition(tv *fusion.TensorView, blockIdx int, fn func(loopIdx []int) error) error {
	loop := tv.Loop()
	loopIdx := make([]int, len(loop))
	for pos, axis := range loop {
		if axis.ParallelType().IsBlock() {
			loopIdx[pos] = blockIdx
		}
	}
	var recurse func(pos int) error
	recurse = func(pos int) error {
		if pos == len(loop) {
			return fn(loopIdx)
		}
		if loop[pos].ParallelType().IsBlock() {
			return recurse(pos + 1)
		}
		for ii := 0; ii < loop[pos].Extent(); ii++ {
			loopIdx[pos] = ii
			if err := recurse(pos + 1); err != nil {
				return err
			}
		}
		return nil
	}
	return recurse(0)
}

func (s *blockState) read(tv *fusion.TensorView, rootIdx []int, global map[fusion.TensorID]*Buffer) (float64, error) {
	switch tv.Memory() {
	case fusion.MemoryGlobal:
		return global[tv.ID()].At(rootIdx...), nil
	case fusion.MemoryShared:
		tile, offset := s.tileSlot(tv, rootIdx)
		if !tile.written[offset] {
			return 0, errors.Wrapf(ErrReadBeforeWrite, "block %d, shared tile %s, slot %d", s.blockIdx, tv.Name(), offset)
		}
		return tile.values[offset], nil
	default:
		flat := rootShape(tv).LinearIndex(rootIdx)
		value, ok := s.local[tv.ID()][flat]
		if !ok {
			return 0, errors.Wrapf(ErrReadBeforeWrite, "block %d, register value %s[%d]", s.blockIdx, tv.Name(), flat)
		}
		return value, nil
	}
}

func (s *blockState) write(tv *fusion.TensorView, rootIdx []int, value float64, global map[fusion.TensorID]*Buffer) {
	switch tv.Memory() {
	case fusion.MemoryGlobal:
		global[tv.ID()].Set(value, rootIdx...)
	case fusion.MemoryShared:
		tile, offset := s.tileSlot(tv, rootIdx)
		tile.values[offset] = value
		tile.written[offset] = true
	default:
		m := s.local[tv.ID()]
		if m == nil {
			m = make(map[int]float64)
			s.local[tv.ID()] = m
		}
		m[rootShape(tv).LinearIndex(rootIdx)] = value
	}
}

// tileSlot resolves a shared tensor's root indices to its tile buffer slot.
// Each block sees exactly one tile of each shared tensor, so indices are
// taken modulo the tile edge.
func (s *blockState) tileSlot(tv *fusion.TensorView, rootIdx []int) (*sharedTile, int) {
	sw := tv.TileSwizzle()
	if sw == nil {
		exceptions.Panicf("emulator: shared tensor %s has no tile descriptor", tv.Name())
	}
	tile := s.shared[tv.ID()]
	if tile == nil {
		tile = &sharedTile{
			values:  make([]float64, sw.Period*sw.Period),
			written: make([]bool, sw.Period*sw.Period),
		}
		s.shared[tv.ID()] = tile
	}
	return tile, sw.Offset(rootIdx[sw.RootA]%sw.Period, rootIdx[sw.RootB]%sw.Period)
}
