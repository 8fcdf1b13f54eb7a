// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusion

// ParallelType labels a loop axis with the hardware resource that iterates it.
//
// It is a closed enumeration: every consumption site switches exhaustively
// over it, so adding a new hardware tier is a compile-time-checked change.
type ParallelType int

//go:generate go tool enumer -type=ParallelType -trimprefix=Parallel -output=gen_paralleltype_enumer.go tags.go

const (
	// ParallelNone marks an axis not yet assigned; it executes serially.
	ParallelNone ParallelType = iota

	// ParallelSerial explicitly pins an axis to serial execution.
	ParallelSerial

	// ParallelBIDx, ParallelBIDy and ParallelBIDz map an axis to the grid
	// of thread blocks.
	ParallelBIDx
	ParallelBIDy
	ParallelBIDz

	// ParallelTIDx and ParallelTIDy map an axis to the threads of a block.
	ParallelTIDx
	ParallelTIDy

	// ParallelVectorize maps an axis to a vector load/store.
	ParallelVectorize

	// ParallelUnroll requests the axis' loop be unrolled.
	ParallelUnroll

	// ParallelUnswitch hoists bounds predicates out of the axis' loop.
	ParallelUnswitch
)

// IsBlock returns whether the label maps to the block grid.
func (p ParallelType) IsBlock() bool {
	return p == ParallelBIDx || p == ParallelBIDy || p == ParallelBIDz
}

// IsThread returns whether the label maps to threads within a block.
func (p ParallelType) IsThread() bool {
	return p == ParallelTIDx || p == ParallelTIDy
}

// MemoryType tags the memory space a TensorView lives in.
type MemoryType int

//go:generate go tool enumer -type=MemoryType -trimprefix=Memory -output=gen_memorytype_enumer.go tags.go

const (
	// MemoryGlobal is slow off-chip memory, visible to all blocks.
	MemoryGlobal MemoryType = iota

	// MemoryShared is fast on-chip memory, visible to one block, with an
	// implicit block-level barrier between its write and read phases.
	MemoryShared

	// MemoryLocal is per-thread storage (registers).
	MemoryLocal
)
