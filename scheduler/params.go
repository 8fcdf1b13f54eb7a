// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
)

// Params configure the tiling scheduler. The zero value is not valid, use
// DefaultParams.
type Params struct {
	// TileSize is the side of the square staging tile. Tiles are TileSize x
	// TileSize elements.
	TileSize int

	// ThreadsPerBlock is the number of threads cooperating on one tile.
	ThreadsPerBlock int

	// MaxVectorWidth is the widest vectorized access attempted, in
	// elements. The planner falls back to narrower widths (halving down to
	// scalar) when the tile or the element size does not allow it.
	MaxVectorWidth int
}

// DefaultParams returns the production configuration: 32x32 tiles, 128
// threads per block and 4-wide vector accesses.
func DefaultParams() Params {
	return Params{
		TileSize:        32,
		ThreadsPerBlock: 128,
		MaxVectorWidth:  4,
	}
}

// maxVectorBytes bounds a single vectorized access: width*sizeof(dtype) may
// not exceed it.
const maxVectorBytes = 16

// TileDecision is the per-fusion factorization of one tile's elements into
// the inner loop structure: Tile*Tile == Unroll*ThreadsPerBlock*Vector.
type TileDecision struct {
	Tile            int
	ThreadsPerBlock int
	Vector          int
	Unroll          int
}

func (d TileDecision) String() string {
	return fmt.Sprintf("tile=%dx%d threads=%d vector=%d unroll=%d",
		d.Tile, d.Tile, d.ThreadsPerBlock, d.Vector, d.Unroll)
}

// planTiles picks the vector width and unroll factor for the given params
// and the widest element type appearing in the fusion. It throws
// ErrNoValidTiling when no factorization works.
func planTiles(p Params, widest dtypes.DType) TileDecision {
	if p.TileSize <= 0 || p.ThreadsPerBlock <= 0 || p.MaxVectorWidth <= 0 {
		throwf(ErrNoValidTiling, "invalid scheduler params %+v", p)
	}
	tileElems := p.TileSize * p.TileSize
	for vector := p.MaxVectorWidth; vector >= 1; vector /= 2 {
		if vector > 1 && uintptr(vector)*widest.Memory() > maxVectorBytes {
			continue
		}
		if p.TileSize%vector != 0 {
			continue
		}
		if tileElems%(vector*p.ThreadsPerBlock) != 0 {
			continue
		}
		return TileDecision{
			Tile:            p.TileSize,
			ThreadsPerBlock: p.ThreadsPerBlock,
			Vector:          vector,
			Unroll:          tileElems / (vector * p.ThreadsPerBlock),
		}
	}
	throwf(ErrNoValidTiling, "tile %dx%d cannot be split over %d threads (max vector width %d, dtype %s)",
		p.TileSize, p.TileSize, p.ThreadsPerBlock, p.MaxVectorWidth, widest)
	panic("unreachable")
}

// LaunchParams describe the kernel launch implied by a finished plan.
type LaunchParams struct {
	// GridX is the number of blocks, one per tile of the reference tensor.
	GridX int

	// BlockDim is the number of threads per block.
	BlockDim int

	// SharedMemBytes is the total shared memory consumed by staged tiles.
	SharedMemBytes uintptr
}

func (l LaunchParams) String() string {
	return fmt.Sprintf("grid=(%d) block=(%d) shared=%d bytes", l.GridX, l.BlockDim, l.SharedMemBytes)
}
