// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package emulator

import (
	"fmt"

	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/scheduler"
)

// NumSharedBanks is the number of shared-memory banks a warp's accesses are
// spread over; simultaneous accesses to the same bank serialize.
const NumSharedBanks = 32

// NumWarpLanes is the number of threads issuing a shared-memory access
// together.
const NumWarpLanes = 32

// BankReport describes the worst-case shared-memory bank behavior of one
// staged tile: how many warp lanes hit the same bank in the write phase
// (lanes sweep the tile column-wise) and in the read phase (lanes sweep it
// row-wise). 1 means conflict-free, NumWarpLanes means fully serialized.
type BankReport struct {
	Cache    *fusion.TensorView
	Swizzled bool

	WriteWays int
	ReadWays  int
}

func (r BankReport) String() string {
	return fmt.Sprintf("%s: write %d-way, read %d-way (swizzled=%v)",
		r.Cache.Name(), r.WriteWays, r.ReadWays, r.Swizzled)
}

// AnalyzeBankConflicts computes a BankReport for every shared tile of the
// plan. The tile is written along one group's innermost axis and read along
// the other's; without the swizzle one of the two directions strides by the
// tile edge and lands every lane on the same bank.
func AnalyzeBankConflicts(plan *scheduler.Plan) []BankReport {
	reports := make([]BankReport, 0, len(plan.SharedCaches))
	for _, cache := range plan.SharedCaches {
		sw := cache.TileSwizzle()
		reports = append(reports, BankReport{
			Cache:    cache,
			Swizzled: sw.Swizzled,
			WriteWays: conflictWays(sw, func(lane int) (r, c int) {
				return lane / sw.Period, lane % sw.Period
			}),
			ReadWays: conflictWays(sw, func(lane int) (r, c int) {
				return lane % sw.Period, lane / sw.Period
			}),
		})
	}
	return reports
}

// conflictWays returns the largest number of lanes hitting one bank when
// each lane accesses the tile coordinates given by access.
func conflictWays(sw *fusion.TileSwizzle, access func(lane int) (r, c int)) int {
	perBank := make(map[int]int, NumSharedBanks)
	ways := 0
	for lane := 0; lane < NumWarpLanes; lane++ {
		r, c := access(lane)
		bank := sw.Offset(r%sw.Period, c%sw.Period) % NumSharedBanks
		perBank[bank]++
		if perBank[bank] > ways {
			ways = perBank[bank]
		}
	}
	return ways
}
