// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusion

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/fuser/types/xslices"
)

// IterDomain describes one axis of a tensor's iteration space: its extent at
// schedule time (SymbolicExtent until bound), whether it is a broadcast axis
// and whether it is contiguous in global memory, plus the parallel resource
// assigned to it once it becomes a loop axis.
type IterDomain struct {
	extent     int
	broadcast  bool
	contiguous bool
	parallel   ParallelType
}

// SymbolicExtent marks an axis whose concrete extent has not been bound yet.
// See Fusion.BindInputShapes.
const SymbolicExtent = -1

// Extent returns the axis' extent; SymbolicExtent if not bound yet.
func (id *IterDomain) Extent() int { return id.extent }

// IsBroadcast returns whether this is a broadcast axis: it carries no extent
// of its own and iterates once.
func (id *IterDomain) IsBroadcast() bool { return id.broadcast }

// IsContiguous returns whether the axis is contiguous in global memory.
func (id *IterDomain) IsContiguous() bool { return id.contiguous }

// ParallelType returns the parallel resource assigned to the axis.
func (id *IterDomain) ParallelType() ParallelType { return id.parallel }

// Parallelize assigns a parallel resource to the axis.
func (id *IterDomain) Parallelize(pt ParallelType) { id.parallel = pt }

func (id *IterDomain) String() string {
	s := fmt.Sprintf("%d", id.extent)
	if id.extent == SymbolicExtent {
		s = "?"
	}
	if id.broadcast {
		s = "b" + s
	}
	if id.parallel != ParallelNone {
		s = fmt.Sprintf("%s(%s)", id.parallel, s)
	}
	return s
}

// TileSwizzle describes how a tile of this tensor is staged in fast on-chip
// memory: which two root axes form the tile, the tile edge (Period) and
// whether positions are swizzled to avoid bank conflicts.
//
// The swizzle is a reversible remapping of positions, not a data movement:
// the element at tile coordinates (r, c) is stored at physical column
// (r+c) mod Period of row r. Writes along c and reads along r then both hit
// Period distinct banks. Allocation shape and every access use the same
// remapping.
type TileSwizzle struct {
	// RootA and RootB are positions in this tensor's root domain: RootA is
	// the tile row axis, RootB the tile column axis.
	RootA, RootB int

	// Period is the tile edge length; also the swizzle modulus.
	Period int

	// Swizzled indicates the (r+c) mod Period remapping is active. When
	// false the tile is stored row-major unswizzled.
	Swizzled bool
}

// Offset returns the physical position inside the tile buffer for the tile
// coordinates (r, c), both in [0, Period).
func (s *TileSwizzle) Offset(r, c int) int {
	if s.Swizzled {
		c = (r + c) % s.Period
	}
	return r*s.Period + c
}

// TensorView is a node of the fusion DAG: a tensor with a root (logical)
// iteration domain and a mutable schedule.
//
// The schedule is the loop domain: an ordered sequence of loop axes derived
// from the root axes by a recorded sequence of transforms. The invariant that
// makes cross-tensor propagation possible is that the loop domain is always
// re-derivable by replaying the records against the (aligned) root domain.
type TensorView struct {
	fusion *Fusion
	id     TensorID
	dtype  dtypes.DType
	op     *Op // producing op; nil for parameters.

	root []*IterDomain
	loop []*IterDomain

	// records, align, base and extras describe how loop derives from root:
	// align[i] gives, for position i of the replay domain, the root axis of
	// this tensor it stands for, or -1 for a broadcast placeholder; base[i]
	// is the extent the replay iterates at position i (the reference's
	// extent for placeholders, so every tensor's loop extents match the
	// reference's); records are replayed over that domain; extras list root
	// axes not covered by the alignment, appended unscheduled at the end of
	// the loop domain.
	records []Transform
	align   []int
	base    []int
	extras  []int

	memory  MemoryType
	isCache bool
	swizzle *TileSwizzle

	// passSeq and provisional implement the "borrowed node" protocol: a
	// propagation pass stamps every tensor it touches, and marks tensors
	// outside its own group as provisional. A later pass may overwrite any
	// schedule with a strictly larger sequence number; overwriting a
	// non-provisional schedule of the same pass is a scheduling bug.
	passSeq     int
	provisional bool
}

// ID returns the TensorView's id within its Fusion.
func (tv *TensorView) ID() TensorID { return tv.id }

// Name returns a short name for error messages and dumps.
func (tv *TensorView) Name() string {
	if tv.isCache {
		return fmt.Sprintf("c%d", tv.id)
	}
	return fmt.Sprintf("t%d", tv.id)
}

// DType returns the tensor's element type.
func (tv *TensorView) DType() dtypes.DType { return tv.dtype }

// Op returns the op producing this tensor, or nil for a parameter.
func (tv *TensorView) Op() *Op { return tv.op }

// Fusion returns the Fusion owning this TensorView.
func (tv *TensorView) Fusion() *Fusion { return tv.fusion }

// Rank returns the number of root axes.
func (tv *TensorView) Rank() int { return len(tv.root) }

// Root returns the root iteration domain. The slice is owned by the TensorView.
func (tv *TensorView) Root() []*IterDomain { return tv.root }

// Loop returns the current loop domain. The slice is owned by the TensorView.
func (tv *TensorView) Loop() []*IterDomain { return tv.loop }

// NumLoopAxes returns the number of loop axes in the current schedule.
func (tv *TensorView) NumLoopAxes() int { return len(tv.loop) }

// Axis returns the loop axis at the given position; negative positions count
// from the end, so Axis(-1) is the innermost loop axis.
func (tv *TensorView) Axis(pos int) *IterDomain {
	return tv.loop[adjustAxis(pos, len(tv.loop))]
}

// Memory returns the memory space this tensor lives in.
func (tv *TensorView) Memory() MemoryType { return tv.memory }

// SetMemoryType moves the tensor to the given memory space.
func (tv *TensorView) SetMemoryType(m MemoryType) { tv.memory = m }

// IsCache returns whether this is a synthetic cache tensor inserted by
// CacheAfter/CacheBefore; cache tensors are not user-visible.
func (tv *TensorView) IsCache() bool { return tv.isCache }

// Transforms returns the recorded transforms deriving loop from root.
// The slice is owned by the TensorView.
func (tv *TensorView) Transforms() []Transform { return tv.records }

// Alignment returns, per replay-domain position, this tensor's root axis it
// stands for (-1 for broadcast placeholders). For a manually scheduled tensor
// this is the identity.
func (tv *TensorView) Alignment() []int { return tv.align }

// ReplayBaseExtents returns the extent iterated at each replay-domain
// position; see ApplyReplay.
func (tv *TensorView) ReplayBaseExtents() []int { return tv.base }

// ExtraAxes returns the root axes not covered by the alignment; they trail
// the loop domain unscheduled.
func (tv *TensorView) ExtraAxes() []int { return tv.extras }

// PassSeq returns the sequence number of the scheduling pass that last wrote
// this tensor's schedule; 0 for manual schedules.
func (tv *TensorView) PassSeq() int { return tv.passSeq }

// IsProvisional returns whether the current schedule was borrowed from
// another group's pass and is expected to be overwritten.
func (tv *TensorView) IsProvisional() bool { return tv.provisional }

// resetToRoot discards the schedule: the loop domain becomes the root domain.
func (tv *TensorView) resetToRoot() {
	tv.loop = append([]*IterDomain(nil), tv.root...)
	tv.records = nil
	tv.align = identityAlignment(len(tv.root))
	tv.base = make([]int, len(tv.root))
	for ii, axis := range tv.root {
		tv.base[ii] = axis.extent
	}
	tv.extras = nil
	tv.passSeq = 0
	tv.provisional = false
}

func identityAlignment(rank int) []int {
	return xslices.Iota(0, rank)
}

// Split divides the loop axis at pos into an outer axis of extent
// ceil(extent/factor) and an inner axis of the given factor, at positions pos
// and pos+1. Negative positions count from the end.
func (tv *TensorView) Split(pos, factor int) *TensorView {
	if factor <= 0 {
		exceptions.Panicf("%s.Split: factor must be positive, got %d", tv.Name(), factor)
	}
	tv.record(&splitTransform{axis: adjustAxis(pos, len(tv.loop)), factor: factor})
	return tv
}

// Merge fuses the loop axes at pos and pos+1 into a single axis at pos.
// Negative positions count from the end, so Merge(-2) merges the two
// innermost axes.
func (tv *TensorView) Merge(pos int) *TensorView {
	axis := adjustAxis(pos, len(tv.loop))
	if axis+1 >= len(tv.loop) {
		exceptions.Panicf("%s.Merge(%d): no inner axis to merge with", tv.Name(), pos)
	}
	tv.record(&mergeTransform{axis: axis})
	return tv
}

// Reorder permutes loop axes according to the old→new position map; axes not
// mentioned keep their relative order in the remaining positions. Negative
// positions count from the end.
func (tv *TensorView) Reorder(old2New map[int]int) *TensorView {
	tv.record(&reorderTransform{perm: normalizeReorder(old2New, len(tv.loop))})
	return tv
}

func (tv *TensorView) record(rec Transform) {
	tv.records = append(tv.records, rec)
	tv.loop = rec.ApplyTo(tv.loop)
}

// Parallelize assigns a parallel resource to the loop axis at pos.
// Equivalent to tv.Axis(pos).Parallelize(pt).
func (tv *TensorView) Parallelize(pos int, pt ParallelType) *TensorView {
	tv.Axis(pos).Parallelize(pt)
	return tv
}

// Swizzle stages this tensor's tile with bank-conflict-avoiding swizzling.
// rowPos and colPos are loop positions; each must derive from exactly one
// root axis (typically the inner halves of the two tile splits), and both
// must have the same extent, which becomes the swizzle period.
//
// The tensor must live in shared memory when executed.
func (tv *TensorView) Swizzle(rowPos, colPos int) *TensorView {
	rowPos = adjustAxis(rowPos, len(tv.loop))
	colPos = adjustAxis(colPos, len(tv.loop))
	rootA := tv.resolveProvenance(rowPos)
	rootB := tv.resolveProvenance(colPos)
	period := tv.loop[rowPos].extent
	if tv.loop[colPos].extent != period {
		exceptions.Panicf("%s.Swizzle(%d, %d): tile axes have different extents (%d vs %d)",
			tv.Name(), rowPos, colPos, period, tv.loop[colPos].extent)
	}
	tv.SwizzleRoots(rootA, rootB, period)
	return tv
}

// SwizzleRoots stages this tensor's tile over the given two root axes with
// the given tile edge, with bank-conflict-avoiding swizzling enabled.
func (tv *TensorView) SwizzleRoots(rootA, rootB, period int) {
	if rootA == rootB {
		exceptions.Panicf("%s.SwizzleRoots: tile axes must differ, got %d twice", tv.Name(), rootA)
	}
	tv.swizzle = &TileSwizzle{RootA: rootA, RootB: rootB, Period: period, Swizzled: true}
}

// TileSwizzle returns the staging descriptor, or nil if the tensor is not
// staged as a swizzled tile.
func (tv *TensorView) TileSwizzle() *TileSwizzle { return tv.swizzle }

// resolveProvenance returns the single root axis the loop axis at loopPos
// derives from. It panics if the loop axis mixes several root axes (e.g. it
// results from a merge) or derives from a broadcast placeholder.
func (tv *TensorView) resolveProvenance(loopPos int) int {
	sets := make([][]int, len(tv.align))
	for ii := range sets {
		sets[ii] = []int{ii}
	}
	for _, rec := range tv.records {
		switch r := rec.(type) {
		case *splitTransform:
			out := make([][]int, 0, len(sets)+1)
			out = append(out, sets[:r.axis]...)
			out = append(out, sets[r.axis], sets[r.axis])
			out = append(out, sets[r.axis+1:]...)
			sets = out
		case *mergeTransform:
			merged := append(append([]int(nil), sets[r.axis]...), sets[r.axis+1]...)
			out := make([][]int, 0, len(sets)-1)
			out = append(out, sets[:r.axis]...)
			out = append(out, merged)
			out = append(out, sets[r.axis+2:]...)
			sets = out
		case *reorderTransform:
			out := make([][]int, len(sets))
			for old, set := range sets {
				out[r.perm[old]] = set
			}
			sets = out
		default:
			exceptions.Panicf("%s.resolveProvenance: unhandled transform %s", tv.Name(), rec)
		}
	}
	// Trailing extras derive from their own root axis directly.
	if loopPos >= len(sets) {
		return tv.extras[loopPos-len(sets)]
	}
	set := sets[loopPos]
	if len(set) != 1 {
		exceptions.Panicf("%s: loop axis %d derives from %d root axes, expected exactly one", tv.Name(), loopPos, len(set))
	}
	rootAxis := tv.align[set[0]]
	if rootAxis < 0 {
		exceptions.Panicf("%s: loop axis %d derives from a broadcast placeholder", tv.Name(), loopPos)
	}
	return rootAxis
}

// ApplyReplay installs a propagated schedule: records (cloned from a
// reference) are replayed over this tensor's root domain aligned to the
// reference's root domain by align (-1 entries become broadcast
// placeholders). Root axes of extent above one not covered by align trail
// the loop domain unscheduled; trivial uncovered axes always index 0 and
// get no loop axis. Block and unswitch parallel labels of the previous loop domain
// are carried over positionally; all other labels are dropped and must be
// re-applied by a parallelization pass.
//
// baseExtents gives, per replay position, the extent the reference iterates
// there. Placeholder positions iterate that full extent with a stride-0
// index, the way a resolved broadcast does, so every replayed tensor's loop
// extents match the reference's and a fused grid axis decomposes identically
// everywhere. A real axis of extent 1 facing a wider reference extent is
// demoted to a placeholder for the same reason; because its only index is 0
// it adds no trailing axis, so a tensor full of size-1 axes can still serve
// as a reference for a later pass. nil baseExtents means "this tensor's own
// extents".
//
// passSeq must be strictly larger than the pass that last wrote this tensor;
// provisional marks the schedule as borrowed (see IsProvisional).
func (tv *TensorView) ApplyReplay(records []Transform, align []int, baseExtents []int, passSeq int, provisional bool) {
	if passSeq <= tv.passSeq {
		exceptions.Panicf("%s.ApplyReplay: pass sequence must be monotonic, got %d after %d",
			tv.Name(), passSeq, tv.passSeq)
	}
	if baseExtents != nil && len(baseExtents) != len(align) {
		exceptions.Panicf("%s.ApplyReplay: %d base extents for %d replay positions",
			tv.Name(), len(baseExtents), len(align))
	}
	align = append([]int(nil), align...)
	covered := make([]bool, len(tv.root))
	axes := make([]*IterDomain, len(align))
	base := make([]int, len(align))
	for ii, rootAxis := range align {
		refExtent := 1
		if baseExtents != nil {
			refExtent = baseExtents[ii]
		}
		if rootAxis >= 0 && covered[rootAxis] {
			exceptions.Panicf("%s.ApplyReplay: root axis %d aligned twice", tv.Name(), rootAxis)
		}
		if rootAxis >= 0 && !(tv.root[rootAxis].extent == 1 && refExtent > 1) {
			covered[rootAxis] = true
			// Fresh axis: labels are reassigned after replay.
			axes[ii] = &IterDomain{
				extent:     tv.root[rootAxis].extent,
				broadcast:  tv.root[rootAxis].broadcast,
				contiguous: tv.root[rootAxis].contiguous,
			}
			base[ii] = tv.root[rootAxis].extent
			continue
		}
		// Placeholder: iterates the reference's extent with a stride-0 index.
		align[ii] = -1
		axes[ii] = &IterDomain{extent: refExtent, broadcast: true}
		base[ii] = refExtent
	}
	var extras []int
	for rootAxis, c := range covered {
		if c || tv.root[rootAxis].extent == 1 {
			// An uncovered axis of extent 1 only ever indexes 0; it needs
			// no loop axis and IndexToRoot defaults it to 0.
			continue
		}
		extras = append(extras, rootAxis)
	}

	oldLoop := tv.loop
	cloned := make([]Transform, len(records))
	for ii, rec := range records {
		cloned[ii] = rec.Clone()
	}
	loop := applyTransforms(cloned, axes)
	for _, rootAxis := range extras {
		loop = append(loop, &IterDomain{
			extent:     tv.root[rootAxis].extent,
			broadcast:  tv.root[rootAxis].broadcast,
			contiguous: tv.root[rootAxis].contiguous,
		})
	}

	// The outer (grid) structure established by an earlier pass survives
	// re-replays of the inner tile schedule.
	for pos := 0; pos < len(loop) && pos < len(oldLoop); pos++ {
		if old := oldLoop[pos].parallel; old.IsBlock() || old == ParallelUnswitch {
			loop[pos].parallel = old
		}
	}

	tv.records = cloned
	tv.align = align
	tv.base = base
	tv.extras = extras
	tv.loop = loop
	tv.passSeq = passSeq
	tv.provisional = provisional
}

// IndexToRoot maps loop-domain indices back to root-domain indices. The
// second result is false when the position is out of bounds (padding
// introduced by ceil-division splits), in which case the position must be
// predicated away.
func (tv *TensorView) IndexToRoot(loopIdx []int) (rootIdx []int, inBounds bool) {
	if len(loopIdx) != len(tv.loop) {
		exceptions.Panicf("%s.IndexToRoot: got %d indices for %d loop axes", tv.Name(), len(loopIdx), len(tv.loop))
	}
	numExtras := len(tv.extras)
	idx := append([]int(nil), loopIdx[:len(loopIdx)-numExtras]...)
	for ii := len(tv.records) - 1; ii >= 0; ii-- {
		idx = tv.records[ii].UnmapIndex(idx)
	}
	rootIdx = make([]int, len(tv.root))
	for pos, rootAxis := range tv.align {
		if rootAxis < 0 {
			continue
		}
		rootIdx[rootAxis] = idx[pos]
	}
	for k, rootAxis := range tv.extras {
		rootIdx[rootAxis] = loopIdx[len(loopIdx)-numExtras+k]
	}
	for axis, v := range rootIdx {
		if v < 0 || v >= tv.root[axis].extent {
			return rootIdx, false
		}
	}
	return rootIdx, true
}

// String pretty-prints the tensor and its loop domain, e.g.
// "t3 (Float32) root=[256 1024 1024] loop=[BIDx(8192), Unswitch(1), 32, 32] @Global".
func (tv *TensorView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s) root=[", tv.Name(), tv.dtype)
	for ii, axis := range tv.root {
		if ii > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(axis.String())
	}
	sb.WriteString("] loop=[")
	for ii, axis := range tv.loop {
		if ii > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(axis.String())
	}
	fmt.Fprintf(&sb, "] @%s", tv.memory)
	if tv.provisional {
		sb.WriteString(" (provisional)")
	}
	return sb.String()
}
