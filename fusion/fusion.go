// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fusion models the tensor/operation DAG consumed by the scheduler.
//
// A Fusion is an arena of TensorView nodes addressed by stable TensorID
// indices. Each TensorView carries a root (logical) iteration domain and a
// loop domain derived from it by a recorded, replayable sequence of
// transforms (Split, Merge, Reorder). Ops connect TensorViews and carry an
// explicit mapping between producer and consumer root axes, which is what
// makes schedules propagatable across the graph.
//
// The main elements of the package are:
//
//   - Fusion: the arena holding all TensorViews and Ops, plus the sets of
//     fusion inputs (parameters) and outputs.
//
//   - TensorView: a node of the DAG. Its schedule is manipulated with
//     Split, Merge, Reorder, Parallelize, SetMemoryType and Swizzle, the
//     same vocabulary a hand-written kernel schedule uses.
//
//   - Op: the operation producing a TensorView: elementwise unary/binary
//     math, Transpose (axis permutation) or Broadcast (axis insertion).
//     CacheAfter/CacheBefore splice synthetic copy ops used for staging
//     tiles through fast on-chip memory.
//
// All entities are created fresh per scheduling invocation and discarded
// after emission; nothing in this package persists across invocations.
package fusion

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// TensorID is a unique TensorView id within a Fusion.
type TensorID int

// InvalidTensorID indicates a TensorView that failed to be created.
const InvalidTensorID = TensorID(-1)

// Fusion is the DAG of TensorViews and Ops to be scheduled into one kernel.
type Fusion struct {
	tensors []*TensorView
	ops     []*Op

	inputs  []TensorID
	outputs []TensorID

	// passSeq is the sequence number handed to the next scheduling pass.
	// See NextPassSeq.
	passSeq int
}

// New creates an empty Fusion.
func New() *Fusion {
	return &Fusion{}
}

// NumTensors returns the number of TensorViews in the arena, including cache tensors.
func (f *Fusion) NumTensors() int { return len(f.tensors) }

// Tensor returns the TensorView with the given id.
func (f *Fusion) Tensor(id TensorID) *TensorView {
	if id < 0 || int(id) >= len(f.tensors) {
		exceptions.Panicf("fusion: invalid TensorID %d (fusion has %d tensors)", id, len(f.tensors))
	}
	return f.tensors[id]
}

// Tensors returns all TensorViews in creation order. The returned slice is owned by the Fusion.
func (f *Fusion) Tensors() []*TensorView { return f.tensors }

// Ops returns all ops in creation order. Since an op is only created once its
// inputs exist, this is a valid topological order of the DAG.
func (f *Fusion) Ops() []*Op { return f.ops }

// AddInput marks tv, which must be a Parameter, as a fusion input.
func (f *Fusion) AddInput(tv *TensorView) {
	if tv.op != nil {
		exceptions.Panicf("fusion: AddInput(%s): only parameters can be fusion inputs", tv.Name())
	}
	f.inputs = append(f.inputs, tv.id)
}

// AddOutput marks tv as a fusion output.
func (f *Fusion) AddOutput(tv *TensorView) {
	f.outputs = append(f.outputs, tv.id)
}

// Inputs returns the fusion input TensorViews, in the order they were added.
func (f *Fusion) Inputs() []*TensorView {
	return f.resolve(f.inputs)
}

// Outputs returns the fusion output TensorViews, in the order they were added.
func (f *Fusion) Outputs() []*TensorView {
	return f.resolve(f.outputs)
}

// IsOutput returns whether tv is a fusion output.
func (f *Fusion) IsOutput(tv *TensorView) bool {
	for _, id := range f.outputs {
		if id == tv.id {
			return true
		}
	}
	return false
}

// IsInput returns whether tv is a fusion input.
func (f *Fusion) IsInput(tv *TensorView) bool {
	for _, id := range f.inputs {
		if id == tv.id {
			return true
		}
	}
	return false
}

func (f *Fusion) resolve(ids []TensorID) []*TensorView {
	tvs := make([]*TensorView, len(ids))
	for ii, id := range ids {
		tvs[ii] = f.tensors[id]
	}
	return tvs
}

// ConsumersOf returns the ops that read tv, in creation order.
func (f *Fusion) ConsumersOf(tv *TensorView) []*Op {
	var consumers []*Op
	for _, op := range f.ops {
		for _, in := range op.inputs {
			if in == tv.id {
				consumers = append(consumers, op)
				break
			}
		}
	}
	return consumers
}

// NextPassSeq returns a strictly increasing sequence number, one per
// scheduling pass. Replays stamp the tensors they touch with the pass
// sequence, and assert monotonicity: a later pass always overwrites an
// earlier (possibly provisional) schedule, never the other way around.
func (f *Fusion) NextPassSeq() int {
	f.passSeq++
	return f.passSeq
}

// newTensorView allocates a TensorView in the arena.
func (f *Fusion) newTensorView(dtype dtypes.DType, root []*IterDomain, op *Op) *TensorView {
	tv := &TensorView{
		fusion: f,
		id:     TensorID(len(f.tensors)),
		dtype:  dtype,
		root:   root,
		op:     op,
		memory: MemoryGlobal,
	}
	tv.resetToRoot()
	f.tensors = append(f.tensors, tv)
	return tv
}

func (f *Fusion) addOp(op *Op) *Op {
	f.ops = append(f.ops, op)
	return op
}

// String returns a multi-line description of the fusion, one line per tensor.
func (f *Fusion) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fusion{%d tensors, %d inputs, %d outputs}\n", len(f.tensors), len(f.inputs), len(f.outputs))
	for _, tv := range f.tensors {
		sb.WriteString("  ")
		sb.WriteString(tv.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
