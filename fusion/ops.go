// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusion

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/fuser/types/shapes"
)

// OpType enumerates the operations a Fusion can contain.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go ops.go

const (
	OpTypeParameter OpType = iota
	OpTypeNeg
	OpTypeSin
	OpTypeCos
	OpTypeSigmoid
	OpTypeRelu
	OpTypeAdd
	OpTypeSub
	OpTypeMul
	OpTypeTranspose
	OpTypeBroadcast

	// OpTypeCacheCopy is the synthetic copy op inserted by CacheAfter and
	// CacheBefore when staging a tensor through another memory space.
	OpTypeCacheCopy
)

// Op connects TensorViews: it produces its output from its inputs and
// carries the producer-root→consumer-root axis mapping of each edge.
type Op struct {
	fusion *Fusion
	typ    OpType
	inputs []TensorID
	output TensorID

	// perm, for OpTypeTranspose: perm[consumerAxis] = producerAxis.
	perm []int

	// isNewAxis, for OpTypeBroadcast: marks output axes inserted as broadcasts.
	isNewAxis []bool
}

// Type returns the op's type.
func (op *Op) Type() OpType { return op.typ }

// Inputs returns the op's input TensorViews.
func (op *Op) Inputs() []*TensorView { return op.fusion.resolve(op.inputs) }

// NumInputs returns the number of inputs.
func (op *Op) NumInputs() int { return len(op.inputs) }

// Output returns the TensorView produced by this op.
func (op *Op) Output() *TensorView { return op.fusion.tensors[op.output] }

// IsTranspose reports whether the edge from input inputIdx permutes axis
// order, i.e. its root mapping is a non-identity permutation.
func (op *Op) IsTranspose() bool {
	if op.typ != OpTypeTranspose {
		return false
	}
	for cons, prod := range op.perm {
		if cons != prod {
			return true
		}
	}
	return false
}

// MapConsumerToProducer returns, for each root axis of the output, the
// corresponding root axis of input inputIdx, or -1 where the output axis is a
// broadcast inserted by this op.
func (op *Op) MapConsumerToProducer(inputIdx int) []int {
	out := op.Output()
	in := op.Inputs()[inputIdx]
	switch op.typ {
	case OpTypeParameter:
		exceptions.Panicf("parameter op has no inputs")
		return nil
	case OpTypeTranspose:
		return append([]int(nil), op.perm...)
	case OpTypeBroadcast:
		m := make([]int, out.Rank())
		nextIn := 0
		for axis := range m {
			if op.isNewAxis[axis] {
				m[axis] = -1
				continue
			}
			m[axis] = nextIn
			nextIn++
		}
		return m
	case OpTypeNeg, OpTypeSin, OpTypeCos, OpTypeSigmoid, OpTypeRelu,
		OpTypeAdd, OpTypeSub, OpTypeMul, OpTypeCacheCopy:
		if in.Rank() != out.Rank() {
			exceptions.Panicf("op %s: input %s and output %s disagree on rank", op.typ, in.Name(), out.Name())
		}
		return identityAlignment(out.Rank())
	}
	exceptions.Panicf("op type %s not handled in MapConsumerToProducer", op.typ)
	return nil
}

// MapProducerToConsumer is the inverse of MapConsumerToProducer: for each
// root axis of input inputIdx, the corresponding output root axis, or -1
// where the axis is dropped (never the case for the op set here).
func (op *Op) MapProducerToConsumer(inputIdx int) []int {
	c2p := op.MapConsumerToProducer(inputIdx)
	in := op.Inputs()[inputIdx]
	m := make([]int, in.Rank())
	for ii := range m {
		m[ii] = -1
	}
	for cons, prod := range c2p {
		if prod >= 0 {
			m[prod] = cons
		}
	}
	return m
}

func (op *Op) String() string {
	return fmt.Sprintf("%s = %s(%v)", op.Output().Name(), op.typ,
		func() []string {
			names := make([]string, len(op.inputs))
			for ii, in := range op.inputs {
				names[ii] = op.fusion.tensors[in].Name()
			}
			return names
		}())
}

// Parameter creates a fusion input tensor of the given rank with symbolic
// extents, to be bound later with Fusion.BindInputShapes. All axes are
// contiguous.
func Parameter(f *Fusion, dtype dtypes.DType, rank int) *TensorView {
	root := make([]*IterDomain, rank)
	for ii := range root {
		root[ii] = &IterDomain{extent: SymbolicExtent, contiguous: true}
	}
	return f.newTensorView(dtype, root, nil)
}

// ParameterWithDims creates a fusion input tensor with concrete extents.
// All axes are contiguous; extent-1 axes behave like broadcasts on reads but
// still cover their axis for reference-selection purposes.
func ParameterWithDims(f *Fusion, dtype dtypes.DType, dims ...int) *TensorView {
	root := make([]*IterDomain, len(dims))
	for ii, dim := range dims {
		if dim <= 0 {
			exceptions.Panicf("ParameterWithDims: dimension %d of axis %d must be positive", dim, ii)
		}
		root[ii] = &IterDomain{extent: dim, contiguous: true}
	}
	return f.newTensorView(dtype, root, nil)
}

func unaryOp(typ OpType, x *TensorView) *TensorView {
	f := x.fusion
	op := &Op{fusion: f, typ: typ, inputs: []TensorID{x.id}}
	out := f.newTensorView(x.dtype, copyRootFrom(x.root), op)
	op.output = out.id
	f.addOp(op)
	return out
}

// Neg returns element-wise -x.
func Neg(x *TensorView) *TensorView { return unaryOp(OpTypeNeg, x) }

// Sin returns element-wise sine of x.
func Sin(x *TensorView) *TensorView { return unaryOp(OpTypeSin, x) }

// Cos returns element-wise cosine of x.
func Cos(x *TensorView) *TensorView { return unaryOp(OpTypeCos, x) }

// Sigmoid returns element-wise 1/(1+exp(-x)).
func Sigmoid(x *TensorView) *TensorView { return unaryOp(OpTypeSigmoid, x) }

// Relu returns element-wise max(x, 0).
func Relu(x *TensorView) *TensorView { return unaryOp(OpTypeRelu, x) }

func binaryOp(typ OpType, x, y *TensorView) *TensorView {
	f := x.fusion
	if y.fusion != f {
		exceptions.Panicf("binary op %s: operands belong to different fusions", typ)
	}
	if x.Rank() != y.Rank() {
		exceptions.Panicf("binary op %s: operands disagree on rank (%d vs %d); insert an explicit Broadcast",
			typ, x.Rank(), y.Rank())
	}
	root := make([]*IterDomain, x.Rank())
	for axis := range root {
		xa, ya := x.root[axis], y.root[axis]
		extent := resolveExtent(xa, ya, typ, axis)
		root[axis] = &IterDomain{
			extent:     extent,
			broadcast:  xa.broadcast && ya.broadcast,
			contiguous: xa.contiguous && ya.contiguous,
		}
	}
	op := &Op{fusion: f, typ: typ, inputs: []TensorID{x.id, y.id}}
	out := f.newTensorView(x.dtype, root, op)
	op.output = out.id
	f.addOp(op)
	return out
}

// resolveExtent combines two operand extents on one axis: broadcast and
// extent-1 axes adopt the other side's extent.
func resolveExtent(xa, ya *IterDomain, typ OpType, axis int) int {
	switch {
	case xa.extent == ya.extent:
		return xa.extent
	case xa.broadcast || xa.extent == 1:
		return ya.extent
	case ya.broadcast || ya.extent == 1:
		return xa.extent
	case xa.extent == SymbolicExtent || ya.extent == SymbolicExtent:
		return SymbolicExtent
	}
	exceptions.Panicf("binary op %s: incompatible extents %d vs %d on axis %d", typ, xa.extent, ya.extent, axis)
	return 0
}

// Add returns element-wise x+y. Operands must have the same rank; size-1 and
// broadcast axes combine with the other operand's axis.
func Add(x, y *TensorView) *TensorView { return binaryOp(OpTypeAdd, x, y) }

// Sub returns element-wise x-y.
func Sub(x, y *TensorView) *TensorView { return binaryOp(OpTypeSub, x, y) }

// Mul returns element-wise x*y.
func Mul(x, y *TensorView) *TensorView { return binaryOp(OpTypeMul, x, y) }

// Transpose returns x with axes axisA and axisB swapped. Negative axes count
// from the end.
func Transpose(x *TensorView, axisA, axisB int) *TensorView {
	rank := x.Rank()
	axisA = adjustAxis(axisA, rank)
	axisB = adjustAxis(axisB, rank)
	perm := identityAlignment(rank)
	perm[axisA], perm[axisB] = axisB, axisA

	f := x.fusion
	root := make([]*IterDomain, rank)
	for cons, prod := range perm {
		src := x.root[prod]
		root[cons] = &IterDomain{extent: src.extent, broadcast: src.broadcast}
	}
	// Contiguity tracks the producer's memory layout through the view: the
	// output's last axis stays contiguous only when the transpose leaves it
	// in place.
	if rank > 0 && perm[rank-1] == rank-1 && x.root[rank-1].contiguous {
		root[rank-1].contiguous = true
	}
	op := &Op{fusion: f, typ: OpTypeTranspose, inputs: []TensorID{x.id}, perm: perm}
	out := f.newTensorView(x.dtype, root, op)
	op.output = out.id
	f.addOp(op)
	return out
}

// Broadcast inserts broadcast axes into x: isNewAxis has one entry per
// output axis, true where a broadcast axis is inserted. The number of false
// entries must equal x's rank.
func Broadcast(x *TensorView, isNewAxis ...bool) *TensorView {
	numOld := 0
	for _, isNew := range isNewAxis {
		if !isNew {
			numOld++
		}
	}
	if numOld != x.Rank() {
		exceptions.Panicf("Broadcast: %d kept axes for input of rank %d", numOld, x.Rank())
	}
	f := x.fusion
	root := make([]*IterDomain, len(isNewAxis))
	nextIn := 0
	for axis, isNew := range isNewAxis {
		if isNew {
			root[axis] = &IterDomain{extent: 1, broadcast: true}
			continue
		}
		src := x.root[nextIn]
		root[axis] = &IterDomain{extent: src.extent, broadcast: src.broadcast, contiguous: src.contiguous}
		nextIn++
	}
	op := &Op{fusion: f, typ: OpTypeBroadcast, inputs: []TensorID{x.id}, isNewAxis: append([]bool(nil), isNewAxis...)}
	out := f.newTensorView(x.dtype, root, op)
	op.output = out.id
	f.addOp(op)
	return out
}

func copyRootFrom(src []*IterDomain) []*IterDomain {
	root := make([]*IterDomain, len(src))
	for ii, axis := range src {
		root[ii] = &IterDomain{extent: axis.extent, broadcast: axis.broadcast, contiguous: axis.contiguous}
	}
	return root
}

// BindInputShapes binds concrete extents from example input shapes to the
// fusion's parameters, and re-derives every downstream root extent. Any
// authored schedules are discarded: binding must happen before scheduling.
func (f *Fusion) BindInputShapes(inputShapes []shapes.Shape) {
	if len(inputShapes) != len(f.inputs) {
		exceptions.Panicf("BindInputShapes: %d shapes for %d fusion inputs", len(inputShapes), len(f.inputs))
	}
	for ii, id := range f.inputs {
		tv := f.tensors[id]
		shape := inputShapes[ii]
		if shape.Rank() != tv.Rank() {
			exceptions.Panicf("BindInputShapes: input #%d (%s) has rank %d, shape %s has rank %d",
				ii, tv.Name(), tv.Rank(), shape, shape.Rank())
		}
		if shape.DType != tv.dtype {
			exceptions.Panicf("BindInputShapes: input #%d (%s) has dtype %s, shape has %s",
				ii, tv.Name(), tv.dtype, shape.DType)
		}
		for axis, dim := range shape.Dimensions {
			if tv.root[axis].broadcast {
				continue
			}
			tv.root[axis].extent = dim
		}
	}
	// Ops are in topological order: one forward sweep rebinds everything.
	for _, op := range f.ops {
		out := op.Output()
		switch op.typ {
		case OpTypeAdd, OpTypeSub, OpTypeMul:
			x, y := op.Inputs()[0], op.Inputs()[1]
			for axis := range out.root {
				if out.root[axis].broadcast {
					continue
				}
				out.root[axis].extent = resolveExtent(x.root[axis], y.root[axis], op.typ, axis)
			}
		default:
			in := op.Inputs()[0]
			p2c := op.MapProducerToConsumer(0)
			for prod, cons := range p2c {
				if cons < 0 || out.root[cons].broadcast {
					continue
				}
				out.root[cons].extent = in.root[prod].extent
			}
		}
		out.resetToRoot()
	}
	for _, id := range f.inputs {
		f.tensors[id].resetToRoot()
	}
}
