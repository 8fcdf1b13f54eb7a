// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package emulator

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/types/shapes"
)

// evalOp applies the scalar math of one op. Transpose, Broadcast and cache
// copies move values, their math is the identity.
func evalOp(typ fusion.OpType, operands []float64) float64 {
	switch typ {
	case fusion.OpTypeNeg:
		return -operands[0]
	case fusion.OpTypeSin:
		return math.Sin(operands[0])
	case fusion.OpTypeCos:
		return math.Cos(operands[0])
	case fusion.OpTypeSigmoid:
		return 1.0 / (1.0 + math.Exp(-operands[0]))
	case fusion.OpTypeRelu:
		return math.Max(operands[0], 0)
	case fusion.OpTypeAdd:
		return operands[0] + operands[1]
	case fusion.OpTypeSub:
		return operands[0] - operands[1]
	case fusion.OpTypeMul:
		return operands[0] * operands[1]
	case fusion.OpTypeTranspose, fusion.OpTypeBroadcast, fusion.OpTypeCacheCopy:
		return operands[0]
	}
	exceptions.Panicf("emulator: op type %s has no evaluation rule", typ)
	return 0
}

// rootShape returns the buffer shape of tv's root domain; broadcast axes
// store a single element.
func rootShape(tv *fusion.TensorView) shapes.Shape {
	dims := make([]int, tv.Rank())
	for axis, id := range tv.Root() {
		dims[axis] = id.Extent()
		if id.IsBroadcast() {
			dims[axis] = 1
		}
	}
	return shapes.Make(tv.DType(), dims...)
}

// producerIndices maps an output element's root indices to the root indices
// of input inputIdx, clamping axes the producer stores only once.
func producerIndices(op *fusion.Op, inputIdx int, outIndices []int) []int {
	in := op.Inputs()[inputIdx]
	c2p := op.MapConsumerToProducer(inputIdx)
	inIndices := make([]int, in.Rank())
	for consAxis, prodAxis := range c2p {
		if prodAxis < 0 {
			continue
		}
		idx := outIndices[consAxis]
		if extent := in.Root()[prodAxis].Extent(); in.Root()[prodAxis].IsBroadcast() || extent == 1 {
			idx = 0
		}
		inIndices[prodAxis] = idx
	}
	return inIndices
}

// Reference evaluates the fusion in plain topological order, one full tensor
// at a time, with no notion of scheduling. Inputs follow the order of
// Fusion.Inputs, the results the order of Fusion.Outputs.
//
// It is the oracle the scheduled execution is compared against.
func Reference(f *fusion.Fusion, inputs []*Buffer) []*Buffer {
	if len(inputs) != len(f.Inputs()) {
		exceptions.Panicf("emulator.Reference: %d input buffers for %d fusion inputs", len(inputs), len(f.Inputs()))
	}
	values := make(map[fusion.TensorID]*Buffer, f.NumTensors())
	for ii, tv := range f.Inputs() {
		if !inputs[ii].Shape().Equal(rootShape(tv)) {
			exceptions.Panicf("emulator.Reference: input #%d has shape %s, fusion expects %s",
				ii, inputs[ii].Shape(), rootShape(tv))
		}
		values[tv.ID()] = inputs[ii]
	}

	operands := make([]float64, 4)
	for _, op := range f.Ops() {
		out := op.Output()
		buf := NewBuffer(rootShape(out))
		outIndices := make([]int, out.Rank())
		for flatIdx := 0; flatIdx < buf.Shape().Size(); flatIdx++ {
			ops := operands[:op.NumInputs()]
			for inputIdx, in := range op.Inputs() {
				inBuf := values[in.ID()]
				ops[inputIdx] = inBuf.At(producerIndices(op, inputIdx, outIndices)...)
			}
			buf.SetFlat(evalOp(op.Type(), ops), flatIdx)
			incrementIndices(outIndices, buf.Shape().Dimensions)
		}
		values[out.ID()] = buf
	}

	results := make([]*Buffer, len(f.Outputs()))
	for ii, tv := range f.Outputs() {
		results[ii] = values[tv.ID()]
	}
	return results
}

// incrementIndices advances a row-major index vector by one position.
func incrementIndices(indices, dims []int) {
	for axis := len(indices) - 1; axis >= 0; axis-- {
		indices[axis]++
		if indices[axis] < dims[axis] {
			return
		}
		indices[axis] = 0
	}
}

// RandomInputs creates one random buffer per fusion input, to the given
// shapes. Deterministic for a given seed.
func RandomInputs(seed uint64, inputShapes []shapes.Shape) []*Buffer {
	rng := newRand(seed)
	buffers := make([]*Buffer, len(inputShapes))
	for ii, shape := range inputShapes {
		if shape.DType == dtypes.InvalidDType {
			exceptions.Panicf("emulator.RandomInputs: invalid shape for input #%d", ii)
		}
		buffers[ii] = NewBuffer(shape).FillRandom(rng)
	}
	return buffers
}
