/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package shapes defines Shape and associated tools.
//
// Shape represents the shape (rank, dimensions and DType) of a concrete tensor
// fed to or produced by a scheduled fusion. The scheduler uses shapes to bind
// concrete extents to the symbolic iteration domains of a fusion before making
// tiling decisions.
//
// DType is the data type of the unit element of a tensor, an enumeration
// defined in github.com/gomlx/gopjrt/dtypes.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a Tensor.
//   - Axis: the index of a dimension on a multidimensional Tensor.
//   - Dimension: the size of a Tensor in one of its axes.
package shapes

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gopjrt/dtypes"
)

// Shape represents the shape of a concrete tensor.
//
// Use Make to create a new shape.
type Shape struct {
	DType      DType
	Dimensions []int
}

// Make returns a Shape structure filled with the values given.
func Make(dtype DType, dimensions ...int) Shape {
	s := Shape{Dimensions: slices.Clone(dimensions), DType: dtype}
	for _, dim := range dimensions {
		if dim <= 0 {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with an axis with dimension <= 0", s)
		}
	}
	return s
}

// Scalar returns a scalar Shape for the given type.
func Scalar[T Number]() Shape {
	return Shape{DType: FromGenericsType[T]()}
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{} will be invalid.
func (s Shape) Ok() bool { return s.DType != InvalidDType }

// Rank of the shape, that is, the number of dimensions.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar, that is there are no dimensions (rank==0).
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// It panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// Shape returns a shallow copy of itself. It implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// String implements stringer, pretty-prints the shape.
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	return fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
}

// Size returns the number of elements of DType needed for this shape. It's the product of all dimensions.
func (s Shape) Size() (size int) {
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// Memory returns the memory used to store an array of the given shape, the same as the size in bytes.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Equal compares two shapes for equality: dtype and dimensions are compared.
func (s Shape) Equal(s2 Shape) bool {
	if s.DType != s2.DType {
		return false
	}
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() (s2 Shape) {
	s2.DType = s.DType
	s2.Dimensions = slices.Clone(s.Dimensions)
	return
}

// StrideForAxis returns the row-major stride (in elements) of the given axis.
func (s Shape) StrideForAxis(axis int) int {
	stride := 1
	for ii := s.Rank() - 1; ii > axis; ii-- {
		stride *= s.Dimensions[ii]
	}
	return stride
}

// LinearIndex converts per-axis indices to the row-major flat index for this shape.
// It panics if indices are out-of-bounds.
func (s Shape) LinearIndex(indices []int) int {
	if len(indices) != s.Rank() {
		exceptions.Panicf("Shape.LinearIndex: got %d indices for rank %d (shape=%s)", len(indices), s.Rank(), s)
	}
	linear := 0
	for axis, idx := range indices {
		if idx < 0 || idx >= s.Dimensions[axis] {
			exceptions.Panicf("Shape.LinearIndex: index %d out-of-bounds for axis %d (shape=%s)", idx, axis, s)
		}
		linear = linear*s.Dimensions[axis] + idx
	}
	return linear
}

// HasShape is an interface for objects that have an associated Shape.
type HasShape interface {
	Shape() Shape
}
