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

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeBasics(t *testing.T) {
	shape0 := Scalar[float64]()
	assert.True(t, shape0.Ok())
	assert.True(t, shape0.IsScalar())
	require.Equal(t, 8, int(shape0.Memory()))

	shape1 := Make(dtypes.Float32, 2, 3, 4)
	assert.Equal(t, 3, shape1.Rank())
	assert.Equal(t, 24, shape1.Size())
	require.Equal(t, 4*2*3*4, int(shape1.Memory()))
	assert.Equal(t, 4, shape1.Dim(-1))
	assert.Equal(t, 2, shape1.Dim(0))
	assert.Equal(t, "(Float32)[2 3 4]", shape1.String())

	assert.True(t, shape1.Equal(shape1.Clone()))
	assert.False(t, shape1.Equal(Make(dtypes.Float32, 2, 3)))
	assert.False(t, shape1.Equal(Make(dtypes.Float64, 2, 3, 4)))

	assert.False(t, Invalid().Ok())

	assert.Panics(t, func() { Make(dtypes.Float32, 2, 0) })
	assert.Panics(t, func() { shape1.Dim(3) })
}

func TestLinearIndex(t *testing.T) {
	shape := Make(dtypes.Float32, 2, 3, 4)
	assert.Equal(t, 0, shape.LinearIndex([]int{0, 0, 0}))
	assert.Equal(t, 23, shape.LinearIndex([]int{1, 2, 3}))
	assert.Equal(t, 4, shape.StrideForAxis(1))
	assert.Equal(t, 1, shape.StrideForAxis(2))
	assert.Equal(t, 12, shape.StrideForAxis(0))
	assert.Panics(t, func() { shape.LinearIndex([]int{0, 0}) })
	assert.Panics(t, func() { shape.LinearIndex([]int{0, 3, 0}) })
}
