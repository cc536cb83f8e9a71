// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPatternCheck(t *testing.T) {
	p := Pattern{Rows: []int{1, 2, 2}, Cols: []int{1, 1, 3}}
	require.NoError(t, p.Check(2, 3, 1))
	assert.Error(t, p.Check(2, 3, 0), "one-based pattern treated as zero-based")
	assert.Error(t, Pattern{Rows: []int{0}, Cols: nil}.Check(1, 1, 0))

	q := p.Rebase(1)
	assert.Equal(t, []int{0, 1, 1}, q.Rows)
	assert.Equal(t, []int{0, 0, 2}, q.Cols)
	assert.Equal(t, []int{1, 2, 2}, p.Rows, "rebase must not touch the source")
}

func TestMulVec(t *testing.T) {
	// A = [1 0 2]
	//     [0 3 4]
	a := New(2, 3, Pattern{Rows: []int{0, 0, 1, 1}, Cols: []int{0, 2, 1, 2}})
	copy(a.Values, []float64{1, 2, 3, 4})

	y := make([]float64, 2)
	a.MulVec(y, []float64{1, 1, 1})
	assert.Equal(t, []float64{3, 7}, y)

	x := make([]float64, 3)
	a.MulTransVec(x, []float64{1, 2})
	assert.Equal(t, []float64{1, 6, 10}, x)

	r := make([]float64, 2)
	a.RowAbsMax(r)
	assert.Equal(t, []float64{2, 4}, r)

	assert.Panics(t, func() { a.MulVec(make([]float64, 3), x) })
}

func TestDuplicatesAreSummed(t *testing.T) {
	a := New(1, 1, Pattern{Rows: []int{0, 0}, Cols: []int{0, 0}})
	copy(a.Values, []float64{1.5, 2.5})
	y := []float64{0}
	a.MulVec(y, []float64{2})
	assert.Equal(t, 8.0, y[0])
	assert.Equal(t, 4.0, a.Dense().At(0, 0))
}

func TestAddBlockTo(t *testing.T) {
	j := New(1, 2, Pattern{Rows: []int{0, 0}, Cols: []int{0, 1}})
	copy(j.Values, []float64{1, -1})

	k := mat.NewSymDense(3, nil)
	j.AddBlockTo(k, 2, 0, 1)

	assert.Equal(t, 1.0, k.At(2, 0))
	assert.Equal(t, 1.0, k.At(0, 2))
	assert.Equal(t, -1.0, k.At(1, 2))
	assert.Equal(t, 0.0, k.At(2, 2))
}

func TestClone(t *testing.T) {
	a := New(2, 2, Pattern{Rows: []int{0, 1}, Cols: []int{0, 1}})
	copy(a.Values, []float64{1, 2})

	b := a.Clone()
	b.Values[0] = 5
	assert.Equal(t, 1.0, a.Values[0], "clone must own its values")

	b.Append(1, 0, 3)
	assert.Equal(t, 2, a.NNZ(), "appending to a clone must not grow the source")
	assert.Equal(t, 3, b.NNZ())
	i, j := b.At(2)
	assert.Equal(t, [2]int{1, 0}, [2]int{i, j})
}
