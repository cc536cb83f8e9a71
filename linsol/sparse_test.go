// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linsol

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/interior/sparse"
)

type coords struct {
	p sparse.Pattern
	v []float64
}

func (c *coords) add(i, j int, v float64) {
	c.p.Rows = append(c.p.Rows, i)
	c.p.Cols = append(c.p.Cols, j)
	c.v = append(c.v, v)
}

func (c *coords) dense(n int) *mat.SymDense {
	a := mat.NewSymDense(n, nil)
	for k, i := range c.p.Rows {
		j := c.p.Cols[k]
		a.SetSym(i, j, a.At(i, j)+c.v[k])
	}
	return a
}

// randKKT returns a quasi-definite matrix [𝐇 𝐉ᵀ; 𝐉 -δ𝐈] with a diagonally
// dominant 𝐇 and a sparse random 𝐉.
func randKKT(rnd *rand.Rand, nw, mh int) *coords {
	c := new(coords)
	diag := make([]float64, nw)
	for i := 0; i < nw; i++ {
		for j := 0; j < i; j++ {
			if rnd.Float64() < 0.2 {
				v := rnd.NormFloat64()
				c.add(i, j, v)
				diag[i] += 1 + 2*math.Abs(v)
				diag[j] += 1 + 2*math.Abs(v)
			}
		}
	}
	for i := 0; i < nw; i++ {
		c.add(i, i, diag[i]+1)
	}
	for r := 0; r < mh; r++ {
		c.add(nw+r, nw+r, -1e-3)
		c.add(nw+r, rnd.Intn(nw), rnd.NormFloat64())
		for j := 0; j < nw; j++ {
			if rnd.Float64() < 0.15 {
				c.add(nw+r, j, rnd.NormFloat64())
			}
		}
	}
	return c
}

func TestSparseMatchesDense(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		nw, mh := 1+rnd.Intn(25), rnd.Intn(10)
		n := nw + mh
		c := randKKT(rnd, nw, mh)

		f := NewSparse()
		require.NoError(t, f.Analyze(n, c.p, nw))
		require.NoError(t, f.Factorize(c.v))
		assert.Equal(t, Inertia{Pos: nw, Neg: mh}, f.Inertia())

		a := c.dense(n)
		e := NewEigen()
		require.NoError(t, e.Factorize(a))
		assert.Equal(t, e.Inertia(), f.Inertia())

		b := make([]float64, n)
		for i := range b {
			b[i] = rnd.NormFloat64()
		}
		x := make([]float64, n)
		require.NoError(t, f.SolveVecTo(x, b))
		assert.Less(t, residual(a, x, b), 1e-10)

		// refactorize new values over the same pattern
		for k := range c.v {
			c.v[k] *= 2
		}
		require.NoError(t, f.Factorize(c.v))
		require.NoError(t, f.SolveVecTo(x, b))
		assert.Less(t, residual(c.dense(n), x, b), 1e-10)
	}
}

func TestSparseIndefinite(t *testing.T) {
	// eigenvalues 3, -1 and 2
	c := new(coords)
	c.add(0, 0, 1)
	c.add(1, 0, 2)
	c.add(1, 1, 1)
	c.add(2, 2, 2)

	f := NewSparse()
	require.NoError(t, f.Analyze(3, c.p, 3))
	require.NoError(t, f.Factorize(c.v))
	assert.Equal(t, Inertia{Pos: 2, Neg: 1}, f.Inertia())

	x := make([]float64, 3)
	require.NoError(t, f.SolveVecTo(x, []float64{3, 3, 4}))
	assert.InDeltaSlice(t, []float64{1, 1, 2}, x, 1e-12)
}

func TestSparseOrdering(t *testing.T) {
	// arrowhead matrix with the dense row first
	const n = 30
	c := new(coords)
	for i := 0; i < n; i++ {
		c.add(i, i, n)
		if i > 0 {
			c.add(i, 0, 1)
		}
	}
	f := NewSparse()
	require.NoError(t, f.Analyze(n, c.p, n))
	assert.Contains(t, f.perm[n-2:], 0, "hub is eliminated with the last leaf")
	assert.Equal(t, n-1, f.NNZ(), "no fill")
	require.NoError(t, f.Factorize(c.v))
	assert.Equal(t, Inertia{Pos: n}, f.Inertia())

	// nodes at or above split come last regardless of degree
	require.NoError(t, f.Analyze(n, c.p, 1))
	assert.Equal(t, 0, f.perm[0])
	assert.Equal(t, (n-1)*n/2, f.NNZ(), "eliminating the hub first fills everything")
}

func TestSparseDuplicates(t *testing.T) {
	c := new(coords)
	c.add(0, 0, 1)
	c.add(0, 0, 3)
	c.add(0, 1, 0.5)
	c.add(1, 0, 0.5)
	c.add(1, 1, 2)

	f := NewSparse()
	require.NoError(t, f.Analyze(2, c.p, 2))
	require.NoError(t, f.Factorize(c.v))

	// [4 1; 1 2] 𝐱 = (5, 3)
	x := make([]float64, 2)
	require.NoError(t, f.SolveVecTo(x, []float64{5, 3}))
	assert.InDeltaSlice(t, []float64{1, 1}, x, 1e-12)
}

func TestSparseBreakdown(t *testing.T) {
	c := new(coords)
	c.add(0, 0, 0)
	c.add(1, 0, 1)
	c.add(1, 1, 0)

	f := NewSparse()
	require.NoError(t, f.Analyze(2, c.p, 2))
	assert.ErrorIs(t, f.Factorize(c.v), ErrBreakdown)
	x := make([]float64, 2)
	assert.ErrorIs(t, f.SolveVecTo(x, []float64{1, 1}), ErrNotFactorized)

	c.v[0] = 1 / zeroDiv()
	assert.ErrorIs(t, f.Factorize(c.v), ErrNotFinite)

	assert.Error(t, f.Analyze(2, sparse.Pattern{Rows: []int{2}, Cols: []int{0}}, 2))
}
