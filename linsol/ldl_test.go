// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linsol

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func randSym(rnd *rand.Rand, n int) *mat.SymDense {
	a := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a.SetSym(i, j, rnd.NormFloat64())
		}
	}
	return a
}

func residual(a mat.Symmetric, x, b []float64) float64 {
	n := len(x)
	r := mat.NewVecDense(n, nil)
	r.MulVec(a, mat.NewVecDense(n, x))
	r.SubVec(r, mat.NewVecDense(n, b))
	return mat.Norm(r, 2) / max(1, floats.Norm(b, 2))
}

func TestLDLMatchesSpectrum(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, n := range []int{1, 2, 3, 5, 8, 13, 30, 60} {
		a := randSym(rnd, n)

		ldl, eig := NewLDL(), NewEigen()
		require.NoError(t, ldl.Factorize(a))
		require.NoError(t, eig.Factorize(a))
		assert.Equal(t, eig.Inertia(), ldl.Inertia(), "n=%d", n)

		b := make([]float64, n)
		for i := range b {
			b[i] = rnd.Float64()
		}
		x := make([]float64, n)
		require.NoError(t, ldl.SolveVecTo(x, b))
		assert.Less(t, residual(a, x, b), 1e-10, "n=%d", n)

		y := make([]float64, n)
		require.NoError(t, eig.SolveVecTo(y, b))
		assert.True(t, floats.EqualApprox(x, y, 1e-6), "n=%d", n)
	}
}

func TestLDLTwoByTwoPivot(t *testing.T) {
	// zero diagonal forces a 2×2 block
	a := mat.NewSymDense(3, []float64{
		0, 1, 2,
		1, 0, 3,
		2, 3, 0,
	})
	f := NewLDL()
	require.NoError(t, f.Factorize(a))
	assert.Equal(t, Inertia{Pos: 1, Neg: 2}, f.Inertia())

	b := []float64{1, 2, 3}
	x := make([]float64, 3)
	require.NoError(t, f.SolveVecTo(x, b))
	assert.Less(t, residual(a, x, b), 1e-12)

	// aliasing input and output
	require.NoError(t, f.SolveVecTo(b, b))
	assert.True(t, floats.EqualApprox(x, b, 1e-14))
}

func TestKKTInertia(t *testing.T) {
	// [H Jᵀ; J 0] with H ≻ 0 and J full row rank has inertia (n, m, 0)
	h := []float64{4, 1, 1, 3}
	j := []float64{1, 2}
	k := mat.NewSymDense(3, nil)
	k.SetSym(0, 0, h[0])
	k.SetSym(0, 1, h[1])
	k.SetSym(1, 1, h[3])
	k.SetSym(2, 0, j[0])
	k.SetSym(2, 1, j[1])

	for _, f := range []Factorizer{New(BunchKaufman), New(Spectral)} {
		require.NoError(t, f.Factorize(k))
		assert.Equal(t, Inertia{Pos: 2, Neg: 1}, f.Inertia())
	}
}

func TestSingular(t *testing.T) {
	a := mat.NewSymDense(3, []float64{
		1, 1, 0,
		1, 1, 0,
		0, 0, 2,
	})
	for _, f := range []Factorizer{New(BunchKaufman), New(Spectral)} {
		require.NoError(t, f.Factorize(a))
		assert.Equal(t, 1, f.Inertia().Zero)
		x := make([]float64, 3)
		assert.ErrorIs(t, f.SolveVecTo(x, []float64{1, 1, 1}), ErrSingular)
	}

	z := mat.NewSymDense(2, nil)
	f := NewLDL()
	require.NoError(t, f.Factorize(z))
	assert.Equal(t, Inertia{Zero: 2}, f.Inertia())
}

func TestNotFactorized(t *testing.T) {
	f := NewLDL()
	assert.ErrorIs(t, f.SolveVecTo(nil, nil), ErrNotFactorized)

	bad := mat.NewSymDense(1, []float64{0})
	bad.SetSym(0, 0, 1/zeroDiv())
	assert.ErrorIs(t, f.Factorize(bad), ErrNotFinite)
}

func zeroDiv() float64 { return 0 }

func TestRefactorizeDifferentSize(t *testing.T) {
	f := NewLDL()
	require.NoError(t, f.Factorize(mat.NewSymDense(2, []float64{2, 0, 0, -1})))
	assert.Equal(t, Inertia{Pos: 1, Neg: 1}, f.Inertia())
	require.NoError(t, f.Factorize(mat.NewSymDense(1, []float64{5})))
	x := []float64{0}
	require.NoError(t, f.SolveVecTo(x, []float64{10}))
	assert.Equal(t, 2.0, x[0])

	e := NewEigen()
	require.NoError(t, e.Factorize(mat.NewSymDense(3, []float64{1, 0, 0, 0, 2, 0, 0, 0, 3})))
	require.NoError(t, e.Factorize(mat.NewSymDense(2, []float64{1, 0, 0, -2})))
	assert.Equal(t, Inertia{Pos: 1, Neg: 1}, e.Inertia())
}
