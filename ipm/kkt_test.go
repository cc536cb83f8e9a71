// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/interior/linsol"
	"github.com/curioloop/interior/sparse"
)

func TestFilter(t *testing.T) {
	var f filter
	assert.True(t, f.acceptable(1, 1), "empty filter accepts everything")

	f.add(1, 5)
	f.add(3, 2)
	assert.False(t, f.acceptable(1, 5), "entries themselves are rejected")
	assert.False(t, f.acceptable(2, 6))
	assert.True(t, f.acceptable(0.5, 6))
	assert.True(t, f.acceptable(2, 3))
	assert.False(t, f.acceptable(4, 2))

	f.add(4, 6)
	assert.Len(t, f, 2, "dominated pair is not inserted")

	f.add(0.5, 1)
	assert.Equal(t, filter{{0.5, 1}}, f, "dominated entries are removed")

	f.reset()
	assert.Empty(t, f)
}

func kktFixture(t *testing.T, lin linsol.Method, w00 float64) (*kktSystem, *sparse.Matrix, *sparse.Matrix) {
	opts, err := resolve(&Problem{Linear: Linear{Method: lin}})
	require.NoError(t, err)
	log := newLogger(nil)

	hess := sparse.New(2, 2, sparse.Pattern{Rows: []int{0, 1}, Cols: []int{0, 1}})
	copy(hess.Values, []float64{w00, 1})
	jac := sparse.New(1, 2, sparse.Pattern{Rows: []int{0, 0}, Cols: []int{0, 1}})
	copy(jac.Values, []float64{1, 1})
	return newKKT(2, 1, hess, nil, jac, opts.linear, &log), hess, jac
}

var linearMethods = []linsol.Method{linsol.SparseLDL, linsol.BunchKaufman, linsol.Spectral}

func TestInertiaCorrection(t *testing.T) {
	for _, lin := range linearMethods {
		t.Run(lin.String(), func(t *testing.T) {
			// reduced Hessian (-2+1+2δ)/2 needs δ_w > 0.5
			k, hess, jac := kktFixture(t, lin, -2)
			k.assemble(hess, nil, []float64{0, 0}, jac)

			require.True(t, k.factorize(0.1))
			assert.InDelta(t, 1, k.deltaW, 1e-12, "1e-4 grown twice by 100")
			assert.Zero(t, k.deltaC)
			assert.Equal(t, 4, k.tries)

			require.True(t, k.factorize(0.1))
			assert.InDelta(t, 8.0/3, k.deltaW, 1e-12, "reused δ_w/3 grown by 8")

			rhs := []float64{1, 2, 3}
			sol := make([]float64, 3)
			require.NoError(t, k.solve(rhs, sol))
			dw := k.deltaW
			km := mat.NewSymDense(3, []float64{
				-2 + dw, 0, 1,
				0, 1 + dw, 1,
				1, 1, 0,
			})
			got := mat.NewVecDense(3, nil)
			got.MulVec(km, mat.NewVecDense(3, sol))
			assert.InDeltaSlice(t, rhs, got.RawVector().Data, 1e-12)
		})
	}
}

func TestInertiaCorrectionSingularJacobianBlock(t *testing.T) {
	for _, lin := range []linsol.Method{linsol.SparseLDL, linsol.BunchKaufman} {
		t.Run(lin.String(), func(t *testing.T) {
			k, hess, jac := kktFixture(t, lin, 0)
			hess.Values[1] = 0
			k.assemble(hess, nil, []float64{0, 0}, jac)

			mu := 1e-4
			require.True(t, k.factorize(mu))
			assert.InDelta(t, 1e-8*math.Pow(mu, 0.25), k.deltaC, 1e-20)
			assert.InDelta(t, 1e-4, k.deltaW, 1e-18)
		})
	}
}

func TestSparseBreakdownUsesDenseFactorization(t *testing.T) {
	// a zero leading pivot needs the 2×2 pivots of the dense factorization
	k, hess, jac := kktFixture(t, linsol.SparseLDL, 0)
	k.assemble(hess, nil, []float64{0, 0}, jac)
	require.True(t, k.factorize(0.1))
	assert.True(t, k.dense)
	assert.Zero(t, k.deltaW)

	k.assemble(hess, nil, []float64{1, 0}, jac)
	require.True(t, k.factorize(0.1))
	assert.False(t, k.dense)

	sol := make([]float64, 3)
	require.NoError(t, k.solve([]float64{1, 1, 0}, sol))
	// [1 0 1; 0 1 1; 1 1 0] 𝐱 = (1, 1, 0)
	assert.InDeltaSlice(t, []float64{0, 0, 1}, sol, 1e-12)
}

func TestInertiaCorrectionGivesUp(t *testing.T) {
	k, hess, jac := kktFixture(t, linsol.BunchKaufman, -2)
	k.lin.MaxPerturbTries = 2
	k.assemble(hess, nil, []float64{0, 0}, jac)
	assert.False(t, k.factorize(0.1))
}

func TestLeastSquaresSystem(t *testing.T) {
	for _, lin := range linearMethods {
		t.Run(lin.String(), func(t *testing.T) {
			k, _, jac := kktFixture(t, lin, 0)
			require.True(t, k.factorizeLSQ(jac))

			// min ½‖d‖² s.t. d₀ + d₁ = 1 has d = (½, ½) and multiplier -½
			sol := make([]float64, 3)
			require.NoError(t, k.solve([]float64{0, 0, 1}, sol))
			assert.InDeltaSlice(t, []float64{0.5, 0.5, -0.5}, sol, 1e-12)

			copy(jac.Values, []float64{0, 0})
			assert.False(t, k.factorizeLSQ(jac), "rank deficient Jacobian")
		})
	}
}

func TestBFGS(t *testing.T) {
	q := newBFGS(2)
	s, y := []float64{1, 2}, []float64{3, 1}
	q.update(s, y)
	require.Equal(t, 1, q.updates)

	// secant condition 𝐁⁺𝐬 = 𝐲
	bs := mat.NewVecDense(2, nil)
	bs.MulVec(q.b, mat.NewVecDense(2, s))
	assert.InDeltaSlice(t, y, bs.RawVector().Data, 1e-12)

	// negative curvature is damped and 𝐁 stays positive definite
	q.reset()
	q.update([]float64{1, 0}, []float64{-1, 0})
	assert.InDelta(t, 0.2, q.b.At(0, 0), 1e-12)
	var chol mat.Cholesky
	assert.True(t, chol.Factorize(q.b))

	q.update([]float64{0, 0}, []float64{1, 1})
	assert.Equal(t, 1, q.skips)

	p := make([]float64, 3)
	q.packed(p)
	assert.Equal(t, []float64{q.b.At(0, 0), q.b.At(1, 0), q.b.At(1, 1)}, p)
}
