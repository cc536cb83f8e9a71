// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// bfgs maintains a dense approximation 𝐁 of the Hessian of the Lagrangian
// restricted to the leading n variables.
//
// The update is damped as proposed by Powell so 𝐁 stays positive definite:
//
//	𝐁⁺ = 𝐁 - (𝐁𝐬𝐬ᵀ𝐁)/(𝐬ᵀ𝐁𝐬) + (𝐫𝐫ᵀ)/(𝐬ᵀ𝐫)
//	𝐫 = θ𝐲 + (1-θ)𝐁𝐬
//
// with θ = 1 unless 𝐬ᵀ𝐲 < 0.2·𝐬ᵀ𝐁𝐬, in which case θ = 0.8·𝐬ᵀ𝐁𝐬/(𝐬ᵀ𝐁𝐬 - 𝐬ᵀ𝐲).
type bfgs struct {
	n      int
	b      *mat.SymDense
	bs     []float64
	r      []float64
	scaled bool // initial matrix replaced by (𝐲ᵀ𝐲/𝐬ᵀ𝐲)·𝐈

	updates, skips int
}

func newBFGS(n int) *bfgs {
	q := &bfgs{n: n, bs: make([]float64, n), r: make([]float64, n)}
	if n > 0 {
		q.b = mat.NewSymDense(n, nil)
	}
	q.reset()
	return q
}

func (q *bfgs) reset() {
	q.scaled = false
	q.updates, q.skips = 0, 0
	if q.b == nil {
		return
	}
	q.b.Zero()
	for i := 0; i < q.n; i++ {
		q.b.SetSym(i, i, one)
	}
}

// update applies the damped update for the step s and the gradient change y.
// Only the leading n entries of s and y are used.
func (q *bfgs) update(s, y []float64) {
	if q.n == 0 {
		return
	}
	s, y = s[:q.n], y[:q.n]
	sy := floats.Dot(s, y)
	ss := floats.Dot(s, s)
	if ss <= epsilon*epsilon {
		q.skips++
		return
	}
	if !q.scaled && sy > zero {
		// Shanno-Phua scaling of the initial matrix
		q.b.ScaleSym(floats.Dot(y, y)/sy, q.b)
		q.scaled = true
	}

	sv := mat.NewVecDense(q.n, s)
	bs := mat.NewVecDense(q.n, q.bs)
	bs.MulVec(q.b, sv)
	sbs := floats.Dot(s, q.bs)
	if sbs <= epsilon*ss {
		q.skips++
		return
	}

	theta := one
	if sy < 0.2*sbs {
		theta = 0.8 * sbs / (sbs - sy)
	}
	for i := range q.r {
		q.r[i] = theta*y[i] + (one-theta)*q.bs[i]
	}
	sr := floats.Dot(s, q.r)
	q.b.SymRankOne(q.b, -one/sbs, bs)
	q.b.SymRankOne(q.b, one/sr, mat.NewVecDense(q.n, q.r))
	q.updates++
}

// packed stores the lower triangle of 𝐁 row by row into dst, which holds
// n(n+1)/2 values.
func (q *bfgs) packed(dst []float64) {
	k := 0
	for i := 0; i < q.n; i++ {
		for j := 0; j <= i; j++ {
			dst[k] = q.b.At(i, j)
			k++
		}
	}
}
