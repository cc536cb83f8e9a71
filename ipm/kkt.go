// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/interior/linsol"
	"github.com/curioloop/interior/sparse"
)

// kktSystem assembles and factorizes the primal-dual augmented system
//
//	⎡ 𝐖 + 𝚺 + δ_w𝐈    𝐉ᵀ   ⎤ ⎡ 𝐝_w ⎤     ⎡ 𝛁φ_μ + 𝐉ᵀ𝐲 ⎤
//	⎣      𝐉        -δ_c𝐈 ⎦ ⎣ 𝐝_y ⎦ = - ⎣     𝒉      ⎦
//
// where 𝚺 = 𝐙ₗ(𝐖-𝐋)⁻¹ + 𝐙ᵤ(𝐔-𝐖)⁻¹. The perturbations δ_w and δ_c are chosen
// so the matrix has inertia (n_w, m_h, 0), which makes 𝐝_w a descent direction
// for the barrier problem restricted to the null space of 𝐉.
//
// The matrix is kept in coordinate form, laid out as
//
//	[ diag(𝐖) | diag(𝐂) | 𝐖 or 𝐁 | 𝐉 ]
//
// with the Hessian block taken from the user pattern, or the lower triangle
// of the quasi-Newton matrix 𝐁.
type kktSystem struct {
	nw, mh int
	lin    Linear
	log    *Logger

	pat          sparse.Pattern
	hessAt       int // offset of the Hessian block in pat
	jacAt        int // offset of the Jacobian block in pat
	base, values []float64

	sp    *linsol.Sparse // nil for dense methods
	fact  linsol.Factorizer
	k     *mat.SymDense // dense copy for fact
	dense bool          // last factorization is held by fact

	deltaW, deltaC float64 // accepted perturbation of the last factorization
	lastDeltaW     float64 // last non-zero δ_w
	tries          int     // factorizations of the last call

	res, corr []float64
}

// newKKT lays out the KKT matrix for the Hessian pattern of hess, or the
// first qn.n variables when qn is set, and the Jacobian pattern of jac.
func newKKT(nw, mh int, hess *sparse.Matrix, qn *bfgs, jac *sparse.Matrix, lin Linear, log *Logger) *kktSystem {
	n := nw + mh
	s := &kktSystem{
		nw: nw, mh: mh, lin: lin, log: log,
		res:  make([]float64, n),
		corr: make([]float64, n),
	}

	p := &s.pat
	add := func(i, j int) {
		p.Rows = append(p.Rows, i)
		p.Cols = append(p.Cols, j)
	}
	for i := 0; i < n; i++ {
		add(i, i)
	}
	s.hessAt = len(p.Rows)
	switch {
	case qn != nil:
		for i := 0; i < qn.n; i++ {
			for j := 0; j <= i; j++ {
				add(i, j)
			}
		}
	case hess != nil:
		for k := 0; k < hess.NNZ(); k++ {
			add(hess.At(k))
		}
	}
	s.jacAt = len(p.Rows)
	for k := 0; k < jac.NNZ(); k++ {
		i, j := jac.At(k)
		add(nw+i, j)
	}
	s.base = make([]float64, p.Len())
	s.values = make([]float64, p.Len())

	s.fact = linsol.New(lin.Method)
	switch f := s.fact.(type) {
	case *linsol.LDL:
		f.ZeroTol = lin.ZeroTol
	case *linsol.Eigen:
		f.ZeroTol = lin.ZeroTol
	}
	if lin.Method == linsol.SparseLDL {
		s.sp = linsol.NewSparse()
		s.sp.PivotTol = lin.PivotTol
		if err := s.sp.Analyze(n, s.pat, nw); err != nil {
			panic(err)
		}
	}
	return s
}

func (s *kktSystem) reset() {
	s.deltaW, s.deltaC, s.lastDeltaW = zero, zero, zero
}

// assemble writes 𝐖 + 𝚺 and 𝐉 into the unperturbed matrix.
// Exactly one of hess and qn provides the Hessian block.
func (s *kktSystem) assemble(hess *sparse.Matrix, qn *bfgs, sigma []float64, jac *sparse.Matrix) {
	b := s.base
	for i := range b {
		b[i] = zero
	}
	copy(b, sigma)
	if qn != nil {
		qn.packed(b[s.hessAt:s.jacAt])
	} else {
		copy(b[s.hessAt:s.jacAt], hess.Values)
	}
	copy(b[s.jacAt:], jac.Values)
}

func (s *kktSystem) perturb(dw, dc float64) {
	copy(s.values, s.base)
	for i := 0; i < s.nw; i++ {
		s.values[i] += dw
	}
	for i := s.nw; i < s.nw+s.mh; i++ {
		s.values[i] -= dc
	}
}

// factor factorizes the perturbed matrix. The sparse factorization hands
// over to the dense one when it breaks down on a small pivot.
func (s *kktSystem) factor() (linsol.Inertia, error) {
	if s.sp != nil {
		err := s.sp.Factorize(s.values)
		if err == nil {
			s.dense = false
			return s.sp.Inertia(), nil
		}
		if !errors.Is(err, linsol.ErrBreakdown) {
			return linsol.Inertia{}, err
		}
		if s.log.enable(LogTrace) {
			s.log.log("Sparse factorization: %v, using dense factorization\n", err)
		}
	}
	n := s.nw + s.mh
	if s.k == nil {
		s.k = mat.NewSymDense(max(n, 1), nil)
	}
	s.k.Zero()
	for t, i := range s.pat.Rows {
		j := s.pat.Cols[t]
		s.k.SetSym(i, j, s.k.At(i, j)+s.values[t])
	}
	s.dense = true
	err := s.fact.Factorize(s.k)
	return s.fact.Inertia(), err
}

// factorize finds the smallest perturbation in the trial sequence
//
//	δ_w ∈ { 0, 𝚖𝚊𝚡(δ_min, κ⁻δ_w_last), κ⁺δ_w, … }
//
// for which the matrix has the expected inertia. Zero eigenvalues first
// trigger δ_c = δ̄_c μ^κ_c. It reports false when no perturbation up to
// δ_max (or the attempt budget) is sufficient.
func (s *kktSystem) factorize(mu float64) bool {
	lin := s.lin
	dw, dc := zero, zero
	for s.tries = 1; s.tries <= lin.MaxPerturbTries; s.tries++ {
		s.perturb(dw, dc)
		in, err := s.factor()
		if err != nil && !errors.Is(err, linsol.ErrSingular) {
			if s.log.enable(LogTrace) {
				s.log.log("KKT factorization failed: %v\n", err)
			}
			return false
		}
		if s.log.enable(LogTrace) {
			s.log.log("KKT inertia %v with δ_w=%.2e δ_c=%.2e\n", in, dw, dc)
		}
		if in.Pos == s.nw && in.Neg == s.mh && in.Zero == 0 {
			s.deltaW, s.deltaC = dw, dc
			if dw > zero {
				s.lastDeltaW = dw
			}
			return true
		}
		if in.Zero > 0 && s.mh > 0 && dc == zero {
			dc = lin.JacRegValue * math.Pow(mu, lin.JacRegExponent)
			continue
		}
		switch {
		case dw == zero && s.lastDeltaW == zero:
			dw = lin.FirstPerturb
		case dw == zero:
			dw = math.Max(lin.MinPerturb, lin.DecFactor*s.lastDeltaW)
		case s.lastDeltaW == zero:
			dw *= lin.FirstIncFactor
		default:
			dw *= lin.IncFactor
		}
		if dw > lin.MaxPerturb {
			break
		}
	}
	if s.log.enable(LogTrace) {
		s.log.log("KKT inertia correction failed after %d factorizations\n", s.tries)
	}
	return false
}

// factorizeLSQ factorizes [𝐈 𝐉ᵀ; 𝐉 0] and reports whether it is nonsingular.
func (s *kktSystem) factorizeLSQ(jac *sparse.Matrix) bool {
	b := s.base
	for i := range b {
		b[i] = zero
	}
	for i := 0; i < s.nw; i++ {
		b[i] = one
	}
	copy(b[s.jacAt:], jac.Values)
	s.perturb(zero, zero)
	in, err := s.factor()
	if err != nil {
		return false
	}
	return in.Pos == s.nw && in.Neg == s.mh && in.Zero == 0
}

// mulVec computes dst = 𝐊x for the perturbed matrix.
func (s *kktSystem) mulVec(dst, x []float64) {
	for i := range dst {
		dst[i] = zero
	}
	for t, i := range s.pat.Rows {
		j, v := s.pat.Cols[t], s.values[t]
		dst[i] += v * x[j]
		if i != j {
			dst[j] += v * x[i]
		}
	}
}

func (s *kktSystem) solveOnce(dst, b []float64) error {
	if s.dense || s.sp == nil {
		return s.fact.SolveVecTo(dst, b)
	}
	return s.sp.SolveVecTo(dst, b)
}

// solve solves the factorized system for rhs into sol with iterative refinement.
func (s *kktSystem) solve(rhs, sol []float64) error {
	if err := s.solveOnce(sol, rhs); err != nil {
		return err
	}
	lin := s.lin
	bnorm := math.Max(one, normInf(rhs))
	prev := math.Inf(1)
	for step := 0; step < lin.MaxRefineSteps; step++ {
		// 𝐫 = 𝐛 - 𝐊𝐱
		s.mulVec(s.res, sol)
		for i := range s.res {
			s.res[i] = rhs[i] - s.res[i]
		}
		rn := normInf(s.res)
		if step >= lin.MinRefineSteps && (rn <= lin.ResidualRatio*bnorm || rn >= prev) {
			break
		}
		prev = rn
		if err := s.solveOnce(s.corr, s.res); err != nil {
			return err
		}
		for i, c := range s.corr {
			sol[i] += c
		}
	}
	return nil
}
