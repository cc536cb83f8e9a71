// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/interior/numdiff"
	"github.com/curioloop/interior/sparse"
)

// adapter presents the user problem as the internal scaled NLP over 𝐰 = (𝐱, 𝐬)
//
//	𝒇̃(𝐰) = s_f·𝒇(𝐱)
//	𝒉(𝐰) = [ 𝐝_c∘(𝒈_E(𝐱) - 𝒈ₗ); 𝐝_d∘𝒈_I(𝐱) - 𝐬 ]
//
// where 𝐱 only contains the free variables in scaled units 𝐝ₓ∘𝐱.
// User callbacks are cached per kind and guarded against panics.
type adapter struct {
	*nlpLayout

	// scaling factors
	sf float64
	dx []float64 // n
	dg []float64 // m

	// internal bounds
	l, u []float64 // nw

	// user space buffers
	x   []float64 // n
	gx  []float64 // n
	gv  []float64 // m
	jv  []float64 // jac.Len()
	hv  []float64 // hess.Len()
	lam []float64 // m

	fobj   float64
	objAt  slot
	gradAt slot
	consAt slot
	jacAt  slot

	last    []float64
	hasLast bool
	lastLam []float64
	hasLam  bool

	evals Evals

	fd      numdiff.Approx
	fdJac   sparse.Pattern // Jacobian pattern over free columns
	fdIdx   []int          // user Jacobian entry → fdJac entry, -1 when fixed
	fdVals  []float64
	fdX     []float64 // nx unscaled free variables
	fdSave  []float64 // n base point restored after differencing
	fdBound []numdiff.Bound
}

type slot struct {
	x  []float64
	ok bool
}

func (s *slot) hit(x []float64) bool { return s.ok && floats.Equal(s.x, x) }
func (s *slot) store(x []float64)   { s.x = append(s.x[:0], x...); s.ok = true }

func newAdapter(layout *nlpLayout) *adapter {
	a := &adapter{
		nlpLayout: layout,
		dx:        make([]float64, layout.n),
		dg:        make([]float64, layout.m),
		l:         make([]float64, layout.nw),
		u:         make([]float64, layout.nw),
		x:         make([]float64, layout.n),
		gx:        make([]float64, layout.n),
		gv:        make([]float64, layout.m),
		jv:        make([]float64, layout.jac.Len()),
		hv:        make([]float64, layout.hess.Len()),
		lam:       make([]float64, layout.m),
		last:      make([]float64, layout.n),
		lastLam:   make([]float64, layout.m),
		fdX:       make([]float64, layout.nx),
		fdSave:    make([]float64, layout.n),
	}
	a.fd = numdiff.Approx{Method: layout.deriv.Method, RelStep: layout.deriv.RelStep}
	a.fdIdx = make([]int, layout.jac.Len())
	for k, r := range layout.jac.Rows {
		c := layout.xpos[layout.jac.Cols[k]]
		if c < 0 {
			a.fdIdx[k] = -1
			continue
		}
		a.fdIdx[k] = a.fdJac.Len()
		a.fdJac.Rows = append(a.fdJac.Rows, r)
		a.fdJac.Cols = append(a.fdJac.Cols, c)
	}
	a.fdVals = make([]float64, a.fdJac.Len())
	a.fdBound = make([]numdiff.Bound, layout.nx)
	for k := range a.fdBound {
		a.fdBound[k] = numdiff.Bound{layout.lx[k], layout.ux[k]}
	}
	a.setScaling(one, nil, nil)
	return a
}

func (a *adapter) resetCaches() {
	a.objAt.ok, a.gradAt.ok, a.consAt.ok, a.jacAt.ok = false, false, false, false
	a.hasLast, a.hasLam = false, false
	a.evals = Evals{}
}

// setScaling installs the factors and derives the internal bounds.
// Nil vectors mean one.
func (a *adapter) setScaling(sf float64, dx, dg []float64) {
	a.sf = sf
	for i := range a.dx {
		a.dx[i] = one
		if dx != nil {
			a.dx[i] = dx[i]
		}
	}
	for j := range a.dg {
		a.dg[j] = one
		if dg != nil {
			a.dg[j] = dg[j]
		}
	}
	for k, i := range a.free {
		a.l[k], a.u[k] = a.dx[i]*a.lx[k], a.dx[i]*a.ux[k]
	}
	for r, j := range a.ineq {
		a.l[a.nx+r], a.u[a.nx+r] = a.dg[j]*a.ld[r], a.dg[j]*a.ud[r]
	}
}

// toUser writes the user point of 𝐰 into a.x.
func (a *adapter) toUser(w []float64) []float64 {
	for k, i := range a.free {
		a.x[i] = w[k] / a.dx[i]
	}
	for _, i := range a.fixed {
		a.x[i] = a.xl[i]
	}
	return a.x
}

// fromUser writes the scaled free variables of the user point x into w.
func (a *adapter) fromUser(x, w []float64) {
	for k, i := range a.free {
		w[k] = a.dx[i] * x[i]
	}
}

func (a *adapter) touch(x []float64) bool {
	if a.hasLast && floats.Equal(a.last, x) {
		return false
	}
	copy(a.last, x)
	a.hasLast = true
	return true
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// guard runs a user callback, converting errors and panics into ErrEvaluation.
func guard(kind string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrEvaluation, "%s panicked: %v", kind, r)
		}
	}()
	if e := fn(); e != nil {
		return errors.Wrapf(ErrEvaluation, "%s: %v", kind, e)
	}
	return nil
}

func (a *adapter) callObjective(x []float64) (f float64, err error) {
	a.evals.Obj++
	newX := a.touch(x)
	err = guard("objective", func() (e error) {
		f, e = a.eval.Objective(x, newX)
		return
	})
	if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
		err = errors.Wrapf(ErrEvaluation, "objective is %v", f)
	}
	return
}

func (a *adapter) callConstraints(x, g []float64) error {
	a.evals.Cons++
	newX := a.touch(x)
	err := guard("constraints", func() error { return a.eval.Constraints(x, newX, g) })
	if err == nil && !finite(g) {
		err = errors.Wrap(ErrEvaluation, "constraints are not finite")
	}
	return err
}

// userObjective evaluates 𝒇(x) with caching.
func (a *adapter) userObjective(x []float64) (float64, error) {
	if a.objAt.hit(x) {
		return a.fobj, nil
	}
	a.objAt.ok = false
	f, err := a.callObjective(x)
	if err != nil {
		return f, err
	}
	a.fobj = f
	a.objAt.store(x)
	return f, nil
}

// userGradient evaluates 𝛁𝒇(x) into a.gx with caching.
func (a *adapter) userGradient(x []float64) error {
	if a.gradAt.hit(x) {
		return nil
	}
	a.gradAt.ok = false
	var err error
	if a.deriv.Gradient == FiniteDifference {
		err = a.fdGradient(x)
	} else {
		a.evals.Grad++
		newX := a.touch(x)
		err = guard("gradient", func() error { return a.eval.Gradient(x, newX, a.gx) })
		if err == nil && !finite(a.gx) {
			err = errors.Wrap(ErrEvaluation, "gradient is not finite")
		}
	}
	if err != nil {
		return err
	}
	a.gradAt.store(x)
	return nil
}

// userConstraints evaluates 𝒈(x) into a.gv with caching.
func (a *adapter) userConstraints(x []float64) error {
	if a.m == 0 {
		return nil
	}
	if a.consAt.hit(x) {
		return nil
	}
	a.consAt.ok = false
	if err := a.callConstraints(x, a.gv); err != nil {
		return err
	}
	a.consAt.store(x)
	return nil
}

// userJacobian evaluates the entries of 𝛁𝒈(x) into a.jv with caching.
func (a *adapter) userJacobian(x []float64) error {
	if len(a.jv) == 0 {
		return nil
	}
	if a.jacAt.hit(x) {
		return nil
	}
	a.jacAt.ok = false
	var err error
	if a.deriv.Jacobian == FiniteDifference {
		err = a.fdJacobian(x)
	} else {
		a.evals.Jac++
		newX := a.touch(x)
		err = guard("jacobian", func() error { return a.eval.Jacobian(x, newX, a.jv) })
		if err == nil && !finite(a.jv) {
			err = errors.Wrap(ErrEvaluation, "jacobian is not finite")
		}
	}
	if err != nil {
		return err
	}
	a.jacAt.store(x)
	return nil
}

// userHessian evaluates σ𝛁²𝒇 + Σλⱼ𝛁²𝒈ⱼ at x with the multipliers in a.lam.
func (a *adapter) userHessian(x []float64, sigma float64) error {
	a.evals.Hess++
	newX := a.touch(x)
	newLam := !a.hasLam || !floats.Equal(a.lastLam, a.lam)
	copy(a.lastLam, a.lam)
	a.hasLam = true
	err := guard("hessian", func() error { return a.eval.Hessian(x, newX, sigma, a.lam, newLam, a.hv) })
	if err == nil && !finite(a.hv) {
		err = errors.Wrap(ErrEvaluation, "hessian is not finite")
	}
	return err
}

func (a *adapter) fdFree(xf []float64) []float64 {
	for k, i := range a.free {
		a.x[i] = xf[k]
	}
	for _, i := range a.fixed {
		a.x[i] = a.xl[i]
	}
	return a.x
}

func (a *adapter) fdGradient(x []float64) error {
	copy(a.fdSave, x)
	for k, i := range a.free {
		a.fdX[k] = x[i]
	}
	for i := range a.gx {
		a.gx[i] = zero
	}
	grad := make([]float64, a.nx)
	a.fd.Bounds = a.fdBounds(x)
	err := a.fd.Gradient(func(xf []float64) (float64, error) {
		return a.callObjective(a.fdFree(xf))
	}, a.fdX, grad)
	copy(a.x, a.fdSave)
	if err != nil {
		return err
	}
	for k, i := range a.free {
		a.gx[i] = grad[k]
	}
	return nil
}

func (a *adapter) fdJacobian(x []float64) error {
	copy(a.fdSave, x)
	for k, i := range a.free {
		a.fdX[k] = x[i]
	}
	a.fd.Bounds = a.fdBounds(x)
	err := a.fd.SparseJacobian(func(xf, y []float64) error {
		return a.callConstraints(a.fdFree(xf), y)
	}, a.m, a.fdX, a.fdJac, a.fdVals)
	copy(a.x, a.fdSave)
	if err != nil {
		return err
	}
	for k, e := range a.fdIdx {
		if e < 0 {
			a.jv[k] = zero
		} else {
			a.jv[k] = a.fdVals[e]
		}
	}
	return nil
}

// fdBounds returns the relaxed bounds unless x lies outside of them,
// which happens for the raw user starting point.
func (a *adapter) fdBounds(x []float64) []numdiff.Bound {
	for k, i := range a.free {
		if x[i] < a.lx[k] || x[i] > a.ux[k] {
			return nil
		}
	}
	return a.fdBound
}

// objective returns 𝒇̃(𝐰).
func (a *adapter) objective(w []float64) (float64, error) {
	f, err := a.userObjective(a.toUser(w))
	return a.sf * f, err
}

// gradient stores 𝛁𝒇̃(𝐰) into grad.
func (a *adapter) gradient(w, grad []float64) error {
	if err := a.userGradient(a.toUser(w)); err != nil {
		return err
	}
	for k, i := range a.free {
		grad[k] = a.sf * a.gx[i] / a.dx[i]
	}
	for k := a.nx; k < a.nw; k++ {
		grad[k] = zero
	}
	return nil
}

// constraints stores 𝒉(𝐰) into h.
func (a *adapter) constraints(w, h []float64) error {
	if err := a.userConstraints(a.toUser(w)); err != nil {
		return err
	}
	for r, j := range a.eq {
		h[r] = a.dg[j] * (a.gv[j] - a.gl[j])
	}
	for r, j := range a.ineq {
		h[a.mc+r] = a.dg[j]*a.gv[j] - w[a.nx+r]
	}
	return nil
}

func (a *adapter) newJacobian() *sparse.Matrix { return a.jacTpl.Clone() }
func (a *adapter) newHessian() *sparse.Matrix  { return a.hessTpl.Clone() }

// jacobian stores the entries of 𝛁𝒉(𝐰) into jac.
func (a *adapter) jacobian(w []float64, jac *sparse.Matrix) error {
	if err := a.userJacobian(a.toUser(w)); err != nil {
		return err
	}
	for k, e := range a.jacMap {
		if e >= 0 {
			r, c := a.jac.Rows[k], a.jac.Cols[k]
			jac.Values[e] = a.dg[r] * a.jv[k] / a.dx[c]
		}
	}
	return nil
}

// hessian stores the entries of σ𝛁²𝒇̃ + Σyᵣ𝛁²𝒉ᵣ at 𝐰 into hess.
func (a *adapter) hessian(w []float64, sigma float64, y []float64, hess *sparse.Matrix) error {
	for j := range a.lam {
		a.lam[j] = a.dg[j] * y[a.crow[j]]
	}
	if err := a.userHessian(a.toUser(w), sigma*a.sf); err != nil {
		return err
	}
	for k, e := range a.hessMap {
		if e >= 0 {
			r, c := a.hess.Rows[k], a.hess.Cols[k]
			hess.Values[e] = a.hv[k] / (a.dx[r] * a.dx[c])
		}
	}
	return nil
}

func (a *adapter) dims() (nw, mh int)       { return a.nw, a.mh }
func (a *adapter) bounds() (l, u []float64) { return a.l, a.u }
func (a *adapter) curved() int              { return a.nx }

// computeScaling derives the scaling factors at the user point x.
func (a *adapter) computeScaling(x []float64) error {
	sc := a.scaling
	switch sc.Method {
	case ScaleNone:
		a.setScaling(one, nil, nil)
	case ScaleUser:
		a.setScaling(sc.Obj, sc.X, sc.G)
	case ScaleGradient:
		a.setScaling(one, nil, nil)
		if err := a.userGradient(x); err != nil {
			return err
		}
		sf := one
		if gmax := floats.Norm(a.gx, math.Inf(1)); gmax > sc.MaxGradient {
			sf = math.Max(sc.MaxGradient/gmax, sc.MinValue)
		}
		var dg []float64
		if len(a.jv) > 0 {
			if err := a.userJacobian(x); err != nil {
				return err
			}
			rmax := make([]float64, a.m)
			for k, r := range a.jac.Rows {
				rmax[r] = math.Max(rmax[r], math.Abs(a.jv[k]))
			}
			dg = make([]float64, a.m)
			for j, v := range rmax {
				dg[j] = one
				if v > sc.MaxGradient {
					dg[j] = math.Max(sc.MaxGradient/v, sc.MinValue)
				}
			}
		}
		a.setScaling(sf, nil, dg)
	}
	return nil
}

// checkDerivatives compares user derivatives at x with finite differences.
func (a *adapter) checkDerivatives(x []float64) ([]numdiff.Mismatch, error) {
	tol := a.deriv.TestTol
	a.fd.Bounds = a.fdBounds(x)

	var bad []numdiff.Mismatch
	if a.nx > 0 {
		a.evals.Grad++
		err := guard("gradient", func() error { return a.eval.Gradient(x, a.touch(x), a.gx) })
		if err != nil {
			return nil, err
		}
		exact := make([]float64, a.nx)
		for k, i := range a.free {
			exact[k] = a.gx[i]
		}
		if err = a.fdGradient(x); err != nil {
			return nil, err
		}
		approx := make([]float64, a.nx)
		for k, i := range a.free {
			approx[k] = a.gx[i]
		}
		for _, mm := range numdiff.CompareGradient(exact, approx, tol) {
			mm.Col = a.free[mm.Col]
			bad = append(bad, mm)
		}
	}
	if a.fdJac.Len() > 0 {
		a.evals.Jac++
		err := guard("jacobian", func() error { return a.eval.Jacobian(x, a.touch(x), a.jv) })
		if err != nil {
			return nil, err
		}
		exact := make([]float64, a.fdJac.Len())
		for k, e := range a.fdIdx {
			if e >= 0 {
				exact[e] += a.jv[k]
			}
		}
		if err = a.fdJacobian(x); err != nil {
			return nil, err
		}
		cols := make([]int, a.fdJac.Len())
		for k, c := range a.fdJac.Cols {
			cols[k] = a.free[c]
		}
		bad = append(bad, numdiff.CompareJacobian(a.fdJac.Rows, cols, exact, a.fdVals, tol)...)
	}
	a.gradAt.ok, a.jacAt.ok = false, false
	return bad, nil
}

// describe reports the dimensions of the internal problem.
func (a *adapter) describe() string {
	return fmt.Sprintf("variables %d (fixed %d)  equalities %d  inequalities %d  jacobian nnz %d  hessian nnz %d",
		a.nx, len(a.fixed), a.mc, a.md, a.jacTpl.NNZ()-a.md, a.hessTpl.NNZ())
}

func (a *adapter) unscaleDual(r []float64) (v float64) {
	for k, i := range a.free {
		v = math.Max(v, math.Abs(r[k]*a.dx[i]/a.sf))
	}
	for r0, j := range a.ineq {
		v = math.Max(v, math.Abs(r[a.nx+r0]*a.dg[j]/a.sf))
	}
	return
}

func (a *adapter) unscalePrimal(h []float64) (v float64) {
	for r, j := range a.eq {
		v = math.Max(v, math.Abs(h[r]/a.dg[j]))
	}
	for r, j := range a.ineq {
		v = math.Max(v, math.Abs(h[a.mc+r]/a.dg[j]))
	}
	return
}

func (a *adapter) unscaleCompl(c float64) float64     { return c / a.sf }
func (a *adapter) reportObjective(f float64) float64 { return f / a.sf }
