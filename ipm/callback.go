// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"
	"slices"
)

// Intermediate is invoked once per iteration, including iteration 0 and the
// iterations of the restoration phase, before the termination tests.
// Returning false stops the solve with UserRequestedStop.
type Intermediate func(info *IterInfo) bool

// IterInfo describes the current iteration.
type IterInfo struct {
	Mode      Mode
	Iter      int
	Objective float64 // unscaled objective of the original problem
	InfPr     float64 // unscaled constraint violation ‖𝒉‖∞
	InfDu     float64 // scaled dual infeasibility ‖𝛁ℒ‖∞
	Mu        float64
	DNorm     float64 // ‖α𝐝_w‖∞ of the last step
	RegSize   float64 // Hessian perturbation δ_w of the last step
	AlphaDu   float64
	AlphaPr   float64
	LSTrials  int

	d    *driver
	live bool
}

// Iterate is a primal-dual point of the original problem.
type Iterate struct {
	X      []float64 // variables (len N)
	ZL, ZU []float64 // bound multipliers (len N)
	G      []float64 // constraint values (len M)
	Lambda []float64 // constraint multipliers (len M)
}

// Violations are the componentwise optimality residuals of an Iterate.
type Violations struct {
	XL, XU           []float64 // bound violations 𝚖𝚊𝚡(0, 𝐱ₗ-𝐱) and 𝚖𝚊𝚡(0, 𝐱-𝐱ᵤ)
	ComplXL, ComplXU []float64 // 𝐳ₗ∘(𝐱-𝐱ₗ) and 𝐳ᵤ∘(𝐱ᵤ-𝐱)
	GradLag          []float64 // 𝛁𝒇 + 𝛁𝒈ᵀ𝛌 - 𝐳ₗ + 𝐳ᵤ
	Constr           []float64 // 𝚖𝚊𝚡(0, 𝒈ₗ-𝒈, 𝒈-𝒈ᵤ)
	ComplG           []float64 // (𝒈-𝒈ₗ)∘𝚖𝚊𝚡(0,-𝛌) + (𝒈ᵤ-𝒈)∘𝚖𝚊𝚡(0,𝛌)
}

// Iterate returns a copy of the current iterate in the original problem.
// With scaled set, values are expressed in the internal scaling.
// It fails with ErrOutsideCallback once the callback has returned.
func (info *IterInfo) Iterate(scaled bool) (*Iterate, error) {
	if !info.live {
		return nil, ErrOutsideCallback
	}
	it, err := info.d.userIterate()
	if err != nil {
		return nil, err
	}
	if scaled {
		info.d.orig.scaleIterate(it)
	}
	return it, nil
}

// Violations returns the optimality residuals of the current iterate.
// It fails with ErrOutsideCallback once the callback has returned.
func (info *IterInfo) Violations(scaled bool) (*Violations, error) {
	if !info.live {
		return nil, ErrOutsideCallback
	}
	a := info.d.orig
	it, err := info.d.userIterate()
	if err != nil {
		return nil, err
	}
	v, err := a.violations(it)
	if err != nil {
		return nil, err
	}
	if scaled {
		a.scaleViolations(v)
	}
	return v, nil
}

// userIterate maps the current iterate of d to the original problem.
func (d *driver) userIterate() (*Iterate, error) {
	nw := d.orig.nw
	cur := d.cur
	return d.orig.report(cur.w[:nw], cur.y, cur.zl[:nw], cur.zu[:nw])
}

// report invokes the intermediate callback and prints the iteration.
func (d *driver) report() Status {
	d.printIter()
	if d.monitor == nil {
		return running
	}
	info := &IterInfo{
		Mode:     d.mode,
		Iter:     d.run.iter,
		InfDu:    d.err.dual,
		Mu:       d.mu,
		DNorm:    d.dnorm,
		RegSize:  d.kkt.deltaW,
		AlphaDu:  d.alphaDu,
		AlphaPr:  d.alphaPr,
		LSTrials: d.lsTrials,
		d:        d,
		live:     true,
	}
	info.Objective, info.InfPr = d.origMeasures()
	ok := d.monitor(info)
	info.live = false
	if !ok {
		if d.logger.enable(LogLast) {
			d.logger.log("Stop requested by the intermediate callback at iteration %d\n", d.run.iter)
		}
		return UserRequestedStop
	}
	return running
}

// origMeasures returns objective and constraint violation of the original problem.
func (d *driver) origMeasures() (f, infPr float64) {
	if d.mode == Restoration {
		return d.orig.reportObjective(d.origF), d.origInfPr
	}
	return d.nlp.reportObjective(d.cur.f), d.err.primalU
}

// report maps an internal point to the original problem, deriving the
// multipliers of fixed variables from the Lagrangian gradient.
func (a *adapter) report(w, y, zl, zu []float64) (*Iterate, error) {
	it := &Iterate{
		X:      slices.Clone(a.toUser(w)),
		ZL:     make([]float64, a.n),
		ZU:     make([]float64, a.n),
		G:      make([]float64, a.m),
		Lambda: make([]float64, a.m),
	}
	for j := range it.Lambda {
		it.Lambda[j] = a.dg[j] * y[a.crow[j]] / a.sf
	}
	for k, i := range a.free {
		it.ZL[i] = a.dx[i] * zl[k] / a.sf
		it.ZU[i] = a.dx[i] * zu[k] / a.sf
	}
	if err := a.userConstraints(it.X); err != nil {
		return it, err
	}
	copy(it.G, a.gv)
	if len(a.fixed) > 0 {
		r := make([]float64, a.n)
		if err := a.lagGradient(it, r); err != nil {
			return it, err
		}
		for _, i := range a.fixed {
			if r[i] > zero {
				it.ZL[i] = r[i]
			} else {
				it.ZU[i] = -r[i]
			}
		}
	}
	return it, nil
}

// lagGradient stores 𝛁𝒇 + 𝛁𝒈ᵀ𝛌 at the iterate into r.
func (a *adapter) lagGradient(it *Iterate, r []float64) error {
	if err := a.userGradient(it.X); err != nil {
		return err
	}
	if err := a.userJacobian(it.X); err != nil {
		return err
	}
	copy(r, a.gx)
	for k, row := range a.jac.Rows {
		r[a.jac.Cols[k]] += a.jv[k] * it.Lambda[row]
	}
	return nil
}

func (a *adapter) violations(it *Iterate) (*Violations, error) {
	n, m := a.n, a.m
	v := &Violations{
		XL: make([]float64, n), XU: make([]float64, n),
		ComplXL: make([]float64, n), ComplXU: make([]float64, n),
		GradLag: make([]float64, n),
		Constr:  make([]float64, m), ComplG: make([]float64, m),
	}
	if err := a.lagGradient(it, v.GradLag); err != nil {
		return nil, err
	}
	for i, x := range it.X {
		v.GradLag[i] += it.ZU[i] - it.ZL[i]
		if l := a.xl[i]; !math.IsInf(l, -1) {
			v.XL[i] = math.Max(zero, l-x)
			v.ComplXL[i] = it.ZL[i] * (x - l)
		}
		if u := a.xu[i]; !math.IsInf(u, 1) {
			v.XU[i] = math.Max(zero, x-u)
			v.ComplXU[i] = it.ZU[i] * (u - x)
		}
	}
	for j, g := range it.G {
		l, u, lam := a.gl[j], a.gu[j], it.Lambda[j]
		v.Constr[j] = math.Max(zero, math.Max(l-g, g-u))
		if l == u {
			continue
		}
		if !math.IsInf(l, -1) {
			v.ComplG[j] += (g - l) * math.Max(zero, -lam)
		}
		if !math.IsInf(u, 1) {
			v.ComplG[j] += (u - g) * math.Max(zero, lam)
		}
	}
	return v, nil
}

func (a *adapter) scaleIterate(it *Iterate) {
	for i := range it.X {
		it.X[i] *= a.dx[i]
		it.ZL[i] *= a.sf / a.dx[i]
		it.ZU[i] *= a.sf / a.dx[i]
	}
	for j := range it.G {
		it.G[j] *= a.dg[j]
		it.Lambda[j] *= a.sf / a.dg[j]
	}
}

func (a *adapter) scaleViolations(v *Violations) {
	for i := range v.XL {
		v.XL[i] *= a.dx[i]
		v.XU[i] *= a.dx[i]
		v.ComplXL[i] *= a.sf
		v.ComplXU[i] *= a.sf
		v.GradLag[i] *= a.sf / a.dx[i]
	}
	for j := range v.Constr {
		v.Constr[j] *= a.dg[j]
		v.ComplG[j] *= a.sf
	}
}
