// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/interior/sparse"
)

// restored is returned by the restoration driver once the original problem
// accepted one of its iterates.
const restored Status = -1

// maxHessFails bounds the consecutive Hessian evaluation failures bridged
// by reusing the previous Hessian.
const maxHessFails = 3

// driver runs the filter line-search interior-point iteration on one nlpModel.
// The workspace owns one driver for the scaled user problem and, created on
// demand, one for the feasibility restoration problem.
type driver struct {
	*nlpLayout
	nlp  nlpModel
	orig *adapter
	mode Mode
	run  *solve

	nw, mh, nq int
	l, u       []float64
	hasL, hasU []bool
	nb         int // number of finite bounds

	cur, trial *iterate
	hess       *sparse.Matrix
	qn         *bfgs
	kkt        *kktSystem
	sigma      []float64
	hessOK     bool // hess holds values from a successful evaluation
	hessFails  int  // consecutive Hessian evaluation failures

	// search direction
	rhs, sol []float64
	dw, dy   []float64
	dzl, dzu []float64
	gphi     []float64 // 𝛁φ_μ at the current iterate
	res      []float64 // dual residual
	csoc     []float64
	lagOld   []float64
	lagNew   []float64
	step     []float64

	filt               filter
	mu, tau, muLow     float64
	thetaMax, thetaMin float64

	// last iteration
	alphaPr, alphaDu float64
	lsTrials         int
	soc, tiny        bool
	dnorm            float64

	err         kktError
	acceptIters int
	acceptNow   bool
	fPrev       float64
	hasPrev     bool

	// adaptive barrier
	free bool
	refs []float64

	// restoration
	parent     *driver
	thetaStart float64
	origF      float64
	origInfPr  float64
}

func newDriver(layout *nlpLayout, model nlpModel, orig *adapter, mode Mode) *driver {
	d := &driver{nlpLayout: layout, nlp: model, orig: orig, mode: mode}
	d.nw, d.mh = model.dims()
	d.nq = model.curved()
	d.l, d.u = model.bounds()
	d.hasL, d.hasU = make([]bool, d.nw), make([]bool, d.nw)
	for i := range d.l {
		d.hasL[i] = !math.IsInf(d.l[i], -1)
		d.hasU[i] = !math.IsInf(d.u[i], 1)
		if d.hasL[i] {
			d.nb++
		}
		if d.hasU[i] {
			d.nb++
		}
	}
	d.cur, d.trial = newIterate(model), newIterate(model)
	if layout.deriv.Hessian == QuasiNewton {
		d.qn = newBFGS(d.nq)
	} else {
		d.hess = model.newHessian()
	}
	d.kkt = newKKT(d.nw, d.mh, d.hess, d.qn, d.cur.jac, layout.linear, &d.logger)

	n := d.nw + d.mh
	d.sigma = make([]float64, d.nw)
	d.rhs, d.sol = make([]float64, n), make([]float64, n)
	d.dw, d.dy = make([]float64, d.nw), make([]float64, d.mh)
	d.dzl, d.dzu = make([]float64, d.nw), make([]float64, d.nw)
	d.gphi, d.res = make([]float64, d.nw), make([]float64, d.nw)
	d.csoc = make([]float64, d.mh)
	d.lagOld, d.lagNew, d.step = make([]float64, d.nw), make([]float64, d.nw), make([]float64, d.nw)
	return d
}

// begin resets the iteration state at the current iterate with barrier parameter mu.
func (d *driver) begin(mu float64) {
	bar, stop, ls := &d.barrier, &d.stop, &d.search
	d.setMu(mu)
	d.muLow = math.Max(bar.MuMin, math.Min(stop.Tolerance, stop.ComplInfTol)/(bar.TolFactor+one))
	d.thetaMax = ls.ThetaMaxFact * math.Max(one, d.cur.theta)
	d.thetaMin = ls.ThetaMinFact * math.Max(one, d.cur.theta)
	d.filt.reset()
	d.kkt.reset()
	if d.qn != nil {
		d.qn.reset()
	}
	d.alphaPr, d.alphaDu, d.lsTrials, d.dnorm = zero, zero, 0, zero
	d.soc, d.tiny = false, false
	d.acceptIters, d.acceptNow, d.hasPrev = 0, false, false
	d.hessOK, d.hessFails = false, 0
	d.free = d.mode == Regular && bar.Strategy == Adaptive
	d.refs = d.refs[:0]
}

func (d *driver) setMu(mu float64) {
	d.mu = mu
	d.tau = math.Max(d.barrier.TauMin, one-mu)
}

// mainLoop iterates until a terminal status is reached.
func (d *driver) mainLoop() Status {
	log := &d.logger
	for {
		d.optimality()

		if st := d.report(); st != running {
			return st
		}
		if st := d.converged(); st != running {
			return st
		}
		if st := d.limits(); st != running {
			return st
		}

		if log.enable(LogTrace) {
			log.log("\n**************************************************\n")
			log.log("*** %s iteration %d\n", d.mode, d.run.iter)
			log.log("**************************************************\n")
		}

		if err := d.prepareKKT(); err != nil {
			if log.enable(LogTrace) {
				log.log("Hessian evaluation failed: %v\n", err)
			}
			if st := d.fallback(); st != running {
				return st
			}
			continue
		}

		if !d.kkt.factorize(d.mu) {
			if st := d.fallback(); st != running {
				return st
			}
			continue
		}

		if st := d.updateBarrier(); st != running {
			return st
		}

		if err := d.direction(); err != nil {
			if log.enable(LogTrace) {
				log.log("Search direction failed: %v\n", err)
			}
			if st := d.fallback(); st != running {
				return st
			}
			continue
		}

		if !d.lineSearch() {
			if st := d.fallback(); st != running {
				return st
			}
			continue
		}

		d.accept()
		d.run.iter++
		if d.mode == Restoration {
			d.run.restoIter++
			if d.parent.restoredBy(d) {
				return restored
			}
		}
	}
}

// fallback is taken when no acceptable step can be computed.
func (d *driver) fallback() Status {
	if d.mode == Restoration {
		return RestorationFailed
	}
	return d.restore()
}

// failure reports st unless the current iterate is acceptable.
func (d *driver) failure(st Status) Status {
	if d.acceptNow {
		return ConvergedAcceptable
	}
	return st
}

func (d *driver) limits() Status {
	stop := &d.stop
	if d.run.iter >= stop.MaxIterations {
		return MaxIterExceeded
	}
	if stop.MaxWallTime > 0 && time.Since(d.run.start) >= stop.MaxWallTime {
		return MaxTimeExceeded
	}
	return running
}

// phi returns the barrier objective
//
//	φ_μ(𝐰) = 𝒇(𝐰) - μ Σ ln(𝐰-𝐥) - μ Σ ln(𝐮-𝐰) + κ_d μ Σ (𝐰-𝐥) + κ_d μ Σ (𝐮-𝐰)
//
// where the linear damping only applies to variables bounded on one side.
func (d *driver) phi(it *iterate) float64 {
	mu := d.mu
	kd := d.barrier.KappaD * mu
	phi := it.f
	for i, w := range it.w {
		if d.hasL[i] {
			phi -= mu * math.Log(w-d.l[i])
			if !d.hasU[i] {
				phi += kd * (w - d.l[i])
			}
		}
		if d.hasU[i] {
			phi -= mu * math.Log(d.u[i]-w)
			if !d.hasL[i] {
				phi += kd * (d.u[i] - w)
			}
		}
	}
	if math.IsNaN(phi) {
		return inf
	}
	return phi
}

// gradPhi stores 𝛁φ_μ at it into dst.
func (d *driver) gradPhi(it *iterate, dst []float64) {
	mu := d.mu
	kd := d.barrier.KappaD * mu
	for i, w := range it.w {
		g := it.grad[i]
		if d.hasL[i] {
			g -= mu / (w - d.l[i])
			if !d.hasU[i] {
				g += kd
			}
		}
		if d.hasU[i] {
			g += mu / (d.u[i] - w)
			if !d.hasL[i] {
				g -= kd
			}
		}
		dst[i] = g
	}
}

// prepareKKT evaluates the Hessian and assembles the unperturbed KKT matrix.
//
// A failed Hessian evaluation keeps the values of the last successful one,
// or the identity before any success, for up to maxHessFails consecutive
// iterations.
func (d *driver) prepareKKT() error {
	cur := d.cur
	ident := false
	if d.qn == nil {
		err := d.nlp.hessian(cur.w, one, cur.y, d.hess)
		switch {
		case err == nil:
			d.hessOK, d.hessFails = true, 0
		case d.hessFails >= maxHessFails:
			return err
		default:
			d.hessFails++
			if d.logger.enable(LogTrace) {
				d.logger.log("Hessian evaluation failed (%d in a row): %v\n", d.hessFails, err)
			}
			if !d.hessOK {
				fill(d.hess.Values, zero)
				ident = true
			}
		}
	}
	for i, w := range cur.w {
		s := zero
		if d.hasL[i] {
			s += cur.zl[i] / (w - d.l[i])
		}
		if d.hasU[i] {
			s += cur.zu[i] / (d.u[i] - w)
		}
		if ident && i < d.nq {
			s += one
		}
		d.sigma[i] = s
	}
	d.kkt.assemble(d.hess, d.qn, d.sigma, cur.jac)
	return nil
}

// direction solves the KKT system for the primal-dual step.
func (d *driver) direction() error {
	cur := d.cur
	d.gradPhi(cur, d.gphi)
	cur.jac.MulTransVec(d.res, cur.y)
	for i := range d.gphi {
		d.rhs[i] = -(d.gphi[i] + d.res[i])
	}
	for r, h := range cur.h {
		d.rhs[d.nw+r] = -h
	}
	if err := d.kkt.solve(d.rhs, d.sol); err != nil {
		return err
	}
	copy(d.dw, d.sol[:d.nw])
	copy(d.dy, d.sol[d.nw:])
	d.boundSteps(cur, d.mu)
	if d.logger.enable(LogVerbose) {
		d.logger.vec("dw", d.dw)
		d.logger.vec("dy", d.dy)
	}
	return nil
}

// boundSteps recovers the bound multiplier steps from d.dw
//
//	𝐝_zₗ = μ(𝐰-𝐥)⁻¹ - 𝐳ₗ - 𝐙ₗ(𝐰-𝐥)⁻¹𝐝_w
//	𝐝_zᵤ = μ(𝐮-𝐰)⁻¹ - 𝐳ᵤ + 𝐙ᵤ(𝐮-𝐰)⁻¹𝐝_w
func (d *driver) boundSteps(cur *iterate, mu float64) {
	for i, w := range cur.w {
		d.dzl[i], d.dzu[i] = zero, zero
		if d.hasL[i] {
			sl := w - d.l[i]
			d.dzl[i] = mu/sl - cur.zl[i] - cur.zl[i]/sl*d.dw[i]
		}
		if d.hasU[i] {
			su := d.u[i] - w
			d.dzu[i] = mu/su - cur.zu[i] + cur.zu[i]/su*d.dw[i]
		}
	}
}

// maxStep returns the largest α ≤ 1 with 𝐰 + α𝐝 ≥ (1-τ)𝐰 relative to the bounds.
func (d *driver) maxStep(w, dw []float64, tau float64) float64 {
	alpha := one
	for i := range w {
		if d.hasL[i] && dw[i] < zero {
			alpha = math.Min(alpha, -tau*(w[i]-d.l[i])/dw[i])
		}
		if d.hasU[i] && dw[i] > zero {
			alpha = math.Min(alpha, tau*(d.u[i]-w[i])/dw[i])
		}
	}
	return alpha
}

// maxDualStep returns the largest α ≤ 1 with 𝐳 + α𝐝_z ≥ (1-τ)𝐳.
func (d *driver) maxDualStep(cur *iterate, tau float64) float64 {
	alpha := one
	for i := range cur.zl {
		if d.hasL[i] && d.dzl[i] < zero {
			alpha = math.Min(alpha, -tau*cur.zl[i]/d.dzl[i])
		}
		if d.hasU[i] && d.dzu[i] < zero {
			alpha = math.Min(alpha, -tau*cur.zu[i]/d.dzu[i])
		}
	}
	return alpha
}

// movePrimal sets the trial primal point to 𝐰 + α𝐝.
func (d *driver) movePrimal(alpha float64, dw []float64) {
	floats.AddScaledTo(d.trial.w, d.cur.w, alpha, dw)
}

// accept moves the multipliers along the step and makes the trial point current.
func (d *driver) accept() {
	cur, t := d.cur, d.trial
	floats.AddScaledTo(t.y, cur.y, d.alphaPr, d.dy)
	d.alphaDu = d.maxDualStep(cur, d.tau)
	ks, mu := d.barrier.KappaSigma, d.mu
	for i, w := range t.w {
		t.zl[i], t.zu[i] = zero, zero
		if d.hasL[i] {
			z := cur.zl[i] + d.alphaDu*d.dzl[i]
			s := w - d.l[i]
			t.zl[i] = math.Max(math.Min(z, ks*mu/s), mu/(ks*s))
		}
		if d.hasU[i] {
			z := cur.zu[i] + d.alphaDu*d.dzu[i]
			s := d.u[i] - w
			t.zu[i] = math.Max(math.Min(z, ks*mu/s), mu/(ks*s))
		}
	}
	d.dnorm = d.alphaPr * normInf(d.dw)
	d.cur, d.trial = t, cur

	if d.qn != nil {
		// 𝐬 = 𝐰⁺ - 𝐰, 𝐲 = 𝛁ℒ(𝐰⁺,𝐲⁺) - 𝛁ℒ(𝐰,𝐲⁺)
		old, now := d.trial, d.cur
		now.jac.MulTransVec(d.lagNew, now.y)
		old.jac.MulTransVec(d.lagOld, now.y)
		for i := range d.step {
			d.step[i] = now.w[i] - old.w[i]
			d.lagNew[i] += now.grad[i] - old.grad[i] - d.lagOld[i]
		}
		d.qn.update(d.step, d.lagNew)
	}
}
