// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"
)

// updateBarrier chooses the barrier parameter for the next step.
// It runs after the KKT matrix is factorized so the adaptive strategy can
// probe affine scaling steps.
func (d *driver) updateBarrier() Status {
	if d.mode == Regular && d.barrier.Strategy == Adaptive {
		return d.adaptiveMu()
	}
	return d.monotoneMu()
}

// monotoneMu decreases μ while the barrier subproblem is solved to κ_ε·μ
//
//	μ⁺ = 𝚖𝚊𝚡(μ_low, 𝚖𝚒𝚗(κ_μ·μ, μ^θ_μ))
//
// A tiny step from the last iteration forces one decrease.
func (d *driver) monotoneMu() Status {
	bar, log := &d.barrier, &d.logger
	tiny := d.tiny
	d.tiny = false
	if tiny && d.mu <= d.muLow {
		if log.enable(LogTrace) {
			log.log("Tiny step with minimal barrier parameter %.2e\n", d.mu)
		}
		return d.failure(SearchDirectionTooSmall)
	}
	changed := false
	for d.mu > d.muLow && (tiny || d.barrierError(d.mu) <= bar.TolFactor*d.mu) {
		mu := math.Max(d.muLow, math.Min(bar.LinearDecrease*d.mu, math.Pow(d.mu, bar.SuperlinearPower)))
		if log.enable(LogTrace) {
			log.log("Barrier parameter decreased from %.6e to %.6e\n", d.mu, mu)
		}
		d.setMu(mu)
		tiny, changed = false, true
	}
	if changed {
		d.filt.reset()
	}
	return running
}

// adaptiveMu selects μ by Mehrotra's probing heuristic while the KKT error
// keeps decreasing, and falls back to monotone updates otherwise.
func (d *driver) adaptiveMu() Status {
	bar, log := &d.barrier, &d.logger
	e := &d.err
	quality := e.dual*e.dual + e.primal*e.primal + e.compl*e.compl

	if !d.free {
		if d.tiny || !d.progress(quality) {
			return d.monotoneMu()
		}
		d.free = true
		if log.enable(LogTrace) {
			log.log("Switching to free barrier mode\n")
		}
	} else if d.tiny || !d.progress(quality) {
		d.free, d.tiny = false, false
		mu := math.Max(d.muLow, math.Min(d.mu, bar.MonotoneInitFactor*d.avgCompl()))
		if log.enable(LogTrace) {
			log.log("Switching to fixed barrier mode with μ=%.6e\n", mu)
		}
		d.setMu(mu)
		d.filt.reset()
		return running
	}
	d.remember(quality)

	mu, ok := d.probe()
	if !ok {
		d.free = false
		return d.monotoneMu()
	}
	mu = math.Max(d.muLow, math.Min(mu, math.Min(bar.MuMax, d.mu)))
	if mu != d.mu {
		if log.enable(LogTrace) {
			log.log("Barrier parameter set from %.6e to %.6e\n", d.mu, mu)
		}
		d.setMu(mu)
		d.filt.reset()
	}
	return running
}

// progress reports whether the KKT error decreased sufficiently relative
// to the remembered reference values.
func (d *driver) progress(quality float64) bool {
	bar := &d.barrier
	if len(d.refs) < bar.KKTErrorIters {
		return true
	}
	for _, r := range d.refs {
		if quality <= bar.KKTErrorReduction*r {
			return true
		}
	}
	return false
}

func (d *driver) remember(quality float64) {
	d.refs = append(d.refs, quality)
	if n := len(d.refs) - d.barrier.KKTErrorIters; n > 0 {
		d.refs = append(d.refs[:0], d.refs[n:]...)
	}
}

func (d *driver) avgCompl() float64 {
	if d.nb == 0 {
		return zero
	}
	cur, sum := d.cur, zero
	for i, w := range cur.w {
		if d.hasL[i] {
			sum += cur.zl[i] * (w - d.l[i])
		}
		if d.hasU[i] {
			sum += cur.zu[i] * (d.u[i] - w)
		}
	}
	return sum / float64(d.nb)
}

// probe computes the affine scaling step (μ = 0) with the current factorization
// and returns σμ_avg with the centering parameter σ = (μ_aff/μ_avg)³.
func (d *driver) probe() (float64, bool) {
	if d.nb == 0 {
		return d.muLow, true
	}
	cur := d.cur
	cur.jac.MulTransVec(d.res, cur.y)
	for i := range d.res {
		d.rhs[i] = -(cur.grad[i] + d.res[i])
	}
	for r, h := range cur.h {
		d.rhs[d.nw+r] = -h
	}
	if err := d.kkt.solve(d.rhs, d.sol); err != nil {
		return zero, false
	}
	copy(d.dw, d.sol[:d.nw])
	d.boundSteps(cur, zero)

	alphaPr := d.maxStep(cur.w, d.dw, d.tau)
	alphaDu := d.maxDualStep(cur, d.tau)
	sum := zero
	for i, w := range cur.w {
		wa := w + alphaPr*d.dw[i]
		if d.hasL[i] {
			sum += (wa - d.l[i]) * (cur.zl[i] + alphaDu*d.dzl[i])
		}
		if d.hasU[i] {
			sum += (d.u[i] - wa) * (cur.zu[i] + alphaDu*d.dzu[i])
		}
	}
	avg := d.avgCompl()
	if !(avg > zero) {
		return d.muLow, true
	}
	aff := sum / float64(d.nb)
	sigma := math.Pow(aff/avg, 3)
	if d.logger.enable(LogTrace) {
		d.logger.log("Probing: μ_aff=%.6e μ_avg=%.6e σ=%.6e\n", aff, avg, sigma)
	}
	return sigma * avg, true
}
