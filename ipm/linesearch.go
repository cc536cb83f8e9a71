// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// lineSearch backtracks along the primal step from the fraction-to-boundary
// limit until the trial point is acceptable to the filter. A rejected first
// trial that increases the violation is retried with second order corrections.
// On success the trial iterate holds the accepted point with its derivatives.
func (d *driver) lineSearch() bool {
	cur, t := d.cur, d.trial
	ls, log := &d.search, &d.logger

	theta, phi := cur.theta, d.phi(cur)
	gd := floats.Dot(d.gphi, d.dw)
	alphaMax := d.maxStep(cur.w, d.dw, d.tau)
	d.lsTrials, d.soc = 0, false

	if d.tinyStep() {
		// negligible step: take it without filter test so μ can decrease
		d.lsTrials = 1
		d.movePrimal(alphaMax, d.dw)
		if t.evalFunc(d.nlp) == nil && t.evalDeriv(d.nlp) == nil {
			if log.enable(LogTrace) {
				log.log("Tiny step of size %.2e accepted\n", alphaMax)
			}
			d.tiny = true
			d.alphaPr = alphaMax
			return true
		}
	}

	alphaMin := d.alphaMin(theta, gd)
	alpha := alphaMax
	accepted := false
	for k := 0; !accepted; k++ {
		if alpha < alphaMin {
			if log.enable(LogTrace) {
				log.log("Step size %.2e below minimum %.2e\n", alpha, alphaMin)
			}
			return false
		}
		d.lsTrials++
		d.movePrimal(alpha, d.dw)
		if err := t.evalFunc(d.nlp); err != nil {
			if log.enable(LogTrace) {
				log.log("Trial step %.2e: %v\n", alpha, err)
			}
			alpha *= ls.AlphaRed
			continue
		}
		if log.enable(LogTrace) {
			log.log("Trial step %.2e: θ=%.6e φ=%.12e\n", alpha, t.theta, d.phi(t))
		}
		switch {
		case d.acceptable(alpha, theta, phi, gd, t):
			if err := t.evalDeriv(d.nlp); err != nil {
				if log.enable(LogTrace) {
					log.log("Derivatives at trial point failed: %v\n", err)
				}
				break
			}
			d.alphaPr = alpha
			accepted = true
		case k == 0 && ls.MaxSOC > 0 && t.theta >= theta:
			accepted = d.secondOrder(alpha, theta, phi, gd)
		}
		if !accepted {
			alpha *= ls.AlphaRed
		}
	}

	// alpha is the step the acceptance test was carried out with
	if !d.fType(alpha, theta, gd) || !d.armijo(alpha, phi, d.phi(t), gd) {
		d.filt.add((one-ls.GammaTheta)*theta, phi-ls.GammaPhi*theta)
		if log.enable(LogTrace) {
			log.log("Filter augmented with (%.6e, %.12e), %d entries\n", theta, phi, len(d.filt))
		}
	}
	return true
}

// tinyStep reports whether the step is negligible relative to the iterate
// while the constraints are nearly satisfied.
func (d *driver) tinyStep() bool {
	if normInf(d.cur.h) > 1e-4 {
		return false
	}
	for i, w := range d.cur.w {
		if math.Abs(d.dw[i])/(one+math.Abs(w)) >= ten*epsilon {
			return false
		}
	}
	return true
}

// alphaMin returns the step size below which the line search gives up
//
//	α_min = f·𝚖𝚒𝚗(γ_θ, γ_φθ/(-𝛁φᵀ𝐝), δθ^s_θ/(-𝛁φᵀ𝐝)^s_φ)   if 𝛁φᵀ𝐝 < 0
//	α_min = f·γ_θ                                           otherwise
//
// where the last term only applies when θ ≤ θ_min. It is never below ε.
func (d *driver) alphaMin(theta, gd float64) float64 {
	ls := &d.search
	alpha := ls.GammaTheta
	if gd < zero {
		alpha = math.Min(alpha, ls.GammaPhi*theta/-gd)
		if theta <= d.thetaMin {
			alpha = math.Min(alpha, ls.Delta*math.Pow(theta, ls.STheta)/math.Pow(-gd, ls.SPhi))
		}
	}
	return math.Max(ls.AlphaMinFrac*alpha, epsilon)
}

// fType reports whether the switching condition α(-𝛁φᵀ𝐝)^s_φ > δθ^s_θ holds.
func (d *driver) fType(alpha, theta, gd float64) bool {
	ls := &d.search
	return gd < zero && alpha*math.Pow(-gd, ls.SPhi) > ls.Delta*math.Pow(theta, ls.STheta)
}

// armijo reports whether φ(α) ≤ φ + η_φα𝛁φᵀ𝐝.
func (d *driver) armijo(alpha, phi, phiT, gd float64) bool {
	return le(phiT-phi, d.search.EtaPhi*alpha*gd, phi)
}

// le compares a ≤ b with a tolerance relative to base.
func le(a, b, base float64) bool {
	return a-b <= ten*epsilon*math.Abs(base)
}

// acceptable decides whether the trial point is accepted by the line search:
// Armijo decrease for f-type steps close to feasibility, sufficient decrease of
// violation or barrier objective otherwise, and acceptance by the filter.
func (d *driver) acceptable(alpha, theta, phi, gd float64, t *iterate) bool {
	ls := &d.search
	thetaT, phiT := t.theta, d.phi(t)
	if math.IsInf(phiT, 0) || thetaT > d.thetaMax {
		return false
	}
	if phiT > phi && math.Log10((phiT-phi)/math.Max(one, math.Abs(phi))) > ls.ObjMaxInc {
		return false
	}
	var ok bool
	if theta <= d.thetaMin && d.fType(alpha, theta, gd) {
		ok = d.armijo(alpha, phi, phiT, gd)
	} else {
		ok = le(thetaT, (one-ls.GammaTheta)*theta, theta) || le(phiT, phi-ls.GammaPhi*theta, phi)
	}
	return ok && d.filt.acceptable(thetaT, phiT)
}

// secondOrder retries the first trial point with corrected constraint values
//
//	𝐜_soc ← α_soc·𝐜_soc + 𝒉(𝐰 + α_soc𝐝_soc)
//
// reusing the factorization. On success d.dw, d.dy and the bound steps hold
// the corrected direction.
func (d *driver) secondOrder(alpha, theta, phi, gd float64) bool {
	cur, t := d.cur, d.trial
	ls, log := &d.search, &d.logger

	floats.AddScaledTo(d.csoc, t.h, alpha, cur.h)
	thetaOld := t.theta
	for p := 0; p < ls.MaxSOC; p++ {
		for r, c := range d.csoc {
			d.rhs[d.nw+r] = -c
		}
		if err := d.kkt.solve(d.rhs, d.sol); err != nil {
			return false
		}
		dw := d.sol[:d.nw]
		alphaSoc := d.maxStep(cur.w, dw, d.tau)
		d.movePrimal(alphaSoc, dw)
		d.lsTrials++
		if err := t.evalFunc(d.nlp); err != nil {
			return false
		}
		if log.enable(LogTrace) {
			log.log("Second order correction %d: step %.2e θ=%.6e\n", p+1, alphaSoc, t.theta)
		}
		if d.acceptable(alpha, theta, phi, gd, t) && t.evalDeriv(d.nlp) == nil {
			copy(d.dw, dw)
			copy(d.dy, d.sol[d.nw:])
			d.boundSteps(cur, d.mu)
			d.alphaPr = alphaSoc
			d.soc = true
			return true
		}
		if t.theta > ls.KappaSOC*thetaOld {
			return false
		}
		thetaOld = t.theta
		floats.AddScaledTo(d.csoc, t.h, alphaSoc, d.csoc)
	}
	return false
}
