// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"
)

// kktError holds the optimality measures of the current iterate.
type kktError struct {
	dual   float64 // ‖𝛁𝒇 + 𝐉ᵀ𝐲 - 𝐳ₗ + 𝐳ᵤ‖∞
	primal float64 // ‖𝒉‖∞
	compl  float64 // ‖𝐙𝐒𝐞‖∞
	sd, sc float64 // multiplier based scaling
	e0     float64 // KKT error of the original problem

	dualU, primalU, complU float64 // unscaled
}

// optimality computes the KKT error of the current iterate.
//
//	E₀ = 𝚖𝚊𝚡( ‖𝛁ℒ‖∞/s_d, ‖𝒉‖∞, ‖𝐙𝐒𝐞‖∞/s_c )
//	s_d = 𝚖𝚊𝚡(s_max, (‖𝐲‖₁+‖𝐳‖₁)/(m+n))/s_max
//	s_c = 𝚖𝚊𝚡(s_max, ‖𝐳‖₁/n)/s_max
func (d *driver) optimality() {
	cur, e := d.cur, &d.err
	cur.jac.MulTransVec(d.res, cur.y)
	for i := range d.res {
		d.res[i] += cur.grad[i] - cur.zl[i] + cur.zu[i]
	}
	e.dual = normInf(d.res)
	e.primal = normInf(cur.h)
	e.compl = d.complError(zero)

	smax := d.stop.ScaleMax
	sumZ := norm1(cur.zl) + norm1(cur.zu)
	e.sd, e.sc = one, one
	if cnt := d.mh + d.nb; cnt > 0 {
		e.sd = math.Max(smax, (norm1(cur.y)+sumZ)/float64(cnt)) / smax
	}
	if d.nb > 0 {
		e.sc = math.Max(smax, sumZ/float64(d.nb)) / smax
	}
	e.e0 = math.Max(e.dual/e.sd, math.Max(e.primal, e.compl/e.sc))

	e.dualU = d.nlp.unscaleDual(d.res)
	e.primalU = d.nlp.unscalePrimal(cur.h)
	e.complU = d.nlp.unscaleCompl(e.compl)
}

// complError returns ‖𝐙𝐒𝐞 - μ𝐞‖∞ at the current iterate.
func (d *driver) complError(mu float64) (v float64) {
	cur := d.cur
	for i, w := range cur.w {
		if d.hasL[i] {
			v = math.Max(v, math.Abs(cur.zl[i]*(w-d.l[i])-mu))
		}
		if d.hasU[i] {
			v = math.Max(v, math.Abs(cur.zu[i]*(d.u[i]-w)-mu))
		}
	}
	return
}

// barrierError returns the KKT error of the barrier subproblem at μ.
func (d *driver) barrierError(mu float64) float64 {
	e := &d.err
	return math.Max(e.dual/e.sd, math.Max(e.primal, d.complError(mu)/e.sc))
}

// converged applies the convergence and acceptable termination tests.
func (d *driver) converged() Status {
	e, stop := &d.err, &d.stop
	if e.e0 <= stop.Tolerance &&
		e.dualU <= stop.DualInfTol &&
		e.primalU <= stop.ConstrViolTol &&
		e.complU <= stop.ComplInfTol {
		return Converged
	}

	f := d.cur.f
	change := zero
	if d.hasPrev {
		change = math.Abs(f-d.fPrev) / math.Max(one, math.Abs(f))
	}
	d.fPrev, d.hasPrev = f, true

	d.acceptNow = e.e0 <= stop.AcceptableTol &&
		e.dualU <= stop.AcceptableDualInfTol &&
		e.primalU <= stop.AcceptableConstrViolTol &&
		e.complU <= stop.AcceptableComplInfTol &&
		change <= stop.AcceptableObjChangeTol
	if d.acceptNow {
		d.acceptIters++
	} else {
		d.acceptIters = 0
	}
	if stop.AcceptableIter > 0 && d.acceptIters >= stop.AcceptableIter {
		return ConvergedAcceptable
	}
	return running
}
