// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"
)

// initialize computes the starting iterate from the user point x and,
// for a warm start, the user multipliers. It returns InvalidInputs when the
// problem functions cannot be evaluated at the starting point.
func (d *driver) initialize(x []float64, mult *Multipliers) Status {
	a, ini, log := d.orig, &d.init, &d.logger
	cur := d.cur
	warm := mult != nil

	push, frac := ini.BoundPush, ini.BoundFrac
	spush, sfrac := ini.SlackBoundPush, ini.SlackBoundFrac
	mu := d.barrier.MuInit
	if warm {
		push, frac = ini.WarmBoundPush, ini.WarmBoundFrac
		spush, sfrac = ini.WarmBoundPush, ini.WarmBoundFrac
		mu = ini.WarmMuInit
	}

	d.clear()
	a.fromUser(x, cur.w)
	d.pushInterior(cur.w, 0, a.nx, push, frac)

	// slacks start at the inequality values moved inside their bounds
	fill(cur.w[a.nx:], zero)
	if err := d.nlp.constraints(cur.w, cur.h); err != nil {
		if log.enable(LogLast) {
			log.log("Constraints cannot be evaluated at the starting point: %v\n", err)
		}
		return InvalidInputs
	}
	copy(cur.w[a.nx:], cur.h[a.mc:])
	d.pushInterior(cur.w, a.nx, a.nw, spush, sfrac)

	if err := cur.evalFunc(d.nlp); err != nil {
		if log.enable(LogLast) {
			log.log("Problem cannot be evaluated at the starting point: %v\n", err)
		}
		return InvalidInputs
	}
	if err := cur.evalDeriv(d.nlp); err != nil {
		if log.enable(LogLast) {
			log.log("Derivatives cannot be evaluated at the starting point: %v\n", err)
		}
		return InvalidInputs
	}

	d.initBoundMultipliers(mult)
	if warm && mult.G != nil {
		for j, g := range mult.G {
			cur.y[a.crow[j]] = a.sf * g / a.dg[j]
		}
	} else {
		d.leastSquaresMultipliers()
	}

	if log.enable(LogVerbose) {
		log.vec("w0", cur.w)
		log.vec("y0", cur.y)
	}
	d.begin(mu)
	return running
}

// clear zeroes the current iterate.
func (d *driver) clear() {
	cur := d.cur
	fill(cur.w, zero)
	fill(cur.y, zero)
	fill(cur.zl, zero)
	fill(cur.zu, zero)
	cur.f, cur.theta = zero, zero
	d.err = kktError{}
	d.mu, d.dnorm = zero, zero
	d.alphaPr, d.alphaDu, d.lsTrials = zero, zero, 0
	d.kkt.reset()
}

// pushInterior moves w[from:to] strictly inside the bounds by
//
//	p = 𝚖𝚒𝚗(κ₁·𝚖𝚊𝚡(1,|𝐥|), κ₂·(𝐮-𝐥))
//
// and κ₁·𝚖𝚊𝚡(1,|b|) for variables bounded on one side.
func (d *driver) pushInterior(w []float64, from, to int, push, frac float64) {
	for i := from; i < to; i++ {
		l, u := d.l[i], d.u[i]
		switch {
		case d.hasL[i] && d.hasU[i]:
			pl := math.Min(push*math.Max(one, math.Abs(l)), frac*(u-l))
			pu := math.Min(push*math.Max(one, math.Abs(u)), frac*(u-l))
			w[i] = math.Min(math.Max(w[i], l+pl), u-pu)
		case d.hasL[i]:
			w[i] = math.Max(w[i], l+push*math.Max(one, math.Abs(l)))
		case d.hasU[i]:
			w[i] = math.Min(w[i], u-push*math.Max(one, math.Abs(u)))
		}
	}
}

// initBoundMultipliers sets 𝐳ₗ, 𝐳ᵤ to BoundMultInit for existing bounds, or to the
// scaled user multipliers of a warm start kept above WarmMultPush.
func (d *driver) initBoundMultipliers(mult *Multipliers) {
	a, ini, cur := d.orig, &d.init, d.cur
	fill(cur.zl, zero)
	fill(cur.zu, zero)
	for i := range cur.w {
		if d.hasL[i] {
			cur.zl[i] = ini.BoundMultInit
		}
		if d.hasU[i] {
			cur.zu[i] = ini.BoundMultInit
		}
	}
	if mult == nil {
		return
	}
	push := ini.WarmMultPush
	for k, i := range a.free {
		if mult.ZL != nil && d.hasL[k] {
			cur.zl[k] = math.Max(push, a.sf*mult.ZL[i]/a.dx[i])
		}
		if mult.ZU != nil && d.hasU[k] {
			cur.zu[k] = math.Max(push, a.sf*mult.ZU[i]/a.dx[i])
		}
	}
	if mult.G != nil {
		// stationarity in the slacks: -ỹ - zₗ + zᵤ = 0
		for r, j := range a.ineq {
			k := a.nx + r
			y := a.sf * mult.G[j] / a.dg[j]
			if d.hasL[k] {
				cur.zl[k] = math.Max(push, -y)
			}
			if d.hasU[k] {
				cur.zu[k] = math.Max(push, y)
			}
		}
	}
}

// leastSquaresMultipliers estimates 𝐲 from
//
//	⎡ 𝐈  𝐉ᵀ ⎤ ⎡ 𝐝 ⎤     ⎡ 𝛁𝒇 - 𝐳ₗ + 𝐳ᵤ ⎤
//	⎣ 𝐉  0  ⎦ ⎣ 𝐲 ⎦ = - ⎣      0       ⎦
//
// and discards the estimate when it is larger than ConstrMultInitMax.
func (d *driver) leastSquaresMultipliers() {
	cur, log := d.cur, &d.logger
	fill(cur.y, zero)
	if d.mh == 0 || d.init.ConstrMultInitMax <= zero {
		return
	}
	if !d.kkt.factorizeLSQ(cur.jac) {
		if log.enable(LogTrace) {
			log.log("Least-squares multiplier system is singular\n")
		}
		return
	}
	for i := range cur.w {
		d.rhs[i] = -(cur.grad[i] - cur.zl[i] + cur.zu[i])
	}
	fill(d.rhs[d.nw:], zero)
	if err := d.kkt.solve(d.rhs, d.sol); err != nil {
		return
	}
	y := d.sol[d.nw:]
	if normInf(y) > d.init.ConstrMultInitMax {
		if log.enable(LogTrace) {
			log.log("Least-squares multipliers discarded, ‖y‖∞=%.2e\n", normInf(y))
		}
		return
	}
	copy(cur.y, y)
}
