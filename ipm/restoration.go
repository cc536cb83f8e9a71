// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"

	"github.com/curioloop/interior/sparse"
)

// restoNLP is the feasibility restoration problem over 𝐯 = (𝐰, 𝐩, 𝐧)
//
//	minimize    ρ Σ(𝐩 + 𝐧) + ζ/2 ‖𝐃_R(𝐱 - 𝐱_R)‖²
//	subject to  𝒉(𝐰) - 𝐩 + 𝐧 = 0
//	            𝐥 ≤ 𝐰 ≤ 𝐮,  𝐩, 𝐧 ≥ 0
//
// where 𝐱 are the leading curved variables of 𝐰, 𝐱_R the point restoration
// started from and 𝐃_R = 𝚍𝚒𝚊𝚐(𝚖𝚒𝚗(1, 1/|𝐱_R|)).
type restoNLP struct {
	orig   nlpModel
	nw, mh int // original dimensions
	nx     int

	rho, zeta float64
	ref, dr   []float64

	l, u []float64

	jac, tpl   *sparse.Matrix
	hess, htpl *sparse.Matrix
}

func newRestoNLP(orig nlpModel, rho float64, exact bool) *restoNLP {
	nw, mh := orig.dims()
	r := &restoNLP{
		orig: orig, nw: nw, mh: mh, nx: orig.curved(), rho: rho,
		l: make([]float64, nw+2*mh),
		u: make([]float64, nw+2*mh),
	}
	r.ref, r.dr = make([]float64, r.nx), make([]float64, r.nx)
	r.refreshBounds()

	r.jac = orig.newJacobian()
	r.tpl = sparse.New(mh, nw+2*mh, sparse.Pattern{})
	for k := 0; k < r.jac.NNZ(); k++ {
		i, j := r.jac.At(k)
		r.tpl.Append(i, j, zero)
	}
	for i := 0; i < mh; i++ {
		r.tpl.Append(i, nw+i, -one)
		r.tpl.Append(i, nw+mh+i, one)
	}

	if exact {
		r.hess = orig.newHessian()
		r.htpl = sparse.New(nw+2*mh, nw+2*mh, sparse.Pattern{})
		for k := 0; k < r.hess.NNZ(); k++ {
			i, j := r.hess.At(k)
			r.htpl.Append(i, j, zero)
		}
		for i := 0; i < r.nx; i++ {
			r.htpl.Append(i, i, zero)
		}
	}
	return r
}

// reset installs the reference point and the proximity weight,
// and refreshes the bounds of the original variables.
func (r *restoNLP) reset(w []float64, zeta float64) {
	r.refreshBounds()
	r.zeta = zeta
	for i := range r.ref {
		r.ref[i] = w[i]
		r.dr[i] = math.Min(one, one/math.Abs(w[i]))
	}
}

func (r *restoNLP) refreshBounds() {
	l, u := r.orig.bounds()
	copy(r.l, l)
	copy(r.u, u)
	for i := r.nw; i < len(r.l); i++ {
		r.l[i], r.u[i] = zero, inf
	}
}

func (r *restoNLP) dims() (nw, mh int)       { return r.nw + 2*r.mh, r.mh }
func (r *restoNLP) bounds() (l, u []float64) { return r.l, r.u }
func (r *restoNLP) curved() int              { return r.nx }

func (r *restoNLP) objective(v []float64) (float64, error) {
	f := zero
	for _, pn := range v[r.nw:] {
		f += r.rho * pn
	}
	for i, x := range v[:r.nx] {
		d := r.dr[i] * (x - r.ref[i])
		f += r.zeta / two * d * d
	}
	return f, nil
}

func (r *restoNLP) gradient(v, grad []float64) error {
	for i := range grad {
		switch {
		case i < r.nx:
			grad[i] = r.zeta * r.dr[i] * r.dr[i] * (v[i] - r.ref[i])
		case i < r.nw:
			grad[i] = zero
		default:
			grad[i] = r.rho
		}
	}
	return nil
}

func (r *restoNLP) constraints(v, h []float64) error {
	if err := r.orig.constraints(v[:r.nw], h); err != nil {
		return err
	}
	p, n := v[r.nw:r.nw+r.mh], v[r.nw+r.mh:]
	for i := range h {
		h[i] += n[i] - p[i]
	}
	return nil
}

func (r *restoNLP) newJacobian() *sparse.Matrix { return r.tpl.Clone() }
func (r *restoNLP) newHessian() *sparse.Matrix  { return r.htpl.Clone() }

func (r *restoNLP) jacobian(v []float64, jac *sparse.Matrix) error {
	if err := r.orig.jacobian(v[:r.nw], r.jac); err != nil {
		return err
	}
	copy(jac.Values, r.jac.Values)
	return nil
}

// hessian adds the proximity curvature to the constraint part of the
// original Hessian; the original objective does not enter.
func (r *restoNLP) hessian(v []float64, sigma float64, y []float64, hess *sparse.Matrix) error {
	if err := r.orig.hessian(v[:r.nw], zero, y, r.hess); err != nil {
		return err
	}
	k := copy(hess.Values, r.hess.Values)
	for i := 0; i < r.nx; i++ {
		hess.Values[k+i] = sigma * r.zeta * r.dr[i] * r.dr[i]
	}
	return nil
}

func (r *restoNLP) unscaleDual(res []float64) float64 { return normInf(res) }
func (r *restoNLP) unscalePrimal(h []float64) float64 { return normInf(h) }
func (r *restoNLP) unscaleCompl(c float64) float64    { return c }
func (r *restoNLP) reportObjective(f float64) float64 { return f }

// restore runs the restoration phase from the current iterate and returns
// running once a point acceptable to the filter has been found.
func (d *driver) restore() Status {
	log := &d.logger
	cur := d.cur
	if d.mh == 0 || cur.theta == zero {
		if log.enable(LogTrace) {
			log.log("Restoration phase is not applicable at a feasible point\n")
		}
		return d.failure(RestorationFailed)
	}
	ls := &d.search
	d.filt.add((one-ls.GammaTheta)*cur.theta, d.phi(cur)-ls.GammaPhi*cur.theta)

	w := d.run.workspace
	if w.resto == nil {
		model := newRestoNLP(d.nlp, ls.RestoPenalty, d.qn == nil)
		w.resto = newDriver(d.nlpLayout, model, d.orig, Restoration)
	}
	r := w.resto
	r.run = d.run
	if log.enable(LogIter) {
		log.log("Entering restoration phase at iteration %d with θ=%.6e\n", d.run.iter, cur.theta)
	}

	st := r.startFrom(d)
	if st == running {
		st = r.mainLoop()
	}
	switch st {
	case restored:
		return d.leaveRestoration(r)
	case Converged, ConvergedAcceptable:
		d.adopt(r)
		if d.err.primalU > d.stop.ConstrViolTol {
			if log.enable(LogIter) {
				log.log("Restoration converged to a point of local infeasibility\n")
			}
			return InfeasibleDetected
		}
		return d.failure(RestorationFailed)
	case MaxIterExceeded, MaxTimeExceeded, UserRequestedStop:
		d.adopt(r)
		return st
	default:
		if log.enable(LogIter) {
			log.log("Restoration phase failed: %s\n", st)
		}
		return d.failure(RestorationFailed)
	}
}

// startFrom initializes the restoration iterate from the parent iterate:
// μ_R = 𝚖𝚊𝚡(μ, ‖𝒉‖∞) and (𝐩, 𝐧) solving the barrier conditions of the
// penalty terms for fixed 𝐰, which gives
//
//	𝐧 = (μ_R - ρ𝒉)/2ρ + √(((μ_R - ρ𝒉)/2ρ)² + μ_R𝒉/2ρ),  𝐩 = 𝒉 + 𝐧.
func (d *driver) startFrom(p *driver) Status {
	model := d.nlp.(*restoNLP)
	pc, cur := p.cur, d.cur
	mu := math.Max(p.mu, normInf(pc.h))
	rho := model.rho
	model.reset(pc.w, d.search.RestoProximity*math.Sqrt(mu))

	d.parent = p
	d.thetaStart = pc.theta
	d.origF, d.origInfPr = pc.f, p.err.primalU

	nw, mh := p.nw, p.mh
	copy(cur.w, pc.w)
	fill(cur.zl, zero)
	fill(cur.zu, zero)
	for i := 0; i < nw; i++ {
		if p.hasL[i] {
			cur.zl[i] = math.Min(rho, pc.zl[i])
		}
		if p.hasU[i] {
			cur.zu[i] = math.Min(rho, pc.zu[i])
		}
	}
	for i, c := range pc.h {
		a := (mu - rho*c) / (two * rho)
		n := a + math.Sqrt(a*a+mu*c/(two*rho))
		pv := c + n
		cur.w[nw+i], cur.w[nw+mh+i] = pv, n
		cur.zl[nw+i], cur.zl[nw+mh+i] = mu/pv, mu/n
	}
	fill(cur.y, zero)
	if err := cur.evalFunc(d.nlp); err != nil {
		return RestorationFailed
	}
	if err := cur.evalDeriv(d.nlp); err != nil {
		return RestorationFailed
	}
	d.begin(mu)
	return running
}

// restoredBy reports whether the current restoration iterate is acceptable
// to the original problem: the violation decreased by κ_resto and the
// filter accepts it. The point is left in the trial iterate.
func (d *driver) restoredBy(r *driver) bool {
	t := d.trial
	copy(t.w, r.cur.w[:d.nw])
	if err := t.evalFunc(d.nlp); err != nil {
		r.origF = math.NaN()
		return false
	}
	r.origF, r.origInfPr = t.f, d.nlp.unscalePrimal(t.h)
	if t.theta > d.search.RestoSuccess*r.thetaStart {
		return false
	}
	return d.filt.acceptable(t.theta, d.phi(t))
}

// leaveRestoration continues the regular iteration from the restored point
// with zero constraint multipliers and the restoration bound multipliers.
func (d *driver) leaveRestoration(r *driver) Status {
	log := &d.logger
	t := d.trial
	if err := t.evalDeriv(d.nlp); err != nil {
		return d.failure(RestorationFailed)
	}
	fill(t.y, zero)
	copy(t.zl, r.cur.zl[:d.nw])
	copy(t.zu, r.cur.zu[:d.nw])
	if math.Max(normInf(t.zl), normInf(t.zu)) > d.search.BoundMultReset {
		for i := range t.zl {
			t.zl[i], t.zu[i] = zero, zero
			if d.hasL[i] {
				t.zl[i] = one
			}
			if d.hasU[i] {
				t.zu[i] = one
			}
		}
	}
	d.cur, d.trial = t, d.cur
	d.filt.reset()
	d.alphaPr, d.alphaDu, d.lsTrials = r.alphaPr, r.alphaDu, r.lsTrials
	d.tiny = false
	if log.enable(LogIter) {
		log.log("Leaving restoration phase at iteration %d with θ=%.6e\n", d.run.iter, t.theta)
	}
	return running
}

// adopt copies the restoration iterate into the current iterate for reporting.
func (d *driver) adopt(r *driver) {
	cur := d.cur
	copy(cur.w, r.cur.w[:d.nw])
	copy(cur.y, r.cur.y)
	copy(cur.zl, r.cur.zl[:d.nw])
	copy(cur.zu, r.cur.zu[:d.nw])
	if cur.evalFunc(d.nlp) == nil {
		d.err.primalU = d.nlp.unscalePrimal(cur.h)
	}
}
