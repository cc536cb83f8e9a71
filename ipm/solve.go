// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"
	"slices"
	"time"
)

// solve carries the state of one Fit shared by the regular and restoration drivers.
type solve struct {
	optimizer *Optimizer
	workspace *Workspace
	start     time.Time

	iter, restoIter int
}

func (s *solve) run(x []float64, mult *Multipliers) *Result {
	o, w := s.optimizer, s.workspace
	a, d := w.nlp, w.main
	log := &o.logger

	a.resetCaches()
	d.run = s
	s.printInit()

	if o.nx == 0 {
		return s.finish(s.allFixed())
	}

	// scaling and derivative test at the starting point moved into the relaxed bounds
	xs := slices.Clone(x)
	for k, i := range a.free {
		xs[i] = math.Min(math.Max(xs[i], a.lx[k]), a.ux[k])
	}
	for _, i := range a.fixed {
		xs[i] = a.xl[i]
	}
	if o.deriv.Test {
		bad, err := a.checkDerivatives(xs)
		switch {
		case err != nil:
			if log.enable(LogLast) {
				log.log("Derivative test failed: %v\n", err)
			}
		case log.enable(LogLast):
			log.log("Derivative test found %d mismatches\n", len(bad))
			for _, mm := range bad {
				log.log("  %s\n", mm)
			}
		}
	}
	if err := a.computeScaling(xs); err != nil {
		if log.enable(LogLast) {
			log.log("Scaling cannot be computed at the starting point: %v\n", err)
		}
		d.clear()
		a.fromUser(xs, d.cur.w)
		return s.finish(InvalidInputs)
	}
	if log.enable(LogTrace) {
		log.log("Objective scaling factor = %.6e\n", a.sf)
	}

	st := d.initialize(x, mult)
	if st == running {
		st = d.mainLoop()
	}
	return s.finish(st)
}

// allFixed handles a problem whose variables are all fixed:
// the point is feasible or not.
func (s *solve) allFixed() Status {
	o, a := s.optimizer, s.workspace.nlp
	x := a.toUser(nil)
	if err := a.userConstraints(x); err != nil {
		return InvalidInputs
	}
	for j, g := range a.gv {
		if v := math.Max(a.gl[j]-g, g-a.gu[j]); v > o.stop.ConstrViolTol {
			return InfeasibleDetected
		}
	}
	return Converged
}

// finish builds the result from the current iterate of the regular driver.
func (s *solve) finish(st Status) *Result {
	o, w := s.optimizer, s.workspace
	a, d := w.nlp, w.main

	res := &Result{Status: st, OK: st.Success()}
	var it *Iterate
	var err error
	if o.nx == 0 {
		it, err = a.report(nil, make([]float64, o.mh), nil, nil)
	} else {
		it, err = a.report(d.cur.w, d.cur.y, d.cur.zl, d.cur.zu)
	}

	res.X = it.X
	for i := range res.X {
		res.X[i] = math.Min(math.Max(res.X[i], a.xl[i]), a.xu[i])
	}
	res.F = math.NaN()
	if f, e := a.userObjective(res.X); e == nil {
		res.F = f
	}
	res.G = it.G
	if err != nil || a.userConstraints(res.X) != nil {
		for j := range res.G {
			res.G[j] = math.NaN()
		}
	} else {
		copy(res.G, a.gv)
	}
	res.Mult = Multipliers{G: it.Lambda, ZL: it.ZL, ZU: it.ZU}

	res.NumIter = s.iter
	res.NumRestoIter = s.restoIter
	res.Evals = a.evals
	res.NumEval = a.evals.Obj
	res.Elapsed = time.Since(s.start)
	s.printExit(res)
	return res
}
