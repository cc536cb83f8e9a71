// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"fmt"
	"math"
)

const iterHeader = "iter    objective    inf_pr   inf_du lg(mu)  ||d||  lg(rg) alpha_du alpha_pr  ls\n"

// printInit logs the problem dimensions and the resolved options.
func (s *solve) printInit() {
	o := s.optimizer
	log := &o.logger
	if !log.enable(LogLast) {
		return
	}
	log.log("RUNNING THE INTERIOR POINT CODE\n")
	log.log("           * * *\n")
	log.log("Machine precision = %10.3e\n", epsilon)
	log.log("N = %d    M = %d\n", o.n, o.m)
	log.log("%s\n", s.workspace.nlp.describe())
	if log.enable(LogTrace) {
		log.log("Barrier strategy = %s    Hessian = %s    Linear solver = %s\n",
			o.barrier.Strategy, o.deriv.Hessian, o.linear.Method)
		log.log("Tolerance = %.2e    Max iterations = %d\n", o.stop.Tolerance, o.stop.MaxIterations)
	}
	if log.enable(LogIter) {
		log.out("\n" + iterHeader)
	}
}

// printIter writes one row of the iteration table, the row of a
// restoration iteration is marked with 'r'.
func (d *driver) printIter() {
	log := &d.logger
	if !log.enable(LogIter) {
		return
	}
	iter := d.run.iter
	if log.Level < LogTrace && iter%int(log.Level) != 0 {
		return
	}
	if log.enable(LogTrace) && iter > 0 && iter%10 == 0 {
		log.out(iterHeader)
	}
	mark := " "
	if d.mode == Restoration {
		mark = "r"
	}
	f, infPr := d.origMeasures()
	rg := "   - "
	if d.kkt.deltaW > zero {
		rg = fmt.Sprintf("%5.1f", math.Log10(d.kkt.deltaW))
	}
	tag := ' '
	switch {
	case d.tiny:
		tag = 'T'
	case d.soc:
		tag = 'S'
	}
	log.out("%4d%s %14.7e %7.2e %7.2e %5.1f %7.2e %s %7.2e %7.2e%c %2d\n",
		iter, mark, f, infPr, d.err.dual, math.Log10(d.mu), d.dnorm, rg,
		d.alphaDu, d.alphaPr, tag, d.lsTrials)
	if log.enable(LogVerbose) {
		log.vec("w", d.cur.w)
		log.vec("zl", d.cur.zl)
		log.vec("zu", d.cur.zu)
	}
}

// printExit logs the final statistics.
func (s *solve) printExit(res *Result) {
	log := &s.optimizer.logger
	if !log.enable(LogLast) {
		return
	}
	d := s.workspace.main
	log.log("\nNumber of Iterations....: %d\n", res.NumIter)
	if res.NumRestoIter > 0 {
		log.log("Restoration iterations..: %d\n", res.NumRestoIter)
	}
	log.log("\n                                   (scaled)                 (unscaled)\n")
	log.log("Objective...............: %24.16e  %24.16e\n", d.cur.f, res.F)
	log.log("Dual infeasibility......: %24.16e  %24.16e\n", d.err.dual, d.err.dualU)
	log.log("Constraint violation....: %24.16e  %24.16e\n", d.err.primal, d.err.primalU)
	log.log("Complementarity.........: %24.16e  %24.16e\n", d.err.compl, d.err.complU)
	log.log("Overall NLP error.......: %24.16e\n\n", d.err.e0)
	e := res.Evals
	log.log("Number of objective function evaluations             = %d\n", e.Obj)
	log.log("Number of objective gradient evaluations             = %d\n", e.Grad)
	log.log("Number of constraint evaluations                     = %d\n", e.Cons)
	log.log("Number of constraint Jacobian evaluations            = %d\n", e.Jac)
	log.log("Number of Lagrangian Hessian evaluations             = %d\n", e.Hess)
	log.log("Total wall clock time                                = %s\n", formatNs(res.Elapsed.Nanoseconds()))
	log.log("\nEXIT: %s\n", res.Status)
}

func formatNs(nanoseconds int64) string {
	switch {
	case nanoseconds >= 1e9: // Convert to seconds
		return fmt.Sprintf("%.2f s", float64(nanoseconds)/1e9)
	case nanoseconds >= 1e6: // Convert to milliseconds
		return fmt.Sprintf("%.2f ms", float64(nanoseconds)/1e6)
	case nanoseconds >= 1e3: // Convert to microseconds
		return fmt.Sprintf("%.2f µs", float64(nanoseconds)/1e3)
	default: // Keep in nanoseconds
		return fmt.Sprintf("%.2f ns", float64(nanoseconds))
	}
}
