// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff approximates first derivatives by finite differences.
//
// Gradients of scalar functions and sparse Jacobians of vector functions are
// supported. Sparse Jacobians perturb groups of structurally orthogonal
// columns together (Curtis–Powell–Reid), so a Jacobian with k colors costs k
// (forward) or 2k (central) evaluations instead of n or 2n.
//
// # Reference
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
//   - A.R. Curtis, M.J.D. Powell, J.K. Reid: "On the estimation of sparse Jacobian matrices". IMA J. Appl. Math. 13, 1974.
//
// # License
//
//   - https://github.com/scipy/scipy/blob/main/LICENSE.txt
package numdiff

import (
	"github.com/pkg/errors"

	"github.com/curioloop/interior/sparse"
)

// Approx holds the finite difference settings and the scratch space reused
// across calls. An Approx is not safe for concurrent use.
type Approx struct {
	// Finite difference scheme.
	Method Method
	// Lower and upper bounds on the independent variables.
	// Evaluation points never leave these bounds. Nil means unbounded.
	Bounds []Bound
	// Relative step size: h = RelStep·sgn(x)·|x|.
	// Zero selects h = ε·sgn(x)·max(1,|x|) with ε chosen by the method.
	RelStep float64
	// Absolute step size, used in preference to RelStep when non-zero.
	// Its sign is ignored by the central scheme.
	AbsStep float64

	h    []float64
	side []bool
	x    []float64
	y0   []float64
	y1   []float64
	y2   []float64
}

func (a *Approx) prepare(x0 []float64, m int) error {
	n := len(x0)
	if a.Method != Forward && a.Method != Central {
		return errors.Errorf("unknown finite difference method %d", a.Method)
	}
	if a.Bounds != nil && len(a.Bounds) != n {
		return errors.Errorf("bounds have %d entries but x has %d", len(a.Bounds), n)
	}
	for i, b := range a.Bounds {
		lb, ub := b.span()
		if lb > ub {
			return errors.Errorf("empty bound range at %d", i)
		}
		if x0[i] < lb || x0[i] > ub {
			return errors.Errorf("x[%d]=%g violates bounds [%g,%g]", i, x0[i], lb, ub)
		}
	}
	if cap(a.h) < n {
		a.h = make([]float64, n)
		a.side = make([]bool, n)
		a.x = make([]float64, n)
	}
	a.h, a.side, a.x = a.h[:n], a.side[:n], a.x[:n]
	if cap(a.y0) < m {
		a.y0 = make([]float64, m)
		a.y1 = make([]float64, m)
		a.y2 = make([]float64, m)
	}
	a.y0, a.y1, a.y2 = a.y0[:m], a.y1[:m], a.y2[:m]

	stepSize(a.Method, a.RelStep, a.AbsStep, x0, a.h)
	fitBounds(a.Method, a.Bounds, x0, a.h, a.side)
	copy(a.x, x0)
	return nil
}

// Gradient approximates ∇f(x0) into grad.
func (a *Approx) Gradient(f func(x []float64) (float64, error), x0, grad []float64) error {
	if len(grad) != len(x0) {
		return errors.New("gradient dimension mismatch")
	}
	if err := a.prepare(x0, 0); err != nil {
		return err
	}
	f0, err := f(a.x)
	if err != nil {
		return errors.Wrap(err, "evaluate at base point")
	}
	x := a.x
	for i, s := range a.h {
		xi := x0[i]
		if a.Method == Forward {
			x[i] = xi + s
			f1, err := f(x)
			if err != nil {
				return errors.Wrapf(err, "evaluate along coordinate %d", i)
			}
			grad[i] = (f1 - f0) / s
		} else {
			var f1, f2 float64
			if a.side[i] {
				x[i] = xi + s
				if f1, err = f(x); err == nil {
					x[i] = xi + 2*s
					f2, err = f(x)
				}
				grad[i] = (4*f1 - 3*f0 - f2) / (2 * s)
			} else {
				x[i] = xi - s
				if f1, err = f(x); err == nil {
					x[i] = xi + s
					f2, err = f(x)
				}
				grad[i] = (f2 - f1) / (2 * s)
			}
			if err != nil {
				return errors.Wrapf(err, "evaluate along coordinate %d", i)
			}
		}
		x[i] = xi
	}
	return nil
}

// Jacobian approximates the dense m×n Jacobian of g at x0 into jac (row-major).
func (a *Approx) Jacobian(g func(x, y []float64) error, m int, x0, jac []float64) error {
	n := len(x0)
	if len(jac) != m*n {
		return errors.New("jacobian dimension mismatch")
	}
	p := sparse.Pattern{Rows: make([]int, 0, m*n), Cols: make([]int, 0, m*n)}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			p.Rows = append(p.Rows, i)
			p.Cols = append(p.Cols, j)
		}
	}
	return a.SparseJacobian(g, m, x0, p, jac)
}

// SparseJacobian approximates the entries of the m×n Jacobian of g at x0 that
// appear in the zero-based pattern p, storing them into values in pattern order.
// Entries outside the pattern are assumed to be structurally zero.
func (a *Approx) SparseJacobian(g func(x, y []float64) error, m int, x0 []float64, p sparse.Pattern, values []float64) error {
	n := len(x0)
	if len(values) != p.Len() {
		return errors.New("jacobian value count does not match pattern")
	}
	if err := p.Check(m, n, 0); err != nil {
		return errors.Wrap(err, "jacobian pattern")
	}
	if err := a.prepare(x0, m); err != nil {
		return err
	}

	// entries of column j
	byCol := make([][]int, n)
	for k, j := range p.Cols {
		byCol[j] = append(byCol[j], k)
	}

	if err := g(a.x, a.y0); err != nil {
		return errors.Wrap(err, "evaluate at base point")
	}
	for _, group := range Coloring(m, n, p) {
		if a.Method == Forward {
			if err := a.forwardGroup(g, x0, group); err != nil {
				return err
			}
			for _, j := range group {
				for _, k := range byCol[j] {
					i := p.Rows[k]
					values[k] = (a.y1[i] - a.y0[i]) / a.h[j]
				}
			}
			continue
		}
		// one-sided and two-sided columns need different points: split the group
		for _, oneSided := range []bool{false, true} {
			var sub []int
			for _, j := range group {
				if a.side[j] == oneSided {
					sub = append(sub, j)
				}
			}
			if len(sub) == 0 {
				continue
			}
			if err := a.centralGroup(g, x0, sub, oneSided); err != nil {
				return err
			}
			for _, j := range sub {
				d := 2 * a.h[j]
				for _, k := range byCol[j] {
					i := p.Rows[k]
					if oneSided {
						values[k] = (4*a.y1[i] - 3*a.y0[i] - a.y2[i]) / d
					} else {
						values[k] = (a.y2[i] - a.y1[i]) / d
					}
				}
			}
		}
	}
	return nil
}

func (a *Approx) forwardGroup(g func(x, y []float64) error, x0 []float64, group []int) error {
	for _, j := range group {
		a.x[j] = x0[j] + a.h[j]
	}
	err := g(a.x, a.y1)
	for _, j := range group {
		a.x[j] = x0[j]
	}
	return errors.Wrapf(err, "evaluate along columns %v", group)
}

func (a *Approx) centralGroup(g func(x, y []float64) error, x0 []float64, group []int, oneSided bool) error {
	shift := func(k float64) {
		for _, j := range group {
			a.x[j] = x0[j] + k*a.h[j]
		}
	}
	var err error
	if oneSided {
		shift(1)
		if err = g(a.x, a.y1); err == nil {
			shift(2)
			err = g(a.x, a.y2)
		}
	} else {
		shift(-1)
		if err = g(a.x, a.y1); err == nil {
			shift(1)
			err = g(a.x, a.y2)
		}
	}
	shift(0)
	return errors.Wrapf(err, "evaluate along columns %v", group)
}

// Coloring partitions the columns of an m×n zero-based pattern into groups of
// structurally orthogonal columns (no two columns of a group share a row).
// Columns are assigned greedily in order of decreasing non-zero count,
// which keeps the result deterministic for a given pattern.
func Coloring(m, n int, p sparse.Pattern) [][]int {
	rowsOf := make([][]int, n)
	for k, j := range p.Cols {
		rowsOf[j] = append(rowsOf[j], p.Rows[k])
	}
	order := make([]int, n)
	for j := range order {
		order[j] = j
	}
	// insertion sort keeps equal counts in index order
	for i := 1; i < n; i++ {
		for k := i; k > 0 && len(rowsOf[order[k]]) > len(rowsOf[order[k-1]]); k-- {
			order[k], order[k-1] = order[k-1], order[k]
		}
	}

	var groups [][]int
	var used [][]bool // rows touched by each group
	for _, j := range order {
		placed := false
		for c := range groups {
			clash := false
			for _, i := range rowsOf[j] {
				if used[c][i] {
					clash = true
					break
				}
			}
			if !clash {
				groups[c] = append(groups[c], j)
				for _, i := range rowsOf[j] {
					used[c][i] = true
				}
				placed = true
				break
			}
		}
		if !placed {
			mark := make([]bool, max(m, 1))
			for _, i := range rowsOf[j] {
				mark[i] = true
			}
			groups = append(groups, []int{j})
			used = append(used, mark)
		}
	}
	return groups
}
