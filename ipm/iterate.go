// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"

	"github.com/curioloop/interior/sparse"
)

// nlpModel is the internal problem the driver iterates on:
//
//	minimize 𝒇(𝐰) subject to 𝒉(𝐰) = 0, 𝐥 ≤ 𝐰 ≤ 𝐮
//
// It is implemented by the scaled user problem and by the restoration problem.
type nlpModel interface {
	dims() (nw, mh int)
	bounds() (l, u []float64)
	// curved returns the number of leading variables the objective and
	// constraints are nonlinear in; the rest enter linearly.
	curved() int
	objective(w []float64) (float64, error)
	gradient(w, grad []float64) error
	constraints(w, h []float64) error
	newJacobian() *sparse.Matrix
	jacobian(w []float64, jac *sparse.Matrix) error
	newHessian() *sparse.Matrix
	hessian(w []float64, sigma float64, y []float64, hess *sparse.Matrix) error
	// The unscale methods map scaled optimality measures to infinity norms
	// of the user problem.
	unscaleDual(r []float64) float64
	unscalePrimal(h []float64) float64
	unscaleCompl(c float64) float64
	// reportObjective maps the internal objective value to the user problem.
	reportObjective(f float64) float64
}

// iterate is a primal-dual point with the function values evaluated at it.
type iterate struct {
	w  []float64 // primal variables (nw)
	y  []float64 // constraint multipliers (mh)
	zl []float64 // lower bound multipliers (nw), zero without bound
	zu []float64 // upper bound multipliers (nw), zero without bound

	f     float64        // objective
	h     []float64      // constraint values (mh)
	grad  []float64      // objective gradient (nw)
	jac   *sparse.Matrix // constraint Jacobian
	theta float64        // ‖𝒉‖₁
}

func newIterate(m nlpModel) *iterate {
	nw, mh := m.dims()
	return &iterate{
		w:    make([]float64, nw),
		y:    make([]float64, mh),
		zl:   make([]float64, nw),
		zu:   make([]float64, nw),
		h:    make([]float64, mh),
		grad: make([]float64, nw),
		jac:  m.newJacobian(),
	}
}

func (it *iterate) copyFrom(src *iterate) {
	copy(it.w, src.w)
	copy(it.y, src.y)
	copy(it.zl, src.zl)
	copy(it.zu, src.zu)
	copy(it.h, src.h)
	copy(it.grad, src.grad)
	copy(it.jac.Values, src.jac.Values)
	it.f, it.theta = src.f, src.theta
}

// evalFunc evaluates objective and constraints at w.
func (it *iterate) evalFunc(m nlpModel) (err error) {
	if it.f, err = m.objective(it.w); err != nil {
		return
	}
	if err = m.constraints(it.w, it.h); err != nil {
		return
	}
	it.theta = norm1(it.h)
	return
}

// evalDeriv evaluates objective gradient and constraint Jacobian at w.
func (it *iterate) evalDeriv(m nlpModel) error {
	if err := m.gradient(it.w, it.grad); err != nil {
		return err
	}
	return m.jacobian(it.w, it.jac)
}

func norm1(v []float64) (s float64) {
	for _, x := range v {
		s += math.Abs(x)
	}
	return
}

func normInf(v []float64) (s float64) {
	for _, x := range v {
		s = math.Max(s, math.Abs(x))
	}
	return
}

func fill(v []float64, a float64) {
	for i := range v {
		v[i] = a
	}
}
