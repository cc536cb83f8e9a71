// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"github.com/curioloop/interior/sparse"
)

// Structure is the coordinate sparsity pattern of a derivative matrix.
// Entry k of a values array lives at (Rows[k], Cols[k]) in the index style of the problem.
type Structure = sparse.Pattern

// IndexStyle is the indexing convention of a Structure.
type IndexStyle int

const (
	// CStyle counts rows and columns from 0.
	CStyle IndexStyle = 0
	// FortranStyle counts rows and columns from 1.
	FortranStyle IndexStyle = 1
)

// Evaluator supplies the problem functions
//   - 𝒇(𝐱) : ℝⁿ → ℝ (objective)
//   - 𝒈(𝐱) : ℝⁿ → ℝᵐ (constraints)
//
// and their derivatives. Every method receives newX, which is true iff x differs
// from the point passed to the previous call of any method, so implementations
// may share work between calls at the same point.
//
// An error, a NaN or Inf output or a panic are all treated as an evaluation
// failure at x: the solver shortens the step or enters the restoration phase.
type Evaluator interface {
	// Objective returns 𝒇(𝐱).
	Objective(x []float64, newX bool) (float64, error)
	// Gradient stores 𝛁𝒇(𝐱) into grad.
	Gradient(x []float64, newX bool, grad []float64) error
	// Constraints stores 𝒈(𝐱) into g.
	Constraints(x []float64, newX bool, g []float64) error
	// Jacobian stores the entries of 𝛁𝒈(𝐱) into values following Problem.Jac.
	Jacobian(x []float64, newX bool, values []float64) error
	// Hessian stores the entries of σ𝛁²𝒇(𝐱) + Σⱼλⱼ𝛁²𝒈ⱼ(𝐱) into values following Problem.Hess.
	// newLambda is true iff lambda differs from the previous call.
	Hessian(x []float64, newX bool, objFactor float64, lambda []float64, newLambda bool, values []float64) error
}

// Funcs adapts plain functions to the Evaluator interface.
// Callbacks left nil report ErrNotImplemented, which is only an error when the
// solver needs them (see Derivative).
type Funcs struct {
	Obj  func(x []float64) (float64, error)
	Grad func(x, grad []float64) error
	Cons func(x, g []float64) error
	Jac  func(x, values []float64) error
	Hess func(x []float64, objFactor float64, lambda, values []float64) error
}

func (f Funcs) Objective(x []float64, _ bool) (float64, error) {
	if f.Obj == nil {
		return 0, ErrNotImplemented
	}
	return f.Obj(x)
}

func (f Funcs) Gradient(x []float64, _ bool, grad []float64) error {
	if f.Grad == nil {
		return ErrNotImplemented
	}
	return f.Grad(x, grad)
}

func (f Funcs) Constraints(x []float64, _ bool, g []float64) error {
	if len(g) == 0 {
		return nil
	}
	if f.Cons == nil {
		return ErrNotImplemented
	}
	return f.Cons(x, g)
}

func (f Funcs) Jacobian(x []float64, _ bool, values []float64) error {
	if len(values) == 0 {
		return nil
	}
	if f.Jac == nil {
		return ErrNotImplemented
	}
	return f.Jac(x, values)
}

func (f Funcs) Hessian(x []float64, _ bool, objFactor float64, lambda []float64, _ bool, values []float64) error {
	if len(values) == 0 {
		return nil
	}
	if f.Hess == nil {
		return ErrNotImplemented
	}
	return f.Hess(x, objFactor, lambda, values)
}
