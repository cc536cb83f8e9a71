// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package testprob provides standard nonlinear programs with known solutions.
package testprob

import (
	"math"
	"slices"

	"github.com/curioloop/interior/ipm"
)

// Case is a test problem with its starting point and reference solution.
type Case struct {
	Name  string
	Doc   string
	Prob  ipm.Problem
	X0    []float64
	XStar []float64 // nil when the problem has no solution
	FStar float64
	// Infeasible problems are expected to end in InfeasibleDetected or RestorationFailed.
	Infeasible bool
}

var inf = math.Inf(1)

var catalogue = []func() Case{
	quadratic,
	halfPlane,
	boundQP,
	rosenbrock,
	hs006,
	hs071,
	convexQP,
	fixedVar,
	infeasible,
}

// All returns every problem in a fixed order.
func All() []Case {
	cases := make([]Case, len(catalogue))
	for i, mk := range catalogue {
		cases[i] = mk()
	}
	return cases
}

// Names lists the problem names in catalogue order.
func Names() []string {
	names := make([]string, len(catalogue))
	for i, mk := range catalogue {
		names[i] = mk().Name
	}
	return names
}

// Get returns a fresh copy of the named problem.
func Get(name string) (Case, bool) {
	i := slices.Index(Names(), name)
	if i < 0 {
		return Case{}, false
	}
	return catalogue[i](), true
}

func quadratic() Case {
	return Case{
		Name: "quadratic",
		Doc:  "min x² without constraints",
		Prob: ipm.Problem{
			N:    1,
			Hess: ipm.Structure{Rows: []int{0}, Cols: []int{0}},
			Eval: ipm.Funcs{
				Obj:  func(x []float64) (float64, error) { return x[0] * x[0], nil },
				Grad: func(x, g []float64) error { g[0] = 2 * x[0]; return nil },
				Hess: func(x []float64, sigma float64, lam, h []float64) error { h[0] = 2 * sigma; return nil },
			},
		},
		X0:    []float64{3},
		XStar: []float64{0},
	}
}

func halfPlane() Case {
	return Case{
		Name: "halfplane",
		Doc:  "min x² + y² s.t. x + y ≥ 1",
		Prob: ipm.Problem{
			N: 2, M: 1,
			GL:   []float64{1},
			GU:   []float64{inf},
			Jac:  ipm.Structure{Rows: []int{0, 0}, Cols: []int{0, 1}},
			Hess: ipm.Structure{Rows: []int{0, 1}, Cols: []int{0, 1}},
			Eval: ipm.Funcs{
				Obj: func(x []float64) (float64, error) { return x[0]*x[0] + x[1]*x[1], nil },
				Grad: func(x, g []float64) error {
					g[0], g[1] = 2*x[0], 2*x[1]
					return nil
				},
				Cons: func(x, g []float64) error { g[0] = x[0] + x[1]; return nil },
				Jac: func(x, v []float64) error {
					v[0], v[1] = 1, 1
					return nil
				},
				Hess: func(x []float64, sigma float64, lam, h []float64) error {
					h[0], h[1] = 2*sigma, 2*sigma
					return nil
				},
			},
		},
		X0:    []float64{0, 0},
		XStar: []float64{0.5, 0.5},
		FStar: 0.5,
	}
}

func boundQP() Case {
	return Case{
		Name: "boundqp",
		Doc:  "min (x-2)² s.t. 0 ≤ x ≤ 1",
		Prob: ipm.Problem{
			N:    1,
			XL:   []float64{0},
			XU:   []float64{1},
			Hess: ipm.Structure{Rows: []int{0}, Cols: []int{0}},
			Eval: ipm.Funcs{
				Obj:  func(x []float64) (float64, error) { return (x[0] - 2) * (x[0] - 2), nil },
				Grad: func(x, g []float64) error { g[0] = 2 * (x[0] - 2); return nil },
				Hess: func(x []float64, sigma float64, lam, h []float64) error { h[0] = 2 * sigma; return nil },
			},
		},
		X0:    []float64{0.5},
		XStar: []float64{1},
		FStar: 1,
	}
}

func rosenbrock() Case {
	return Case{
		Name: "rosenbrock",
		Doc:  "min (1-x)² + 100(y-x²)²",
		Prob: ipm.Problem{
			N:    2,
			Hess: ipm.Structure{Rows: []int{0, 1, 1}, Cols: []int{0, 0, 1}},
			Eval: ipm.Funcs{
				Obj: func(x []float64) (float64, error) {
					a, b := 1-x[0], x[1]-x[0]*x[0]
					return a*a + 100*b*b, nil
				},
				Grad: func(x, g []float64) error {
					b := x[1] - x[0]*x[0]
					g[0] = -2*(1-x[0]) - 400*x[0]*b
					g[1] = 200 * b
					return nil
				},
				Hess: func(x []float64, sigma float64, lam, h []float64) error {
					h[0] = sigma * (2 - 400*x[1] + 1200*x[0]*x[0])
					h[1] = sigma * (-400 * x[0])
					h[2] = sigma * 200
					return nil
				},
			},
		},
		X0:    []float64{-1.2, 1},
		XStar: []float64{1, 1},
	}
}

func hs006() Case {
	return Case{
		Name: "hs006",
		Doc:  "min (1-x₁)² s.t. 10(x₂-x₁²) = 0",
		Prob: ipm.Problem{
			N: 2, M: 1,
			GL:   []float64{0},
			GU:   []float64{0},
			Jac:  ipm.Structure{Rows: []int{0, 0}, Cols: []int{0, 1}},
			Hess: ipm.Structure{Rows: []int{0}, Cols: []int{0}},
			Eval: ipm.Funcs{
				Obj: func(x []float64) (float64, error) { return (1 - x[0]) * (1 - x[0]), nil },
				Grad: func(x, g []float64) error {
					g[0], g[1] = -2*(1-x[0]), 0
					return nil
				},
				Cons: func(x, g []float64) error { g[0] = 10 * (x[1] - x[0]*x[0]); return nil },
				Jac: func(x, v []float64) error {
					v[0], v[1] = -20*x[0], 10
					return nil
				},
				Hess: func(x []float64, sigma float64, lam, h []float64) error {
					h[0] = 2*sigma - 20*lam[0]
					return nil
				},
			},
		},
		X0:    []float64{-1.2, 1},
		XStar: []float64{1, 1},
	}
}

// hs071 is problem 71 of Hock and Schittkowski.
func hs071() Case {
	return Case{
		Name: "hs071",
		Doc:  "min x₁x₄(x₁+x₂+x₃)+x₃ s.t. x₁x₂x₃x₄ ≥ 25, ‖x‖² = 40, 1 ≤ x ≤ 5",
		Prob: ipm.Problem{
			N: 4, M: 2,
			XL: []float64{1, 1, 1, 1},
			XU: []float64{5, 5, 5, 5},
			GL: []float64{25, 40},
			GU: []float64{2e19, 40},
			Jac: ipm.Structure{
				Rows: []int{0, 0, 0, 0, 1, 1, 1, 1},
				Cols: []int{0, 1, 2, 3, 0, 1, 2, 3},
			},
			Hess: ipm.Structure{
				Rows: []int{0, 1, 1, 2, 2, 2, 3, 3, 3, 3},
				Cols: []int{0, 0, 1, 0, 1, 2, 0, 1, 2, 3},
			},
			Eval: ipm.Funcs{
				Obj: func(x []float64) (float64, error) {
					return x[0]*x[3]*(x[0]+x[1]+x[2]) + x[2], nil
				},
				Grad: func(x, g []float64) error {
					g[0] = x[3] * (2*x[0] + x[1] + x[2])
					g[1] = x[0] * x[3]
					g[2] = x[0]*x[3] + 1
					g[3] = x[0] * (x[0] + x[1] + x[2])
					return nil
				},
				Cons: func(x, g []float64) error {
					g[0] = x[0] * x[1] * x[2] * x[3]
					g[1] = x[0]*x[0] + x[1]*x[1] + x[2]*x[2] + x[3]*x[3]
					return nil
				},
				Jac: func(x, v []float64) error {
					v[0] = x[1] * x[2] * x[3]
					v[1] = x[0] * x[2] * x[3]
					v[2] = x[0] * x[1] * x[3]
					v[3] = x[0] * x[1] * x[2]
					v[4], v[5], v[6], v[7] = 2*x[0], 2*x[1], 2*x[2], 2*x[3]
					return nil
				},
				Hess: func(x []float64, sigma float64, lam, h []float64) error {
					h[0] = sigma * 2 * x[3]
					h[1] = sigma * x[3]
					h[2] = 0
					h[3] = sigma * x[3]
					h[4] = 0
					h[5] = 0
					h[6] = sigma * (2*x[0] + x[1] + x[2])
					h[7] = sigma * x[0]
					h[8] = sigma * x[0]
					h[9] = 0

					h[1] += lam[0] * x[2] * x[3]
					h[3] += lam[0] * x[1] * x[3]
					h[4] += lam[0] * x[0] * x[3]
					h[6] += lam[0] * x[1] * x[2]
					h[7] += lam[0] * x[0] * x[2]
					h[8] += lam[0] * x[0] * x[1]

					h[0] += lam[1] * 2
					h[2] += lam[1] * 2
					h[5] += lam[1] * 2
					h[9] += lam[1] * 2
					return nil
				},
			},
		},
		X0:    []float64{1, 5, 5, 1},
		XStar: []float64{1, 4.74299963, 3.82114998, 1.37940829},
		FStar: 17.0140173,
	}
}

func convexQP() Case {
	return Case{
		Name: "convexqp",
		Doc:  "min (x₁-1)² + (x₂-2.5)² over a polygon, x ≥ 0",
		Prob: ipm.Problem{
			N: 2, M: 3,
			XL: []float64{0, 0},
			GL: []float64{-2, -6, -2},
			GU: []float64{inf, inf, inf},
			Jac: ipm.Structure{
				Rows: []int{0, 0, 1, 1, 2, 2},
				Cols: []int{0, 1, 0, 1, 0, 1},
			},
			Hess: ipm.Structure{Rows: []int{0, 1}, Cols: []int{0, 1}},
			Eval: ipm.Funcs{
				Obj: func(x []float64) (float64, error) {
					return (x[0]-1)*(x[0]-1) + (x[1]-2.5)*(x[1]-2.5), nil
				},
				Grad: func(x, g []float64) error {
					g[0], g[1] = 2*(x[0]-1), 2*(x[1]-2.5)
					return nil
				},
				Cons: func(x, g []float64) error {
					g[0] = x[0] - 2*x[1]
					g[1] = -x[0] - 2*x[1]
					g[2] = -x[0] + 2*x[1]
					return nil
				},
				Jac: func(x, v []float64) error {
					copy(v, []float64{1, -2, -1, -2, -1, 2})
					return nil
				},
				Hess: func(x []float64, sigma float64, lam, h []float64) error {
					h[0], h[1] = 2*sigma, 2*sigma
					return nil
				},
			},
		},
		X0:    []float64{2, 0},
		XStar: []float64{1.4, 1.7},
		FStar: 0.8,
	}
}

func fixedVar() Case {
	return Case{
		Name: "fixed",
		Doc:  "min (x₁-1)² + x₁x₂ + x₂² with x₂ fixed at 1",
		Prob: ipm.Problem{
			N:    2,
			XL:   []float64{-inf, 1},
			XU:   []float64{inf, 1},
			Hess: ipm.Structure{Rows: []int{0, 1, 1}, Cols: []int{0, 0, 1}},
			Eval: ipm.Funcs{
				Obj: func(x []float64) (float64, error) {
					return (x[0]-1)*(x[0]-1) + x[0]*x[1] + x[1]*x[1], nil
				},
				Grad: func(x, g []float64) error {
					g[0] = 2*(x[0]-1) + x[1]
					g[1] = x[0] + 2*x[1]
					return nil
				},
				Hess: func(x []float64, sigma float64, lam, h []float64) error {
					h[0], h[1], h[2] = 2*sigma, sigma, 2*sigma
					return nil
				},
			},
		},
		X0:    []float64{0, 1},
		XStar: []float64{0.5, 1},
		FStar: 1.75,
	}
}

func infeasible() Case {
	return Case{
		Name: "infeasible",
		Doc:  "min x₁ + x₂ s.t. x₁² + x₂² ≤ 1, x₁ + x₂ ≥ 3",
		Prob: ipm.Problem{
			N: 2, M: 2,
			GL:   []float64{-inf, 3},
			GU:   []float64{1, inf},
			Jac:  ipm.Structure{Rows: []int{0, 0, 1, 1}, Cols: []int{0, 1, 0, 1}},
			Hess: ipm.Structure{Rows: []int{0, 1}, Cols: []int{0, 1}},
			Eval: ipm.Funcs{
				Obj: func(x []float64) (float64, error) { return x[0] + x[1], nil },
				Grad: func(x, g []float64) error {
					g[0], g[1] = 1, 1
					return nil
				},
				Cons: func(x, g []float64) error {
					g[0] = x[0]*x[0] + x[1]*x[1]
					g[1] = x[0] + x[1]
					return nil
				},
				Jac: func(x, v []float64) error {
					v[0], v[1], v[2], v[3] = 2*x[0], 2*x[1], 1, 1
					return nil
				},
				Hess: func(x []float64, sigma float64, lam, h []float64) error {
					h[0], h[1] = 2*lam[0], 2*lam[0]
					return nil
				},
			},
		},
		X0:         []float64{0.5, 0.5},
		Infeasible: true,
	}
}
