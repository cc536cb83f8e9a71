// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ipm solves smooth nonlinear programs
//
//	minimize    𝒇(𝐱)
//	subject to  𝒈ₗ ≤ 𝒈(𝐱) ≤ 𝒈ᵤ
//	            𝐱ₗ ≤ 𝐱 ≤ 𝐱ᵤ
//
// with a primal-dual interior-point method globalized by a filter line search.
//
// The problem is reformulated with slack variables 𝐬 for the inequality
// constraints and solved as a sequence of barrier subproblems
//
//	minimize    φ_μ(𝐰) = 𝒇(𝐱) - μ Σ ln(𝐰 - 𝐥) - μ Σ ln(𝐮 - 𝐰)
//	subject to  𝒉(𝐰) = [𝒄(𝐱); 𝒅(𝐱) - 𝐬] = 0
//
// over 𝐰 = (𝐱, 𝐬) while μ is driven to zero. Newton steps come from the
// symmetric indefinite KKT system, whose inertia is corrected by regularization
// so the step is a descent direction. Steps are accepted by a filter of
// (violation, barrier objective) pairs; when no acceptable step exists, a
// restoration phase minimizes the constraint violation instead.
//
// # Reference
//
//   - A. Wächter, L.T. Biegler: "On the implementation of an interior-point filter line-search
//     algorithm for large-scale nonlinear programming". Mathematical Programming 106(1), 2006.
//   - A. Wächter, L.T. Biegler: "Line search filter methods for nonlinear programming: motivation
//     and global convergence". SIAM Journal on Optimization 16(1), 2005.
//   - J. Nocedal, A. Wächter, R.A. Waltz: "Adaptive barrier update strategies for nonlinear
//     interior methods". SIAM Journal on Optimization 19(4), 2009.
package ipm

import (
	"math"
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/curioloop/interior/numdiff"
	"github.com/curioloop/interior/sparse"
)

// Problem specifies the nonlinear program.
type Problem struct {
	N, M   int       // Number of variables and constraints
	XL, XU []float64 // Variable bounds (nil means unbounded)
	GL, GU []float64 // Constraint bounds, equal entries declare an equality
	Jac    Structure // Jacobian sparsity of 𝒈
	Hess   Structure // Hessian of the Lagrangian sparsity (one triangle)
	Index  IndexStyle
	Eval   Evaluator
	// Infinity for bounds:
	//  - lower bounds are considered not exist when 𝒍ᵢ ≤ - BndInf
	//  - upper bounds are considered not exist when 𝒖ᵢ ≥ BndInf
	// Default 1e19.
	BndInf float64

	Scaling    Scaling
	Stop       Termination
	Barrier    Barrier
	Search     LineSearch
	Linear     Linear
	Init       Initialization
	Derivative Derivative
	Monitor    Intermediate // Optional intermediate callback
}

// New validates the problem and creates an optimizer for it.
// The problem is copied: later changes to p do not affect the optimizer.
func (p *Problem) New(logger *Logger) (optimizer *Optimizer, err error) {

	defer func() {
		if err != nil {
			err = errors.Wrap(ErrInvalidProblem, err.Error())
			optimizer = nil
		}
	}()

	n, m := p.N, p.M
	bndInf := math.Abs(p.BndInf)
	if bndInf == zero || math.IsNaN(bndInf) {
		bndInf = 1e19
	}

	base := int(p.Index)
	switch {
	case n < 0:
		return nil, errors.New("variable count must not be less than 0")
	case m < 0:
		return nil, errors.New("constraint count must not be less than 0")
	case p.Eval == nil:
		return nil, errors.New("evaluator is required")
	case p.XL != nil && len(p.XL) != n:
		return nil, errors.Errorf("lower variable bounds have %d entries, want %d", len(p.XL), n)
	case p.XU != nil && len(p.XU) != n:
		return nil, errors.Errorf("upper variable bounds have %d entries, want %d", len(p.XU), n)
	case len(p.GL) != m:
		return nil, errors.Errorf("lower constraint bounds have %d entries, want %d", len(p.GL), m)
	case len(p.GU) != m:
		return nil, errors.Errorf("upper constraint bounds have %d entries, want %d", len(p.GU), m)
	case p.Index != CStyle && p.Index != FortranStyle:
		return nil, errors.Errorf("unknown index style %d", p.Index)
	}
	if err = p.Jac.Check(m, n, base); err != nil {
		return nil, errors.Wrap(err, "jacobian structure")
	}
	if err = p.Hess.Check(n, n, base); err != nil {
		return nil, errors.Wrap(err, "hessian structure")
	}

	opts, err := resolve(p)
	if err != nil {
		return nil, err
	}

	bound := func(v []float64, i int, def float64) float64 {
		if v == nil {
			return def
		}
		switch b := v[i]; {
		case b <= -bndInf:
			return math.Inf(-1)
		case b >= bndInf:
			return math.Inf(1)
		default:
			return b
		}
	}

	layout := &nlpLayout{
		n: n, m: m,
		xl: make([]float64, n), xu: make([]float64, n),
		gl: make([]float64, m), gu: make([]float64, m),
		jac:      p.Jac.Rebase(base),
		hess:     p.Hess.Rebase(base),
		eval:     p.Eval,
		monitor:  p.Monitor,
		logger:   newLogger(logger),
		settings: opts,
	}

	for i := 0; i < n; i++ {
		layout.xl[i] = bound(p.XL, i, math.Inf(-1))
		layout.xu[i] = bound(p.XU, i, math.Inf(1))
		if math.IsNaN(layout.xl[i]) || math.IsNaN(layout.xu[i]) {
			return nil, errors.Errorf("variable bound at %d is NaN", i)
		}
		if layout.xl[i] > layout.xu[i] {
			return nil, errors.Errorf("variable bound range at %d has no feasible solution", i)
		}
	}
	for j := 0; j < m; j++ {
		layout.gl[j] = bound(p.GL, j, math.Inf(-1))
		layout.gu[j] = bound(p.GU, j, math.Inf(1))
		if math.IsNaN(layout.gl[j]) || math.IsNaN(layout.gu[j]) {
			return nil, errors.Errorf("constraint bound at %d is NaN", j)
		}
		if layout.gl[j] > layout.gu[j] {
			return nil, errors.Errorf("constraint bound range at %d has no feasible solution", j)
		}
	}

	sc := p.Scaling
	sc.MaxGradient = orDefault(sc.MaxGradient, hun)
	sc.MinValue = orDefault(sc.MinValue, 1e-8)
	switch sc.Method {
	case ScaleGradient, ScaleNone:
	case ScaleUser:
		sc.Obj = orDefault(sc.Obj, one)
		switch {
		case sc.X != nil && len(sc.X) != n:
			return nil, errors.Errorf("variable scaling has %d entries, want %d", len(sc.X), n)
		case sc.G != nil && len(sc.G) != m:
			return nil, errors.Errorf("constraint scaling has %d entries, want %d", len(sc.G), m)
		case !(sc.Obj > 0) || math.IsInf(sc.Obj, 0):
			return nil, errors.New("objective scaling must be positive")
		}
		sc.X, sc.G = slices.Clone(sc.X), slices.Clone(sc.G)
		for i, v := range sc.X {
			if !(v > 0) || math.IsInf(v, 0) {
				return nil, errors.Errorf("variable scaling at %d must be positive", i)
			}
		}
		for j, v := range sc.G {
			if !(v > 0) || math.IsInf(v, 0) {
				return nil, errors.Errorf("constraint scaling at %d must be positive", j)
			}
		}
	default:
		return nil, errors.Errorf("unknown scaling method %d", sc.Method)
	}
	layout.scaling = sc

	if err = layout.classify(); err != nil {
		return nil, err
	}

	optimizer = &Optimizer{nlpLayout: layout}
	return
}

// Optimizer implemented using the primal-dual interior-point algorithm.
// An Optimizer is read-only and may be shared by several workspaces.
type Optimizer struct {
	*nlpLayout
}

// Workspace contains the state and context of the optimization process:
// evaluation caches, derivative buffers, KKT storage and iterates.
type Workspace struct {
	n, m  int
	nlp   *adapter
	main  *driver
	resto *driver
}

// Multipliers are the Lagrange multipliers of the original problem.
// The Lagrangian is 𝒇(𝐱) + 𝐆ᵀ𝒈(𝐱) - 𝐙𝐋ᵀ(𝐱-𝐱ₗ) + 𝐙𝐔ᵀ(𝐱-𝐱ᵤ) with 𝐙𝐋, 𝐙𝐔 ≥ 0.
type Multipliers struct {
	G  []float64 // Constraint multipliers (len M)
	ZL []float64 // Lower bound multipliers (len N)
	ZU []float64 // Upper bound multipliers (len N)
}

// Result contains the final result of the optimization process.
type Result struct {
	OK      bool        // Whether the optimization was converged.
	Status  Status      // Terminal status.
	F       float64     // Final objective value.
	X       []float64   // Final solution, inside the original bounds.
	G       []float64   // Final constraint values.
	Mult    Multipliers // Final multipliers.
	Summary             // Optimization summary.
}

// Evals counts the user callback invocations.
type Evals struct {
	Obj, Grad, Cons, Jac, Hess int
}

// Summary contains a summary of the optimization process.
type Summary struct {
	NumIter      int           // Number of iterations performed, including restoration.
	NumRestoIter int           // Number of restoration iterations.
	NumEval      int           // Number of objective evaluations.
	Evals        Evals         // Number of evaluations per callback.
	Elapsed      time.Duration // Wall clock time of the solve.
}

// Init allocate the workspace for the optimizer.
// To avoid race conditions, separate workspaces need to be created for each goroutine.
// But multiple workspaces could share one optimizer.
func (o *Optimizer) Init() *Workspace {
	w := new(Workspace)
	w.n, w.m = o.n, o.m
	w.nlp = newAdapter(o.nlpLayout)
	w.main = newDriver(o.nlpLayout, w.nlp, w.nlp, Regular)
	return w
}

// Fit runs the optimization process using the initial guess x and workspace w.
// x is not modified.
func (o *Optimizer) Fit(x []float64, w *Workspace) *Result {
	return o.WarmFit(x, nil, w)
}

// WarmFit runs the optimization process from the primal point x and the
// multipliers mult. Nil multipliers (or nil fields) fall back to the cold start
// initialization. Neither x nor mult are modified.
func (o *Optimizer) WarmFit(x []float64, mult *Multipliers, w *Workspace) *Result {

	if len(x) != o.n {
		panic("initial x dimension not match problem")
	}
	if w.n != o.n || w.m != o.m {
		panic("workspace dimension not match problem")
	}
	if mult != nil {
		if mult.G != nil && len(mult.G) != o.m ||
			mult.ZL != nil && len(mult.ZL) != o.n ||
			mult.ZU != nil && len(mult.ZU) != o.n {
			panic("initial multiplier dimension not match problem")
		}
	}

	s := solve{optimizer: o, workspace: w, start: time.Now()}
	return s.run(slices.Clone(x), mult)
}

// CheckDerivatives compares the user gradient and Jacobian at x against finite
// differences and returns the entries whose relative error exceeds Derivative.TestTol.
// Fixed variables are skipped when they are treated as parameters.
func (o *Optimizer) CheckDerivatives(x []float64) ([]numdiff.Mismatch, error) {
	if len(x) != o.n {
		return nil, errors.New("x dimension not match problem")
	}
	a := newAdapter(o.nlpLayout)
	a.resetCaches()
	return a.checkDerivatives(x)
}

// nlpLayout holds the immutable problem definition shared by all workspaces.
type nlpLayout struct {
	n, m   int
	xl, xu []float64 // unscaled bounds, infinite when absent
	gl, gu []float64
	jac    sparse.Pattern // zero based
	hess   sparse.Pattern
	eval   Evaluator

	scaling Scaling
	monitor Intermediate
	logger  Logger
	settings

	free  []int // free variables
	fixed []int // variables removed as parameters
	xpos  []int // variable → position in free, -1 when fixed
	eq    []int // equality constraints
	ineq  []int // inequality constraints
	crow  []int // constraint → row of 𝒉

	nx, nw, mc, md, mh int

	// relaxed unscaled bounds of free variables and inequality constraints
	lx, ux []float64
	ld, ud []float64

	jacMap  []int // user Jacobian entry → internal entry, -1 when dropped
	hessMap []int // user Hessian entry → internal entry, -1 when dropped
	jacTpl  *sparse.Matrix
	hessTpl *sparse.Matrix
}

func (s *nlpLayout) relax(b float64, sign float64) float64 {
	if math.IsInf(b, 0) || s.init.BoundRelaxFactor == zero {
		return b
	}
	d := math.Min(s.stop.ConstrViolTol, s.init.BoundRelaxFactor*math.Max(one, math.Abs(b)))
	return b + sign*d
}

// classify splits variables into free and fixed, constraints into equalities
// and inequalities, and builds the internal derivative structures.
func (s *nlpLayout) classify() error {
	s.xpos = make([]int, s.n)
	for i := 0; i < s.n; i++ {
		if s.xl[i] == s.xu[i] && s.init.FixedVariables == MakeParameter {
			s.xpos[i] = -1
			s.fixed = append(s.fixed, i)
			continue
		}
		s.xpos[i] = len(s.free)
		s.free = append(s.free, i)
	}
	for _, i := range s.free {
		l, u := s.relax(s.xl[i], -1), s.relax(s.xu[i], 1)
		if l == u {
			// fixed variable kept in the problem: widen so an interior exists
			d := 1e-8 * math.Max(one, math.Abs(l))
			l, u = l-d, u+d
		}
		s.lx = append(s.lx, l)
		s.ux = append(s.ux, u)
	}

	s.crow = make([]int, s.m)
	for j := 0; j < s.m; j++ {
		if s.gl[j] == s.gu[j] {
			s.eq = append(s.eq, j)
		} else {
			s.ineq = append(s.ineq, j)
		}
	}
	for r, j := range s.eq {
		s.crow[j] = r
	}
	for r, j := range s.ineq {
		s.crow[j] = len(s.eq) + r
		s.ld = append(s.ld, s.relax(s.gl[j], -1))
		s.ud = append(s.ud, s.relax(s.gu[j], 1))
	}

	s.nx, s.mc, s.md = len(s.free), len(s.eq), len(s.ineq)
	s.nw, s.mh = s.nx+s.md, s.mc+s.md

	if s.nx > 0 && s.mc > s.nx {
		return errors.Errorf("too few degrees of freedom: %d equality constraints but %d free variables", s.mc, s.nx)
	}

	s.jacTpl = sparse.New(s.mh, s.nw, sparse.Pattern{})
	s.jacMap = make([]int, s.jac.Len())
	for k, r := range s.jac.Rows {
		c := s.xpos[s.jac.Cols[k]]
		if c < 0 {
			s.jacMap[k] = -1
			continue
		}
		s.jacMap[k] = s.jacTpl.NNZ()
		s.jacTpl.Append(s.crow[r], c, 0)
	}
	for r := 0; r < s.md; r++ {
		s.jacTpl.Append(s.mc+r, s.nx+r, -one)
	}

	s.hessTpl = sparse.New(s.nw, s.nw, sparse.Pattern{})
	s.hessMap = make([]int, s.hess.Len())
	for k, r := range s.hess.Rows {
		i, j := s.xpos[r], s.xpos[s.hess.Cols[k]]
		if i < 0 || j < 0 {
			s.hessMap[k] = -1
			continue
		}
		if i < j {
			i, j = j, i
		}
		s.hessMap[k] = s.hessTpl.NNZ()
		s.hessTpl.Append(i, j, 0)
	}
	return nil
}
