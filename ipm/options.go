// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/curioloop/interior/linsol"
	"github.com/curioloop/interior/numdiff"
)

// Zero (or NaN) option values select the documented default.

// Termination specifies the stopping criteria for the optimization algorithm.
type Termination struct {
	// The iteration stops when the scaled KKT error satisfies
	//   𝚖𝚊𝚡( ‖𝛁ℒ‖∞/s_d, ‖𝒉‖∞, ‖𝐙𝐒𝐞‖∞/s_c ) ≤ 𝚝𝚘𝚕
	// together with the unscaled tolerances below. Default 1e-8.
	Tolerance float64
	// The iteration stops when the number of iteration exceeds limit. Default 3000.
	MaxIterations int
	// The iteration stops when the wall clock time exceeds limit. Zero means unlimited.
	MaxWallTime time.Duration
	// Unscaled dual infeasibility ‖𝛁ℒ‖∞ required for convergence. Default 1.
	DualInfTol float64
	// Unscaled constraint violation ‖𝒉‖∞ required for convergence. Default 1e-4.
	ConstrViolTol float64
	// Unscaled complementarity ‖𝐙𝐒𝐞‖∞ required for convergence. Default 1e-4.
	ComplInfTol float64
	// Scaled KKT error of an acceptable point. Default 1e-6.
	AcceptableTol float64
	// Consecutive acceptable iterations before stopping. Default 15, negative disables.
	AcceptableIter int
	// Unscaled dual infeasibility of an acceptable point. Default 1e10.
	AcceptableDualInfTol float64
	// Unscaled constraint violation of an acceptable point. Default 1e-2.
	AcceptableConstrViolTol float64
	// Unscaled complementarity of an acceptable point. Default 1e-2.
	AcceptableComplInfTol float64
	// Relative objective change |𝒇ₖ-𝒇ₖ₋₁|/𝚖𝚊𝚡(1,|𝒇ₖ|) of an acceptable point. Default 1e20.
	AcceptableObjChangeTol float64
	// Threshold s_max of the multiplier based scaling of the KKT error. Default 100.
	ScaleMax float64
}

// MuStrategy selects how the barrier parameter is driven to zero.
type MuStrategy int

const (
	// Monotone decreases μ once the barrier subproblem is solved to κ_ε·μ (Fiacco-McCormick).
	Monotone MuStrategy = iota
	// Adaptive chooses μ every iteration with the Mehrotra probing heuristic,
	// falling back to Monotone while the KKT error does not decrease.
	Adaptive
)

func (s MuStrategy) String() string {
	if s == Adaptive {
		return "adaptive"
	}
	return "monotone"
}

// Barrier specifies the barrier parameter update.
type Barrier struct {
	Strategy MuStrategy
	// Initial barrier parameter. Default 0.1.
	MuInit float64
	// Upper limit of the adaptive barrier parameter. Default 1e5.
	MuMax float64
	// Lower limit of the barrier parameter. Default 1e-11.
	MuMin float64
	// Linear decrease factor κ_μ of the monotone update. Default 0.2.
	LinearDecrease float64
	// Superlinear decrease power θ_μ of the monotone update. Default 1.5.
	SuperlinearPower float64
	// Barrier subproblem tolerance factor κ_ε. Default 10.
	TolFactor float64
	// Lower limit τ_min of the fraction-to-boundary parameter τ = 𝚖𝚊𝚡(τ_min, 1-μ). Default 0.99.
	TauMin float64
	// Linear damping κ_d of variables bounded on one side only. Default 1e-5, negative disables.
	KappaD float64
	// Bound multiplier safeguard κ_Σ keeping zᵢsᵢ within [μ/κ_Σ, κ_Σμ]. Default 1e10.
	KappaSigma float64
	// Iterations of KKT error history used by the adaptive globalization. Default 4.
	KKTErrorIters int
	// Required KKT error reduction factor of the adaptive globalization. Default 0.9999.
	KKTErrorReduction float64
	// Monotone μ after leaving the adaptive mode, as a factor of the average complementarity. Default 0.8.
	MonotoneInitFactor float64
}

// LineSearch specifies the filter line search and the restoration phase.
type LineSearch struct {
	// Filter margin γ_θ on the constraint violation. Default 1e-5.
	GammaTheta float64
	// Filter margin γ_φ on the barrier objective. Default 1e-8.
	GammaPhi float64
	// Switching condition α(-𝛁φᵀ𝐝)^s_φ > δθ^s_θ constants. Defaults δ=1, s_θ=1.1, s_φ=2.3.
	Delta, STheta, SPhi float64
	// Armijo constant η_φ. Default 1e-8.
	EtaPhi float64
	// Safety factor of the minimal step size. Default 0.05.
	AlphaMinFrac float64
	// Backtracking factor. Default 0.5.
	AlphaRed float64
	// θ_max = ThetaMaxFact·𝚖𝚊𝚡(1,θ₀) and θ_min = ThetaMinFact·𝚖𝚊𝚡(1,θ₀). Defaults 1e4 and 1e-4.
	ThetaMaxFact, ThetaMinFact float64
	// Maximal number of second order corrections. Default 4, negative disables.
	MaxSOC int
	// Required violation decrease κ_soc between corrections. Default 0.99.
	KappaSOC float64
	// Trial points increasing the barrier objective by more than 10^ObjMaxInc orders are rejected. Default 5.
	ObjMaxInc float64
	// Penalty ρ of the restoration phase. Default 1000.
	RestoPenalty float64
	// Restoration succeeds once θ ≤ κ_resto·θ_start. Default 0.9.
	RestoSuccess float64
	// Weight of the proximity term ζ = RestoProximity·√μ. Default 1.
	RestoProximity float64
	// Bound multipliers are reset to one after restoration if any exceeds this. Default 1000.
	BoundMultReset float64
}

// Linear specifies the KKT system solver and its inertia correction.
type Linear struct {
	Method linsol.Method
	// Absolute pivot magnitude treated as zero by the dense factorizers. Zero lets the factorizer choose.
	ZeroTol float64
	// Relative pivot magnitude at which the sparse factorization hands over
	// to the dense one. Zero lets the factorizer choose.
	PivotTol float64
	// First trial δ_w of the Hessian perturbation. Default 1e-4.
	FirstPerturb float64
	// Smallest δ_w reused from a previous iteration. Default 1e-20.
	MinPerturb float64
	// Largest δ_w before giving up. Default 1e40.
	MaxPerturb float64
	// Growth of δ_w when no previous perturbation exists. Default 100.
	FirstIncFactor float64
	// Growth of δ_w otherwise. Default 8.
	IncFactor float64
	// Reduction of the previous δ_w used as first trial. Default 1/3.
	DecFactor float64
	// Constraint regularization δ_c = JacRegValue·μ^JacRegExponent for singular Jacobians.
	// Defaults 1e-8 and 0.25.
	JacRegValue, JacRegExponent float64
	// Maximal number of factorizations per iteration. Default 50.
	MaxPerturbTries int
	// Iterative refinement steps. Defaults 1 and 10, negative minimum disables.
	MinRefineSteps, MaxRefineSteps int
	// Refinement stops once ‖𝐫‖∞ ≤ ResidualRatio·𝚖𝚊𝚡(1,‖𝐛‖∞). Default 1e-10.
	ResidualRatio float64
}

// FixedTreatment selects how variables with equal bounds are handled.
type FixedTreatment int

const (
	// MakeParameter removes fixed variables from the problem.
	MakeParameter FixedTreatment = iota
	// RelaxBounds keeps fixed variables and relaxes their bounds slightly.
	RelaxBounds
)

// Initialization specifies the starting point treatment.
type Initialization struct {
	// Absolute and relative distance a starting variable is moved inside its bounds. Defaults 1e-2.
	BoundPush, BoundFrac float64
	// Same for slack variables. Defaults 1e-2.
	SlackBoundPush, SlackBoundFrac float64
	// Initial value of the bound multipliers. Default 1.
	BoundMultInit float64
	// Least-squares constraint multipliers larger than this are discarded. Default 1e3, negative disables.
	ConstrMultInitMax float64
	// Bounds are relaxed by 𝚖𝚒𝚗(ConstrViolTol, f·𝚖𝚊𝚡(1,|b|)). Default 1e-8, negative disables.
	BoundRelaxFactor float64
	FixedVariables   FixedTreatment
	// Bound push, bound fraction and multiplier push of a warm start. Defaults 1e-9.
	WarmBoundPush, WarmBoundFrac, WarmMultPush float64
	// Initial barrier parameter of a warm start. Default Barrier.MuInit.
	WarmMuInit float64
}

// Approximation selects where a derivative comes from.
type Approximation int

const (
	// Exact derivatives from the Evaluator.
	Exact Approximation = iota
	// FiniteDifference approximates gradient or Jacobian from function values.
	FiniteDifference
	// QuasiNewton approximates the Hessian of the Lagrangian with damped BFGS updates.
	QuasiNewton
)

func (a Approximation) String() string {
	switch a {
	case FiniteDifference:
		return "finite-difference"
	case QuasiNewton:
		return "quasi-newton"
	}
	return "exact"
}

// Derivative specifies the derivative sources and the derivative test.
type Derivative struct {
	Gradient Approximation // Exact or FiniteDifference
	Jacobian Approximation // Exact or FiniteDifference
	Hessian  Approximation // Exact or QuasiNewton
	// Finite difference scheme and relative step.
	Method  numdiff.Method
	RelStep float64
	// Compare user derivatives against finite differences at the starting point.
	Test bool
	// Relative error reported by the derivative test. Default 1e-4.
	TestTol float64
}

// ScalingMethod selects the problem scaling.
type ScalingMethod int

const (
	// ScaleGradient scales objective and constraints so their gradients at the
	// starting point do not exceed MaxGradient.
	ScaleGradient ScalingMethod = iota
	// ScaleUser uses the factors given in Scaling.
	ScaleUser
	// ScaleNone disables scaling.
	ScaleNone
)

// Scaling specifies the multiplicative factors applied to the problem.
// The solver works on 𝒇̃ = s_f·𝒇, 𝐱̃ = 𝐝ₓ∘𝐱 and 𝒈̃ = 𝐝_g∘𝒈.
type Scaling struct {
	Method ScalingMethod
	// User factors for ScaleUser. Zero objective factor and nil vectors mean one.
	Obj  float64
	X, G []float64
	// Gradient norm targeted by ScaleGradient. Default 100.
	MaxGradient float64
	// Smallest gradient based factor. Default 1e-8.
	MinValue float64
}

func orDefault(v, d float64) float64 {
	if v == 0 || math.IsNaN(v) {
		return d
	}
	return v
}

func orDefaultInt(v, d int) int {
	if v == 0 {
		return d
	}
	return v
}

// resolved options of a problem.
type settings struct {
	stop    Termination
	barrier Barrier
	search  LineSearch
	linear  Linear
	init    Initialization
	deriv   Derivative
}

func resolve(p *Problem) (o settings, err error) {
	stop, bar, ls, lin, ini, der := p.Stop, p.Barrier, p.Search, p.Linear, p.Init, p.Derivative

	stop.Tolerance = orDefault(stop.Tolerance, 1e-8)
	stop.MaxIterations = orDefaultInt(stop.MaxIterations, 3000)
	stop.DualInfTol = orDefault(stop.DualInfTol, 1)
	stop.ConstrViolTol = orDefault(stop.ConstrViolTol, 1e-4)
	stop.ComplInfTol = orDefault(stop.ComplInfTol, 1e-4)
	stop.AcceptableTol = orDefault(stop.AcceptableTol, 1e-6)
	stop.AcceptableIter = orDefaultInt(stop.AcceptableIter, 15)
	stop.AcceptableDualInfTol = orDefault(stop.AcceptableDualInfTol, 1e10)
	stop.AcceptableConstrViolTol = orDefault(stop.AcceptableConstrViolTol, 1e-2)
	stop.AcceptableComplInfTol = orDefault(stop.AcceptableComplInfTol, 1e-2)
	stop.AcceptableObjChangeTol = orDefault(stop.AcceptableObjChangeTol, 1e20)
	stop.ScaleMax = orDefault(stop.ScaleMax, hun)

	bar.MuInit = orDefault(bar.MuInit, 0.1)
	bar.MuMax = orDefault(bar.MuMax, 1e5)
	bar.MuMin = orDefault(bar.MuMin, 1e-11)
	bar.LinearDecrease = orDefault(bar.LinearDecrease, 0.2)
	bar.SuperlinearPower = orDefault(bar.SuperlinearPower, 1.5)
	bar.TolFactor = orDefault(bar.TolFactor, ten)
	bar.TauMin = orDefault(bar.TauMin, 0.99)
	bar.KappaD = orDefault(bar.KappaD, 1e-5)
	bar.KappaD = max(bar.KappaD, zero)
	bar.KappaSigma = orDefault(bar.KappaSigma, 1e10)
	bar.KKTErrorIters = orDefaultInt(bar.KKTErrorIters, 4)
	bar.KKTErrorReduction = orDefault(bar.KKTErrorReduction, 0.9999)
	bar.MonotoneInitFactor = orDefault(bar.MonotoneInitFactor, 0.8)

	ls.GammaTheta = orDefault(ls.GammaTheta, 1e-5)
	ls.GammaPhi = orDefault(ls.GammaPhi, 1e-8)
	ls.Delta = orDefault(ls.Delta, one)
	ls.STheta = orDefault(ls.STheta, 1.1)
	ls.SPhi = orDefault(ls.SPhi, 2.3)
	ls.EtaPhi = orDefault(ls.EtaPhi, 1e-8)
	ls.AlphaMinFrac = orDefault(ls.AlphaMinFrac, 0.05)
	ls.AlphaRed = orDefault(ls.AlphaRed, half)
	ls.ThetaMaxFact = orDefault(ls.ThetaMaxFact, 1e4)
	ls.ThetaMinFact = orDefault(ls.ThetaMinFact, 1e-4)
	ls.MaxSOC = orDefaultInt(ls.MaxSOC, 4)
	ls.MaxSOC = max(ls.MaxSOC, 0)
	ls.KappaSOC = orDefault(ls.KappaSOC, 0.99)
	ls.ObjMaxInc = orDefault(ls.ObjMaxInc, 5)
	ls.RestoPenalty = orDefault(ls.RestoPenalty, 1000)
	ls.RestoSuccess = orDefault(ls.RestoSuccess, 0.9)
	ls.RestoProximity = orDefault(ls.RestoProximity, one)
	ls.BoundMultReset = orDefault(ls.BoundMultReset, 1000)

	lin.FirstPerturb = orDefault(lin.FirstPerturb, 1e-4)
	lin.MinPerturb = orDefault(lin.MinPerturb, 1e-20)
	lin.MaxPerturb = orDefault(lin.MaxPerturb, 1e40)
	lin.FirstIncFactor = orDefault(lin.FirstIncFactor, hun)
	lin.IncFactor = orDefault(lin.IncFactor, 8)
	lin.DecFactor = orDefault(lin.DecFactor, one/3)
	lin.JacRegValue = orDefault(lin.JacRegValue, 1e-8)
	lin.JacRegExponent = orDefault(lin.JacRegExponent, 0.25)
	lin.MaxPerturbTries = orDefaultInt(lin.MaxPerturbTries, 50)
	lin.MinRefineSteps = orDefaultInt(lin.MinRefineSteps, 1)
	lin.MinRefineSteps = max(lin.MinRefineSteps, 0)
	lin.MaxRefineSteps = orDefaultInt(lin.MaxRefineSteps, 10)
	lin.ResidualRatio = orDefault(lin.ResidualRatio, 1e-10)

	ini.BoundPush = orDefault(ini.BoundPush, 1e-2)
	ini.BoundFrac = orDefault(ini.BoundFrac, 1e-2)
	ini.SlackBoundPush = orDefault(ini.SlackBoundPush, 1e-2)
	ini.SlackBoundFrac = orDefault(ini.SlackBoundFrac, 1e-2)
	ini.BoundMultInit = orDefault(ini.BoundMultInit, one)
	ini.ConstrMultInitMax = orDefault(ini.ConstrMultInitMax, 1e3)
	ini.BoundRelaxFactor = orDefault(ini.BoundRelaxFactor, 1e-8)
	ini.BoundRelaxFactor = max(ini.BoundRelaxFactor, zero)
	ini.WarmBoundPush = orDefault(ini.WarmBoundPush, 1e-9)
	ini.WarmBoundFrac = orDefault(ini.WarmBoundFrac, 1e-9)
	ini.WarmMultPush = orDefault(ini.WarmMultPush, 1e-9)
	ini.WarmMuInit = orDefault(ini.WarmMuInit, bar.MuInit)

	der.TestTol = orDefault(der.TestTol, 1e-4)

	switch {
	case stop.Tolerance <= zero:
		err = errors.New("tolerance must be greater than 0")
	case stop.MaxIterations < 0:
		err = errors.New("max iterations must not be less than 0")
	case stop.MaxWallTime < 0:
		err = errors.New("max wall time must not be less than 0")
	case stop.DualInfTol <= zero || stop.ConstrViolTol <= zero || stop.ComplInfTol <= zero:
		err = errors.New("unscaled tolerances must be greater than 0")
	case stop.AcceptableTol < stop.Tolerance:
		err = errors.New("acceptable tolerance must not be less than tolerance")
	case stop.ScaleMax < one:
		err = errors.New("scale max must not be less than 1")
	case bar.Strategy != Monotone && bar.Strategy != Adaptive:
		err = errors.Errorf("unknown mu strategy %d", bar.Strategy)
	case bar.MuInit <= zero || bar.MuMin <= zero || bar.MuMax < bar.MuInit:
		err = errors.New("barrier parameter range is invalid")
	case bar.LinearDecrease <= zero || bar.LinearDecrease >= one:
		err = errors.New("linear decrease factor must be in (0,1)")
	case bar.SuperlinearPower <= one || bar.SuperlinearPower >= two:
		err = errors.New("superlinear decrease power must be in (1,2)")
	case bar.TauMin <= zero || bar.TauMin >= one:
		err = errors.New("fraction to boundary parameter must be in (0,1)")
	case bar.KappaSigma < one:
		err = errors.New("bound multiplier safeguard must not be less than 1")
	case ls.AlphaRed <= zero || ls.AlphaRed >= one:
		err = errors.New("backtracking factor must be in (0,1)")
	case ls.GammaTheta <= zero || ls.GammaTheta >= one || ls.GammaPhi <= zero || ls.GammaPhi >= one:
		err = errors.New("filter margins must be in (0,1)")
	case ls.STheta <= one || ls.SPhi <= one:
		err = errors.New("switching condition exponents must be greater than 1")
	case ls.EtaPhi <= zero || ls.EtaPhi >= half:
		err = errors.New("armijo constant must be in (0,0.5)")
	case ls.RestoPenalty <= zero:
		err = errors.New("restoration penalty must be greater than 0")
	case ls.RestoSuccess <= zero || ls.RestoSuccess >= one:
		err = errors.New("restoration success factor must be in (0,1)")
	case lin.Method != linsol.SparseLDL && lin.Method != linsol.BunchKaufman && lin.Method != linsol.Spectral:
		err = errors.Errorf("unknown linear solver %d", lin.Method)
	case lin.PivotTol < zero || lin.PivotTol >= one:
		err = errors.New("pivot tolerance must be in [0,1)")
	case lin.FirstIncFactor <= one || lin.IncFactor <= one || lin.DecFactor <= zero || lin.DecFactor >= one:
		err = errors.New("perturbation factors are invalid")
	case lin.MaxPerturbTries <= 0:
		err = errors.New("perturbation tries must be greater than 0")
	case lin.MaxRefineSteps < lin.MinRefineSteps:
		err = errors.New("max refinement steps must not be less than min refinement steps")
	case ini.BoundPush <= zero || ini.BoundFrac <= zero || ini.BoundFrac > half:
		err = errors.New("bound push must be greater than 0 and bound fraction in (0,0.5]")
	case ini.SlackBoundPush <= zero || ini.SlackBoundFrac <= zero || ini.SlackBoundFrac > half:
		err = errors.New("slack bound push must be greater than 0 and slack bound fraction in (0,0.5]")
	case ini.BoundMultInit <= zero:
		err = errors.New("initial bound multiplier must be greater than 0")
	case ini.FixedVariables != MakeParameter && ini.FixedVariables != RelaxBounds:
		err = errors.Errorf("unknown fixed variable treatment %d", ini.FixedVariables)
	case der.Gradient != Exact && der.Gradient != FiniteDifference:
		err = errors.Errorf("gradient cannot use %v derivatives", der.Gradient)
	case der.Jacobian != Exact && der.Jacobian != FiniteDifference:
		err = errors.Errorf("jacobian cannot use %v derivatives", der.Jacobian)
	case der.Hessian != Exact && der.Hessian != QuasiNewton:
		err = errors.Errorf("hessian cannot use %v derivatives", der.Hessian)
	case der.Method != numdiff.Forward && der.Method != numdiff.Central:
		err = errors.Errorf("unknown finite difference method %d", der.Method)
	}

	o = settings{stop: stop, barrier: bar, search: ls, linear: lin, init: ini, deriv: der}
	return
}
