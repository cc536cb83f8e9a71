// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm_test

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curioloop/interior/ipm"
	"github.com/curioloop/interior/linsol"
	"github.com/curioloop/interior/testprob"
)

func fit(t *testing.T, c testprob.Case, tune func(p *ipm.Problem)) *ipm.Result {
	t.Helper()
	if tune != nil {
		tune(&c.Prob)
	}
	opt, err := c.Prob.New(nil)
	require.NoError(t, err)
	return opt.Fit(c.X0, opt.Init())
}

func get(t *testing.T, name string) testprob.Case {
	t.Helper()
	c, ok := testprob.Get(name)
	require.True(t, ok, name)
	return c
}

func assertSolution(t *testing.T, c testprob.Case, res *ipm.Result, tol float64) {
	t.Helper()
	require.True(t, res.OK, "%s ended with %v", c.Name, res.Status)
	assert.InDeltaSlice(t, c.XStar, res.X, tol, c.Name)
	assert.InDelta(t, c.FStar, res.F, tol*math.Max(1, math.Abs(c.FStar)), c.Name)
}

func TestCatalogue(t *testing.T) {
	for _, c := range testprob.All() {
		t.Run(c.Name, func(t *testing.T) {
			res := fit(t, c, nil)
			if c.Infeasible {
				assert.Contains(t, []ipm.Status{ipm.InfeasibleDetected, ipm.RestorationFailed}, res.Status)
				assert.False(t, res.OK)
				if res.Status == ipm.InfeasibleDetected {
					assert.Positive(t, res.NumRestoIter)
				}
				return
			}
			assert.Equal(t, ipm.Converged, res.Status)
			assertSolution(t, c, res, 1e-5)
			assert.LessOrEqual(t, res.NumRestoIter, res.NumIter)
			for i := range res.X {
				assert.GreaterOrEqual(t, res.Mult.ZL[i], 0.0)
				assert.GreaterOrEqual(t, res.Mult.ZU[i], 0.0)
			}
		})
	}
}

func TestHS071Multipliers(t *testing.T) {
	c := get(t, "hs071")
	res := fit(t, c, nil)
	require.Equal(t, ipm.Converged, res.Status)
	assert.InDeltaSlice(t, []float64{-0.55229366, 0.16146857}, res.Mult.G, 1e-4)
	assert.InDelta(t, 1.08787121, res.Mult.ZL[0], 1e-4)
	for i := 1; i < 4; i++ {
		assert.InDelta(t, 0, res.Mult.ZL[i], 1e-6)
		assert.InDelta(t, 0, res.Mult.ZU[i], 1e-6)
	}
	assert.InDelta(t, 25, res.G[0], 1e-6)
	assert.InDelta(t, 40, res.G[1], 1e-6)
	assert.Equal(t, res.NumEval, res.Evals.Obj)
}

func TestActiveBoundMultiplier(t *testing.T) {
	res := fit(t, get(t, "boundqp"), nil)
	require.Equal(t, ipm.Converged, res.Status)
	assert.InDelta(t, 1, res.X[0], 1e-7)
	assert.InDelta(t, 2, res.Mult.ZU[0], 1e-6)
	assert.InDelta(t, 0, res.Mult.ZL[0], 1e-6)
}

func TestConstraintMultiplierSign(t *testing.T) {
	res := fit(t, get(t, "halfplane"), nil)
	require.Equal(t, ipm.Converged, res.Status)
	// active lower bound of 𝒈 gives a non-positive multiplier
	assert.InDelta(t, -1, res.Mult.G[0], 1e-6)
}

func TestFixedVariables(t *testing.T) {
	c := get(t, "fixed")
	for _, fx := range []ipm.FixedTreatment{ipm.MakeParameter, ipm.RelaxBounds} {
		res := fit(t, c, func(p *ipm.Problem) { p.Init.FixedVariables = fx })
		assertSolution(t, c, res, 1e-6)
		assert.Equal(t, 1.0, res.X[1], "output honors the original bounds")
		if fx == ipm.MakeParameter {
			// 𝜕𝒇/𝜕x₂ = x₁ + 2x₂ = 2.5 is carried by the lower bound
			assert.InDelta(t, 2.5, res.Mult.ZL[1], 1e-6)
		}
	}
}

func TestAllVariablesFixed(t *testing.T) {
	p := ipm.Problem{
		N: 1, M: 1,
		XL: []float64{2}, XU: []float64{2},
		GL: []float64{0}, GU: []float64{3},
		Jac: ipm.Structure{Rows: []int{0}, Cols: []int{0}},
		Eval: ipm.Funcs{
			Obj:  func(x []float64) (float64, error) { return (x[0] - 1) * (x[0] - 1), nil },
			Grad: func(x, g []float64) error { g[0] = 2 * (x[0] - 1); return nil },
			Cons: func(x, g []float64) error { g[0] = x[0]; return nil },
			Jac:  func(x, v []float64) error { v[0] = 1; return nil },
		},
	}
	opt, err := p.New(nil)
	require.NoError(t, err)
	res := opt.Fit([]float64{0}, opt.Init())
	assert.Equal(t, ipm.Converged, res.Status)
	assert.Equal(t, []float64{2}, res.X)
	assert.Equal(t, 1.0, res.F)
	assert.Equal(t, []float64{2}, res.G)
	assert.Equal(t, 2.0, res.Mult.ZL[0])
	assert.Zero(t, res.NumIter)

	p.GL[0] = 2.5
	opt, err = p.New(nil)
	require.NoError(t, err)
	res = opt.Fit([]float64{0}, opt.Init())
	assert.Equal(t, ipm.InfeasibleDetected, res.Status)
}

func TestUserRequestedStop(t *testing.T) {
	var iters []int
	res := fit(t, get(t, "rosenbrock"), func(p *ipm.Problem) {
		p.Monitor = func(info *ipm.IterInfo) bool {
			iters = append(iters, info.Iter)
			return info.Iter < 2
		}
	})
	assert.Equal(t, ipm.UserRequestedStop, res.Status)
	assert.True(t, res.Status.Early())
	assert.Equal(t, 2, res.NumIter)
	assert.Equal(t, []int{0, 1, 2}, iters)
	assert.Len(t, res.X, 2)
}

func TestIterationAndTimeLimits(t *testing.T) {
	c := get(t, "rosenbrock")
	res := fit(t, c, func(p *ipm.Problem) { p.Stop.MaxIterations = 3 })
	assert.Equal(t, ipm.MaxIterExceeded, res.Status)
	assert.Equal(t, 3, res.NumIter)
	assert.False(t, res.OK)

	res = fit(t, c, func(p *ipm.Problem) { p.Stop.MaxWallTime = time.Nanosecond })
	assert.Equal(t, ipm.MaxTimeExceeded, res.Status)
	assert.True(t, res.Status.Early())
}

func TestWarmStart(t *testing.T) {
	c := get(t, "hs071")
	c.Prob.Init.WarmMuInit = 1e-9
	opt, err := c.Prob.New(nil)
	require.NoError(t, err)
	w := opt.Init()

	cold := opt.Fit(c.X0, w)
	require.Equal(t, ipm.Converged, cold.Status)

	x0 := append([]float64(nil), cold.X...)
	warm := opt.WarmFit(cold.X, &cold.Mult, w)
	require.Equal(t, ipm.Converged, warm.Status)
	assert.Equal(t, x0, cold.X, "inputs are not modified")
	assert.InDeltaSlice(t, c.XStar, warm.X, 1e-5)
	assert.LessOrEqual(t, warm.NumIter, 1, "at most one extra iteration")

	// partial multipliers fall back to the cold initialization
	part := opt.WarmFit(cold.X, &ipm.Multipliers{G: cold.Mult.G}, w)
	assert.True(t, part.OK)
}

func TestDeterministic(t *testing.T) {
	c := get(t, "hs071")
	opt, err := c.Prob.New(nil)
	require.NoError(t, err)

	w := opt.Init()
	a := opt.Fit(c.X0, w)
	b := opt.Fit(c.X0, w)
	d := opt.Fit(c.X0, opt.Init())
	for _, r := range []*ipm.Result{b, d} {
		assert.Equal(t, a.Status, r.Status)
		assert.Equal(t, a.X, r.X)
		assert.Equal(t, a.NumIter, r.NumIter)
		assert.Equal(t, a.Evals, r.Evals)
	}
	assert.NotSame(t, &a.X[0], &b.X[0], "results own their slices")
}

func TestSharedOptimizer(t *testing.T) {
	c := get(t, "convexqp")
	opt, err := c.Prob.New(nil)
	require.NoError(t, err)
	want := opt.Fit(c.X0, opt.Init())

	var wg sync.WaitGroup
	results := make([]*ipm.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = opt.Fit(c.X0, opt.Init())
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, want.X, r.X)
	}
}

func TestConvexQPFromManyStarts(t *testing.T) {
	c := get(t, "convexqp")
	for _, x0 := range [][]float64{{2, 0}, {0, 0}, {5, 5}, {-1, 3}, {10, -10}, {1.4, 1.7}} {
		c.X0 = x0
		res := fit(t, c, nil)
		assert.Equal(t, ipm.Converged, res.Status, "start %v", x0)
		assert.InDeltaSlice(t, c.XStar, res.X, 1e-6, "start %v", x0)
	}
}

func TestAdaptiveMu(t *testing.T) {
	for _, c := range testprob.All() {
		if c.Infeasible {
			continue
		}
		t.Run(c.Name, func(t *testing.T) {
			res := fit(t, c, func(p *ipm.Problem) { p.Barrier.Strategy = ipm.Adaptive })
			assertSolution(t, c, res, 1e-5)
		})
	}
}

func TestSpectralSolver(t *testing.T) {
	for _, name := range []string{"hs006", "hs071"} {
		c := get(t, name)
		res := fit(t, c, func(p *ipm.Problem) { p.Linear.Method = linsol.Spectral })
		assertSolution(t, c, res, 1e-5)
	}
}

func TestFiniteDifferenceDerivatives(t *testing.T) {
	c := get(t, "hs071")
	count := 0
	eval := c.Prob.Eval.(ipm.Funcs)
	obj := eval.Obj
	eval.Obj = func(x []float64) (float64, error) { count++; return obj(x) }
	eval.Grad, eval.Jac = nil, nil
	c.Prob.Eval = eval

	res := fit(t, c, func(p *ipm.Problem) {
		p.Derivative.Gradient = ipm.FiniteDifference
		p.Derivative.Jacobian = ipm.FiniteDifference
	})
	assertSolution(t, c, res, 1e-4)
	assert.Equal(t, count, res.Evals.Obj, "difference quotients are counted as objective evaluations")
	assert.Greater(t, res.Evals.Obj, res.NumIter*4)
	assert.Zero(t, res.Evals.Grad)
	assert.Zero(t, res.Evals.Jac)
}

func TestQuasiNewtonHessian(t *testing.T) {
	for _, name := range []string{"hs071", "convexqp", "halfplane"} {
		c := get(t, name)
		eval := c.Prob.Eval.(ipm.Funcs)
		eval.Hess = nil
		c.Prob.Eval = eval
		res := fit(t, c, func(p *ipm.Problem) { p.Derivative.Hessian = ipm.QuasiNewton })
		assertSolution(t, c, res, 1e-4)
		assert.Zero(t, res.Evals.Hess)
	}
}

func TestMissingHessian(t *testing.T) {
	c := get(t, "hs071")
	eval := c.Prob.Eval.(ipm.Funcs)
	eval.Hess = nil
	c.Prob.Eval = eval
	res := fit(t, c, nil)
	assert.False(t, res.OK)
}

func TestUserScaling(t *testing.T) {
	c := get(t, "hs071")
	for _, sc := range []ipm.Scaling{
		{Method: ipm.ScaleNone},
		{Method: ipm.ScaleUser, Obj: 10, X: []float64{1, 0.5, 0.5, 1}, G: []float64{0.1, 1}},
	} {
		res := fit(t, c, func(p *ipm.Problem) { p.Scaling = sc })
		assertSolution(t, c, res, 1e-5)
	}
}

func TestFortranIndexing(t *testing.T) {
	c := get(t, "hs071")
	res0 := fit(t, c, nil)
	res1 := fit(t, c, func(p *ipm.Problem) {
		p.Index = ipm.FortranStyle
		for _, s := range []*ipm.Structure{&p.Jac, &p.Hess} {
			rows, cols := make([]int, len(s.Rows)), make([]int, len(s.Cols))
			for k := range rows {
				rows[k], cols[k] = s.Rows[k]+1, s.Cols[k]+1
			}
			*s = ipm.Structure{Rows: rows, Cols: cols}
		}
	})
	assert.Equal(t, res0.X, res1.X)
}

// pseudoHuber is 𝒇(x) = √(1+x²) whose Newton step from x lands at -x³.
// Evaluations fail below -1.
func pseudoHuber(calls *int) ipm.Problem {
	fail := func(x []float64) {
		if x[0] < -1 {
			*calls++
			panic("outside the domain")
		}
	}
	return ipm.Problem{
		N:    1,
		Hess: ipm.Structure{Rows: []int{0}, Cols: []int{0}},
		Eval: ipm.Funcs{
			Obj: func(x []float64) (float64, error) {
				fail(x)
				return math.Sqrt(1 + x[0]*x[0]), nil
			},
			Grad: func(x, g []float64) error {
				fail(x)
				g[0] = x[0] / math.Sqrt(1+x[0]*x[0])
				return nil
			},
			Hess: func(x []float64, sigma float64, lam, h []float64) error {
				h[0] = sigma * math.Pow(1+x[0]*x[0], -1.5)
				return nil
			},
		},
	}
}

func TestEvaluationFailureShortensStep(t *testing.T) {
	calls := 0
	p := pseudoHuber(&calls)
	opt, err := p.New(nil)
	require.NoError(t, err)
	res := opt.Fit([]float64{2}, opt.Init())
	assert.Equal(t, ipm.Converged, res.Status)
	assert.InDelta(t, 0, res.X[0], 1e-6)
	assert.Positive(t, calls)
}

func TestInvalidStartingPoint(t *testing.T) {
	boom := errors.New("boom")
	p := ipm.Problem{
		N:    1,
		Hess: ipm.Structure{Rows: []int{0}, Cols: []int{0}},
		Eval: ipm.Funcs{
			Obj:  func(x []float64) (float64, error) { return 0, boom },
			Grad: func(x, g []float64) error { return boom },
			Hess: func(x []float64, sigma float64, lam, h []float64) error { return boom },
		},
	}
	opt, err := p.New(nil)
	require.NoError(t, err)
	res := opt.Fit([]float64{1}, opt.Init())
	assert.Equal(t, ipm.InvalidInputs, res.Status)
	assert.True(t, math.IsNaN(res.F))
	assert.Equal(t, []float64{1}, res.X)
}

func TestNonFiniteObjective(t *testing.T) {
	c := get(t, "quadratic")
	eval := c.Prob.Eval.(ipm.Funcs)
	eval.Obj = func(x []float64) (float64, error) { return math.NaN(), nil }
	c.Prob.Eval = eval
	res := fit(t, c, nil)
	assert.Equal(t, ipm.InvalidInputs, res.Status)
}

func TestCheckDerivatives(t *testing.T) {
	c := get(t, "hs071")
	opt, err := c.Prob.New(nil)
	require.NoError(t, err)
	bad, err := opt.CheckDerivatives(c.X0)
	require.NoError(t, err)
	assert.Empty(t, bad)

	eval := c.Prob.Eval.(ipm.Funcs)
	grad := eval.Grad
	eval.Grad = func(x, g []float64) error {
		err := grad(x, g)
		g[2] += 1
		return err
	}
	c.Prob.Eval = eval
	opt, err = c.Prob.New(nil)
	require.NoError(t, err)
	bad, err = opt.CheckDerivatives(c.X0)
	require.NoError(t, err)
	require.Len(t, bad, 1)
	assert.Equal(t, -1, bad[0].Row)
	assert.Equal(t, 2, bad[0].Col)

	_, err = opt.CheckDerivatives([]float64{1})
	assert.Error(t, err)
}

func TestIterInfo(t *testing.T) {
	var kept *ipm.IterInfo
	var last *ipm.Violations
	c := get(t, "halfplane")
	res := fit(t, c, func(p *ipm.Problem) {
		p.Monitor = func(info *ipm.IterInfo) bool {
			it, err := info.Iterate(false)
			require.NoError(t, err)
			assert.Len(t, it.X, 2)
			assert.Len(t, it.Lambda, 1)
			assert.InDelta(t, it.X[0]+it.X[1], it.G[0], 1e-12)

			v, err := info.Violations(false)
			require.NoError(t, err)
			assert.InDelta(t, math.Max(0, 1-it.G[0]), v.Constr[0], 1e-12)
			assert.GreaterOrEqual(t, info.Mu, 0.0)
			last, kept = v, info
			return true
		}
	})
	require.Equal(t, ipm.Converged, res.Status)
	require.NotNil(t, last)
	assert.InDeltaSlice(t, []float64{0, 0}, last.GradLag, 1e-6)
	assert.InDelta(t, 0, last.ComplG[0], 1e-6)

	_, err := kept.Iterate(false)
	assert.ErrorIs(t, err, ipm.ErrOutsideCallback)
	_, err = kept.Violations(true)
	assert.ErrorIs(t, err, ipm.ErrOutsideCallback)
}

func TestLogger(t *testing.T) {
	var msg, out bytes.Buffer
	c := get(t, "hs071")
	opt, err := c.Prob.New(&ipm.Logger{Level: ipm.LogIter, Msg: &msg, Out: &out})
	require.NoError(t, err)
	res := opt.Fit(c.X0, opt.Init())
	require.True(t, res.OK)
	assert.Contains(t, out.String(), "iter    objective")
	assert.Contains(t, msg.String(), "EXIT: Converged")
	assert.Contains(t, msg.String(), "Number of Iterations")
}

func TestFitPanicsOnBadDimensions(t *testing.T) {
	c := get(t, "hs071")
	opt, err := c.Prob.New(nil)
	require.NoError(t, err)
	w := opt.Init()
	assert.Panics(t, func() { opt.Fit([]float64{1}, w) })
	assert.Panics(t, func() { opt.WarmFit(c.X0, &ipm.Multipliers{G: []float64{1}}, w) })

	rb := get(t, "rosenbrock")
	other, err := rb.Prob.New(nil)
	require.NoError(t, err)
	assert.Panics(t, func() { opt.Fit(c.X0, other.Init()) })
}
