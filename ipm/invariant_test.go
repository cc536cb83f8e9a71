// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curioloop/interior/ipm"
	"github.com/curioloop/interior/testprob"
)

func TestIterateStaysInterior(t *testing.T) {
	for _, strategy := range []ipm.MuStrategy{ipm.Monotone, ipm.Adaptive} {
		for _, c := range testprob.All() {
			t.Run(fmt.Sprintf("%v/%s", strategy, c.Name), func(t *testing.T) {
				calls, resto := 0, 0
				lastMu := -1.0
				res := fit(t, c, func(p *ipm.Problem) {
					p.Barrier.Strategy = strategy
					p.Monitor = func(info *ipm.IterInfo) bool {
						calls++
						dist, minZ := info.InteriorMargins()
						assert.Positive(t, dist, "iteration %d in %v mode", info.Iter, info.Mode)
						assert.GreaterOrEqual(t, minZ, 0.0, "iteration %d in %v mode", info.Iter, info.Mode)
						if info.Mode == ipm.Restoration {
							resto++
							return true
						}
						if !c.Infeasible && lastMu >= 0 {
							assert.LessOrEqual(t, info.Mu, lastMu, "iteration %d", info.Iter)
						}
						lastMu = info.Mu
						return true
					}
				})
				assert.Positive(t, calls)
				if c.Infeasible {
					assert.Positive(t, resto, "restoration iterations are reported")
					assert.False(t, res.OK)
					return
				}
				assert.Equal(t, ipm.Converged, res.Status)
			})
		}
	}
}

func TestTransientHessianFailure(t *testing.T) {
	calls := 0
	p := ipm.Problem{
		N:    1,
		XL:   []float64{-10},
		XU:   []float64{10},
		Hess: ipm.Structure{Rows: []int{0}, Cols: []int{0}},
		Eval: ipm.Funcs{
			Obj:  func(x []float64) (float64, error) { return (x[0] - 1) * (x[0] - 1), nil },
			Grad: func(x, g []float64) error { g[0] = 2 * (x[0] - 1); return nil },
			Hess: func(x []float64, sigma float64, lam, h []float64) error {
				calls++
				if calls == 2 {
					return errors.New("hessian unavailable")
				}
				h[0] = 2 * sigma
				return nil
			},
		},
	}
	opt, err := p.New(nil)
	require.NoError(t, err)
	res := opt.Fit([]float64{5}, opt.Init())
	assert.Equal(t, ipm.Converged, res.Status)
	assert.InDelta(t, 1, res.X[0], 1e-7)
	assert.Greater(t, calls, 2)
}

func TestHessianFailureFromStart(t *testing.T) {
	// no Hessian ever succeeds, so the first iterations use the identity
	calls := 0
	p := ipm.Problem{
		N:    1,
		XL:   []float64{-10},
		XU:   []float64{10},
		Hess: ipm.Structure{Rows: []int{0}, Cols: []int{0}},
		Eval: ipm.Funcs{
			Obj:  func(x []float64) (float64, error) { return (x[0] - 1) * (x[0] - 1), nil },
			Grad: func(x, g []float64) error { g[0] = 2 * (x[0] - 1); return nil },
			Hess: func(x []float64, sigma float64, lam, h []float64) error {
				calls++
				if calls <= 2 {
					return errors.New("hessian unavailable")
				}
				h[0] = 2 * sigma
				return nil
			},
		},
	}
	opt, err := p.New(nil)
	require.NoError(t, err)
	res := opt.Fit([]float64{5}, opt.Init())
	assert.Equal(t, ipm.Converged, res.Status)
	assert.InDelta(t, 1, res.X[0], 1e-7)
}
