// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/curioloop/interior/ipm"
	"github.com/curioloop/interior/testprob"
)

func TestStatus(t *testing.T) {
	for _, tc := range []struct {
		st      ipm.Status
		name    string
		success bool
		early   bool
	}{
		{ipm.Converged, "Converged", true, false},
		{ipm.ConvergedAcceptable, "ConvergedAcceptable", true, false},
		{ipm.InfeasibleDetected, "InfeasibleDetected", false, false},
		{ipm.SearchDirectionTooSmall, "SearchDirectionTooSmall", false, false},
		{ipm.MaxIterExceeded, "MaxIterExceeded", false, true},
		{ipm.MaxTimeExceeded, "MaxTimeExceeded", false, true},
		{ipm.RestorationFailed, "RestorationFailed", false, false},
		{ipm.UserRequestedStop, "UserRequestedStop", false, true},
		{ipm.InvalidInputs, "InvalidInputs", false, false},
		{ipm.InternalError, "InternalError", false, false},
		{ipm.Status(-3), "Unknown", false, false},
	} {
		assert.Equal(t, tc.name, tc.st.String())
		assert.Equal(t, tc.success, tc.st.Success(), tc.name)
		assert.Equal(t, tc.early, tc.st.Early(), tc.name)
	}
	assert.Equal(t, "restoration", ipm.Restoration.String())
	assert.Equal(t, "adaptive", ipm.Adaptive.String())
	assert.Equal(t, "quasi-newton", ipm.QuasiNewton.String())
}

func TestNewRejectsInvalidProblems(t *testing.T) {
	base := func() ipm.Problem {
		c, _ := testprob.Get("hs071")
		return c.Prob
	}
	nan := math.NaN()
	for _, tc := range []struct {
		name string
		edit func(p *ipm.Problem)
	}{
		{"negative n", func(p *ipm.Problem) { p.N = -1 }},
		{"negative m", func(p *ipm.Problem) { p.M = -1 }},
		{"nil evaluator", func(p *ipm.Problem) { p.Eval = nil }},
		{"short xl", func(p *ipm.Problem) { p.XL = p.XL[:3] }},
		{"short gu", func(p *ipm.Problem) { p.GU = p.GU[:1] }},
		{"crossed x bounds", func(p *ipm.Problem) { p.XL[2] = 6 }},
		{"crossed g bounds", func(p *ipm.Problem) { p.GL[0] = 3e19; p.GU[0] = 26 }},
		{"nan bound", func(p *ipm.Problem) { p.XU[0] = nan }},
		{"jacobian row", func(p *ipm.Problem) { p.Jac.Rows[0] = 2 }},
		{"jacobian length", func(p *ipm.Problem) { p.Jac.Cols = p.Jac.Cols[:3] }},
		{"hessian column", func(p *ipm.Problem) { p.Hess.Cols[0] = -1 }},
		{"fortran index", func(p *ipm.Problem) { p.Index = ipm.FortranStyle }},
		{"index style", func(p *ipm.Problem) { p.Index = 7 }},
		{"tolerance", func(p *ipm.Problem) { p.Stop.Tolerance = -1 }},
		{"acceptable", func(p *ipm.Problem) { p.Stop.AcceptableTol = 1e-12 }},
		{"mu strategy", func(p *ipm.Problem) { p.Barrier.Strategy = 5 }},
		{"mu range", func(p *ipm.Problem) { p.Barrier.MuInit = 1e6 }},
		{"alpha red", func(p *ipm.Problem) { p.Search.AlphaRed = 2 }},
		{"pivot tolerance", func(p *ipm.Problem) { p.Linear.PivotTol = 1 }},
		{"linear method", func(p *ipm.Problem) { p.Linear.Method = 9 }},
		{"hessian source", func(p *ipm.Problem) { p.Derivative.Hessian = ipm.FiniteDifference }},
		{"gradient source", func(p *ipm.Problem) { p.Derivative.Gradient = ipm.QuasiNewton }},
		{"user scaling", func(p *ipm.Problem) {
			p.Scaling = ipm.Scaling{Method: ipm.ScaleUser, X: []float64{1, 1, 1, 0}}
		}},
		{"degrees of freedom", func(p *ipm.Problem) {
			p.XL[0], p.XU[0] = 1, 1
			p.XL[1], p.XU[1] = 1, 1
			p.XL[2], p.XU[2] = 1, 1
			p.GL[0], p.GU[0] = 25, 25
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := base()
			p.XL = append([]float64(nil), p.XL...)
			p.XU = append([]float64(nil), p.XU...)
			p.GL = append([]float64(nil), p.GL...)
			p.GU = append([]float64(nil), p.GU...)
			tc.edit(&p)
			opt, err := p.New(nil)
			assert.Nil(t, opt)
			assert.True(t, errors.Is(err, ipm.ErrInvalidProblem), "%v", err)
		})
	}
}

func TestNewCopiesProblem(t *testing.T) {
	c, _ := testprob.Get("boundqp")
	opt, err := c.Prob.New(nil)
	assert.NoError(t, err)
	c.Prob.XU[0] = 10
	res := opt.Fit(c.X0, opt.Init())
	assert.InDelta(t, 1, res.X[0], 1e-7)
}

func TestInfiniteBounds(t *testing.T) {
	c, _ := testprob.Get("halfplane")
	c.Prob.XL = []float64{-1e20, -1e20}
	c.Prob.XU = []float64{1e20, 1e20}
	opt, err := c.Prob.New(nil)
	assert.NoError(t, err)
	res := opt.Fit(c.X0, opt.Init())
	assert.Equal(t, ipm.Converged, res.Status)
	assert.Equal(t, []float64{0, 0}, res.Mult.ZL)
	assert.Equal(t, []float64{0, 0}, res.Mult.ZU)
}
