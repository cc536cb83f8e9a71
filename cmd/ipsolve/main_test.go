// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curioloop/interior/ipm"
	"github.com/curioloop/interior/linsol"
	"github.com/curioloop/interior/testprob"
)

func TestReadConfig(t *testing.T) {
	yaml := `
tol: 1.0e-7
max_iter: 200
max_wall_time: 30s
mu_strategy: adaptive
hessian_approximation: quasi-newton
linear_solver: spectral
fixed_variable_treatment: relax-bounds
scaling: none
print_level: -1
`
	cfg, err := readConfig(newViper(), "yaml", strings.NewReader(yaml))
	require.NoError(t, err)
	assert.Equal(t, 1e-7, cfg.Tol)
	assert.Equal(t, 200, cfg.MaxIter)
	assert.Equal(t, 30*time.Second, cfg.MaxWallTime)
	assert.Equal(t, -1, cfg.PrintLevel)

	var p ipm.Problem
	require.NoError(t, cfg.apply(&p))
	assert.Equal(t, ipm.Adaptive, p.Barrier.Strategy)
	assert.Equal(t, ipm.QuasiNewton, p.Derivative.Hessian)
	assert.Equal(t, ipm.Exact, p.Derivative.Gradient)
	assert.Equal(t, linsol.Spectral, p.Linear.Method)
	assert.Equal(t, ipm.RelaxBounds, p.Init.FixedVariables)
	assert.Equal(t, ipm.ScaleNone, p.Scaling.Method)
	assert.Equal(t, 200, p.Stop.MaxIterations)
}

func TestReadConfigDefaults(t *testing.T) {
	cfg, err := readConfig(newViper(), "json", strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, int(ipm.LogLast), cfg.PrintLevel)

	var p ipm.Problem
	require.NoError(t, cfg.apply(&p))
	assert.Equal(t, ipm.Monotone, p.Barrier.Strategy)
	assert.Equal(t, linsol.SparseLDL, p.Linear.Method)
	assert.Equal(t, ipm.ScaleGradient, p.Scaling.Method)
}

func TestApplyRejectsUnknownValues(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  config
	}{
		{"mu", config{MuStrategy: "probing"}},
		{"hessian", config{Hessian: "finite-difference"}},
		{"gradient", config{Gradient: "quasi-newton"}},
		{"solver", config{LinearSolver: "ma27"}},
		{"fixed", config{FixedVariables: "drop"}},
		{"scaling", config{Scaling: "user"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var p ipm.Problem
			assert.Error(t, tc.cfg.apply(&p))
		})
	}
}

func TestRunCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"run", "halfplane", "--print-level=-1", "--tol=1e-9"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "halfplane")
	assert.Contains(t, out.String(), ipm.Converged.String())
}

func TestListCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"list"})
	require.NoError(t, cmd.Execute())
	for _, name := range testprob.Names() {
		assert.Contains(t, out.String(), name)
	}
}

func TestCheckCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check", "hs071"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "hs071: 0 mismatches")
}

func TestUnknownProblem(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"run", "nope"})
	assert.Error(t, cmd.Execute())
}
