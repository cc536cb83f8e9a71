// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/curioloop/interior/ipm"
	"github.com/curioloop/interior/linsol"
	"github.com/curioloop/interior/numdiff"
)

// config holds the solver options read from flags, the environment and an
// optional YAML, TOML or JSON file. Zero values keep the solver defaults.
type config struct {
	Tol            float64       `mapstructure:"tol"`
	MaxIter        int           `mapstructure:"max_iter"`
	MaxWallTime    time.Duration `mapstructure:"max_wall_time"`
	DualInfTol     float64       `mapstructure:"dual_inf_tol"`
	ConstrViolTol  float64       `mapstructure:"constr_viol_tol"`
	ComplInfTol    float64       `mapstructure:"compl_inf_tol"`
	AcceptableTol  float64       `mapstructure:"acceptable_tol"`
	AcceptableIter int           `mapstructure:"acceptable_iter"`

	MuStrategy string  `mapstructure:"mu_strategy"`
	MuInit     float64 `mapstructure:"mu_init"`
	MuMin      float64 `mapstructure:"mu_min"`

	MaxSOC       int     `mapstructure:"max_soc"`
	RestoPenalty float64 `mapstructure:"resto_penalty"`

	LinearSolver string `mapstructure:"linear_solver"`

	BoundPush      float64 `mapstructure:"bound_push"`
	BoundFrac      float64 `mapstructure:"bound_frac"`
	BoundRelax     float64 `mapstructure:"bound_relax_factor"`
	FixedVariables string  `mapstructure:"fixed_variable_treatment"`

	Gradient       string  `mapstructure:"gradient_approximation"`
	Jacobian       string  `mapstructure:"jacobian_approximation"`
	Hessian        string  `mapstructure:"hessian_approximation"`
	FDMethod       string  `mapstructure:"fd_method"`
	DerivativeTest bool    `mapstructure:"derivative_test"`
	DerivativeTol  float64 `mapstructure:"derivative_test_tol"`

	Scaling    string `mapstructure:"scaling"`
	PrintLevel int    `mapstructure:"print_level"`
}

// newViper returns a viper instance reading IPSOLVE_* environment variables.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ipsolve")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("print_level", int(ipm.LogLast))
	v.SetDefault("mu_strategy", ipm.Monotone.String())
	v.SetDefault("linear_solver", linsol.SparseLDL.String())
	return v
}

// loadConfig reads the file at path, if any, and decodes all settings.
func loadConfig(v *viper.Viper, path string) (*config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	cfg := new(config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// readConfig decodes settings of the given format from r.
func readConfig(v *viper.Viper, format string, r io.Reader) (*config, error) {
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return loadConfig(v, "")
}

// apply copies the settings onto p.
func (c *config) apply(p *ipm.Problem) (err error) {
	p.Stop.Tolerance = c.Tol
	p.Stop.MaxIterations = c.MaxIter
	p.Stop.MaxWallTime = c.MaxWallTime
	p.Stop.DualInfTol = c.DualInfTol
	p.Stop.ConstrViolTol = c.ConstrViolTol
	p.Stop.ComplInfTol = c.ComplInfTol
	p.Stop.AcceptableTol = c.AcceptableTol
	p.Stop.AcceptableIter = c.AcceptableIter

	p.Barrier.MuInit = c.MuInit
	p.Barrier.MuMin = c.MuMin
	p.Search.MaxSOC = c.MaxSOC
	p.Search.RestoPenalty = c.RestoPenalty

	p.Init.BoundPush = c.BoundPush
	p.Init.BoundFrac = c.BoundFrac
	p.Init.BoundRelaxFactor = c.BoundRelax

	p.Derivative.Test = c.DerivativeTest
	p.Derivative.TestTol = c.DerivativeTol

	if p.Barrier.Strategy, err = choose(c.MuStrategy, "mu_strategy", ipm.Monotone, ipm.Adaptive); err != nil {
		return
	}
	if p.Linear.Method, err = choose(c.LinearSolver, "linear_solver", linsol.SparseLDL, linsol.BunchKaufman, linsol.Spectral); err != nil {
		return
	}
	if p.Init.FixedVariables, err = chooseFixed(c.FixedVariables); err != nil {
		return
	}
	if p.Derivative.Gradient, err = choose(c.Gradient, "gradient_approximation", ipm.Exact, ipm.FiniteDifference); err != nil {
		return
	}
	if p.Derivative.Jacobian, err = choose(c.Jacobian, "jacobian_approximation", ipm.Exact, ipm.FiniteDifference); err != nil {
		return
	}
	if p.Derivative.Hessian, err = choose(c.Hessian, "hessian_approximation", ipm.Exact, ipm.QuasiNewton); err != nil {
		return
	}
	if p.Derivative.Method, err = choose(c.FDMethod, "fd_method", numdiff.Forward, numdiff.Central); err != nil {
		return
	}
	switch strings.ToLower(c.Scaling) {
	case "", "gradient":
		p.Scaling.Method = ipm.ScaleGradient
	case "none":
		p.Scaling.Method = ipm.ScaleNone
	default:
		return errors.Errorf("scaling: unknown value %q", c.Scaling)
	}
	return nil
}

// logger returns a logger at the configured level writing to msg and out.
func (c *config) logger(msg, out io.Writer) *ipm.Logger {
	return &ipm.Logger{Level: ipm.LogLevel(c.PrintLevel), Msg: msg, Out: out}
}

// choose matches name against the String form of the choices.
// An empty name selects the first choice.
func choose[T interface {
	comparable
	String() string
}](name, key string, choices ...T) (T, error) {
	if name == "" {
		return choices[0], nil
	}
	for _, c := range choices {
		if strings.EqualFold(c.String(), name) {
			return c, nil
		}
	}
	var zero T
	return zero, errors.Errorf("%s: unknown value %q", key, name)
}

func chooseFixed(name string) (ipm.FixedTreatment, error) {
	switch strings.ToLower(name) {
	case "", "make-parameter":
		return ipm.MakeParameter, nil
	case "relax-bounds":
		return ipm.RelaxBounds, nil
	}
	return 0, errors.Errorf("fixed_variable_treatment: unknown value %q", name)
}
