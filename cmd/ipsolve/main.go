// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ipsolve runs the interior-point solver on the catalogue of test problems.
//
//	ipsolve list
//	ipsolve run hs071 rosenbrock --config opts.yaml --print-level 1
//	ipsolve check hs071
package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/curioloop/interior/testprob"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := newViper()
	var cfgFile string

	root := &cobra.Command{
		Use:          "ipsolve",
		Short:        "Solve nonlinear test problems with the interior-point method",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "option file (yaml, toml or json)")

	flags := root.PersistentFlags()
	flags.Float64("tol", 0, "convergence tolerance")
	flags.Int("max-iter", 0, "iteration limit")
	flags.Duration("max-wall-time", 0, "wall clock limit")
	flags.String("mu-strategy", "", "barrier update: monotone or adaptive")
	flags.String("hessian", "", "hessian source: exact or quasi-newton")
	flags.String("linear-solver", "", "KKT factorization: sparse-ldl, bunch-kaufman or spectral")
	flags.Int("print-level", 0, "log level: -1 silent, 0 summary, 1 iterations, 99 trace")
	for key, flag := range map[string]string{
		"tol":                   "tol",
		"max_iter":              "max-iter",
		"max_wall_time":         "max-wall-time",
		"mu_strategy":           "mu-strategy",
		"hessian_approximation": "hessian",
		"linear_solver":         "linear-solver",
		"print_level":           "print-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	load := func() (*config, error) { return loadConfig(v, cfgFile) }
	root.AddCommand(newListCmd(), newRunCmd(load), newCheckCmd(load))
	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the test problems",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, c := range testprob.All() {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", c.Name, c.Prob.N, c.Prob.M, c.Doc)
			}
			_ = tw.Flush()
		},
	}
}

func newRunCmd(load func() (*config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run [problem...]",
		Short: "Solve test problems, all of them by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cases, err := selectCases(args)
			if err != nil {
				return err
			}
			return solveAll(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, cases)
		},
	}
}

func newCheckCmd(load func() (*config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "check [problem...]",
		Short: "Compare user derivatives against finite differences at the starting point",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cases, err := selectCases(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range cases {
				if err = cfg.apply(&c.Prob); err != nil {
					return err
				}
				opt, err := c.Prob.New(nil)
				if err != nil {
					return errors.Wrap(err, c.Name)
				}
				bad, err := opt.CheckDerivatives(c.X0)
				if err != nil {
					return errors.Wrap(err, c.Name)
				}
				fmt.Fprintf(out, "%s: %d mismatches\n", c.Name, len(bad))
				for _, mm := range bad {
					fmt.Fprintf(out, "  %s\n", mm)
				}
			}
			return nil
		},
	}
}

func selectCases(names []string) ([]testprob.Case, error) {
	if len(names) == 0 {
		return testprob.All(), nil
	}
	cases := make([]testprob.Case, 0, len(names))
	for _, name := range names {
		c, ok := testprob.Get(name)
		if !ok {
			return nil, errors.Errorf("unknown problem %q, see 'ipsolve list'", name)
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// solveAll solves every case and prints a summary table to out.
func solveAll(out, msg io.Writer, cfg *config, cases []testprob.Case) error {
	logger := cfg.logger(msg, out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "problem\tstatus\titer\tobjective\t|x-x*|")
	for _, c := range cases {
		if err := cfg.apply(&c.Prob); err != nil {
			return err
		}
		opt, err := c.Prob.New(logger)
		if err != nil {
			return errors.Wrap(err, c.Name)
		}
		res := opt.Fit(c.X0, opt.Init())
		dist := "-"
		if c.XStar != nil {
			var d float64
			for i, x := range res.X {
				d = math.Max(d, math.Abs(x-c.XStar[i]))
			}
			dist = fmt.Sprintf("%.2e", d)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.8e\t%s\n", c.Name, res.Status, res.NumIter, res.F, dist)
	}
	return tw.Flush()
}
