// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"

	"github.com/pkg/errors"
)

const (
	zero = 0.0
	one  = 1.0
	two  = 2.0
	half = 0.5
	ten  = 10.0
	hun  = 100.0
)

var (
	epsilon = math.Nextafter(1, 2) - 1
	inf     = math.Inf(1)
)

var (
	// ErrInvalidProblem is wrapped by every error returned from Problem.New.
	ErrInvalidProblem = errors.New("ipm: invalid problem definition")
	// ErrEvaluation marks a failed user callback: a returned error,
	// a non-finite result or a recovered panic.
	ErrEvaluation = errors.New("ipm: evaluation failed")
	// ErrNotImplemented is returned by Funcs when the requested callback is nil.
	ErrNotImplemented = errors.New("ipm: callback not implemented")
	// ErrOutsideCallback is returned by IterInfo introspection after the
	// intermediate callback has returned.
	ErrOutsideCallback = errors.New("ipm: iterate is only available inside the intermediate callback")
)

// Status is the terminal outcome of a solve.
// Programs should not rely on the underlying numeric value of the Status being constant.
type Status int

const (
	running Status = iota
	// Converged the scaled KKT error and the unscaled tolerances are satisfied.
	Converged
	// ConvergedAcceptable the acceptable tolerances held for enough consecutive iterations.
	ConvergedAcceptable
	// InfeasibleDetected the restoration phase converged to a point of locally minimal infeasibility.
	InfeasibleDetected
	// SearchDirectionTooSmall the step became negligible while the barrier parameter was already minimal.
	SearchDirectionTooSmall
	// MaxIterExceeded the iteration limit was reached.
	MaxIterExceeded
	// MaxTimeExceeded the wall clock limit was reached.
	MaxTimeExceeded
	// RestorationFailed the restoration phase could not find a less infeasible point.
	RestorationFailed
	// UserRequestedStop the intermediate callback asked to stop.
	UserRequestedStop
	// InvalidInputs the problem could not be evaluated at the starting point or has too few degrees of freedom.
	InvalidInputs
	// InternalError an unexpected numerical failure.
	InternalError
)

func (s Status) String() string {
	if s < 0 || int(s) >= len(statuses) {
		return "Unknown"
	}
	return statuses[s].name
}

// Success reports whether the final iterate satisfies the (acceptable) optimality conditions.
func (s Status) Success() bool {
	return s == Converged || s == ConvergedAcceptable
}

// Early reports whether the solve ended on a budget or on request
// before any optimality or infeasibility decision was made.
func (s Status) Early() bool {
	if s < 0 || int(s) >= len(statuses) {
		return false
	}
	return statuses[s].early
}

var statuses = []struct {
	name  string
	early bool
}{
	{name: "Running"},
	{name: "Converged"},
	{name: "ConvergedAcceptable"},
	{name: "InfeasibleDetected"},
	{name: "SearchDirectionTooSmall"},
	{name: "MaxIterExceeded", early: true},
	{name: "MaxTimeExceeded", early: true},
	{name: "RestorationFailed"},
	{name: "UserRequestedStop", early: true},
	{name: "InvalidInputs"},
	{name: "InternalError"},
}

// Mode tells whether an iteration belongs to the regular algorithm or to the restoration phase.
type Mode int

const (
	Regular Mode = iota
	Restoration
)

func (m Mode) String() string {
	if m == Restoration {
		return "restoration"
	}
	return "regular"
}
