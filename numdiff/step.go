// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"math"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Cbrt(math.Nextafter(1, 2) - 1)

// Method is a finite difference scheme.
type Method int

const (
	// Forward uses the first order accurate forward difference.
	Forward Method = iota
	// Central uses the second order accurate central difference in the interior
	// and a second order one-sided difference next to a bound.
	Central
)

func (m Method) String() string {
	if m == Central {
		return "central"
	}
	return "forward"
}

// Bound is the closed interval [lower, upper] a variable may be evaluated in.
// NaN or infinite ends mean no bound.
type Bound [2]float64

func (b Bound) span() (lb, ub float64) {
	lb, ub = b[0], b[1]
	if math.IsNaN(lb) {
		lb = math.Inf(-1)
	}
	if math.IsNaN(ub) {
		ub = math.Inf(1)
	}
	return
}

// stepSize picks the signed absolute step hᵢ for every coordinate of x0:
//   - default: hᵢ = ε·sgn(xᵢ)·max(1,|xᵢ|) with ε = √eps (forward) or ∛eps (central)
//   - RelStep: hᵢ = r·sgn(xᵢ)·|xᵢ|
//   - AbsStep: hᵢ = AbsStep
//
// A user step that vanishes in floating point falls back to the default.
func stepSize(method Method, rel, abs float64, x0, h []float64) {
	eps := sqrtEps
	if method == Central {
		eps = cubeEps
	}
	for i, v := range x0 {
		auto := math.Copysign(eps, v) * math.Max(1, math.Abs(v))
		if abs == 0 && rel == 0 {
			h[i] = auto
			continue
		}
		s := abs
		if s == 0 {
			s = math.Copysign(rel, v) * math.Abs(v)
		}
		if (v+s)-v == 0 {
			s = auto
		}
		h[i] = s
	}
}

// fitBounds shrinks or flips the steps so every evaluation point stays inside
// the bounds. For the central scheme side[i] reports that coordinate i must use
// the one-sided formula x, x+h, x+2h.
func fitBounds(method Method, bounds []Bound, x0, h []float64, side []bool) {
	if method == Central {
		for i := range h {
			h[i] = math.Abs(h[i])
			side[i] = false
		}
	}
	if len(bounds) == 0 {
		return
	}

	for i, x := range x0 {
		lb, ub := bounds[i].span()
		ld, ud := x-lb, ub-x
		switch method {
		case Forward:
			s := h[i]
			outside := x+s < lb || x+s > ub
			fits := math.Abs(s) < math.Max(ld, ud)
			if !fits {
				// the box is narrower than the step: use the wider side
				if ud >= ld {
					h[i] = ud
				} else {
					h[i] = -ld
				}
			} else if outside {
				h[i] = -s
			}
		case Central:
			s := h[i]
			if ld >= s && ud >= s {
				continue
			}
			if ud >= ld {
				h[i] = math.Min(s, 0.5*ud)
			} else {
				h[i] = -math.Min(s, 0.5*ld)
			}
			side[i] = true
			if near := math.Min(ld, ud); math.Abs(h[i]) <= near {
				// a symmetric step of the nearest distance is still feasible
				h[i] = near
				side[i] = false
			}
		}
	}
}
