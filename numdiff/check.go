// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"fmt"
	"math"
)

// Mismatch is a derivative entry whose user supplied value disagrees with its
// finite difference estimate.
type Mismatch struct {
	Row, Col int     // Row is -1 for gradient entries
	Exact    float64 // user supplied value
	Approx   float64 // finite difference estimate
	RelErr   float64 // |Exact-Approx| / max(1,|Approx|)
}

func (m Mismatch) String() string {
	if m.Row < 0 {
		return fmt.Sprintf("grad_f[%d] = %.12e ~ %.12e [%.3e]", m.Col, m.Exact, m.Approx, m.RelErr)
	}
	return fmt.Sprintf("jac_g[%d,%d] = %.12e ~ %.12e [%.3e]", m.Row, m.Col, m.Exact, m.Approx, m.RelErr)
}

// relErr is the mixed absolute/relative error used by Compare.
func relErr(exact, approx float64) float64 {
	return math.Abs(exact-approx) / math.Max(1, math.Abs(approx))
}

// CompareGradient returns the gradient entries whose relative error exceeds tol.
func CompareGradient(exact, approx []float64, tol float64) (bad []Mismatch) {
	for j, e := range exact {
		if r := relErr(e, approx[j]); !(r <= tol) {
			bad = append(bad, Mismatch{Row: -1, Col: j, Exact: e, Approx: approx[j], RelErr: r})
		}
	}
	return
}

// CompareJacobian returns the Jacobian entries, given as values over rows and
// cols, whose relative error exceeds tol.
func CompareJacobian(rows, cols []int, exact, approx []float64, tol float64) (bad []Mismatch) {
	for k, e := range exact {
		if r := relErr(e, approx[k]); !(r <= tol) {
			bad = append(bad, Mismatch{Row: rows[k], Col: cols[k], Exact: e, Approx: approx[k], RelErr: r})
		}
	}
	return
}
