// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linsol

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// bkAlpha is the Bunch-Kaufman growth bound (1+√17)/8.
var bkAlpha = (1 + math.Sqrt(17)) / 8

// LDL factorizes a symmetric indefinite matrix as 𝐏𝐀𝐏ᵀ = 𝐋𝐃𝐋ᵀ where
//   - 𝐋 is unit lower triangular
//   - 𝐃 is block diagonal with 1×1 and 2×2 blocks
//   - 𝐏 is the permutation produced by symmetric pivoting
//
// Pivots are chosen with the partial pivoting strategy of Bunch and Kaufman,
// which bounds the element growth by (1+α⁻¹)ⁿ⁻¹ with α = (1+√17)/8.
// The inertia is read off the blocks of 𝐃 (Sylvester's law of inertia).
//
// # Reference
//
// J.R. Bunch, L. Kaufman: "Some stable methods for calculating inertia and solving symmetric linear systems".
// Mathematics of Computation 31, 1977.
type LDL struct {
	// ZeroTol is the absolute magnitude below which a pivot eigenvalue is counted as zero.
	// When zero, n·ε·max|𝐀ᵢⱼ| is used.
	ZeroTol float64

	n     int
	a     []float64 // n×n row-major, 𝐋 below the diagonal and 𝐃 on it
	perm  []int     // (𝐏𝐀𝐏ᵀ)ᵢⱼ = 𝐀[perm[i]][perm[j]]
	block []int     // block size starting at k, 0 for the second row of a 2×2 block
	work  []float64
	aux   []float64
	in    Inertia
	ok    bool
}

// NewLDL returns a Bunch-Kaufman factorizer.
func NewLDL() *LDL { return new(LDL) }

func (f *LDL) resize(n int) {
	if f.n == n && f.a != nil {
		return
	}
	f.n = n
	f.a = make([]float64, n*n)
	f.perm = make([]int, n)
	f.block = make([]int, n)
	f.work = make([]float64, n)
	f.aux = make([]float64, n)
}

// Factorize computes the 𝐋𝐃𝐋ᵀ factors of a.
// A matrix with zero pivots is factorized successfully; the zeros are
// reported by Inertia and SolveVecTo fails with ErrSingular.
func (f *LDL) Factorize(sym mat.Symmetric) error {
	n := sym.SymmetricDim()
	f.resize(n)
	f.ok = false
	f.in = Inertia{}

	a := f.a
	amax := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			v := sym.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return ErrNotFinite
			}
			a[i*n+j] = v
			a[j*n+i] = v
			amax = math.Max(amax, math.Abs(v))
		}
		f.perm[i] = i
		f.block[i] = 0
	}

	tol := f.ZeroTol
	if tol <= 0 {
		tol = float64(max(n, 1)) * eps * amax
	}

	for k := 0; k < n; {
		absakk := math.Abs(a[k*n+k])

		// largest off-diagonal magnitude in column k
		imax, colmax := k, 0.0
		for i := k + 1; i < n; i++ {
			if v := math.Abs(a[i*n+k]); v > colmax {
				imax, colmax = i, v
			}
		}

		kstep, kp := 1, k
		if math.Max(absakk, colmax) <= tol {
			// column is numerically zero: a zero eigenvalue with nothing to eliminate
			for i := k + 1; i < n; i++ {
				a[i*n+k] = 0
			}
			a[k*n+k] = 0
			f.block[k] = 1
			f.in.Zero++
			k++
			continue
		}

		if absakk < bkAlpha*colmax {
			// largest off-diagonal magnitude in row imax
			rowmax := 0.0
			for j := k; j < n; j++ {
				if j != imax {
					rowmax = math.Max(rowmax, math.Abs(a[imax*n+j]))
				}
			}
			switch {
			case absakk*rowmax >= bkAlpha*colmax*colmax:
				// no interchange, 1×1 pivot
			case math.Abs(a[imax*n+imax]) >= bkAlpha*rowmax:
				kp = imax
			default:
				kp, kstep = imax, 2
			}
		}

		kk := k + kstep - 1
		if kp != kk {
			f.interchange(k, kk, kp)
		}

		if kstep == 1 {
			d := a[k*n+k]
			f.block[k] = 1
			f.count1(d, tol)
			if d == 0 {
				k++
				continue
			}
			inv := 1 / d
			for i := k + 1; i < n; i++ {
				lik := a[i*n+k] * inv
				if lik == 0 {
					continue
				}
				ai := a[i*n : (i+1)*n]
				for j := k + 1; j <= i; j++ {
					ai[j] -= lik * a[j*n+k]
				}
			}
			for i := k + 1; i < n; i++ {
				a[i*n+k] *= inv
			}
		} else {
			d11, d21, d22 := a[k*n+k], a[(k+1)*n+k], a[(k+1)*n+k+1]
			f.block[k], f.block[k+1] = 2, 0
			f.count2(d11, d21, d22, tol)
			det := d11*d22 - d21*d21
			if det == 0 {
				k += 2
				continue
			}
			// 𝐃⁻¹ = [d22 -d21; -d21 d11] / det
			e11, e21, e22 := d22/det, -d21/det, d11/det
			l0, l1 := f.work, f.aux
			for i := k + 2; i < n; i++ {
				ci0, ci1 := a[i*n+k], a[i*n+k+1]
				l0[i] = ci0*e11 + ci1*e21
				l1[i] = ci0*e21 + ci1*e22
			}
			for i := k + 2; i < n; i++ {
				ai := a[i*n : (i+1)*n]
				for j := k + 2; j <= i; j++ {
					ai[j] -= l0[i]*a[j*n+k] + l1[i]*a[j*n+k+1]
				}
			}
			for i := k + 2; i < n; i++ {
				a[i*n+k], a[i*n+k+1] = l0[i], l1[i]
			}
		}
		// keep the trailing block symmetric for the row scans above
		for i := k + kstep; i < n; i++ {
			for j := k + kstep; j < i; j++ {
				a[j*n+i] = a[i*n+j]
			}
		}
		k += kstep
	}

	f.ok = true
	return nil
}

// interchange swaps rows and columns kk and kp (kp > kk) of the trailing block
// starting at k together with the computed rows of 𝐋.
func (f *LDL) interchange(k, kk, kp int) {
	n, a := f.n, f.a
	for j := 0; j < k; j++ {
		a[kk*n+j], a[kp*n+j] = a[kp*n+j], a[kk*n+j]
	}
	for j := k; j < n; j++ {
		a[kk*n+j], a[kp*n+j] = a[kp*n+j], a[kk*n+j]
	}
	for i := k; i < n; i++ {
		a[i*n+kk], a[i*n+kp] = a[i*n+kp], a[i*n+kk]
	}
	f.perm[kk], f.perm[kp] = f.perm[kp], f.perm[kk]
}

func (f *LDL) count1(d, tol float64) {
	switch {
	case d > tol:
		f.in.Pos++
	case d < -tol:
		f.in.Neg++
	default:
		f.in.Zero++
	}
}

func (f *LDL) count2(d11, d21, d22, tol float64) {
	tr := d11 + d22
	disc := math.Sqrt(math.Max(0, (d11-d22)*(d11-d22)+4*d21*d21))
	f.count1((tr+disc)/2, tol)
	f.count1((tr-disc)/2, tol)
}

// Inertia returns the eigenvalue sign counts of the last factorized matrix.
func (f *LDL) Inertia() Inertia { return f.in }

// SolveVecTo solves 𝐀x = b with the stored factors.
// dst and b may alias.
func (f *LDL) SolveVecTo(dst, b []float64) error {
	if !f.ok {
		return ErrNotFactorized
	}
	if f.in.Zero > 0 {
		return ErrSingular
	}
	n, a, w := f.n, f.a, f.work
	if len(dst) != n || len(b) != n {
		panic("dimension mismatch")
	}

	// w = 𝐏b
	for i, p := range f.perm {
		w[i] = b[p]
	}
	// 𝐋u = w
	for k := 0; k < n; k++ {
		if f.block[k] == 2 {
			u0, u1 := w[k], w[k+1]
			for i := k + 2; i < n; i++ {
				w[i] -= a[i*n+k]*u0 + a[i*n+k+1]*u1
			}
			k++
			continue
		}
		for i := k + 1; i < n; i++ {
			w[i] -= a[i*n+k] * w[k]
		}
	}
	// 𝐃v = u
	for k := 0; k < n; k++ {
		if f.block[k] == 2 {
			d11, d21, d22 := a[k*n+k], a[(k+1)*n+k], a[(k+1)*n+k+1]
			det := d11*d22 - d21*d21
			u0, u1 := w[k], w[k+1]
			w[k] = (d22*u0 - d21*u1) / det
			w[k+1] = (d11*u1 - d21*u0) / det
			k++
			continue
		}
		w[k] /= a[k*n+k]
	}
	// 𝐋ᵀx = v
	for k := n - 1; k >= 0; k-- {
		if k > 0 && f.block[k] == 0 {
			// second row of a 2×2 block; handled together with its first row
			s0, s1 := w[k-1], w[k]
			for i := k + 1; i < n; i++ {
				s0 -= a[i*n+k-1] * w[i]
				s1 -= a[i*n+k] * w[i]
			}
			w[k-1], w[k] = s0, s1
			k--
			continue
		}
		s := w[k]
		for i := k + 1; i < n; i++ {
			s -= a[i*n+k] * w[i]
		}
		w[k] = s
	}
	for i, p := range f.perm {
		dst[p] = w[i]
	}
	return nil
}
