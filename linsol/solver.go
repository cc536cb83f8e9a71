// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linsol solves symmetric indefinite linear systems and reports the
// inertia of the factorized matrix, as needed by interior-point methods to
// detect non-convexity of the KKT system.
package linsol

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var eps = math.Nextafter(1, 2) - 1

var (
	// ErrSingular is returned when solving with a factorization that has zero pivots.
	ErrSingular = errors.New("linsol: matrix is singular")
	// ErrNotFactorized is returned when solving before a successful factorization.
	ErrNotFactorized = errors.New("linsol: matrix is not factorized")
	// ErrNotFinite is returned when the matrix contains NaN or Inf.
	ErrNotFinite = errors.New("linsol: matrix contains non-finite values")
)

// Inertia counts the positive, negative and zero eigenvalues of a symmetric matrix.
type Inertia struct {
	Pos, Neg, Zero int
}

func (in Inertia) String() string {
	return fmt.Sprintf("(%d,%d,%d)", in.Pos, in.Neg, in.Zero)
}

// Factorizer is a symmetric indefinite linear solver.
// A Factorizer keeps the factors of the last matrix and is not safe for concurrent use.
type Factorizer interface {
	// Factorize computes the factors of a.
	Factorize(a mat.Symmetric) error
	// Inertia returns the eigenvalue sign counts of the factorized matrix.
	Inertia() Inertia
	// SolveVecTo solves 𝐀x = b into dst.
	SolveVecTo(dst, b []float64) error
}

// Method selects a Factorizer implementation.
type Method int

const (
	// SparseLDL uses Sparse and falls back to BunchKaufman on pivot breakdown.
	SparseLDL Method = iota
	// BunchKaufman uses the dense 𝐋𝐃𝐋ᵀ factorization with symmetric pivoting.
	BunchKaufman
	// Spectral uses the eigen-decomposition 𝐀 = 𝐕𝚲𝐕ᵀ.
	Spectral
)

func (m Method) String() string {
	switch m {
	case SparseLDL:
		return "sparse-ldl"
	case BunchKaufman:
		return "bunch-kaufman"
	case Spectral:
		return "spectral"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// New returns the dense Factorizer for the method.
// SparseLDL gets its BunchKaufman fallback.
func New(m Method) Factorizer {
	switch m {
	case Spectral:
		return NewEigen()
	default:
		return NewLDL()
	}
}

// Eigen factorizes a symmetric matrix through its eigen-decomposition.
// It is an order of magnitude slower than LDL but gives the exact spectrum,
// which makes it a reference for inertia computations.
type Eigen struct {
	// ZeroTol is the absolute eigenvalue magnitude counted as zero.
	// When zero, n·ε·max|λᵢ| is used.
	ZeroTol float64

	es   mat.EigenSym
	vecs mat.Dense
	vals []float64
	in   Inertia
	ok   bool
}

// NewEigen returns a spectral factorizer.
func NewEigen() *Eigen { return new(Eigen) }

// Factorize computes the eigen-decomposition of a.
func (f *Eigen) Factorize(a mat.Symmetric) error {
	f.ok = false
	f.in = Inertia{}
	n := a.SymmetricDim()
	if n == 0 {
		f.vals = f.vals[:0]
		f.ok = true
		return nil
	}
	if !f.es.Factorize(a, true) {
		return errors.Wrap(ErrNotFinite, "eigen decomposition failed")
	}
	if cap(f.vals) < n {
		f.vals = make([]float64, n)
	}
	f.vals = f.es.Values(f.vals[:n])
	f.vecs.Reset()
	f.es.VectorsTo(&f.vecs)

	tol := f.ZeroTol
	if tol <= 0 {
		big := 0.0
		for _, v := range f.vals {
			big = max(big, v, -v)
		}
		tol = float64(n) * eps * big
	}
	for _, v := range f.vals {
		switch {
		case v > tol:
			f.in.Pos++
		case v < -tol:
			f.in.Neg++
		default:
			f.in.Zero++
		}
	}
	f.ok = true
	return nil
}

// Inertia returns the eigenvalue sign counts of the factorized matrix.
func (f *Eigen) Inertia() Inertia { return f.in }

// Eigenvalues returns the eigenvalues of the factorized matrix in ascending order.
func (f *Eigen) Eigenvalues() []float64 { return f.vals }

// SolveVecTo solves 𝐀x = b as x = 𝐕𝚲⁻¹𝐕ᵀb.
func (f *Eigen) SolveVecTo(dst, b []float64) error {
	if !f.ok {
		return ErrNotFactorized
	}
	if f.in.Zero > 0 {
		return ErrSingular
	}
	n := len(f.vals)
	if len(dst) != n || len(b) != n {
		panic("dimension mismatch")
	}
	if n == 0 {
		return nil
	}
	var t mat.VecDense
	t.MulVec(f.vecs.T(), mat.NewVecDense(n, b))
	for i, v := range f.vals {
		t.SetVec(i, t.AtVec(i)/v)
	}
	x := mat.NewVecDense(n, dst)
	x.MulVec(&f.vecs, &t)
	return nil
}
