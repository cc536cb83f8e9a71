// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sparse provides coordinate (triplet) storage for the sparse
// derivative matrices exchanged with user evaluation callbacks.
package sparse

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Pattern is the coordinate structure of a sparse matrix.
// Entry k lives at (Rows[k], Cols[k]).
type Pattern struct {
	Rows, Cols []int
}

// Len returns the number of non-zero entries in the pattern.
func (p Pattern) Len() int { return len(p.Rows) }

// Check verifies the pattern against an r×c matrix whose indices start at base.
// Symmetric patterns must only address one triangle, which is not checked here.
func (p Pattern) Check(r, c, base int) error {
	if len(p.Rows) != len(p.Cols) {
		return errors.Errorf("pattern has %d row indices but %d column indices", len(p.Rows), len(p.Cols))
	}
	for k, i := range p.Rows {
		j := p.Cols[k]
		if i < base || i >= r+base {
			return errors.Errorf("row index %d of entry %d out of range [%d,%d)", i, k, base, r+base)
		}
		if j < base || j >= c+base {
			return errors.Errorf("column index %d of entry %d out of range [%d,%d)", j, k, base, c+base)
		}
	}
	return nil
}

// Rebase returns a copy of the pattern with indices shifted from base to zero.
func (p Pattern) Rebase(base int) Pattern {
	q := Pattern{
		Rows: make([]int, len(p.Rows)),
		Cols: make([]int, len(p.Cols)),
	}
	for k := range p.Rows {
		q.Rows[k] = p.Rows[k] - base
		q.Cols[k] = p.Cols[k] - base
	}
	return q
}

type triplet struct {
	i, j int
}

// Matrix is an r×c matrix in coordinate form with a fixed zero-based pattern.
// Repeated coordinates are summed.
type Matrix struct {
	r, c   int
	idx    []triplet
	Values []float64
}

// New creates an r×c matrix over the zero-based pattern p with zero values.
func New(r, c int, p Pattern) *Matrix {
	m := &Matrix{r: r, c: c}
	for k, i := range p.Rows {
		m.Append(i, p.Cols[k], 0)
	}
	return m
}

// Dims returns the dimensions of the matrix.
func (m *Matrix) Dims() (r, c int) {
	return m.r, m.c
}

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int { return len(m.idx) }

// At returns the coordinates of the k-th stored entry.
func (m *Matrix) At(k int) (i, j int) {
	t := m.idx[k]
	return t.i, t.j
}

// Clone returns a matrix sharing the pattern of m with its own copy of the values.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{r: m.r, c: m.c, idx: m.idx[:len(m.idx):len(m.idx)], Values: append([]float64(nil), m.Values...)}
}

// Append adds a new entry to the pattern.
func (m *Matrix) Append(i, j int, v float64) {
	if i < 0 || m.r <= i {
		panic("row index out of range")
	}
	if j < 0 || m.c <= j {
		panic("column index out of range")
	}
	m.idx = append(m.idx, triplet{i, j})
	m.Values = append(m.Values, v)
}

// MulVec computes dst = A x.
func (m *Matrix) MulVec(dst, x []float64) {
	if m.c != len(x) {
		panic("dimension mismatch")
	}
	if m.r != len(dst) {
		panic("dimension mismatch")
	}
	for i := range dst {
		dst[i] = 0
	}
	for k, t := range m.idx {
		dst[t.i] += m.Values[k] * x[t.j]
	}
}

// MulTransVec computes dst = Aᵀ x.
func (m *Matrix) MulTransVec(dst, x []float64) {
	if m.c != len(dst) {
		panic("dimension mismatch")
	}
	if m.r != len(x) {
		panic("dimension mismatch")
	}
	for i := range dst {
		dst[i] = 0
	}
	for k, t := range m.idx {
		dst[t.j] += m.Values[k] * x[t.i]
	}
}

// AddBlockTo adds alpha·A into dst with its upper-left corner at (row, col).
// Entries are mirrored, so the block must lie strictly off the diagonal of dst
// or A must be stored as one triangle.
func (m *Matrix) AddBlockTo(dst *mat.SymDense, row, col int, alpha float64) {
	n := dst.SymmetricDim()
	if row+m.r > n || col+m.c > n {
		panic("dimension mismatch")
	}
	for k, t := range m.idx {
		i, j := t.i+row, t.j+col
		dst.SetSym(i, j, dst.At(i, j)+alpha*m.Values[k])
	}
}

// Dense returns a dense copy of the matrix.
func (m *Matrix) Dense() *mat.Dense {
	d := mat.NewDense(max(m.r, 1), max(m.c, 1), nil)
	for k, t := range m.idx {
		d.Set(t.i, t.j, d.At(t.i, t.j)+m.Values[k])
	}
	return d
}

// RowAbsMax stores maxⱼ |Aᵢⱼ| into dst for every row i.
func (m *Matrix) RowAbsMax(dst []float64) {
	if len(dst) != m.r {
		panic("dimension mismatch")
	}
	for i := range dst {
		dst[i] = 0
	}
	for k, t := range m.idx {
		if v := m.Values[k]; v > dst[t.i] {
			dst[t.i] = v
		} else if -v > dst[t.i] {
			dst[t.i] = -v
		}
	}
}
