// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linsol

import (
	"container/heap"
	"math"
	"slices"

	"github.com/pkg/errors"

	"github.com/curioloop/interior/sparse"
)

// ErrBreakdown is returned by Sparse when a pivot is too small to continue
// without symmetric pivoting. The matrix may still be nonsingular.
var ErrBreakdown = errors.New("linsol: pivot breakdown")

// Sparse factorizes a symmetric matrix in coordinate form as 𝐏𝐀𝐏ᵀ = 𝐋𝐃𝐋ᵀ
// with diagonal 𝐃 and a static fill-reducing permutation 𝐏.
//
// The ordering is fixed by Analyze: a minimum degree ordering of the
// adjacency graph where the nodes below a split index are eliminated first.
// Factorize then runs the up-looking algorithm over the elimination tree.
// As 𝐃 is diagonal the inertia is exact whenever the factorization exists,
// but without pivoting it stops with ErrBreakdown on a small pivot; callers
// should fall back to LDL in that case.
//
// # Reference
//
// T.A. Davis: "Direct Methods for Sparse Linear Systems". SIAM, 2006.
type Sparse struct {
	// PivotTol is the relative pivot magnitude |dₖ| ≤ PivotTol·maxᵢ|𝐀ᵢₖ|
	// treated as breakdown. Default 1e-8.
	PivotTol float64

	n           int
	perm, iperm []int // row k of 𝐏𝐀𝐏ᵀ is row perm[k] of 𝐀

	// upper triangle of 𝐏𝐀𝐏ᵀ in compressed column form
	ap, ai []int
	ax     []float64
	slot   []int // coordinate entry → position in ax

	// 𝐋 in compressed column form
	etree  []int
	lp, li []int
	lx     []float64
	d      []float64
	dinv   []float64

	next   []int
	mark   []bool
	stack  []int
	yidx   []int
	y      []float64
	x      []float64
	colmax []float64

	in Inertia
	ok bool
}

// NewSparse returns a sparse 𝐋𝐃𝐋ᵀ factorizer.
func NewSparse() *Sparse { return new(Sparse) }

// Analyze computes the ordering and the symbolic factorization of an n×n
// symmetric matrix whose non-zeros are given by p. Each coordinate may
// address either triangle and repeated coordinates are summed.
// Nodes below split are ordered before the others.
func (f *Sparse) Analyze(n int, p sparse.Pattern, split int) error {
	if err := p.Check(n, n, 0); err != nil {
		return errors.Wrap(err, "linsol: invalid pattern")
	}
	f.ok = false
	f.n = n

	adj := make([]map[int]struct{}, n)
	for i := range adj {
		adj[i] = make(map[int]struct{})
	}
	for k, i := range p.Rows {
		if j := p.Cols[k]; i != j {
			adj[i][j] = struct{}{}
			adj[j][i] = struct{}{}
		}
	}
	f.perm = minDegree(adj, split)
	f.iperm = make([]int, n)
	for k, v := range f.perm {
		f.iperm[v] = k
	}

	upper := func(t int) (r, c int) {
		r, c = f.iperm[p.Rows[t]], f.iperm[p.Cols[t]]
		if r > c {
			r, c = c, r
		}
		return
	}

	// every column holds its diagonal
	cols := make([][]int, n)
	for k := range cols {
		cols[k] = []int{k}
	}
	for t := range p.Rows {
		r, c := upper(t)
		cols[c] = append(cols[c], r)
	}
	f.ap = make([]int, n+1)
	for c := range cols {
		slices.Sort(cols[c])
		cols[c] = slices.Compact(cols[c])
		f.ap[c+1] = f.ap[c] + len(cols[c])
	}
	f.ai = make([]int, f.ap[n])
	for c := range cols {
		copy(f.ai[f.ap[c]:], cols[c])
	}
	f.ax = make([]float64, len(f.ai))
	f.slot = make([]int, p.Len())
	for t := range p.Rows {
		r, c := upper(t)
		k, _ := slices.BinarySearch(f.ai[f.ap[c]:f.ap[c+1]], r)
		f.slot[t] = f.ap[c] + k
	}

	f.symbolic()
	return nil
}

// symbolic builds the elimination tree and the column structure of 𝐋.
func (f *Sparse) symbolic() {
	n := f.n
	f.etree = make([]int, n)
	lnz := make([]int, n)
	work := make([]int, n)
	for i := range f.etree {
		f.etree[i] = -1
	}
	for j := 0; j < n; j++ {
		work[j] = j
		for _, i := range f.ai[f.ap[j]:f.ap[j+1]] {
			for ; work[i] != j; i = f.etree[i] {
				if f.etree[i] == -1 {
					f.etree[i] = j
				}
				lnz[i]++
				work[i] = j
			}
		}
	}
	f.lp = make([]int, n+1)
	for i, c := range lnz {
		f.lp[i+1] = f.lp[i] + c
	}
	f.li = make([]int, f.lp[n])
	f.lx = make([]float64, f.lp[n])
	f.d = make([]float64, n)
	f.dinv = make([]float64, n)
	f.next = make([]int, n)
	f.mark = make([]bool, n)
	f.stack = make([]int, n)
	f.yidx = make([]int, n)
	f.y = make([]float64, n)
	f.x = make([]float64, n)
	f.colmax = make([]float64, n)
}

// NNZ returns the number of non-zeros of 𝐋 below the diagonal.
func (f *Sparse) NNZ() int { return len(f.li) }

// Factorize computes the numeric factors for the values of the pattern
// passed to Analyze, in the same order.
func (f *Sparse) Factorize(values []float64) error {
	if len(values) != len(f.slot) {
		panic("dimension mismatch")
	}
	f.ok = false
	f.in = Inertia{}
	for i := range f.ax {
		f.ax[i] = 0
	}
	for t, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNotFinite
		}
		f.ax[f.slot[t]] += v
	}

	n := f.n
	for i := range f.colmax {
		f.colmax[i] = 0
	}
	for c := 0; c < n; c++ {
		for p := f.ap[c]; p < f.ap[c+1]; p++ {
			v := math.Abs(f.ax[p])
			f.colmax[c] = math.Max(f.colmax[c], v)
			f.colmax[f.ai[p]] = math.Max(f.colmax[f.ai[p]], v)
		}
	}
	tol := f.PivotTol
	if tol <= 0 {
		tol = 1e-8
	}

	copy(f.next, f.lp[:n])
	for k := 0; k < n; k++ {
		// pattern of row k of 𝐋 in topological order
		ny := 0
		f.d[k] = 0
		for p := f.ap[k]; p < f.ap[k+1]; p++ {
			i := f.ai[p]
			if i == k {
				f.d[k] = f.ax[p]
				continue
			}
			f.y[i] = f.ax[p]
			ns := 0
			for j := i; j != -1 && j < k && !f.mark[j]; j = f.etree[j] {
				f.mark[j] = true
				f.stack[ns] = j
				ns++
			}
			for ns > 0 {
				ns--
				f.yidx[ny] = f.stack[ns]
				ny++
			}
		}

		for t := ny - 1; t >= 0; t-- {
			c := f.yidx[t]
			yc := f.y[c]
			end := f.next[c]
			for p := f.lp[c]; p < end; p++ {
				f.y[f.li[p]] -= f.lx[p] * yc
			}
			f.li[end] = k
			f.lx[end] = yc * f.dinv[c]
			f.d[k] -= yc * f.lx[end]
			f.next[c]++
			f.y[c] = 0
			f.mark[c] = false
		}

		dk := f.d[k]
		if math.Abs(dk) <= tol*f.colmax[k] || math.IsNaN(dk) {
			return errors.Wrapf(ErrBreakdown, "pivot %d of %d is %g", k, n, dk)
		}
		if dk > 0 {
			f.in.Pos++
		} else {
			f.in.Neg++
		}
		f.dinv[k] = 1 / dk
	}
	f.ok = true
	return nil
}

// Inertia returns the eigenvalue sign counts of the factorized matrix.
func (f *Sparse) Inertia() Inertia { return f.in }

// SolveVecTo solves 𝐀x = b into dst. dst and b may alias.
func (f *Sparse) SolveVecTo(dst, b []float64) error {
	if !f.ok {
		return ErrNotFactorized
	}
	n := f.n
	if len(dst) != n || len(b) != n {
		panic("dimension mismatch")
	}
	x := f.x
	for k, v := range f.perm {
		x[k] = b[v]
	}
	for i := 0; i < n; i++ {
		for p := f.lp[i]; p < f.lp[i+1]; p++ {
			x[f.li[p]] -= f.lx[p] * x[i]
		}
	}
	for i := range x {
		x[i] *= f.dinv[i]
	}
	for i := n - 1; i >= 0; i-- {
		for p := f.lp[i]; p < f.lp[i+1]; p++ {
			x[i] -= f.lx[p] * x[f.li[p]]
		}
	}
	for k, v := range f.perm {
		dst[v] = x[k]
	}
	return nil
}

type degreeNode struct {
	deg, v int
	late   bool
}

type degreeHeap []degreeNode

func (h degreeHeap) Len() int { return len(h) }
func (h degreeHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.late != b.late {
		return b.late
	}
	if a.deg != b.deg {
		return a.deg < b.deg
	}
	return a.v < b.v
}
func (h degreeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *degreeHeap) Push(x any)   { *h = append(*h, x.(degreeNode)) }
func (h *degreeHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// minDegree returns the elimination order of the graph adj chosen by
// repeatedly eliminating a node of least degree, nodes below split first.
// Ties go to the smallest index. adj is consumed.
func minDegree(adj []map[int]struct{}, split int) []int {
	n := len(adj)
	h := make(degreeHeap, 0, n)
	for v := range adj {
		h = append(h, degreeNode{len(adj[v]), v, v >= split})
	}
	heap.Init(&h)

	done := make([]bool, n)
	perm := make([]int, 0, n)
	for len(perm) < n {
		e := heap.Pop(&h).(degreeNode)
		v := e.v
		if done[v] || e.deg != len(adj[v]) {
			continue
		}
		done[v] = true
		perm = append(perm, v)

		nb := adj[v]
		for a := range nb {
			delete(adj[a], v)
		}
		// neighbours of v form a clique
		for a := range nb {
			for b := range nb {
				if a != b {
					adj[a][b] = struct{}{}
				}
			}
		}
		for a := range nb {
			heap.Push(&h, degreeNode{len(adj[a]), a, a >= split})
		}
		adj[v] = nil
	}
	return perm
}
