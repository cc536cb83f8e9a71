// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

// filterEntry is a (θ, φ) pair forbidding trial points that are worse in both.
type filterEntry struct {
	theta, phi float64
}

// filter is the set of mutually non-dominated pairs rejected by the line search.
type filter []filterEntry

// acceptable reports whether the pair improves on every entry in at least one measure.
func (f filter) acceptable(theta, phi float64) bool {
	for _, e := range f {
		if theta >= e.theta && phi >= e.phi {
			return false
		}
	}
	return true
}

// add inserts the pair and drops the entries it dominates.
// A pair dominated by an existing entry is not inserted.
func (f *filter) add(theta, phi float64) {
	entries := *f
	for _, e := range entries {
		if e.theta <= theta && e.phi <= phi {
			return
		}
	}
	kept := entries[:0]
	for _, e := range entries {
		if !(theta <= e.theta && phi <= e.phi) {
			kept = append(kept, e)
		}
	}
	*f = append(kept, filterEntry{theta: theta, phi: phi})
}

func (f *filter) reset() {
	*f = (*f)[:0]
}
