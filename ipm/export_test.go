// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import "math"

// InteriorMargins returns the smallest distance of the internal iterate to
// its relaxed bounds and the smallest bound multiplier.
func (info *IterInfo) InteriorMargins() (dist, minZ float64) {
	d := info.d
	dist, minZ = math.Inf(1), math.Inf(1)
	for i, w := range d.cur.w {
		if d.hasL[i] {
			dist = math.Min(dist, w-d.l[i])
			minZ = math.Min(minZ, d.cur.zl[i])
		}
		if d.hasU[i] {
			dist = math.Min(dist, d.u[i]-w)
			minZ = math.Min(minZ, d.cur.zu[i])
		}
	}
	return dist, minZ
}
