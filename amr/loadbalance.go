/*
Copyright © 2026 the discharge authors.
This file is part of discharge.

discharge is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

discharge is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with discharge.  If not, see <http://www.gnu.org/licenses/>.
*/

package amr

import "sort"

// CellCountLoads returns the default computational load estimate for each
// box of a layout, the cell count.
func CellCountLoads(layout *BoxLayout) []int64 {
	loads := make([]int64, layout.NumBoxes())
	for i, b := range layout.Boxes {
		loads[i] = b.NumPts()
	}
	return loads
}

// Balance assigns each box to a rank so that the per-rank load sums are as
// even as the greedy longest-processing-time heuristic makes them. The
// assignment is deterministic for a given load vector.
func Balance(loads []int64, nranks int) []int {
	if nranks < 1 {
		nranks = 1
	}
	order := make([]int, len(loads))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return loads[order[a]] > loads[order[b]]
	})
	rankLoad := make([]int64, nranks)
	out := make([]int, len(loads))
	for _, i := range order {
		best := 0
		for r := 1; r < nranks; r++ {
			if rankLoad[r] < rankLoad[best] {
				best = r
			}
		}
		out[i] = best
		rankLoad[best] += loads[i]
	}
	return out
}
