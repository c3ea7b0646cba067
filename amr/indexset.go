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

// IndexSet is an unordered set of cell indices on one grid level. It is the
// sparse representation used for refinement flags while grids are being
// generated.
type IndexSet map[IntVect]struct{}

// NewIndexSet returns an empty set.
func NewIndexSet() IndexSet {
	return make(IndexSet)
}

// Add inserts iv into the set.
func (s IndexSet) Add(iv IntVect) {
	s[iv] = struct{}{}
}

// Has reports whether iv is in the set.
func (s IndexSet) Has(iv IntVect) bool {
	_, ok := s[iv]
	return ok
}

// Len returns the number of cells in the set.
func (s IndexSet) Len() int {
	return len(s)
}

// Union adds all cells of o to s.
func (s IndexSet) Union(o IndexSet) {
	for iv := range o {
		s[iv] = struct{}{}
	}
}

// AddBox inserts every cell of b into the set.
func (s IndexSet) AddBox(b Box) {
	b.ForEach(s.Add)
}

// Clip removes every cell that lies outside b.
func (s IndexSet) Clip(b Box) {
	for iv := range s {
		if !b.Contains(iv) {
			delete(s, iv)
		}
	}
}

// Grown returns a new set where every cell has been dilated by n cells in
// each direction, clipped to the domain box.
func (s IndexSet) Grown(n int, domain Box) IndexSet {
	out := make(IndexSet, len(s))
	for iv := range s {
		for dj := -n; dj <= n; dj++ {
			for di := -n; di <= n; di++ {
				p := iv.Shift(di, dj)
				if domain.Contains(p) {
					out[p] = struct{}{}
				}
			}
		}
	}
	return out
}

// Copy returns an independent copy of the set.
func (s IndexSet) Copy() IndexSet {
	out := make(IndexSet, len(s))
	for iv := range s {
		out[iv] = struct{}{}
	}
	return out
}

// Coarsened returns the set of coarse cells containing at least one member
// of s under refinement ratio r.
func (s IndexSet) Coarsened(r int) IndexSet {
	out := make(IndexSet)
	for iv := range s {
		out[iv.Coarsen(r)] = struct{}{}
	}
	return out
}

// MinBox returns the smallest box containing every cell in the set.
func (s IndexSet) MinBox() Box {
	if len(s) == 0 {
		return Box{}
	}
	first := true
	var b Box
	for iv := range s {
		if first {
			b = Box{Lo: iv, Hi: iv.Shift(1, 1)}
			first = false
			continue
		}
		b.Lo.I = minInt(b.Lo.I, iv.I)
		b.Lo.J = minInt(b.Lo.J, iv.J)
		b.Hi.I = maxInt(b.Hi.I, iv.I+1)
		b.Hi.J = maxInt(b.Hi.J, iv.J+1)
	}
	return b
}

// Sorted returns the cells in deterministic row-major order. Grid
// generation iterates this slice so that the resulting layouts do not
// depend on map iteration order.
func (s IndexSet) Sorted() []IntVect {
	out := make([]IntVect, 0, len(s))
	for iv := range s {
		out = append(out, iv)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].J != out[b].J {
			return out[a].J < out[b].J
		}
		return out[a].I < out[b].I
	})
	return out
}
