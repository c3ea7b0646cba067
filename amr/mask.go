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

// CellMask is a dense boolean flag per cell over one box. It is the
// per-patch storage behind LayoutMask.
type CellMask struct {
	Region Box
	Bits   []bool
}

// NewCellMask returns a mask over b with every bit cleared.
func NewCellMask(b Box) *CellMask {
	return &CellMask{Region: b, Bits: make([]bool, b.NumPts())}
}

func (m *CellMask) offset(iv IntVect) int {
	return (iv.J-m.Region.Lo.J)*(m.Region.Hi.I-m.Region.Lo.I) + (iv.I - m.Region.Lo.I)
}

// Get returns the flag at iv; cells outside the mask region read as false.
func (m *CellMask) Get(iv IntVect) bool {
	if !m.Region.Contains(iv) {
		return false
	}
	return m.Bits[m.offset(iv)]
}

// Set writes the flag at iv. Cells outside the mask region are ignored.
func (m *CellMask) Set(iv IntVect, v bool) {
	if !m.Region.Contains(iv) {
		return
	}
	m.Bits[m.offset(iv)] = v
}

// Count returns the number of set cells.
func (m *CellMask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Clear resets every bit.
func (m *CellMask) Clear() {
	for i := range m.Bits {
		m.Bits[i] = false
	}
}

// CopyFrom copies flags from src over the spatial intersection of the two
// mask regions. Cells of m outside src are left unchanged.
func (m *CellMask) CopyFrom(src *CellMask) {
	overlap := m.Region.Intersection(src.Region)
	overlap.ForEach(func(iv IntVect) {
		m.Bits[m.offset(iv)] = src.Bits[src.offset(iv)]
	})
}

// OrFrom sets every bit of m that is set in src over the spatial
// intersection of the two mask regions.
func (m *CellMask) OrFrom(src *CellMask) {
	overlap := m.Region.Intersection(src.Region)
	overlap.ForEach(func(iv IntVect) {
		if src.Bits[src.offset(iv)] {
			m.Bits[m.offset(iv)] = true
		}
	})
}

// IndexSet returns the set cells as a sparse index set.
func (m *CellMask) IndexSet() IndexSet {
	out := NewIndexSet()
	m.Region.ForEach(func(iv IntVect) {
		if m.Bits[m.offset(iv)] {
			out.Add(iv)
		}
	})
	return out
}
