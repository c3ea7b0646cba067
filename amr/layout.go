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

import "fmt"

// BoxLayout is the set of disjoint boxes that make up one grid level,
// together with the rank that owns each box.
type BoxLayout struct {
	Level int
	Boxes []Box
	Ranks []int
}

// NewBoxLayout returns a layout over the given boxes with every box owned
// by rank 0. Ownership is reassigned by load balancing.
func NewBoxLayout(level int, boxes []Box) *BoxLayout {
	return &BoxLayout{Level: level, Boxes: boxes, Ranks: make([]int, len(boxes))}
}

// NumBoxes returns the number of boxes in the layout.
func (l *BoxLayout) NumBoxes() int {
	return len(l.Boxes)
}

// NumPts returns the total cell count over all boxes.
func (l *BoxLayout) NumPts() int64 {
	var n int64
	for _, b := range l.Boxes {
		n += b.NumPts()
	}
	return n
}

// LocalIndices returns the indices of the boxes owned by rank.
func (l *BoxLayout) LocalIndices(rank int) []int {
	var out []int
	for i, r := range l.Ranks {
		if r == rank {
			out = append(out, i)
		}
	}
	return out
}

// Contains reports whether iv lies in one of the layout's boxes.
func (l *BoxLayout) Contains(iv IntVect) bool {
	for _, b := range l.Boxes {
		if b.Contains(iv) {
			return true
		}
	}
	return false
}

// ContainsBox reports whether every cell of box lies inside the layout.
func (l *BoxLayout) ContainsBox(box Box) bool {
	if box.Empty() {
		return true
	}
	// The layouts produced by grid generation are unions of disjoint
	// tiles, so a cell-by-cell check is only needed for the remainder
	// after subtracting whole-box containment.
	for _, b := range l.Boxes {
		if b.ContainsBox(box) {
			return true
		}
	}
	covered := true
	box.ForEach(func(iv IntVect) {
		if covered && !l.Contains(iv) {
			covered = false
		}
	})
	return covered
}

// Equal reports whether the two layouts cover the same boxes with the same
// ownership.
func (l *BoxLayout) Equal(o *BoxLayout) bool {
	if l == nil || o == nil {
		return l == o
	}
	if l.Level != o.Level || len(l.Boxes) != len(o.Boxes) {
		return false
	}
	for i := range l.Boxes {
		if l.Boxes[i] != o.Boxes[i] || l.Ranks[i] != o.Ranks[i] {
			return false
		}
	}
	return true
}

// CheckDisjoint returns an error if any two boxes in the layout overlap.
func (l *BoxLayout) CheckDisjoint() error {
	for i := 0; i < len(l.Boxes); i++ {
		for j := i + 1; j < len(l.Boxes); j++ {
			if l.Boxes[i].Intersects(l.Boxes[j]) {
				return fmt.Errorf("amr: level %d boxes %v and %v overlap",
					l.Level, l.Boxes[i], l.Boxes[j])
			}
		}
	}
	return nil
}

// LayoutMask is a dense boolean field over every box of a layout. It is
// the representation used for live refinement flags and for caching them
// across a regrid.
type LayoutMask struct {
	Layout *BoxLayout
	Masks  []*CellMask
}

// NewLayoutMask returns a cleared mask over layout.
func NewLayoutMask(layout *BoxLayout) *LayoutMask {
	masks := make([]*CellMask, layout.NumBoxes())
	for i, b := range layout.Boxes {
		masks[i] = NewCellMask(b)
	}
	return &LayoutMask{Layout: layout, Masks: masks}
}

// Get returns the flag at iv, or false if no box contains it.
func (m *LayoutMask) Get(iv IntVect) bool {
	for _, cm := range m.Masks {
		if cm.Region.Contains(iv) {
			return cm.Get(iv)
		}
	}
	return false
}

// Set writes the flag at iv in whichever box contains it.
func (m *LayoutMask) Set(iv IntVect, v bool) {
	for _, cm := range m.Masks {
		if cm.Region.Contains(iv) {
			cm.Set(iv, v)
			return
		}
	}
}

// Count returns the number of set cells over the whole layout.
func (m *LayoutMask) Count() int {
	n := 0
	for _, cm := range m.Masks {
		n += cm.Count()
	}
	return n
}

// Clear resets every bit in every box.
func (m *LayoutMask) Clear() {
	for _, cm := range m.Masks {
		cm.Clear()
	}
}

// CopyTo copies flags into dst by spatial position. Cells of dst with no
// counterpart in m are left unchanged; the two layouts need not match.
func (m *LayoutMask) CopyTo(dst *LayoutMask) {
	for _, d := range dst.Masks {
		for _, s := range m.Masks {
			if d.Region.Intersects(s.Region) {
				d.CopyFrom(s)
			}
		}
	}
}

// OrInto sets into dst every flag set in m, by spatial position.
func (m *LayoutMask) OrInto(dst *LayoutMask) {
	for _, d := range dst.Masks {
		for _, s := range m.Masks {
			if d.Region.Intersects(s.Region) {
				d.OrFrom(s)
			}
		}
	}
}

// AddSet sets the flag for every cell of s that lies inside the layout.
func (m *LayoutMask) AddSet(s IndexSet) {
	for iv := range s {
		m.Set(iv, true)
	}
}

// IndexSet returns every set cell as a sparse index set.
func (m *LayoutMask) IndexSet() IndexSet {
	out := NewIndexSet()
	for _, cm := range m.Masks {
		out.Union(cm.IndexSet())
	}
	return out
}
