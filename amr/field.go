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

import (
	"fmt"
	"math"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// LevelField holds NComp real values per cell over every box of one grid
// level. Data is stored one dense array per box with shape
// (ncomp, nj, ni).
type LevelField struct {
	Layout *BoxLayout
	NComp  int
	Data   []*sparse.DenseArray
}

// NewLevelField returns a zero-initialized field over layout.
func NewLevelField(layout *BoxLayout, ncomp int) *LevelField {
	data := make([]*sparse.DenseArray, layout.NumBoxes())
	for i, b := range layout.Boxes {
		sz := b.Size()
		data[i] = sparse.ZerosDense(ncomp, sz.J, sz.I)
	}
	return &LevelField{Layout: layout, NComp: ncomp, Data: data}
}

// index1d flattens (comp, j, i) for the dense array of box ibox. Elements
// are addressed directly so that zero writes stick and arrays restored from
// disk need no re-initialization.
func (f *LevelField) index1d(ibox, comp int, iv IntVect) int {
	b := f.Layout.Boxes[ibox]
	sz := b.Size()
	return (comp*sz.J+iv.J-b.Lo.J)*sz.I + iv.I - b.Lo.I
}

// Value returns component comp at cell iv of box ibox.
func (f *LevelField) Value(ibox, comp int, iv IntVect) float64 {
	return f.Data[ibox].Elements[f.index1d(ibox, comp, iv)]
}

// SetValue writes component comp at cell iv of box ibox.
func (f *LevelField) SetValue(ibox, comp int, iv IntVect, v float64) {
	f.Data[ibox].Elements[f.index1d(ibox, comp, iv)] = v
}

// At returns component comp at cell iv, searching the layout for the box
// that contains it. The second return is false if no box contains iv.
func (f *LevelField) At(comp int, iv IntVect) (float64, bool) {
	for i, b := range f.Layout.Boxes {
		if b.Contains(iv) {
			return f.Value(i, comp, iv), true
		}
	}
	return 0, false
}

// Fill sets component comp to v in every cell.
func (f *LevelField) Fill(comp int, v float64) {
	for i, b := range f.Layout.Boxes {
		b.ForEach(func(iv IntVect) {
			f.SetValue(i, comp, iv, v)
		})
	}
}

// Apply sets component comp in every cell to fn(iv).
func (f *LevelField) Apply(comp int, fn func(IntVect) float64) {
	for i, b := range f.Layout.Boxes {
		b.ForEach(func(iv IntVect) {
			f.SetValue(i, comp, iv, fn(iv))
		})
	}
}

// CopyTo copies all components into dst by spatial position over the
// intersection of the two layouts. Cells of dst not covered by f are left
// unchanged.
func (f *LevelField) CopyTo(dst *LevelField) error {
	if f.NComp != dst.NComp {
		return fmt.Errorf("amr: field copy with %d components into %d", f.NComp, dst.NComp)
	}
	for di, db := range dst.Layout.Boxes {
		for si, sb := range f.Layout.Boxes {
			overlap := db.Intersection(sb)
			if overlap.Empty() {
				continue
			}
			overlap.ForEach(func(iv IntVect) {
				for c := 0; c < f.NComp; c++ {
					dst.SetValue(di, c, iv, f.Value(si, c, iv))
				}
			})
		}
	}
	return nil
}

// Total returns the sum of component comp over every cell.
func (f *LevelField) Total(comp int) float64 {
	var sum float64
	for i := range f.Data {
		arr := f.Data[i]
		nj, ni := arr.Shape[1], arr.Shape[2]
		off := comp * nj * ni
		sum += floats.Sum(arr.Elements[off : off+nj*ni])
	}
	return sum
}

// MaxAbs returns the largest absolute value of component comp.
func (f *LevelField) MaxAbs(comp int) float64 {
	var m float64
	for i := range f.Data {
		arr := f.Data[i]
		nj, ni := arr.Shape[1], arr.Shape[2]
		off := comp * nj * ni
		for _, v := range arr.Elements[off : off+nj*ni] {
			if a := math.Abs(v); a > m {
				m = a
			}
		}
	}
	return m
}
