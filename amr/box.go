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

// Package amr implements the block-structured adaptive mesh hierarchy:
// index-space boxes, disjoint box layouts, per-cell masks and mesh fields,
// and the level-by-level regrid machinery that the simulation driver
// sequences.
package amr

import (
	"fmt"

	"github.com/ctessum/geom"
)

// IntVect is a position in the two-dimensional cell index space of a grid
// level.
type IntVect struct {
	I, J int
}

// Shift returns the IntVect offset by (di, dj).
func (iv IntVect) Shift(di, dj int) IntVect {
	return IntVect{I: iv.I + di, J: iv.J + dj}
}

// Refine returns the lower-left fine-level index corresponding to iv when
// the level is refined by ratio r.
func (iv IntVect) Refine(r int) IntVect {
	return IntVect{I: iv.I * r, J: iv.J * r}
}

// Coarsen returns the coarse-level index containing iv when the level is
// coarsened by ratio r.
func (iv IntVect) Coarsen(r int) IntVect {
	return IntVect{I: floorDiv(iv.I, r), J: floorDiv(iv.J, r)}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// Box is a rectangular region in index space. Lo is inclusive and Hi is
// exclusive, so the box covers cells Lo.I <= i < Hi.I, Lo.J <= j < Hi.J.
type Box struct {
	Lo, Hi IntVect
}

// NewBox returns the box spanning [ilo, ihi) x [jlo, jhi).
func NewBox(ilo, jlo, ihi, jhi int) Box {
	return Box{Lo: IntVect{I: ilo, J: jlo}, Hi: IntVect{I: ihi, J: jhi}}
}

// Empty reports whether the box contains no cells.
func (b Box) Empty() bool {
	return b.Hi.I <= b.Lo.I || b.Hi.J <= b.Lo.J
}

// NumPts returns the number of cells in the box.
func (b Box) NumPts() int64 {
	if b.Empty() {
		return 0
	}
	return int64(b.Hi.I-b.Lo.I) * int64(b.Hi.J-b.Lo.J)
}

// Size returns the box extent in each direction.
func (b Box) Size() IntVect {
	return IntVect{I: b.Hi.I - b.Lo.I, J: b.Hi.J - b.Lo.J}
}

// Contains reports whether cell iv lies inside the box.
func (b Box) Contains(iv IntVect) bool {
	return iv.I >= b.Lo.I && iv.I < b.Hi.I && iv.J >= b.Lo.J && iv.J < b.Hi.J
}

// ContainsBox reports whether o lies entirely inside b.
func (b Box) ContainsBox(o Box) bool {
	if o.Empty() {
		return true
	}
	return o.Lo.I >= b.Lo.I && o.Lo.J >= b.Lo.J && o.Hi.I <= b.Hi.I && o.Hi.J <= b.Hi.J
}

// Intersects reports whether the two boxes share at least one cell.
func (b Box) Intersects(o Box) bool {
	return !b.Intersection(o).Empty()
}

// Intersection returns the overlap of the two boxes; the result may be
// empty.
func (b Box) Intersection(o Box) Box {
	out := Box{
		Lo: IntVect{I: maxInt(b.Lo.I, o.Lo.I), J: maxInt(b.Lo.J, o.Lo.J)},
		Hi: IntVect{I: minInt(b.Hi.I, o.Hi.I), J: minInt(b.Hi.J, o.Hi.J)},
	}
	if out.Empty() {
		return Box{}
	}
	return out
}

// Grow expands the box by n cells in every direction (or shrinks it for
// negative n).
func (b Box) Grow(n int) Box {
	return Box{
		Lo: IntVect{I: b.Lo.I - n, J: b.Lo.J - n},
		Hi: IntVect{I: b.Hi.I + n, J: b.Hi.J + n},
	}
}

// Refine maps the box to the next finer level with refinement ratio r.
func (b Box) Refine(r int) Box {
	return Box{Lo: b.Lo.Refine(r), Hi: b.Hi.Refine(r)}
}

// Coarsen maps the box to the next coarser level with refinement ratio r.
// The result covers every coarse cell that overlaps b.
func (b Box) Coarsen(r int) Box {
	return Box{
		Lo: b.Lo.Coarsen(r),
		Hi: IntVect{I: ceilDiv(b.Hi.I, r), J: ceilDiv(b.Hi.J, r)},
	}
}

func ceilDiv(a, b int) int {
	return -floorDiv(-a, b)
}

// ForEach calls f for every cell in the box, in row-major order.
func (b Box) ForEach(f func(IntVect)) {
	for j := b.Lo.J; j < b.Hi.J; j++ {
		for i := b.Lo.I; i < b.Hi.I; i++ {
			f(IntVect{I: i, J: j})
		}
	}
}

// Bounds returns the physical-space bounds of the box for a level with grid
// spacing dx and domain origin at index (0, 0).
func (b Box) Bounds(origin geom.Point, dx float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: origin.X + float64(b.Lo.I)*dx, Y: origin.Y + float64(b.Lo.J)*dx},
		Max: geom.Point{X: origin.X + float64(b.Hi.I)*dx, Y: origin.Y + float64(b.Hi.J)*dx},
	}
}

// CellBounds returns the physical-space bounds of a single cell.
func CellBounds(iv IntVect, origin geom.Point, dx float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: origin.X + float64(iv.I)*dx, Y: origin.Y + float64(iv.J)*dx},
		Max: geom.Point{X: origin.X + float64(iv.I+1)*dx, Y: origin.Y + float64(iv.J+1)*dx},
	}
}

// CellPolygon returns the physical-space outline of a single cell.
func CellPolygon(iv IntVect, origin geom.Point, dx float64) geom.Polygon {
	x0 := origin.X + float64(iv.I)*dx
	y0 := origin.Y + float64(iv.J)*dx
	return geom.Polygon{{
		{X: x0, Y: y0},
		{X: x0 + dx, Y: y0},
		{X: x0 + dx, Y: y0 + dx},
		{X: x0, Y: y0 + dx},
	}}
}

func (b Box) String() string {
	return fmt.Sprintf("[(%d,%d)-(%d,%d)]", b.Lo.I, b.Lo.J, b.Hi.I, b.Hi.J)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
