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

import "testing"

func TestBoxIntersection(t *testing.T) {
	a := NewBox(0, 0, 8, 8)
	b := NewBox(4, 4, 12, 12)
	want := NewBox(4, 4, 8, 8)
	if got := a.Intersection(b); got != want {
		t.Errorf("intersection: got %v, want %v", got, want)
	}
	c := NewBox(8, 8, 16, 16)
	if got := a.Intersection(c); !got.Empty() {
		t.Errorf("touching boxes should not intersect, got %v", got)
	}
}

func TestBoxRefineCoarsenRoundTrip(t *testing.T) {
	b := NewBox(2, 3, 6, 9)
	for _, r := range []int{2, 4} {
		if got := b.Refine(r).Coarsen(r); got != b {
			t.Errorf("refine then coarsen by %d: got %v, want %v", r, got, b)
		}
	}
}

func TestBoxCoarsenCoversOverlaps(t *testing.T) {
	b := NewBox(1, 1, 7, 7)
	got := b.Coarsen(2)
	want := NewBox(0, 0, 4, 4)
	if got != want {
		t.Errorf("coarsen: got %v, want %v", got, want)
	}
}

func TestBoxNumPts(t *testing.T) {
	if n := NewBox(0, 0, 16, 8).NumPts(); n != 128 {
		t.Errorf("got %d cells, want 128", n)
	}
	if n := (Box{}).NumPts(); n != 0 {
		t.Errorf("empty box has %d cells", n)
	}
}

func TestIndexSetGrown(t *testing.T) {
	domain := NewBox(0, 0, 8, 8)
	s := NewIndexSet()
	s.Add(IntVect{I: 0, J: 0})
	g := s.Grown(1, domain)
	if g.Len() != 4 {
		t.Errorf("corner cell grown by 1 inside domain: got %d cells, want 4", g.Len())
	}
	if !g.Has(IntVect{I: 1, J: 1}) {
		t.Error("grown set missing diagonal neighbor")
	}
	if g.Has(IntVect{I: -1, J: 0}) {
		t.Error("grown set escaped the domain")
	}
}

func TestIndexSetMinBox(t *testing.T) {
	s := NewIndexSet()
	s.Add(IntVect{I: 2, J: 5})
	s.Add(IntVect{I: 7, J: 1})
	want := NewBox(2, 1, 8, 6)
	if got := s.MinBox(); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCellMaskCopySpatial(t *testing.T) {
	src := NewCellMask(NewBox(0, 0, 8, 8))
	src.Set(IntVect{I: 5, J: 5}, true)
	src.Set(IntVect{I: 1, J: 1}, true)

	dst := NewCellMask(NewBox(4, 4, 12, 12))
	dst.CopyFrom(src)

	if !dst.Get(IntVect{I: 5, J: 5}) {
		t.Error("flag in the overlap was not copied")
	}
	if dst.Get(IntVect{I: 1, J: 1}) {
		t.Error("flag outside the destination region leaked in")
	}
	if dst.Count() != 1 {
		t.Errorf("got %d flags, want 1", dst.Count())
	}
}

func TestLayoutMaskRoundTrip(t *testing.T) {
	lay := NewBoxLayout(0, []Box{NewBox(0, 0, 4, 4), NewBox(4, 0, 8, 4)})
	m := NewLayoutMask(lay)
	cells := []IntVect{{I: 1, J: 2}, {I: 6, J: 3}}
	for _, iv := range cells {
		m.Set(iv, true)
	}
	s := m.IndexSet()
	if s.Len() != len(cells) {
		t.Fatalf("got %d cells, want %d", s.Len(), len(cells))
	}
	for _, iv := range cells {
		if !s.Has(iv) {
			t.Errorf("missing cell %v", iv)
		}
	}
}

func TestLevelFieldSpatialCopy(t *testing.T) {
	src := NewLevelField(NewBoxLayout(0, []Box{NewBox(0, 0, 8, 8)}), 1)
	src.Apply(0, func(iv IntVect) float64 { return float64(iv.I + 10*iv.J) })

	dst := NewLevelField(NewBoxLayout(0, []Box{NewBox(2, 2, 6, 6), NewBox(6, 2, 10, 6)}), 1)
	dst.Fill(0, -1)
	if err := src.CopyTo(dst); err != nil {
		t.Fatal(err)
	}

	if v, ok := dst.At(0, IntVect{I: 3, J: 4}); !ok || v != 43 {
		t.Errorf("overlap cell: got %g (found %v), want 43", v, ok)
	}
	if v, ok := dst.At(0, IntVect{I: 9, J: 3}); !ok || v != -1 {
		t.Errorf("cell outside source should keep its value, got %g (found %v)", v, ok)
	}
}

func TestBalanceEvensLoads(t *testing.T) {
	loads := []int64{8, 8, 8, 8, 4, 4}
	ranks := Balance(loads, 2)
	sums := make([]int64, 2)
	for i, r := range ranks {
		if r < 0 || r > 1 {
			t.Fatalf("box %d assigned to rank %d", i, r)
		}
		sums[r] += loads[i]
	}
	if sums[0] != sums[1] {
		t.Errorf("rank loads %v are not even", sums)
	}
}
