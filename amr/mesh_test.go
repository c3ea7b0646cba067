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

func testMesh(t *testing.T, depth int) *Mesh {
	t.Helper()
	m := &Mesh{
		CoarseDims:     IntVect{I: 16, J: 16},
		CoarseDx:       1.0 / 16,
		MaxAmrDepth:    depth,
		RefRatios:      []int{2, 2, 2, 2}[:depth],
		MaxBoxSize:     8,
		BlockingFactor: 4,
		NestingBuffer:  1,
		NumGhost:       1,
		NumRanks:       1,
	}
	if err := m.Build(); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMeshBuild(t *testing.T) {
	m := testMesh(t, 2)
	if m.FinestLevel() != 0 {
		t.Errorf("fresh mesh has finest level %d, want 0", m.FinestLevel())
	}
	if n := m.Layout(0).NumPts(); n != 256 {
		t.Errorf("coarsest level has %d cells, want 256", n)
	}
	if err := m.Layout(0).CheckDisjoint(); err != nil {
		t.Error(err)
	}
	if got, want := m.Dx(2), 1.0/64; got != want {
		t.Errorf("level 2 spacing: got %g, want %g", got, want)
	}
	if got, want := m.Domain(1), NewBox(0, 0, 32, 32); got != want {
		t.Errorf("level 1 domain: got %v, want %v", got, want)
	}
}

func TestMeshBuildRejectsBadRatio(t *testing.T) {
	m := &Mesh{
		CoarseDims:  IntVect{I: 16, J: 16},
		CoarseDx:    1,
		MaxAmrDepth: 1,
		RefRatios:   []int{3},
		MaxBoxSize:  8,
	}
	if err := m.Build(); err == nil {
		t.Error("refinement ratio 3 accepted")
	}
}

func TestRegridAddsOneLevel(t *testing.T) {
	m := testMesh(t, 3)
	tags := []IndexSet{NewIndexSet()}
	tags[0].AddBox(NewBox(6, 6, 10, 10))

	finest := m.Regrid(tags, 0, m.MaxAmrDepth, nil)
	if finest != 1 {
		t.Fatalf("finest level after regrid: got %d, want 1", finest)
	}
	lay := m.Layout(1)
	if err := lay.CheckDisjoint(); err != nil {
		t.Error(err)
	}
	// Every tagged cell's refined footprint must be covered.
	for _, iv := range tags[0].Sorted() {
		fine := Box{Lo: iv.Refine(2), Hi: iv.Shift(1, 1).Refine(2)}
		if !lay.ContainsBox(fine) {
			t.Errorf("refined footprint of tagged cell %v not covered", iv)
		}
	}
}

func TestRegridGrowthBound(t *testing.T) {
	// Flags on the coarsest level only can add at most one level per
	// regrid, no matter how deep the hierarchy is allowed to go.
	m := testMesh(t, 3)
	tags := []IndexSet{NewIndexSet()}
	tags[0].AddBox(NewBox(0, 0, 16, 16))
	if finest := m.Regrid(tags, 0, m.MaxAmrDepth, nil); finest != 1 {
		t.Fatalf("got finest level %d, want 1", finest)
	}

	tags = []IndexSet{NewIndexSet(), NewIndexSet()}
	tags[0].AddBox(NewBox(0, 0, 16, 16))
	tags[1].AddBox(NewBox(0, 0, 32, 32))
	if finest := m.Regrid(tags, 0, m.MaxAmrDepth, nil); finest != 2 {
		t.Fatalf("got finest level %d, want 2", finest)
	}
}

func TestRegridHonorsHardcap(t *testing.T) {
	m := testMesh(t, 3)
	tags := []IndexSet{NewIndexSet(), NewIndexSet()}
	tags[0].AddBox(NewBox(0, 0, 16, 16))
	tags[1].AddBox(NewBox(0, 0, 32, 32))
	if finest := m.Regrid(tags, 0, 1, nil); finest != 1 {
		t.Errorf("hard cap 1 produced finest level %d", finest)
	}
}

func TestRegridEmptyTagsDropsLevels(t *testing.T) {
	m := testMesh(t, 2)
	tags := []IndexSet{NewIndexSet()}
	tags[0].AddBox(NewBox(4, 4, 8, 8))
	if finest := m.Regrid(tags, 0, m.MaxAmrDepth, nil); finest != 1 {
		t.Fatalf("setup: finest %d", finest)
	}
	if finest := m.Regrid([]IndexSet{NewIndexSet()}, 0, m.MaxAmrDepth, nil); finest != 0 {
		t.Errorf("empty flags should drop to level 0, got %d", finest)
	}
}

func TestRegridNesting(t *testing.T) {
	m := testMesh(t, 2)
	tags := []IndexSet{NewIndexSet(), NewIndexSet()}
	tags[0].AddBox(NewBox(4, 4, 8, 8))
	tags[1].AddBox(NewBox(8, 8, 16, 16))
	m.Regrid(tags, 0, m.MaxAmrDepth, nil)
	finest := m.Regrid(tags, 0, m.MaxAmrDepth, nil)
	if finest != 2 {
		t.Fatalf("got finest level %d, want 2", finest)
	}
	parent := m.Layout(1)
	for _, b := range m.Layout(2).Boxes {
		if !parent.ContainsBox(b.Coarsen(2)) {
			t.Errorf("level 2 box %v does not nest in level 1", b)
		}
	}
}

func TestRegridPreservesLevelsBelowLmin(t *testing.T) {
	m := testMesh(t, 2)
	tags := []IndexSet{NewIndexSet()}
	tags[0].AddBox(NewBox(4, 4, 12, 12))
	m.Regrid(tags, 0, m.MaxAmrDepth, nil)
	before := m.Layout(1)

	tags2 := []IndexSet{NewIndexSet(), NewIndexSet()}
	tags2[0].AddBox(NewBox(4, 4, 12, 12))
	tags2[1].AddBox(NewBox(12, 12, 20, 20))
	m.Regrid(tags2, 2, m.MaxAmrDepth, nil)
	if !m.Layout(1).Equal(before) {
		t.Error("level below the regrid base changed")
	}
}

func TestSetGridsRejectsOverlap(t *testing.T) {
	m := testMesh(t, 1)
	err := m.SetGrids([][]Box{
		{NewBox(0, 0, 16, 16)},
		{NewBox(0, 0, 8, 8), NewBox(4, 4, 12, 12)},
	}, nil, nil)
	if err == nil {
		t.Error("overlapping restart boxes accepted")
	}
}

func TestSetGridsRestoresStoredRanks(t *testing.T) {
	m := testMesh(t, 1)
	m.NumRanks = 2
	boxes := [][]Box{{
		NewBox(0, 0, 8, 8), NewBox(8, 0, 16, 8),
		NewBox(0, 8, 8, 16), NewBox(8, 8, 16, 16),
	}}
	// Deliberately not what Balance would produce for equal loads.
	stored := [][]int{{1, 1, 0, 1}}
	if err := m.SetGrids(boxes, stored, nil); err != nil {
		t.Fatal(err)
	}
	for i, r := range m.Layout(0).Ranks {
		if r != stored[0][i] {
			t.Fatalf("box %d owned by rank %d, want %d", i, r, stored[0][i])
		}
	}

	// A stored rank outside the current rank count forces a rebalance.
	m.NumRanks = 1
	if err := m.SetGrids(boxes, stored, nil); err != nil {
		t.Fatal(err)
	}
	for i, r := range m.Layout(0).Ranks {
		if r != 0 {
			t.Fatalf("box %d owned by rank %d with a single rank", i, r)
		}
	}
}

func TestRealmsShareBoxes(t *testing.T) {
	m := testMesh(t, 1)
	m.NumRanks = 2
	m.RegisterRealm("particles")
	tags := []IndexSet{NewIndexSet()}
	tags[0].AddBox(NewBox(0, 0, 16, 16))
	m.Regrid(tags, 0, m.MaxAmrDepth, func(realm string, lay *BoxLayout) []int64 {
		if realm != "particles" {
			return nil
		}
		// Bias all load onto the first box.
		loads := make([]int64, lay.NumBoxes())
		loads[0] = 1000
		for i := 1; i < len(loads); i++ {
			loads[i] = 1
		}
		return loads
	})
	particles, err := m.Realm("particles")
	if err != nil {
		t.Fatal(err)
	}
	primal, err := m.Realm(PrimalRealm)
	if err != nil {
		t.Fatal(err)
	}
	for l := 0; l <= m.FinestLevel(); l++ {
		p, q := primal.Layout(l), particles.Layout(l)
		if len(p.Boxes) != len(q.Boxes) {
			t.Fatalf("level %d: realms disagree on box count", l)
		}
		for i := range p.Boxes {
			if p.Boxes[i] != q.Boxes[i] {
				t.Errorf("level %d box %d differs between realms", l, i)
			}
		}
	}
}
