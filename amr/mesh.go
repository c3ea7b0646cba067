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
	"sort"

	"github.com/ctessum/geom"
)

// PrimalRealm is the realm every mesh carries. Solvers that do not ask for
// their own load balance run on it.
const PrimalRealm = "primal"

// Realm is a named copy of the grid hierarchy with its own rank ownership.
// All realms share the same boxes; only the box-to-rank assignment
// differs.
type Realm struct {
	Name    string
	Layouts []*BoxLayout
}

// Layout returns the realm's layout on the given level.
func (r *Realm) Layout(level int) *BoxLayout {
	return r.Layouts[level]
}

// LoadFunc estimates the computational load of each box in a layout. A nil
// LoadFunc means cell-count loads.
type LoadFunc func(realm string, layout *BoxLayout) []int64

// Mesh is the adaptive grid hierarchy: a fixed coarsest domain and up to
// MaxAmrDepth finer levels whose box layouts change at each regrid.
type Mesh struct {
	Origin         geom.Point
	CoarseDims     IntVect
	CoarseDx       float64
	MaxAmrDepth    int
	RefRatios      []int
	MaxBoxSize     int
	BlockingFactor int
	NestingBuffer  int
	NumGhost       int
	NumRanks       int

	domains     []Box
	dx          []float64
	finestLevel int
	realms      map[string]*Realm
	built       bool
}

// Build validates the mesh parameters, computes the per-level problem
// domains and grid spacings, and creates the coarsest-level layout. It
// must be called before any other method.
func (m *Mesh) Build() error {
	if m.CoarseDims.I <= 0 || m.CoarseDims.J <= 0 {
		return fmt.Errorf("amr: coarsest domain dimensions %v must be positive", m.CoarseDims)
	}
	if m.CoarseDx <= 0 {
		return fmt.Errorf("amr: coarsest grid spacing %g must be positive", m.CoarseDx)
	}
	if m.MaxAmrDepth < 0 {
		return fmt.Errorf("amr: maximum depth %d must be non-negative", m.MaxAmrDepth)
	}
	if len(m.RefRatios) < m.MaxAmrDepth {
		return fmt.Errorf("amr: %d refinement ratios given for depth %d",
			len(m.RefRatios), m.MaxAmrDepth)
	}
	for _, r := range m.RefRatios {
		if r != 2 && r != 4 {
			return fmt.Errorf("amr: refinement ratio %d not supported (must be 2 or 4)", r)
		}
	}
	if m.MaxBoxSize <= 0 {
		return fmt.Errorf("amr: maximum box size %d must be positive", m.MaxBoxSize)
	}
	if m.BlockingFactor <= 0 {
		m.BlockingFactor = 1
	}
	if m.MaxBoxSize%m.BlockingFactor != 0 {
		return fmt.Errorf("amr: maximum box size %d not a multiple of blocking factor %d",
			m.MaxBoxSize, m.BlockingFactor)
	}
	if m.NestingBuffer < 0 {
		return fmt.Errorf("amr: nesting buffer %d must be non-negative", m.NestingBuffer)
	}
	if m.NumRanks < 1 {
		m.NumRanks = 1
	}

	m.domains = make([]Box, m.MaxAmrDepth+1)
	m.dx = make([]float64, m.MaxAmrDepth+1)
	m.domains[0] = NewBox(0, 0, m.CoarseDims.I, m.CoarseDims.J)
	m.dx[0] = m.CoarseDx
	for l := 1; l <= m.MaxAmrDepth; l++ {
		r := m.RefRatios[l-1]
		m.domains[l] = m.domains[l-1].Refine(r)
		m.dx[l] = m.dx[l-1] / float64(r)
	}

	m.realms = map[string]*Realm{PrimalRealm: {Name: PrimalRealm}}
	m.setLevelBoxes([][]Box{m.tileDomain(m.domains[0])}, nil)
	m.built = true
	return nil
}

// RegisterRealm creates a realm with its own load balance. Registering the
// same name twice is a no-op.
func (m *Mesh) RegisterRealm(name string) {
	if _, ok := m.realms[name]; ok {
		return
	}
	realm := &Realm{Name: name}
	if primal := m.realms[PrimalRealm]; primal != nil {
		realm.Layouts = make([]*BoxLayout, len(primal.Layouts))
		for l, pl := range primal.Layouts {
			lay := NewBoxLayout(l, pl.Boxes)
			copy(lay.Ranks, pl.Ranks)
			realm.Layouts[l] = lay
		}
	}
	m.realms[name] = realm
}

// Realm returns the named realm.
func (m *Mesh) Realm(name string) (*Realm, error) {
	r, ok := m.realms[name]
	if !ok {
		return nil, fmt.Errorf("amr: realm %q not registered", name)
	}
	return r, nil
}

// RealmNames returns the registered realm names in deterministic order.
func (m *Mesh) RealmNames() []string {
	names := make([]string, 0, len(m.realms))
	for n := range m.realms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Layout returns the primal-realm layout on the given level.
func (m *Mesh) Layout(level int) *BoxLayout {
	return m.realms[PrimalRealm].Layouts[level]
}

// FinestLevel returns the index of the current finest grid level.
func (m *Mesh) FinestLevel() int {
	return m.finestLevel
}

// Domain returns the problem domain of the given level.
func (m *Mesh) Domain(level int) Box {
	return m.domains[level]
}

// Dx returns the grid spacing of the given level.
func (m *Mesh) Dx(level int) float64 {
	return m.dx[level]
}

// RefRatio returns the refinement ratio between level and level+1.
func (m *Mesh) RefRatio(level int) int {
	return m.RefRatios[level]
}

// NumPts returns the total cell count of the hierarchy.
func (m *Mesh) NumPts() int64 {
	var n int64
	for l := 0; l <= m.finestLevel; l++ {
		n += m.Layout(l).NumPts()
	}
	return n
}

// Regrid rebuilds levels lmin and finer from the given refinement flags
// and returns the new finest level. tags[l] holds flags on level l
// requesting refinement of the covered region on level l+1, so at most one
// level can be added beyond the levels that carry flags. hardcap bounds
// the finest level that may be generated; levels coarser than lmin are
// left untouched. loads may be nil for cell-count balancing.
func (m *Mesh) Regrid(tags []IndexSet, lmin, hardcap int, loads LoadFunc) int {
	// At most one level can be added per regrid.
	deepest := minInt(minInt(hardcap, m.MaxAmrDepth), m.finestLevel+1)
	start := minInt(maxInt(lmin, 1), m.finestLevel+1)

	newBoxes := make([][]Box, 0, deepest+1)
	for l := 0; l < start; l++ {
		newBoxes = append(newBoxes, m.Layout(l).Boxes)
	}
	for l := start; l <= deepest; l++ {
		if l-1 >= len(tags) || tags[l-1].Len() == 0 {
			break
		}
		parent := NewBoxLayout(l-1, newBoxes[l-1])
		boxes := m.generateBoxes(tags[l-1], parent, l)
		if len(boxes) == 0 {
			break
		}
		newBoxes = append(newBoxes, boxes)
	}

	m.setLevelBoxes(newBoxes, loads)
	return m.finestLevel
}

// SetGrids replaces the whole hierarchy with externally supplied boxes,
// used when restoring a checkpointed grid layout. When ranks is non-nil
// it carries the stored primal-realm owner of every box; the stored
// assignment is kept as long as it fits the current rank count, otherwise
// the level is rebalanced.
func (m *Mesh) SetGrids(boxes [][]Box, ranks [][]int, loads LoadFunc) error {
	if len(boxes) == 0 || len(boxes) > m.MaxAmrDepth+1 {
		return fmt.Errorf("amr: %d grid levels supplied for maximum depth %d",
			len(boxes), m.MaxAmrDepth)
	}
	if ranks != nil && len(ranks) != len(boxes) {
		return fmt.Errorf("amr: ranks on %d levels for %d grid levels", len(ranks), len(boxes))
	}
	for l, lvl := range boxes {
		lay := NewBoxLayout(l, lvl)
		if err := lay.CheckDisjoint(); err != nil {
			return err
		}
		for _, b := range lvl {
			if !m.domains[l].ContainsBox(b) {
				return fmt.Errorf("amr: level %d box %v outside domain %v", l, b, m.domains[l])
			}
		}
		if ranks != nil && len(ranks[l]) != len(lvl) {
			return fmt.Errorf("amr: level %d has %d ranks for %d boxes", l, len(ranks[l]), len(lvl))
		}
	}
	m.setLevelBoxes(boxes, loads)
	if ranks == nil {
		return nil
	}
	for l, lvl := range ranks {
		if !m.ranksFit(lvl) {
			continue
		}
		m.realms[PrimalRealm].Layouts[l].Ranks = lvl
	}
	return nil
}

// ranksFit reports whether a stored rank assignment is usable under the
// current rank count.
func (m *Mesh) ranksFit(ranks []int) bool {
	for _, r := range ranks {
		if r < 0 || r >= m.NumRanks {
			return false
		}
	}
	return true
}

// generateBoxes builds the level-l boxes requested by flags on level l-1.
// Flags too close to the parent layout boundary for proper nesting are
// discarded; the surviving flag footprint is refined and covered with
// tiles of at most MaxBoxSize cells, each clipped to its parent box so the
// new level nests inside the parent.
func (m *Mesh) generateBoxes(tags IndexSet, parent *BoxLayout, l int) []Box {
	r := m.RefRatios[l-1]
	coarseDomain := m.domains[l-1]

	nested := NewIndexSet()
	for iv := range tags {
		if !coarseDomain.Contains(iv) {
			continue
		}
		ok := true
		nbr := Box{Lo: iv, Hi: iv.Shift(1, 1)}.Grow(m.NestingBuffer).Intersection(coarseDomain)
		nbr.ForEach(func(p IntVect) {
			if ok && !parent.Contains(p) {
				ok = false
			}
		})
		if ok {
			nested.Add(iv)
		}
	}
	if nested.Len() == 0 {
		return nil
	}

	// Group the refined flag footprint into aligned tiles, then clip each
	// tile's bounding box to the parent boxes so nesting holds.
	type tileKey struct{ ti, tj int }
	tiles := make(map[tileKey]*IndexSet)
	for _, iv := range nested.Sorted() {
		fine := Box{Lo: iv.Refine(r), Hi: iv.Shift(1, 1).Refine(r)}
		fine.ForEach(func(p IntVect) {
			k := tileKey{ti: floorDiv(p.I, m.MaxBoxSize), tj: floorDiv(p.J, m.MaxBoxSize)}
			s, ok := tiles[k]
			if !ok {
				ns := NewIndexSet()
				s = &ns
				tiles[k] = s
			}
			s.Add(p)
		})
	}
	keys := make([]tileKey, 0, len(tiles))
	for k := range tiles {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].tj != keys[b].tj {
			return keys[a].tj < keys[b].tj
		}
		return keys[a].ti < keys[b].ti
	})

	var boxes []Box
	for _, k := range keys {
		tb := tiles[k].MinBox()
		for _, pb := range parent.Boxes {
			piece := tb.Intersection(pb.Refine(r)).Intersection(m.domains[l])
			if !piece.Empty() {
				boxes = append(boxes, piece)
			}
		}
	}
	return boxes
}

// tileDomain covers a domain box with disjoint aligned tiles of at most
// MaxBoxSize cells per side.
func (m *Mesh) tileDomain(domain Box) []Box {
	var out []Box
	for j := domain.Lo.J; j < domain.Hi.J; j += m.MaxBoxSize {
		for i := domain.Lo.I; i < domain.Hi.I; i += m.MaxBoxSize {
			b := NewBox(i, j, minInt(i+m.MaxBoxSize, domain.Hi.I), minInt(j+m.MaxBoxSize, domain.Hi.J))
			out = append(out, b)
		}
	}
	return out
}

// setLevelBoxes installs new boxes on every level and rebalances all
// realms.
func (m *Mesh) setLevelBoxes(boxes [][]Box, loads LoadFunc) {
	m.finestLevel = len(boxes) - 1
	for _, realm := range m.realms {
		realm.Layouts = make([]*BoxLayout, len(boxes))
		for l, lvl := range boxes {
			lay := NewBoxLayout(l, lvl)
			var ld []int64
			if loads != nil {
				ld = loads(realm.Name, lay)
			}
			if ld == nil {
				ld = CellCountLoads(lay)
			}
			lay.Ranks = Balance(ld, m.NumRanks)
			realm.Layouts[l] = lay
		}
	}
}
