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

// Package geometry describes the solid objects embedded in the simulation
// domain (electrodes and dielectrics) and classifies grid cells against
// them. The classification feeds the geometric refinement flags that the
// driver recomputes, rather than checkpoints, on restart.
package geometry

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/hansernhm/chombo-discharge/amr"
)

// Material identifies what kind of solid a shape is.
type Material int

const (
	// Electrode is a conductor held at a fixed potential when live.
	Electrode Material = iota
	// Dielectric is an insulating solid with a relative permittivity.
	Dielectric
	// AnySolid matches both materials in queries.
	AnySolid
)

// CellClass is the relation of one grid cell to the embedded solids.
type CellClass int

const (
	// Regular cells contain no solid.
	Regular CellClass = iota
	// Covered cells are entirely inside a solid.
	Covered
	// Irregular cells are cut by a solid boundary.
	Irregular
)

const coverageEps = 1e-10

// ElectrodeSpec is one conductor.
type ElectrodeSpec struct {
	Shape     geom.Polygonal
	Live      bool
	Potential float64
}

// DielectricSpec is one insulating solid.
type DielectricSpec struct {
	Shape        geom.Polygonal
	Permittivity float64
}

// solid embeds the shape so the index can hold it directly.
type solid struct {
	geom.Polygonal
	material Material
}

// Computational is the full embedded geometry: every solid plus a spatial
// index over their shapes.
type Computational struct {
	Electrodes  []ElectrodeSpec
	Dielectrics []DielectricSpec

	solids []*solid
	index  *rtree.Rtree
	built  bool
}

// Build validates the solids and builds the spatial index. It must be
// called before any query.
func (g *Computational) Build() error {
	for i, d := range g.Dielectrics {
		if d.Permittivity <= 0 {
			return fmt.Errorf("geometry: dielectric %d has non-positive permittivity %g",
				i, d.Permittivity)
		}
		if d.Shape == nil {
			return fmt.Errorf("geometry: dielectric %d has no shape", i)
		}
	}
	for i, e := range g.Electrodes {
		if e.Shape == nil {
			return fmt.Errorf("geometry: electrode %d has no shape", i)
		}
	}
	g.index = rtree.NewTree(25, 50)
	g.solids = nil
	for _, e := range g.Electrodes {
		s := &solid{Polygonal: e.Shape, material: Electrode}
		g.solids = append(g.solids, s)
		g.index.Insert(s)
	}
	for _, d := range g.Dielectrics {
		s := &solid{Polygonal: d.Shape, material: Dielectric}
		g.solids = append(g.solids, s)
		g.index.Insert(s)
	}
	g.built = true
	return nil
}

// Empty reports whether there are no solids at all, in which case every
// cell is regular and no geometric refinement is requested.
func (g *Computational) Empty() bool {
	return len(g.Electrodes) == 0 && len(g.Dielectrics) == 0
}

// Classify returns the relation of the cell at iv, on a level with the
// given origin and spacing, to the solids of the requested material.
func (g *Computational) Classify(iv amr.IntVect, origin geom.Point, dx float64, m Material) CellClass {
	cell := amr.CellPolygon(iv, origin, dx)
	var covered float64
	for _, hit := range g.index.SearchIntersect(amr.CellBounds(iv, origin, dx)) {
		s := hit.(*solid)
		if m != AnySolid && s.material != m {
			continue
		}
		isect := s.Intersection(cell)
		if isect == nil {
			continue
		}
		covered += isect.Area()
	}
	frac := covered / (dx * dx)
	switch {
	case frac <= coverageEps:
		return Regular
	case frac >= 1-coverageEps:
		return Covered
	default:
		return Irregular
	}
}

// IrregularCells returns every cell of region cut by a boundary of the
// requested material. Only cells near a shape's bounding box are scanned.
func (g *Computational) IrregularCells(region amr.Box, origin geom.Point, dx float64, m Material) amr.IndexSet {
	out := amr.NewIndexSet()
	if !g.built {
		return out
	}
	for _, s := range g.solids {
		if m != AnySolid && s.material != m {
			continue
		}
		b := s.Bounds()
		lo := amr.IntVect{
			I: int((b.Min.X - origin.X) / dx),
			J: int((b.Min.Y - origin.Y) / dx),
		}
		hi := amr.IntVect{
			I: int((b.Max.X-origin.X)/dx) + 2,
			J: int((b.Max.Y-origin.Y)/dx) + 2,
		}
		scan := amr.Box{Lo: lo.Shift(-1, -1), Hi: hi}.Intersection(region)
		scan.ForEach(func(iv amr.IntVect) {
			if out.Has(iv) {
				return
			}
			if g.Classify(iv, origin, dx, m) == Irregular {
				out.Add(iv)
			}
		})
	}
	return out
}
