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

package geometry

import (
	"github.com/ctessum/geom"

	"github.com/hansernhm/chombo-discharge/amr"
)

// RefineDepths controls how deep the hierarchy is refined around each kind
// of geometric feature. A depth of n requests refinement on every level
// coarser than n, so the feature ends up resolved on level n.
type RefineDepths struct {
	Electrodes    int
	Dielectrics   int
	GasInterfaces int
}

// MaxDepth returns the deepest level any feature asks for.
func (d RefineDepths) MaxDepth() int {
	out := d.Electrodes
	if d.Dielectrics > out {
		out = d.Dielectrics
	}
	if d.GasInterfaces > out {
		out = d.GasInterfaces
	}
	return out
}

// CoarsenBox is a physical-space region where geometric refinement flags
// are removed on levels at or finer than Level. It lets a user thin out
// refinement around geometry far from the discharge.
type CoarsenBox struct {
	Lo, Hi geom.Point
	Level  int
}

func (b CoarsenBox) contains(x, y float64) bool {
	return x >= b.Lo.X && x <= b.Hi.X && y >= b.Lo.Y && y <= b.Hi.Y
}

// Coarsener removes geometric refinement flags inside its boxes.
type Coarsener struct {
	Boxes []CoarsenBox
}

// Apply strips flags whose cell centers fall inside a coarsen box, for
// every level the box covers.
func (c *Coarsener) Apply(tags []amr.IndexSet, origin geom.Point, dx []float64) {
	if c == nil || len(c.Boxes) == 0 {
		return
	}
	for lvl, s := range tags {
		for iv := range s {
			x := origin.X + (float64(iv.I)+0.5)*dx[lvl]
			y := origin.Y + (float64(iv.J)+0.5)*dx[lvl]
			for _, b := range c.Boxes {
				if lvl >= b.Level && b.contains(x, y) {
					delete(s, iv)
					break
				}
			}
		}
	}
}

// Tags computes the geometric refinement flags for every level of the
// hierarchy: cut cells of each material, refined down to the requested
// depths, thinned by the coarsener, then grown. These flags are recomputed
// whenever needed and are never checkpointed.
func (g *Computational) Tags(mesh *amr.Mesh, d RefineDepths, c *Coarsener, growth int) []amr.IndexSet {
	depth := d.MaxDepth()
	if depth > mesh.MaxAmrDepth {
		depth = mesh.MaxAmrDepth
	}
	tags := make([]amr.IndexSet, depth)
	if g.Empty() {
		for l := range tags {
			tags[l] = amr.NewIndexSet()
		}
		return tags
	}
	for lvl := 0; lvl < depth; lvl++ {
		s := amr.NewIndexSet()
		domain := mesh.Domain(lvl)
		dx := mesh.Dx(lvl)
		if lvl < d.Electrodes {
			s.Union(g.IrregularCells(domain, mesh.Origin, dx, Electrode))
		}
		if lvl < d.Dielectrics {
			s.Union(g.IrregularCells(domain, mesh.Origin, dx, Dielectric))
		}
		if lvl < d.GasInterfaces {
			// The gas side of every solid surface, one cell out.
			s.Union(g.IrregularCells(domain, mesh.Origin, dx, AnySolid).Grown(1, domain))
		}
		tags[lvl] = s
	}

	dxs := make([]float64, depth)
	for l := range dxs {
		dxs[l] = mesh.Dx(l)
	}
	c.Apply(tags, mesh.Origin, dxs)

	if growth > 0 {
		for lvl := range tags {
			tags[lvl] = tags[lvl].Grown(growth, mesh.Domain(lvl))
		}
	}
	return tags
}
