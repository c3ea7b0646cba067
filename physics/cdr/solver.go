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

// Package cdr advances charged species with a convection-diffusion
// transport solver and implements the time-stepping contract the driver
// sequences.
package cdr

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/hansernhm/chombo-discharge/amr"
	"github.com/hansernhm/chombo-discharge/parallel"
)

// Species is one charged species carried by a transport solver.
type Species struct {
	Name         string  `toml:"name"`
	ChargeNumber int     `toml:"charge_number"`
	Mobility     float64 `toml:"mobility"`  // m^2/(V s), sign-free
	Diffusion    float64 `toml:"diffusion"` // m^2/s

	// InitialDensity gives the t = 0 density at a physical point. Set
	// programmatically, not from configuration.
	InitialDensity func(x, y float64) float64 `toml:"-"`
}

// Solver advances one species on the whole hierarchy with first-order
// upwind advection and centered diffusion, level by level.
type Solver struct {
	species Species
	mesh    *amr.Mesh
	log     logrus.FieldLogger

	density []*amr.LevelField
	cache   []*amr.LevelField
}

// NewSolver returns a transport solver for one species.
func NewSolver(species Species, mesh *amr.Mesh, log logrus.FieldLogger) *Solver {
	return &Solver{
		species: species,
		mesh:    mesh,
		log:     log.WithField("solver", species.Name),
	}
}

// Name returns the species name.
func (s *Solver) Name() string { return s.species.Name }

// Allocate creates the density over the current layouts.
func (s *Solver) Allocate() {
	s.density = make([]*amr.LevelField, s.mesh.FinestLevel()+1)
	for l := range s.density {
		s.density[l] = amr.NewLevelField(s.mesh.Layout(l), 1)
	}
}

// Density returns the density field on one level.
func (s *Solver) Density(level int) *amr.LevelField {
	return s.density[level]
}

// ApplyInitialData evaluates the species' initial profile at every cell
// center.
func (s *Solver) ApplyInitialData() {
	for l, f := range s.density {
		dx := s.mesh.Dx(l)
		f.Apply(0, func(iv amr.IntVect) float64 {
			if s.species.InitialDensity == nil {
				return 0
			}
			x := s.mesh.Origin.X + (float64(iv.I)+0.5)*dx
			y := s.mesh.Origin.Y + (float64(iv.J)+0.5)*dx
			return s.species.InitialDensity(x, y)
		})
	}
}

// velocity is the drift velocity in field e, signed by the charge.
func (s *Solver) velocity(e [2]float64) [2]float64 {
	sign := 1.0
	if s.species.ChargeNumber < 0 {
		sign = -1
	}
	return [2]float64{sign * s.species.Mobility * e[0], sign * s.species.Mobility * e[1]}
}

// ComputeDt returns the explicit stability limit on the finest level:
// the advective CFL limit and the diffusive limit, whichever is smaller.
func (s *Solver) ComputeDt(e [2]float64) float64 {
	dx := s.mesh.Dx(s.mesh.FinestLevel())
	dt := math.MaxFloat64
	v := s.velocity(e)
	if speed := math.Hypot(v[0], v[1]); speed > 0 {
		dt = dx / speed
	}
	if s.species.Diffusion > 0 {
		if dtDiff := dx * dx / (4 * s.species.Diffusion); dtDiff < dt {
			dt = dtDiff
		}
	}
	return dt
}

// Advance moves the density forward by dt in field e with the given
// source, which may be nil. Cells whose neighbor lies outside the level's
// layout see a zero-gradient boundary. Each rank updates only the boxes
// it owns; Combine sums the partial updates so every rank ends up with
// the full field again.
func (s *Solver) Advance(dt float64, e [2]float64, source []*amr.LevelField, rank int) error {
	v := s.velocity(e)
	for l, f := range s.density {
		dx := s.mesh.Dx(l)
		next := amr.NewLevelField(f.Layout, 1)
		for _, i := range f.Layout.LocalIndices(rank) {
			b := f.Layout.Boxes[i]
			b.ForEach(func(iv amr.IntVect) {
				c := f.Value(i, 0, iv)
				at := func(di, dj int) float64 {
					if val, ok := f.At(0, iv.Shift(di, dj)); ok {
						return val
					}
					return c
				}
				// First-order upwind fluxes.
				var adv float64
				if v[0] > 0 {
					adv += v[0] * (c - at(-1, 0)) / dx
				} else {
					adv += v[0] * (at(1, 0) - c) / dx
				}
				if v[1] > 0 {
					adv += v[1] * (c - at(0, -1)) / dx
				} else {
					adv += v[1] * (at(0, 1) - c) / dx
				}
				diff := s.species.Diffusion *
					(at(1, 0) + at(-1, 0) + at(0, 1) + at(0, -1) - 4*c) / (dx * dx)
				var src float64
				if source != nil && l < len(source) {
					src = source[l].Value(i, 0, iv)
				}
				n := c + dt*(diff-adv+src)
				if n < 0 {
					// Transport cannot make densities negative; the
					// discretization can. Clip.
					n = 0
				}
				next.SetValue(i, 0, iv, n)
			})
		}
		s.density[l] = next
	}
	return nil
}

// Combine sums the rank-local partial updates of the last Advance across
// all ranks. Boxes a rank did not touch hold zeros, so the elementwise
// sum reassembles the full field on every rank.
func (s *Solver) Combine(comm parallel.Comm) {
	if comm.Size() == 1 {
		return
	}
	for _, f := range s.density {
		for _, arr := range f.Data {
			copy(arr.Elements, comm.SumFloat64s(arr.Elements))
		}
	}
}

// PreRegrid detaches the density as the cache that survives the regrid.
func (s *Solver) PreRegrid() {
	s.cache = s.density
	s.density = nil
}

// Regrid rebuilds the density on the new layouts: each level starts from
// piecewise-constant coarse data, then cells that existed before the
// regrid are overwritten from the cache by spatial position.
func (s *Solver) Regrid() error {
	if s.cache == nil {
		return fmt.Errorf("cdr: %s: regrid without a preceding cache", s.species.Name)
	}
	s.Allocate()
	for l, f := range s.density {
		if l > 0 {
			r := s.mesh.RefRatio(l - 1)
			coarse := s.density[l-1]
			for i, b := range f.Layout.Boxes {
				b.ForEach(func(iv amr.IntVect) {
					if v, ok := coarse.At(0, iv.Coarsen(r)); ok {
						f.SetValue(i, 0, iv, v)
					}
				})
			}
		}
		if l < len(s.cache) && s.cache[l] != nil {
			if err := s.cache[l].CopyTo(f); err != nil {
				return err
			}
		}
	}
	s.cache = nil
	return nil
}

// Mass returns the total mass on the valid region: each level's cells
// except where a finer level covers them.
func (s *Solver) Mass() float64 {
	var mass float64
	for l, f := range s.density {
		dx := s.mesh.Dx(l)
		var finer *amr.BoxLayout
		var r int
		if l+1 < len(s.density) {
			finer = s.mesh.Layout(l + 1)
			r = s.mesh.RefRatio(l)
		}
		for i, b := range f.Layout.Boxes {
			b.ForEach(func(iv amr.IntVect) {
				if finer != nil && finer.Contains(iv.Refine(r)) {
					return
				}
				mass += f.Value(i, 0, iv) * dx * dx
			})
		}
	}
	return mass
}
