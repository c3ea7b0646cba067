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

// Package rte solves the stationary radiative transfer equation in the
// absorption-dominated limit, where the photon density is algebraic in
// the source: psi = S / (c * kappa). It exists to feed photoionization
// sources back into the transport solvers.
package rte

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hansernhm/chombo-discharge/amr"
)

// LightSpeed in m/s.
const LightSpeed = 299792458.0

// RealmName is the realm the radiative solver is balanced on.
const RealmName = "photons"

// Solver holds the photon density on every level.
type Solver struct {
	Kappa float64 // absorption coefficient, 1/m

	mesh *amr.Mesh
	log  logrus.FieldLogger
	psi  []*amr.LevelField
}

// NewSolver returns a stationary radiative solver.
func NewSolver(mesh *amr.Mesh, kappa float64, log logrus.FieldLogger) (*Solver, error) {
	if kappa <= 0 {
		return nil, fmt.Errorf("rte: absorption coefficient %g must be positive", kappa)
	}
	return &Solver{Kappa: kappa, mesh: mesh, log: log.WithField("solver", "rte")}, nil
}

// RegisterRealm asks the mesh for the solver's own load balance.
func (s *Solver) RegisterRealm() {
	s.mesh.RegisterRealm(RealmName)
}

// Allocate creates the photon density over the current layouts.
func (s *Solver) Allocate() {
	s.psi = make([]*amr.LevelField, s.mesh.FinestLevel()+1)
	for l := range s.psi {
		s.psi[l] = amr.NewLevelField(s.mesh.Layout(l), 1)
	}
}

// Psi returns the photon density on one level.
func (s *Solver) Psi(level int) *amr.LevelField {
	return s.psi[level]
}

// Solve fills the photon density from the given source, level by level.
// The stationary limit has no history, so there is nothing to advance.
func (s *Solver) Solve(source []*amr.LevelField) error {
	if len(source) < len(s.psi) {
		return fmt.Errorf("rte: source on %d levels, need %d", len(source), len(s.psi))
	}
	inv := 1 / (LightSpeed * s.Kappa)
	for l, f := range s.psi {
		src := source[l]
		for i, b := range f.Layout.Boxes {
			b.ForEach(func(iv amr.IntVect) {
				f.SetValue(i, 0, iv, src.Value(i, 0, iv)*inv)
			})
		}
	}
	return nil
}

// PreRegrid drops the photon density. Being stationary it is cheaper to
// recompute after the regrid than to cache and restore.
func (s *Solver) PreRegrid() {
	s.psi = nil
}

// Regrid reallocates over the new layouts. The caller re-solves
// afterwards.
func (s *Solver) Regrid() {
	s.Allocate()
}
