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

package rte

import (
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/hansernhm/chombo-discharge/amr"
)

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testMesh(t *testing.T) *amr.Mesh {
	t.Helper()
	m := &amr.Mesh{
		CoarseDims:  amr.IntVect{I: 16, J: 16},
		CoarseDx:    1.0 / 16,
		MaxAmrDepth: 0,
		MaxBoxSize:  8,
	}
	if err := m.Build(); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNewSolverRejectsBadKappa(t *testing.T) {
	if _, err := NewSolver(testMesh(t), 0, quietLog()); err == nil {
		t.Error("zero absorption coefficient accepted")
	}
	if _, err := NewSolver(testMesh(t), -1, quietLog()); err == nil {
		t.Error("negative absorption coefficient accepted")
	}
}

func TestSolveIsAlgebraicInSource(t *testing.T) {
	mesh := testMesh(t)
	s, err := NewSolver(mesh, 1e3, quietLog())
	if err != nil {
		t.Fatal(err)
	}
	s.Allocate()

	src := []*amr.LevelField{amr.NewLevelField(mesh.Layout(0), 1)}
	iv := amr.IntVect{I: 3, J: 11}
	src[0].SetValue(2, 0, iv, 6e20)

	if err := s.Solve(src); err != nil {
		t.Fatal(err)
	}
	want := 6e20 / (LightSpeed * 1e3)
	got := s.Psi(0).Value(2, 0, iv)
	if math.Abs(got-want) > 1e-12*want {
		t.Errorf("psi = %g, want %g", got, want)
	}
	if v := s.Psi(0).Value(0, 0, amr.IntVect{I: 1, J: 1}); v != 0 {
		t.Errorf("psi = %g away from the source", v)
	}
}

func TestSolveRejectsShortSource(t *testing.T) {
	mesh := testMesh(t)
	s, err := NewSolver(mesh, 1e3, quietLog())
	if err != nil {
		t.Fatal(err)
	}
	s.Allocate()
	if err := s.Solve(nil); err == nil {
		t.Error("source with too few levels accepted")
	}
}

func TestRegridReallocates(t *testing.T) {
	mesh := testMesh(t)
	s, err := NewSolver(mesh, 1e3, quietLog())
	if err != nil {
		t.Fatal(err)
	}
	s.Allocate()
	s.Psi(0).Fill(0, 7)

	s.PreRegrid()
	s.Regrid()
	if v := s.Psi(0).Value(0, 0, amr.IntVect{I: 0, J: 0}); v != 0 {
		t.Errorf("photon density carries stale value %g through a regrid", v)
	}
}
