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

package cdr

import (
	"math"
	"testing"

	discharge "github.com/hansernhm/chombo-discharge"
	"github.com/hansernhm/chombo-discharge/amr"
	"github.com/hansernhm/chombo-discharge/parallel"
	"github.com/hansernhm/chombo-discharge/physics/rte"
	"github.com/hansernhm/chombo-discharge/tagger"
)

var _ discharge.TimeStepper = (*Stepper)(nil)

func testStepperConfig() Config {
	cfg := DefaultConfig()
	cfg.Field = [2]float64{0, 1e5}
	cfg.Species = []SpeciesConfig{
		{
			Name: "electron", ChargeNumber: -1, Mobility: 0.03, Diffusion: 0.1,
			SeedAmplitude: 1e16, SeedRadius: 0.05, SeedCenter: [2]float64{0.5, 0.5},
		},
		{Name: "positive_ion", ChargeNumber: 1, Mobility: 2e-4},
	}
	return cfg
}

func setupStepper(t *testing.T, cfg Config) (*Stepper, *amr.Mesh) {
	t.Helper()
	mesh := testMesh(t)
	st := NewStepper(cfg)
	if err := st.SetupSolvers(mesh, parallel.NewSerial(), quietLog()); err != nil {
		t.Fatal(err)
	}
	st.RegisterRealms()
	if err := st.Allocate(); err != nil {
		t.Fatal(err)
	}
	if err := st.InitialData(); err != nil {
		t.Fatal(err)
	}
	if err := st.PostInitialize(); err != nil {
		t.Fatal(err)
	}
	return st, mesh
}

func TestStepperRejectsBadConfig(t *testing.T) {
	mesh := testMesh(t)
	st := NewStepper(Config{CFL: 0.8})
	if err := st.SetupSolvers(mesh, parallel.NewSerial(), quietLog()); err == nil {
		t.Error("no species accepted")
	}
	cfg := testStepperConfig()
	cfg.CFL = 1.5
	st = NewStepper(cfg)
	if err := st.SetupSolvers(mesh, parallel.NewSerial(), quietLog()); err == nil {
		t.Error("CFL > 1 accepted")
	}
}

func TestStepperComputeDtTakesStrictestSolver(t *testing.T) {
	cfg := testStepperConfig()
	st, mesh := setupStepper(t, cfg)
	dt, err := st.ComputeDt()
	if err != nil {
		t.Fatal(err)
	}
	dx := mesh.Dx(mesh.FinestLevel())
	limits := []float64{
		dx / (0.03 * 1e5),    // electron drift
		dx * dx / (4 * 0.1),  // electron diffusion
		dx / (2e-4 * 1e5),    // ion drift
	}
	want := limits[0]
	for _, l := range limits[1:] {
		want = math.Min(want, l)
	}
	want *= cfg.CFL
	if math.Abs(dt-want) > 1e-15*want {
		t.Errorf("dt = %g, want %g", dt, want)
	}
}

func TestStepperAdvanceReturnsTakenStep(t *testing.T) {
	st, _ := setupStepper(t, testStepperConfig())
	dt, err := st.ComputeDt()
	if err != nil {
		t.Fatal(err)
	}
	actual, err := st.Advance(dt)
	if err != nil {
		t.Fatal(err)
	}
	if actual != dt {
		t.Errorf("took %g, offered %g", actual, dt)
	}
}

func TestPhotonFieldFollowsElectrons(t *testing.T) {
	cfg := testStepperConfig()
	cfg.PhotoKappa = 1e3
	cfg.PhotoEfficiency = 0.1
	st, mesh := setupStepper(t, cfg)

	psi := st.photons.Psi(0)
	ne := st.solvers[0].Density(0)
	iv := amr.IntVect{I: 8, J: 8}
	box := -1
	for i, b := range mesh.Layout(0).Boxes {
		if b.Contains(iv) {
			box = i
		}
	}
	want := cfg.PhotoEfficiency * ne.Value(box, 0, iv) / (rte.LightSpeed * cfg.PhotoKappa)
	if got := psi.Value(box, 0, iv); math.Abs(got-want) > 1e-12*want {
		t.Errorf("psi = %g, want %g", got, want)
	}
	// The photons realm exists for load balancing.
	if _, err := mesh.Realm(rte.RealmName); err != nil {
		t.Error(err)
	}
}

// TestDriverIntegration runs the full stack: driver, transport stepper,
// photoionization and gradient tagging, for a handful of steps.
func TestDriverIntegration(t *testing.T) {
	cfg := discharge.DefaultConfig()
	cfg.Driver.OutputDirectory = t.TempDir()
	cfg.Driver.OutputNames = "streamer"
	cfg.Driver.Verbosity = 0
	cfg.Driver.StopTime = 1
	cfg.Driver.MaxSteps = 4
	cfg.Driver.RegridInterval = 2
	cfg.Driver.InitialRegrids = 1
	cfg.Driver.GrowTags = 1
	cfg.Mesh.CoarsestDims = [2]int{32, 32}
	cfg.Mesh.CoarsestDx = 1.0 / 32
	cfg.Mesh.MaxAmrDepth = 2
	cfg.Mesh.RefRatios = []int{2, 2}
	cfg.Mesh.MaxBoxSize = 16
	cfg.Mesh.BlockingFactor = 8
	cfg.Mesh.NestingBuffer = 1
	cfg.Plot.Interval = 4
	cfg.Checkpoint.Interval = 4
	cfg.Plot.Variables = map[string]string{"log_ne": "log10(electron + 1.0)"}

	scfg := testStepperConfig()
	scfg.PhotoKappa = 1e3
	scfg.PhotoEfficiency = 0.1
	st := NewStepper(scfg)

	d, err := discharge.New(cfg, st, nil, parallel.NewSerial(), quietLog())
	if err != nil {
		t.Fatal(err)
	}
	d.SetCellTagger(tagger.NewGradient(d.Mesh(), tagger.DefaultGradientConfig(), st.Tracer))
	if err := d.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	if d.Step() != 4 {
		t.Errorf("took %d steps", d.Step())
	}
	// The seed's steep edge must have driven refinement.
	if d.Mesh().FinestLevel() < 1 {
		t.Error("no refinement around the seed")
	}
}
