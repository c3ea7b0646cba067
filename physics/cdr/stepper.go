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
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	discharge "github.com/hansernhm/chombo-discharge"
	"github.com/hansernhm/chombo-discharge/amr"
	"github.com/hansernhm/chombo-discharge/parallel"
	"github.com/hansernhm/chombo-discharge/physics/rte"
)

// SpeciesConfig is one species plus its seed: a Gaussian blob on top of a
// uniform background.
type SpeciesConfig struct {
	Name          string     `toml:"name"`
	ChargeNumber  int        `toml:"charge_number"`
	Mobility      float64    `toml:"mobility"`
	Diffusion     float64    `toml:"diffusion"`
	Background    float64    `toml:"background"`
	SeedAmplitude float64    `toml:"seed_amplitude"`
	SeedRadius    float64    `toml:"seed_radius"`
	SeedCenter    [2]float64 `toml:"seed_center"`
}

// Config configures the stepper.
type Config struct {
	CFL     float64         `toml:"cfl"`
	Field   [2]float64      `toml:"field"` // background electric field, V/m
	Species []SpeciesConfig `toml:"species"`

	// PhotoKappa enables photoionization feedback when positive.
	PhotoKappa      float64 `toml:"photo_kappa"`
	PhotoEfficiency float64 `toml:"photo_efficiency"`
}

// DefaultConfig returns a stepper configuration with a sane CFL number
// and no species; callers add their own.
func DefaultConfig() Config {
	return Config{CFL: 0.8}
}

// Stepper implements the discharge.TimeStepper contract over one
// transport solver per species and an optional radiative solver.
type Stepper struct {
	cfg  Config
	mesh *amr.Mesh
	comm parallel.Comm
	log  logrus.FieldLogger

	solvers []*Solver
	photons *rte.Solver

	step int
	time float64
	dt   float64
}

// NewStepper returns an unwired stepper; the driver calls SetupSolvers.
func NewStepper(cfg Config) *Stepper {
	return &Stepper{cfg: cfg}
}

func (st *Stepper) seedProfile(sc SpeciesConfig) func(x, y float64) float64 {
	return func(x, y float64) float64 {
		dx := x - sc.SeedCenter[0]
		dy := y - sc.SeedCenter[1]
		r2 := dx*dx + dy*dy
		sigma2 := sc.SeedRadius * sc.SeedRadius
		if sigma2 == 0 {
			return sc.Background
		}
		return sc.Background + sc.SeedAmplitude*math.Exp(-r2/(2*sigma2))
	}
}

// SetupSolvers builds one transport solver per configured species and the
// radiative solver when photoionization is on.
func (st *Stepper) SetupSolvers(mesh *amr.Mesh, comm parallel.Comm, log logrus.FieldLogger) error {
	if len(st.cfg.Species) == 0 {
		return fmt.Errorf("cdr: no species configured")
	}
	if st.cfg.CFL <= 0 || st.cfg.CFL > 1 {
		return fmt.Errorf("cdr: CFL number %g outside (0, 1]", st.cfg.CFL)
	}
	st.mesh = mesh
	st.comm = comm
	st.log = log
	st.solvers = nil
	for _, sc := range st.cfg.Species {
		sp := Species{
			Name:           sc.Name,
			ChargeNumber:   sc.ChargeNumber,
			Mobility:       sc.Mobility,
			Diffusion:      sc.Diffusion,
			InitialDensity: st.seedProfile(sc),
		}
		st.solvers = append(st.solvers, NewSolver(sp, mesh, log))
	}
	if st.cfg.PhotoKappa > 0 {
		ph, err := rte.NewSolver(mesh, st.cfg.PhotoKappa, log)
		if err != nil {
			return err
		}
		st.photons = ph
	}
	return nil
}

// RegisterRealms gives the radiative solver its own load balance.
func (st *Stepper) RegisterRealms() {
	if st.photons != nil {
		st.photons.RegisterRealm()
	}
}

// Allocate creates solver data over the current layouts.
func (st *Stepper) Allocate() error {
	for _, s := range st.solvers {
		s.Allocate()
	}
	if st.photons != nil {
		st.photons.Allocate()
	}
	return nil
}

// InitialData seeds every species.
func (st *Stepper) InitialData() error {
	for _, s := range st.solvers {
		s.ApplyInitialData()
	}
	return nil
}

// PostInitialize solves the stationary photon field against the initial
// densities.
func (st *Stepper) PostInitialize() error {
	return st.solvePhotons()
}

// PostCheckpointSetup recomputes what the checkpoint does not store: the
// stationary photon field.
func (st *Stepper) PostCheckpointSetup() error {
	return st.solvePhotons()
}

// electron returns the first negatively charged species, the
// photoionization source.
func (st *Stepper) electron() *Solver {
	for _, s := range st.solvers {
		if s.species.ChargeNumber < 0 {
			return s
		}
	}
	return nil
}

func (st *Stepper) solvePhotons() error {
	if st.photons == nil {
		return nil
	}
	el := st.electron()
	if el == nil {
		return nil
	}
	source := make([]*amr.LevelField, st.mesh.FinestLevel()+1)
	for l := range source {
		src := amr.NewLevelField(st.mesh.Layout(l), 1)
		ne := el.Density(l)
		for i, b := range src.Layout.Boxes {
			b.ForEach(func(iv amr.IntVect) {
				src.SetValue(i, 0, iv, st.cfg.PhotoEfficiency*ne.Value(i, 0, iv))
			})
		}
		source[l] = src
	}
	return st.photons.Solve(source)
}

// ComputeDt returns the strictest stability limit over all species, times
// the CFL number.
func (st *Stepper) ComputeDt() (float64, error) {
	dt := math.MaxFloat64
	for _, s := range st.solvers {
		if d := s.ComputeDt(st.cfg.Field); d < dt {
			dt = d
		}
	}
	if dt == math.MaxFloat64 {
		return 0, fmt.Errorf("cdr: no solver imposes a time step")
	}
	return st.cfg.CFL * dt, nil
}

// Advance resolves the photon field against the current densities, then
// advances every species concurrently.
func (st *Stepper) Advance(dt float64) (float64, error) {
	if err := st.solvePhotons(); err != nil {
		return 0, err
	}

	// The photoionization source feeds electrons only.
	var photoSrc []*amr.LevelField
	if st.photons != nil {
		photoSrc = make([]*amr.LevelField, st.mesh.FinestLevel()+1)
		rate := rte.LightSpeed * st.cfg.PhotoKappa
		for l := range photoSrc {
			src := amr.NewLevelField(st.mesh.Layout(l), 1)
			psi := st.photons.Psi(l)
			for i, b := range src.Layout.Boxes {
				b.ForEach(func(iv amr.IntVect) {
					src.SetValue(i, 0, iv, rate*psi.Value(i, 0, iv))
				})
			}
			photoSrc[l] = src
		}
	}

	var wg sync.WaitGroup
	errc := make(chan error, len(st.solvers))
	rank := st.comm.Rank()
	for _, s := range st.solvers {
		wg.Add(1)
		go func(s *Solver) {
			defer wg.Done()
			var src []*amr.LevelField
			if s.species.ChargeNumber < 0 {
				src = photoSrc
			}
			if err := s.Advance(dt, st.cfg.Field, src, rank); err != nil {
				errc <- fmt.Errorf("cdr: advancing %s: %v", s.Name(), err)
			}
		}(s)
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		return 0, err
	}
	// Collectives must run in the same order on every rank, so the
	// partial updates are combined here, not inside the fan-out.
	for _, s := range st.solvers {
		s.Combine(st.comm)
	}
	return dt, nil
}

// SynchronizeSolverTimes stores the driver clock.
func (st *Stepper) SynchronizeSolverTimes(step int, time, dt float64) {
	st.step = step
	st.time = time
	st.dt = dt
}

// PreRegrid caches every solver's state.
func (st *Stepper) PreRegrid(lmin, oldFinest int) error {
	for _, s := range st.solvers {
		s.PreRegrid()
	}
	if st.photons != nil {
		st.photons.PreRegrid()
	}
	return nil
}

// Regrid rebuilds solver data on the new grids.
func (st *Stepper) Regrid(lmin, oldFinest, newFinest int) error {
	for _, s := range st.solvers {
		if err := s.Regrid(); err != nil {
			return err
		}
	}
	if st.photons != nil {
		st.photons.Regrid()
	}
	return nil
}

// PostRegrid re-solves the photon field on the new grids.
func (st *Stepper) PostRegrid() error {
	return st.solvePhotons()
}

// NeedToRegrid defers entirely to the driver's regrid schedule.
func (st *Stepper) NeedToRegrid() bool { return false }

// Tracer exposes the electron density for gradient-based tagging.
func (st *Stepper) Tracer(level int) (*amr.LevelField, error) {
	el := st.electron()
	if el == nil {
		el = st.solvers[0]
	}
	return el.Density(level), nil
}

// PlotVariableNames lists one component per species, plus the photon
// density when photoionization is on.
func (st *Stepper) PlotVariableNames() []string {
	var names []string
	for _, s := range st.solvers {
		names = append(names, s.Name())
	}
	if st.photons != nil {
		names = append(names, "psi")
	}
	return names
}

// PlotLevel packs the plot variables of one level.
func (st *Stepper) PlotLevel(level int) (*amr.LevelField, error) {
	names := st.PlotVariableNames()
	out := amr.NewLevelField(st.mesh.Layout(level), len(names))
	comp := 0
	for _, s := range st.solvers {
		d := s.Density(level)
		for i, b := range out.Layout.Boxes {
			b.ForEach(func(iv amr.IntVect) {
				out.SetValue(i, comp, iv, d.Value(i, 0, iv))
			})
		}
		comp++
	}
	if st.photons != nil {
		psi := st.photons.Psi(level)
		for i, b := range out.Layout.Boxes {
			b.ForEach(func(iv amr.IntVect) {
				out.SetValue(i, comp, iv, psi.Value(i, 0, iv))
			})
		}
	}
	return out, nil
}

// WriteCheckpointLevel stores every species density. The photon field is
// stationary and recomputed on restart instead.
func (st *Stepper) WriteCheckpointLevel(w *discharge.CheckpointLevelWriter, level int) error {
	for _, s := range st.solvers {
		if err := w.Put(s.Name(), s.Density(level)); err != nil {
			return err
		}
	}
	return nil
}

// ReadCheckpointLevel restores every species density.
func (st *Stepper) ReadCheckpointLevel(r *discharge.CheckpointLevelReader, level int) error {
	for _, s := range st.solvers {
		f, err := r.Get(s.Name())
		if err != nil {
			return err
		}
		if err := f.CopyTo(s.Density(level)); err != nil {
			return err
		}
	}
	return nil
}

// Loads uses cell-count loads for every realm.
func (st *Stepper) Loads(realm string, layout *amr.BoxLayout) []int64 {
	return nil
}
