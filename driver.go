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

// Package discharge is the orchestration core of an adaptive plasma
// discharge simulation: the driver that owns the clock and the grids,
// the TimeStepper contract the physics plugs into, refinement-flag
// bookkeeping across regrids, and checkpoint/restart.
package discharge

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hansernhm/chombo-discharge/amr"
	"github.com/hansernhm/chombo-discharge/geometry"
	"github.com/hansernhm/chombo-discharge/parallel"
)

// dtCollapseFactor is how far below its initial value the time step may
// fall before the run is considered unstable and aborted.
const dtCollapseFactor = 1e-5

// Driver owns the simulation clock, the grid hierarchy and all file
// output, and sequences the TimeStepper through setup, time steps and
// regrids.
type Driver struct {
	cfg       *Config
	log       logrus.FieldLogger
	comm      parallel.Comm
	mesh      *amr.Mesh
	geometry  *geometry.Computational
	coarsener *geometry.Coarsener
	stepper   TimeStepper
	tagger    CellTagger

	tags     *Tags
	geomTags []amr.IndexSet

	step      int
	time      float64
	dt        float64
	dtInitial float64

	wallStart time.Time
	setUp     bool
}

// New builds a driver from a validated configuration. tagger may be nil
// for runs whose only refinement is geometric.
func New(cfg *Config, stepper TimeStepper, tagger CellTagger,
	comm parallel.Comm, log logrus.FieldLogger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mesh, err := cfg.BuildMesh(comm.Size())
	if err != nil {
		return nil, err
	}
	geo, coarsener, err := cfg.BuildGeometry()
	if err != nil {
		return nil, err
	}
	return &Driver{
		cfg:       cfg,
		log:       log.WithField("rank", comm.Rank()),
		comm:      comm,
		mesh:      mesh,
		geometry:  geo,
		coarsener: coarsener,
		stepper:   stepper,
		tagger:    tagger,
		time:      cfg.Driver.StartTime,
	}, nil
}

// SetCellTagger installs or replaces the cell tagger. Taggers usually
// need the mesh, which New creates, so they are wired up after
// construction and before Setup.
func (d *Driver) SetCellTagger(tagger CellTagger) {
	d.tagger = tagger
}

// Step returns the current step number.
func (d *Driver) Step() int { return d.step }

// Time returns the current simulation time.
func (d *Driver) Time() float64 { return d.time }

// Dt returns the most recent time step.
func (d *Driver) Dt() float64 { return d.dt }

// Mesh returns the grid hierarchy.
func (d *Driver) Mesh() *amr.Mesh { return d.mesh }

func (d *Driver) checkpointPath(step int) string {
	return filepath.Join(d.cfg.Driver.OutputDirectory,
		fmt.Sprintf("%s.step%07d.chk", d.cfg.Driver.OutputNames, step))
}

func (d *Driver) plotPath(step int) string {
	return filepath.Join(d.cfg.Driver.OutputDirectory,
		fmt.Sprintf("%s.step%07d.plt", d.cfg.Driver.OutputNames, step))
}

// Setup prepares the run: geometry only, fresh start, or restart from a
// checkpoint, depending on the configuration.
func (d *Driver) Setup() error {
	var err error
	switch {
	case d.cfg.Driver.GeometryOnly:
		err = d.setupGeometryOnly()
	case d.cfg.Driver.RestartStep > 0:
		err = d.setupForRestart(d.cfg.Driver.RestartStep)
	default:
		err = d.setupFresh()
	}
	if err != nil {
		d.comm.Abort(err)
		return err
	}
	d.setUp = true
	return nil
}

// computeGeomTags refreshes the geometric refinement flags. They depend
// only on the geometry and the hierarchy parameters, never on solver
// data, which is why restarts recompute them instead of reading them from
// the checkpoint.
func (d *Driver) computeGeomTags() {
	depths := d.cfg.RefineDepths()
	d.geomTags = d.geometry.Tags(d.mesh, depths, d.coarsener, d.cfg.Driver.GrowTags)
	n := 0
	for _, s := range d.geomTags {
		n += s.Len()
	}
	d.log.WithFields(logrus.Fields{"cells": n, "levels": len(d.geomTags)}).
		Debug("computed geometric refinement flags")
}

func (d *Driver) setupGeometryOnly() error {
	d.computeGeomTags()
	d.tags = NewTags(d.mesh)
	// Refine onto the geometry so the plot shows it resolved.
	for i := 0; i < len(d.geomTags); i++ {
		old := d.mesh.FinestLevel()
		if d.mesh.Regrid(d.geomTags, 0, d.cfg.HardcapDepth(), nil) == old {
			break
		}
		d.tags.Rebuild(d.mesh)
	}
	d.tags.Rebuild(d.mesh)
	return d.writeGeometryPlot(d.plotPath(0))
}

func (d *Driver) setupFresh() error {
	if err := d.stepper.SetupSolvers(d.mesh, d.comm, d.log); err != nil {
		return fmt.Errorf("discharge: solver setup: %v", err)
	}
	d.stepper.RegisterRealms()
	d.computeGeomTags()
	d.tags = NewTags(d.mesh)

	// Refine onto the geometry before any solver data exists.
	for i := 0; i < len(d.geomTags); i++ {
		old := d.mesh.FinestLevel()
		if d.mesh.Regrid(d.geomTags, 0, d.cfg.HardcapDepth(), d.stepper.Loads) == old {
			break
		}
		d.tags.Rebuild(d.mesh)
	}
	d.tags.Rebuild(d.mesh)

	if err := d.stepper.Allocate(); err != nil {
		return fmt.Errorf("discharge: allocating solver data: %v", err)
	}
	if err := d.stepper.InitialData(); err != nil {
		return fmt.Errorf("discharge: filling initial data: %v", err)
	}

	// Initial regrids refine onto the initial data itself; the data is
	// reapplied after each one so fine levels never start from
	// interpolated values.
	for i := 0; i < d.cfg.Driver.InitialRegrids; i++ {
		if err := d.regrid(true); err != nil {
			return err
		}
	}

	if err := d.stepper.PostInitialize(); err != nil {
		return fmt.Errorf("discharge: post-initialize: %v", err)
	}
	d.logGridReport()
	return nil
}

func (d *Driver) setupForRestart(restartStep int) error {
	if err := d.stepper.SetupSolvers(d.mesh, d.comm, d.log); err != nil {
		return fmt.Errorf("discharge: solver setup: %v", err)
	}
	d.stepper.RegisterRealms()

	path := d.checkpointPath(restartStep)
	file, err := readCheckpointFile(path, d.mesh.CoarseDx)
	if err != nil {
		return err
	}

	// Grids first: everything read after this lives on the restored
	// layouts.
	boxes := make([][]amr.Box, len(file.Levels))
	ranks := make([][]int, len(file.Levels))
	for l, lvl := range file.Levels {
		boxes[l] = lvl.Boxes
		ranks[l] = lvl.Ranks
	}
	if err := d.mesh.SetGrids(boxes, ranks, d.stepper.Loads); err != nil {
		return err
	}

	d.step = file.Header.Step
	d.time = file.Header.Time
	d.dt = file.Header.Dt
	d.dtInitial = file.Header.Dt

	d.tags = NewTags(d.mesh)
	for l, lvl := range file.Levels {
		mask := d.tags.Level(l)
		tagged := lvl.TaggedCells
		for i, b := range d.mesh.Layout(l).Boxes {
			b.ForEach(func(iv amr.IntVect) {
				if tagged.Value(i, 0, iv) > taggedCellThreshold {
					mask.Set(iv, true)
				}
			})
		}
	}
	d.computeGeomTags()

	if err := d.stepper.Allocate(); err != nil {
		return fmt.Errorf("discharge: allocating solver data: %v", err)
	}
	for l := range file.Levels {
		r := &CheckpointLevelReader{level: &file.Levels[l]}
		if err := d.stepper.ReadCheckpointLevel(r, l); err != nil {
			return fmt.Errorf("discharge: restoring solver level %d: %v", l, err)
		}
	}
	if err := d.stepper.PostCheckpointSetup(); err != nil {
		return fmt.Errorf("discharge: post-checkpoint setup: %v", err)
	}
	d.log.WithFields(logrus.Fields{
		"file": path, "step": d.step, "time": d.time,
	}).Info("restarted from checkpoint")
	d.logGridReport()
	return nil
}

// canRegrid reports whether regridding can change anything at all.
func (d *Driver) canRegrid() bool {
	if d.mesh.MaxAmrDepth == 0 {
		return false
	}
	return d.tagger != nil || !d.geometry.Empty()
}

// regrid runs the full regrid protocol: gather flags, cache the
// bookkeeping and the solver data, rebuild the grids, restore flags by
// spatial position, then let the solvers rebuild their data.
func (d *Driver) regrid(useInitialData bool) error {
	oldFinest := d.mesh.FinestLevel()

	gotNewTags := false
	if d.tagger != nil {
		var err error
		gotNewTags, err = d.tagger.TagCells(d.tags)
		if err != nil {
			return fmt.Errorf("discharge: tagging cells: %v", err)
		}
	}
	gotNewTags = d.comm.Or(gotNewTags)
	if !gotNewTags && !useInitialData {
		d.log.Debug("no new refinement flags, skipping regrid")
		return nil
	}

	// Combine tagger flags (grown), geometric flags and, when
	// coarsening is not allowed, the footprint of the existing finer
	// grids. The footprint union is what pins refinement in place; with
	// coarsening allowed it is omitted and cleared flags let fine grids
	// retreat. Geometric flags retreat too: with coarsening allowed
	// they are only unioned up to the finest level that carries a
	// dynamic flag.
	taggerSets := d.tags.Sets()
	tagLevel := -1
	for l, s := range taggerSets {
		if s.Len() > 0 {
			tagLevel = l
		}
	}
	tagLevel = d.comm.MaxInt(tagLevel)

	nLevels := len(taggerSets)
	if len(d.geomTags) > nLevels {
		nLevels = len(d.geomTags)
	}
	all := make([]amr.IndexSet, nLevels)
	for l := 0; l < nLevels; l++ {
		s := amr.NewIndexSet()
		if l < len(taggerSets) {
			s.Union(taggerSets[l].Grown(d.cfg.Driver.GrowTags, d.mesh.Domain(l)))
		}
		if l < len(d.geomTags) && (!d.cfg.Driver.AllowCoarsening || l <= tagLevel) {
			s.Union(d.geomTags[l])
		}
		if !d.cfg.Driver.AllowCoarsening && l+1 <= oldFinest {
			for _, b := range d.mesh.Layout(l + 1).Boxes {
				s.AddBox(b.Coarsen(d.mesh.RefRatio(l)))
			}
		}
		all[l] = s
	}

	cache := d.tags.Cache()
	if err := d.stepper.PreRegrid(0, oldFinest); err != nil {
		return fmt.Errorf("discharge: caching solver data: %v", err)
	}

	start := time.Now()
	newFinest := d.mesh.Regrid(all, 0, d.cfg.HardcapDepth(), d.stepper.Loads)

	d.tags.Rebuild(d.mesh)
	d.tags.RestoreFrom(cache)

	if err := d.stepper.Regrid(0, oldFinest, newFinest); err != nil {
		return fmt.Errorf("discharge: solver regrid: %v", err)
	}
	if useInitialData {
		if err := d.stepper.InitialData(); err != nil {
			return fmt.Errorf("discharge: reapplying initial data: %v", err)
		}
	}
	if err := d.stepper.PostRegrid(); err != nil {
		return fmt.Errorf("discharge: post-regrid: %v", err)
	}

	d.logRegridReport(oldFinest, newFinest, time.Since(start))
	return nil
}

// Run advances the simulation until the stop time, the step limit, or a
// fatal error. Setup must have been called first.
func (d *Driver) Run() error {
	if !d.setUp {
		return fmt.Errorf("discharge: Run called before Setup")
	}
	if d.cfg.Driver.GeometryOnly || d.cfg.Driver.MaxSteps == 0 {
		return nil
	}

	dcfg := &d.cfg.Driver
	stop := dcfg.StopTime
	d.wallStart = time.Now()
	firstStep := true
	lastStep := false

	for d.time < stop && d.step < dcfg.MaxSteps && !lastStep {
		// Regridding on the very first step would act on flags from
		// before the restart or the initial regrids.
		if !firstStep && d.canRegrid() {
			scheduled := dcfg.RegridInterval > 0 && d.step%dcfg.RegridInterval == 0
			if scheduled || d.comm.Or(d.stepper.NeedToRegrid()) {
				if err := d.regrid(false); err != nil {
					return d.fatal(err)
				}
			}
		}

		dt, err := d.stepper.ComputeDt()
		if err != nil {
			return d.fatal(fmt.Errorf("discharge: computing time step: %v", err))
		}
		dt = d.comm.MinFloat64(dt)
		if dcfg.MaxDt > 0 && dt > dcfg.MaxDt {
			dt = dcfg.MaxDt
		}
		if dt < dcfg.MinDt {
			dt = dcfg.MinDt
		}
		if d.dtInitial == 0 {
			d.dtInitial = dt
		}

		if dt < dtCollapseFactor*d.dtInitial {
			// Leave the best possible post-mortem behind before
			// giving up.
			if err := d.writePlot(d.plotPath(d.step)); err != nil {
				d.log.WithField("error", err).Error("final plot failed")
			}
			if err := d.writeCheckpoint(d.checkpointPath(d.step)); err != nil {
				d.log.WithField("error", err).Error("final checkpoint failed")
			}
			err := fmt.Errorf("%w: dt %g at step %d, initial dt %g",
				ErrTimeStepTooSmall, dt, d.step, d.dtInitial)
			return d.fatal(err)
		}

		// Clamp the last step so the run lands on the stop time.
		if d.time+dt > stop {
			dt = stop - d.time
		}

		actual, err := d.stepper.Advance(dt)
		if err != nil {
			return d.fatal(fmt.Errorf("discharge: advancing step %d: %v", d.step+1, err))
		}
		// The stepper may take less than it was offered; the clock
		// follows what actually happened.
		d.dt = actual
		d.time += actual
		d.step++
		d.stepper.SynchronizeSolverTimes(d.step, d.time, d.dt)

		if math.Abs(d.time-stop) < 1e-5*d.dt || d.step >= dcfg.MaxSteps {
			lastStep = true
		}

		d.logStepReport()

		if d.cfg.Plot.Interval > 0 && (d.step%d.cfg.Plot.Interval == 0 || lastStep) {
			if err := d.writePlot(d.plotPath(d.step)); err != nil {
				return d.fatal(err)
			}
		}
		if d.cfg.Checkpoint.Interval > 0 && (d.step%d.cfg.Checkpoint.Interval == 0 || lastStep) {
			if err := d.writeCheckpoint(d.checkpointPath(d.step)); err != nil {
				return d.fatal(err)
			}
		}
		firstStep = false
	}

	d.comm.Barrier()
	if err := d.comm.AbortErr(); err != nil {
		return err
	}
	d.logFinalReport()
	return nil
}

// fatal records err on every rank and returns it.
func (d *Driver) fatal(err error) error {
	d.comm.Abort(err)
	d.log.WithField("error", err).Error("fatal error")
	return err
}
