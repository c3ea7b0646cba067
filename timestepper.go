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

package discharge

import (
	"github.com/sirupsen/logrus"

	"github.com/hansernhm/chombo-discharge/amr"
	"github.com/hansernhm/chombo-discharge/parallel"
)

// TimeStepper is the physics side of a simulation. The driver owns the
// clock, the grids and all file output; the stepper owns the solvers and
// their data. Implementations are plain values handed to New, there is no
// registration machinery.
//
// The driver calls the setup methods once, in the order they are listed
// here, then alternates Advance and regrid calls for the rest of the run.
type TimeStepper interface {
	// SetupSolvers instantiates the solvers. It is called before any
	// grids exist; solvers must not allocate grid data here.
	SetupSolvers(mesh *amr.Mesh, comm parallel.Comm, log logrus.FieldLogger) error
	// RegisterRealms registers any extra realms the solvers want their
	// own load balance for.
	RegisterRealms()
	// Allocate creates grid data over the current layouts.
	Allocate() error
	// InitialData fills the solver states at t = 0. It is called again
	// after each initial regrid so the states are consistent with the
	// refined grids.
	InitialData() error
	// PostInitialize runs once after initial data and initial regrids.
	PostInitialize() error
	// PostCheckpointSetup runs instead of InitialData and
	// PostInitialize when restarting from a checkpoint, after every
	// level has been read back.
	PostCheckpointSetup() error

	// ComputeDt returns the largest stable time step the solvers
	// accept. The driver reduces it over all ranks.
	ComputeDt() (float64, error)
	// Advance advances the solvers by at most dt and returns the step
	// actually taken. The driver resynchronizes its clock to the
	// returned value.
	Advance(dt float64) (float64, error)
	// SynchronizeSolverTimes pushes the driver clock into the solvers
	// after each step.
	SynchronizeSolverTimes(step int, time, dt float64)

	// PreRegrid caches solver data before the grids change. oldFinest
	// is the finest level about to be rebuilt.
	PreRegrid(lmin, oldFinest int) error
	// Regrid allocates solver data on the new grids and fills it from
	// the cached data, interpolating where the new grids are finer.
	Regrid(lmin, oldFinest, newFinest int) error
	// PostRegrid runs after every solver has regridded.
	PostRegrid() error
	// NeedToRegrid lets the stepper request a regrid between the
	// driver's scheduled ones.
	NeedToRegrid() bool

	// PlotVariableNames returns the names of the stepper's plot
	// variables, in component order.
	PlotVariableNames() []string
	// PlotLevel returns one component per plot variable over the
	// primal layout of the given level.
	PlotLevel(level int) (*amr.LevelField, error)

	// WriteCheckpointLevel stores the solver fields the stepper needs
	// to resume from a checkpoint.
	WriteCheckpointLevel(w *CheckpointLevelWriter, level int) error
	// ReadCheckpointLevel restores them. The grid layouts have already
	// been restored when this is called.
	ReadCheckpointLevel(r *CheckpointLevelReader, level int) error

	// Loads estimates per-box computational loads for a realm. A nil
	// return means cell-count loads.
	Loads(realm string, layout *amr.BoxLayout) []int64
}

// CellTagger marks the cells whose refinement the next regrid should
// change. Implementations read solver data through whatever access the
// stepper gives them.
type CellTagger interface {
	// TagCells writes refinement flags into the live masks and reports
	// whether it flagged anything. The masks may already carry flags
	// restored from before the previous regrid; the tagger may clear
	// flags to allow coarsening.
	TagCells(tags *Tags) (bool, error)
}
