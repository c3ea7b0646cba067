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
	"time"

	"github.com/sirupsen/logrus"
)

// logGridReport logs one line per level: boxes, cells, and what fraction
// of the level's domain the grids cover.
func (d *Driver) logGridReport() {
	if d.cfg.Driver.Verbosity < 1 || !d.comm.IsRoot() {
		return
	}
	for l := 0; l <= d.mesh.FinestLevel(); l++ {
		lay := d.mesh.Layout(l)
		fill := float64(lay.NumPts()) / float64(d.mesh.Domain(l).NumPts())
		d.log.WithFields(logrus.Fields{
			"level": l,
			"boxes": lay.NumBoxes(),
			"cells": lay.NumPts(),
			"fill":  fill,
		}).Info("grid report")
	}
	for r := 0; r < d.comm.Size(); r++ {
		var cells int64
		for l := 0; l <= d.mesh.FinestLevel(); l++ {
			lay := d.mesh.Layout(l)
			for _, i := range lay.LocalIndices(r) {
				cells += lay.Boxes[i].NumPts()
			}
		}
		d.log.WithFields(logrus.Fields{"rank": r, "cells": cells}).Info("grid report")
	}
	d.log.WithField("total_cells", d.mesh.NumPts()).Info("grid report")
}

func (d *Driver) logRegridReport(oldFinest, newFinest int, elapsed time.Duration) {
	if d.cfg.Driver.Verbosity < 1 || !d.comm.IsRoot() {
		return
	}
	d.log.WithFields(logrus.Fields{
		"step":       d.step,
		"old_finest": oldFinest,
		"new_finest": newFinest,
		"cells":      d.mesh.NumPts(),
		"elapsed":    elapsed,
	}).Info("regrid report")
	d.logGridReport()
}

func (d *Driver) logStepReport() {
	if d.cfg.Driver.Verbosity < 1 || !d.comm.IsRoot() {
		return
	}
	wall := time.Since(d.wallStart)
	fields := logrus.Fields{
		"step": d.step,
		"time": d.time,
		"dt":   d.dt,
		"wall": wall,
	}
	if secs := wall.Seconds(); secs > 0 {
		fields["cells_per_sec"] = float64(d.mesh.NumPts()) * float64(d.step) / secs
	}
	d.log.WithFields(fields).Info("step report")
}

func (d *Driver) logFinalReport() {
	if !d.comm.IsRoot() {
		return
	}
	d.log.WithFields(logrus.Fields{
		"steps": d.step,
		"time":  d.time,
		"wall":  time.Since(d.wallStart),
	}).Info("simulation finished")
}
