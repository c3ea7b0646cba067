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
	"fmt"
	"math"
	"sort"

	"github.com/Knetic/govaluate"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/hansernhm/chombo-discharge/amr"
	"github.com/hansernhm/chombo-discharge/geometry"
)

type plotLevel struct {
	Boxes []amr.Box
	Ranks []int
	Data  *amr.LevelField
}

type plotFile struct {
	Version     int
	Time        float64
	Dt          float64
	Step        int
	FinestLevel int
	CoarsestDx  float64
	Names       []string
	Levels      []plotLevel
}

// plotFunctions are available inside derived plot-variable expressions.
var plotFunctions = map[string]govaluate.ExpressionFunction{
	"exp": func(args ...interface{}) (interface{}, error) {
		return math.Exp(cast.ToFloat64(args[0])), nil
	},
	"log": func(args ...interface{}) (interface{}, error) {
		return math.Log(cast.ToFloat64(args[0])), nil
	},
	"log10": func(args ...interface{}) (interface{}, error) {
		return math.Log10(cast.ToFloat64(args[0])), nil
	},
	"abs": func(args ...interface{}) (interface{}, error) {
		return math.Abs(cast.ToFloat64(args[0])), nil
	},
	"min": func(args ...interface{}) (interface{}, error) {
		m := cast.ToFloat64(args[0])
		for _, a := range args[1:] {
			m = math.Min(m, cast.ToFloat64(a))
		}
		return m, nil
	},
	"max": func(args ...interface{}) (interface{}, error) {
		m := cast.ToFloat64(args[0])
		for _, a := range args[1:] {
			m = math.Max(m, cast.ToFloat64(a))
		}
		return m, nil
	},
}

// derivedVariable is one user-defined plot output, an expression over the
// stepper's plot variables.
type derivedVariable struct {
	name string
	expr *govaluate.EvaluableExpression
}

// compileDerived compiles the configured derived-variable expressions and
// checks that every variable they reference is one the stepper provides.
func compileDerived(vars map[string]string, available []string) ([]derivedVariable, error) {
	have := make(map[string]bool, len(available))
	for _, n := range available {
		have[n] = true
	}
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	// Deterministic component order.
	sort.Strings(names)
	var out []derivedVariable
	for _, n := range names {
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(vars[n], plotFunctions)
		if err != nil {
			return nil, fmt.Errorf("discharge: plot variable %q: %v", n, err)
		}
		for _, v := range expr.Vars() {
			if !have[v] {
				return nil, fmt.Errorf("discharge: plot variable %q uses unknown variable %q", n, v)
			}
		}
		out = append(out, derivedVariable{name: n, expr: expr})
	}
	return out, nil
}

// writePlot writes a plot file: the stepper's variables, any configured
// derived variables, and the driver's own cell_tags and mpi_rank
// components.
func (d *Driver) writePlot(path string) error {
	maxLevel := d.mesh.FinestLevel()
	if d.cfg.Plot.MaxDepth >= 0 && d.cfg.Plot.MaxDepth < maxLevel {
		maxLevel = d.cfg.Plot.MaxDepth
	}

	stepperNames := d.stepper.PlotVariableNames()
	derived, err := compileDerived(d.cfg.Plot.Variables, stepperNames)
	if err != nil {
		return err
	}

	names := append([]string{}, stepperNames...)
	for _, dv := range derived {
		names = append(names, dv.name)
	}
	if d.cfg.Plot.IncludeTags {
		names = append(names, "cell_tags")
	}
	if d.cfg.Plot.IncludeRanks {
		names = append(names, "mpi_rank")
	}

	file := plotFile{
		Version:     checkpointVersion,
		Time:        d.time,
		Dt:          d.dt,
		Step:        d.step,
		FinestLevel: maxLevel,
		CoarsestDx:  d.mesh.CoarseDx,
		Names:       names,
	}

	params := make(map[string]interface{}, len(stepperNames))
	for l := 0; l <= maxLevel; l++ {
		lay := d.mesh.Layout(l)
		src, err := d.stepper.PlotLevel(l)
		if err != nil {
			return fmt.Errorf("discharge: plot data on level %d: %v", l, err)
		}
		if src.NComp != len(stepperNames) {
			return fmt.Errorf("discharge: stepper wrote %d plot components, named %d",
				src.NComp, len(stepperNames))
		}
		data := amr.NewLevelField(lay, len(names))
		for i, b := range lay.Boxes {
			var evalErr error
			b.ForEach(func(iv amr.IntVect) {
				comp := 0
				for c := 0; c < src.NComp; c++ {
					v := src.Value(i, c, iv)
					params[stepperNames[c]] = v
					data.SetValue(i, comp, iv, v)
					comp++
				}
				for _, dv := range derived {
					res, err := dv.expr.Evaluate(params)
					if err != nil && evalErr == nil {
						evalErr = fmt.Errorf("discharge: evaluating plot variable %q: %v", dv.name, err)
					}
					f, err := cast.ToFloat64E(res)
					if err != nil && evalErr == nil {
						evalErr = fmt.Errorf("discharge: plot variable %q is not numeric: %v", dv.name, err)
					}
					data.SetValue(i, comp, iv, f)
					comp++
				}
				if d.cfg.Plot.IncludeTags {
					if d.tags.Level(l).Get(iv) {
						data.SetValue(i, comp, iv, 1)
					}
					comp++
				}
				if d.cfg.Plot.IncludeRanks {
					data.SetValue(i, comp, iv, float64(lay.Ranks[i]))
				}
			})
			if evalErr != nil {
				return evalErr
			}
		}
		file.Levels = append(file.Levels, plotLevel{Boxes: lay.Boxes, Ranks: lay.Ranks, Data: data})
	}

	d.comm.Barrier()
	if !d.comm.IsRoot() {
		d.comm.Barrier()
		return nil
	}
	err = writeCompressedGob(path, &file, d.log)
	d.comm.Barrier()
	if err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{
		"file": path, "step": d.step, "variables": len(names),
	}).Info("wrote plot")
	return nil
}

// writeGeometryPlot writes a plot of the cell classification only, for
// geometry-only runs.
func (d *Driver) writeGeometryPlot(path string) error {
	file := plotFile{
		Version:     checkpointVersion,
		Time:        d.time,
		FinestLevel: d.mesh.FinestLevel(),
		CoarsestDx:  d.mesh.CoarseDx,
		Names:       []string{"cell_class"},
	}
	for l := 0; l <= d.mesh.FinestLevel(); l++ {
		lay := d.mesh.Layout(l)
		data := amr.NewLevelField(lay, 1)
		for i, b := range lay.Boxes {
			b.ForEach(func(iv amr.IntVect) {
				cls := d.geometry.Classify(iv, d.mesh.Origin, d.mesh.Dx(l), geometry.AnySolid)
				data.SetValue(i, 0, iv, float64(cls))
			})
		}
		file.Levels = append(file.Levels, plotLevel{Boxes: lay.Boxes, Ranks: lay.Ranks, Data: data})
	}
	if !d.comm.IsRoot() {
		return nil
	}
	return writeCompressedGob(path, &file, d.log)
}
