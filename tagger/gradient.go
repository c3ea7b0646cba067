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

// Package tagger provides refinement-flag generators that read solver
// data through a tracer callback, keeping them independent of any
// particular physics module.
package tagger

import (
	"fmt"
	"math"

	discharge "github.com/hansernhm/chombo-discharge"
	"github.com/hansernhm/chombo-discharge/amr"
)

// GradientConfig tunes the gradient tagger.
type GradientConfig struct {
	// RefineThreshold flags a cell when |grad phi| * dx / max|phi|
	// exceeds it.
	RefineThreshold float64 `toml:"refine_threshold"`
	// CoarsenThreshold clears an existing flag when the same metric
	// falls below it.
	CoarsenThreshold float64 `toml:"coarsen_threshold"`
	// MaxLevel stops flagging on levels at or finer than it. Negative
	// means no limit.
	MaxLevel int `toml:"max_level"`
}

// DefaultGradientConfig returns thresholds that work for streamer-like
// profiles.
func DefaultGradientConfig() GradientConfig {
	return GradientConfig{RefineThreshold: 0.1, CoarsenThreshold: 0.01, MaxLevel: -1}
}

// Tracer hands the tagger the scalar field it refines on, per level.
type Tracer func(level int) (*amr.LevelField, error)

// Gradient flags cells where the tracer's normalized gradient is steep
// and clears flags where it has flattened out again.
type Gradient struct {
	mesh   *amr.Mesh
	cfg    GradientConfig
	tracer Tracer
}

// NewGradient returns a gradient tagger over the given mesh and tracer.
func NewGradient(mesh *amr.Mesh, cfg GradientConfig, tracer Tracer) *Gradient {
	return &Gradient{mesh: mesh, cfg: cfg, tracer: tracer}
}

// TagCells implements discharge.CellTagger. It reports whether it changed
// any flag.
func (g *Gradient) TagCells(tags *discharge.Tags) (bool, error) {
	finest := g.mesh.FinestLevel()
	if tags.NumLevels() < finest+1 {
		finest = tags.NumLevels() - 1
	}

	// Normalize against the largest tracer amplitude anywhere, so the
	// thresholds do not depend on the tracer's units.
	var maxAmp float64
	fields := make([]*amr.LevelField, finest+1)
	for l := 0; l <= finest; l++ {
		f, err := g.tracer(l)
		if err != nil {
			return false, fmt.Errorf("tagger: tracer on level %d: %v", l, err)
		}
		fields[l] = f
		if a := f.MaxAbs(0); a > maxAmp {
			maxAmp = a
		}
	}
	if maxAmp == 0 {
		return false, nil
	}

	changed := false
	for l := 0; l <= finest; l++ {
		if g.cfg.MaxLevel >= 0 && l > g.cfg.MaxLevel {
			break
		}
		f := fields[l]
		mask := tags.Level(l)
		for i, b := range f.Layout.Boxes {
			b.ForEach(func(iv amr.IntVect) {
				metric := g.metric(f, i, iv) / maxAmp
				switch {
				case metric > g.cfg.RefineThreshold:
					if !mask.Get(iv) {
						changed = true
					}
					mask.Set(iv, true)
				case metric < g.cfg.CoarsenThreshold:
					if mask.Get(iv) {
						mask.Set(iv, false)
						changed = true
					}
				}
			})
		}
	}
	return changed, nil
}

// metric is |grad phi| * dx at iv, by central differences where both
// neighbors are covered and one-sided differences at layout edges.
func (g *Gradient) metric(f *amr.LevelField, ibox int, iv amr.IntVect) float64 {
	center := f.Value(ibox, 0, iv)
	diff := func(lo, hi amr.IntVect) float64 {
		vlo, okLo := f.At(0, lo)
		vhi, okHi := f.At(0, hi)
		switch {
		case okLo && okHi:
			return (vhi - vlo) / 2
		case okHi:
			return vhi - center
		case okLo:
			return center - vlo
		default:
			return 0
		}
	}
	dpdx := diff(iv.Shift(-1, 0), iv.Shift(1, 0))
	dpdy := diff(iv.Shift(0, -1), iv.Shift(0, 1))
	return math.Hypot(dpdx, dpdy)
}
