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

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom"

	"github.com/hansernhm/chombo-discharge/amr"
	"github.com/hansernhm/chombo-discharge/geometry"
)

// Config is the full run configuration. It is decoded from a TOML file
// and threaded explicitly through the driver; nothing reads it from a
// global.
type Config struct {
	Driver     DriverConfig     `toml:"driver"`
	Mesh       MeshConfig       `toml:"amr"`
	Geometry   GeometryConfig   `toml:"geometry"`
	Plot       PlotConfig       `toml:"plot"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
}

// DriverConfig controls the run loop and the regrid schedule.
type DriverConfig struct {
	Verbosity       int     `toml:"verbosity"`
	OutputDirectory string  `toml:"output_directory"`
	OutputNames     string  `toml:"output_names"`
	StartTime       float64 `toml:"start_time"`
	StopTime        float64 `toml:"stop_time"`
	MaxSteps        int     `toml:"max_steps"`
	MinDt           float64 `toml:"min_dt"`
	MaxDt           float64 `toml:"max_dt"`

	RegridInterval  int  `toml:"regrid_interval"`
	InitialRegrids  int  `toml:"initial_regrids"`
	AllowCoarsening bool `toml:"allow_coarsening"`
	GrowTags        int  `toml:"grow_tags"`

	GeometryOnly bool `toml:"geometry_only"`
	RestartStep  int  `toml:"restart_step"`

	RefineGeometry      int `toml:"refine_geometry"`
	RefineElectrodes    int `toml:"refine_electrodes"`
	RefineDielectrics   int `toml:"refine_dielectrics"`
	RefineGasInterfaces int `toml:"refine_gas_interfaces"`
}

// MeshConfig describes the grid hierarchy.
type MeshConfig struct {
	Origin         [2]float64 `toml:"origin"`
	CoarsestDims   [2]int     `toml:"coarsest_dims"`
	CoarsestDx     float64    `toml:"coarsest_dx"`
	MaxAmrDepth    int        `toml:"max_amr_depth"`
	MaxSimDepth    int        `toml:"max_sim_depth"`
	RefRatios      []int      `toml:"ref_ratios"`
	MaxBoxSize     int        `toml:"max_box_size"`
	BlockingFactor int        `toml:"blocking_factor"`
	NestingBuffer  int        `toml:"nesting_buffer"`
	NumGhost       int        `toml:"num_ghost"`
}

// ElectrodeConfig is one conductor given as a polygon outline.
type ElectrodeConfig struct {
	Polygon   [][2]float64 `toml:"polygon"`
	Live      bool         `toml:"live"`
	Potential float64      `toml:"potential"`
}

// DielectricConfig is one insulating solid.
type DielectricConfig struct {
	Polygon      [][2]float64 `toml:"polygon"`
	Permittivity float64      `toml:"permittivity"`
}

// CoarsenBoxConfig strips geometric refinement flags from a region.
type CoarsenBoxConfig struct {
	Lo    [2]float64 `toml:"lo"`
	Hi    [2]float64 `toml:"hi"`
	Level int        `toml:"level"`
}

// GeometryConfig lists the embedded solids.
type GeometryConfig struct {
	Electrodes   []ElectrodeConfig  `toml:"electrode"`
	Dielectrics  []DielectricConfig `toml:"dielectric"`
	CoarsenBoxes []CoarsenBoxConfig `toml:"coarsen_box"`
}

// PlotConfig controls plot file output. Variables maps extra output
// names to expressions over the stepper's plot variables; the expressions
// are evaluated per cell when the plot is written.
type PlotConfig struct {
	Interval     int               `toml:"interval"`
	MaxDepth     int               `toml:"max_depth"`
	IncludeTags  bool              `toml:"include_tags"`
	IncludeRanks bool              `toml:"include_ranks"`
	Variables    map[string]string `toml:"variables"`
}

// CheckpointConfig controls checkpoint file output.
type CheckpointConfig struct {
	Interval int `toml:"interval"`
	MaxDepth int `toml:"max_depth"`
}

// DefaultConfig returns a configuration with working defaults for
// everything a run does not have to specify.
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverConfig{
			Verbosity:       1,
			OutputDirectory: ".",
			OutputNames:     "simulation",
			StopTime:        1,
			MaxSteps:        100,
			RegridInterval:  10,
			InitialRegrids:  1,
			GrowTags:        2,
			MaxDt:           1e10,

			RefineGeometry:      -1,
			RefineElectrodes:    -1,
			RefineDielectrics:   -1,
			RefineGasInterfaces: -1,
		},
		Mesh: MeshConfig{
			CoarsestDims:   [2]int{64, 64},
			CoarsestDx:     1.0 / 64,
			MaxAmrDepth:    0,
			RefRatios:      []int{2, 2, 2, 2, 2, 2},
			MaxBoxSize:     16,
			BlockingFactor: 8,
			NestingBuffer:  1,
			NumGhost:       2,
		},
		Plot:       PlotConfig{Interval: 10, MaxDepth: -1, IncludeTags: true, IncludeRanks: true},
		Checkpoint: CheckpointConfig{Interval: 10, MaxDepth: -1},
	}
}

// LoadConfig reads a TOML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("discharge: reading configuration %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the parts of the configuration whose misuse would
// otherwise surface as a confusing failure deep in a run.
func (c *Config) Validate() error {
	d := &c.Driver
	if d.StopTime <= d.StartTime {
		return fmt.Errorf("discharge: stop time %g not after start time %g", d.StopTime, d.StartTime)
	}
	if d.MaxSteps < 0 {
		return fmt.Errorf("discharge: max_steps %d must be non-negative", d.MaxSteps)
	}
	if d.RegridInterval < 0 || d.InitialRegrids < 0 || d.GrowTags < 0 {
		return fmt.Errorf("discharge: regrid controls must be non-negative")
	}
	if c.Mesh.MaxSimDepth > c.Mesh.MaxAmrDepth {
		return fmt.Errorf("discharge: max_sim_depth %d exceeds max_amr_depth %d",
			c.Mesh.MaxSimDepth, c.Mesh.MaxAmrDepth)
	}
	for i, e := range c.Geometry.Electrodes {
		if len(e.Polygon) < 3 {
			return fmt.Errorf("discharge: electrode %d polygon has %d vertices", i, len(e.Polygon))
		}
	}
	for i, de := range c.Geometry.Dielectrics {
		if len(de.Polygon) < 3 {
			return fmt.Errorf("discharge: dielectric %d polygon has %d vertices", i, len(de.Polygon))
		}
		if de.Permittivity <= 0 {
			return fmt.Errorf("discharge: dielectric %d permittivity %g must be positive",
				i, de.Permittivity)
		}
	}
	return nil
}

// HardcapDepth returns the deepest level a regrid may create.
func (c *Config) HardcapDepth() int {
	if c.Mesh.MaxSimDepth > 0 {
		return c.Mesh.MaxSimDepth
	}
	return c.Mesh.MaxAmrDepth
}

// RefineDepths resolves the per-feature geometric refinement depths. A
// negative per-feature depth falls back to refine_geometry, and a
// negative refine_geometry means refine to the bottom of the hierarchy.
func (c *Config) RefineDepths() geometry.RefineDepths {
	base := c.Driver.RefineGeometry
	if base < 0 {
		base = c.Mesh.MaxAmrDepth
	}
	pick := func(v int) int {
		if v < 0 {
			return base
		}
		return v
	}
	return geometry.RefineDepths{
		Electrodes:    pick(c.Driver.RefineElectrodes),
		Dielectrics:   pick(c.Driver.RefineDielectrics),
		GasInterfaces: pick(c.Driver.RefineGasInterfaces),
	}
}

// BuildMesh constructs the grid hierarchy for the configured domain.
func (c *Config) BuildMesh(nranks int) (*amr.Mesh, error) {
	m := &amr.Mesh{
		Origin:         geom.Point{X: c.Mesh.Origin[0], Y: c.Mesh.Origin[1]},
		CoarseDims:     amr.IntVect{I: c.Mesh.CoarsestDims[0], J: c.Mesh.CoarsestDims[1]},
		CoarseDx:       c.Mesh.CoarsestDx,
		MaxAmrDepth:    c.Mesh.MaxAmrDepth,
		RefRatios:      c.Mesh.RefRatios,
		MaxBoxSize:     c.Mesh.MaxBoxSize,
		BlockingFactor: c.Mesh.BlockingFactor,
		NestingBuffer:  c.Mesh.NestingBuffer,
		NumGhost:       c.Mesh.NumGhost,
		NumRanks:       nranks,
	}
	if err := m.Build(); err != nil {
		return nil, err
	}
	return m, nil
}

func polygonFromConfig(pts [][2]float64) geom.Polygon {
	ring := make([]geom.Point, len(pts))
	for i, p := range pts {
		ring[i] = geom.Point{X: p[0], Y: p[1]}
	}
	return geom.Polygon{ring}
}

// BuildGeometry constructs the embedded solids and the tag coarsener.
func (c *Config) BuildGeometry() (*geometry.Computational, *geometry.Coarsener, error) {
	g := &geometry.Computational{}
	for _, e := range c.Geometry.Electrodes {
		g.Electrodes = append(g.Electrodes, geometry.ElectrodeSpec{
			Shape:     polygonFromConfig(e.Polygon),
			Live:      e.Live,
			Potential: e.Potential,
		})
	}
	for _, d := range c.Geometry.Dielectrics {
		g.Dielectrics = append(g.Dielectrics, geometry.DielectricSpec{
			Shape:        polygonFromConfig(d.Polygon),
			Permittivity: d.Permittivity,
		})
	}
	if err := g.Build(); err != nil {
		return nil, nil, err
	}
	var coarsener *geometry.Coarsener
	if len(c.Geometry.CoarsenBoxes) > 0 {
		coarsener = &geometry.Coarsener{}
		for _, b := range c.Geometry.CoarsenBoxes {
			coarsener.Boxes = append(coarsener.Boxes, geometry.CoarsenBox{
				Lo:    geom.Point{X: b.Lo[0], Y: b.Lo[1]},
				Hi:    geom.Point{X: b.Hi[0], Y: b.Hi[1]},
				Level: b.Level,
			})
		}
	}
	return g, coarsener, nil
}
