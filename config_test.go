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
	"os"
	"path/filepath"
	"testing"
)

const exampleConfig = `
[driver]
output_names = "streamer"
stop_time = 2.5e-9
max_steps = 50
regrid_interval = 5
allow_coarsening = true
refine_electrodes = 3

[amr]
coarsest_dims = [128, 128]
coarsest_dx = 1.5625e-4
max_amr_depth = 3
ref_ratios = [2, 2, 4]
max_box_size = 32

[[geometry.electrode]]
polygon = [[0.0, 0.0], [2e-3, 0.0], [2e-3, 5e-3], [0.0, 5e-3]]
live = true
potential = 15e3

[[geometry.coarsen_box]]
lo = [0.0, 0.0]
hi = [1e-2, 1e-3]
level = 1

[plot]
interval = 5

[plot.variables]
log_density = "log10(abs(electron) + 1.0)"
`

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, exampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Driver.OutputNames != "streamer" {
		t.Errorf("output_names = %q", cfg.Driver.OutputNames)
	}
	if cfg.Driver.StopTime != 2.5e-9 {
		t.Errorf("stop_time = %g", cfg.Driver.StopTime)
	}
	if !cfg.Driver.AllowCoarsening {
		t.Error("allow_coarsening not read")
	}
	if cfg.Mesh.MaxAmrDepth != 3 || cfg.Mesh.RefRatios[2] != 4 {
		t.Errorf("amr section: depth %d ratios %v", cfg.Mesh.MaxAmrDepth, cfg.Mesh.RefRatios)
	}
	if len(cfg.Geometry.Electrodes) != 1 || !cfg.Geometry.Electrodes[0].Live {
		t.Errorf("electrode section: %+v", cfg.Geometry.Electrodes)
	}
	if len(cfg.Geometry.CoarsenBoxes) != 1 || cfg.Geometry.CoarsenBoxes[0].Level != 1 {
		t.Errorf("coarsen_box section: %+v", cfg.Geometry.CoarsenBoxes)
	}
	if cfg.Plot.Variables["log_density"] == "" {
		t.Error("plot variables not read")
	}
	// Defaults fill in what the file omits.
	if cfg.Driver.InitialRegrids != 1 {
		t.Errorf("initial_regrids default = %d", cfg.Driver.InitialRegrids)
	}

	depths := cfg.RefineDepths()
	if depths.Electrodes != 3 {
		t.Errorf("electrode refine depth %d, want 3", depths.Electrodes)
	}
	if depths.Dielectrics != 3 {
		t.Errorf("dielectric refine depth %d, want fallback 3", depths.Dielectrics)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"stop before start", func(c *Config) { c.Driver.StopTime = c.Driver.StartTime }},
		{"negative steps", func(c *Config) { c.Driver.MaxSteps = -1 }},
		{"sim depth too deep", func(c *Config) { c.Mesh.MaxSimDepth = c.Mesh.MaxAmrDepth + 1 }},
		{"degenerate electrode", func(c *Config) {
			c.Geometry.Electrodes = []ElectrodeConfig{{Polygon: [][2]float64{{0, 0}, {1, 1}}}}
		}},
		{"bad permittivity", func(c *Config) {
			c.Geometry.Dielectrics = []DielectricConfig{{
				Polygon:      [][2]float64{{0, 0}, {1, 0}, {1, 1}},
				Permittivity: -2,
			}}
		}},
	}
	for _, c := range cases {
		cfg := DefaultConfig()
		c.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: accepted", c.name)
		}
	}
}

func TestCompileDerivedChecksVariables(t *testing.T) {
	if _, err := compileDerived(map[string]string{"bad": "nosuch * 2"}, []string{"electron"}); err == nil {
		t.Error("unknown variable accepted")
	}
	if _, err := compileDerived(map[string]string{"bad": "electron +"}, []string{"electron"}); err == nil {
		t.Error("malformed expression accepted")
	}
	dv, err := compileDerived(map[string]string{"l": "log10(electron)", "a": "abs(electron)"},
		[]string{"electron"})
	if err != nil {
		t.Fatal(err)
	}
	if len(dv) != 2 || dv[0].name != "a" || dv[1].name != "l" {
		t.Errorf("derived variables not in deterministic order: %v, %v", dv[0].name, dv[1].name)
	}
	res, err := dv[1].expr.Evaluate(map[string]interface{}{"electron": 100.0})
	if err != nil {
		t.Fatal(err)
	}
	if res.(float64) != 2 {
		t.Errorf("log10(100) = %v", res)
	}
}
