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

// Command discharge runs adaptive plasma discharge simulations from a
// TOML configuration file.
package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	discharge "github.com/hansernhm/chombo-discharge"
	"github.com/hansernhm/chombo-discharge/parallel"
	"github.com/hansernhm/chombo-discharge/physics/cdr"
	"github.com/hansernhm/chombo-discharge/tagger"
)

var version = "dev"

// fileConfig is the full configuration file: the driver sections plus the
// physics and tagger sections, which the driver itself does not know
// about.
type fileConfig struct {
	discharge.Config
	Physics cdr.Config            `toml:"physics"`
	Tagger  tagger.GradientConfig `toml:"tagger"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{
		Config:  *discharge.DefaultConfig(),
		Physics: cdr.DefaultConfig(),
		Tagger:  tagger.DefaultGradientConfig(),
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("reading configuration %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(verbosity int) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	switch {
	case verbosity <= 0:
		log.SetLevel(logrus.WarnLevel)
	case verbosity == 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// simulate builds and runs one rank's driver. Every rank of a group runs
// this same function.
func simulate(cfg *fileConfig, comm parallel.Comm, log logrus.FieldLogger, setupOnly bool) error {
	stepper := cdr.NewStepper(cfg.Physics)
	d, err := discharge.New(&cfg.Config, stepper, nil, comm, log)
	if err != nil {
		return err
	}
	if !cfg.Driver.GeometryOnly {
		d.SetCellTagger(tagger.NewGradient(d.Mesh(), cfg.Tagger, stepper.Tracer))
	}
	if err := d.Setup(); err != nil {
		return err
	}
	if setupOnly {
		return nil
	}
	return d.Run()
}

func run(cfg *fileConfig, ranks int, setupOnly bool) error {
	log := newLogger(cfg.Driver.Verbosity)
	if ranks <= 1 {
		return simulate(cfg, parallel.NewSerial(), log, setupOnly)
	}
	return parallel.Run(ranks, func(comm parallel.Comm) error {
		return simulate(cfg, comm, log, setupOnly)
	})
}

func main() {
	var (
		configPath string
		ranks      int
	)

	root := &cobra.Command{
		Use:   "discharge",
		Short: "discharge runs adaptive plasma discharge simulations",
		Long: `discharge advances plasma discharge simulations on a block-structured
adaptive grid hierarchy, refining around steep density gradients and
embedded electrode geometry as the discharge develops.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "discharge.toml",
		"path to the TOML configuration file")
	root.PersistentFlags().IntVar(&ranks, "ranks", 1,
		"number of in-process ranks to run with")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation from a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFileConfig(configPath)
			if err != nil {
				return err
			}
			return run(cfg, ranks, false)
		},
	}

	geometryCmd := &cobra.Command{
		Use:   "geometry",
		Short: "Build only the geometry and write its plot file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFileConfig(configPath)
			if err != nil {
				return err
			}
			cfg.Driver.GeometryOnly = true
			return run(cfg, 1, true)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(runCmd, geometryCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
