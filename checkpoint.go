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
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/DataDog/zstd"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/hansernhm/chombo-discharge/amr"
)

const (
	checkpointVersion = 1

	// Flags are stored as real values in checkpoint files; anything
	// above this threshold reads back as a set flag.
	taggedCellThreshold = 0.9999
)

type checkpointHeader struct {
	Version     int
	CoarsestDx  float64
	Time        float64
	Dt          float64
	Step        int
	FinestLevel int
}

type checkpointLevel struct {
	Boxes []amr.Box
	Ranks []int
	// TaggedCells holds the refinement flags as 1.0/0.0 so the level
	// data all round-trips through the same field encoding.
	TaggedCells *amr.LevelField
	Fields      map[string]*amr.LevelField
}

type checkpointFile struct {
	Header checkpointHeader
	Levels []checkpointLevel
}

// CheckpointLevelWriter collects the solver fields of one level.
type CheckpointLevelWriter struct {
	level *checkpointLevel
}

// Put stores a named field. Writing the same name twice is an error.
func (w *CheckpointLevelWriter) Put(name string, f *amr.LevelField) error {
	if _, ok := w.level.Fields[name]; ok {
		return fmt.Errorf("discharge: duplicate checkpoint field %q", name)
	}
	w.level.Fields[name] = f
	return nil
}

// CheckpointLevelReader hands the solver fields of one level back.
type CheckpointLevelReader struct {
	level *checkpointLevel
}

// Get returns a named field. A missing field is an error: a checkpoint
// that lacks a field a solver needs cannot be resumed from.
func (r *CheckpointLevelReader) Get(name string) (*amr.LevelField, error) {
	f, ok := r.level.Fields[name]
	if !ok {
		return nil, fmt.Errorf("discharge: checkpoint field %q missing", name)
	}
	return f, nil
}

// writeCheckpoint writes the full simulation state to path. Only the root
// rank writes; the write goes to a temporary file first and is renamed
// into place, with transient failures retried.
func (d *Driver) writeCheckpoint(path string) error {
	maxLevel := d.mesh.FinestLevel()
	if d.cfg.Checkpoint.MaxDepth >= 0 && d.cfg.Checkpoint.MaxDepth < maxLevel {
		maxLevel = d.cfg.Checkpoint.MaxDepth
	}

	file := checkpointFile{
		Header: checkpointHeader{
			Version:     checkpointVersion,
			CoarsestDx:  d.mesh.CoarseDx,
			Time:        d.time,
			Dt:          d.dt,
			Step:        d.step,
			FinestLevel: maxLevel,
		},
	}
	for l := 0; l <= maxLevel; l++ {
		lay := d.mesh.Layout(l)
		lvl := checkpointLevel{
			Boxes:  lay.Boxes,
			Ranks:  lay.Ranks,
			Fields: make(map[string]*amr.LevelField),
		}
		tagged := amr.NewLevelField(lay, 1)
		mask := d.tags.Level(l)
		for i, b := range lay.Boxes {
			b.ForEach(func(iv amr.IntVect) {
				if mask.Get(iv) {
					tagged.SetValue(i, 0, iv, 1)
				}
			})
		}
		lvl.TaggedCells = tagged
		if err := d.stepper.WriteCheckpointLevel(&CheckpointLevelWriter{level: &lvl}, l); err != nil {
			return fmt.Errorf("discharge: collecting checkpoint level %d: %v", l, err)
		}
		file.Levels = append(file.Levels, lvl)
	}

	d.comm.Barrier()
	if !d.comm.IsRoot() {
		d.comm.Barrier()
		return nil
	}
	err := writeCompressedGob(path, &file, d.log)
	d.comm.Barrier()
	if err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{
		"file": path, "step": d.step, "levels": maxLevel + 1,
	}).Info("wrote checkpoint")
	return nil
}

// readCheckpointFile loads and validates a checkpoint.
func readCheckpointFile(path string, coarsestDx float64) (*checkpointFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("discharge: opening checkpoint: %v", err)
	}
	defer f.Close()
	zr := zstd.NewReader(f)
	defer zr.Close()

	var file checkpointFile
	if err := gob.NewDecoder(zr).Decode(&file); err != nil {
		return nil, fmt.Errorf("discharge: decoding checkpoint %s: %v", path, err)
	}
	if file.Header.Version != checkpointVersion {
		return nil, fmt.Errorf("%w: file version %d, want %d",
			ErrCheckpointMismatch, file.Header.Version, checkpointVersion)
	}
	if rel := math.Abs(file.Header.CoarsestDx - coarsestDx); rel > 1e-12*coarsestDx {
		return nil, fmt.Errorf("%w: coarsest spacing %g in file, %g configured",
			ErrCheckpointMismatch, file.Header.CoarsestDx, coarsestDx)
	}
	if len(file.Levels) != file.Header.FinestLevel+1 {
		return nil, fmt.Errorf("%w: header says %d levels, file holds %d",
			ErrCheckpointMismatch, file.Header.FinestLevel+1, len(file.Levels))
	}
	return &file, nil
}

// writeCompressedGob writes v to path through zstd compression, via a
// temporary file renamed into place. Transient filesystem errors are
// retried with exponential backoff.
func writeCompressedGob(path string, v interface{}, log logrus.FieldLogger) error {
	op := func() error {
		tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
		if err != nil {
			return err
		}
		zw := zstd.NewWriter(tmp)
		if err := gob.NewEncoder(zw).Encode(v); err != nil {
			zw.Close()
			tmp.Close()
			os.Remove(tmp.Name())
			return err
		}
		if err := zw.Close(); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return err
		}
		return os.Rename(tmp.Name(), path)
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	notify := func(err error, t time.Duration) {
		log.WithFields(logrus.Fields{"file": path, "error": err}).
			Warnf("output write failed, retrying in %v", t)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return fmt.Errorf("discharge: writing %s: %v", path, err)
	}
	return nil
}
