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

// Package parallel abstracts the collective operations the simulation
// driver needs, so that the same driver code runs serially or across an
// in-process rank group.
package parallel

// Comm provides rank identity and the collective reductions used during
// time stepping and regridding. All ranks of a communicator must call the
// collective methods in the same order.
type Comm interface {
	// Rank returns the identity of the calling rank, in [0, Size).
	Rank() int
	// Size returns the number of ranks.
	Size() int

	// Barrier blocks until every rank has entered it.
	Barrier()

	// MaxInt returns the maximum of v over all ranks.
	MaxInt(v int) int
	// MinFloat64 returns the minimum of v over all ranks.
	MinFloat64(v float64) float64
	// MaxFloat64 returns the maximum of v over all ranks.
	MaxFloat64(v float64) float64
	// SumInt64 returns the sum of v over all ranks.
	SumInt64(v int64) int64
	// SumFloat64s returns the elementwise sum of v over all ranks.
	// Every rank must pass a slice of the same length.
	SumFloat64s(v []float64) []float64
	// Or returns the logical or of v over all ranks.
	Or(v bool) bool

	// Abort records err as a fatal error on every rank. It does not
	// unwind the caller; after an Abort the driver finishes its
	// collective sequence and returns AbortErr.
	Abort(err error)
	// AbortErr returns the first error passed to Abort, or nil.
	AbortErr() error

	// IsRoot reports whether the calling rank is rank 0, which owns
	// file output.
	IsRoot() bool
}

// Serial is the single-rank communicator.
type Serial struct {
	err error
}

// NewSerial returns a communicator for a single-rank run.
func NewSerial() *Serial { return &Serial{} }

func (s *Serial) Rank() int { return 0 }

func (s *Serial) Size() int { return 1 }

func (s *Serial) Barrier() {}

func (s *Serial) MaxInt(v int) int { return v }

func (s *Serial) MinFloat64(v float64) float64 { return v }

func (s *Serial) MaxFloat64(v float64) float64 { return v }

func (s *Serial) SumInt64(v int64) int64 { return v }

func (s *Serial) SumFloat64s(v []float64) []float64 { return v }

func (s *Serial) Or(v bool) bool { return v }

func (s *Serial) IsRoot() bool { return true }

func (s *Serial) Abort(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *Serial) AbortErr() error { return s.err }
