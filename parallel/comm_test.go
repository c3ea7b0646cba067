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

package parallel

import (
	"errors"
	"testing"
)

func TestSerialReductionsAreIdentity(t *testing.T) {
	c := NewSerial()
	if got := c.MinFloat64(3.5); got != 3.5 {
		t.Errorf("MinFloat64: got %g", got)
	}
	if got := c.MaxInt(7); got != 7 {
		t.Errorf("MaxInt: got %d", got)
	}
	if got := c.SumFloat64s([]float64{1, 2}); got[0] != 1 || got[1] != 2 {
		t.Errorf("SumFloat64s: got %v", got)
	}
	if !c.IsRoot() {
		t.Error("serial rank is not root")
	}
}

func TestGroupReductions(t *testing.T) {
	err := Run(4, func(c Comm) error {
		r := c.Rank()
		if got := c.MaxInt(r); got != 3 {
			t.Errorf("rank %d: MaxInt got %d, want 3", r, got)
		}
		if got := c.MinFloat64(float64(r) + 0.5); got != 0.5 {
			t.Errorf("rank %d: MinFloat64 got %g, want 0.5", r, got)
		}
		if got := c.SumInt64(int64(r)); got != 6 {
			t.Errorf("rank %d: SumInt64 got %d, want 6", r, got)
		}
		if got := c.SumFloat64s([]float64{float64(r), 1}); got[0] != 6 || got[1] != 4 {
			t.Errorf("rank %d: SumFloat64s got %v, want [6 4]", r, got)
		}
		if got := c.Or(r == 2); !got {
			t.Errorf("rank %d: Or got false", r)
		}
		if got := c.Or(false); got {
			t.Errorf("rank %d: Or of all-false got true", r)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGroupOrderedCollectives(t *testing.T) {
	// Repeated collectives must not mix values across rounds.
	err := Run(3, func(c Comm) error {
		for round := 0; round < 100; round++ {
			want := int64(3 * round)
			if got := c.SumInt64(int64(round)); got != want {
				t.Errorf("rank %d round %d: got %d, want %d", c.Rank(), round, got, want)
				return errors.New("round mixing")
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGroupAbortIsSticky(t *testing.T) {
	first := errors.New("first")
	err := Run(2, func(c Comm) error {
		if c.Rank() == 1 {
			c.Abort(first)
		}
		c.Barrier()
		if c.AbortErr() == nil {
			t.Errorf("rank %d does not observe abort", c.Rank())
		}
		c.Abort(errors.New("second"))
		if got := c.AbortErr(); got != first {
			t.Errorf("rank %d: abort error %v, want first", c.Rank(), got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
