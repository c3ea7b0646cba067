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

import "sync"

// Group is a set of in-process ranks backed by goroutines. Every rank runs
// the same program; collectives rendezvous through shared memory.
type Group struct {
	size int

	mu    sync.Mutex
	cond  *sync.Cond
	vals  []float64
	count int
	gen   int
	out   []float64

	sliceVals  [][]float64
	sliceCount int
	sliceGen   int
	sliceOut   [][]float64

	errMu sync.Mutex
	err   error
}

// NewGroup returns a communicator group of the given size.
func NewGroup(size int) *Group {
	if size < 1 {
		size = 1
	}
	g := &Group{size: size}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Comm returns the communicator for one rank of the group.
func (g *Group) Comm(rank int) Comm {
	return &groupComm{g: g, rank: rank}
}

// Run starts size ranks, calls f on each with its communicator, and
// returns the first error any rank reported.
func Run(size int, f func(Comm) error) error {
	g := NewGroup(size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			errs[r] = f(g.Comm(r))
		}(r)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// gather blocks until every rank has contributed a value, then returns the
// full vector to each rank. Ranks must call collectives in the same order.
func (g *Group) gather(v float64) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	myGen := g.gen
	g.vals = append(g.vals, v)
	g.count++
	if g.count == g.size {
		g.out = g.vals
		g.vals = nil
		g.count = 0
		g.gen++
		g.cond.Broadcast()
	} else {
		for g.gen == myGen {
			g.cond.Wait()
		}
	}
	return g.out
}

// gatherSlice is the slice analogue of gather, used for field reductions.
// It keeps its own generation counter so slice and scalar collectives can
// be mixed, as long as all ranks call them in the same order.
func (g *Group) gatherSlice(v []float64) [][]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	myGen := g.sliceGen
	g.sliceVals = append(g.sliceVals, v)
	g.sliceCount++
	if g.sliceCount == g.size {
		g.sliceOut = g.sliceVals
		g.sliceVals = nil
		g.sliceCount = 0
		g.sliceGen++
		g.cond.Broadcast()
	} else {
		for g.sliceGen == myGen {
			g.cond.Wait()
		}
	}
	return g.sliceOut
}

func (g *Group) abort(err error) {
	g.errMu.Lock()
	defer g.errMu.Unlock()
	if g.err == nil {
		g.err = err
	}
}

func (g *Group) abortErr() error {
	g.errMu.Lock()
	defer g.errMu.Unlock()
	return g.err
}

type groupComm struct {
	g    *Group
	rank int
}

func (c *groupComm) Rank() int { return c.rank }

func (c *groupComm) Size() int { return c.g.size }

func (c *groupComm) IsRoot() bool { return c.rank == 0 }

func (c *groupComm) Barrier() {
	c.g.gather(0)
}

func (c *groupComm) MaxInt(v int) int {
	vals := c.g.gather(float64(v))
	out := v
	for _, x := range vals {
		if int(x) > out {
			out = int(x)
		}
	}
	return out
}

func (c *groupComm) MinFloat64(v float64) float64 {
	out := v
	for _, x := range c.g.gather(v) {
		if x < out {
			out = x
		}
	}
	return out
}

func (c *groupComm) MaxFloat64(v float64) float64 {
	out := v
	for _, x := range c.g.gather(v) {
		if x > out {
			out = x
		}
	}
	return out
}

func (c *groupComm) SumInt64(v int64) int64 {
	var out int64
	for _, x := range c.g.gather(float64(v)) {
		out += int64(x)
	}
	return out
}

func (c *groupComm) SumFloat64s(v []float64) []float64 {
	// Contribute a copy: other ranks read the gathered slices after this
	// rank has already returned and possibly overwritten v.
	mine := append([]float64(nil), v...)
	out := make([]float64, len(v))
	for _, xs := range c.g.gatherSlice(mine) {
		for i, x := range xs {
			out[i] += x
		}
	}
	return out
}

func (c *groupComm) Or(v bool) bool {
	x := 0.0
	if v {
		x = 1
	}
	for _, y := range c.g.gather(x) {
		if y != 0 {
			return true
		}
	}
	return false
}

func (c *groupComm) Abort(err error) { c.g.abort(err) }

func (c *groupComm) AbortErr() error { return c.g.abortErr() }
