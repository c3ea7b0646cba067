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

import "github.com/hansernhm/chombo-discharge/amr"

// Tags is the driver's refinement-flag bookkeeping: one dense boolean
// mask per level over the primal layouts. The masks survive a regrid by
// being cached, dropped with the old grids, and restored by spatial
// position onto the new ones.
type Tags struct {
	masks []*amr.LayoutMask
}

// NewTags allocates cleared masks over the mesh's current layouts.
func NewTags(mesh *amr.Mesh) *Tags {
	t := &Tags{}
	t.Rebuild(mesh)
	return t
}

// NumLevels returns the number of levels carrying masks.
func (t *Tags) NumLevels() int {
	return len(t.masks)
}

// Level returns the mask on the given level.
func (t *Tags) Level(l int) *amr.LayoutMask {
	return t.masks[l]
}

// Cache returns the current masks and detaches them from t, so the caller
// holds the only reference across a regrid.
func (t *Tags) Cache() []*amr.LayoutMask {
	out := t.masks
	t.masks = nil
	return out
}

// Rebuild allocates fresh cleared masks over the mesh's current layouts,
// dropping whatever masks t held.
func (t *Tags) Rebuild(mesh *amr.Mesh) {
	t.masks = make([]*amr.LayoutMask, mesh.FinestLevel()+1)
	for l := range t.masks {
		t.masks[l] = amr.NewLayoutMask(mesh.Layout(l))
	}
}

// RestoreFrom copies cached flags back by spatial position, level by
// level. Levels present in the cache but no longer in the hierarchy are
// dropped silently; a flag whose cell is not covered by the new layout is
// likewise dropped.
func (t *Tags) RestoreFrom(cache []*amr.LayoutMask) {
	n := len(t.masks)
	if len(cache) < n {
		n = len(cache)
	}
	for l := 0; l < n; l++ {
		if cache[l] != nil {
			cache[l].CopyTo(t.masks[l])
		}
	}
}

// Sets returns the flags of every level as sparse index sets.
func (t *Tags) Sets() []amr.IndexSet {
	out := make([]amr.IndexSet, len(t.masks))
	for l, m := range t.masks {
		out[l] = m.IndexSet()
	}
	return out
}

// Count returns the total number of flagged cells over all levels.
func (t *Tags) Count() int {
	n := 0
	for _, m := range t.masks {
		n += m.Count()
	}
	return n
}
