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

import "errors"

var (
	// ErrTimeStepTooSmall means the time step collapsed far below its
	// initial value, which in practice means the simulation has gone
	// unstable. The driver writes a final plot and checkpoint before
	// returning it.
	ErrTimeStepTooSmall = errors.New("discharge: time step collapsed")

	// ErrCheckpointMismatch means a restart file disagrees with the
	// configured mesh on a quantity that cannot change across a
	// restart, such as the coarsest grid spacing.
	ErrCheckpointMismatch = errors.New("discharge: checkpoint incompatible with configuration")
)
