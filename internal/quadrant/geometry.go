// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package quadrant describes the amplifier layout of a detector and levels
// the bias offsets between amplifiers.
package quadrant

import (
	"fmt"

	"github.com/mlnoga/destripe/internal/stats"
)

// Amplifier layout of a detector frame. Amplifiers are contiguous column
// ranges of equal nominal width; the outermost RefPixels rows and columns are
// reference pixels without sky signal
type Geometry struct {
	Width     int
	Height    int
	NumAmps   int // number of amplifiers, 1 disables partitioning
	RefPixels int // width of the reference pixel border
}

// Default number of amplifiers and reference pixel border of full frame readouts
const (
	DefaultNumAmps   = 4
	DefaultRefPixels = 4
)

// Returns the geometry for a frame of given size. Sub-array readouts are too
// small to partition and carry no reference pixel border
func NewGeometry(width, height int, subArray bool, quadrants bool) Geometry {
	g := Geometry{Width: width, Height: height, NumAmps: DefaultNumAmps, RefPixels: DefaultRefPixels}
	if subArray {
		g.NumAmps, g.RefPixels = 1, 0
	}
	if !quadrants {
		g.NumAmps = 1
	}
	if g.Width < 4*g.NumAmps+2*g.RefPixels || g.Height <= 2*g.RefPixels {
		g.NumAmps, g.RefPixels = 1, 0
	}
	return g
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d with %d amplifiers and %d reference pixels", g.Width, g.Height, g.NumAmps, g.RefPixels)
}

// Returns true if the frame is split into more than one amplifier
func (g Geometry) Partitioned() bool { return g.NumAmps > 1 }

// Region holding sky pixels, inside the reference pixel border
func (g Geometry) Active() stats.Region {
	return stats.Region{X0: g.RefPixels, Y0: g.RefPixels, X1: g.Width - g.RefPixels, Y1: g.Height - g.RefPixels}
}

// Nominal width of one amplifier
func (g Geometry) AmpWidth() int {
	return g.Width / g.NumAmps
}

// Sky region read out by amplifier i. The last amplifier takes any remainder columns
func (g Geometry) Amp(i int) stats.Region {
	a := g.Active()
	qs := g.AmpWidth()
	x0, x1 := i*qs, (i+1)*qs
	if i == g.NumAmps-1 {
		x1 = g.Width
	}
	if x0 < a.X0 {
		x0 = a.X0
	}
	if x1 > a.X1 {
		x1 = a.X1
	}
	return stats.Region{X0: x0, Y0: a.Y0, X1: x1, Y1: a.Y1}
}

// Sky regions of all amplifiers, left to right
func (g Geometry) Amps() []stats.Region {
	res := make([]stats.Region, g.NumAmps)
	for i := range res {
		res[i] = g.Amp(i)
	}
	return res
}

// Full column range of amplifier i over all rows, including reference pixels.
// Used by the passes which model the reference pixel border as well
func (g Geometry) Readout(i int) stats.Region {
	qs := g.AmpWidth()
	x0, x1 := i*qs, (i+1)*qs
	if i == g.NumAmps-1 {
		x1 = g.Width
	}
	return stats.Region{X0: x0, Y0: 0, X1: x1, Y1: g.Height}
}

func (g Geometry) Readouts() []stats.Region {
	res := make([]stats.Region, g.NumAmps)
	for i := range res {
		res[i] = g.Readout(i)
	}
	return res
}
