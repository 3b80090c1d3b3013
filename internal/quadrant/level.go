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

package quadrant

import (
	"github.com/mlnoga/destripe/internal/stats"
)

// Default number of columns compared on either side of an amplifier boundary
const DefaultStripWidth = 20

// Strips of stripWidth columns on both sides of the boundary between
// amplifiers i and i+1, limited to the amplifier extents
func (g Geometry) BoundaryStrips(i, stripWidth int) (left, right stats.Region) {
	l, r := g.Amp(i), g.Amp(i+1)
	left, right = l, r
	if left.X1-stripWidth > left.X0 {
		left.X0 = left.X1 - stripWidth
	}
	if right.X0+stripWidth < right.X1 {
		right.X1 = right.X0 + stripWidth
	}
	return left, right
}

// Clipped median of the per-row median differences across the boundary between
// amplifiers i and i+1. Masked and non-finite pixels are excluded. Returns zero
// if no row has valid data on both sides
func (g Geometry) BoundaryOffset(data []float32, mask []bool, i, stripWidth int, sigma float32, maxIters int) float32 {
	left, right := g.BoundaryStrips(i, stripWidth)
	medL := stats.MaskedRowMedians(data, mask, g.Width, left)
	medR := stats.MaskedRowMedians(data, mask, g.Width, right)
	diff := make([]float32, len(medL))
	for y := range diff {
		diff[y] = medL[y] - medR[y] // NaN if either side is empty
	}
	c := stats.SigmaClip(diff, nil, sigma, maxIters)
	if !c.Valid() {
		return 0
	}
	return c.Median
}

// Matches the background level of each amplifier to its left neighbour, in
// place. Boundaries are processed left to right, so a shift of amplifier i+1
// carries over into the comparison with amplifier i+2. Returns the offset added
// to each amplifier
func Level(data []float32, mask []bool, g Geometry, stripWidth int, sigma float32, maxIters int) []float32 {
	offsets := make([]float32, g.NumAmps)
	if !g.Partitioned() {
		return offsets
	}
	for i := 0; i < g.NumAmps-1; i++ {
		delta := g.BoundaryOffset(data, mask, i, stripWidth, sigma, maxIters)
		if delta == 0 {
			continue
		}
		r := g.Amp(i + 1)
		for y := r.Y0; y < r.Y1; y++ {
			row := data[y*g.Width+r.X0 : y*g.Width+r.X1]
			for x := range row {
				row[x] += delta
			}
		}
		offsets[i+1] = delta
	}
	return offsets
}
