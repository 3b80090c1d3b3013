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

package destripe

import (
	"github.com/mlnoga/destripe/internal/stats"
)

// Adds profile[y-r.Y0] to every pixel of row y within the region
func AddRows(img []float32, width int, r stats.Region, profile []float32) {
	for y := r.Y0; y < r.Y1; y++ {
		v := profile[y-r.Y0]
		row := img[y*width+r.X0 : y*width+r.X1]
		for x := range row {
			row[x] += v
		}
	}
}

// Adds profile[x-r.X0] to every pixel of column x within the region
func AddCols(img []float32, width int, r stats.Region, profile []float32) {
	for y := r.Y0; y < r.Y1; y++ {
		row := img[y*width+r.X0 : y*width+r.X1]
		for x := range row {
			row[x] += profile[x]
		}
	}
}

func negate(profile []float32) []float32 {
	res := make([]float32, len(profile))
	for i, v := range profile {
		res[i] = -v
	}
	return res
}

// Clipped row medians of a region, centered on their own clipped median, with
// empty rows set to zero
func centeredRowProfile(data []float32, m []bool, width int, r stats.Region, sigma float32, maxIters int) []float32 {
	prof := stats.ClippedRowMedians(data, m, width, r, sigma, maxIters)
	stats.Centre(prof, sigma, maxIters)
	stats.FillNaN(prof, 0)
	return prof
}

// Clipped column medians of a region, centered, with empty columns set to zero
func centeredColProfile(data []float32, m []bool, width int, r stats.Region, sigma float32, maxIters int) []float32 {
	prof := stats.ClippedColMedians(data, m, width, r, sigma, maxIters)
	stats.Centre(prof, sigma, maxIters)
	stats.FillNaN(prof, 0)
	return prof
}
