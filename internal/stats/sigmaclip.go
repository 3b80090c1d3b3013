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

package stats

import (
	"fmt"
	"math"

	nl "github.com/mlnoga/destripe/internal"
	"github.com/mlnoga/destripe/internal/qsort"
)

// Results of an iterative sigma clipping run
type Clipped struct {
	Mean   float32
	Median float32
	StdDev float32
	N      int // number of values surviving the clipping
}

func (c Clipped) String() string {
	return fmt.Sprintf("mean %.4g median %.4g stddev %.4g n %d", c.Mean, c.Median, c.StdDev, c.N)
}

// Returns true if the statistics were computed from at least one value
func (c Clipped) Valid() bool { return c.N > 0 }

var nan32 = float32(math.NaN())

// Statistics of an empty set, all non-finite
func emptyClipped() Clipped {
	return Clipped{Mean: nan32, Median: nan32, StdDev: nan32}
}

// Returns true if v is neither NaN nor infinite
func IsFinite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// A rectangular region of a row-major array in pixel coordinates.
// X0 and Y0 are inclusive, X1 and Y1 exclusive
type Region struct {
	X0, Y0, X1, Y1 int
}

func (r Region) Width() int  { return r.X1 - r.X0 }
func (r Region) Height() int { return r.Y1 - r.Y0 }
func (r Region) Empty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

func (r Region) String() string {
	return fmt.Sprintf("[%d:%d, %d:%d]", r.Y0, r.Y1, r.X0, r.X1)
}

// Computes mean, median and population standard deviation of the given values
// after iteratively clipping values farther than sigma standard deviations from
// the median. Stops when no further value is clipped, or after maxIters
// iterations. maxIters<=0 iterates until convergence. Masked and non-finite
// values are ignored. A nil mask masks nothing.
func SigmaClip(data []float32, mask []bool, sigma float32, maxIters int) Clipped {
	buf := nl.GetArrayOfFloat32FromPool(len(data))
	defer nl.PutArrayOfFloat32IntoPool(buf)

	valid := buf[:0]
	for i, v := range data {
		if (mask == nil || !mask[i]) && IsFinite(v) {
			valid = append(valid, v)
		}
	}
	return ClipValues(valid, sigma, maxIters)
}

// Sigma clipping over a rectangular region of a row-major array of given width
func SigmaClipRegion(data []float32, mask []bool, width int, r Region, sigma float32, maxIters int) Clipped {
	if r.Empty() {
		return emptyClipped()
	}
	buf := nl.GetArrayOfFloat32FromPool(r.Width() * r.Height())
	defer nl.PutArrayOfFloat32IntoPool(buf)

	valid := buf[:0]
	for y := r.Y0; y < r.Y1; y++ {
		for x := r.X0; x < r.X1; x++ {
			i := y*width + x
			if v := data[i]; (mask == nil || !mask[i]) && IsFinite(v) {
				valid = append(valid, v)
			}
		}
	}
	return ClipValues(valid, sigma, maxIters)
}

// Sigma clipping of a set of finite values. Reorders and overwrites the given slice
func ClipValues(v []float32, sigma float32, maxIters int) Clipped {
	if len(v) == 0 {
		return emptyClipped()
	}
	for iter := 0; maxIters <= 0 || iter < maxIters; iter++ {
		median := qsort.QSelectMedianFloat32(v)
		_, std := meanStdDev(v)
		lo, hi := median-sigma*std, median+sigma*std

		kept := 0
		for _, x := range v {
			if x >= lo && x <= hi {
				v[kept] = x
				kept++
			}
		}
		if kept == len(v) || kept == 0 {
			break
		}
		v = v[:kept]
	}

	mean, std := meanStdDev(v)
	return Clipped{
		Mean:   mean,
		Median: qsort.QSelectMedianFloat32(v),
		StdDev: std,
		N:      len(v),
	}
}

// Mean and population standard deviation, accumulated in float64
func meanStdDev(v []float32) (mean, std float32) {
	if len(v) == 0 {
		return nan32, nan32
	}
	sum := 0.0
	for _, x := range v {
		sum += float64(x)
	}
	m := sum / float64(len(v))
	sq := 0.0
	for _, x := range v {
		d := float64(x) - m
		sq += d * d
	}
	return float32(m), float32(math.Sqrt(sq / float64(len(v))))
}

// Sigma clipped statistics for each row of the region, indexed from r.Y0.
// Rows without valid values have non-finite statistics
func ClipRows(data []float32, mask []bool, width int, r Region, sigma float32, maxIters int) []Clipped {
	res := make([]Clipped, r.Height())
	buf := nl.GetArrayOfFloat32FromPool(r.Width())
	defer nl.PutArrayOfFloat32IntoPool(buf)

	for y := r.Y0; y < r.Y1; y++ {
		valid := buf[:0]
		for x := r.X0; x < r.X1; x++ {
			i := y*width + x
			if v := data[i]; (mask == nil || !mask[i]) && IsFinite(v) {
				valid = append(valid, v)
			}
		}
		res[y-r.Y0] = ClipValues(valid, sigma, maxIters)
	}
	return res
}

// Sigma clipped statistics for each column of the region, indexed from r.X0.
// Columns without valid values have non-finite statistics
func ClipCols(data []float32, mask []bool, width int, r Region, sigma float32, maxIters int) []Clipped {
	res := make([]Clipped, r.Width())
	buf := nl.GetArrayOfFloat32FromPool(r.Height())
	defer nl.PutArrayOfFloat32IntoPool(buf)

	for x := r.X0; x < r.X1; x++ {
		valid := buf[:0]
		for y := r.Y0; y < r.Y1; y++ {
			i := y*width + x
			if v := data[i]; (mask == nil || !mask[i]) && IsFinite(v) {
				valid = append(valid, v)
			}
		}
		res[x-r.X0] = ClipValues(valid, sigma, maxIters)
	}
	return res
}

// Extracts the medians of a list of clipping results
func Medians(cs []Clipped) []float32 {
	res := make([]float32, len(cs))
	for i, c := range cs {
		res[i] = c.Median
	}
	return res
}

// Sigma clipped median for each row of the region
func ClippedRowMedians(data []float32, mask []bool, width int, r Region, sigma float32, maxIters int) []float32 {
	return Medians(ClipRows(data, mask, width, r, sigma, maxIters))
}

// Sigma clipped median for each column of the region
func ClippedColMedians(data []float32, mask []bool, width int, r Region, sigma float32, maxIters int) []float32 {
	return Medians(ClipCols(data, mask, width, r, sigma, maxIters))
}

// Subtracts the sigma clipped median of the finite entries from every finite
// entry of the profile, in place. Returns the subtracted value, or zero if the
// profile has no finite entries
func Centre(profile []float32, sigma float32, maxIters int) float32 {
	c := SigmaClip(profile, nil, sigma, maxIters)
	if !c.Valid() {
		return 0
	}
	for i, v := range profile {
		if IsFinite(v) {
			profile[i] = v - c.Median
		}
	}
	return c.Median
}

// Replaces non-finite entries with the given value, in place. Returns the number of replacements
func FillNaN(profile []float32, value float32) (n int) {
	for i, v := range profile {
		if !IsFinite(v) {
			profile[i] = value
			n++
		}
	}
	return n
}

// Counts non-finite entries
func CountNaN(profile []float32) (n int) {
	for _, v := range profile {
		if !IsFinite(v) {
			n++
		}
	}
	return n
}
