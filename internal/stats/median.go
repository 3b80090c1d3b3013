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
	nl "github.com/mlnoga/destripe/internal"
	"github.com/mlnoga/destripe/internal/qsort"
)

// Median of the unmasked finite values, or NaN if there are none
func MaskedMedian(data []float32, mask []bool) float32 {
	buf := nl.GetArrayOfFloat32FromPool(len(data))
	defer nl.PutArrayOfFloat32IntoPool(buf)

	valid := gather(buf[:0], data, mask)
	if len(valid) == 0 {
		return nan32
	}
	return qsort.QSelectMedianFloat32(valid)
}

// Median of the finite values, or NaN if there are none
func NanMedian(data []float32) float32 {
	return MaskedMedian(data, nil)
}

// Median of the unmasked finite values in a region, or NaN if there are none
func MaskedMedianRegion(data []float32, mask []bool, width int, r Region) float32 {
	if r.Empty() {
		return nan32
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
	if len(valid) == 0 {
		return nan32
	}
	return qsort.QSelectMedianFloat32(valid)
}

// Plain median of the unmasked finite values of each row in the region,
// indexed from r.Y0. Empty rows are NaN
func MaskedRowMedians(data []float32, mask []bool, width int, r Region) []float32 {
	res := make([]float32, r.Height())
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
		if len(valid) == 0 {
			res[y-r.Y0] = nan32
		} else {
			res[y-r.Y0] = qsort.QSelectMedianFloat32(valid)
		}
	}
	return res
}

// Plain median of the unmasked finite values of each column in the region,
// indexed from r.X0. Empty columns are NaN
func MaskedColMedians(data []float32, mask []bool, width int, r Region) []float32 {
	res := make([]float32, r.Width())
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
		if len(valid) == 0 {
			res[x-r.X0] = nan32
		} else {
			res[x-r.X0] = qsort.QSelectMedianFloat32(valid)
		}
	}
	return res
}

// Linearly interpolated percentile p in [0,100] of the unmasked finite values
// in a region, or NaN if there are none
func PercentileRegion(data []float32, mask []bool, width int, r Region, p float32) float32 {
	if r.Empty() {
		return nan32
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
	if len(valid) == 0 {
		return nan32
	}
	return qsort.PercentileFloat32(valid, p)
}

// Median absolute deviation from the median of the unmasked finite values in
// a region, without normal scaling. NaN if there are no values
func MADRegion(data []float32, mask []bool, width int, r Region) float32 {
	med := MaskedMedianRegion(data, mask, width, r)
	if !IsFinite(med) {
		return nan32
	}
	buf := nl.GetArrayOfFloat32FromPool(r.Width() * r.Height())
	defer nl.PutArrayOfFloat32IntoPool(buf)

	devs := buf[:0]
	for y := r.Y0; y < r.Y1; y++ {
		for x := r.X0; x < r.X1; x++ {
			i := y*width + x
			if v := data[i]; (mask == nil || !mask[i]) && IsFinite(v) {
				d := v - med
				if d < 0 {
					d = -d
				}
				devs = append(devs, d)
			}
		}
	}
	return qsort.QSelectMedianFloat32(devs)
}

// Appends the unmasked finite values of data to dest
func gather(dest, data []float32, mask []bool) []float32 {
	for i, v := range data {
		if (mask == nil || !mask[i]) && IsFinite(v) {
			dest = append(dest, v)
		}
	}
	return dest
}
