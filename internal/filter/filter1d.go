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

// Package filter provides the smoothing filters used to separate stripes
// from large scale structure.
package filter

import (
	"math"

	"github.com/mlnoga/destripe/internal/qsort"
)

// Maps an index outside [0,n) into range by symmetric reflection including the
// edge sample, i.e. (d c b a | a b c d | d c b a)
func ReflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	m := i % period
	if m < 0 {
		m += period
	}
	if m >= n {
		m = period - m - 1
	}
	return m
}

// Window bounds of a centered filter of given size around index i
func window(i, size int) (lo, hi int) {
	lo = i - size/2
	return lo, lo + size
}

// One-dimensional median filter of given size with reflecting boundaries.
// Non-finite samples inside a window are skipped; a window without finite
// samples yields NaN
func Median1D(in []float32, size int) []float32 {
	n := len(in)
	out := make([]float32, n)
	if n == 0 {
		return out
	}
	if size <= 1 {
		copy(out, in)
		return out
	}
	buf := make([]float32, size)
	for i := range in {
		lo, hi := window(i, size)
		vals := buf[:0]
		for j := lo; j < hi; j++ {
			v := in[ReflectIndex(j, n)]
			if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			out[i] = float32(math.NaN())
		} else {
			out[i] = qsort.QSelectMedianFloat32(vals)
		}
	}
	return out
}

// One-dimensional moving average of given size with reflecting boundaries,
// accumulated in float64
func Boxcar1D(in []float32, size int) []float32 {
	n := len(in)
	out := make([]float32, n)
	if n == 0 {
		return out
	}
	if size <= 1 {
		copy(out, in)
		return out
	}
	lo, hi := window(0, size)
	sum := 0.0
	for j := lo; j < hi; j++ {
		sum += float64(in[ReflectIndex(j, n)])
	}
	inv := 1 / float64(size)
	out[0] = float32(sum * inv)
	for i := 1; i < n; i++ {
		sum += float64(in[ReflectIndex(hi, n)]) - float64(in[ReflectIndex(lo, n)])
		lo++
		hi++
		out[i] = float32(sum * inv)
	}
	return out
}

// Applies a moving average of given size along each column of a row-major
// image, with reflecting boundaries. Returns a new image
func BoxcarColumns(img []float32, width, height, size int) []float32 {
	out := make([]float32, len(img))
	col := make([]float32, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = img[y*width+x]
		}
		sm := Boxcar1D(col, size)
		for y := 0; y < height; y++ {
			out[y*width+x] = sm[y]
		}
	}
	return out
}
