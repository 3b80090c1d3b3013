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

package pca

import (
	"sort"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/mat"
)

// Converts the columns of a row-major image into samples, one row per column.
// Features are the image rows
func ColumnSamples(img []float64, width, height int) *mat.Dense {
	m := mat.NewDense(width, height, nil)
	for x := 0; x < width; x++ {
		row := m.RawRowView(x)
		for y := 0; y < height; y++ {
			row[y] = img[y*width+x]
		}
	}
	return m
}

// Inverse of ColumnSamples
func SamplesToImage(m *mat.Dense) []float64 {
	width, height := m.Dims()
	img := make([]float64, width*height)
	for x := 0; x < width; x++ {
		row := m.RawRowView(x)
		for y := 0; y < height; y++ {
			img[y*width+x] = row[y]
		}
	}
	return img
}

// Picks training samples from the columns of a row-major image. Columns are
// ranked by masked coverage, and the least covered ones are used: all with
// coverage below MaskColumnFrac of the height, but at least MinColumnFrac of
// all columns. The selection is doubled with one random circular shift along
// the features, so the fit does not learn the mask position, and shuffled.
// Deterministic for a given seed
func SelectTraining(data, weights []float64, mask []bool, width, height int, p Params) (samples, w *mat.Dense) {
	coverage := make([]int, width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if mask[y*width+x] {
				coverage[x]++
			}
		}
	}
	low := 0
	for _, c := range coverage {
		if float64(c) < p.MaskColumnFrac*float64(height) {
			low++
		}
	}
	n := int(float64(width) * p.MinColumnFrac)
	if low > n {
		n = low
	}
	if n > width {
		n = width
	}
	if n < 1 {
		n = 1
	}

	idx := make([]int, width)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return coverage[idx[a]] < coverage[idx[b]] })
	sel := idx[:n]

	rng := fastrand.RNG{}
	rng.Seed(p.Seed)
	shift := 0
	if height > 0 {
		shift = int(rng.Uint32n(uint32(height)))
	}

	samples = mat.NewDense(2*n, height, nil)
	w = mat.NewDense(2*n, height, nil)
	for s, x := range sel {
		ds, ws := samples.RawRowView(s), w.RawRowView(s)
		dr, wr := samples.RawRowView(n+s), w.RawRowView(n+s)
		for y := 0; y < height; y++ {
			ds[y] = data[y*width+x]
			ws[y] = weights[y*width+x]
			src := (y - shift + height) % height
			dr[y] = data[src*width+x]
			wr[y] = weights[src*width+x]
		}
	}

	// Fisher-Yates shuffle of the sample rows
	for i := 2*n - 1; i > 0; i-- {
		j := int(rng.Uint32n(uint32(i + 1)))
		swapRows(samples, i, j)
		swapRows(w, i, j)
	}
	return samples, w
}

func swapRows(m *mat.Dense, i, j int) {
	if i == j {
		return
	}
	a, b := m.RawRowView(i), m.RawRowView(j)
	for k := range a {
		a[k], b[k] = b[k], a[k]
	}
}
