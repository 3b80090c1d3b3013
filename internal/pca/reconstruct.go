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
	"gonum.org/v1/gonum/mat"
)

// Reconstructs each row of data from the first k eigenvectors, using only
// entries with positive weight. The scores solve (E^T W E) a = E^T W (x-m).
// Rows without weight, or with a singular system, reconstruct to the mean.
// Returns a new matrix of the same shape
func Reconstruct(es *EigenSystem, data, weights *mat.Dense, k int) *mat.Dense {
	n, d := data.Dims()
	if k > es.Rank() {
		k = es.Rank()
	}
	if k < 0 {
		k = 0
	}
	res := mat.NewDense(n, d, nil)

	a := mat.NewSymDense(max1(k), nil)
	b := mat.NewVecDense(max1(k), nil)
	var scores mat.VecDense
	var ch mat.Cholesky
	for i := 0; i < n; i++ {
		out := res.RawRowView(i)
		copy(out, es.Mean)
		if k == 0 {
			continue
		}

		for p := 0; p < k; p++ {
			b.SetVec(p, 0)
			for q := p; q < k; q++ {
				a.SetSym(p, q, 0)
			}
		}
		sumW := 0.0
		for j := 0; j < d; j++ {
			w := weights.At(i, j)
			if w <= 0 {
				continue
			}
			sumW += w
			r := data.At(i, j) - es.Mean[j]
			e := es.Vectors.RawRowView(j)
			for p := 0; p < k; p++ {
				b.SetVec(p, b.AtVec(p)+w*e[p]*r)
				for q := p; q < k; q++ {
					a.SetSym(p, q, a.At(p, q)+w*e[p]*e[q])
				}
			}
		}
		if sumW <= 0 || !ch.Factorize(a) {
			continue
		}
		if err := ch.SolveVecTo(&scores, b); err != nil {
			continue
		}
		for j := 0; j < d; j++ {
			e := es.Vectors.RawRowView(j)
			for p := 0; p < k; p++ {
				out[j] += e[p] * scores.AtVec(p)
			}
		}
	}
	return res
}

func max1(k int) int {
	if k < 1 {
		return 1
	}
	return k
}
