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

package qsort

import (
	"testing"

	"github.com/valyala/fastrand"
)

func shuffledRange(rng *fastrand.RNG, n int) []float32 {
	arr := make([]float32, n)
	for j := 0; j < len(arr); j++ {
		arr[j] = float32(j + 1)
	}
	for j := 0; j < len(arr); j++ {
		k := rng.Uint32n(uint32(len(arr)))
		arr[j], arr[k] = arr[k], arr[j]
	}
	return arr
}

func TestMedian(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 1; i < 1000; i++ {
		arr := shuffledRange(&rng, i)

		var expect float32
		if (i & 1) != 0 {
			expect = float32((i + 1) / 2)
		} else {
			expect = 0.5 * (float32(i/2) + float32(i/2+1))
		}

		res := QSelectMedianFloat32(arr)
		if res != expect {
			t.Logf("median(1..%d) got %f expect %f\n", i, res, expect)
			t.Fail()
		}
	}
}

func TestSelect(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(42)
	for _, n := range []int{1, 2, 7, 64, 513} {
		for k := 1; k <= n; k += 1 + n/9 {
			arr := shuffledRange(&rng, n)
			if res := QSelectFloat32(arr, k); res != float32(k) {
				t.Errorf("select(1..%d, %d)=%f; want %d", n, k, res, k)
			}
		}
	}
}

func TestSort(t *testing.T) {
	rng := fastrand.RNG{}
	arr := shuffledRange(&rng, 777)
	QSortFloat32(arr)
	for i, v := range arr {
		if v != float32(i+1) {
			t.Fatalf("sorted[%d]=%f; want %d", i, v, i+1)
		}
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		in   []float32
		p    float32
		want float32
	}{
		{[]float32{1, 2, 3, 4, 5}, 50, 3},
		{[]float32{5, 4, 3, 2, 1}, 0, 1},
		{[]float32{5, 4, 3, 2, 1}, 100, 5},
		{[]float32{1, 2, 3, 4}, 50, 2.5},
		{[]float32{0, 10}, 16, 1.6},
	}
	for _, tt := range tests {
		got := PercentileFloat32(append([]float32(nil), tt.in...), tt.p)
		if d := got - tt.want; d > 1e-5 || d < -1e-5 {
			t.Errorf("percentile(%v, %f)=%f; want %f", tt.in, tt.p, got, tt.want)
		}
	}
}
