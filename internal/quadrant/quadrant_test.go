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
	"math"
	"testing"

	"github.com/mlnoga/destripe/internal/stats"
	"github.com/valyala/fastrand"
)

func TestGeometryFullFrame(t *testing.T) {
	g := NewGeometry(2040, 2040, false, true)
	want := []stats.Region{
		{X0: 4, Y0: 4, X1: 510, Y1: 2036},
		{X0: 510, Y0: 4, X1: 1020, Y1: 2036},
		{X0: 1020, Y0: 4, X1: 1530, Y1: 2036},
		{X0: 1530, Y0: 4, X1: 2036, Y1: 2036},
	}
	for i, r := range g.Amps() {
		if r != want[i] {
			t.Errorf("amp %d = %v; want %v", i, r, want[i])
		}
	}
}

func TestGeometryDisabled(t *testing.T) {
	tests := []struct {
		name     string
		subArray bool
		quads    bool
		amps     int
		ref      int
	}{
		{"full", false, true, 4, 4},
		{"no quadrants", false, false, 1, 4},
		{"subarray", true, true, 1, 0},
	}
	for _, tt := range tests {
		g := NewGeometry(2048, 2048, tt.subArray, tt.quads)
		if g.NumAmps != tt.amps || g.RefPixels != tt.ref {
			t.Errorf("%s: %v; want %d amps %d ref pixels", tt.name, g, tt.amps, tt.ref)
		}
	}
	g := NewGeometry(2048, 2048, false, false)
	if a := g.Amp(0); a != g.Active() {
		t.Errorf("single amp %v; want active region %v", a, g.Active())
	}
}

func TestLevel(t *testing.T) {
	w, h := 256, 64
	g := NewGeometry(w, h, false, true)
	rng := fastrand.RNG{}
	rng.Seed(3)
	data := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 10 + float32(rng.Uint32n(1000))/10000
			if x >= g.Amp(2).X0 && x < g.Amp(2).X1 {
				v += 3
			}
			data[y*w+x] = v
		}
	}
	mask := make([]bool, w*h)

	offsets := Level(data, mask, g, DefaultStripWidth, 3, 0)
	if math.Abs(float64(offsets[2]+3)) > 0.02 {
		t.Errorf("amp 2 offset %f; want -3", offsets[2])
	}
	for i := 0; i < g.NumAmps-1; i++ {
		d := g.BoundaryOffset(data, mask, i, DefaultStripWidth, 3, 0)
		if math.Abs(float64(d)) > 0.01 {
			t.Errorf("boundary %d difference %f after leveling; want 0", i, d)
		}
	}
}

func TestLevelIgnoresMasked(t *testing.T) {
	w, h := 128, 32
	g := NewGeometry(w, h, false, true)
	data := make([]float32, w*h)
	mask := make([]bool, w*h)
	for i := range data {
		data[i] = 1
	}
	// a bright masked blob straddling the first boundary
	b := g.Amp(1).X0
	for y := 4; y < 28; y++ {
		for x := b; x < b+10; x++ {
			data[y*w+x] = 500
			mask[y*w+x] = true
		}
	}
	offsets := Level(data, mask, g, DefaultStripWidth, 3, 0)
	for i, o := range offsets {
		if o != 0 {
			t.Errorf("offset %d = %f; want 0", i, o)
		}
	}
}

func TestReadouts(t *testing.T) {
	g := NewGeometry(2048, 16, false, true)
	rs := g.Readouts()
	if len(rs) != 4 {
		t.Fatalf("got %d readouts; want 4", len(rs))
	}
	if rs[0] != (stats.Region{X0: 0, Y0: 0, X1: 512, Y1: 16}) || rs[3].X1 != 2048 {
		t.Errorf("readouts %v; want full height quarters", rs)
	}
	g = NewGeometry(2048, 16, true, true)
	if r := g.Readout(0); r.Width() != 2048 || r.Height() != 16 {
		t.Errorf("sub-array readout %v; want whole frame", r)
	}
}
