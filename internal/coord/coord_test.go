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

package coord

import (
	"math"
	"testing"
)

func closeTo(a, b Point2D) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}

func TestInvert(t *testing.T) {
	tests := []Transform2D{
		IdentityTransform2D(),
		Translation2D(3, -7),
		{0.9, -0.2, 12, 0.3, 1.1, -5},
		{0, 0.031, 1, -0.031, 0, 2},
	}
	p := Point2D{17.5, -3.25}
	for _, tr := range tests {
		inv, err := tr.Invert()
		if err != nil {
			t.Fatalf("invert %v: %s", tr, err)
		}
		q := tr.Apply(p)
		if back := inv.Apply(q); !closeTo(back, p) {
			t.Errorf("%v: round trip %v -> %v -> %v", tr, p, q, back)
		}
	}

	singular := Transform2D{1, 2, 0, 2, 4, 0}
	if _, err := singular.Invert(); err == nil {
		t.Errorf("singular matrix inverted without error")
	}
}

func TestThen(t *testing.T) {
	a := Transform2D{0.9, -0.2, 12, 0.3, 1.1, -5}
	b := Translation2D(-2, 4)
	ab := a.Then(b)
	p := Point2D{1, 2}
	want := b.Apply(a.Apply(p))
	if got := ab.Apply(p); !closeTo(got, want) {
		t.Errorf("composition gave %v; want %v", got, want)
	}
}

func TestWCSToPlane(t *testing.T) {
	scale := 0.031 / 3600
	w := LinearWCS{CRPix1: 1025, CRPix2: 1025, CRVal1: 150, CRVal2: 2, CD11: -scale, CD22: scale}
	tr := w.ToPlane(150, 2)

	// reference pixel maps to the origin
	if p := tr.Apply(Point2D{1024, 1024}); !closeTo(p, Point2D{0, 0}) {
		t.Errorf("reference pixel at %v; want origin", p)
	}
	if s := w.PixelScale(); math.Abs(s-0.031) > 1e-9 {
		t.Errorf("pixel scale %f; want 0.031", s)
	}

	// a second pointing shifted by ten pixels in declination
	w2 := w
	w2.CRVal2 += 10 * scale
	tr2 := w2.ToPlane(150, 2)
	if p := tr2.Apply(Point2D{1024, 1024}); math.Abs(p.Y-0.31) > 1e-9 || math.Abs(p.X) > 1e-9 {
		t.Errorf("shifted reference pixel at %v; want (0, 0.31)", p)
	}
}
