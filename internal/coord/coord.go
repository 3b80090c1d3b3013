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
	"errors"
	"fmt"
	"math"
)

// A 2-dimensional point with floating point coordinates.
type Point2D struct {
	X float64
	Y float64
}

func (p Point2D) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

// A 2D affine coordinate transformation
//
//	x' = a*x + b*y + c
//	y' = d*x + e*y + f
type Transform2D struct {
	A, B, C float64
	D, E, F float64
}

func (t Transform2D) String() string {
	return fmt.Sprintf("x'=%.5gx %+.5gy %+.5g, y'=%.5gx %+.5gy %+.5g",
		t.A, t.B, t.C, t.D, t.E, t.F)
}

func IdentityTransform2D() Transform2D {
	return Transform2D{1, 0, 0, 0, 1, 0}
}

// A pure translation by dx, dy
func Translation2D(dx, dy float64) Transform2D {
	return Transform2D{1, 0, dx, 0, 1, dy}
}

// Apply given 2D transformation to the given coordinates
func (t *Transform2D) Apply(p Point2D) (pP Point2D) {
	return Point2D{
		t.A*p.X + t.B*p.Y + t.C,
		t.D*p.X + t.E*p.Y + t.F,
	}
}

// Determinant of the linear part
func (t *Transform2D) Det() float64 {
	return t.A*t.E - t.B*t.D
}

// Invert a given 2D transformation. Returns an error if the linear part is singular
func (t *Transform2D) Invert() (inv Transform2D, err error) {
	det := t.Det()
	scale := math.Abs(t.A) + math.Abs(t.B) + math.Abs(t.D) + math.Abs(t.E)
	if scale == 0 || math.Abs(det) < 1e-12*scale*scale {
		return Transform2D{}, errors.New(fmt.Sprintf("matrix has no inverse, det=%g", det))
	}
	return Transform2D{
		A: t.E / det,
		B: -t.B / det,
		C: (t.B*t.F - t.C*t.E) / det,
		D: -t.D / det,
		E: t.A / det,
		F: (t.C*t.D - t.A*t.F) / det,
	}, nil
}

// Returns the composition which applies t first, then u
func (t *Transform2D) Then(u Transform2D) Transform2D {
	return Transform2D{
		A: u.A*t.A + u.B*t.D,
		B: u.A*t.B + u.B*t.E,
		C: u.A*t.C + u.B*t.F + u.C,
		D: u.D*t.A + u.E*t.D,
		E: u.D*t.B + u.E*t.E,
		F: u.D*t.C + u.E*t.F + u.F,
	}
}

// Axis-aligned bounding box of the image of a width x height pixel grid,
// including the half-pixel border around the pixel centers
func (t *Transform2D) Bounds(width, height int) (min, max Point2D) {
	corners := []Point2D{
		{-0.5, -0.5},
		{float64(width) - 0.5, -0.5},
		{-0.5, float64(height) - 0.5},
		{float64(width) - 0.5, float64(height) - 0.5},
	}
	min = Point2D{math.Inf(1), math.Inf(1)}
	max = Point2D{math.Inf(-1), math.Inf(-1)}
	for _, c := range corners {
		p := t.Apply(c)
		min.X, min.Y = math.Min(min.X, p.X), math.Min(min.Y, p.Y)
		max.X, max.Y = math.Max(max.X, p.X), math.Max(max.Y, p.Y)
	}
	return min, max
}
