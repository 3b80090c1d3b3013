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
	"fmt"
	"math"
)

// Linear world coordinate system from FITS header keywords. Pixel coordinates
// are 1-based as in the FITS standard, sky coordinates in degrees.
type LinearWCS struct {
	CRPix1, CRPix2 float64
	CRVal1, CRVal2 float64
	CD11, CD12     float64
	CD21, CD22     float64
}

func (w LinearWCS) String() string {
	return fmt.Sprintf("crpix (%.2f, %.2f) crval (%.6f, %.6f) cd [[%.4g %.4g] [%.4g %.4g]]",
		w.CRPix1, w.CRPix2, w.CRVal1, w.CRVal2, w.CD11, w.CD12, w.CD21, w.CD22)
}

// Pixel scale in arcseconds, from the determinant of the CD matrix
func (w LinearWCS) PixelScale() float64 {
	return math.Sqrt(math.Abs(w.CD11*w.CD22-w.CD12*w.CD21)) * 3600
}

// Transformation from 0-based pixel coordinates to tangent plane offsets in
// arcseconds around the given reference point. Offsets of the reference pixel
// are computed with the local flat-sky approximation, which holds for the
// arcminute-scale dithers this is used for
func (w LinearWCS) ToPlane(refRA, refDec float64) Transform2D {
	cosDec := math.Cos(refDec * math.Pi / 180)
	dRA := w.CRVal1 - refRA
	if dRA > 180 {
		dRA -= 360
	} else if dRA < -180 {
		dRA += 360
	}
	xi0 := dRA * cosDec * 3600
	eta0 := (w.CRVal2 - refDec) * 3600

	// FITS pixel p=x+1 relative to crpix
	a, b := w.CD11*3600, w.CD12*3600
	d, e := w.CD21*3600, w.CD22*3600
	ox, oy := 1-w.CRPix1, 1-w.CRPix2
	return Transform2D{
		A: a, B: b, C: a*ox + b*oy + xi0,
		D: d, E: e, F: d*ox + e*oy + eta0,
	}
}
