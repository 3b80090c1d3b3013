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

// Package diag renders diagnostic panels and stripe profiles of destriped
// frames. Nothing in here feeds back into the noise model.
package diag

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/mlnoga/destripe/internal/frame"
	"github.com/mlnoga/destripe/internal/stats"
)

// A colormap as equidistant stops, blended in HCL space
type Colormap []colorful.Color

// Creates a colormap from hex color stops
func NewColormap(hexes ...string) (Colormap, error) {
	cm := make(Colormap, len(hexes))
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, err
		}
		cm[i] = c
	}
	return cm, nil
}

func mustColormap(hexes ...string) Colormap {
	cm, err := NewColormap(hexes...)
	if err != nil {
		panic(err)
	}
	return cm
}

var (
	Magma     = mustColormap("#000004", "#3b0f70", "#8c2981", "#de4968", "#fe9f6d", "#fcfdbf")
	Diverging = mustColormap("#2166ac", "#92c5de", "#f7f7f7", "#f4a582", "#b2182b")
)

var NoDataColor = color.RGBA{0x40, 0x40, 0x40, 0xff}

// Returns the color at position t in [0,1]. Positions outside are clamped
func (cm Colormap) At(t float64) colorful.Color {
	if len(cm) == 0 {
		return colorful.Color{}
	}
	if math.IsNaN(t) || t <= 0 {
		return cm[0]
	}
	if t >= 1 || len(cm) == 1 {
		return cm[len(cm)-1]
	}
	pos := t * float64(len(cm)-1)
	i := int(pos)
	return cm[i].BlendHcl(cm[i+1], pos-float64(i)).Clamped()
}

// Returns the lo and hi percentiles of the finite values. Degenerate ranges
// are widened to unit size
func Scale(data []float32, loPct, hiPct float32) (lo, hi float32) {
	r := stats.Region{X0: 0, Y0: 0, X1: len(data), Y1: 1}
	lo = stats.PercentileRegion(data, nil, len(data), r, loPct)
	hi = stats.PercentileRegion(data, nil, len(data), r, hiPct)
	if !stats.IsFinite(lo) || !stats.IsFinite(hi) {
		return 0, 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// Symmetric scale around zero, for signed data like noise models
func SymmetricScale(data []float32, pct float32) (lo, hi float32) {
	abs := make([]float32, len(data))
	for i, v := range data {
		abs[i] = float32(math.Abs(float64(v)))
	}
	_, hi = Scale(abs, 0, pct)
	return -hi, hi
}

// Renders data through the colormap, mapping [lo,hi] onto [0,1]. No-data
// pixels are drawn in NoDataColor
func Render(data []float32, width, height int, lo, hi float32, cm Colormap) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	scale := 1 / float64(hi-lo)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := data[y*width+x]
			if !stats.IsFinite(v) {
				img.Set(x, y, NoDataColor)
				continue
			}
			img.Set(x, y, cm.At(float64(v-lo)*scale))
		}
	}
	return img
}

// Science values before the noise model was subtracted, with no-data
// pixels as NaN
func Original(f *frame.Frame) []float32 {
	orig := make([]float32, len(f.Sci))
	for i, v := range f.Sci {
		switch {
		case frame.IsNoData(v):
			orig[i] = nan32
		case f.Noise != nil:
			orig[i] = v + f.Noise[i]
		default:
			orig[i] = v
		}
	}
	return orig
}

// Current science values, with no-data pixels as NaN
func Corrected(f *frame.Frame) []float32 {
	res := make([]float32, len(f.Sci))
	for i, v := range f.Sci {
		if frame.IsNoData(v) {
			res[i] = nan32
		} else {
			res[i] = v
		}
	}
	return res
}

var nan32 = float32(math.NaN())
