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

package diag

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/mlnoga/destripe/internal/frame"
)

// Gap between the sub-images of a panel, in pixels
const panelGap = 8

// Rendering options for diagnostic panels
type Options struct {
	MaxWidth       int     `json:"maxWidth"`       // panels wider than this are downscaled. Zero keeps full size
	LowPercentile  float32 `json:"lowPercentile"`  // black point of original and corrected
	HighPercentile float32 `json:"highPercentile"` // white point of original and corrected, and noise range
}

func DefaultOptions() Options {
	return Options{MaxWidth: 1536, LowPercentile: 0.5, HighPercentile: 99.5}
}

// Renders original, noise model and corrected science side by side. Original
// and corrected share one intensity scale, the noise model is scaled
// symmetrically around zero
func Panel(f *frame.Frame, o Options) image.Image {
	w, h := f.Width, f.Height
	orig, corr := Original(f), Corrected(f)
	noise := f.Noise
	if noise == nil {
		noise = make([]float32, len(f.Sci))
	}

	lo, hi := Scale(orig, o.LowPercentile, o.HighPercentile)
	nlo, nhi := SymmetricScale(noise, o.HighPercentile)
	parts := []*image.RGBA{
		Render(orig, w, h, lo, hi, Magma),
		Render(noise, w, h, nlo, nhi, Diverging),
		Render(corr, w, h, lo, hi, Magma),
	}

	panel := image.NewRGBA(image.Rect(0, 0, 3*w+2*panelGap, h))
	draw.Draw(panel, panel.Bounds(), &image.Uniform{color.Black}, image.Point{}, draw.Src)
	for i, p := range parts {
		x0 := i * (w + panelGap)
		draw.Draw(panel, image.Rect(x0, 0, x0+w, h), p, image.Point{}, draw.Src)
	}
	return Downscale(panel, o.MaxWidth)
}

// Scales an image down to the given maximum width, keeping the aspect ratio.
// Smaller images are returned as is
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
