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

package filter

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Default Butterworth parameters for removing diffuse emission
const (
	DefaultCutoffRatio = 0.005
	DefaultOrder       = 2.0
)

// Pads a row-major image by px columns left and right and py rows top and
// bottom, reflecting at the edges
func ReflectPad(img []float32, width, height, px, py int) (out []float32, w, h int) {
	w, h = width+2*px, height+2*py
	out = make([]float32, w*h)
	for y := 0; y < h; y++ {
		sy := ReflectIndex(y-py, height)
		for x := 0; x < w; x++ {
			out[y*w+x] = img[sy*width+ReflectIndex(x-px, width)]
		}
	}
	return out, w, h
}

// Cuts the rectangle starting at x0, y0 of given size out of a row-major image
func Crop(img []float32, width, x0, y0, w, h int) []float32 {
	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		copy(out[y*w:(y+1)*w], img[(y0+y)*width+x0:(y0+y)*width+x0+w])
	}
	return out
}

// Squared Butterworth high-pass filter of a row-major image in the frequency
// domain. With q the sum over both axes of (frequency/cutoffRatio)^2 in cycles
// per sample, each coefficient is scaled by q^order/(1+q^order). Removes the
// constant term entirely. Returns a new image
func ButterworthHighPass(img []float32, width, height int, cutoffRatio, order float64) []float32 {
	data := make([]complex128, width*height)
	for i, v := range img {
		data[i] = complex(float64(v), 0)
	}
	fft2(data, width, height, true)

	qx := axisWeights(width, cutoffRatio)
	qy := axisWeights(height, cutoffRatio)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			q := math.Pow(qx[x]+qy[y], order)
			data[y*width+x] *= complex(q/(1+q), 0)
		}
	}

	fft2(data, width, height, false)
	scale := 1 / float64(width*height)
	out := make([]float32, len(img))
	for i, c := range data {
		out[i] = float32(real(c) * scale)
	}
	return out
}

// Squared normalized frequency per coefficient index, in FFT order
func axisWeights(n int, cutoffRatio float64) []float64 {
	q := make([]float64, n)
	for k := range q {
		f := float64(k)
		if k > (n-1)/2 {
			f -= float64(n)
		}
		f /= float64(n) * cutoffRatio
		q[k] = f * f
	}
	return q
}

// In-place unnormalized 2-D transform, rows first then columns
func fft2(data []complex128, width, height int, forward bool) {
	rowFFT := fourier.NewCmplxFFT(width)
	colFFT := fourier.NewCmplxFFT(height)

	tmp := make([]complex128, width)
	for y := 0; y < height; y++ {
		row := data[y*width : (y+1)*width]
		copy(tmp, row)
		if forward {
			rowFFT.Coefficients(row, tmp)
		} else {
			rowFFT.Sequence(row, tmp)
		}
	}

	col := make([]complex128, height)
	res := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = data[y*width+x]
		}
		if forward {
			colFFT.Coefficients(res, col)
		} else {
			colFFT.Sequence(res, col)
		}
		for y := 0; y < height; y++ {
			data[y*width+x] = res[y]
		}
	}
}
