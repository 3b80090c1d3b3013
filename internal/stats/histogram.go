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

package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Counts the finite values of data between min and max into the given bins.
// Values outside the range are ignored
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	if max <= min || len(bins) == 0 {
		return
	}
	scale := float32(len(bins)) / (max - min)
	for _, d := range data {
		if !IsFinite(d) || d < min || d > max {
			continue
		}
		index := int((d - min) * scale)
		if index >= len(bins) {
			index = len(bins) - 1
		}
		bins[index]++
	}
}

// Returns the bin center and count of the histogram peak
func GetPeak(bins []int32, min, max float32) (x, y float32) {
	maxIndex, maxValue := 0, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	x = min + (float32(maxIndex)+0.5)*(max-min)/float32(len(bins))
	return x, float32(maxValue)
}

// A normal distribution fitted to a histogram
type GaussianFit struct {
	Amplitude float32
	Mode      float32
	StdDev    float32
	Residual  float32 // root mean square deviation from the histogram
}

// Fits a scaled normal distribution to the given histogram with Nelder-Mead,
// starting from the histogram peak and the given initial width
func FitGaussian(bins []int32, min, max, sigma0 float32) (fit GaussianFit, err error) {
	if len(bins) < 3 || max <= min {
		return fit, errors.New("histogram too small to fit")
	}
	peak, peakVal := GetPeak(bins, min, max)
	if peakVal <= 0 {
		return fit, errors.New("empty histogram")
	}
	binWidth := float64(max-min) / float64(len(bins))
	if sigma0 <= 0 {
		sigma0 = float32(5 * binWidth)
	}

	amp0 := float64(peakVal) * float64(sigma0) * math.Sqrt(2*math.Pi)
	x0 := []float64{amp0, float64(peak), float64(sigma0)}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], math.Abs(x[2])+1e-12
			scaler := alpha / (sigma * math.Sqrt(2*math.Pi))
			sumSqDiff := 0.0
			for i, y := range bins {
				xc := float64(min) + (float64(i)+0.5)*binWidth
				z := (xc - mu) / sigma
				diff := float64(y) - scaler*math.Exp(-0.5*z*z)
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(len(bins)))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return fit, err
	}
	return GaussianFit{
		Amplitude: float32(result.X[0]),
		Mode:      float32(result.X[1]),
		StdDev:    float32(math.Abs(result.X[2])),
		Residual:  float32(result.F),
	}, nil
}
