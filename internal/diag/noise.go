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
	"errors"

	"github.com/mlnoga/destripe/internal/stats"
)

const noiseBins = 256

// Estimates the background noise of data by fitting a normal distribution to
// the histogram within five robust sigmas of the median
func NoiseLevel(data []float32) (stats.GaussianFit, error) {
	r := stats.Region{X0: 0, Y0: 0, X1: len(data), Y1: 1}
	med := stats.MaskedMedianRegion(data, nil, len(data), r)
	sigma := 1.4826 * stats.MADRegion(data, nil, len(data), r)
	if !stats.IsFinite(med) || !stats.IsFinite(sigma) || sigma <= 0 {
		return stats.GaussianFit{}, errors.New("no spread in data")
	}
	min, max := med-5*sigma, med+5*sigma
	bins := make([]int32, noiseBins)
	stats.Histogram(data, min, max, bins)
	return stats.FitGaussian(bins, min, max, sigma)
}
