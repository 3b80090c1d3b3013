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

package destripe

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mlnoga/destripe/internal/filter"
	"github.com/mlnoga/destripe/internal/mask"
	"github.com/mlnoga/destripe/internal/stats"
)

// Detection threshold for pixels which are replaced by noise before filtering
const highSNSigma = 5

// Minimum connected pixels of a positive detection on the filtered data
const diffusePosPixels = 10

// Removes diffuse emission with a Butterworth high-pass and rebuilds the source
// mask on the filtered data. Flagged, non-finite and bright pixels are replaced
// with Gaussian noise at the clipped background level before filtering, and
// restored as row medians afterwards. Returns the filtered data and the union
// of positive, negative and quality masks
func FilterDiffuse(data []float32, m, quality []bool, width, height int, p *Params) ([]float32, []bool) {
	c := stats.SigmaClip(data, m, p.Sigma, p.MaxIters)
	std := float64(c.StdDev)
	if !c.Valid() || !(std > 0) {
		std = 1
	}

	highSN := mask.Build(data, quality, width, height, mask.Params{
		NSigma: highSNSigma, NPixels: 1, DilateSize: 1, Sigma: p.Sigma, MaxIters: p.MaxIters,
	})
	normal := distuv.Normal{Mu: 0, Sigma: std, Src: rand.NewSource(uint64(p.PCASeed))}
	bad := make([]bool, len(data))
	filled := make([]float32, len(data))
	for i, v := range data {
		if quality[i] || highSN[i] || !stats.IsFinite(v) {
			bad[i] = true
			filled[i] = float32(normal.Rand())
		} else {
			filled[i] = v
		}
	}

	px, py := width/4, height/4
	padded, pw, ph := filter.ReflectPad(filled, width, height, px, py)
	hp := filter.ButterworthHighPass(padded, pw, ph, filter.DefaultCutoffRatio, filter.DefaultOrder)
	res := filter.Crop(hp, pw, px, py, width, height)

	nan := float32(math.NaN())
	for i := range res {
		if bad[i] {
			res[i] = nan
		}
	}
	rows := stats.MaskedRowMedians(res, nil, width, stats.Region{X0: 0, Y0: 0, X1: width, Y1: height})
	for y := 0; y < height; y++ {
		fill := rows[y]
		if !stats.IsFinite(fill) {
			fill = 0
		}
		row := res[y*width : (y+1)*width]
		for x, v := range row {
			if !stats.IsFinite(v) {
				row[x] = fill
			}
		}
	}

	pos := mask.Build(res, quality, width, height, mask.Params{
		NSigma: p.Sigma, NPixels: diffusePosPixels, DilateSize: p.DilateSize, Sigma: p.Sigma, MaxIters: p.MaxIters,
	})
	negParams := mask.DefaultParams()
	negParams.NSigma, negParams.Sigma, negParams.NPixels, negParams.MaxIters = p.Sigma, p.Sigma, p.NPixels, p.MaxIters
	neg := mask.BuildNegative(res, mask.Or(quality, pos), width, height, negParams)
	return res, mask.Or(pos, neg, quality)
}
