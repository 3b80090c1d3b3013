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

package mosaic

import (
	"github.com/mlnoga/destripe/internal/coord"
	"github.com/mlnoga/destripe/internal/destripe"
	"github.com/mlnoga/destripe/internal/filter"
	"github.com/mlnoga/destripe/internal/frame"
	"github.com/mlnoga/destripe/internal/mask"
	"github.com/mlnoga/destripe/internal/quadrant"
	"github.com/mlnoga/destripe/internal/stats"
)

// Outcome of destriping one exposure against the stack
type Result struct {
	Noise            []float32
	Corrected        []float32
	Contributors     int
	InsufficientData bool
	Warnings         []string
}

// Models the stripes of exposure i as the row and column structure of its
// difference to the weighted average of the overlapping exposures
func DestripeExposure(f *frame.Frame, g *Grid, i int, sub *Subset, p *Params) *Result {
	w, h := f.Width, f.Height
	n := w * h
	res := &Result{Contributors: sub.Contributors}
	if sub.Contributors == 0 {
		res.InsufficientData = true
		res.Warnings = append(res.Warnings, "no overlapping exposures")
		res.Noise = make([]float32, n)
		res.Corrected = frame.Subtract(f.Sci, res.Noise)
		return res
	}

	avg := sampleBack(sub, g, i, w, h)
	full := stats.Region{X0: 0, Y0: 0, X1: w, Y1: h}
	rows := stats.MaskedRowMedians(avg, nil, w, full)
	for y := 0; y < h; y++ {
		fill := rows[y]
		for x := 0; x < w; x++ {
			if k := y*w + x; !stats.IsFinite(avg[k]) {
				avg[k] = fill
			}
		}
	}

	sci := f.MaskedScience(frame.DQDefaultBadBits)
	diff := make([]float32, n)
	for k, v := range sci {
		diff[k] = v - avg[k]
	}
	offsetBy(diff, stats.NanMedian(diff))
	m := sourceMask(diff, w, h, p)

	// columns first, then rows of the remainder
	stripes := make([]float32, n)
	ys := stats.ClippedColMedians(diff, m, w, full, p.Sigma, p.MaxIters)
	stats.Centre(ys, p.Sigma, p.MaxIters)
	stats.FillNaN(ys, 0)
	for y := 0; y < h; y++ {
		copy(stripes[y*w:(y+1)*w], ys)
	}

	rest := make([]float32, n)
	for k, v := range diff {
		rest[k] = v - stripes[k]
	}
	geom := quadrant.NewGeometry(w, h, f.SubArray, p.Quadrants)
	xs2d := make([]float32, n)
	spans := []stats.Region{full}
	if geom.Partitioned() {
		spans = geom.Readouts()
	}
	for _, r := range spans {
		xs := stats.ClippedRowMedians(rest, m, w, r, p.Sigma, p.MaxIters)
		stats.Centre(xs, p.Sigma, p.MaxIters)
		stats.FillNaN(xs, 0)
		destripe.AddRows(xs2d, w, r, xs)
	}
	centreImage(xs2d, p)
	for k, v := range xs2d {
		stripes[k] += v
	}
	centreImage(stripes, p)

	if p.DoLargeScale {
		largeScale(sci, avg, stripes, w, h, p)
	}

	res.Noise = stripes
	res.Corrected = frame.Subtract(f.Sci, stripes)
	return res
}

// Removes large-scale structure with a boxcar along the columns of the
// reference, then adds a full-width row pass of the remainder to the stripes
func largeScale(sci, avg, stripes []float32, w, h int, p *Params) {
	size := h / p.MedianFilterFactor
	if size < 1 {
		size = 1
	}
	ref := append([]float32(nil), avg...)
	stats.FillNaN(ref, zeroIfNaN(stats.NanMedian(ref)))
	boxcar := filter.BoxcarColumns(ref, w, h, size)

	diff := make([]float32, len(sci))
	for k, v := range sci {
		diff[k] = v - stripes[k] - boxcar[k]
	}
	offsetBy(diff, stats.NanMedian(diff))
	m := sourceMask(diff, w, h, p)

	xs := stats.ClippedRowMedians(diff, m, w, stats.Region{X0: 0, Y0: 0, X1: w, Y1: h}, p.Sigma, p.MaxIters)
	stats.Centre(xs, p.Sigma, p.MaxIters)
	stats.FillNaN(xs, 0)
	destripe.AddRows(stripes, w, stats.Region{X0: 0, Y0: 0, X1: w, Y1: h}, xs)
	centreImage(stripes, p)
}

// Union of positive and negative source masks
func sourceMask(diff []float32, w, h int, p *Params) []bool {
	mp := p.maskParams()
	pos := mask.Build(diff, nil, w, h, mp)
	neg := mask.BuildNegative(diff, pos, w, h, mp)
	return mask.Or(pos, neg)
}

// Samples the subset average at every detector pixel of exposure i
func sampleBack(sub *Subset, g *Grid, i, w, h int) []float32 {
	res := make([]float32, w*h)
	bw, bh := sub.Box.Width(), sub.Box.Height()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pt := g.ToGrid[i].Apply(coord.Point2D{X: float64(x), Y: float64(y)})
			res[y*w+x] = Bilinear(sub.Avg, bw, bh, pt.X-float64(sub.Box.X0), pt.Y-float64(sub.Box.Y0))
		}
	}
	return res
}

func offsetBy(data []float32, v float32) {
	if !stats.IsFinite(v) {
		return
	}
	for k := range data {
		data[k] -= v
	}
}

func zeroIfNaN(v float32) float32 {
	if stats.IsFinite(v) {
		return v
	}
	return 0
}

// Subtracts the clipped median of the image and replaces non-finite values with zero
func centreImage(img []float32, p *Params) {
	if c := stats.SigmaClip(img, nil, p.Sigma, p.MaxIters); c.Valid() {
		offsetBy(img, c.Median)
	}
	stats.FillNaN(img, 0)
}
