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

// Package destripe models and removes stripe noise from a single detector
// exposure.
package destripe

import (
	"fmt"
	"io"
	"math"

	"github.com/mlnoga/destripe/internal/frame"
	"github.com/mlnoga/destripe/internal/mask"
	"github.com/mlnoga/destripe/internal/pca"
	"github.com/mlnoga/destripe/internal/quadrant"
	"github.com/mlnoga/destripe/internal/stats"
)

// Outcome of destriping one exposure
type Result struct {
	Noise            []float32 // additive noise model, same shape as the science array
	Corrected        []float32 // science minus noise, with zero and non-finite sentinels restored
	LevelOffsets     []float32 // offsets added to each amplifier by leveling
	InsufficientData bool      // too little valid data for a trustworthy model
	Warnings         []string
}

func (r *Result) warn(log io.Writer, id int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	fmt.Fprintf(log, "%d: WARNING %s\n", id, msg)
}

// Per-exposure working state shared by the passes
type state struct {
	f       *frame.Frame
	p       *Params
	g       quadrant.Geometry
	quality []bool // flagged and no-data pixels
	store   pca.Store
	log     io.Writer
	res     *Result
}

// Computes the stripe noise model of a frame and the corrected science array.
// The frame is not modified. Insufficient data is reported in the result and
// is not an error; errors are reserved for invalid parameters, inconsistent
// frames and cache failures
func Run(f *frame.Frame, p *Params, store pca.Store, log io.Writer) (*Result, error) {
	if log == nil {
		log = io.Discard
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = pca.NewMemoryStore()
	}

	s := &state{
		f:       f,
		p:       p,
		g:       quadrant.NewGeometry(f.Width, f.Height, f.SubArray, p.Quadrants),
		quality: f.QualityMask(),
		store:   store,
		log:     log,
		res:     &Result{},
	}
	n := f.Width * f.Height
	noise := make([]float32, n)
	fmt.Fprintf(log, "%d: Destriping %s with %s, geometry %s\n", f.ID, f.DimensionsToString(), p, s.g)

	if mask.Count(s.quality) == n {
		s.res.InsufficientData = true
		s.res.warn(log, f.ID, "no valid pixels")
		return s.finish(noise), nil
	}

	if s.g.Partitioned() {
		s.level(noise)
	}
	if p.VerticalSubtraction {
		addInto(noise, s.vertical(noise))
	}

	var model []float32
	var err error
	switch p.Method {
	case MethodRowMedian:
		model = s.rowMedian(noise)
	case MethodMedianFilter:
		model = s.medianFilter(noise)
	case MethodRemstripe:
		model = s.remstripe(noise)
	case MethodPCA:
		model, err = s.pca(noise)
		if err != nil {
			return nil, err
		}
	}
	addInto(noise, model)

	return s.finish(noise), nil
}

func (s *state) finish(noise []float32) *Result {
	s.res.Noise = noise
	s.res.Corrected = frame.Subtract(s.f.Sci, noise)
	return s.res
}

func addInto(dest, src []float32) {
	for i, v := range src {
		dest[i] += v
	}
}

// Science minus the noise model so far, with no-data pixels as NaN
func (s *state) science(noise []float32) []float32 {
	nan := float32(math.NaN())
	data := make([]float32, len(s.f.Sci))
	for i, v := range s.f.Sci {
		if frame.IsNoData(v) {
			data[i] = nan
		} else {
			data[i] = v - noise[i]
		}
	}
	return data
}

// Science minus the noise model so far, and the
// union of the source mask and the quality mask
func (s *state) prepare(noise []float32) (data []float32, m []bool) {
	data = s.science(noise)
	src := mask.Build(data, s.quality, s.f.Width, s.f.Height, s.p.MaskParams())
	return data, mask.Or(src, s.quality)
}

// Like prepare, restricted to the sky region. With diffuse filtering enabled,
// the data are high-pass filtered and the mask rebuilt on the filtered data
func (s *state) prepareActive(noise []float32) (data []float32, m, quality []bool, r stats.Region) {
	full, fullMask := s.prepare(noise)
	r = s.g.Active()
	data = cropFloat(full, s.f.Width, r)
	m = cropBool(fullMask, s.f.Width, r)
	quality = cropBool(s.quality, s.f.Width, r)
	if s.p.FilterDiffuse {
		data, m = FilterDiffuse(data, m, quality, r.Width(), r.Height(), s.p)
	}
	return data, m, quality, r
}

// Levels amplifier offsets. The noise component is the negated offset per
// amplifier, centered
func (s *state) level(noise []float32) {
	data := s.science(noise)
	offsets := quadrant.Level(data, s.quality, s.g, s.p.StripWidth, s.p.Sigma, 0)
	s.res.LevelOffsets = offsets

	levels := negate(offsets)
	stats.Centre(levels, s.p.Sigma, s.p.MaxIters)
	for i, r := range s.g.Amps() {
		AddRows(noise, s.f.Width, r, constant(r.Height(), levels[i]))
	}
	fmt.Fprintf(s.log, "%d: Leveled amplifiers with offsets %v\n", s.f.ID, offsets)
}

func constant(n int, v float32) []float32 {
	res := make([]float32, n)
	for i := range res {
		res[i] = v
	}
	return res
}

func cropFloat(img []float32, width int, r stats.Region) []float32 {
	res := make([]float32, r.Width()*r.Height())
	for y := r.Y0; y < r.Y1; y++ {
		copy(res[(y-r.Y0)*r.Width():], img[y*width+r.X0:y*width+r.X1])
	}
	return res
}

func cropBool(img []bool, width int, r stats.Region) []bool {
	res := make([]bool, r.Width()*r.Height())
	for y := r.Y0; y < r.Y1; y++ {
		copy(res[(y-r.Y0)*r.Width():], img[y*width+r.X0:y*width+r.X1])
	}
	return res
}

// Writes a cropped image back into the region of a full-size one
func pasteFloat(dest []float32, width int, r stats.Region, src []float32) {
	for y := r.Y0; y < r.Y1; y++ {
		copy(dest[y*width+r.X0:y*width+r.X1], src[(y-r.Y0)*r.Width():])
	}
}

// Region translated into the coordinates of a crop starting at origin
func relative(r, origin stats.Region) stats.Region {
	return stats.Region{X0: r.X0 - origin.X0, Y0: r.Y0 - origin.Y0, X1: r.X1 - origin.X0, Y1: r.Y1 - origin.Y0}
}
