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
	"fmt"
	"math"

	"github.com/mlnoga/destripe/internal/pca"
	"github.com/mlnoga/destripe/internal/stats"
)

// Robust PCA model of the sky region. Each amplifier, or the whole region, is
// normalized, fitted or taken from the cache, reconstructed from its columns
// and de-normalized. The model is centered on its clipped median over the
// unmasked pixels
func (s *state) pca(noise []float32) ([]float32, error) {
	full, fullMask := s.prepare(noise)
	w := s.f.Width
	active := s.g.Active()
	aw, ah := active.Width(), active.Height()
	whole := stats.Region{X0: 0, Y0: 0, X1: aw, Y1: ah}

	data := cropFloat(full, w, active)
	m := cropBool(fullMask, w, active)
	var errs []float32
	if s.f.Err != nil {
		errs = cropFloat(s.f.Err, w, active)
	}

	if c := stats.SigmaClip(data, m, s.p.Sigma, s.p.MaxIters); c.Valid() {
		for i, v := range data {
			data[i] = v - c.Median
		}
	}

	var train []float32
	trainMask := m
	if s.p.FilterDiffuse {
		quality := cropBool(s.quality, w, active)
		train, trainMask = FilterDiffuse(data, m, quality, aw, ah, s.p)
	} else {
		train = append([]float32(nil), data...)
	}
	nan := float32(math.NaN())
	for i, masked := range trainMask {
		if masked {
			train[i] = nan
		}
	}
	rowMed := stats.MaskedRowMedians(train, nil, aw, whole)

	trimmed := make([]float32, aw*ah)
	if s.g.Partitioned() {
		for i, amp := range s.g.Amps() {
			r := relative(amp, active)
			model, err := s.pcaSpan(train, trainMask, errs, rowMed, aw, r, i, true)
			if err != nil {
				return nil, err
			}
			pasteFloat(trimmed, aw, r, model)
		}
	} else {
		model, err := s.pcaSpan(train, trainMask, errs, rowMed, aw, whole, -1, false)
		if err != nil {
			return nil, err
		}
		trimmed = model
	}

	model := make([]float32, len(noise))
	pasteFloat(model, w, active, trimmed)
	if c := stats.SigmaClipRegion(model, fullMask, w, active, s.p.Sigma, s.p.MaxIters); c.Valid() {
		AddRows(model, w, active, constant(ah, -c.Median))
	}

	if s.p.PCAFinalRowMedian {
		corrected := make([]float32, len(full))
		for i, v := range full {
			corrected[i] = v - model[i]
		}
		addInto(model, RowMedianModel(corrected, fullMask, w, s.f.Height, s.g.Readouts(), s.p.Sigma, s.p.MaxIters))
	}
	fmt.Fprintf(s.log, "%d: PCA model with %d of %d components\n", s.f.ID, s.p.PCAReconstructComponents, s.p.PCAComponents)
	return model, nil
}

// Normalizes one span of the training data, fits or fetches its eigen-system
// and reconstructs it. Returns the de-normalized model of the span. With
// byPercentile the scale is the 16-84 percentile range, else the median
// absolute deviation
func (s *state) pcaSpan(train []float32, trainMask []bool, errs, rowMed []float32, width int, r stats.Region, amp int, byPercentile bool) ([]float32, error) {
	qw, qh := r.Width(), r.Height()
	d := cropFloat(train, width, r)
	tm := cropBool(trainMask, width, r)
	var e []float32
	if errs != nil {
		e = cropFloat(errs, width, r)
	}
	whole := stats.Region{X0: 0, Y0: 0, X1: qw, Y1: qh}

	med := stats.NanMedian(d)
	var norm float32
	if byPercentile {
		p16 := stats.PercentileRegion(d, nil, qw, whole, 16)
		p84 := stats.PercentileRegion(d, nil, qw, whole, 84)
		norm = float32(math.Abs(float64(p84 - p16)))
	} else {
		norm = stats.MADRegion(d, nil, qw, whole)
	}
	if !stats.IsFinite(norm) || norm == 0 {
		norm = 1
	}
	if !stats.IsFinite(med) {
		med = 0
	}

	vals := make([]float64, qw*qh)
	weights := make([]float64, qw*qh)
	for y := 0; y < qh; y++ {
		fill := float64((rowMed[r.Y0+y]-med)/norm + 1)
		if math.IsNaN(fill) || math.IsInf(fill, 0) {
			fill = 0
		}
		for x := 0; x < qw; x++ {
			i := y*qw + x
			sigma := float32(1)
			if e != nil {
				sigma = e[i] / norm
			}
			v := float64((d[i]-med)/norm + 1)
			if !stats.IsFinite(sigma) || math.IsNaN(v) || math.IsInf(v, 0) {
				vals[i] = fill
				continue
			}
			vals[i] = v
			if !tm[i] && sigma > 0 {
				weights[i] = 1 / float64(sigma*sigma)
			}
		}
	}

	key := pca.Key(s.f.FileName, amp, s.p.PCAParams(), vals, weights, tm)
	es, ok, err := s.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("reading eigen-system %s: %w", key, err)
	}
	if !ok {
		samples, sw := pca.SelectTraining(vals, weights, tm, qw, qh, s.p.PCAParams())
		es, err = pca.Fit(samples, sw, s.p.PCAParams())
		if err != nil {
			return nil, fmt.Errorf("fitting %s: %w", key, err)
		}
		if err := s.store.Put(key, es); err != nil {
			return nil, fmt.Errorf("writing eigen-system %s: %w", key, err)
		}
		fmt.Fprintf(s.log, "%d: Fitted %s\n", s.f.ID, es)
	} else {
		fmt.Fprintf(s.log, "%d: Using cached %s for %s\n", s.f.ID, es, key)
	}
	if es.Features() != qh {
		return nil, fmt.Errorf("cached eigen-system %s has %d features, want %d", key, es.Features(), qh)
	}

	rec := pca.Reconstruct(es, pca.ColumnSamples(vals, qw, qh), pca.ColumnSamples(weights, qw, qh), s.p.PCAReconstructComponents)
	img := pca.SamplesToImage(rec)
	model := make([]float32, qw*qh)
	for i, v := range img {
		model[i] = (float32(v)-1)*norm + med
	}
	return model, nil
}
