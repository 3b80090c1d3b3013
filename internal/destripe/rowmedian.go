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

	"github.com/mlnoga/destripe/internal/stats"
)

// Row median model: clipped median per row and amplifier, each amplifier
// profile centered on its own clipped median
func (s *state) rowMedian(noise []float32) []float32 {
	data, m := s.prepare(noise)
	if s.p.FilterDiffuse {
		data, m = FilterDiffuse(data, m, s.quality, s.f.Width, s.f.Height, s.p)
	}
	return RowMedianModel(data, m, s.f.Width, s.f.Height, s.g.Readouts(), s.p.Sigma, s.p.MaxIters)
}

// Row median model of the given column spans
func RowMedianModel(data []float32, m []bool, width, height int, spans []stats.Region, sigma float32, maxIters int) []float32 {
	model := make([]float32, width*height)
	for _, r := range spans {
		AddRows(model, width, r, centeredRowProfile(data, m, width, r, sigma, maxIters))
	}
	return model
}

// Multi-scale median filter model. For each scale in order, the masked row
// median profile minus its smoothed version is subtracted from the data and
// accumulated
func (s *state) medianFilter(noise []float32) []float32 {
	data, m := s.prepare(noise)
	if s.p.FilterDiffuse {
		data, m = FilterDiffuse(data, m, s.quality, s.f.Width, s.f.Height, s.p)
	}
	w := s.f.Width
	smooth := s.p.smoother()
	model := make([]float32, len(data))

	maxEmpty := 0
	for _, r := range s.g.Readouts() {
		acc := make([]float32, r.Height())
		for _, scale := range s.p.Scales {
			prof := stats.MaskedRowMedians(data, m, w, r)
			if e := stats.CountNaN(prof); e > maxEmpty {
				maxEmpty = e
			}
			fill := float32(0)
			if s.g.Partitioned() {
				if med := stats.NanMedian(prof); stats.IsFinite(med) {
					fill = med
				}
			}
			stats.FillNaN(prof, fill)

			sm := smooth(prof, scale)
			for y := range prof {
				prof[y] -= sm[y]
				acc[y] += prof[y]
			}
			AddRows(data, w, r, negate(prof))
		}
		stats.Centre(acc, s.p.Sigma, s.p.MaxIters)
		AddRows(model, w, r, acc)
	}

	if maxEmpty > s.p.MaxEmptyRows {
		s.res.InsufficientData = true
		s.res.warn(s.log, s.f.ID, "%d rows without valid data, likely large extended source", maxEmpty)
	}
	return model
}

// Row then column clipped medians per amplifier, after the CEERS remstripe
// routine. Without amplifiers only the row pass runs
func (s *state) remstripe(noise []float32) []float32 {
	data, m, _, active := s.prepareActive(noise)
	w := active.Width()
	trimmed := make([]float32, len(data))
	for _, amp := range s.g.Amps() {
		r := relative(amp, active)
		rows := centeredRowProfile(data, m, w, r, s.p.Sigma, s.p.MaxIters)
		AddRows(trimmed, w, r, rows)
		if !s.g.Partitioned() {
			continue
		}
		AddRows(data, w, r, negate(rows))
		cols := centeredColProfile(data, m, w, r, s.p.Sigma, s.p.MaxIters)
		AddCols(trimmed, w, r, cols)
	}
	model := make([]float32, len(noise))
	pasteFloat(model, s.f.Width, active, trimmed)
	return model
}

// Column model over the full sky height from a multi-scale median filter,
// centered on its clipped median
func (s *state) vertical(noise []float32) []float32 {
	data, m, _, active := s.prepareActive(noise)
	w := active.Width()
	r := relative(active, active)
	smooth := s.p.smoother()

	acc := make([]float32, w)
	for _, scale := range s.p.Scales {
		prof := stats.MaskedColMedians(data, m, w, r)
		stats.FillNaN(prof, 0)
		sm := smooth(prof, scale)
		for x := range prof {
			prof[x] -= sm[x]
			acc[x] += prof[x]
		}
		AddCols(data, w, r, negate(prof))
	}
	stats.Centre(acc, s.p.Sigma, s.p.MaxIters)

	trimmed := make([]float32, len(data))
	AddCols(trimmed, w, r, acc)
	model := make([]float32, len(noise))
	pasteFloat(model, s.f.Width, active, trimmed)
	fmt.Fprintf(s.log, "%d: Vertical pass over %d scales\n", s.f.ID, len(s.p.Scales))
	return model
}
