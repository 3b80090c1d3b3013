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
	"fmt"
	"math"

	"github.com/mlnoga/destripe/internal/frame"
	"github.com/mlnoga/destripe/internal/stats"
)

// Iterations for the clipped level offset between overlapping tiles
const offsetMaxIters = 10

// An exposure reprojected onto its bounding box of the common grid
type Tile struct {
	Box    stats.Region
	Data   []float32 // reprojected science values, NaN where missing
	Weight []float32 // zero where data is missing
}

func (t *Tile) at(x, y int) int {
	return (x - t.Box.X0) + (y-t.Box.Y0)*t.Box.Width()
}

// Reprojects a frame onto the grid with the given weighting
func NewTile(f *frame.Frame, g *Grid, i int, weightType string) (*Tile, error) {
	box := g.Boxes[i]
	q := f.QualityMask()
	t := &Tile{
		Box:  box,
		Data: Reproject(f.MaskedScience(frame.DQDefaultBadBits), q, f.Width, f.Height, g.FromGrid[i], box),
	}

	switch weightType {
	case WeightExpTime:
		t.Weight = make([]float32, len(t.Data))
		for j, v := range t.Data {
			if stats.IsFinite(v) && v != 0 {
				t.Weight[j] = f.Exposure
			}
		}
	case WeightIVM:
		if f.VarRNoise == nil {
			return nil, fmt.Errorf("%d: %s has no read noise variance for ivm weighting", f.ID, f.FileName)
		}
		t.Weight = Reproject(f.VarRNoise, q, f.Width, f.Height, g.FromGrid[i], box)
		for j, v := range t.Weight {
			if d := t.Data[j]; stats.IsFinite(v) && v > 0 && stats.IsFinite(d) && d != 0 {
				t.Weight[j] = 1 / v
			} else {
				t.Weight[j] = 0
			}
		}
	default:
		return nil, fmt.Errorf("unknown weight type %q", weightType)
	}
	return t, nil
}

// Weighted reprojections of all exposures on a common grid. Read-only once built
type Stack struct {
	Grid        *Grid
	Tiles       []*Tile
	MinAreaFrac float32
}

// Weighted average of the stack around one exposure
type Subset struct {
	Box          stats.Region
	Avg          []float32 // NaN where no weight
	Contributors int       // other exposures used
}

// Builds the weighted average of all other exposures which overlap at least
// MinAreaFrac of the valid pixels of exposure i, on the bounding box of i.
// Each contributor is first brought to the level of exposure i by the clipped
// median of their difference. Exposure i itself never contributes
func (s *Stack) Subset(i int) *Subset {
	ti := s.Tiles[i]
	n := len(ti.Data)
	data := make([]float64, n)
	weights := make([]float64, n)
	valid := 0
	for k, v := range ti.Data {
		if ti.Weight[k] > 0 && stats.IsFinite(v) && v != 0 {
			valid++
		}
	}

	contributors := 0
	for j, tj := range s.Tiles {
		if j == i || valid == 0 {
			continue
		}
		r := intersect(ti.Box, tj.Box)
		if r.Empty() {
			continue
		}

		diff := make([]float32, 0, r.Width()*r.Height())
		for y := r.Y0; y < r.Y1; y++ {
			for x := r.X0; x < r.X1; x++ {
				a, b := ti.at(x, y), tj.at(x, y)
				if ti.Weight[a]*tj.Weight[b] <= 0 {
					continue
				}
				if d := tj.Data[b] - ti.Data[a]; d != 0 && stats.IsFinite(d) {
					diff = append(diff, d)
				}
			}
		}
		if len(diff) == 0 {
			continue
		}
		offset := stats.ClipValues(diff, 3, offsetMaxIters).Median

		overlap := 0
		for y := r.Y0; y < r.Y1; y++ {
			for x := r.X0; x < r.X1; x++ {
				a, b := ti.at(x, y), tj.at(x, y)
				v := tj.Weight[b] * (tj.Data[b] - offset)
				if ti.Weight[a] > 0 && v != 0 && stats.IsFinite(v) {
					overlap++
				}
			}
		}
		if float32(overlap) < s.MinAreaFrac*float32(valid) {
			continue
		}

		for y := r.Y0; y < r.Y1; y++ {
			for x := r.X0; x < r.X1; x++ {
				a, b := ti.at(x, y), tj.at(x, y)
				w := tj.Weight[b]
				if v := tj.Data[b] - offset; w > 0 && stats.IsFinite(v) {
					data[a] += float64(w * v)
					weights[a] += float64(w)
				}
			}
		}
		contributors++
	}

	avg := make([]float32, n)
	nan := float32(math.NaN())
	for k := range avg {
		if weights[k] == 0 || data[k] == 0 {
			avg[k] = nan
		} else {
			avg[k] = float32(data[k] / weights[k])
		}
	}
	return &Subset{Box: ti.Box, Avg: avg, Contributors: contributors}
}

func intersect(a, b stats.Region) stats.Region {
	return stats.Region{
		X0: maxInt(a.X0, b.X0), Y0: maxInt(a.Y0, b.Y0),
		X1: minInt(a.X1, b.X1), Y1: minInt(a.Y1, b.Y1),
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
