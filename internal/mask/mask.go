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

// Package mask detects sources and defects to exclude from stripe statistics.
package mask

import (
	nl "github.com/mlnoga/destripe/internal"
	"github.com/mlnoga/destripe/internal/stats"
)

// Parameters for source detection
type Params struct {
	NSigma     float32 `json:"nSigma"`     // detection threshold above background, in standard deviations
	NPixels    int     `json:"nPixels"`    // minimum number of connected pixels for a detection
	DilateSize int     `json:"dilateSize"` // side length of the square dilation footprint in pixels
	Sigma      float32 `json:"sigma"`      // clipping threshold for the background statistics
	MaxIters   int     `json:"maxIters"`   // clipping iterations for the background statistics, 0=until convergence
}

func DefaultParams() Params {
	return Params{NSigma: 3, NPixels: 3, DilateSize: 11, Sigma: 3, MaxIters: 20}
}

// Builds a source mask: connected components of at least p.NPixels pixels
// above background + p.NSigma standard deviations, dilated with a square of
// side p.DilateSize. Background statistics exclude premasked pixels, which
// also never join a component. Returns an all-false mask if nothing is detected
func Build(data []float32, premask []bool, width, height int, p Params) []bool {
	res := make([]bool, len(data))
	bg := stats.SigmaClip(data, premask, p.Sigma, p.MaxIters)
	if !bg.Valid() {
		return res
	}
	threshold := bg.Median + p.NSigma*bg.StdDev

	above := make([]bool, len(data))
	found := false
	for i, v := range data {
		if (premask == nil || !premask[i]) && stats.IsFinite(v) && v > threshold {
			above[i] = true
			found = true
		}
	}
	if !found {
		return res
	}

	n := Segment(above, width, height, p.NPixels, res)
	if n == 0 {
		return res
	}
	Dilate(res, width, height, p.DilateSize)
	return res
}

// Builds a mask of negative sources, by running Build on the negated data
func BuildNegative(data []float32, premask []bool, width, height int, p Params) []bool {
	neg := make([]float32, len(data))
	for i, v := range data {
		neg[i] = -v
	}
	return Build(neg, premask, width, height, p)
}

// Labels 8-connected components of the given binary image, and sets every
// pixel of a component with at least minPixels pixels in dest. Returns the
// number of components kept
func Segment(binary []bool, width, height int, minPixels int, dest []bool) (kept int) {
	visited := make([]bool, len(binary))
	var stack, component []int

	for start, on := range binary {
		if !on || visited[start] {
			continue
		}
		// flood fill from this seed
		component = component[:0]
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, i)

			x, y := i%width, i/width
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= height {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= width || (dx == 0 && dy == 0) {
						continue
					}
					j := ny*width + nx
					if binary[j] && !visited[j] {
						visited[j] = true
						stack = append(stack, j)
					}
				}
			}
		}
		if len(component) >= minPixels {
			for _, i := range component {
				dest[i] = true
			}
			kept++
		}
	}
	return kept
}

// Dilates the mask in place with a square footprint of the given side length.
// Separable: a horizontal then a vertical running-window maximum
func Dilate(m []bool, width, height int, size int) {
	if size <= 1 {
		return
	}
	before := size / 2
	after := size - 1 - before

	tmp := nl.GetArrayOfBoolFromPool(len(m))
	defer nl.PutArrayOfBoolIntoPool(tmp)
	line := make([]int, maxInt(width, height)+1)

	// horizontal pass into tmp
	for y := 0; y < height; y++ {
		row := m[y*width : (y+1)*width]
		line[0] = 0
		for x, v := range row {
			line[x+1] = line[x]
			if v {
				line[x+1]++
			}
		}
		out := tmp[y*width : (y+1)*width]
		for x := range out {
			lo, hi := clamp(x-after, 0, width), clamp(x+before+1, 0, width)
			out[x] = line[hi]-line[lo] > 0
		}
	}

	// vertical pass back into m
	for x := 0; x < width; x++ {
		line[0] = 0
		for y := 0; y < height; y++ {
			line[y+1] = line[y]
			if tmp[y*width+x] {
				line[y+1]++
			}
		}
		for y := 0; y < height; y++ {
			lo, hi := clamp(y-after, 0, height), clamp(y+before+1, 0, height)
			m[y*width+x] = line[hi]-line[lo] > 0
		}
	}
}

// Returns the union of the given masks. Nil masks are skipped
func Or(masks ...[]bool) []bool {
	var res []bool
	for _, m := range masks {
		if m == nil {
			continue
		}
		if res == nil {
			res = make([]bool, len(m))
		}
		for i, v := range m {
			if v {
				res[i] = true
			}
		}
	}
	return res
}

// Number of set pixels
func Count(m []bool) (n int) {
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
