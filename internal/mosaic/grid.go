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
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/destripe/internal/coord"
	"github.com/mlnoga/destripe/internal/frame"
	"github.com/mlnoga/destripe/internal/stats"
)

// Common pixel grid covering the footprints of all frames. Its axes are those
// of the first frame, shifted so the union of all footprints starts at zero
type Grid struct {
	Width, Height int
	ToGrid        []coord.Transform2D // detector pixel to grid pixel, per frame
	FromGrid      []coord.Transform2D // grid pixel to detector pixel, per frame
	Boxes         []stats.Region      // footprint of each frame on the grid
}

func (g *Grid) String() string {
	return fmt.Sprintf("%dx%d grid of %d frames", g.Width, g.Height, len(g.Boxes))
}

// Builds the common grid from the linear world coordinate systems of the frames
func NewGrid(frames []*frame.Frame) (*Grid, error) {
	if len(frames) == 0 {
		return nil, errors.New("no frames")
	}
	for _, f := range frames {
		if f.WCS == nil {
			return nil, fmt.Errorf("%d: frame %s has no world coordinates", f.ID, f.FileName)
		}
	}
	ref := frames[0].WCS
	toPlane0 := ref.ToPlane(ref.CRVal1, ref.CRVal2)
	fromPlane0, err := toPlane0.Invert()
	if err != nil {
		return nil, fmt.Errorf("%d: %w", frames[0].ID, err)
	}

	g := &Grid{
		ToGrid:   make([]coord.Transform2D, len(frames)),
		FromGrid: make([]coord.Transform2D, len(frames)),
		Boxes:    make([]stats.Region, len(frames)),
	}
	lo := coord.Point2D{X: math.Inf(1), Y: math.Inf(1)}
	hi := coord.Point2D{X: math.Inf(-1), Y: math.Inf(-1)}
	for i, f := range frames {
		toPlane := f.WCS.ToPlane(ref.CRVal1, ref.CRVal2)
		g.ToGrid[i] = toPlane.Then(fromPlane0)
		min, max := g.ToGrid[i].Bounds(f.Width, f.Height)
		lo.X, lo.Y = math.Min(lo.X, min.X), math.Min(lo.Y, min.Y)
		hi.X, hi.Y = math.Max(hi.X, max.X), math.Max(hi.Y, max.Y)
	}

	// pixel centers sit at integer coordinates, bounds at half pixels
	x0, y0 := firstCenter(lo.X), firstCenter(lo.Y)
	shift := coord.Translation2D(-x0, -y0)
	g.Width = int(lastCenter(hi.X-x0)) + 1
	g.Height = int(lastCenter(hi.Y-y0)) + 1

	for i, f := range frames {
		g.ToGrid[i] = g.ToGrid[i].Then(shift)
		if g.FromGrid[i], err = g.ToGrid[i].Invert(); err != nil {
			return nil, fmt.Errorf("%d: %w", f.ID, err)
		}
		min, max := g.ToGrid[i].Bounds(f.Width, f.Height)
		g.Boxes[i] = stats.Region{
			X0: clampInt(int(firstCenter(min.X)), 0, g.Width),
			Y0: clampInt(int(firstCenter(min.Y)), 0, g.Height),
			X1: clampInt(int(lastCenter(max.X))+1, 0, g.Width),
			Y1: clampInt(int(lastCenter(max.Y))+1, 0, g.Height),
		}
	}
	return g, nil
}

// First and last integer pixel center within a half-pixel bound
func firstCenter(bound float64) float64 { return math.Floor(bound + 0.5 + edgeEps) }
func lastCenter(bound float64) float64  { return math.Ceil(bound - 0.5 - edgeEps) }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Tolerance for sample positions on the outermost pixel centers
const edgeEps = 1e-6

// Samples an image of given size at a fractional position with bilinear
// interpolation. Returns NaN outside the pixel centers, or if any of the
// contributing pixels is NaN
func Bilinear(d []float32, width, height int, x, y float64) float32 {
	if x < -edgeEps || y < -edgeEps || x > float64(width-1)+edgeEps || y > float64(height-1)+edgeEps {
		return float32(math.NaN())
	}
	xl, yl := int(math.Floor(x)), int(math.Floor(y))
	if xl < 0 {
		xl = 0
	}
	if yl < 0 {
		yl = 0
	}
	xh, yh := xl+1, yl+1
	if xh > width-1 {
		xh, xl = width-1, maxInt(width-2, 0)
	}
	if yh > height-1 {
		yh, yl = height-1, maxInt(height-2, 0)
	}
	xr, yr := float32(x-float64(xl)), float32(y-float64(yl))
	if xh == xl {
		xr = 0
	}
	if yh == yl {
		yr = 0
	}

	vyl := d[xl+yl*width]*(1-xr) + d[xh+yl*width]*xr
	vyh := d[xl+yh*width]*(1-xr) + d[xh+yh*width]*xr
	return vyl*(1-yr) + vyh*yr
}

// Samples a mask at the nearest pixel. Outside the image counts as masked
func Nearest(m []bool, width, height int, x, y float64) bool {
	xi, yi := int(math.Floor(x+0.5)), int(math.Floor(y+0.5))
	if xi < 0 || yi < 0 || xi >= width || yi >= height {
		return true
	}
	return m[xi+yi*width]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Projects an image of given size into the region r of another coordinate
// system, using the transformation from destination to source pixels.
// Pixels without valid source data are NaN. Masked source pixels are
// excluded by nearest neighbour lookup of the mask
func Reproject(src []float32, m []bool, width, height int, fromDest coord.Transform2D, r stats.Region) []float32 {
	res := make([]float32, r.Width()*r.Height())
	nan := float32(math.NaN())
	for row := r.Y0; row < r.Y1; row++ {
		for col := r.X0; col < r.X1; col++ {
			i := (col - r.X0) + (row-r.Y0)*r.Width()
			p := fromDest.Apply(coord.Point2D{X: float64(col), Y: float64(row)})
			if m != nil && Nearest(m, width, height, p.X, p.Y) {
				res[i] = nan
				continue
			}
			res[i] = Bilinear(src, width, height, p.X, p.Y)
		}
	}
	return res
}
