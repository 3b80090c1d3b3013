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
	"fmt"
	"image/color"
	"io"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/mlnoga/destripe/internal/frame"
	"github.com/mlnoga/destripe/internal/stats"
)

// Size of saved profile plots
const (
	profileWidth  = 10 * vg.Inch
	profileHeight = 4 * vg.Inch
)

// Median of each row, offset by the median of all rows. Rows without data
// are omitted
func rowProfile(data []float32, m []bool, width, height int) plotter.XYs {
	meds := stats.MaskedRowMedians(data, m, width, stats.Region{X0: 0, Y0: 0, X1: width, Y1: height})
	centre := stats.NanMedian(meds)
	pts := make(plotter.XYs, 0, len(meds))
	for y, v := range meds {
		if !stats.IsFinite(v) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(y), Y: float64(v - centre)})
	}
	return pts
}

// Plots the row median profiles of original, noise model and corrected
// science of a frame
func RowProfile(f *frame.Frame) (*plot.Plot, error) {
	m := f.QualityMask()
	series := []struct {
		name string
		data []float32
		hue  float64
	}{
		{"original", Original(f), 10},
		{"noise model", f.Noise, 130},
		{"corrected", Corrected(f), 250},
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%d: row profile of %s", f.ID, f.FileName)
	p.X.Label.Text = "row"
	p.Y.Label.Text = "median - overall median"
	p.Add(plotter.NewGrid())

	lines := 0
	for _, s := range series {
		if s.data == nil {
			continue
		}
		pts := rowProfile(s.data, m, f.Width, f.Height)
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.LineStyle.Color = lineColor(s.hue)
		line.LineStyle.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
		lines++
	}
	if lines == 0 {
		return nil, errors.New("no rows with valid data")
	}
	p.Legend.Top = true
	return p, nil
}

func lineColor(hue float64) color.Color {
	return colorful.Hcl(hue, 0.6, 0.55).Clamped()
}

// Writes the row profile plot of a frame to a file. The format follows the
// suffix, e.g. png, svg or pdf
func WriteRowProfile(fileName string, f *frame.Frame) error {
	p, err := RowProfile(f)
	if err != nil {
		return fmt.Errorf("%d: row profile: %w", f.ID, err)
	}
	return p.Save(profileWidth, profileHeight, fileName)
}

// Writes the row profile plot of a frame to a stream in the given format
func WriteRowProfileTo(w io.Writer, f *frame.Frame, format string) error {
	p, err := RowProfile(f)
	if err != nil {
		return fmt.Errorf("%d: row profile: %w", f.ID, err)
	}
	wt, err := p.WriterTo(profileWidth, profileHeight, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
