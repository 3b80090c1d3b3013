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

package fits

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"

	"github.com/mlnoga/destripe/internal/coord"
	"github.com/mlnoga/destripe/internal/frame"
)

func nearWCS(a, b coord.LinearWCS) bool {
	as := []float64{a.CRPix1, a.CRPix2, a.CRVal1, a.CRVal2, a.CD11, a.CD12, a.CD21, a.CD22}
	bs := []float64{b.CRPix1, b.CRPix2, b.CRVal1, b.CRVal2, b.CD11, b.CD12, b.CD21, b.CD22}
	for i := range as {
		if math.Abs(as[i]-bs[i]) > 1e-9*math.Max(1, math.Abs(bs[i])) {
			return false
		}
	}
	return true
}

func testFrame() *frame.Frame {
	f := frame.New(3, 6, 4)
	for i := range f.Sci {
		f.Sci[i] = float32(i) + 0.5
		f.Err[i] = 0.1
		f.DQ[i] = uint32(i % 3)
	}
	f.Sci[7] = float32(math.NaN())
	f.Noise = make([]float32, len(f.Sci))
	f.Noise[2] = -1.25
	f.Exposure = 321.5
	f.WCS = &coord.LinearWCS{CRPix1: 3, CRPix2: 2, CRVal1: 150.1, CRVal2: 2.2, CD11: -8.3e-6, CD22: 8.3e-6}
	f.Header = []fitsio.Card{
		{Name: "TELESCOP", Value: "JWST"},
		{Name: "SUBARRAY", Value: "FULL"},
	}
	return f
}

func TestRoundTrip(t *testing.T) {
	f := testFrame()
	var buf bytes.Buffer
	if err := WriteFrameTo(&buf, f, true); err != nil {
		t.Fatal(err)
	}
	g, err := ReadFrameFrom(&buf, 4)
	if err != nil {
		t.Fatal(err)
	}
	if g.Width != f.Width || g.Height != f.Height {
		t.Fatalf("size %dx%d; want %dx%d", g.Width, g.Height, f.Width, f.Height)
	}
	for i := range f.Sci {
		if i == 7 {
			if !math.IsNaN(float64(g.Sci[i])) {
				t.Errorf("sci[7]=%f; want NaN", g.Sci[i])
			}
			continue
		}
		if g.Sci[i] != f.Sci[i] || g.Err[i] != f.Err[i] || g.DQ[i] != f.DQ[i] {
			t.Errorf("pixel %d: %f %f %d; want %f %f %d", i, g.Sci[i], g.Err[i], g.DQ[i], f.Sci[i], f.Err[i], f.DQ[i])
		}
	}
	if g.Exposure != f.Exposure {
		t.Errorf("exposure=%f; want %f", g.Exposure, f.Exposure)
	}
	if g.SubArray {
		t.Errorf("full frame read as sub-array")
	}
	if g.WCS == nil || !nearWCS(*g.WCS, *f.WCS) {
		t.Errorf("wcs=%v; want %v", g.WCS, f.WCS)
	}
	cards, ok := g.Header.([]fitsio.Card)
	if !ok {
		t.Fatalf("header of type %T", g.Header)
	}
	found := false
	for _, c := range cards {
		if c.Name == "TELESCOP" && c.Value == "JWST" {
			found = true
		}
	}
	if !found {
		t.Errorf("primary header cards not passed through: %v", cards)
	}
}

func TestReadWriteFile(t *testing.T) {
	f := testFrame()
	f.Header = []fitsio.Card{{Name: "SUBARRAY", Value: "SUB160"}}
	name := filepath.Join(t.TempDir(), "frame_cal.fits")
	if err := WriteFrame(name, f, false); err != nil {
		t.Fatal(err)
	}
	g, err := ReadFrame(name, 1)
	if err != nil {
		t.Fatal(err)
	}
	if g.FileName != name || !g.SubArray {
		t.Errorf("file %s sub-array %v", g.FileName, g.SubArray)
	}
	if _, err := ReadFrame(filepath.Join(t.TempDir(), "missing.fits"), 2); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestParseWCSFromPC(t *testing.T) {
	h := fitsio.NewHeader([]fitsio.Card{
		{Name: "CRPIX1", Value: 10.0}, {Name: "CRPIX2", Value: 20.0},
		{Name: "CRVAL1", Value: 1.0}, {Name: "CRVAL2", Value: 2.0},
		{Name: "CDELT1", Value: -0.5}, {Name: "CDELT2", Value: 0.5},
		{Name: "PC1_2", Value: 0.25},
	}, fitsio.IMAGE_HDU, -32, []int{4, 4})
	w := parseWCS(h)
	if w == nil {
		t.Fatal("no wcs")
	}
	want := coord.LinearWCS{CRPix1: 10, CRPix2: 20, CRVal1: 1, CRVal2: 2, CD11: -0.5, CD12: -0.125, CD22: 0.5}
	if !nearWCS(*w, want) {
		t.Errorf("wcs=%v; want %v", *w, want)
	}
	if parseWCS(fitsio.NewHeader(nil, fitsio.IMAGE_HDU, -32, []int{4, 4})) != nil {
		t.Errorf("wcs from empty header")
	}
}
