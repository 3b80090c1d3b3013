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
	"bytes"
	"image"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mlnoga/destripe/internal/frame"
)

// A frame with a gradient, a row stripe pattern in the noise model and a
// no-data corner
func stripedFrame(w, h int) *frame.Frame {
	f := frame.New(5, w, h)
	f.FileName = "jw_test_cal.fits"
	f.Noise = make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			f.Sci[i] = 10 + float32(x)*0.1
			f.Err[i] = 1
			if y%4 == 0 {
				f.Noise[i] = 0.5
			}
		}
	}
	f.Sci[0] = 0
	f.Sci[1] = float32(math.NaN())
	return f
}

func TestColormap(t *testing.T) {
	r0, g0, b0 := Magma.At(0).RGB255()
	assert.Equal(t, [3]uint8{0, 0, 4}, [3]uint8{r0, g0, b0})
	r1, g1, b1 := Magma.At(1).RGB255()
	assert.Equal(t, [3]uint8{0xfc, 0xfd, 0xbf}, [3]uint8{r1, g1, b1})
	assert.Equal(t, Magma.At(-3), Magma.At(0))
	assert.Equal(t, Magma.At(math.NaN()), Magma.At(0))

	// the midpoint of a three-stop diverging map is its middle stop
	cm, err := NewColormap("#0000ff", "#ffffff", "#ff0000")
	require.NoError(t, err)
	r, g, b := cm.At(0.5).RGB255()
	assert.Equal(t, [3]uint8{0xff, 0xff, 0xff}, [3]uint8{r, g, b})

	_, err = NewColormap("#zzzzzz")
	assert.Error(t, err)
}

func TestScale(t *testing.T) {
	data := make([]float32, 101)
	for i := range data {
		data[i] = float32(i)
	}
	data[50] = float32(math.NaN())
	lo, hi := Scale(data, 0, 100)
	assert.Equal(t, float32(0), lo)
	assert.Equal(t, float32(100), hi)

	lo, hi = Scale([]float32{3, 3, 3}, 1, 99)
	assert.Equal(t, float32(3), lo)
	assert.Equal(t, float32(4), hi)

	lo, hi = SymmetricScale([]float32{-2, 1, 0.5}, 100)
	assert.Equal(t, float32(-2), lo)
	assert.Equal(t, float32(2), hi)
}

func TestOriginal(t *testing.T) {
	f := stripedFrame(8, 8)
	orig := Original(f)
	assert.True(t, math.IsNaN(float64(orig[0])))
	assert.True(t, math.IsNaN(float64(orig[1])))
	assert.InDelta(t, 10.2+0.5, orig[2], 1e-5)
	assert.InDelta(t, 10.2, Corrected(f)[2], 1e-5)
	assert.InDelta(t, 10.2, orig[8+2], 1e-5)
}

func TestPanel(t *testing.T) {
	f := stripedFrame(40, 20)
	img := Panel(f, Options{MaxWidth: 0, LowPercentile: 1, HighPercentile: 99})
	assert.Equal(t, image.Rect(0, 0, 3*40+2*panelGap, 20), img.Bounds())
	_, _, _, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), a)
	assert.Equal(t, NoDataColor, img.At(0, 0))

	small := Panel(f, Options{MaxWidth: 68, LowPercentile: 1, HighPercentile: 99})
	assert.Equal(t, image.Rect(0, 0, 68, 10), small.Bounds())
}

func TestEncode(t *testing.T) {
	img := Panel(stripedFrame(16, 8), DefaultOptions())
	for _, suffix := range []string{".png", ".tiff"} {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, img, suffix))
		decoded, format, err := image.Decode(&buf)
		require.NoError(t, err, suffix)
		assert.Contains(t, suffix, format)
		assert.Equal(t, img.Bounds(), decoded.Bounds())
	}
	assert.Error(t, Encode(&bytes.Buffer{}, img, ".jpg"))

	name := filepath.Join(t.TempDir(), "panel.png")
	assert.NoError(t, WriteImage(name, img))
}

func TestRowProfile(t *testing.T) {
	f := stripedFrame(32, 24)
	var buf bytes.Buffer
	require.NoError(t, WriteRowProfileTo(&buf, f, "png"))
	assert.Greater(t, buf.Len(), 0)

	pts := rowProfile(f.Noise, nil, f.Width, f.Height)
	require.Len(t, pts, 24)
	assert.Equal(t, 0.5, pts[0].Y)
	assert.Equal(t, 0.0, pts[1].Y)

	empty := frame.New(1, 4, 4)
	_, err := RowProfile(empty)
	assert.Error(t, err)

	assert.NoError(t, WriteRowProfile(filepath.Join(t.TempDir(), "profile.png"), f))
}

func TestNoiseLevel(t *testing.T) {
	normal := distuv.Normal{Mu: 5, Sigma: 2, Src: rand.NewSource(1)}
	data := make([]float32, 200000)
	for i := range data {
		data[i] = float32(normal.Rand())
	}
	fit, err := NoiseLevel(data)
	require.NoError(t, err)
	assert.InDelta(t, 5, fit.Mode, 0.1)
	assert.InDelta(t, 2, fit.StdDev, 0.1)

	_, err = NoiseLevel([]float32{1, 1, 1})
	assert.Error(t, err)
}
