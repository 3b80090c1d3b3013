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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"

	"github.com/mlnoga/destripe/internal/coord"
	ds "github.com/mlnoga/destripe/internal/destripe"
	"github.com/mlnoga/destripe/internal/frame"
	"github.com/mlnoga/destripe/internal/mosaic"
	"github.com/mlnoga/destripe/internal/ops"
	"github.com/mlnoga/destripe/internal/stats"
)

const pixDeg = 0.03 / 3600

func uniform(rng *fastrand.RNG) float32 { return float32(rng.Uint32n(2001))/1000 - 1 }

// A frame of a smooth sky with per-row stripes, offset by a dither of dx,dy
// pixels on a common tangent plane
func stripedFrame(id, w, h, dx, dy int, exposure float32, stripes []float32, seed uint32) *frame.Frame {
	rng := fastrand.RNG{}
	rng.Seed(seed)
	f := frame.New(id, w, h)
	f.FileName = "exposure_cal.fits"
	f.Exposure = exposure
	f.WCS = &coord.LinearWCS{
		CRPix1: float64(1 - dx), CRPix2: float64(1 - dy),
		CRVal1: 150.1, CRVal2: 2.2,
		CD11: -pixDeg, CD22: pixDeg,
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 20 + 0.01*float32(x+dx) + 0.05*uniform(&rng)
			if stripes != nil {
				v += stripes[y]
			}
			f.Sci[y*w+x] = v
			f.Err[y*w+x] = 0.05
		}
	}
	return f
}

func randomStripes(h int, amp float32, seed uint32) []float32 {
	rng := fastrand.RNG{}
	rng.Seed(seed)
	s := make([]float32, h)
	for y := range s {
		s[y] = amp * uniform(&rng)
	}
	return s
}

// Clipped standard deviation of the row medians in a region, a measure of
// residual striping
func rowScatter(f *frame.Frame, r stats.Region) float32 {
	return stats.SigmaClip(stats.MaskedRowMedians(f.Sci, nil, f.Width, r), nil, 3, 0).StdDev
}

func promiseOf(f *frame.Frame) ops.Promise {
	return func() (*frame.Frame, error) { return f, nil }
}

func newContext() *ops.Context {
	c := ops.NewContext(&bytes.Buffer{})
	c.MaxThreads = 2
	return c
}

func TestOpDestripeJSON(t *testing.T) {
	op, err := ops.UnmarshalOperator([]byte(`{"type":"destripe","params":{"method":"median_filter","sigma":2.5}}`))
	require.NoError(t, err)
	od, ok := op.(*OpDestripe)
	require.True(t, ok)
	assert.True(t, od.Active)
	assert.Equal(t, ds.MethodMedianFilter, od.Params.Method)
	assert.Equal(t, float32(2.5), od.Params.Sigma)
	assert.Equal(t, ds.DefaultParams().Scales, od.Params.Scales)
	assert.NotNil(t, od.OpUnaryBase.Apply)

	op, err = ops.UnmarshalOperator([]byte(`{"type":"multiTileDestripe","params":{"weightType":"ivm"}}`))
	require.NoError(t, err)
	om, ok := op.(*OpMultiTile)
	require.True(t, ok)
	assert.Equal(t, mosaic.WeightIVM, om.Params.WeightType)
	assert.Equal(t, mosaic.DefaultParams().MinAreaFrac, om.Params.MinAreaFrac)

	bad := NewOpDestripeDefault()
	bad.Params.Method = "wavelet"
	_, err = bad.MakePromises([]ops.Promise{promiseOf(frame.New(1, 4, 4))}, newContext())
	assert.Error(t, err)
}

func TestOpDestripe(t *testing.T) {
	const w, h = 128, 96
	f := stripedFrame(1, w, h, 0, 0, 1, randomStripes(h, 1, 7), 3)
	sky := stats.Region{X0: 4, Y0: 4, X1: w - 4, Y1: h - 4}
	before := rowScatter(f, sky)
	c := newContext()

	outs, err := NewOpDestripeDefault().MakePromises([]ops.Promise{promiseOf(f)}, c)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	g, err := outs[0]()
	require.NoError(t, err)
	assert.Same(t, f, g)
	assert.Equal(t, frame.StatusOK, g.Status)
	require.Len(t, g.Noise, w*h)
	assert.Less(t, rowScatter(g, sky), before/3)
	assert.Contains(t, c.Log.(*bytes.Buffer).String(), "1: Removed stripes")
}

func TestOpDestripeInsufficientData(t *testing.T) {
	dir := t.TempDir()
	f := frame.New(4, 16, 16) // all zero science, no data
	f.FileName = "empty_cal.fits"
	c := newContext()

	seq := ops.NewOpSequence(
		NewOpDestripeDefault(),
		ops.NewOpSave(filepath.Join(dir, "%s_destriped.fits"), false),
	)
	outs, err := seq.MakePromises([]ops.Promise{promiseOf(f)}, c)
	require.NoError(t, err)
	g, err := outs[0]()
	require.NoError(t, err)
	assert.Equal(t, frame.StatusInsufficientData, g.Status)
	assert.NotEmpty(t, g.Warnings)
	assert.Contains(t, c.Log.(*bytes.Buffer).String(), "4: WARNING")
	_, err = os.Stat(filepath.Join(dir, "empty_cal_destriped.fits"))
	assert.True(t, os.IsNotExist(err))
}

func TestOpMultiTile(t *testing.T) {
	const w, h = 64, 48
	a := stripedFrame(1, w, h, 0, 0, 1, randomStripes(h, 1, 42), 1)
	b := stripedFrame(2, w, h, 7, 5, 1, nil, 2)
	overlap := stats.Region{X0: 10, Y0: 8, X1: w, Y1: h}
	before := rowScatter(a, overlap)
	c := newContext()

	op := NewOpMultiTileDefault()
	outs, err := op.MakePromises([]ops.Promise{promiseOf(a), promiseOf(b)}, c)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	fs, err := ops.MaterializeAll(outs, c.MaxThreads, false)
	require.NoError(t, err)
	assert.Same(t, a, fs[0])
	assert.Same(t, b, fs[1])
	for _, f := range fs {
		assert.Equal(t, frame.StatusOK, f.Status)
		assert.Len(t, f.Noise, w*h)
	}
	assert.Less(t, rowScatter(a, overlap), before/3)

	_, err = op.MakePromises(nil, c)
	assert.Error(t, err)

	op.Active = false
	ins := []ops.Promise{promiseOf(a)}
	outs, err = op.MakePromises(ins, c)
	require.NoError(t, err)
	assert.Len(t, outs, 1)
}

func TestOpMultiTileNoOverlap(t *testing.T) {
	a := stripedFrame(1, 32, 32, 0, 0, 1, nil, 1)
	b := stripedFrame(2, 32, 32, 500, 0, 1, nil, 2)
	outs, err := NewOpMultiTileDefault().MakePromises([]ops.Promise{promiseOf(a), promiseOf(b)}, newContext())
	require.NoError(t, err)
	fs, err := ops.MaterializeAll(outs, 2, false)
	require.NoError(t, err)
	for _, f := range fs {
		assert.Equal(t, frame.StatusInsufficientData, f.Status)
	}
}

func TestOpDiagnostics(t *testing.T) {
	dir := t.TempDir()
	f := stripedFrame(6, 48, 32, 0, 0, 1, randomStripes(32, 1, 9), 5)
	c := newContext()
	seq := ops.NewOpSequence(
		NewOpDestripeDefault(),
		NewOpDiagnostics(filepath.Join(dir, "%s_panel.png"), filepath.Join(dir, "%s_rows.png")),
	)
	outs, err := seq.MakePromises([]ops.Promise{promiseOf(f)}, c)
	require.NoError(t, err)
	_, err = outs[0]()
	require.NoError(t, err)
	for _, name := range []string{"exposure_cal_panel.png", "exposure_cal_rows.png"} {
		st, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Greater(t, st.Size(), int64(0))
	}
	assert.Contains(t, c.Log.(*bytes.Buffer).String(), "6: Background noise")

	c.Sandboxed = true
	_, err = NewOpDiagnostics("/tmp/%s.png", "").Apply(f, c)
	assert.Error(t, err)
}
