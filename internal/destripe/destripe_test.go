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
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/destripe/internal/frame"
	"github.com/mlnoga/destripe/internal/pca"
	"github.com/mlnoga/destripe/internal/stats"
)

// Synthetic frame with background 100, uniform noise of +-noiseAmp, a random
// stripe per row of +-stripeAmp and a compact bright source
func synthFrame(w, h int, seed uint32, noiseAmp, stripeAmp float32) (*frame.Frame, []float32) {
	rng := fastrand.RNG{}
	rng.Seed(seed)
	uniform := func() float32 { return float32(rng.Uint32n(2001))/1000 - 1 }

	f := frame.New(1, w, h)
	f.FileName = "synth_cal.fits"
	stripes := make([]float32, h)
	for y := 0; y < h; y++ {
		stripes[y] = stripeAmp * uniform()
		for x := 0; x < w; x++ {
			i := y*w + x
			f.Sci[i] = 100 + stripes[y] + noiseAmp*uniform()
			f.Err[i] = 0.5
		}
	}
	for y := h / 2; y < h/2+5; y++ {
		for x := w / 3; x < w/3+5; x++ {
			f.Sci[y*w+x] += 50
		}
	}
	return f, stripes
}

func paramsFor(method string) *Params {
	p := DefaultParams()
	p.Method = method
	if method == MethodPCA {
		p.PCAComponents = 8
		p.PCAReconstructComponents = 4
	}
	return p
}

var allMethods = []string{MethodRowMedian, MethodMedianFilter, MethodRemstripe, MethodPCA}

func TestShapeAndSentinels(t *testing.T) {
	for _, method := range allMethods {
		f, _ := synthFrame(128, 96, 1, 0.5, 1)
		w := f.Width
		nan := float32(math.NaN())
		f.Sci[5*w+10] = 0
		f.Sci[50*w+70] = nan
		f.Sci[60*w+3] = float32(math.Inf(1))

		res, err := Run(f, paramsFor(method), nil, nil)
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		if len(res.Noise) != len(f.Sci) || len(res.Corrected) != len(f.Sci) {
			t.Errorf("%s: noise %d corrected %d pixels; want %d", method, len(res.Noise), len(res.Corrected), len(f.Sci))
		}
		if res.Corrected[5*w+10] != 0 {
			t.Errorf("%s: zero sentinel became %f", method, res.Corrected[5*w+10])
		}
		if !math.IsNaN(float64(res.Corrected[50*w+70])) {
			t.Errorf("%s: NaN sentinel became %f", method, res.Corrected[50*w+70])
		}
		if !math.IsInf(float64(res.Corrected[60*w+3]), 1) {
			t.Errorf("%s: Inf sentinel became %f", method, res.Corrected[60*w+3])
		}
		for i, v := range res.Noise {
			if !stats.IsFinite(v) {
				t.Fatalf("%s: noise model not finite at %d", method, i)
			}
		}
		if f.Sci[5*w+11] == res.Corrected[5*w+11] && method == MethodRowMedian {
			t.Errorf("%s: no correction applied", method)
		}
	}
}

func TestZeroCentering(t *testing.T) {
	for _, method := range allMethods {
		f, _ := synthFrame(128, 96, 2, 0.5, 1)
		res, err := Run(f, paramsFor(method), nil, nil)
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		c := stats.SigmaClip(res.Noise, f.QualityMask(), 3, 20)
		if math.Abs(float64(c.Median)) > 0.05 {
			t.Errorf("%s: clipped median of noise model %f; want 0", method, c.Median)
		}
	}
}

func TestEmptyRowsModelZero(t *testing.T) {
	const w, h = 8, 10
	data := make([]float32, w*h)
	m := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = float32(5 + 2*(y%2))
			m[y*w+x] = y == 3 || x == 6
		}
	}
	r := stats.Region{X0: 0, Y0: 0, X1: w, Y1: h}
	model := RowMedianModel(data, m, w, h, []stats.Region{r}, 3, 20)
	for x := 0; x < w; x++ {
		if v := model[3*w+x]; v != 0 {
			t.Errorf("empty row model at x=%d is %f; want 0", x, v)
		}
		if v := model[1*w+x]; v != 2 {
			t.Errorf("odd row model at x=%d is %f; want 2", x, v)
		}
	}

	for x := range data {
		data[x] += float32(x % w)
	}
	cols := centeredColProfile(data, m, w, r, 3, 20)
	if cols[6] != 0 {
		t.Errorf("empty column model %f; want 0", cols[6])
	}
}

func TestStripesRemoved(t *testing.T) {
	for _, method := range allMethods {
		f, stripes := synthFrame(128, 96, 3, 0.2, 1)
		res, err := Run(f, paramsFor(method), nil, nil)
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		if method == MethodMedianFilter {
			continue // smooths the profile, so wide stripe patterns survive partially
		}
		r := stats.Region{X0: 4, Y0: 4, X1: f.Width - 4, Y1: f.Height - 4}
		before := stats.SigmaClip(stats.MaskedRowMedians(f.Sci, nil, f.Width, r), nil, 3, 0)
		after := stats.SigmaClip(stats.MaskedRowMedians(res.Corrected, nil, f.Width, r), nil, 3, 0)
		if after.StdDev > before.StdDev/4 {
			t.Errorf("%s: row median scatter %f after, %f before; stripes %v", method, after.StdDev, before.StdDev, stripes[:4])
		}
	}
}

func TestMedianFilterFlattensNarrowStripes(t *testing.T) {
	f, _ := synthFrame(128, 96, 4, 0.2, 1)
	res, err := Run(f, paramsFor(MethodMedianFilter), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := stats.Region{X0: 0, Y0: 0, X1: f.Width, Y1: f.Height}
	rows := stats.MaskedRowMedians(res.Corrected, nil, f.Width, r)
	for y := 1; y < len(rows)-1; y++ {
		if d := math.Abs(float64(rows[y] - rows[y-1])); d > 1 {
			t.Errorf("row %d median jumps by %f after filtering", y, d)
		}
	}
	if res.InsufficientData {
		t.Errorf("unexpected insufficient data flag: %v", res.Warnings)
	}
}

// Zero background with a stripe on rows 100..109 and a bright round source
func TestRowMedianScenario(t *testing.T) {
	const n = 2040
	f := frame.New(1, n, n)
	for y := 100; y < 110; y++ {
		for x := 0; x < n; x++ {
			f.Sci[y*n+x] = 5
		}
	}
	for y := 990; y <= 1010; y++ {
		for x := 990; x <= 1010; x++ {
			if (x-1000)*(x-1000)+(y-1000)*(y-1000) <= 25 {
				f.Sci[y*n+x] = 1000
			}
		}
	}

	res, err := Run(f, DefaultParams(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < n; y++ {
		want := 0.0
		if y >= 100 && y < 110 {
			want = 5
		}
		for x := 0; x < n; x += 7 {
			if got := float64(res.Noise[y*n+x]); math.Abs(got-want) > 0.05 {
				t.Fatalf("model[%d,%d]=%f; want %f", y, x, got, want)
			}
		}
	}
	if got := res.Corrected[1000*n+1000]; math.Abs(float64(got-1000)) > 0.05 {
		t.Errorf("source pixel corrected to %f; want 1000", got)
	}
}

func TestLevelingScenario(t *testing.T) {
	f, _ := synthFrame(256, 64, 5, 0.05, 0)
	w := f.Width
	for y := 0; y < f.Height; y++ {
		for x := 128; x < 192; x++ {
			f.Sci[y*w+x] += 3
		}
	}
	res, err := Run(f, DefaultParams(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(res.LevelOffsets[2]+3)) > 0.02 {
		t.Errorf("amp 2 offset %f; want -3", res.LevelOffsets[2])
	}
	for _, b := range []int{64, 128, 192} {
		left := stats.Region{X0: b - 20, Y0: 4, X1: b, Y1: f.Height - 4}
		right := stats.Region{X0: b, Y0: 4, X1: b + 20, Y1: f.Height - 4}
		l := stats.MaskedRowMedians(res.Corrected, nil, w, left)
		r := stats.MaskedRowMedians(res.Corrected, nil, w, right)
		diff := make([]float32, len(l))
		for i := range l {
			diff[i] = l[i] - r[i]
		}
		if c := stats.SigmaClip(diff, nil, 3, 0); math.Abs(float64(c.Median)) > 0.01 {
			t.Errorf("boundary %d differs by %f after leveling", b, c.Median)
		}
	}
}

func TestQuadrantIndependence(t *testing.T) {
	f, _ := synthFrame(128, 96, 6, 0.05, 1)
	on := DefaultParams()
	off := DefaultParams()
	off.Quadrants = false

	a, err := Run(f, on, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run(f, off, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for y := 4; y < f.Height-4; y++ {
		for x := 4; x < f.Width-4; x++ {
			i := y*f.Width + x
			if d := math.Abs(float64(a.Noise[i] - b.Noise[i])); d > 0.05 {
				t.Fatalf("models differ by %f at %d,%d", d, x, y)
			}
		}
	}
}

func TestInsufficientData(t *testing.T) {
	f, _ := synthFrame(128, 96, 7, 0.5, 1)
	for y := 20; y < 40; y++ {
		for x := 0; x < f.Width; x++ {
			f.Sci[y*f.Width+x] = 0
		}
	}
	res, err := Run(f, paramsFor(MethodMedianFilter), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.InsufficientData || len(res.Warnings) == 0 {
		t.Errorf("insufficient data not flagged")
	}
	if !strings.Contains(res.Warnings[0], "extended source") {
		t.Errorf("warning %q; want extended source hint", res.Warnings[0])
	}
	if res.Corrected == nil {
		t.Errorf("corrected array missing")
	}

	empty := frame.New(2, 32, 32)
	res, err = Run(empty, DefaultParams(), nil, nil)
	if err != nil || !res.InsufficientData {
		t.Errorf("empty frame: err %v, insufficient %v", err, res != nil && res.InsufficientData)
	}
}

func TestPCACache(t *testing.T) {
	f, _ := synthFrame(128, 96, 8, 0.5, 1)
	p := paramsFor(MethodPCA)
	store := pca.NewMemoryStore()

	fresh, err := Run(f, p, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if store.Len() != 4 {
		t.Errorf("%d cached eigen-systems; want 4", store.Len())
	}
	cached, err := Run(f, p, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Run(f, p, pca.NewMemoryStore(), nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range fresh.Noise {
		if fresh.Noise[i] != cached.Noise[i] || fresh.Noise[i] != again.Noise[i] {
			t.Fatalf("pixel %d: fresh %f cached %f refit %f", i, fresh.Noise[i], cached.Noise[i], again.Noise[i])
		}
	}
}

func TestPCACacheSharedAcrossRuns(t *testing.T) {
	store := pca.NewMemoryStore()
	refit := func(f *frame.Frame, p *Params) {
		t.Helper()
		shared, err := Run(f, p, store, nil)
		if err != nil {
			t.Fatal(err)
		}
		fresh, err := Run(f, p, pca.NewMemoryStore(), nil)
		if err != nil {
			t.Fatal(err)
		}
		for i := range fresh.Noise {
			if shared.Noise[i] != fresh.Noise[i] {
				t.Fatalf("%s pixel %d: shared store %f fresh %f", f.FileName, i, shared.Noise[i], fresh.Noise[i])
			}
		}
	}

	a, _ := synthFrame(128, 96, 11, 0.5, 1)
	a.FileName = "visitA/jw_cal.fits"
	b, _ := synthFrame(128, 96, 12, 0.5, 2)
	b.FileName = "visitB/jw_cal.fits"
	p := paramsFor(MethodPCA)
	refit(a, p)
	refit(b, p)
	if store.Len() != 8 {
		t.Errorf("%d cached eigen-systems; want 8", store.Len())
	}

	q := paramsFor(MethodPCA)
	q.PCAComponents = 12
	q.PCASeed = 7
	refit(a, q)
	if store.Len() != 12 {
		t.Errorf("%d cached eigen-systems; want 12", store.Len())
	}
}

func TestVerticalAndDiffuse(t *testing.T) {
	f, _ := synthFrame(128, 96, 9, 1, 0.2)
	for y := 0; y < f.Height; y++ {
		for x := 40; x < 42; x++ {
			f.Sci[y*f.Width+x] += 0.6 // column stripe below the detection threshold
		}
	}
	p := DefaultParams()
	p.VerticalSubtraction = true
	p.FilterDiffuse = true
	p.Method = MethodRemstripe
	res, err := Run(f, p, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := stats.Region{X0: 4, Y0: 4, X1: f.Width - 4, Y1: f.Height - 4}
	cols := stats.MaskedColMedians(res.Corrected, nil, f.Width, r)
	if d := cols[40-4] - cols[50-4]; math.Abs(float64(d)) > 0.3 {
		t.Errorf("column stripe left %f after vertical pass", d)
	}
}

func TestFilterDiffuse(t *testing.T) {
	f, _ := synthFrame(96, 80, 10, 0.5, 0)
	q := f.QualityMask()
	p := DefaultParams()
	res, m := FilterDiffuse(f.MaskedScience(frame.DQDefaultBadBits), q, q, f.Width, f.Height, p)
	c := stats.SigmaClip(res, m, 3, 20)
	if math.Abs(float64(c.Median)) > 0.2 {
		t.Errorf("filtered background %f; want 0", c.Median)
	}
	src := (f.Height/2+2)*f.Width + f.Width/3 + 2
	if math.Abs(float64(res[src])) > 2 {
		t.Errorf("source pixel %f after filtering; want replaced by background", res[src])
	}
	for i, v := range res {
		if !stats.IsFinite(v) {
			t.Fatalf("pixel %d not finite", i)
		}
	}
}

func TestParams(t *testing.T) {
	var p Params
	if err := json.Unmarshal([]byte(`{"method":"pca","pcaComponents":20}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Method != MethodPCA || p.PCAComponents != 20 || p.Sigma != 3 || len(p.Scales) != 6 || !p.Quadrants {
		t.Errorf("params %+v; want defaults with overrides", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}

	tests := []func(p *Params){
		func(p *Params) { p.Method = "fourier" },
		func(p *Params) { p.Filter = "gauss" },
		func(p *Params) { p.Scales = []int{3, 0} },
		func(p *Params) { p.Method = MethodPCA; p.PCAReconstructComponents = 60 },
		func(p *Params) { p.Sigma = 0 },
	}
	for i, mod := range tests {
		p := DefaultParams()
		mod(p)
		if err := p.Validate(); err == nil {
			t.Errorf("case %d: invalid params accepted", i)
		}
		if _, err := Run(frame.New(1, 16, 16), p, nil, nil); err == nil {
			t.Errorf("case %d: run accepted invalid params", i)
		}
	}
}
