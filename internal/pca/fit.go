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

package pca

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/mat"
)

// Parameters for fitting
type Params struct {
	Components     int     `json:"pcaComponents"`  // number of eigenvectors to fit
	Iterations     int     `json:"pcaIterations"`  // robust reweighting passes
	CSq            float64 `json:"pcaCSq"`         // squared scale of the Cauchy weight function
	Seed           uint32  `json:"pcaSeed"`        // seed for training selection and initial basis
	MaskColumnFrac float64 `json:"maskColumnFrac"` // columns with less masked coverage than this are preferred for training
	MinColumnFrac  float64 `json:"minColumnFrac"`  // minimum fraction of columns used for training
}

func DefaultParams() Params {
	return Params{
		Components:     50,
		Iterations:     3,
		CSq:            0.787 * 0.787,
		Seed:           1,
		MaskColumnFrac: 0.25,
		MinColumnFrac:  0.5,
	}
}

// Power iterations per robust pass. Each pass starts from the previous basis
const powerIterations = 8

// Target of the M-scale equation mean(rho(r^2/(c^2 s^2))) = delta
const mScaleDelta = 0.5

// Fits a robust eigen-system to the rows of samples. Entries with a weight of
// zero are missing; they are filled with the mean and later with the current
// reconstruction. Each of the robust passes computes the top subspace of the
// weighted covariance, projects all samples, and downweights samples with
// large residuals using Cauchy weights on a robust M-scale. Deterministic for
// a given seed
func Fit(samples, weights *mat.Dense, p Params) (*EigenSystem, error) {
	n, d := samples.Dims()
	if wn, wd := weights.Dims(); wn != n || wd != d {
		return nil, fmt.Errorf("weights are %dx%d, samples %dx%d", wn, wd, n, d)
	}
	k := p.Components
	if k > d {
		k = d
	}
	if k > n {
		k = n
	}
	if n == 0 || k < 1 {
		return nil, errors.New("too few samples or components to fit")
	}

	rng := fastrand.RNG{}
	rng.Seed(p.Seed)

	x := mat.DenseCopyOf(samples)
	mean := featureMean(samples, weights)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			if weights.At(i, j) <= 0 {
				x.Set(i, j, mean[j])
			}
		}
	}

	omega := make([]float64, n)
	for i := range omega {
		omega[i] = 1
	}
	basis := orthonormalize(randomBasis(d, k, &rng))
	var values []float64
	for pass := 0; pass < p.Iterations; pass++ {
		basis, _ = subspace(x, mean, omega, basis)
		r2 := projectAndRefill(x, weights, mean, basis)
		robustWeights(omega, r2, p.CSq)
		mean = sampleMean(x, omega)
	}
	basis, values = subspace(x, mean, omega, basis)

	return &EigenSystem{Mean: mean, Vectors: basis, Values: values}, nil
}

// Per-feature weighted mean over samples with positive weight. Features with
// no weight at all fall back to the plain mean
func featureMean(x, w *mat.Dense) []float64 {
	n, d := x.Dims()
	mean := make([]float64, d)
	for j := 0; j < d; j++ {
		sum, sumW, plain := 0.0, 0.0, 0.0
		for i := 0; i < n; i++ {
			v := x.At(i, j)
			plain += v
			if wij := w.At(i, j); wij > 0 {
				sum += wij * v
				sumW += wij
			}
		}
		if sumW > 0 {
			mean[j] = sum / sumW
		} else {
			mean[j] = plain / float64(n)
		}
	}
	return mean
}

// Per-feature mean with one weight per sample
func sampleMean(x *mat.Dense, omega []float64) []float64 {
	n, d := x.Dims()
	mean := make([]float64, d)
	sumW := 0.0
	for i := 0; i < n; i++ {
		sumW += omega[i]
		row := x.RawRowView(i)
		for j, v := range row {
			mean[j] += omega[i] * v
		}
	}
	if sumW <= 0 {
		return mean
	}
	for j := range mean {
		mean[j] /= sumW
	}
	return mean
}

func randomBasis(d, k int, rng *fastrand.RNG) *mat.Dense {
	b := mat.NewDense(d, k, nil)
	for i := 0; i < d; i++ {
		for j := 0; j < k; j++ {
			b.Set(i, j, float64(rng.Uint32n(1<<24))/float64(1<<23)-1)
		}
	}
	return b
}

// Orthonormal basis for the column space of z via Cholesky QR, applied twice
// for accuracy. Falls back to Householder QR for rank deficient input
func orthonormalize(z *mat.Dense) *mat.Dense {
	q, ok := choleskyQR(z)
	if ok {
		q, ok = choleskyQR(q)
	}
	if ok {
		return q
	}
	d, k := z.Dims()
	var qr mat.QR
	qr.Factorize(z)
	var full mat.Dense
	qr.QTo(&full)
	return mat.DenseCopyOf(full.Slice(0, d, 0, k))
}

func choleskyQR(z *mat.Dense) (*mat.Dense, bool) {
	_, k := z.Dims()
	var g mat.Dense
	g.Mul(z.T(), z)
	gs := mat.NewSymDense(k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			gs.SetSym(a, b, g.At(a, b))
		}
	}
	var ch mat.Cholesky
	if !ch.Factorize(gs) {
		return nil, false
	}
	var r mat.TriDense
	ch.UTo(&r)
	// z = q r, so r^T q^T = z^T
	var qt mat.Dense
	if err := qt.Solve(r.T(), z.T()); err != nil {
		return nil, false
	}
	return mat.DenseCopyOf(qt.T()), true
}

// Top eigenvectors and eigenvalues of the weighted covariance of x around mean,
// by subspace iteration from the given basis and a final Rayleigh-Ritz step.
// Returns the eigenvectors as columns in descending order of eigenvalue
func subspace(x *mat.Dense, mean, omega []float64, basis *mat.Dense) (*mat.Dense, []float64) {
	n, d := x.Dims()
	_, k := basis.Dims()

	y := mat.NewDense(n, d, nil)
	sumW := 0.0
	for i := 0; i < n; i++ {
		s := math.Sqrt(omega[i])
		sumW += omega[i]
		src, dst := x.RawRowView(i), y.RawRowView(i)
		for j, v := range src {
			dst[j] = s * (v - mean[j])
		}
	}
	if sumW <= 0 {
		sumW = 1
	}

	v := basis
	var yv, z mat.Dense
	for it := 0; it < powerIterations; it++ {
		yv.Reset()
		yv.Mul(y, v)
		z.Reset()
		z.Mul(y.T(), &yv)
		v = orthonormalize(&z)
	}

	yv.Reset()
	yv.Mul(y, v)
	var g mat.Dense
	g.Mul(yv.T(), &yv)
	b := mat.NewSymDense(k, nil)
	for a := 0; a < k; a++ {
		for c := a; c < k; c++ {
			b.SetSym(a, c, g.At(a, c)/sumW)
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(b, true) {
		return v, make([]float64, k)
	}
	vals := eig.Values(nil)
	var u mat.Dense
	eig.VectorsTo(&u)
	var rot mat.Dense
	rot.Mul(v, &u)

	// gonum returns ascending eigenvalues
	vectors := mat.NewDense(d, k, nil)
	values := make([]float64, k)
	for c := 0; c < k; c++ {
		src := k - 1 - c
		values[c] = math.Max(vals[src], 0)
		for j := 0; j < d; j++ {
			vectors.Set(j, c, rot.At(j, src))
		}
	}
	return vectors, values
}

// Projects every sample onto the basis, replaces missing entries with the
// reconstruction, and returns the weighted squared residual of each sample
// over its present entries
func projectAndRefill(x, w *mat.Dense, mean []float64, basis *mat.Dense) []float64 {
	n, d := x.Dims()
	c := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		src, dst := x.RawRowView(i), c.RawRowView(i)
		for j, v := range src {
			dst[j] = v - mean[j]
		}
	}
	var scores, rec mat.Dense
	scores.Mul(c, basis)
	rec.Mul(&scores, basis.T())

	r2 := make([]float64, n)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for j := 0; j < d; j++ {
			model := mean[j] + rec.At(i, j)
			if wij := w.At(i, j); wij > 0 {
				diff := row[j] - model
				r2[i] += wij * diff * diff
			} else {
				row[j] = model
			}
		}
	}
	return r2
}

// Updates sample weights to 1/(1+r^2/(c^2 s^2)) with s^2 the M-scale of the residuals
func robustWeights(omega, r2 []float64, cSq float64) {
	s2 := mScale(r2, cSq, mScaleDelta)
	for i := range omega {
		if s2 <= 0 {
			omega[i] = 1
			continue
		}
		omega[i] = 1 / (1 + r2[i]/(cSq*s2))
	}
}

// Solves mean(rho(r2/(cSq*s2))) = delta for s2 with rho(t)=t/(1+t), by
// bisection on a logarithmic scale. Returns zero if at most a fraction delta
// of the residuals is nonzero, as no finite scale exists then
func mScale(r2 []float64, cSq, delta float64) float64 {
	nonzero := make([]float64, 0, len(r2))
	for _, v := range r2 {
		if v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			nonzero = append(nonzero, v)
		}
	}
	if len(r2) == 0 || float64(len(nonzero)) <= delta*float64(len(r2)) {
		return 0
	}
	f := func(s2 float64) float64 {
		sum := 0.0
		for _, v := range r2 {
			t := v / (cSq * s2)
			if math.IsInf(t, 1) || math.IsNaN(t) {
				sum++
				continue
			}
			sum += t / (1 + t)
		}
		return sum/float64(len(r2)) - delta
	}

	sort.Float64s(nonzero)
	guess := nonzero[len(nonzero)/2] / cSq
	lo, hi := math.Log(guess), math.Log(guess)
	for i := 0; i < 200 && f(math.Exp(lo)) < 0; i++ {
		lo -= 1
	}
	for i := 0; i < 200 && f(math.Exp(hi)) > 0; i++ {
		hi += 1
	}
	for i := 0; i < 60; i++ {
		mid := 0.5 * (lo + hi)
		if f(math.Exp(mid)) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return math.Exp(0.5 * (lo + hi))
}
