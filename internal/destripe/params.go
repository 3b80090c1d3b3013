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
	"errors"
	"fmt"

	"github.com/mlnoga/destripe/internal/filter"
	"github.com/mlnoga/destripe/internal/mask"
	"github.com/mlnoga/destripe/internal/pca"
)

// Noise modelling methods
const (
	MethodRowMedian    = "row_median"
	MethodMedianFilter = "median_filter"
	MethodRemstripe    = "remstripe"
	MethodPCA          = "pca"
)

// Smoothing filters for the multi-scale profiles
const (
	FilterMedian = "median"
	FilterBoxcar = "boxcar"
)

// Parameters for destriping a single exposure
type Params struct {
	Sigma      float32 `json:"sigma"`      // clipping threshold in standard deviations
	NPixels    int     `json:"npixels"`    // minimum connected pixels for a source
	DilateSize int     `json:"dilateSize"` // side of the square mask dilation footprint
	MaxIters   int     `json:"maxIters"`   // clipping iterations, 0=until convergence
	Quadrants  bool    `json:"quadrants"`  // model each amplifier separately

	Method       string `json:"method"`
	Scales       []int  `json:"scales"`       // smoothing scales for median_filter and the vertical pass
	Filter       string `json:"filter"`       // smoother for the multi-scale profiles
	MaxEmptyRows int    `json:"maxEmptyRows"` // more empty rows at any scale flag insufficient data

	PCAComponents            int     `json:"pcaComponents"`
	PCAReconstructComponents int     `json:"pcaReconstructComponents"`
	PCASeed                  uint32  `json:"pcaSeed"`
	MaskColumnFrac           float64 `json:"maskColumnFrac"`
	MinColumnFrac            float64 `json:"minColumnFrac"`
	PCAFinalRowMedian        bool    `json:"pcaFinalRowMedian"`

	FilterDiffuse       bool `json:"filterDiffuse"`       // high-pass the data before masking and modelling
	VerticalSubtraction bool `json:"verticalSubtraction"` // model column stripes before the selected method
	StripWidth          int  `json:"stripWidth"`          // columns compared on each side of an amplifier boundary
}

func DefaultParams() *Params {
	pp := pca.DefaultParams()
	return &Params{
		Sigma:                    3,
		NPixels:                  3,
		DilateSize:               11,
		MaxIters:                 20,
		Quadrants:                true,
		Method:                   MethodRowMedian,
		Scales:                   []int{3, 7, 15, 31, 63, 127},
		Filter:                   FilterMedian,
		MaxEmptyRows:             8,
		PCAComponents:            pp.Components,
		PCAReconstructComponents: 10,
		PCASeed:                  pp.Seed,
		MaskColumnFrac:           pp.MaskColumnFrac,
		MinColumnFrac:            pp.MinColumnFrac,
		StripWidth:               20,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (p *Params) UnmarshalJSON(data []byte) error {
	type defaults Params
	def := defaults(*DefaultParams())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*p = Params(def)
	return nil
}

// Checks the parameters. Called before any computation starts
func (p *Params) Validate() error {
	switch p.Method {
	case MethodRowMedian, MethodMedianFilter, MethodRemstripe, MethodPCA:
	default:
		return fmt.Errorf("unknown destriping method '%s'", p.Method)
	}
	switch p.Filter {
	case FilterMedian, FilterBoxcar:
	default:
		return fmt.Errorf("unknown filter '%s'", p.Filter)
	}
	if p.Sigma <= 0 {
		return fmt.Errorf("invalid sigma %g", p.Sigma)
	}
	if p.NPixels < 1 {
		return fmt.Errorf("invalid npixels %d", p.NPixels)
	}
	if p.DilateSize < 0 {
		return fmt.Errorf("invalid dilation size %d", p.DilateSize)
	}
	if (p.Method == MethodMedianFilter || p.VerticalSubtraction) && len(p.Scales) == 0 {
		return errors.New("median filter needs at least one scale")
	}
	for _, s := range p.Scales {
		if s <= 0 {
			return fmt.Errorf("invalid filter scale %d", s)
		}
	}
	if p.Method == MethodPCA {
		if p.PCAComponents < 1 {
			return fmt.Errorf("invalid number of PCA components %d", p.PCAComponents)
		}
		if p.PCAReconstructComponents < 1 || p.PCAReconstructComponents > p.PCAComponents {
			return fmt.Errorf("reconstruction components %d must be between 1 and %d", p.PCAReconstructComponents, p.PCAComponents)
		}
		if p.MinColumnFrac <= 0 || p.MinColumnFrac > 1 {
			return fmt.Errorf("invalid minimum column fraction %g", p.MinColumnFrac)
		}
	}
	if p.StripWidth < 1 {
		return fmt.Errorf("invalid strip width %d", p.StripWidth)
	}
	return nil
}

// Source mask parameters
func (p *Params) MaskParams() mask.Params {
	return mask.Params{NSigma: p.Sigma, NPixels: p.NPixels, DilateSize: p.DilateSize, Sigma: p.Sigma, MaxIters: p.MaxIters}
}

// Robust PCA fit parameters
func (p *Params) PCAParams() pca.Params {
	pp := pca.DefaultParams()
	pp.Components = p.PCAComponents
	pp.Seed = p.PCASeed
	pp.MaskColumnFrac = p.MaskColumnFrac
	pp.MinColumnFrac = p.MinColumnFrac
	return pp
}

// Profile smoother selected by the filter parameter
func (p *Params) smoother() func([]float32, int) []float32 {
	if p.Filter == FilterBoxcar {
		return filter.Boxcar1D
	}
	return filter.Median1D
}

func (p *Params) String() string {
	return fmt.Sprintf("method %s, sigma %g, npixels %d, dilate %d, quadrants %v", p.Method, p.Sigma, p.NPixels, p.DilateSize, p.Quadrants)
}
