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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mlnoga/destripe/internal/mask"
)

// Weighting of exposures in the reference stack
const (
	WeightExpTime = "exptime" // exposure time
	WeightIVM     = "ivm"     // inverse read noise variance
)

// Parameters of the multi-tile dither destriper
type Params struct {
	WeightType         string  `json:"weightType"`
	MinAreaFrac        float32 `json:"minAreaFrac"`        // minimum overlap of a contributor, as fraction of the valid pixels
	DoLargeScale       bool    `json:"doLargeScale"`       // additional row pass after removing large-scale structure
	MedianFilterFactor int     `json:"medianFilterFactor"` // boxcar size is the frame height divided by this
	Quadrants          bool    `json:"quadrants"`
	Sigma              float32 `json:"sigma"`
	NPixels            int     `json:"npixels"`
	DilateSize         int     `json:"dilateSize"`
	MaxIters           int     `json:"maxIters"` // 0 iterates until convergence
}

func DefaultParams() *Params {
	return &Params{
		WeightType:         WeightExpTime,
		MinAreaFrac:        0.5,
		DoLargeScale:       false,
		MedianFilterFactor: 4,
		Quadrants:          true,
		Sigma:              3,
		NPixels:            3,
		DilateSize:         7,
		MaxIters:           0,
	}
}

// Unmarshal with defaults for fields missing in the JSON
func (p *Params) UnmarshalJSON(data []byte) error {
	type defaults Params
	def := defaults(*DefaultParams())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*p = Params(def)
	return nil
}

// Checks the parameters for configuration errors
func (p *Params) Validate() error {
	if p.WeightType != WeightExpTime && p.WeightType != WeightIVM {
		return fmt.Errorf("unknown weight type %q, want %s or %s", p.WeightType, WeightExpTime, WeightIVM)
	}
	if p.MinAreaFrac < 0 || p.MinAreaFrac > 1 {
		return fmt.Errorf("minimum area fraction %g outside [0,1]", p.MinAreaFrac)
	}
	if p.MedianFilterFactor < 1 {
		return errors.New("median filter factor must be at least 1")
	}
	if !(p.Sigma > 0) {
		return fmt.Errorf("invalid clipping threshold %g", p.Sigma)
	}
	if p.NPixels < 1 || p.DilateSize < 0 {
		return fmt.Errorf("invalid mask parameters npixels %d dilateSize %d", p.NPixels, p.DilateSize)
	}
	return nil
}

func (p *Params) maskParams() mask.Params {
	return mask.Params{NSigma: p.Sigma, NPixels: p.NPixels, DilateSize: p.DilateSize, Sigma: p.Sigma, MaxIters: p.MaxIters}
}

func (p *Params) String() string {
	return fmt.Sprintf("weight %s minAreaFrac %g largeScale %v factor %d quadrants %v sigma %g dilate %d",
		p.WeightType, p.MinAreaFrac, p.DoLargeScale, p.MedianFilterFactor, p.Quadrants, p.Sigma, p.DilateSize)
}
