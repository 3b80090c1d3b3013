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

package frame

import (
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/destripe/internal/coord"
)

// Data quality flag bits of calibrated detector frames
const (
	DQDoNotUse   uint32 = 1 << 0
	DQSaturated  uint32 = 1 << 1
	DQJumpDet    uint32 = 1 << 2
	DQNonScience uint32 = 1 << 9

	// Pixels carrying any of these bits are excluded from all statistics
	DQDefaultBadBits = DQDoNotUse | DQNonScience
)

// Processing status of a frame
type Status int

const (
	StatusPending          Status = iota // not yet processed
	StatusOK                             // noise model computed and subtracted
	StatusInsufficientData               // too little valid data; no output is produced
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOK:
		return "ok"
	case StatusInsufficientData:
		return "insufficient data"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// A calibrated detector exposure: science values, 1 sigma errors and quality
// flags on the same row-major pixel grid
type Frame struct {
	ID       int    // sequential ID within a batch, used as log prefix
	FileName string // source file, also the key for cached fits

	Width  int
	Height int

	Sci       []float32 // science values. Zero and non-finite mean no data
	Err       []float32 // 1 sigma errors
	DQ        []uint32  // data quality flags
	VarRNoise []float32 // read noise variance, optional

	Exposure float32 // effective exposure time in seconds
	SubArray bool    // sub-array readout, too small to split into amplifiers

	WCS    *coord.LinearWCS // linear approximation of the sky mapping, optional
	Header interface{}      // primary header of the source file, passed through on write

	Noise    []float32 // noise model subtracted from Sci, if processed
	Status   Status
	Warnings []string
}

// Creates a new frame of given size with zeroed arrays
func New(id int, width, height int) *Frame {
	n := width * height
	return &Frame{
		ID:     id,
		Width:  width,
		Height: height,
		Sci:    make([]float32, n),
		Err:    make([]float32, n),
		DQ:     make([]uint32, n),
	}
}

func (f *Frame) String() string {
	return fmt.Sprintf("%d: %dx%d frame from %s", f.ID, f.Width, f.Height, f.FileName)
}

func (f *Frame) DimensionsToString() string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

// Checks that all arrays share the frame shape
func (f *Frame) Validate() error {
	n := f.Width * f.Height
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%d: invalid frame size %dx%d", f.ID, f.Width, f.Height)
	}
	if len(f.Sci) != n {
		return fmt.Errorf("%d: science array has %d pixels, want %d", f.ID, len(f.Sci), n)
	}
	if f.Err != nil && len(f.Err) != n {
		return fmt.Errorf("%d: error array has %d pixels, want %d", f.ID, len(f.Err), n)
	}
	if f.DQ != nil && len(f.DQ) != n {
		return fmt.Errorf("%d: quality array has %d pixels, want %d", f.ID, len(f.DQ), n)
	}
	if f.VarRNoise != nil && len(f.VarRNoise) != n {
		return fmt.Errorf("%d: read noise variance has %d pixels, want %d", f.ID, len(f.VarRNoise), n)
	}
	return nil
}

// Adds a warning to the frame
func (f *Frame) Warn(format string, args ...interface{}) {
	f.Warnings = append(f.Warnings, fmt.Sprintf(format, args...))
}

var ErrNoData = errors.New("frame has no valid data")

// Returns true if v is a no-data sentinel: zero or non-finite
func IsNoData(v float32) bool {
	return v == 0 || math.IsNaN(float64(v)) || math.IsInf(float64(v), 0)
}

// Returns a mask which is true where the science value is a no-data sentinel,
// the error is non-finite, or any of the given quality bits is set
func QualityMask(sci, err []float32, dq []uint32, badBits uint32) []bool {
	mask := make([]bool, len(sci))
	for i, v := range sci {
		if IsNoData(v) {
			mask[i] = true
			continue
		}
		if err != nil {
			e := float64(err[i])
			if math.IsNaN(e) || math.IsInf(e, 0) {
				mask[i] = true
				continue
			}
		}
		if dq != nil && dq[i]&badBits != 0 {
			mask[i] = true
		}
	}
	return mask
}

// Quality mask of the frame with the default bad bits
func (f *Frame) QualityMask() []bool {
	return QualityMask(f.Sci, f.Err, f.DQ, DQDefaultBadBits)
}

// Copy of the science array with no-data sentinels and flagged pixels set to NaN
func (f *Frame) MaskedScience(badBits uint32) []float32 {
	nan := float32(math.NaN())
	res := make([]float32, len(f.Sci))
	for i, v := range f.Sci {
		if IsNoData(v) || (f.DQ != nil && f.DQ[i]&badBits != 0) {
			res[i] = nan
		} else {
			res[i] = v
		}
	}
	return res
}

// Subtracts the noise model from the science array, keeping zero and non-finite
// sentinels in place. Returns a new array
func Subtract(sci, noise []float32) []float32 {
	res := make([]float32, len(sci))
	for i, v := range sci {
		if IsNoData(v) {
			res[i] = v // restores zeros and NaNs exactly
			continue
		}
		res[i] = v - noise[i]
	}
	return res
}

// Shallow copy of the frame with its own science array
func (f *Frame) CloneWithScience(sci []float32) *Frame {
	c := *f
	c.Sci = sci
	c.Warnings = append([]string(nil), f.Warnings...)
	return &c
}
