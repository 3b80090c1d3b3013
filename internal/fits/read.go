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

// Package fits reads and writes calibrated detector frames as multi-extension
// FITS files with SCI, ERR, DQ and optional VAR_RNOISE and NOISE extensions.
package fits

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/mlnoga/destripe/internal/frame"
)

// Extension names
const (
	ExtSci       = "SCI"
	ExtErr       = "ERR"
	ExtDQ        = "DQ"
	ExtVarRNoise = "VAR_RNOISE"
	ExtNoise     = "NOISE"
)

// Reads a frame from the given file
func ReadFrame(fileName string, id int) (*frame.Frame, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := ReadFrameFrom(bufio.NewReader(file), id)
	if err != nil {
		return nil, fmt.Errorf("%d: reading %s: %w", id, fileName, err)
	}
	f.FileName = fileName
	return f, nil
}

// Reads a frame from a stream. Without a SCI extension, the primary data
// unit holds the science values
func ReadFrameFrom(r io.Reader, id int) (*frame.Frame, error) {
	ff, err := fitsio.Open(r)
	if err != nil {
		return nil, err
	}
	defer ff.Close()

	hdus := ff.HDUs()
	if len(hdus) == 0 {
		return nil, errors.New("no header data units")
	}
	primary := hdus[0].Header()
	images := map[string]fitsio.Image{}
	for i, hdu := range hdus {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		name := strings.ToUpper(headerString(hdu.Header(), "EXTNAME"))
		if i == 0 && name == "" {
			name = "PRIMARY"
		}
		if _, dup := images[name]; !dup {
			images[name] = img
		}
	}

	sci, ok := images[ExtSci]
	if !ok {
		sci, ok = images["PRIMARY"]
	}
	if !ok || len(sci.Header().Axes()) != 2 {
		return nil, errors.New("no two-dimensional science image")
	}
	axes := sci.Header().Axes()
	width, height := axes[0], axes[1]

	f := &frame.Frame{ID: id, Width: width, Height: height, Header: passThroughCards(primary)}
	if f.Sci, err = readFloat32(sci, width*height); err != nil {
		return nil, fmt.Errorf("%s: %w", ExtSci, err)
	}
	if img, ok := images[ExtErr]; ok {
		if f.Err, err = readFloat32(img, width*height); err != nil {
			return nil, fmt.Errorf("%s: %w", ExtErr, err)
		}
	}
	if img, ok := images[ExtDQ]; ok {
		if f.DQ, err = readUint32(img, width*height); err != nil {
			return nil, fmt.Errorf("%s: %w", ExtDQ, err)
		}
	}
	if img, ok := images[ExtVarRNoise]; ok {
		if f.VarRNoise, err = readFloat32(img, width*height); err != nil {
			return nil, fmt.Errorf("%s: %w", ExtVarRNoise, err)
		}
	}

	if exp, ok := firstFloat([]string{"EFFEXPTM", "EXPTIME", "EXPOSURE"}, primary, sci.Header()); ok {
		f.Exposure = float32(exp)
	}
	sub := strings.ToUpper(headerString(primary, "SUBARRAY"))
	f.SubArray = sub != "" && sub != "FULL"
	f.WCS = parseWCS(sci.Header())
	if f.WCS == nil {
		f.WCS = parseWCS(primary)
	}
	return f, f.Validate()
}

// Reads image data of any pixel type into float32
func readFloat32(img fitsio.Image, n int) ([]float32, error) {
	res := make([]float32, n)
	switch bitpix := img.Header().Bitpix(); bitpix {
	case -32:
		buf := make([]float32, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		copy(res, buf)
	case -64:
		buf := make([]float64, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			res[i] = float32(v)
		}
	case 32:
		buf := make([]int32, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			res[i] = float32(v)
		}
	case 16:
		buf := make([]int16, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			res[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("unsupported pixel type %d", bitpix)
	}
	return res, nil
}

// Reads integer flag data into uint32
func readUint32(img fitsio.Image, n int) ([]uint32, error) {
	res := make([]uint32, n)
	switch bitpix := img.Header().Bitpix(); bitpix {
	case 32:
		buf := make([]int32, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			res[i] = uint32(v)
		}
	case 16:
		buf := make([]int16, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			res[i] = uint32(uint16(v))
		}
	case 8:
		buf := make([]uint8, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			res[i] = uint32(v)
		}
	default:
		return nil, fmt.Errorf("unsupported flag type %d", bitpix)
	}
	return res, nil
}
