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
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/astrogo/fitsio"

	"github.com/mlnoga/destripe/internal/frame"
)

// Writes a frame to the given file. With withNoise, the noise model is
// written to an additional NOISE extension
func WriteFrame(fileName string, f *frame.Frame, withNoise bool) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := WriteFrameTo(writer, f, withNoise); err != nil {
		return fmt.Errorf("%d: writing %s: %w", f.ID, fileName, err)
	}
	return writer.Flush()
}

// Writes a frame to a stream: a primary header with the cards of the source
// file, followed by image extensions
func WriteFrameTo(w io.Writer, f *frame.Frame, withNoise bool) error {
	ff, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer ff.Close()

	primary := fitsio.NewImage(8, nil)
	defer primary.Close()
	if cards, ok := f.Header.([]fitsio.Card); ok {
		if err := primary.Header().Append(cards...); err != nil {
			return err
		}
	}
	if err := ff.Write(primary); err != nil {
		return err
	}

	sciCards := append(wcsCards(f.WCS), fitsio.Card{Name: "EXPTIME", Value: float64(f.Exposure)})
	if err := writeExtension(ff, ExtSci, -32, f.Width, f.Height, f.Sci, sciCards...); err != nil {
		return err
	}
	if f.Err != nil {
		if err := writeExtension(ff, ExtErr, -32, f.Width, f.Height, f.Err); err != nil {
			return err
		}
	}
	if f.DQ != nil {
		dq := make([]int32, len(f.DQ))
		for i, v := range f.DQ {
			dq[i] = int32(v)
		}
		if err := writeExtension(ff, ExtDQ, 32, f.Width, f.Height, dq); err != nil {
			return err
		}
	}
	if f.VarRNoise != nil {
		if err := writeExtension(ff, ExtVarRNoise, -32, f.Width, f.Height, f.VarRNoise); err != nil {
			return err
		}
	}
	if withNoise && f.Noise != nil {
		if err := writeExtension(ff, ExtNoise, -32, f.Width, f.Height, f.Noise); err != nil {
			return err
		}
	}
	return nil
}

func writeExtension(ff *fitsio.File, name string, bitpix, width, height int, data interface{}, cards ...fitsio.Card) error {
	img := fitsio.NewImage(bitpix, []int{width, height})
	defer img.Close()
	cards = append([]fitsio.Card{{Name: "EXTNAME", Value: name}}, cards...)
	if err := img.Header().Append(cards...); err != nil {
		return err
	}
	if err := img.Write(data); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return ff.Write(img)
}
