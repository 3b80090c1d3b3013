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

// Package mosaic removes stripe noise using dithered exposures of the same
// field, by comparing each exposure with the weighted average of the others.
package mosaic

import (
	"fmt"
	"io"

	nl "github.com/mlnoga/destripe/internal"
	"github.com/mlnoga/destripe/internal/frame"
)

// Destripes a set of dithered exposures. Phase one reprojects all frames onto
// the common grid, phase two destripes each exposure against the read-only
// stack. Results are returned in input order
func Run(frames []*frame.Frame, p *Params, maxThreads int, log io.Writer) ([]*Result, error) {
	if log == nil {
		log = io.Discard
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for _, f := range frames {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	g, err := NewGrid(frames)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(log, "Reprojecting %d exposures onto %s with %s\n", len(frames), g, p)

	st := &Stack{Grid: g, Tiles: make([]*Tile, len(frames)), MinAreaFrac: p.MinAreaFrac}
	errs := nl.ParallelFor(len(frames), maxThreads, func(i int) (err error) {
		st.Tiles[i], err = NewTile(frames[i], g, i, p.WeightType)
		return err
	})
	if err := nl.JoinErrors(errs); err != nil {
		return nil, err
	}

	results := make([]*Result, len(frames))
	nl.ParallelFor(len(frames), maxThreads, func(i int) error {
		f := frames[i]
		sub := st.Subset(i)
		res := DestripeExposure(f, g, i, sub, p)
		for _, w := range res.Warnings {
			fmt.Fprintf(log, "%d: WARNING %s\n", f.ID, w)
		}
		fmt.Fprintf(log, "%d: Destriped %s against %d overlapping exposures\n", f.ID, f.FileName, sub.Contributors)
		results[i] = res
		return nil
	})
	return results, nil
}
