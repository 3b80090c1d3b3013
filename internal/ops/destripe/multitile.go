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
	"runtime/debug"
	"sync"

	nl "github.com/mlnoga/destripe/internal"
	"github.com/mlnoga/destripe/internal/frame"
	"github.com/mlnoga/destripe/internal/mosaic"
	"github.com/mlnoga/destripe/internal/ops"
)

// Float arrays of frame size held by one multi-tile worker at a time
const multiTileBuffers = 16

// Removes stripe noise from a set of dithered exposures by comparing each one
// with the others. Takes n inputs, produces n outputs in the same order
type OpMultiTile struct {
	ops.OpBase
	Params *mosaic.Params `json:"params"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpMultiTileDefault() }) } // register the operator for JSON decoding

func NewOpMultiTileDefault() *OpMultiTile { return NewOpMultiTile(mosaic.DefaultParams()) }

func NewOpMultiTile(p *mosaic.Params) *OpMultiTile {
	return &OpMultiTile{
		OpBase: ops.OpBase{Type: "multiTileDestripe", Active: true},
		Params: p,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpMultiTile) UnmarshalJSON(data []byte) error {
	type defaults OpMultiTile
	def := defaults(*NewOpMultiTileDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpMultiTile(def)
	return nil
}

// State shared by the output promises of one invocation. The first promise
// to be materialized runs the whole batch
type multiTileBatch struct {
	once   sync.Once
	frames []*frame.Frame
	err    error
}

func (op *OpMultiTile) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if len(ins) == 0 {
		return nil, errors.New(fmt.Sprintf("%s operator needs inputs", op.Type))
	}
	if !op.Active {
		return ins, nil
	}
	if op.Params == nil {
		return nil, errors.New(fmt.Sprintf("%s operator without parameters", op.Type))
	}
	if err := op.Params.Validate(); err != nil {
		return nil, err
	}

	batch := &multiTileBatch{}
	outs = make([]ops.Promise, len(ins))
	for i := range ins {
		i := i
		outs[i] = func() (*frame.Frame, error) {
			batch.once.Do(func() { batch.frames, batch.err = op.Apply(ins, c) })
			if batch.err != nil {
				return nil, batch.err
			}
			return batch.frames[i], nil
		}
	}
	return outs, nil
}

// Materializes all inputs and destripes them jointly
func (op *OpMultiTile) Apply(ins []ops.Promise, c *ops.Context) (fs []*frame.Frame, err error) {
	fs, err = ops.MaterializeAll(ins, c.MaxThreads, false)
	if err != nil {
		return nil, err
	}
	debug.FreeOSMemory()

	largest := int64(0)
	for _, f := range fs {
		if n := int64(f.Width) * int64(f.Height); n > largest {
			largest = n
		}
	}
	workers := nl.WorkersForMemory(multiTileBuffers*4*largest, c.MemoryMB, c.MaxThreads)
	fmt.Fprintf(c.Log, "\nDestriping %d dithered exposures with %d workers...\n", len(fs), workers)

	results, err := mosaic.Run(fs, op.Params, workers, c.Log)
	if err != nil {
		return nil, err
	}
	for i, f := range fs {
		r := results[i]
		attach(f, r.Noise, r.Corrected, r.InsufficientData, r.Warnings)
	}
	nl.ClearPools()
	debug.FreeOSMemory()
	return fs, nil
}
