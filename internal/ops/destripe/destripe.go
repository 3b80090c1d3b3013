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

// Package destripe provides the pipeline operators for single-tile and
// multi-tile stripe removal and their diagnostics.
package destripe

import (
	"encoding/json"
	"errors"
	"fmt"

	ds "github.com/mlnoga/destripe/internal/destripe"
	"github.com/mlnoga/destripe/internal/frame"
	"github.com/mlnoga/destripe/internal/ops"
)

// Removes stripe noise from each frame individually. Takes n inputs,
// produces n outputs with corrected science and the noise model attached
type OpDestripe struct {
	ops.OpUnaryBase
	Params *ds.Params `json:"params"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpDestripeDefault() }) } // register the operator for JSON decoding

func NewOpDestripeDefault() *OpDestripe { return NewOpDestripe(ds.DefaultParams()) }

func NewOpDestripe(p *ds.Params) *OpDestripe {
	op := OpDestripe{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "destripe", Active: true}},
		Params:      p,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpDestripe) UnmarshalJSON(data []byte) error {
	type defaults OpDestripe
	def := defaults(*NewOpDestripeDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpDestripe(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpDestripe) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if op.Params == nil {
		return nil, errors.New(fmt.Sprintf("%s operator without parameters", op.Type))
	}
	if err := op.Params.Validate(); err != nil {
		return nil, err
	}
	return op.OpUnaryBase.MakePromises(ins, c)
}

func (op *OpDestripe) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	res, err := ds.Run(f, op.Params, c.Store, c.Log)
	if err != nil {
		return nil, err
	}
	attach(f, res.Noise, res.Corrected, res.InsufficientData, res.Warnings)
	if !res.InsufficientData {
		fmt.Fprintf(c.Log, "%d: Removed stripes from %s with %s\n", f.ID, f.FileName, op.Params.Method)
	}
	return f, nil
}

// Attaches a noise model and the corrected science to a frame
func attach(f *frame.Frame, noise, corrected []float32, insufficient bool, warnings []string) {
	f.Noise = noise
	f.Sci = corrected
	f.Warnings = append(f.Warnings, warnings...)
	if insufficient {
		f.Status = frame.StatusInsufficientData
	} else {
		f.Status = frame.StatusOK
	}
}
