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

	"github.com/mlnoga/destripe/internal/diag"
	"github.com/mlnoga/destripe/internal/frame"
	"github.com/mlnoga/destripe/internal/ops"
)

// Writes a diagnostic panel and a row profile plot for each frame, with
// pattern expansion as for saving. Empty patterns skip the respective output.
// Takes n inputs, produces the n unchanged inputs
type OpDiagnostics struct {
	ops.OpUnaryBase
	PanelPattern   string       `json:"panelPattern"`
	ProfilePattern string       `json:"profilePattern"`
	Options        diag.Options `json:"options"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpDiagnosticsDefault() }) } // register the operator for JSON decoding

func NewOpDiagnosticsDefault() *OpDiagnostics { return NewOpDiagnostics("", "") }

func NewOpDiagnostics(panelPattern, profilePattern string) *OpDiagnostics {
	op := OpDiagnostics{
		OpUnaryBase:    ops.OpUnaryBase{OpBase: ops.OpBase{Type: "diagnostics", Active: panelPattern != "" || profilePattern != ""}},
		PanelPattern:   panelPattern,
		ProfilePattern: profilePattern,
		Options:        diag.DefaultOptions(),
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpDiagnostics) UnmarshalJSON(data []byte) error {
	type defaults OpDiagnostics
	def := defaults(*NewOpDiagnosticsDefault())
	def.Active = true
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpDiagnostics(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpDiagnostics) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if f.Status == frame.StatusInsufficientData {
		return f, nil
	}
	if op.PanelPattern != "" {
		fileName, err := op.expand(op.PanelPattern, f, c)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(c.Log, "%d: Writing diagnostic panel to %s\n", f.ID, fileName)
		if err := diag.WriteImage(fileName, diag.Panel(f, op.Options)); err != nil {
			return nil, err
		}
	}
	if op.ProfilePattern != "" {
		fileName, err := op.expand(op.ProfilePattern, f, c)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(c.Log, "%d: Writing row profile to %s\n", f.ID, fileName)
		if err := diag.WriteRowProfile(fileName, f); err != nil {
			return nil, err
		}
	}

	before, errBefore := diag.NoiseLevel(diag.Original(f))
	after, errAfter := diag.NoiseLevel(diag.Corrected(f))
	if errBefore == nil && errAfter == nil {
		fmt.Fprintf(c.Log, "%d: Background noise %.4g before, %.4g after destriping\n", f.ID, before.StdDev, after.StdDev)
	}
	return f, nil
}

func (op *OpDiagnostics) expand(pattern string, f *frame.Frame, c *ops.Context) (string, error) {
	fileName := ops.ExpandPattern(pattern, f)
	if c.Sandboxed && !ops.IsPathAllowed(fileName) {
		return "", errors.New("Filename outside current directory tree, aborting")
	}
	return fileName, nil
}
