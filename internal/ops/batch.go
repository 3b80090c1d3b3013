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

package ops

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/mlnoga/destripe/internal/frame"
)

// Outcome of one item of a batch
type BatchItem struct {
	Index    int    `json:"index"`
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
	Success  bool   `json:"success"`
	Status   string `json:"status"`
}

// Builds the promises of an operator tree without inputs, materializes them
// and logs a report with one line per item. Items with insufficient data are
// not successful, but do not fail the batch
func RunBatch(op Operator, c *Context) (items []BatchItem, err error) {
	if op == nil {
		return nil, errors.New("no operator to run")
	}
	outs, err := op.MakePromises(nil, c)
	if err != nil {
		return nil, err
	}
	fs, err := MaterializeAll(outs, c.MaxThreads, false)
	debug.FreeOSMemory()

	items = make([]BatchItem, len(fs))
	for i, f := range fs {
		items[i] = BatchItem{Index: i, ID: i, Status: "failed"}
		if f == nil {
			continue
		}
		items[i].ID, items[i].FileName = f.ID, f.FileName
		items[i].Status = f.Status.String()
		items[i].Success = f.Status != frame.StatusInsufficientData
	}

	ok := 0
	fmt.Fprintf(c.Log, "\nBatch report:\n")
	for _, it := range items {
		fmt.Fprintf(c.Log, "%d: %-18s %s\n", it.ID, it.Status, it.FileName)
		if it.Success {
			ok++
		}
	}
	fmt.Fprintf(c.Log, "%d of %d items succeeded\n", ok, len(items))
	return items, err
}
