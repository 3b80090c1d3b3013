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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/destripe/internal/frame"
)

func framePromise(f *frame.Frame, err error) Promise {
	return func() (*frame.Frame, error) { return f, err }
}

var errFailed = errors.New("failed")

func TestMaterializeAll(t *testing.T) {
	ins := make([]Promise, 20)
	for i := range ins {
		if i%7 == 3 {
			ins[i] = framePromise(nil, fmt.Errorf("%d: %w", i, errFailed))
		} else {
			ins[i] = framePromise(frame.New(i, 2, 2), nil)
		}
	}
	outs, err := MaterializeAll(ins, 3, false)
	if err == nil || err.Error() != "3: failed\n10: failed\n17: failed" {
		t.Errorf("err=%v; want joined errors in input order", err)
	}
	if !errors.Is(err, errFailed) {
		t.Errorf("err=%v does not wrap the item errors", err)
	}
	for i, f := range outs {
		if i%7 == 3 {
			if f != nil {
				t.Errorf("outs[%d]=%v; want nil", i, f)
			}
		} else if f == nil || f.ID != i {
			t.Errorf("outs[%d]=%v; want frame %d", i, f, i)
		}
	}
	if len(RemoveNils(outs)) != 17 {
		t.Errorf("RemoveNils kept %d frames; want 17", len(RemoveNils(outs)))
	}

	outs, err = MaterializeAll(ins[:3], 2, true)
	if outs != nil || err != nil {
		t.Errorf("forget: outs=%v err=%v", outs, err)
	}
}

func TestExpandPattern(t *testing.T) {
	f := &frame.Frame{ID: 7, FileName: "/data/jw01_nrcb1_cal.fits"}
	tcs := map[string]string{
		"out_%d.fits":       "out_7.fits",
		"%s_destriped.fits": "jw01_nrcb1_cal_destriped.fits",
		"diag/%s_%d.png":    "diag/jw01_nrcb1_cal_7.png",
		"plain.fits":        "plain.fits",
	}
	for pattern, want := range tcs {
		if got := ExpandPattern(pattern, f); got != want {
			t.Errorf("ExpandPattern(%s)=%s; want %s", pattern, got, want)
		}
	}
}

func TestIsPathAllowed(t *testing.T) {
	if !IsPathAllowed("data/a.fits") {
		t.Errorf("relative path rejected")
	}
	if IsPathAllowed("/etc/passwd") || IsPathAllowed("../a.fits") {
		t.Errorf("path outside the tree accepted")
	}
}

func TestUnmarshalOperator(t *testing.T) {
	raw := `{"type":"seq","active":true,"steps":[
		{"type":"loadMany","active":true,"filePatterns":["*.fits"]},
		{"type":"forEach","active":true,"operation":{"type":"save","filePattern":"%s_destriped.fits"}}
	]}`
	op, err := UnmarshalOperator([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	seq, ok := op.(*OpSequence)
	if !ok || len(seq.Steps) != 2 {
		t.Fatalf("decoded %T %v", op, op)
	}
	if lm, ok := seq.Steps[0].(*OpLoadMany); !ok || len(lm.FilePatterns) != 1 {
		t.Errorf("step 0 is %T %v", seq.Steps[0], seq.Steps[0])
	}
	fe, ok := seq.Steps[1].(*OpForEach)
	if !ok {
		t.Fatalf("step 1 is %T", seq.Steps[1])
	}
	save, ok := fe.Operation.(*OpSave)
	if !ok || !save.Active || save.FilePattern != "%s_destriped.fits" || save.WriteNoise {
		t.Fatalf("embedded operation %T %v", fe.Operation, fe.Operation)
	}
	if save.OpUnaryBase.Apply == nil {
		t.Errorf("decoded save operator has no apply method")
	}

	// encoding and decoding again preserves the tree
	bs, err := json.Marshal(seq)
	if err != nil {
		t.Fatal(err)
	}
	op2, err := UnmarshalOperator(bs)
	if err != nil {
		t.Fatalf("%v in %s", err, string(bs))
	}
	save2 := op2.(*OpSequence).Steps[1].(*OpForEach).Operation.(*OpSave)
	if save2.FilePattern != save.FilePattern || !save2.Active {
		t.Errorf("re-decoded save operator %v", save2)
	}

	if _, err := UnmarshalOperator([]byte(`{"type":"nonsense"}`)); err == nil {
		t.Errorf("expected error for unknown operator type")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	c := NewContext(io.Discard)

	f := frame.New(2, 5, 4)
	f.FileName = filepath.Join(dir, "exp_cal.fits")
	for i := range f.Sci {
		f.Sci[i] = float32(i + 1)
	}
	f.Noise = make([]float32, len(f.Sci))
	f.Status = frame.StatusOK

	seq := NewOpSequence(NewOpSave(filepath.Join(dir, "%s_%d.fits"), true))
	outs, err := seq.MakePromises([]Promise{framePromise(f, nil)}, c)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := MaterializeAll(outs, 1, true); err != nil {
		t.Fatal(err)
	}

	saved := filepath.Join(dir, "exp_cal_2.fits")
	outs, err = NewOpLoad(9, saved).MakePromises(nil, c)
	if err != nil {
		t.Fatal(err)
	}
	g, err := outs[0]()
	if err != nil {
		t.Fatal(err)
	}
	if g.ID != 9 || g.Width != 5 || g.Height != 4 || g.Sci[19] != 20 {
		t.Errorf("loaded %v", g)
	}

	// frames without a trustworthy model are not written
	f.ID, f.Status = 3, frame.StatusInsufficientData
	if _, err := NewOpSave(filepath.Join(dir, "%s_%d.fits"), false).Apply(f, c); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "exp_cal_3.fits")); !os.IsNotExist(err) {
		t.Errorf("frame with insufficient data was saved")
	}

	if _, err := NewOpSave(filepath.Join(dir, "out.jpg"), false).Apply(g, c); err == nil || !strings.Contains(err.Error(), "Unknown suffix") {
		t.Errorf("err=%v; want unknown suffix", err)
	}
}

func TestLoadManyAndSandbox(t *testing.T) {
	c := NewContext(io.Discard)
	if _, err := NewOpLoadMany([]string{filepath.Join(t.TempDir(), "*.fits")}).MakePromises(nil, c); err == nil {
		t.Errorf("expected error for pattern without matches")
	}

	c.Sandboxed = true
	if _, err := NewOpLoad(0, "/tmp/x.fits").MakePromises(nil, c); err == nil {
		t.Errorf("sandbox accepted absolute path")
	}
	if _, err := NewOpLoad(0, "x.fits").MakePromises([]Promise{framePromise(nil, nil)}, c); err == nil {
		t.Errorf("load accepted an input")
	}
}

func TestForEachInactive(t *testing.T) {
	c := NewContext(io.Discard)
	f := frame.New(1, 2, 2)
	save := NewOpSave("", false) // inactive without pattern
	outs, err := NewOpForEach(save).MakePromises([]Promise{framePromise(f, nil), framePromise(f, nil)}, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 {
		t.Fatalf("%d outputs; want 2", len(outs))
	}
	g, err := outs[1]()
	if err != nil || g != f {
		t.Errorf("inactive operator changed its input: %v %v", g, err)
	}

	if _, err := NewOpForEach(nil).MakePromises([]Promise{framePromise(f, nil)}, c); err == nil {
		t.Errorf("expected error for missing operation")
	}
}

func TestRunBatch(t *testing.T) {
	var log strings.Builder
	c := NewContext(&log)
	ok, empty := frame.New(0, 2, 2), frame.New(1, 2, 2)
	ok.Status, empty.Status = frame.StatusOK, frame.StatusInsufficientData
	op := &batchSource{frames: []*frame.Frame{ok, empty, nil}}

	items, err := RunBatch(op, c)
	if err == nil || !strings.Contains(err.Error(), "2: unreadable") {
		t.Errorf("err=%v; want error of item 2", err)
	}
	if len(items) != 3 || !items[0].Success || items[1].Success || items[2].Success || items[2].Status != "failed" {
		t.Errorf("items=%v", items)
	}
	if !strings.Contains(log.String(), "1 of 3 items succeeded") {
		t.Errorf("log lacks summary: %s", log.String())
	}
	if _, err := RunBatch(nil, c); err == nil {
		t.Errorf("expected error for nil operator")
	}
}

// Produces fixed frames, failing for nil entries
type batchSource struct {
	OpBase
	frames []*frame.Frame
}

func (op *batchSource) MakePromises(ins []Promise, c *Context) ([]Promise, error) {
	outs := make([]Promise, len(op.frames))
	for i, f := range op.frames {
		if f == nil {
			outs[i] = framePromise(nil, errors.New(fmt.Sprintf("%d: unreadable", i)))
		} else {
			outs[i] = framePromise(f, nil)
		}
	}
	return outs, nil
}

func TestUnmarshalJob(t *testing.T) {
	doc := `
type: seq
steps:
  - type: loadMany
    filePatterns: ["data/*_cal.fits"]
  - type: save
    filePattern: "%s_destriped.fits"
    writeNoise: true
`
	op, err := UnmarshalJob([]byte(doc), JobFormat("job.YAML"))
	if err != nil {
		t.Fatal(err)
	}
	seq := op.(*OpSequence)
	if len(seq.Steps) != 2 {
		t.Fatalf("%d steps; want 2", len(seq.Steps))
	}
	save, ok := seq.Steps[1].(*OpSave)
	if !ok || !save.WriteNoise || !save.Active || save.FilePattern != "%s_destriped.fits" {
		t.Errorf("step 1 is %T %v", seq.Steps[1], seq.Steps[1])
	}
	if _, err := UnmarshalJob([]byte(`{"type":"seq"}`), "json"); err != nil {
		t.Errorf("json job: %v", err)
	}
	if _, err := UnmarshalJob([]byte(`x`), "toml"); err == nil {
		t.Errorf("expected error for unknown format")
	}
}
