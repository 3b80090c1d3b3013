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

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/cpuid"

	nl "github.com/mlnoga/destripe/internal"
	ds "github.com/mlnoga/destripe/internal/destripe"
	"github.com/mlnoga/destripe/internal/mosaic"
	"github.com/mlnoga/destripe/internal/ops"
	opsds "github.com/mlnoga/destripe/internal/ops/destripe"
	"github.com/mlnoga/destripe/internal/pca"
	"github.com/mlnoga/destripe/internal/rest"
)

const version = "0.3.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")

var out = flag.String("out", "%s_destriped.fits", "save corrected frames with given filename pattern, %d=frame id, %s=input name without suffix")
var log = flag.String("log", "", "save log output to `file`")
var writeNoise = flag.Bool("writeNoise", false, "add the noise model as NOISE extension to saved frames")
var threads = flag.Int("threads", runtime.GOMAXPROCS(0), "maximum number of frames processed in parallel")
var cache = flag.String("cache", "", "cache fitted PCA eigen-systems in given `directory`, empty=memory only")

var panel = flag.String("panel", "", "save diagnostic panels with given filename pattern, e.g. `%s_panel.png`")
var profile = flag.String("profile", "", "save row profile plots with given filename pattern, e.g. `%s_rows.png`")

var method = flag.String("method", ds.MethodRowMedian, "single-tile method, one of row_median, median_filter, remstripe, pca")
var sigma = flag.Float64("sigma", 3, "clipping and source detection threshold in standard deviations")
var npixels = flag.Int("npixels", 3, "minimum connected pixels of a source")
var dilateSize = flag.Int("dilateSize", 11, "side of the square source mask dilation")
var maxIters = flag.Int("maxIters", 20, "sigma clipping iterations, 0=until convergence")
var quadrants = flag.Bool("quadrants", true, "model each amplifier separately")
var scales = flag.String("scales", "3,7,15,31,63,127", "comma-separated smoothing scales for median_filter")
var filter = flag.String("filter", ds.FilterMedian, "smoother for median_filter profiles, one of median, boxcar")
var maxEmptyRows = flag.Int("maxEmptyRows", 8, "flag insufficient data with more empty rows at any scale")
var pcaComponents = flag.Int("pcaComponents", 50, "principal components to fit")
var pcaReconstruct = flag.Int("pcaReconstruct", 10, "principal components used for reconstruction")
var pcaSeed = flag.Uint("pcaSeed", 1, "random seed for PCA training sample selection")
var maskColumnFrac = flag.Float64("maskColumnFrac", 0.25, "maximum masked fraction of a PCA training column")
var minColumnFrac = flag.Float64("minColumnFrac", 0.5, "minimum fraction of columns kept for PCA training")
var pcaFinalRowMedian = flag.Bool("pcaFinalRowMedian", false, "finish the PCA model with a row median pass")
var filterDiffuse = flag.Bool("filterDiffuse", false, "high-pass filter diffuse emission before modelling")
var vertical = flag.Bool("vertical", false, "also model column stripes")
var stripWidth = flag.Int("stripWidth", 20, "columns compared on each side of an amplifier boundary")

var weightType = flag.String("weightType", mosaic.WeightExpTime, "multi-tile weights, one of exptime, ivm")
var minAreaFrac = flag.Float64("minAreaFrac", 0.5, "multi-tile minimum overlap fraction of a contributor")
var largeScale = flag.Bool("largeScale", false, "multi-tile row pass after removing large-scale structure")
var medianFilterFactor = flag.Int("medianFilterFactor", 4, "multi-tile boxcar size as fraction of the frame height")
var mtDilateSize = flag.Int("mtDilateSize", 7, "multi-tile source mask dilation")
var mtMaxIters = flag.Int("mtMaxIters", 0, "multi-tile sigma clipping iterations, 0=until convergence")

var addr = flag.String("addr", ":8080", "listen address for serve")
var chroot = flag.String("chroot", "", "serve: change filesystem root to `directory` before serving, requires root")
var setuid = flag.Int("setuid", -1, "serve: change user id before serving, -1=keep")

func main() {
	logWriter := nl.LogWriter()
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Destripe Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (single|multi|job|serve|legal|version) (img0.fits ... imgn.fits | job.json | job.yaml)

Commands:
  single  Destripe each input frame on its own
  multi   Destripe dithered input frames jointly
  job     Run the operator tree from the given JSON or YAML file
  serve   Serve the REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *log != "" {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}
	defer nl.LogSync()

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatalf("Could not create CPU profile: %s\n", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatalf("Could not start CPU profile: %s\n", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	var err error
	switch args[0] {
	case "single", "multi", "job":
		banner(logWriter)
		var c *ops.Context
		if c, err = newContext(logWriter); err != nil {
			break
		}
		var op ops.Operator
		if op, err = buildOperator(args[0], args[1:]); err != nil {
			break
		}
		if m, e := json.MarshalIndent(op, "", "  "); e == nil {
			fmt.Fprintf(logWriter, "\nRunning with these settings:\n%s\n", string(m))
		}
		debug.SetGCPercent(20)
		_, err = ops.RunBatch(op, c)

	case "serve":
		banner(logWriter)
		s := &rest.Server{Addr: *addr, MaxThreads: *threads, Store: pca.NewMemoryStore(), Sandboxed: true}
		if err = rest.MakeSandbox(*chroot, *setuid, logWriter); err != nil {
			break
		}
		err = s.Serve()

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)
		banner(logWriter)

	case "help", "?":
		flag.Usage()
		return

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))
	if err != nil {
		nl.LogFatalf("Error: %s\n", err.Error())
	}
}

// Reports processor and memory
func banner(w io.Writer) {
	fmt.Fprintf(w, "CPU %s with %d physical and %d logical cores, AVX2 %v\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, cpuid.CPU.AVX2())
	fmt.Fprintf(w, "Memory %d MiB, using up to %d threads\n", nl.TotalMemoryMB(), *threads)
}

func newContext(logWriter io.Writer) (*ops.Context, error) {
	c := ops.NewContext(logWriter)
	c.MaxThreads = *threads
	if *cache != "" {
		store, err := pca.NewFileStore(*cache)
		if err != nil {
			return nil, err
		}
		c.Store = store
	}
	return c, nil
}

// Builds the operator tree for a command line
func buildOperator(cmd string, args []string) (ops.Operator, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s needs input files", cmd)
	}
	if cmd == "job" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, err
		}
		return ops.UnmarshalJob(data, ops.JobFormat(args[0]))
	}

	seq := ops.NewOpSequence(ops.NewOpLoadMany(args))
	switch cmd {
	case "single":
		p, err := singleParams()
		if err != nil {
			return nil, err
		}
		seq.Append(opsds.NewOpDestripe(p))
	case "multi":
		p := multiParams()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		seq.Append(opsds.NewOpMultiTile(p))
	}
	if *panel != "" || *profile != "" {
		seq.Append(opsds.NewOpDiagnostics(*panel, *profile))
	}
	seq.Append(ops.NewOpSave(*out, *writeNoise))
	return seq, nil
}

func singleParams() (*ds.Params, error) {
	sc, err := parseInts(*scales)
	if err != nil {
		return nil, err
	}
	p := &ds.Params{
		Sigma:                    float32(*sigma),
		NPixels:                  *npixels,
		DilateSize:               *dilateSize,
		MaxIters:                 *maxIters,
		Quadrants:                *quadrants,
		Method:                   *method,
		Scales:                   sc,
		Filter:                   *filter,
		MaxEmptyRows:             *maxEmptyRows,
		PCAComponents:            *pcaComponents,
		PCAReconstructComponents: *pcaReconstruct,
		PCASeed:                  uint32(*pcaSeed),
		MaskColumnFrac:           *maskColumnFrac,
		MinColumnFrac:            *minColumnFrac,
		PCAFinalRowMedian:        *pcaFinalRowMedian,
		FilterDiffuse:            *filterDiffuse,
		VerticalSubtraction:      *vertical,
		StripWidth:               *stripWidth,
	}
	return p, p.Validate()
}

func multiParams() *mosaic.Params {
	return &mosaic.Params{
		WeightType:         *weightType,
		MinAreaFrac:        float32(*minAreaFrac),
		DoLargeScale:       *largeScale,
		MedianFilterFactor: *medianFilterFactor,
		Quadrants:          *quadrants,
		Sigma:              float32(*sigma),
		NPixels:            *npixels,
		DilateSize:         *mtDilateSize,
		MaxIters:           *mtMaxIters,
	}
}

// Parses a comma-separated list of integers
func parseInts(s string) ([]int, error) {
	var res []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid integer '%s' in list '%s'", f, s)
		}
		res = append(res, v)
	}
	return res, nil
}

