// fitbench generates synthetic emitter spots, fits them sequentially and in
// parallel, and reports timing and recovery accuracy. Useful for sizing the
// worker pool on new hardware and for eyeballing individual fits with -plots.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/lumen-data/subpixel/internal/fitrun"
	"github.com/lumen-data/subpixel/internal/gaussfit"
	"github.com/lumen-data/subpixel/internal/locs"
	"github.com/lumen-data/subpixel/internal/render"
)

func main() {
	nSpots := flag.Int("spots", 10000, "Number of synthetic spots to generate")
	size := flag.Int("size", 7, "Spot side length (odd)")
	photons := flag.Float64("photons", 500, "True photon count per spot")
	bg := flag.Float64("bg", 10, "True background level")
	sigma := flag.Float64("sigma", 1.3, "True Gaussian width (both axes)")
	noise := flag.Float64("noise", 1.0, "Additive uniform noise amplitude")
	workers := flag.Int("workers", 0, "Worker count (0 = default 0.75*cores)")
	seed := flag.Int64("seed", 1, "RNG seed")
	em := flag.Bool("em", false, "EM gain mode for the precision estimate")
	sequential := flag.Bool("seq", false, "Also run the sequential batch fitter for comparison")
	plotDir := flag.String("plots", "", "Write diagnostic PNGs for the first spot into this directory")
	flag.Parse()

	if *size%2 == 0 || *size <= 0 {
		fmt.Fprintf(os.Stderr, "spot size must be positive and odd, got %d\n", *size)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	spots := make([]gaussfit.Spot, *nSpots)
	ids := make([]locs.Identification, *nSpots)
	truths := make([][gaussfit.ThetaLen]float64, *nSpots)
	for i := range spots {
		truth := [gaussfit.ThetaLen]float64{
			rng.Float64() - 0.5,
			rng.Float64() - 0.5,
			*photons,
			*bg,
			*sigma,
			*sigma,
		}
		truths[i] = truth
		model := gaussfit.EvalModel(truth, *size)
		pix := make([]float32, len(model))
		for k, v := range model {
			pix[k] = float32(v + *noise*(2*rng.Float64()-1))
		}
		spot, err := gaussfit.NewSpot(*size, pix)
		if err != nil {
			log.Fatalf("generate spot %d: %v", i, err)
		}
		spots[i] = spot
		ids[i] = locs.Identification{
			Frame:       uint32(i / 100),
			X:           32 + rng.Intn(448),
			Y:           32 + rng.Intn(448),
			NetGradient: float32(100 + 50*rng.Float64()),
		}
	}

	w := *workers
	if w <= 0 {
		w = gaussfit.DefaultWorkers()
	}
	manager := fitrun.NewManager()
	runID := manager.Start(len(spots), 100*w)
	fitrun.Register(manager)
	defer fitrun.Unregister(runID)

	lastPct := -10
	start := time.Now()
	theta, err := gaussfit.FitSpotsParallel(spots, gaussfit.SchedulerConfig{
		Workers: w,
		Progress: func(completed, total int) {
			manager.TaskDone(completed, total)
			if pct := 100 * completed / total; pct/10 > lastPct/10 {
				lastPct = pct
				log.Printf("[FitBench] %3d%% (%d/%d tasks)", pct, completed, total)
			}
		},
	})
	if err != nil {
		manager.Fail(err)
		log.Fatalf("parallel fit failed: %v", err)
	}
	manager.Complete()
	parElapsed := time.Since(start)
	log.Printf("[FitBench] %d spots, %d workers: %v (%.0f spots/s)",
		len(spots), w, parElapsed, float64(len(spots))/parElapsed.Seconds())

	if *sequential {
		start = time.Now()
		gaussfit.FitSpots(spots)
		seqElapsed := time.Since(start)
		log.Printf("[FitBench] sequential: %v (speedup %.2fx)", seqElapsed,
			seqElapsed.Seconds()/parElapsed.Seconds())
	}

	records, err := locs.FromFits(ids, theta, locs.MortensenPrecision, *em)
	if err != nil {
		log.Fatalf("assemble localizations: %v", err)
	}

	var dx, dn, fitted float64
	for i := range spots {
		x := theta.At(i, gaussfit.ThetaX)
		if math.IsNaN(x) {
			continue
		}
		fitted++
		dx += math.Abs(x - truths[i][gaussfit.ThetaX])
		dn += math.Abs(theta.At(i, gaussfit.ThetaPhotons) - truths[i][gaussfit.ThetaPhotons])
	}
	log.Printf("[FitBench] fitted %d/%d spots; mean |x error| %.4f px, mean |photon error| %.1f",
		int(fitted), len(spots), dx/fitted, dn/fitted)
	if len(records) > 0 {
		log.Printf("[FitBench] %d localization records, frames 0..%d, lpx[0]=%.4f px",
			len(records), records[len(records)-1].Frame, records[0].LPX)
	}

	if *plotDir != "" {
		sp, err := render.NewSpotPlotter(*plotDir)
		if err != nil {
			log.Fatalf("plot dir: %v", err)
		}
		var first [gaussfit.ThetaLen]float64
		copy(first[:], theta.RawRowView(0))
		if err := sp.PlotFit("spot0", spots[0], first); err != nil {
			log.Fatalf("plot fit: %v", err)
		}
		log.Printf("[FitBench] wrote diagnostics for spot 0 to %s", *plotDir)
	}
}
