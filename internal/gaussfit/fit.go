// Package gaussfit fits a separable 2D Gaussian + background model to small
// square pixel windows ("spots") cropped around candidate emitter
// detections, recovering sub-pixel position, integrated photon count, local
// background and per-axis widths.
//
// Each fit is an independent bounded-iteration Levenberg–Marquardt
// refinement seeded by a moment-based initial guess. Batches of spots can be
// fitted sequentially (FitSpots) or across a bounded worker pool with
// order-preserving aggregation (FitSpotsParallel / FitSpotsAsync).
package gaussfit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Parameter vector column indices. A fitted theta is
// [x, y, photons, bg, sx, sy]: sub-pixel offset from the spot center along
// each axis, integrated intensity above background, background level, and
// Gaussian standard deviation along each axis.
const (
	ThetaX = iota
	ThetaY
	ThetaPhotons
	ThetaBG
	ThetaSX
	ThetaSY
	ThetaLen
)

// minSigma is the smallest width the initial guess will seed the solver
// with. Degenerate (flat) spots yield zero moment widths, which would put a
// division by zero into the Gaussian profile.
const minSigma = 1e-2

// Spot is a square window of pixel intensities, side length Size (odd),
// stored row-major. Spots are inputs only; the fitter never mutates them.
type Spot struct {
	Size int
	Pix  []float32
}

// NewSpot validates the window geometry and wraps it as a Spot. The pixel
// slice is referenced, not copied.
func NewSpot(size int, pix []float32) (Spot, error) {
	if size <= 0 || size%2 == 0 {
		return Spot{}, fmt.Errorf("gaussfit: spot size must be positive and odd, got %d", size)
	}
	if len(pix) != size*size {
		return Spot{}, fmt.Errorf("gaussfit: spot pixel count %d does not match %dx%d", len(pix), size, size)
	}
	return Spot{Size: size, Pix: pix}, nil
}

// At returns the pixel intensity at row i, column j.
func (s Spot) At(i, j int) float32 { return s.Pix[i*s.Size+j] }

// Half returns the center pixel index (Size-1)/2.
func (s Spot) Half() int { return (s.Size - 1) / 2 }

// FitConfig controls one spot fit. The zero value selects the defaults:
// loose tolerances tuned for throughput rather than tight convergence, and
// the permissive degenerate-spot policy.
type FitConfig struct {
	// MaxIter bounds the number of accepted Levenberg–Marquardt steps.
	// Default 100.
	MaxIter int
	// Ftol is the relative cost-reduction tolerance. Default 1e-2.
	Ftol float64
	// Xtol is the relative step-size tolerance. Default 1e-2.
	Xtol float64
	// RejectDegenerate makes the initial guess return ErrDegenerateSpot for
	// spots with no intensity above background instead of flooring the
	// moment denominator and continuing.
	RejectDegenerate bool
}

func (c FitConfig) withDefaults() FitConfig {
	if c.MaxIter <= 0 {
		c.MaxIter = 100
	}
	if c.Ftol <= 0 {
		c.Ftol = 1e-2
	}
	if c.Xtol <= 0 {
		c.Xtol = 1e-2
	}
	return c
}

// FitSpot fits the Gaussian model to one spot and returns the refined
// parameter vector. The last iterate is returned even when the iteration
// budget runs out before the tolerances are met; callers who need the
// convergence status use FitSpotStatus.
func FitSpot(spot Spot) [ThetaLen]float64 {
	theta, _, _ := FitSpotStatus(spot, FitConfig{})
	return theta
}

// FitSpotStatus fits one spot and additionally reports whether the
// tolerance criteria were met within the iteration budget. The returned
// theta is always the last iterate. err is non-nil only under
// cfg.RejectDegenerate for a degenerate spot.
func FitSpotStatus(spot Spot, cfg FitConfig) (theta [ThetaLen]float64, converged bool, err error) {
	cfg = cfg.withDefaults()
	theta0, err := initialParams(spot, cfg.RejectDegenerate)
	if err != nil {
		for i := range theta {
			theta[i] = math.NaN()
		}
		return theta, false, err
	}

	ws := newWorkspace(spot.Size)
	eval := func(th, resid []float64) {
		ws.residuals(th, spot, resid)
	}
	out, converged := levmar(eval, theta0[:], spot.Size*spot.Size, cfg)
	copy(theta[:], out)

	// The model is even in sigma, so the solver may settle on a
	// negative-width mirror solution. Report positive widths.
	theta[ThetaSX] = math.Abs(theta[ThetaSX])
	theta[ThetaSY] = math.Abs(theta[ThetaSY])
	return theta, converged, nil
}

// FitSpots sequentially fits every spot and returns an N x 6 parameter
// matrix in input order. Rows are pre-filled with NaN so a spot whose fit
// was rejected stays visibly invalid. Returns nil for an empty batch.
func FitSpots(spots []Spot) *mat.Dense {
	return FitSpotsConfig(spots, FitConfig{})
}

// FitSpotsConfig is FitSpots with an explicit fit configuration. Under
// cfg.RejectDegenerate a degenerate spot leaves its NaN row in place and
// fitting continues with the next spot.
func FitSpotsConfig(spots []Spot, cfg FitConfig) *mat.Dense {
	if len(spots) == 0 {
		return nil
	}
	theta := mat.NewDense(len(spots), ThetaLen, nil)
	for i := 0; i < len(spots); i++ {
		for j := 0; j < ThetaLen; j++ {
			theta.Set(i, j, math.NaN())
		}
	}
	for i, spot := range spots {
		row, _, err := FitSpotStatus(spot, cfg)
		if err != nil {
			continue
		}
		theta.SetRow(i, row[:])
	}
	return theta
}
