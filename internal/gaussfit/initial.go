package gaussfit

import (
	"errors"
	"math"
)

// ErrDegenerateSpot marks a spot whose background-removed total intensity is
// zero, leaving the moment-based width estimate ill-defined.
var ErrDegenerateSpot = errors.New("gaussfit: degenerate spot: no intensity above background")

// InitialParams computes the starting parameter vector for a spot from its
// image moments: minimum pixel as background, background-removed center of
// mass as position, background-removed total as photons (floored at 1), and
// second moments as widths. Positions are returned relative to the spot
// center.
func InitialParams(spot Spot) [ThetaLen]float64 {
	theta, _ := initialParams(spot, false)
	return theta
}

func initialParams(spot Spot, strict bool) ([ThetaLen]float64, error) {
	var theta [ThetaLen]float64
	size := spot.Size

	bg := spot.Pix[0]
	for _, v := range spot.Pix[1:] {
		if v < bg {
			bg = v
		}
	}
	theta[ThetaBG] = float64(bg)

	// Background-removed sum and center of mass over the pixel grid.
	// Row index i is the y axis, column index j the x axis.
	var sum, mx, my float64
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			v := float64(spot.At(i, j) - bg)
			sum += v
			my += v * float64(i)
			mx += v * float64(j)
		}
	}
	if sum <= 0 && strict {
		return theta, ErrDegenerateSpot
	}

	theta[ThetaPhotons] = math.Max(1.0, sum)

	// The moment denominator keeps the true sum except in the degenerate
	// case, where it is floored so a flat spot degrades to centered zero
	// widths instead of dividing by zero.
	denom := sum
	if denom <= 0 {
		denom = 1
	}
	x0 := mx / denom
	y0 := my / denom
	theta[ThetaX] = x0
	theta[ThetaY] = y0

	var devX, devY float64
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			v := float64(spot.At(i, j) - bg)
			dy := float64(i) - y0
			dx := float64(j) - x0
			devY += v * dy * dy
			devX += v * dx * dx
		}
	}
	theta[ThetaSY] = math.Sqrt(devY / denom)
	theta[ThetaSX] = math.Sqrt(devX / denom)

	// Keep the solver clear of the sigma=0 singularity in the profile.
	if theta[ThetaSX] < minSigma {
		theta[ThetaSX] = minSigma
	}
	if theta[ThetaSY] < minSigma {
		theta[ThetaSY] = minSigma
	}

	// Express position relative to the spot center pixel.
	half := float64(spot.Half())
	theta[ThetaX] -= half
	theta[ThetaY] -= half
	return theta, nil
}
