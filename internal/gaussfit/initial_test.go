package gaussfit

import (
	"errors"
	"math"
	"testing"

	"github.com/lumen-data/subpixel/internal/testutil"
)

// singlePixelSpot has all intensity in one pixel above a flat background.
func singlePixelSpot(size, i, j int, value, bg float32) Spot {
	pix := make([]float32, size*size)
	for k := range pix {
		pix[k] = bg
	}
	pix[i*size+j] += value
	return Spot{Size: size, Pix: pix}
}

func TestInitialParams_SinglePixel(t *testing.T) {
	// All mass in pixel (row 5, col 2) of a 7x7 spot: the center of mass is
	// that pixel, expressed relative to the center pixel (3,3).
	spot := singlePixelSpot(7, 5, 2, 120, 8)
	theta := InitialParams(spot)

	testutil.AssertInDelta(t, "bg", theta[ThetaBG], 8, 1e-6)
	testutil.AssertInDelta(t, "photons", theta[ThetaPhotons], 120, 1e-3)
	testutil.AssertInDelta(t, "x", theta[ThetaX], -1, 1e-6) // col 2 - center 3
	testutil.AssertInDelta(t, "y", theta[ThetaY], 2, 1e-6)  // row 5 - center 3
}

func TestInitialParams_MomentWidths(t *testing.T) {
	// Two equal pixels split across columns 1 and 5 of the center row:
	// x spread is ±2 around the mean, y spread is zero (clamped).
	size := 7
	pix := make([]float32, size*size)
	pix[3*size+1] = 50
	pix[3*size+5] = 50
	spot := Spot{Size: size, Pix: pix}
	theta := InitialParams(spot)

	testutil.AssertInDelta(t, "sx", theta[ThetaSX], 2, 1e-6)
	testutil.AssertInDelta(t, "sy", theta[ThetaSY], minSigma, 1e-9)
	testutil.AssertInDelta(t, "x", theta[ThetaX], 0, 1e-6)
	testutil.AssertInDelta(t, "y", theta[ThetaY], 0, 1e-6)
}

func TestInitialParams_PhotonsFloored(t *testing.T) {
	// Background-removed sum below 1 floors the photon estimate.
	spot := singlePixelSpot(5, 2, 2, 0.25, 3)
	theta := InitialParams(spot)
	testutil.AssertInDelta(t, "photons", theta[ThetaPhotons], 1, 1e-9)
}

func TestInitialParams_FlatSpotPermissive(t *testing.T) {
	// A flat spot has zero intensity above background. The permissive policy
	// floors the moment denominator instead of dividing by zero.
	pix := make([]float32, 25)
	for k := range pix {
		pix[k] = 7
	}
	theta, err := initialParams(Spot{Size: 5, Pix: pix}, false)
	testutil.AssertNoError(t, err)

	testutil.AssertInDelta(t, "bg", theta[ThetaBG], 7, 1e-6)
	testutil.AssertInDelta(t, "photons", theta[ThetaPhotons], 1, 1e-9)
	for _, v := range theta {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("flat spot produced non-finite theta %v", theta)
		}
	}
	if theta[ThetaSX] <= 0 || theta[ThetaSY] <= 0 {
		t.Errorf("widths must stay positive, got sx=%v sy=%v", theta[ThetaSX], theta[ThetaSY])
	}
}

func TestInitialParams_FlatSpotStrict(t *testing.T) {
	pix := make([]float32, 25)
	_, err := initialParams(Spot{Size: 5, Pix: pix}, true)
	if !errors.Is(err, ErrDegenerateSpot) {
		t.Fatalf("err = %v, want ErrDegenerateSpot", err)
	}
}

func TestNewSpot_Validation(t *testing.T) {
	if _, err := NewSpot(4, make([]float32, 16)); err == nil {
		t.Error("even size accepted")
	}
	if _, err := NewSpot(5, make([]float32, 24)); err == nil {
		t.Error("short pixel slice accepted")
	}
	spot, err := NewSpot(5, make([]float32, 25))
	testutil.AssertNoError(t, err)
	if spot.Half() != 2 {
		t.Errorf("Half() = %d, want 2", spot.Half())
	}
}
