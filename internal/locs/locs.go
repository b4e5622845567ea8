// Package locs assembles fitted Gaussian parameters and per-spot detection
// metadata into the final localization records consumed by downstream
// reconstruction.
package locs

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/lumen-data/subpixel/internal/gaussfit"
)

// Identification is the per-spot detection metadata carried alongside each
// spot: the integer-resolution detection center, the source frame index and
// the detection-strength scalar from upstream candidate detection.
type Identification struct {
	Frame       uint32
	X           int
	Y           int
	NetGradient float32
}

// PrecisionFunc estimates localization precision from photons, one axis
// width, background and the sensor gain mode. The formula itself is an
// external collaborator; the assembler treats it as opaque.
type PrecisionFunc func(photons, sigma, bg float64, em bool) float64

// Loc is one final localization record. The field set and types are fixed
// for downstream compatibility.
type Loc struct {
	Frame       uint32
	X           float32
	Y           float32
	Photons     float32
	SX          float32
	SY          float32
	BG          float32
	LPX         float32
	LPY         float32
	Ellipticity float32
	NetGradient float32
}

// FromFits combines an N x 6 fitted parameter matrix with its aligned
// identifications into localization records. Fitted offsets are added to the
// integer detection centers, precision is computed per axis via the supplied
// function, and the result is sorted by frame with a stable sort so
// intra-frame order is preserved. NaN parameter rows (failed fits) pass
// through as NaN-valued records.
func FromFits(ids []Identification, theta *mat.Dense, precision PrecisionFunc, em bool) ([]Loc, error) {
	n := 0
	if theta != nil {
		var c int
		n, c = theta.Dims()
		if c != gaussfit.ThetaLen {
			return nil, fmt.Errorf("locs: parameter matrix has %d columns, want %d", c, gaussfit.ThetaLen)
		}
	}
	if n != len(ids) {
		return nil, fmt.Errorf("locs: %d parameter rows for %d identifications", n, len(ids))
	}

	out := make([]Loc, n)
	for i := 0; i < n; i++ {
		row := theta.RawRowView(i)
		sx := row[gaussfit.ThetaSX]
		sy := row[gaussfit.ThetaSY]
		a := math.Max(sx, sy)
		b := math.Min(sx, sy)

		out[i] = Loc{
			Frame:       ids[i].Frame,
			X:           float32(row[gaussfit.ThetaX] + float64(ids[i].X)),
			Y:           float32(row[gaussfit.ThetaY] + float64(ids[i].Y)),
			Photons:     float32(row[gaussfit.ThetaPhotons]),
			SX:          float32(sx),
			SY:          float32(sy),
			BG:          float32(row[gaussfit.ThetaBG]),
			LPX:         float32(precision(row[gaussfit.ThetaPhotons], sx, row[gaussfit.ThetaBG], em)),
			LPY:         float32(precision(row[gaussfit.ThetaPhotons], sy, row[gaussfit.ThetaBG], em)),
			Ellipticity: float32((a - b) / a),
			NetGradient: ids[i].NetGradient,
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Frame < out[j].Frame })
	return out, nil
}

// MortensenPrecision is the standard localization precision estimate for a
// Gaussian PSF fit on a pixelated detector (Mortensen et al., Nat. Methods
// 2010), with the excess-noise factor of 2 applied in EM gain mode. Provided
// as a convenience default for PrecisionFunc.
func MortensenPrecision(photons, sigma, bg float64, em bool) float64 {
	sa2 := sigma*sigma + 1.0/12.0
	v := sa2 / photons * (16.0/9.0 + 8.0*math.Pi*sa2*bg/photons)
	if em {
		v *= 2
	}
	return math.Sqrt(v)
}
