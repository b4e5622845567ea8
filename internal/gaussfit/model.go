package gaussfit

import "math"

// invSqrt2Pi is 1/sqrt(2*pi), the Gaussian normalization constant.
const invSqrt2Pi = 0.3989422804014327

// makeGrid returns the integer pixel coordinates [-h, ..., h] for a spot of
// the given odd side length, expressed relative to the center pixel.
func makeGrid(size int) []float64 {
	half := (size - 1) / 2
	grid := make([]float64, size)
	for k := range grid {
		grid[k] = float64(k - half)
	}
	return grid
}

// gaussianProfile fills out[k] with a normalized 1D Gaussian density
// evaluated at grid[k] for the given mean and standard deviation.
func gaussianProfile(mu, sigma float64, grid, out []float64) {
	norm := invSqrt2Pi / sigma
	for k, g := range grid {
		d := (g - mu) / sigma
		out[k] = norm * math.Exp(-0.5*d*d)
	}
}

// workspace holds the per-fit scratch buffers for model and residual
// evaluation. One workspace serves one spot size; the solver re-evaluates
// the model hundreds of times per fit, so nothing here is reallocated.
type workspace struct {
	size   int
	grid   []float64
	modelX []float64
	modelY []float64
	model  []float64 // size*size, row-major
}

func newWorkspace(size int) *workspace {
	return &workspace{
		size:   size,
		grid:   makeGrid(size),
		modelX: make([]float64, size),
		modelY: make([]float64, size),
		model:  make([]float64, size*size),
	}
}

// computeModel evaluates the separable 2D Gaussian for theta into ws.model:
// model[i,j] = photons * profileY[i] * profileX[j] + bg.
func (ws *workspace) computeModel(theta []float64) {
	gaussianProfile(theta[ThetaX], theta[ThetaSX], ws.grid, ws.modelX)
	gaussianProfile(theta[ThetaY], theta[ThetaSY], ws.grid, ws.modelY)
	n := theta[ThetaPhotons]
	bg := theta[ThetaBG]
	for i := 0; i < ws.size; i++ {
		row := ws.model[i*ws.size : (i+1)*ws.size]
		py := n * ws.modelY[i]
		for j := 0; j < ws.size; j++ {
			row[j] = py*ws.modelX[j] + bg
		}
	}
}

// residuals fills out with spot - model in row-major order, matching the
// spot's own storage order. len(out) must be size*size.
func (ws *workspace) residuals(theta []float64, spot Spot, out []float64) {
	ws.computeModel(theta)
	for k := range out {
		out[k] = float64(spot.Pix[k]) - ws.model[k]
	}
}

// EvalModel evaluates the separable Gaussian model for a spot of the given
// odd side length and returns it as a row-major slice. Intended for
// diagnostics and synthetic-data generation; the solver's hot path uses the
// buffer-reusing workspace instead.
func EvalModel(theta [ThetaLen]float64, size int) []float64 {
	ws := newWorkspace(size)
	ws.computeModel(theta[:])
	out := make([]float64, size*size)
	copy(out, ws.model)
	return out
}
