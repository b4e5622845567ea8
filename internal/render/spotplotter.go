// Package render writes diagnostic heatmaps of a spot, its fitted Gaussian
// model and the residual, for eyeballing individual fits during tuning.
package render

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/lumen-data/subpixel/internal/gaussfit"
)

// pixelGrid adapts a row-major pixel slice to plotter.GridXYZ. Row 0 is
// drawn at the bottom, matching array orientation flipped the way imshow
// users expect.
type pixelGrid struct {
	size int
	pix  []float64
}

func (g pixelGrid) Dims() (c, r int)   { return g.size, g.size }
func (g pixelGrid) X(c int) float64    { return float64(c) }
func (g pixelGrid) Y(r int) float64    { return float64(r) }
func (g pixelGrid) Z(c, r int) float64 { return g.pix[r*g.size+c] }

// SpotPlotter writes fit diagnostic PNGs into one output directory.
type SpotPlotter struct {
	outputDir string
}

// NewSpotPlotter creates the output directory if needed.
func NewSpotPlotter(outputDir string) (*SpotPlotter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &SpotPlotter{outputDir: outputDir}, nil
}

// PlotFit writes three heatmaps for one spot and its fitted parameters:
// <name>_spot.png, <name>_model.png and <name>_residual.png.
func (sp *SpotPlotter) PlotFit(name string, spot gaussfit.Spot, theta [gaussfit.ThetaLen]float64) error {
	size := spot.Size
	raw := make([]float64, size*size)
	for k, v := range spot.Pix {
		raw[k] = float64(v)
	}
	model := gaussfit.EvalModel(theta, size)
	resid := make([]float64, size*size)
	for k := range resid {
		resid[k] = raw[k] - model[k]
	}

	panels := []struct {
		suffix string
		title  string
		pix    []float64
	}{
		{"spot", "spot", raw},
		{"model", "fitted model", model},
		{"residual", "residual", resid},
	}
	for _, panel := range panels {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s %s", name, panel.title)
		p.X.Label.Text = "x (px)"
		p.Y.Label.Text = "y (px)"

		hm := plotter.NewHeatMap(pixelGrid{size: size, pix: panel.pix}, palette.Heat(32, 1))
		p.Add(hm)

		file := filepath.Join(sp.outputDir, fmt.Sprintf("%s_%s.png", name, panel.suffix))
		if err := p.Save(4*vg.Inch, 4*vg.Inch, file); err != nil {
			return fmt.Errorf("failed to save %s: %w", file, err)
		}
	}
	return nil
}
