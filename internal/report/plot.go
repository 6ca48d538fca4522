package report

import (
	"errors"
	"fmt"
	"image/color"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/clocktrack/internal/pipeline"
)

// ErrNoEstimates is returned when there is nothing to chart.
var ErrNoEstimates = errors.New("no estimates to chart")

var (
	acceptedColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	rejectedColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// series holds one panel of the chart: a label and a value per estimate.
type series struct {
	title string
	unit  string
	value func(pipeline.Estimate) float64
}

var panels = []series{
	{"Clock offset", "s", func(e pipeline.Estimate) float64 { return e.Offset }},
	{"Skew", "ppm", func(e pipeline.Estimate) float64 { return (e.Skew - 1) * 1e6 }},
	{"Drift", "1/s", func(e pipeline.Estimate) float64 { return e.Drift }},
}

// SavePNG writes offset, skew and drift against record index as three stacked
// line plots. Rejected records are marked on each panel.
func SavePNG(path string, estimates []pipeline.Estimate) error {
	if len(estimates) == 0 {
		return ErrNoEstimates
	}

	plots := make([][]*plot.Plot, len(panels))
	for i, s := range panels {
		p, err := newPanel(s, estimates)
		if err != nil {
			return err
		}
		plots[i] = []*plot.Plot{p}
	}

	img := vgimg.New(14*vg.Inch, 12*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(panels),
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: 4 * vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func newPanel(s series, estimates []pipeline.Estimate) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = s.title
	p.X.Label.Text = "record"
	p.Y.Label.Text = s.unit

	pts := make(plotter.XYs, 0, len(estimates))
	var rejected plotter.XYs
	for _, e := range estimates {
		xy := plotter.XY{X: float64(e.Index), Y: s.value(e)}
		pts = append(pts, xy)
		if !e.Accepted {
			rejected = append(rejected, xy)
		}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("%s line: %w", s.title, err)
	}
	line.Width = vg.Points(1)
	line.Color = acceptedColor
	p.Add(line)
	p.Legend.Add("estimate", line)

	if len(rejected) > 0 {
		sc, err := plotter.NewScatter(rejected)
		if err != nil {
			return nil, fmt.Errorf("%s rejected: %w", s.title, err)
		}
		sc.GlyphStyle.Color = rejectedColor
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add("rejected", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}
