package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/clocktrack/internal/pipeline"
)

// EchartsAssetsHost is where rendered pages load the echarts javascript from.
var EchartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderHTML writes a page with one interactive line chart per tracked
// quantity.
func RenderHTML(w io.Writer, title string, estimates []pipeline.Estimate) error {
	if len(estimates) == 0 {
		return ErrNoEstimates
	}

	x := make([]string, len(estimates))
	for i, e := range estimates {
		x[i] = strconv.Itoa(e.Index)
	}

	page := components.NewPage()
	page.SetPageTitle(title).SetAssetsHost(EchartsAssetsHost)

	for _, s := range panels {
		data := make([]opts.LineData, len(estimates))
		for i, e := range estimates {
			d := opts.LineData{Value: s.value(e)}
			if !e.Accepted {
				d.Symbol = "diamond"
				d.SymbolSize = 8
			}
			data[i] = d
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: EchartsAssetsHost}),
			charts.WithTitleOpts(opts.Title{Title: s.title, Subtitle: fmt.Sprintf("%s, %d records", s.unit, len(estimates))}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
			charts.WithYAxisOpts(opts.YAxis{Name: s.unit, Scale: opts.Bool(true)}),
		)
		line.SetXAxis(x).AddSeries(s.title, data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
		page.AddCharts(line)
	}

	return page.Render(w)
}
