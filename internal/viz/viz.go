// Package viz renders a voxel map to a standalone HTML page using
// go-echarts: a top-down scatter of the map's points, colored through the
// map's render options.
package viz

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/meridian-robotics/voxelslam/internal/voxelmap"
)

// maxRenderPoints bounds the chart payload; denser maps are downsampled by
// stride.
const maxRenderPoints = 50000

// colormapRamps maps each voxelmap colormap to an echarts color ramp.
var colormapRamps = map[voxelmap.Colormap][]string{
	voxelmap.ColormapGrayscale: {"#000000", "#555555", "#aaaaaa", "#ffffff"},
	voxelmap.ColormapJet:       {"#00007f", "#0000ff", "#00ffff", "#7fff7f", "#ffff00", "#ff0000", "#7f0000"},
	voxelmap.ColormapHot:       {"#000000", "#ff0000", "#ffff00", "#ffffff"},
}

// RenderHTML writes a chart of the map to w. With ShowMeanOnly set, one
// point per voxel (its centroid) is plotted instead of every stored point.
func RenderHTML(w io.Writer, m *voxelmap.DualVoxelMap, title string) error {
	ro := m.RenderOpts

	var pts []voxelmap.Point
	if ro.ShowMeanOnly {
		m.VisitAllVoxels(func(_ voxelmap.Index3D, c *voxelmap.VoxelCell) {
			if mean, err := c.Centroid(); err == nil {
				pts = append(pts, mean)
			}
		})
	} else {
		m.VisitAllPoints(func(p voxelmap.Point) {
			pts = append(pts, p)
		})
	}

	stride := 1
	if len(pts) > maxRenderPoints {
		stride = int(math.Ceil(float64(len(pts)) / float64(maxRenderPoints)))
	}

	axisValue := func(p voxelmap.Point) float64 {
		switch ro.RecolorAxis {
		case 0:
			return float64(p.X)
		case 1:
			return float64(p.Y)
		default:
			return float64(p.Z)
		}
	}

	data := make([]opts.ScatterData, 0, len(pts)/stride+1)
	maxAbs := 0.0
	minC, maxC := math.Inf(1), math.Inf(-1)
	for i := 0; i < len(pts); i += stride {
		p := pts[i]
		c := axisValue(p)
		if c < minC {
			minC = c
		}
		if c > maxC {
			maxC = c
		}
		if v := math.Abs(float64(p.X)); v > maxAbs {
			maxAbs = v
		}
		if v := math.Abs(float64(p.Y)); v > maxAbs {
			maxAbs = v
		}
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, c}})
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	symbol := 3
	if ro.PointSize > 0 {
		symbol = int(2 * ro.PointSize)
	}

	scatter := charts.NewScatter()
	global := []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title, Theme: "dark", Width: "900px", Height: "900px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%s rendered=%d stride=%d", m, len(data), stride),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	}

	if ramp, ok := colormapRamps[ro.Colormap]; ok && len(data) > 0 {
		global = append(global, charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minC),
			Max:        float32(maxC),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: ramp},
		}))
	}
	scatter.SetGlobalOptions(global...)

	seriesOpts := []charts.SeriesOpts{charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: symbol})}
	if _, hasRamp := colormapRamps[ro.Colormap]; !hasRamp {
		seriesOpts = append(seriesOpts, charts.WithItemStyleOpts(opts.ItemStyle{Color: rgbHex(ro.Color)}))
	}
	scatter.AddSeries("map", data, seriesOpts...)

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render map chart: %w", err)
	}
	return nil
}

func rgbHex(c [3]float32) string {
	clamp := func(v float32) int {
		x := int(v * 255)
		if x < 0 {
			return 0
		}
		if x > 255 {
			return 255
		}
		return x
	}
	return fmt.Sprintf("#%02x%02x%02x", clamp(c[0]), clamp(c[1]), clamp(c[2]))
}
