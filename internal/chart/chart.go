package chart

import (
	"bytes"
	"errors"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"gold-rate-bot/internal/storage"
)

// ErrNotEnoughData indicates fewer than two usable points.
var ErrNotEnoughData = errors.New("chart: not enough data points")

// RenderGoldHistory draws stored gold prices (spot ounce and the 21K retail
// unit) as a PNG time series. Samples may arrive in any order; cycles with
// a missing gold quote are skipped.
func RenderGoldHistory(samples []storage.ReportSample) ([]byte, error) {
	type point struct {
		ts     time.Time
		ounce  float64
		unit21 float64
	}

	points := make([]point, 0, len(samples))
	for _, sample := range samples {
		if sample.GoldOunceUSD == nil || sample.Unit21KUSD == nil {
			continue
		}
		points = append(points, point{
			ts:     sample.CycleTS,
			ounce:  sample.GoldOunceUSD.InexactFloat64(),
			unit21: sample.Unit21KUSD.InexactFloat64(),
		})
	}
	if len(points) < 2 {
		return nil, ErrNotEnoughData
	}

	sort.Slice(points, func(i, j int) bool { return points[i].ts.Before(points[j].ts) })

	x := make([]time.Time, len(points))
	ounce := make([]float64, len(points))
	unit21 := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.ts
		ounce[i] = p.ounce
		unit21[i] = p.unit21
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Gold ounce (USD)",
			ValueFormatter: usdFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "21K 5g unit (USD)",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Gold ounce",
				XValues: x,
				YValues: ounce,
			},
			chart.TimeSeries{
				Name:    "21K 5g unit",
				XValues: x,
				YValues: unit21,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
