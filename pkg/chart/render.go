// Package chart renders bubble-analysis output as PNG line charts: observed
// closes, the fitted LPPL curve over history and the forward extrapolation
// toward the critical time.
package chart

import (
	"errors"

	charts "github.com/vicanso/go-charts/v2"

	"github.com/yeseoLee/Quant/pkg/common"
	"github.com/yeseoLee/Quant/pkg/models/lppl"
)

// Render draws the series, its fitted curve and the forecast on one shared
// time axis and returns PNG bytes. The forecast may be empty.
func Render(title string, series common.PriceSeries, fitted []lppl.CurvePoint, forecast []lppl.CurvePoint) ([]byte, error) {
	if len(series) == 0 {
		return nil, errors.New("no data")
	}
	if len(fitted) != len(series) {
		return nil, errors.New("fitted curve does not cover the series")
	}

	null := charts.GetNullValue()
	total := len(series) + len(forecast)

	labels := make([]string, total)
	closes := make([]float64, total)
	model := make([]float64, total)
	future := make([]float64, total)

	closeVals := series.Closes()
	yMin, yMax := closeVals[0], closeVals[0]
	for i := range series {
		labels[i] = series[i].Time.Format("2006-01-02")
		closes[i] = closeVals[i]
		model[i] = fitted[i].Price
		future[i] = null
		if closeVals[i] < yMin {
			yMin = closeVals[i]
		}
		if closeVals[i] > yMax {
			yMax = closeVals[i]
		}
	}
	for i, p := range forecast {
		j := len(series) + i
		labels[j] = p.Time.Format("2006-01-02")
		closes[j] = null
		model[j] = null
		future[j] = p.Price
		if p.Price < yMin {
			yMin = p.Price
		}
		if p.Price > yMax {
			yMax = p.Price
		}
	}

	pad := (yMax - yMin) * 0.05
	if pad < yMax*0.002 {
		pad = yMax * 0.002
	}
	yMin -= pad
	if yMin < 0 {
		yMin = 0
	}
	yMax += pad

	painter, err := charts.LineRender([][]float64{closes, model, future},
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, BoundaryGap: charts.FalseFlag(), SplitNumber: 10}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.LegendOptionFunc(charts.LegendOption{Data: []string{"close", "lppl fit", "forecast"}}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, err
	}
	return painter.Bytes()
}
