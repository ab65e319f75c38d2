package lppl

import (
	"math"
	"time"

	"github.com/yeseoLee/Quant/pkg/common"
)

// DefaultForecastHorizon is the number of future days a forecast extends
// when the caller has no preference.
const DefaultForecastHorizon = 60

// tcForecastMargin keeps forecasts strictly clear of the critical time,
// where the model is singular.
const tcForecastMargin = 0.1

// CurvePoint is one point of a fitted or forecast price curve, in price
// space (the model's log output exponentiated).
type CurvePoint struct {
	T     int       `json:"t"`
	Time  time.Time `json:"ts"`
	Price float64   `json:"price"`
}

// FittedCurve reconstructs the model price at every historical observation
// of the series.
func FittedCurve(series common.PriceSeries, fitted Parameters) []CurvePoint {
	out := make([]CurvePoint, len(series))
	for i, p := range series {
		out[i] = CurvePoint{
			T:     i,
			Time:  p.Time,
			Price: math.Exp(fitted.Evaluate(float64(i))),
		}
	}
	return out
}

// Forecast extrapolates the fitted model forward from the end of the series
// by up to horizonDays, stopping strictly before the critical time. A
// horizon lying entirely past tc yields an empty slice, not an error.
func Forecast(series common.PriceSeries, fitted Parameters, horizonDays int) []CurvePoint {
	if horizonDays <= 0 {
		horizonDays = DefaultForecastHorizon
	}

	n := len(series)
	endTime, ok := series.EndTime()
	if !ok {
		return nil
	}

	out := make([]CurvePoint, 0, horizonDays)
	for t := n; t < n+horizonDays; t++ {
		if float64(t) >= fitted.Tc-tcForecastMargin {
			break
		}
		out = append(out, CurvePoint{
			T:     t,
			Time:  endTime.AddDate(0, 0, t-n+1),
			Price: math.Exp(fitted.Evaluate(float64(t))),
		})
	}
	return out
}
