// Package synthetic generates deterministic daily price series for tests,
// demos and calibration. All generators take the caller's *rand.Rand, so a
// fixed seed reproduces the exact same series.
package synthetic

import (
	"math"
	"math/rand"
	"time"

	"github.com/govalues/decimal"

	"github.com/yeseoLee/Quant/pkg/common"
	"github.com/yeseoLee/Quant/pkg/models/lppl"
)

// GBM parameterizes a geometric Brownian motion daily close generator.
type GBM struct {
	StartPrice float64
	Mu         float64 // annualized drift
	Sigma      float64 // annualized volatility
}

// Series generates n daily closes starting at start.
func (g GBM) Series(rng *rand.Rand, start time.Time, n int) common.PriceSeries {
	const dt = 1.0 / 252
	drift := (g.Mu - 0.5*g.Sigma*g.Sigma) * dt
	vol := g.Sigma * math.Sqrt(dt)

	out := make(common.PriceSeries, n)
	price := g.StartPrice
	for i := 0; i < n; i++ {
		out[i] = common.PricePoint{
			Time:  start.AddDate(0, 0, i),
			Close: mustDecimal(price),
		}
		price *= math.Exp(drift + vol*rng.NormFloat64())
	}
	return out
}

// Bubble parameterizes a series whose log price follows the LPPL equation
// exactly, plus optional Gaussian noise. TcOffset places the critical time
// that many days past the end of the generated series.
type Bubble struct {
	A        float64
	B        float64
	C        float64
	M        float64
	Omega    float64
	Phi      float64
	TcOffset float64
	Noise    float64 // log-space noise standard deviation
}

// Series generates n daily closes carrying the configured log-periodic
// signature.
func (b Bubble) Series(rng *rand.Rand, start time.Time, n int) common.PriceSeries {
	tc := float64(n-1) + b.TcOffset

	out := make(common.PriceSeries, n)
	for i := 0; i < n; i++ {
		logP := lppl.Evaluate(float64(i), tc, b.A, b.B, b.C, b.M, b.Omega, b.Phi)
		if b.Noise > 0 {
			logP += b.Noise * rng.NormFloat64()
		}
		out[i] = common.PricePoint{
			Time:  start.AddDate(0, 0, i),
			Close: mustDecimal(math.Exp(logP)),
		}
	}
	return out
}

// Linear generates a strictly increasing straight-line price series, a
// degenerate input with no log-periodic structure at all.
func Linear(start time.Time, startPrice, dailyIncrement float64, n int) common.PriceSeries {
	out := make(common.PriceSeries, n)
	for i := 0; i < n; i++ {
		out[i] = common.PricePoint{
			Time:  start.AddDate(0, 0, i),
			Close: mustDecimal(startPrice + dailyIncrement*float64(i)),
		}
	}
	return out
}

func mustDecimal(v float64) decimal.Decimal {
	d, err := decimal.NewFromFloat64(v)
	if err != nil {
		panic(err)
	}
	return d
}
