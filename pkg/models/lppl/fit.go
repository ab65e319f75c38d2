package lppl

import (
	"fmt"
	"math"

	"github.com/yeseoLee/Quant/pkg/common"
)

const (
	// optimizerSeed fixes the search trajectory so two fits over identical
	// input produce identical parameters. The cache layer depends on this.
	optimizerSeed = 42

	// DefaultMaxIterations caps the global search for a standalone fit.
	DefaultMaxIterations = 2000
)

// Fit fits the LPPL model to a price series and returns the fitted
// parameters. The search runs differential evolution over data-derived
// parameter bounds, polishes the winner locally and accepts the result when
// the optimizer converged or the mean squared residual fell below AcceptMSE.
//
// Fails with ErrInsufficientData for fewer than MinObservations valid points
// and with *FitDivergenceError when the completed search misses the
// acceptance rule.
func Fit(series common.PriceSeries, maxIterations int) (Parameters, error) {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	t, logPrices := logObservations(series)
	if len(t) < MinObservations {
		return Parameters{}, fmt.Errorf("%w: need %d valid observations, have %d",
			ErrInsufficientData, MinObservations, len(t))
	}

	bounds := deriveBounds(t, logPrices)
	obj := newObjective(t, logPrices)

	opt := newDEOptimizer(bounds, optimizerSeed)
	opt.target = AcceptMSE
	res := opt.minimize(obj, maxIterations)
	if !res.converged && res.score >= AcceptMSE {
		return Parameters{}, &FitDivergenceError{
			FinalError: res.score,
			Message:    fmt.Sprintf("no convergence after %d generations", res.generations),
		}
	}

	return Parameters{
		Tc:            res.x[0],
		A:             res.x[1],
		B:             res.x[2],
		C:             res.x[3],
		M:             res.x[4],
		Omega:         res.x[5],
		Phi:           res.x[6],
		ResidualError: res.score,
	}, nil
}

// logObservations converts the series to log space over a synthetic integer
// time index. Entries with non-positive or non-finite closes are dropped,
// keeping their neighbours' original indices so the time axis stays aligned
// with the caller's series.
func logObservations(series common.PriceSeries) (t []float64, logPrices []float64) {
	closes := series.Closes()
	t = make([]float64, 0, len(closes))
	logPrices = make([]float64, 0, len(closes))
	for i, p := range closes {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			continue
		}
		t = append(t, float64(i))
		logPrices = append(logPrices, math.Log(p))
	}
	return t, logPrices
}

// deriveBounds builds the 7-parameter search box from the window itself, so
// the same procedure holds for windows from ~125 to 750+ observations
// without retuning.
func deriveBounds(t, logPrices []float64) []bound {
	tLast := t[len(t)-1]
	n := float64(len(t))

	lo, hi := logPrices[0], logPrices[0]
	for _, v := range logPrices[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo

	return []bound{
		{tLast + tcMinDays, tLast + math.Min(tcMaxDays, n)}, // tc
		{lo - span, hi + span},                              // A
		{-2, 0},                                             // B
		{-1, 1},                                             // C
		{mMin, mMax},                                        // m
		{omegaMin, omegaMax},                                // omega
		{-math.Pi, math.Pi},                                 // phi
	}
}

// newObjective returns the mean squared residual between observed log prices
// and the model. Non-finite evaluations score badScore so the optimizer
// rejects the candidate and keeps going; nothing numeric ever escapes.
func newObjective(t, logPrices []float64) objectiveFunc {
	n := float64(len(t))
	return func(x []float64) float64 {
		var sum float64
		for i, ti := range t {
			pred := Evaluate(ti, x[0], x[1], x[2], x[3], x[4], x[5], x[6])
			if math.IsNaN(pred) || math.IsInf(pred, 0) {
				return badScore
			}
			r := logPrices[i] - pred
			sum += r * r
		}
		mse := sum / n
		if math.IsNaN(mse) || math.IsInf(mse, 0) {
			return badScore
		}
		return mse
	}
}
