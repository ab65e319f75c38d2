// Package lppl implements the Sornette Log-Periodic Power Law model for
// detecting speculative bubbles in financial price series.
//
// The model posits that in a bubble regime the log price follows
//
//	ln p(t) = A + B*(tc-t)^m + C*(tc-t)^m * cos(w*ln(tc-t) + phi)
//
// where tc is the critical time at which the regime ends. A single fit over
// one window is a weak signal; the statistical weight comes from repeating
// the fit across many trailing windows and aggregating the outcomes into the
// LPPLS confidence indicator (see AnalyzeMultiWindow).
package lppl

import "math"

const (
	// deltaFloor keeps tc-t strictly positive so the power and log terms
	// stay finite at every point the optimizer probes.
	deltaFloor = 1e-10

	// AcceptMSE accepts a completed fit whose mean squared residual falls
	// below it even when the optimizer did not report convergence. The bar
	// is deliberately lenient; the multi-window aggregate carries the
	// statistical meaning, not any single fit.
	AcceptMSE = 0.1

	// BubbleMSE is the fit-quality bound of the bubble acceptance predicate
	// applied to each window during multi-window analysis.
	BubbleMSE = 0.5

	// MinObservations is the smallest series a single fit will attempt.
	MinObservations = 30
)

// Structural parameter ranges associated with genuine log-periodic bubble
// signatures. Shared by the fit bounds, the single-window diagnosis and the
// multi-window bubble predicate.
const (
	tcMinDays = 5
	tcMaxDays = 504 // ~2 trading years
	mMin      = 0.1
	mMax      = 0.9
	omegaMin  = 2.0
	omegaMax  = 25.0
)

// Parameters is one fitted LPPL parameter set together with the mean squared
// residual the fit achieved. Values are never mutated after Fit returns them;
// callers thread the struct into Diagnose, Forecast and the cache layer.
type Parameters struct {
	Tc            float64 `json:"tc"`
	A             float64 `json:"A"`
	B             float64 `json:"B"`
	C             float64 `json:"C"`
	M             float64 `json:"m"`
	Omega         float64 `json:"omega"`
	Phi           float64 `json:"phi"`
	ResidualError float64 `json:"residual_error"`
}

// Evaluate returns the model log-price at time index t for the given
// parameter set.
func Evaluate(t, tc, a, b, c, m, omega, phi float64) float64 {
	dt := tc - t
	if dt < deltaFloor {
		dt = deltaFloor
	}
	pm := math.Pow(dt, m)
	return a + b*pm + c*pm*math.Cos(omega*math.Log(dt)+phi)
}

// Evaluate returns the model log-price at time index t.
func (p Parameters) Evaluate(t float64) float64 {
	return Evaluate(t, p.Tc, p.A, p.B, p.C, p.M, p.Omega, p.Phi)
}

// rounded returns a copy with display precision matching the diagnosis
// output: tc to 2 decimals, the remaining parameters to 4.
func (p Parameters) rounded() Parameters {
	return Parameters{
		Tc:            roundTo(p.Tc, 2),
		A:             roundTo(p.A, 4),
		B:             roundTo(p.B, 4),
		C:             roundTo(p.C, 4),
		M:             roundTo(p.M, 4),
		Omega:         roundTo(p.Omega, 4),
		Phi:           roundTo(p.Phi, 4),
		ResidualError: roundTo(p.ResidualError, 4),
	}
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
