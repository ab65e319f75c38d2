package lppl

import (
	"math"
	"time"
)

// State is the discrete risk classification of a bubble signal.
type State string

const (
	StateNormal   State = "NORMAL"
	StateWatch    State = "WATCH"
	StateWarning  State = "WARNING"
	StateCritical State = "CRITICAL"
)

// Indicators are the four structural bubble conditions evaluated on one
// fitted parameter set.
type Indicators struct {
	TcInRange  bool `json:"tc_in_range"`
	BNegative  bool `json:"B_negative"`
	MValid     bool `json:"m_valid"`
	OmegaValid bool `json:"omega_valid"`
}

// FitQuality summarizes how well the window fit its data.
type FitQuality struct {
	ResidualError float64 `json:"residual_error"`
	Observations  int     `json:"observations"`
}

// Diagnosis is the single-window bubble assessment derived from one fit.
type Diagnosis struct {
	State          State      `json:"state"`
	Confidence     float64    `json:"confidence"`
	Message        string     `json:"message"`
	DaysToCritical float64    `json:"days_to_critical"`
	CriticalDate   *time.Time `json:"critical_date,omitempty"`
	Indicators     Indicators `json:"indicators"`
	Parameters     Parameters `json:"parameters"`
	FitQuality     FitQuality `json:"fit_quality"`
}

// Diagnose evaluates the structural bubble conditions on a fitted parameter
// set. currentIndex is the time index of the most recent observation of the
// fitted window; endDate, when non-zero, anchors the projected critical date
// in calendar time.
func Diagnose(fitted Parameters, observations, currentIndex int, endDate time.Time) Diagnosis {
	daysToCritical := fitted.Tc - float64(currentIndex)

	ind := Indicators{
		TcInRange:  daysToCritical >= tcMinDays && daysToCritical <= tcMaxDays,
		BNegative:  fitted.B < 0,
		MValid:     fitted.M >= mMin && fitted.M <= mMax,
		OmegaValid: fitted.Omega >= omegaMin && fitted.Omega <= omegaMax,
	}

	hits := 0
	for _, ok := range [...]bool{ind.TcInRange, ind.BNegative, ind.MValid, ind.OmegaValid} {
		if ok {
			hits++
		}
	}
	confidence := float64(hits) / 4 * 100

	var state State
	var message string
	switch {
	case confidence >= 75 && daysToCritical < 60:
		state = StateCritical
		message = "strong bubble signal, correction may be imminent"
	case confidence >= 75:
		state = StateWarning
		message = "bubble warning, caution advised"
	case confidence >= 50:
		state = StateWatch
		message = "possible bubble forming, monitoring recommended"
	default:
		state = StateNormal
		message = "within normal range"
	}

	var criticalDate *time.Time
	if !endDate.IsZero() && daysToCritical > 0 {
		d := endDate.AddDate(0, 0, int(math.Round(daysToCritical)))
		criticalDate = &d
	}

	return Diagnosis{
		State:          state,
		Confidence:     roundTo(confidence, 2),
		Message:        message,
		DaysToCritical: roundTo(daysToCritical, 1),
		CriticalDate:   criticalDate,
		Indicators:     ind,
		Parameters:     fitted.rounded(),
		FitQuality: FitQuality{
			ResidualError: roundTo(fitted.ResidualError, 4),
			Observations:  observations,
		},
	}
}
