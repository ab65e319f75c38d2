package common

import (
	"errors"
	"fmt"
	"time"

	"github.com/govalues/decimal"
)

var (
	ErrEmptySeries    = errors.New("empty price series")
	ErrUnorderedTimes = errors.New("timestamps are not strictly increasing")
)

// PricePoint is a single daily observation of an instrument's closing price.
type PricePoint struct {
	Time  time.Time       `json:"ts"`
	Close decimal.Decimal `json:"close"`
}

// PriceSeries is a run of daily closes ordered by strictly increasing time.
// The series is read-only for every consumer in this module.
type PriceSeries []PricePoint

// Validate checks the series ordering invariant and that every close is
// positive, which the log transform downstream requires.
func (s PriceSeries) Validate() error {
	if len(s) == 0 {
		return ErrEmptySeries
	}
	for i, p := range s {
		if i > 0 && !p.Time.After(s[i-1].Time) {
			return fmt.Errorf("%w: index %d", ErrUnorderedTimes, i)
		}
		if p.Close.IsNeg() || p.Close.IsZero() {
			return fmt.Errorf("non-positive close %s at index %d", p.Close, i)
		}
	}
	return nil
}

// Tail returns the trailing n points, or the whole series when n exceeds its
// length. The result aliases the receiver's backing array.
func (s PriceSeries) Tail(n int) PriceSeries {
	if n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

// Closes converts the series to float64 closing prices in order. Conversion
// failures surface as NaN-free zero values and are filtered by the fitter.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		f, _ := p.Close.Float64()
		out[i] = f
	}
	return out
}

// EndTime returns the timestamp of the last observation.
func (s PriceSeries) EndTime() (time.Time, bool) {
	if len(s) == 0 {
		return time.Time{}, false
	}
	return s[len(s)-1].Time, true
}
