package lppl

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData reports a series with fewer valid observations
	// than the requested operation needs. Not retryable without more data.
	ErrInsufficientData = errors.New("insufficient data points")
)

// FitDivergenceError reports an optimization run that completed without
// meeting the acceptance rule. It carries the achieved mean squared error
// for diagnostics.
type FitDivergenceError struct {
	FinalError float64
	Message    string
}

func (e *FitDivergenceError) Error() string {
	return fmt.Sprintf("lppl fit diverged: %s (mse=%.6g)", e.Message, e.FinalError)
}
