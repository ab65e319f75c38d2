package lppl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/yeseoLee/Quant/pkg/common"
)

// Multi-window defaults, matching the analysis service this core was built
// for: windows from half a trading year to three, stepped finely.
const (
	DefaultMinWindow          = 125
	DefaultMaxWindow          = 750
	DefaultWindowStep         = 5
	DefaultWindowIterations   = 1500
	confidenceCriticalPercent = 60
	confidenceWarningPercent  = 40
	confidenceWatchPercent    = 20
)

// MultiWindowConfig parameterizes one multi-window analysis run. The zero
// value selects the package defaults.
type MultiWindowConfig struct {
	MinWindow     int
	MaxWindow     int
	Step          int
	MaxIterations int
	// Workers bounds the fit worker pool; 0 means GOMAXPROCS.
	Workers int
}

func (c MultiWindowConfig) withDefaults() MultiWindowConfig {
	if c.MinWindow <= 0 {
		c.MinWindow = DefaultMinWindow
	}
	if c.MaxWindow <= 0 {
		c.MaxWindow = DefaultMaxWindow
	}
	if c.Step <= 0 {
		c.Step = DefaultWindowStep
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultWindowIterations
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// WindowResult records the outcome of one window's independent fit, whether
// or not it succeeded.
type WindowResult struct {
	WindowSize   int         `json:"window_size"`
	Success      bool        `json:"success"`
	IsBubble     bool        `json:"is_bubble"`
	Params       *Parameters `json:"params,omitempty"`
	ErrorMessage string      `json:"error,omitempty"`
}

// Statistics aggregates fit outcomes across all attempted windows.
type Statistics struct {
	TotalWindows   int     `json:"total_windows"`
	SuccessfulFits int     `json:"successful_fits"`
	BubbleWindows  int     `json:"bubble_windows"`
	SuccessRate    float64 `json:"success_rate"`
}

// WindowRange describes the window enumeration actually analyzed, after
// clamping to the series length.
type WindowRange struct {
	Min  int `json:"min"`
	Max  int `json:"max"`
	Step int `json:"step"`
}

// MultiWindowResult is the LPPLS confidence indicator together with the
// per-window evidence it was reduced from. DetailedResults is ordered by
// ascending window size.
type MultiWindowResult struct {
	ConfidenceIndicator float64        `json:"confidence_indicator"`
	State               State          `json:"state"`
	Message             string         `json:"message"`
	Statistics          Statistics     `json:"statistics"`
	WindowRange         WindowRange    `json:"window_range"`
	DetailedResults     []WindowResult `json:"detailed_results"`
}

// AnalyzeMultiWindow fits the model independently on trailing windows of
// increasing size and reduces the outcomes into the LPPLS confidence
// indicator: the share of successful fits whose parameters pass the bubble
// acceptance predicate.
//
// Window fits run concurrently on a bounded worker pool; a failure in one
// window is recorded in its WindowResult and never aborts the batch. Fails
// with ErrInsufficientData when the series is shorter than the minimum
// window.
func AnalyzeMultiWindow(ctx context.Context, series common.PriceSeries, cfg MultiWindowConfig) (MultiWindowResult, error) {
	cfg = cfg.withDefaults()

	if len(series) < cfg.MinWindow {
		return MultiWindowResult{}, fmt.Errorf("%w: need %d observations for the minimum window, have %d",
			ErrInsufficientData, cfg.MinWindow, len(series))
	}

	maxWindow := cfg.MaxWindow
	if maxWindow > len(series) {
		maxWindow = len(series)
	}

	var sizes []int
	for w := cfg.MinWindow; w <= maxWindow; w += cfg.Step {
		sizes = append(sizes, w)
	}

	results := make([]WindowResult, len(sizes))
	jobs := make(chan int)

	workers := cfg.Workers
	if workers > len(sizes) {
		workers = len(sizes)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = fitWindow(series, sizes[i], cfg.MaxIterations)
			}
		}()
	}

	var cancelled error
feed:
	for i := range sizes {
		select {
		case jobs <- i:
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return MultiWindowResult{}, cancelled
	}

	return reduceWindows(cfg, maxWindow, results), nil
}

func fitWindow(series common.PriceSeries, size, maxIterations int) WindowResult {
	res := WindowResult{WindowSize: size}

	params, err := Fit(series.Tail(size), maxIterations)
	if err != nil {
		res.ErrorMessage = err.Error()
		var div *FitDivergenceError
		if !errors.Is(err, ErrInsufficientData) && !errors.As(err, &div) {
			slog.Warn("unexpected window fit failure", "window", size, "err", err)
		}
		return res
	}

	res.Success = true
	res.Params = &params
	res.IsBubble = isBubbleWindow(params, size-1)
	slog.Debug("window fitted",
		"window", size, "mse", params.ResidualError, "tc", params.Tc, "bubble", res.IsBubble)
	return res
}

// isBubbleWindow is the bubble acceptance predicate: all four structural
// conditions plus a fit-quality bound. Stricter than the display indicators
// in Diagnose, which ignore residual error.
func isBubbleWindow(p Parameters, currentIndex int) bool {
	days := p.Tc - float64(currentIndex)
	return days >= tcMinDays && days <= tcMaxDays &&
		p.B < 0 &&
		p.M >= mMin && p.M <= mMax &&
		p.Omega >= omegaMin && p.Omega <= omegaMax &&
		p.ResidualError < BubbleMSE
}

func reduceWindows(cfg MultiWindowConfig, maxWindow int, results []WindowResult) MultiWindowResult {
	var successful, bubbles int
	for _, r := range results {
		if r.Success {
			successful++
		}
		if r.IsBubble {
			bubbles++
		}
	}

	confidence := 0.0
	if successful > 0 {
		confidence = float64(bubbles) / float64(successful) * 100
	}

	var state State
	var message string
	switch {
	case confidence >= confidenceCriticalPercent:
		state = StateCritical
		message = "bubble signature across most windows, high crash risk"
	case confidence >= confidenceWarningPercent:
		state = StateWarning
		message = "bubble signature in many windows, elevated risk"
	case confidence >= confidenceWatchPercent:
		state = StateWatch
		message = "partial bubble signature, worth monitoring"
	default:
		state = StateNormal
		message = "no significant bubble signature"
	}

	return MultiWindowResult{
		ConfidenceIndicator: roundTo(confidence, 2),
		State:               state,
		Message:             message,
		Statistics: Statistics{
			TotalWindows:   len(results),
			SuccessfulFits: successful,
			BubbleWindows:  bubbles,
			SuccessRate:    roundTo(float64(successful)/float64(len(results))*100, 2),
		},
		WindowRange: WindowRange{
			Min:  cfg.MinWindow,
			Max:  maxWindow,
			Step: cfg.Step,
		},
		DetailedResults: results,
	}
}
