package lppl

import (
	"context"
	"errors"
	"testing"
)

func trendSeries(t *testing.T, n int) []float64 {
	t.Helper()
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 100 + 0.3*float64(i)
	}
	return prices
}

func TestAnalyzeMultiWindow_InsufficientData(t *testing.T) {
	series := seriesFromFloats(t, trendSeries(t, 100))

	_, err := AnalyzeMultiWindow(context.Background(), series, MultiWindowConfig{
		MinWindow: 125, MaxWindow: 200, Step: 25, MaxIterations: 10,
	})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestAnalyzeMultiWindow_WindowEnumeration(t *testing.T) {
	tests := []struct {
		name      string
		length    int
		cfg       MultiWindowConfig
		wantSizes []int
		wantMax   int
	}{
		{
			name:      "exact range",
			length:    200,
			cfg:       MultiWindowConfig{MinWindow: 125, MaxWindow: 200, Step: 25, MaxIterations: 10},
			wantSizes: []int{125, 150, 175, 200},
			wantMax:   200,
		},
		{
			name:      "max clamped to series length",
			length:    160,
			cfg:       MultiWindowConfig{MinWindow: 125, MaxWindow: 750, Step: 25, MaxIterations: 10},
			wantSizes: []int{125, 150},
			wantMax:   160,
		},
		{
			name:      "single window",
			length:    130,
			cfg:       MultiWindowConfig{MinWindow: 130, MaxWindow: 130, Step: 5, MaxIterations: 10},
			wantSizes: []int{130},
			wantMax:   130,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := seriesFromFloats(t, trendSeries(t, tt.length))

			res, err := AnalyzeMultiWindow(context.Background(), series, tt.cfg)
			if err != nil {
				t.Fatalf("analyze: %v", err)
			}

			if len(res.DetailedResults) != len(tt.wantSizes) {
				t.Fatalf("got %d window results, want %d", len(res.DetailedResults), len(tt.wantSizes))
			}
			for i, want := range tt.wantSizes {
				if res.DetailedResults[i].WindowSize != want {
					t.Errorf("result[%d].WindowSize = %d, want %d", i, res.DetailedResults[i].WindowSize, want)
				}
			}
			if res.WindowRange.Max != tt.wantMax {
				t.Errorf("WindowRange.Max = %d, want %d", res.WindowRange.Max, tt.wantMax)
			}
			if res.WindowRange.Min != tt.cfg.MinWindow || res.WindowRange.Step != tt.cfg.Step {
				t.Errorf("WindowRange = %+v, want min %d step %d", res.WindowRange, tt.cfg.MinWindow, tt.cfg.Step)
			}
			if res.Statistics.TotalWindows != len(tt.wantSizes) {
				t.Errorf("TotalWindows = %d, want %d", res.Statistics.TotalWindows, len(tt.wantSizes))
			}
		})
	}
}

func TestAnalyzeMultiWindow_ReductionInvariants(t *testing.T) {
	series := seriesFromFloats(t, trendSeries(t, 200))

	res, err := AnalyzeMultiWindow(context.Background(), series, MultiWindowConfig{
		MinWindow: 125, MaxWindow: 200, Step: 25, MaxIterations: 60,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if res.ConfidenceIndicator < 0 || res.ConfidenceIndicator > 100 {
		t.Errorf("confidence %v outside [0, 100]", res.ConfidenceIndicator)
	}
	if res.Statistics.SuccessfulFits == 0 && res.ConfidenceIndicator != 0 {
		t.Errorf("confidence %v with zero successful fits", res.ConfidenceIndicator)
	}

	var successes, bubbles int
	for i, w := range res.DetailedResults {
		if i > 0 && w.WindowSize <= res.DetailedResults[i-1].WindowSize {
			t.Errorf("window sizes not strictly increasing at %d", i)
		}
		if w.Success {
			successes++
			if w.Params == nil {
				t.Errorf("successful window %d has no parameters", w.WindowSize)
			}
		} else {
			if w.IsBubble {
				t.Errorf("failed window %d flagged as bubble", w.WindowSize)
			}
			if w.ErrorMessage == "" {
				t.Errorf("failed window %d has no error message", w.WindowSize)
			}
		}
		if w.IsBubble {
			bubbles++
		}
	}
	if successes != res.Statistics.SuccessfulFits {
		t.Errorf("SuccessfulFits = %d, counted %d", res.Statistics.SuccessfulFits, successes)
	}
	if bubbles != res.Statistics.BubbleWindows {
		t.Errorf("BubbleWindows = %d, counted %d", res.Statistics.BubbleWindows, bubbles)
	}
	if res.State != StateNormal && res.State != StateWatch && res.State != StateWarning && res.State != StateCritical {
		t.Errorf("unexpected state %q", res.State)
	}
}

func TestAnalyzeMultiWindow_Cancellation(t *testing.T) {
	series := seriesFromFloats(t, trendSeries(t, 750))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AnalyzeMultiWindow(ctx, series, MultiWindowConfig{
		MinWindow: 125, MaxWindow: 750, Step: 5, MaxIterations: 500, Workers: 1,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestIsBubbleWindow(t *testing.T) {
	good := Parameters{Tc: 229, B: -0.5, M: 0.5, Omega: 8, ResidualError: 0.01}
	tests := []struct {
		name    string
		mutate  func(*Parameters)
		current int
		want    bool
	}{
		{name: "all conditions hold", mutate: func(*Parameters) {}, current: 199, want: true},
		{name: "tc too close", mutate: func(p *Parameters) { p.Tc = 202 }, current: 199, want: false},
		{name: "tc too far", mutate: func(p *Parameters) { p.Tc = 199 + 600 }, current: 199, want: false},
		{name: "B not negative", mutate: func(p *Parameters) { p.B = 0 }, current: 199, want: false},
		{name: "m out of range", mutate: func(p *Parameters) { p.M = 0.95 }, current: 199, want: false},
		{name: "omega out of range", mutate: func(p *Parameters) { p.Omega = 30 }, current: 199, want: false},
		{name: "poor fit quality", mutate: func(p *Parameters) { p.ResidualError = 0.6 }, current: 199, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := good
			tt.mutate(&p)
			if got := isBubbleWindow(p, tt.current); got != tt.want {
				t.Fatalf("isBubbleWindow = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMultiWindowConfig_Defaults(t *testing.T) {
	cfg := MultiWindowConfig{}.withDefaults()
	if cfg.MinWindow != DefaultMinWindow || cfg.MaxWindow != DefaultMaxWindow ||
		cfg.Step != DefaultWindowStep || cfg.MaxIterations != DefaultWindowIterations {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Workers <= 0 {
		t.Fatalf("workers = %d, want positive", cfg.Workers)
	}
}
