package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/yeseoLee/Quant/internal/cache"
	"github.com/yeseoLee/Quant/internal/config"
	"github.com/yeseoLee/Quant/internal/dbg"
	"github.com/yeseoLee/Quant/pkg/chart"
	"github.com/yeseoLee/Quant/pkg/common"
	"github.com/yeseoLee/Quant/pkg/data/duckdb"
	"github.com/yeseoLee/Quant/pkg/datasource/historical"
	"github.com/yeseoLee/Quant/pkg/models/lppl"
)

type scanner struct {
	logger *zap.Logger
	cfg    *config.Config
	store  *cache.Store
	force  bool
}

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	watch := flag.Bool("watch", false, "keep running and re-scan on the configured cron schedule")
	force := flag.Bool("force", false, "recompute even when a cached result exists")
	prod := flag.Bool("prod", false, "production logging")
	flag.Parse()

	logger := dbg.NewLogger(*prod)
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("error loading config", zap.Error(err))
	}

	store, err := cache.Open(cfg.Database.SQLitePath)
	if err != nil {
		logger.Fatal("error opening cache store", zap.Error(err))
	}
	defer func(store *cache.Store) {
		_ = store.Close()
	}(store)

	s := &scanner{logger: logger, cfg: cfg, store: store, force: *force}

	if !*watch {
		s.scanAll(ctx)
		return
	}

	if cfg.Schedule.ScanCron == "" {
		logger.Fatal("watch mode requires schedule.scan_cron")
	}
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(cfg.Schedule.ScanCron, func() { s.scanAll(ctx) }); err != nil {
		logger.Fatal("error registering scan schedule", zap.Error(err))
	}
	c.Start()
	logger.Info("watching", zap.String("cron", cfg.Schedule.ScanCron))

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("done")
}

func (s *scanner) scanAll(ctx context.Context) {
	for _, symbol := range s.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		if err := s.scanSymbol(ctx, symbol); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error("scan failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func (s *scanner) scanSymbol(ctx context.Context, symbol string) error {
	series, err := s.loadSeries(ctx, symbol)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}

	result, err := s.store.GetOrCompute(ctx, symbol, series, lppl.MultiWindowConfig{
		MinWindow:     s.cfg.Analysis.MinWindow,
		MaxWindow:     s.cfg.Analysis.MaxWindow,
		Step:          s.cfg.Analysis.Step,
		MaxIterations: s.cfg.Analysis.MaxIterations,
	}, s.force)
	if err != nil {
		return fmt.Errorf("multi-window analysis: %w", err)
	}

	s.logger.Info("analysis complete",
		zap.String("symbol", symbol),
		zap.Float64("confidence", result.ConfidenceIndicator),
		zap.String("state", string(result.State)),
		zap.Int("windows", result.Statistics.TotalWindows),
		zap.Int("bubble_windows", result.Statistics.BubbleWindows),
		zap.Bool("cached", result.Cached),
	)

	// The chart needs a fresh single fit over the full series; skip it when
	// the fit diverges, the indicator above already told the story.
	if s.cfg.Charts.OutputDir == "" {
		return nil
	}
	fitted, err := lppl.Fit(series, lppl.DefaultMaxIterations)
	if err != nil {
		s.logger.Warn("full-series fit failed, skipping chart",
			zap.String("symbol", symbol), zap.Error(err))
		return nil
	}

	endTime, _ := series.EndTime()
	diag := lppl.Diagnose(fitted, len(series), len(series)-1, endTime)
	s.logger.Info("single-fit diagnosis",
		zap.String("symbol", symbol),
		zap.String("state", string(diag.State)),
		zap.Float64("confidence", diag.Confidence),
		zap.Float64("days_to_critical", diag.DaysToCritical),
	)

	return s.renderChart(symbol, series, fitted)
}

func (s *scanner) renderChart(symbol string, series common.PriceSeries, fitted lppl.Parameters) error {
	curve := lppl.FittedCurve(series, fitted)
	forecast := lppl.Forecast(series, fitted, s.cfg.Analysis.ForecastDays)

	png, err := chart.Render(symbol+" LPPL", series, curve, forecast)
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}

	out := filepath.Join(s.cfg.Charts.OutputDir, symbol+".png")
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	s.logger.Info("chart written", zap.String("path", out))
	return nil
}

func (s *scanner) loadSeries(ctx context.Context, symbol string) (common.PriceSeries, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -s.cfg.Data.LookbackDays)

	if s.cfg.Data.DuckDBPath != "" {
		reader := duckdb.NewReader(s.cfg.Data.DuckDBPath)
		if err := reader.Connect(); err != nil {
			return nil, err
		}
		defer reader.Close()
		return reader.LoadSeries(ctx, symbol, from, to)
	}

	source := historical.NewSource(filepath.Join(s.cfg.Data.BarsDir, symbol+".bin"))
	if err := source.Open(); err != nil {
		return nil, err
	}
	defer source.Close()
	return historical.NewBarReader(source, from, to).ReadSeries()
}
