// Package cache persists multi-window analysis results in SQLite, keyed by
// (symbol, analysis date, window step). The fit is deterministic, so a cached
// row is exactly what recomputation would produce; keying on the analysis
// date invalidates naturally whenever newer prices arrive.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yeseoLee/Quant/pkg/common"
	"github.com/yeseoLee/Quant/pkg/models/lppl"
)

const dateLayout = "2006-01-02"

// Store wraps the SQLite database holding cached analysis results.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers do not block a running analysis write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lppl_analysis (
			id                   TEXT PRIMARY KEY,
			symbol               TEXT NOT NULL,
			analysis_date        TEXT NOT NULL,
			min_window           INTEGER NOT NULL,
			max_window           INTEGER NOT NULL,
			step                 INTEGER NOT NULL,
			confidence_indicator REAL NOT NULL,
			state                TEXT NOT NULL,
			message              TEXT NOT NULL,
			total_windows        INTEGER NOT NULL,
			successful_fits      INTEGER NOT NULL,
			bubble_windows       INTEGER NOT NULL,
			success_rate         REAL NOT NULL,
			computation_time     REAL NOT NULL,
			created_at           INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_analysis_key
			ON lppl_analysis(symbol, analysis_date, step)`,
		`CREATE TABLE IF NOT EXISTS lppl_window (
			analysis_id    TEXT NOT NULL REFERENCES lppl_analysis(id) ON DELETE CASCADE,
			window_size    INTEGER NOT NULL,
			success        INTEGER NOT NULL,
			is_bubble      INTEGER NOT NULL,
			tc             REAL,
			a              REAL,
			b              REAL,
			c              REAL,
			m              REAL,
			omega          REAL,
			phi            REAL,
			residual_error REAL,
			error_message  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_window_analysis ON lppl_window(analysis_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// Result is a multi-window analysis together with its cache provenance.
type Result struct {
	lppl.MultiWindowResult
	Cached          bool
	ComputationTime float64
	CachedAt        time.Time
}

// GetOrCompute returns the cached analysis for the series' last date when
// one exists, otherwise runs the analysis, persists it and returns it.
// force bypasses the lookup and overwrites any stored row for the key.
func (s *Store) GetOrCompute(ctx context.Context, symbol string, series common.PriceSeries, cfg lppl.MultiWindowConfig, force bool) (Result, error) {
	endTime, ok := series.EndTime()
	if !ok {
		return Result{}, common.ErrEmptySeries
	}
	analysisDate := endTime.Format(dateLayout)

	step := cfg.Step
	if step <= 0 {
		step = lppl.DefaultWindowStep
	}

	if !force {
		cached, err := s.lookup(ctx, symbol, analysisDate, step)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Result{}, err
		}
	}

	started := time.Now()
	result, err := lppl.AnalyzeMultiWindow(ctx, series, cfg)
	if err != nil {
		return Result{}, err
	}
	elapsed := time.Since(started).Seconds()

	if err := s.save(ctx, symbol, analysisDate, result, elapsed); err != nil {
		return Result{}, err
	}

	return Result{
		MultiWindowResult: result,
		Cached:            false,
		ComputationTime:   elapsed,
		CachedAt:          started,
	}, nil
}

func (s *Store) lookup(ctx context.Context, symbol, analysisDate string, step int) (Result, error) {
	var (
		id        string
		res       Result
		createdAt int64
	)
	row := s.db.QueryRowContext(ctx, `SELECT id, confidence_indicator, state, message,
			total_windows, successful_fits, bubble_windows, success_rate,
			min_window, max_window, step, computation_time, created_at
		FROM lppl_analysis WHERE symbol = ? AND analysis_date = ? AND step = ?`,
		symbol, analysisDate, step)
	if err := row.Scan(&id, &res.ConfidenceIndicator, &res.State, &res.Message,
		&res.Statistics.TotalWindows, &res.Statistics.SuccessfulFits,
		&res.Statistics.BubbleWindows, &res.Statistics.SuccessRate,
		&res.WindowRange.Min, &res.WindowRange.Max, &res.WindowRange.Step,
		&res.ComputationTime, &createdAt); err != nil {
		return Result{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT window_size, success, is_bubble,
			tc, a, b, c, m, omega, phi, residual_error, error_message
		FROM lppl_window WHERE analysis_id = ? ORDER BY window_size`, id)
	if err != nil {
		return Result{}, fmt.Errorf("load windows: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	for rows.Next() {
		var (
			w      lppl.WindowResult
			tc     sql.NullFloat64
			a      sql.NullFloat64
			b      sql.NullFloat64
			c      sql.NullFloat64
			m      sql.NullFloat64
			omega  sql.NullFloat64
			phi    sql.NullFloat64
			resid  sql.NullFloat64
			errMsg sql.NullString
		)
		if err := rows.Scan(&w.WindowSize, &w.Success, &w.IsBubble,
			&tc, &a, &b, &c, &m, &omega, &phi, &resid, &errMsg); err != nil {
			return Result{}, fmt.Errorf("scan window: %w", err)
		}
		if w.Success {
			w.Params = &lppl.Parameters{
				Tc: tc.Float64, A: a.Float64, B: b.Float64, C: c.Float64,
				M: m.Float64, Omega: omega.Float64, Phi: phi.Float64,
				ResidualError: resid.Float64,
			}
		}
		w.ErrorMessage = errMsg.String
		res.DetailedResults = append(res.DetailedResults, w)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("scan windows: %w", err)
	}

	res.Cached = true
	res.CachedAt = time.Unix(createdAt, 0).UTC()
	return res, nil
}

func (s *Store) save(ctx context.Context, symbol, analysisDate string, result lppl.MultiWindowResult, elapsed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// One row per key: replace any previous run for the same date and step.
	if _, err := tx.ExecContext(ctx, `DELETE FROM lppl_window WHERE analysis_id IN
			(SELECT id FROM lppl_analysis WHERE symbol = ? AND analysis_date = ? AND step = ?)`,
		symbol, analysisDate, result.WindowRange.Step); err != nil {
		return fmt.Errorf("delete old windows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lppl_analysis
			WHERE symbol = ? AND analysis_date = ? AND step = ?`,
		symbol, analysisDate, result.WindowRange.Step); err != nil {
		return fmt.Errorf("delete old analysis: %w", err)
	}

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO lppl_analysis
			(id, symbol, analysis_date, min_window, max_window, step,
			 confidence_indicator, state, message,
			 total_windows, successful_fits, bubble_windows, success_rate,
			 computation_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, symbol, analysisDate,
		result.WindowRange.Min, result.WindowRange.Max, result.WindowRange.Step,
		result.ConfidenceIndicator, string(result.State), result.Message,
		result.Statistics.TotalWindows, result.Statistics.SuccessfulFits,
		result.Statistics.BubbleWindows, result.Statistics.SuccessRate,
		elapsed, time.Now().Unix()); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	for _, w := range result.DetailedResults {
		var tc, a, b, c, m, omega, phi, resid sql.NullFloat64
		if w.Params != nil {
			tc = sql.NullFloat64{Float64: w.Params.Tc, Valid: true}
			a = sql.NullFloat64{Float64: w.Params.A, Valid: true}
			b = sql.NullFloat64{Float64: w.Params.B, Valid: true}
			c = sql.NullFloat64{Float64: w.Params.C, Valid: true}
			m = sql.NullFloat64{Float64: w.Params.M, Valid: true}
			omega = sql.NullFloat64{Float64: w.Params.Omega, Valid: true}
			phi = sql.NullFloat64{Float64: w.Params.Phi, Valid: true}
			resid = sql.NullFloat64{Float64: w.Params.ResidualError, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO lppl_window
				(analysis_id, window_size, success, is_bubble,
				 tc, a, b, c, m, omega, phi, residual_error, error_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, w.WindowSize, w.Success, w.IsBubble,
			tc, a, b, c, m, omega, phi, resid, w.ErrorMessage); err != nil {
			return fmt.Errorf("insert window: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Invalidate deletes every cached analysis for symbol and reports how many
// master rows were removed.
func (s *Store) Invalidate(ctx context.Context, symbol string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM lppl_window WHERE analysis_id IN
			(SELECT id FROM lppl_analysis WHERE symbol = ?)`, symbol); err != nil {
		return 0, fmt.Errorf("delete windows: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM lppl_analysis WHERE symbol = ?`, symbol)
	if err != nil {
		return 0, fmt.Errorf("delete analyses: %w", err)
	}
	return res.RowsAffected()
}

// Info summarizes the latest cached analysis for symbol, or reports
// sql.ErrNoRows when none exists.
type Info struct {
	AnalysisDate        string
	State               lppl.State
	ConfidenceIndicator float64
	Step                int
	TotalWindows        int
	ComputationTime     float64
	CreatedAt           time.Time
}

func (s *Store) Info(ctx context.Context, symbol string) (Info, error) {
	var info Info
	var createdAt int64
	row := s.db.QueryRowContext(ctx, `SELECT analysis_date, state, confidence_indicator,
			step, total_windows, computation_time, created_at
		FROM lppl_analysis WHERE symbol = ?
		ORDER BY analysis_date DESC LIMIT 1`, symbol)
	if err := row.Scan(&info.AnalysisDate, &info.State, &info.ConfidenceIndicator,
		&info.Step, &info.TotalWindows, &info.ComputationTime, &createdAt); err != nil {
		return Info{}, err
	}
	info.CreatedAt = time.Unix(createdAt, 0).UTC()
	return info, nil
}
