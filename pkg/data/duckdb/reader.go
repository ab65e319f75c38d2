// Package duckdb loads daily close history from a DuckDB database into a
// price series. Expected schema: one <symbol>_daily table per instrument
// with (ts TIMESTAMP, open, high, low, close, volume DOUBLE) rows.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/govalues/decimal"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/yeseoLee/Quant/pkg/common"
)

type Reader struct {
	dataSourceName string
	db             *sql.DB
}

func NewReader(dataSourceName string) *Reader {
	return &Reader{
		dataSourceName: dataSourceName,
	}
}

func (r *Reader) Connect() error {
	db, err := sql.Open("duckdb", r.dataSourceName)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	r.db = db
	return nil
}

func (r *Reader) Close() {
	_ = r.db.Close()
}

// LoadCloses streams the (ts, close) rows of symbol's daily table between
// from and to, in time order, through handler.
func (r *Reader) LoadCloses(ctx context.Context, symbol string, from, to time.Time, handler func(p common.PricePoint) error) error {
	query := fmt.Sprintf(`SELECT ts, close FROM %s_daily WHERE ts BETWEEN ? AND ? ORDER BY ts`, symbol)

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return fmt.Errorf("error preparing query: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	for rows.Next() {
		var ts time.Time
		var closePrice float64
		if err := rows.Scan(&ts, &closePrice); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		d, err := decimal.NewFromFloat64(closePrice)
		if err != nil {
			return fmt.Errorf("invalid close at %s: %w", ts, err)
		}
		if err := handler(common.PricePoint{Time: ts, Close: d}); err != nil {
			return fmt.Errorf("error processing point: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error scanning rows: %w", err)
	}
	return nil
}

// LoadSeries collects LoadCloses output into a validated PriceSeries.
func (r *Reader) LoadSeries(ctx context.Context, symbol string, from, to time.Time) (common.PriceSeries, error) {
	var series common.PriceSeries
	err := r.LoadCloses(ctx, symbol, from, to, func(p common.PricePoint) error {
		series = append(series, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("invalid series for %s: %w", symbol, err)
	}
	return series, nil
}
