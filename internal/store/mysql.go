// Package store implements the primary MySQL time-series store (spec.md
// §6's realtime_data/daily_data tables) and the secondary sinks
// (SPEC_FULL.md §4.12: InfluxDB mirror, Redis cache, NATS fan-out).
//
// Grounded in the teacher's internal/database/mysql.go for the
// DSN/connection-pool/ON-DUPLICATE-KEY-UPDATE idiom, adapted from the
// teacher's symbolsmap/system_config tables to this repository's
// realtime_data/daily_data schema.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/ibflow/ingestd/internal/models"
	"github.com/ibflow/ingestd/pkg/config"
)

// MySQLStore is the primary time-series store. It implements both
// persistence.Store (UpsertRealtimeBar/UpsertDailyBar) and
// backfill.Store (MaxDate/RecentDailyCloses) without importing either
// package, matching Go's implicit interface satisfaction.
type MySQLStore struct {
	db     *sql.DB
	logger *logrus.Entry
}

// NewMySQLStore opens the connection pool and verifies connectivity. A
// failure here is a Configuration/Database-connection fault (spec.md
// §7): fatal at startup.
func NewMySQLStore(cfg *config.Config, logger *logrus.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN())
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}

	return &MySQLStore{db: db, logger: logger.WithField("component", "mysql-store")}, nil
}

// Close closes the underlying connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// UpsertRealtimeBar writes one minute's combined bar, keyed by
// (datetime, symbol). Re-ingesting the same minute replaces the row in
// place, matching spec.md §8's idempotency requirement.
func (s *MySQLStore) UpsertRealtimeBar(ctx context.Context, bar *models.CombinedBar) error {
	l1, err := json.Marshal(bar.L1)
	if err != nil {
		return fmt.Errorf("mysql: marshal l1: %w", err)
	}
	l2, err := json.Marshal(bar.L2)
	if err != nil {
		return fmt.Errorf("mysql: marshal l2: %w", err)
	}
	features, err := json.Marshal(bar.Features)
	if err != nil {
		return fmt.Errorf("mysql: marshal features: %w", err)
	}

	const query = `
		INSERT INTO realtime_data (datetime, symbol, l1, l2, features)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			l1 = VALUES(l1), l2 = VALUES(l2), features = VALUES(features)
	`
	_, err = s.db.ExecContext(ctx, query, bar.Datetime, bar.Symbol, l1, l2, features)
	if err != nil {
		return fmt.Errorf("mysql: upsert realtime_data: %w", err)
	}
	return nil
}

// UpsertDailyBar writes one (date, symbol) daily row, idempotently.
func (s *MySQLStore) UpsertDailyBar(ctx context.Context, bar *models.DailyBar) error {
	const query = `
		INSERT INTO daily_data (
			date, symbol, open, high, low, close, volume, adj_close,
			sma, ema, rsi, macd, vwap, momentum
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			open = VALUES(open), high = VALUES(high), low = VALUES(low),
			close = VALUES(close), volume = VALUES(volume), adj_close = VALUES(adj_close),
			sma = VALUES(sma), ema = VALUES(ema), rsi = VALUES(rsi),
			macd = VALUES(macd), vwap = VALUES(vwap), momentum = VALUES(momentum)
	`
	_, err := s.db.ExecContext(ctx, query,
		bar.Date, bar.Symbol, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.AdjClose,
		bar.SMA, bar.EMA, bar.RSI, bar.MACD, bar.VWAP, bar.Momentum,
	)
	if err != nil {
		return fmt.Errorf("mysql: upsert daily_data: %w", err)
	}
	return nil
}

// MaxDate returns the latest stored date for symbol, used by the
// backfill driver to determine its incremental resume point.
func (s *MySQLStore) MaxDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	const query = `SELECT MAX(date) FROM daily_data WHERE symbol = ?`
	var date sql.NullTime
	if err := s.db.QueryRowContext(ctx, query, symbol).Scan(&date); err != nil {
		return time.Time{}, false, fmt.Errorf("mysql: max date for %s: %w", symbol, err)
	}
	if !date.Valid {
		return time.Time{}, false, nil
	}
	return date.Time, true, nil
}

// RecentDailyCloses returns the n most recent closing prices for
// symbol, oldest first, used to seed the indicator kernel on restart.
func (s *MySQLStore) RecentDailyCloses(ctx context.Context, symbol string, n int) ([]float64, error) {
	const query = `SELECT close FROM daily_data WHERE symbol = ? ORDER BY date DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("mysql: recent closes for %s: %w", symbol, err)
	}
	defer rows.Close()

	var reversed []float64
	for rows.Next() {
		var close float64
		if err := rows.Scan(&close); err != nil {
			return nil, fmt.Errorf("mysql: scan close for %s: %w", symbol, err)
		}
		reversed = append(reversed, close)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	closes := make([]float64, len(reversed))
	for i, c := range reversed {
		closes[len(reversed)-1-i] = c
	}
	return closes, nil
}
