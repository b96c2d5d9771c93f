// Package sqlite implements internal/store against a local SQLite file,
// grounded on
// RohanRaikwar-algo-sys-v1/backend/internal/store/sqlite/writer.go — same
// WAL-mode open string, single-connection pool, and INSERT OR REPLACE
// idiom, re-scoped to alert records and settings blobs instead of candles.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"livermore/internal/model"
	"livermore/internal/store"
)

// Store is a single-writer SQLite-backed AlertStore + SettingsStore.
type Store struct {
	db *sql.DB
}

// Config names the database file to open.
type Config struct {
	Path string
}

func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id                 TEXT    PRIMARY KEY,
			exchange_id        TEXT    NOT NULL,
			symbol             TEXT    NOT NULL,
			timeframe          TEXT    NOT NULL,
			alert_type         TEXT    NOT NULL,
			triggered_at       INTEGER NOT NULL,
			price              REAL    NOT NULL,
			trigger_value      REAL    NOT NULL,
			trigger_label      TEXT    NOT NULL,
			previous_label     TEXT,
			details            TEXT,
			chart_generated    INTEGER NOT NULL DEFAULT 0,
			notification_sent  INTEGER NOT NULL DEFAULT 0,
			notification_error TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_symbol_tf ON alerts(symbol, timeframe);

		CREATE TABLE IF NOT EXISTS settings (
			identity          TEXT PRIMARY KEY,
			monitored_symbols TEXT NOT NULL DEFAULT '',
			mode              TEXT NOT NULL DEFAULT ''
		);
	`)
	return err
}

// InsertAlert persists one alert record, assigning it a UUID if it has none.
func (s *Store) InsertAlert(ctx context.Context, record model.AlertRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	var details string
	if record.Details != nil {
		encoded, err := json.Marshal(record.Details)
		if err != nil {
			return "", fmt.Errorf("sqlite: marshal details: %w", err)
		}
		details = string(encoded)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alerts
			(id, exchange_id, symbol, timeframe, alert_type, triggered_at, price,
			 trigger_value, trigger_label, previous_label, details,
			 chart_generated, notification_sent, notification_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.ExchangeID, record.Symbol, string(record.Timeframe), record.AlertType,
		record.TriggeredAt, record.Price, record.TriggerValue, record.TriggerLabel,
		record.PreviousLabel, details, boolToInt(record.ChartGenerated),
		boolToInt(record.NotificationSent), record.NotificationError,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: insert alert: %w", err)
	}
	return record.ID, nil
}

// GetSettings returns the zero Settings value for an identity with no row
// yet ( reload-settings "or report" path treats this as an
// empty, not an error, settings blob).
func (s *Store) GetSettings(ctx context.Context, identity string) (store.Settings, error) {
	var symbolsCSV, mode string
	err := s.db.QueryRowContext(ctx,
		`SELECT monitored_symbols, mode FROM settings WHERE identity = ?`, identity,
	).Scan(&symbolsCSV, &mode)
	if err == sql.ErrNoRows {
		return store.Settings{}, nil
	}
	if err != nil {
		return store.Settings{}, fmt.Errorf("sqlite: get settings: %w", err)
	}
	return store.Settings{MonitoredSymbols: splitCSV(symbolsCSV), Mode: mode}, nil
}

func (s *Store) PutSettings(ctx context.Context, identity string, v store.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (identity, monitored_symbols, mode) VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET monitored_symbols = excluded.monitored_symbols, mode = excluded.mode`,
		identity, strings.Join(v.MonitoredSymbols, ","), v.Mode,
	)
	if err != nil {
		return fmt.Errorf("sqlite: put settings: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

var _ store.AlertStore = (*Store)(nil)
var _ store.SettingsStore = (*Store)(nil)
