// Package store defines the relational persistence boundary:
// alert records and per-identity settings blobs. internal/store/sqlite
// supplies the only shipped implementation, grounded on
// RohanRaikwar-algo-sys-v1/backend/internal/store/sqlite/writer.go.
package store

import (
	"context"

	"livermore/internal/model"
)

// AlertStore persists triggered alerts immutably.
type AlertStore interface {
	// InsertAlert persists a record and returns its assigned ID.
	InsertAlert(ctx context.Context, record model.AlertRecord) (string, error)
}

// Settings is the persisted, per-identity configuration blob the
// reload-settings and symbol-mutation commands read and write.
type Settings struct {
	MonitoredSymbols []string
	Mode             string
}

// SettingsStore reads and atomically updates the settings blob for one
// identity (exchange + user scope).
type SettingsStore interface {
	GetSettings(ctx context.Context, identity string) (Settings, error)
	PutSettings(ctx context.Context, identity string, s Settings) error
}
