// Package activitylog appends a bounded, time-trimmed event series per
// exchange: state transitions, errors, and admin actions, over
// cache.Service's XAdd-style stream primitives.
package activitylog

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"livermore/internal/cache"
	"livermore/internal/cachekeys"
)

// EventKind is the closed set of activity-log entry types.
type EventKind string

const (
	EventStateTransition EventKind = "state_transition"
	EventError           EventKind = "error"
	EventAdminAction     EventKind = "admin_action"
)

// RetentionMs is the trim window: 90 days.
const RetentionMs = int64(90 * 24 * 60 * 60 * 1000)

// Log appends to one exchange's activity stream.
type Log struct {
	exchange string
	cacheSvc cache.Service
	logger   *zap.Logger
}

func New(exchange string, store cache.Service, logger *zap.Logger) *Log {
	return &Log{exchange: exchange, cacheSvc: store, logger: logger.Named("activitylog")}
}

// Append records one entry. Fire-and-forget: failures are logged, never
// propagated.
func (l *Log) Append(ctx context.Context, kind EventKind, nowMs int64, fields map[string]string) {
	values := map[string]string{"event": string(kind), "ts": strconv.FormatInt(nowMs, 10)}
	for k, v := range fields {
		values[k] = v
	}
	stream := cachekeys.ActivityStream(l.exchange)
	if err := l.cacheSvc.Append(ctx, stream, values); err != nil {
		l.logger.Debug("activity append failed", zap.Error(err))
	}
}

// Trim drops entries older than the 90-day retention window relative to
// nowMs.
func (l *Log) Trim(ctx context.Context, nowMs int64) {
	stream := cachekeys.ActivityStream(l.exchange)
	if err := l.cacheSvc.TrimBefore(ctx, stream, nowMs-RetentionMs); err != nil {
		l.logger.Debug("activity trim failed", zap.Error(err))
	}
}
