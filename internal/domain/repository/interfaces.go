package repository

import (
	"context"
	"time"

	"QuantBoard/internal/domain/models"
)

// MetricStore persists and reads canonical metric rows. Writes merge-replace
// on (symbol, timeframe, timestamp).
type MetricStore interface {
	Init(ctx context.Context) error
	UpsertBatch(ctx context.Context, rows []*models.MetricRow) error
	Upsert(ctx context.Context, row *models.MetricRow) error
	Window(ctx context.Context, symbol, timeframe string, n int) ([]*models.MetricRow, error)
	Latest(ctx context.Context, symbol, timeframe string, n int) ([]*models.MetricRow, error)
	Prune(ctx context.Context, olderThan time.Time) error
	Health(ctx context.Context) error
	Close() error
}

// FeatureStore persists and reads derived feature snapshots.
type FeatureStore interface {
	Insert(ctx context.Context, snaps []*models.FeatureSnapshot) error
	Latest(ctx context.Context, symbol string, n int) ([]*models.FeatureSnapshot, error)
	Prune(ctx context.Context, olderThan time.Time) error
}

// SignalStore persists and reads everything the signal engine emits.
type SignalStore interface {
	InsertSignals(ctx context.Context, recs []*models.SignalRecord) error
	InsertDiagnostics(ctx context.Context, recs []*models.DiagnosticsRecord) error
	InsertConfluence(ctx context.Context, recs []*models.ConfluenceRecord) error
	InsertRegimes(ctx context.Context, recs []*models.RegimeRecord) error
	InsertContexts(ctx context.Context, recs []*models.ContextScoreRecord) error
	InsertTransitions(ctx context.Context, recs []*models.ContextTransition) error

	LatestSignals(ctx context.Context, symbol string, n int) ([]*models.SignalRecord, error)
	LatestDiagnostics(ctx context.Context, symbol string, n int) ([]*models.DiagnosticsRecord, error)
	LatestConfluence(ctx context.Context, symbol string, n int) ([]*models.ConfluenceRecord, error)
	LatestRegimes(ctx context.Context, symbol string, n int) ([]*models.RegimeRecord, error)
	LatestContexts(ctx context.Context, symbol string, n int) ([]*models.ContextScoreRecord, error)

	Prune(ctx context.Context, olderThan time.Time) error
}

// Publisher relays engine batches over the live channel.
type Publisher interface {
	PublishBatch(ctx context.Context, batch *models.EngineBatch) error
	Close() error
}

// Metrics records operational metrics.
type Metrics interface {
	RecordEvent(source, symbol string)
	RecordDrop(reason string)
	RecordRowsWritten(n int)
	RecordQueueDepth(n int)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordStageLatency(stage string, seconds float64)
}
