package records

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/requestdesk/requestdesk/internal/records"

// SyncMetrics holds instruments for the intake records sync.
type SyncMetrics struct {
	syncDuration   metric.Float64Histogram
	syncTotal      metric.Int64Counter
	recordsApplied metric.Int64Counter
}

// NewSyncMetrics creates metrics for monitoring intake sync runs.
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(meterName)

	syncDuration, err := meter.Float64Histogram(
		"records.sync.duration",
		metric.WithDescription("Duration of intake sync runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	syncTotal, err := meter.Int64Counter(
		"records.sync.total",
		metric.WithDescription("Total number of intake sync runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	recordsApplied, err := meter.Int64Counter(
		"records.sync.applied",
		metric.WithDescription("Number of intake records upserted locally"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:   syncDuration,
		syncTotal:      syncTotal,
		recordsApplied: recordsApplied,
	}, nil
}

// RecordSync records one sync run. Safe to call on a nil receiver so the
// syncer works without a meter provider.
func (m *SyncMetrics) RecordSync(duration time.Duration, applied int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("provider.name", ProviderName),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Background context so a cancelled sync still reports.
	ctx := context.Background()
	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.syncTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if applied > 0 {
		m.recordsApplied.Add(ctx, int64(applied), metric.WithAttributes(attrs...))
	}
}
