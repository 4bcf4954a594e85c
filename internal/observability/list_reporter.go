package observability

import (
	"context"
	"log/slog"

	"github.com/sheetdesk/sheetdesk/internal/listing"
)

// ListReporter logs list controller failures and counts them.
type ListReporter struct {
	log     listing.LogReporter
	metrics *Metrics
}

// NewListReporter builds a reporter. Either argument may be nil.
func NewListReporter(logger *slog.Logger, metrics *Metrics) *ListReporter {
	return &ListReporter{log: listing.LogReporter{Logger: logger}, metrics: metrics}
}

// Report implements listing.Reporter.
func (r *ListReporter) Report(ctx context.Context, o listing.Outcome) {
	r.log.Report(ctx, o)
	if r.metrics != nil {
		r.metrics.listFailures.WithLabelValues(o.Op, string(o.Kind)).Inc()
	}
}
