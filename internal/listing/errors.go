package listing

import (
	"context"
	"errors"
	"log/slog"
)

var (
	// ErrFetchFailed marks any failure while retrieving a page.
	ErrFetchFailed = errors.New("listing: fetch failed")
	// ErrMutationFailed marks a failed update, delete or create.
	ErrMutationFailed = errors.New("listing: mutation failed")
	// ErrStaleResponse marks a response that belongs to a superseded epoch.
	ErrStaleResponse = errors.New("listing: stale response")
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("listing: controller closed")
)

// OutcomeKind classifies a reported failure.
type OutcomeKind string

const (
	OutcomeFetchFailed    OutcomeKind = "fetch_failed"
	OutcomeMutationFailed OutcomeKind = "mutation_failed"
	OutcomeStale          OutcomeKind = "stale_response"
)

// Outcome describes a failure caught at the controller boundary.
type Outcome struct {
	Kind    OutcomeKind
	Op      string
	OwnerID string
	Err     error
}

// Reporter receives every failure the controller absorbs.
type Reporter interface {
	Report(ctx context.Context, o Outcome)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, o Outcome)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, o Outcome) {
	f(ctx, o)
}

// LogReporter writes outcomes to a slog.Logger. Stale responses are logged at
// debug level since they are expected under rapid filter changes.
type LogReporter struct {
	Logger *slog.Logger
}

// Report implements Reporter.
func (r LogReporter) Report(ctx context.Context, o Outcome) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelError
	if o.Kind == OutcomeStale {
		level = slog.LevelDebug
	}
	logger.Log(ctx, level, "list operation failed",
		slog.String("kind", string(o.Kind)),
		slog.String("op", o.Op),
		slog.String("owner", o.OwnerID),
		slog.Any("error", o.Err),
	)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, Outcome) {}
