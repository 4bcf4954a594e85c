package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sheetdesk/sheetdesk/internal/jobs"
	"github.com/sheetdesk/sheetdesk/internal/platform/httpx"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSheetRecount refreshes the stored subscriber count of one sheet.
	TaskSheetRecount = "sheet:recount"
	// TaskActivityPrune deletes activity rows past the retention window.
	TaskActivityPrune = "activity:prune"
)

// SheetRecountPayload identifies the sheet to recount.
type SheetRecountPayload struct {
	SheetID int64 `json:"sheet_id"`
}

// ActivityPrunePayload carries the retention window in hours.
type ActivityPrunePayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewSheetRecountTask constructs a recount task.
func NewSheetRecountTask(sheetID int64) (*asynq.Task, error) {
	body, err := json.Marshal(SheetRecountPayload{SheetID: sheetID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSheetRecount, body, asynq.Queue(QueueDefault)), nil
}

// NewActivityPruneTask constructs a prune task keeping retention worth of
// activity.
func NewActivityPruneTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(ActivityPrunePayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActivityPrune, body, asynq.Queue(QueueDefault)), nil
}

// Store is the persistence the job handlers need.
type Store interface {
	RecountSheet(ctx context.Context, sheetID int64) (int, error)
	PruneActivity(ctx context.Context, before time.Time) (int64, error)
}

// Handlers processes the SheetDesk task types.
type Handlers struct {
	store   Store
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandlers constructs Handlers. metrics and logger may be nil.
func NewHandlers(store Store, metrics *jobmetrics.Metrics, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// TaskHandlers lists the handlers for worker registration.
func (h *Handlers) TaskHandlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskSheetRecount, Handler: h.HandleSheetRecount},
		{Type: TaskActivityPrune, Handler: h.HandleActivityPrune},
	}
}

// HandleSheetRecount processes TaskSheetRecount tasks. Unknown sheets are not
// retried.
func (h *Handlers) HandleSheetRecount(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(TaskSheetRecount)
	var payload SheetRecountPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.SheetID <= 0 {
		return tracker.End(fmt.Errorf("decode recount payload: %w", asynq.SkipRetry))
	}
	count, err := h.store.RecountSheet(ctx, payload.SheetID)
	if errors.Is(err, httpx.ErrNotFound) {
		h.logger.Warn("recount unknown sheet", slog.Int64("sheet_id", payload.SheetID))
		return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
	}
	if err != nil {
		return tracker.End(err)
	}
	h.logger.Info("sheet recounted", slog.Int64("sheet_id", payload.SheetID), slog.Int("subscribers", count))
	return tracker.End(nil)
}

// HandleActivityPrune processes TaskActivityPrune tasks.
func (h *Handlers) HandleActivityPrune(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(TaskActivityPrune)
	var payload ActivityPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RetentionHours <= 0 {
		return tracker.End(fmt.Errorf("decode prune payload: %w", asynq.SkipRetry))
	}
	before := h.now().Add(-time.Duration(payload.RetentionHours) * time.Hour)
	pruned, err := h.store.PruneActivity(ctx, before)
	if err != nil {
		return tracker.End(err)
	}
	h.metrics.AddPruned(pruned)
	h.logger.Info("activity pruned", slog.Int64("rows", pruned), slog.Time("before", before))
	return tracker.End(nil)
}
