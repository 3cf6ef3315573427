package llmcall

import (
	"context"
	"log/slog"
	"time"
)

// Recorder writes call records, logging instead of failing when the store is
// unavailable. A nil Recorder or one without a store records nothing.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder creates a new call recorder.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// RecordCall persists an already-constructed Call. Recording never blocks the
// caller's pipeline on a cancelled request context.
func (r *Recorder) RecordCall(ctx context.Context, call *Call) {
	if r == nil || r.store == nil || call == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.store.Insert(ctx, call); err != nil {
		r.logger.Warn("failed to record llm call",
			"operation", call.Operation,
			"report_id", call.ReportID,
			"error", err)
	}
}

// Record builds and persists a Call from options and outcome.
func (r *Recorder) Record(ctx context.Context, opts RecordOptions, response string, err error) {
	if r == nil || r.store == nil {
		return
	}
	r.RecordCall(ctx, New(opts, response, err))
}
