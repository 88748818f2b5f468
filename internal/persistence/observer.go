package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mgeddes/cabrun/pkg/api"
)

// HistoryObserver bridges engine events into a HistoryStore. Telemetry
// only: store errors are logged and swallowed, never propagated into the
// run.
type HistoryObserver struct {
	api.NoopObserver

	store *HistoryStore
	log   *slog.Logger

	mu    sync.Mutex
	runID string
}

// NewHistoryObserver returns an observer writing to store. If logger is
// nil, slog.Default() is used.
func NewHistoryObserver(store *HistoryStore, logger *slog.Logger) *HistoryObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryObserver{store: store, log: logger}
}

func (h *HistoryObserver) OnRecipeStart(ctx context.Context, recipe string) {
	id, err := h.store.StartRun(recipe)
	if err != nil {
		h.log.Warn("history: start run", "recipe", recipe, "error", err)
		return
	}
	h.mu.Lock()
	h.runID = id
	h.mu.Unlock()
}

func (h *HistoryObserver) OnRecipeCompleted(ctx context.Context, recipe string) {
	h.finish(recipe, "completed")
}

func (h *HistoryObserver) OnRecipeFailed(ctx context.Context, recipe string, err error) {
	h.finish(recipe, "failed")
}

func (h *HistoryObserver) OnJobCompleted(ctx context.Context, recipe, label string, number int, err error, d time.Duration) {
	h.mu.Lock()
	id := h.runID
	h.mu.Unlock()
	if id == "" {
		return
	}

	status := api.StatusCompleted
	if err != nil {
		status = api.StatusFailed
	}
	if rerr := h.store.RecordStep(id, number, label, status, d); rerr != nil {
		h.log.Warn("history: record step", "recipe", recipe, "step", number, "error", rerr)
	}
}

func (h *HistoryObserver) finish(recipe, status string) {
	h.mu.Lock()
	id := h.runID
	h.runID = ""
	h.mu.Unlock()
	if id == "" {
		return
	}
	if err := h.store.FinishRun(id, status); err != nil {
		h.log.Warn("history: finish run", "recipe", recipe, "error", err)
	}
}
