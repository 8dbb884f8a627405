package jobs

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/budgetblitz/budgetblitz/internal/platform/httpx"
)

// QueueStats is the per-queue view returned by GET /jobs/health.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Paused    bool   `json:"paused"`
}

// QueueInspector is the part of asynq.Inspector the health endpoint reads.
type QueueInspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes queue health to administrators.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs the jobs handler. A nil inspector reports no queues.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	stats := make([]QueueStats, 0, len(queuePriorities))
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"queues": stats})
		return
	}
	known, err := h.inspector.Queues()
	if err != nil {
		h.unavailable(w, "", err)
		return
	}
	for _, queue := range []string{QueueMail, QueueMaintenance} {
		// Queues appear in redis with their first task.
		if !slices.Contains(known, queue) {
			stats = append(stats, QueueStats{Queue: queue})
			continue
		}
		info, err := h.inspector.GetQueueInfo(queue)
		if err != nil {
			h.unavailable(w, queue, err)
			return
		}
		stats = append(stats, QueueStats{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Paused:    info.Paused,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queues": stats})
}

func (h *Handler) unavailable(w http.ResponseWriter, queue string, err error) {
	h.logger.Warn("jobs health", slog.String("queue", queue), slog.Any("error", err))
	httpx.Problem(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable), "queue backend unavailable")
}
