package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/fileops/internal/progress"
	"github.com/JakeFAU/fileops/internal/store"
)

const (
	defaultOperationLimit = 50
	maxOperationLimit     = 500
	historyTimeout        = 3 * time.Second
)

// HistoryHandler exposes read-only operation history endpoints.
type HistoryHandler struct {
	repo    store.HistoryRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewHistoryHandler wires the repository and logger.
func NewHistoryHandler(repo store.HistoryRepository, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{
		repo:    repo,
		timeout: historyTimeout,
		logger:  logger,
	}
}

// ListOperations handles GET /v1/operations?status=&kind=&limit=&offset=. It
// returns {"operations": [...]} newest first, 400 for invalid filters, 503
// when no repository is configured, or 500 if the repository call fails.
func (h *HistoryHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "operation history unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultOperationLimit, maxOperationLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	records, err := h.repo.List(ctx, filter, limit, offset)
	if err != nil {
		h.logger.Error("list operations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list operations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"operations": toOperationDTOs(records),
	})
}

// GetOperation handles GET /v1/operations/{operation_id}. It returns
// {"operation": {...}}, 404 when the id is unknown, or 500 otherwise.
func (h *HistoryHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "operation history unavailable")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "operation_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "operation_id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "operation not found")
			return
		}
		h.logger.Error("get operation failed", zap.String("operation_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load operation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operation": toOperationDTO(rec)})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseFilter(r *http.Request) (store.Filter, error) {
	var filter store.Filter
	q := r.URL.Query()
	if raw := strings.ToLower(strings.TrimSpace(q.Get("status"))); raw != "" {
		status, err := store.ParseStatus(raw)
		if err != nil {
			return store.Filter{}, errors.New("invalid status")
		}
		filter.Status = status
	}
	if raw := strings.ToLower(strings.TrimSpace(q.Get("kind"))); raw != "" {
		kind, err := progress.ParseKind(raw)
		if err != nil {
			return store.Filter{}, errors.New("invalid kind")
		}
		filter.Kind = kind
	}
	return filter, nil
}

func toOperationDTOs(in []store.OperationRecord) []operationDTO {
	out := make([]operationDTO, 0, len(in))
	for _, rec := range in {
		out = append(out, toOperationDTO(rec))
	}
	return out
}

func toOperationDTO(rec store.OperationRecord) operationDTO {
	return operationDTO{
		ID:         rec.ID,
		Kind:       string(rec.Kind),
		Status:     string(rec.Status),
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		Items:      rec.Counters.Items,
		Succeeded:  rec.Counters.Succeeded,
		Failed:     rec.Counters.Failed,
		Error:      rec.Error,
		ReportURI:  rec.ReportURI,
	}
}

type operationDTO struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Items      int        `json:"items"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
	ReportURI  string     `json:"report_uri,omitempty"`
}
