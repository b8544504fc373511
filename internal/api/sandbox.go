package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/pushry/internal/sandbox"
)

// sandboxHandler exposes captured sandbox messages
type sandboxHandler struct {
	storage *sandbox.Storage
	logger  *slog.Logger
}

func newSandboxHandler(storage *sandbox.Storage, logger *slog.Logger) *sandboxHandler {
	return &sandboxHandler{storage: storage, logger: logger}
}

// RegisterRoutes registers sandbox API routes
func (h *sandboxHandler) RegisterRoutes(r chi.Router) {
	r.Route("/sandbox", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Delete("/", h.handleClear)
		r.Get("/stats", h.handleStats)
		r.Get("/{id}", h.handleGet)
	})
}

// SandboxListResponse is the response for GET /api/v1/sandbox
type SandboxListResponse struct {
	Messages []*sandbox.Message `json:"messages"`
	Total    int                `json:"total"`
}

// handleList handles GET /api/v1/sandbox
func (h *sandboxHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := sandbox.ListFilter{
		CampaignID: q.Get("campaign_id"),
		Platform:   q.Get("platform"),
		FailedOnly: q.Get("failed") == "true",
		Limit:      100,
	}

	if limit := q.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = min(l, 1000)
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = min(o, 1000000)
		}
	}

	messages, err := h.storage.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list sandbox messages", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []*sandbox.Message{}
	}

	sendJSON(w, http.StatusOK, SandboxListResponse{Messages: messages, Total: len(messages)})
}

// handleGet handles GET /api/v1/sandbox/{id}
func (h *sandboxHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	msg, err := h.storage.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("failed to get sandbox message", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to get message")
		return
	}
	if msg == nil {
		sendError(w, http.StatusNotFound, "Message not found")
		return
	}
	sendJSON(w, http.StatusOK, msg)
}

// handleClear handles DELETE /api/v1/sandbox
func (h *sandboxHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	var olderThan time.Duration
	if s := r.URL.Query().Get("older_than"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			sendError(w, http.StatusBadRequest, "Invalid older_than format (use Go duration: 24h)")
			return
		}
		olderThan = d
	}

	count, err := h.storage.Clear(r.Context(), r.URL.Query().Get("campaign_id"), olderThan)
	if err != nil {
		h.logger.Error("failed to clear sandbox", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to clear messages")
		return
	}

	sendJSON(w, http.StatusOK, map[string]int{"cleared": count})
}

// handleStats handles GET /api/v1/sandbox/stats
func (h *sandboxHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.storage.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get sandbox stats", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}
	sendJSON(w, http.StatusOK, stats)
}
