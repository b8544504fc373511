package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/pushry/internal/campaign"
	"github.com/foxzi/pushry/internal/cohort"
	"github.com/foxzi/pushry/internal/push"
)

// SendResponse is the response for POST /api/v1/send
type SendResponse struct {
	RunID      string `json:"run_id"`
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
	Tokens     int    `json:"tokens"`
	Rejected   int    `json:"rejected"`
	Missing    int    `json:"missing"`
}

// PreviewResponse is the response for POST /api/v1/preview
type PreviewResponse struct {
	Title      string               `json:"title"`
	Body       string               `json:"body"`
	Agents     int                  `json:"agents"`
	Tokens     int                  `json:"tokens"`
	ByChannel  map[push.Channel]int `json:"by_channel"`
	Rejected   []string             `json:"rejected,omitempty"`
	Missing    []string             `json:"missing,omitempty"`
	Duplicates int                  `json:"duplicates"`
}

// TestRequest is the request body for POST /api/v1/test
type TestRequest struct {
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Name  string `json:"name,omitempty"`
}

// TestResponse is the response for POST /api/v1/test
type TestResponse struct {
	Outcome   string `json:"outcome"`
	ReceiptID string `json:"receipt_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Mode       string `json:"mode"`
	Uptime     string `json:"uptime"`
	ActiveRuns int    `json:"active_runs"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Version:    s.opts.Version,
		Mode:       s.opts.Mode,
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		ActiveRuns: s.runs.active(),
	})
}

// handleSend handles POST /api/v1/send. The run continues after the
// response; progress is polled through /runs/{id}.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req campaign.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	plan, err := s.opts.Runner.Prepare(r.Context(), req)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	run := s.runs.start(plan)

	s.logger.Info("run started via API",
		"run_id", run.ID,
		"campaign_id", run.CampaignID,
		"tokens", run.Total,
	)

	sendJSON(w, http.StatusAccepted, SendResponse{
		RunID:      run.ID,
		CampaignID: run.CampaignID,
		Status:     run.Status,
		Tokens:     run.Total,
		Rejected:   len(plan.Resolution.Rejected),
		Missing:    len(plan.Resolution.Missing),
	})
}

// handlePreview handles POST /api/v1/preview. It validates and resolves a
// request without sending anything.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req campaign.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	plan, err := s.opts.Runner.Prepare(r.Context(), req)
	if err != nil && !errors.Is(err, campaign.ErrNoValidTokens) {
		s.sendDomainError(w, err)
		return
	}

	res := plan.Resolution
	resp := PreviewResponse{
		Title:      req.Title,
		Body:       req.Body,
		Agents:     len(res.AgentIDs),
		Tokens:     len(res.Tokens),
		ByChannel:  make(map[push.Channel]int),
		Missing:    res.Missing,
		Duplicates: res.Duplicates,
	}
	if len(res.Tokens) > 0 {
		name := res.Tokens[0].DisplayName
		resp.Title = push.Personalize(req.Title, name)
		resp.Body = push.Personalize(req.Body, name)
	}
	for _, t := range res.Tokens {
		resp.ByChannel[push.EffectiveChannel(t.Channel, plan.Config.ForcePlatform)]++
	}
	for _, t := range res.Rejected {
		resp.Rejected = append(resp.Rejected, t.Identity+": "+push.TokenPrefix(t.Value))
	}

	sendJSON(w, http.StatusOK, resp)
}

// handleTest handles POST /api/v1/test
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	var req TestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	o, err := s.opts.Runner.SendTest(r.Context(), req.Token, push.MessageTemplate{Title: req.Title, Body: req.Body}, req.Name)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	resp := TestResponse{Outcome: push.OutcomeLabel(o)}
	switch v := o.(type) {
	case push.Delivered:
		resp.ReceiptID = v.ReceiptID
	case push.TransientError:
		resp.Message = v.Message
	case push.InvalidToken:
		resp.Message = v.Message
	}
	sendJSON(w, http.StatusOK, resp)
}

// handleRunsList handles GET /api/v1/runs
func (s *Server) handleRunsList(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{"runs": s.runs.list()})
}

// handleRunGet handles GET /api/v1/runs/{id}
func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		sendError(w, http.StatusNotFound, "Run not found")
		return
	}
	sendJSON(w, http.StatusOK, run)
}

// handleRunCancel handles DELETE /api/v1/runs/{id}
func (s *Server) handleRunCancel(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.cancel(chi.URLParam(r, "id"))
	if !ok {
		sendError(w, http.StatusNotFound, "Run not found")
		return
	}
	if run.Status != RunRunning {
		sendError(w, http.StatusConflict, "Run already finished")
		return
	}
	sendJSON(w, http.StatusAccepted, map[string]string{
		"status":  "cancelling",
		"message": "No further batches will be submitted",
	})
}

// sendDomainError maps validation and lookup errors to HTTP statuses
func (s *Server) sendDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, push.ErrEmptyTitle),
		errors.Is(err, push.ErrEmptyBody),
		errors.Is(err, push.ErrTitleTooLong),
		errors.Is(err, push.ErrBodyTooLong),
		errors.Is(err, push.ErrInvalidConfig),
		errors.Is(err, push.ErrInvalidToken),
		errors.Is(err, push.ErrNoRecipients),
		errors.Is(err, cohort.ErrInvalidLogic),
		errors.Is(err, cohort.ErrInvalidName):
		sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, campaign.ErrNoValidTokens):
		sendError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, cohort.ErrNotFound):
		sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, cohort.ErrExists):
		sendError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		sendError(w, http.StatusInternalServerError, "Internal error")
	}
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{Error: message})
}
