package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/pushry/internal/campaign"
	"github.com/foxzi/pushry/internal/directory"
)

// Cohort Handlers

// CohortRequest is the request body for creating or replacing a cohort
type CohortRequest struct {
	Name      string   `json:"name,omitempty"`
	MemberIDs []string `json:"member_ids"`
}

// CohortSummary is a cohort without its member list
type CohortSummary struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// handleCohortsList handles GET /api/v1/cohorts
func (s *Server) handleCohortsList(w http.ResponseWriter, r *http.Request) {
	cohorts, err := s.opts.Cohorts.List()
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	out := make([]CohortSummary, len(cohorts))
	for i, c := range cohorts {
		out[i] = CohortSummary{Name: c.Name, Members: len(c.MemberIDs)}
	}
	sendJSON(w, http.StatusOK, map[string]any{"cohorts": out})
}

// handleCohortsCreate handles POST /api/v1/cohorts
func (s *Server) handleCohortsCreate(w http.ResponseWriter, r *http.Request) {
	var req CohortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := s.opts.Cohorts.Create(req.Name, req.MemberIDs)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.logger.Info("cohort created via API", "cohort", c.Name, "members", len(c.MemberIDs))
	sendJSON(w, http.StatusCreated, c)
}

// handleCohortsGet handles GET /api/v1/cohorts/{name}
func (s *Server) handleCohortsGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.opts.Cohorts.Get(chi.URLParam(r, "name"))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, c)
}

// handleCohortsUpdate handles PUT /api/v1/cohorts/{name}. The member list is replaced.
func (s *Server) handleCohortsUpdate(w http.ResponseWriter, r *http.Request) {
	var req CohortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := s.opts.Cohorts.Update(chi.URLParam(r, "name"), req.MemberIDs)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.logger.Info("cohort updated via API", "cohort", c.Name, "members", len(c.MemberIDs))
	sendJSON(w, http.StatusOK, c)
}

// handleCohortsDelete handles DELETE /api/v1/cohorts/{name}
func (s *Server) handleCohortsDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.opts.Cohorts.Delete(name); err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.logger.Info("cohort deleted via API", "cohort", name)
	w.WriteHeader(http.StatusNoContent)
}

// Campaign Handlers

// handleCampaignsList handles GET /api/v1/campaigns
func (s *Server) handleCampaignsList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	campaigns, err := s.opts.History.List(limit)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	if campaigns == nil {
		campaigns = []campaign.Campaign{}
	}
	sendJSON(w, http.StatusOK, map[string]any{"campaigns": campaigns})
}

// handleCampaignsGet handles GET /api/v1/campaigns/{id}
func (s *Server) handleCampaignsGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.opts.History.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	if c == nil {
		sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	sendJSON(w, http.StatusOK, c)
}

// Agent Handlers

// AgentsListResponse is the response for GET /api/v1/agents
type AgentsListResponse struct {
	Agents []directory.Agent `json:"agents"`
	Total  int               `json:"total"`
}

// handleAgentsList handles GET /api/v1/agents
func (s *Server) handleAgentsList(w http.ResponseWriter, r *http.Request) {
	filter := directory.Filter{
		Search: r.URL.Query().Get("search"),
		Limit:  min(queryInt(r, "limit", 100), 1000),
		Offset: queryInt(r, "offset", 0),
	}

	agents, total, err := s.opts.Agents.List(r.Context(), filter)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	if agents == nil {
		agents = []directory.Agent{}
	}
	sendJSON(w, http.StatusOK, AgentsListResponse{Agents: agents, Total: total})
}

// handleAgentsGet handles GET /api/v1/agents/{id}
func (s *Server) handleAgentsGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.opts.Agents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	if a == nil {
		sendError(w, http.StatusNotFound, "Agent not found")
		return
	}
	sendJSON(w, http.StatusOK, a)
}

// queryInt reads a non-negative integer query parameter
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
