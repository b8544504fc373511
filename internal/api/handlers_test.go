package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/pushry/internal/campaign"
	"github.com/foxzi/pushry/internal/cohort"
	"github.com/foxzi/pushry/internal/config"
	"github.com/foxzi/pushry/internal/directory"
	"github.com/foxzi/pushry/internal/push"
	"github.com/foxzi/pushry/internal/recipients"
)

// mockTransport delivers everything, optionally holding sends until gate closes
type mockTransport struct {
	mu      sync.Mutex
	sent    int
	gate    chan struct{}
	entered chan struct{}
}

func (m *mockTransport) Send(ctx context.Context, msg *push.Message) (string, error) {
	if m.entered != nil {
		select {
		case m.entered <- struct{}{}:
		default:
		}
	}
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	return fmt.Sprintf("projects/demo/messages/%d", m.sent), nil
}

// mockDirectory implements recipients.Directory and AgentStore
type mockDirectory struct {
	agents map[string]directory.Agent
	order  []string
}

func newMockDirectory(n int) *mockDirectory {
	d := &mockDirectory{agents: make(map[string]directory.Agent)}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("cp%03d", i)
		d.agents[id] = directory.Agent{
			ID:     id,
			Name:   "Agent Smith",
			Tokens: []string{fmt.Sprintf("fcm-token-%03d-abcdefghij", i)},
		}
		d.order = append(d.order, id)
	}
	return d
}

func (d *mockDirectory) Query(ctx context.Context, ids []string) ([]directory.Agent, error) {
	var out []directory.Agent
	for _, id := range ids {
		if a, ok := d.agents[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *mockDirectory) AllIDs(ctx context.Context) ([]string, error) {
	return d.order, nil
}

func (d *mockDirectory) Get(ctx context.Context, id string) (*directory.Agent, error) {
	if a, ok := d.agents[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (d *mockDirectory) List(ctx context.Context, filter directory.Filter) ([]directory.Agent, int, error) {
	var out []directory.Agent
	for _, id := range d.order {
		out = append(out, d.agents[id])
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, len(d.order), nil
}

type testEnv struct {
	server    *Server
	transport *mockTransport
	cohorts   *cohort.Store
	history   *campaign.History
}

func setupTestServer(t *testing.T, cfg *config.APIConfig, tr *mockTransport) *testEnv {
	t.Helper()
	if tr == nil {
		tr = &mockTransport{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	dirStore := newMockDirectory(150)
	cohorts := cohort.NewStore(filepath.Join(dir, "cohorts.json"))
	history := campaign.NewHistory(filepath.Join(dir, "campaigns.json"))
	sender := push.NewSender(tr, logger)

	runner := campaign.NewRunner(campaign.Options{
		Resolver:    recipients.NewResolver(dirStore, cohorts, logger),
		Sender:      sender,
		Coordinator: push.NewCoordinator(sender, nil, logger),
		History:     history,
		Defaults:    push.DispatchConfig{BatchSize: 50, MaxParallelWorkers: 1},
		Mode:        config.ModeProduction,
		Logger:      logger,
	})

	if cfg == nil {
		cfg = &config.APIConfig{ListenAddr: ":8080"}
	}
	server := NewServer(Options{
		Runner:  runner,
		History: history,
		Cohorts: cohorts,
		Agents:  dirStore,
		Mode:    config.ModeProduction,
		Version: "test",
	}, cfg, logger)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	return &testEnv{server: server, transport: tr, cohorts: cohorts, history: history}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func waitForRun(t *testing.T, e *testEnv, id string) Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, ok := e.server.runs.get(id)
		if !ok {
			t.Fatalf("run %s not found", id)
		}
		if run.Status != RunRunning {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", id)
	return Run{}
}

func TestHealthEndpoint(t *testing.T) {
	e := setupTestServer(t, nil, nil)

	w := e.do(t, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Mode != config.ModeProduction {
		t.Errorf("unexpected health: %+v", resp)
	}
}

func TestSendEndpoint(t *testing.T) {
	e := setupTestServer(t, nil, nil)

	body := `{"title": "Hi {firstname}", "body": "Offer for {name}", "selection": {"all": true}}`
	w := e.do(t, "POST", "/api/v1/send", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	var resp SendResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.RunID == "" || resp.CampaignID == "" {
		t.Errorf("ids should be set: %+v", resp)
	}
	if resp.Tokens != 150 {
		t.Errorf("Tokens = %d, want 150", resp.Tokens)
	}

	run := waitForRun(t, e, resp.RunID)
	if run.Status != RunCompleted {
		t.Fatalf("run status = %s (%s)", run.Status, run.Error)
	}
	if run.Completed != 150 || run.Report.Result.Summary.Success != 150 {
		t.Errorf("unexpected run: completed=%d summary=%+v", run.Completed, run.Report.Result.Summary)
	}

	w = e.do(t, "GET", "/api/v1/runs/"+resp.RunID, "")
	if w.Code != http.StatusOK {
		t.Errorf("GET run status = %d", w.Code)
	}

	list, _ := e.history.List(0)
	if len(list) != 1 || list[0].ID != resp.CampaignID || list[0].TotalSent != 150 {
		t.Errorf("campaign not recorded: %+v", list)
	}
}

func TestSendEndpointValidation(t *testing.T) {
	e := setupTestServer(t, nil, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{invalid}`, http.StatusBadRequest},
		{"missing title", `{"body":"b","selection":{"all":true}}`, http.StatusBadRequest},
		{"missing body", `{"title":"t","selection":{"all":true}}`, http.StatusBadRequest},
		{"no recipients", `{"title":"t","body":"b"}`, http.StatusBadRequest},
		{"batch too small", `{"title":"t","body":"b","batch_size":5,"selection":{"all":true}}`, http.StatusBadRequest},
		{"bad logic", `{"title":"t","body":"b","selection":{"cohorts":["x"],"logic":"XOR"}}`, http.StatusBadRequest},
		{"unknown cohort", `{"title":"t","body":"b","selection":{"cohorts":["missing"]}}`, http.StatusNotFound},
		{"unknown agents only", `{"title":"t","body":"b","selection":{"ids":["nobody"]}}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, "POST", "/api/v1/send", tt.body)
			if w.Code != tt.want {
				t.Errorf("Status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	if e.server.runs.active() != 0 || len(e.server.runs.list()) != 0 {
		t.Error("rejected requests must not start runs")
	}
}

func TestRunCancel(t *testing.T) {
	tr := &mockTransport{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	e := setupTestServer(t, nil, tr)
	released := false
	release := func() {
		if !released {
			close(tr.gate)
			released = true
		}
	}
	t.Cleanup(release)

	w := e.do(t, "POST", "/api/v1/send", `{"title":"t","body":"b","selection":{"all":true}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("send status = %d: %s", w.Code, w.Body.String())
	}
	var resp SendResponse
	json.NewDecoder(w.Body).Decode(&resp)

	// first batch is in flight
	<-tr.entered

	if e.server.ActiveRuns() != 1 {
		t.Errorf("ActiveRuns() = %d, want 1", e.server.ActiveRuns())
	}

	w = e.do(t, "DELETE", "/api/v1/runs/"+resp.RunID, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d", w.Code)
	}

	release()
	run := waitForRun(t, e, resp.RunID)
	if run.Status != RunCancelled {
		t.Fatalf("status = %s, want cancelled", run.Status)
	}
	// the in-flight batch drains, the remaining two are never submitted
	if run.Report.Result.Skipped != 100 || run.Report.Result.Summary.Success != 50 {
		t.Errorf("unexpected result: skipped=%d success=%d", run.Report.Result.Skipped, run.Report.Result.Summary.Success)
	}

	w = e.do(t, "DELETE", "/api/v1/runs/"+resp.RunID, "")
	if w.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", w.Code)
	}
	if w = e.do(t, "DELETE", "/api/v1/runs/unknown", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d", w.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	e := setupTestServer(t, nil, nil)
	if _, err := e.cohorts.Create("north", []string{"cp001", "cp002", "ghost"}); err != nil {
		t.Fatal(err)
	}

	w := e.do(t, "POST", "/api/v1/preview", `{"title":"Hi {firstname}","body":"Offer for {name}","selection":{"cohorts":["north"]}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d: %s", w.Code, w.Body.String())
	}

	var resp PreviewResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Title != "Hi Agent" || resp.Body != "Offer for Agent Smith" {
		t.Errorf("unexpected personalization: %q / %q", resp.Title, resp.Body)
	}
	if resp.Agents != 3 || resp.Tokens != 2 || len(resp.Missing) != 1 {
		t.Errorf("unexpected counts: %+v", resp)
	}
	total := 0
	for _, n := range resp.ByChannel {
		total += n
	}
	if total != 2 {
		t.Errorf("unexpected channel split: %v", resp.ByChannel)
	}
	if e.transport.sent != 0 {
		t.Error("preview must not send")
	}
}

func TestTestEndpoint(t *testing.T) {
	e := setupTestServer(t, nil, nil)

	w := e.do(t, "POST", "/api/v1/test", `{"token":"fcm-token-test-abcdefghij","title":"Test","body":"Hello {name}","name":"Ravi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d: %s", w.Code, w.Body.String())
	}
	var resp TestResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Outcome != "delivered" || resp.ReceiptID == "" {
		t.Errorf("unexpected response: %+v", resp)
	}

	if w = e.do(t, "POST", "/api/v1/test", `{"token":"short","title":"t","body":"b"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid token status = %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		cfg    config.APIConfig
		header string
		value  string
		want   int
	}{
		{"no key configured", config.APIConfig{}, "", "", http.StatusOK},
		{"no auth", config.APIConfig{APIKey: "secret-key"}, "", "", http.StatusUnauthorized},
		{"wrong key", config.APIConfig{APIKey: "secret-key"}, "Authorization", "Bearer wrong-key", http.StatusUnauthorized},
		{"correct key", config.APIConfig{APIKey: "secret-key"}, "Authorization", "Bearer secret-key", http.StatusOK},
		{"x-api-key header", config.APIConfig{APIKey: "secret-key"}, "X-API-Key", "secret-key", http.StatusOK},
		{"bcrypt hash", config.APIConfig{APIKeyHash: string(hash)}, "Authorization", "Bearer hashed-key", http.StatusOK},
		{"bcrypt hash mismatch", config.APIConfig{APIKeyHash: string(hash)}, "X-API-Key", "other", http.StatusUnauthorized},
		{"ip filter", config.APIConfig{AllowedIPs: []string{"10.0.0.0/8"}}, "", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			e := setupTestServer(t, &cfg, nil)

			req := httptest.NewRequest("GET", "/api/v1/cohorts", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			e.server.Handler().ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
