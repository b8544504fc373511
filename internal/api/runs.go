package api

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/pushry/internal/campaign"
)

// Run states
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunCancelled = "cancelled"
	RunFailed    = "failed"
)

// maxFinishedRuns bounds how many finished runs stay queryable
const maxFinishedRuns = 100

// Run is the externally visible state of an asynchronous send-run
type Run struct {
	ID         string           `json:"id"`
	CampaignID string           `json:"campaign_id"`
	Name       string           `json:"campaign_name"`
	Status     string           `json:"status"`
	Total      int              `json:"total"`
	Completed  int              `json:"completed"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Report     *campaign.Report `json:"report,omitempty"`
	Error      string           `json:"error,omitempty"`

	cancel context.CancelFunc
}

// runRegistry tracks runs started through the API
type runRegistry struct {
	runner *campaign.Runner
	logger *slog.Logger

	base       context.Context
	cancelBase context.CancelFunc

	mu   sync.Mutex
	runs map[string]*Run
	wg   sync.WaitGroup
}

func newRunRegistry(runner *campaign.Runner, logger *slog.Logger) *runRegistry {
	base, cancel := context.WithCancel(context.Background())
	return &runRegistry{
		runner:     runner,
		logger:     logger,
		base:       base,
		cancelBase: cancel,
		runs:       make(map[string]*Run),
	}
}

// start executes plan in the background and returns a snapshot of the new run
func (rr *runRegistry) start(plan *campaign.Plan) Run {
	ctx, cancel := context.WithCancel(rr.base)

	run := &Run{
		ID:         uuid.New().String(),
		CampaignID: plan.Config.CampaignID,
		Name:       plan.Config.CampaignName,
		Status:     RunRunning,
		Total:      len(plan.Resolution.Tokens),
		StartedAt:  time.Now(),
		cancel:     cancel,
	}

	rr.mu.Lock()
	rr.runs[run.ID] = run
	snapshot := *run
	rr.mu.Unlock()

	rr.wg.Add(1)
	go func() {
		defer rr.wg.Done()
		defer cancel()

		report, err := rr.runner.Execute(ctx, plan, func(completed, total int) {
			rr.mu.Lock()
			run.Completed = completed
			rr.mu.Unlock()
		})

		now := time.Now()
		rr.mu.Lock()
		run.FinishedAt = &now
		switch {
		case err != nil:
			run.Status = RunFailed
			run.Error = err.Error()
		case report.Result.Cancelled():
			run.Status = RunCancelled
			run.Report = report
		default:
			run.Status = RunCompleted
			run.Report = report
		}
		rr.prune()
		rr.mu.Unlock()

		if err != nil {
			rr.logger.Error("run failed", "run_id", run.ID, "error", err)
		}
	}()

	return snapshot
}

// get returns a snapshot of a run
func (rr *runRegistry) get(id string) (Run, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	run, ok := rr.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// list returns snapshots of all runs, newest first
func (rr *runRegistry) list() []Run {
	rr.mu.Lock()
	out := make([]Run, 0, len(rr.runs))
	for _, run := range rr.runs {
		out = append(out, *run)
	}
	rr.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// cancel stops further batch submission of a running run. Batches already
// handed to workers still complete.
func (rr *runRegistry) cancel(id string) (Run, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	run, ok := rr.runs[id]
	if !ok {
		return Run{}, false
	}
	if run.Status == RunRunning {
		run.cancel()
		rr.logger.Info("run cancellation requested", "run_id", id)
	}
	return *run, true
}

func (rr *runRegistry) active() int {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	n := 0
	for _, run := range rr.runs {
		if run.Status == RunRunning {
			n++
		}
	}
	return n
}

// prune drops the oldest finished runs beyond maxFinishedRuns. Caller holds mu.
func (rr *runRegistry) prune() {
	var finished []*Run
	for _, run := range rr.runs {
		if run.Status != RunRunning {
			finished = append(finished, run)
		}
	}
	if len(finished) <= maxFinishedRuns {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].StartedAt.Before(finished[j].StartedAt)
	})
	for _, run := range finished[:len(finished)-maxFinishedRuns] {
		delete(rr.runs, run.ID)
	}
}

// shutdown cancels every run and waits for them to drain
func (rr *runRegistry) shutdown(ctx context.Context) error {
	rr.cancelBase()

	done := make(chan struct{})
	go func() {
		rr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
