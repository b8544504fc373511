package campaign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/pushry/internal/cohort"
	"github.com/foxzi/pushry/internal/push"
	"github.com/foxzi/pushry/internal/recipients"
)

var ErrNoValidTokens = errors.New("no valid tokens to send to")

// Resolver produces the token list of a selection
type Resolver interface {
	Resolve(ctx context.Context, sel recipients.Selection) (*recipients.Resolution, error)
}

// Observer receives run level events, used for metrics
type Observer interface {
	ObserveRun(result *push.Result)
	ObserveRejected(n int)
}

// Request is one operator-composed send
type Request struct {
	Title         string               `json:"title"`
	Body          string               `json:"body"`
	Selection     recipients.Selection `json:"selection"`
	CampaignID    string               `json:"campaign_id,omitempty"`
	CampaignName  string               `json:"campaign_name,omitempty"`
	ClickAction   string               `json:"click_action,omitempty"`
	Route         string               `json:"route,omitempty"`
	Screen        string               `json:"screen,omitempty"`
	ForcePlatform string               `json:"force_platform,omitempty"`
	BatchSize     int                  `json:"batch_size,omitempty"`
	Workers       int                  `json:"workers,omitempty"`
}

// Template returns the message template of the request
func (r Request) Template() push.MessageTemplate {
	return push.MessageTemplate{Title: r.Title, Body: r.Body}
}

// Plan is a validated, resolved request ready to be executed
type Plan struct {
	Request    Request                `json:"request"`
	Config     push.DispatchConfig    `json:"config"`
	Resolution *recipients.Resolution `json:"resolution"`
}

// Runner executes send-runs end to end
type Runner struct {
	resolver    Resolver
	sender      *push.Sender
	coordinator *push.Coordinator
	history     *History
	defaults    push.DispatchConfig
	mode        string
	observer    Observer
	logger      *slog.Logger
}

// Options configures a Runner
type Options struct {
	Resolver    Resolver
	Sender      *push.Sender
	Coordinator *push.Coordinator
	History     *History
	Defaults    push.DispatchConfig
	Mode        string
	Observer    Observer
	Logger      *slog.Logger
}

func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		resolver:    opts.Resolver,
		sender:      opts.Sender,
		coordinator: opts.Coordinator,
		history:     opts.History,
		defaults:    opts.Defaults,
		mode:        opts.Mode,
		observer:    opts.Observer,
		logger:      logger,
	}
}

// Prepare validates the request and resolves its recipients. Nothing is sent.
func (r *Runner) Prepare(ctx context.Context, req Request) (*Plan, error) {
	if err := req.Template().Validate(); err != nil {
		return nil, err
	}

	cfg := r.dispatchConfig(req)
	if err := cfg.ValidateRange(); err != nil {
		return nil, err
	}

	logic, err := cohort.ParseLogic(string(req.Selection.Logic))
	if err != nil {
		return nil, err
	}
	req.Selection.Logic = logic

	res, err := r.resolver.Resolve(ctx, req.Selection)
	if err != nil {
		if errors.Is(err, recipients.ErrNoSelection) {
			return nil, push.ErrNoRecipients
		}
		return nil, err
	}

	if r.observer != nil && len(res.Rejected) > 0 {
		r.observer.ObserveRejected(len(res.Rejected))
	}
	if len(res.Tokens) == 0 {
		return &Plan{Request: req, Config: cfg, Resolution: res}, ErrNoValidTokens
	}

	return &Plan{Request: req, Config: cfg, Resolution: res}, nil
}

// Execute sends a prepared plan and records the campaign
func (r *Runner) Execute(ctx context.Context, plan *Plan, progress push.ProgressFunc) (*Report, error) {
	req := plan.Request
	cfg := plan.Config

	r.logger.Info("campaign started",
		"campaign_id", cfg.CampaignID,
		"campaign_name", cfg.CampaignName,
		"tokens", len(plan.Resolution.Tokens),
		"mode", r.mode,
	)

	result, err := r.coordinator.SendAll(ctx, plan.Resolution.Tokens, req.Template(), cfg, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to send campaign: %w", err)
	}

	if r.observer != nil {
		r.observer.ObserveRun(result)
	}

	record := Campaign{
		ID:              cfg.CampaignID,
		Name:            cfg.CampaignName,
		Title:           req.Title,
		Body:            req.Body,
		Cohorts:         req.Selection.Cohorts,
		Logic:           string(req.Selection.Logic),
		Timestamp:       time.Now(),
		TotalSent:       result.Summary.Success,
		TotalFailed:     result.Summary.Errors,
		TotalInvalid:    result.Summary.Pruned,
		Skipped:         result.Skipped,
		DurationSeconds: result.Duration.Seconds(),
		Mode:            r.mode,
	}
	if record.Cohorts == nil {
		record.Cohorts = []string{}
	}

	if r.history != nil {
		if err := r.history.Append(record); err != nil {
			r.logger.Error("failed to record campaign", "campaign_id", record.ID, "error", err)
		}
	}

	r.logger.Info("campaign finished",
		"campaign_id", record.ID,
		"sent", record.TotalSent,
		"failed", record.TotalFailed,
		"invalid", record.TotalInvalid,
		"skipped", record.Skipped,
		"duration", result.Duration,
	)

	return &Report{
		Campaign: record,
		Result:   result,
		Rejected: len(plan.Resolution.Rejected),
		Missing:  len(plan.Resolution.Missing),
	}, nil
}

// Run prepares and executes a request in one step
func (r *Runner) Run(ctx context.Context, req Request, progress push.ProgressFunc) (*Report, error) {
	plan, err := r.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, plan, progress)
}

// SendTest sends one test push to a single token
func (r *Runner) SendTest(ctx context.Context, token string, tmpl push.MessageTemplate, name string) (push.Outcome, error) {
	token = strings.TrimSpace(token)
	if err := push.ValidateToken(token); err != nil {
		return nil, err
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}

	cfg := r.defaults
	cfg.MessageType = push.TestNotification
	cfg.CampaignID = ""
	cfg.CampaignName = ""
	cfg.CohortTags = nil

	channel := push.EffectiveChannel(push.Classify(token), cfg.ForcePlatform)
	msg := push.BuildMessage(token, tmpl, name, cfg, channel)

	o := r.sender.Send(ctx, push.RecipientToken{Value: token, Channel: channel, DisplayName: name}, msg)
	r.logger.Info("test notification", "token", push.TokenPrefix(token), "channel", channel, "outcome", push.OutcomeLabel(o))
	return o, nil
}

func (r *Runner) dispatchConfig(req Request) push.DispatchConfig {
	cfg := r.defaults

	if req.BatchSize > 0 {
		cfg.BatchSize = req.BatchSize
	}
	if req.Workers > 0 {
		cfg.MaxParallelWorkers = req.Workers
	}
	if req.ClickAction != "" {
		cfg.ClickAction = req.ClickAction
	}
	if req.Route != "" {
		cfg.Route = req.Route
	}
	if req.Screen != "" {
		cfg.Screen = req.Screen
	}
	if req.ForcePlatform != "" {
		cfg.ForcePlatform = req.ForcePlatform
	}

	cfg.CampaignID = req.CampaignID
	if cfg.CampaignID == "" {
		cfg.CampaignID = uuid.New().String()
	}
	cfg.CampaignName = req.CampaignName
	if cfg.CampaignName == "" {
		cfg.CampaignName = req.Title
	}
	cfg.CohortTags = req.Selection.Cohorts

	return cfg
}
