package push

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ProgressFunc is called after each batch completes
type ProgressFunc func(completed, total int)

// Observer receives per-send and per-batch events, used for metrics
type Observer interface {
	ObserveSend(channel Channel, outcome Outcome)
	ObserveBatch(size int, duration time.Duration)
}

// Result is the aggregated outcome of one send-run
type Result struct {
	Summary Summary       `json:"summary"`
	Errors  []ErrorRecord `json:"errors"`
	Total   int           `json:"total"`
	// Skipped counts tokens never dispatched because the run was cancelled
	Skipped  int           `json:"skipped"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// Cancelled reports whether some batches were never dispatched
func (r *Result) Cancelled() bool {
	return r.Skipped > 0
}

type batch struct {
	index  int
	tokens []RecipientToken
}

type batchResult struct {
	summary Summary
	errors  []ErrorRecord
	size    int
}

// Coordinator fans a token list out over a bounded pool of batch workers
type Coordinator struct {
	sender   *Sender
	observer Observer
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator. observer may be nil.
func NewCoordinator(sender *Sender, observer Observer, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{
		sender:   sender,
		observer: observer,
		logger:   logger,
	}
}

// SendAll partitions tokens into batches and runs them on MaxParallelWorkers workers.
// Results are merged in completion order on the calling goroutine. Cancelling ctx stops
// further batch submission; batches already handed to a worker run to completion.
func (c *Coordinator) SendAll(ctx context.Context, tokens []RecipientToken, tmpl MessageTemplate, cfg DispatchConfig, progress ProgressFunc) (*Result, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrNoRecipients
	}

	start := time.Now()
	batches := partition(tokens, cfg.BatchSize)
	workers := cfg.MaxParallelWorkers
	if workers > len(batches) {
		workers = len(batches)
	}

	c.logger.Info("dispatch started",
		"tokens", len(tokens),
		"batches", len(batches),
		"workers", workers,
		"campaign_id", cfg.CampaignID,
	)

	jobs := make(chan batch)
	results := make(chan batchResult, len(batches))

	// Workers keep running after cancellation so in-flight batches drain
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				results <- c.runBatch(workCtx, b, tmpl, cfg)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, b := range batches {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	res := &Result{Total: len(tokens)}
	completed := 0
	for r := range results {
		res.Summary.Merge(r.summary)
		res.Errors = append(res.Errors, r.errors...)
		res.Batches++
		completed += r.size
		if progress != nil {
			progress(completed, len(tokens))
		}
	}

	res.Skipped = len(tokens) - completed
	res.Duration = time.Since(start)

	c.logger.Info("dispatch finished",
		"success", res.Summary.Success,
		"errors", res.Summary.Errors,
		"invalid", res.Summary.Pruned,
		"skipped", res.Skipped,
		"duration", res.Duration,
	)

	return res, nil
}

// runBatch sends a batch strictly in order. Its summary is never shared.
func (c *Coordinator) runBatch(ctx context.Context, b batch, tmpl MessageTemplate, cfg DispatchConfig) batchResult {
	start := time.Now()
	out := batchResult{size: len(b.tokens)}

	for _, tok := range b.tokens {
		channel := EffectiveChannel(tok.Channel, cfg.ForcePlatform)
		o := c.sendOne(ctx, tok, channel, tmpl, cfg)
		out.summary.record(o, channel)

		switch v := o.(type) {
		case TransientError:
			out.errors = append(out.errors, ErrorRecord{Token: tok.Value, Message: v.Message})
		case InvalidToken:
			out.errors = append(out.errors, ErrorRecord{Token: tok.Value, Message: v.Message, Invalid: true})
		}

		if c.observer != nil {
			c.observer.ObserveSend(channel, o)
		}

		pause(ctx, cfg.Pace)
	}

	if c.observer != nil {
		c.observer.ObserveBatch(len(b.tokens), time.Since(start))
	}
	c.logger.Debug("batch done", "batch", b.index, "size", len(b.tokens), "success", out.summary.Success)
	return out
}

// pause sleeps for d after a send, returning early when ctx is done
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// sendOne builds and sends one message. Panics while building are contained too.
func (c *Coordinator) sendOne(ctx context.Context, tok RecipientToken, channel Channel, tmpl MessageTemplate, cfg DispatchConfig) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("send panic", "token", TokenPrefix(tok.Value), "panic", r)
			o = TransientError{Message: "unexpected error while building message"}
		}
	}()

	msg := BuildMessage(tok.Value, tmpl, tok.DisplayName, cfg, channel)
	sent := tok
	sent.Channel = channel
	return c.sender.Send(ctx, sent, msg)
}

func partition(tokens []RecipientToken, size int) []batch {
	batches := make([]batch, 0, (len(tokens)+size-1)/size)
	for i := 0; i < len(tokens); i += size {
		end := i + size
		if end > len(tokens) {
			end = len(tokens)
		}
		batches = append(batches, batch{index: len(batches), tokens: tokens[i:end]})
	}
	return batches
}
