package campaign

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/foxzi/pushry/internal/cohort"
	"github.com/foxzi/pushry/internal/push"
	"github.com/foxzi/pushry/internal/recipients"
)

// mockTransport fails tokens listed in failures
type mockTransport struct {
	mu       sync.Mutex
	sent     []*push.Message
	failures map[string]error
}

func (m *mockTransport) Send(ctx context.Context, msg *push.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[msg.Token]; ok {
		return "", err
	}
	m.sent = append(m.sent, msg)
	return "ok", nil
}

type mockResolver struct {
	res *recipients.Resolution
	err error
	got recipients.Selection
}

func (m *mockResolver) Resolve(ctx context.Context, sel recipients.Selection) (*recipients.Resolution, error) {
	m.got = sel
	return m.res, m.err
}

type mockObserver struct {
	runs     int
	rejected int
}

func (m *mockObserver) ObserveRun(*push.Result) { m.runs++ }
func (m *mockObserver) ObserveRejected(n int)   { m.rejected += n }

func tokens(n int) []push.RecipientToken {
	out := make([]push.RecipientToken, n)
	for i := range out {
		v := fmt.Sprintf("token-%03d-abcdefgh", i)
		out[i] = push.RecipientToken{Identity: fmt.Sprintf("cp%d", i), Value: v, Channel: push.Classify(v), DisplayName: "Agent Smith"}
	}
	return out
}

var defaults = push.DispatchConfig{BatchSize: 50, MaxParallelWorkers: 4}

func newTestRunner(t *testing.T, tr push.Transport, res *mockResolver, obs Observer) (*Runner, *History) {
	t.Helper()
	sender := push.NewSender(tr, nil)
	history := NewHistory(filepath.Join(t.TempDir(), "campaigns.json"))
	r := NewRunner(Options{
		Resolver:    res,
		Sender:      sender,
		Coordinator: push.NewCoordinator(sender, nil, nil),
		History:     history,
		Defaults:    defaults,
		Mode:        "production",
		Observer:    obs,
	})
	return r, history
}

func TestRunRecordsCampaign(t *testing.T) {
	toks := tokens(120)
	tr := &mockTransport{failures: map[string]error{
		toks[3].Value:  &push.TransportError{Code: "UNREGISTERED", StatusCode: 404, Message: "not found"},
		toks[10].Value: errors.New("timeout"),
	}}
	res := &mockResolver{res: &recipients.Resolution{
		Tokens:   toks,
		Rejected: []push.RecipientToken{{Value: "bad"}},
	}}
	obs := &mockObserver{}
	r, history := newTestRunner(t, tr, res, obs)

	req := Request{
		Title:     "Hi {firstname}",
		Body:      "Offer for {name}",
		Selection: recipients.Selection{Cohorts: []string{"gold", "north"}, Logic: "AND"},
	}

	report, err := r.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	s := report.Result.Summary
	if s.Success != 118 || s.Pruned != 1 || s.Errors != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if report.Rejected != 1 {
		t.Errorf("rejected = %d", report.Rejected)
	}
	if obs.runs != 1 || obs.rejected != 1 {
		t.Errorf("observer runs=%d rejected=%d", obs.runs, obs.rejected)
	}

	list, err := history.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 campaign, got %d", len(list))
	}
	c := list[0]
	if c.ID == "" || c.Name != "Hi {firstname}" {
		t.Errorf("unexpected id/name: %q %q", c.ID, c.Name)
	}
	if c.TotalSent != 118 || c.TotalFailed != 1 || c.TotalInvalid != 1 {
		t.Errorf("unexpected totals: %+v", c)
	}
	if c.Logic != "AND" || strings.Join(c.Cohorts, ",") != "gold,north" {
		t.Errorf("unexpected cohorts: %v %s", c.Cohorts, c.Logic)
	}

	// cohort tags and campaign id reach the payload
	msg := tr.sent[0]
	if msg.Data["cohorts"] != "gold,north" || msg.Data["campaign_id"] != c.ID {
		t.Errorf("unexpected data block: %v", msg.Data)
	}
	if msg.Notification.Title != "Hi Agent" {
		t.Errorf("title = %q", msg.Notification.Title)
	}
}

func TestRunRecordsDefaultLogic(t *testing.T) {
	tr := &mockTransport{}
	res := &mockResolver{res: &recipients.Resolution{
		Tokens: []push.RecipientToken{{Value: "tok-a", Channel: push.ChannelAndroid}},
	}}
	r, history := newTestRunner(t, tr, res, nil)

	if _, err := r.Run(context.Background(), Request{Title: "t", Body: "b", Selection: recipients.Selection{All: true}}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.got.Logic != cohort.LogicOR {
		t.Errorf("resolver got logic %q, want OR", res.got.Logic)
	}

	list, err := history.List(0)
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %d campaigns, %v", len(list), err)
	}
	if list[0].Logic != "OR" || len(list[0].Cohorts) != 0 {
		t.Errorf("campaign logic = %q cohorts = %v, want OR and none", list[0].Logic, list[0].Cohorts)
	}
}

func TestPrepareValidation(t *testing.T) {
	res := &mockResolver{res: &recipients.Resolution{Tokens: tokens(1)}}
	r, history := newTestRunner(t, &mockTransport{}, res, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		err  error
	}{
		{"empty title", Request{Body: "b"}, push.ErrEmptyTitle},
		{"empty body", Request{Title: "t"}, push.ErrEmptyBody},
		{"long body", Request{Title: "t", Body: strings.Repeat("x", 501)}, push.ErrBodyTooLong},
		{"batch too small", Request{Title: "t", Body: "b", BatchSize: 10}, push.ErrInvalidConfig},
		{"too many workers", Request{Title: "t", Body: "b", Workers: 21}, push.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Prepare(ctx, tt.req); !errors.Is(err, tt.err) {
				t.Errorf("Prepare() error = %v, want %v", err, tt.err)
			}
		})
	}

	if list, _ := history.List(0); len(list) != 0 {
		t.Errorf("nothing should be recorded for rejected requests, got %d", len(list))
	}
}

func TestPrepareNoRecipients(t *testing.T) {
	res := &mockResolver{err: recipients.ErrNoSelection}
	r, _ := newTestRunner(t, &mockTransport{}, res, nil)

	if _, err := r.Prepare(context.Background(), Request{Title: "t", Body: "b"}); !errors.Is(err, push.ErrNoRecipients) {
		t.Errorf("expected ErrNoRecipients, got %v", err)
	}
}

func TestPrepareAllRejected(t *testing.T) {
	res := &mockResolver{res: &recipients.Resolution{Rejected: []push.RecipientToken{{Value: "bad"}}}}
	r, _ := newTestRunner(t, &mockTransport{}, res, nil)

	plan, err := r.Prepare(context.Background(), Request{Title: "t", Body: "b"})
	if !errors.Is(err, ErrNoValidTokens) {
		t.Fatalf("expected ErrNoValidTokens, got %v", err)
	}
	if plan == nil || len(plan.Resolution.Rejected) != 1 {
		t.Error("plan with rejected tokens should still be returned")
	}
}

func TestSendTest(t *testing.T) {
	tr := &mockTransport{}
	r, history := newTestRunner(t, tr, &mockResolver{}, nil)

	o, err := r.SendTest(context.Background(), "APA91-test-token", push.MessageTemplate{Title: "Test", Body: "Hello {name}"}, "Ravi")
	if err != nil {
		t.Fatalf("SendTest() error = %v", err)
	}
	if _, ok := o.(push.Delivered); !ok {
		t.Fatalf("expected Delivered, got %#v", o)
	}

	msg := tr.sent[0]
	if msg.Data["type"] != push.TestNotification || msg.Android.CollapseKey != push.TestNotification {
		t.Errorf("test marker missing: %v", msg.Data)
	}
	if msg.Notification.Body != "Hello Ravi" {
		t.Errorf("body = %q", msg.Notification.Body)
	}
	if list, _ := history.List(0); len(list) != 0 {
		t.Error("test sends must not be recorded as campaigns")
	}

	if _, err := r.SendTest(context.Background(), "short", push.MessageTemplate{Title: "t", Body: "b"}, ""); !errors.Is(err, push.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestReportWrite(t *testing.T) {
	var errs []push.ErrorRecord
	for i := 0; i < 25; i++ {
		errs = append(errs, push.ErrorRecord{Token: fmt.Sprintf("token-%02d-xxxx", i), Message: "boom"})
	}
	report := &Report{
		Campaign: Campaign{ID: "c1", Name: "Promo"},
		Result: &push.Result{
			Summary: push.Summary{Success: 75, AndroidSuccess: 75, Errors: 25},
			Errors:  errs,
			Total:   100,
		},
	}

	if rate := report.SuccessRate(); rate != 75 {
		t.Errorf("SuccessRate() = %v", rate)
	}

	var buf bytes.Buffer
	report.Write(&buf, false)
	out := buf.String()
	if strings.Count(out, ": boom") != PreviewErrors {
		t.Errorf("expected %d error lines, got %d", PreviewErrors, strings.Count(out, ": boom"))
	}
	if !strings.Contains(out, "and 5 more") {
		t.Errorf("missing overflow hint:\n%s", out)
	}

	buf.Reset()
	report.Write(&buf, true)
	if strings.Count(buf.String(), ": boom") != 25 {
		t.Error("showAll should print every error line")
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), "c.json"))
	for i := 0; i < 3; i++ {
		if err := h.Append(Campaign{ID: fmt.Sprintf("c%d", i)}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	list, _ := h.List(2)
	if len(list) != 2 || list[0].ID != "c2" || list[1].ID != "c1" {
		t.Errorf("unexpected list: %+v", list)
	}

	c, err := h.Get("c0")
	if err != nil || c == nil {
		t.Fatalf("Get() = %v, %v", c, err)
	}
	if missing, _ := h.Get("nope"); missing != nil {
		t.Error("expected nil for unknown campaign")
	}
}
