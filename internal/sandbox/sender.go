// Package sandbox captures push messages instead of delivering them.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/pushry/internal/push"
)

// Errors produced by error simulation, one of each classification path
var simulatedErrors = []push.TransportError{
	{Code: "UNREGISTERED", StatusCode: http.StatusNotFound, Message: "Requested entity was not found."},
	{Code: "INTERNAL", StatusCode: http.StatusInternalServerError, Message: "Internal error encountered."},
	{Code: "SENDER_ID_MISMATCH", StatusCode: http.StatusForbidden, Message: "SenderId mismatch"},
}

// Sender stores messages in the sandbox instead of sending them
type Sender struct {
	storage          *Storage
	logger           *slog.Logger
	simulateErrors   bool
	errorProbability float64 // 0.0 to 1.0
	random           func() float64
	pick             func(n int) int
}

// NewSender creates a new sandbox sender
func NewSender(storage *Storage, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sender{
		storage:          storage,
		logger:           logger,
		errorProbability: 0.1,
		random:           rand.Float64,
		pick:             rand.Intn,
	}
}

// SetErrorSimulation enables/disables error simulation
func (s *Sender) SetErrorSimulation(enabled bool, probability float64) {
	s.simulateErrors = enabled
	if probability > 0 && probability <= 1 {
		s.errorProbability = probability
	}
}

// Send implements push.Transport
func (s *Sender) Send(ctx context.Context, msg *push.Message) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("sandbox: failed to encode message: %w", err)
	}

	captured := &Message{
		ID:         uuid.New().String(),
		Token:      msg.Token,
		Platform:   platformOf(msg),
		Title:      msg.Notification.Title,
		Body:       msg.Notification.Body,
		CampaignID: msg.Data["campaign_id"],
		Data:       msg.Data,
		Payload:    payload,
		CapturedAt: time.Now(),
	}

	var simErr *push.TransportError
	if s.simulateErrors && s.random() < s.errorProbability {
		e := simulatedErrors[s.pick(len(simulatedErrors))]
		simErr = &e
		captured.SimulatedErr = e.Error()
	}

	if err := s.storage.Save(ctx, captured); err != nil {
		return "", fmt.Errorf("sandbox: failed to save message: %w", err)
	}

	if simErr != nil {
		s.logger.Debug("sandbox: simulated failure", "id", captured.ID, "token", push.TokenPrefix(msg.Token), "error", simErr)
		return "", simErr
	}

	s.logger.Debug("sandbox: message captured", "id", captured.ID, "token", push.TokenPrefix(msg.Token))
	return "sandbox/" + captured.ID, nil
}

func platformOf(msg *push.Message) string {
	if msg.APNS != nil {
		return "ios"
	}
	return "android"
}
