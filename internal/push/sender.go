package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// Transport delivers one message and returns an opaque receipt id
type Transport interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// TransportError is a classified gateway error
type TransportError struct {
	Code       string // machine readable code, e.g. UNREGISTERED or NOT_FOUND
	StatusCode int    // HTTP status when known
	Message    string
}

func (e *TransportError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Channel mismatches surface as auth errors from the wrong gateway
var mismatchSignals = []string{
	"senderid mismatch",
	"sender_id_mismatch",
	"mismatched_credential",
	"auth error from apns",
	"third_party_auth_error",
	"web push service",
}

var invalidSignals = []string{
	"invalid-registration-token",
	"unregistered",
}

// Sender is the single-send unit
type Sender struct {
	transport Transport
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewSender creates a sender around a transport
func NewSender(t Transport, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sender{transport: t, logger: logger}
}

// SetRateLimit caps transport calls per second across all callers of this
// sender. Zero or less removes the cap.
func (s *Sender) SetRateLimit(perSecond float64) {
	if perSecond <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Send invokes the transport and classifies the result. It never panics and
// never touches the directory.
func (s *Sender) Send(ctx context.Context, token RecipientToken, msg *Message) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("transport panic", "token", TokenPrefix(token.Value), "panic", r)
			o = TransientError{Message: truncate(fmt.Sprintf("unexpected error: %v", r))}
		}
	}()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return TransientError{Message: truncate("rate limit wait: " + err.Error())}
		}
	}

	receipt, err := s.transport.Send(ctx, msg)
	if err != nil {
		o = ClassifyError(err, token.Channel)
		s.logger.Warn("send failed", "token", TokenPrefix(token.Value), "channel", token.Channel, "error", err)
		return o
	}

	s.logger.Debug("sent", "token", TokenPrefix(token.Value), "channel", token.Channel, "receipt", receipt)
	return Delivered{ReceiptID: receipt}
}

// ClassifyError maps a transport error to TransientError or InvalidToken.
// Channel-mismatch auth errors are transient even when they also look terminal.
func ClassifyError(err error, channel Channel) Outcome {
	text := strings.ToLower(err.Error())

	var code string
	var status int
	var te *TransportError
	if errors.As(err, &te) {
		code = strings.ToLower(te.Code)
		status = te.StatusCode
	}

	for _, sig := range mismatchSignals {
		if strings.Contains(text, sig) || strings.Contains(code, sig) {
			return TransientError{Message: truncate(fmt.Sprintf("channel mismatch (%s token): %s", channel, err))}
		}
	}

	if strings.Contains(code, "registration-token") || code == "not_found" || status == http.StatusNotFound {
		return InvalidToken{Message: truncate(err.Error())}
	}
	for _, sig := range invalidSignals {
		if strings.Contains(text, sig) {
			return InvalidToken{Message: truncate(err.Error())}
		}
	}

	return TransientError{Message: truncate(err.Error())}
}

func truncate(s string) string {
	if len(s) <= maxErrorChars {
		return s
	}
	return s[:maxErrorChars] + "..."
}
