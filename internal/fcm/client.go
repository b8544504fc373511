// Package fcm implements the Firebase Cloud Messaging HTTP v1 transport.
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/foxzi/pushry/internal/push"
)

const (
	// DefaultEndpoint is the public FCM API
	DefaultEndpoint = "https://fcm.googleapis.com"

	messagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	maxBodyBytes   = 64 << 10
)

// Config configures the FCM client
type Config struct {
	ProjectID string
	Endpoint  string
	Timeout   time.Duration
}

// Client sends messages through the FCM HTTP v1 API
type Client struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
}

// New creates a client authenticated with a service account JSON document
func New(ctx context.Context, cfg Config, credentialsJSON []byte, logger *slog.Logger) (*Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, messagingScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}

	if cfg.ProjectID == "" {
		cfg.ProjectID = creds.ProjectID
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("fcm project_id is required")
	}

	hc := oauth2.NewClient(ctx, creds.TokenSource)
	hc.Timeout = cfg.Timeout

	return NewWithHTTPClient(hc, cfg, logger), nil
}

// NewWithHTTPClient creates a client on top of an already authorized HTTP client
func NewWithHTTPClient(hc *http.Client, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		httpClient: hc,
		url:        fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimRight(endpoint, "/"), cfg.ProjectID),
		logger:     logger,
	}
}

// Send implements push.Transport. It returns the message name assigned by FCM.
func (c *Client) Send(ctx context.Context, msg *push.Message) (string, error) {
	body, err := json.Marshal(sendRequest{Message: toWire(msg)})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", parseError(resp.StatusCode, respBody)
	}

	return gjson.GetBytes(respBody, "name").String(), nil
}

// parseError extracts the FCM error code. The FcmError detail code (e.g. UNREGISTERED)
// wins over the generic status (e.g. NOT_FOUND).
func parseError(status int, body []byte) *push.TransportError {
	e := &push.TransportError{StatusCode: status}

	res := gjson.ParseBytes(body)
	e.Message = res.Get("error.message").String()
	e.Code = res.Get("error.status").String()

	res.Get("error.details").ForEach(func(_, detail gjson.Result) bool {
		if code := detail.Get("errorCode").String(); code != "" {
			e.Code = code
			return false
		}
		return true
	})

	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
