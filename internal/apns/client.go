// Package apns delivers messages addressed to raw APNs device tokens.
package apns

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/foxzi/pushry/internal/push"
)

// Pusher is the subset of apns2.Client used here
type Pusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// Config holds token-based auth settings
type Config struct {
	KeyFile    string
	KeyID      string
	TeamID     string
	BundleID   string
	Production bool
}

// Client sends messages straight to APNs
type Client struct {
	pusher Pusher
	topic  string
	logger *slog.Logger
}

// New creates a client from a .p8 signing key
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return NewWithPusher(client, cfg.BundleID, logger), nil
}

// NewWithPusher wraps an existing pusher
func NewWithPusher(p Pusher, topic string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{pusher: p, topic: topic, logger: logger}
}

// Send implements push.Transport
func (c *Client) Send(ctx context.Context, msg *push.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	n := &apns2.Notification{
		DeviceToken: msg.Token,
		Topic:       c.topic,
		Payload:     buildPayload(msg),
		Priority:    apns2.PriorityHigh,
		PushType:    apns2.PushTypeAlert,
		Expiration:  time.Now().Add(time.Hour),
	}
	if msg.APNS != nil {
		if topic := msg.APNS.Headers["apns-topic"]; topic != "" {
			n.Topic = topic
		}
	}
	if msg.Android != nil && msg.Android.CollapseKey != "" {
		n.CollapseID = msg.Android.CollapseKey
	}

	res, err := c.pusher.PushWithContext(ctx, n)
	if err != nil {
		return "", fmt.Errorf("failed to push to APNs: %w", err)
	}
	if !res.Sent() {
		return "", &push.TransportError{
			Code:       res.Reason,
			StatusCode: res.StatusCode,
			Message:    "APNs rejected notification: " + res.Reason,
		}
	}
	return res.ApnsID, nil
}

func buildPayload(msg *push.Message) *payload.Payload {
	title, body := msg.Notification.Title, msg.Notification.Body
	sound, badge := "default", 1
	if msg.APNS != nil {
		title, body = msg.APNS.Aps.Alert.Title, msg.APNS.Aps.Alert.Body
		sound, badge = msg.APNS.Aps.Sound, msg.APNS.Aps.Badge
	}

	p := payload.NewPayload().
		AlertTitle(title).
		AlertBody(body).
		Sound(sound).
		Badge(badge)
	for k, v := range msg.Data {
		p.Custom(k, v)
	}
	return p
}
