package fcm

import (
	"fmt"
	"strings"

	"github.com/foxzi/pushry/internal/push"
)

// HTTP v1 request body
type sendRequest struct {
	ValidateOnly bool        `json:"validate_only,omitempty"`
	Message      wireMessage `json:"message"`
}

type wireMessage struct {
	Token        string            `json:"token"`
	Notification *wireNotification `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *wireAndroid      `json:"android,omitempty"`
	APNS         *wireAPNS         `json:"apns,omitempty"`
}

type wireNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

type wireAndroid struct {
	Priority     string                   `json:"priority,omitempty"`
	TTL          string                   `json:"ttl,omitempty"`
	CollapseKey  string                   `json:"collapse_key,omitempty"`
	Notification *wireAndroidNotification `json:"notification,omitempty"`
}

type wireAndroidNotification struct {
	Title       string `json:"title,omitempty"`
	Body        string `json:"body,omitempty"`
	Sound       string `json:"sound,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`
	ClickAction string `json:"click_action,omitempty"`
}

type wireAPNS struct {
	Headers map[string]string `json:"headers,omitempty"`
	Payload map[string]any    `json:"payload"`
}

func toWire(msg *push.Message) wireMessage {
	w := wireMessage{
		Token: msg.Token,
		Notification: &wireNotification{
			Title: msg.Notification.Title,
			Body:  msg.Notification.Body,
		},
		Data: msg.Data,
	}

	if a := msg.Android; a != nil {
		w.Android = &wireAndroid{
			Priority:    strings.ToUpper(a.Priority),
			CollapseKey: a.CollapseKey,
			Notification: &wireAndroidNotification{
				Title:       a.Notification.Title,
				Body:        a.Notification.Body,
				Sound:       a.Notification.Sound,
				ChannelID:   a.Notification.ChannelID,
				ClickAction: a.Notification.ClickAction,
			},
		}
		if a.TTL > 0 {
			w.Android.TTL = fmt.Sprintf("%ds", int64(a.TTL.Seconds()))
		}
	}

	if a := msg.APNS; a != nil {
		w.APNS = &wireAPNS{
			Headers: a.Headers,
			Payload: map[string]any{
				"aps": map[string]any{
					"alert": map[string]string{
						"title": a.Aps.Alert.Title,
						"body":  a.Aps.Alert.Body,
					},
					"sound": a.Aps.Sound,
					"badge": a.Aps.Badge,
				},
			},
		}
	}

	return w
}
