package push

import (
	"strconv"
	"strings"
	"time"
)

const (
	defaultSound       = "default"
	androidChannelID   = "high_importance_channel"
	richNotification   = "rich_notification"
	TestNotification   = "test_notification"
	androidTTL         = time.Hour
	apnsPriorityHigh   = "10"
	apnsPushTypeAlert  = "alert"
	markerKey          = "push_campaign"
	defaultClickAction = "FLUTTER_NOTIFICATION_CLICK"
)

// now is replaced in tests
var now = time.Now

// BuildMessage personalizes tmpl for one recipient and shapes it for the channel.
// Only ChannelIOS gets the APNs branch; every other channel gets the Android branch.
func BuildMessage(token string, tmpl MessageTemplate, name string, cfg DispatchConfig, channel Channel) *Message {
	title := Personalize(tmpl.Title, name)
	body := Personalize(tmpl.Body, name)

	kind := cfg.MessageType
	if kind == "" {
		kind = richNotification
	}
	clickAction := cfg.ClickAction
	if clickAction == "" {
		clickAction = defaultClickAction
	}

	data := map[string]string{
		"title":        title,
		"body":         body,
		"click_action": clickAction,
		"screen":       cfg.Screen,
		"route":        cfg.Route,
		"type":         kind,
		markerKey:      "true",
		"timestamp":    strconv.FormatInt(now().Unix(), 10),
	}
	if cfg.CampaignID != "" {
		data["campaign_id"] = cfg.CampaignID
	}
	if cfg.CampaignName != "" {
		data["campaign_name"] = cfg.CampaignName
	}
	if len(cfg.CohortTags) > 0 {
		data["cohorts"] = strings.Join(cfg.CohortTags, ",")
	}

	msg := &Message{
		Token:        token,
		Notification: Notification{Title: title, Body: body},
		Data:         data,
	}

	if channel == ChannelIOS {
		headers := map[string]string{
			"apns-priority":  apnsPriorityHigh,
			"apns-push-type": apnsPushTypeAlert,
		}
		if cfg.BundleID != "" {
			headers["apns-topic"] = cfg.BundleID
		}
		msg.APNS = &APNSConfig{
			Headers: headers,
			Aps: Aps{
				Alert: Notification{Title: title, Body: body},
				Sound: defaultSound,
				Badge: 1,
			},
		}
		return msg
	}

	msg.Android = &AndroidConfig{
		Priority:    "high",
		TTL:         androidTTL,
		CollapseKey: kind,
		Notification: AndroidNotification{
			Title:       title,
			Body:        body,
			Sound:       defaultSound,
			ChannelID:   androidChannelID,
			ClickAction: clickAction,
		},
	}
	return msg
}
