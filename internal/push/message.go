package push

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Channel is the platform family of a device token
type Channel string

const (
	ChannelIOS       Channel = "ios"
	ChannelAndroid   Channel = "android"
	ChannelUniversal Channel = "universal"
	ChannelUnknown   Channel = "unknown"
)

// Platform override values accepted in DispatchConfig.ForcePlatform
const (
	PlatformAuto    = "auto"
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
)

// Limits for operator-supplied values
const (
	MaxTitleLength = 100
	MaxBodyLength  = 500

	MinBatchSize  = 50
	MaxBatchSize  = 500
	MinWorkers    = 1
	MaxWorkers    = 20
	DefaultPace   = 10 * time.Millisecond
	maxErrorChars = 200
)

var (
	ErrEmptyTitle    = errors.New("title is required")
	ErrEmptyBody     = errors.New("body is required")
	ErrTitleTooLong  = fmt.Errorf("title exceeds %d characters", MaxTitleLength)
	ErrBodyTooLong   = fmt.Errorf("body exceeds %d characters", MaxBodyLength)
	ErrNoRecipients  = errors.New("no recipients")
	ErrInvalidToken  = errors.New("invalid token format")
	ErrInvalidConfig = errors.New("invalid dispatch config")
)

// RecipientToken is one device registration of one directory record.
// Identity is a back-reference to the record and is never dereferenced here.
type RecipientToken struct {
	Identity    string  `json:"identity,omitempty"`
	Value       string  `json:"value"`
	MultiValued bool    `json:"multi_valued"`
	Channel     Channel `json:"channel"`
	DisplayName string  `json:"display_name,omitempty"`
}

// MessageTemplate is the operator-composed content, possibly with name placeholders
type MessageTemplate struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Validate checks the template before any recipient is touched
func (t MessageTemplate) Validate() error {
	switch {
	case t.Title == "":
		return ErrEmptyTitle
	case t.Body == "":
		return ErrEmptyBody
	case utf8.RuneCountInString(t.Title) > MaxTitleLength:
		return ErrTitleTooLong
	case utf8.RuneCountInString(t.Body) > MaxBodyLength:
		return ErrBodyTooLong
	}
	return nil
}

// DispatchConfig is supplied once per run
type DispatchConfig struct {
	BatchSize          int           `json:"batch_size"`
	MaxParallelWorkers int           `json:"max_parallel_workers"`
	ClickAction        string        `json:"click_action"`
	Route              string        `json:"route"`
	Screen             string        `json:"screen"`
	CampaignID         string        `json:"campaign_id,omitempty"`
	CampaignName       string        `json:"campaign_name,omitempty"`
	CohortTags         []string      `json:"cohort_tags,omitempty"`
	ForcePlatform      string        `json:"force_platform,omitempty"`
	BundleID           string        `json:"bundle_id,omitempty"`
	Pace               time.Duration `json:"pace,omitempty"`

	// MessageType overrides the marker written into the data block
	MessageType string `json:"-"`
}

// Validate checks the coordinator invariants
func (c DispatchConfig) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch_size must be at least 1", ErrInvalidConfig)
	}
	if c.MaxParallelWorkers < 1 {
		return fmt.Errorf("%w: max_parallel_workers must be at least 1", ErrInvalidConfig)
	}
	switch c.ForcePlatform {
	case "", PlatformAuto, PlatformAndroid, PlatformIOS:
	default:
		return fmt.Errorf("%w: force_platform must be auto, android or ios", ErrInvalidConfig)
	}
	return nil
}

// ValidateRange applies the operator-facing bounds on top of Validate
func (c DispatchConfig) ValidateRange() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.BatchSize < MinBatchSize || c.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batch_size must be between %d and %d", ErrInvalidConfig, MinBatchSize, MaxBatchSize)
	}
	if c.MaxParallelWorkers < MinWorkers || c.MaxParallelWorkers > MaxWorkers {
		return fmt.Errorf("%w: max_parallel_workers must be between %d and %d", ErrInvalidConfig, MinWorkers, MaxWorkers)
	}
	return nil
}

// Message is the transport-neutral push message. Exactly one of Android and APNS is set.
type Message struct {
	Token        string            `json:"token"`
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *AndroidConfig    `json:"android,omitempty"`
	APNS         *APNSConfig       `json:"apns,omitempty"`
}

// Notification is the cross-platform title/body block
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// AndroidConfig is the Android-shaped branch
type AndroidConfig struct {
	Priority     string              `json:"priority"`
	TTL          time.Duration       `json:"ttl"`
	CollapseKey  string              `json:"collapse_key,omitempty"`
	Notification AndroidNotification `json:"notification"`
}

// AndroidNotification is the display part of the Android branch
type AndroidNotification struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Sound       string `json:"sound"`
	ChannelID   string `json:"channel_id,omitempty"`
	ClickAction string `json:"click_action,omitempty"`
}

// APNSConfig is the iOS-shaped branch
type APNSConfig struct {
	Headers map[string]string `json:"headers"`
	Aps     Aps               `json:"aps"`
}

// Aps is the aps dictionary of an APNs payload
type Aps struct {
	Alert Notification `json:"alert"`
	Sound string       `json:"sound"`
	Badge int          `json:"badge"`
}
