package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSandbox = []byte("sandbox")

// Message represents a push captured in sandbox mode
type Message struct {
	ID           string            `json:"id"`
	Token        string            `json:"token"`
	Platform     string            `json:"platform"` // android or ios branch
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	CampaignID   string            `json:"campaign_id,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Payload      json.RawMessage   `json:"payload,omitempty"` // full message as it would be sent
	CapturedAt   time.Time         `json:"captured_at"`
	SimulatedErr string            `json:"simulated_error,omitempty"`
}

// Storage provides sandbox message storage
type Storage struct {
	db *bolt.DB
}

// NewStorage creates a new sandbox storage using the provided BoltDB instance
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSandbox)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox bucket: %w", err)
	}

	return &Storage{db: db}, nil
}

// Save stores a message in the sandbox
func (s *Storage) Save(ctx context.Context, msg *Message) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSandbox)

		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return bucket.Put(makeIndexKey(msg.CapturedAt, msg.ID), data)
	})
}

// Get retrieves a message by ID, nil if absent
func (s *Storage) Get(ctx context.Context, id string) (*Message, error) {
	var msg *Message

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSandbox).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m Message
			if err := json.Unmarshal(v, &m); err != nil {
				continue
			}
			if m.ID == id {
				msg = &m
				return nil
			}
		}
		return nil
	})

	return msg, err
}

// ListFilter contains filters for listing messages
type ListFilter struct {
	CampaignID string
	Platform   string
	FailedOnly bool
	Limit      int
	Offset     int
}

// List returns messages matching the filter, newest first. Payloads are omitted.
func (s *Storage) List(ctx context.Context, filter ListFilter) ([]*Message, error) {
	var messages []*Message

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSandbox).Cursor()

		skipped := 0
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}

			if filter.CampaignID != "" && msg.CampaignID != filter.CampaignID {
				continue
			}
			if filter.Platform != "" && msg.Platform != filter.Platform {
				continue
			}
			if filter.FailedOnly && msg.SimulatedErr == "" {
				continue
			}

			if skipped < filter.Offset {
				skipped++
				continue
			}

			msg.Payload = nil
			messages = append(messages, &msg)

			if filter.Limit > 0 && len(messages) >= filter.Limit {
				break
			}
		}
		return nil
	})

	return messages, err
}

// Clear removes messages, optionally filtered by campaign or age
func (s *Storage) Clear(ctx context.Context, campaignID string, olderThan time.Duration) (int, error) {
	var count int
	cutoff := time.Now().Add(-olderThan)

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSandbox)
		c := bucket.Cursor()

		var keysToDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}
			if campaignID != "" && msg.CampaignID != campaignID {
				continue
			}
			if olderThan > 0 && msg.CapturedAt.After(cutoff) {
				continue
			}
			keysToDelete = append(keysToDelete, k)
		}

		for _, k := range keysToDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})

	return count, err
}

// Stats holds sandbox statistics
type Stats struct {
	Total      int64            `json:"total"`
	Failed     int64            `json:"failed"`
	ByPlatform map[string]int64 `json:"by_platform"`
	ByCampaign map[string]int64 `json:"by_campaign"`
	OldestAt   time.Time        `json:"oldest_at,omitempty"`
	NewestAt   time.Time        `json:"newest_at,omitempty"`
}

// Stats returns sandbox statistics
func (s *Storage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByPlatform: make(map[string]int64),
		ByCampaign: make(map[string]int64),
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSandbox).ForEach(func(k, v []byte) error {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return nil
			}

			stats.Total++
			if msg.SimulatedErr != "" {
				stats.Failed++
			}
			stats.ByPlatform[msg.Platform]++
			if msg.CampaignID != "" {
				stats.ByCampaign[msg.CampaignID]++
			}

			if stats.OldestAt.IsZero() || msg.CapturedAt.Before(stats.OldestAt) {
				stats.OldestAt = msg.CapturedAt
			}
			if msg.CapturedAt.After(stats.NewestAt) {
				stats.NewestAt = msg.CapturedAt
			}
			return nil
		})
	})

	return stats, err
}

func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format(time.RFC3339Nano) + ":" + id)
}
