// Package campaign runs send campaigns and keeps their history.
package campaign

import (
	"sync"
	"time"

	"github.com/foxzi/pushry/internal/jsonfile"
)

// Campaign is the persisted record of one completed send-run
type Campaign struct {
	ID              string    `json:"campaign_id"`
	Name            string    `json:"campaign_name"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	Cohorts         []string  `json:"cohorts"`
	Logic           string    `json:"logic"`
	Timestamp       time.Time `json:"timestamp"`
	TotalSent       int       `json:"total_sent"`
	TotalFailed     int       `json:"total_failed"`
	TotalInvalid    int       `json:"total_invalid"`
	Skipped         int       `json:"skipped,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	Mode            string    `json:"mode,omitempty"`
}

// History is an append-only campaign log kept in one JSON file
type History struct {
	path string
	mu   sync.Mutex
}

func NewHistory(path string) *History {
	return &History{path: path}
}

// Append reads the whole list, appends c and writes the list back
func (h *History) Append(c Campaign) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var all []Campaign
	if err := jsonfile.Read(h.path, &all); err != nil {
		return err
	}
	all = append(all, c)
	return jsonfile.Write(h.path, all)
}

// List returns campaigns newest first. limit <= 0 returns all.
func (h *History) List(limit int) ([]Campaign, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var all []Campaign
	if err := jsonfile.Read(h.path, &all); err != nil {
		return nil, err
	}

	out := make([]Campaign, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Get returns the most recent campaign with id, nil if absent
func (h *History) Get(id string) (*Campaign, error) {
	list, err := h.List(0)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, nil
}
