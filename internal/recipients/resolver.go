// Package recipients turns agent selections into the token list a send-run consumes.
package recipients

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/foxzi/pushry/internal/cohort"
	"github.com/foxzi/pushry/internal/directory"
	"github.com/foxzi/pushry/internal/push"
)

var ErrNoSelection = errors.New("no recipients selected")

// Directory is the agent record store
type Directory interface {
	Query(ctx context.Context, ids []string) ([]directory.Agent, error)
	AllIDs(ctx context.Context) ([]string, error)
}

// CohortSource resolves cohort names to member ids
type CohortSource interface {
	Members(names []string, logic cohort.Logic) ([]string, error)
}

// Selection describes which agents receive a run. Sources are combined.
type Selection struct {
	IDs     []string     `json:"ids,omitempty"`
	All     bool         `json:"all,omitempty"`
	Cohorts []string     `json:"cohorts,omitempty"`
	Logic   cohort.Logic `json:"logic,omitempty"`
}

// Resolution is the resolver output
type Resolution struct {
	AgentIDs   []string              `json:"agent_ids"`
	Tokens     []push.RecipientToken `json:"tokens"`
	Rejected   []push.RecipientToken `json:"rejected,omitempty"`
	Missing    []string              `json:"missing,omitempty"` // ids without a record or token
	Duplicates int                   `json:"duplicates"`
}

// Resolver looks up tokens for selected agents
type Resolver struct {
	dir     Directory
	cohorts CohortSource
	logger  *slog.Logger
}

func NewResolver(dir Directory, cohorts CohortSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{dir: dir, cohorts: cohorts, logger: logger}
}

// SelectIDs returns the de-duplicated agent ids of a selection
func (r *Resolver) SelectIDs(ctx context.Context, sel Selection) ([]string, error) {
	var ids []string

	if sel.All {
		all, err := r.dir.AllIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list agents: %w", err)
		}
		ids = append(ids, all...)
	}

	if len(sel.Cohorts) > 0 {
		if r.cohorts == nil {
			return nil, fmt.Errorf("cohort selection is not available")
		}
		members, err := r.cohorts.Members(sel.Cohorts, sel.Logic)
		if err != nil {
			return nil, err
		}
		ids = append(ids, members...)
	}

	ids = append(ids, sel.IDs...)
	ids = cohort.Dedup(ids)
	if len(ids) == 0 {
		return nil, ErrNoSelection
	}
	return ids, nil
}

// Resolve expands a selection into validated recipient tokens. Every device
// registration of a record becomes its own token sharing the record's name.
func (r *Resolver) Resolve(ctx context.Context, sel Selection) (*Resolution, error) {
	ids, err := r.SelectIDs(ctx, sel)
	if err != nil {
		return nil, err
	}

	agents, err := r.dir.Query(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tokens: %w", err)
	}

	res := &Resolution{AgentIDs: ids}
	found := make(map[string]bool, len(agents))
	seen := make(map[string]struct{})
	var all []push.RecipientToken

	for _, a := range agents {
		for _, value := range a.Tokens {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			found[a.ID] = true
			if _, dup := seen[value]; dup {
				res.Duplicates++
				continue
			}
			seen[value] = struct{}{}
			all = append(all, push.RecipientToken{
				Identity:    a.ID,
				Value:       value,
				MultiValued: a.Multi,
				Channel:     push.Classify(value),
				DisplayName: a.Name,
			})
		}
	}

	for _, id := range ids {
		if !found[id] {
			res.Missing = append(res.Missing, id)
		}
	}

	res.Tokens, res.Rejected = push.FilterTokens(all)

	r.logger.Info("recipients resolved",
		"agents", len(ids),
		"tokens", len(res.Tokens),
		"rejected", len(res.Rejected),
		"missing", len(res.Missing),
	)
	return res, nil
}

// ParseManualIDs splits newline (or comma) separated ids, dropping blanks and duplicates
func ParseManualIDs(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})
	return cohort.Dedup(fields)
}

// ParseCSVIDs reads the cpId column of a CSV document
func ParseCSVIDs(reader io.Reader) ([]string, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	idx := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")), "cpId") {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, fmt.Errorf("CSV must contain a 'cpId' column")
	}

	var ids []string
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		if idx < len(record) {
			ids = append(ids, record[idx])
		}
	}
	return cohort.Dedup(ids), nil
}
