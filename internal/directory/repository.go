package directory

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// MaxQueryIDs is the per-query cardinality limit for id lookups
const MaxQueryIDs = 10

// Agent is one directory record
type Agent struct {
	ID        string    `json:"cp_id"`
	Name      string    `json:"name"`
	Tokens    []string  `json:"tokens"`
	Multi     bool      `json:"multi"` // token field stored as a list
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter for listing agents
type Filter struct {
	Search string
	Limit  int
	Offset int
}

// ImportResult summarizes a CSV import
type ImportResult struct {
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Query returns the agents with the given ids. Lookups are chunked to MaxQueryIDs
// ids per statement. Unknown ids are ignored.
func (r *Repository) Query(ctx context.Context, ids []string) ([]Agent, error) {
	var agents []Agent

	for start := 0; start < len(ids); start += MaxQueryIDs {
		end := start + MaxQueryIDs
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		rows, err := r.db.QueryContext(ctx,
			"SELECT cp_id, name, fsm_token, updated_at FROM agents WHERE cp_id IN ("+placeholders+")",
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query agents: %w", err)
		}

		for rows.Next() {
			a, err := scanAgent(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			agents = append(agents, *a)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	return agents, nil
}

// AllIDs returns every distinct agent id
func (r *Repository) AllIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT cp_id FROM agents ORDER BY cp_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get returns an agent by id, nil if absent
func (r *Repository) Get(ctx context.Context, id string) (*Agent, error) {
	row := r.db.QueryRowContext(ctx, "SELECT cp_id, name, fsm_token, updated_at FROM agents WHERE cp_id = ?", id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// List returns agents with optional filtering
func (r *Repository) List(ctx context.Context, filter Filter) ([]Agent, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.Search != "" {
		where += " AND (cp_id LIKE ? OR name LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM agents"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT cp_id, name, fsm_token, updated_at FROM agents" + where + " ORDER BY cp_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, 0, err
		}
		agents = append(agents, *a)
	}
	return agents, total, rows.Err()
}

// Upsert creates or replaces an agent record
func (r *Repository) Upsert(ctx context.Context, a *Agent) error {
	if a.ID == "" {
		return fmt.Errorf("agent id is required")
	}

	field, err := encodeTokens(a.Tokens, a.Multi)
	if err != nil {
		return err
	}
	a.UpdatedAt = time.Now()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO agents (cp_id, name, fsm_token, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cp_id) DO UPDATE SET
			name = excluded.name,
			fsm_token = excluded.fsm_token,
			updated_at = excluded.updated_at`,
		a.ID, a.Name, field, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent: %w", err)
	}
	return nil
}

// Delete removes an agent
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM agents WHERE cp_id = ?", id)
	return err
}

// ImportCSV imports agents from CSV data with cpId, name and fsmToken columns.
// Several tokens in one cell are separated by ';'.
func (r *Repository) ImportCSV(ctx context.Context, reader io.Reader) (*ImportResult, error) {
	result := &ImportResult{}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	idIdx, nameIdx, tokenIdx := -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "cpid", "cp_id", "id":
			idIdx = i
		case "name", "full_name", "fullname":
			nameIdx = i
		case "fsmtoken", "fsm_token", "token", "tokens":
			tokenIdx = i
		}
	}

	if idIdx == -1 {
		return nil, fmt.Errorf("cpId column not found in CSV")
	}
	if tokenIdx == -1 {
		return nil, fmt.Errorf("fsmToken column not found in CSV")
	}

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		result.Total++
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", result.Total, err))
			result.Skipped++
			continue
		}

		id := cell(record, idIdx)
		if id == "" {
			result.Skipped++
			continue
		}

		var tokens []string
		for _, t := range strings.Split(cell(record, tokenIdx), ";") {
			if t = strings.TrimSpace(t); t != "" {
				tokens = append(tokens, t)
			}
		}
		if len(tokens) == 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d (%s): no token", result.Total, id))
			result.Skipped++
			continue
		}

		agent := &Agent{
			ID:     id,
			Name:   cell(record, nameIdx),
			Tokens: tokens,
			Multi:  len(tokens) > 1,
		}
		if err := r.Upsert(ctx, agent); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d (%s): %v", result.Total, id, err))
			result.Skipped++
			continue
		}

		result.Imported++
	}

	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(s scanner) (*Agent, error) {
	var a Agent
	var field string
	if err := s.Scan(&a.ID, &a.Name, &field, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Tokens, a.Multi = decodeTokens(field)
	return &a, nil
}

func encodeTokens(tokens []string, multi bool) (string, error) {
	var v any
	switch {
	case multi || len(tokens) > 1:
		v = tokens
	case len(tokens) == 1:
		v = tokens[0]
	default:
		v = ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode tokens: %w", err)
	}
	return string(data), nil
}

// decodeTokens accepts a JSON string, a JSON array of strings or a bare legacy value.
// Empty entries are dropped.
func decodeTokens(field string) ([]string, bool) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, false
	}
	if !gjson.Valid(field) {
		return []string{field}, false
	}

	res := gjson.Parse(field)
	if res.IsArray() {
		var tokens []string
		for _, v := range res.Array() {
			if s := strings.TrimSpace(v.String()); s != "" {
				tokens = append(tokens, s)
			}
		}
		return tokens, true
	}

	if s := strings.TrimSpace(res.String()); s != "" {
		return []string{s}, false
	}
	return nil, false
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
