package recipients

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/foxzi/pushry/internal/cohort"
	"github.com/foxzi/pushry/internal/directory"
	"github.com/foxzi/pushry/internal/push"
)

// mockDirectory records query chunks
type mockDirectory struct {
	agents  map[string]directory.Agent
	queries [][]string
}

func (m *mockDirectory) Query(ctx context.Context, ids []string) ([]directory.Agent, error) {
	m.queries = append(m.queries, ids)
	var out []directory.Agent
	for _, id := range ids {
		if a, ok := m.agents[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockDirectory) AllIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range m.agents {
		ids = append(ids, id)
	}
	return ids, nil
}

type mockCohorts map[string][]string

func (m mockCohorts) Members(names []string, logic cohort.Logic) ([]string, error) {
	var out []string
	for _, n := range names {
		ids, ok := m[n]
		if !ok {
			return nil, cohort.ErrNotFound
		}
		out = append(out, ids...)
	}
	return out, nil
}

func newDirectory() *mockDirectory {
	return &mockDirectory{agents: map[string]directory.Agent{
		"cp1": {ID: "cp1", Name: "Shameer K", Tokens: []string{"APA91-token-one"}},
		"cp2": {ID: "cp2", Name: "Asha", Tokens: []string{"f0-ios-token-22", "universal-token-33"}, Multi: true},
		"cp3": {ID: "cp3", Name: "Bad", Tokens: []string{"short", "has space token"}},
		"cp4": {ID: "cp4", Name: "Dup", Tokens: []string{"APA91-token-one"}},
		"cp5": {ID: "cp5", Name: "Empty"},
	}}
}

func TestResolveExpandsMultiValued(t *testing.T) {
	r := NewResolver(newDirectory(), nil, nil)

	res, err := r.Resolve(context.Background(), Selection{IDs: []string{"cp1", "cp2"}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(res.Tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(res.Tokens))
	}

	var multi int
	for _, tok := range res.Tokens {
		if tok.Identity == "cp2" {
			multi++
			if tok.DisplayName != "Asha" || !tok.MultiValued {
				t.Errorf("unexpected token: %+v", tok)
			}
		}
	}
	if multi != 2 {
		t.Errorf("expected 2 tokens for cp2, got %d", multi)
	}
	if res.Tokens[0].Channel != push.ChannelAndroid {
		t.Errorf("channel = %s", res.Tokens[0].Channel)
	}
}

func TestResolveRejectsAndReports(t *testing.T) {
	r := NewResolver(newDirectory(), nil, nil)

	res, err := r.Resolve(context.Background(), Selection{IDs: []string{"cp1", "cp3", "cp4", "cp5", "cp9"}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(res.Tokens) != 1 {
		t.Errorf("expected 1 valid token, got %d", len(res.Tokens))
	}
	if len(res.Rejected) != 2 {
		t.Errorf("expected 2 rejected tokens, got %d", len(res.Rejected))
	}
	if res.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", res.Duplicates)
	}
	if strings.Join(res.Missing, ",") != "cp5,cp9" {
		t.Errorf("missing = %v", res.Missing)
	}
}

func TestSelectIDsCombinesSources(t *testing.T) {
	r := NewResolver(newDirectory(), mockCohorts{"gold": {"cp2", "cp1"}}, nil)

	ids, err := r.SelectIDs(context.Background(), Selection{Cohorts: []string{"gold"}, IDs: []string{"cp1", "cp3"}})
	if err != nil {
		t.Fatalf("SelectIDs() error = %v", err)
	}
	if strings.Join(ids, ",") != "cp2,cp1,cp3" {
		t.Errorf("ids = %v", ids)
	}

	all, err := r.SelectIDs(context.Background(), Selection{All: true})
	if err != nil || len(all) != 5 {
		t.Errorf("all = %v, err = %v", all, err)
	}

	if _, err := r.SelectIDs(context.Background(), Selection{}); !errors.Is(err, ErrNoSelection) {
		t.Errorf("expected ErrNoSelection, got %v", err)
	}
	if _, err := r.SelectIDs(context.Background(), Selection{Cohorts: []string{"nope"}}); !errors.Is(err, cohort.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestParseManualIDs(t *testing.T) {
	ids := ParseManualIDs("cp1\n cp2 \r\n\ncp1,cp3\n")
	if strings.Join(ids, ",") != "cp1,cp2,cp3" {
		t.Errorf("ids = %v", ids)
	}
}

func TestParseCSVIDs(t *testing.T) {
	ids, err := ParseCSVIDs(strings.NewReader("name,cpId\nA,cp1\nB,cp2\nC,cp1\nD,\n"))
	if err != nil {
		t.Fatalf("ParseCSVIDs() error = %v", err)
	}
	if strings.Join(ids, ",") != "cp1,cp2" {
		t.Errorf("ids = %v", ids)
	}

	if _, err := ParseCSVIDs(strings.NewReader("name,id\nA,1\n")); err == nil {
		t.Error("expected error without cpId column")
	}
}
