// Package cohort stores named recipient lists in a flat JSON file.
package cohort

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/foxzi/pushry/internal/jsonfile"
)

var (
	ErrNotFound     = errors.New("cohort not found")
	ErrExists       = errors.New("cohort already exists")
	ErrInvalidName  = errors.New("cohort name is required")
	ErrInvalidLogic = errors.New("invalid cohort logic")
)

// Logic combines several cohorts into one recipient set
type Logic string

const (
	LogicOR  Logic = "OR"
	LogicAND Logic = "AND"
)

// ParseLogic accepts AND/OR in any case, defaulting to OR
func ParseLogic(s string) (Logic, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "OR":
		return LogicOR, nil
	case "AND":
		return LogicAND, nil
	}
	return "", fmt.Errorf("%w %q: must be AND or OR", ErrInvalidLogic, s)
}

// Cohort is a named, ordered list of agent ids
type Cohort struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// Store keeps cohorts in one file that is rewritten on every mutation.
// Concurrent writers in other processes follow last-writer-wins.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// List returns all cohorts sorted by name
func (s *Store) List() ([]Cohort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}

	cohorts := make([]Cohort, 0, len(all))
	for name, ids := range all {
		cohorts = append(cohorts, Cohort{Name: name, MemberIDs: ids})
	}
	sort.Slice(cohorts, func(i, j int) bool { return cohorts[i].Name < cohorts[j].Name })
	return cohorts, nil
}

// Get returns one cohort
func (s *Store) Get(name string) (*Cohort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	ids, ok := all[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &Cohort{Name: name, MemberIDs: ids}, nil
}

// Create adds a new cohort
func (s *Store) Create(name string, memberIDs []string) (*Cohort, error) {
	return s.mutate(name, func(all map[string][]string, name string) error {
		if _, ok := all[name]; ok {
			return fmt.Errorf("%w: %s", ErrExists, name)
		}
		all[name] = Dedup(memberIDs)
		return nil
	})
}

// Update replaces the members of an existing cohort
func (s *Store) Update(name string, memberIDs []string) (*Cohort, error) {
	return s.mutate(name, func(all map[string][]string, name string) error {
		if _, ok := all[name]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		all[name] = Dedup(memberIDs)
		return nil
	})
}

// Delete removes a cohort
func (s *Store) Delete(name string) error {
	_, err := s.mutate(name, func(all map[string][]string, name string) error {
		if _, ok := all[name]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		delete(all, name)
		return nil
	})
	return err
}

// Members resolves the ids selected by several cohorts. OR keeps the first
// occurrence order across cohorts; AND keeps the order of the first cohort.
func (s *Store) Members(names []string, logic Logic) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	all, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	lists := make([][]string, 0, len(names))
	for _, name := range names {
		ids, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		lists = append(lists, ids)
	}

	if logic == LogicAND {
		return intersect(lists), nil
	}
	var merged []string
	for _, l := range lists {
		merged = append(merged, l...)
	}
	return Dedup(merged), nil
}

func (s *Store) mutate(name string, fn func(all map[string][]string, name string) error) (*Cohort, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	if err := fn(all, name); err != nil {
		return nil, err
	}
	if err := s.save(all); err != nil {
		return nil, err
	}

	ids, ok := all[name]
	if !ok {
		return nil, nil
	}
	return &Cohort{Name: name, MemberIDs: ids}, nil
}

func (s *Store) load() (map[string][]string, error) {
	all := make(map[string][]string)
	if err := jsonfile.Read(s.path, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (s *Store) save(all map[string][]string) error {
	return jsonfile.Write(s.path, all)
}

// Dedup trims ids, drops empty ones and keeps the first occurrence of each
func Dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func intersect(lists [][]string) []string {
	if len(lists) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, l := range lists {
		for _, id := range Dedup(l) {
			counts[id]++
		}
	}
	var out []string
	for _, id := range Dedup(lists[0]) {
		if counts[id] == len(lists) {
			out = append(out, id)
		}
	}
	return out
}
