package catalog

import (
	"context"
	"sort"
	"sync"

	"techassist/server/internal/model"
)

// InMemoryStore serves a Seed from memory. Only rules carry mutable
// state, so only they are guarded by the mutex.
type InMemoryStore struct {
	categories map[string]model.Category
	questions  map[string]model.Question
	byCategory map[string][]string // category ID -> question IDs in Ordre
	templates  map[string]model.Template

	mu    sync.RWMutex
	rules map[string]model.Rule
}

func NewInMemoryStore(seed *Seed) *InMemoryStore {
	s := &InMemoryStore{
		categories: make(map[string]model.Category),
		questions:  make(map[string]model.Question),
		byCategory: make(map[string][]string),
		templates:  make(map[string]model.Template),
		rules:      make(map[string]model.Rule),
	}
	for _, c := range seed.Categories {
		s.categories[c.ID] = c
	}

	questions := append([]model.Question(nil), seed.Questions...)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Ordre < questions[j].Ordre })
	for _, q := range questions {
		s.questions[q.ID] = q
		s.byCategory[q.CategorieID] = append(s.byCategory[q.CategorieID], q.ID)
	}

	for _, t := range seed.Templates {
		s.templates[t.ID] = t
	}
	for _, r := range seed.Rules {
		s.rules[r.ID] = r
	}
	return s
}

func (s *InMemoryStore) GetCategory(_ context.Context, id string) (*model.Category, error) {
	c, ok := s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) ListCategories(_ context.Context) ([]model.Category, error) {
	out := make([]model.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordre < out[j].Ordre })
	return out, nil
}

func (s *InMemoryStore) GetQuestion(_ context.Context, id string) (*model.Question, error) {
	q, ok := s.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (s *InMemoryStore) ListQuestions(_ context.Context, categoryID string) ([]model.Question, error) {
	ids := s.byCategory[categoryID]
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.questions[id])
	}
	return out, nil
}

func (s *InMemoryStore) ActiveTemplate(_ context.Context, categoryID string) (*model.Template, error) {
	for _, t := range s.templates {
		if t.CategorieID == categoryID && t.Active {
			cp := t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) ListRules(_ context.Context, categoryID string) ([]model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Rule
	for _, r := range s.rules {
		if r.CategorieID == categoryID {
			out = append(out, r)
		}
	}
	// Execution order: lowest Priorite first, ID as the tie break.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priorite != out[j].Priorite {
			return out[i].Priorite < out[j].Priorite
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) SaveRule(_ context.Context, r *model.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[r.ID]; !ok {
		return ErrNotFound
	}
	s.rules[r.ID] = *r
	return nil
}
