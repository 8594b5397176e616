package session

import (
	"context"
	"errors"
	"sync"

	"techassist/server/internal/model"
)

var ErrNotFound = errors.New("session not found")

// InMemoryStore keeps everything in process memory. Restart loses data;
// multi-instance deployments use the postgres implementation instead.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.DiagnosticSession
	answers  map[string][]model.Answer
	records  map[string][]model.DiagnosticRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*model.DiagnosticSession),
		answers:  make(map[string][]model.Answer),
		records:  make(map[string][]model.DiagnosticRecord),
	}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*model.DiagnosticSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *InMemoryStore) Save(_ context.Context, sess *model.DiagnosticSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]model.DiagnosticSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.DiagnosticSession
	for _, sess := range s.sessions {
		if sess.UtilisateurID == userID {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (s *InMemoryStore) SaveAnswer(_ context.Context, a *model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.answers[a.SessionID] = append(s.answers[a.SessionID], *a)
	return nil
}

// ListAnswers returns a copy so callers cannot mutate internal state.
func (s *InMemoryStore) ListAnswers(_ context.Context, sessionID string) ([]model.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	answers := s.answers[sessionID]
	out := make([]model.Answer, len(answers))
	copy(out, answers)
	return out, nil
}

func (s *InMemoryStore) AppendRecord(_ context.Context, r *model.DiagnosticRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[r.SessionID] = append(s.records[r.SessionID], *r)
	return nil
}

func (s *InMemoryStore) ListRecords(_ context.Context, sessionID string) ([]model.DiagnosticRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.records[sessionID]
	out := make([]model.DiagnosticRecord, len(records))
	copy(out, records)
	return out, nil
}

func (s *InMemoryStore) DeleteRecords(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, sessionID)
	return nil
}
