package ticket

import (
	"context"
	"sync"
	"time"

	"techassist/server/internal/model"
)

// InMemoryStore keeps tickets and comment logs in process memory.
type InMemoryStore struct {
	mu         sync.RWMutex
	tickets    map[string]*model.Ticket
	comments   map[string][]model.Comment
	seq        map[string]int64
	commentIDs map[string]map[string]int64
	byComment  map[string]string // comment ID -> ticket ID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tickets:    make(map[string]*model.Ticket),
		comments:   make(map[string][]model.Comment),
		seq:        make(map[string]int64),
		commentIDs: make(map[string]map[string]int64),
		byComment:  make(map[string]string),
	}
}

func (s *InMemoryStore) CreateTicket(_ context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetTicket(_ context.Context, id string) (*model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemoryStore) SaveTicket(_ context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[t.ID]; !ok {
		return ErrNotFound
	}
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func (s *InMemoryStore) ListByCreator(_ context.Context, userID string) ([]model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Ticket
	for _, t := range s.tickets {
		if t.CreateurID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByAssignee(_ context.Context, userID string) ([]model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Ticket
	for _, t := range s.tickets {
		if t.AssigneID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListOpen(_ context.Context) ([]model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Ticket
	for _, t := range s.tickets {
		if t.Statut == model.TicketOuvert || t.Statut == model.TicketEnCours {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *InMemoryStore) CountActiveByAssignee(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.tickets {
		if t.AssigneID == userID && t.Statut == model.TicketEnCours {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) FindBySession(_ context.Context, sessionID string) (*model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tickets {
		if t.SessionID != "" && t.SessionID == sessionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// AppendComment assigns the ticket's next seq and stores a copy. A
// comment ID seen before returns its original seq without appending.
func (s *InMemoryStore) AppendComment(_ context.Context, ticketID string, c *model.Comment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[ticketID]; !ok {
		return 0, ErrNotFound
	}

	if c.ID != "" {
		if seen, ok := s.commentIDs[ticketID]; ok {
			if seq, exists := seen[c.ID]; exists {
				return seq, nil
			}
		}
	}

	s.seq[ticketID]++
	seq := s.seq[ticketID]

	cp := *c
	cp.Seq = seq
	cp.TicketID = ticketID
	s.comments[ticketID] = append(s.comments[ticketID], cp)

	if c.ID != "" {
		if s.commentIDs[ticketID] == nil {
			s.commentIDs[ticketID] = make(map[string]int64)
		}
		s.commentIDs[ticketID][c.ID] = seq
		s.byComment[c.ID] = ticketID
	}

	return seq, nil
}

// ListComments returns the full log in seq order, as a copy.
func (s *InMemoryStore) ListComments(_ context.Context, ticketID string) ([]model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comments := s.comments[ticketID]
	out := make([]model.Comment, len(comments))
	copy(out, comments)
	return out, nil
}

func (s *InMemoryStore) GetComment(_ context.Context, commentID string) (*model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.findComment(commentID)
	if c == nil {
		return nil, ErrCommentNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) ConfirmComment(_ context.Context, commentID string, at time.Time) (*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findComment(commentID)
	if c == nil {
		return nil, ErrCommentNotFound
	}
	if c.Confirme {
		cp := *c
		return &cp, ErrAlreadyConfirmed
	}
	c.Confirme = true
	t := at
	c.DateConfirmation = &t
	cp := *c
	return &cp, nil
}

// findComment locates the stored comment in place. Callers hold the lock.
func (s *InMemoryStore) findComment(commentID string) *model.Comment {
	ticketID, ok := s.byComment[commentID]
	if !ok {
		return nil
	}
	comments := s.comments[ticketID]
	for i := range comments {
		if comments[i].ID == commentID {
			return &comments[i]
		}
	}
	return nil
}
