package auth

import (
	"context"
	"errors"

	"techassist/server/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Authenticator resolves a bearer token to a user. The rest of the server
// only ever sees resolved model.User values, so replacing the static
// token table with a real identity provider stays a one-package change.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// Directory answers the user lookups the services need: notification
// targets and auto-assignment candidates.
type Directory interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	ListByRole(ctx context.Context, role model.Role) ([]model.User, error)
}

var ErrUserNotFound = errors.New("user not found")

// Static is a config-backed Authenticator and Directory. It is read-only
// after construction, so no locking.
type Static struct {
	byToken map[string]model.User
	byID    map[string]model.User
	users   []model.User
}

// NewStatic indexes the given users by token and by ID.
func NewStatic(tokens map[string]model.User) *Static {
	s := &Static{
		byToken: make(map[string]model.User, len(tokens)),
		byID:    make(map[string]model.User, len(tokens)),
	}
	for token, u := range tokens {
		s.byToken[token] = u
		s.byID[u.ID] = u
		s.users = append(s.users, u)
	}
	return s
}

func (s *Static) Authenticate(_ context.Context, token string) (*model.User, error) {
	u, ok := s.byToken[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	if !u.Actif {
		return nil, ErrInvalidToken
	}
	return &u, nil
}

func (s *Static) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// ListByRole returns the active users holding the given role.
func (s *Static) ListByRole(_ context.Context, role model.Role) ([]model.User, error) {
	var out []model.User
	for _, u := range s.users {
		if u.Role == role && u.Actif {
			out = append(out, u)
		}
	}
	return out, nil
}
