package auth

import (
	"context"
	"errors"
	"testing"

	"techassist/server/internal/model"
)

func newTestStatic() *Static {
	return NewStatic(map[string]model.User{
		"tok-emp": {ID: "emp-1", Email: "emp@example.com", Prenom: "Sophie", Nom: "Martin", Role: model.RoleEmploye, Actif: true},
		"tok-tec": {ID: "tec-1", Email: "tec@example.com", Prenom: "Karim", Nom: "Benali", Role: model.RoleTechnicien, Actif: true},
		"tok-off": {ID: "tec-2", Email: "off@example.com", Role: model.RoleTechnicien, Actif: false},
	})
}

func TestAuthenticate(t *testing.T) {
	s := newTestStatic()
	ctx := context.Background()

	u, err := s.Authenticate(ctx, "tok-emp")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u.ID != "emp-1" || u.Role != model.RoleEmploye {
		t.Fatalf("unexpected user %+v", u)
	}

	if _, err := s.Authenticate(ctx, "nope"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("unknown token: got %v, want ErrInvalidToken", err)
	}
	// Deactivated accounts keep their token but cannot log in.
	if _, err := s.Authenticate(ctx, "tok-off"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("inactive user: got %v, want ErrInvalidToken", err)
	}
}

func TestGetByID(t *testing.T) {
	s := newTestStatic()

	u, err := s.GetByID(context.Background(), "tec-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if u.FullName() != "Karim Benali" {
		t.Fatalf("FullName = %q", u.FullName())
	}
	if _, err := s.GetByID(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("missing user: got %v, want ErrUserNotFound", err)
	}
}

// ListByRole skips inactive users so they never receive notifications or
// auto-assignments.
func TestListByRoleSkipsInactive(t *testing.T) {
	s := newTestStatic()

	techs, err := s.ListByRole(context.Background(), model.RoleTechnicien)
	if err != nil {
		t.Fatalf("ListByRole: %v", err)
	}
	if len(techs) != 1 || techs[0].ID != "tec-1" {
		t.Fatalf("ListByRole = %+v, want only tec-1", techs)
	}
}
