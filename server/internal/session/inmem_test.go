package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"techassist/server/internal/model"
)

func TestSaveAndGetCopies(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	sess := &model.DiagnosticSession{ID: "s1", UtilisateurID: "u1", Statut: model.SessionEnCours}
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the saved value must not leak into the store.
	sess.Statut = model.SessionAbandonnee

	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Statut != model.SessionEnCours {
		t.Fatalf("stored statut = %q, want en_cours", got.Statut)
	}

	// And mutating the returned copy must not either.
	got.ScoreTotal = 99
	again, _ := s.Get(ctx, "s1")
	if again.ScoreTotal != 0 {
		t.Fatalf("stored score = %d, want 0", again.ScoreTotal)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing session: got %v, want ErrNotFound", err)
	}
}

func TestListByUser(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for _, sess := range []model.DiagnosticSession{
		{ID: "s1", UtilisateurID: "u1"},
		{ID: "s2", UtilisateurID: "u2"},
		{ID: "s3", UtilisateurID: "u1"},
	} {
		cp := sess
		if err := s.Save(ctx, &cp); err != nil {
			t.Fatalf("Save %s: %v", sess.ID, err)
		}
	}

	got, err := s.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListByUser returned %d sessions, want 2", len(got))
	}
}

func TestAnswersAndRecords(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i, q := range []string{"q1", "q2"} {
		a := &model.Answer{ID: string(rune('a' + i)), SessionID: "s1", QuestionID: q, Score: i, DateCreation: now}
		if err := s.SaveAnswer(ctx, a); err != nil {
			t.Fatalf("SaveAnswer: %v", err)
		}
	}
	answers, err := s.ListAnswers(ctx, "s1")
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 2 || answers[0].QuestionID != "q1" || answers[1].QuestionID != "q2" {
		t.Fatalf("answers out of order: %+v", answers)
	}

	for _, p := range []model.ProbeType{model.ProbeMemoire, model.ProbeReseau} {
		r := &model.DiagnosticRecord{ID: "r-" + string(p), SessionID: "s1", Type: p, Statut: model.StatutOK}
		if err := s.AppendRecord(ctx, r); err != nil {
			t.Fatalf("AppendRecord: %v", err)
		}
	}
	records, err := s.ListRecords(ctx, "s1")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	// Re-running probes starts from a clean slate.
	if err := s.DeleteRecords(ctx, "s1"); err != nil {
		t.Fatalf("DeleteRecords: %v", err)
	}
	records, _ = s.ListRecords(ctx, "s1")
	if len(records) != 0 {
		t.Fatalf("records remain after delete: %+v", records)
	}
}
