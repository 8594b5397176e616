package diagnostic

import (
	"testing"

	"techassist/server/internal/model"
)

func treeQuestions() []model.Question {
	return []model.Question{
		{ID: "q1", CategorieID: "cat", Titre: "Q1", Ordre: 1, Active: true},
		{ID: "q2", CategorieID: "cat", Titre: "Q2", Ordre: 2, Active: true},
		{ID: "q3", CategorieID: "cat", Titre: "Q3", Ordre: 3, Active: false},
		{ID: "q4", CategorieID: "cat", Titre: "Q4", Ordre: 4, Active: true, ParentID: "q1"},
		{ID: "q5", CategorieID: "cat", Titre: "Q5", Ordre: 5, Active: true},
	}
}

// TestNextQuestionRootWalk verifies the fallback walk: root-level active
// questions in Ordre, answered and inactive ones skipped, sub-questions
// never surfacing on their own.
func TestNextQuestionRootWalk(t *testing.T) {
	questions := treeQuestions()

	q := nextQuestion(questions, nil, ectxWith(nil, nil))
	if q == nil || q.ID != "q1" {
		t.Fatalf("expected q1 first, got %v", q)
	}

	ectx := ectxWith([]model.Answer{{QuestionID: "q1"}, {QuestionID: "q2"}}, nil)
	q = nextQuestion(questions, nil, ectx)
	if q == nil || q.ID != "q5" {
		t.Fatalf("expected q5 (q3 inactive, q4 is a sub-question), got %v", q)
	}

	ectx = ectxWith([]model.Answer{{QuestionID: "q1"}, {QuestionID: "q2"}, {QuestionID: "q5"}}, nil)
	if q := nextQuestion(questions, nil, ectx); q != nil {
		t.Fatalf("walk exhausted, expected nil, got %s", q.ID)
	}
}

// TestNextQuestionRootWalkCondition verifies that a question whose own
// condition fails is passed over in favor of the next eligible one.
func TestNextQuestionRootWalkCondition(t *testing.T) {
	questions := treeQuestions()
	questions[1].Condition = &model.Condition{
		Kind:             model.ConditionDiagnostic,
		DiagnosticRequis: model.ProbeMemoire,
	}

	// No memoire erreur on record: q2 hides, q5 surfaces.
	ectx := ectxWith([]model.Answer{{QuestionID: "q1"}}, nil)
	q := nextQuestion(questions, nil, ectx)
	if q == nil || q.ID != "q5" {
		t.Fatalf("expected q5 while q2's condition fails, got %v", q)
	}

	records := []model.DiagnosticRecord{{Type: model.ProbeMemoire, Statut: model.StatutErreur}}
	ectx = ectxWith([]model.Answer{{QuestionID: "q1"}}, records)
	q = nextQuestion(questions, nil, ectx)
	if q == nil || q.ID != "q2" {
		t.Fatalf("expected q2 once its condition holds, got %v", q)
	}
}

// TestNextQuestionTemplatePriority verifies that an active template
// drives the walk in its own order and can surface sub-questions, and
// that an exhausted template does not fall back to the root walk.
func TestNextQuestionTemplatePriority(t *testing.T) {
	questions := treeQuestions()
	tmpl := &model.Template{
		ID:          "t1",
		CategorieID: "cat",
		Active:      true,
		Questions: []model.TemplateQuestion{
			{QuestionID: "q4", Ordre: 1},
			{QuestionID: "q2", Ordre: 2},
		},
	}

	q := nextQuestion(questions, tmpl, ectxWith(nil, nil))
	if q == nil || q.ID != "q4" {
		t.Fatalf("expected template's q4 first, got %v", q)
	}

	ectx := ectxWith([]model.Answer{{QuestionID: "q4"}, {QuestionID: "q2"}}, nil)
	if q := nextQuestion(questions, tmpl, ectx); q != nil {
		t.Fatalf("template exhausted, expected nil, got %s", q.ID)
	}
}

// TestNextQuestionTemplateConditionOverride verifies that a template
// binding's condition replaces the question's own.
func TestNextQuestionTemplateConditionOverride(t *testing.T) {
	questions := treeQuestions()
	// q2's own condition would hide it.
	questions[1].Condition = &model.Condition{
		Kind:             model.ConditionDiagnostic,
		DiagnosticRequis: model.ProbeMemoire,
	}
	tmpl := &model.Template{
		ID:          "t1",
		CategorieID: "cat",
		Active:      true,
		Questions: []model.TemplateQuestion{
			// The binding overrides with an always-true condition.
			{QuestionID: "q2", Ordre: 1, Condition: &model.Condition{}},
		},
	}

	q := nextQuestion(questions, tmpl, ectxWith(nil, nil))
	if q == nil || q.ID != "q2" {
		t.Fatalf("expected override to surface q2, got %v", q)
	}
}
