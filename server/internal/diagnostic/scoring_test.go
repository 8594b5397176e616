package diagnostic

import (
	"testing"

	"techassist/server/internal/model"
)

// TestComputeScoreWeighting verifies the answer weighting: a critical
// question counts double, an ordinary one once, and probe warnings add
// half their impact.
func TestComputeScoreWeighting(t *testing.T) {
	questions := map[string]model.Question{
		"qc": {ID: "qc", EstCritique: true},
		"qn": {ID: "qn"},
	}
	answers := []model.Answer{
		{QuestionID: "qc", Score: 5},
		{QuestionID: "qn", Score: 3},
	}
	records := []model.DiagnosticRecord{
		{Statut: model.StatutAvertissement, NiveauImpact: 5},
	}

	// 5*2 + 3*1 + 5*0.5 = 15.5, truncated to 15.
	score, _ := computeScore(scoreInput{answers: answers, questions: questions, records: records})
	if score != 15 {
		t.Fatalf("expected score 15, got %d", score)
	}
}

// TestConfidenceScore verifies the answer-derived confidence: certain
// answers count full, uncertain ones half, no answers means 1.0.
func TestConfidenceScore(t *testing.T) {
	if c := confidenceScore(nil); c != 1.0 {
		t.Fatalf("no answers: confidence = %.2f, want 1.0", c)
	}
	answers := []model.Answer{
		{QuestionID: "q1"},
		{QuestionID: "q2", EstIncertaine: true},
	}
	if c := confidenceScore(answers); c != 0.75 {
		t.Fatalf("one uncertain of two: confidence = %.2f, want 0.75", c)
	}
	answers = []model.Answer{{QuestionID: "q1", EstIncertaine: true}}
	if c := confidenceScore(answers); c != 0.5 {
		t.Fatalf("all uncertain: confidence = %.2f, want 0.5", c)
	}
}

// TestComputeScoreConfidenceScaling verifies that the confidence factor
// scales the numeric score before the tier is picked.
func TestComputeScoreConfidenceScaling(t *testing.T) {
	answers := []model.Answer{{QuestionID: "qn", Score: 20}}
	questions := map[string]model.Question{"qn": {ID: "qn"}}

	score, prio := computeScore(scoreInput{answers: answers, questions: questions})
	if score != 20 || prio != model.PrioriteUrgent {
		t.Fatalf("full confidence: got %d/%s, want 20/urgent", score, prio)
	}

	score, prio = computeScore(scoreInput{answers: answers, questions: questions, confiance: 0.5})
	if score != 10 || prio != model.PrioriteNormal {
		t.Fatalf("half confidence: got %d/%s, want 10/normal", score, prio)
	}
}

// TestComputeScoreTierShortCircuits verifies the tier triggers that fire
// regardless of the numeric score.
func TestComputeScoreTierShortCircuits(t *testing.T) {
	// An erreur probe at impact 8 alone forces critique.
	_, prio := computeScore(scoreInput{
		records: []model.DiagnosticRecord{{Statut: model.StatutErreur, NiveauImpact: 8}},
	})
	if prio != model.PrioriteCritique {
		t.Fatalf("impact-8 erreur probe: expected critique, got %s", prio)
	}

	// One answered critical question forces at least urgent.
	questions := map[string]model.Question{"qc": {ID: "qc", EstCritique: true}}
	_, prio = computeScore(scoreInput{
		answers:   []model.Answer{{QuestionID: "qc", Score: 0}},
		questions: questions,
	})
	if prio != model.PrioriteUrgent {
		t.Fatalf("one critical answer: expected urgent, got %s", prio)
	}

	// Two answered critical questions force critique.
	questions["qc2"] = model.Question{ID: "qc2", EstCritique: true}
	_, prio = computeScore(scoreInput{
		answers:   []model.Answer{{QuestionID: "qc", Score: 0}, {QuestionID: "qc2", Score: 0}},
		questions: questions,
	})
	if prio != model.PrioriteCritique {
		t.Fatalf("two critical answers: expected critique, got %s", prio)
	}

	// Two warnings force normal even with a tiny score.
	_, prio = computeScore(scoreInput{
		records: []model.DiagnosticRecord{
			{Statut: model.StatutAvertissement, NiveauImpact: 2},
			{Statut: model.StatutAvertissement, NiveauImpact: 2},
		},
	})
	if prio != model.PrioriteNormal {
		t.Fatalf("two warnings: expected normal, got %s", prio)
	}
}

// TestComputeScoreThresholdTiers verifies the pure numeric tier bounds.
func TestComputeScoreThresholdTiers(t *testing.T) {
	cases := []struct {
		score int
		want  model.Priority
	}{
		{25, model.PrioriteCritique},
		{15, model.PrioriteUrgent},
		{8, model.PrioriteNormal},
		{7, model.PrioriteFaible},
	}
	for _, c := range cases {
		answers := []model.Answer{{QuestionID: "q", Score: c.score}}
		got, prio := computeScore(scoreInput{answers: answers, questions: map[string]model.Question{"q": {ID: "q"}}})
		if got != c.score || prio != c.want {
			t.Fatalf("score %d: got (%d, %s), want (%d, %s)", c.score, got, prio, c.score, c.want)
		}
	}
}

// TestComputeScoreConfiance verifies the confidence multiplier and its
// 1.0 default.
func TestComputeScoreConfiance(t *testing.T) {
	answers := []model.Answer{{QuestionID: "q", Score: 10}}
	questions := map[string]model.Question{"q": {ID: "q"}}

	score, _ := computeScore(scoreInput{answers: answers, questions: questions, confiance: 0.5})
	if score != 5 {
		t.Fatalf("confiance 0.5: expected 5, got %d", score)
	}
	score, _ = computeScore(scoreInput{answers: answers, questions: questions})
	if score != 10 {
		t.Fatalf("default confiance: expected 10, got %d", score)
	}
}

// TestImpactMapping verifies the status-to-impact weights the recorder
// assigns.
func TestImpactMapping(t *testing.T) {
	cases := map[model.ProbeStatus]int{
		model.StatutErreur:        8,
		model.StatutAvertissement: 5,
		model.StatutInformatif:    2,
		model.StatutOK:            1,
	}
	for statut, want := range cases {
		if got := impactFor(statut); got != want {
			t.Fatalf("impactFor(%s) = %d, want %d", statut, got, want)
		}
	}
}

// TestTagsFor verifies the derived record tags.
func TestTagsFor(t *testing.T) {
	res := model.ProbeResult{
		Type:   model.ProbeServices,
		Statut: model.StatutErreur,
		Details: map[string]any{
			"problemes": []string{"Spooler: arrêté"},
		},
	}
	tags := tagsFor(res)
	want := []string{"services", "erreur", "problemes_detectes"}
	if len(tags) != len(want) {
		t.Fatalf("expected %v, got %v", want, tags)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, tags)
		}
	}

	perf := model.ProbeResult{
		Type:    model.ProbePerformance,
		Statut:  model.StatutOK,
		Details: map[string]any{"score": 95},
	}
	tags = tagsFor(perf)
	if tags[len(tags)-1] != "performance_mesuree" {
		t.Fatalf("expected performance_mesuree tag, got %v", tags)
	}
}
