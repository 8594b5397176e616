package diagnostic

import "techassist/server/internal/model"

// evalContext is everything a display condition can look at: the answers
// given so far (keyed by question ID) and the probe records of the run.
type evalContext struct {
	answers map[string]model.Answer
	records []model.DiagnosticRecord
}

func newEvalContext(answers []model.Answer, records []model.DiagnosticRecord) *evalContext {
	byQuestion := make(map[string]model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	return &evalContext{answers: byQuestion, records: records}
}

func (e *evalContext) totalScore() int {
	total := 0
	for _, a := range e.answers {
		total += a.Score
	}
	return total
}

// evalCondition decides whether a condition holds. A nil condition and
// any unrecognized kind evaluate to true: a malformed condition must
// surface its question rather than hide it.
func evalCondition(cond *model.Condition, ectx *evalContext) bool {
	if cond == nil {
		return true
	}
	switch cond.Kind {
	case model.ConditionReponse:
		return evalReponse(cond, ectx)
	case model.ConditionScore:
		return ectx.totalScore() >= cond.ScoreMinimum
	case model.ConditionDiagnostic:
		return evalDiagnostic(cond, ectx)
	default:
		return true
	}
}

func evalReponse(cond *model.Condition, ectx *evalContext) bool {
	answer, answered := ectx.answers[cond.QuestionID]
	if !answered || len(cond.ChoixRequis) == 0 {
		return false
	}

	selected := make(map[string]bool, len(answer.ChoixIDs))
	for _, id := range answer.ChoixIDs {
		selected[id] = true
	}

	// OU: any required choice selected. ET (the default): all of them.
	if cond.Operateur == "OU" {
		for _, id := range cond.ChoixRequis {
			if selected[id] {
				return true
			}
		}
		return false
	}
	for _, id := range cond.ChoixRequis {
		if !selected[id] {
			return false
		}
	}
	return true
}

func evalDiagnostic(cond *model.Condition, ectx *evalContext) bool {
	want := cond.StatutRequis
	if want == "" {
		want = model.StatutErreur
	}
	for _, rec := range ectx.records {
		if rec.Type == cond.DiagnosticRequis && rec.Statut == want {
			return true
		}
	}
	return false
}
