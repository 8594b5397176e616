package diagnostic

import (
	"sort"

	"techassist/server/internal/model"
)

// nextQuestion returns the next question to ask, or nil when the walk is
// exhausted and the session can be finalized.
//
// An active template takes priority: its bindings are walked in their own
// order, each with its condition override. Without a template the walk
// falls back to the category's root questions in Ordre; sub-questions
// only ever surface through template bindings or their parent's flow.
func nextQuestion(questions []model.Question, tmpl *model.Template, ectx *evalContext) *model.Question {
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	if tmpl != nil && tmpl.Active {
		bindings := append([]model.TemplateQuestion(nil), tmpl.Questions...)
		sort.SliceStable(bindings, func(i, j int) bool { return bindings[i].Ordre < bindings[j].Ordre })

		for _, b := range bindings {
			q, ok := byID[b.QuestionID]
			if !ok || !q.Active {
				continue
			}
			if _, answered := ectx.answers[q.ID]; answered {
				continue
			}
			cond := b.Condition
			if cond == nil {
				cond = q.Condition
			}
			if evalCondition(cond, ectx) {
				return &q
			}
		}
		return nil
	}

	for _, q := range questions {
		if !q.Active || q.ParentID != "" {
			continue
		}
		if _, answered := ectx.answers[q.ID]; answered {
			continue
		}
		if evalCondition(q.Condition, ectx) {
			return &q
		}
	}
	return nil
}
