package diagnostic

import "techassist/server/internal/model"

// scoreInput gathers everything the urgency computation reads. Questions
// are keyed by ID so answers can be weighted by criticality.
type scoreInput struct {
	answers   []model.Answer
	questions map[string]model.Question
	records   []model.DiagnosticRecord
	// confiance scales the final score; zero or negative means the
	// default of 1.0.
	confiance float64
}

// computeScore produces the urgency score and its priority tier.
//
// The score sums the answer scores, doubled for critical questions, plus
// the probe impact (full weight for errors, half for warnings), scaled by
// the confidence factor. The returned score is the integer truncation.
//
// Tier checks short-circuit in order: any single critique trigger wins
// before urgent is considered, and so on down.
// confidenceScore derives the session confidence from the answers given
// so far: a certain answer counts full, an uncertain one half. No
// answers means full confidence.
func confidenceScore(answers []model.Answer) float64 {
	if len(answers) == 0 {
		return 1.0
	}
	weight := 0.0
	for _, a := range answers {
		if a.EstIncertaine {
			weight += 0.5
		} else {
			weight++
		}
	}
	return weight / float64(len(answers))
}

func computeScore(in scoreInput) (int, model.Priority) {
	total := 0.0
	criticalAnswers := 0
	for _, a := range in.answers {
		weight := 1
		if q, ok := in.questions[a.QuestionID]; ok && q.EstCritique {
			weight = 2
			criticalAnswers++
		}
		total += float64(a.Score * weight)
	}

	erreurCount, avertissementCount := 0, 0
	maxErreurImpact := 0
	for _, rec := range in.records {
		switch rec.Statut {
		case model.StatutErreur:
			erreurCount++
			total += float64(rec.NiveauImpact)
			if rec.NiveauImpact > maxErreurImpact {
				maxErreurImpact = rec.NiveauImpact
			}
		case model.StatutAvertissement:
			avertissementCount++
			total += float64(rec.NiveauImpact) * 0.5
		}
	}

	confiance := in.confiance
	if confiance <= 0 {
		confiance = 1.0
	}
	final := total * confiance

	switch {
	case final >= 25 || maxErreurImpact >= 8 || criticalAnswers >= 2:
		return int(final), model.PrioriteCritique
	case final >= 15 || erreurCount > 0 || criticalAnswers >= 1:
		return int(final), model.PrioriteUrgent
	case final >= 8 || avertissementCount >= 2:
		return int(final), model.PrioriteNormal
	default:
		return int(final), model.PrioriteFaible
	}
}
