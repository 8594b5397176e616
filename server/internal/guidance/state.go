package guidance

import "techassist/server/internal/model"

// Active reports whether a guidance session is currently running on a
// ticket. The state is not stored anywhere: it is derived from the
// comment log by scanning newest-first for the most recent guidage
// marker. A guidage_debut seen before any guidage_fin means the session
// is still open; a log with no marker at all means no session ever ran.
func Active(comments []model.Comment) bool {
	for i := len(comments) - 1; i >= 0; i-- {
		switch comments[i].Type {
		case model.ActionGuidageDebut:
			return true
		case model.ActionGuidageFin:
			return false
		}
	}
	return false
}

// nextStepNumber returns the step number the next promoted instruction
// should carry: one past the highest numbered instruction on the log,
// or 1 when none is numbered yet.
func nextStepNumber(comments []model.Comment) int {
	max := 0
	for _, c := range comments {
		if c.EstInstruction && c.NumeroEtape > max {
			max = c.NumeroEtape
		}
	}
	return max + 1
}
