package diagnostic

import (
	"context"
	"time"

	"github.com/google/uuid"

	"techassist/server/internal/model"
	"techassist/server/internal/session"
)

// impactFor maps a probe status to its impact level. These weights feed
// directly into the urgency score, so they are part of the scoring
// contract, not presentation.
func impactFor(statut model.ProbeStatus) int {
	switch statut {
	case model.StatutErreur:
		return 8
	case model.StatutAvertissement:
		return 5
	case model.StatutInformatif:
		return 2
	default:
		return 1
	}
}

// tagsFor derives the record's tags: always the probe type and status,
// plus markers when the details carry findings.
func tagsFor(res model.ProbeResult) []string {
	tags := []string{string(res.Type), string(res.Statut)}
	if problems, ok := res.Details["problemes"].([]string); ok && len(problems) > 0 {
		tags = append(tags, "problemes_detectes")
	}
	if _, ok := res.Details["score"]; ok {
		tags = append(tags, "performance_mesuree")
	}
	return tags
}

// recordResults persists one DiagnosticRecord per probe result. The
// execution offset is measured against the shared run start, so the
// records of one batch order themselves.
func recordResults(ctx context.Context, store session.Store, sessionID string, results []model.ProbeResult, runStart time.Time, now func() time.Time) error {
	for _, res := range results {
		rec := &model.DiagnosticRecord{
			ID:             uuid.NewString(),
			SessionID:      sessionID,
			Type:           res.Type,
			Statut:         res.Statut,
			Message:        res.Message,
			Details:        res.Details,
			NiveauImpact:   impactFor(res.Statut),
			Balises:        tagsFor(res),
			DureeExecution: now().Sub(runStart).Seconds(),
			DateCreation:   now(),
		}
		if err := store.AppendRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
