package diagnostic

import (
	"context"
	"time"

	"go.uber.org/zap"

	"techassist/server/internal/catalog"
	"techassist/server/internal/model"
)

// evaluateRules runs the category's active rules against the answers and
// records, returning the messages of the rules that fired. Bookkeeping is
// written back for every evaluated rule; a rule whose save fails is
// logged and skipped, never fatal.
func evaluateRules(ctx context.Context, store catalog.Store, log *zap.Logger, categoryID string, answers []model.Answer, records []model.DiagnosticRecord, now time.Time) []string {
	rules, err := store.ListRules(ctx, categoryID)
	if err != nil {
		log.Warn("list rules failed", zap.String("categorie", categoryID), zap.Error(err))
		return nil
	}

	var messages []string
	for _, rule := range rules {
		if !rule.Active {
			continue
		}

		fired := ruleFires(rule, answers, records)

		rule.DerniereExecution = &now
		rule.DernierResultat = fired
		if fired {
			rule.DernierMessage = rule.MessageUtilisateur
			messages = append(messages, rule.MessageUtilisateur)
		}
		if err := store.SaveRule(ctx, &rule); err != nil {
			log.Warn("save rule bookkeeping failed", zap.String("regle", rule.ID), zap.Error(err))
		}
	}
	return messages
}

// ruleFires checks the rule's trigger: both the score floor and the
// erreur-probe requirement must hold when present.
func ruleFires(rule model.Rule, answers []model.Answer, records []model.DiagnosticRecord) bool {
	if rule.ScoreMinimum > 0 {
		total := 0
		for _, a := range answers {
			total += a.Score
		}
		if total < rule.ScoreMinimum {
			return false
		}
	}

	if len(rule.DiagnosticErreur) > 0 {
		erreurs := make(map[model.ProbeType]bool)
		for _, rec := range records {
			if rec.Statut == model.StatutErreur {
				erreurs[rec.Type] = true
			}
		}
		found := false
		for _, typ := range rule.DiagnosticErreur {
			if erreurs[typ] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
