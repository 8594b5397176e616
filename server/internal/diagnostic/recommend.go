package diagnostic

import (
	"fmt"

	"techassist/server/internal/model"
	"techassist/server/internal/probe"
)

type recommendInput struct {
	records      []model.DiagnosticRecord
	answers      []model.Answer
	questions    map[string]model.Question
	choices      map[string]model.Choice
	ruleMessages []string
}

// buildRecommendations assembles the user-facing advice list. It is
// never empty: a clean run still yields the monitoring fallback, and the
// list always closes with a contact-urgency line.
func buildRecommendations(in recommendInput) []string {
	var recs []string

	for _, rec := range in.records {
		if rec.Statut != model.StatutErreur {
			continue
		}
		switch rec.Type {
		case model.ProbeMemoire:
			recs = append(recs,
				"• Fermez les applications non nécessaires pour libérer de la mémoire",
				"• Redémarrez votre ordinateur si le problème persiste")
		case model.ProbeDisque:
			recs = append(recs,
				"• Libérez de l'espace disque en supprimant les fichiers temporaires",
				"• Videz la corbeille et nettoyez le cache des navigateurs")
		case model.ProbeReseau:
			recs = append(recs,
				"• Vérifiez votre connexion Internet",
				"• Redémarrez votre modem/routeur")
		case model.ProbeServices:
			recs = append(recs,
				"• Contactez un technicien pour redémarrer les services Windows")
		case model.ProbeSecurite:
			recs = append(recs,
				"• Activez votre antivirus et lancez une analyse complète",
				"• Installez les mises à jour de sécurité en attente")
		}
	}

	recs = append(recs, appAdvice(in.records)...)

	for _, a := range in.answers {
		if a.Score < 8 {
			continue
		}
		if q, ok := in.questions[a.QuestionID]; ok && q.EstCritique {
			recs = append(recs,
				fmt.Sprintf("• Problème critique détecté : %s", q.Titre),
				"• Contactez immédiatement le support technique")
		}
	}

	for _, msg := range in.ruleMessages {
		recs = append(recs, "• "+msg)
	}

	if len(recs) == 0 {
		recs = append(recs,
			"• Aucun problème critique détecté",
			"• Surveillez votre système et contactez le support si nécessaire")
	}

	recs = append(recs, contactBanner(problemTags(in)))
	return recs
}

// appAdvice turns the heavy-process samples of the logiciels and
// performance probes into per-application advice, one line per distinct
// application.
func appAdvice(records []model.DiagnosticRecord) []string {
	var recs []string
	seen := make(map[string]bool)
	heavy := false

	for _, rec := range records {
		if rec.Type != model.ProbeLogiciels && rec.Type != model.ProbePerformance {
			continue
		}
		for _, s := range processSamples(rec.Details) {
			if seen[s.Nom] {
				continue
			}
			switch {
			case s.CPU > 50:
				seen[s.Nom] = true
				heavy = true
				recs = append(recs, fmt.Sprintf("• Fermez ou redémarrez %s qui consomme %.0f%% du processeur", s.Nom, s.CPU))
			case s.Mem > 15:
				seen[s.Nom] = true
				heavy = true
				recs = append(recs, fmt.Sprintf("• %s utilise %.0f%% de la mémoire, envisagez de le fermer", s.Nom, s.Mem))
			}
		}
	}

	if heavy {
		recs = append(recs, "• Applications gourmandes détectées, fermez celles que vous n'utilisez pas")
	}
	return recs
}

// processSamples extracts the probe's process list from record details,
// whether they are still typed (in-process) or decoded from JSON.
func processSamples(details map[string]any) []probe.ProcessSample {
	raw, ok := details["processus"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []probe.ProcessSample:
		return v
	case []any:
		var out []probe.ProcessSample
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			s := probe.ProcessSample{}
			if nom, ok := m["nom"].(string); ok {
				s.Nom = nom
			}
			if cpu, ok := m["cpu"].(float64); ok {
				s.CPU = cpu
			}
			if mem, ok := m["memoire"].(float64); ok {
				s.Mem = mem
			}
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

// problemTags collects the problem markers of the session: tags carried
// by the selected choices plus markers derived from the probe records.
func problemTags(in recommendInput) map[string]bool {
	tags := make(map[string]bool)

	for _, a := range in.answers {
		for _, choixID := range a.ChoixIDs {
			if c, ok := in.choices[choixID]; ok {
				for _, tag := range c.ProblemeTags {
					tags[tag] = true
				}
			}
		}
	}

	for _, rec := range in.records {
		if _, ok := rec.Details["processus_suspect"]; ok {
			tags["processus_suspect"] = true
		}
		if rec.Statut != model.StatutErreur {
			continue
		}
		switch rec.Type {
		case model.ProbeMemoire:
			tags["memoire_critique"] = true
		case model.ProbeCPU:
			tags["cpu_surcharge"] = true
		case model.ProbeServices:
			tags["services_arretes"] = true
		}
	}
	return tags
}

// contactBanner picks the single closing contact line from the worst
// problem tag present.
func contactBanner(tags map[string]bool) string {
	if tags["processus_suspect"] || tags["disque_bruit"] {
		return "• Contactez le support technique immédiatement"
	}
	if tags["memoire_critique"] || tags["cpu_surcharge"] || tags["services_arretes"] {
		return "• Contactez le support technique dans les 24 heures"
	}
	return "• Contactez le support si le problème persiste"
}
