package stepwise

import (
	"context"
	"fmt"

	"techassist/server/internal/catalog"
	"techassist/server/internal/model"
)

// Step type discriminators. Execute dispatches on these.
const (
	TypeDiagnosticAuto    = "diagnostic_automatique"
	TypeQuestions         = "questions"
	TypeQuestionsAvancees = "questions_avancees"
	TypeTests             = "tests"
	TypeSynthese          = "synthese"
)

// Step identifiers, stable across the product.
const (
	StepDiagnosticSysteme    = "diagnostic_systeme"
	StepQuestionsPrefiltrage = "questions_prefiltrage"
	StepDiagnosticApprofondi = "diagnostic_approfondi"
	StepTestsInteractifs     = "tests_interactifs"
	StepSynthese             = "synthese"
)

// buildPlan generates the five-phase plan for a category. An active
// template reshapes the deep-dive phase's title; everything else is
// fixed.
func buildPlan(ctx context.Context, cat catalog.Store, categoryID string) (*model.StepPlan, error) {
	category, err := cat.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	prefiltrage, err := prefilterQuestions(ctx, cat, categoryID)
	if err != nil {
		return nil, err
	}

	deepTitle := "Diagnostic approfondi"
	deepDesc := fmt.Sprintf("Questions spécialisées pour %s", category.Nom)
	if tmpl, err := cat.ActiveTemplate(ctx, categoryID); err == nil {
		deepTitle = fmt.Sprintf("Diagnostic: %s", tmpl.Nom)
	}

	return &model.StepPlan{
		Etapes: []model.Step{
			{
				ID:          StepDiagnosticSysteme,
				Type:        TypeDiagnosticAuto,
				Nom:         "Analyse automatique du système",
				Description: "Le système analyse automatiquement votre ordinateur pour détecter les problèmes courants",
				Obligatoire: true,
				TempsEstime: 30,
			},
			{
				ID:          StepQuestionsPrefiltrage,
				Type:        TypeQuestions,
				Nom:         "Questions préliminaires",
				Description: "Quelques questions rapides pour orienter le diagnostic",
				Obligatoire: true,
				TempsEstime: 60,
				QuestionIDs: prefiltrage,
			},
			{
				ID:          StepDiagnosticApprofondi,
				Type:        TypeQuestionsAvancees,
				Nom:         deepTitle,
				Description: deepDesc,
				Obligatoire: false,
				TempsEstime: 180,
			},
			{
				ID:          StepTestsInteractifs,
				Type:        TypeTests,
				Nom:         "Tests interactifs",
				Description: "Tests guidés pour valider les solutions",
				Obligatoire: false,
				TempsEstime: 120,
			},
			{
				ID:          StepSynthese,
				Type:        TypeSynthese,
				Nom:         "Résultats et recommandations",
				Description: "Synthèse du diagnostic et plan d'action",
				Obligatoire: true,
				TempsEstime: 60,
			},
		},
	}, nil
}

// prefilterQuestions picks the category's first three critical active
// questions, in Ordre.
func prefilterQuestions(ctx context.Context, cat catalog.Store, categoryID string) ([]string, error) {
	questions, err := cat.ListQuestions(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, q := range questions {
		if q.Active && q.EstCritique {
			ids = append(ids, q.ID)
			if len(ids) == 3 {
				break
			}
		}
	}
	return ids, nil
}

// adaptQuestions selects the deep-dive questions from the problems the
// automatic phase detected: two tagged questions per detected memoire or
// reseau problem. Without specific problems the category's first five
// active questions apply.
func adaptQuestions(questions []model.Question, problems []string) []string {
	var ids []string
	pick := func(tag string) {
		n := 0
		for _, q := range questions {
			if !q.Active || n == 2 {
				continue
			}
			for _, t := range q.Tags {
				if t == tag {
					ids = append(ids, q.ID)
					n++
					break
				}
			}
		}
	}
	for _, p := range problems {
		switch p {
		case string(model.ProbeMemoire):
			pick("memoire")
		case string(model.ProbeReseau):
			pick("reseau")
		}
	}

	if len(ids) == 0 {
		for _, q := range questions {
			if q.Active {
				ids = append(ids, q.ID)
				if len(ids) == 5 {
					break
				}
			}
		}
	}
	return ids
}
