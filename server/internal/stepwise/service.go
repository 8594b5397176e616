package stepwise

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"techassist/server/internal/catalog"
	"techassist/server/internal/diagnostic"
	"techassist/server/internal/model"
	"techassist/server/internal/notify"
	"techassist/server/internal/session"
)

var (
	ErrNoStep        = errors.New("aucune étape à exécuter")
	ErrNotStepwise   = errors.New("session has no step plan")
	ErrOutOfRange    = errors.New("navigation out of plan bounds")
	ErrNoAnswers     = errors.New("aucune réponse fournie")
	ErrSessionClosed = errors.New("session is not in progress")
)

// Service drives the guided five-phase diagnostic. It owns the plan
// cursor; the heavy lifting (probes, answers, scoring) is delegated to
// the diagnostic engine so both entry points share one set of semantics.
type Service struct {
	sessions session.Store
	cat      catalog.Store
	engine   *diagnostic.Engine
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

func New(sessions session.Store, cat catalog.Store, engine *diagnostic.Engine, log *zap.Logger) *Service {
	return &Service{
		sessions: sessions,
		cat:      cat,
		engine:   engine,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetClock overrides time and ID generation, for tests.
func (s *Service) SetClock(now func() time.Time, newID func() string) {
	s.now = now
	s.newID = newID
}

// Start opens a stepwise session: the plan is generated and stored, but
// nothing executes until the first Execute call.
func (s *Service) Start(ctx context.Context, userID, categoryID, equipementID string) (*model.DiagnosticSession, error) {
	if cat, err := s.cat.GetCategory(ctx, categoryID); err != nil || !cat.Active {
		return nil, diagnostic.ErrUnknownCategory
	}

	plan, err := buildPlan(ctx, s.cat, categoryID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &model.DiagnosticSession{
		ID:             s.newID(),
		UtilisateurID:  userID,
		CategorieID:    categoryID,
		EquipementID:   equipementID,
		Statut:         model.SessionEnCours,
		Priorite:       model.PrioriteFaible,
		ScoreConfiance: 1.0,
		DateDebut:      now,
		Plan:           plan,
		Historique: []model.HistoryEntry{
			{Type: "debut", Date: now, Details: map[string]any{"par_etapes": true}},
		},
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.log.Info("stepwise session started",
		zap.String("session", sess.ID),
		zap.String("categorie", categoryID))
	return sess, nil
}

// Progression locates the cursor inside the plan for clients.
type Progression struct {
	EtapeCourante int `json:"etape_courante"`
	TotalEtapes   int `json:"total_etapes"`
	Pourcentage   int `json:"pourcentage"`
}

// PlanView is the read model of a stepwise session.
type PlanView struct {
	Session     *model.DiagnosticSession `json:"session"`
	Etapes      []model.Step             `json:"etapes"`
	EtapeActive *model.Step              `json:"etape_active,omitempty"`
	Progression Progression              `json:"progression"`
	Termine     bool                     `json:"termine"`
}

func (s *Service) Plan(ctx context.Context, sessionID string) (*PlanView, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Plan == nil {
		return nil, ErrNotStepwise
	}
	return planView(sess), nil
}

func planView(sess *model.DiagnosticSession) *PlanView {
	plan := sess.Plan
	view := &PlanView{
		Session: sess,
		Etapes:  plan.Etapes,
		Progression: Progression{
			EtapeCourante: plan.EtapeActuelle + 1,
			TotalEtapes:   len(plan.Etapes),
			Pourcentage:   int(math.Round(float64(len(plan.EtapesCompletees)) / float64(len(plan.Etapes)) * 100)),
		},
		Termine: plan.EtapeActuelle >= len(plan.Etapes),
	}
	if !view.Termine {
		step := plan.Etapes[plan.EtapeActuelle]
		view.EtapeActive = &step
	}
	return view
}

// AnswerInput is one question's answer inside an Execute call.
type AnswerInput struct {
	ChoixIDs      []string `json:"choix_ids"`
	Texte         string   `json:"texte,omitempty"`
	TempsPasse    int      `json:"temps_passe,omitempty"`
	EstIncertaine bool     `json:"est_incertaine,omitempty"`
	Commentaire   string   `json:"commentaire,omitempty"`
}

// TestResult is the client-reported outcome of one interactive test.
type TestResult struct {
	Succes  bool           `json:"succes"`
	Details map[string]any `json:"details,omitempty"`
}

// ExecuteInput carries the client data the current step consumes.
type ExecuteInput struct {
	Reponses       map[string]AnswerInput `json:"reponses,omitempty"`
	ResultatsTests map[string]TestResult  `json:"resultats_tests,omitempty"`
}

// ExecuteResult reports one completed step and where the plan stands.
type ExecuteResult struct {
	EtapeCompletee model.Step                 `json:"etape_completee"`
	Resultats      map[string]any             `json:"resultats"`
	ProchaineEtape *model.Step                `json:"prochaine_etape,omitempty"`
	Progression    Progression                `json:"progression"`
	Termine        bool                       `json:"diagnostic_termine"`
	Synthese       *diagnostic.FinalizeResult `json:"synthese,omitempty"`
}

// Execute runs the step under the cursor, appends its completion record,
// advances the cursor and reports progress. Executing past the end of
// the plan is an error.
func (s *Service) Execute(ctx context.Context, sessionID string, input ExecuteInput) (*ExecuteResult, []notify.Event, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Plan == nil {
		return nil, nil, ErrNotStepwise
	}
	if sess.Statut != model.SessionEnCours {
		return nil, nil, ErrSessionClosed
	}
	plan := sess.Plan
	if plan.EtapeActuelle >= len(plan.Etapes) {
		return nil, nil, ErrNoStep
	}

	step := plan.Etapes[plan.EtapeActuelle]

	var (
		resultats map[string]any
		synthese  *diagnostic.FinalizeResult
		events    []notify.Event
	)
	switch step.Type {
	case TypeDiagnosticAuto:
		resultats, err = s.runDiagnosticStep(ctx, sessionID)
	case TypeQuestions:
		resultats, err = s.runQuestionsStep(ctx, sessionID, step.QuestionIDs, input)
	case TypeQuestionsAvancees:
		resultats, err = s.runAdvancedStep(ctx, sess, input)
	case TypeTests:
		resultats = runTestsStep(input)
	case TypeSynthese:
		synthese, events, err = s.engine.Finalize(ctx, sessionID)
		if err == nil {
			resultats = map[string]any{
				"priorite_finale": string(synthese.Priorite),
				"score_total":     synthese.Score,
				"recommandations": synthese.Texte,
			}
		}
	default:
		return nil, nil, errors.New("type d'étape non supporté: " + step.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	// The engine mutated the session during the step; reload before
	// writing the cursor so nothing is lost.
	sess, err = s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	plan = sess.Plan

	now := s.now()
	plan.EtapesCompletees = append(plan.EtapesCompletees, model.StepCompletion{
		EtapeID:        step.ID,
		DateCompletion: now,
		Resultats:      resultats,
	})
	plan.EtapeActuelle++
	sess.Historique = append(sess.Historique, model.HistoryEntry{
		Type: "etape_completee",
		Date: now,
		Details: map[string]any{
			"etape_id":    step.ID,
			"etape_titre": step.Nom,
		},
	})
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, nil, err
	}

	result := &ExecuteResult{
		EtapeCompletee: step,
		Resultats:      resultats,
		Progression: Progression{
			EtapeCourante: plan.EtapeActuelle + 1,
			TotalEtapes:   len(plan.Etapes),
			Pourcentage:   int(math.Round(float64(len(plan.EtapesCompletees)) / float64(len(plan.Etapes)) * 100)),
		},
		Termine:  plan.EtapeActuelle >= len(plan.Etapes),
		Synthese: synthese,
	}
	if !result.Termine {
		next := plan.Etapes[plan.EtapeActuelle]
		result.ProchaineEtape = &next
	}
	return result, events, nil
}

// Navigate moves the cursor one step forward or backward without
// executing anything.
func (s *Service) Navigate(ctx context.Context, sessionID string, delta int) (*PlanView, error) {
	if delta != 1 && delta != -1 {
		return nil, ErrOutOfRange
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Plan == nil {
		return nil, ErrNotStepwise
	}

	from := sess.Plan.EtapeActuelle
	target := from + delta
	if target < 0 || target >= len(sess.Plan.Etapes) {
		return nil, ErrOutOfRange
	}
	sess.Plan.EtapeActuelle = target
	sess.Historique = append(sess.Historique, model.HistoryEntry{
		Type: "etape_navigation",
		Date: s.now(),
		Details: map[string]any{
			"de":   from,
			"vers": target,
		},
	})
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return planView(sess), nil
}

// runDiagnosticStep executes the probe batch and summarizes the findings
// the later phases adapt on.
func (s *Service) runDiagnosticStep(ctx context.Context, sessionID string) (map[string]any, error) {
	records, err := s.engine.RunProbes(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var problems []map[string]any
	score := 0
	for _, rec := range records {
		switch rec.Statut {
		case model.StatutErreur:
			problems = append(problems, map[string]any{
				"type": string(rec.Type), "message": rec.Message, "severite": "critique",
			})
			score += 10
		case model.StatutAvertissement:
			problems = append(problems, map[string]any{
				"type": string(rec.Type), "message": rec.Message, "severite": "moyen",
			})
			score += 5
		}
	}

	return map[string]any{
		"diagnostics":        len(records),
		"problemes_detectes": problems,
		"score_global":       score,
	}, nil
}

// runQuestionsStep records the provided answers through the engine. An
// unknown question is logged and skipped, as is a duplicate; an empty
// input is rejected.
func (s *Service) runQuestionsStep(ctx context.Context, sessionID string, questionIDs []string, input ExecuteInput) (map[string]any, error) {
	if len(input.Reponses) == 0 {
		return nil, ErrNoAnswers
	}

	asked := make(map[string]bool, len(questionIDs))
	for _, id := range questionIDs {
		asked[id] = true
	}

	recorded := 0
	scoreEtape := 0
	for questionID, answer := range input.Reponses {
		if len(asked) > 0 && !asked[questionID] {
			s.log.Warn("answer outside step scope ignored",
				zap.String("session", sessionID), zap.String("question", questionID))
			continue
		}
		sess, err := s.engine.SubmitAnswer(ctx, sessionID, diagnostic.AnswerInput{
			QuestionID:    questionID,
			ChoixIDs:      answer.ChoixIDs,
			TexteLibre:    answer.Texte,
			TempsPasse:    answer.TempsPasse,
			EstIncertaine: answer.EstIncertaine,
			Commentaire:   answer.Commentaire,
		})
		if err != nil {
			s.log.Warn("answer rejected",
				zap.String("session", sessionID),
				zap.String("question", questionID),
				zap.Error(err))
			continue
		}
		recorded++
		scoreEtape = sess.ScoreTotal
	}

	return map[string]any{
		"reponses_enregistrees": recorded,
		"score_session":         scoreEtape,
	}, nil
}

// runAdvancedStep adapts the deep-dive questions to the problems the
// automatic phase found, then records answers like a questions step.
func (s *Service) runAdvancedStep(ctx context.Context, sess *model.DiagnosticSession, input ExecuteInput) (map[string]any, error) {
	questions, err := s.cat.ListQuestions(ctx, sess.CategorieID)
	if err != nil {
		return nil, err
	}

	ids := adaptQuestions(questions, detectedProblems(sess.Plan))
	out, err := s.runQuestionsStep(ctx, sess.ID, ids, input)
	if err != nil {
		return nil, err
	}
	out["questions_adaptees"] = ids
	return out, nil
}

// detectedProblems extracts the problem types the diagnostic_systeme
// completion recorded.
func detectedProblems(plan *model.StepPlan) []string {
	var out []string
	for _, done := range plan.EtapesCompletees {
		if done.EtapeID != StepDiagnosticSysteme {
			continue
		}
		switch problems := done.Resultats["problemes_detectes"].(type) {
		case []map[string]any:
			for _, p := range problems {
				if typ, ok := p["type"].(string); ok {
					out = append(out, typ)
				}
			}
		case []any: // decoded from storage
			for _, item := range problems {
				if p, ok := item.(map[string]any); ok {
					if typ, ok := p["type"].(string); ok {
						out = append(out, typ)
					}
				}
			}
		}
	}
	return out
}

func runTestsStep(input ExecuteInput) map[string]any {
	total := len(input.ResultatsTests)
	passed := 0
	for _, res := range input.ResultatsTests {
		if res.Succes {
			passed++
		}
	}
	taux := 0.0
	if total > 0 {
		taux = float64(passed) / float64(total) * 100
	}
	return map[string]any{
		"tests_reussis": passed,
		"tests_total":   total,
		"taux_succes":   taux,
	}
}
