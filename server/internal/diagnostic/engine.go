package diagnostic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"techassist/server/internal/catalog"
	"techassist/server/internal/model"
	"techassist/server/internal/notify"
	"techassist/server/internal/session"
)

var (
	ErrSessionClosed      = errors.New("session is not in progress")
	ErrDuplicateAnswer    = errors.New("question already answered")
	ErrUnknownQuestion    = errors.New("question does not belong to this session's category")
	ErrInvalidChoice      = errors.New("choice does not belong to this question")
	ErrUnknownCategory    = errors.New("unknown or inactive category")
	ErrInvalidTransition  = errors.New("invalid session state transition")
	ErrSessionNotComplete = errors.New("session is not complete")
)

// ProbeRunner abstracts the probe battery so tests can substitute fixed
// results.
type ProbeRunner interface {
	RunAll(ctx context.Context) []model.ProbeResult
}

// TicketConverter turns a completed session into a ticket. Wired to the
// ticket service in production; nil disables automatic conversion.
type TicketConverter interface {
	CreateFromSession(ctx context.Context, sess *model.DiagnosticSession, recommendations string) (*model.Ticket, []notify.Event, error)
}

// Engine drives adaptive diagnostic sessions: probe batch, question walk,
// scoring and finalization. All writes go through the session store; the
// engine itself keeps no state.
type Engine struct {
	sessions  session.Store
	cat       catalog.Store
	runner    ProbeRunner
	converter TicketConverter
	log       *zap.Logger
	now       func() time.Time
	newID     func() string
}

func NewEngine(sessions session.Store, cat catalog.Store, runner ProbeRunner, converter TicketConverter, log *zap.Logger) *Engine {
	return &Engine{
		sessions:  sessions,
		cat:       cat,
		runner:    runner,
		converter: converter,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SetClock overrides time and ID generation, for tests.
func (e *Engine) SetClock(now func() time.Time, newID func() string) {
	e.now = now
	e.newID = newID
}

// Start opens a session for the user in the given category and runs the
// initial probe batch. equipementID may be empty when the session is not
// about one specific device.
func (e *Engine) Start(ctx context.Context, userID, categoryID, equipementID string) (*model.DiagnosticSession, error) {
	cat, err := e.cat.GetCategory(ctx, categoryID)
	if err != nil || !cat.Active {
		return nil, ErrUnknownCategory
	}

	now := e.now()
	sess := &model.DiagnosticSession{
		ID:             e.newID(),
		UtilisateurID:  userID,
		CategorieID:    categoryID,
		EquipementID:   equipementID,
		Statut:         model.SessionEnCours,
		Priorite:       model.PrioriteFaible,
		ScoreConfiance: 1.0,
		DateDebut:      now,
		Historique: []model.HistoryEntry{
			{Type: "debut", Date: now},
		},
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	if _, err := e.RunProbes(ctx, sess.ID); err != nil {
		return nil, err
	}

	e.log.Info("diagnostic session started",
		zap.String("session", sess.ID),
		zap.String("utilisateur", userID),
		zap.String("categorie", categoryID))
	return sess, nil
}

// RunProbes wipes the session's probe records and runs the full battery
// again. Returns the fresh records.
func (e *Engine) RunProbes(ctx context.Context, sessionID string) ([]model.DiagnosticRecord, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Statut != model.SessionEnCours {
		return nil, ErrSessionClosed
	}

	if err := e.sessions.DeleteRecords(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("delete records: %w", err)
	}

	runStart := e.now()
	results := e.runner.RunAll(ctx)
	if err := recordResults(ctx, e.sessions, sessionID, results, runStart, e.now); err != nil {
		return nil, fmt.Errorf("record results: %w", err)
	}

	return e.sessions.ListRecords(ctx, sessionID)
}

func (e *Engine) Get(ctx context.Context, sessionID string) (*model.DiagnosticSession, error) {
	return e.sessions.Get(ctx, sessionID)
}

// Records returns the session's stored probe records without running
// anything.
func (e *Engine) Records(ctx context.Context, sessionID string) ([]model.DiagnosticRecord, error) {
	return e.sessions.ListRecords(ctx, sessionID)
}

// Next returns the next question of the walk, or done=true when the walk
// is exhausted and the session should be finalized.
func (e *Engine) Next(ctx context.Context, sessionID string) (*model.Question, bool, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if sess.Statut != model.SessionEnCours {
		return nil, false, ErrSessionClosed
	}

	ectx, questions, err := e.loadEvalContext(ctx, sess)
	if err != nil {
		return nil, false, err
	}

	tmpl, err := e.cat.ActiveTemplate(ctx, sess.CategorieID)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return nil, false, err
	}

	q := nextQuestion(questions, tmpl, ectx)
	if q == nil {
		return nil, true, nil
	}
	return q, false, nil
}

// AnswerInput is one answer submission. Besides the choices it carries
// the user-reported metadata: seconds spent, the uncertainty flag and an
// optional free comment.
type AnswerInput struct {
	QuestionID    string
	ChoixIDs      []string
	TexteLibre    string
	TempsPasse    int
	EstIncertaine bool
	Commentaire   string
}

// SubmitAnswer records the user's answer and refreshes the session's
// running score, confidence and priority. Answering the same question
// twice is rejected.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID string, in AnswerInput) (*model.DiagnosticSession, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Statut != model.SessionEnCours {
		return nil, ErrSessionClosed
	}

	q, err := e.cat.GetQuestion(ctx, in.QuestionID)
	if err != nil || q.CategorieID != sess.CategorieID {
		return nil, ErrUnknownQuestion
	}

	answers, err := e.sessions.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, a := range answers {
		if a.QuestionID == in.QuestionID {
			return nil, ErrDuplicateAnswer
		}
	}

	valid := make(map[string]model.Choice, len(q.Choix))
	for _, c := range q.Choix {
		valid[c.ID] = c
	}
	score := 0
	for _, id := range in.ChoixIDs {
		c, ok := valid[id]
		if !ok {
			return nil, ErrInvalidChoice
		}
		score += c.ScoreCriticite
	}

	now := e.now()
	answer := &model.Answer{
		ID:            e.newID(),
		SessionID:     sessionID,
		QuestionID:    in.QuestionID,
		ChoixIDs:      in.ChoixIDs,
		TexteLibre:    in.TexteLibre,
		Score:         score,
		TempsPasse:    in.TempsPasse,
		EstIncertaine: in.EstIncertaine,
		Commentaire:   in.Commentaire,
		DateCreation:  now,
	}
	if err := e.sessions.SaveAnswer(ctx, answer); err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}

	// Refresh the running score so clients can show urgency live. The
	// confidence is recomputed from the full answer set first, then
	// scales the score.
	answers = append(answers, *answer)
	records, err := e.sessions.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	questions, err := e.questionIndex(ctx, sess.CategorieID)
	if err != nil {
		return nil, err
	}
	sess.ScoreConfiance = confidenceScore(answers)
	sess.TempsTotalPasse += in.TempsPasse
	sess.ScoreTotal, sess.Priorite = computeScore(scoreInput{
		answers:   answers,
		questions: questions,
		records:   records,
		confiance: sess.ScoreConfiance,
	})
	sess.Historique = append(sess.Historique, model.HistoryEntry{
		Type: "reponse",
		Date: now,
		Details: map[string]any{
			"question_id": in.QuestionID,
			"score":       score,
		},
	})
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// FinalizeResult carries everything a client needs to close the loop.
type FinalizeResult struct {
	Session         *model.DiagnosticSession `json:"session"`
	Score           int                      `json:"score"`
	Priorite        model.Priority           `json:"priorite"`
	Recommandations []string                 `json:"recommandations"`
	Texte           string                   `json:"texte"`
	Ticket          *model.Ticket            `json:"ticket,omitempty"`
}

// Finalize computes the final score, priority and recommendations, marks
// the session complete, and converts urgent or critique sessions into a
// ticket when a converter is wired.
func (e *Engine) Finalize(ctx context.Context, sessionID string) (*FinalizeResult, []notify.Event, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Statut != model.SessionEnCours {
		return nil, nil, ErrSessionClosed
	}

	answers, err := e.sessions.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	records, err := e.sessions.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	questions, err := e.questionIndex(ctx, sess.CategorieID)
	if err != nil {
		return nil, nil, err
	}

	now := e.now()
	sess.ScoreConfiance = confidenceScore(answers)
	sess.ScoreTotal, sess.Priorite = computeScore(scoreInput{
		answers:   answers,
		questions: questions,
		records:   records,
		confiance: sess.ScoreConfiance,
	})

	ruleMessages := evaluateRules(ctx, e.cat, e.log, sess.CategorieID, answers, records, now)
	recs := buildRecommendations(recommendInput{
		records:      records,
		answers:      answers,
		questions:    questions,
		choices:      choiceIndex(questions),
		ruleMessages: ruleMessages,
	})

	sess.Statut = model.SessionComplete
	sess.DateCompletion = &now
	sess.Historique = append(sess.Historique, model.HistoryEntry{
		Type: "completion",
		Date: now,
		Details: map[string]any{
			"score":    sess.ScoreTotal,
			"priorite": string(sess.Priorite),
		},
	})

	result := &FinalizeResult{
		Session:         sess,
		Score:           sess.ScoreTotal,
		Priorite:        sess.Priorite,
		Recommandations: recs,
		Texte:           strings.Join(recs, "\n"),
	}

	var events []notify.Event
	if e.converter != nil && (sess.Priorite == model.PrioriteUrgent || sess.Priorite == model.PrioriteCritique) {
		tk, evts, err := e.converter.CreateFromSession(ctx, sess, result.Texte)
		if err != nil {
			// Conversion failure must not lose the diagnostic outcome.
			e.log.Error("auto ticket conversion failed", zap.String("session", sessionID), zap.Error(err))
		} else if tk != nil {
			result.Ticket = tk
			sess.TicketID = tk.ID
			events = append(events, evts...)
		}
	}

	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("save session: %w", err)
	}

	e.log.Info("diagnostic session finalized",
		zap.String("session", sessionID),
		zap.Int("score", sess.ScoreTotal),
		zap.String("priorite", string(sess.Priorite)))
	return result, events, nil
}

// ConvertToTicket creates a ticket from an already completed session on
// demand. Recommendations are recomputed from the stored answers and
// records; the converter's session guard makes repeat calls return the
// existing ticket.
func (e *Engine) ConvertToTicket(ctx context.Context, sessionID string) (*model.Ticket, []notify.Event, error) {
	if e.converter == nil {
		return nil, nil, errors.New("ticket conversion is not configured")
	}
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Statut != model.SessionComplete {
		return nil, nil, ErrSessionNotComplete
	}

	answers, err := e.sessions.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	records, err := e.sessions.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	questions, err := e.questionIndex(ctx, sess.CategorieID)
	if err != nil {
		return nil, nil, err
	}

	ruleMessages := evaluateRules(ctx, e.cat, e.log, sess.CategorieID, answers, records, e.now())
	recs := buildRecommendations(recommendInput{
		records:      records,
		answers:      answers,
		questions:    questions,
		choices:      choiceIndex(questions),
		ruleMessages: ruleMessages,
	})

	tk, events, err := e.converter.CreateFromSession(ctx, sess, strings.Join(recs, "\n"))
	if err != nil {
		return nil, nil, err
	}
	if tk != nil && sess.TicketID != tk.ID {
		sess.TicketID = tk.ID
		if err := e.sessions.Save(ctx, sess); err != nil {
			return nil, nil, fmt.Errorf("save session: %w", err)
		}
	}
	return tk, events, nil
}

// Pause suspends an in-progress session.
func (e *Engine) Pause(ctx context.Context, sessionID string) (*model.DiagnosticSession, error) {
	return e.transition(ctx, sessionID, model.SessionEnCours, model.SessionEnPause, "pause")
}

// Resume puts a paused session back in progress.
func (e *Engine) Resume(ctx context.Context, sessionID string) (*model.DiagnosticSession, error) {
	return e.transition(ctx, sessionID, model.SessionEnPause, model.SessionEnCours, "reprise")
}

// Abandon closes a session without finalizing. Paused sessions can be
// abandoned too.
func (e *Engine) Abandon(ctx context.Context, sessionID string) (*model.DiagnosticSession, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Statut != model.SessionEnCours && sess.Statut != model.SessionEnPause {
		return nil, ErrInvalidTransition
	}
	sess.Statut = model.SessionAbandonnee
	sess.Historique = append(sess.Historique, model.HistoryEntry{Type: "abandon", Date: e.now()})
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (e *Engine) transition(ctx context.Context, sessionID string, from, to model.SessionStatus, entry string) (*model.DiagnosticSession, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Statut != from {
		return nil, ErrInvalidTransition
	}
	sess.Statut = to
	sess.Historique = append(sess.Historique, model.HistoryEntry{Type: entry, Date: e.now()})
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Stats is the session's read model for progress displays.
type Stats struct {
	ReponsesDonnees   int     `json:"reponses_donnees"`
	QuestionsActives  int     `json:"questions_actives"`
	Progression       float64 `json:"progression"`
	ScoreMoyen        float64 `json:"score_moyen"`
	ReponsesCritiques int     `json:"reponses_critiques"`
	DiagnosticsErreur int     `json:"diagnostics_erreur"`
	DiagnosticsAlerte int     `json:"diagnostics_avertissement"`
}

func (e *Engine) Stats(ctx context.Context, sessionID string) (*Stats, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	answers, err := e.sessions.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records, err := e.sessions.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	questions, err := e.cat.ListQuestions(ctx, sess.CategorieID)
	if err != nil {
		return nil, err
	}

	st := &Stats{ReponsesDonnees: len(answers)}
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		if q.Active {
			st.QuestionsActives++
		}
		byID[q.ID] = q
	}
	if st.QuestionsActives > 0 {
		st.Progression = float64(len(answers)) / float64(st.QuestionsActives) * 100
	}

	total := 0
	for _, a := range answers {
		total += a.Score
		if q, ok := byID[a.QuestionID]; ok && q.EstCritique {
			st.ReponsesCritiques++
		}
	}
	if len(answers) > 0 {
		st.ScoreMoyen = float64(total) / float64(len(answers))
	}

	for _, rec := range records {
		switch rec.Statut {
		case model.StatutErreur:
			st.DiagnosticsErreur++
		case model.StatutAvertissement:
			st.DiagnosticsAlerte++
		}
	}
	return st, nil
}

func (e *Engine) loadEvalContext(ctx context.Context, sess *model.DiagnosticSession) (*evalContext, []model.Question, error) {
	answers, err := e.sessions.ListAnswers(ctx, sess.ID)
	if err != nil {
		return nil, nil, err
	}
	records, err := e.sessions.ListRecords(ctx, sess.ID)
	if err != nil {
		return nil, nil, err
	}
	questions, err := e.cat.ListQuestions(ctx, sess.CategorieID)
	if err != nil {
		return nil, nil, err
	}
	return newEvalContext(answers, records), questions, nil
}

func (e *Engine) questionIndex(ctx context.Context, categoryID string) (map[string]model.Question, error) {
	questions, err := e.cat.ListQuestions(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return byID, nil
}

func choiceIndex(questions map[string]model.Question) map[string]model.Choice {
	out := make(map[string]model.Choice)
	for _, q := range questions {
		for _, c := range q.Choix {
			out[c.ID] = c
		}
	}
	return out
}
