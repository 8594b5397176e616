package model

import "time"

type ProbeType string

const (
	ProbeMemoire     ProbeType = "memoire"
	ProbeDisque      ProbeType = "disque"
	ProbeReseau      ProbeType = "reseau"
	ProbeCPU         ProbeType = "cpu"
	ProbeServices    ProbeType = "services"
	ProbeLogiciels   ProbeType = "logiciels"
	ProbeSecurite    ProbeType = "securite"
	ProbePerformance ProbeType = "performance"
	ProbeSysteme     ProbeType = "systeme"
)

type ProbeStatus string

const (
	StatutOK            ProbeStatus = "ok"
	StatutAvertissement ProbeStatus = "avertissement"
	StatutErreur        ProbeStatus = "erreur"
	StatutInformatif    ProbeStatus = "informatif"
)

// ProbeResult is what a single probe produces. Details is free-form and
// probe-specific; the recorder derives impact and tags from it.
type ProbeResult struct {
	Type    ProbeType      `json:"type"`
	Statut  ProbeStatus    `json:"statut"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// DiagnosticRecord is a persisted probe result, enriched by the recorder
// with impact, tags and the execution offset relative to the run start.
type DiagnosticRecord struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	Type           ProbeType      `json:"type"`
	Statut         ProbeStatus    `json:"statut"`
	Message        string         `json:"message"`
	Details        map[string]any `json:"details,omitempty"`
	NiveauImpact   int            `json:"niveau_impact"`
	Balises        []string       `json:"balises"`
	DureeExecution float64        `json:"duree_execution"`
	DateCreation   time.Time      `json:"date_creation"`
}

type SessionStatus string

const (
	SessionEnCours    SessionStatus = "en_cours"
	SessionComplete   SessionStatus = "complete"
	SessionAbandonnee SessionStatus = "abandonnee"
	SessionEnPause    SessionStatus = "en_pause"
)

// DiagnosticSession is the snapshot reduced from a user's adaptive
// diagnostic run. Probe records and answers live in the session store,
// scoped by session ID; the snapshot carries the aggregates.
type DiagnosticSession struct {
	ID            string        `json:"id"`
	UtilisateurID string        `json:"utilisateur_id"`
	CategorieID   string        `json:"categorie_id"`
	// EquipementID ties the session to one piece of equipment when the
	// user named one; empty otherwise.
	EquipementID string        `json:"equipement_id,omitempty"`
	Statut       SessionStatus `json:"statut"`
	ScoreTotal   int           `json:"score_total"`
	Priorite     Priority      `json:"priorite"`
	// ScoreConfiance weighs the answers' reliability (0 to 1). Uncertain
	// answers pull it down and scale the total score with it.
	ScoreConfiance float64 `json:"score_confiance"`
	// TempsTotalPasse accumulates the per-answer time in seconds.
	TempsTotalPasse int        `json:"temps_total_passe"`
	DateDebut       time.Time  `json:"date_debut"`
	DateCompletion  *time.Time `json:"date_completion,omitempty"`

	// Plan is set only for stepwise sessions.
	Plan *StepPlan `json:"plan,omitempty"`

	// Historique is append-only audit; every state transition adds one
	// entry.
	Historique []HistoryEntry `json:"historique"`

	// TicketID is set once the session has been converted to a ticket,
	// guarding against duplicate conversion.
	TicketID string `json:"ticket_id,omitempty"`
}

type HistoryEntry struct {
	Type    string         `json:"type"`
	Date    time.Time      `json:"date"`
	Details map[string]any `json:"details,omitempty"`
}

type Category struct {
	ID          string `json:"id"`
	Nom         string `json:"nom"`
	Description string `json:"description,omitempty"`
	Ordre       int    `json:"ordre"`
	Active      bool   `json:"active"`
}

// Question is a catalog entry of the decision tree. Root questions have an
// empty ParentID; sub-questions surface only through their display
// condition.
type Question struct {
	ID          string     `json:"id"`
	CategorieID string     `json:"categorie_id"`
	Titre       string     `json:"titre"`
	Texte       string     `json:"texte"`
	TypeReponse string     `json:"type_reponse"`
	Ordre       int        `json:"ordre"`
	Active      bool       `json:"active"`
	EstCritique bool       `json:"est_critique"`
	ParentID    string     `json:"parent_id,omitempty"`
	Condition   *Condition `json:"condition,omitempty"`
	Aide        string     `json:"aide,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Choix       []Choice   `json:"choix,omitempty"`
}

type Choice struct {
	ID             string   `json:"id"`
	QuestionID     string   `json:"question_id"`
	Texte          string   `json:"texte"`
	Valeur         string   `json:"valeur"`
	ScoreCriticite int      `json:"score_criticite"`
	Ordre          int      `json:"ordre"`
	ProblemeTags   []string `json:"probleme_tags,omitempty"`
}

// Answer stores the raw selection; Score is the sum of the selected
// choices' criticality scores, before any critical-question weighting.
type Answer struct {
	ID         string   `json:"id"`
	SessionID  string   `json:"session_id"`
	QuestionID string   `json:"question_id"`
	ChoixIDs   []string `json:"choix_ids"`
	TexteLibre string   `json:"texte_libre,omitempty"`
	Score      int      `json:"score"`
	// TempsPasse is the seconds the user spent on the question.
	TempsPasse int `json:"temps_passe"`
	// EstIncertaine marks an answer the user flagged as a guess.
	EstIncertaine bool      `json:"est_incertaine"`
	Commentaire   string    `json:"commentaire,omitempty"`
	DateCreation  time.Time `json:"date_creation"`
}

// Template overrides the default question ordering for a category. An
// active template takes priority over the root-question walk.
type Template struct {
	ID          string             `json:"id"`
	Nom         string             `json:"nom"`
	CategorieID string             `json:"categorie_id"`
	Active      bool               `json:"active"`
	Questions   []TemplateQuestion `json:"questions"`
}

// TemplateQuestion binds a question into a template. A non-nil Condition
// overrides the question's own display condition.
type TemplateQuestion struct {
	QuestionID  string     `json:"question_id"`
	Ordre       int        `json:"ordre"`
	Obligatoire bool       `json:"obligatoire"`
	Condition   *Condition `json:"condition,omitempty"`
}

// Rule trigger moments.
const (
	DeclencheurReponse        = "reponse"
	DeclencheurSessionDebut   = "session_debut"
	DeclencheurSessionFin     = "session_fin"
	DeclencheurChangementEtat = "changement_etat"
)

// Rule is a category-scoped recommendation trigger. Rules run in
// Priorite order, lowest first. The bookkeeping fields record the last
// evaluation and are updated even when the rule does not fire.
type Rule struct {
	ID          string `json:"id"`
	Nom         string `json:"nom"`
	CategorieID string `json:"categorie_id"`
	Active      bool   `json:"active"`
	// TypeDeclencheur says when the rule runs; empty defaults to
	// session_fin.
	TypeDeclencheur    string      `json:"type_declencheur,omitempty"`
	ScoreMinimum       int         `json:"score_minimum,omitempty"`
	DiagnosticErreur   []ProbeType `json:"diagnostic_erreur,omitempty"`
	TypeAction         string      `json:"type_action,omitempty"`
	ParametresAction   map[string]any `json:"parametres_action,omitempty"`
	MessageUtilisateur string         `json:"message_utilisateur"`
	Priorite           int            `json:"priorite"`

	DerniereExecution *time.Time `json:"derniere_execution,omitempty"`
	DernierResultat   bool       `json:"dernier_resultat"`
	DernierMessage    string     `json:"dernier_message,omitempty"`
}

// StepPlan is the stepwise orchestrator's persisted state: the full plan,
// the cursor, and the completion log.
type StepPlan struct {
	Etapes           []Step           `json:"plan_etapes"`
	EtapeActuelle    int              `json:"etape_actuelle"`
	EtapesCompletees []StepCompletion `json:"etapes_completees"`
}

type Step struct {
	ID          string   `json:"id"`
	Nom         string   `json:"nom"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Obligatoire bool     `json:"obligatoire"`
	TempsEstime int      `json:"temps_estime"`
	QuestionIDs []string `json:"questions,omitempty"`
}

type StepCompletion struct {
	EtapeID        string         `json:"etape_id"`
	DateCompletion time.Time      `json:"date_completion"`
	Resultats      map[string]any `json:"resultats,omitempty"`
}
