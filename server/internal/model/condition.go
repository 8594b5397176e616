package model

// ConditionKind selects which variant of a display condition applies.
type ConditionKind string

const (
	ConditionReponse    ConditionKind = "reponse"
	ConditionScore      ConditionKind = "score"
	ConditionDiagnostic ConditionKind = "diagnostic"
)

// Condition decides whether a question surfaces, given the answers and
// probe results accumulated so far. Exactly one variant's fields are
// meaningful, selected by Kind:
//
//   - reponse: the referenced question was answered with the required
//     choices, combined with Operateur ("ET" by default, or "OU").
//   - score: the session's accumulated answer score reached ScoreMinimum.
//   - diagnostic: the probe DiagnosticRequis reported StatutRequis
//     ("erreur" when unset).
//
// An empty or unrecognized Kind evaluates to true, so a malformed
// condition surfaces its question instead of hiding it.
type Condition struct {
	Kind ConditionKind `json:"type,omitempty"`

	QuestionID  string   `json:"question_id,omitempty"`
	ChoixRequis []string `json:"choix_requis,omitempty"`
	Operateur   string   `json:"operateur,omitempty"`

	ScoreMinimum int `json:"score_minimum,omitempty"`

	DiagnosticRequis ProbeType   `json:"diagnostic_requis,omitempty"`
	StatutRequis     ProbeStatus `json:"statut_requis,omitempty"`
}
