package model

import "time"

// Role drives every permission check in the API and the guidance protocol.
// Wire values keep the product's French vocabulary.
type Role string

const (
	RoleEmploye    Role = "employe"
	RoleTechnicien Role = "technicien"
	RoleAdmin      Role = "admin"
)

// User is the minimal identity the server needs. Authentication itself is
// delegated to the auth package; stores only ever see resolved users.
type User struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Prenom string `json:"prenom"`
	Nom    string `json:"nom"`
	Role   Role   `json:"role"`
	Actif  bool   `json:"actif"`
}

// FullName returns "Prenom Nom" for notification payloads.
func (u User) FullName() string {
	if u.Prenom == "" {
		return u.Nom
	}
	return u.Prenom + " " + u.Nom
}

type TicketStatus string

const (
	TicketOuvert  TicketStatus = "ouvert"
	TicketEnCours TicketStatus = "en_cours"
	TicketResolu  TicketStatus = "resolu"
	TicketFerme   TicketStatus = "ferme"
)

// Priority is shared by tickets and diagnostic sessions. The diagnostic
// engine maps its score to one of these four tiers.
type Priority string

const (
	PrioriteFaible   Priority = "faible"
	PrioriteNormal   Priority = "normal"
	PrioriteUrgent   Priority = "urgent"
	PrioriteCritique Priority = "critique"
)

type Ticket struct {
	ID          string       `json:"id"`
	Titre       string       `json:"titre"`
	Description string       `json:"description"`
	Statut      TicketStatus `json:"statut"`
	Priorite    Priority     `json:"priorite"`
	CategorieID string       `json:"categorie_id,omitempty"`
	CreateurID  string       `json:"createur_id"`
	// AssigneID is empty until a technician takes the ticket.
	AssigneID string `json:"assigne_id,omitempty"`
	// SessionID links back to the diagnostic session that produced this
	// ticket, when it was created from one. Used as the duplicate guard.
	SessionID    string     `json:"session_id,omitempty"`
	DateCreation time.Time  `json:"date_creation"`
	DateMAJ      time.Time  `json:"date_maj"`
	DateCloture  *time.Time `json:"date_cloture,omitempty"`
}

// ActionType classifies a comment on the ticket's log. The guidance
// protocol derives all of its state from these values; they are facts and
// are never rewritten once appended.
type ActionType string

const (
	ActionCommentaire  ActionType = "ajout_commentaire"
	ActionInstruction  ActionType = "instruction"
	ActionConfirmation ActionType = "confirmation_etape"
	ActionGuidageDebut ActionType = "guidage_debut"
	ActionGuidageFin   ActionType = "guidage_fin"
	ActionAssignation  ActionType = "assignation"
	ActionResolution   ActionType = "resolution"
	ActionChangement   ActionType = "changement_statut"
)

// Comment is one entry of a ticket's append-only log. Seq is assigned by
// the store, monotonically per ticket, and defines the protocol order.
type Comment struct {
	ID       string     `json:"id"`
	TicketID string     `json:"ticket_id"`
	Seq      int64      `json:"seq"`
	AuteurID string     `json:"auteur_id"`
	Auteur   string     `json:"auteur,omitempty"`
	Role     Role       `json:"auteur_role"`
	Contenu  string     `json:"contenu"`
	Type     ActionType `json:"type_action"`

	// Instruction bookkeeping. Confirme flips exactly once, when the
	// employee confirms; a confirmation comment points at its parent
	// instruction via ParentID.
	EstInstruction       bool       `json:"est_instruction"`
	NumeroEtape          int        `json:"numero_etape,omitempty"`
	AttendreConfirmation bool       `json:"attendre_confirmation"`
	Confirme             bool       `json:"confirme"`
	DateConfirmation     *time.Time `json:"date_confirmation,omitempty"`
	ParentID             string     `json:"parent_id,omitempty"`

	DateCreation time.Time `json:"date_creation"`
}
