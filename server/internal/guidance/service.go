package guidance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"techassist/server/internal/model"
	"techassist/server/internal/notify"
	"techassist/server/internal/ticket"
)

// User-facing errors. The text is returned verbatim to clients, so it is
// in the product language.
var (
	ErrTicketNotFound      = errors.New("Ticket non trouvé")
	ErrInstructionNotFound = errors.New("Instruction non trouvée")

	ErrStartNotTechnician = errors.New("Seuls les techniciens peuvent démarrer un guidage")
	ErrStartNotAssigned   = errors.New("Vous devez être assigné à ce ticket pour démarrer un guidage")

	ErrSendNotTechnician = errors.New("Seuls les techniciens peuvent envoyer des instructions")
	ErrEndNotTechnician  = errors.New("Seuls les techniciens peuvent terminer un guidage")
	ErrNotAssigned       = errors.New("Vous devez être assigné à ce ticket")
	ErrEmptyInstruction  = errors.New("L'instruction ne peut pas être vide")

	ErrConfirmNotEmployee = errors.New("Seuls les employés peuvent confirmer des instructions")
	ErrConfirmNotCreator  = errors.New("Vous ne pouvez confirmer que les instructions de vos propres tickets")
	ErrNotInstruction     = errors.New("Ce commentaire n'est pas une instruction")
	ErrAlreadyConfirmed   = errors.New("Cette instruction a déjà été confirmée")

	// ErrGuidanceLocked is returned on the realtime path when an employee
	// tries to chat while a session is active instead of confirming.
	ErrGuidanceLocked = errors.New("Vous ne pouvez pas envoyer de messages pendant le mode guidage. Veuillez confirmer les instructions du technicien.")
)

// DefaultEndMessage closes a session when the technician provides none.
const DefaultEndMessage = "Session de guidage terminée. Le problème devrait maintenant être résolu."

const startMessage = "🔧 Session de guidage à distance démarrée. Je vais vous guider étape par étape pour résoudre votre problème."
const resolutionMessage = "Ticket marqué comme résolu suite au guidage à distance."

// Service implements the guidance protocol on top of a ticket's comment
// log. All session state lives in the log itself; the service only
// appends markers and instructions and derives the rest.
type Service struct {
	tickets ticket.Store
	log     *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewService(tickets ticket.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		tickets: tickets,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SetClock overrides time and ID generation, for tests.
func (s *Service) SetClock(now func() time.Time, newID func() string) {
	s.now = now
	s.newID = newID
}

// Start opens a guidance session: it appends the guidage_debut marker
// and moves an open ticket to en_cours. Only the assigned technician may
// start one.
func (s *Service) Start(ctx context.Context, ticketID string, actor model.User) (*model.Comment, []notify.Event, error) {
	if actor.Role != model.RoleTechnicien {
		return nil, nil, ErrStartNotTechnician
	}
	tk, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return nil, nil, ErrTicketNotFound
		}
		return nil, nil, err
	}
	if tk.AssigneID != actor.ID {
		return nil, nil, ErrStartNotAssigned
	}

	c := s.newComment(tk.ID, actor, startMessage, model.ActionGuidageDebut)
	if err := s.append(ctx, c); err != nil {
		return nil, nil, err
	}
	events := []notify.Event{commentEvent(c)}

	if tk.Statut == model.TicketOuvert {
		tk.Statut = model.TicketEnCours
		tk.DateMAJ = s.now()
		if err := s.tickets.SaveTicket(ctx, tk); err != nil {
			return nil, nil, err
		}
		events = append(events, ticketEvent(tk))
	}
	return c, events, nil
}

// SendInstruction appends a numbered instruction to the log. The step
// number and the confirmation flag come from the caller; the realtime
// path computes them itself.
func (s *Service) SendInstruction(ctx context.Context, ticketID string, actor model.User, contenu string, numeroEtape int, attendre bool) (*model.Comment, []notify.Event, error) {
	if actor.Role != model.RoleTechnicien {
		return nil, nil, ErrSendNotTechnician
	}
	contenu = strings.TrimSpace(contenu)
	if contenu == "" {
		return nil, nil, ErrEmptyInstruction
	}
	tk, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return nil, nil, ErrTicketNotFound
		}
		return nil, nil, err
	}
	if tk.AssigneID != actor.ID {
		return nil, nil, ErrNotAssigned
	}

	c := s.newComment(tk.ID, actor, contenu, model.ActionInstruction)
	c.EstInstruction = true
	c.NumeroEtape = numeroEtape
	c.AttendreConfirmation = attendre
	if err := s.append(ctx, c); err != nil {
		return nil, nil, err
	}
	return c, []notify.Event{commentEvent(c)}, nil
}

// Confirm marks an instruction as done. Only the employee who opened the
// ticket may confirm, each instruction confirms exactly once, and the
// refreshed instruction is broadcast so every client updates its copy.
func (s *Service) Confirm(ctx context.Context, commentID string, actor model.User) (*model.Comment, []notify.Event, error) {
	if actor.Role != model.RoleEmploye {
		return nil, nil, ErrConfirmNotEmployee
	}
	c, err := s.tickets.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, ticket.ErrCommentNotFound) {
			return nil, nil, ErrInstructionNotFound
		}
		return nil, nil, err
	}
	tk, err := s.tickets.GetTicket(ctx, c.TicketID)
	if err != nil {
		return nil, nil, err
	}
	if tk.CreateurID != actor.ID {
		return nil, nil, ErrConfirmNotCreator
	}
	if !c.EstInstruction {
		return nil, nil, ErrNotInstruction
	}
	if c.Confirme {
		return nil, nil, ErrAlreadyConfirmed
	}

	updated, err := s.tickets.ConfirmComment(ctx, commentID, s.now())
	if err != nil {
		if errors.Is(err, ticket.ErrAlreadyConfirmed) {
			return nil, nil, ErrAlreadyConfirmed
		}
		return nil, nil, err
	}
	return updated, []notify.Event{instructionEvent(updated)}, nil
}

// End closes the session with a guidage_fin marker. When the technician
// reports the problem solved the ticket is moved to resolu and a
// resolution comment is appended after the marker.
func (s *Service) End(ctx context.Context, ticketID string, actor model.User, message string, resolu bool) (*model.Comment, []notify.Event, error) {
	if actor.Role != model.RoleTechnicien {
		return nil, nil, ErrEndNotTechnician
	}
	tk, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return nil, nil, ErrTicketNotFound
		}
		return nil, nil, err
	}
	if tk.AssigneID != actor.ID {
		return nil, nil, ErrNotAssigned
	}
	if strings.TrimSpace(message) == "" {
		message = DefaultEndMessage
	}

	c := s.newComment(tk.ID, actor, message, model.ActionGuidageFin)
	if err := s.append(ctx, c); err != nil {
		return nil, nil, err
	}
	events := []notify.Event{commentEvent(c)}

	if resolu {
		now := s.now()
		tk.Statut = model.TicketResolu
		tk.DateMAJ = now
		tk.DateCloture = &now
		if err := s.tickets.SaveTicket(ctx, tk); err != nil {
			return nil, nil, err
		}
		res := s.newComment(tk.ID, actor, resolutionMessage, model.ActionResolution)
		if err := s.append(ctx, res); err != nil {
			return nil, nil, err
		}
		events = append(events, commentEvent(res), ticketEvent(tk))
	}
	return c, events, nil
}

// Incoming is a frame received on a ticket's realtime connection.
type Incoming struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	NumeroEtape int    `json:"numero_etape"`
	// AttendreConfirmation defaults to true when absent.
	AttendreConfirmation *bool  `json:"attendre_confirmation"`
	ParentID             string `json:"commentaire_parent_id"`
	InstructionID        string `json:"instruction_id"`
}

// PostMessage handles one realtime frame. It is deliberately forgiving
// where the HTTP endpoints are strict: empty or unknown frames are
// dropped, a confirmation whose parent is missing or already confirmed
// still lands on the log, and the only hard rejection is the employee
// chat lockout during an active session.
//
// Classification applied to a plain comment frame: while a session is
// active, a technician's comment is promoted to the next numbered
// instruction.
func (s *Service) PostMessage(ctx context.Context, ticketID string, actor model.User, in Incoming) (*model.Comment, []notify.Event, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, nil, nil
	}
	switch in.Type {
	case "", "comment", "instruction", "confirmation":
	default:
		return nil, nil, nil
	}
	if in.Type == "" {
		in.Type = "comment"
	}

	tk, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return nil, nil, ErrTicketNotFound
		}
		return nil, nil, err
	}
	comments, err := s.tickets.ListComments(ctx, tk.ID)
	if err != nil {
		return nil, nil, err
	}
	active := Active(comments)

	if active && actor.Role == model.RoleEmploye && in.Type == "comment" {
		return nil, nil, ErrGuidanceLocked
	}

	c := s.newComment(tk.ID, actor, in.Message, model.ActionCommentaire)
	var events []notify.Event

	switch in.Type {
	case "instruction":
		c.Type = model.ActionInstruction
		c.EstInstruction = true
		c.NumeroEtape = in.NumeroEtape
		c.AttendreConfirmation = in.AttendreConfirmation == nil || *in.AttendreConfirmation

	case "confirmation":
		c.Type = model.ActionConfirmation
		parentID := in.ParentID
		if parentID == "" {
			parentID = in.InstructionID
		}
		c.ParentID = parentID
		if parentID != "" {
			updated, err := s.tickets.ConfirmComment(ctx, parentID, s.now())
			switch {
			case err == nil, errors.Is(err, ticket.ErrAlreadyConfirmed):
				events = append(events, instructionEvent(updated))
			case errors.Is(err, ticket.ErrCommentNotFound):
				s.log.Warn("confirmation for unknown instruction",
					zap.String("ticket_id", tk.ID),
					zap.String("parent_id", parentID))
			default:
				return nil, nil, err
			}
		}

	case "comment":
		if active && actor.Role == model.RoleTechnicien {
			c.Type = model.ActionInstruction
			c.EstInstruction = true
			c.NumeroEtape = nextStepNumber(comments)
			c.AttendreConfirmation = true
		}
	}

	if err := s.append(ctx, c); err != nil {
		return nil, nil, err
	}
	events = append([]notify.Event{commentEvent(c)}, events...)
	return c, events, nil
}

func (s *Service) append(ctx context.Context, c *model.Comment) error {
	seq, err := s.tickets.AppendComment(ctx, c.TicketID, c)
	if err != nil {
		return err
	}
	c.Seq = seq
	return nil
}

func (s *Service) newComment(ticketID string, actor model.User, contenu string, action model.ActionType) *model.Comment {
	return &model.Comment{
		ID:           s.newID(),
		TicketID:     ticketID,
		AuteurID:     actor.ID,
		Auteur:       actor.FullName(),
		Role:         actor.Role,
		Contenu:      contenu,
		Type:         action,
		DateCreation: s.now(),
	}
}

func commentEvent(c *model.Comment) notify.Event {
	return notify.Event{
		Type:    notify.EventCommentAdded,
		Topics:  []string{notify.TicketTopic(c.TicketID)},
		Payload: map[string]any{"comment": c},
	}
}

func instructionEvent(c *model.Comment) notify.Event {
	return notify.Event{
		Type:    notify.EventInstructionUpdated,
		Topics:  []string{notify.TicketTopic(c.TicketID)},
		Payload: map[string]any{"instruction": c},
	}
}

func ticketEvent(t *model.Ticket) notify.Event {
	return notify.Event{
		Type:    notify.EventTicketUpdated,
		Topics:  []string{notify.TicketTopic(t.ID), notify.TopicTechnicians},
		Payload: map[string]any{"ticket": t},
	}
}
