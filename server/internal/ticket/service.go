package ticket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"techassist/server/internal/auth"
	"techassist/server/internal/model"
	"techassist/server/internal/notify"
)

// User-facing errors, returned verbatim to clients.
var (
	ErrCreateNotEmployee = errors.New("Seuls les employés peuvent créer des tickets.")
	ErrTakeNotTechnician = errors.New("Seuls les techniciens peuvent prendre en charge des tickets")
	ErrAlreadyAssigned   = errors.New("Ce ticket est déjà assigné à un autre technicien")

	ErrStatusRequired     = errors.New("Le statut est requis")
	ErrInvalidStatus      = errors.New("Statut invalide")
	ErrNotYourTicket      = errors.New("Vous ne pouvez modifier que vos propres tickets")
	ErrCloseNotResolved   = errors.New("Vous ne pouvez fermer que des tickets résolus")
	ErrReopenNotClosed    = errors.New("Vous ne pouvez rouvrir que des tickets fermés")
	ErrEmployeeTransition = errors.New("Vous ne pouvez que fermer ou rouvrir vos tickets")
	ErrNotAssignedToYou   = errors.New("Vous ne pouvez modifier que vos tickets assignés")
	ErrTechnicianClose    = errors.New("Seul l'employé peut fermer le ticket après vérification")
	ErrInsufficientRole   = errors.New("Permissions insuffisantes")
)

// Service owns the ticket lifecycle: creation with notification fan-out
// and urgent auto-assignment, self-assignment, and the role-gated status
// transitions. It also converts completed diagnostic sessions into
// tickets.
type Service struct {
	store Store
	users auth.Directory
	log   *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewService(store Store, users auth.Directory, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store: store,
		users: users,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// SetClock overrides time and ID generation, for tests.
func (s *Service) SetClock(now func() time.Time, newID func() string) {
	s.now = now
	s.newID = newID
}

type CreateInput struct {
	Titre       string         `json:"titre"`
	Description string         `json:"description"`
	Priorite    model.Priority `json:"priorite"`
	CategorieID string         `json:"categorie_id"`
}

// Create opens a ticket for an employee. Technicians and admins are
// notified, the employee gets a confirmation mail, and an urgent or
// critical ticket is immediately assigned to the least loaded active
// technician.
func (s *Service) Create(ctx context.Context, actor model.User, in CreateInput) (*model.Ticket, []notify.Event, error) {
	if actor.Role != model.RoleEmploye {
		return nil, nil, ErrCreateNotEmployee
	}
	if strings.TrimSpace(in.Titre) == "" {
		return nil, nil, errors.New("Le titre est requis")
	}
	if in.Priorite == "" {
		in.Priorite = model.PrioriteNormal
	}

	now := s.now()
	tk := &model.Ticket{
		ID:           s.newID(),
		Titre:        strings.TrimSpace(in.Titre),
		Description:  in.Description,
		Statut:       model.TicketOuvert,
		Priorite:     in.Priorite,
		CategorieID:  in.CategorieID,
		CreateurID:   actor.ID,
		DateCreation: now,
		DateMAJ:      now,
	}
	if err := s.store.CreateTicket(ctx, tk); err != nil {
		return nil, nil, err
	}

	events := []notify.Event{
		{
			Type:    notify.EventTicketCreated,
			Topics:  []string{notify.TopicTechnicians},
			Payload: map[string]any{"ticket": tk},
			Mail:    s.newTicketMail(ctx, tk),
		},
		{
			Type: notify.EventTicketCreated,
			Mail: confirmationMail(tk, actor),
		},
	}

	assignEvents, err := s.autoAssign(ctx, tk)
	if err != nil {
		// The ticket exists; a failed auto-assignment leaves it open.
		s.log.Warn("auto-assignment failed",
			zap.String("ticket_id", tk.ID),
			zap.Error(err))
	}
	events = append(events, assignEvents...)

	return tk, events, nil
}

// autoAssign hands an urgent or critical ticket to the active technician
// with the fewest tickets in progress. No candidates is not an error.
func (s *Service) autoAssign(ctx context.Context, tk *model.Ticket) ([]notify.Event, error) {
	if tk.Priorite != model.PrioriteUrgent && tk.Priorite != model.PrioriteCritique {
		return nil, nil
	}

	techs, err := s.users.ListByRole(ctx, model.RoleTechnicien)
	if err != nil {
		return nil, err
	}
	if len(techs) == 0 {
		return nil, nil
	}

	type load struct {
		user model.User
		n    int
	}
	loads := make([]load, 0, len(techs))
	for _, u := range techs {
		n, err := s.store.CountActiveByAssignee(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		loads = append(loads, load{user: u, n: n})
	}
	sort.SliceStable(loads, func(i, j int) bool { return loads[i].n < loads[j].n })
	tech := loads[0].user

	tk.AssigneID = tech.ID
	tk.Statut = model.TicketEnCours
	tk.DateMAJ = s.now()
	if err := s.store.SaveTicket(ctx, tk); err != nil {
		return nil, err
	}

	c := &model.Comment{
		ID:           s.newID(),
		TicketID:     tk.ID,
		AuteurID:     tech.ID,
		Auteur:       tech.FullName(),
		Role:         tech.Role,
		Contenu:      fmt.Sprintf("🚨 Ticket %s assigné automatiquement à %s", tk.Priorite, tech.FullName()),
		Type:         model.ActionAssignation,
		DateCreation: s.now(),
	}
	if seq, err := s.store.AppendComment(ctx, tk.ID, c); err != nil {
		return nil, err
	} else {
		c.Seq = seq
	}

	return []notify.Event{
		{
			Type:    notify.EventTicketAssigned,
			Topics:  []string{notify.TopicTechnicians, notify.TicketTopic(tk.ID)},
			Payload: map[string]any{"ticket": tk},
			Mail:    urgentAssignmentMail(tk, tech),
		},
		commentEvent(c),
	}, nil
}

// AssignToSelf lets a technician take an unassigned ticket. The ticket
// moves to en_cours and the takeover lands on the log.
func (s *Service) AssignToSelf(ctx context.Context, ticketID string, actor model.User) (*model.Ticket, []notify.Event, error) {
	if actor.Role != model.RoleTechnicien {
		return nil, nil, ErrTakeNotTechnician
	}
	tk, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if tk.AssigneID != "" {
		return nil, nil, ErrAlreadyAssigned
	}

	tk.AssigneID = actor.ID
	tk.Statut = model.TicketEnCours
	tk.DateMAJ = s.now()
	if err := s.store.SaveTicket(ctx, tk); err != nil {
		return nil, nil, err
	}

	c := &model.Comment{
		ID:           s.newID(),
		TicketID:     tk.ID,
		AuteurID:     actor.ID,
		Auteur:       actor.FullName(),
		Role:         actor.Role,
		Contenu:      fmt.Sprintf("Ticket pris en charge par %s", actor.FullName()),
		Type:         model.ActionAssignation,
		DateCreation: s.now(),
	}
	if seq, err := s.store.AppendComment(ctx, tk.ID, c); err != nil {
		return nil, nil, err
	} else {
		c.Seq = seq
	}

	events := []notify.Event{
		{
			Type:    notify.EventTicketAssigned,
			Topics:  []string{notify.TopicTechnicians, notify.TicketTopic(tk.ID)},
			Payload: map[string]any{"ticket": tk},
		},
		commentEvent(c),
	}
	return tk, events, nil
}

var statusDisplay = map[model.TicketStatus]string{
	model.TicketOuvert:  "Ouvert",
	model.TicketEnCours: "En cours",
	model.TicketResolu:  "Résolu",
	model.TicketFerme:   "Fermé",
}

// ChangeStatus applies the role-gated transition rules. Employees may
// only close their own resolved tickets or reopen closed ones, and a
// reopened ticket loses its assignee so it becomes available again.
// Technicians move their assigned tickets but cannot close them; admins
// may do anything.
func (s *Service) ChangeStatus(ctx context.Context, ticketID string, actor model.User, newStatus model.TicketStatus) (*model.Ticket, []notify.Event, error) {
	if newStatus == "" {
		return nil, nil, ErrStatusRequired
	}
	if _, ok := statusDisplay[newStatus]; !ok {
		return nil, nil, ErrInvalidStatus
	}

	tk, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}

	switch actor.Role {
	case model.RoleEmploye:
		if tk.CreateurID != actor.ID {
			return nil, nil, ErrNotYourTicket
		}
		switch newStatus {
		case model.TicketFerme:
			if tk.Statut != model.TicketResolu {
				return nil, nil, ErrCloseNotResolved
			}
		case model.TicketOuvert:
			if tk.Statut != model.TicketFerme {
				return nil, nil, ErrReopenNotClosed
			}
		default:
			return nil, nil, ErrEmployeeTransition
		}
	case model.RoleTechnicien:
		if tk.AssigneID != actor.ID {
			return nil, nil, ErrNotAssignedToYou
		}
		if newStatus == model.TicketFerme {
			return nil, nil, ErrTechnicianClose
		}
	case model.RoleAdmin:
	default:
		return nil, nil, ErrInsufficientRole
	}

	oldStatus := tk.Statut
	now := s.now()

	if newStatus == model.TicketOuvert && oldStatus == model.TicketFerme {
		// Reopening releases the ticket back into the pool.
		tk.AssigneID = ""
	}
	switch newStatus {
	case model.TicketResolu, model.TicketFerme:
		if tk.DateCloture == nil {
			t := now
			tk.DateCloture = &t
		}
	default:
		tk.DateCloture = nil
	}
	tk.Statut = newStatus
	tk.DateMAJ = now
	if err := s.store.SaveTicket(ctx, tk); err != nil {
		return nil, nil, err
	}

	c := &model.Comment{
		ID:           s.newID(),
		TicketID:     tk.ID,
		AuteurID:     actor.ID,
		Auteur:       actor.FullName(),
		Role:         actor.Role,
		Contenu:      fmt.Sprintf("Statut changé de '%s' vers '%s'", statusDisplay[oldStatus], statusDisplay[newStatus]),
		Type:         model.ActionChangement,
		DateCreation: s.now(),
	}
	if seq, err := s.store.AppendComment(ctx, tk.ID, c); err != nil {
		return nil, nil, err
	} else {
		c.Seq = seq
	}

	events := []notify.Event{
		{
			Type:    notify.EventTicketUpdated,
			Topics:  []string{notify.TopicTechnicians, notify.TicketTopic(tk.ID)},
			Payload: map[string]any{"ticket": tk},
		},
		commentEvent(c),
	}
	return tk, events, nil
}

// AddComment appends a plain comment through the HTTP path.
func (s *Service) AddComment(ctx context.Context, ticketID string, actor model.User, contenu string) (*model.Comment, []notify.Event, error) {
	contenu = strings.TrimSpace(contenu)
	if contenu == "" {
		return nil, nil, errors.New("Le commentaire ne peut pas être vide")
	}
	if _, err := s.store.GetTicket(ctx, ticketID); err != nil {
		return nil, nil, err
	}

	c := &model.Comment{
		ID:           s.newID(),
		TicketID:     ticketID,
		AuteurID:     actor.ID,
		Auteur:       actor.FullName(),
		Role:         actor.Role,
		Contenu:      contenu,
		Type:         model.ActionCommentaire,
		DateCreation: s.now(),
	}
	if seq, err := s.store.AppendComment(ctx, ticketID, c); err != nil {
		return nil, nil, err
	} else {
		c.Seq = seq
	}
	return c, []notify.Event{commentEvent(c)}, nil
}

// CreateFromSession turns a completed diagnostic session into a ticket,
// carrying the computed priority and the recommendation text in the
// description. The session ID is the duplicate guard: converting the
// same session twice returns the existing ticket.
func (s *Service) CreateFromSession(ctx context.Context, sess *model.DiagnosticSession, recommendations string) (*model.Ticket, []notify.Event, error) {
	if existing, err := s.store.FindBySession(ctx, sess.ID); err == nil {
		return existing, nil, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	now := s.now()
	tk := &model.Ticket{
		ID:    s.newID(),
		Titre: fmt.Sprintf("Diagnostic automatique - Session %s", sess.ID),
		Description: fmt.Sprintf(
			"Diagnostic automatique avec priorité %s.\n\nCatégorie: %s\nScore de criticité: %d\n\nRecommandations:\n%s",
			sess.Priorite, sess.CategorieID, sess.ScoreTotal, recommendations),
		Statut:       model.TicketOuvert,
		Priorite:     sess.Priorite,
		CategorieID:  sess.CategorieID,
		CreateurID:   sess.UtilisateurID,
		SessionID:    sess.ID,
		DateCreation: now,
		DateMAJ:      now,
	}
	if err := s.store.CreateTicket(ctx, tk); err != nil {
		return nil, nil, err
	}

	events := []notify.Event{{
		Type:    notify.EventTicketCreated,
		Topics:  []string{notify.TopicTechnicians},
		Payload: map[string]any{"ticket": tk},
		Mail:    s.newTicketMail(ctx, tk),
	}}

	assignEvents, err := s.autoAssign(ctx, tk)
	if err != nil {
		s.log.Warn("auto-assignment failed",
			zap.String("ticket_id", tk.ID),
			zap.Error(err))
	}
	events = append(events, assignEvents...)

	return tk, events, nil
}

func commentEvent(c *model.Comment) notify.Event {
	return notify.Event{
		Type:    notify.EventCommentAdded,
		Topics:  []string{notify.TicketTopic(c.TicketID)},
		Payload: map[string]any{"comment": c},
	}
}
