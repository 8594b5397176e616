package ticket

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"techassist/server/internal/auth"
	"techassist/server/internal/model"
	"techassist/server/internal/notify"
)

var (
	emp   = model.User{ID: "emp-1", Email: "claire@corp.test", Prenom: "Claire", Nom: "Martin", Role: model.RoleEmploye, Actif: true}
	tech1 = model.User{ID: "tech-1", Email: "karim@corp.test", Prenom: "Karim", Nom: "Benali", Role: model.RoleTechnicien, Actif: true}
	tech2 = model.User{ID: "tech-2", Email: "lise@corp.test", Prenom: "Lise", Nom: "Durand", Role: model.RoleTechnicien, Actif: true}
	admin = model.User{ID: "adm-1", Email: "admin@corp.test", Nom: "Admin", Role: model.RoleAdmin, Actif: true}
)

func newTestTicketService(t *testing.T) (*Service, *InMemoryStore) {
	t.Helper()

	store := NewInMemoryStore()
	dir := auth.NewStatic(map[string]model.User{
		"tok-emp":   emp,
		"tok-tech1": tech1,
		"tok-tech2": tech2,
		"tok-adm":   admin,
	})

	svc := NewService(store, dir, nil)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.SetClock(
		func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		},
		func() string {
			tick++
			return fmt.Sprintf("id-%d", tick)
		},
	)
	return svc, store
}

func typesOf(events []notify.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

// A normal-priority ticket opens unassigned; the support side gets the
// notification mail, the creator gets the confirmation, and the creator
// is excluded from the support copy.
func TestCreateNormalPriority(t *testing.T) {
	svc, _ := newTestTicketService(t)
	ctx := context.Background()

	if _, _, err := svc.Create(ctx, tech1, CreateInput{Titre: "x"}); !errors.Is(err, ErrCreateNotEmployee) {
		t.Fatalf("technician create: got %v", err)
	}

	tk, events, err := svc.Create(ctx, emp, CreateInput{
		Titre:       "Imprimante en panne",
		Description: "Plus rien ne sort",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tk.Statut != model.TicketOuvert || tk.AssigneID != "" {
		t.Fatalf("ticket should open unassigned: %+v", tk)
	}
	if tk.Priorite != model.PrioriteNormal {
		t.Fatalf("default priority = %q", tk.Priorite)
	}

	if got := typesOf(events); len(got) != 2 || got[0] != notify.EventTicketCreated || got[1] != notify.EventTicketCreated {
		t.Fatalf("events = %v", got)
	}
	support := events[0].Mail
	if support == nil {
		t.Fatal("support mail missing")
	}
	want := []string{admin.Email, tech1.Email, tech2.Email}
	if len(support.To) != len(want) {
		t.Fatalf("support recipients = %v", support.To)
	}
	for _, to := range support.To {
		if to == emp.Email {
			t.Fatal("creator received the support mail")
		}
	}
	confirm := events[1].Mail
	if confirm == nil || len(confirm.To) != 1 || confirm.To[0] != emp.Email {
		t.Fatalf("confirmation mail = %+v", confirm)
	}
}

// An urgent ticket goes straight to the least loaded active technician,
// with the takeover on the log and an alert mail to the assignee.
func TestCreateUrgentAutoAssigns(t *testing.T) {
	svc, store := newTestTicketService(t)
	ctx := context.Background()

	// Load tech-1 with a ticket in progress so tech-2 wins.
	if err := store.CreateTicket(ctx, &model.Ticket{
		ID:         "busy",
		Statut:     model.TicketEnCours,
		CreateurID: emp.ID,
		AssigneID:  tech1.ID,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tk, events, err := svc.Create(ctx, emp, CreateInput{
		Titre:    "Serveur de fichiers inaccessible",
		Priorite: model.PrioriteUrgent,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tk.AssigneID != tech2.ID || tk.Statut != model.TicketEnCours {
		t.Fatalf("auto-assignment wrong: %+v", tk)
	}

	got := typesOf(events)
	want := []string{notify.EventTicketCreated, notify.EventTicketCreated, notify.EventTicketAssigned, notify.EventCommentAdded}
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	assigned := events[2]
	if assigned.Mail == nil || assigned.Mail.To[0] != tech2.Email {
		t.Fatalf("urgent mail = %+v", assigned.Mail)
	}

	comments, err := store.ListComments(ctx, tk.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Type != model.ActionAssignation {
		t.Fatalf("assignment comment missing: %+v", comments)
	}
}

// Self-assignment is for technicians only and refuses tickets somebody
// already holds.
func TestAssignToSelf(t *testing.T) {
	svc, store := newTestTicketService(t)
	ctx := context.Background()

	if err := store.CreateTicket(ctx, &model.Ticket{
		ID:         "t1",
		Statut:     model.TicketOuvert,
		CreateurID: emp.ID,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, _, err := svc.AssignToSelf(ctx, "t1", emp); !errors.Is(err, ErrTakeNotTechnician) {
		t.Fatalf("employee take: got %v", err)
	}

	tk, events, err := svc.AssignToSelf(ctx, "t1", tech1)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if tk.AssigneID != tech1.ID || tk.Statut != model.TicketEnCours {
		t.Fatalf("take result wrong: %+v", tk)
	}
	if got := typesOf(events); len(got) != 2 || got[0] != notify.EventTicketAssigned {
		t.Fatalf("events = %v", got)
	}

	if _, _, err := svc.AssignToSelf(ctx, "t1", tech2); !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("double take: got %v", err)
	}
}

// The transition matrix: employees close resolved tickets and reopen
// closed ones, technicians never close, admins do anything. Reopening
// releases the assignee.
func TestChangeStatus(t *testing.T) {
	svc, store := newTestTicketService(t)
	ctx := context.Background()

	if err := store.CreateTicket(ctx, &model.Ticket{
		ID:         "t1",
		Statut:     model.TicketEnCours,
		CreateurID: emp.ID,
		AssigneID:  tech1.ID,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, _, err := svc.ChangeStatus(ctx, "t1", emp, ""); !errors.Is(err, ErrStatusRequired) {
		t.Fatalf("empty status: got %v", err)
	}
	if _, _, err := svc.ChangeStatus(ctx, "t1", emp, "annule"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("invalid status: got %v", err)
	}
	if _, _, err := svc.ChangeStatus(ctx, "t1", emp, model.TicketFerme); !errors.Is(err, ErrCloseNotResolved) {
		t.Fatalf("close in-progress ticket: got %v", err)
	}
	if _, _, err := svc.ChangeStatus(ctx, "t1", emp, model.TicketEnCours); !errors.Is(err, ErrEmployeeTransition) {
		t.Fatalf("employee arbitrary transition: got %v", err)
	}
	if _, _, err := svc.ChangeStatus(ctx, "t1", tech2, model.TicketResolu); !errors.Is(err, ErrNotAssignedToYou) {
		t.Fatalf("other technician: got %v", err)
	}
	if _, _, err := svc.ChangeStatus(ctx, "t1", tech1, model.TicketFerme); !errors.Is(err, ErrTechnicianClose) {
		t.Fatalf("technician close: got %v", err)
	}

	tk, _, err := svc.ChangeStatus(ctx, "t1", tech1, model.TicketResolu)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tk.Statut != model.TicketResolu || tk.DateCloture == nil {
		t.Fatalf("resolve result: %+v", tk)
	}

	if tk, _, err = svc.ChangeStatus(ctx, "t1", emp, model.TicketFerme); err != nil {
		t.Fatalf("close: %v", err)
	}
	if tk.Statut != model.TicketFerme {
		t.Fatalf("close result: %+v", tk)
	}

	tk, _, err = svc.ChangeStatus(ctx, "t1", emp, model.TicketOuvert)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if tk.Statut != model.TicketOuvert || tk.AssigneID != "" || tk.DateCloture != nil {
		t.Fatalf("reopen should release the ticket: %+v", tk)
	}

	comments, err := store.ListComments(ctx, "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	last := comments[len(comments)-1]
	if last.Type != model.ActionChangement || last.Contenu != "Statut changé de 'Fermé' vers 'Ouvert'" {
		t.Fatalf("transition comment = %+v", last)
	}

	// Admins skip the matrix entirely.
	if _, _, err := svc.ChangeStatus(ctx, "t1", admin, model.TicketFerme); err != nil {
		t.Fatalf("admin close: %v", err)
	}
}

// Converting the same diagnostic session twice yields the same ticket.
func TestCreateFromSessionDedup(t *testing.T) {
	svc, _ := newTestTicketService(t)
	ctx := context.Background()

	sess := &model.DiagnosticSession{
		ID:            "s1",
		UtilisateurID: emp.ID,
		CategorieID:   "cat",
		ScoreTotal:    31,
		Priorite:      model.PrioriteCritique,
	}

	tk, events, err := svc.CreateFromSession(ctx, sess, "• Redémarrez votre ordinateur")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if tk.SessionID != "s1" || tk.Priorite != model.PrioriteCritique {
		t.Fatalf("converted ticket wrong: %+v", tk)
	}
	if tk.Titre != "Diagnostic automatique - Session s1" {
		t.Fatalf("titre = %q", tk.Titre)
	}
	if len(events) == 0 {
		t.Fatal("conversion produced no events")
	}
	// Critical priority triggers auto-assignment.
	if tk.AssigneID == "" || tk.Statut != model.TicketEnCours {
		t.Fatalf("critical conversion should auto-assign: %+v", tk)
	}

	again, events, err := svc.CreateFromSession(ctx, sess, "• Redémarrez votre ordinateur")
	if err != nil {
		t.Fatalf("second convert: %v", err)
	}
	if again.ID != tk.ID {
		t.Fatalf("duplicate conversion made a new ticket: %s vs %s", again.ID, tk.ID)
	}
	if len(events) != 0 {
		t.Fatalf("duplicate conversion emitted events: %v", typesOf(events))
	}
}
