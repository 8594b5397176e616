package ticket

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"techassist/server/internal/model"
	"techassist/server/internal/notify"
)

// newTicketMail builds the notification sent to every active technician
// and admin when a ticket opens. The creator is excluded so an employee
// never receives the support-side copy of their own ticket. Nil when
// there is nobody to notify.
func (s *Service) newTicketMail(ctx context.Context, tk *model.Ticket) *notify.Mail {
	recipients := make(map[string]struct{})
	for _, role := range []model.Role{model.RoleTechnicien, model.RoleAdmin} {
		users, err := s.users.ListByRole(ctx, role)
		if err != nil {
			s.log.Warn("listing notification recipients failed",
				zap.String("role", string(role)),
				zap.Error(err))
			continue
		}
		for _, u := range users {
			if u.Email != "" {
				recipients[u.Email] = struct{}{}
			}
		}
	}
	if creator, err := s.users.GetByID(ctx, tk.CreateurID); err == nil {
		delete(recipients, creator.Email)
	}
	if len(recipients) == 0 {
		return nil
	}

	to := make([]string, 0, len(recipients))
	for email := range recipients {
		to = append(to, email)
	}
	sort.Strings(to)

	return &notify.Mail{
		To:      to,
		Subject: fmt.Sprintf("🎫 Nouveau ticket #%s - %s", tk.ID, tk.Titre),
		Body: fmt.Sprintf(
			"Un nouveau ticket vient d'être créé.\n\nTitre: %s\nPriorité: %s\nStatut: %s\n\nDescription:\n%s\n",
			tk.Titre, tk.Priorite, tk.Statut, tk.Description),
	}
}

// confirmationMail acknowledges the ticket to its creator.
func confirmationMail(tk *model.Ticket, creator model.User) *notify.Mail {
	if creator.Email == "" {
		return nil
	}
	return &notify.Mail{
		To:      []string{creator.Email},
		Subject: fmt.Sprintf("✅ Confirmation - Ticket #%s créé avec succès", tk.ID),
		Body: fmt.Sprintf(
			"Bonjour %s,\n\nVotre ticket a bien été enregistré.\n\nTitre: %s\nPriorité: %s\n\nNotre équipe technique va le prendre en charge dans les meilleurs délais.\n",
			creator.FullName(), tk.Titre, tk.Priorite),
	}
}

// urgentAssignmentMail alerts the technician an urgent ticket was just
// assigned to.
func urgentAssignmentMail(tk *model.Ticket, tech model.User) *notify.Mail {
	if tech.Email == "" {
		return nil
	}
	return &notify.Mail{
		To:      []string{tech.Email},
		Subject: fmt.Sprintf("🚨 URGENT - Ticket #%s assigné - %s", tk.ID, tk.Titre),
		Body: fmt.Sprintf(
			"Bonjour %s,\n\nLe ticket suivant vient de vous être assigné automatiquement.\n\nTitre: %s\nPriorité: %s\n\nDescription:\n%s\n\nMerci de le traiter en priorité.\n",
			tech.FullName(), tk.Titre, tk.Priorite, tk.Description),
	}
}
