package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"techassist/server/internal/model"
	"techassist/server/internal/ticket"
)

// TicketStore implements ticket.Store on postgres.
type TicketStore struct {
	db *gorm.DB
}

func NewTicketStore(db *gorm.DB) *TicketStore {
	return &TicketStore{db: db}
}

func ticketToRow(t *model.Ticket) (*ticketRow, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal ticket: %w", err)
	}
	return &ticketRow{
		ID:         t.ID,
		CreateurID: t.CreateurID,
		AssigneID:  t.AssigneID,
		Statut:     string(t.Statut),
		SessionID:  t.SessionID,
		Payload:    payload,
	}, nil
}

func rowToTicket(r *ticketRow) (*model.Ticket, error) {
	var t model.Ticket
	if err := json.Unmarshal(r.Payload, &t); err != nil {
		return nil, fmt.Errorf("unmarshal ticket %s: %w", r.ID, err)
	}
	return &t, nil
}

func (s *TicketStore) CreateTicket(ctx context.Context, t *model.Ticket) error {
	row, err := ticketToRow(t)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *TicketStore) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	var row ticketRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ticket.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rowToTicket(&row)
}

func (s *TicketStore) SaveTicket(ctx context.Context, t *model.Ticket) error {
	row, err := ticketToRow(t)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&ticketRow{}).Where("id = ?", t.ID).Updates(map[string]any{
		"createur_id": row.CreateurID,
		"assigne_id":  row.AssigneID,
		"statut":      row.Statut,
		"session_id":  row.SessionID,
		"payload":     row.Payload,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ticket.ErrNotFound
	}
	return nil
}

func (s *TicketStore) listWhere(ctx context.Context, query string, args ...any) ([]model.Ticket, error) {
	var rows []ticketRow
	if err := s.db.WithContext(ctx).Where(query, args...).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Ticket, 0, len(rows))
	for i := range rows {
		t, err := rowToTicket(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *TicketStore) ListByCreator(ctx context.Context, userID string) ([]model.Ticket, error) {
	return s.listWhere(ctx, "createur_id = ?", userID)
}

func (s *TicketStore) ListByAssignee(ctx context.Context, userID string) ([]model.Ticket, error) {
	return s.listWhere(ctx, "assigne_id = ?", userID)
}

func (s *TicketStore) ListOpen(ctx context.Context) ([]model.Ticket, error) {
	return s.listWhere(ctx, "statut IN ?", []string{
		string(model.TicketOuvert),
		string(model.TicketEnCours),
	})
}

func (s *TicketStore) CountActiveByAssignee(ctx context.Context, userID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ticketRow{}).
		Where("assigne_id = ? AND statut = ?", userID, string(model.TicketEnCours)).
		Count(&n).Error
	return int(n), err
}

func (s *TicketStore) FindBySession(ctx context.Context, sessionID string) (*model.Ticket, error) {
	if sessionID == "" {
		return nil, ticket.ErrNotFound
	}
	var row ticketRow
	err := s.db.WithContext(ctx).First(&row, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ticket.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rowToTicket(&row)
}

// AppendComment assigns the ticket's next seq inside a transaction. A
// duplicate comment ID returns its original seq without inserting.
func (s *TicketStore) AppendComment(ctx context.Context, ticketID string, c *model.Comment) (int64, error) {
	var seq int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&ticketRow{}).Where("id = ?", ticketID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return ticket.ErrNotFound
		}

		if c.ID != "" {
			var prior commentRow
			err := tx.Select("seq").First(&prior, "id = ?", c.ID).Error
			if err == nil {
				seq = prior.Seq
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		// Serialize appends on the same ticket so seq stays gapless.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&ticketRow{}, "id = ?", ticketID).Error; err != nil {
			return err
		}
		var max int64
		if err := tx.Model(&commentRow{}).
			Where("ticket_id = ?", ticketID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&max).Error; err != nil {
			return err
		}
		seq = max + 1

		cp := *c
		cp.Seq = seq
		cp.TicketID = ticketID
		payload, err := json.Marshal(&cp)
		if err != nil {
			return fmt.Errorf("marshal comment: %w", err)
		}
		return tx.Create(&commentRow{
			ID:       cp.ID,
			TicketID: ticketID,
			Seq:      seq,
			Payload:  payload,
		}).Error
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *TicketStore) ListComments(ctx context.Context, ticketID string) ([]model.Comment, error) {
	var rows []commentRow
	if err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("seq").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Comment, 0, len(rows))
	for i := range rows {
		var c model.Comment
		if err := json.Unmarshal(rows[i].Payload, &c); err != nil {
			return nil, fmt.Errorf("unmarshal comment %s: %w", rows[i].ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *TicketStore) GetComment(ctx context.Context, commentID string) (*model.Comment, error) {
	var row commentRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", commentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ticket.ErrCommentNotFound
	}
	if err != nil {
		return nil, err
	}
	var c model.Comment
	if err := json.Unmarshal(row.Payload, &c); err != nil {
		return nil, fmt.Errorf("unmarshal comment %s: %w", commentID, err)
	}
	return &c, nil
}

func (s *TicketStore) ConfirmComment(ctx context.Context, commentID string, at time.Time) (*model.Comment, error) {
	var out *model.Comment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row commentRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "id = ?", commentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ticket.ErrCommentNotFound
		}
		if err != nil {
			return err
		}

		var c model.Comment
		if err := json.Unmarshal(row.Payload, &c); err != nil {
			return fmt.Errorf("unmarshal comment %s: %w", commentID, err)
		}
		if c.Confirme {
			out = &c
			return ticket.ErrAlreadyConfirmed
		}

		c.Confirme = true
		t := at
		c.DateConfirmation = &t
		payload, err := json.Marshal(&c)
		if err != nil {
			return fmt.Errorf("marshal comment: %w", err)
		}
		if err := tx.Model(&commentRow{}).
			Where("id = ?", commentID).
			Update("payload", json.RawMessage(payload)).Error; err != nil {
			return err
		}
		out = &c
		return nil
	})
	if err != nil && !errors.Is(err, ticket.ErrAlreadyConfirmed) {
		return nil, err
	}
	return out, err
}
