package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"techassist/server/internal/model"
	"techassist/server/internal/session"
)

// SessionStore implements session.Store on postgres.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Get(ctx context.Context, id string) (*model.DiagnosticSession, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess model.DiagnosticSession
	if err := json.Unmarshal(row.Payload, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *model.DiagnosticSession) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	row := &sessionRow{
		ID:            sess.ID,
		UtilisateurID: sess.UtilisateurID,
		Statut:        string(sess.Statut),
		Payload:       payload,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"utilisateur_id", "statut", "payload", "updated_at"}),
	}).Create(row).Error
}

func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]model.DiagnosticSession, error) {
	var rows []sessionRow
	if err := s.db.WithContext(ctx).
		Where("utilisateur_id = ?", userID).
		Order("updated_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.DiagnosticSession, 0, len(rows))
	for i := range rows {
		var sess model.DiagnosticSession
		if err := json.Unmarshal(rows[i].Payload, &sess); err != nil {
			return nil, fmt.Errorf("unmarshal session %s: %w", rows[i].ID, err)
		}
		out = append(out, sess)
	}
	return out, nil
}

// SaveAnswer upserts on (session, question): resubmitting a question
// replaces the previous answer row.
func (s *SessionStore) SaveAnswer(ctx context.Context, a *model.Answer) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	row := &answerRow{
		ID:         a.ID,
		SessionID:  a.SessionID,
		QuestionID: a.QuestionID,
		Payload:    payload,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload"}),
	}).Create(row).Error
}

func (s *SessionStore) ListAnswers(ctx context.Context, sessionID string) ([]model.Answer, error) {
	var rows []answerRow
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Answer, 0, len(rows))
	for i := range rows {
		var a model.Answer
		if err := json.Unmarshal(rows[i].Payload, &a); err != nil {
			return nil, fmt.Errorf("unmarshal answer %s: %w", rows[i].ID, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *SessionStore) AppendRecord(ctx context.Context, r *model.DiagnosticRecord) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.db.WithContext(ctx).Create(&recordRow{
		ID:        r.ID,
		SessionID: r.SessionID,
		Payload:   payload,
	}).Error
}

func (s *SessionStore) ListRecords(ctx context.Context, sessionID string) ([]model.DiagnosticRecord, error) {
	var rows []recordRow
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.DiagnosticRecord, 0, len(rows))
	for i := range rows {
		var r model.DiagnosticRecord
		if err := json.Unmarshal(rows[i].Payload, &r); err != nil {
			return nil, fmt.Errorf("unmarshal record %s: %w", rows[i].ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *SessionStore) DeleteRecords(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&recordRow{}).Error
}
