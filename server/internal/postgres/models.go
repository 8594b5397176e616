package postgres

import (
	"encoding/json"
	"time"
)

// Each row carries the columns its queries filter or order on, plus the
// full model value as jsonb. AutoMigrate owns the schema.

type ticketRow struct {
	ID         string          `gorm:"primaryKey"`
	CreateurID string          `gorm:"index"`
	AssigneID  string          `gorm:"index"`
	Statut     string          `gorm:"index"`
	SessionID  string          `gorm:"index"`
	Payload    json.RawMessage `gorm:"type:jsonb"`
	UpdatedAt  time.Time
}

func (ticketRow) TableName() string { return "tickets" }

type commentRow struct {
	ID       string          `gorm:"primaryKey"`
	TicketID string          `gorm:"index:idx_comments_ticket_seq,unique"`
	Seq      int64           `gorm:"index:idx_comments_ticket_seq,unique"`
	Payload  json.RawMessage `gorm:"type:jsonb"`
}

func (commentRow) TableName() string { return "ticket_comments" }

type sessionRow struct {
	ID            string          `gorm:"primaryKey"`
	UtilisateurID string          `gorm:"index"`
	Statut        string          `gorm:"index"`
	Payload       json.RawMessage `gorm:"type:jsonb"`
	UpdatedAt     time.Time
}

func (sessionRow) TableName() string { return "diagnostic_sessions" }

type answerRow struct {
	ID         string          `gorm:"primaryKey"`
	SessionID  string          `gorm:"index:idx_answers_session_question,unique"`
	QuestionID string          `gorm:"index:idx_answers_session_question,unique"`
	Payload    json.RawMessage `gorm:"type:jsonb"`
	CreatedAt  time.Time
}

func (answerRow) TableName() string { return "diagnostic_answers" }

type recordRow struct {
	// Seq is the insertion order within the session; list queries order
	// on it so records come back in probe execution order.
	Seq       int64           `gorm:"primaryKey;autoIncrement"`
	ID        string          `gorm:"uniqueIndex"`
	SessionID string          `gorm:"index"`
	Payload   json.RawMessage `gorm:"type:jsonb"`
}

func (recordRow) TableName() string { return "diagnostic_records" }
