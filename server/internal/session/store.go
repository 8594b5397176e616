package session

import (
	"context"

	"techassist/server/internal/model"
)

// Store persists diagnostic sessions with their answers and probe
// records. Answers and records are scoped by session ID; records keep
// insertion order, which is the probe execution order.
type Store interface {
	Get(ctx context.Context, id string) (*model.DiagnosticSession, error)
	Save(ctx context.Context, s *model.DiagnosticSession) error
	ListByUser(ctx context.Context, userID string) ([]model.DiagnosticSession, error)

	SaveAnswer(ctx context.Context, a *model.Answer) error
	ListAnswers(ctx context.Context, sessionID string) ([]model.Answer, error)

	AppendRecord(ctx context.Context, r *model.DiagnosticRecord) error
	ListRecords(ctx context.Context, sessionID string) ([]model.DiagnosticRecord, error)
	// DeleteRecords wipes a session's probe records; re-running the probe
	// batch starts from a clean slate.
	DeleteRecords(ctx context.Context, sessionID string) error
}
