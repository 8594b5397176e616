package ticket

import (
	"context"
	"errors"
	"time"

	"techassist/server/internal/model"
)

var (
	ErrNotFound         = errors.New("ticket not found")
	ErrCommentNotFound  = errors.New("comment not found")
	ErrAlreadyConfirmed = errors.New("instruction already confirmed")
)

// Store persists tickets and their comment logs.
//
// The comment log is append-first: AppendComment assigns a seq that is
// monotonic per ticket, and a duplicate comment ID returns the seq it was
// first assigned (idempotent). Comments are never rewritten once appended,
// with one exception: ConfirmComment flips an instruction's confirmation
// flag exactly once.
type Store interface {
	CreateTicket(ctx context.Context, t *model.Ticket) error
	GetTicket(ctx context.Context, id string) (*model.Ticket, error)
	SaveTicket(ctx context.Context, t *model.Ticket) error
	ListByCreator(ctx context.Context, userID string) ([]model.Ticket, error)
	ListByAssignee(ctx context.Context, userID string) ([]model.Ticket, error)
	ListOpen(ctx context.Context) ([]model.Ticket, error)
	// CountActiveByAssignee counts a technician's tickets still in
	// progress, the load measure auto-assignment balances on.
	CountActiveByAssignee(ctx context.Context, userID string) (int, error)
	// FindBySession returns the ticket created from the given diagnostic
	// session, or ErrNotFound. This is the duplicate-conversion guard.
	FindBySession(ctx context.Context, sessionID string) (*model.Ticket, error)

	AppendComment(ctx context.Context, ticketID string, c *model.Comment) (int64, error)
	ListComments(ctx context.Context, ticketID string) ([]model.Comment, error)
	GetComment(ctx context.Context, commentID string) (*model.Comment, error)
	// ConfirmComment marks an instruction confirmed at the given time and
	// returns the updated comment. A second confirmation returns
	// ErrAlreadyConfirmed with the unchanged comment.
	ConfirmComment(ctx context.Context, commentID string, at time.Time) (*model.Comment, error)
}
