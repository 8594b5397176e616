package notify

// Event is the post-commit unit of notification. Services return events
// from their mutating operations instead of touching the mailer or the
// hub themselves; the Dispatcher is the only component that does either.
// An event is emitted only after the store writes it describes have
// succeeded.
type Event struct {
	Type string `json:"type"`

	// Topics are the hub groups this event fans out to. Empty means no
	// realtime broadcast.
	Topics []string `json:"-"`

	// Payload is the wire object sent to every topic subscriber.
	Payload map[string]any `json:"payload"`

	// Mail, when non-nil, is sent fire-and-forget.
	Mail *Mail `json:"-"`
}

type Mail struct {
	To      []string
	Subject string
	Body    string
}

// Topic names. Per-ticket topics are derived, the technician feed is
// global.
const (
	TopicTechnicians = "technician_notifications"
)

func TicketTopic(ticketID string) string {
	return "ticket_" + ticketID
}

// Event type names used across services.
const (
	EventTicketCreated      = "new_ticket"
	EventTicketAssigned     = "ticket_assigned"
	EventTicketUpdated      = "ticket_updated"
	EventCommentAdded       = "new_comment"
	EventInstructionUpdated = "instruction_updated"
)
