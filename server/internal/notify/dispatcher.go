package notify

import (
	"go.uber.org/zap"
)

// Broadcaster is the realtime side of dispatch, satisfied by hub.Hub.
type Broadcaster interface {
	Broadcast(topic string, payload any)
}

// Dispatcher turns events into side effects. It is the only component
// that talks to the hub and the mailer, so services stay free of both:
// they return events from their mutating operations and the caller hands
// them here after the store writes commit.
type Dispatcher struct {
	hub    Broadcaster
	mailer Notifier
	log    *zap.Logger
}

func NewDispatcher(hub Broadcaster, mailer Notifier, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{hub: hub, mailer: mailer, log: log}
}

// Dispatch broadcasts each event to its topics and sends its mail, if
// any, fire-and-forget. Mail failures are logged and never surface to
// the operation that produced the event.
func (d *Dispatcher) Dispatch(events ...Event) {
	for _, ev := range events {
		frame := make(map[string]any, len(ev.Payload)+1)
		frame["type"] = ev.Type
		for k, v := range ev.Payload {
			frame[k] = v
		}
		for _, topic := range ev.Topics {
			d.hub.Broadcast(topic, frame)
		}

		if ev.Mail != nil && d.mailer != nil {
			mail := *ev.Mail
			go func() {
				if err := d.mailer.Send(mail); err != nil {
					d.log.Warn("mail delivery failed",
						zap.String("subject", mail.Subject),
						zap.Error(err))
				}
			}()
		}
	}
}
