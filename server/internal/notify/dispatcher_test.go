package notify

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

type broadcastCall struct {
	topic   string
	payload map[string]any
}

func (f *fakeBroadcaster) Broadcast(topic string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, broadcastCall{topic: topic, payload: payload.(map[string]any)})
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []Mail
	err   error
	fired chan struct{}
}

func (f *fakeNotifier) Send(m Mail) error {
	f.mu.Lock()
	f.sent = append(f.sent, m)
	f.mu.Unlock()
	close(f.fired)
	return f.err
}

// Dispatch fans a single event out to all of its topics, with the event
// type merged into the wire frame.
func TestDispatchBroadcasts(t *testing.T) {
	hub := &fakeBroadcaster{}
	d := NewDispatcher(hub, NopNotifier{}, nil)

	d.Dispatch(Event{
		Type:    EventTicketCreated,
		Topics:  []string{TopicTechnicians, TicketTopic("t1")},
		Payload: map[string]any{"ticket": map[string]any{"id": "t1"}},
	})

	if len(hub.calls) != 2 {
		t.Fatalf("broadcast calls = %d, want 2", len(hub.calls))
	}
	if hub.calls[0].topic != TopicTechnicians || hub.calls[1].topic != "ticket_t1" {
		t.Fatalf("topics = %s, %s", hub.calls[0].topic, hub.calls[1].topic)
	}
	frame := hub.calls[0].payload
	if frame["type"] != EventTicketCreated {
		t.Fatalf("frame type = %v", frame["type"])
	}
	if frame["ticket"] == nil {
		t.Fatal("payload key missing from frame")
	}
}

// Mail rides on the event but is delivered asynchronously, and a
// delivery failure never reaches the caller.
func TestDispatchSendsMailFireAndForget(t *testing.T) {
	mailer := &fakeNotifier{err: errors.New("relay down"), fired: make(chan struct{})}
	d := NewDispatcher(&fakeBroadcaster{}, mailer, nil)

	d.Dispatch(Event{
		Type: EventTicketAssigned,
		Mail: &Mail{To: []string{"tech@example.test"}, Subject: "Ticket assigné"},
	})

	select {
	case <-mailer.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("mail was never sent")
	}

	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	if len(mailer.sent) != 1 || mailer.sent[0].Subject != "Ticket assigné" {
		t.Fatalf("sent = %+v", mailer.sent)
	}
}

// An event with no topics and no mail is a no-op.
func TestDispatchEmptyEvent(t *testing.T) {
	hub := &fakeBroadcaster{}
	d := NewDispatcher(hub, NopNotifier{}, nil)

	d.Dispatch(Event{Type: EventCommentAdded})

	if len(hub.calls) != 0 {
		t.Fatalf("broadcast calls = %d, want 0", len(hub.calls))
	}
}
