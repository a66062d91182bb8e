package chat

import (
	"errors"
	"sort"
	"time"
)

// memStore is an in-memory MessageStore for registry and router tests.
type memStore struct {
	logs       map[string][]Message
	failAppend bool
}

func newMemStore() *memStore {
	return &memStore{logs: make(map[string][]Message)}
}

func (m *memStore) Append(roomID string, msg *Message) error {
	if m.failAppend {
		return errors.New("disk full")
	}
	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.logs[roomID] = append(m.logs[roomID], *msg)
	return nil
}

func (m *memStore) LoadHistory(roomID string) ([]Message, error) {
	msgs := append([]Message(nil), m.logs[roomID]...)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// sentEvent records one delivery made through the fake sender. Broadcasts
// to every connection are recorded with connID "*".
type sentEvent struct {
	connID string
	ev     Event
}

type fakeSender struct {
	events []sentEvent
}

func (f *fakeSender) Send(connID string, ev Event) {
	f.events = append(f.events, sentEvent{connID: connID, ev: ev})
}

func (f *fakeSender) SendAll(ev Event) {
	f.events = append(f.events, sentEvent{connID: "*", ev: ev})
}

func (f *fakeSender) reset() {
	f.events = nil
}

// to returns the events delivered to one connection (broadcasts excluded).
func (f *fakeSender) to(connID string) []Event {
	var out []Event
	for _, e := range f.events {
		if e.connID == connID {
			out = append(out, e.ev)
		}
	}
	return out
}

// typed returns events of one type delivered to connID.
func (f *fakeSender) typed(connID, eventType string) []Event {
	var out []Event
	for _, e := range f.to(connID) {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// broadcasts returns the SendAll events of one type.
func (f *fakeSender) broadcasts(eventType string) []Event {
	var out []Event
	for _, e := range f.events {
		if e.connID == "*" && e.ev.Type == eventType {
			out = append(out, e.ev)
		}
	}
	return out
}
