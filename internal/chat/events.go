package chat

import (
	"encoding/json"
	"fmt"
)

// Event is the outbound wire envelope delivered to clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Sender is the transport boundary the router pushes events through.
// Delivery is best effort; a slow or gone connection must not block the
// caller.
type Sender interface {
	Send(connID string, ev Event)
	SendAll(ev Event)
}

// InboundEvent is the closed set of client events the router dispatches on.
type InboundEvent interface{ isInbound() }

// JoinEvent announces a display name for the connection ("user_join").
type JoinEvent struct {
	Username string `json:"username"`
	Theme    string `json:"theme"`
}

// PostMessageEvent posts a message to the session's current room
// ("send_message").
type PostMessageEvent struct {
	Body       string      `json:"body"`
	ReplyTo    string      `json:"reply_to"`
	Attachment *Attachment `json:"attachment"`
}

// SwitchRoomEvent moves the session into another room ("switch_chat").
type SwitchRoomEvent struct {
	RoomID string `json:"chat_id"`
}

// CreateDirectEvent requests a 1:1 room with another online user
// ("create_direct_chat").
type CreateDirectEvent struct {
	Target string `json:"target"`
}

// RoomsDebugEvent asks for a fresh visible-room list ("get_chats_debug").
type RoomsDebugEvent struct{}

func (JoinEvent) isInbound()         {}
func (PostMessageEvent) isInbound()  {}
func (SwitchRoomEvent) isInbound()   {}
func (CreateDirectEvent) isInbound() {}
func (RoomsDebugEvent) isInbound()   {}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeInbound parses a raw client frame into a typed event. A frame with
// an unknown type or a missing required field yields an error; callers drop
// such frames without surfacing anything to the client.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case "user_join":
		var ev JoinEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode user_join: %w", err)
		}
		if ev.Username == "" {
			return nil, fmt.Errorf("user_join: missing username")
		}
		return ev, nil

	case "send_message":
		var ev PostMessageEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode send_message: %w", err)
		}
		if ev.Body == "" && ev.Attachment == nil {
			return nil, fmt.Errorf("send_message: empty message")
		}
		return ev, nil

	case "switch_chat":
		var ev SwitchRoomEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode switch_chat: %w", err)
		}
		if ev.RoomID == "" {
			return nil, fmt.Errorf("switch_chat: missing chat_id")
		}
		return ev, nil

	case "create_direct_chat":
		var ev CreateDirectEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode create_direct_chat: %w", err)
		}
		if ev.Target == "" {
			return nil, fmt.Errorf("create_direct_chat: missing target")
		}
		return ev, nil

	case "get_chats_debug":
		return RoomsDebugEvent{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// RoomSummary is a room as presented to one viewer; direct rooms carry the
// other participant's name as their label.
type RoomSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Kind         RoomKind `json:"kind"`
	Participants []string `json:"participants,omitempty"`
}

func summarize(room Room, viewer string) RoomSummary {
	return RoomSummary{
		ID:           room.ID,
		Name:         room.LabelFor(viewer),
		Kind:         room.Kind,
		Participants: room.Participants,
	}
}

func summarizeAll(rooms []Room, viewer string) []RoomSummary {
	out := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, summarize(room, viewer))
	}
	return out
}

type historyPayload struct {
	RoomID   string    `json:"chat_id"`
	Messages []Message `json:"messages"`
}

type presencePayload struct {
	Username string `json:"username"`
	RoomID   string `json:"chat_id"`
}

type participantsPayload struct {
	RoomID       string   `json:"chat_id"`
	Participants []string `json:"participants"`
}

func eventRoomsList(rooms []RoomSummary) Event {
	return Event{Type: "chats_list", Data: rooms}
}

func eventHistory(roomID string, msgs []Message) Event {
	if msgs == nil {
		msgs = []Message{}
	}
	return Event{Type: "chat_history", Data: historyPayload{RoomID: roomID, Messages: msgs}}
}

func eventNewMessage(msg Message) Event {
	return Event{Type: "new_message", Data: msg}
}

func eventOnlineUsers(names []string) Event {
	return Event{Type: "online_users", Data: names}
}

func eventUserJoined(name, roomID string) Event {
	return Event{Type: "user_joined", Data: presencePayload{Username: name, RoomID: roomID}}
}

func eventUserLeft(name, roomID string) Event {
	return Event{Type: "user_left", Data: presencePayload{Username: name, RoomID: roomID}}
}

func eventRoomCreated(room RoomSummary) Event {
	return Event{Type: "chat_created", Data: room}
}

func eventParticipants(roomID string, names []string) Event {
	return Event{Type: "chat_participants", Data: participantsPayload{RoomID: roomID, Participants: names}}
}

func eventJoinError(msg string) Event {
	return Event{Type: "join_error", Data: msg}
}

func eventError(msg string) Event {
	return Event{Type: "error_message", Data: msg}
}
