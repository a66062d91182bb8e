package chat

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Router is the per-session state machine driving room membership and
// message fan-out. Every state-mutating operation runs under one mutex, so
// registry mutations and store appends are serialized process-wide and a
// read-modify-write append can never race another event for the same room.
type Router struct {
	mu          sync.Mutex
	sessions    *SessionRegistry
	rooms       *RoomRegistry
	store       MessageStore
	send        Sender
	defaultRoom string
	log         zerolog.Logger
}

func NewRouter(sessions *SessionRegistry, rooms *RoomRegistry, store MessageStore, send Sender, defaultRoom string, log zerolog.Logger) *Router {
	return &Router{
		sessions:    sessions,
		rooms:       rooms,
		store:       store,
		send:        send,
		defaultRoom: defaultRoom,
		log:         log,
	}
}

// HandleConnect runs when a transport connection opens, before any join.
// The anonymous connection sees the group rooms only.
func (r *Router) HandleConnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.send.Send(connID, eventRoomsList(summarizeAll(r.rooms.GroupRooms(), "")))
}

// Dispatch routes one inbound event to its handler. The switch is
// exhaustive over the closed event set.
func (r *Router) Dispatch(connID string, ev InboundEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev := ev.(type) {
	case JoinEvent:
		r.join(connID, ev.Username, ev.Theme)
	case PostMessageEvent:
		r.postMessage(connID, ev)
	case SwitchRoomEvent:
		r.switchRoom(connID, ev.RoomID)
	case CreateDirectEvent:
		r.createDirect(connID, ev.Target)
	case RoomsDebugEvent:
		r.roomsDebug(connID)
	}
}

// HandleDisconnect runs when the transport drops a connection. Unknown
// connections are a no-op with no broadcasts.
func (r *Router) HandleDisconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions.Remove(connID)
	if !ok {
		return
	}

	r.toRoom(sess.CurrentRoom, eventUserLeft(sess.Name, sess.CurrentRoom), "")
	r.send.SendAll(eventOnlineUsers(r.sessions.OnlineNames()))
	r.toRoom(sess.CurrentRoom, eventParticipants(sess.CurrentRoom, r.sessions.ParticipantsIn(sess.CurrentRoom)), "")

	r.log.Info().Str("username", sess.Name).Msg("user disconnected")
}

func (r *Router) join(connID, username, theme string) {
	// A connection carries at most one session; a repeat join would orphan
	// the old name in the presence index.
	if _, joined := r.sessions.LookupByConnection(connID); joined {
		return
	}

	sess, err := r.sessions.Register(connID, username, theme, r.defaultRoom)
	if err != nil {
		r.send.Send(connID, eventJoinError(ErrNameTaken.Error()))
		return
	}

	r.deliverHistory(connID, r.defaultRoom)
	r.send.Send(connID, eventRoomsList(summarizeAll(r.rooms.VisibleTo(username), username)))
	r.toRoom(r.defaultRoom, eventUserJoined(username, r.defaultRoom), connID)
	r.send.SendAll(eventOnlineUsers(r.sessions.OnlineNames()))
	r.toRoom(r.defaultRoom, eventParticipants(r.defaultRoom, r.sessions.ParticipantsIn(r.defaultRoom)), "")

	r.log.Info().Str("username", sess.Name).Str("room_id", sess.CurrentRoom).Msg("user joined")
}

func (r *Router) switchRoom(connID, roomID string) {
	sess, ok := r.sessions.LookupByConnection(connID)
	if !ok || sess.CurrentRoom == roomID {
		return
	}

	if _, exists := r.rooms.Get(roomID); !exists {
		r.send.Send(connID, eventError(ErrRoomNotFound.Error()))
		return
	}
	if !r.rooms.CanAccess(roomID, sess.Name) {
		r.send.Send(connID, eventError(ErrAccessDenied.Error()))
		return
	}

	r.sessions.SetCurrentRoom(connID, roomID)
	r.deliverHistory(connID, roomID)
	r.toRoom(roomID, eventParticipants(roomID, r.sessions.ParticipantsIn(roomID)), "")

	r.log.Debug().Str("username", sess.Name).Str("room_id", roomID).Msg("user switched room")
}

func (r *Router) postMessage(connID string, ev PostMessageEvent) {
	sess, ok := r.sessions.LookupByConnection(connID)
	if !ok {
		// No session, no-op: the transport never learns about this.
		return
	}

	msg := &Message{
		RoomID:     sess.CurrentRoom,
		Author:     sess.Name,
		Body:       ev.Body,
		Kind:       KindText,
		ReplyTo:    ev.ReplyTo,
		Attachment: ev.Attachment,
	}
	if ev.Attachment != nil {
		msg.Kind = KindForMIME(ev.Attachment.MimeType)
	}

	// Persist first: a broadcast message must be visible in history after
	// reconnect.
	if err := r.store.Append(sess.CurrentRoom, msg); err != nil {
		r.log.Error().Err(err).Str("room_id", sess.CurrentRoom).Msg("failed to persist message")
		r.send.Send(connID, eventError("message could not be saved"))
		return
	}

	r.toRoom(sess.CurrentRoom, eventNewMessage(*msg), "")
}

func (r *Router) createDirect(connID, target string) {
	sess, ok := r.sessions.LookupByConnection(connID)
	if !ok {
		return
	}

	if target == sess.Name {
		r.send.Send(connID, eventError(ErrSelfChat.Error()))
		return
	}

	targetConn, online := r.sessions.LookupByName(target)
	if !online {
		names := strings.Join(r.sessions.OnlineNames(), ", ")
		r.send.Send(connID, eventError(fmt.Sprintf("%s: %q (online: %s)", ErrTargetOffline, target, names)))
		return
	}

	room, _ := r.rooms.GetOrCreateDirect(sess.Name, target)

	r.send.Send(connID, eventRoomsList(summarizeAll(r.rooms.VisibleTo(sess.Name), sess.Name)))
	r.send.Send(targetConn, eventRoomsList(summarizeAll(r.rooms.VisibleTo(target), target)))

	// Each party sees the room labeled by the other.
	r.send.Send(connID, eventRoomCreated(summarize(room, sess.Name)))
	r.send.Send(targetConn, eventRoomCreated(summarize(room, target)))
}

func (r *Router) roomsDebug(connID string) {
	sess, ok := r.sessions.LookupByConnection(connID)
	if !ok {
		return
	}
	r.send.Send(connID, eventRoomsList(summarizeAll(r.rooms.VisibleTo(sess.Name), sess.Name)))
}

// deliverHistory sends a room's persisted log to one connection. An
// unreadable log is served as empty history and logged, never fatal.
func (r *Router) deliverHistory(connID, roomID string) {
	msgs, err := r.store.LoadHistory(roomID)
	if err != nil {
		r.log.Warn().Err(err).Str("room_id", roomID).Msg("history load failed, serving empty history")
		msgs = nil
	}
	r.send.Send(connID, eventHistory(roomID, msgs))
}

// toRoom delivers ev to every connection whose session is currently in
// roomID, computed at call time. exclude skips one connection id.
func (r *Router) toRoom(roomID string, ev Event, exclude string) {
	for _, connID := range r.sessions.Connections(roomID) {
		if connID == exclude {
			continue
		}
		r.send.Send(connID, ev)
	}
}
