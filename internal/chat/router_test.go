package chat

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	router   *Router
	sender   *fakeSender
	store    *memStore
	sessions *SessionRegistry
	rooms    *RoomRegistry
}

func newRouterFixture() *routerFixture {
	store := newMemStore()
	sessions := NewSessionRegistry()
	rooms := NewRoomRegistry(store, zerolog.Nop())
	rooms.SeedDefaults([]RoomSeed{
		{ID: "general", Name: "General"},
		{ID: "music", Name: "Music"},
	})
	sender := &fakeSender{}
	router := NewRouter(sessions, rooms, store, sender, "general", zerolog.Nop())

	return &routerFixture{
		router:   router,
		sender:   sender,
		store:    store,
		sessions: sessions,
		rooms:    rooms,
	}
}

func (f *routerFixture) join(t *testing.T, connID, name string) {
	t.Helper()
	f.router.Dispatch(connID, JoinEvent{Username: name, Theme: "dark"})
	require.Empty(t, f.sender.typed(connID, "join_error"), "join of %s should succeed", name)
}

func TestJoinHappyPath(t *testing.T) {
	f := newRouterFixture()

	f.join(t, "conn-a", "alice")

	// History and visible rooms go to the new session only.
	histories := f.sender.typed("conn-a", "chat_history")
	require.Len(t, histories, 1)
	assert.Equal(t, "general", histories[0].Data.(historyPayload).RoomID)

	lists := f.sender.typed("conn-a", "chats_list")
	require.Len(t, lists, 1)
	rooms := lists[0].Data.([]RoomSummary)
	require.Len(t, rooms, 2)
	assert.Equal(t, "general", rooms[0].ID)

	// Presence goes to every connection.
	presence := f.sender.broadcasts("online_users")
	require.Len(t, presence, 1)
	assert.Equal(t, []string{"alice"}, presence[0].Data.([]string))
}

func TestJoinNotifiesExistingRoomMembers(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.sender.reset()

	f.join(t, "conn-b", "bob")

	joined := f.sender.typed("conn-a", "user_joined")
	require.Len(t, joined, 1)
	assert.Equal(t, "bob", joined[0].Data.(presencePayload).Username)

	// The joiner does not get its own joined notice.
	assert.Empty(t, f.sender.typed("conn-b", "user_joined"))

	presence := f.sender.broadcasts("online_users")
	require.Len(t, presence, 1)
	assert.Equal(t, []string{"alice", "bob"}, presence[0].Data.([]string))

	// Both room members get the updated roster.
	for _, connID := range []string{"conn-a", "conn-b"} {
		roster := f.sender.typed(connID, "chat_participants")
		require.Len(t, roster, 1)
		assert.Equal(t, "general", roster[0].Data.(participantsPayload).RoomID)
		assert.Equal(t, []string{"alice", "bob"}, roster[0].Data.(participantsPayload).Participants)
	}
}

func TestJoinNameTaken(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.sender.reset()

	f.router.Dispatch("conn-b", JoinEvent{Username: "alice", Theme: "light"})

	errs := f.sender.typed("conn-b", "join_error")
	require.Len(t, errs, 1)

	// No state change, no broadcasts, existing session untouched.
	assert.Empty(t, f.sender.broadcasts("online_users"))
	assert.Equal(t, []string{"alice"}, f.sessions.OnlineNames())
	sess, ok := f.sessions.LookupByConnection("conn-a")
	require.True(t, ok)
	assert.Equal(t, "dark", sess.Theme)
}

func TestJoinOnJoinedConnectionIsNoop(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.sender.reset()

	// A second join on the same connection must not replace the session
	// or leave a stale name in the presence index.
	f.router.Dispatch("conn-a", JoinEvent{Username: "alice2", Theme: "light"})

	assert.Empty(t, f.sender.events)
	assert.Equal(t, []string{"alice"}, f.sessions.OnlineNames())

	f.router.HandleDisconnect("conn-a")
	assert.Empty(t, f.sessions.OnlineNames())

	// Both names are usable after the disconnect.
	f.join(t, "conn-b", "alice")
	f.join(t, "conn-c", "alice2")
	assert.Equal(t, []string{"alice", "alice2"}, f.sessions.OnlineNames())
}

func TestPostMessageFanout(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.join(t, "conn-b", "bob")
	f.sender.reset()

	f.router.Dispatch("conn-a", PostMessageEvent{Body: "hi"})

	for _, conn := range []string{"conn-a", "conn-b"} {
		msgs := f.sender.typed(conn, "new_message")
		require.Len(t, msgs, 1, "connection %s should receive the message", conn)
		msg := msgs[0].Data.(Message)
		assert.Equal(t, "hi", msg.Body)
		assert.Equal(t, "alice", msg.Author)
		assert.Equal(t, KindText, msg.Kind)
	}

	// Persisted as the last entry of the room log.
	history, err := f.store.LoadHistory("general")
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, "hi", history[len(history)-1].Body)
}

func TestPostMessageWithoutSessionIsNoop(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.sender.reset()

	f.router.Dispatch("ghost", PostMessageEvent{Body: "boo"})

	assert.Empty(t, f.sender.events)
	history, _ := f.store.LoadHistory("general")
	assert.Empty(t, history)
}

func TestPostMessageAttachmentKinds(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")

	tests := []struct {
		mimeType string
		want     Kind
	}{
		{"image/png", KindImage},
		{"video/webm", KindVideo},
		{"audio/ogg", KindAudio},
		{"application/zip", KindFile},
	}
	for _, tt := range tests {
		f.sender.reset()
		f.router.Dispatch("conn-a", PostMessageEvent{
			Body:       "see attached",
			Attachment: &Attachment{Filename: "f", MimeType: tt.mimeType, URL: "/uploads/files/f"},
		})

		msgs := f.sender.typed("conn-a", "new_message")
		require.Len(t, msgs, 1)
		assert.Equal(t, tt.want, msgs[0].Data.(Message).Kind, "mime %s", tt.mimeType)
	}
}

func TestPostMessagePersistFailure(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.join(t, "conn-b", "bob")
	f.sender.reset()
	f.store.failAppend = true

	f.router.Dispatch("conn-a", PostMessageEvent{Body: "hi"})

	// Persist-then-broadcast: on failure nobody sees the message.
	assert.Empty(t, f.sender.typed("conn-a", "new_message"))
	assert.Empty(t, f.sender.typed("conn-b", "new_message"))
	require.Len(t, f.sender.typed("conn-a", "error_message"), 1)
	assert.Empty(t, f.sender.to("conn-b"))
}

func TestSwitchRoomMovesFanout(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.join(t, "conn-b", "bob")
	f.sender.reset()

	f.router.Dispatch("conn-a", SwitchRoomEvent{RoomID: "music"})

	histories := f.sender.typed("conn-a", "chat_history")
	require.Len(t, histories, 1)
	assert.Equal(t, "music", histories[0].Data.(historyPayload).RoomID)

	// Everyone now in music gets the fresh participant roster.
	roster := f.sender.typed("conn-a", "chat_participants")
	require.Len(t, roster, 1)
	assert.Equal(t, "music", roster[0].Data.(participantsPayload).RoomID)
	assert.Equal(t, []string{"alice"}, roster[0].Data.(participantsPayload).Participants)
	assert.Empty(t, f.sender.typed("conn-b", "chat_participants"))

	// Bob posting in general no longer reaches alice.
	f.sender.reset()
	f.router.Dispatch("conn-b", PostMessageEvent{Body: "anyone here?"})
	assert.Empty(t, f.sender.typed("conn-a", "new_message"))
	require.Len(t, f.sender.typed("conn-b", "new_message"), 1)

	// Alice posting in music reaches only alice.
	f.sender.reset()
	f.router.Dispatch("conn-a", PostMessageEvent{Body: "solo"})
	require.Len(t, f.sender.typed("conn-a", "new_message"), 1)
	assert.Empty(t, f.sender.typed("conn-b", "new_message"))
}

func TestSwitchRoomSameRoomIsNoop(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.sender.reset()

	f.router.Dispatch("conn-a", SwitchRoomEvent{RoomID: "general"})

	assert.Empty(t, f.sender.events)
}

func TestSwitchRoomNotFound(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.sender.reset()

	f.router.Dispatch("conn-a", SwitchRoomEvent{RoomID: "void"})

	require.Len(t, f.sender.typed("conn-a", "error_message"), 1)
	sess, _ := f.sessions.LookupByConnection("conn-a")
	assert.Equal(t, "general", sess.CurrentRoom, "failed switch must not change state")
}

func TestSwitchRoomAccessDenied(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.join(t, "conn-b", "bob")
	f.join(t, "conn-m", "mallory")
	f.router.Dispatch("conn-a", CreateDirectEvent{Target: "bob"})
	f.sender.reset()

	f.router.Dispatch("conn-m", SwitchRoomEvent{RoomID: "direct_alice_bob"})

	require.Len(t, f.sender.typed("conn-m", "error_message"), 1)
	sess, _ := f.sessions.LookupByConnection("conn-m")
	assert.Equal(t, "general", sess.CurrentRoom)
}

func TestCreateDirectChat(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.join(t, "conn-b", "bob")
	f.sender.reset()

	f.router.Dispatch("conn-a", CreateDirectEvent{Target: "bob"})

	// Both visible-room lists grow by exactly one.
	for _, conn := range []string{"conn-a", "conn-b"} {
		lists := f.sender.typed(conn, "chats_list")
		require.Len(t, lists, 1)
		assert.Len(t, lists[0].Data.([]RoomSummary), 3)
	}

	// Each side sees the room labeled by the other party.
	created := f.sender.typed("conn-a", "chat_created")
	require.Len(t, created, 1)
	aliceView := created[0].Data.(RoomSummary)
	assert.Equal(t, "direct_alice_bob", aliceView.ID)
	assert.Equal(t, "bob", aliceView.Name)

	created = f.sender.typed("conn-b", "chat_created")
	require.Len(t, created, 1)
	bobView := created[0].Data.(RoomSummary)
	assert.Equal(t, "direct_alice_bob", bobView.ID)
	assert.Equal(t, "alice", bobView.Name)
}

func TestCreateDirectChatIdempotent(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.join(t, "conn-b", "bob")

	f.router.Dispatch("conn-a", CreateDirectEvent{Target: "bob"})
	f.router.Dispatch("conn-b", CreateDirectEvent{Target: "alice"})

	assert.Len(t, f.rooms.VisibleTo("alice"), 3)
	msgs, err := f.store.LoadHistory("direct_alice_bob")
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "only one creation notice regardless of initiator")
}

func TestCreateDirectChatSelf(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.sender.reset()

	f.router.Dispatch("conn-a", CreateDirectEvent{Target: "alice"})

	require.Len(t, f.sender.typed("conn-a", "error_message"), 1)
	assert.Len(t, f.rooms.VisibleTo("alice"), 2)
}

func TestCreateDirectChatTargetOffline(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.sender.reset()

	f.router.Dispatch("conn-a", CreateDirectEvent{Target: "bob"})

	errs := f.sender.typed("conn-a", "error_message")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Data.(string), "alice", "error should list who is online")
	assert.Len(t, f.rooms.VisibleTo("alice"), 2)
}

func TestDisconnectBroadcastsLeave(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.join(t, "conn-b", "bob")
	f.sender.reset()

	f.router.HandleDisconnect("conn-a")

	left := f.sender.typed("conn-b", "user_left")
	require.Len(t, left, 1)
	assert.Equal(t, "alice", left[0].Data.(presencePayload).Username)
	assert.Equal(t, "general", left[0].Data.(presencePayload).RoomID)

	presence := f.sender.broadcasts("online_users")
	require.Len(t, presence, 1)
	assert.Equal(t, []string{"bob"}, presence[0].Data.([]string))

	// The remaining member gets the shrunken roster for the room.
	roster := f.sender.typed("conn-b", "chat_participants")
	require.Len(t, roster, 1)
	assert.Equal(t, "general", roster[0].Data.(participantsPayload).RoomID)
	assert.Equal(t, []string{"bob"}, roster[0].Data.(participantsPayload).Participants)
}

func TestDisconnectUnknownConnIsNoop(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.sender.reset()

	f.router.HandleDisconnect("ghost")

	assert.Empty(t, f.sender.events)
}

func TestRoomsDebugDeliversVisibleList(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "conn-a", "alice")
	f.sender.reset()

	f.router.Dispatch("conn-a", RoomsDebugEvent{})

	lists := f.sender.typed("conn-a", "chats_list")
	require.Len(t, lists, 1)
	assert.Len(t, lists[0].Data.([]RoomSummary), 2)
}

func TestHandleConnectSendsGroupRooms(t *testing.T) {
	f := newRouterFixture()

	f.router.HandleConnect("conn-a")

	lists := f.sender.typed("conn-a", "chats_list")
	require.Len(t, lists, 1)
	rooms := lists[0].Data.([]RoomSummary)
	require.Len(t, rooms, 2)
	assert.Equal(t, RoomGroup, rooms[0].Kind)
}
