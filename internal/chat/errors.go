package chat

import "errors"

// Error kinds surfaced back to the originating connection as user-visible
// notices. None of them are fatal to the process.
var (
	ErrNameTaken     = errors.New("username already taken")
	ErrRoomNotFound  = errors.New("chat not found")
	ErrAccessDenied  = errors.New("no access to this chat")
	ErrSelfChat      = errors.New("cannot create a chat with yourself")
	ErrTargetOffline = errors.New("target user is offline")
	ErrUnknownEvent  = errors.New("unknown event type")
)
