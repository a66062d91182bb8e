package chat

import (
	"fmt"
	"slices"
	"time"
)

// RoomKind distinguishes seeded group rooms from on-demand direct rooms.
type RoomKind string

const (
	RoomGroup  RoomKind = "group"
	RoomDirect RoomKind = "direct"
)

// Room is a named communication context sessions join to exchange messages.
// Group rooms are seeded at startup and never change; direct rooms are
// created on demand with a fixed two-name participant set.
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Kind         RoomKind  `json:"kind"`
	Participants []string  `json:"participants,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
}

// HasParticipant reports whether name is a fixed participant of the room.
// Group rooms have no fixed participant set.
func (r Room) HasParticipant(name string) bool {
	return slices.Contains(r.Participants, name)
}

// LabelFor returns the room name as it should be shown to viewer. Direct
// rooms are labeled by the other party, never by a fixed room name.
func (r Room) LabelFor(viewer string) string {
	if r.Kind != RoomDirect {
		return r.Name
	}
	for _, p := range r.Participants {
		if p != viewer {
			return p
		}
	}
	return r.Name
}

// DirectRoomID derives the canonical id for a direct room from its two
// participant names. The names are sorted so both parties derive the same
// id regardless of who initiates.
func DirectRoomID(nameA, nameB string) string {
	if nameB < nameA {
		nameA, nameB = nameB, nameA
	}
	return fmt.Sprintf("direct_%s_%s", nameA, nameB)
}
