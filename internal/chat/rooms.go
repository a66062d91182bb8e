package chat

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RoomSeed describes a group room created at process start.
type RoomSeed struct {
	ID   string
	Name string
}

// RoomRegistry owns the room table: group rooms seeded once at startup and
// direct rooms created on demand with deterministic ids.
type RoomRegistry struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	seedOrder []string
	store     MessageStore
	log       zerolog.Logger
}

func NewRoomRegistry(store MessageStore, log zerolog.Logger) *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*Room),
		store: store,
		log:   log,
	}
}

// SeedDefaults creates the group rooms. Called once at process start;
// seeding the same id twice keeps the first room.
func (rr *RoomRegistry) SeedDefaults(seeds []RoomSeed) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	for _, seed := range seeds {
		if _, exists := rr.rooms[seed.ID]; exists {
			continue
		}
		rr.rooms[seed.ID] = &Room{ID: seed.ID, Name: seed.Name, Kind: RoomGroup}
		rr.seedOrder = append(rr.seedOrder, seed.ID)
	}
}

// Get returns the room with the given id.
func (rr *RoomRegistry) Get(roomID string) (Room, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	room, ok := rr.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return *room, true
}

// GetOrCreateDirect returns the direct room for the unordered pair
// (nameA, nameB), creating it on first use. Creation persists a single
// system message announcing the room; repeated calls with either name order
// return the existing room without side effects.
func (rr *RoomRegistry) GetOrCreateDirect(nameA, nameB string) (Room, bool) {
	id := DirectRoomID(nameA, nameB)

	rr.mu.Lock()
	defer rr.mu.Unlock()

	if room, ok := rr.rooms[id]; ok {
		return *room, false
	}

	room := &Room{
		ID:           id,
		Name:         nameB,
		Kind:         RoomDirect,
		Participants: []string{nameA, nameB},
		CreatedAt:    time.Now(),
	}
	rr.rooms[id] = room

	notice := &Message{
		RoomID: id,
		Author: SystemAuthor,
		Body:   fmt.Sprintf("Direct chat created between %s and %s", nameA, nameB),
		Kind:   KindSystem,
	}
	if err := rr.store.Append(id, notice); err != nil {
		// The room stays usable; only the creation notice is lost.
		rr.log.Warn().Err(err).Str("room_id", id).Msg("failed to persist direct chat notice")
	}

	rr.log.Info().Str("room_id", id).Msg("direct chat created")
	return *room, true
}

// VisibleTo returns the rooms name can see: every group room in seed order,
// followed by direct rooms that include name as a participant. Recomputed
// on every call since direct rooms appear at runtime.
func (rr *RoomRegistry) VisibleTo(name string) []Room {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	visible := make([]Room, 0, len(rr.seedOrder))
	for _, id := range rr.seedOrder {
		visible = append(visible, *rr.rooms[id])
	}

	var directs []Room
	for _, room := range rr.rooms {
		if room.Kind == RoomDirect && room.HasParticipant(name) {
			directs = append(directs, *room)
		}
	}
	sort.Slice(directs, func(i, j int) bool {
		if directs[i].CreatedAt.Equal(directs[j].CreatedAt) {
			return directs[i].ID < directs[j].ID
		}
		return directs[i].CreatedAt.Before(directs[j].CreatedAt)
	})

	return append(visible, directs...)
}

// GroupRooms returns the seeded group rooms in seed order.
func (rr *RoomRegistry) GroupRooms() []Room {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	rooms := make([]Room, 0, len(rr.seedOrder))
	for _, id := range rr.seedOrder {
		rooms = append(rooms, *rr.rooms[id])
	}
	return rooms
}

// CanAccess reports whether name may enter roomID: any group room, or a
// direct room listing name as participant. False for unknown rooms.
func (rr *RoomRegistry) CanAccess(roomID, name string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	room, ok := rr.rooms[roomID]
	if !ok {
		return false
	}
	if room.Kind == RoomGroup {
		return true
	}
	return room.HasParticipant(name)
}
