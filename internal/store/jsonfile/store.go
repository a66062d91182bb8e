// Package jsonfile persists per-room message logs as flat JSON files, one
// file per room. Loads of a missing log return empty history; writes go
// through a temp file and rename so a crash never leaves a half-written log.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avdeenkov/roomcast/internal/chat"
)

// Store implements chat.MessageStore over a data directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// logPath returns the file path for a room's log.
func (s *Store) logPath(roomID string) string {
	// Room ids are derived from user names; keep them filesystem safe.
	safe := strings.ReplaceAll(roomID, "/", "_")
	safe = strings.ReplaceAll(safe, "..", "_")
	return filepath.Join(s.dir, "messages-"+safe+".json")
}

// Append adds msg to the room's log, assigning id and timestamp when unset.
// The whole log is rewritten; callers serialize appends per process.
func (s *Store) Append(roomID string, msg *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.load(roomID)
	if err != nil {
		// A corrupt log cannot be extended in place; start over rather
		// than fail every send to this room.
		msgs = nil
	}

	if msg.ID == "" {
		msg.ID = chat.NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	msgs = append(msgs, *msg)
	return s.save(roomID, msgs)
}

// LoadHistory returns the room's log sorted by creation time ascending.
// A missing log is empty history; an unreadable or malformed log returns
// empty history alongside the error.
func (s *Store) LoadHistory(roomID string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.load(roomID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

func (s *Store) load(roomID string) ([]chat.Message, error) {
	data, err := os.ReadFile(s.logPath(roomID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read message log: %w", err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var msgs []chat.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse message log: %w", err)
	}
	return msgs, nil
}

func (s *Store) save(roomID string, msgs []chat.Message) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal message log: %w", err)
	}

	path := s.logPath(roomID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
