// Package chat implements the room membership and message routing core:
// session and room registries, the message model, and the router that maps
// inbound transport events onto registry mutations and fan-out deliveries.
package chat

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a message for rendering purposes.
type Kind string

const (
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindVideo  Kind = "video"
	KindAudio  Kind = "audio"
	KindFile   Kind = "file"
	KindSystem Kind = "system"
)

// SystemAuthor is the author name used for server-generated messages.
const SystemAuthor = "system"

// Attachment describes an uploaded file referenced by a message. It is
// produced by the upload boundary and treated as opaque by the router.
type Attachment struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name,omitempty"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
	URL          string `json:"url"`
}

// Message is a single chat entry. Once persisted it is immutable.
type Message struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"room_id"`
	Author     string      `json:"author"`
	Body       string      `json:"body"`
	Kind       Kind        `json:"kind"`
	CreatedAt  time.Time   `json:"created_at"`
	ReplyTo    string      `json:"reply_to,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// NewMessageID returns a globally unique message id. The unix-millisecond
// prefix is zero padded so lexicographic order matches creation order; the
// random suffix disambiguates ids minted within the same millisecond.
func NewMessageID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%013d-%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}

// KindForMIME maps an attachment MIME type onto a message kind.
func KindForMIME(mimeType string) Kind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	default:
		return KindFile
	}
}

// MessageStore is the persistence contract for per-room message logs.
// Append assigns the message id and timestamp when they are unset.
type MessageStore interface {
	Append(roomID string, msg *Message) error
	LoadHistory(roomID string) ([]Message, error)
}
