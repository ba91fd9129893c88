package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Role is the author's standing in the source channel
type Role string

const (
	RoleRegular   Role = "regular"
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleOwner     Role = "owner"
)

// ParseRole maps an upstream role string to a known Role.
// Unknown or empty values fall back to regular.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleMember, RoleModerator, RoleOwner:
		return Role(s)
	default:
		return RoleRegular
	}
}

// Author identifies who wrote a message
type Author struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// Symbol is an inline substitution marker (an emote): wherever Marker
// appears in the message text, renderers substitute the referenced image.
type Symbol struct {
	Marker string `json:"marker"`
	Image  string `json:"image,omitempty"`
	Label  string `json:"label,omitempty"`
}

// Message is a single chat message from one source.
// ID is source-assigned and only guaranteed unique within one fetch batch;
// global uniqueness is the merge log's job. A zero OccurredAt means the
// upstream timestamp was missing or unparsable.
type Message struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	Author     Author    `json:"author"`
	Role       Role      `json:"role"`
	Text       string    `json:"text"`
	Symbols    []Symbol  `json:"symbols,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	ReceivedAt time.Time `json:"received_at"`
}

// GenerateID builds a deterministic fallback id for messages whose source
// did not assign one, from the fields that identify the message.
func GenerateID(sourceID, authorID, text string, occurredAt time.Time) string {
	h := sha256.Sum256([]byte(sourceID + "|" + authorID + "|" + text + "|" + occurredAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h[:8])
}
