// Package session provides bounded, persistent conversational session
// storage. All state transitions are pure functions over session slices;
// the Store decides when the result is persisted.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Capacity limits, enforced at save time only. In-memory collections may
// exceed them between saves.
const (
	MaxSessions           = 20
	MaxMessagesPerSession = 500

	// DefaultLabel is the prefix for auto-assigned display names.
	DefaultLabel = "Conversation"

	// ActiveThreshold is how recent a heartbeat must be for a session to
	// count as live.
	ActiveThreshold = 5 * time.Minute
)

// Palette is the fixed set of colors assigned round-robin to new sessions.
var Palette = []string{
	"#FF6B6B",
	"#4ECDC4",
	"#FFD93D",
	"#95E1D3",
	"#A8D8EA",
	"#C9B1FF",
	"#FFAAA5",
	"#87CEEB",
}

// Message is one utterance recorded in a session. Immutable once created.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is an identity-stable conversational bucket. Messages are kept
// newest-first.
type Session struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Color         string    `json:"color"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
	AutoNamed     bool      `json:"auto_named,omitempty"`
}

// NewMessage builds a message with a fresh id and the given timestamp.
func NewMessage(text string, ts time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: ts,
	}
}

// NextName returns the first free display name "<label> #<N>". Numbering
// is gap-filling: with "#1" and "#3" taken, the next name is "#2".
func NextName(sessions []Session, label string) string {
	if label == "" {
		label = DefaultLabel
	}
	used := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		used[s.Name] = true
	}
	for n := 1; ; n++ {
		name := fmt.Sprintf("%s #%d", label, n)
		if !used[name] {
			return name
		}
	}
}

// nextColor picks the palette entry for the next session, round-robin over
// the current session count.
func nextColor(sessions []Session) string {
	return Palette[len(sessions)%len(Palette)]
}

// GetOrCreate resolves a session by id, creating one when unknown. The
// second return value is true when a new session was created. The input
// slice is never mutated and creation is not persisted here.
func GetOrCreate(sessions []Session, id, label string, now time.Time) (Session, bool) {
	for _, s := range sessions {
		if s.ID == id {
			return s, false
		}
	}
	return Session{
		ID:           id,
		Name:         NextName(sessions, label),
		Color:        nextColor(sessions),
		CreatedAt:    now,
		LastActivity: now,
		AutoNamed:    true,
	}, true
}

// CreateFromHeartbeat creates a session for a liveness signal that arrived
// before any spoken content. Timestamps come from the heartbeat itself.
func CreateFromHeartbeat(sessions []Session, id, label string, ts time.Time) Session {
	return Session{
		ID:            id,
		Name:          NextName(sessions, label),
		Color:         nextColor(sessions),
		CreatedAt:     ts,
		LastActivity:  ts,
		LastHeartbeat: ts,
		AutoNamed:     true,
	}
}

// Rename sets a session's display name and clears the auto-named flag.
// Returns a new slice; the input is untouched.
func Rename(sessions []Session, id, name string) []Session {
	return update(sessions, id, func(s *Session) {
		s.Name = name
		s.AutoNamed = false
	})
}

// ChangeColor sets a session's color.
func ChangeColor(sessions []Session, id, color string) []Session {
	return update(sessions, id, func(s *Session) {
		s.Color = color
	})
}

// Delete removes a session by id.
func Delete(sessions []Session, id string) []Session {
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

// ClearMessages empties a session's message log.
func ClearMessages(sessions []Session, id string) []Session {
	return update(sessions, id, func(s *Session) {
		s.Messages = nil
	})
}

// AddMessage prepends a message (newest first) and bumps LastActivity to
// the message timestamp. No per-session cap applies here; trimming happens
// at save time.
func AddMessage(sessions []Session, id string, msg Message) []Session {
	return update(sessions, id, func(s *Session) {
		msgs := make([]Message, 0, len(s.Messages)+1)
		msgs = append(msgs, msg)
		msgs = append(msgs, s.Messages...)
		s.Messages = msgs
		s.LastActivity = msg.Timestamp
	})
}

// UpdateHeartbeat records a liveness signal.
func UpdateHeartbeat(sessions []Session, id string, ts time.Time) []Session {
	return update(sessions, id, func(s *Session) {
		s.LastHeartbeat = ts
		s.LastActivity = ts
	})
}

// IsActive reports whether the session has a heartbeat within
// ActiveThreshold of now.
func IsActive(s Session, now time.Time) bool {
	return IsActiveWithin(s, now, ActiveThreshold)
}

// IsActiveWithin is IsActive with a caller-supplied threshold.
func IsActiveWithin(s Session, now time.Time, threshold time.Duration) bool {
	if s.LastHeartbeat.IsZero() {
		return false
	}
	elapsed := now.Sub(s.LastHeartbeat)
	return elapsed >= 0 && elapsed <= threshold
}

// update applies fn to a deep-enough copy of the matching session and
// returns a new slice. Unmatched ids return a copy unchanged.
func update(sessions []Session, id string, fn func(*Session)) []Session {
	out := make([]Session, len(sessions))
	copy(out, sessions)
	for i := range out {
		if out[i].ID == id {
			msgs := make([]Message, len(out[i].Messages))
			copy(msgs, out[i].Messages)
			out[i].Messages = msgs
			fn(&out[i])
			break
		}
	}
	return out
}
