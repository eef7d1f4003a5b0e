package session

import (
	"encoding/json"
	"sort"

	"github.com/charmbracelet/log"
)

// storageKey is the single opaque key the full session array is persisted
// under.
const storageKey = "hark.sessions"

// KeyValue is the persistence boundary for session storage. A missing key
// and a corrupt payload are indistinguishable to readers.
type KeyValue interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Store persists the session collection through a key-value backend with
// whole-collection replace semantics.
type Store struct {
	kv KeyValue
}

// NewStore creates a session store over the given key-value backend.
func NewStore(kv KeyValue) *Store {
	return &Store{kv: kv}
}

// Load deserializes the persisted sessions. Corrupt or missing storage
// yields an empty collection, never an error.
func (st *Store) Load() []Session {
	raw, ok := st.kv.Get(storageKey)
	if !ok || raw == "" {
		return nil
	}

	var sessions []Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		log.Warn("Sessions: discarding corrupt payload", "err", err)
		return nil
	}
	return sessions
}

// Save persists the sessions after enforcing capacity limits: each
// session keeps its most recent MaxMessagesPerSession messages, and only
// the MaxSessions sessions with the greatest LastActivity survive.
func (st *Store) Save(sessions []Session) error {
	trimmed := applyLimits(sessions)

	data, err := json.Marshal(trimmed)
	if err != nil {
		return err
	}
	if err := st.kv.Set(storageKey, string(data)); err != nil {
		return err
	}

	log.Debug("Sessions: saved", "count", len(trimmed))
	return nil
}

// applyLimits trims message logs and evicts surplus sessions. Sessions are
// ranked by LastActivity descending with ties broken by original order.
func applyLimits(sessions []Session) []Session {
	out := make([]Session, len(sessions))
	copy(out, sessions)

	for i := range out {
		if len(out[i].Messages) > MaxMessagesPerSession {
			kept := make([]Message, MaxMessagesPerSession)
			copy(kept, out[i].Messages[:MaxMessagesPerSession])
			out[i].Messages = kept
			log.Debug("Sessions: trimmed messages", "session", out[i].ID, "kept", MaxMessagesPerSession)
		}
	}

	if len(out) > MaxSessions {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LastActivity.After(out[j].LastActivity)
		})
		evicted := len(out) - MaxSessions
		out = out[:MaxSessions]
		log.Debug("Sessions: evicted stale sessions", "evicted", evicted)
	}

	return out
}
