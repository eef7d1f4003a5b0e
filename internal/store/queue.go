package store

import (
	"context"
	"errors"
	"time"

	"github.com/harklabs/hark/internal/playback"
)

// ErrItemNotFound is returned when a queue item uuid is unknown.
var ErrItemNotFound = errors.New("queue item not found")

// ItemFilter narrows Items queries. Zero values mean "no filter".
type ItemFilter struct {
	Status    playback.Status
	SessionID string
	Limit     int
}

// StatusUpdate carries the optional completion fields of a status change.
type StatusUpdate struct {
	DurationMs   int64
	ErrorMessage string
}

// Queue is the narrow CRUD interface over the persistent queue store. The
// store owns item identity and the authoritative position ordering; this
// core only consumes and produces items through it.
type Queue interface {
	// AddItem appends a new pending utterance and returns the stored item.
	AddItem(ctx context.Context, text, sessionID string) (playback.Item, error)

	// Items returns items matching the filter, ordered by position.
	Items(ctx context.Context, filter ItemFilter) ([]playback.Item, error)

	// UpdateStatus transitions an item's status, recording duration or an
	// error message where the new status calls for it.
	UpdateStatus(ctx context.Context, uuid string, status playback.Status, upd StatusUpdate) error

	// Reorder moves an item to a new position. Only the position field
	// changes; storage order is irrelevant.
	Reorder(ctx context.Context, uuid string, newPosition int) error

	// Remove deletes an item.
	Remove(ctx context.Context, uuid string) error

	// ClearCompleted deletes completed items older than the given number
	// of days (0 = all completed) and returns how many were removed.
	ClearCompleted(ctx context.Context, olderThanDays int) (int, error)

	// PendingCount returns the number of pending items.
	PendingCount(ctx context.Context) (int, error)

	// NextPending returns the pending item with the smallest position, or
	// nil when the queue is drained.
	NextPending(ctx context.Context) (*playback.Item, error)
}

// wireItem is a queue item as it crosses the native boundary. Every field
// travels in the store's snake_case convention and is converted one-for-one
// on every read.
type wireItem struct {
	ID           int64   `json:"id"`
	UUID         string  `json:"uuid"`
	SessionID    string  `json:"session_id"`
	Text         string  `json:"text"`
	Status       string  `json:"status"`
	Position     int     `json:"position"`
	CreatedAt    string  `json:"created_at"`
	StartedAt    *string `json:"started_at,omitempty"`
	CompletedAt  *string `json:"completed_at,omitempty"`
	DurationMs   *int64  `json:"duration_ms,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// toItem converts a wire item into the application's representation.
// Unparseable timestamps come through as zero times rather than failing
// the whole read.
func (w wireItem) toItem() playback.Item {
	item := playback.Item{
		ID:        w.ID,
		UUID:      w.UUID,
		SessionID: w.SessionID,
		Text:      w.Text,
		Status:    playback.Status(w.Status),
		Position:  w.Position,
		CreatedAt: parseWireTime(w.CreatedAt),
	}
	if w.StartedAt != nil {
		t := parseWireTime(*w.StartedAt)
		item.StartedAt = &t
	}
	if w.CompletedAt != nil {
		t := parseWireTime(*w.CompletedAt)
		item.CompletedAt = &t
	}
	if w.DurationMs != nil {
		item.DurationMs = *w.DurationMs
	}
	if w.ErrorMessage != nil {
		item.ErrorMessage = *w.ErrorMessage
	}
	return item
}

// fromItem converts an application item to its wire form.
func fromItem(item playback.Item) wireItem {
	w := wireItem{
		ID:        item.ID,
		UUID:      item.UUID,
		SessionID: item.SessionID,
		Text:      item.Text,
		Status:    string(item.Status),
		Position:  item.Position,
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if item.StartedAt != nil {
		s := item.StartedAt.UTC().Format(time.RFC3339Nano)
		w.StartedAt = &s
	}
	if item.CompletedAt != nil {
		s := item.CompletedAt.UTC().Format(time.RFC3339Nano)
		w.CompletedAt = &s
	}
	if item.DurationMs != 0 {
		d := item.DurationMs
		w.DurationMs = &d
	}
	if item.ErrorMessage != "" {
		e := item.ErrorMessage
		w.ErrorMessage = &e
	}
	return w
}

func parseWireTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
