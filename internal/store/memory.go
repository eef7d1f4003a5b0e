package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harklabs/hark/internal/playback"
)

// MemoryQueue is an in-process Queue used when no native store is
// attached, and by tests. Ordering is carried entirely by the position
// field; the internal slice order is deliberately not trusted.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []playback.Item
	nextID int64
}

// NewMemoryQueue creates an empty in-memory queue store.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (m *MemoryQueue) AddItem(_ context.Context, text, sessionID string) (playback.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	item := playback.Item{
		ID:        m.nextID,
		UUID:      uuid.NewString(),
		SessionID: sessionID,
		Text:      text,
		Status:    playback.StatusPending,
		Position:  m.maxPositionLocked() + 1,
		CreatedAt: time.Now().UTC(),
	}
	m.items = append(m.items, item)
	return item, nil
}

func (m *MemoryQueue) Items(_ context.Context, filter ItemFilter) ([]playback.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []playback.Item
	for _, item := range m.items {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.SessionID != "" && item.SessionID != filter.SessionID {
			continue
		}
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryQueue) UpdateStatus(_ context.Context, id string, status playback.Status, upd StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.items {
		if m.items[i].UUID != id {
			continue
		}
		now := time.Now().UTC()
		m.items[i].Status = status
		switch status {
		case playback.StatusPlaying:
			m.items[i].StartedAt = &now
		case playback.StatusCompleted, playback.StatusFailed:
			m.items[i].CompletedAt = &now
		}
		if upd.DurationMs > 0 {
			m.items[i].DurationMs = upd.DurationMs
		}
		if upd.ErrorMessage != "" {
			m.items[i].ErrorMessage = upd.ErrorMessage
		}
		return nil
	}
	return ErrItemNotFound
}

func (m *MemoryQueue) Reorder(_ context.Context, id string, newPosition int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.items {
		if m.items[i].UUID == id {
			// Position is the only thing that moves; the slice stays put.
			m.items[i].Position = newPosition
			return nil
		}
	}
	return ErrItemNotFound
}

func (m *MemoryQueue) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.items {
		if m.items[i].UUID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

func (m *MemoryQueue) ClearCompleted(_ context.Context, olderThanDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Time{}
	if olderThanDays > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -olderThanDays)
	}

	kept := m.items[:0]
	removed := 0
	for _, item := range m.items {
		evict := item.Status == playback.StatusCompleted &&
			(cutoff.IsZero() || (item.CompletedAt != nil && item.CompletedAt.Before(cutoff)))
		if evict {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	m.items = kept
	return removed, nil
}

func (m *MemoryQueue) PendingCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, item := range m.items {
		if item.Status == playback.StatusPending {
			count++
		}
	}
	return count, nil
}

func (m *MemoryQueue) NextPending(_ context.Context) (*playback.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next *playback.Item
	for i := range m.items {
		if m.items[i].Status != playback.StatusPending {
			continue
		}
		if next == nil || m.items[i].Position < next.Position {
			next = &m.items[i]
		}
	}
	if next == nil {
		return nil, nil
	}
	item := *next
	return &item, nil
}

// maxPositionLocked returns the largest position in use, 0 when empty.
func (m *MemoryQueue) maxPositionLocked() int {
	max := 0
	for _, item := range m.items {
		if item.Position > max {
			max = item.Position
		}
	}
	return max
}
