package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/harklabs/hark/internal/playback"
)

// Invoker calls a named operation on the native host process and returns
// its raw JSON result. Both the queue store and the capture backend hang
// off this bridge. The host process supplies the implementation when it
// embeds this module; nothing in here constructs one.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) ([]byte, error)
}

// NativeQueue implements Queue over the native persistent queue store.
// All payloads cross the boundary in the store's snake_case convention and
// are converted to the application's types on every read.
type NativeQueue struct {
	inv Invoker
}

// NewNativeQueue wraps a native invoker as a Queue.
func NewNativeQueue(inv Invoker) *NativeQueue {
	return &NativeQueue{inv: inv}
}

func (q *NativeQueue) AddItem(ctx context.Context, text, sessionID string) (playback.Item, error) {
	raw, err := q.inv.Invoke(ctx, "add_queue_item", map[string]any{
		"text":       text,
		"session_id": sessionID,
	})
	if err != nil {
		return playback.Item{}, fmt.Errorf("add_queue_item: %w", err)
	}

	var w wireItem
	if err := json.Unmarshal(raw, &w); err != nil {
		return playback.Item{}, fmt.Errorf("add_queue_item: malformed response: %w", err)
	}
	return w.toItem(), nil
}

func (q *NativeQueue) Items(ctx context.Context, filter ItemFilter) ([]playback.Item, error) {
	args := map[string]any{}
	if filter.Status != "" {
		args["status"] = string(filter.Status)
	}
	if filter.SessionID != "" {
		args["session_id"] = filter.SessionID
	}
	if filter.Limit > 0 {
		args["limit"] = filter.Limit
	}

	raw, err := q.inv.Invoke(ctx, "get_queue_items", args)
	if err != nil {
		return nil, fmt.Errorf("get_queue_items: %w", err)
	}

	var wire []wireItem
	if err := json.Unmarshal(raw, &wire); err != nil {
		// Malformed payloads read as empty; the queue recovers on the
		// next poll.
		log.Warn("Queue store: malformed item list", "err", err)
		return nil, nil
	}

	items := make([]playback.Item, 0, len(wire))
	for _, w := range wire {
		items = append(items, w.toItem())
	}
	return items, nil
}

func (q *NativeQueue) UpdateStatus(ctx context.Context, uuid string, status playback.Status, upd StatusUpdate) error {
	args := map[string]any{
		"uuid":   uuid,
		"status": string(status),
	}
	if upd.DurationMs > 0 {
		args["duration_ms"] = upd.DurationMs
	}
	if upd.ErrorMessage != "" {
		args["error_message"] = upd.ErrorMessage
	}

	if _, err := q.inv.Invoke(ctx, "update_queue_item_status", args); err != nil {
		return fmt.Errorf("update_queue_item_status: %w", err)
	}
	return nil
}

func (q *NativeQueue) Reorder(ctx context.Context, uuid string, newPosition int) error {
	if _, err := q.inv.Invoke(ctx, "reorder_queue_item", map[string]any{
		"uuid":         uuid,
		"new_position": newPosition,
	}); err != nil {
		return fmt.Errorf("reorder_queue_item: %w", err)
	}
	return nil
}

func (q *NativeQueue) Remove(ctx context.Context, uuid string) error {
	if _, err := q.inv.Invoke(ctx, "remove_queue_item", map[string]any{"uuid": uuid}); err != nil {
		return fmt.Errorf("remove_queue_item: %w", err)
	}
	return nil
}

func (q *NativeQueue) ClearCompleted(ctx context.Context, olderThanDays int) (int, error) {
	args := map[string]any{}
	if olderThanDays > 0 {
		args["older_than_days"] = olderThanDays
	}

	raw, err := q.inv.Invoke(ctx, "clear_completed_items", args)
	if err != nil {
		return 0, fmt.Errorf("clear_completed_items: %w", err)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("clear_completed_items: malformed response: %w", err)
	}
	return resp.Count, nil
}

func (q *NativeQueue) PendingCount(ctx context.Context) (int, error) {
	raw, err := q.inv.Invoke(ctx, "get_pending_count", nil)
	if err != nil {
		return 0, fmt.Errorf("get_pending_count: %w", err)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("get_pending_count: malformed response: %w", err)
	}
	return resp.Count, nil
}

func (q *NativeQueue) NextPending(ctx context.Context) (*playback.Item, error) {
	raw, err := q.inv.Invoke(ctx, "get_next_pending_item", nil)
	if err != nil {
		return nil, fmt.Errorf("get_next_pending_item: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var w wireItem
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("get_next_pending_item: malformed response: %w", err)
	}
	item := w.toItem()
	return &item, nil
}
