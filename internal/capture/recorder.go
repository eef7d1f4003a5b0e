package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/harklabs/hark/internal/store"
)

// Recorder controls voice capture on the host.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (Recording, error)
	Cancel(ctx context.Context) error
}

// NativeRecorder drives the host microphone over the native bridge.
type NativeRecorder struct {
	inv store.Invoker

	mu     sync.Mutex
	active bool
}

// NewNativeRecorder wraps a native invoker as a Recorder.
func NewNativeRecorder(inv store.Invoker) *NativeRecorder {
	return &NativeRecorder{inv: inv}
}

// Start begins a capture. Only one may be in flight.
func (r *NativeRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrAlreadyActive
	}
	r.active = true
	r.mu.Unlock()

	if _, err := r.inv.Invoke(ctx, "start_recording", nil); err != nil {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
		return fmt.Errorf("start_recording: %w", err)
	}
	return nil
}

// Stop ends the capture and returns the validated recording.
func (r *NativeRecorder) Stop(ctx context.Context) (Recording, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return Recording{}, ErrNotRecording
	}
	r.active = false
	r.mu.Unlock()

	raw, err := r.inv.Invoke(ctx, "stop_recording", nil)
	if err != nil {
		return Recording{}, fmt.Errorf("stop_recording: %w", err)
	}

	var w wireRecording
	if err := json.Unmarshal(raw, &w); err != nil {
		return Recording{}, fmt.Errorf("stop_recording: bad payload: %w", err)
	}
	return w.decode()
}

// Cancel discards an in-flight capture. Canceling when idle is a no-op.
func (r *NativeRecorder) Cancel(ctx context.Context) error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil
	}
	r.active = false
	r.mu.Unlock()

	if _, err := r.inv.Invoke(ctx, "cancel_recording", nil); err != nil {
		return fmt.Errorf("cancel_recording: %w", err)
	}
	return nil
}

// LevelFeed fans the live input level out to subscribers while a capture
// runs, for level meters in the UI.
type LevelFeed struct {
	mu   sync.Mutex
	next int
	subs map[int]func(level float64)
}

// NewLevelFeed returns an empty feed.
func NewLevelFeed() *LevelFeed {
	return &LevelFeed{subs: make(map[int]func(float64))}
}

// Subscribe registers a level callback and returns an idempotent
// unsubscribe. A liveness flag drops deliveries that race teardown.
func (f *LevelFeed) Subscribe(fn func(level float64)) (unsubscribe func()) {
	var alive atomic.Bool
	alive.Store(true)

	guarded := func(level float64) {
		if !alive.Load() {
			return
		}
		fn(level)
	}

	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = guarded
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			alive.Store(false)
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Publish delivers a level sample to every live subscriber. Levels are
// clamped to [0, 1] before delivery.
func (f *LevelFeed) Publish(level float64) {
	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}

	f.mu.Lock()
	fns := make([]func(float64), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(level)
	}
}

// HandleLevelEvent decodes an audio_level event off the bridge and
// publishes it. Malformed events are logged and dropped.
func (f *LevelFeed) HandleLevelEvent(raw []byte) {
	var payload struct {
		Level float64 `json:"level"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Warn("Capture: bad audio_level event", "err", err)
		return
	}
	f.Publish(payload.Level)
}
