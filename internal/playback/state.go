// Package playback holds the shared playback state consumed by the queue
// controller and the streaming player. All mutation goes through named
// setters so call sites stay auditable.
package playback

import (
	"sync"
	"time"
)

// Playback parameter bounds. Speed and volume adjustments are clamped to
// these ranges no matter how they arrive.
const (
	MinSpeed      = 0.5
	MaxSpeed      = 3.0
	SpeedStep     = 0.25
	MinVolume     = 0.0
	MaxVolume     = 1.0
	VolumeStep    = 0.1
	DefaultSpeed  = 1.0
	DefaultVolume = 1.0
)

// Status is the lifecycle status of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPlaying   Status = "playing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Item is one utterance in the playback queue. Position is the sole
// ordering signal; array placement in any snapshot carries no meaning.
type Item struct {
	ID           int64
	UUID         string
	SessionID    string
	Text         string
	Status       Status
	Position     int
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	DurationMs   int64
	ErrorMessage string
}

// Snapshot is a point-in-time copy of the playback state.
type Snapshot struct {
	Queue       []Item
	Current     *Item
	IsPlaying   bool
	IsPaused    bool
	AutoPlay    bool
	Volume      float64
	Speed       float64
	Position    float64 // seconds into the current utterance
	Interrupted bool
}

// State is the single live instance of playback state shared across
// components. Invariant: IsPlaying and IsPaused are never both true.
type State struct {
	mu          sync.RWMutex
	queue       []Item
	current     *Item
	playing     bool
	paused      bool
	autoPlay    bool
	volume      float64
	speed       float64
	position    float64
	interrupted bool
}

// NewState creates a playback state with default volume and speed.
func NewState() *State {
	return &State{
		autoPlay: true,
		volume:   DefaultVolume,
		speed:    DefaultSpeed,
	}
}

// ClampSpeed clamps a speed value to [MinSpeed, MaxSpeed].
func ClampSpeed(v float64) float64 {
	if v < MinSpeed {
		return MinSpeed
	}
	if v > MaxSpeed {
		return MaxSpeed
	}
	return v
}

// ClampVolume clamps a volume value to [MinVolume, MaxVolume].
func ClampVolume(v float64) float64 {
	if v < MinVolume {
		return MinVolume
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}

// Snapshot returns a copy of the current state. The queue slice and
// current item are copied so callers can't mutate shared state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		IsPlaying:   s.playing,
		IsPaused:    s.paused,
		AutoPlay:    s.autoPlay,
		Volume:      s.volume,
		Speed:       s.speed,
		Position:    s.position,
		Interrupted: s.interrupted,
	}
	if len(s.queue) > 0 {
		snap.Queue = make([]Item, len(s.queue))
		copy(snap.Queue, s.queue)
	}
	if s.current != nil {
		cur := *s.current
		snap.Current = &cur
	}
	return snap
}

// SetQueue replaces the queue snapshot.
func (s *State) SetQueue(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = items
}

// SetCurrent sets the active item, or clears it when nil.
func (s *State) SetCurrent(item *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item == nil {
		s.current = nil
		s.position = 0
		return
	}
	cur := *item
	s.current = &cur
}

// Current returns the active item, or nil.
func (s *State) Current() *Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cur := *s.current
	return &cur
}

// SetPlaying marks playback active. Setting it true clears the paused
// flag to preserve the exclusivity invariant.
func (s *State) SetPlaying(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = playing
	if playing {
		s.paused = false
	}
}

// SetPaused marks playback paused. Setting it true clears the playing flag.
func (s *State) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
	if paused {
		s.playing = false
	}
}

// SetAutoPlay toggles automatic queue advancement.
func (s *State) SetAutoPlay(auto bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoPlay = auto
}

// SetVolume sets the playback volume, clamped to [0, 1], and returns the
// value actually stored.
func (s *State) SetVolume(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = ClampVolume(v)
	return s.volume
}

// Volume returns the current volume.
func (s *State) Volume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume
}

// SetSpeed sets the playback speed, clamped to [0.5, 3.0], and returns
// the value actually stored.
func (s *State) SetSpeed(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = ClampSpeed(v)
	return s.speed
}

// Speed returns the current playback speed.
func (s *State) Speed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speed
}

// SetPosition records the playback position of the current utterance.
func (s *State) SetPosition(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = seconds
}

// SetInterrupted flags that playback stopped mid-utterance due to a
// competing command.
func (s *State) SetInterrupted(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupted = v
}

// IsPlaying reports whether playback is active.
func (s *State) IsPlaying() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playing
}

// IsPaused reports whether playback is paused.
func (s *State) IsPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// AutoPlay reports whether the queue should advance on its own.
func (s *State) AutoPlay() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoPlay
}
