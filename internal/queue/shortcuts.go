package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/harklabs/hark/internal/playback"
)

// Key codes as they arrive from the shortcut source.
const (
	KeySpace      = "Space"
	KeyArrowUp    = "ArrowUp"
	KeyArrowDown  = "ArrowDown"
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
	KeyF4         = "F4"
	KeyR          = "KeyR"
	KeyS          = "KeyS"
	KeyEscape     = "Escape"
)

// KeyEvent is one key press as seen by the global shortcut layer.
// TextInputFocused is true while the user is typing into a text field,
// which claims plain Space for itself.
type KeyEvent struct {
	Code             string
	Ctrl             bool
	Meta             bool
	Shift            bool
	Alt              bool
	TextInputFocused bool
}

// modifier reports the platform chord key, Ctrl or Cmd.
func (e KeyEvent) modifier() bool {
	return e.Ctrl || e.Meta
}

func (e KeyEvent) plain() bool {
	return !e.Ctrl && !e.Meta && !e.Shift && !e.Alt
}

// HandleShortcut maps a key event onto a queue operation. It reports
// whether the event was consumed; unconsumed events propagate to
// whatever else wants them.
func (c *Controller) HandleShortcut(ctx context.Context, ev KeyEvent) bool {
	switch {
	case ev.Code == KeySpace && ev.plain():
		if ev.TextInputFocused {
			return false
		}
		c.TogglePlayPause(ctx)

	case (ev.Code == KeyArrowRight && ev.modifier()) || ev.Code == KeyF4:
		c.Skip(ctx)

	case ev.Code == KeyArrowLeft && ev.modifier():
		c.Replay(ctx)

	case ev.Code == KeyArrowUp && ev.modifier() && ev.Shift:
		c.AdjustVolume(playback.VolumeStep)

	case ev.Code == KeyArrowDown && ev.modifier() && ev.Shift:
		c.AdjustVolume(-playback.VolumeStep)

	case ev.Code == KeyArrowUp && ev.modifier():
		c.AdjustSpeed(playback.SpeedStep)

	case ev.Code == KeyArrowDown && ev.modifier():
		c.AdjustSpeed(-playback.SpeedStep)

	case ev.Code == KeyR && ev.modifier():
		c.ReplayLast(ctx)

	case ev.Code == KeyS && ev.modifier():
		c.SpeakStatus(ctx)

	case ev.Code == KeyEscape:
		c.StopAndClear(ctx)

	default:
		return false
	}
	return true
}

// KeySource delivers key events from the platform. Subscribe returns an
// unregister function.
type KeySource interface {
	Subscribe(fn func(KeyEvent)) (unsubscribe func())
}

// InitShortcutHandler attaches the controller to a key source and
// returns a cleanup function. Cleanup is idempotent, and events that
// race with it are dropped by a liveness check rather than dispatched
// into a torn-down controller.
func (c *Controller) InitShortcutHandler(ctx context.Context, src KeySource) (cleanup func()) {
	var alive atomic.Bool
	alive.Store(true)

	unsubscribe := src.Subscribe(func(ev KeyEvent) {
		if !alive.Load() {
			return
		}
		c.HandleShortcut(ctx, ev)
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			alive.Store(false)
			unsubscribe()
		})
	}
}
