// Package queue is the control surface over playback: it orders queued
// utterances, drives the player from one to the next, and maps global
// shortcuts onto queue operations with short audio cues as feedback.
package queue

import (
	"bytes"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/harklabs/hark/internal/audio"
)

// CueKind identifies one of the short feedback tones.
type CueKind int

const (
	CueSpeedUp CueKind = iota
	CueSpeedDown
	CueVolumeUp
	CueVolumeDown
	CueReplay
	CueSkip
	CueStop
)

func (k CueKind) String() string {
	switch k {
	case CueSpeedUp:
		return "speed-up"
	case CueSpeedDown:
		return "speed-down"
	case CueVolumeUp:
		return "volume-up"
	case CueVolumeDown:
		return "volume-down"
	case CueReplay:
		return "replay"
	case CueSkip:
		return "skip"
	case CueStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Cuer plays feedback tones. Implementations must be safe to call from
// shortcut handlers at key-repeat speed.
type Cuer interface {
	Play(kind CueKind)
	// PlayVolume plays a tone whose loudness tracks the new volume so
	// the user hears the level they just set.
	PlayVolume(kind CueKind, volume float64)
}

// cueShape is the frequency and length of one tone.
type cueShape struct {
	freq float64
	dur  time.Duration
}

var cueShapes = map[CueKind]cueShape{
	CueSpeedUp:    {880, 60 * time.Millisecond},
	CueSpeedDown:  {587, 60 * time.Millisecond},
	CueVolumeUp:   {740, 70 * time.Millisecond},
	CueVolumeDown: {554, 70 * time.Millisecond},
	CueReplay:     {523, 90 * time.Millisecond},
	CueSkip:       {659, 50 * time.Millisecond},
	CueStop:       {330, 120 * time.Millisecond},
}

// CuePlayer renders tones through the shared audio device. Rapid key
// repeats are rate limited so held keys do not pile up a wall of beeps.
type CuePlayer struct {
	limiter *rate.Limiter
}

// NewCuePlayer returns a rate-limited cue player.
func NewCuePlayer() *CuePlayer {
	return &CuePlayer{
		limiter: rate.NewLimiter(rate.Every(120*time.Millisecond), 1),
	}
}

func (c *CuePlayer) Play(kind CueKind) {
	c.play(kind, 0.3)
}

func (c *CuePlayer) PlayVolume(kind CueKind, volume float64) {
	c.play(kind, 0.08+0.5*volume)
}

func (c *CuePlayer) play(kind CueKind, amplitude float64) {
	if !c.limiter.Allow() {
		return
	}
	shape, ok := cueShapes[kind]
	if !ok {
		return
	}
	ctx, err := audio.GetContext()
	if err != nil {
		log.Debug("CuePlayer: no audio device", "err", err)
		return
	}

	pcm := audio.Tone(shape.freq, shape.dur, amplitude)
	p, err := ctx.NewPlayer(bytes.NewReader(pcm))
	if err != nil {
		log.Debug("CuePlayer: device player unavailable", "err", err)
		return
	}
	p.Play()
	go func() {
		// Tones are tens of milliseconds; poll briefly then release
		// the device player.
		for i := 0; i < 40 && p.IsPlaying(); i++ {
			time.Sleep(10 * time.Millisecond)
		}
		_ = p.Close()
	}()
}

// noCues discards every cue. Used where no audio device is wanted.
type noCues struct{}

func (noCues) Play(CueKind)                {}
func (noCues) PlayVolume(CueKind, float64) {}
