package queue

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harklabs/hark/internal/playback"
	"github.com/harklabs/hark/internal/player"
	"github.com/harklabs/hark/internal/session"
	"github.com/harklabs/hark/internal/store"
)

// Speaker is the slice of the player the controller drives.
type Speaker interface {
	Play(ctx context.Context, req player.Request) error
	Stop()
	Pause()
	Resume()
	SetVolume(v float64)
	SetRate(r float64)
	IsAudible() bool
	OnEnded(fn func())
	OnError(fn func(message string))
}

// Controller sequences queued utterances through the speaker and keeps
// playback state, queue storage, and the session log in step.
type Controller struct {
	mu sync.Mutex

	queue    store.Queue
	sessions *session.Store
	state    *playback.State
	speaker  Speaker
	cues     Cuer

	voiceID       string
	startedAt     time.Time
	lastCompleted *playback.Item
	onPlayError   func(message string)
}

// NewController wires the controller into the speaker's completion and
// error hooks. A nil cues silences feedback tones.
func NewController(q store.Queue, sessions *session.Store, state *playback.State, speaker Speaker, cues Cuer) *Controller {
	if cues == nil {
		cues = noCues{}
	}
	c := &Controller{
		queue:    q,
		sessions: sessions,
		state:    state,
		speaker:  speaker,
		cues:     cues,
	}
	speaker.OnEnded(c.handleEnded)
	speaker.OnError(c.handleError)
	return c
}

// OnPlaybackError registers a hook for playback failures, after the
// failed item has been recorded.
func (c *Controller) OnPlaybackError(fn func(message string)) {
	c.mu.Lock()
	c.onPlayError = fn
	c.mu.Unlock()
}

// SetVoice selects the voice used for subsequent utterances.
func (c *Controller) SetVoice(voiceID string) {
	c.mu.Lock()
	c.voiceID = voiceID
	c.mu.Unlock()
}

// Enqueue stores a new utterance for the given session, creating the
// session on first contact, and starts playback if nothing is speaking.
// The utterance lands in the session transcript and bumps LastActivity;
// it is not a liveness signal, so LastHeartbeat stays untouched.
func (c *Controller) Enqueue(ctx context.Context, text, sessionID string) (playback.Item, error) {
	now := time.Now()
	list := c.sessions.Load()
	sess, created := session.GetOrCreate(list, sessionID, session.DefaultLabel, now)
	if created {
		list = append(list, sess)
	}
	list = session.AddMessage(list, sess.ID, session.NewMessage(text, now))
	if err := c.sessions.Save(list); err != nil {
		log.Warn("Queue: session save failed", "err", err)
	}

	item, err := c.queue.AddItem(ctx, text, sess.ID)
	if err != nil {
		return playback.Item{}, err
	}

	c.refreshQueue(ctx)
	c.maybeAdvance(ctx)
	return item, nil
}

// Heartbeat records a liveness signal, creating the session if the
// signal arrives before any spoken content.
func (c *Controller) Heartbeat(sessionID string, ts time.Time) error {
	list := c.sessions.Load()
	known := false
	for _, s := range list {
		if s.ID == sessionID {
			known = true
			break
		}
	}
	if known {
		list = session.UpdateHeartbeat(list, sessionID, ts)
	} else {
		list = append(list, session.CreateFromHeartbeat(list, sessionID, session.DefaultLabel, ts))
	}
	return c.sessions.Save(list)
}

// TogglePlayPause pauses a speaking queue, resumes a paused one, and
// kicks a stopped queue back into motion.
func (c *Controller) TogglePlayPause(ctx context.Context) {
	if c.state.Current() == nil {
		c.maybeAdvance(ctx)
		return
	}
	if c.state.IsPaused() {
		c.speaker.Resume()
		c.state.SetPlaying(true)
	} else {
		c.speaker.Pause()
		c.state.SetPaused(true)
	}
}

// Skip finishes the current utterance early and moves on.
func (c *Controller) Skip(ctx context.Context) {
	cur := c.state.Current()
	if cur == nil {
		return
	}
	c.cues.Play(CueSkip)
	c.speaker.Stop()
	c.completeCurrent(ctx, cur)
	c.advance(ctx)
}

// Replay restarts the current utterance from the beginning. Silence is
// left alone: when nothing is audible there is nothing to replay.
func (c *Controller) Replay(ctx context.Context) {
	cur := c.state.Current()
	if cur == nil || !c.speaker.IsAudible() {
		return
	}
	c.cues.Play(CueReplay)
	c.speak(ctx, cur)
}

// ReplayLast speaks the most recently finished utterance again, picking
// it back up even after the queue has moved on. Anything currently
// speaking is finished first.
func (c *Controller) ReplayLast(ctx context.Context) {
	c.mu.Lock()
	last := c.lastCompleted
	c.mu.Unlock()
	if last == nil {
		return
	}

	if cur := c.state.Current(); cur != nil {
		c.speaker.Stop()
		c.completeCurrent(ctx, cur)
	}

	c.cues.Play(CueReplay)
	c.state.SetCurrent(last)
	c.state.SetPlaying(true)
	c.speak(ctx, last)
}

// AdjustSpeed nudges the playback rate, clamps it, applies it live, and
// always sounds a cue so a pinned bound is still audible feedback.
func (c *Controller) AdjustSpeed(delta float64) float64 {
	v := c.state.SetSpeed(c.state.Speed() + delta)
	c.speaker.SetRate(v)
	if delta >= 0 {
		c.cues.Play(CueSpeedUp)
	} else {
		c.cues.Play(CueSpeedDown)
	}
	return v
}

// AdjustVolume nudges the volume, clamps it, applies it live, and plays
// a cue at the new level.
func (c *Controller) AdjustVolume(delta float64) float64 {
	v := c.state.SetVolume(c.state.Volume() + delta)
	c.speaker.SetVolume(v)
	kind := CueVolumeUp
	if delta < 0 {
		kind = CueVolumeDown
	}
	c.cues.PlayVolume(kind, v)
	return v
}

// SpeakStatus queues a spoken summary of the current state. Failures are
// logged and swallowed; a status announcement is never worth an error.
func (c *Controller) SpeakStatus(ctx context.Context) {
	text := c.statusText(ctx)
	if _, err := c.Enqueue(ctx, text, statusSessionID); err != nil {
		log.Warn("Queue: status announcement failed", "err", err)
	}
}

// StopAndClear silences the speaker and evicts everything still waiting.
// Completed history is kept.
func (c *Controller) StopAndClear(ctx context.Context) {
	c.cues.Play(CueStop)
	c.speaker.Stop()

	if cur := c.state.Current(); cur != nil {
		c.completeCurrent(ctx, cur)
	}

	pending, err := c.queue.Items(ctx, store.ItemFilter{Status: playback.StatusPending})
	if err != nil {
		log.Warn("Queue: listing pending items failed", "err", err)
	}
	for _, it := range pending {
		if err := c.queue.Remove(ctx, it.UUID); err != nil {
			log.Warn("Queue: removing pending item failed", "uuid", it.UUID, "err", err)
		}
	}

	c.state.SetInterrupted(true)
	c.state.SetPlaying(false)
	c.refreshQueue(ctx)
}

// ClearCompleted prunes completed history older than the given number of
// days (0 = all of it).
func (c *Controller) ClearCompleted(ctx context.Context, olderThanDays int) (int, error) {
	n, err := c.queue.ClearCompleted(ctx, olderThanDays)
	if err != nil {
		return 0, err
	}
	c.refreshQueue(ctx)
	return n, nil
}

// maybeAdvance starts the queue only when nothing is loaded.
func (c *Controller) maybeAdvance(ctx context.Context) {
	if c.state.Current() != nil {
		return
	}
	c.advance(ctx)
}

// advance pulls the next pending item and speaks it. A drained queue
// settles back to stopped.
func (c *Controller) advance(ctx context.Context) {
	next, err := c.queue.NextPending(ctx)
	if err != nil {
		log.Error("Queue: fetching next item failed", "err", err)
		return
	}
	if next == nil {
		c.state.SetCurrent(nil)
		c.state.SetPlaying(false)
		return
	}

	if err := c.queue.UpdateStatus(ctx, next.UUID, playback.StatusPlaying, store.StatusUpdate{}); err != nil {
		log.Warn("Queue: marking item playing failed", "uuid", next.UUID, "err", err)
	}
	next.Status = playback.StatusPlaying

	c.state.SetCurrent(next)
	c.state.SetPlaying(true)
	c.state.SetInterrupted(false)
	c.speak(ctx, next)
	c.refreshQueue(ctx)
}

func (c *Controller) speak(ctx context.Context, item *playback.Item) {
	c.mu.Lock()
	c.startedAt = time.Now()
	voice := c.voiceID
	c.mu.Unlock()

	c.speaker.SetVolume(c.state.Volume())
	c.speaker.SetRate(c.state.Speed())

	err := c.speaker.Play(ctx, player.Request{
		Text:      item.Text,
		SessionID: item.SessionID,
		VoiceID:   voice,
	})
	if err != nil {
		c.handleError(err.Error())
	}
}

// handleEnded runs when an utterance finishes naturally: record it as
// completed and move on. The transcript entry was written at enqueue.
func (c *Controller) handleEnded() {
	ctx := context.Background()
	cur := c.state.Current()
	if cur == nil {
		return
	}

	c.completeCurrent(ctx, cur)
	c.advance(ctx)
}

func (c *Controller) handleError(message string) {
	ctx := context.Background()
	cur := c.state.Current()
	if cur == nil {
		return
	}

	log.Error("Queue: utterance failed", "uuid", cur.UUID, "err", message)
	err := c.queue.UpdateStatus(ctx, cur.UUID, playback.StatusFailed, store.StatusUpdate{
		ErrorMessage: message,
	})
	if err != nil {
		log.Warn("Queue: marking item failed failed", "uuid", cur.UUID, "err", err)
	}

	c.state.SetCurrent(nil)
	c.refreshQueue(ctx)

	c.mu.Lock()
	hook := c.onPlayError
	c.mu.Unlock()
	if hook != nil {
		hook(message)
	}

	c.advance(ctx)
}

// completeCurrent records the current item as done with its elapsed
// duration and remembers it for ReplayLast.
func (c *Controller) completeCurrent(ctx context.Context, cur *playback.Item) {
	c.mu.Lock()
	elapsed := time.Since(c.startedAt).Milliseconds()
	c.lastCompleted = cur
	c.mu.Unlock()

	err := c.queue.UpdateStatus(ctx, cur.UUID, playback.StatusCompleted, store.StatusUpdate{
		DurationMs: elapsed,
	})
	if err != nil {
		log.Warn("Queue: marking item completed failed", "uuid", cur.UUID, "err", err)
	}
	c.state.SetCurrent(nil)
	c.refreshQueue(ctx)
}

func (c *Controller) refreshQueue(ctx context.Context) {
	items, err := c.queue.Items(ctx, store.ItemFilter{})
	if err != nil {
		log.Warn("Queue: listing items failed", "err", err)
		return
	}
	c.state.SetQueue(items)
}
