package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/harklabs/hark/internal/playback"
	"github.com/harklabs/hark/internal/player"
	"github.com/harklabs/hark/internal/session"
	"github.com/harklabs/hark/internal/store"
)

type fakeSpeaker struct {
	mu       sync.Mutex
	requests []player.Request
	stops    int
	pauses   int
	resumes  int
	volume   float64
	rate     float64
	audible  bool
	playErr  error
	failText string
	onEnded  func()
	onError  func(string)
}

func (s *fakeSpeaker) Play(ctx context.Context, req player.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return s.playErr
	}
	if s.failText != "" && req.Text == s.failText {
		return errors.New("TTS API failed (500)")
	}
	s.requests = append(s.requests, req)
	s.audible = true
	return nil
}

func (s *fakeSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.audible = false
}

func (s *fakeSpeaker) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	s.audible = false
}

func (s *fakeSpeaker) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumes++
	s.audible = true
}

func (s *fakeSpeaker) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

func (s *fakeSpeaker) SetRate(r float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = r
}

func (s *fakeSpeaker) IsAudible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audible
}

func (s *fakeSpeaker) OnEnded(fn func())       { s.onEnded = fn }
func (s *fakeSpeaker) OnError(fn func(string)) { s.onError = fn }

func (s *fakeSpeaker) finish() {
	s.mu.Lock()
	s.audible = false
	s.mu.Unlock()
	s.onEnded()
}

func (s *fakeSpeaker) playedTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.requests {
		out = append(out, r.Text)
	}
	return out
}

type fakeCues struct {
	mu      sync.Mutex
	kinds   []CueKind
	volumes []float64
}

func (c *fakeCues) Play(kind CueKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
}

func (c *fakeCues) PlayVolume(kind CueKind, volume float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
	c.volumes = append(c.volumes, volume)
}

func (c *fakeCues) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.kinds)
}

func newTestController(t *testing.T) (*Controller, *fakeSpeaker, *fakeCues, store.Queue, *session.Store) {
	t.Helper()
	speaker := &fakeSpeaker{}
	cues := &fakeCues{}
	q := store.NewMemoryQueue()
	sessions := session.NewStore(store.NewMemoryKV())
	state := playback.NewState()
	c := NewController(q, sessions, state, speaker, cues)
	return c, speaker, cues, q, sessions
}

func TestEnqueueStartsPlaybackAndCreatesSession(t *testing.T) {
	ctx := context.Background()
	c, speaker, _, q, sessions := newTestController(t)

	item, err := c.Enqueue(ctx, "hello world", "sess-1")
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if item.SessionID != "sess-1" {
		t.Errorf("item session = %q, want sess-1", item.SessionID)
	}

	got := speaker.playedTexts()
	if len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("speaker requests = %v, want [hello world]", got)
	}

	list := sessions.Load()
	if len(list) != 1 {
		t.Fatalf("sessions = %d, want 1", len(list))
	}
	if list[0].Name != "Conversation #1" || !list[0].AutoNamed {
		t.Errorf("session = %q autoNamed=%v, want auto-assigned Conversation #1",
			list[0].Name, list[0].AutoNamed)
	}

	items, _ := q.Items(ctx, store.ItemFilter{Status: playback.StatusPlaying})
	if len(items) != 1 {
		t.Errorf("playing items = %d, want 1", len(items))
	}
}

func TestCompletionAdvancesAndRecordsTranscript(t *testing.T) {
	ctx := context.Background()
	c, speaker, _, q, sessions := newTestController(t)

	if _, err := c.Enqueue(ctx, "first", "s"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Enqueue(ctx, "second", "s"); err != nil {
		t.Fatal(err)
	}

	speaker.finish()

	got := speaker.playedTexts()
	if len(got) != 2 || got[1] != "second" {
		t.Fatalf("speaker requests = %v, want [first second]", got)
	}

	completed, _ := q.Items(ctx, store.ItemFilter{Status: playback.StatusCompleted})
	if len(completed) != 1 || completed[0].Text != "first" {
		t.Fatalf("completed = %v, want the first item", completed)
	}

	list := sessions.Load()
	if len(list) != 1 || len(list[0].Messages) != 2 {
		t.Fatalf("transcript = %+v, want two messages", list)
	}
	if list[0].Messages[0].Text != "second" || list[0].Messages[1].Text != "first" {
		t.Errorf("transcript = [%q %q], want newest first",
			list[0].Messages[0].Text, list[0].Messages[1].Text)
	}
}

func TestEnqueueBumpsActivityNotHeartbeat(t *testing.T) {
	ctx := context.Background()
	c, _, _, _, sessions := newTestController(t)

	if _, err := c.Enqueue(ctx, "hello", "s"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Enqueue(ctx, "again", "s"); err != nil {
		t.Fatal(err)
	}

	list := sessions.Load()
	if len(list) != 1 {
		t.Fatalf("sessions = %d, want 1", len(list))
	}
	s := list[0]
	if !s.LastHeartbeat.IsZero() {
		t.Errorf("utterance set LastHeartbeat = %v, want zero", s.LastHeartbeat)
	}
	if session.IsActive(s, time.Now()) {
		t.Error("session reports active without ever receiving a heartbeat")
	}
	if s.LastActivity.IsZero() {
		t.Error("utterance did not bump LastActivity")
	}

	if err := c.Heartbeat("s", time.Now()); err != nil {
		t.Fatal(err)
	}
	list = sessions.Load()
	if !session.IsActive(list[0], time.Now()) {
		t.Error("session not active after a real heartbeat")
	}
}

func TestDrainedQueueSettlesToStopped(t *testing.T) {
	ctx := context.Background()
	c, speaker, _, _, _ := newTestController(t)

	if _, err := c.Enqueue(ctx, "only", "s"); err != nil {
		t.Fatal(err)
	}
	speaker.finish()

	if c.state.Current() != nil {
		t.Error("current item survived a drained queue")
	}
	if c.state.IsPlaying() {
		t.Error("state still playing with nothing queued")
	}
}

func TestTogglePlayPauseExclusivity(t *testing.T) {
	ctx := context.Background()
	c, speaker, _, _, _ := newTestController(t)

	if _, err := c.Enqueue(ctx, "text", "s"); err != nil {
		t.Fatal(err)
	}

	c.TogglePlayPause(ctx)
	if !c.state.IsPaused() || c.state.IsPlaying() {
		t.Errorf("after pause: playing=%v paused=%v, want false/true",
			c.state.IsPlaying(), c.state.IsPaused())
	}
	if speaker.pauses != 1 {
		t.Errorf("speaker pauses = %d, want 1", speaker.pauses)
	}

	c.TogglePlayPause(ctx)
	if c.state.IsPaused() || !c.state.IsPlaying() {
		t.Errorf("after resume: playing=%v paused=%v, want true/false",
			c.state.IsPlaying(), c.state.IsPaused())
	}
	if speaker.resumes != 1 {
		t.Errorf("speaker resumes = %d, want 1", speaker.resumes)
	}
}

func TestSkipCompletesCurrentAndMovesOn(t *testing.T) {
	ctx := context.Background()
	c, speaker, cues, q, _ := newTestController(t)

	c.Enqueue(ctx, "a", "s")
	c.Enqueue(ctx, "b", "s")

	c.Skip(ctx)

	got := speaker.playedTexts()
	if len(got) != 2 || got[1] != "b" {
		t.Fatalf("speaker requests = %v, want skip to b", got)
	}
	completed, _ := q.Items(ctx, store.ItemFilter{Status: playback.StatusCompleted})
	if len(completed) != 1 || completed[0].Text != "a" {
		t.Errorf("completed = %v, want a", completed)
	}
	if cues.count() == 0 {
		t.Error("skip played no cue")
	}
}

func TestReplayNoopWhenSilent(t *testing.T) {
	ctx := context.Background()
	c, speaker, cues, _, _ := newTestController(t)

	c.Replay(ctx)
	if len(speaker.playedTexts()) != 0 {
		t.Error("replay with nothing loaded spoke something")
	}
	if cues.count() != 0 {
		t.Error("replay with nothing loaded played a cue")
	}

	c.Enqueue(ctx, "a", "s")
	c.TogglePlayPause(ctx) // paused, so not audible
	c.Replay(ctx)
	if got := speaker.playedTexts(); len(got) != 1 {
		t.Errorf("replay while paused restarted playback: %v", got)
	}
}

func TestReplayRestartsCurrent(t *testing.T) {
	ctx := context.Background()
	c, speaker, cues, _, _ := newTestController(t)

	c.Enqueue(ctx, "again", "s")
	c.Replay(ctx)

	got := speaker.playedTexts()
	if len(got) != 2 || got[1] != "again" {
		t.Fatalf("speaker requests = %v, want [again again]", got)
	}
	if cues.count() != 1 {
		t.Errorf("cues = %d, want 1", cues.count())
	}
}

func TestReplayLast(t *testing.T) {
	ctx := context.Background()
	c, speaker, _, _, _ := newTestController(t)

	// Nothing completed yet: no-op.
	c.ReplayLast(ctx)
	if len(speaker.playedTexts()) != 0 {
		t.Fatal("ReplayLast with no history spoke something")
	}

	c.Enqueue(ctx, "gone", "s")
	speaker.finish()

	c.ReplayLast(ctx)
	got := speaker.playedTexts()
	if len(got) != 2 || got[1] != "gone" {
		t.Fatalf("speaker requests = %v, want gone replayed", got)
	}
}

func TestAdjustSpeedPinsAndAlwaysCues(t *testing.T) {
	c, speaker, cues, _, _ := newTestController(t)

	var v float64
	for i := 0; i < 12; i++ {
		v = c.AdjustSpeed(playback.SpeedStep)
	}
	if v != playback.MaxSpeed {
		t.Errorf("speed = %v, want pinned at %v", v, playback.MaxSpeed)
	}
	if speaker.rate != playback.MaxSpeed {
		t.Errorf("speaker rate = %v, want %v", speaker.rate, playback.MaxSpeed)
	}
	if cues.count() != 12 {
		t.Errorf("cues = %d, want one per press even at the bound", cues.count())
	}
}

func TestAdjustVolumeCueCarriesNewLevel(t *testing.T) {
	c, speaker, cues, _, _ := newTestController(t)

	v := c.AdjustVolume(-playback.VolumeStep)
	if v != 0.9 {
		t.Errorf("volume = %v, want 0.9", v)
	}
	if speaker.volume != 0.9 {
		t.Errorf("speaker volume = %v, want 0.9", speaker.volume)
	}
	if len(cues.volumes) != 1 || cues.volumes[0] != 0.9 {
		t.Errorf("cue volumes = %v, want [0.9]", cues.volumes)
	}
}

func TestStopAndClearEvictsPendingOnly(t *testing.T) {
	ctx := context.Background()
	c, speaker, _, q, _ := newTestController(t)

	c.Enqueue(ctx, "a", "s")
	speaker.finish() // a completed
	c.Enqueue(ctx, "b", "s")
	c.Enqueue(ctx, "c", "s")
	c.Enqueue(ctx, "d", "s")

	c.StopAndClear(ctx)

	all, _ := q.Items(ctx, store.ItemFilter{})
	for _, it := range all {
		if it.Status == playback.StatusPending {
			t.Errorf("pending item %q survived StopAndClear", it.Text)
		}
	}
	completed, _ := q.Items(ctx, store.ItemFilter{Status: playback.StatusCompleted})
	if len(completed) != 2 {
		t.Errorf("completed items = %d, want history kept (a and the stopped b)", len(completed))
	}
	if c.state.Current() != nil || c.state.IsPlaying() {
		t.Error("state still live after StopAndClear")
	}
	if !c.state.Snapshot().Interrupted {
		t.Error("interrupted flag not set")
	}
}

func TestPlayFailureMarksItemFailedAndAdvances(t *testing.T) {
	ctx := context.Background()
	c, speaker, _, q, _ := newTestController(t)

	speaker.playErr = errors.New("TTS API failed (500)")
	c.Enqueue(ctx, "doomed", "s")
	speaker.mu.Lock()
	speaker.playErr = nil
	speaker.mu.Unlock()

	failed, _ := q.Items(ctx, store.ItemFilter{Status: playback.StatusFailed})
	if len(failed) != 1 {
		t.Fatalf("failed items = %d, want 1", len(failed))
	}
	if failed[0].ErrorMessage != "TTS API failed (500)" {
		t.Errorf("error message = %q", failed[0].ErrorMessage)
	}

	c.Enqueue(ctx, "healthy", "s")
	if got := speaker.playedTexts(); len(got) != 1 || got[0] != "healthy" {
		t.Errorf("speaker requests = %v, want [healthy]", got)
	}
}

func TestPlayFailureDoesNotPoisonNextItem(t *testing.T) {
	ctx := context.Background()
	c, speaker, _, q, _ := newTestController(t)

	c.Enqueue(ctx, "opening", "s")
	speaker.mu.Lock()
	speaker.failText = "doomed"
	speaker.mu.Unlock()
	c.Enqueue(ctx, "doomed", "s")
	c.Enqueue(ctx, "after", "s")

	// Ending "opening" advances onto "doomed", which fails on play and
	// advances again onto "after".
	speaker.finish()

	failed, _ := q.Items(ctx, store.ItemFilter{Status: playback.StatusFailed})
	if len(failed) != 1 || failed[0].Text != "doomed" {
		t.Fatalf("failed items = %v, want only the doomed one", failed)
	}
	if failed[0].ErrorMessage != "TTS API failed (500)" {
		t.Errorf("error message = %q", failed[0].ErrorMessage)
	}

	playing, _ := q.Items(ctx, store.ItemFilter{Status: playback.StatusPlaying})
	if len(playing) != 1 || playing[0].Text != "after" {
		t.Fatalf("playing items = %v, want the item after the failure", playing)
	}
	if got := speaker.playedTexts(); len(got) != 2 || got[1] != "after" {
		t.Errorf("speaker requests = %v, want [opening after]", got)
	}
}

func TestSpeakStatusEnqueuesAnnouncement(t *testing.T) {
	ctx := context.Background()
	c, speaker, _, _, _ := newTestController(t)

	c.SpeakStatus(ctx)

	got := speaker.playedTexts()
	if len(got) != 1 {
		t.Fatalf("speaker requests = %d, want the announcement", len(got))
	}
	if !strings.Contains(got[0], "queue is empty") {
		t.Errorf("status text = %q, want empty-queue wording", got[0])
	}
	if !strings.Contains(got[0], "Speed 1") || !strings.Contains(got[0], "Volume 100 percent") {
		t.Errorf("status text = %q, want speed and volume", got[0])
	}
}

func TestStatusTextTruncatesOnRuneBoundary(t *testing.T) {
	ctx := context.Background()
	c, _, _, _, _ := newTestController(t)

	long := strings.Repeat("é", 100)
	c.state.SetCurrent(&playback.Item{Text: long})

	got := c.statusText(ctx)
	if !utf8.ValidString(got) {
		t.Fatalf("status text is not valid UTF-8: %q", got)
	}
	if !strings.Contains(got, strings.Repeat("é", 80)) {
		t.Errorf("status text = %q, want the 80-rune prefix", got)
	}
	if strings.Contains(got, strings.Repeat("é", 81)) {
		t.Error("status text kept more than 80 runes")
	}
}

func TestHeartbeatCreatesSessionBeforeContent(t *testing.T) {
	c, _, _, _, sessions := newTestController(t)

	ts := time.Now()
	if err := c.Heartbeat("early", ts); err != nil {
		t.Fatalf("Heartbeat returned error: %v", err)
	}

	list := sessions.Load()
	if len(list) != 1 {
		t.Fatalf("sessions = %d, want 1", len(list))
	}
	if !session.IsActive(list[0], ts) {
		t.Error("heartbeat session not active")
	}
}
