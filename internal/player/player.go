package player

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// State is the player's lifecycle phase for the current utterance.
type State int

const (
	StateIdle State = iota
	StateBuffering
	StatePlaying
	StateEnded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

var errSinkStopped = errors.New("sink stopped")

const timeUpdateInterval = 100 * time.Millisecond

// Player drives one utterance at a time through a sink. Play always
// stops any prior utterance first, so at most one sink is live.
type Player struct {
	mu sync.Mutex

	factory SinkFactory
	client  SynthesisClient

	state      State
	sink       Sink
	cancel     context.CancelFunc
	generation int

	// Chunk appends are serialized: the next pending chunk is handed to
	// the sink only from the previous append's completion signal.
	pending      [][]byte
	appending    bool
	upstreamDone bool
	started      bool

	volume float64
	rate   float64

	onStateChange func(State)
	onTimeUpdate  func(position, duration float64)
	onEnded       func()
	onError       func(message string)
}

// New returns a stopped player over the given sink factory and client.
func New(factory SinkFactory, client SynthesisClient) *Player {
	return &Player{
		factory: factory,
		client:  client,
		state:   StateIdle,
		volume:  1.0,
		rate:    1.0,
	}
}

func (p *Player) OnStateChange(fn func(State)) {
	p.mu.Lock()
	p.onStateChange = fn
	p.mu.Unlock()
}

func (p *Player) OnTimeUpdate(fn func(position, duration float64)) {
	p.mu.Lock()
	p.onTimeUpdate = fn
	p.mu.Unlock()
}

func (p *Player) OnEnded(fn func()) {
	p.mu.Lock()
	p.onEnded = fn
	p.mu.Unlock()
}

func (p *Player) OnError(fn func(message string)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// State returns the current lifecycle phase.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// CurrentSink returns the live sink, or nil when nothing is loaded.
func (p *Player) CurrentSink() Sink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink
}

// IsAudible reports whether audio is actually coming out right now.
func (p *Player) IsAudible() bool {
	sink := p.CurrentSink()
	return sink != nil && sink.IsAudible()
}

// Play starts a new utterance, tearing down any prior one. Failures on
// the pre-stream path degrade to whole-file playback; an error that also
// kills the fallback is returned and never mirrored through OnError, so
// the caller sees each failure exactly once. Mid-stream failures surface
// asynchronously through OnError only.
func (p *Player) Play(ctx context.Context, req Request) error {
	p.Stop()

	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	gen := p.generation
	p.mu.Unlock()

	p.setState(gen, StateBuffering)

	if !p.factory.SupportsStreaming() {
		return p.playWhole(ctx, gen, req, ReasonNoStreamingSupport)
	}

	stream, err := p.client.Stream(ctx, req)
	if err != nil {
		reason, degrade := classifyStreamFailure(err, ReasonRequestFailed)
		if !degrade {
			return nil
		}
		log.Warn("Player: stream request failed", "err", err)
		return p.playWhole(ctx, gen, req, reason)
	}

	if !p.factory.SupportsMime(stream.Mime) {
		_ = stream.Body.Close()
		return p.playWhole(ctx, gen, req, ReasonUnsupportedMime)
	}

	sink, err := p.factory.NewStreamSink(stream.Mime)
	if err != nil {
		_ = stream.Body.Close()
		log.Warn("Player: stream sink open failed", "err", err)
		return p.playWhole(ctx, gen, req, ReasonSinkOpenFailed)
	}

	p.attachSink(gen, sink)
	go p.streamLoop(ctx, gen, req, stream)
	return nil
}

// Pause pauses the live sink. No-op when nothing is loaded.
func (p *Player) Pause() {
	if sink := p.CurrentSink(); sink != nil {
		sink.Pause()
	}
}

// Resume resumes the live sink. No-op when nothing is loaded.
func (p *Player) Resume() {
	if sink := p.CurrentSink(); sink != nil {
		sink.Resume()
	}
}

// Stop tears down the current utterance from any state and returns the
// player to idle. Safe to call repeatedly, including after natural end.
func (p *Player) Stop() {
	p.mu.Lock()
	p.generation++
	gen := p.generation
	cancel := p.cancel
	sink := p.sink
	p.cancel = nil
	p.sink = nil
	p.pending = nil
	p.appending = false
	p.upstreamDone = false
	p.started = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sink != nil {
		sink.Stop()
	}
	p.setState(gen, StateIdle)
}

// SetVolume applies the volume to the live sink and remembers it for
// the next one.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		sink.SetVolume(v)
	}
}

// SetRate applies the playback rate to the live sink and remembers it
// for the next one.
func (p *Player) SetRate(r float64) {
	p.mu.Lock()
	p.rate = r
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		sink.SetRate(r)
	}
}

func (p *Player) attachSink(gen int, sink Sink) {
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		sink.Stop()
		return
	}
	p.sink = sink
	volume := p.volume
	rate := p.rate
	p.mu.Unlock()

	sink.SetVolume(volume)
	sink.SetRate(rate)
	sink.SetOnEnded(func() { p.handleEnded(gen) })
}

func (p *Player) streamLoop(ctx context.Context, gen int, req Request, stream *StreamResult) {
	defer stream.Body.Close()

	buf := make([]byte, 8192)
	for {
		n, err := stream.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.enqueueChunk(gen, chunk)
		}
		if err == io.EOF {
			p.finishUpstream(gen)
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			reason, degrade := classifyStreamFailure(err, ReasonStreamError)
			if !degrade {
				return
			}
			log.Warn("Player: stream read failed", "err", err)
			p.detachSink(gen)
			if werr := p.playWhole(ctx, gen, req, reason); werr != nil {
				log.Error("Player: fallback after stream error failed", "err", werr)
				p.fail(gen, werr.Error())
			}
			return
		}
	}
}

// playWhole is the degraded path: synthesize the complete file and play
// it through a blob sink. Failures move the state to error and are
// returned to the caller; the caller owns reporting, so each failure
// reaches exactly one channel.
func (p *Player) playWhole(ctx context.Context, gen int, req Request, reason FallbackReason) error {
	log.Info("Player: falling back to whole-file playback", "reason", reason)

	data, mime, err := p.client.Synthesize(ctx, req)
	if err != nil {
		if _, degrade := classifyStreamFailure(err, ReasonRequestFailed); !degrade {
			return nil
		}
		p.setState(gen, StateError)
		return err
	}

	sink, err := p.factory.NewBlobSink(data, mime)
	if err != nil {
		p.setState(gen, StateError)
		return err
	}

	p.attachSink(gen, sink)
	if err := sink.Play(); err != nil {
		p.setState(gen, StateError)
		return err
	}

	p.markStarted(gen)
	return nil
}

func (p *Player) enqueueChunk(gen int, chunk []byte) {
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}
	p.pending = append(p.pending, chunk)
	first := !p.started
	sink := p.sink
	p.mu.Unlock()

	if first && sink != nil {
		// Start the device as soon as the first bytes land so audio
		// begins before the stream is complete.
		if err := sink.Play(); err != nil {
			log.Warn("Player: eager start failed", "err", err)
		}
		p.markStarted(gen)
	}
	p.pump(gen)
}

func (p *Player) finishUpstream(gen int) {
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}
	p.upstreamDone = true
	p.mu.Unlock()
	p.pump(gen)
}

// pump hands at most one pending chunk to the sink. The next chunk goes
// out from the append's completion signal, never before.
func (p *Player) pump(gen int) {
	p.mu.Lock()
	if gen != p.generation || p.appending {
		p.mu.Unlock()
		return
	}
	if len(p.pending) == 0 {
		done := p.upstreamDone
		sink := p.sink
		p.mu.Unlock()
		if done && sink != nil {
			if err := sink.Close(); err != nil {
				log.Warn("Player: sink close failed", "err", err)
			}
		}
		return
	}
	chunk := p.pending[0]
	p.pending = p.pending[1:]
	p.appending = true
	sink := p.sink
	p.mu.Unlock()

	if sink == nil {
		return
	}
	sink.Append(chunk, func(err error) {
		p.mu.Lock()
		if gen != p.generation {
			p.mu.Unlock()
			return
		}
		p.appending = false
		p.mu.Unlock()

		if err != nil && !errors.Is(err, errSinkStopped) {
			log.Warn("Player: chunk append failed", "err", err)
		}
		p.pump(gen)
	})
}

func (p *Player) markStarted(gen int) {
	p.mu.Lock()
	if gen != p.generation || p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.setState(gen, StatePlaying)
	go p.tick(gen)
}

func (p *Player) handleEnded(gen int) {
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}
	fn := p.onEnded
	p.mu.Unlock()

	p.setState(gen, StateEnded)
	if fn != nil {
		fn()
	}
}

func (p *Player) fail(gen int, message string) {
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}
	fn := p.onError
	p.mu.Unlock()

	p.setState(gen, StateError)
	if fn != nil {
		fn(message)
	}
}

func (p *Player) setState(gen int, state State) {
	p.mu.Lock()
	if gen != p.generation || p.state == state {
		p.mu.Unlock()
		return
	}
	p.state = state
	fn := p.onStateChange
	p.mu.Unlock()

	if fn != nil {
		fn(state)
	}
}

// tick emits position updates while the utterance is live.
func (p *Player) tick(gen int) {
	ticker := time.NewTicker(timeUpdateInterval)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if gen != p.generation || p.state == StateEnded || p.state == StateError {
			p.mu.Unlock()
			return
		}
		sink := p.sink
		fn := p.onTimeUpdate
		p.mu.Unlock()

		if sink == nil {
			return
		}
		if fn != nil {
			fn(sink.Position(), sink.Duration())
		}
	}
}

func (p *Player) detachSink(gen int) {
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}
	sink := p.sink
	p.sink = nil
	p.pending = nil
	p.appending = false
	p.started = false
	p.mu.Unlock()

	if sink != nil {
		sink.Stop()
	}
}
