// Package player implements the per-utterance streaming playback state
// machine: synthesized audio is fetched incrementally, appended to a
// media sink as it arrives, and degraded to whole-file playback whenever
// the streaming path cannot proceed.
package player

import (
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/harklabs/hark/internal/audio"
)

// Sink is an audio destination for a single utterance.
//
// Appends are asynchronous: done fires when the sink has accepted the
// chunk, and callers must not start another append before then. Close
// signals end of stream; playback of remaining data continues and the
// ended hook fires once the media runs out. Stop tears the sink down
// immediately.
type Sink interface {
	Append(chunk []byte, done func(error))
	Play() error
	Pause()
	Resume()
	Close() error
	Stop()
	SetVolume(v float64)
	SetRate(r float64)
	Position() float64
	Duration() float64 // 0 while unknown
	IsAudible() bool
	SetOnEnded(fn func())
}

// SinkFactory abstracts the platform's media capabilities. A platform
// without incremental buffering reports SupportsStreaming false and the
// player goes straight to the fallback path.
type SinkFactory interface {
	SupportsStreaming() bool
	SupportsMime(mime string) bool
	NewStreamSink(mime string) (Sink, error)
	NewBlobSink(data []byte, mime string) (Sink, error)
}

// streamableMimes are the content types the incremental sink accepts.
// Parameters after ";" are ignored.
var streamableMimes = map[string]bool{
	"audio/pcm":   true,
	"audio/l16":   true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/wave":  true,
}

// DeviceSinkFactory builds sinks over the process audio device.
type DeviceSinkFactory struct{}

// NewDeviceSinkFactory returns the production sink factory.
func NewDeviceSinkFactory() *DeviceSinkFactory {
	return &DeviceSinkFactory{}
}

func (f *DeviceSinkFactory) SupportsStreaming() bool {
	return true
}

func (f *DeviceSinkFactory) SupportsMime(mime string) bool {
	base := strings.TrimSpace(strings.ToLower(mime))
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	return streamableMimes[base]
}

func (f *DeviceSinkFactory) NewStreamSink(mime string) (Sink, error) {
	ctx, err := audio.GetContext()
	if err != nil {
		return nil, err
	}
	return newDeviceSink(ctx, mime)
}

func (f *DeviceSinkFactory) NewBlobSink(data []byte, mime string) (Sink, error) {
	sink, err := f.NewStreamSink(mime)
	if err != nil {
		return nil, err
	}

	// A blob sink is a stream sink that is already fully loaded.
	appended := make(chan error, 1)
	sink.Append(data, func(err error) { appended <- err })
	if err := <-appended; err != nil {
		sink.Stop()
		return nil, err
	}
	if err := sink.Close(); err != nil {
		sink.Stop()
		return nil, err
	}
	return sink, nil
}

// pcmStream is an append-only PCM buffer read by the device player. Read
// blocks until data arrives, then returns EOF once the stream is closed
// and drained, letting natural end-of-media fire.
type pcmStream struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	readOff int
	out     []byte // resampled bytes awaiting delivery
	rate    float64
	closed  bool
	stopped bool
}

func newPCMStream() *pcmStream {
	s := &pcmStream{rate: 1.0}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *pcmStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.out) == 0 {
		if s.stopped {
			return 0, io.EOF
		}
		if s.readOff >= len(s.buf) {
			if s.closed {
				return 0, io.EOF
			}
			s.cond.Wait()
			continue
		}

		end := s.readOff + 4096
		if end > len(s.buf) {
			end = len(s.buf)
		}
		chunk := s.buf[s.readOff:end]
		s.readOff = end
		s.out = resamplePCM(chunk, s.rate)
	}

	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

func (s *pcmStream) append(data []byte) {
	s.mu.Lock()
	s.buf = append(s.buf, data...)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *pcmStream) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *pcmStream) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *pcmStream) setRate(r float64) {
	s.mu.Lock()
	s.rate = r
	s.mu.Unlock()
}

func (s *pcmStream) consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOff
}

func (s *pcmStream) total() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf), s.closed
}

// resamplePCM applies nearest-neighbor rate adjustment to 16-bit mono
// samples. rate > 1 shortens output (faster playback).
func resamplePCM(src []byte, rate float64) []byte {
	if rate == 1.0 || len(src) < 4 {
		out := make([]byte, len(src))
		copy(out, src)
		return out
	}

	srcSamples := len(src) / 2
	outSamples := int(float64(srcSamples) / rate)
	if outSamples < 1 {
		outSamples = 1
	}

	out := make([]byte, outSamples*2)
	for i := 0; i < outSamples; i++ {
		j := int(float64(i) * rate)
		if j >= srcSamples {
			j = srcSamples - 1
		}
		out[i*2] = src[j*2]
		out[i*2+1] = src[j*2+1]
	}
	return out
}

// deviceSink plays PCM through the shared audio context.
type deviceSink struct {
	stream  *pcmStream
	player  *oto.Player
	mime    string
	isWAV   bool
	first   bool
	paused  atomic.Bool
	stopped atomic.Bool
	playing atomic.Bool

	mu      sync.Mutex
	onEnded func()
	watchCh chan struct{}
}

func newDeviceSink(ctx *audio.Context, mime string) (*deviceSink, error) {
	base := strings.ToLower(mime)
	s := &deviceSink{
		stream:  newPCMStream(),
		mime:    mime,
		isWAV:   strings.Contains(base, "wav"),
		first:   true,
		watchCh: make(chan struct{}),
	}
	player, err := ctx.NewPlayer(s.stream)
	if err != nil {
		return nil, err
	}
	s.player = player
	return s, nil
}

func (s *deviceSink) Append(chunk []byte, done func(error)) {
	if s.stopped.Load() {
		go done(errSinkStopped)
		return
	}

	data := chunk
	if s.first && s.isWAV {
		data = audio.TrimWAVHeader(chunk)
	}
	s.first = false
	s.stream.append(data)

	// Completion is always signaled asynchronously so callers can
	// serialize appends without reentrancy.
	go done(nil)
}

func (s *deviceSink) Play() error {
	if s.stopped.Load() {
		return errSinkStopped
	}
	s.player.Play()
	s.playing.Store(true)
	go s.watchEnded()
	return nil
}

func (s *deviceSink) Pause() {
	if s.stopped.Load() {
		return
	}
	s.paused.Store(true)
	s.player.Pause()
}

func (s *deviceSink) Resume() {
	if s.stopped.Load() {
		return
	}
	s.paused.Store(false)
	s.player.Play()
}

func (s *deviceSink) Close() error {
	s.stream.close()
	return nil
}

func (s *deviceSink) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	s.playing.Store(false)
	s.stream.stop()
	close(s.watchCh)
	_ = s.player.Close()
}

func (s *deviceSink) SetVolume(v float64) {
	if s.stopped.Load() {
		return
	}
	s.player.SetVolume(v)
}

func (s *deviceSink) SetRate(r float64) {
	s.stream.setRate(r)
}

func (s *deviceSink) Position() float64 {
	return audio.Seconds(s.stream.consumed())
}

func (s *deviceSink) Duration() float64 {
	total, closed := s.stream.total()
	if !closed {
		return 0 // unknown until the stream is complete, never NaN
	}
	return audio.Seconds(total)
}

func (s *deviceSink) IsAudible() bool {
	return s.playing.Load() && !s.paused.Load() && !s.stopped.Load()
}

func (s *deviceSink) SetOnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

// watchEnded polls for natural end-of-media: stream closed, buffer
// drained, device no longer playing.
func (s *deviceSink) watchEnded() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.watchCh:
			return
		case <-ticker.C:
			if s.paused.Load() {
				continue
			}
			_, closed := s.stream.total()
			if closed && !s.player.IsPlaying() {
				s.playing.Store(false)
				s.mu.Lock()
				fn := s.onEnded
				s.mu.Unlock()
				if fn != nil {
					fn()
				}
				return
			}
		}
	}
}
