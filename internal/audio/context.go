// Package audio owns the process-wide output device context and the PCM
// helpers shared by the streaming player and the cue sounder.
package audio

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// PCM format used across the playback pipeline: 16-bit signed mono.
const (
	SampleRate     = 22050
	Channels       = 1
	BytesPerSample = 2
	BytesPerSecond = SampleRate * Channels * BytesPerSample
)

// Format is the sample format handed to the output device.
const Format = oto.FormatSignedInt16LE

// Context wraps the device context. There is one per process; audio
// backends do not tolerate multiple.
type Context struct {
	ctx   *oto.Context
	mu    sync.Mutex
	ready bool
}

var (
	globalContext *Context
	contextOnce   sync.Once
	contextErr    error
)

// GetContext returns the shared device context, creating it on first use.
// A failed initialization sticks: every later call returns the same error
// rather than a half-built context.
func GetContext() (*Context, error) {
	contextOnce.Do(func() {
		globalContext = &Context{}
		contextErr = globalContext.initialize()
	})
	if contextErr != nil {
		return nil, contextErr
	}
	return globalContext, nil
}

func (c *Context) initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	options := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: Channels,
		Format:       Format,
	}

	// Platform-specific buffer sizing; macOS wants more headroom.
	switch runtime.GOOS {
	case "darwin":
		options.BufferSize = 100 * time.Millisecond
	default:
		options.BufferSize = 50 * time.Millisecond
	}

	ctx, ready, err := oto.NewContext(options)
	if err != nil {
		return fmt.Errorf("unable to create audio context: %w", err)
	}
	<-ready

	c.ctx = ctx
	c.ready = true
	return nil
}

// NewPlayer creates a device player reading PCM from r.
func (c *Context) NewPlayer(r io.Reader) (*oto.Player, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready || c.ctx == nil {
		return nil, errors.New("audio context not initialized")
	}
	return c.ctx.NewPlayer(r), nil
}
