// Package capture handles voice input: recording control, decoding the
// captured audio off the native bridge, and the live input-level feed.
package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MinDuration is the shortest capture worth keeping, in seconds. Anything
// briefer is a misfire of the push-to-talk key.
const MinDuration = 0.35

var (
	ErrEmptyAudio    = errors.New("capture contains no audio")
	ErrTooShort      = errors.New("capture too short to transcribe")
	ErrNotRecording  = errors.New("no recording in progress")
	ErrAlreadyActive = errors.New("a recording is already in progress")
)

// Recording is one decoded voice capture.
type Recording struct {
	Audio        []byte
	MimeType     string
	DurationSecs float64
	SampleRate   int
}

// wireRecording is a capture as the native recorder returns it.
type wireRecording struct {
	AudioBase64  string  `json:"audio_base64"`
	MimeType     string  `json:"mime_type"`
	DurationSecs float64 `json:"duration_secs"`
	SampleRate   int     `json:"sample_rate"`
}

// decode validates a wire capture and returns the usable recording.
func (w wireRecording) decode() (Recording, error) {
	if strings.TrimSpace(w.AudioBase64) == "" {
		return Recording{}, ErrEmptyAudio
	}

	audio, err := base64.StdEncoding.DecodeString(w.AudioBase64)
	if err != nil {
		return Recording{}, fmt.Errorf("decoding capture audio: %w", err)
	}
	if len(audio) == 0 {
		return Recording{}, ErrEmptyAudio
	}
	if w.DurationSecs < MinDuration {
		return Recording{}, fmt.Errorf("%w: %.2fs, need at least %.2fs",
			ErrTooShort, w.DurationSecs, MinDuration)
	}

	return Recording{
		Audio:        audio,
		MimeType:     w.MimeType,
		DurationSecs: w.DurationSecs,
		SampleRate:   w.SampleRate,
	}, nil
}
