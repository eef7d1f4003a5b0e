package player

import (
	"context"
	"errors"
)

// FallbackReason names the trigger that degraded playback from the
// streaming path to whole-file synthesis.
type FallbackReason int

const (
	ReasonNone FallbackReason = iota
	ReasonNoStreamingSupport
	ReasonUnsupportedMime
	ReasonSinkOpenFailed
	ReasonRequestFailed
	ReasonBadStatus
	ReasonStreamError
)

func (r FallbackReason) String() string {
	switch r {
	case ReasonNoStreamingSupport:
		return "no streaming support"
	case ReasonUnsupportedMime:
		return "unsupported mime type"
	case ReasonSinkOpenFailed:
		return "sink open failed"
	case ReasonRequestFailed:
		return "request failed"
	case ReasonBadStatus:
		return "bad response status"
	case ReasonStreamError:
		return "stream error"
	default:
		return "none"
	}
}

// classifyStreamFailure is the single fallback decision point for errors
// out of the streaming path. Cancellation is a deliberate stop, never a
// degradation, so it reports false and the caller returns quietly.
// deflt names the failure when the error carries no better signal.
func classifyStreamFailure(err error, deflt FallbackReason) (FallbackReason, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonNone, false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return ReasonBadStatus, true
	}
	return deflt, true
}
