package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize/english"
)

// statusSessionID groups spoken status announcements under one session
// so they never pollute a real conversation's transcript.
const statusSessionID = "hark-status"

// statusText writes the state summary the way it should be read aloud.
func (c *Controller) statusText(ctx context.Context) string {
	var parts []string

	snap := c.state.Snapshot()
	if snap.Current != nil {
		text := snap.Current.Text
		// Cut on a rune boundary; byte slicing could split a multi-byte
		// character and hand invalid UTF-8 to the synthesizer.
		if r := []rune(text); len(r) > 80 {
			text = string(r[:80])
		}
		parts = append(parts, fmt.Sprintf("Now reading: %s.", strings.TrimSpace(text)))
	} else if snap.IsPaused {
		parts = append(parts, "Playback is paused.")
	} else {
		parts = append(parts, "Nothing is playing.")
	}

	pending, err := c.queue.PendingCount(ctx)
	if err != nil {
		log.Warn("Queue: pending count failed", "err", err)
	}
	if pending == 0 {
		parts = append(parts, "The queue is empty.")
	} else {
		parts = append(parts, fmt.Sprintf("%s waiting.", english.Plural(pending, "item", "")))
	}

	parts = append(parts,
		fmt.Sprintf("Speed %s.", trimFloat(snap.Speed)),
		fmt.Sprintf("Volume %d percent.", int(snap.Volume*100+0.5)),
	)
	return strings.Join(parts, " ")
}

// trimFloat renders 1.25 as "1.25" and 1.0 as "1", spoken-friendly.
func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
