package session

import (
	"fmt"
	"time"
)

// RelativeTime renders how long ago a timestamp was, truncating toward
// zero at every unit: "Just now" under a minute, then "Nm ago", "Nh ago",
// "Nd ago".
func RelativeTime(ts, now time.Time) string {
	elapsed := now.Sub(ts)
	if elapsed < 0 {
		elapsed = 0
	}

	switch secs := int64(elapsed.Seconds()); {
	case secs < 60:
		return "Just now"
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh ago", secs/3600)
	default:
		return fmt.Sprintf("%dd ago", secs/86400)
	}
}
