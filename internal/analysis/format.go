package analysis

import (
	"fmt"
	"time"
)

// FormatPace renders seconds per 500m as M:SS.d.
func FormatPace(paceSeconds float64) string {
	mins := int(paceSeconds) / 60
	secs := paceSeconds - float64(mins)*60
	return fmt.Sprintf("%d:%04.1f", mins, secs)
}

// FormatDuration renders a duration as MM:SS.d.
func FormatDuration(d time.Duration) string {
	secs := d.Seconds()
	mins := int(secs) / 60
	return fmt.Sprintf("%d:%04.1f", mins, secs-float64(mins)*60)
}
