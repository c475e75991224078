package downtime

import (
	"fmt"
	"math"
)

// FormatSeconds renders elapsed seconds as "{days}d HH:MM:SS" once a full day
// has elapsed, else "HH:MM:SS". Fractional seconds round to the nearest whole
// second; negative input reads as zero.
func FormatSeconds(seconds float64) string {
	total := int64(math.Round(seconds))
	if total < 0 {
		total = 0
	}

	days := total / 86400
	rem := total % 86400
	h := rem / 3600
	m := rem % 3600 / 60
	s := rem % 60

	if days >= 1 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
