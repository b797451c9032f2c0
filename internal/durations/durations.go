package durations

import (
	"strconv"
	"strings"
	"time"
)

// Parse converts a human duration string ("10m", "2d", "1w") into a
// time.Duration for giveaway scheduling. Supported units are minutes,
// hours, days, weeks and years. The boolean is false when the string does
// not match <integer><unit>; a zero value with a valid unit parses fine
// and callers must not conflate the two.
func Parse(value string) (time.Duration, bool) {
	return parse(value, map[byte]time.Duration{
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
		'y': 365 * 24 * time.Hour,
	})
}

// ParseShort is the variant for short-lived timings like cooldowns. It
// accepts seconds and drops the week/year units. The two tables are
// intentionally separate per call site.
func ParseShort(value string) (time.Duration, bool) {
	return parse(value, map[byte]time.Duration{
		's': time.Second,
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
	})
}

func parse(value string, units map[byte]time.Duration) (time.Duration, bool) {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if len(trimmed) < 2 {
		return 0, false
	}

	unit, ok := units[trimmed[len(trimmed)-1]]
	if !ok {
		return 0, false
	}

	amount, err := strconv.ParseInt(trimmed[:len(trimmed)-1], 10, 64)
	if err != nil || amount < 0 {
		return 0, false
	}
	return time.Duration(amount) * unit, true
}
