package jwtx

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/aussiebroadwan/tally/pkg/autherr"
)

var durationPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

var durationUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseDuration parses the expiry grammar <integer><unit> where unit is one
// of s, m, h or d ("15m", "7d"). Anything else, including zero and values
// that overflow, is a configuration error.
func ParseDuration(s string) (time.Duration, error) {
	const op = "jwtx.ParseDuration"

	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, autherr.Newf(autherr.KindConfiguration, op, "malformed duration %q", s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, autherr.Wrap(autherr.KindConfiguration, op, "duration out of range", err)
	}
	if n == 0 {
		return 0, autherr.Newf(autherr.KindConfiguration, op, "duration %q must be positive", s)
	}

	unit := durationUnits[m[2]]
	if n > math.MaxInt64/int64(unit) {
		return 0, autherr.Newf(autherr.KindConfiguration, op, "duration %q out of range", s)
	}

	return time.Duration(n) * unit, nil
}
