package health

import (
	"regexp"
	"strconv"
	"strings"
)

var targetDigits = regexp.MustCompile(`[0-9,]+`)

// ParseWeeklyTarget extracts the first run of digits and commas from free
// text ("50,000 emails" → 50000). The second return value is true when the
// target is absent or unparseable.
func ParseWeeklyTarget(raw *string) (*int64, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}

	match := targetDigits.FindString(*raw)
	if match == "" {
		return nil, true
	}

	v, err := strconv.ParseInt(strings.ReplaceAll(match, ",", ""), 10, 64)
	if err != nil {
		return nil, true
	}
	return &v, false
}
