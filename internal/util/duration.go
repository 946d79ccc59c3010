package util

import (
	"strconv"
	"strings"
)

// DurationToSec converts an ffmpeg timestamp (HH:MM:SS.ms) to seconds. Malformed input yields 0.
func DurationToSec(d string) float64 {
	d = strings.TrimSpace(d)

	if d == "" || strings.HasPrefix(d, "-") {
		return 0
	}

	parts := strings.Split(d, ":")

	if len(parts) > 3 {
		return 0
	}

	var total float64

	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)

		if err != nil {
			return 0
		}

		total = total*60 + v
	}

	return total
}
