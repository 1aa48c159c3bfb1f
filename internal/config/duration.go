package config

import (
	"fmt"
	"strings"
	"time"
)

// parseDuration resolves a duration string from the config file. Empty means
// unset (zero); negative values are rejected so a typo cannot disable a
// cooldown. path names the offending field in the error.
func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// parseDurationDefault is parseDuration with a fallback for unset fields.
func parseDurationDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := parseDuration(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
