package planner

import (
	"fmt"
	"math/rand"
	"time"
)

// validate rejects configs that cannot produce the requested schedule, so a
// run fails loudly instead of silently truncating.
func (cfg Config) validate() error {
	var missing []string
	if cfg.StartHour < 0 || cfg.EndHour > 24 || cfg.EndHour <= cfg.StartHour {
		missing = append(missing, fmt.Sprintf("posting window %02d:00-%02d:00 is empty", cfg.StartHour, cfg.EndHour))
	}
	if cfg.PostsPerDay <= 0 {
		missing = append(missing, "posts_per_day must be positive")
	}
	if cfg.MinInterval <= 0 {
		missing = append(missing, "min_interval must be positive")
	}
	if len(missing) > 0 {
		return &InsufficientInventoryError{Missing: missing}
	}

	window := time.Duration(cfg.EndHour-cfg.StartHour) * time.Hour
	fit := int(window / cfg.MinInterval)
	if cfg.PostsPerDay > fit {
		return &InsufficientInventoryError{Missing: []string{fmt.Sprintf(
			"window %02d:00-%02d:00 fits only %d slots at %s spacing, %d requested",
			cfg.StartHour, cfg.EndHour, fit, cfg.MinInterval, cfg.PostsPerDay)}}
	}
	return nil
}

// generateSlots lays out the run's time slots inside the posting window of
// now's calendar day. Each slot sits on its baseline grid position plus an
// independent jitter of up to ±variation, so error never compounds beyond
// one interval's worth.
func generateSlots(now time.Time, cfg Config, rng *rand.Rand) []time.Time {
	y, m, d := now.Date()
	windowStart := time.Date(y, m, d, cfg.StartHour, 0, 0, 0, now.Location())
	windowEnd := time.Date(y, m, d, cfg.EndHour, 0, 0, 0, now.Location())

	window := windowEnd.Sub(windowStart)
	n := min(cfg.PostsPerDay, int(window/cfg.MinInterval))

	maxJitter := time.Duration(float64(cfg.MinInterval) * cfg.IntervalVariationPct)
	slots := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		at := windowStart.Add(time.Duration(i) * cfg.MinInterval)
		if maxJitter > 0 {
			at = at.Add(time.Duration(rng.Int63n(int64(2*maxJitter))) - maxJitter)
		}
		if at.Before(windowStart) {
			at = windowStart
		}
		if at.After(windowEnd) {
			at = windowEnd
		}
		slots = append(slots, at)
	}
	return slots
}
