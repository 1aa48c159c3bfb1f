package groupstate

import "time"

// RampPhase is one window of the multi-week onboarding schedule.
type RampPhase struct {
	Name        string
	Window      time.Duration // how long this phase lasts
	MaxPosts    int           // posts allowed within the phase window
	MinInterval time.Duration // minimum spacing between posts in this phase
}

// RampUpConfig fixes a group's onboarding schedule at creation time.
type RampUpConfig struct {
	// InitialDelay blocks all posting right after the group is onboarded.
	InitialDelay time.Duration
	// Phases apply in order once the initial delay has elapsed.
	Phases []RampPhase
}

// DefaultRampUp mirrors the conventional onboarding ladder: two quiet days,
// one careful week, one looser week, then steady-state rules.
func DefaultRampUp() RampUpConfig {
	return RampUpConfig{
		InitialDelay: 48 * time.Hour,
		Phases: []RampPhase{
			{Name: "phase_1", Window: 7 * 24 * time.Hour, MaxPosts: 2, MinInterval: 72 * time.Hour},
			{Name: "phase_2", Window: 7 * 24 * time.Hour, MaxPosts: 3, MinInterval: 48 * time.Hour},
		},
	}
}

// TotalWindow is the full ramp horizon from creation to graduation.
func (c RampUpConfig) TotalWindow() time.Duration {
	total := c.InitialDelay
	for _, p := range c.Phases {
		total += p.Window
	}
	return total
}

// ActivePhase describes where in the ramp a group currently sits.
type ActivePhase struct {
	Name        string
	MaxPosts    int
	MinInterval time.Duration
	Start       time.Time // phase window start (anchored to CreatedAt)
	End         time.Time
}

const phaseInitialDelay = "initial_delay"

// PhaseFor classifies a group into its current ramp-up phase.
//
// Returns nil when the group has graduated: either the full ramp horizon has
// elapsed, or the group was imported without a ramp horizon at all (RampUntil
// unset), which intentionally bypasses onboarding.
func PhaseFor(st *GroupState, now time.Time, cfg RampUpConfig) *ActivePhase {
	if st.RampUntil == nil {
		return nil
	}

	created := st.CreatedAt
	if cfg.InitialDelay > 0 && now.Before(created.Add(cfg.InitialDelay)) {
		return &ActivePhase{
			Name:     phaseInitialDelay,
			MaxPosts: 0,
			Start:    created,
			End:      created.Add(cfg.InitialDelay),
		}
	}

	// Walk the cumulative phase windows; the first one containing the
	// elapsed time since creation wins.
	offset := cfg.InitialDelay
	for _, p := range cfg.Phases {
		start := created.Add(offset)
		end := start.Add(p.Window)
		if now.Before(end) {
			return &ActivePhase{
				Name:        p.Name,
				MaxPosts:    p.MaxPosts,
				MinInterval: p.MinInterval,
				Start:       start,
				End:         end,
			}
		}
		offset += p.Window
	}
	return nil
}
