// Package planner builds the candidate pool and turns it into a jittered,
// greedily assigned posting schedule. Generation is read-only: the planner
// never mutates group state, so a run can be thrown away and regenerated
// safely. Committing a combination is the caller's job.
package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"groupcast/internal/directory"
	"groupcast/internal/groupstate"
)

// Config are the knobs for one schedule generation run.
type Config struct {
	// StartHour/EndHour bound the posting window within a day (local time
	// of the injected clock).
	StartHour int
	EndHour   int
	// PostsPerDay is the requested number of time slots.
	PostsPerDay int
	// MinInterval is the baseline spacing between consecutive slots.
	MinInterval time.Duration
	// IntervalVariationPct jitters each slot around its baseline position
	// by up to ±pct of MinInterval (0..1).
	IntervalVariationPct float64
	// MaxGroupsPerAccount caps how many slots one account takes per run.
	MaxGroupsPerAccount int
	// MediaAttachProbability applies when a template declares no minimum
	// media requirement. Zero means the default of 0.7.
	MediaAttachProbability float64
}

// Eligibility is the coordinator surface the planner consults. Both calls
// are read-only.
type Eligibility interface {
	CanAcceptPost(ctx context.Context, groupID, accountID string, pol groupstate.Policy) (groupstate.Decision, error)
	CheckDuplicate(ctx context.Context, groupID, textVariantID string, mediaIDs []string, window time.Duration) (bool, error)
}

// Inputs is everything a run consumes, fetched up front so the greedy loop
// does no blocking I/O beyond eligibility reads.
type Inputs struct {
	Accounts []directory.Account
	// AssignedGroups maps account id to the group ids it may post into,
	// as recorded by the coordinator.
	AssignedGroups map[string][]string
	// Groups indexes directory groups by id (for chat addressing).
	Groups    map[string]directory.Group
	Templates []directory.Template
	Media     []directory.Media
}

// Combination is one planned post. Never persisted by the planner; the
// caller commits it via the coordinator and hands it to the sink.
type Combination struct {
	AccountID     string
	GroupID       string
	ChatID        int64
	ScheduledAt   time.Time
	TemplateID    string
	TextVariantID string
	Text          string
	MediaIDs      []string
	MediaRefs     []string
}

// Stats summarizes a generation run.
type Stats struct {
	TotalCandidates  int
	SuccessfulPosts  int
	SkippedRateLimit int
	SkippedDuplicate int
	SkippedRampUp    int
}

// Plan is the ordered schedule plus its report.
type Plan struct {
	Combinations []Combination
	Stats        Stats
	Warnings     []string
}

// InsufficientInventoryError aborts a run that cannot produce a meaningful
// schedule, naming exactly what is missing or infeasible.
type InsufficientInventoryError struct {
	Missing []string
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: %s", strings.Join(e.Missing, "; "))
}
