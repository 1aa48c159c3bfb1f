package groupstate

import (
	"slices"
	"time"
)

// Clock returns the current time. Injected so tests control "now".
type Clock func() time.Time

const (
	// maxLastPostTimes bounds the post-time history kept per group.
	maxLastPostTimes = 10
	// maxRecentCombos bounds the content-combination history kept per group.
	maxRecentCombos = 20
)

// Combination is one (text variant, media set) pairing a group has accepted,
// kept for duplicate detection. MediaIDs are stored canonicalized (sorted
// ascending).
type Combination struct {
	TextVariantID string    `json:"text_variant_id"`
	MediaIDs      []string  `json:"media_ids,omitempty"`
	PostedAt      time.Time `json:"posted_at"`
	AccountID     string    `json:"account_id"`
}

// GroupState is the durable per-group record.
//
// Invariants:
//   - AssignedAccounts has no duplicates.
//   - LastPostTimes is sorted descending and holds at most maxLastPostTimes.
//   - RecentCombos is sorted descending by PostedAt, at most maxRecentCombos.
//   - RampUntil and CreatedAt are written once at creation and never change.
type GroupState struct {
	GroupID          string        `json:"group_id"`
	AssignedAccounts []string      `json:"assigned_accounts"`
	LastPostTimes    []time.Time   `json:"last_post_times,omitempty"`
	GlobalDailyCount int           `json:"global_daily_count"`
	RampUntil        *time.Time    `json:"initial_ramp_until,omitempty"`
	RecentCombos     []Combination `json:"recent_combinations,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewGroupState creates the record for a group's first assignment.
// The ramp-up horizon is fixed here and never renegotiated.
func NewGroupState(groupID, accountID string, now time.Time, ramp RampUpConfig) *GroupState {
	st := &GroupState{
		GroupID:          groupID,
		AssignedAccounts: []string{accountID},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if total := ramp.TotalWindow(); total > 0 {
		until := now.Add(total)
		st.RampUntil = &until
	}
	return st
}

// HasAccount reports whether accountID is authorized to post into the group.
func (st *GroupState) HasAccount(accountID string) bool {
	return slices.Contains(st.AssignedAccounts, accountID)
}

// addAccount adds accountID if absent. Returns true if the set changed.
func (st *GroupState) addAccount(accountID string) bool {
	if st.HasAccount(accountID) {
		return false
	}
	st.AssignedAccounts = append(st.AssignedAccounts, accountID)
	return true
}

// removeAccount removes accountID if present. Returns true if the set changed.
func (st *GroupState) removeAccount(accountID string) bool {
	i := slices.Index(st.AssignedAccounts, accountID)
	if i < 0 {
		return false
	}
	st.AssignedAccounts = slices.Delete(st.AssignedAccounts, i, i+1)
	return true
}

// LastPostAt returns the most recent post time, or zero if none.
func (st *GroupState) LastPostAt() time.Time {
	if len(st.LastPostTimes) == 0 {
		return time.Time{}
	}
	return st.LastPostTimes[0]
}

// pushPostTime prepends now and trims to capacity, keeping descending order.
func (st *GroupState) pushPostTime(now time.Time) {
	st.LastPostTimes = append([]time.Time{now}, st.LastPostTimes...)
	slices.SortFunc(st.LastPostTimes, func(a, b time.Time) int { return b.Compare(a) })
	if len(st.LastPostTimes) > maxLastPostTimes {
		st.LastPostTimes = st.LastPostTimes[:maxLastPostTimes]
	}
}

// pushCombo prepends a canonicalized combination, prunes entries older than
// keep, and trims to capacity.
func (st *GroupState) pushCombo(c Combination, keep time.Duration) {
	c.MediaIDs = CanonicalMediaIDs(c.MediaIDs)
	st.RecentCombos = append([]Combination{c}, st.RecentCombos...)
	if keep > 0 {
		cutoff := c.PostedAt.Add(-keep)
		st.RecentCombos = slices.DeleteFunc(st.RecentCombos, func(e Combination) bool {
			return e.PostedAt.Before(cutoff)
		})
	}
	if len(st.RecentCombos) > maxRecentCombos {
		st.RecentCombos = st.RecentCombos[:maxRecentCombos]
	}
}

// postsToday counts post times that fall inside now's calendar day.
// GlobalDailyCount is recomputed from this on every write, never trusted.
func (st *GroupState) postsToday(now time.Time) int {
	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	n := 0
	for _, t := range st.LastPostTimes {
		if !t.Before(dayStart) && t.Before(dayEnd) {
			n++
		}
	}
	return n
}

// postsSince counts post times in [from, now].
func (st *GroupState) postsSince(from, now time.Time) int {
	n := 0
	for _, t := range st.LastPostTimes {
		if !t.Before(from) && !t.After(now) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy, so store drivers can hand out states without
// aliasing their internal record.
func (st *GroupState) Clone() *GroupState {
	cp := *st
	cp.AssignedAccounts = slices.Clone(st.AssignedAccounts)
	cp.LastPostTimes = slices.Clone(st.LastPostTimes)
	cp.RecentCombos = slices.Clone(st.RecentCombos)
	for i := range cp.RecentCombos {
		cp.RecentCombos[i].MediaIDs = slices.Clone(cp.RecentCombos[i].MediaIDs)
	}
	if st.RampUntil != nil {
		until := *st.RampUntil
		cp.RampUntil = &until
	}
	return &cp
}
