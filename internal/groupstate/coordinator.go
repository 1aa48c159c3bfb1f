package groupstate

import (
	"context"
	"errors"
	"math"
	"time"

	logx "groupcast/pkg/logx"
)

// Limits are the steady-state (post-graduation) posting limits.
type Limits struct {
	// GroupCooldown is the minimum spacing between any two posts to the
	// same group once it has graduated from ramp-up.
	GroupCooldown time.Duration
	// MaxPostsPerDay caps posts per group per calendar day.
	MaxPostsPerDay int
	// DedupeWindow is how long a used content combination stays blocked.
	DedupeWindow time.Duration
}

// Policy bundles the scheduling knobs every Coordinator call receives
// explicitly. There is no ambient configuration state.
type Policy struct {
	RampUp RampUpConfig
	Limits Limits
}

// Decision is the outcome of an eligibility check.
type Decision struct {
	CanPost bool
	Reason  DenyReason
	// Wait is how long until the group could next accept a post, when the
	// denial is time-based.
	Wait time.Duration
}

// WaitMinutes rounds Wait up to whole minutes for reporting.
func (d Decision) WaitMinutes() int {
	if d.Wait <= 0 {
		return 0
	}
	return int(math.Ceil(d.Wait.Minutes()))
}

func deny(reason DenyReason, wait time.Duration) Decision {
	if wait < 0 {
		wait = 0
	}
	return Decision{Reason: reason, Wait: wait}
}

// Coordinator wraps the Store and enforces the posting rules: assignment,
// ramp-up gating, cooldowns, daily caps, and duplicate-content checks.
type Coordinator struct {
	store Store
	clock Clock
	log   logx.Logger
}

func NewCoordinator(store Store, clock Clock, log logx.Logger) *Coordinator {
	if clock == nil {
		clock = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{store: store, clock: clock, log: log}
}

// AssignAccount authorizes accountID to post into groupID. Idempotent.
// The first assignment to a group creates its state record, fixing the
// ramp-up horizon from pol.RampUp.
func (c *Coordinator) AssignAccount(ctx context.Context, groupID, accountID string, pol Policy) error {
	// Assignment is idempotent, so losing a CAS race is safe to retry
	// against the fresh record a couple of times.
	for attempt := 0; attempt < 3; attempt++ {
		st, version, err := c.store.Get(ctx, groupID)
		if errors.Is(err, ErrNotFound) {
			now := c.clock()
			fresh := NewGroupState(groupID, accountID, now, pol.RampUp)
			err := c.store.Create(ctx, fresh)
			if errors.Is(err, ErrExists) {
				continue
			}
			if err == nil {
				c.log.Info("group onboarded",
					logx.String("group", groupID),
					logx.String("account", accountID),
					logx.Bool("ramp_up", fresh.RampUntil != nil))
			}
			return err
		}
		if err != nil {
			return err
		}

		if !st.addAccount(accountID) {
			return nil
		}
		st.UpdatedAt = c.clock()
		err = c.store.Update(ctx, st, version)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return err
	}
	return ErrConflict
}

// UnassignAccount revokes accountID's authorization for groupID. Idempotent.
func (c *Coordinator) UnassignAccount(ctx context.Context, groupID, accountID string) error {
	for attempt := 0; attempt < 3; attempt++ {
		st, version, err := c.store.Get(ctx, groupID)
		if err != nil {
			return err
		}
		if !st.removeAccount(accountID) {
			return nil
		}
		st.UpdatedAt = c.clock()
		err = c.store.Update(ctx, st, version)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return err
	}
	return ErrConflict
}

// CanAcceptPost runs the composite eligibility check. The first failing gate
// wins: existence, authorization, ramp-up, cooldown, daily cap.
//
// A single "now" is captured up front and used by every gate, so a check
// cannot flicker across phase or window boundaries mid-call.
func (c *Coordinator) CanAcceptPost(ctx context.Context, groupID, accountID string, pol Policy) (Decision, error) {
	st, _, err := c.store.Get(ctx, groupID)
	if errors.Is(err, ErrNotFound) {
		return deny(DenyNotFound, 0), nil
	}
	if err != nil {
		return Decision{}, err
	}
	now := c.clock()
	return c.evaluate(st, accountID, now, pol), nil
}

func (c *Coordinator) evaluate(st *GroupState, accountID string, now time.Time, pol Policy) Decision {
	if !st.HasAccount(accountID) {
		return deny(DenyUnauthorized, 0)
	}

	if phase := PhaseFor(st, now, pol.RampUp); phase != nil {
		if phase.MaxPosts <= 0 {
			return deny(DenyInitialDelay, phase.End.Sub(now))
		}
		if st.postsSince(phase.Start, now) >= phase.MaxPosts {
			// The phase window is anchored, so the count cannot drop
			// before the phase ends.
			return deny(DenyRampLimit, phase.End.Sub(now))
		}
		if last := st.LastPostAt(); !last.IsZero() && phase.MinInterval > 0 {
			if next := last.Add(phase.MinInterval); now.Before(next) {
				return deny(DenyRampInterval, next.Sub(now))
			}
		}
		return Decision{CanPost: true}
	}

	if last := st.LastPostAt(); !last.IsZero() && pol.Limits.GroupCooldown > 0 {
		if next := last.Add(pol.Limits.GroupCooldown); now.Before(next) {
			return deny(DenyCooldown, next.Sub(now))
		}
	}

	if pol.Limits.MaxPostsPerDay > 0 && st.postsToday(now) >= pol.Limits.MaxPostsPerDay {
		y, m, d := now.Date()
		nextDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
		return deny(DenyDailyLimit, nextDay.Sub(now))
	}

	return Decision{CanPost: true}
}

// RecordPost atomically registers a successful post: it re-validates
// authorization against the state read inside the same conditional-write
// cycle, prepends the post time, recomputes the daily count, and (when
// content identifiers are supplied) records the canonicalized combination.
//
// Returns (false, nil) when the account is not authorized; nothing is
// mutated in that case. A lost write race surfaces as ErrConflict; the
// Coordinator never retries on its own, the caller decides.
func (c *Coordinator) RecordPost(ctx context.Context, groupID, accountID, textVariantID string, mediaIDs []string, pol Policy) (bool, error) {
	st, version, err := c.store.Get(ctx, groupID)
	if err != nil {
		return false, err
	}
	if !st.HasAccount(accountID) {
		c.log.Warn("record post rejected: account not assigned",
			logx.String("group", groupID), logx.String("account", accountID))
		return false, nil
	}

	now := c.clock()
	st.pushPostTime(now)
	st.GlobalDailyCount = st.postsToday(now)
	if textVariantID != "" || len(mediaIDs) > 0 {
		st.pushCombo(Combination{
			TextVariantID: textVariantID,
			MediaIDs:      mediaIDs,
			PostedAt:      now,
			AccountID:     accountID,
		}, pol.Limits.DedupeWindow)
	}
	st.UpdatedAt = now

	if err := c.store.Update(ctx, st, version); err != nil {
		return false, err
	}
	return true, nil
}

// CheckDuplicate reports whether the (text variant, media set) combination
// was already used in the group within the window. Read-only.
func (c *Coordinator) CheckDuplicate(ctx context.Context, groupID, textVariantID string, mediaIDs []string, window time.Duration) (bool, error) {
	st, _, err := c.store.Get(ctx, groupID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return IsDuplicate(st, textVariantID, mediaIDs, window, c.clock()), nil
}

// AssignedGroups inverts the stored assignments: account id -> group ids.
// Group order follows the store's listing order.
func (c *Coordinator) AssignedGroups(ctx context.Context) (map[string][]string, error) {
	states, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string][]string{}
	for _, st := range states {
		for _, acc := range st.AssignedAccounts {
			out[acc] = append(out[acc], st.GroupID)
		}
	}
	return out, nil
}
