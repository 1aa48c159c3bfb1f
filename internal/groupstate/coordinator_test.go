package groupstate

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "groupcast/pkg/logx"
)

// tick is a mutable test clock.
type tick struct{ now time.Time }

func (c *tick) Now() time.Time { return c.now }

func newTestCoordinator(t0 time.Time) (*Coordinator, *tick, *MemoryStore) {
	clk := &tick{now: t0}
	store := NewMemoryStore()
	return NewCoordinator(store, clk.Now, logx.Nop()), clk, store
}

func testPolicy() Policy {
	return Policy{
		RampUp: testRamp(),
		Limits: Limits{
			GroupCooldown:  72 * time.Hour,
			MaxPostsPerDay: 1,
			DedupeWindow:   7 * 24 * time.Hour,
		},
	}
}

// graduatedPolicy onboards groups without any ramp horizon.
func graduatedPolicy(cooldown time.Duration, maxPerDay int) Policy {
	return Policy{Limits: Limits{
		GroupCooldown:  cooldown,
		MaxPostsPerDay: maxPerDay,
		DedupeWindow:   7 * 24 * time.Hour,
	}}
}

func TestInitialDelayGatingWithExactWait(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	coord, clk, _ := newTestCoordinator(t0)
	pol := testPolicy()

	if err := coord.AssignAccount(ctx, "g1", "a1", pol); err != nil {
		t.Fatalf("assign: %v", err)
	}

	clk.now = t0.Add(30 * time.Hour)
	dec, err := coord.CanAcceptPost(ctx, "g1", "a1", pol)
	if err != nil {
		t.Fatalf("can accept: %v", err)
	}
	if dec.CanPost {
		t.Fatal("expected denial during initial delay")
	}
	if dec.Reason != DenyInitialDelay {
		t.Fatalf("unexpected reason: %s", dec.Reason)
	}
	if dec.Wait != 18*time.Hour {
		t.Fatalf("expected 18h wait, got %v", dec.Wait)
	}
	if dec.WaitMinutes() != 18*60 {
		t.Fatalf("expected %d wait minutes, got %d", 18*60, dec.WaitMinutes())
	}
}

func TestRampPhaseLimitAndInterval(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	coord, clk, _ := newTestCoordinator(t0)
	pol := testPolicy()

	if err := coord.AssignAccount(ctx, "g1", "a1", pol); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Into phase_1 (max 2 posts, 72h spacing).
	clk.now = t0.Add(50 * time.Hour)
	if ok, err := coord.RecordPost(ctx, "g1", "a1", "v1", nil, pol); err != nil || !ok {
		t.Fatalf("record 1: ok=%v err=%v", ok, err)
	}

	clk.now = clk.now.Add(time.Hour)
	dec, err := coord.CanAcceptPost(ctx, "g1", "a1", pol)
	if err != nil {
		t.Fatalf("can accept: %v", err)
	}
	if dec.CanPost || dec.Reason != DenyRampInterval {
		t.Fatalf("expected ramp interval denial, got %+v", dec)
	}
	if dec.Wait != 71*time.Hour {
		t.Fatalf("expected 71h wait, got %v", dec.Wait)
	}

	// Second post after the spacing elapses.
	clk.now = clk.now.Add(71 * time.Hour)
	if ok, err := coord.RecordPost(ctx, "g1", "a1", "v2", nil, pol); err != nil || !ok {
		t.Fatalf("record 2: ok=%v err=%v", ok, err)
	}

	// Phase limit reached; denial must point at the phase, not the interval.
	clk.now = clk.now.Add(73 * time.Hour)
	dec, err = coord.CanAcceptPost(ctx, "g1", "a1", pol)
	if err != nil {
		t.Fatalf("can accept: %v", err)
	}
	if dec.CanPost || dec.Reason != DenyRampLimit {
		t.Fatalf("expected ramp limit denial, got %+v", dec)
	}
}

func TestDailyCap(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	coord, clk, _ := newTestCoordinator(t0)
	pol := graduatedPolicy(0, 1)

	if err := coord.AssignAccount(ctx, "g1", "a1", pol); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if ok, err := coord.RecordPost(ctx, "g1", "a1", "", nil, pol); err != nil || !ok {
		t.Fatalf("record: ok=%v err=%v", ok, err)
	}

	clk.now = t0.Add(2 * time.Hour)
	dec, err := coord.CanAcceptPost(ctx, "g1", "a1", pol)
	if err != nil {
		t.Fatalf("can accept: %v", err)
	}
	if dec.CanPost || dec.Reason != DenyDailyLimit {
		t.Fatalf("expected daily limit denial, got %+v", dec)
	}

	// Next calendar day the cap resets.
	clk.now = t0.Add(16 * time.Hour) // 01:00 next day
	dec, err = coord.CanAcceptPost(ctx, "g1", "a1", pol)
	if err != nil {
		t.Fatalf("can accept: %v", err)
	}
	if !dec.CanPost {
		t.Fatalf("expected eligibility on the next day, got %+v", dec)
	}
}

func TestGlobalCooldown(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	coord, clk, _ := newTestCoordinator(t0)
	pol := graduatedPolicy(72*time.Hour, 10)

	if err := coord.AssignAccount(ctx, "g1", "a1", pol); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if ok, err := coord.RecordPost(ctx, "g1", "a1", "", nil, pol); err != nil || !ok {
		t.Fatalf("record: ok=%v err=%v", ok, err)
	}

	clk.now = t0.Add(71 * time.Hour)
	dec, err := coord.CanAcceptPost(ctx, "g1", "a1", pol)
	if err != nil {
		t.Fatalf("can accept: %v", err)
	}
	if dec.CanPost || dec.Reason != DenyCooldown {
		t.Fatalf("expected cooldown denial at T+71h, got %+v", dec)
	}
	if dec.Wait != time.Hour {
		t.Fatalf("expected 1h wait, got %v", dec.Wait)
	}

	clk.now = t0.Add(73 * time.Hour)
	dec, err = coord.CanAcceptPost(ctx, "g1", "a1", pol)
	if err != nil {
		t.Fatalf("can accept: %v", err)
	}
	if !dec.CanPost {
		t.Fatalf("expected eligibility at T+73h, got %+v", dec)
	}
}

func TestAssignIdempotentAndUnauthorized(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	coord, _, store := newTestCoordinator(t0)
	pol := graduatedPolicy(0, 10)

	if err := coord.AssignAccount(ctx, "g1", "a1", pol); err != nil {
		t.Fatalf("assign 1: %v", err)
	}
	if err := coord.AssignAccount(ctx, "g1", "a1", pol); err != nil {
		t.Fatalf("assign 2: %v", err)
	}
	st, _, err := store.Get(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(st.AssignedAccounts) != 1 || st.AssignedAccounts[0] != "a1" {
		t.Fatalf("expected single assignment, got %v", st.AssignedAccounts)
	}

	// Unassigned account aborts without mutating anything.
	ok, err := coord.RecordPost(ctx, "g1", "intruder", "v1", nil, pol)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ok {
		t.Fatal("expected unauthorized record to be rejected")
	}
	st2, _, _ := store.Get(ctx, "g1")
	if len(st2.LastPostTimes) != 0 || len(st2.RecentCombos) != 0 {
		t.Fatalf("unauthorized record must not mutate state: %+v", st2)
	}
}

func TestUnassignRevokes(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	coord, _, _ := newTestCoordinator(t0)
	pol := graduatedPolicy(0, 10)

	if err := coord.AssignAccount(ctx, "g1", "a1", pol); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := coord.UnassignAccount(ctx, "g1", "a1"); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	dec, err := coord.CanAcceptPost(ctx, "g1", "a1", pol)
	if err != nil {
		t.Fatalf("can accept: %v", err)
	}
	if dec.CanPost || dec.Reason != DenyUnauthorized {
		t.Fatalf("expected unauthorized after unassign, got %+v", dec)
	}
}

func TestRecordPostUpdatesDerivedState(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	coord, clk, store := newTestCoordinator(t0)
	pol := graduatedPolicy(0, 10)

	if err := coord.AssignAccount(ctx, "g1", "a1", pol); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if ok, err := coord.RecordPost(ctx, "g1", "a1", "v1", []string{"m2", "m1"}, pol); err != nil || !ok {
		t.Fatalf("record 1: ok=%v err=%v", ok, err)
	}
	clk.now = t0.Add(time.Hour)
	if ok, err := coord.RecordPost(ctx, "g1", "a1", "v2", nil, pol); err != nil || !ok {
		t.Fatalf("record 2: ok=%v err=%v", ok, err)
	}

	st, _, err := store.Get(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.GlobalDailyCount != 2 {
		t.Fatalf("expected daily count 2, got %d", st.GlobalDailyCount)
	}
	if len(st.RecentCombos) != 2 {
		t.Fatalf("expected 2 combos, got %d", len(st.RecentCombos))
	}
	// Stored media ids must be canonical.
	if got := st.RecentCombos[1].MediaIDs; len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Fatalf("expected canonicalized media ids, got %v", got)
	}

	dup, err := coord.CheckDuplicate(ctx, "g1", "v1", []string{"m1", "m2"}, pol.Limits.DedupeWindow)
	if err != nil {
		t.Fatalf("check duplicate: %v", err)
	}
	if !dup {
		t.Fatal("expected duplicate via coordinator wrapper")
	}
}

func TestCanAcceptPostMissingGroup(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	coord, _, _ := newTestCoordinator(t0)

	dec, err := coord.CanAcceptPost(ctx, "ghost", "a1", testPolicy())
	if err != nil {
		t.Fatalf("can accept: %v", err)
	}
	if dec.CanPost || dec.Reason != DenyNotFound {
		t.Fatalf("expected not-found denial, got %+v", dec)
	}

	if _, err := coord.RecordPost(ctx, "ghost", "a1", "", nil, testPolicy()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from record, got %v", err)
	}
}

func TestAssignedGroupsInversion(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	coord, _, _ := newTestCoordinator(t0)
	pol := graduatedPolicy(0, 10)

	for _, g := range []string{"g1", "g2"} {
		if err := coord.AssignAccount(ctx, g, "a1", pol); err != nil {
			t.Fatalf("assign: %v", err)
		}
	}
	if err := coord.AssignAccount(ctx, "g2", "a2", pol); err != nil {
		t.Fatalf("assign: %v", err)
	}

	m, err := coord.AssignedGroups(ctx)
	if err != nil {
		t.Fatalf("assigned groups: %v", err)
	}
	if len(m["a1"]) != 2 || len(m["a2"]) != 1 {
		t.Fatalf("unexpected inversion: %v", m)
	}
}
