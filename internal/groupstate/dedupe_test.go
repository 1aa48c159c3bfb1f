package groupstate

import (
	"testing"
	"time"
)

func TestIsDuplicateOrderIndependent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := &GroupState{GroupID: "g1"}
	st.pushCombo(Combination{
		TextVariantID: "v1",
		MediaIDs:      []string{"m2", "m1"},
		PostedAt:      now.Add(-24 * time.Hour),
		AccountID:     "a1",
	}, 0)

	if !IsDuplicate(st, "v1", []string{"m1", "m2"}, 7*24*time.Hour, now) {
		t.Fatal("expected duplicate regardless of media order")
	}
	if !IsDuplicate(st, "v1", []string{"m2", "m1"}, 7*24*time.Hour, now) {
		t.Fatal("expected duplicate for original order too")
	}
}

func TestIsDuplicateWindowExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := &GroupState{GroupID: "g1"}
	st.pushCombo(Combination{
		TextVariantID: "v1",
		MediaIDs:      []string{"m1"},
		PostedAt:      now.Add(-8 * 24 * time.Hour),
	}, 0)

	if IsDuplicate(st, "v1", []string{"m1"}, 7*24*time.Hour, now) {
		t.Fatal("combination outside the window must not count as duplicate")
	}
	if !IsDuplicate(st, "v1", []string{"m1"}, 9*24*time.Hour, now) {
		t.Fatal("wider window should still match")
	}
}

func TestIsDuplicateDistinguishesVariantAndMedia(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := &GroupState{GroupID: "g1"}
	st.pushCombo(Combination{TextVariantID: "v1", MediaIDs: []string{"m1"}, PostedAt: now}, 0)

	if IsDuplicate(st, "v2", []string{"m1"}, 7*24*time.Hour, now) {
		t.Fatal("different variant is not a duplicate")
	}
	if IsDuplicate(st, "v1", []string{"m1", "m2"}, 7*24*time.Hour, now) {
		t.Fatal("different media set is not a duplicate")
	}
	if IsDuplicate(st, "v1", nil, 7*24*time.Hour, now) {
		t.Fatal("missing media is not a duplicate of a media post")
	}
}

func TestPushComboBoundsAndPruning(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := &GroupState{GroupID: "g1"}
	for i := 0; i < maxRecentCombos+5; i++ {
		st.pushCombo(Combination{
			TextVariantID: "v",
			PostedAt:      now.Add(time.Duration(i) * time.Minute),
		}, 0)
	}
	if len(st.RecentCombos) != maxRecentCombos {
		t.Fatalf("expected %d combos, got %d", maxRecentCombos, len(st.RecentCombos))
	}

	st2 := &GroupState{GroupID: "g2"}
	st2.pushCombo(Combination{TextVariantID: "old", PostedAt: now.Add(-10 * 24 * time.Hour)}, 0)
	st2.pushCombo(Combination{TextVariantID: "new", PostedAt: now}, 7*24*time.Hour)
	if len(st2.RecentCombos) != 1 || st2.RecentCombos[0].TextVariantID != "new" {
		t.Fatalf("expected aged-out combo pruned, got %+v", st2.RecentCombos)
	}
}

func TestPushPostTimeBoundsAndOrder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := &GroupState{GroupID: "g1"}
	for i := 0; i < maxLastPostTimes+3; i++ {
		st.pushPostTime(now.Add(time.Duration(i) * time.Hour))
	}
	if len(st.LastPostTimes) != maxLastPostTimes {
		t.Fatalf("expected %d entries, got %d", maxLastPostTimes, len(st.LastPostTimes))
	}
	for i := 1; i < len(st.LastPostTimes); i++ {
		if st.LastPostTimes[i].After(st.LastPostTimes[i-1]) {
			t.Fatalf("expected descending order at %d", i)
		}
	}
	if !st.LastPostAt().Equal(now.Add(time.Duration(maxLastPostTimes+2) * time.Hour)) {
		t.Fatalf("unexpected newest entry: %v", st.LastPostAt())
	}
}
