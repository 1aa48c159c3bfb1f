package planner

import (
	"math/rand"
	"testing"

	"groupcast/internal/directory"
)

func mediaPool(n int) []directory.Media {
	out := make([]directory.Media, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, directory.Media{ID: string(rune('a' + i)), FileRef: "f"})
	}
	return out
}

func TestSelectMediaHonorsTemplateBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tpl := directory.Template{ID: "t", MinMedia: 2, MaxMedia: 3}

	for i := 0; i < 50; i++ {
		got := selectMedia(tpl, mediaPool(5), 0, rng)
		if len(got) < 2 || len(got) > 3 {
			t.Fatalf("count %d outside [2,3]", len(got))
		}
	}
}

func TestSelectMediaOptionalAttachment(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tpl := directory.Template{ID: "t", MinMedia: 0, MaxMedia: 2}

	// Probability 1 always attaches at least one item.
	for i := 0; i < 20; i++ {
		if got := selectMedia(tpl, mediaPool(4), 1, rng); len(got) == 0 {
			t.Fatal("attach probability 1 must attach media")
		}
	}

	// Roughly the default share of attempts should attach with the default
	// probability; just verify both outcomes occur.
	attached, skipped := 0, 0
	for i := 0; i < 200; i++ {
		if got := selectMedia(tpl, mediaPool(4), defaultMediaAttachProbability, rng); len(got) > 0 {
			attached++
		} else {
			skipped++
		}
	}
	if attached == 0 || skipped == 0 {
		t.Fatalf("expected a mix of outcomes, got attached=%d skipped=%d", attached, skipped)
	}
}

func TestSelectMediaEmptyPool(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tpl := directory.Template{ID: "t", MinMedia: 1, MaxMedia: 2}
	if got := selectMedia(tpl, nil, 0, rng); got != nil {
		t.Fatalf("expected nil for empty media pool, got %v", got)
	}
}

func TestSelectMediaCyclesWhenMinimumExceedsPool(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	// One library item, minimum of three: the item repeats until the
	// template's requirement is met.
	tpl := directory.Template{ID: "t", MinMedia: 3, MaxMedia: 3}
	got := selectMedia(tpl, mediaPool(1), 0, rng)
	if len(got) != 3 {
		t.Fatalf("min_media=3 must yield 3 items, got %d", len(got))
	}
	for _, m := range got {
		if m.ID != "a" {
			t.Fatalf("unexpected item %q from a one-entry pool", m.ID)
		}
	}

	// A range above the pool size still draws from [min, max].
	tpl = directory.Template{ID: "t", MinMedia: 4, MaxMedia: 6}
	for i := 0; i < 20; i++ {
		got = selectMedia(tpl, mediaPool(2), 0, rng)
		if len(got) < 4 || len(got) > 6 {
			t.Fatalf("count %d outside [4,6]", len(got))
		}
	}
}
