package groupstate

import (
	"slices"
	"time"
)

// CanonicalMediaIDs returns a sorted copy of ids. Media lists are always
// canonicalized before storage or comparison so duplicate detection is
// order-independent.
func CanonicalMediaIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

// IsDuplicate reports whether the group already accepted the given
// (text variant, media set) combination within the trailing window.
//
// Media equality is positional over the canonicalized lists; callers must
// canonicalize (or pass through CanonicalMediaIDs, as done here) so storage
// round-trip reordering cannot cause false negatives.
func IsDuplicate(st *GroupState, textVariantID string, mediaIDs []string, window time.Duration, now time.Time) bool {
	canon := CanonicalMediaIDs(mediaIDs)
	cutoff := now.Add(-window)
	for _, c := range st.RecentCombos {
		if c.PostedAt.Before(cutoff) {
			continue
		}
		if c.TextVariantID != textVariantID {
			continue
		}
		if slices.Equal(c.MediaIDs, canon) {
			return true
		}
	}
	return false
}
