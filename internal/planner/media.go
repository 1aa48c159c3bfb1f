package planner

import (
	"math/rand"

	"groupcast/internal/directory"
)

const defaultMediaAttachProbability = 0.7

// selectMedia picks the media subset for one post.
//
// Templates with no minimum requirement get media attached with a fixed
// probability, purely for variety. Otherwise the count is drawn uniformly
// from [min, max]. Items are taken cyclically from a shuffled list, so a
// declared minimum is met even when it exceeds the library size.
func selectMedia(tpl directory.Template, media []directory.Media, attachProb float64, rng *rand.Rand) []directory.Media {
	if len(media) == 0 {
		return nil
	}
	if attachProb <= 0 {
		attachProb = defaultMediaAttachProbability
	}

	count := 0
	switch {
	case tpl.MinMedia <= 0:
		if rng.Float64() >= attachProb {
			return nil
		}
		upper := tpl.MaxMedia
		if upper <= 0 {
			upper = 1
		}
		count = 1 + rng.Intn(upper)
	default:
		upper := tpl.MaxMedia
		if upper < tpl.MinMedia {
			upper = tpl.MinMedia
		}
		count = tpl.MinMedia + rng.Intn(upper-tpl.MinMedia+1)
	}

	shuffled := make([]directory.Media, len(media))
	copy(shuffled, media)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	out := make([]directory.Media, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, shuffled[i%len(shuffled)])
	}
	return out
}
