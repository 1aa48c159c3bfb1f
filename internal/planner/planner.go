package planner

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"groupcast/internal/directory"
	"groupcast/internal/groupstate"

	logx "groupcast/pkg/logx"
)

// Generator produces posting schedules. One Generator may serve many runs;
// each run derives its own RNG so runs stay independent.
type Generator struct {
	elig  Eligibility
	clock groupstate.Clock
	log   logx.Logger
	seed  func() int64
}

func New(elig Eligibility, clock groupstate.Clock, log logx.Logger) *Generator {
	if clock == nil {
		clock = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Generator{
		elig:  elig,
		clock: clock,
		log:   log,
		seed:  func() int64 { return time.Now().UnixNano() },
	}
}

// WithSeed pins the run RNG seed. Tests use this for determinism.
func (g *Generator) WithSeed(seed int64) *Generator {
	cp := *g
	cp.seed = func() int64 { return seed }
	return &cp
}

// Generate runs one full scheduling pass: validate inventory, build the
// candidate pool, lay out time slots, then greedily assign.
func (g *Generator) Generate(ctx context.Context, in Inputs, cfg Config, pol groupstate.Policy) (*Plan, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := validateInventory(in); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(g.seed()))
	now := g.clock()

	plan := &Plan{}
	pool, err := g.buildPool(ctx, in, pol, &plan.Stats)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		g.log.Info("no eligible account/group pairs this run",
			logx.Int("skipped_ramp_up", plan.Stats.SkippedRampUp),
			logx.Int("skipped_rate_limit", plan.Stats.SkippedRateLimit))
		return plan, nil
	}

	slots := generateSlots(now, cfg, rng)

	templates := make([]directory.Template, len(in.Templates))
	copy(templates, in.Templates)
	rng.Shuffle(len(templates), func(i, j int) { templates[i], templates[j] = templates[j], templates[i] })

	g.assign(ctx, plan, pool, slots, templates, in, cfg, pol, rng)

	g.log.Info("schedule generated",
		logx.Int("slots", len(slots)),
		logx.Int("planned", plan.Stats.SuccessfulPosts),
		logx.Int("candidates", plan.Stats.TotalCandidates),
		logx.Int("warnings", len(plan.Warnings)))
	return plan, nil
}

func validateInventory(in Inputs) error {
	var missing []string
	if len(in.Accounts) == 0 {
		missing = append(missing, "no active accounts")
	}
	assigned := 0
	for _, groups := range in.AssignedGroups {
		assigned += len(groups)
	}
	if assigned == 0 {
		missing = append(missing, "no groups assigned to any account")
	}
	usable := 0
	for _, t := range in.Templates {
		if len(t.Variants) > 0 {
			usable++
		}
	}
	if usable == 0 {
		missing = append(missing, "no templates with text variants")
	}
	if len(missing) > 0 {
		return &InsufficientInventoryError{Missing: missing}
	}
	return nil
}

// assign fills slots greedily. Accounts rotate round-robin starting after
// the last successfully assigned one, so back-to-back slots prefer
// different accounts. Within an account the first not-yet-used group wins;
// a duplicate-content hit moves on to the account's next group, not the
// next account. A slot that survives a full pool cycle unassigned is
// recorded as a warning and skipped, never retried.
func (g *Generator) assign(
	ctx context.Context,
	plan *Plan,
	pool []candidate,
	slots []time.Time,
	templates []directory.Template,
	in Inputs,
	cfg Config,
	pol groupstate.Policy,
	rng *rand.Rand,
) {
	usedGroups := map[string]bool{}
	perAccount := map[string]int{}
	lastAssigned := -1
	tplIdx := 0

	for _, slot := range slots {
		filled := false

		for step := 1; step <= len(pool) && !filled; step++ {
			idx := (lastAssigned + step) % len(pool)
			cand := pool[idx]

			if cfg.MaxGroupsPerAccount > 0 && perAccount[cand.accountID] >= cfg.MaxGroupsPerAccount {
				continue
			}

			for _, groupID := range cand.groups {
				if usedGroups[groupID] {
					continue
				}

				tpl, variant, ok := nextVariant(templates, &tplIdx, rng)
				if !ok {
					break
				}
				media := selectMedia(tpl, in.Media, cfg.MediaAttachProbability, rng)
				mediaIDs := make([]string, 0, len(media))
				mediaRefs := make([]string, 0, len(media))
				for _, m := range media {
					mediaIDs = append(mediaIDs, m.ID)
					mediaRefs = append(mediaRefs, m.FileRef)
				}
				mediaIDs = groupstate.CanonicalMediaIDs(mediaIDs)

				dup, err := g.elig.CheckDuplicate(ctx, groupID, variant.ID, mediaIDs, pol.Limits.DedupeWindow)
				if err != nil {
					g.log.Warn("duplicate check failed; skipping group this run",
						logx.String("group", groupID), logx.Err(err))
					continue
				}
				if dup {
					plan.Stats.SkippedDuplicate++
					continue
				}

				plan.Combinations = append(plan.Combinations, Combination{
					AccountID:     cand.accountID,
					GroupID:       groupID,
					ChatID:        in.Groups[groupID].ChatID,
					ScheduledAt:   slot,
					TemplateID:    tpl.ID,
					TextVariantID: variant.ID,
					Text:          variant.Body,
					MediaIDs:      mediaIDs,
					MediaRefs:     mediaRefs,
				})
				usedGroups[groupID] = true
				perAccount[cand.accountID]++
				lastAssigned = idx
				plan.Stats.SuccessfulPosts++
				filled = true
				break
			}
		}

		if !filled {
			plan.Warnings = append(plan.Warnings,
				fmt.Sprintf("slot %s left unfilled: no eligible account/group pair", slot.Format(time.RFC3339)))
		}
	}
}

// nextVariant advances the template round-robin and picks a random text
// variant from the selected template. Templates without variants are
// skipped.
func nextVariant(templates []directory.Template, tplIdx *int, rng *rand.Rand) (directory.Template, directory.TextVariant, bool) {
	for tries := 0; tries < len(templates); tries++ {
		tpl := templates[*tplIdx%len(templates)]
		*tplIdx++
		if len(tpl.Variants) == 0 {
			continue
		}
		return tpl, tpl.Variants[rng.Intn(len(tpl.Variants))], true
	}
	return directory.Template{}, directory.TextVariant{}, false
}
