package planner

import (
	"context"

	"groupcast/internal/groupstate"

	logx "groupcast/pkg/logx"
)

// candidate is one account and the groups currently willing to accept a
// post from it.
type candidate struct {
	accountID string
	groups    []string
}

// buildPool asks the coordinator which (account, group) pairs are eligible
// right now. Accounts with zero available groups are dropped. NotFound and
// Unauthorized are recovered here as "not eligible"; they only affect pool
// membership, never abort the run.
func (g *Generator) buildPool(ctx context.Context, in Inputs, pol groupstate.Policy, stats *Stats) ([]candidate, error) {
	var pool []candidate
	for _, acc := range in.Accounts {
		if !acc.CanPost {
			continue
		}
		var avail []string
		for _, groupID := range in.AssignedGroups[acc.ID] {
			dec, err := g.elig.CanAcceptPost(ctx, groupID, acc.ID, pol)
			if err != nil {
				// Storage trouble is transient; surface it so the
				// caller can retry the whole pass later.
				return nil, err
			}
			if dec.CanPost {
				avail = append(avail, groupID)
				continue
			}
			switch {
			case dec.Reason.RampRelated():
				stats.SkippedRampUp++
			case dec.Reason.RateLimitRelated():
				stats.SkippedRateLimit++
			}
			g.log.Debug("group not eligible",
				logx.String("account", acc.ID),
				logx.String("group", groupID),
				logx.String("reason", string(dec.Reason)),
				logx.Int("wait_minutes", dec.WaitMinutes()))
		}
		if len(avail) == 0 {
			continue
		}
		stats.TotalCandidates += len(avail)
		pool = append(pool, candidate{accountID: acc.ID, groups: avail})
	}
	return pool, nil
}
