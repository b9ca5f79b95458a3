package orchestrator

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"seller-data-scheduler/internal/adapter"
	"seller-data-scheduler/internal/models"
)

// resolveCampaignAndAdGroupIDs feeds cross-batch identifiers into the
// dependent jobs of batches 3 and 4. The persisted sponsored-ads
// dataset wins over this run's batch-1 output because it is more
// complete; the in-memory output is the fallback. Never errors: on any
// lookup failure it logs and returns empty slices, and dependent jobs
// run with zero filters (the fetch layer encodes filters only when
// non-empty, so empty means "no results", not "everything").
func (o *Orchestrator) resolveCampaignAndAdGroupIDs(ctx context.Context, outcomes map[string]models.JobOutcome, run models.RunContext) adapter.ResolvedDeps {
	campaigns, adGroups, err := o.adsData.CampaignAndAdGroupIDs(ctx, run.UserID, run.Country, run.Region)
	if err != nil {
		o.log.Warn("persisted sponsored-ads lookup failed, falling back to in-memory output",
			zap.String("user_id", run.UserID), zap.Error(err))
		campaigns, adGroups = nil, nil
	}

	if len(campaigns) == 0 && len(adGroups) == 0 {
		campaigns, adGroups = extractIDsFromOutcomes(outcomes)
	}

	return adapter.ResolvedDeps{
		CampaignIDs: dedupe(campaigns),
		AdGroupIDs:  dedupe(adGroups),
	}
}

// extractIDsFromOutcomes scans in-memory job payloads for campaign and
// ad-group identifiers. Payloads are row slices of string-keyed maps;
// anything else is ignored.
func extractIDsFromOutcomes(outcomes map[string]models.JobOutcome) ([]string, []string) {
	var campaigns, adGroups []string
	for _, outcome := range outcomes {
		if !outcome.Success {
			continue
		}
		rows, ok := outcome.Data.([]any)
		if !ok {
			continue
		}
		for _, raw := range rows {
			row, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if id, ok := row["campaignId"].(string); ok && id != "" {
				campaigns = append(campaigns, id)
			}
			if id, ok := row["adGroupId"].(string); ok && id != "" {
				adGroups = append(adGroups, id)
			}
		}
	}
	return campaigns, adGroups
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	set := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !set[id] {
			set[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
