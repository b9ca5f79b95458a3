package orchestrator

import (
	"math"
	"sort"

	"seller-data-scheduler/internal/models"
)

// Aggregate reduces per-job outcomes into one run verdict. Only jobs
// scheduled today appear in outcomes, so nothing unscheduled can be
// counted as a failure. A run is overall successful iff no critical
// job failed; optional failures only dent the percentage.
func Aggregate(outcomes map[string]models.JobOutcome, critical map[string]bool) models.ServiceSummary {
	summary := models.ServiceSummary{
		Successful: []string{},
		Failed:     []models.FailedService{},
	}

	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		outcome := outcomes[key]
		summary.TotalServices++
		if outcome.Success {
			summary.Successful = append(summary.Successful, key)
			continue
		}
		summary.Failed = append(summary.Failed, models.FailedService{Service: key, Error: outcome.Error})
		if critical[key] {
			summary.CriticalFailures = append(summary.CriticalFailures, key)
		}
	}

	summary.OverallSuccess = len(summary.CriticalFailures) == 0
	if summary.TotalServices > 0 {
		summary.SuccessPercentage = int(math.Round(float64(len(summary.Successful)) / float64(summary.TotalServices) * 100))
	}
	return summary
}
