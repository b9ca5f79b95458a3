// Package schedule holds the static day-of-week table mapping weekdays
// to the data-fetch jobs that run on them. The table is pure
// configuration: no I/O, no clock reads, just a union over day groups.
package schedule

import (
	"seller-data-scheduler/internal/models"
)

// Day-of-week values follow time.Weekday: 0=Sunday .. 6=Saturday, UTC.
// Callers supplying a timezone-local weekday risk off-by-one
// misclassification; that conversion is the caller's contract.

// NumBatches is the fixed number of sequential batches per run.
const NumBatches = 4

// dailyGroup runs every day regardless of weekday.
var dailyGroup = []models.ScheduleEntry{
	{JobKey: "performanceReport", Description: "top-line sales and traffic report", Credential: models.CredentialSpApi, DataKey: "performanceReport", Kind: models.KindSpApiReport, BatchIndex: 1, Critical: true},
	{JobKey: "ppcBySku", Description: "sponsored-ads spend by SKU", Credential: models.CredentialAdsApi, DataKey: "ppcBySku", Kind: models.KindAdsReport, BatchIndex: 1},
	{JobKey: "ppcDateWise", Description: "sponsored-ads spend by date", Credential: models.CredentialAdsApi, DataKey: "ppcDateWise", Kind: models.KindAdsReport, BatchIndex: 1},
	{JobKey: "keywordPerformance", Description: "keyword-level ad performance", Credential: models.CredentialAdsApi, DataKey: "keywordPerformance", Kind: models.KindAdsReport, BatchIndex: 1},
	{JobKey: "campaignData", Description: "campaign roster and budgets", Credential: models.CredentialAdsApi, DataKey: "campaignData", Kind: models.KindAdsReport, BatchIndex: 2, Critical: true},
	{JobKey: "inventoryHealth", Description: "FBA inventory health snapshot", Credential: models.CredentialSpApi, DataKey: "inventoryHealth", Kind: models.KindSpApiReport, BatchIndex: 2},
	{JobKey: "feePreview", Description: "estimated FBA fee preview", Credential: models.CredentialSpApi, DataKey: "feePreview", Kind: models.KindSpApiReport, BatchIndex: 2},
	{JobKey: "mcpEconomicsData", Description: "per-SKU economics rollup", Credential: models.CredentialRefreshToken, DataKey: "mcpEconomicsData", Kind: models.KindSpApiReport, BatchIndex: 3, Critical: true},
}

// monWedFriGroup runs on weekdays 1, 3 and 5.
var monWedFriGroup = []models.ScheduleEntry{
	{JobKey: "keywordRecommendations", Description: "suggested keywords per ad group", Credential: models.CredentialAdsApi, DataKey: "keywordRecommendations", Kind: models.KindAdsReport, BatchIndex: 2},
	{JobKey: "adGroupData", Description: "ad-group roster, needs campaign IDs", Credential: models.CredentialAdsApi, DataKey: "adGroupData", Kind: models.KindDependentAdsReport, BatchIndex: 3},
	{JobKey: "negativeKeywords", Description: "negative keywords, needs campaign and ad-group IDs", Credential: models.CredentialAdsApi, DataKey: "negativeKeywords", Kind: models.KindDependentAdsReport, BatchIndex: 4},
	{JobKey: "searchKeywordPerformance", Description: "search-term keyword performance", Credential: models.CredentialAdsApi, DataKey: "searchKeywordPerformance", Kind: models.KindAdsReport, BatchIndex: 4},
}

// sundayGroup runs on weekday 0 only.
var sundayGroup = []models.ScheduleEntry{
	{JobKey: "reimbursementEstimate", Description: "reimbursement estimate from persisted data", Credential: models.CredentialNone, DataKey: "reimbursementEstimate", Kind: models.KindPureCalculation, BatchIndex: 2},
	{JobKey: "complianceReport", Description: "listing compliance report", Credential: models.CredentialSpApi, DataKey: "complianceReport", Kind: models.KindSpApiReport, BatchIndex: 2},
}

// saturdayGroup runs on weekday 6 only.
var saturdayGroup = []models.ScheduleEntry{
	{JobKey: "brandAnalytics", Description: "brand analytics search terms", Credential: models.CredentialSpApi, DataKey: "brandAnalytics", Kind: models.KindSpApiReport, BatchIndex: 3},
	{JobKey: "shipmentStatus", Description: "inbound shipment status", Credential: models.CredentialSpApi, DataKey: "shipmentStatus", Kind: models.KindSpApiReport, BatchIndex: 3},
}

// otherDaysGroup runs on weekdays 0, 2, 4 and 6. On Sunday and Saturday
// it is merged alongside the dedicated groups; the union is intentional.
var otherDaysGroup = []models.ScheduleEntry{
	{JobKey: "productReviews", Description: "recent product reviews", Credential: models.CredentialSpApi, DataKey: "productReviews", Kind: models.KindSpApiReport, BatchIndex: 2},
	{JobKey: "mcpBuyBoxData", Description: "buy-box ownership snapshot", Credential: models.CredentialRefreshToken, DataKey: "mcpBuyBoxData", Kind: models.KindSpApiReport, BatchIndex: 3},
}

// ForDay returns the job set scheduled for the given weekday. The
// result starts from the daily group and merges the day-specific
// groups on top; if two groups ever carry the same job key the last
// merge wins (map semantics are the authoritative tie-break).
func ForDay(dayOfWeek int) map[string]models.ScheduleEntry {
	out := make(map[string]models.ScheduleEntry, len(dailyGroup)+8)
	merge(out, dailyGroup)
	switch dayOfWeek {
	case 1, 3, 5:
		merge(out, monWedFriGroup)
	case 0:
		merge(out, sundayGroup)
	case 6:
		merge(out, saturdayGroup)
	}
	switch dayOfWeek {
	case 0, 2, 4, 6:
		merge(out, otherDaysGroup)
	}
	return out
}

// ShouldRun reports whether the given job key is scheduled on the day.
func ShouldRun(jobKey string, dayOfWeek int) bool {
	_, ok := ForDay(dayOfWeek)[jobKey]
	return ok
}

// CriticalSet returns the data keys whose failure flips the run's
// overall verdict to false.
func CriticalSet() map[string]bool {
	out := make(map[string]bool)
	for _, e := range dailyGroup {
		if e.Critical {
			out[e.DataKey] = true
		}
	}
	return out
}

func merge(dst map[string]models.ScheduleEntry, group []models.ScheduleEntry) {
	for _, e := range group {
		dst[e.JobKey] = e
	}
}
