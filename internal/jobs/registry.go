// Package jobs binds the schedule table's job keys to concrete report
// fetchers. Each function satisfies the adapter's JobFunc contract;
// the orchestrator never sees these directly.
package jobs

import (
	"context"
	"net/url"
	"strings"
	"time"

	"seller-data-scheduler/internal/adapter"
	"seller-data-scheduler/internal/config"
	"seller-data-scheduler/internal/fetch"
	"seller-data-scheduler/internal/store"
)

// reportPaths maps job keys to their report endpoints. The path is the
// only per-job variance for plain report fetches; anything needing a
// different shape gets its own function below.
var reportPaths = map[string]string{
	"performanceReport":        "/reports/performance",
	"inventoryHealth":          "/reports/inventory-health",
	"feePreview":               "/reports/fee-preview",
	"complianceReport":         "/reports/compliance",
	"productReviews":           "/reports/product-reviews",
	"brandAnalytics":           "/reports/brand-analytics",
	"shipmentStatus":           "/reports/shipments",
	"mcpEconomicsData":         "/reports/economics",
	"mcpBuyBoxData":            "/reports/buybox",
	"ppcBySku":                 "/ads/reports/ppc-by-sku",
	"ppcDateWise":              "/ads/reports/ppc-by-date",
	"keywordPerformance":       "/ads/reports/keyword-performance",
	"campaignData":             "/ads/campaigns",
	"keywordRecommendations":   "/ads/keyword-recommendations",
	"adGroupData":              "/ads/ad-groups",
	"negativeKeywords":         "/ads/negative-keywords",
	"searchKeywordPerformance": "/ads/reports/search-keywords",
}

// BuildRegistry wires a job function per schedulable key.
func BuildRegistry(cfg config.Config, sp *fetch.Client, ads *fetch.Client, st *store.Store) adapter.Registry {
	reg := adapter.Registry{}
	for key, path := range reportPaths {
		if strings.HasPrefix(path, "/ads/") {
			reg[key] = adsReportJob(cfg, ads, path)
		} else {
			reg[key] = spReportJob(cfg, sp, path)
		}
	}
	reg["reimbursementEstimate"] = reimbursementJob(st)
	return reg
}

// spReportJob polls an SP-API style asynchronous report to completion.
func spReportJob(cfg config.Config, client *fetch.Client, path string) adapter.JobFunc {
	return func(ctx context.Context, args adapter.Args) (any, error) {
		query := url.Values{}
		query.Set("sellerId", args.SellerID)
		query.Set("startDate", args.StartDate.Format("2006-01-02"))
		query.Set("endDate", args.EndDate.Format("2006-01-02"))
		for _, id := range args.MarketplaceIDs {
			query.Add("marketplaceIds", id)
		}
		return fetch.Poll(ctx, fetch.PollOptions{
			AccessToken: args.AccessToken,
			MaxAttempts: cfg.PollMaxAttempts,
			Interval:    cfg.PollInterval,
			Do: func(ctx context.Context, token string) (bool, any, error) {
				body, err := client.GetJSON(ctx, path, query, token)
				if err != nil {
					return false, nil, err
				}
				if status, _ := body["processingStatus"].(string); status == "IN_PROGRESS" || status == "IN_QUEUE" {
					return false, nil, nil
				}
				return true, body["data"], nil
			},
		})
	}
}

// adsReportJob fetches from the Ads API, refreshing the token mid-poll
// when it expires.
func adsReportJob(cfg config.Config, client *fetch.Client, path string) adapter.JobFunc {
	return func(ctx context.Context, args adapter.Args) (any, error) {
		query := url.Values{}
		query.Set("profileId", args.ProfileID)
		query.Set("startDate", args.StartDate.Format("2006-01-02"))
		query.Set("endDate", args.EndDate.Format("2006-01-02"))
		// Filters encode only when non-empty; an empty slice means "no
		// results" downstream, never "everything".
		for _, id := range args.CampaignIDs {
			query.Add("campaignIds", id)
		}
		for _, id := range args.AdGroupIDs {
			query.Add("adGroupIds", id)
		}
		return fetch.Poll(ctx, fetch.PollOptions{
			AccessToken: args.AdsAccessToken,
			Refresh:     args.RefreshCallback,
			MaxAttempts: cfg.PollMaxAttempts,
			Interval:    cfg.PollInterval,
			Do: func(ctx context.Context, token string) (bool, any, error) {
				body, err := client.GetJSON(ctx, path, query, token)
				if err != nil {
					return false, nil, err
				}
				if status, _ := body["status"].(string); status == "PENDING" || status == "PROCESSING" {
					return false, nil, nil
				}
				return true, body["data"], nil
			},
		})
	}
}

// reimbursementJob is a pure calculation over data persisted by
// earlier runs; it touches no external API.
func reimbursementJob(st *store.Store) adapter.JobFunc {
	return func(ctx context.Context, args adapter.Args) (any, error) {
		since := time.Now().UTC().AddDate(0, 0, -90)
		total, err := st.SumFeeEvents(ctx, args.UserID, args.Country, since)
		if err != nil {
			return fetch.Result{Success: false, Message: err.Error()}, nil
		}
		return map[string]any{
			"estimatedReimbursement": total,
			"windowDays":             90,
		}, nil
	}
}
