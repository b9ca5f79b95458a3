package models

import (
	"time"
)

// Credential enumerates the credential kinds a scheduled job can require.
type Credential string

const (
	CredentialNone         Credential = "none"
	CredentialSpApi        Credential = "sp_api"
	CredentialAdsApi       Credential = "ads_api"
	CredentialRefreshToken Credential = "refresh_token"
)

// JobKind tags the calling convention of a scheduled job so the adapter
// can build arguments without dispatching on the job key string.
type JobKind string

const (
	KindSpApiReport        JobKind = "sp_api_report"
	KindAdsReport          JobKind = "ads_report"
	KindDependentAdsReport JobKind = "dependent_ads_report"
	KindPureCalculation    JobKind = "pure_calculation"
)

// ScheduleEntry is one row of the static day-of-week schedule table.
// Entries are defined at process start and never mutated.
type ScheduleEntry struct {
	JobKey      string     `json:"job_key"`
	Description string     `json:"description"`
	Credential  Credential `json:"credential"`
	DataKey     string     `json:"data_key"`
	Kind        JobKind    `json:"kind"`
	BatchIndex  int        `json:"batch_index"`
	Critical    bool       `json:"critical"`
}

// CloudCredentials are short-lived credentials for the report archive.
type CloudCredentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
}

// RunContext carries everything one orchestrator invocation needs.
// It is owned by exactly one run and never shared across users.
type RunContext struct {
	UserID          string
	Country         string
	Region          string
	DayOfWeek       int
	AccessToken     string
	AdsAccessToken  string
	RefreshToken    string
	AdsRefreshToken string
	ProfileID       string
	SellerID        string
	MarketplaceIDs  []string
	CloudCreds      CloudCredentials
	StartDate       time.Time
	EndDate         time.Time
}

// JobOutcome is the normalized per-job result. Raw job returns of any
// shape collapse into this record.
type JobOutcome struct {
	JobKey  string `json:"job_key"`
	DataKey string `json:"data_key"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TrackingEntry lifecycle states persisted in Postgres.
const (
	TrackingPending   = "pending"
	TrackingCompleted = "completed"
	TrackingPartial   = "partial"
	TrackingFailed    = "failed"
)

// TrackingEntry is the audit record for one scheduled run.
type TrackingEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Country      string    `json:"country"`
	Region       string    `json:"region"`
	DayName      string    `json:"day_name"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FailedService pairs a data key with the error that sank it.
type FailedService struct {
	Service string `json:"service"`
	Error   string `json:"error"`
}

// ServiceSummary is the aggregate verdict over one run's job outcomes.
type ServiceSummary struct {
	Successful        []string        `json:"successful"`
	Failed            []FailedService `json:"failed"`
	CriticalFailures  []string        `json:"critical_failures"`
	TotalServices     int             `json:"total_services"`
	OverallSuccess    bool            `json:"overall_success"`
	SuccessPercentage int             `json:"success_percentage"`
}

// RunResult is what the orchestrator entrypoint hands back to callers.
type RunResult struct {
	Success    bool                  `json:"success"`
	StatusCode int                   `json:"status_code"`
	Data       map[string]JobOutcome `json:"data,omitempty"`
	Error      string                `json:"error,omitempty"`
	Summary    *ServiceSummary       `json:"summary,omitempty"`
}

// SellerAccount is the persisted account row a run resolves before
// touching any external API.
type SellerAccount struct {
	UserID           string    `json:"user_id"`
	Country          string    `json:"country"`
	Region           string    `json:"region"`
	SellerID         string    `json:"seller_id"`
	ProfileID        string    `json:"profile_id"`
	MarketplaceIDs   []string  `json:"marketplace_ids"`
	SpRefreshToken   string    `json:"-"`
	AdsRefreshToken  string    `json:"-"`
	NotifyOnAnalysis bool      `json:"notify_on_analysis"`
	TrackingEnabled  bool      `json:"tracking_enabled"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}
