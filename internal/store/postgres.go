package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"seller-data-scheduler/internal/models"
)

// ErrNotFound marks missing rows so callers can branch on it.
var ErrNotFound = errors.New("store: not found")

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies the persistence layer is reachable before a run starts.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetSellerAccount loads the account row a run resolves in its
// ResolvingSellerAccount stage.
func (s *Store) GetSellerAccount(ctx context.Context, userID string) (models.SellerAccount, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, country, region, seller_id, profile_id, marketplace_ids,
		       sp_refresh_token, ads_refresh_token, notify_on_analysis, tracking_enabled, active, created_at
		FROM sellers WHERE user_id = $1
	`, userID)

	var acct models.SellerAccount
	var spToken, adsToken, profileID pgtype.Text
	if err := row.Scan(&acct.UserID, &acct.Country, &acct.Region, &acct.SellerID, &profileID, &acct.MarketplaceIDs,
		&spToken, &adsToken, &acct.NotifyOnAnalysis, &acct.TrackingEnabled, &acct.Active, &acct.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SellerAccount{}, ErrNotFound
		}
		return models.SellerAccount{}, fmt.Errorf("scan seller: %w", err)
	}
	acct.ProfileID = profileID.String
	acct.SpRefreshToken = spToken.String
	acct.AdsRefreshToken = adsToken.String
	return acct, nil
}

// ListActiveSellers returns every account the daily worker should run.
func (s *Store) ListActiveSellers(ctx context.Context) ([]models.SellerAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, country, region, seller_id, profile_id, marketplace_ids,
		       sp_refresh_token, ads_refresh_token, notify_on_analysis, tracking_enabled, active, created_at
		FROM sellers WHERE active ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query sellers: %w", err)
	}
	defer rows.Close()

	var out []models.SellerAccount
	for rows.Next() {
		var acct models.SellerAccount
		var spToken, adsToken, profileID pgtype.Text
		if err := rows.Scan(&acct.UserID, &acct.Country, &acct.Region, &acct.SellerID, &profileID, &acct.MarketplaceIDs,
			&spToken, &adsToken, &acct.NotifyOnAnalysis, &acct.TrackingEnabled, &acct.Active, &acct.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan seller: %w", err)
		}
		acct.ProfileID = profileID.String
		acct.SpRefreshToken = spToken.String
		acct.AdsRefreshToken = adsToken.String
		out = append(out, acct)
	}
	return out, rows.Err()
}

// StartTracking inserts a pending audit row before batch execution.
func (s *Store) StartTracking(ctx context.Context, userID, country, region, dayName string, startDate, endDate time.Time, sessionID string) (models.TrackingEntry, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_tracking (id, user_id, country, region, day_name, start_date, end_date, status, session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, id, userID, country, region, dayName, startDate, endDate, models.TrackingPending, sessionID, now)
	if err != nil {
		return models.TrackingEntry{}, fmt.Errorf("insert tracking: %w", err)
	}
	return models.TrackingEntry{
		ID:        id,
		UserID:    userID,
		Country:   country,
		Region:    region,
		DayName:   dayName,
		StartDate: startDate,
		EndDate:   endDate,
		Status:    models.TrackingPending,
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CloseTracking transitions the row to its terminal status exactly once.
func (s *Store) CloseTracking(ctx context.Context, id, status string, errorMessage *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE run_tracking
		SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, status, errorMessage, models.TrackingPending)
	if err != nil {
		return fmt.Errorf("close tracking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tracking %s already closed or missing", id)
	}
	return nil
}

// GetTracking fetches one audit row for the API.
func (s *Store) GetTracking(ctx context.Context, id string) (models.TrackingEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, country, region, day_name, start_date, end_date, status, error_message, session_id, created_at, updated_at
		FROM run_tracking WHERE id = $1
	`, id)

	var entry models.TrackingEntry
	var errMsg pgtype.Text
	if err := row.Scan(&entry.ID, &entry.UserID, &entry.Country, &entry.Region, &entry.DayName,
		&entry.StartDate, &entry.EndDate, &entry.Status, &errMsg, &entry.SessionID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TrackingEntry{}, ErrNotFound
		}
		return models.TrackingEntry{}, fmt.Errorf("scan tracking: %w", err)
	}
	if errMsg.Valid {
		entry.ErrorMessage = &errMsg.String
	}
	return entry, nil
}

// CampaignAndAdGroupIDs reads identifiers from the most recently
// persisted sponsored-ads dataset for the user/country/region. The
// dependency resolver prefers this over in-memory batch output because
// the persisted dataset is more complete.
func (s *Store) CampaignAndAdGroupIDs(ctx context.Context, userID, country, region string) ([]string, []string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT campaign_id, ad_group_id
		FROM sponsored_ads
		WHERE user_id = $1 AND country = $2 AND region = $3
		  AND snapshot_date = (
			SELECT MAX(snapshot_date) FROM sponsored_ads
			WHERE user_id = $1 AND country = $2 AND region = $3
		  )
	`, userID, country, region)
	if err != nil {
		return nil, nil, fmt.Errorf("query sponsored ads: %w", err)
	}
	defer rows.Close()

	campaignSet := map[string]bool{}
	adGroupSet := map[string]bool{}
	for rows.Next() {
		var campaignID, adGroupID pgtype.Text
		if err := rows.Scan(&campaignID, &adGroupID); err != nil {
			return nil, nil, fmt.Errorf("scan sponsored ads: %w", err)
		}
		if campaignID.Valid && campaignID.String != "" {
			campaignSet[campaignID.String] = true
		}
		if adGroupID.Valid && adGroupID.String != "" {
			adGroupSet[adGroupID.String] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	campaigns := make([]string, 0, len(campaignSet))
	for id := range campaignSet {
		campaigns = append(campaigns, id)
	}
	adGroups := make([]string, 0, len(adGroupSet))
	for id := range adGroupSet {
		adGroups = append(adGroups, id)
	}
	return campaigns, adGroups, nil
}

// SumFeeEvents totals persisted fee events since a cutoff; the
// reimbursement estimate job runs on this instead of any live API.
func (s *Store) SumFeeEvents(ctx context.Context, userID, country string, since time.Time) (float64, error) {
	var total pgtype.Float8
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM fee_events
		WHERE user_id = $1 AND country = $2 AND occurred_at >= $3 AND reimbursable
	`, userID, country, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum fee events: %w", err)
	}
	return total.Float64, nil
}
