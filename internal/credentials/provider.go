// Package credentials resolves long-lived refresh tokens into the
// short-lived access tokens and temporary cloud credentials a
// scheduled run needs before any job dispatches.
package credentials

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"seller-data-scheduler/internal/fetch"
	"seller-data-scheduler/internal/models"
)

// CredentialError marks a fatal credential-resolution failure. Runs
// abort before any batch when this surfaces from setup.
type CredentialError struct {
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credentials: %s: %v", e.Reason, e.Err)
	}
	return "credentials: " + e.Reason
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TokenExchanger swaps a long-lived refresh token for an access token.
// Implemented by the LWA client; faked in tests.
type TokenExchanger interface {
	Exchange(ctx context.Context, refreshToken string) (string, error)
}

// stsAPI is the slice of the STS client the provider uses.
type stsAPI interface {
	GetSessionToken(ctx context.Context, params *sts.GetSessionTokenInput, optFns ...func(*sts.Options)) (*sts.GetSessionTokenOutput, error)
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Tokens holds the per-domain access tokens for one run. Either field
// may be empty when the matching refresh token was absent.
type Tokens struct {
	AccessToken    string
	AdsAccessToken string
}

// Provider resolves cloud credentials and access tokens, and records
// resolved tokens in the run's TokenStore so adapters can read them
// without re-threading parameters.
type Provider struct {
	sp         TokenExchanger
	ads        TokenExchanger
	sts        stsAPI
	roleARN    string
	sessionTTL int32
	store      *TokenStore
	log        *zap.Logger
}

// NewProvider wires the provider. store may be nil in tests that only
// exercise resolution.
func NewProvider(sp, ads TokenExchanger, stsClient stsAPI, roleARN string, sessionTTLSeconds int32, store *TokenStore, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{
		sp:         sp,
		ads:        ads,
		sts:        stsClient,
		roleARN:    roleARN,
		sessionTTL: sessionTTLSeconds,
		store:      store,
		log:        log,
	}
}

// ResolveCloudCredentials obtains temporary credentials for the report
// archive via STS. Every field must be present in the response.
func (p *Provider) ResolveCloudCredentials(ctx context.Context, region string) (models.CloudCredentials, error) {
	if p.sts == nil {
		return models.CloudCredentials{}, &CredentialError{Reason: "no STS client configured"}
	}

	var creds models.CloudCredentials
	if p.roleARN != "" {
		out, err := p.sts.AssumeRole(ctx, &sts.AssumeRoleInput{
			RoleArn:         aws.String(p.roleARN),
			RoleSessionName: aws.String("scheduled-fetch-" + region),
			DurationSeconds: aws.Int32(p.sessionTTL),
		})
		if err != nil {
			return models.CloudCredentials{}, &CredentialError{Reason: "assume role", Err: err}
		}
		if out.Credentials == nil {
			return models.CloudCredentials{}, &CredentialError{Reason: "assume role returned no credentials"}
		}
		creds = models.CloudCredentials{
			AccessKey:    aws.ToString(out.Credentials.AccessKeyId),
			SecretKey:    aws.ToString(out.Credentials.SecretAccessKey),
			SessionToken: aws.ToString(out.Credentials.SessionToken),
		}
	} else {
		out, err := p.sts.GetSessionToken(ctx, &sts.GetSessionTokenInput{
			DurationSeconds: aws.Int32(p.sessionTTL),
		})
		if err != nil {
			return models.CloudCredentials{}, &CredentialError{Reason: "get session token", Err: err}
		}
		if out.Credentials == nil {
			return models.CloudCredentials{}, &CredentialError{Reason: "session token response had no credentials"}
		}
		creds = models.CloudCredentials{
			AccessKey:    aws.ToString(out.Credentials.AccessKeyId),
			SecretKey:    aws.ToString(out.Credentials.SecretAccessKey),
			SessionToken: aws.ToString(out.Credentials.SessionToken),
		}
	}

	if creds.AccessKey == "" || creds.SecretKey == "" || creds.SessionToken == "" {
		return models.CloudCredentials{}, &CredentialError{Reason: "incomplete credentials in STS response"}
	}
	return creds, nil
}

// ResolveTokens exchanges both refresh tokens independently and
// concurrently. One domain failing never blocks the other; the call
// errors only when every requested exchange failed. Resolved tokens
// are registered in the TokenStore keyed by user.
func (p *Provider) ResolveTokens(ctx context.Context, userID, spRefreshToken, adsRefreshToken string) (Tokens, error) {
	var (
		wg     sync.WaitGroup
		tokens Tokens
		spErr  error
		adsErr error
	)

	requested := 0
	if spRefreshToken != "" {
		requested++
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens.AccessToken, spErr = p.sp.Exchange(ctx, spRefreshToken)
		}()
	}
	if adsRefreshToken != "" {
		requested++
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens.AdsAccessToken, adsErr = p.ads.Exchange(ctx, adsRefreshToken)
		}()
	}
	wg.Wait()

	if spErr != nil {
		p.log.Warn("sp-api token resolution failed", zap.String("user_id", userID), zap.Error(spErr))
		tokens.AccessToken = ""
	}
	if adsErr != nil {
		p.log.Warn("ads token resolution failed", zap.String("user_id", userID), zap.Error(adsErr))
		tokens.AdsAccessToken = ""
	}

	failed := 0
	if spErr != nil {
		failed++
	}
	if adsErr != nil {
		failed++
	}
	if requested > 0 && failed == requested {
		return Tokens{}, &CredentialError{Reason: "all token resolutions failed", Err: errors.CombineErrors(spErr, adsErr)}
	}

	if p.store != nil {
		if err := p.store.Put(ctx, userID, tokens.AccessToken, tokens.AdsAccessToken); err != nil {
			// Adapters fall back to the RunContext copy, so a cache
			// write failure degrades to a log line.
			p.log.Warn("token store write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return tokens, nil
}

// ReleaseTokens drops the user's cached tokens once a run finishes, so
// a later run starts from a fresh resolution instead of a stale entry.
func (p *Provider) ReleaseTokens(ctx context.Context, userID string) error {
	if p.store == nil {
		return nil
	}
	return p.store.Clear(ctx, userID)
}

// MakeRefreshCallback returns a closure a long-polling job can call to
// obtain a fresh Ads access token mid-operation without restarting the
// run. The refreshed token also lands in the TokenStore.
func (p *Provider) MakeRefreshCallback(userID, adsRefreshToken string) fetch.RefreshFunc {
	return func(ctx context.Context) (string, error) {
		if adsRefreshToken == "" {
			return "", errors.New("no ads refresh token available")
		}
		token, err := p.ads.Exchange(ctx, adsRefreshToken)
		if err != nil {
			return "", errors.Wrap(err, "refresh ads access token")
		}
		if p.store != nil {
			if err := p.store.SetAdsAccessToken(ctx, userID, token); err != nil {
				p.log.Warn("token store refresh write failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
		return token, nil
	}
}
