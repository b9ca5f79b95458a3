// Package archive persists raw job payloads for later reprocessing.
// Archival is fire-and-forget: a failed write is logged, never fatal.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"seller-data-scheduler/internal/config"
	"seller-data-scheduler/internal/models"
)

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Archiver writes one JSON document per successful job outcome, either
// to S3 or a local directory. S3 uploads are signed with the temporary
// credentials resolved for the run, so the uploader is built lazily per
// credential set rather than once at wiring time.
type Archiver struct {
	cfg   config.Config
	local uploader
	log   *zap.Logger

	mu        sync.Mutex
	s3Key     string
	s3Client  uploader
	s3Factory func(ctx context.Context, cfg config.Config, creds models.CloudCredentials) (uploader, error)
}

// New constructs the archiver. The S3 destination is used when a
// bucket is configured; otherwise payloads land under ArchiveDir.
func New(cfg config.Config, log *zap.Logger) *Archiver {
	if log == nil {
		log = zap.NewNop()
	}
	baseDir := cfg.ArchiveDir
	if baseDir == "" {
		baseDir = "./archive"
	}
	return &Archiver{
		cfg:       cfg,
		local:     &localUploader{baseDir: baseDir},
		log:       log,
		s3Factory: newS3Uploader,
	}
}

func newS3Uploader(ctx context.Context, cfg config.Config, creds models.CloudCredentials) (uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ArchiveRegion),
	}
	if creds.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, creds.SessionToken),
		))
	}
	if cfg.ArchiveEndpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.ArchiveEndpoint,
					HostnameImmutable: cfg.ArchivePathStyle,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ArchivePathStyle
	})
	return &s3Uploader{client: client, bucket: cfg.ArchiveBucket}, nil
}

// uploaderFor returns the destination for this credential set. The S3
// uploader is cached until the credentials rotate (each run brings its
// own short-lived set, so the cache key is the credential identity).
func (a *Archiver) uploaderFor(ctx context.Context, creds models.CloudCredentials) (uploader, error) {
	if a.cfg.ArchiveBucket == "" {
		return a.local, nil
	}
	key := creds.AccessKey + "/" + creds.SessionToken

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.s3Client != nil && a.s3Key == key {
		return a.s3Client, nil
	}
	up, err := a.s3Factory(ctx, a.cfg, creds)
	if err != nil {
		return nil, err
	}
	a.s3Key = key
	a.s3Client = up
	return up, nil
}

// StoreOutcome archives one job outcome under a per-run key layout,
// signing with the run's temporary credentials. Errors are logged and
// swallowed; archival never sinks a run.
func (a *Archiver) StoreOutcome(ctx context.Context, userID, sessionID string, creds models.CloudCredentials, outcome models.JobOutcome) {
	if !outcome.Success || outcome.Data == nil {
		return
	}
	body, err := json.Marshal(outcome)
	if err != nil {
		a.log.Warn("archive marshal failed", zap.String("job_key", outcome.JobKey), zap.Error(err))
		return
	}

	key := sanitizeKey(fmt.Sprintf("%s/%s/%s/%s.json",
		userID, time.Now().UTC().Format("2006-01-02"), sessionID, outcome.DataKey))

	up, err := a.uploaderFor(ctx, creds)
	if err != nil {
		a.log.Warn("archive destination unavailable",
			zap.String("job_key", outcome.JobKey),
			zap.Error(err))
		return
	}
	if _, err := up.Upload(ctx, key, body, "application/json"); err != nil {
		a.log.Warn("archive write failed",
			zap.String("job_key", outcome.JobKey),
			zap.String("key", key),
			zap.Error(err))
	}
}

func sanitizeKey(key string) string {
	key = filepath.Clean(key)
	key = strings.TrimPrefix(key, string(filepath.Separator))
	key = strings.TrimPrefix(key, "./")
	return key
}

type localUploader struct {
	baseDir string
}

func (l *localUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	path := filepath.Join(l.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
