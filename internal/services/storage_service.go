// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/lexflow/intake-backend/internal/config"
)

// StorageService stages rendered documents on local disk and uploads
// them to the object store. Staging is the durability boundary between
// rendering and upload: a document whose upload fails keeps its staged
// file so only the upload is ever repeated. Uploads go through a rate
// limiter sized to the object store's concurrency limits.
type StorageService struct {
	s3Client *s3.S3
	config   *config.Config
	limiter  *rate.Limiter

	// uploadFunc is swappable for tests.
	uploadFunc func(ctx context.Context, key string, data []byte, contentType string) (*UploadResult, error)
}

type UploadResult struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	limiter := rate.NewLimiter(rate.Limit(cfg.Pipeline.UploadRatePerSecond), cfg.Pipeline.UploadRatePerSecond)

	if cfg.AWS.AccessKeyID == "" {
		// Return service without S3 for local development
		return &StorageService{config: cfg, limiter: limiter}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   cfg,
		limiter:  limiter,
	}, nil
}

// StageDocument writes rendered bytes durably under the staging
// directory and returns the staged path.
func (s *StorageService) StageDocument(caseID uuid.UUID, filename string, data []byte) (string, error) {
	dir := filepath.Join(s.config.Pipeline.StagingDir, caseID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	path := filepath.Join(dir, filename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write staged document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to finalize staged document: %w", err)
	}

	return path, nil
}

// ReadStaged loads a previously staged document for an upload retry.
func (s *StorageService) ReadStaged(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read staged document: %w", err)
	}
	return data, nil
}

// UploadDocument puts the document at the given key. Overwrite by path
// is idempotent, which is what makes redelivered jobs safe. Transport
// and 5xx errors are transient; access/configuration errors are
// terminal.
func (s *StorageService) UploadDocument(ctx context.Context, key string, data []byte, contentType string) (*UploadResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &TransientDependencyError{Dependency: "storage", Err: err}
	}

	if s.uploadFunc != nil {
		return s.uploadFunc(ctx, key, data, contentType)
	}

	if s.s3Client == nil {
		// Local development: the staged file already is the artifact.
		logrus.WithField("key", key).Info("S3 not configured, skipping upload")
		return &UploadResult{Key: key, URL: "file://" + key}, nil
	}

	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return nil, classifyS3Error(err)
	}

	return &UploadResult{
		Key: key,
		URL: s.getS3URL(key),
	}, nil
}

// GeneratePresignedURL returns a time-limited download link for an
// uploaded document, used by the operator status endpoint.
func (s *StorageService) GeneratePresignedURL(key string, expiration time.Duration) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("S3 client not configured")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url, nil
}

// DocumentKey builds the hierarchical object key for one generated
// document. The key is a pure function of (case, type, party) so a
// redelivered job overwrites its own object instead of duplicating it.
func (s *StorageService) DocumentKey(caseID uuid.UUID, documentType string, partyOrdinal int) string {
	if partyOrdinal > 0 {
		return fmt.Sprintf("cases/%s/%s-plaintiff-%d.pdf", caseID, documentType, partyOrdinal)
	}
	return fmt.Sprintf("cases/%s/%s.pdf", caseID, documentType)
}

func (s *StorageService) getS3URL(key string) string {
	if s.config.AWS.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", s.config.AWS.CloudFrontURL, key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.config.AWS.S3Bucket, s.config.AWS.Region, key)
}

func classifyS3Error(err error) error {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case "RequestTimeout", "SlowDown", "InternalError", "ServiceUnavailable", "RequestCanceled":
			return &TransientDependencyError{Dependency: "storage", Err: err}
		case "AccessDenied", "NoSuchBucket", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return &TerminalDependencyError{Dependency: "storage", Err: err}
		}
	}
	// Unclassified errors are treated as transient; the bounded retry
	// ceiling keeps that from looping forever.
	return &TransientDependencyError{Dependency: "storage", Err: err}
}
