// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	AWS         AWSConfig
	Templating  TemplatingConfig
	Email       EmailConfig
	Pipeline    PipelineConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

type TemplatingConfig struct {
	BaseURL            string
	APIKey             string
	RequestTimeout     int // per-call timeout in seconds
	MaxRetries         int
	CaseSummaryTmpl    string
	AgreementTmpl      string
	IssueAddendumTmpl  string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
	MaxRetries   int
}

type PipelineConfig struct {
	WorkerCount             int
	PollInterval            int // seconds
	StagingDir              string
	MaxJobAttempts          int
	JobRetryDelay           int // seconds
	StaleJobAfter           int // seconds
	MaxUploadRetries        int
	UploadRatePerSecond     int
	ContinueOnUploadFailure bool
	TaxonomyCacheTTL        int // seconds; documented staleness bound
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "legal_intake"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "legal-intake-documents"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
		},
		Templating: TemplatingConfig{
			BaseURL:           getEnv("TEMPLATING_BASE_URL", ""),
			APIKey:            getEnv("TEMPLATING_API_KEY", ""),
			RequestTimeout:    getEnvAsInt("TEMPLATING_REQUEST_TIMEOUT", 30),
			MaxRetries:        getEnvAsInt("TEMPLATING_MAX_RETRIES", 3),
			CaseSummaryTmpl:   getEnv("TEMPLATING_CASE_SUMMARY_TEMPLATE", "case-summary-v1"),
			AgreementTmpl:     getEnv("TEMPLATING_AGREEMENT_TEMPLATE", "retainer-agreement-v1"),
			IssueAddendumTmpl: getEnv("TEMPLATING_ISSUE_ADDENDUM_TEMPLATE", "issue-addendum-v1"),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@lexflow.legal"),
			FromName:     getEnv("FROM_NAME", "LexFlow Intake"),
			MaxRetries:   getEnvAsInt("EMAIL_MAX_RETRIES", 3),
		},
		Pipeline: PipelineConfig{
			WorkerCount:             getEnvAsInt("PIPELINE_WORKER_COUNT", 4),
			PollInterval:            getEnvAsInt("PIPELINE_POLL_INTERVAL", 1),
			StagingDir:              getEnv("PIPELINE_STAGING_DIR", "/var/lib/lexflow/staging"),
			MaxJobAttempts:          getEnvAsInt("PIPELINE_MAX_JOB_ATTEMPTS", 5),
			JobRetryDelay:           getEnvAsInt("PIPELINE_JOB_RETRY_DELAY", 30),
			StaleJobAfter:           getEnvAsInt("PIPELINE_STALE_JOB_AFTER", 120),
			MaxUploadRetries:        getEnvAsInt("PIPELINE_MAX_UPLOAD_RETRIES", 3),
			UploadRatePerSecond:     getEnvAsInt("PIPELINE_UPLOAD_RATE_PER_SECOND", 5),
			ContinueOnUploadFailure: getEnvAsBool("PIPELINE_CONTINUE_ON_UPLOAD_FAILURE", false),
			TaxonomyCacheTTL:        getEnvAsInt("TAXONOMY_CACHE_TTL", 60),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Templating.BaseURL == "" && c.Environment == "production" {
		return fmt.Errorf("templating service URL is required in production")
	}

	if c.Pipeline.WorkerCount < 1 {
		return fmt.Errorf("pipeline worker count must be at least 1")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
