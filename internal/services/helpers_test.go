// internal/services/helpers_test.go
package services

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lexflow/intake-backend/internal/config"
	"github.com/lexflow/intake-backend/internal/database"
	"github.com/lexflow/intake-backend/internal/taxonomy"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Environment: "test",
		Templating: config.TemplatingConfig{
			RequestTimeout:    5,
			MaxRetries:        3,
			CaseSummaryTmpl:   "tmpl-case-summary",
			AgreementTmpl:     "tmpl-retainer-agreement",
			IssueAddendumTmpl: "tmpl-issue-addendum",
		},
		Email: config.EmailConfig{
			MaxRetries: 2,
		},
		Pipeline: config.PipelineConfig{
			StagingDir:          t.TempDir(),
			MaxJobAttempts:      3,
			MaxUploadRetries:    3,
			UploadRatePerSecond: 100,
		},
	}
}

// seedTaxonomySet publishes the catalog entries the intake fixtures use.
func seedTaxonomySet(t *testing.T, store *taxonomy.Store) {
	t.Helper()
	ctx := context.Background()

	categories := []taxonomy.PublishCategoryRequest{
		{Code: "vermin", Name: "Vermin", Order: 1},
		{Code: "plumbing", Name: "Plumbing", Order: 2},
		{Code: "mold", Name: "Mold and Mildew", Order: 3},
	}
	options := []taxonomy.PublishOptionRequest{
		{CategoryCode: "vermin", Code: "vermin_rats", Name: "Rats or mice", Order: 1},
		{CategoryCode: "vermin", Code: "vermin_roaches", Name: "Cockroaches", Order: 2},
		{CategoryCode: "plumbing", Code: "plumbing_leaks", Name: "Leaking pipes", Order: 1},
		{CategoryCode: "mold", Code: "mold_bathroom", Name: "Bathroom mold", Order: 1},
	}

	for i := range categories {
		_, err := store.PublishCategory(ctx, &categories[i])
		require.NoError(t, err)
	}
	for i := range options {
		_, err := store.PublishOption(ctx, &options[i])
		require.NoError(t, err)
	}
}
