// internal/taxonomy/store_test.go
package taxonomy

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lexflow/intake-backend/internal/database"
	"github.com/lexflow/intake-backend/internal/models"
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

func TestPublishCategoryIdempotent(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	first, err := store.PublishCategory(ctx, &PublishCategoryRequest{
		Code: "vermin", Name: "Vermin", Order: 1,
	})
	require.NoError(t, err)

	// Republishing the same code must keep the original row untouched.
	second, err := store.PublishCategory(ctx, &PublishCategoryRequest{
		Code: "vermin", Name: "Renamed Vermin", Order: 9,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Vermin", second.Name)

	var count int64
	require.NoError(t, db.Model(&models.IssueCategory{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPublishOptionRequiresCategory(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	_, err := store.PublishOption(ctx, &PublishOptionRequest{
		CategoryCode: "nope", Code: "nope_opt", Name: "Nope",
	})
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestPublishOptionIdempotent(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	_, err := store.PublishCategory(ctx, &PublishCategoryRequest{Code: "plumbing", Name: "Plumbing"})
	require.NoError(t, err)

	first, err := store.PublishOption(ctx, &PublishOptionRequest{
		CategoryCode: "plumbing", Code: "plumbing_leaks", Name: "Leaks", Order: 1,
	})
	require.NoError(t, err)

	second, err := store.PublishOption(ctx, &PublishOptionRequest{
		CategoryCode: "plumbing", Code: "plumbing_leaks", Name: "Different", Order: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Leaks", second.Name)
}

func TestResolveOption(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	_, err := store.PublishCategory(ctx, &PublishCategoryRequest{Code: "mold", Name: "Mold"})
	require.NoError(t, err)
	_, err = store.PublishOption(ctx, &PublishOptionRequest{
		CategoryCode: "mold", Code: "mold_bathroom", Name: "Bathroom mold",
	})
	require.NoError(t, err)

	opt, err := store.ResolveOption(ctx, "mold_bathroom")
	require.NoError(t, err)
	assert.Equal(t, "Bathroom mold", opt.Name)

	_, err = store.ResolveOption(ctx, "mold_attic")
	assert.ErrorIs(t, err, ErrOptionNotFound)
}

func TestListTaxonomyOrdering(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	// Published out of order on purpose.
	_, err := store.PublishCategory(ctx, &PublishCategoryRequest{Code: "zeta", Name: "Zeta", Order: 2})
	require.NoError(t, err)
	_, err = store.PublishCategory(ctx, &PublishCategoryRequest{Code: "alpha", Name: "Alpha", Order: 1})
	require.NoError(t, err)
	_, err = store.PublishOption(ctx, &PublishOptionRequest{CategoryCode: "alpha", Code: "alpha_two", Name: "Two", Order: 2})
	require.NoError(t, err)
	_, err = store.PublishOption(ctx, &PublishOptionRequest{CategoryCode: "alpha", Code: "alpha_one", Name: "One", Order: 1})
	require.NoError(t, err)

	categories, err := store.ListTaxonomy(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)

	assert.Equal(t, "alpha", categories[0].Code)
	assert.Equal(t, "zeta", categories[1].Code)

	require.Len(t, categories[0].Options, 2)
	assert.Equal(t, "alpha_one", categories[0].Options[0].Code)
	assert.Equal(t, "alpha_two", categories[0].Options[1].Code)
}

func TestDeleteOptionRejectedWhenReferenced(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	_, err := store.PublishCategory(ctx, &PublishCategoryRequest{Code: "heat", Name: "Heat"})
	require.NoError(t, err)
	opt, err := store.PublishOption(ctx, &PublishOptionRequest{
		CategoryCode: "heat", Code: "heat_none", Name: "No heat",
	})
	require.NoError(t, err)

	c := models.Case{PropertyAddress: "12 Main St", Status: models.CaseStatusPending}
	require.NoError(t, db.Create(&c).Error)
	party := models.Party{CaseID: c.ID, Role: models.PartyRolePlaintiff, Ordinal: 1, LastName: "Ruiz"}
	require.NoError(t, db.Create(&party).Error)
	require.NoError(t, db.Create(&models.IssueSelection{PartyID: party.ID, OptionID: opt.ID}).Error)

	err = store.DeleteOption(ctx, "heat_none")
	assert.ErrorIs(t, err, ErrReferenced)

	// Still resolvable after the rejected delete.
	_, err = store.ResolveOption(ctx, "heat_none")
	assert.NoError(t, err)
}

func TestDeleteOptionUnreferenced(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	_, err := store.PublishCategory(ctx, &PublishCategoryRequest{Code: "heat", Name: "Heat"})
	require.NoError(t, err)
	_, err = store.PublishOption(ctx, &PublishOptionRequest{
		CategoryCode: "heat", Code: "heat_none", Name: "No heat",
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteOption(ctx, "heat_none"))

	_, err = store.ResolveOption(ctx, "heat_none")
	assert.ErrorIs(t, err, ErrOptionNotFound)
}

func TestDeleteCategoryRejectedWhileOptionsExist(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	_, err := store.PublishCategory(ctx, &PublishCategoryRequest{Code: "structural", Name: "Structural"})
	require.NoError(t, err)
	_, err = store.PublishOption(ctx, &PublishOptionRequest{
		CategoryCode: "structural", Code: "structural_cracks", Name: "Cracks",
	})
	require.NoError(t, err)

	err = store.DeleteCategory(ctx, "structural")
	assert.ErrorIs(t, err, ErrReferenced)

	require.NoError(t, store.DeleteOption(ctx, "structural_cracks"))
	require.NoError(t, store.DeleteCategory(ctx, "structural"))
}

func TestDeleteCategoryRejectedWhenMetadataReferencesIt(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	_, err := store.PublishCategory(ctx, &PublishCategoryRequest{Code: "mold", Name: "Mold"})
	require.NoError(t, err)

	c := models.Case{PropertyAddress: "9 Elm St", Status: models.CaseStatusPending}
	require.NoError(t, db.Create(&c).Error)
	party := models.Party{CaseID: c.ID, Role: models.PartyRolePlaintiff, Ordinal: 1, LastName: "Okafor"}
	require.NoError(t, db.Create(&party).Error)
	require.NoError(t, db.Create(&models.IssueMetadata{
		PartyID: party.ID, CaseID: c.ID, CategoryCode: "mold", Details: "spreading",
	}).Error)

	err = store.DeleteCategory(ctx, "mold")
	assert.ErrorIs(t, err, ErrReferenced)
}
