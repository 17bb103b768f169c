// internal/taxonomy/store.go

// Package taxonomy holds the append-only issue catalog shared by
// intake validation and document generation. Categories and options
// are published, never renamed or deleted while referenced, so codes
// stored on historical cases always resolve.
package taxonomy

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lexflow/intake-backend/internal/models"
)

var (
	// ErrCategoryNotFound is returned when a category code is not in the catalog.
	ErrCategoryNotFound = errors.New("issue category not found")
	// ErrOptionNotFound is returned when an option code is not in the catalog.
	ErrOptionNotFound = errors.New("issue option not found")
	// ErrReferenced rejects deletion of a catalog entry that any case references.
	ErrReferenced = errors.New("taxonomy entry is referenced by existing cases")
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to the given transaction so catalog
// lookups participate in the caller's isolation level. The intake
// transaction resolves every submitted code through this.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

func (s *Store) ResolveCategory(ctx context.Context, code string) (*models.IssueCategory, error) {
	var category models.IssueCategory
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve category %s: %w", code, err)
	}
	return &category, nil
}

func (s *Store) ResolveOption(ctx context.Context, code string) (*models.IssueOption, error) {
	var option models.IssueOption
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&option).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOptionNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve option %s: %w", code, err)
	}
	return &option, nil
}

// ListTaxonomy returns the full ordered category→option tree.
func (s *Store) ListTaxonomy(ctx context.Context) ([]models.IssueCategory, error) {
	var categories []models.IssueCategory
	err := s.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("issue_options.\"order\" ASC, issue_options.code ASC")
		}).
		Order("issue_categories.\"order\" ASC, issue_categories.code ASC").
		Find(&categories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list taxonomy: %w", err)
	}
	return categories, nil
}

type PublishCategoryRequest struct {
	Code  string `json:"code" validate:"required,taxonomy_code"`
	Name  string `json:"name" validate:"required,max=255"`
	Order int    `json:"order"`
}

type PublishOptionRequest struct {
	CategoryCode string `json:"category_code" validate:"required,taxonomy_code"`
	Code         string `json:"code" validate:"required,taxonomy_code"`
	Name         string `json:"name" validate:"required,max=255"`
	Order        int    `json:"order"`
}

// PublishCategory appends a category. Publishing an existing code is a
// no-op returning the existing row, which makes re-running seeds and
// concurrent publications safe.
func (s *Store) PublishCategory(ctx context.Context, req *PublishCategoryRequest) (*models.IssueCategory, error) {
	var category models.IssueCategory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("code = ?", req.Code).First(&category).Error
		if err == nil {
			return nil // already published, keep the original
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up category %s: %w", req.Code, err)
		}

		category = models.IssueCategory{Code: req.Code, Name: req.Name, Order: req.Order}
		if err := tx.Create(&category).Error; err != nil {
			return fmt.Errorf("failed to publish category %s: %w", req.Code, err)
		}

		logrus.WithFields(logrus.Fields{
			"category_code": req.Code,
			"category_name": req.Name,
		}).Info("Issue category published")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// PublishOption appends an option under an existing category,
// idempotent on (category, code).
func (s *Store) PublishOption(ctx context.Context, req *PublishOptionRequest) (*models.IssueOption, error) {
	var option models.IssueOption
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		category, err := s.WithTx(tx).ResolveCategory(ctx, req.CategoryCode)
		if err != nil {
			return err
		}

		err = tx.Where("category_id = ? AND code = ?", category.ID, req.Code).First(&option).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up option %s: %w", req.Code, err)
		}

		option = models.IssueOption{
			CategoryID: category.ID,
			Code:       req.Code,
			Name:       req.Name,
			Order:      req.Order,
		}
		if err := tx.Create(&option).Error; err != nil {
			return fmt.Errorf("failed to publish option %s: %w", req.Code, err)
		}

		logrus.WithFields(logrus.Fields{
			"category_code": req.CategoryCode,
			"option_code":   req.Code,
		}).Info("Issue option published")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &option, nil
}

// DeleteOption removes an option only when nothing references it. The
// reference check and the delete share one transaction so a concurrent
// case submission cannot slip a reference in between them.
func (s *Store) DeleteOption(ctx context.Context, code string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		option, err := s.WithTx(tx).ResolveOption(ctx, code)
		if err != nil {
			return err
		}

		var refs int64
		if err := tx.Model(&models.IssueSelection{}).
			Where("option_id = ?", option.ID).
			Count(&refs).Error; err != nil {
			return fmt.Errorf("failed to count option references: %w", err)
		}
		if refs > 0 {
			return fmt.Errorf("%w: option %s has %d selections", ErrReferenced, code, refs)
		}

		return tx.Delete(option).Error
	})
}

// DeleteCategory removes a category only when it has no options and no
// metadata rows carry its code.
func (s *Store) DeleteCategory(ctx context.Context, code string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		category, err := s.WithTx(tx).ResolveCategory(ctx, code)
		if err != nil {
			return err
		}

		var optionCount int64
		if err := tx.Model(&models.IssueOption{}).
			Where("category_id = ?", category.ID).
			Count(&optionCount).Error; err != nil {
			return fmt.Errorf("failed to count category options: %w", err)
		}
		if optionCount > 0 {
			return fmt.Errorf("%w: category %s has %d options", ErrReferenced, code, optionCount)
		}

		var metaCount int64
		if err := tx.Model(&models.IssueMetadata{}).
			Where("category_code = ?", code).
			Count(&metaCount).Error; err != nil {
			return fmt.Errorf("failed to count metadata references: %w", err)
		}
		if metaCount > 0 {
			return fmt.Errorf("%w: category %s is referenced by %d metadata rows", ErrReferenced, code, metaCount)
		}

		return tx.Delete(category).Error
	})
}
