// internal/services/intake_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lexflow/intake-backend/internal/jobs"
	"github.com/lexflow/intake-backend/internal/models"
	"github.com/lexflow/intake-backend/internal/taxonomy"
	"github.com/lexflow/intake-backend/internal/utils"
)

// IntakeService turns one raw intake submission into the normalized
// case records. Everything happens inside a single transaction: either
// the whole case commits (and a generation job is queued with it) or
// nothing is persisted at all. A partially written case is a
// correctness bug, not a degraded mode.
type IntakeService struct {
	db       *gorm.DB
	taxonomy *taxonomy.Store
	queue    *jobs.Repo
}

func NewIntakeService(db *gorm.DB, taxonomyStore *taxonomy.Store, queue *jobs.Repo) *IntakeService {
	return &IntakeService{
		db:       db,
		taxonomy: taxonomyStore,
		queue:    queue,
	}
}

type PropertyInput struct {
	Address      string `json:"address" validate:"required,max=500"`
	City         string `json:"city" validate:"max=255"`
	Jurisdiction string `json:"jurisdiction" validate:"max=255"`
}

type ContactInput struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email"`
}

type IssueDetailInput struct {
	CategoryCode string     `json:"category_code" validate:"required,taxonomy_code"`
	Details      string     `json:"details" validate:"max=10000"`
	FirstNoticed *time.Time `json:"first_noticed,omitempty"`
	ReportedAt   *time.Time `json:"reported_at,omitempty"`
}

type PlaintiffInput struct {
	FirstName       string             `json:"first_name" validate:"required,max=255"`
	LastName        string             `json:"last_name" validate:"required,max=255"`
	AgeCategories   []string           `json:"age_categories" validate:"dive,oneof=adult minor senior"`
	HeadOfHousehold bool               `json:"head_of_household"`
	UnitID          string             `json:"unit_id" validate:"max=50"`
	IssueCodes      []string           `json:"issue_codes" validate:"dive,taxonomy_code"`
	IssueDetails    []IssueDetailInput `json:"issue_details" validate:"dive"`
}

type DefendantInput struct {
	FirstName  string           `json:"first_name" validate:"max=255"`
	LastName   string           `json:"last_name" validate:"max=255"`
	EntityName string           `json:"entity_name" validate:"max=500"`
	PartyType  models.PartyType `json:"party_type" validate:"omitempty,oneof=individual entity"`
}

type SubmitCaseRequest struct {
	Property   PropertyInput    `json:"property" validate:"required"`
	Contact    ContactInput     `json:"contact" validate:"required"`
	Plaintiffs []PlaintiffInput `json:"plaintiffs" validate:"required,min=1,dive"`
	Defendants []DefendantInput `json:"defendants" validate:"required,min=1,dive"`
}

// SubmitCase validates and persists one submission. rawPayload is the
// untrusted request body; it is stored verbatim on the case for audit
// and replay. On any error nothing is persisted and the caller may
// resubmit the identical payload.
func (s *IntakeService) SubmitCase(ctx context.Context, rawPayload []byte) (*models.Case, error) {
	var req SubmitCaseRequest
	if err := json.Unmarshal(rawPayload, &req); err != nil {
		return nil, fmt.Errorf("malformed submission payload: %w", err)
	}

	if err := utils.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := checkHeadOfHousehold(req.Plaintiffs); err != nil {
		return nil, err
	}

	var raw models.JSONB
	if err := json.Unmarshal(rawPayload, &raw); err != nil {
		return nil, fmt.Errorf("malformed submission payload: %w", err)
	}

	newCase := &models.Case{
		PropertyAddress:    req.Property.Address,
		PropertyCity:       req.Property.City,
		FilingJurisdiction: req.Property.Jurisdiction,
		ContactName:        req.Contact.Name,
		ContactEmail:       req.Contact.Email,
		RawPayload:         raw,
		Status:             models.CaseStatusPending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(newCase).Error; err != nil {
			return fmt.Errorf("failed to create case: %w", err)
		}

		tax := s.taxonomy.WithTx(tx)

		for i, in := range req.Plaintiffs {
			party := &models.Party{
				CaseID:          newCase.ID,
				Role:            models.PartyRolePlaintiff,
				Ordinal:         i + 1,
				FirstName:       in.FirstName,
				LastName:        in.LastName,
				PartyType:       models.PartyTypeIndividual,
				AgeCategories:   pq.StringArray(in.AgeCategories),
				HeadOfHousehold: in.HeadOfHousehold,
				UnitID:          in.UnitID,
			}
			if err := tx.Create(party).Error; err != nil {
				return fmt.Errorf("failed to create plaintiff %d: %w", i+1, err)
			}

			if err := s.writeIssues(ctx, tx, tax, newCase, party, &in); err != nil {
				return err
			}
		}

		for i, in := range req.Defendants {
			partyType := in.PartyType
			if partyType == "" {
				if in.EntityName != "" {
					partyType = models.PartyTypeEntity
				} else {
					partyType = models.PartyTypeIndividual
				}
			}

			party := &models.Party{
				CaseID:     newCase.ID,
				Role:       models.PartyRoleDefendant,
				Ordinal:    i + 1,
				FirstName:  in.FirstName,
				LastName:   in.LastName,
				EntityName: in.EntityName,
				PartyType:  partyType,
			}
			if err := tx.Create(party).Error; err != nil {
				return fmt.Errorf("failed to create defendant %d: %w", i+1, err)
			}
		}

		// Queue generation inside the same transaction: a committed
		// case always has its job, a rolled-back case never does.
		if _, err := s.queue.Enqueue(ctx, tx, newCase.ID); err != nil {
			return fmt.Errorf("failed to enqueue generation job: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"case_id":    newCase.ID,
		"plaintiffs": len(req.Plaintiffs),
		"defendants": len(req.Defendants),
	}).Info("Case submitted")

	return newCase, nil
}

// writeIssues resolves every issue code a plaintiff submitted and
// writes the selection/metadata rows. An unresolvable code aborts the
// whole submission; silently dropping it would lose a claim.
func (s *IntakeService) writeIssues(ctx context.Context, tx *gorm.DB, tax *taxonomy.Store, c *models.Case, party *models.Party, in *PlaintiffInput) error {
	seen := make(map[string]bool)
	for _, code := range in.IssueCodes {
		if seen[code] {
			continue
		}
		seen[code] = true

		option, err := tax.ResolveOption(ctx, code)
		if err != nil {
			if errors.Is(err, taxonomy.ErrOptionNotFound) {
				return &UnknownTaxonomyCodeError{Code: code}
			}
			return err
		}

		selection := &models.IssueSelection{
			PartyID:  party.ID,
			OptionID: option.ID,
		}
		if err := tx.Create(selection).Error; err != nil {
			return fmt.Errorf("failed to create issue selection %s: %w", code, err)
		}
	}

	for _, detail := range in.IssueDetails {
		if _, err := tax.ResolveCategory(ctx, detail.CategoryCode); err != nil {
			if errors.Is(err, taxonomy.ErrCategoryNotFound) {
				return &UnknownTaxonomyCodeError{Code: detail.CategoryCode}
			}
			return err
		}

		meta := &models.IssueMetadata{
			PartyID:      party.ID,
			CaseID:       c.ID,
			CategoryCode: detail.CategoryCode,
			Details:      detail.Details,
			FirstNoticed: detail.FirstNoticed,
			ReportedAt:   detail.ReportedAt,
		}
		if err := tx.Create(meta).Error; err != nil {
			return fmt.Errorf("failed to create issue metadata %s: %w", detail.CategoryCode, err)
		}
	}

	return nil
}

// checkHeadOfHousehold enforces at most one head of household per unit
// across the full plaintiff set. Plaintiffs without a unit are treated
// as one shared unit.
func checkHeadOfHousehold(plaintiffs []PlaintiffInput) error {
	hohByUnit := make(map[string]int)
	for _, p := range plaintiffs {
		if !p.HeadOfHousehold {
			continue
		}
		hohByUnit[p.UnitID]++
		if hohByUnit[p.UnitID] > 1 {
			unit := p.UnitID
			if unit == "" {
				unit = "(none)"
			}
			return &InvariantViolationError{
				Reason: fmt.Sprintf("multiple heads of household for unit %s", unit),
			}
		}
	}
	return nil
}

// GetCase loads a case with its parties and documents.
func (s *IntakeService) GetCase(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	var c models.Case
	err := s.db.WithContext(ctx).
		Preload("Parties", func(db *gorm.DB) *gorm.DB {
			return db.Order("parties.role ASC, parties.ordinal ASC")
		}).
		Preload("Documents").
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// RetryCase re-enqueues generation for a case that ended failed (or
// partially completed). This is the only transition out of a terminal
// case status; completed cases are left alone.
func (s *IntakeService) RetryCase(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	var c models.Case
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			return err
		}

		if c.Status != models.CaseStatusFailed && c.Status != models.CaseStatusCompletedPartial {
			return &InvariantViolationError{
				Reason: fmt.Sprintf("case %s is %s, only failed or partially completed cases can be retried", id, c.Status),
			}
		}

		if err := tx.Model(&c).Updates(map[string]interface{}{
			"status":        models.CaseStatusPending,
			"status_detail": "",
		}).Error; err != nil {
			return fmt.Errorf("failed to reset case status: %w", err)
		}
		c.Status = models.CaseStatusPending

		if _, err := s.queue.Enqueue(ctx, tx, c.ID); err != nil {
			return fmt.Errorf("failed to re-enqueue generation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithField("case_id", id).Info("Case re-enqueued for generation")
	return &c, nil
}

// CancelGeneration withdraws a still-queued generation job.
func (s *IntakeService) CancelGeneration(ctx context.Context, id uuid.UUID) error {
	return s.queue.Cancel(ctx, id)
}

// ListCases returns a paginated operator view.
func (s *IntakeService) ListCases(ctx context.Context, params utils.PaginationParams, status *models.CaseStatus) ([]models.Case, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Case{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if params.Search != "" {
		pattern := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(property_address) LIKE ? OR LOWER(contact_name) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count cases: %w", err)
	}

	var cases []models.Case
	query = utils.ApplySort(query, params, []string{"created_at", "status", "property_address"})
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&cases).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list cases: %w", err)
	}

	return cases, total, nil
}
