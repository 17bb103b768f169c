// internal/handlers/intake.go
package handlers

import (
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lexflow/intake-backend/internal/jobs"
	"github.com/lexflow/intake-backend/internal/models"
	"github.com/lexflow/intake-backend/internal/services"
	"github.com/lexflow/intake-backend/internal/utils"
)

type IntakeHandler struct {
	intakeService  *services.IntakeService
	storageService *services.StorageService
}

func NewIntakeHandler(intakeService *services.IntakeService, storageService *services.StorageService) *IntakeHandler {
	return &IntakeHandler{
		intakeService:  intakeService,
		storageService: storageService,
	}
}

// POST /v1/cases
func (h *IntakeHandler) SubmitCase(c *gin.Context) {
	rawPayload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.BadRequestResponse(c, "Failed to read request body", nil)
		return
	}

	submitted, err := h.intakeService.SubmitCase(c.Request.Context(), rawPayload)
	if err != nil {
		respondSubmitError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"case_id": submitted.ID,
		"status":  submitted.Status,
	})
}

// respondSubmitError maps the intake error taxonomy onto the API. The
// submitter always gets enough detail to fix and resubmit; nothing was
// persisted on any of these paths.
func respondSubmitError(c *gin.Context, err error) {
	var unknownCode *services.UnknownTaxonomyCodeError
	if errors.As(err, &unknownCode) {
		utils.UnprocessableResponse(c, "UNKNOWN_TAXONOMY_CODE", unknownCode.Error(), gin.H{
			"code": unknownCode.Code,
		})
		return
	}

	var invariant *services.InvariantViolationError
	if errors.As(err, &invariant) {
		utils.UnprocessableResponse(c, "INVARIANT_VIOLATION", invariant.Error(), nil)
		return
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(validationErrs))
		return
	}

	utils.BadRequestResponse(c, err.Error(), nil)
}

// GET /v1/cases
func (h *IntakeHandler) ListCases(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	var status *models.CaseStatus
	if raw := c.Query("status"); raw != "" {
		s := models.CaseStatus(raw)
		status = &s
	}

	cases, total, err := h.intakeService.ListCases(c.Request.Context(), params, status)
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to list cases")
		return
	}

	result := utils.CreatePaginationResult(cases, total, params)
	utils.SuccessResponseWithMeta(c, result.Data, gin.H{
		"page":        result.Page,
		"limit":       result.Limit,
		"total":       result.Total,
		"total_pages": result.TotalPages,
	})
}

type documentStatusView struct {
	DocumentType string                `json:"document_type"`
	PartyID      *uuid.UUID            `json:"party_id,omitempty"`
	PartyOrdinal *int                  `json:"party_ordinal,omitempty"`
	Status       models.DocumentStatus `json:"status"`
	DownloadURL  string                `json:"download_url,omitempty"`
	LastError    string                `json:"last_error,omitempty"`
	UploadedAt   *time.Time            `json:"uploaded_at,omitempty"`
}

// GET /v1/cases/:id/status
func (h *IntakeHandler) GetCaseStatus(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}

	cs, err := h.intakeService.GetCase(c.Request.Context(), caseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFoundResponse(c, "Case not found")
			return
		}
		utils.InternalErrorResponse(c, "Failed to load case")
		return
	}

	ordinals := make(map[uuid.UUID]int, len(cs.Parties))
	for _, p := range cs.Parties {
		ordinals[p.ID] = p.Ordinal
	}

	docs := make([]documentStatusView, 0, len(cs.Documents))
	for _, d := range cs.Documents {
		view := documentStatusView{
			DocumentType: d.DocumentType,
			PartyID:      d.PartyID,
			Status:       d.Status,
			LastError:    d.LastError,
			UploadedAt:   d.UploadedAt,
		}
		if d.PartyID != nil {
			if ord, found := ordinals[*d.PartyID]; found {
				view.PartyOrdinal = &ord
			}
		}
		if d.Status == models.DocumentStatusUploaded && d.StorageKey != "" {
			if url, presignErr := h.storageService.GeneratePresignedURL(d.StorageKey, 15*time.Minute); presignErr == nil {
				view.DownloadURL = url
			}
		}
		docs = append(docs, view)
	}

	utils.SuccessResponse(c, gin.H{
		"case_id":       cs.ID,
		"status":        cs.Status,
		"status_detail": cs.StatusDetail,
		"notify_error":  cs.NotifyError,
		"documents":     docs,
	})
}

// POST /v1/cases/:id/retry
func (h *IntakeHandler) RetryCase(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}

	cs, err := h.intakeService.RetryCase(c.Request.Context(), caseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFoundResponse(c, "Case not found")
			return
		}
		var invariant *services.InvariantViolationError
		if errors.As(err, &invariant) {
			utils.ConflictResponse(c, "NOT_RETRYABLE", invariant.Error())
			return
		}
		utils.InternalErrorResponse(c, "Failed to retry case")
		return
	}

	utils.AcceptedResponse(c, gin.H{
		"case_id": cs.ID,
		"status":  cs.Status,
	})
}

// POST /v1/cases/:id/cancel
func (h *IntakeHandler) CancelGeneration(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}

	if err := h.intakeService.CancelGeneration(c.Request.Context(), caseID); err != nil {
		if errors.Is(err, jobs.ErrNotCancellable) {
			utils.ConflictResponse(c, "NOT_CANCELLABLE", "Generation has already started or finished")
			return
		}
		utils.InternalErrorResponse(c, "Failed to cancel generation")
		return
	}

	utils.SuccessResponse(c, gin.H{"case_id": caseID, "cancelled": true})
}

func parseCaseID(c *gin.Context) (uuid.UUID, bool) {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid case ID", nil)
		return uuid.Nil, false
	}
	return caseID, true
}
