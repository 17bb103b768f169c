// internal/services/document_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lexflow/intake-backend/internal/models"
)

// DocumentService is the generation orchestrator. Given a committed
// case it determines the applicable document set, renders each
// document through the templating service, stages it locally, uploads
// it to the object store and tracks per-document and per-case status.
// It runs as the handler of the generation queue, so everything here
// must tolerate redelivery: work is keyed by (case, document type,
// party) and already-uploaded documents are skipped.
type DocumentService struct {
	db            *gorm.DB
	config        *configView
	templates     *TemplateService
	storage       *StorageService
	notifications *NotificationService
}

// configView narrows the pipeline knobs the orchestrator needs.
type configView struct {
	CaseSummaryTmpl         string
	AgreementTmpl           string
	IssueAddendumTmpl       string
	TemplateMaxRetries      int
	MaxUploadRetries        int
	ContinueOnUploadFailure bool
	RetryBase               time.Duration
}

type documentSpec struct {
	Type       string
	TemplateID string
	PerParty   bool
}

type planEntry struct {
	Spec  documentSpec
	Party *models.Party
}

func NewDocumentService(
	db *gorm.DB,
	templates *TemplateService,
	storage *StorageService,
	notifications *NotificationService,
) *DocumentService {
	cfg := templates.config
	return &DocumentService{
		db:        db,
		templates: templates,
		storage:   storage,
		notifications: notifications,
		config: &configView{
			CaseSummaryTmpl:         cfg.Templating.CaseSummaryTmpl,
			AgreementTmpl:           cfg.Templating.AgreementTmpl,
			IssueAddendumTmpl:       cfg.Templating.IssueAddendumTmpl,
			TemplateMaxRetries:      cfg.Templating.MaxRetries,
			MaxUploadRetries:        cfg.Pipeline.MaxUploadRetries,
			ContinueOnUploadFailure: cfg.Pipeline.ContinueOnUploadFailure,
			RetryBase:               time.Second,
		},
	}
}

// Handle processes one claimed generation job. It returns an error
// only for infrastructure failures (the queue then retries the job) or
// cancellation (the job is marked aborted). Document-level failures
// are recorded on the case instead: their retry budget was already
// spent here, and further attempts are the operator's explicit call.
func (s *DocumentService) Handle(ctx context.Context, job *models.GenerationJob) error {
	c, err := s.loadCase(ctx, job.CaseID)
	if err != nil {
		return fmt.Errorf("failed to load case %s: %w", job.CaseID, err)
	}

	if err := s.setCaseStatus(ctx, c, models.CaseStatusProcessing, ""); err != nil {
		return err
	}

	plan := s.buildPlan(c)
	var failures []string
	uploadedCount := 0
	terminalFailure := false

	for _, entry := range plan {
		if ctx.Err() != nil {
			// Cooperative cancellation: finished documents stay
			// finished, the case is parked as failed for explicit retry.
			s.setCaseStatus(context.Background(), c, models.CaseStatusFailed, "generation aborted before completion")
			return ctx.Err()
		}

		doc, err := s.processDocument(ctx, c, entry)
		if err != nil && ctx.Err() != nil {
			s.setCaseStatus(context.Background(), c, models.CaseStatusFailed, "generation aborted before completion")
			return ctx.Err()
		}
		if err != nil {
			var terminal *TerminalDependencyError
			if errors.As(err, &terminal) {
				terminalFailure = true
			}
			failures = append(failures, fmt.Sprintf("%s: %v", describeEntry(entry), err))
			continue
		}
		if doc.Status == models.DocumentStatusUploaded {
			uploadedCount++
		}
	}

	status := models.CaseStatusCompleted
	detail := ""
	switch {
	case len(failures) == 0:
		status = models.CaseStatusCompleted
	case !terminalFailure && s.config.ContinueOnUploadFailure && uploadedCount > 0:
		status = models.CaseStatusCompletedPartial
		detail = strings.Join(failures, "; ")
	default:
		status = models.CaseStatusFailed
		detail = strings.Join(failures, "; ")
	}

	if err := s.setCaseStatus(ctx, c, status, detail); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"case_id":   c.ID,
		"status":    status,
		"documents": len(plan),
		"uploaded":  uploadedCount,
		"failures":  len(failures),
	}).Info("Case generation finished")

	// Notification is a convenience: its failure never changes the
	// completed/failed determination above.
	s.notifications.NotifyCaseOutcome(ctx, c, status)

	return nil
}

func (s *DocumentService) loadCase(ctx context.Context, caseID uuid.UUID) (*models.Case, error) {
	var c models.Case
	err := s.db.WithContext(ctx).
		Preload("Parties", func(db *gorm.DB) *gorm.DB {
			return db.Order("parties.role ASC, parties.ordinal ASC")
		}).
		Preload("Parties.IssueSelections.Option").
		Preload("Parties.IssueMetadata").
		First(&c, "id = ?", caseID).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// buildPlan expands the document registry against the case's parties.
// Case-level documents render once; per-party documents render once
// per eligible plaintiff as independent, stateless invocations that
// see only that party's own projected fields.
func (s *DocumentService) buildPlan(c *models.Case) []planEntry {
	specs := []documentSpec{
		{Type: "case_summary", TemplateID: s.config.CaseSummaryTmpl, PerParty: false},
		{Type: "issue_addendum", TemplateID: s.config.IssueAddendumTmpl, PerParty: false},
		{Type: "retainer_agreement", TemplateID: s.config.AgreementTmpl, PerParty: true},
	}

	var plan []planEntry
	for _, spec := range specs {
		if !spec.PerParty {
			plan = append(plan, planEntry{Spec: spec})
			continue
		}
		for i := range c.Parties {
			party := &c.Parties[i]
			if eligibleForPersonalDocuments(party) {
				plan = append(plan, planEntry{Spec: spec, Party: party})
			}
		}
	}
	return plan
}

// eligibleForPersonalDocuments: personalized agreements go to adult
// plaintiffs; minors' claims ride on their household's agreement.
func eligibleForPersonalDocuments(p *models.Party) bool {
	if p.Role != models.PartyRolePlaintiff {
		return false
	}
	for _, cat := range p.AgeCategories {
		if cat == "minor" {
			return false
		}
	}
	return true
}

// processDocument drives one document through render → stage → upload,
// resuming from whatever state a previous delivery left behind.
func (s *DocumentService) processDocument(ctx context.Context, c *models.Case, entry planEntry) (*models.GeneratedDocument, error) {
	doc, err := s.findOrCreateDocument(ctx, c, entry)
	if err != nil {
		return nil, err
	}

	if doc.Status == models.DocumentStatusUploaded {
		return doc, nil
	}

	log := logrus.WithFields(logrus.Fields{
		"case_id":       c.ID,
		"document_type": entry.Spec.Type,
		"document_id":   doc.ID,
	})

	// Render only when no staged copy exists. A document that rendered
	// but failed to upload resumes at the upload step; rendering is a
	// paid external call and is never repeated for the same document.
	data, err := s.obtainRendered(ctx, c, entry, doc, log)
	if err != nil {
		s.markDocumentFailed(ctx, doc, err)
		return doc, err
	}

	key := s.storage.DocumentKey(c.ID, entry.Spec.Type, entryOrdinal(entry))
	var result *UploadResult
	err = retryWithBackoff(ctx, s.config.MaxUploadRetries, s.config.RetryBase, func() error {
		var uploadErr error
		result, uploadErr = s.storage.UploadDocument(ctx, key, data, "application/pdf")
		return uploadErr
	})
	if err != nil {
		// Keep the staged file: an explicit retry picks up here.
		log.WithError(err).Warn("Document upload exhausted retries")
		s.markDocumentFailed(ctx, doc, err)
		return doc, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      models.DocumentStatusUploaded,
		"storage_key": result.Key,
		"storage_url": result.URL,
		"uploaded_at": now,
		"last_error":  "",
	}
	if err := s.db.WithContext(ctx).Model(doc).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}
	doc.Status = models.DocumentStatusUploaded
	doc.StorageKey = result.Key
	doc.StorageURL = result.URL

	log.Info("Document uploaded")
	return doc, nil
}

func (s *DocumentService) obtainRendered(ctx context.Context, c *models.Case, entry planEntry, doc *models.GeneratedDocument, log *logrus.Entry) ([]byte, error) {
	if doc.StagedPath != "" && doc.RenderedAt != nil {
		data, err := s.storage.ReadStaged(doc.StagedPath)
		if err == nil {
			log.Info("Reusing staged rendering")
			return data, nil
		}
		log.WithError(err).Warn("Staged file unreadable, re-rendering")
	}

	req := &RenderRequest{
		TemplateID:    entry.Spec.TemplateID,
		Substitutions: s.buildSubstitutions(c, entry),
	}

	var data []byte
	err := retryWithBackoff(ctx, s.config.TemplateMaxRetries, s.config.RetryBase, func() error {
		var renderErr error
		data, renderErr = s.templates.Render(ctx, req)
		return renderErr
	})
	if err != nil {
		return nil, err
	}

	filename := entry.Spec.Type
	if ord := entryOrdinal(entry); ord > 0 {
		filename = fmt.Sprintf("%s-plaintiff-%d", filename, ord)
	}
	stagedPath, err := s.storage.StageDocument(c.ID, filename+".pdf", data)
	if err != nil {
		return nil, fmt.Errorf("failed to stage document: %w", err)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      models.DocumentStatusRendered,
		"staged_path": stagedPath,
		"rendered_at": now,
		"attempts":    gorm.Expr("attempts + 1"),
	}
	if err := s.db.WithContext(ctx).Model(doc).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to record rendering: %w", err)
	}
	doc.Status = models.DocumentStatusRendered
	doc.StagedPath = stagedPath
	doc.RenderedAt = &now

	return data, nil
}

func (s *DocumentService) findOrCreateDocument(ctx context.Context, c *models.Case, entry planEntry) (*models.GeneratedDocument, error) {
	query := s.db.WithContext(ctx).
		Where("case_id = ? AND document_type = ?", c.ID, entry.Spec.Type)
	if entry.Party != nil {
		query = query.Where("party_id = ?", entry.Party.ID)
	} else {
		query = query.Where("party_id IS NULL")
	}

	var doc models.GeneratedDocument
	err := query.First(&doc).Error
	if err == nil {
		return &doc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up document: %w", err)
	}

	doc = models.GeneratedDocument{
		CaseID:       c.ID,
		DocumentType: entry.Spec.Type,
		TemplateID:   entry.Spec.TemplateID,
		Status:       models.DocumentStatusPending,
	}
	if entry.Party != nil {
		doc.PartyID = &entry.Party.ID
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, fmt.Errorf("failed to create document row: %w", err)
	}
	return &doc, nil
}

func (s *DocumentService) markDocumentFailed(ctx context.Context, doc *models.GeneratedDocument, cause error) {
	updates := map[string]interface{}{
		"status":     models.DocumentStatusFailed,
		"last_error": cause.Error(),
	}
	if err := s.db.WithContext(ctx).Model(doc).Updates(updates).Error; err != nil {
		logrus.WithError(err).WithField("document_id", doc.ID).Error("Failed to record document failure")
	}
	doc.Status = models.DocumentStatusFailed
	doc.LastError = cause.Error()
}

func (s *DocumentService) setCaseStatus(ctx context.Context, c *models.Case, status models.CaseStatus, detail string) error {
	updates := map[string]interface{}{
		"status":        status,
		"status_detail": detail,
	}
	if status == models.CaseStatusCompleted || status == models.CaseStatusCompletedPartial {
		updates["completed_at"] = time.Now()
	}
	if err := s.db.WithContext(ctx).Model(&models.Case{}).
		Where("id = ?", c.ID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update case status: %w", err)
	}
	c.Status = status
	c.StatusDetail = detail
	return nil
}

// buildSubstitutions projects the case (and for per-party documents,
// exactly one party) into the flat map the templating service takes.
// Per-party maps never contain another party's fields, which makes
// cross-party leakage structurally impossible.
func (s *DocumentService) buildSubstitutions(c *models.Case, entry planEntry) map[string]string {
	subs := map[string]string{
		"property_address":    c.PropertyAddress,
		"property_city":       c.PropertyCity,
		"filing_jurisdiction": c.FilingJurisdiction,
		"case_id":             c.ID.String(),
		"submitted_on":        c.CreatedAt.Format("January 2, 2006"),
	}

	var defendants []string
	for i := range c.Parties {
		p := &c.Parties[i]
		if p.Role == models.PartyRoleDefendant {
			defendants = append(defendants, p.DisplayName())
		}
	}
	subs["defendant_names"] = strings.Join(defendants, "; ")

	if entry.Party != nil {
		p := entry.Party
		subs["party_name"] = p.DisplayName()
		subs["party_first_name"] = p.FirstName
		subs["party_last_name"] = p.LastName
		subs["party_ordinal"] = strconv.Itoa(p.Ordinal)
		subs["unit_id"] = p.UnitID
		subs["head_of_household"] = strconv.FormatBool(p.HeadOfHousehold)
		subs["issues"] = issueList(p)
		return subs
	}

	// Case-level documents aggregate across plaintiffs.
	var plaintiffs []string
	issueSet := make(map[string]bool)
	for i := range c.Parties {
		p := &c.Parties[i]
		if p.Role != models.PartyRolePlaintiff {
			continue
		}
		plaintiffs = append(plaintiffs, p.DisplayName())
		for _, sel := range p.IssueSelections {
			issueSet[sel.Option.Name] = true
		}
	}
	issues := make([]string, 0, len(issueSet))
	for name := range issueSet {
		issues = append(issues, name)
	}
	sort.Strings(issues)

	subs["plaintiff_names"] = strings.Join(plaintiffs, "; ")
	subs["issues"] = strings.Join(issues, "; ")
	return subs
}

func issueList(p *models.Party) string {
	names := make([]string, 0, len(p.IssueSelections))
	for _, sel := range p.IssueSelections {
		names = append(names, sel.Option.Name)
	}
	sort.Strings(names)
	return strings.Join(names, "; ")
}

func entryOrdinal(entry planEntry) int {
	if entry.Party == nil {
		return 0
	}
	return entry.Party.Ordinal
}

func describeEntry(entry planEntry) string {
	if entry.Party == nil {
		return entry.Spec.Type
	}
	return fmt.Sprintf("%s (plaintiff %d)", entry.Spec.Type, entry.Party.Ordinal)
}
