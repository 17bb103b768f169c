// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lexflow/intake-backend/internal/config"
	"github.com/lexflow/intake-backend/internal/models"
)

// NotificationService is the dispatcher at the end of the pipeline: it
// emails the intake contact about the generation outcome, best-effort.
// Delivery gets a bounded retry budget; exhaustion is recorded on the
// case as a warning and never changes the case's completed/failed
// determination.
type NotificationService struct {
	db        *gorm.DB
	config    *config.Config
	retryBase time.Duration

	// sendFunc is swappable for tests.
	sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, cfg *config.Config) *NotificationService {
	return &NotificationService{
		db:        db,
		config:    cfg,
		retryBase: time.Second,
		sendFunc:  smtp.SendMail,
	}
}

// NotifyCaseOutcome sends the outcome email for a finished case.
func (s *NotificationService) NotifyCaseOutcome(ctx context.Context, c *models.Case, outcome models.CaseStatus) {
	if c.ContactEmail == "" {
		return
	}

	tmpl := s.outcomeTemplate(outcome)

	data := map[string]interface{}{
		"ContactName":     c.ContactName,
		"PropertyAddress": c.PropertyAddress,
		"CaseID":          c.ID.String(),
		"Detail":          c.StatusDetail,
	}

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		s.recordFailure(ctx, c, fmt.Errorf("failed to render email template: %w", err))
		return
	}

	err = retryWithBackoff(ctx, s.config.Email.MaxRetries, s.retryBase, func() error {
		if sendErr := s.sendEmail(c.ContactEmail, tmpl.Subject, body); sendErr != nil {
			// SMTP failures are treated as transient: the next attempt
			// may hit a recovered relay. The budget stays bounded.
			return &TransientDependencyError{Dependency: "notification", Err: sendErr}
		}
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, c, err)
		return
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&models.Case{}).
		Where("id = ?", c.ID).
		Updates(map[string]interface{}{"notified_at": now, "notify_error": ""}).Error; err != nil {
		logrus.WithError(err).WithField("case_id", c.ID).Warn("Failed to record notification")
	}

	logrus.WithFields(logrus.Fields{
		"case_id": c.ID,
		"outcome": outcome,
	}).Info("Outcome notification sent")
}

func (s *NotificationService) recordFailure(ctx context.Context, c *models.Case, cause error) {
	logrus.WithError(cause).WithField("case_id", c.ID).Warn("Outcome notification failed")

	if err := s.db.WithContext(ctx).Model(&models.Case{}).
		Where("id = ?", c.ID).
		Update("notify_error", cause.Error()).Error; err != nil {
		logrus.WithError(err).WithField("case_id", c.ID).Warn("Failed to record notification error")
	}
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email not configured, skipping send")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := []byte(fmt.Sprintf(
		"To: %s\r\nFrom: %s <%s>\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		to, s.config.Email.FromName, s.config.Email.FromEmail, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return s.sendFunc(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) outcomeTemplate(outcome models.CaseStatus) EmailTemplate {
	switch outcome {
	case models.CaseStatusCompleted:
		return EmailTemplate{
			Subject: "Your case documents are ready",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Documents ready</h2>
	<p>Hello {{.ContactName}},</p>
	<p>The documents for your case at {{.PropertyAddress}} have been prepared.
	Your legal team will be in touch with the next steps.</p>
	<p>Reference: {{.CaseID}}</p>
</body>
</html>`,
		}
	case models.CaseStatusCompletedPartial:
		return EmailTemplate{
			Subject: "Your case documents are partially ready",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Documents partially ready</h2>
	<p>Hello {{.ContactName}},</p>
	<p>Most documents for your case at {{.PropertyAddress}} have been prepared.
	A few are still being worked on; no action is needed from you.</p>
	<p>Reference: {{.CaseID}}</p>
</body>
</html>`,
		}
	default:
		return EmailTemplate{
			Subject: "Update on your case submission",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>We hit a snag</h2>
	<p>Hello {{.ContactName}},</p>
	<p>Preparing the documents for your case at {{.PropertyAddress}} is taking
	longer than expected. Your submission is safe and your legal team has been
	alerted; nothing is needed from you.</p>
	<p>Reference: {{.CaseID}}</p>
</body>
</html>`,
		}
	}
}
