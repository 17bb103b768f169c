// internal/services/notification_service_test.go
package services

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lexflow/intake-backend/internal/config"
	"github.com/lexflow/intake-backend/internal/models"
)

type sentMail struct {
	to  []string
	msg []byte
}

func setupNotifications(t *testing.T) (*gorm.DB, *NotificationService, *[]sentMail) {
	t.Helper()

	db := setupTestDB(t)
	cfg := testConfig(t)
	cfg.Email = config.EmailConfig{
		SMTPHost:   "smtp.test",
		SMTPPort:   "587",
		FromEmail:  "noreply@lexflow.test",
		FromName:   "LexFlow Intake",
		MaxRetries: 3,
	}

	svc := NewNotificationService(db, cfg)
	svc.retryBase = time.Millisecond

	var sent []sentMail
	svc.sendFunc = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{to: to, msg: msg})
		return nil
	}
	return db, svc, &sent
}

func notifiableCase(t *testing.T, db *gorm.DB) *models.Case {
	t.Helper()
	c := &models.Case{
		PropertyAddress: "642 Fairmount Ave",
		ContactName:     "Dana Ruiz",
		ContactEmail:    "dana.ruiz@example.com",
		Status:          models.CaseStatusCompleted,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func TestNotifyCaseOutcomeCompleted(t *testing.T) {
	db, svc, sent := setupNotifications(t)
	c := notifiableCase(t, db)

	svc.NotifyCaseOutcome(context.Background(), c, models.CaseStatusCompleted)

	require.Len(t, *sent, 1)
	assert.Equal(t, []string{"dana.ruiz@example.com"}, (*sent)[0].to)
	assert.Contains(t, string((*sent)[0].msg), "Dana Ruiz")
	assert.Contains(t, string((*sent)[0].msg), "642 Fairmount Ave")
	assert.Contains(t, string((*sent)[0].msg), "ready")

	var reloaded models.Case
	require.NoError(t, db.First(&reloaded, "id = ?", c.ID).Error)
	assert.NotNil(t, reloaded.NotifiedAt)
	assert.Empty(t, reloaded.NotifyError)
}

func TestNotifyCaseOutcomeFailedWording(t *testing.T) {
	db, svc, sent := setupNotifications(t)
	c := notifiableCase(t, db)

	svc.NotifyCaseOutcome(context.Background(), c, models.CaseStatusFailed)

	require.Len(t, *sent, 1)
	msg := string((*sent)[0].msg)
	// Failure mail reassures the contact; it never leaks pipeline detail.
	assert.Contains(t, msg, "nothing is needed from you")
	assert.NotContains(t, msg, "transient")
}

func TestNotifyRetriesSMTPFailures(t *testing.T) {
	db, svc, _ := setupNotifications(t)
	c := notifiableCase(t, db)

	attempts := 0
	svc.sendFunc = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		attempts++
		if attempts < 2 {
			return errors.New("451 relay busy")
		}
		return nil
	}

	svc.NotifyCaseOutcome(context.Background(), c, models.CaseStatusCompleted)

	assert.Equal(t, 2, attempts)

	var reloaded models.Case
	require.NoError(t, db.First(&reloaded, "id = ?", c.ID).Error)
	assert.NotNil(t, reloaded.NotifiedAt)
}

func TestNotifyExhaustionIsRecordedNotFatal(t *testing.T) {
	db, svc, _ := setupNotifications(t)
	c := notifiableCase(t, db)

	attempts := 0
	svc.sendFunc = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		attempts++
		return errors.New("relay down")
	}

	svc.NotifyCaseOutcome(context.Background(), c, models.CaseStatusCompleted)

	assert.Equal(t, 3, attempts)

	var reloaded models.Case
	require.NoError(t, db.First(&reloaded, "id = ?", c.ID).Error)
	assert.Nil(t, reloaded.NotifiedAt)
	assert.Contains(t, reloaded.NotifyError, "relay down")
	// The case outcome is untouched by the notification failure.
	assert.Equal(t, models.CaseStatusCompleted, reloaded.Status)
}

func TestNotifySkipsCasesWithoutContact(t *testing.T) {
	db, svc, sent := setupNotifications(t)

	c := &models.Case{PropertyAddress: "1 No Contact Rd", Status: models.CaseStatusCompleted}
	require.NoError(t, db.Create(c).Error)

	svc.NotifyCaseOutcome(context.Background(), c, models.CaseStatusCompleted)
	assert.Empty(t, *sent)
}
