// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the UUID client-side so the models work on any
// database, including the sqlite test database.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type PartyRole string

const (
	PartyRolePlaintiff PartyRole = "plaintiff"
	PartyRoleDefendant PartyRole = "defendant"
)

type PartyType string

const (
	PartyTypeIndividual PartyType = "individual"
	PartyTypeEntity     PartyType = "entity"
)

type CaseStatus string

const (
	CaseStatusPending          CaseStatus = "pending"
	CaseStatusProcessing       CaseStatus = "processing"
	CaseStatusCompleted        CaseStatus = "completed"
	CaseStatusCompletedPartial CaseStatus = "completed_partial"
	CaseStatusFailed           CaseStatus = "failed"
)

type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusRendered DocumentStatus = "rendered"
	DocumentStatusUploaded DocumentStatus = "uploaded"
	DocumentStatusFailed   DocumentStatus = "failed"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusAborted   JobStatus = "aborted"
)
