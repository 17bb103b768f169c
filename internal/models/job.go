// internal/models/job.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationJob is one row of the durable generation queue. The queue
// is at-least-once: a claimed job whose worker dies is reclaimed after
// the heartbeat goes stale, so everything a job does must be idempotent
// per (case, document type, party).
type GenerationJob struct {
	BaseModel
	CaseID      uuid.UUID  `json:"case_id" gorm:"type:uuid;not null;index"`
	Status      JobStatus  `json:"status" gorm:"type:varchar(20);default:'queued';index"`
	Attempts    int        `json:"attempts" gorm:"default:0"`
	LastError   string     `json:"last_error,omitempty" gorm:"type:text"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	// Relationships
	Case Case `json:"case,omitempty" gorm:"foreignKey:CaseID"`
}

func (GenerationJob) TableName() string {
	return "generation_jobs"
}

// Active reports whether the job still occupies the per-case
// exclusivity slot.
func (j *GenerationJob) Active() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusRunning
}
