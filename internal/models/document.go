// internal/models/document.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// GeneratedDocument tracks one document of one case through the
// render → stage → upload pipeline. PartyID is set for personalized
// per-party documents and null for case-level ones. A row that reached
// "uploaded" is immutable; a row stuck at "rendered" keeps its staged
// file so upload can be retried without re-invoking the templating
// service.
type GeneratedDocument struct {
	BaseModel
	CaseID       uuid.UUID      `json:"case_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_generated_docs_case_type_party"`
	PartyID      *uuid.UUID     `json:"party_id,omitempty" gorm:"type:uuid;index;uniqueIndex:idx_generated_docs_case_type_party"`
	DocumentType string         `json:"document_type" gorm:"size:100;not null;uniqueIndex:idx_generated_docs_case_type_party"`
	TemplateID   string         `json:"template_id" gorm:"size:255"`
	Status       DocumentStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	StagedPath   string         `json:"staged_path,omitempty" gorm:"size:1024"`
	StorageKey   string         `json:"storage_key,omitempty" gorm:"size:1024"`
	StorageURL   string         `json:"storage_url,omitempty" gorm:"size:1024"`
	Attempts     int            `json:"attempts" gorm:"default:0"`
	LastError    string         `json:"last_error,omitempty" gorm:"type:text"`
	RenderedAt   *time.Time     `json:"rendered_at,omitempty"`
	UploadedAt   *time.Time     `json:"uploaded_at,omitempty"`

	// Relationships
	Case  Case   `json:"case,omitempty" gorm:"foreignKey:CaseID"`
	Party *Party `json:"party,omitempty" gorm:"foreignKey:PartyID"`
}

func (GeneratedDocument) TableName() string {
	return "generated_documents"
}

// Terminal reports whether the document reached a final state.
func (d *GeneratedDocument) Terminal() bool {
	return d.Status == DocumentStatusUploaded || d.Status == DocumentStatusFailed
}
