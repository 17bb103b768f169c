// internal/models/taxonomy.go
package models

import (
	"github.com/google/uuid"
)

// IssueCategory is one group of the housing-condition issue catalog
// (e.g. "vermin", "plumbing"). Rows are append-only: categories are
// published, never renamed or deleted, so historical cases and document
// templates stay valid.
type IssueCategory struct {
	BaseModel
	Code  string `json:"code" gorm:"size:100;not null;uniqueIndex"`
	Name  string `json:"name" gorm:"size:255;not null"`
	Order int    `json:"order" gorm:"not null;default:0"`

	// Relationships
	Options []IssueOption `json:"options,omitempty" gorm:"foreignKey:CategoryID"`
}

func (IssueCategory) TableName() string {
	return "issue_categories"
}

// IssueOption is one selectable issue within a category. Codes are
// unique per category and append-only like their parent.
type IssueOption struct {
	BaseModel
	CategoryID uuid.UUID `json:"category_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_issue_options_cat_code"`
	Code       string    `json:"code" gorm:"size:100;not null;uniqueIndex:idx_issue_options_cat_code"`
	Name       string    `json:"name" gorm:"size:255;not null"`
	Order      int       `json:"order" gorm:"not null;default:0"`

	// Relationships
	Category IssueCategory `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
}

func (IssueOption) TableName() string {
	return "issue_options"
}
