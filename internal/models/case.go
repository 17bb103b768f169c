// internal/models/case.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Case is one accepted intake submission. The raw payload is kept
// verbatim beside the normalized rows so a case can be audited or
// replayed through generation after a failure.
type Case struct {
	BaseModel
	PropertyAddress    string     `json:"property_address" gorm:"size:500;not null"`
	PropertyCity       string     `json:"property_city" gorm:"size:255"`
	FilingJurisdiction string     `json:"filing_jurisdiction,omitempty" gorm:"size:255"`
	ContactName        string     `json:"contact_name" gorm:"size:255"`
	ContactEmail       string     `json:"contact_email" gorm:"size:255"`
	RawPayload         JSONB      `json:"raw_payload,omitempty" gorm:"type:jsonb"`
	Status             CaseStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	StatusDetail       string     `json:"status_detail,omitempty" gorm:"type:text"`
	NotifyError        string     `json:"notify_error,omitempty" gorm:"type:text"`
	NotifiedAt         *time.Time `json:"notified_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`

	// Relationships
	Parties   []Party             `json:"parties,omitempty" gorm:"foreignKey:CaseID"`
	Documents []GeneratedDocument `json:"documents,omitempty" gorm:"foreignKey:CaseID"`
}

func (Case) TableName() string {
	return "cases"
}

// Party is a plaintiff or defendant attached to a case. Ordinals are
// 1-based per role, assigned once at intake and never reused.
type Party struct {
	BaseModel
	CaseID  uuid.UUID `json:"case_id" gorm:"type:uuid;not null;index"`
	Role    PartyRole `json:"role" gorm:"type:varchar(10);not null;index"`
	Ordinal int       `json:"ordinal" gorm:"not null"`

	FirstName  string    `json:"first_name" gorm:"size:255"`
	LastName   string    `json:"last_name" gorm:"size:255"`
	EntityName string    `json:"entity_name,omitempty" gorm:"size:500"`
	PartyType  PartyType `json:"party_type" gorm:"type:varchar(20);default:'individual'"`

	// Plaintiff-only fields
	AgeCategories   pq.StringArray `json:"age_categories,omitempty" gorm:"type:text[]"`
	HeadOfHousehold bool           `json:"head_of_household" gorm:"default:false"`
	UnitID          string         `json:"unit_id,omitempty" gorm:"size:50"`

	// Relationships
	Case            Case            `json:"case,omitempty" gorm:"foreignKey:CaseID"`
	IssueSelections []IssueSelection `json:"issue_selections,omitempty" gorm:"foreignKey:PartyID"`
	IssueMetadata   []IssueMetadata  `json:"issue_metadata,omitempty" gorm:"foreignKey:PartyID"`
}

func (Party) TableName() string {
	return "parties"
}

// DisplayName returns the name used in generated documents.
func (p *Party) DisplayName() string {
	if p.PartyType == PartyTypeEntity && p.EntityName != "" {
		return p.EntityName
	}
	if p.FirstName == "" {
		return p.LastName
	}
	return p.FirstName + " " + p.LastName
}

// IssueSelection is one plaintiff's claim to one taxonomy option. The
// option reference is resolved against the taxonomy inside the intake
// transaction; unknown codes abort the whole submission.
type IssueSelection struct {
	BaseModel
	PartyID  uuid.UUID `json:"party_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_issue_selections_party_option"`
	OptionID uuid.UUID `json:"option_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_issue_selections_party_option"`

	// Relationships
	Party  Party       `json:"party,omitempty" gorm:"foreignKey:PartyID"`
	Option IssueOption `json:"option,omitempty" gorm:"foreignKey:OptionID"`
}

func (IssueSelection) TableName() string {
	return "issue_selections"
}

// IssueMetadata holds the free-text detail block a plaintiff fills in
// per issue category. CategoryCode is validated against the taxonomy at
// write time but deliberately kept as a plain code rather than a
// foreign key, so intake stays decoupled from the generation schema.
type IssueMetadata struct {
	BaseModel
	PartyID      uuid.UUID  `json:"party_id" gorm:"type:uuid;not null;index"`
	CaseID       uuid.UUID  `json:"case_id" gorm:"type:uuid;not null;index"`
	CategoryCode string     `json:"category_code" gorm:"size:100;not null;index"`
	Details      string     `json:"details" gorm:"type:text"`
	FirstNoticed *time.Time `json:"first_noticed,omitempty"`
	ReportedAt   *time.Time `json:"reported_at,omitempty"`

	// Relationships
	Party Party `json:"party,omitempty" gorm:"foreignKey:PartyID"`
}

func (IssueMetadata) TableName() string {
	return "issue_metadata"
}
