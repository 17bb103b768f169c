// internal/database/seed.go
package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/lexflow/intake-backend/internal/models"
)

type seedOption struct {
	Code string
	Name string
}

type seedCategory struct {
	Code    string
	Name    string
	Options []seedOption
}

// The standard habitability catalog. Seeding is additive only: codes
// already present are left untouched, so operator-published options
// survive redeploys.
var defaultTaxonomy = []seedCategory{
	{
		Code: "vermin",
		Name: "Vermin & Pests",
		Options: []seedOption{
			{Code: "vermin_rats", Name: "Rats or mice"},
			{Code: "vermin_roaches", Name: "Cockroaches"},
			{Code: "vermin_bedbugs", Name: "Bed bugs"},
			{Code: "vermin_other", Name: "Other pests"},
		},
	},
	{
		Code: "plumbing",
		Name: "Plumbing & Water",
		Options: []seedOption{
			{Code: "plumbing_leaks", Name: "Leaking pipes or fixtures"},
			{Code: "plumbing_no_hot_water", Name: "No hot water"},
			{Code: "plumbing_sewage", Name: "Sewage backup"},
		},
	},
	{
		Code: "mold",
		Name: "Mold & Moisture",
		Options: []seedOption{
			{Code: "mold_visible", Name: "Visible mold growth"},
			{Code: "mold_water_damage", Name: "Water damage or stains"},
		},
	},
	{
		Code: "heat",
		Name: "Heating & Utilities",
		Options: []seedOption{
			{Code: "heat_none", Name: "No heat"},
			{Code: "heat_inadequate", Name: "Inadequate heat"},
			{Code: "heat_no_electricity", Name: "Electrical outages"},
		},
	},
	{
		Code: "structural",
		Name: "Structural & Safety",
		Options: []seedOption{
			{Code: "structural_ceiling", Name: "Ceiling damage or collapse"},
			{Code: "structural_windows", Name: "Broken windows or doors"},
			{Code: "structural_locks", Name: "Broken locks or security"},
		},
	},
}

// SeedTaxonomy publishes the default issue catalog.
func SeedTaxonomy(db *gorm.DB) error {
	log.Println("Seeding issue taxonomy...")

	for i, sc := range defaultTaxonomy {
		var category models.IssueCategory
		err := db.Where("code = ?", sc.Code).First(&category).Error
		if err == gorm.ErrRecordNotFound {
			category = models.IssueCategory{Code: sc.Code, Name: sc.Name, Order: i}
			if err := db.Create(&category).Error; err != nil {
				return fmt.Errorf("failed to seed category %s: %w", sc.Code, err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up category %s: %w", sc.Code, err)
		}

		for j, so := range sc.Options {
			var count int64
			db.Model(&models.IssueOption{}).
				Where("category_id = ? AND code = ?", category.ID, so.Code).
				Count(&count)

			if count == 0 {
				option := models.IssueOption{
					CategoryID: category.ID,
					Code:       so.Code,
					Name:       so.Name,
					Order:      j,
				}
				if err := db.Create(&option).Error; err != nil {
					return fmt.Errorf("failed to seed option %s: %w", so.Code, err)
				}
			}
		}
	}

	log.Println("Issue taxonomy seeding completed")
	return nil
}
