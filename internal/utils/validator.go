// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var taxonomyCodePattern = regexp.MustCompile("^[a-z][a-z0-9_]*$")

func init() {
	validate = validator.New()
	validate.RegisterValidation("taxonomy_code", validateTaxonomyCode)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// Taxonomy codes are lowercase snake_case identifiers, 2-100 chars.
// The format check catches garbage early; whether the code actually
// exists is decided against the catalog inside the intake transaction.
func validateTaxonomyCode(fl validator.FieldLevel) bool {
	code := fl.Field().String()

	if len(code) < 2 || len(code) > 100 {
		return false
	}

	return taxonomyCodePattern.MatchString(code)
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must have at least " + e.Param() + " entries"
	case "max":
		return e.Field() + " must be at most " + e.Param() + " characters"
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "taxonomy_code":
		return e.Field() + " must be a lowercase snake_case code"
	default:
		return e.Field() + " is invalid"
	}
}
