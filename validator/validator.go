package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// Optional +, no leading zero, 10-15 digits in total
	phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)
	codeRegex  = regexp.MustCompile(`^\d{6}$`)
)

// Validator wraps the go-playground validator
type Validator struct {
	validator *validator.Validate
}

// New creates a new validator instance
func New() *Validator {
	v := validator.New()

	// Register custom tag name function to use json tags for field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("phone_number", validatePhoneNumber)
	v.RegisterValidation("otp_code", validateOTPCode)

	return &Validator{
		validator: v,
	}
}

// Validate lets the wrapper act as an echo.Validator
func (v *Validator) Validate(i interface{}) error {
	return v.ValidateStruct(i)
}

// ValidateStruct validates a struct and returns formatted errors
func (v *Validator) ValidateStruct(s interface{}) error {
	if s == nil {
		return fmt.Errorf("input cannot be nil")
	}

	if err := v.validator.Struct(s); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errors []string
			for _, validationErr := range validationErrors {
				errors = append(errors, v.formatFieldError(validationErr))
			}
			return fmt.Errorf("validation failed: %s", strings.Join(errors, "; "))
		}
		// Handle other validation errors (like InvalidValidationError)
		return fmt.Errorf("validation error: %v", err)
	}
	return nil
}

// IsPhoneNumber reports whether s is an acceptable phone number
func IsPhoneNumber(s string) bool {
	return phoneRegex.MatchString(s)
}

// formatFieldError formats a single field validation error
func (v *Validator) formatFieldError(err validator.FieldError) string {
	field := err.Field()
	tag := err.Tag()
	param := err.Param()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if err.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters long", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if err.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters long", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters long", field, param)
	case "phone_number":
		return fmt.Sprintf("%s must be a valid phone number (10-15 digits, optional leading +)", field)
	case "otp_code":
		return fmt.Sprintf("%s must be exactly 6 digits", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// validatePhoneNumber validates phone number format
// Examples: +15551234567, 15551234567, +4915123456789
func validatePhoneNumber(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}

// validateOTPCode accepts exactly six ASCII digits
func validateOTPCode(fl validator.FieldLevel) bool {
	return codeRegex.MatchString(fl.Field().String())
}
