package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Tag     string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "min":
		return fmt.Sprintf("%s is below the allowed minimum", e.Field)
	case "max":
		return fmt.Sprintf("%s is above the allowed maximum", e.Field)
	case "oneof":
		return fmt.Sprintf("%s must be one of the allowed values", e.Field)
	default:
		return fmt.Sprintf("%s failed validation", e.Field)
	}
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Validator provides configuration validation.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new configuration validator.
func NewValidator() (*Validator, error) {
	return &Validator{validate: validator.New()}, nil
}

// ValidateConfig validates a configuration struct.
func (v *Validator) ValidateConfig(config *Config) error {
	if config == nil {
		return ValidationErrors{
			ValidationError{
				Field:   "config",
				Tag:     "required",
				Value:   nil,
				Message: "config is nil",
			},
		}
	}

	err := v.validate.Struct(config)
	if err == nil {
		if customErrors := v.validateCustomRules(config); len(customErrors) > 0 {
			return customErrors
		}
		return nil
	}

	// Convert validator errors to our custom error format
	var validationErrors ValidationErrors

	if errs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range errs {
			validationErrors = append(validationErrors, ValidationError{
				Field: e.Field(),
				Tag:   e.Tag(),
				Value: e.Value(),
			})
		}
	} else {
		validationErrors = append(validationErrors, ValidationError{
			Message: err.Error(),
		})
	}

	if customErrors := v.validateCustomRules(config); len(customErrors) > 0 {
		validationErrors = append(validationErrors, customErrors...)
	}

	return validationErrors
}

// validateCustomRules covers constraints the struct tags cannot express.
func (v *Validator) validateCustomRules(config *Config) ValidationErrors {
	var errs ValidationErrors

	// The trust threshold must be reachable on the normalized [0,1] scale,
	// otherwise no pattern can ever enter assembled context.
	if config.Engine.TrustThreshold >= 1.0 {
		errs = append(errs, ValidationError{
			Field:   "TrustThreshold",
			Tag:     "max",
			Value:   config.Engine.TrustThreshold,
			Message: "trust_threshold must be below 1.0 so patterns remain reachable",
		})
	}

	return errs
}
