package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Registration only fails for an empty tag or nil func.
		_ = validate.RegisterValidation("apiname", func(fl validator.FieldLevel) bool {
			return domain.IsAPIName(fl.Field().String())
		})
	})
	return validate
}

// Validate checks the final configuration, after flags are applied.
// Every violation is reported in one domain.ErrInvalidInput error.
func (c *Config) Validate() error {
	if err := ValidateExport(c.Export); err != nil {
		return err
	}
	if err := validatorInstance().Struct(c.Salesforce); err != nil {
		return describe(err)
	}
	return nil
}

// ValidateExport checks an ExportConfig, including its label fields.
func ValidateExport(cfg domain.ExportConfig) error {
	if err := validatorInstance().Struct(cfg); err != nil {
		return describe(err)
	}
	return nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, message(fe))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(msgs, "; "))
}

func message(fe validator.FieldError) string {
	field := fe.StructNamespace()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "apiname":
		return fmt.Sprintf("%s: %q is not a valid object or field API name", field, fe.Value())
	case "ltfield":
		return fmt.Sprintf("%s (%v) must be less than %s", field, fe.Value(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}
