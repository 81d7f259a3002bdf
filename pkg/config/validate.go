package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/configdesk/configdesk/pkg/schema"
)

var validate = newValidator()

// newValidator returns a validator that reports fields by their YAML names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks value constraints (ranges, enum membership, non-empty
// strings) on an already typed Config. Violations are returned as a
// *ValidationError whose paths use YAML key names.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &ValidationError{Errors: []FieldError{{Message: "config is nil"}}}
	}
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Path:    namespacePath(fe.Namespace()),
			Message: constraintMessage(fe),
		})
	}
	return &ValidationError{Errors: out}
}

// namespacePath turns "Config.server.port" into [server port].
func namespacePath(ns string) schema.Path {
	parts := strings.Split(ns, ".")
	if len(parts) <= 1 {
		return schema.Path{}
	}
	return schema.Path(parts[1:])
}

func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "value is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	default:
		return fmt.Sprintf("failed %q constraint", fe.Tag())
	}
}
