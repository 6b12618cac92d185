package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance used across the module.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks s against its `validate` struct tags.
//
// Example:
//
//	type Config struct {
//	    MaxTokens int `validate:"min=1"`
//	}
//	if err := utils.Validate(&cfg); err != nil {
//	    return err
//	}
func Validate(s any) error {
	return validate.Struct(s)
}

// RegisterCustomValidation registers a custom validation function under tag.
func RegisterCustomValidation(tag string, fn validator.Func) error {
	return validate.RegisterValidation(tag, fn)
}

// ValidationMessage flattens validator errors into a single readable line such as
// "Temperature must satisfy lte=2; MaxTokens must satisfy min=1".
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), rule))
	}
	return strings.Join(parts, "; ")
}
