package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs the `validate` tags of v and turns the first failure
// into a validation error carrying code.
func ValidateStruct(v any, code int) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	fieldErrors := validator.ValidationErrors{}
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return Validation(code, err.Error())
	}

	messages := make([]string, 0, len(fieldErrors))
	for _, fieldErr := range fieldErrors {
		messages = append(messages, describeFieldError(fieldErr))
	}
	return Validation(code, strings.Join(messages, "; "))
}

func describeFieldError(fieldErr validator.FieldError) string {
	field := fieldErr.Namespace()
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s é obrigatório", field)
	case "oneof":
		return fmt.Sprintf("%s deve ser um de: %s", field, fieldErr.Param())
	case "min":
		return fmt.Sprintf("%s deve ser no mínimo %s", field, fieldErr.Param())
	case "max":
		return fmt.Sprintf("%s deve ser no máximo %s", field, fieldErr.Param())
	}
	return fmt.Sprintf("%s é inválido (%s)", field, fieldErr.Tag())
}
