package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type (
	Error struct {
		Fields  *map[string]string `json:"fields,omitempty" validate:"optional"`
		Message string             `json:"message"          validate:"required"`
	}
)

func StringError(err string) Error {
	return Error{Message: err}
}

func ValidationError(err error) Error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if ok {
		errorMap := make(map[string]string)
		for _, fieldError := range validationErrors {
			errorMap[fieldError.Field()] = fmt.Sprintf(
				"Failed to validate while checking condition: %s",
				fieldError.Tag(),
			)
		}

		return Error{Message: "validation error", Fields: &errorMap}
	}

	return Error{Message: "validation error"}
}

// Payload of a 409 response. Carries which field clashed with which value,
// and the id of the object already holding it when known.
type ValueTaken struct {
	Field  string     `json:"field"`
	Value  string     `json:"value"`
	Object *uuid.UUID `json:"object,omitempty"`
}

func (v ValueTaken) Error() string {
	return fmt.Sprintf("value %q is already taken for field %q", v.Value, v.Field)
}
