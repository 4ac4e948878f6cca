package services

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/yukikurage/apollo-api/internal/utils"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

func validateInput(input any) error {
	if err := validate.Struct(input); err != nil {
		return &ValidationError{Message: utils.ValidationMessage(err)}
	}
	return nil
}
