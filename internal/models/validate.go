package models

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their wire names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the `validate` tags of the struct v and returns the first
// violation as a *ValidationError named by its JSON path, e.g.
// "source.lat".
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return Invalid("", err.Error())
	}
	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	return Invalid(field, reason(fe))
}

// ValidateCoord rejects a missing or out-of-range coordinate reported under
// field.
func ValidateCoord(field string, c *Coord) error {
	if c == nil {
		return Invalid(field, "is required")
	}
	if err := Validate(c); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return Invalid(field+"."+ve.Field, ve.Reason)
		}
		return err
	}
	return nil
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required when " + strings.ToLower(fe.Param()) + " is missing"
	case "oneof":
		return "must be one of " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	}
	return "failed " + fe.Tag()
}
