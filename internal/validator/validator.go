// Package validator wraps a shared go-playground validator that reports
// JSON field names.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func Get() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Error lists every failed field of one struct.
type Error struct {
	Fields []string
	msgs   []string
}

func (e *Error) Error() string {
	return "validation failed: " + strings.Join(e.msgs, "; ")
}

// Validate checks s and returns *Error on constraint failures.
func Validate(s any) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, fe.Field())
		out.msgs = append(out.msgs, fmt.Sprintf("%s %s", fe.Field(), message(fe)))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "e164":
		return "must be an E.164 phone number"
	case "ltefield", "gtfield":
		return "is out of range"
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}
