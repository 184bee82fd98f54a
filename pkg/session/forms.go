package session

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"git.sr.ht/~jakintosh/cashmate/pkg/client"
	"github.com/go-playground/validator/v10"
)

type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterForm struct {
	Username        string `json:"username" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type ActivateForm struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// ValidationError reports form fields that failed local validation. It
// matches client.ErrValidation, like a 400 from the backend.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s %s", name, e.Fields[name])
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == client.ErrValidation
}

type formValidator struct {
	once     sync.Once
	validate *validator.Validate
}

var forms formValidator

func (v *formValidator) lazyinit() {
	v.once.Do(func() {
		v.validate = validator.New(validator.WithRequiredStructEnabled())
		v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			return name
		})
	})
}

// Validate checks a form struct, returning a *ValidationError listing each
// failing field.
func Validate(form any) error {
	forms.lazyinit()

	err := forms.validate.Struct(form)
	if err == nil {
		return nil
	}

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return err
	}

	fields := make(map[string]string, len(invalid))
	for _, fe := range invalid {
		fields[fe.Field()] = message(fe)
	}
	return &ValidationError{Fields: fields}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "is not a valid email address"
	case "eqfield":
		return "does not match"
	case "len":
		return fmt.Sprintf("must be %s digits", fe.Param())
	case "numeric":
		return "must contain only digits"
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}
