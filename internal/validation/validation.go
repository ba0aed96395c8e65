// Package validation performs the synchronous, pre-submission checks for every
// form the console submits. Nothing here touches the network.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxImageSize is the largest thumbnail accepted for upload.
const MaxImageSize = 5 << 20

// Errors maps a form field to the message displayed next to it.
type Errors map[string]string

func (e Errors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field carries an error.
func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// Merge folds backend field errors into err. err may be nil, a validation
// Errors value, or any other error; in the last case it is returned unchanged
// when server is empty. Server messages win on conflicting fields.
func Merge(err error, server map[string]string) error {
	var local Errors
	if err != nil && !errors.As(err, &local) {
		if len(server) == 0 {
			return err
		}
	}
	if len(local) == 0 && len(server) == 0 {
		return err
	}

	merged := make(Errors, len(local)+len(server))
	for k, v := range local {
		merged[k] = v
	}
	for k, v := range server {
		merged[k] = v
	}
	return merged
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var labels = map[string]string{
	"title":      "Title",
	"content":    "Content",
	"categoryId": "Category",
	"image":      "Image",
	"username":   "Username",
	"password":   "Password",
	"role":       "Role",
	"name":       "Name",
}

func check(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate form: %w", err)
	}

	out := make(Errors, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := fieldKey(fe)
		if _, exists := out[key]; exists {
			continue
		}
		out[key] = message(key, fe)
	}
	return out
}

// fieldKey returns the top-level form field a (possibly nested) error belongs to.
func fieldKey(fe validator.FieldError) string {
	parts := strings.Split(fe.Namespace(), ".")
	if len(parts) > 1 {
		return parts[1]
	}
	return fe.Field()
}

func message(key string, fe validator.FieldError) string {
	label, ok := labels[key]
	if !ok {
		label = key
	}

	if key == "image" {
		switch fe.Field() {
		case "size":
			return fmt.Sprintf("%s must be %dMB or smaller", label, MaxImageSize>>20)
		default:
			return fmt.Sprintf("%s must be an image file (JPG, PNG)", label)
		}
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", label)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", label, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid", label)
	}
}
