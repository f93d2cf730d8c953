package notes

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

// FieldErrors maps a draft field name (title, content, tag) to its message.
type FieldErrors map[string]string

// Error joins the field messages in field order.
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+fe[f])
	}
	return strings.Join(parts, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
	translator   ut.Translator
	validateErr  error
)

var draftMessages = map[string]string{
	"required": "this field is required",
	"min":      "min length {0} symbols",
	"max":      "max length {0} symbols",
	"oneof":    "invalid category",
}

func draftValidator() (*validator.Validate, ut.Translator, error) {
	validateOnce.Do(func() {
		locale := en.New()
		uni := ut.New(locale, locale)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})

		for tag, text := range draftMessages {
			err := v.RegisterTranslation(tag, trans,
				func(t ut.Translator) error {
					return t.Add(tag, text, true)
				},
				func(t ut.Translator, fe validator.FieldError) string {
					msg, err := t.T(fe.Tag(), fe.Param())
					if err != nil {
						return fe.Error()
					}
					return msg
				},
			)
			if err != nil {
				validateErr = fmt.Errorf("failed to register %q translation: %w", tag, err)
				return
			}
		}
		validate = v
		translator = trans
	})
	return validate, translator, validateErr
}

// ValidateDraft checks the draft against the note form rules: title 3–50
// characters, content at most 500 characters, tag in the closed set.
// It returns nil when the draft is valid. Lengths count characters, not bytes.
func ValidateDraft(d Draft) FieldErrors {
	v, trans, err := draftValidator()
	if err != nil {
		return FieldErrors{"form": err.Error()}
	}

	err = v.Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"form": err.Error()}
	}

	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = fe.Translate(trans)
	}
	return out
}
