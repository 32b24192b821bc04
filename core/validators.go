package core

import (
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	identifierTag   = "identifier"
	identifierText  = "only letters, digits, '_', '-' and '.' are allowed"
	identifierRegex = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

	genderTag  = "gender"
	genderText = "gender must be one of: " + strings.Join(Genders, ", ")

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// Genders accepted for students.
var Genders = []string{"Male", "Female"}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			// query-bound structs
			name = strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(identifierTag, identifierValidation)
	RegisterCustomTranslation(validate, translator, identifierTag, identifierText)

	_ = validate.RegisterValidation(genderTag, genderValidation)
	RegisterCustomTranslation(validate, translator, genderTag, genderText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// identifierValidation only allows ids made of letters, digits, underscores, dashes and dots.
func identifierValidation(fl validator.FieldLevel) bool {
	return identifierRegex.MatchString(fl.Field().String())
}

func genderValidation(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, g := range Genders {
		if val == g {
			return true
		}
	}
	return false
}
