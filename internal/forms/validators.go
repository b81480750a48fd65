package forms

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// Validate evaluates the declared field rules before any submission is
	// attempted; an invalid field never reaches the network.
	Validate   *validator.Validate
	Translator ut.Translator

	// custom validation tags & texts
	notBlankTag    = "notblank"
	notBlankText   = "{0} must not be blank"
	dateFormatTag  = "dateformat"
	dateFormatText = "invalid date format"
	pastDateTag    = "pastdate"
	pastDateText   = "birthdate cannot be in the future"
)

// birthdates travel as plain calendar dates
const dateLayout = "2006-01-02"

func init() {
	Validate = validator.New()

	// Register the english error messages for validation errors.
	_en := en.New()
	uni := ut.New(_en, _en)
	Translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(Validate, Translator)

	// Use JSON tag names for errors instead of Go struct names.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = Validate.RegisterValidation(notBlankTag, notBlankValidation)
	registerCustomTranslation(notBlankTag, notBlankText)
	_ = Validate.RegisterValidation(dateFormatTag, dateFormatValidation)
	registerCustomTranslation(dateFormatTag, dateFormatText)
	_ = Validate.RegisterValidation(pastDateTag, pastDateValidation)
	registerCustomTranslation(pastDateTag, pastDateText)
}

// registerCustomTranslation registers a translation for a custom tag.
func registerCustomTranslation(tag, text string) {
	_ = Validate.RegisterTranslation(
		tag, Translator,
		func(t ut.Translator) error { return t.Add(tag, text, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// notBlankValidation rejects strings that are empty after trimming.
func notBlankValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// dateFormatValidation requires a parseable calendar date.
func dateFormatValidation(fl validator.FieldLevel) bool {
	_, err := time.Parse(dateLayout, fl.Field().String())
	return err == nil
}

// pastDateValidation rejects calendar dates in the future. Unparseable
// values pass here so dateformat stays the rule that reports them.
func pastDateValidation(fl validator.FieldLevel) bool {
	date, err := time.Parse(dateLayout, fl.Field().String())
	if err != nil {
		return true
	}
	return !date.After(time.Now())
}
