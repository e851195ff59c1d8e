package models

import (
	"reflect"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/go-playground/validator/v10"
)

// Both patterns rely on Unicode \w, \d and \b, which the regexp package
// only supports for ASCII.
var (
	// Two words of at least three word characters, each ending with a non-digit,
	// separated by exactly one whitespace character.
	fullNamePattern = mustCompile(`\b\w{3,}\D\b\s\b\w{3,}\D\b\z`)

	coursePattern = mustCompile(`\b[a-zA-Z]{2,}[.\\\d]*\b`)
)

const patternMatchTimeout = 100 * time.Millisecond

func mustCompile(expr string) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, regexp2.None)
	re.MatchTimeout = patternMatchTimeout

	return re
}

// matchString treats a timed out match as a mismatch.
func matchString(re *regexp2.Regexp, value string) bool {
	matched, err := re.MatchString(value)

	return err == nil && matched
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("fullname", validateFullName); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("course", validateCourse); err != nil {
		panic(err)
	}

	return v
}

func validateFullName(fieldLevel validator.FieldLevel) bool {
	return matchString(fullNamePattern, fieldLevel.Field().String())
}

func validateCourse(fieldLevel validator.FieldLevel) bool {
	return matchString(coursePattern, fieldLevel.Field().String())
}

// Validate runs the struct validation rules declared on the payload types.
// The returned error, if any, is a validator.ValidationErrors.
func Validate(payload any) error {
	return validate.Struct(payload)
}

// IsValidCourse reports whether a single course name is acceptable.
func IsValidCourse(course string) bool {
	return matchString(coursePattern, course)
}
