package domain

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	appErr "github.com/dutyroster/scheduler-core/internal/errors"
)

// identifierPattern is the external identifier shape mandated at every
// boundary: letters, digits, underscore, hyphen, 1-64 characters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("scheduler_id", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidateIdentifier rejects any string that does not match
// [A-Za-z0-9_-]{1,64}.
func ValidateIdentifier(id string) error {
	if !identifierPattern.MatchString(id) {
		return appErr.NewValidationError("identifier must match [A-Za-z0-9_-]{1,64}").
			WithDetailsf("got: %q", id)
	}
	return nil
}

// ValidateTimestamp parses an RFC-3339 timestamp, rejecting any other
// shape.
func ValidateTimestamp(ts string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, appErr.Wrapf(err, appErr.ErrorTypeValidation, "timestamp must be RFC-3339: %q", ts)
	}
	return t, nil
}

// ValidateDate parses an ISO-8601 date (YYYY-MM-DD), rejecting any other
// shape.
func ValidateDate(d string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", d)
	if err != nil {
		return time.Time{}, appErr.Wrapf(err, appErr.ErrorTypeValidation, "date must be ISO-8601 (YYYY-MM-DD): %q", d)
	}
	return t, nil
}

// IdentifiedRequest is embedded by boundary request DTOs that carry an
// external identifier validated via the `scheduler_id` struct tag.
type IdentifiedRequest struct {
	ID string `validate:"required,scheduler_id"`
}

// ValidateStruct runs struct-tag validation (including the scheduler_id
// custom tag) over v, wrapping any failure as a ValidationError.
func ValidateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return appErr.Wrap(err, appErr.ErrorTypeValidation, "request failed validation")
	}
	return nil
}
