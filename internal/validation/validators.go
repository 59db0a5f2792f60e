package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/benvon/smart-timelog/internal/factoid"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("time_hint", validateTimeHint); err != nil {
		panic(fmt.Sprintf("failed to register time_hint validator: %v", err))
	}
	if err := Validate.RegisterValidation("timezone", validateTimezone); err != nil {
		panic(fmt.Sprintf("failed to register timezone validator: %v", err))
	}
	if err := Validate.RegisterValidation("timeline_id", validateTimelineID); err != nil {
		panic(fmt.Sprintf("failed to register timeline_id validator: %v", err))
	}
}

// MaxTimelineIDLength bounds timeline identifiers, which are usually OIDC subjects
const MaxTimelineIDLength = 128

// validateTimeHint accepts the names understood by factoid.ParseTimeHint
func validateTimeHint(fl validator.FieldLevel) bool {
	return ValidateTimeHint(fl.Field().String()) == nil
}

// validateTimezone accepts IANA zone names, "UTC" and "Local"
func validateTimezone(fl validator.FieldLevel) bool {
	return ValidateTimezone(fl.Field().String()) == nil
}

func validateTimelineID(fl validator.FieldLevel) bool {
	return ValidateTimelineID(fl.Field().String()) == nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateTimeHint validates a time hint name
func ValidateTimeHint(value string) error {
	if _, err := factoid.ParseTimeHint(value); err != nil {
		return fmt.Errorf("invalid hint: %s (must be one of none, start, end, both, after, then, still)", value)
	}
	return nil
}

// ValidateTimezone validates a timezone name
func ValidateTimezone(value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.LoadLocation(value); err != nil {
		return fmt.Errorf("invalid timezone: %s", value)
	}
	return nil
}

// ValidateTimelineID accepts 1 to MaxTimelineIDLength printable characters without spaces
func ValidateTimelineID(value string) error {
	if value == "" {
		return fmt.Errorf("timeline ID is required")
	}
	if len(value) > MaxTimelineIDLength {
		return fmt.Errorf("timeline ID exceeds %d characters", MaxTimelineIDLength)
	}
	for _, r := range value {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return fmt.Errorf("timeline ID contains invalid character %q", r)
		}
	}
	return nil
}
