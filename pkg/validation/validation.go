package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// Destination numbers default to the Brazilian country prefix. This is a
// fixed policy, not configurable.
const defaultCountryPrefix = "55"

var (
	nonDigitPattern  = regexp.MustCompile(`\D`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
)

// NormalizePhone strips every non-digit character and prepends the default
// country prefix when missing.
func NormalizePhone(number string) string {
	cleaned := nonDigitPattern.ReplaceAllString(number, "")
	if !strings.HasPrefix(cleaned, defaultCountryPrefix) {
		cleaned = defaultCountryPrefix + cleaned
	}
	return cleaned
}

// ValidatePhone ensures the normalized number is a plausible destination.
func ValidatePhone(number string) error {
	cleaned := NormalizePhone(number)
	if len(cleaned) < 10 || len(cleaned) > 15 {
		return errors.New("number must contain between 10 and 15 digits")
	}
	return nil
}

// ValidateSessionID ensures the identifier is safe to use as a credential
// store name on disk.
func ValidateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("sessionId is required")
	}
	if !sessionIDPattern.MatchString(sessionID) {
		return errors.New("sessionId must contain only letters, digits, '.', '_' or '-' and be at most 64 characters")
	}
	return nil
}

// ValidateWebhookURL ensures a non-empty valid URL when provided.
func ValidateWebhookURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("webhookUrl cannot be empty")
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return errors.New("webhookUrl must be a valid URL")
	}
	return nil
}
