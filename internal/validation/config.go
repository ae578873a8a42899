package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
)

// APIKeyPattern and APISecretPattern define the allowed shape of the
// engine's credential pair: a fixed prefix plus an opaque suffix of
// letters, digits, underscores and hyphens.
var (
	APIKeyPattern    = regexp.MustCompile(`^rpa_[A-Za-z0-9_-]{8,}$`)
	APISecretPattern = regexp.MustCompile(`^rps_[A-Za-z0-9_-]{8,}$`)
)

// ValidateEmail checks that email is a syntactically valid address.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("email is not a valid address: %w", err)
	}
	return nil
}

// ValidateAPIKey checks the rpa_ prefix required by §6 "Constructor
// inputs".
func ValidateAPIKey(key string) error {
	if !APIKeyPattern.MatchString(key) {
		return fmt.Errorf("api_key must match %s", APIKeyPattern.String())
	}
	return nil
}

// ValidateAPISecret checks the rps_ prefix required by §6 "Constructor
// inputs".
func ValidateAPISecret(secret string) error {
	if !APISecretPattern.MatchString(secret) {
		return fmt.Errorf("api_secret must match %s", APISecretPattern.String())
	}
	return nil
}

// ValidateServerURL checks that serverURL parses and uses the ws or
// wss scheme.
func ValidateServerURL(serverURL string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("server_url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server_url must use scheme ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server_url must include a host")
	}
	return nil
}
