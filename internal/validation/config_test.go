package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("alice@example.com"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("not-an-email"))
}

func TestValidateAPIKey(t *testing.T) {
	assert.NoError(t, ValidateAPIKey("rpa_abcd1234"))
	assert.Error(t, ValidateAPIKey("abcd1234"))
	assert.Error(t, ValidateAPIKey("rpa_short"))
	assert.Error(t, ValidateAPIKey("rps_abcd1234"))
}

func TestValidateAPISecret(t *testing.T) {
	assert.NoError(t, ValidateAPISecret("rps_abcd1234"))
	assert.Error(t, ValidateAPISecret("abcd1234"))
	assert.Error(t, ValidateAPISecret("rpa_abcd1234"))
}

func TestValidateServerURL(t *testing.T) {
	assert.NoError(t, ValidateServerURL("wss://sync.example.com/v1"))
	assert.NoError(t, ValidateServerURL("ws://localhost:8080"))
	assert.Error(t, ValidateServerURL("http://example.com"))
	assert.Error(t, ValidateServerURL("not a url"))
	assert.Error(t, ValidateServerURL("wss:///missing-host"))
}
