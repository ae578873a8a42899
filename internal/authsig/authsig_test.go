package authsig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	nonce, err := NewNonce()
	require.NoError(t, err)

	mac := Sign("s3cr3t", "alice@example.com", "rpa_abc", nonce, 1700000000)
	assert.True(t, Verify("s3cr3t", "alice@example.com", "rpa_abc", nonce, 1700000000, mac))
}

func TestVerifyRejectsTamperedFields(t *testing.T) {
	nonce, err := NewNonce()
	require.NoError(t, err)

	mac := Sign("s3cr3t", "alice@example.com", "rpa_abc", nonce, 1700000000)

	assert.False(t, Verify("wrong-secret", "alice@example.com", "rpa_abc", nonce, 1700000000, mac))
	assert.False(t, Verify("s3cr3t", "mallory@example.com", "rpa_abc", nonce, 1700000000, mac))
	assert.False(t, Verify("s3cr3t", "alice@example.com", "rpa_abc", nonce, 1700000001, mac))
	assert.False(t, Verify("s3cr3t", "alice@example.com", "rpa_abc", nonce, 1700000000, "deadbeef"))
}

func TestNewNonceIsUnique(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
