package storage

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLSignerRoundTrip(t *testing.T) {
	signer := NewURLSigner([]byte("test-secret"), "http://localhost:8080", 10*time.Minute)

	signed, expiresAt, err := signer.Sign("receipts/req1/receipt.pdf")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(signed, "http://localhost:8080/api/receipts/view?token="))
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), expiresAt, 5*time.Second)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)

	path, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "receipts/req1/receipt.pdf", path)
}

func TestURLSignerRejectsExpired(t *testing.T) {
	signer := NewURLSigner([]byte("test-secret"), "http://localhost:8080", -1*time.Minute)

	signed, _, err := signer.Sign("receipts/req1/receipt.pdf")
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)

	_, err = signer.Verify(parsed.Query().Get("token"))
	assert.Error(t, err)
}

func TestURLSignerRejectsWrongSecret(t *testing.T) {
	signer := NewURLSigner([]byte("test-secret"), "http://localhost:8080", 10*time.Minute)
	other := NewURLSigner([]byte("other-secret"), "http://localhost:8080", 10*time.Minute)

	signed, _, err := signer.Sign("receipts/req1/receipt.pdf")
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)

	_, err = other.Verify(parsed.Query().Get("token"))
	assert.Error(t, err)
}

func TestURLSignerRejectsGarbage(t *testing.T) {
	signer := NewURLSigner([]byte("test-secret"), "http://localhost:8080", 10*time.Minute)

	_, err := signer.Verify("not-a-token")
	assert.Error(t, err)
}
