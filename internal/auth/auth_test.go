package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckAPIKey(t *testing.T) {
	hash, err := HashAPIKey("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.NoError(t, CheckAPIKey("s3cret", hash))
	assert.ErrorIs(t, CheckAPIKey("wrong", hash), ErrInvalidKey)
	assert.ErrorIs(t, CheckAPIKey("", hash), ErrInvalidKey)
	assert.ErrorIs(t, CheckAPIKey("s3cret", ""), ErrInvalidKey)
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestKeyFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/duplicates", nil)
	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", KeyFromRequest(r))

	r = httptest.NewRequest("GET", "/api/v1/duplicates?api_key=xyz", nil)
	assert.Equal(t, "xyz", KeyFromRequest(r))

	r = httptest.NewRequest("GET", "/api/v1/duplicates", nil)
	r.Header.Set("Authorization", "Basic Zm9v")
	assert.Equal(t, "", KeyFromRequest(r))
}
