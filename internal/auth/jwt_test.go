package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	tokens := NewTokens("secret")

	token, err := tokens.Generate(42)
	require.NoError(t, err)

	userID, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewTokens("secret-a").Generate(42)
	require.NoError(t, err)

	_, err = NewTokens("secret-b").Validate(token)
	require.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	_, err := NewTokens("secret").Validate("not.a.token")
	require.Error(t, err)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("hunter22", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}
