package auth

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateRefreshToken_FormatAndHash(t *testing.T) {
	token, hash, err := GenerateRefreshToken()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(token, RefreshTokenPrefix))
	require.True(t, ValidateTokenFormat(token, RefreshTokenPrefix))
	require.Len(t, hash, sha256.Size)
	require.Equal(t, HashToken(token), hash)
}

func TestGenerateRestoreCode_FormatAndHash(t *testing.T) {
	code, hash, err := GenerateRestoreCode()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(code, RestoreCodePrefix))
	require.True(t, ValidateTokenFormat(code, RestoreCodePrefix))
	require.Equal(t, HashToken(code), hash)
}

func TestValidateTokenFormat_WrongPrefix(t *testing.T) {
	token, _, err := GenerateRefreshToken()
	require.NoError(t, err)

	require.False(t, ValidateTokenFormat(token, RestoreCodePrefix))
	require.False(t, ValidateTokenFormat("nope_abc", RefreshTokenPrefix))
	require.False(t, ValidateTokenFormat(RefreshTokenPrefix+"!!!", RefreshTokenPrefix))
}

func TestGenerateRefreshToken_Unique(t *testing.T) {
	a, _, err := GenerateRefreshToken()
	require.NoError(t, err)
	b, _, err := GenerateRefreshToken()
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}
