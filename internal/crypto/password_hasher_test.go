package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	hasher := NewPasswordHasher()

	hash, err := hasher.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	ok, err := hasher.VerifyPassword("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHasher_SaltIsUnique(t *testing.T) {
	hasher := NewPasswordHasher()

	hash1, err := hasher.HashPassword("same-password")
	require.NoError(t, err)
	hash2, err := hasher.HashPassword("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2)
}

func TestPasswordHasher_RejectsEmptyPassword(t *testing.T) {
	hasher := NewPasswordHasher()

	_, err := hasher.HashPassword("")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = hasher.VerifyPassword("", "anything")
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestPasswordHasher_RejectsMalformedHash(t *testing.T) {
	hasher := NewPasswordHasher()

	_, err := hasher.VerifyPassword("password", "")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = hasher.VerifyPassword("password", "not-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = hasher.VerifyPassword("password", "dG9vLXNob3J0")
	assert.ErrorIs(t, err, ErrInvalidHash)
}
