package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	Argon2Time    = 3
	Argon2Memory  = 64 * 1024
	Argon2Threads = 4

	PasswordSaltSize   = 16
	PasswordHashLength = 32
)

var (
	ErrInvalidPassword = errors.New("invalid password: password cannot be empty")
	ErrInvalidHash     = errors.New("invalid hash: stored hash is malformed")
)

// PasswordHasher hashes account passwords with argon2id. The stored form is
// base64(salt || hash).
type PasswordHasher struct {
	time       uint32
	memory     uint32
	threads    uint8
	hashLength uint32
	saltSize   uint32
}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{
		time:       uint32(Argon2Time),
		memory:     uint32(Argon2Memory),
		threads:    uint8(Argon2Threads),
		hashLength: PasswordHashLength,
		saltSize:   PasswordSaltSize,
	}
}

func (h *PasswordHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrInvalidPassword
	}

	salt := make([]byte, h.saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		h.time,
		h.memory,
		h.threads,
		h.hashLength,
	)

	combined := make([]byte, h.saltSize+h.hashLength)
	copy(combined[:h.saltSize], salt)
	copy(combined[h.saltSize:], hash)

	return base64.StdEncoding.EncodeToString(combined), nil
}

// VerifyPassword reports whether password matches storedHash. The comparison
// is constant time over the hash bytes.
func (h *PasswordHasher) VerifyPassword(password string, storedHash string) (bool, error) {
	if password == "" {
		return false, ErrInvalidPassword
	}

	if storedHash == "" {
		return false, ErrInvalidHash
	}

	combined, err := base64.StdEncoding.DecodeString(storedHash)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}

	minLength := int(h.saltSize + h.hashLength)
	if len(combined) < minLength {
		return false, ErrInvalidHash
	}

	salt := combined[:h.saltSize]
	storedHashBytes := combined[h.saltSize : h.saltSize+h.hashLength]

	computedHash := argon2.IDKey(
		[]byte(password),
		salt,
		h.time,
		h.memory,
		h.threads,
		h.hashLength,
	)

	var diff byte
	for i := range computedHash {
		diff |= computedHash[i] ^ storedHashBytes[i]
	}

	return diff == 0, nil
}
