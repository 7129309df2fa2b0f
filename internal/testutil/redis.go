// Package testutil holds shared helpers for package tests.
package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// NewMiniredisClient starts an in-process Redis and returns a client bound to
// it. Both are torn down with the test.
func NewMiniredisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

// GenerateTestSecret returns a random secret long enough for JWT signing.
// Avoids hardcoded secrets in test files.
func GenerateTestSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		if envSecret := os.Getenv("TEST_JWT_SECRET"); envSecret != "" && len(envSecret) >= 32 {
			return envSecret
		}
		panic("failed to generate random bytes for test secret and TEST_JWT_SECRET is not set")
	}
	return hex.EncodeToString(bytes)
}

// MustGenerateTestSecret generates a test secret or panics if generation fails.
func MustGenerateTestSecret() string {
	secret := GenerateTestSecret()
	if len(secret) < 32 {
		panic("generated test secret is too short (minimum 32 characters required)")
	}
	return secret
}
