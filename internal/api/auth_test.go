package api

import (
	"context"
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := hashPassword("s3cret")
	assert.NoError(t, err, "expected hashing to succeed")
	assert.NotEqual(t, "s3cret", hash, "expected the hash to differ from the password")

	assert.True(t, verifyPassword(hash, "s3cret"), "expected the correct password to verify")
	assert.False(t, verifyPassword(hash, "wrong"), "expected a wrong password to fail")
}

func TestJwtRoundTrip(t *testing.T) {
	s := &ParleyApp{
		log:        testutil.TestLogger(t),
		signingKey: []byte("test-signing-key"),
	}

	token, err := s.createJwtForSession(42, time.Hour)
	assert.NoError(t, err, "expected token creation to succeed")

	userId, err := s.extractUserIdFromToken(token)
	assert.NoError(t, err, "expected token verification to succeed")
	assert.Equal(t, 42, userId, "expected the user id claim to round-trip")
}

func TestJwtExpired(t *testing.T) {
	s := &ParleyApp{
		log:        testutil.TestLogger(t),
		signingKey: []byte("test-signing-key"),
	}

	token, err := s.createJwtForSession(42, -time.Minute)
	assert.NoError(t, err, "expected token creation to succeed")

	_, err = s.extractUserIdFromToken(token)
	assert.Error(t, err, "expected an expired token to be rejected")
}

func TestJwtWrongKey(t *testing.T) {
	issuer := &ParleyApp{
		log:        testutil.TestLogger(t),
		signingKey: []byte("issuer-key"),
	}
	verifier := &ParleyApp{
		log:        testutil.TestLogger(t),
		signingKey: []byte("other-key"),
	}

	token, err := issuer.createJwtForSession(42, time.Hour)
	assert.NoError(t, err, "expected token creation to succeed")

	_, err = verifier.extractUserIdFromToken(token)
	assert.Error(t, err, "expected a token signed with a different key to be rejected")
}

func TestUserIdContext(t *testing.T) {
	ctx := context.Background()

	_, ok := UserId(ctx)
	assert.False(t, ok, "expected no user id on a fresh context")

	ctx = WithUserId(ctx, 7)
	userId, ok := UserId(ctx)
	assert.True(t, ok, "expected the user id to be present")
	assert.Equal(t, 7, userId, "expected the user id to round-trip")
}
