package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokenStateExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	var missing *RefreshTokenState
	assert.True(t, missing.Expired(now))
	assert.False(t, missing.Revoked())

	state := NewRefreshTokenState("h", now.Add(time.Second))
	assert.False(t, state.Expired(now))
	assert.True(t, state.Expired(now.Add(time.Second)), "expiry equal to now counts as expired")
	assert.False(t, state.Revoked())

	state.Revoke(now)
	require.True(t, state.Revoked())
	assert.Equal(t, now, *state.RevokedAt)
}

func TestStudentCloneIsDeep(t *testing.T) {
	revokedAt := time.Now()
	orig := &Student{ID: 1, Email: "a@example.com", Refresh: &RefreshTokenState{Hash: "h", RevokedAt: &revokedAt}}

	cp := orig.Clone()
	cp.Refresh.Hash = "other"
	*cp.Refresh.RevokedAt = revokedAt.Add(time.Hour)

	assert.Equal(t, "h", orig.Refresh.Hash)
	assert.Equal(t, revokedAt, *orig.Refresh.RevokedAt)
	assert.Nil(t, (*Student)(nil).Clone())
}

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("login: %w", Unauthorized("Auth.Unauthorized", "Invalid Credentials"))

	got, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorUnauthorized, got.Type)
	assert.Equal(t, "Auth.Unauthorized: Invalid Credentials", got.Error())

	assert.True(t, errors.Is(err, Unauthorized("Auth.Unauthorized", "any description")))
	assert.False(t, errors.Is(err, NotFound("Auth.NotFound", "Invalid Credentials")))

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "not_found", ErrorNotFound.String())
	assert.Equal(t, "unknown", ErrorType(42).String())
}
