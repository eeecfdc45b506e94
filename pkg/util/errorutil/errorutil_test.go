package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, MapError(nil))

	notFound := ToDomainError(fmt.Errorf("load bot: %w", pgx.ErrNoRows))
	assert.Equal(t, "NOT_FOUND", notFound.Code)
	assert.Equal(t, http.StatusNotFound, notFound.HTTPStatus)

	internal := ToDomainError(errors.New("connection reset"))
	assert.Equal(t, "INTERNAL_ERROR", internal.Code)
	assert.ErrorContains(t, internal, "connection reset")

	wrapped := fmt.Errorf("claim: %w", NewPrecondition("already claimed", nil))
	de := ToDomainError(wrapped)
	require.NotNil(t, de)
	assert.Equal(t, "PRECONDITION_FAILED", de.Code)
	assert.True(t, IsCode(wrapped, "PRECONDITION_FAILED"))
}

func TestMissingPermissionsNamesEach(t *testing.T) {
	err := NewMissingPermissions([]string{"bots.claim", "rpc.VoteReset"})

	assert.True(t, IsCode(err, "FORBIDDEN"))
	assert.Equal(t, "you do not have the following permissions: bots.claim, rpc.VoteReset", err.Error())
	assert.Equal(t, []string{"bots.claim", "rpc.VoteReset"}, ToDomainError(err).Details["missing"])
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{NewValidationError("bad", nil), http.StatusBadRequest},
		{NewUnauthorized("who"), http.StatusUnauthorized},
		{NewForbidden("no"), http.StatusForbidden},
		{NewConflict("dup", nil), http.StatusConflict},
		{NewVerificationFailed("wrong code"), http.StatusUnprocessableEntity},
		{NewRateLimited("slow down"), http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, ToDomainError(tt.err).HTTPStatus, tt.err.Error())
	}
}
