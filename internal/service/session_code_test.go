package service

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alphaRandom   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789AB"
	numericRandom = "0123456789012345678901234567890123456789012345678901234567890123"
)

func session(random string, issued time.Time) string {
	return random + "@" + strconv.FormatInt(issued.Unix(), 10)
}

func TestDeriveVerificationCodeKnownVectors(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)

	code, err := DeriveVerificationCode(session(alphaRandom, issued), issued.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "875460", code)

	code, err = DeriveVerificationCode(session(numericRandom, issued), issued)
	require.NoError(t, err)
	assert.Equal(t, "9ac77d", code)
}

func TestDeriveVerificationCodeOnlyUsesLeadingSlice(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	altered := alphaRandom[:40] + strings.Repeat("z", len(alphaRandom)-40)

	a, err := DeriveVerificationCode(session(alphaRandom, issued), issued)
	require.NoError(t, err)
	b, err := DeriveVerificationCode(session(altered, issued), issued)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeriveVerificationCodeExpiry(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	s := session(alphaRandom, issued)

	_, err := DeriveVerificationCode(s, issued.Add(3600*time.Second))
	require.NoError(t, err)

	_, err = DeriveVerificationCode(s, issued.Add(3601*time.Second))
	assert.ErrorIs(t, err, ErrSessionExpired)

	ok, err := VerifyCode(s, "875460", issued.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, ok)
}

func TestDeriveVerificationCodeRejectsMalformed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	for _, s := range []string{"", "no-separator", "short@1700000000", alphaRandom + "@notanumber"} {
		_, err := DeriveVerificationCode(s, now)
		assert.ErrorIs(t, err, ErrMalformedSession, s)
	}
}

func TestGenerateSessionCodeFormat(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s, err := GenerateSessionCode(now)
	require.NoError(t, err)

	random, ts, ok := strings.Cut(s, "@")
	require.True(t, ok)
	assert.Len(t, random, 64)
	assert.Equal(t, "1700000000", ts)
	for _, r := range random {
		assert.Contains(t, sessionAlphabet, string(r))
	}

	other, err := GenerateSessionCode(now)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}

func TestVerifyCodeIgnoresCaseAndSpace(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	ok, err := VerifyCode(session(numericRandom, issued), " 9AC77D ", issued)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyCode(session(numericRandom, issued), "000000", issued)
	require.NoError(t, err)
	assert.False(t, ok)
}
