package service

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	sessionAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	sessionRandomLen = 64
	sessionTTL       = 3600 * time.Second

	// The verification UI derives the code from the same slice and
	// substitutions; changing any of these breaks existing guide pages.
	codeSliceLen  = 37
	codeSubstAOff = 7
	codeSubstA    = 'r'
	codeSubstBOff = 23
	codeSubstB    = 'x'
	codeLen       = 6
)

var (
	// ErrMalformedSession means the token is not <random>@<unix seconds>.
	ErrMalformedSession = errors.New("malformed onboarding session")
	// ErrSessionExpired means the session was issued more than an hour ago.
	ErrSessionExpired = errors.New("onboarding session expired")
)

// GenerateSessionCode returns a fresh session token issued at now.
func GenerateSessionCode(now time.Time) (string, error) {
	var b strings.Builder
	b.Grow(sessionRandomLen + 12)
	alphabetLen := big.NewInt(int64(len(sessionAlphabet)))
	for i := 0; i < sessionRandomLen; i++ {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generate session: %w", err)
		}
		b.WriteByte(sessionAlphabet[n.Int64()])
	}
	b.WriteByte('@')
	b.WriteString(strconv.FormatInt(now.Unix(), 10))
	return b.String(), nil
}

// DeriveVerificationCode computes the six hex characters a guide page shows for
// session. The session must be at most an hour old at now.
func DeriveVerificationCode(session string, now time.Time) (string, error) {
	random, issued, ok := strings.Cut(session, "@")
	if !ok || len(random) < codeSliceLen {
		return "", ErrMalformedSession
	}
	ts, err := strconv.ParseInt(issued, 10, 64)
	if err != nil {
		return "", ErrMalformedSession
	}
	if now.Unix()-ts > int64(sessionTTL/time.Second) {
		return "", ErrSessionExpired
	}

	slice := []byte(random[:codeSliceLen])
	slice[codeSubstAOff] = codeSubstA
	slice[codeSubstBOff] = codeSubstB

	sum := sha512.Sum512(slice)
	digest := hex.EncodeToString(sum[:])
	return digest[len(digest)-codeLen:], nil
}

// VerifyCode checks input against the code derived from session.
func VerifyCode(session, input string, now time.Time) (bool, error) {
	want, err := DeriveVerificationCode(session, now)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(input), want), nil
}
