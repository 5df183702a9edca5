package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("AB23CD45EF67", "certificates/AB23CD45EF67.pdf")
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	code, key, parsedExp, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "AB23CD45EF67", code)
	require.Equal(t, "certificates/AB23CD45EF67.pdf", key)
	require.WithinDuration(t, expiresAt, parsedExp, time.Second)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, _, err := signer.Generate("AB23CD45EF67", "certificates/AB23CD45EF67.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token + "x")
	require.Error(t, err)

	other := NewSignedURLSigner("other-secret", time.Minute)
	_, _, _, err = other.Parse(token)
	require.Error(t, err)
}

func TestSignedURLSignerRejectsExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	signer.ttl = -time.Minute

	token, _, err := signer.Generate("AB23CD45EF67", "certificates/AB23CD45EF67.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token)
	require.Error(t, err)
}
