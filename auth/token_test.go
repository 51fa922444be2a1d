package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deskchat/domain"
	"deskchat/errors"
)

var testSecret = []byte("test_secret_key_for_unit_tests_only")

func TestVerifier_Verify_ValidToken(t *testing.T) {
	req := require.New(t)
	identity := domain.Identity{ID: "user-1", DisplayName: "Alice", Role: "client"}

	token, err := GenerateToken(testSecret, identity, time.Hour)
	req.NoError(err)

	verifier := NewVerifier(testSecret)
	got, err := verifier.Verify(token)
	req.NoError(err)
	req.Equal(identity, got)
}

func TestVerifier_Verify_MissingCredential(t *testing.T) {
	req := require.New(t)
	verifier := NewVerifier(testSecret)

	_, err := verifier.Verify("")
	req.ErrorIs(err, errors.ErrCredentialMissing)

	_, err = verifier.Verify("   ")
	req.ErrorIs(err, errors.ErrCredentialMissing)
}

func TestVerifier_Verify_MalformedToken(t *testing.T) {
	req := require.New(t)
	verifier := NewVerifier(testSecret)

	_, err := verifier.Verify("not.a.jwt")
	req.ErrorIs(err, errors.ErrCredentialInvalid)
}

func TestVerifier_Verify_WrongSignature(t *testing.T) {
	req := require.New(t)
	identity := domain.Identity{ID: "user-1", DisplayName: "Alice", Role: "client"}

	token, err := GenerateToken([]byte("some_other_secret_entirely_here"), identity, time.Hour)
	req.NoError(err)

	verifier := NewVerifier(testSecret)
	_, err = verifier.Verify(token)
	req.ErrorIs(err, errors.ErrCredentialInvalid)
}

func TestVerifier_Verify_ExpiredToken(t *testing.T) {
	req := require.New(t)
	identity := domain.Identity{ID: "user-1", DisplayName: "Alice", Role: "client"}

	token, err := GenerateToken(testSecret, identity, -time.Minute)
	req.NoError(err)

	verifier := NewVerifier(testSecret)
	_, err = verifier.Verify(token)
	req.ErrorIs(err, errors.ErrCredentialExpired)
}
