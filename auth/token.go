package auth

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"deskchat/domain"
	"deskchat/errors"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates signed credentials presented at connect time.
// It holds only the verification key
type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates the signature and expiration of a credential
// string and extracts the identity it carries. It is called exactly once
// per connection, at handshake time; a connection whose credential fails
// here must never reach the registry.
func (v *Verifier) Verify(credential string) (domain.Identity, error) {
	if strings.TrimSpace(credential) == "" {
		return domain.Identity{}, errors.ErrCredentialMissing
	}

	token, err := jwt.ParseWithClaims(credential, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, errors.ErrCredentialExpired
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrCredentialInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Identity{}, errors.ErrCredentialInvalid
	}

	return domain.Identity{
		ID:          claims.UserID,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
	}, nil
}

// GenerateToken creates a signed JWT for a specific user. Token issuance
// as a service lives with the auth collaborator; this helper exists for
// operator tooling and tests.
func GenerateToken(secret []byte, identity domain.Identity, validity time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID:      identity.ID,
		DisplayName: identity.DisplayName,
		Role:        identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "deskchat",
		},
	}

	// HS256 (HMAC with SHA256), signed with the shared secret.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
