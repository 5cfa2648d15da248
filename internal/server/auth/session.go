package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vektorburo/backoffice/internal/common"
	"github.com/vektorburo/backoffice/internal/server/models"
)

// Claim is the minimal identity attached to a session capsule. It never
// contains the password hash.
type Claim struct {
	ID        string `json:"uid"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar,omitempty"`
}

// capsuleClaims is the JWT payload: registered claims plus the identity claim.
type capsuleClaims struct {
	jwt.RegisteredClaims
	Claim
}

// Issue encodes the claim into a signed session capsule valid for
// validityDuration from now. The capsule is opaque to the client; its
// contents are fixed for its whole lifetime.
func Issue(claim Claim, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, capsuleClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Claim: claim,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Verify reconstitutes the identity claim from a capsule. Bad signature,
// expiry, structural damage and unknown roles all collapse to
// common.ErrSessionInvalid; callers learn nothing about which check failed.
func Verify(tokenString string, secretKey []byte) (*Claim, error) {
	claims := &capsuleClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.ErrSessionInvalid
		}
		return secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, common.ErrSessionInvalid
	}

	if claims.Email == "" || !models.ValidRole(claims.Role) {
		return nil, common.ErrSessionInvalid
	}

	c := claims.Claim
	return &c, nil
}
