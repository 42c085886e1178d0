package auth

import (
	"fmt"
	"relaychat/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "relaychat"

// RoomClaims is the grant a participant presents to the relay.
type RoomClaims struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// GenerateGrant signs a grant to join room as identity.
func GenerateGrant(secret []byte, room, identity, name string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.ErrMissingSecret
	}
	now := time.Now()
	claims := &RoomClaims{
		Room:     room,
		Identity: identity,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	// HS256: the relay and the token endpoint share the secret.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateGrant checks signature, expiry and issuer, and that the grant
// names a room and an identity.
func ValidateGrant(secret []byte, tokenString string) (*RoomClaims, error) {
	if len(secret) == 0 {
		return nil, errors.ErrMissingSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(token *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidGrant, err)
	}
	claims, ok := token.Claims.(*RoomClaims)
	if !ok || !token.Valid {
		return nil, errors.ErrInvalidGrant
	}
	if claims.Room == "" || claims.Identity == "" {
		return nil, fmt.Errorf("%w: missing room or identity", errors.ErrInvalidGrant)
	}
	return claims, nil
}
