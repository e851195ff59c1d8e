package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/patric-chuzhbe/students/internal/apperror"
)

// TokenType selects one of the two token classes.
type TokenType string

// Token classes.
const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// ErrWrongTokenType is returned when a token of one class is presented as the other.
var ErrWrongTokenType = errors.New("wrong token type")

// TokenClaims represents the JWT claims issued by the service.
// The subject is the user ID.
type TokenClaims struct {
	jwt.RegisteredClaims
	Type TokenType `json:"typ"`
}

// NewTokenClaims creates claims for userID that expire after ttl.
func NewTokenClaims(userID uuid.UUID, tokenType TokenType, ttl time.Duration) *TokenClaims {
	now := time.Now()

	return &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: tokenType,
	}
}

// Expired reports whether the claims are past their expiry at the given moment.
// Claims without an expiry are always expired.
func (c *TokenClaims) Expired(now time.Time) bool {
	return c.ExpiresAt == nil || now.After(c.ExpiresAt.Time)
}

// UserID parses the subject.
func (c *TokenClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenSettings holds the signing key and lifetimes of one token class.
type TokenSettings struct {
	key []byte

	// Exp is the token lifetime written to the `exp` claim.
	Exp time.Duration

	// MaxAge is the lifetime of the cookie carrying the token.
	MaxAge time.Duration
}

// NewTokenSettings creates settings for one token class.
func NewTokenSettings(key string, exp, maxAge time.Duration) TokenSettings {
	return TokenSettings{
		key:    []byte(key),
		Exp:    exp,
		MaxAge: maxAge,
	}
}

// JWT issues and verifies access and refresh tokens.
type JWT struct {
	Access  TokenSettings
	Refresh TokenSettings

	parser *jwt.Parser
}

// NewJWT creates a JWT for the given access and refresh settings.
func NewJWT(access, refresh TokenSettings) *JWT {
	return &JWT{
		Access:  access,
		Refresh: refresh,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

func (j *JWT) settings(tokenType TokenType) TokenSettings {
	if tokenType == TokenTypeRefresh {
		return j.Refresh
	}

	return j.Access
}

// Encode signs claims with the key of the given class.
func (j *JWT) Encode(claims *TokenClaims, tokenType TokenType) (string, error) {
	claims.Type = tokenType
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(j.settings(tokenType).key)
	if err != nil {
		return "", apperror.Wrap(err, "Can not create token", apperror.TypeJWT)
	}

	return tokenString, nil
}

// Issue creates and signs a token of the given class for userID using the class lifetime.
func (j *JWT) Issue(userID uuid.UUID, tokenType TokenType) (string, error) {
	return j.Encode(NewTokenClaims(userID, tokenType, j.settings(tokenType).Exp), tokenType)
}

// Decode verifies the signature, the algorithm and the class of tokenString.
// The expiry is not checked here: callers decide how to treat expired claims.
func (j *JWT) Decode(tokenString string, tokenType TokenType) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := j.parser.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return j.settings(tokenType).key, nil
		},
	)
	if err != nil {
		return nil, apperror.Wrap(err, "Can not decode token", apperror.TypeAuthentication)
	}

	if claims.Type != tokenType {
		return nil, apperror.Wrap(ErrWrongTokenType, "Can not decode token", apperror.TypeAuthentication)
	}

	return claims, nil
}
